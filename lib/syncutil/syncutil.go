// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package syncutil wraps sync.Mutex and sync.RWMutex so that, when
// LANDROP_DEBUG includes "syncutil", slow critical sections are
// logged. Every shared map in this module (peer table, search-session
// table, file-state map) is guarded by one of these instead of a bare
// sync.Mutex.
package syncutil

import (
	"runtime"
	"sync"
	"time"

	"github.com/landrop/landrop/lib/logger"
)

var l = logger.DefaultLogger

// threshold above which a lock/unlock pair is logged when lock
// timing is enabled.
const threshold = 100 * time.Millisecond

type Mutex interface {
	Lock()
	Unlock()
}

type RWMutex interface {
	Mutex
	RLock()
	RUnlock()
}

func NewMutex() Mutex {
	if debug {
		return &loggedMutex{}
	}
	return &sync.Mutex{}
}

func NewRWMutex() RWMutex {
	if debug {
		return &loggedRWMutex{}
	}
	return &sync.RWMutex{}
}

type loggedMutex struct {
	sync.Mutex
	start    time.Time
	lockedAt string
}

func (m *loggedMutex) Lock() {
	m.Mutex.Lock()
	m.start = time.Now()
	m.lockedAt = getCaller()
}

func (m *loggedMutex) Unlock() {
	duration := time.Since(m.start)
	if duration >= threshold {
		l.Debugf("Mutex held for %v, locked at %s", duration, m.lockedAt)
	}
	m.Mutex.Unlock()
}

type loggedRWMutex struct {
	sync.RWMutex
	start    time.Time
	lockedAt string
}

func (m *loggedRWMutex) Lock() {
	start := time.Now()
	m.RWMutex.Lock()
	m.start = time.Now()
	m.lockedAt = getCaller()
	if d := m.start.Sub(start); d > threshold {
		l.Debugf("RWMutex took %v to lock, locked at %s", d, m.lockedAt)
	}
}

func (m *loggedRWMutex) Unlock() {
	duration := time.Since(m.start)
	if duration >= threshold {
		l.Debugf("RWMutex held for %v, locked at %s", duration, m.lockedAt)
	}
	m.RWMutex.Unlock()
}

func getCaller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "unknown"
	}
	return file + ":" + itoa(line)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
