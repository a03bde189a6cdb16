// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package logger provides a small leveled logger with pluggable
// handlers, used by every package in this module instead of the bare
// standard library logger.
package logger

import (
	"fmt"
	"log"
	"os"
	"sync"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "UNKNOWN"
	}
}

type Handler func(LogLevel, string)

// Logger wraps a standard library *log.Logger and fans messages out to
// any number of registered handlers, keyed by the minimum level they
// want to see.
type Logger struct {
	mut      sync.Mutex
	logger   *log.Logger
	handlers map[LogLevel][]Handler
}

func New() *Logger {
	return &Logger{
		logger:   log.New(os.Stderr, "", log.Ldate|log.Ltime),
		handlers: make(map[LogLevel][]Handler),
	}
}

func (l *Logger) SetFlags(flags int) {
	l.logger.SetFlags(flags)
}

func (l *Logger) SetPrefix(prefix string) {
	l.logger.SetPrefix(prefix)
}

// AddHandler registers a handler to be called for every message at or
// above the given level.
func (l *Logger) AddHandler(level LogLevel, h Handler) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.handlers[level] = append(l.handlers[level], h)
}

func (l *Logger) callHandlers(level LogLevel, msg string) {
	l.mut.Lock()
	defer l.mut.Unlock()
	for lvl, hs := range l.handlers {
		if level >= lvl {
			for _, h := range hs {
				h(level, msg)
			}
		}
	}
}

func (l *Logger) log(level LogLevel, msg string) {
	l.logger.Output(3, level.String()+": "+msg)
	l.callHandlers(level, msg)
}

func (l *Logger) Debugf(format string, vals ...interface{}) {
	l.log(LevelDebug, fmt.Sprintf(format, vals...))
}

func (l *Logger) Debugln(vals ...interface{}) {
	l.log(LevelDebug, fmt.Sprintln(vals...))
}

func (l *Logger) Infof(format string, vals ...interface{}) {
	l.log(LevelInfo, fmt.Sprintf(format, vals...))
}

func (l *Logger) Infoln(vals ...interface{}) {
	l.log(LevelInfo, fmt.Sprintln(vals...))
}

func (l *Logger) Warnf(format string, vals ...interface{}) {
	l.log(LevelWarn, fmt.Sprintf(format, vals...))
}

func (l *Logger) Warnln(vals ...interface{}) {
	l.log(LevelWarn, fmt.Sprintln(vals...))
}

// DefaultLogger is the process-wide logger instance. Every package in
// this module logs through it rather than constructing its own.
var DefaultLogger = New()
