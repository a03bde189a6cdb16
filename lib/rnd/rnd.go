// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package rnd provides a process-wide random source seeded from
// crypto/rand, used wherever this module needs to make a non-adversarial
// but non-predictable choice (e.g. picking a random responder to retry
// a download from). It deliberately avoids the global math/rand source,
// which is shared and, prior to auto-seeding, predictable.
package rnd

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
	mathrand "math/rand"
	"sync"
)

var (
	mut    sync.Mutex
	source = mathrand.New(mathrand.NewSource(seed()))
)

func seed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand is not expected to fail; fall back to a fixed
		// seed rather than panicking at startup.
		return 1
	}
	return int64(binary.BigEndian.Uint64(buf[:]))
}

// Intn returns a non-negative random number in [0,n).
func Intn(n int) int {
	mut.Lock()
	defer mut.Unlock()
	return source.Intn(n)
}

// Pick returns a random element of a non-empty slice.
func Pick[T any](items []T) T {
	return items[Intn(len(items))]
}

// String returns nbytes random bytes as a hex string, useful for
// generating short correlation IDs in logs. Leading zero digits are
// not included, so the result can be shorter than 2*nbytes characters.
func String(nbytes int) string {
	b := make([]byte, nbytes)
	mut.Lock()
	source.Read(b)
	mut.Unlock()
	return new(big.Int).SetBytes(b).Text(16)
}
