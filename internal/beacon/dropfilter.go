// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package beacon

import "github.com/landrop/landrop/lib/rnd"

// dropFilter implements the broadcast socket's fault-injection drop
// rule: with probability p (0-100), the next
// k consecutive inbound datagrams are dropped. A counter decrements
// once per dropped datagram so a triggered run always completes
// before the filter rolls again.
type dropFilter struct {
	chance   int // 0-100
	inRow    int // >=1
	dropping int
}

func newDropFilter(chance, inRow int) *dropFilter {
	if inRow < 1 {
		inRow = 1
	}
	return &dropFilter{chance: chance, inRow: inRow}
}

// ShouldDrop is called once per inbound datagram on the broadcast
// socket. It is not safe for concurrent use; the broadcast socket only
// ever calls it from its single reader goroutine.
func (f *dropFilter) ShouldDrop() bool {
	if f.dropping > 0 {
		f.dropping--
		return true
	}
	if f.chance <= 0 {
		return false
	}
	if rnd.Intn(100) < f.chance {
		f.dropping = f.inRow - 1
		return true
	}
	return false
}
