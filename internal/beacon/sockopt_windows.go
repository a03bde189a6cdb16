// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build windows

package beacon

import "net"

// enableBroadcast is a no-op on Windows, where UDP sockets can write
// to broadcast addresses without an explicit socket option.
func enableBroadcast(conn *net.UDPConn) error {
	return nil
}
