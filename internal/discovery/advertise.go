// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discovery

import (
	"context"
	"time"

	"github.com/landrop/landrop/internal/config"
	"github.com/landrop/landrop/internal/wire"
	"github.com/landrop/landrop/lib/events"
)

// advertiseLoop is the suture.Service that broadcasts HERE every
// AdvertisePeriod and then sweeps the peer table for stale entries.
// It is a distinct service from the beacon sockets'
// own Serve loops so a supervisor can restart it independently.
type advertiseLoop struct {
	e *Engine
}

// AdvertiseService returns the suture.Service driving the periodic
// HERE broadcast and peer-table sweep. Its first HERE goes out one
// AdvertisePeriod after Serve starts; the initial HELLO is sent
// separately by Bootstrap.
func (e *Engine) AdvertiseService() *advertiseLoop {
	return &advertiseLoop{e: e}
}

func (a *advertiseLoop) Serve(ctx context.Context) error {
	ticker := time.NewTicker(config.AdvertisePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.tick()
		}
	}
}

func (a *advertiseLoop) tick() {
	if err := a.e.broadcast(wire.Here(uint16(a.e.cfg.UDPPort), uint16(a.e.cfg.TCPPort))); err != nil {
		l.Warnf("discovery: advertise HERE failed: %v", err)
	}

	cutoff := time.Now().Add(-config.PeerCleanup)
	evicted := a.e.peers.evictOlderThan(cutoff)
	for _, ip := range evicted {
		if debug {
			l.Debugln("discovery: evicting stale peer", ip)
		}
		if a.e.evt != nil {
			a.e.evt.Log(events.PeerLost, ip)
		}
	}
}

func (a *advertiseLoop) String() string {
	return "discovery.advertiseLoop"
}
