// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discovery

import (
	"time"

	"github.com/landrop/landrop/lib/syncutil"
)

// Peer is another node on the broadcast domain known via a HERE
// datagram. It is identified by IP address.
type Peer struct {
	IP       string
	UDPPort  uint16
	TCPPort  uint16
	LastSeen time.Time
}

// peerTable is the mutex-protected map from IP to Peer. Readers always
// get a deep copy, so long-running callbacks never hold the table's
// lock.
type peerTable struct {
	mut   syncutil.Mutex
	peers map[string]Peer
}

func newPeerTable() *peerTable {
	return &peerTable{mut: syncutil.NewMutex(), peers: make(map[string]Peer)}
}

// upsert inserts or refreshes a peer, returning true if it is newly
// seen (not previously in the table).
func (t *peerTable) upsert(p Peer) (isNew bool) {
	t.mut.Lock()
	defer t.mut.Unlock()
	_, existed := t.peers[p.IP]
	t.peers[p.IP] = p
	return !existed
}

func (t *peerTable) get(ip string) (Peer, bool) {
	t.mut.Lock()
	defer t.mut.Unlock()
	p, ok := t.peers[ip]
	return p, ok
}

func (t *peerTable) remove(ip string) {
	t.mut.Lock()
	defer t.mut.Unlock()
	delete(t.peers, ip)
}

// snapshotIPs returns a copy of every known peer IP.
func (t *peerTable) snapshotIPs() []string {
	t.mut.Lock()
	defer t.mut.Unlock()
	ips := make([]string, 0, len(t.peers))
	for ip := range t.peers {
		ips = append(ips, ip)
	}
	return ips
}

// snapshot returns a deep copy of every known peer.
func (t *peerTable) snapshot() []Peer {
	t.mut.Lock()
	defer t.mut.Unlock()
	out := make([]Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p)
	}
	return out
}

// evictOlderThan removes every peer whose LastSeen predates cutoff,
// returning the evicted IPs for event-bus notification.
func (t *peerTable) evictOlderThan(cutoff time.Time) []string {
	t.mut.Lock()
	defer t.mut.Unlock()
	var evicted []string
	for ip, p := range t.peers {
		if p.LastSeen.Before(cutoff) {
			delete(t.peers, ip)
			evicted = append(evicted, ip)
		}
	}
	return evicted
}
