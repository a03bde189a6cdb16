// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package discovery implements the UDP discovery and search engine:
// the peer table, the alive/advertise loop, and search sessions that
// aggregate FOUND/NOTFOUND responses across retries. The peer table
// is a mutex-protected map keyed by IP with deep-copy-on-read
// semantics for every exported accessor.
package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/landrop/landrop/internal/beacon"
	"github.com/landrop/landrop/internal/config"
	"github.com/landrop/landrop/internal/wire"
	"github.com/landrop/landrop/lib/events"
	"github.com/landrop/landrop/lib/syncutil"
)

// FileLookup is the subset of the state controller's contract the
// discovery engine needs to answer a FIND: look up a locally held file
// by name and report its digest and size. It is an interface, not a
// direct dependency on internal/filestate, so the two packages don't
// import each other.
type FileLookup interface {
	LookupFile(name string) (digest string, size uint64, ok bool)
}

// Engine owns the peer table and the search-session table. It is
// constructed with the two beacon sockets already
// bound; New registers a receive callback on each socket that
// dispatches the five protocol message kinds, but does not start
// any background loop itself; call AdvertiseService().Serve (or add
// it to a supervisor) to begin advertising.
type Engine struct {
	cfg    config.Config
	uSock  *beacon.Socket
	bSock  *beacon.Socket
	lookup FileLookup
	evt    *events.Logger

	peers *peerTable

	sessMu   syncutil.Mutex
	sessions map[string]*searchSession
}

// New wires up the engine and registers its receive callbacks on both
// sockets; HELLO/HERE/FIND arrive on the broadcast socket, FOUND/
// NOTFOUND replies usually arrive on the unicast socket, but the
// engine dispatches by Kind regardless of which socket delivered the
// datagram.
func New(cfg config.Config, uSock, bSock *beacon.Socket, lookup FileLookup, evt *events.Logger) *Engine {
	e := &Engine{
		cfg:      cfg,
		uSock:    uSock,
		bSock:    bSock,
		lookup:   lookup,
		evt:      evt,
		peers:    newPeerTable(),
		sessMu:   syncutil.NewMutex(),
		sessions: make(map[string]*searchSession),
	}
	uSock.AddReceiveCallback(e.handleDatagram)
	bSock.AddReceiveCallback(e.handleDatagram)
	return e
}

// KnownPeers returns a deep copy of the peer table.
func (e *Engine) KnownPeers() []Peer {
	return e.peers.snapshot()
}

// PeerByIP looks up a single known peer, for resolving a search
// responder's transfer port before starting a download.
func (e *Engine) PeerByIP(ip string) (Peer, bool) {
	return e.peers.get(ip)
}

// EvictPeer removes ip from the peer table, used when an outgoing
// download fails and the remote peer is assumed unreachable.
func (e *Engine) EvictPeer(ip string) {
	e.peers.remove(ip)
}

// PeerCount reports the number of known peers, for metrics polling.
func (e *Engine) PeerCount() int {
	return len(e.peers.snapshotIPs())
}

// ActiveSearchCount reports the number of in-flight searches, for
// metrics polling.
func (e *Engine) ActiveSearchCount() int {
	e.sessMu.Lock()
	defer e.sessMu.Unlock()
	return len(e.sessions)
}

// Bootstrap broadcasts the initial HELLO a newly started node sends so
// every peer already on the segment replies with a HERE.
func (e *Engine) Bootstrap() error {
	return e.broadcast(wire.Hello())
}

func (e *Engine) broadcast(d wire.Datagram) error {
	raw, err := wire.Encode(d)
	if err != nil {
		return err
	}
	return e.bSock.Send(raw)
}

func (e *Engine) unicast(ip string, port uint16, d wire.Datagram) error {
	raw, err := wire.Encode(d)
	if err != nil {
		return err
	}
	return e.uSock.SendTo(raw, ip, int(port))
}

func (e *Engine) handleDatagram(data []byte, srcIP net.IP, srcPort int) {
	d, err := wire.Decode(data)
	if err != nil {
		if debug {
			l.Debugln("discovery: dropping unparseable datagram:", err)
		}
		return
	}
	ip := srcIP.String()

	switch d.Kind {
	case wire.KindHello:
		e.handleHello(ip)
	case wire.KindHere:
		e.handleHere(ip, d.UDPPort, d.TCPPort)
	case wire.KindFind:
		e.handleFind(ip, d.File)
	case wire.KindFound:
		e.handleFoundOrNotFound(ip, d.File, true)
	case wire.KindNotFound:
		e.handleFoundOrNotFound(ip, d.File, false)
	}
}

// handleHello replies with a broadcast HERE so a joining node
// discovers everyone already on the segment.
func (e *Engine) handleHello(ip string) {
	if debug {
		l.Debugln("discovery: HELLO from", ip)
	}
	if err := e.broadcast(wire.Here(uint16(e.cfg.UDPPort), uint16(e.cfg.TCPPort))); err != nil {
		l.Warnf("discovery: failed replying to HELLO: %v", err)
	}
}

func (e *Engine) handleHere(ip string, udpPort, tcpPort uint16) {
	isNew := e.peers.upsert(Peer{IP: ip, UDPPort: udpPort, TCPPort: tcpPort, LastSeen: time.Now()})
	if isNew {
		if debug {
			l.Debugln("discovery: new peer", ip)
		}
		if e.evt != nil {
			e.evt.Log(events.PeerDiscovered, Peer{IP: ip, UDPPort: udpPort, TCPPort: tcpPort})
		}
	}
}

// handleFind looks up the requested file locally and replies unicast
// with FOUND or NOTFOUND. A FIND from a peer we haven't seen a HERE
// from yet is dropped silently: peers must HERE before they may FIND.
func (e *Engine) handleFind(ip string, fd wire.FileData) {
	peer, known := e.peers.get(ip)
	if !known {
		if debug {
			l.Debugln("discovery: dropping FIND from unknown peer", ip)
		}
		return
	}

	digest, size, ok := e.lookup.LookupFile(fd.Name)
	if ok && (fd.Digest == "" || fd.Digest == digest) {
		if err := e.unicast(ip, peer.UDPPort, wire.Found(fd.Name, digest, size)); err != nil {
			l.Warnf("discovery: failed sending FOUND to %s: %v", ip, err)
		}
		return
	}
	if err := e.unicast(ip, peer.UDPPort, wire.NotFound(fd.Name, fd.Digest)); err != nil {
		l.Warnf("discovery: failed sending NOTFOUND to %s: %v", ip, err)
	}
}

// handleFoundOrNotFound records a response against a matching
// in-flight search session. A response from a peer we don't know
// about is dropped.
func (e *Engine) handleFoundOrNotFound(ip string, fd wire.FileData, found bool) {
	if _, known := e.peers.get(ip); !known {
		return
	}

	e.sessMu.Lock()
	sess, ok := e.sessions[fd.Name]
	e.sessMu.Unlock()
	if !ok {
		return
	}

	if found {
		sess.recordFound(ip, fd.Digest, fd.Size)
	} else {
		sess.recordNotFound(ip)
	}
}

// Search broadcasts FIND, waits FindingTime, and re-broadcasts up to
// SearchRetries further rounds for any peer that hasn't replied,
// preserving responses already received across rounds. Peers that
// never reply at all are evicted from the peer table as presumed
// dead.
func (e *Engine) Search(ctx context.Context, name, digest string) (map[string][]FoundResponse, error) {
	if name == "" {
		return nil, fmt.Errorf("discovery: search name must not be empty")
	}
	if digest != "" && !digestPattern.MatchString(digest) {
		return nil, ErrInvalidDigest
	}

	e.sessMu.Lock()
	if _, exists := e.sessions[name]; exists {
		e.sessMu.Unlock()
		return nil, ErrSearchBusy
	}
	expected := e.peers.snapshotIPs()
	sess := newSearchSession(name, digest, expected)
	e.sessions[name] = sess
	e.sessMu.Unlock()

	defer func() {
		e.sessMu.Lock()
		delete(e.sessions, name)
		e.sessMu.Unlock()
	}()

	rounds := 1 + config.SearchRetries
	for round := 0; round < rounds; round++ {
		// A failed broadcast doesn't abort the session: responses
		// already received are kept and the next round tries again.
		if err := e.broadcast(wire.Find(name, digest)); err != nil {
			l.Warnf("discovery: FIND broadcast failed: %v", err)
		}

		select {
		case <-time.After(config.FindingTime):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if len(sess.missing()) == 0 {
			break
		}
	}

	groups, stillMissing := sess.group()
	for _, ip := range stillMissing {
		e.peers.remove(ip)
	}

	if e.evt != nil {
		e.evt.Log(events.SearchCompleted, name)
	}
	return groups, nil
}

