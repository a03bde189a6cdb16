// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package beacon implements the node's UDP transport: a unicast
// socket and a broadcast socket, each with registrable receive
// callbacks, self-loop suppression, and (on the broadcast socket) a
// fault-injection drop filter for testing.
package beacon

import (
	"context"
	"fmt"
	"net"
)

// Callback is invoked once per inbound datagram, in registration
// order, on the socket's single reader goroutine. Panics are
// recovered and logged so one bad callback cannot take the socket
// down or stop dispatch to the remaining callbacks.
type Callback func(data []byte, srcIP net.IP, srcPort int)

// Socket is one bound UDP endpoint: either the node's unicast socket
// or its broadcast socket. Both satisfy suture.Service via Serve, so a
// supervisor can restart them on failure.
type Socket struct {
	conn       *net.UDPConn
	sendTo     *net.UDPAddr // broadcast destination, or nil for the unicast socket
	callbacks  []Callback
	started    bool
	omitSelf   bool
	selfAddrs  map[string]bool
	drop       *dropFilter
	bufferSize int
}

// Options configures a Socket at construction time.
type Options struct {
	OmitSelf   bool
	BufferSize int
}

// NewUnicast binds a unicast UDP socket at bindIP:port. It has no
// default destination: Send returns an error, and callers use SendTo.
func NewUnicast(bindIP string, port int, opts Options) (*Socket, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(bindIP), Port: port}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("beacon: listen unicast: %w", err)
	}
	return newSocket(conn, nil, opts), nil
}

// NewBroadcast binds the broadcast socket at bindIP:port, enables
// SO_BROADCAST, and resolves its broadcast destination address from
// iface (or the wildcard 255.255.255.255 when iface is "" or
// "default" and no matching interface is found).
func NewBroadcast(bindIP string, port int, iface string, dropChance, dropInRow int, opts Options) (*Socket, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(bindIP), Port: port}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("beacon: listen broadcast: %w", err)
	}
	if err := enableBroadcast(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("beacon: enable broadcast: %w", err)
	}

	dst := &net.UDPAddr{IP: resolveBroadcastIP(iface), Port: port}
	s := newSocket(conn, dst, opts)
	s.drop = newDropFilter(dropChance, dropInRow)
	return s, nil
}

func newSocket(conn *net.UDPConn, sendTo *net.UDPAddr, opts Options) *Socket {
	bufSize := opts.BufferSize
	if bufSize <= 0 {
		bufSize = 2048
	}
	s := &Socket{
		conn:       conn,
		sendTo:     sendTo,
		omitSelf:   opts.OmitSelf,
		bufferSize: bufSize,
	}
	if s.omitSelf {
		s.selfAddrs = localAddrSet()
	}
	return s
}

// AddReceiveCallback registers cb to be invoked for every inbound
// datagram. Callbacks may only be added before Serve is called.
func (s *Socket) AddReceiveCallback(cb Callback) {
	if s.started {
		panic("beacon: AddReceiveCallback called after Serve started")
	}
	s.callbacks = append(s.callbacks, cb)
}

// Send writes data to the socket's configured destination, the
// broadcast address of a broadcast socket. On a unicast socket, which
// has no default destination, it returns an error; use SendTo there.
func (s *Socket) Send(data []byte) error {
	if s.sendTo == nil {
		return fmt.Errorf("beacon: Send called on a socket with no default destination")
	}
	_, err := s.conn.WriteToUDP(data, s.sendTo)
	if debug {
		l.Debugf("beacon: sent %d bytes to %s (err=%v)", len(data), s.sendTo, err)
	}
	return err
}

// SendTo writes data directly to ip:port, bypassing the socket's
// default destination.
func (s *Socket) SendTo(data []byte, ip string, port int) error {
	dst := &net.UDPAddr{IP: net.ParseIP(ip), Port: port}
	_, err := s.conn.WriteToUDP(data, dst)
	if debug {
		l.Debugf("beacon: sent %d bytes to %s (err=%v)", len(data), dst, err)
	}
	return err
}

// Serve runs the receive loop until ctx is cancelled or the socket
// errors. It satisfies suture.Service so a supervisor can own its
// lifecycle and restart it.
func (s *Socket) Serve(ctx context.Context) error {
	s.started = true
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	buf := make([]byte, s.bufferSize)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if debug {
				l.Debugln("beacon: read error:", err)
			}
			return err
		}

		if s.omitSelf && s.selfAddrs[addr.IP.String()] {
			continue
		}
		if s.drop != nil && s.drop.ShouldDrop() {
			if debug {
				l.Debugln("beacon: dropping datagram from", addr)
			}
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		s.dispatch(data, addr)
	}
}

func (s *Socket) dispatch(data []byte, addr *net.UDPAddr) {
	for _, cb := range s.callbacks {
		s.invoke(cb, data, addr)
	}
}

func (s *Socket) invoke(cb Callback, data []byte, addr *net.UDPAddr) {
	defer func() {
		if r := recover(); r != nil {
			l.Warnf("beacon: receive callback panicked: %v", r)
		}
	}()
	cb(data, addr.IP, addr.Port)
}

func (s *Socket) String() string {
	return fmt.Sprintf("beacon.Socket(%s)", s.conn.LocalAddr())
}

// LocalPort returns the port this socket is bound to, useful when it
// was bound with port 0 and the OS picked one.
func (s *Socket) LocalPort() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

func localAddrSet() map[string]bool {
	set := make(map[string]bool)
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return set
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok {
			set[ipnet.IP.String()] = true
		}
	}
	return set
}

// resolveBroadcastIP derives the broadcast address for the named
// interface (matched by name). When no interface is pinned, or the
// named one cannot be resolved, the general IPv4 broadcast address is
// used instead.
func resolveBroadcastIP(iface string) net.IP {
	if iface != "" && iface != "default" {
		if intf, err := net.InterfaceByName(iface); err == nil {
			if ip := broadcastForInterface(intf); ip != nil {
				return ip
			}
		}
	}
	return net.IPv4(255, 255, 255, 255)
}

func broadcastForInterface(intf *net.Interface) net.IP {
	addrs, err := intf.Addrs()
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.To4() == nil || !ipnet.IP.IsGlobalUnicast() {
			continue
		}
		bc := make(net.IP, len(ipnet.IP.To4()))
		ip4 := ipnet.IP.To4()
		mask := ipnet.Mask
		for i := range bc {
			bc[i] = ip4[i] | ^mask[i]
		}
		return bc
	}
	return nil
}
