// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discovery

import (
	"errors"
	"regexp"

	"github.com/landrop/landrop/lib/syncutil"
)

// ErrSearchBusy is returned when a search is requested for a name that
// already has an in-flight session.
var ErrSearchBusy = errors.New("discovery: search already in flight for this name")

// ErrInvalidDigest is returned when a caller-supplied digest doesn't
// match the 64-character lower-case hex sha-256 pattern.
var ErrInvalidDigest = errors.New("discovery: digest is not a 64-char hex sha-256")

var digestPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// FoundResponse is one peer's FOUND reply to a search, grouped in the
// final result by the responder's reported digest, not the requested
// one, so a single search may return several groups when peers
// disagree.
type FoundResponse struct {
	Name       string
	Digest     string
	Size       uint64
	ProviderIP string
}

type reply struct {
	found  bool
	digest string
	size   uint64
}

// searchSession tracks one in-flight search(name, digest?) call. It is
// owned by Engine.sessions under sessMu; searchSession's own mutex
// guards only the fields callbacks mutate concurrently with the
// waiting goroutine.
type searchSession struct {
	name     string
	digest   string
	mut      syncutil.Mutex
	expected map[string]bool // peer IP -> still owed a reply
	replies  map[string]reply
	order    []string // peer IPs in arrival order, for stable grouping
}

func newSearchSession(name, digest string, expected []string) *searchSession {
	s := &searchSession{
		name:     name,
		digest:   digest,
		mut:      syncutil.NewMutex(),
		expected: make(map[string]bool, len(expected)),
		replies:  make(map[string]reply),
	}
	for _, ip := range expected {
		s.expected[ip] = true
	}
	return s
}

// recordFound overwrites any prior response for ip; FOUND always wins
// over an earlier NOTFOUND.
func (s *searchSession) recordFound(ip, digest string, size uint64) {
	s.mut.Lock()
	defer s.mut.Unlock()
	if _, seen := s.replies[ip]; !seen {
		s.order = append(s.order, ip)
	}
	s.replies[ip] = reply{found: true, digest: digest, size: size}
	delete(s.expected, ip)
}

// recordNotFound is recorded only if no FOUND has already been
// received from ip.
func (s *searchSession) recordNotFound(ip string) {
	s.mut.Lock()
	defer s.mut.Unlock()
	if existing, seen := s.replies[ip]; seen && existing.found {
		return
	}
	if _, seen := s.replies[ip]; !seen {
		s.order = append(s.order, ip)
	}
	s.replies[ip] = reply{found: false}
	delete(s.expected, ip)
}

// missing returns the peer IPs from expected that have not replied.
func (s *searchSession) missing() []string {
	s.mut.Lock()
	defer s.mut.Unlock()
	out := make([]string, 0, len(s.expected))
	for ip := range s.expected {
		out = append(out, ip)
	}
	return out
}

// group builds the final digest->responses map in arrival order, and
// reports the peer IPs that never replied at all (neither FOUND nor
// NOTFOUND), which the caller evicts from the peer table.
func (s *searchSession) group() (map[string][]FoundResponse, []string) {
	s.mut.Lock()
	defer s.mut.Unlock()

	groups := make(map[string][]FoundResponse)
	for _, ip := range s.order {
		r := s.replies[ip]
		if !r.found {
			continue
		}
		groups[r.digest] = append(groups[r.digest], FoundResponse{
			Name:       s.name,
			Digest:     r.digest,
			Size:       r.size,
			ProviderIP: ip,
		})
	}

	stillMissing := make([]string, 0, len(s.expected))
	for ip := range s.expected {
		stillMissing = append(stillMissing, ip)
	}
	return groups, stillMissing
}
