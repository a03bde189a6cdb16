// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package filestate

import (
	"context"
	"time"

	"github.com/landrop/landrop/internal/config"
)

// monitorLoop is the periodic sweep that notices stalled downloads
// and tampered files a provider/consumer context never reported
// directly. It satisfies suture.Service.
type monitorLoop struct {
	c *Controller
}

func (m *monitorLoop) String() string {
	return "filestate.monitorLoop"
}

func (m *monitorLoop) Serve(ctx context.Context) error {
	ticker := time.NewTicker(config.FileWatcherPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick applies the two sweep rules: a DOWNLOADING file with
// no attached provider is retried (the peer died or was evicted before
// finishing); if its bytes-so-far already reach the declared size with
// a digest mismatch, current_size/current_digest are truncated back to
// zero first so the retry starts clean. A READY file that no longer
// verifies against disk is marked INVALID.
func (m *monitorLoop) tick() {
	m.c.mut.Lock()
	type action struct {
		name  string
		kind  int // 0 = retry, 1 = mark invalid
		reset bool
	}
	var actions []action
	for name, fs := range m.c.files {
		switch fs.Meta.Status {
		case StatusDownloading:
			if fs.provider == nil {
				reset := fs.Meta.CurrentSize >= fs.Meta.Size && fs.Meta.CurrentDigest != fs.Meta.Digest
				actions = append(actions, action{name, 0, reset})
			}
		case StatusReady:
			if !fs.Meta.IsValid() {
				actions = append(actions, action{name, 1, false})
			}
		}
	}
	m.c.mut.Unlock()

	for _, a := range actions {
		switch a.kind {
		case 0:
			m.c.pool.Submit(func(name string, reset bool) func() {
				return func() {
					if reset {
						if _, err := m.c.store.ResetCurrent(name); err != nil {
							l.Warnf("filestate: failed resetting stalled download %q: %v", name, err)
							return
						}
						m.c.mut.Lock()
						if fs, ok := m.c.files[name]; ok {
							fs.Meta.CurrentSize = 0
							fs.Meta.CurrentDigest = ""
						}
						m.c.mut.Unlock()
					}
					go m.c.retryDownload(name)
				}
			}(a.name, a.reset))
		case 1:
			m.c.pool.Submit(func(name string) func() {
				return func() { m.c.markInvalid(name) }
			}(a.name))
		}
	}
}
