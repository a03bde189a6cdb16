// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package filestate

import (
	"errors"
	"sync/atomic"

	"github.com/landrop/landrop/internal/transfer"
)

// providerHandle is the scoped handle for an in-progress download. It
// satisfies internal/transfer.ProviderHandle.
type providerHandle struct {
	name    string
	c       *Controller
	stopped atomic.Bool
}

func (p *providerHandle) Stopped() bool {
	return p.stopped.Load()
}

func (p *providerHandle) UpdateProgress(currentSize uint64) {
	p.c.mut.Lock()
	defer p.c.mut.Unlock()
	if fs, ok := p.c.files[p.name]; ok {
		fs.Meta.CurrentSize = currentSize
	}
}

// Release detaches this provider from its FileState. The caller (the
// download orchestration goroutine) decides what err means for the
// file's status; Release only ever clears the attachment.
func (p *providerHandle) Release(err error) {
	p.c.mut.Lock()
	defer p.c.mut.Unlock()
	if fs, ok := p.c.files[p.name]; ok && fs.provider == p {
		fs.provider = nil
	}
	if debug && err != nil {
		l.Debugf("filestate: provider for %q released with error: %v", p.name, err)
	}
}

// consumerHandle is the scoped handle for an in-progress upload. It
// satisfies internal/transfer.ConsumerHandle.
type consumerHandle struct {
	name    string
	peerIP  string
	c       *Controller
	stopped atomic.Bool
}

func (c *consumerHandle) Stopped() bool {
	return c.stopped.Load()
}

// Release detaches this consumer and, if the upload ended because the
// server side detected the local file had changed mid-stream, marks
// the file INVALID. A plain network error (client disconnected, write
// timeout) releases the consumer without touching file status.
func (c *consumerHandle) Release(err error) {
	c.c.mut.Lock()
	if fs, ok := c.c.files[c.name]; ok {
		delete(fs.consumers, c.peerIP)
	}
	c.c.mut.Unlock()

	if err == nil || !errors.Is(err, transfer.ErrInconsistentFileState) {
		return
	}
	c.c.markInvalid(c.name)
}
