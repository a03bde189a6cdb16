// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package filestate is the state controller, the lifecycle broker
// that owns per-file status, the provider/consumer registry, and the
// retry logic that keeps a stalled download moving.
// RegisterProvider/RegisterConsumer hand back a scoped handle whose
// Release(err) the caller always invokes via defer; the error carried
// into Release tells the controller whether the file itself needs
// invalidating.
package filestate

import "github.com/landrop/landrop/internal/metastore"

// FileMetadata is the controller's view of a tracked file; it is
// exactly the metadata store's persisted record; the state controller
// is the only caller that ever mutates one, via the store.
type FileMetadata = metastore.Record

// FileStatus is the tracked file's lifecycle status.
type FileStatus = metastore.Status

const (
	StatusReady       = metastore.StatusReady
	StatusDownloading = metastore.StatusDownloading
	StatusInvalid     = metastore.StatusInvalid
)

// FileState is the runtime wrapper around FileMetadata: at most one
// active provider context, and a set of consumer contexts keyed by
// the remote peer's IP.
type FileState struct {
	Meta      FileMetadata
	provider  *providerHandle
	consumers map[string]*consumerHandle
}

// View is the read-only projection of a FileState exposed through
// Controller.State: callers outside this package never see the
// provider/consumer handles themselves.
type View struct {
	Meta          FileMetadata
	Downloading   bool
	ConsumerCount int
}

func (fs *FileState) view() View {
	return View{
		Meta:          fs.Meta,
		Downloading:   fs.provider != nil,
		ConsumerCount: len(fs.consumers),
	}
}
