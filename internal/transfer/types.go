// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package transfer implements the resumable file transfer protocol:
// the server side (one handler goroutine per accepted connection,
// streaming ranged reads from disk) and the client side (one download
// task per outgoing transfer), both built on internal/wire's framing.
// Timeouts are explicit per-chunk deadlines on the connection rather
// than a generic middleware layer.
package transfer

// FileSource is the subset of the state controller's contract the
// transfer server needs: resolve a file by name to its on-disk path,
// declared size and digest, and register a consumer context that
// holds the file "in use" for the duration of the upload.
type FileSource interface {
	ResolveFile(name string) (path string, size uint64, digest string, ok bool)
	RegisterConsumer(name, peerIP string) (ConsumerHandle, bool)
}

// ConsumerHandle represents an in-progress upload. Stopped reports
// whether the controller has asked the stream to abort (shutdown or
// file invalidation); Release must be called exactly once, carrying
// nil on success or the failure that ended the stream.
type ConsumerHandle interface {
	Stopped() bool
	Release(err error)
}

// ProviderController is the subset of the state controller's contract
// the transfer client needs: register a provider context for an
// incoming download, report progress as bytes land on disk, and learn
// the locally expected digest (if any) before issuing the request.
type ProviderController interface {
	RegisterProvider(name string) (ProviderHandle, bool)
	ExpectedDigest(name string) string
}

// ProviderHandle represents an in-progress download.
type ProviderHandle interface {
	Stopped() bool
	Release(err error)
	UpdateProgress(currentSize uint64)
}
