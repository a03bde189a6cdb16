// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transfer

import "errors"

// Error kinds raised by the transfer engine. Handlers recover from
// these locally by mapping to a status code (the server side) or
// surfacing them to the download caller (the client side); none of
// them ever escape to top-level.
var (
	// ErrInconsistentFileState is raised by the server side when a file
	// being served is found truncated or missing mid-stream.
	ErrInconsistentFileState = errors.New("transfer: local file changed mid-stream")

	// ErrShortTransfer is raised by the client side when the connection
	// closes having delivered fewer bytes than the declared total.
	ErrShortTransfer = errors.New("transfer: fewer bytes received than declared")

	// ErrProtocolError is raised by the client side when the server's
	// response indicates failure (non-2xx status or a missing body).
	ErrProtocolError = errors.New("transfer: server response indicates failure")

	// ErrInvalidDownload is raised after a download completes but the
	// resulting file fails digest verification.
	ErrInvalidDownload = errors.New("transfer: downloaded content failed digest verification")

	// ErrProviderExists is returned by Download when RegisterProvider
	// rejects the file because a download is already in progress for it.
	ErrProviderExists = errors.New("transfer: a provider is already attached for this file")

	// ErrNotShareable is returned by the server's request handler when
	// RegisterConsumer rejects the requested file as not currently
	// servable.
	ErrNotShareable = errors.New("transfer: file is not currently shareable")
)
