// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package metastore

import "errors"

var (
	// ErrDuplicateFile is returned by AddFile/InitMeta when a record
	// already exists for the given name.
	ErrDuplicateFile = errors.New("metastore: a record already exists for this name")

	// ErrNameTooLong is returned when a name exceeds config.MaxNameLength.
	ErrNameTooLong = errors.New("metastore: name exceeds the maximum length")

	// ErrNotFound is returned by operations on a name with no record.
	ErrNotFound = errors.New("metastore: no record for this name")
)
