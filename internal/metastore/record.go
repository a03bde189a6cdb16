// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package metastore is the on-disk metadata store: one YAML file per
// tracked name under <root>/.meta/<name>.yaml, with size and digest
// recomputed from the backing file whenever a record is loaded,
// added, or explicitly refreshed.
package metastore

// Status is a tracked file's lifecycle status. It lives here
// rather than in internal/filestate so the store has no dependency on
// the controller package; filestate imports metastore, not the other
// way around.
type Status string

const (
	StatusReady       Status = "READY"
	StatusDownloading Status = "DOWNLOADING"
	StatusInvalid     Status = "INVALID"
)

// Record is the persisted shape of one tracked file, marshaled
// verbatim to YAML via sigs.k8s.io/yaml.
type Record struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	Size          uint64 `json:"size"`
	Digest        string `json:"digest"`
	CurrentSize   uint64 `json:"current_size"`
	CurrentDigest string `json:"current_digest"`
	Status        Status `json:"status"`
}

// IsValid reports whether the current content matches the declared
// size and digest exactly.
func (r Record) IsValid() bool {
	return r.CurrentSize == r.Size && r.CurrentDigest == r.Digest
}

// CanShare reports whether the record may be uploaded from: only a
// valid, READY record qualifies.
func (r Record) CanShare() bool {
	return r.Status == StatusReady && r.IsValid()
}
