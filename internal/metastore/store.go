// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package metastore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/landrop/landrop/internal/config"
)

// Store is the concrete, file-backed metadata store. Every exported
// method does its own blocking disk I/O; the controller is expected to
// route calls it makes from the cooperative loop through a Pool so
// they don't block it.
type Store struct {
	rootDir string
	metaDir string
}

// New returns a Store rooted at rootDir, creating rootDir's metadata
// subdirectory (config.MetadataDirName) if it doesn't already exist.
func New(rootDir string) (*Store, error) {
	metaDir := filepath.Join(rootDir, config.MetadataDirName)
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return nil, fmt.Errorf("metastore: create metadata dir: %w", err)
	}
	return &Store{rootDir: rootDir, metaDir: metaDir}, nil
}

func (s *Store) recordPath(name string) string {
	return filepath.Join(s.metaDir, name+".yaml")
}

func hashFile(path string) (size uint64, digest string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", err
	}
	return uint64(n), hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Store) readRecord(name string) (Record, error) {
	bs, err := os.ReadFile(s.recordPath(name))
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := yaml.Unmarshal(bs, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *Store) writeRecord(rec Record) error {
	bs, err := yaml.Marshal(rec)
	if err != nil {
		return err
	}
	return os.WriteFile(s.recordPath(rec.Name), bs, 0o644)
}

// Load walks every <name>.yaml record under the metadata directory.
// For each one: if the backing file is missing, the record is
// dropped; otherwise size and digest are
// recomputed from disk, and a stored READY record whose content no
// longer verifies is downgraded to INVALID before being returned and
// persisted back.
func (s *Store) Load() ([]Record, error) {
	entries, err := os.ReadDir(s.metaDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []Record
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".yaml") {
			continue
		}
		name := strings.TrimSuffix(ent.Name(), ".yaml")
		rec, err := s.readRecord(name)
		if err != nil {
			l.Warnf("metastore: skipping unreadable record %q: %v", name, err)
			continue
		}

		if _, statErr := os.Stat(rec.Path); statErr != nil {
			l.Infof("metastore: dropping record %q, backing file missing: %v", name, statErr)
			os.Remove(s.recordPath(name))
			continue
		}

		size, digest, err := hashFile(rec.Path)
		if err != nil {
			l.Warnf("metastore: failed hashing %q: %v", rec.Path, err)
			continue
		}
		rec.CurrentSize = size
		rec.CurrentDigest = digest
		if rec.Status == StatusReady && !rec.IsValid() {
			if debug {
				l.Debugf("metastore: %q was READY but no longer verifies, marking INVALID", name)
			}
			rec.Status = StatusInvalid
		}

		if err := s.writeRecord(rec); err != nil {
			l.Warnf("metastore: failed persisting refreshed record %q: %v", name, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// AddFile registers path as a new, locally complete and shareable
// file: size and digest are computed from disk and the record starts
// READY.
func (s *Store) AddFile(path string) (Record, error) {
	name := filepath.Base(path)
	if len(name) > config.MaxNameLength {
		return Record{}, ErrNameTooLong
	}
	if _, err := os.Stat(s.recordPath(name)); err == nil {
		return Record{}, ErrDuplicateFile
	}

	size, digest, err := hashFile(path)
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		Name:          name,
		Path:          path,
		Size:          size,
		Digest:        digest,
		CurrentSize:   size,
		CurrentDigest: digest,
		Status:        StatusReady,
	}
	if err := s.writeRecord(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// InitMeta registers a DOWNLOADING placeholder for a file we expect to
// receive from a remote peer: the declared size/digest are known, but
// no bytes have landed yet.
func (s *Store) InitMeta(name, path, digest string, size uint64) (Record, error) {
	if len(name) > config.MaxNameLength {
		return Record{}, ErrNameTooLong
	}
	if _, err := os.Stat(s.recordPath(name)); err == nil {
		return Record{}, ErrDuplicateFile
	}
	rec := Record{
		Name:   name,
		Path:   path,
		Size:   size,
		Digest: digest,
		Status: StatusDownloading,
	}
	if err := s.writeRecord(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// RemoveFile deletes name's metadata record. The backing file on disk
// is left untouched; removing it is the caller's decision.
func (s *Store) RemoveFile(name string) error {
	if err := os.Remove(s.recordPath(name)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// ChangeState persists a new status for an existing record.
func (s *Store) ChangeState(name string, status Status) (Record, error) {
	rec, err := s.readRecord(name)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	rec.Status = status
	if err := s.writeRecord(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ResetCurrent zeroes a record's current_size/current_digest, used by
// the file monitor loop when a stalled download's bytes on disk
// already reach the declared size but disagree on digest: the bytes
// we have are wrong and must be re-fetched from scratch.
func (s *Store) ResetCurrent(name string) (Record, error) {
	rec, err := s.readRecord(name)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	rec.CurrentSize = 0
	rec.CurrentDigest = ""
	if err := s.writeRecord(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// UpdateStat recomputes current_size/current_digest from the backing
// file and persists them, used after a download finishes writing
// bytes to learn whether the result is valid.
func (s *Store) UpdateStat(name string) (Record, error) {
	rec, err := s.readRecord(name)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	size, digest, err := hashFile(rec.Path)
	if err != nil {
		return Record{}, err
	}
	rec.CurrentSize = size
	rec.CurrentDigest = digest
	if err := s.writeRecord(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get returns the persisted record for name without recomputing its
// hash.
func (s *Store) Get(name string) (Record, error) {
	rec, err := s.readRecord(name)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}
