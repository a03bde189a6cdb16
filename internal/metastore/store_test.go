// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package metastore

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestAddFileThenLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "x", "hello")

	store, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec, err := store.AddFile(path)
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if rec.Status != StatusReady || !rec.IsValid() {
		t.Fatalf("expected a valid READY record, got %+v", rec)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Name != "x" {
		t.Fatalf("expected 1 loaded record named x, got %+v", loaded)
	}
}

func TestAddFileDuplicate(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "x", "hello")

	store, _ := New(dir)
	if _, err := store.AddFile(path); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if _, err := store.AddFile(path); err != ErrDuplicateFile {
		t.Fatalf("expected ErrDuplicateFile, got %v", err)
	}
}

func TestLoadDropsRecordWithMissingBackingFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "x", "hello")

	store, _ := New(dir)
	if _, err := store.AddFile(path); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected the dangling record to be dropped, got %+v", loaded)
	}
}

func TestLoadDowngradesTamperedReadyToInvalid(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "x", "hello")

	store, _ := New(dir)
	if _, err := store.AddFile(path); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := os.WriteFile(path, []byte("tampered"), 0o644); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Status != StatusInvalid {
		t.Fatalf("expected tampered READY record downgraded to INVALID, got %+v", loaded)
	}
}

func TestInitMetaThenUpdateStat(t *testing.T) {
	dir := t.TempDir()
	store, _ := New(dir)

	destPath := filepath.Join(dir, "y")
	if _, err := store.InitMeta("y", destPath, "expected-digest", 5); err != nil {
		t.Fatalf("InitMeta: %v", err)
	}

	writeFile(t, dir, "y", "hello")
	rec, err := store.UpdateStat("y")
	if err != nil {
		t.Fatalf("UpdateStat: %v", err)
	}
	if rec.CurrentSize != 5 {
		t.Fatalf("expected current_size 5, got %d", rec.CurrentSize)
	}
}

func TestChangeState(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "x", "hello")
	store, _ := New(dir)
	store.AddFile(path)

	rec, err := store.ChangeState("x", StatusInvalid)
	if err != nil {
		t.Fatalf("ChangeState: %v", err)
	}
	if rec.Status != StatusInvalid {
		t.Fatalf("expected INVALID, got %v", rec.Status)
	}

	reloaded, err := store.Get("x")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if reloaded.Status != StatusInvalid {
		t.Fatalf("expected persisted INVALID, got %v", reloaded.Status)
	}
}

func TestRemoveFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "x", "hello")
	store, _ := New(dir)
	store.AddFile(path)

	if err := store.RemoveFile("x"); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}
	if _, err := store.Get("x"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after removal, got %v", err)
	}
}

func TestNameTooLong(t *testing.T) {
	dir := t.TempDir()
	longName := ""
	for i := 0; i < 40; i++ {
		longName += "a"
	}
	path := writeFile(t, dir, longName, "hello")
	store, _ := New(dir)

	if _, err := store.AddFile(path); err != ErrNameTooLong {
		t.Fatalf("expected ErrNameTooLong, got %v", err)
	}
}
