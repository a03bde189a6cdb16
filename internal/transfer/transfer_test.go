// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transfer

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/landrop/landrop/internal/wire"
)

type testFile struct {
	path   string
	size   uint64
	digest string
}

type fakeSource struct {
	files map[string]testFile
}

func (s *fakeSource) ResolveFile(name string) (string, uint64, string, bool) {
	f, ok := s.files[name]
	return f.path, f.size, f.digest, ok
}

func (s *fakeSource) RegisterConsumer(name, peerIP string) (ConsumerHandle, bool) {
	if _, ok := s.files[name]; !ok {
		return nil, false
	}
	return &fakeConsumer{}, true
}

type fakeConsumer struct {
	stopped bool
	err     error
}

func (c *fakeConsumer) Stopped() bool     { return c.stopped }
func (c *fakeConsumer) Release(err error) { c.err = err }

func digestOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func startServer(t *testing.T, source FileSource) (addr string, stop func()) {
	t.Helper()
	srv := NewServer("127.0.0.1:0", source)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	return srv.Addr(), cancel
}

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func rawRequest(t *testing.T, addr string, req wire.Request) wire.Response {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	w := bufio.NewWriter(conn)
	if err := wire.WriteRequest(w, req); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}
	w.Flush()

	r := bufio.NewReader(conn)
	resp, err := wire.ReadResponseHeader(r)
	if err != nil {
		t.Fatalf("ReadResponseHeader: %v", err)
	}
	return resp
}

func TestServerFullGet(t *testing.T) {
	dir := t.TempDir()
	content := "hello"
	path := writeTempFile(t, dir, "x", content)
	source := &fakeSource{files: map[string]testFile{
		"x": {path: path, size: uint64(len(content)), digest: digestOf(content)},
	}}
	addr, stop := startServer(t, source)
	defer stop()

	resp := rawRequest(t, addr, wire.Request{Method: wire.MethodGet, Name: "x", Headers: wire.Headers{}})
	if resp.Status != wire.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	if v, _ := resp.Headers.Get(wire.HeaderContentLength); v != "5" {
		t.Fatalf("expected content-length 5, got %q", v)
	}
}

func TestServerNotFound(t *testing.T) {
	source := &fakeSource{files: map[string]testFile{}}
	addr, stop := startServer(t, source)
	defer stop()

	resp := rawRequest(t, addr, wire.Request{Method: wire.MethodGet, Name: "absent", Headers: wire.Headers{}})
	if resp.Status != wire.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Status)
	}
}

func TestServerNameTooLong(t *testing.T) {
	source := &fakeSource{files: map[string]testFile{}}
	addr, stop := startServer(t, source)
	defer stop()

	longName := ""
	for i := 0; i < 40; i++ {
		longName += "a"
	}
	resp := rawRequest(t, addr, wire.Request{Method: wire.MethodGet, Name: longName, Headers: wire.Headers{}})
	if resp.Status != wire.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Status)
	}
}

func TestServerDigestMismatch(t *testing.T) {
	dir := t.TempDir()
	content := "hello"
	path := writeTempFile(t, dir, "x", content)
	source := &fakeSource{files: map[string]testFile{
		"x": {path: path, size: uint64(len(content)), digest: digestOf(content)},
	}}
	addr, stop := startServer(t, source)
	defer stop()

	headers := wire.Headers{}
	headers.Set(wire.HeaderIfDigest, "sha-256=deadbeef")
	resp := rawRequest(t, addr, wire.Request{Method: wire.MethodGet, Name: "x", Headers: headers})
	if resp.Status != wire.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d", resp.Status)
	}
}

func TestServerRangeAtEndOfFile(t *testing.T) {
	dir := t.TempDir()
	content := "hello"
	path := writeTempFile(t, dir, "x", content)
	source := &fakeSource{files: map[string]testFile{
		"x": {path: path, size: uint64(len(content)), digest: digestOf(content)},
	}}
	addr, stop := startServer(t, source)
	defer stop()

	headers := wire.Headers{}
	headers.Set(wire.HeaderRange, fmt.Sprintf("bytes %d-", len(content)))
	resp := rawRequest(t, addr, wire.Request{Method: wire.MethodGet, Name: "x", Headers: headers})
	if resp.Status != wire.StatusPartialContent {
		t.Fatalf("expected 206, got %d", resp.Status)
	}
	if v, _ := resp.Headers.Get(wire.HeaderContentLength); v != "0" {
		t.Fatalf("expected zero-length body, got content-length %q", v)
	}
}

func TestServerRangeBeyondFile(t *testing.T) {
	dir := t.TempDir()
	content := "hello"
	path := writeTempFile(t, dir, "x", content)
	source := &fakeSource{files: map[string]testFile{
		"x": {path: path, size: uint64(len(content)), digest: digestOf(content)},
	}}
	addr, stop := startServer(t, source)
	defer stop()

	headers := wire.Headers{}
	headers.Set(wire.HeaderRange, "bytes 100-")
	resp := rawRequest(t, addr, wire.Request{Method: wire.MethodGet, Name: "x", Headers: headers})
	if resp.Status != wire.StatusRangeNotSatisfiable {
		t.Fatalf("expected 416, got %d", resp.Status)
	}
}

func TestServerHeadHasNoBody(t *testing.T) {
	dir := t.TempDir()
	content := "hello"
	path := writeTempFile(t, dir, "x", content)
	source := &fakeSource{files: map[string]testFile{
		"x": {path: path, size: uint64(len(content)), digest: digestOf(content)},
	}}
	addr, stop := startServer(t, source)
	defer stop()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	w := bufio.NewWriter(conn)
	if err := wire.WriteRequest(w, wire.Request{Method: wire.MethodHead, Name: "x", Headers: wire.Headers{}}); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}
	w.Flush()

	r := bufio.NewReader(conn)
	resp, err := wire.ReadResponseHeader(r)
	if err != nil {
		t.Fatalf("ReadResponseHeader: %v", err)
	}
	if resp.Status != wire.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	if b, err := r.ReadByte(); err == nil {
		t.Fatalf("expected no body after a HEAD response, got byte %q", b)
	}
}

type fakeProviderController struct {
	expected map[string]string
	handles  map[string]*fakeProvider
}

func (c *fakeProviderController) RegisterProvider(name string) (ProviderHandle, bool) {
	if c.handles == nil {
		c.handles = map[string]*fakeProvider{}
	}
	if _, exists := c.handles[name]; exists {
		return nil, false
	}
	p := &fakeProvider{}
	c.handles[name] = p
	return p, true
}

func (c *fakeProviderController) ExpectedDigest(name string) string {
	return c.expected[name]
}

type fakeProvider struct {
	stopped  bool
	progress uint64
	err      error
}

func (p *fakeProvider) Stopped() bool              { return p.stopped }
func (p *fakeProvider) Release(err error)          { p.err = err }
func (p *fakeProvider) UpdateProgress(size uint64) { p.progress = size }

func TestDownloadFullFile(t *testing.T) {
	dir := t.TempDir()
	content := "hello"
	srcPath := writeTempFile(t, dir, "x", content)
	source := &fakeSource{files: map[string]testFile{
		"x": {path: srcPath, size: uint64(len(content)), digest: digestOf(content)},
	}}
	addr, stop := startServer(t, source)
	defer stop()

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port)

	destPath := filepath.Join(dir, "dest")
	controller := &fakeProviderController{expected: map[string]string{"x": digestOf(content)}}

	if err := Download(controller, "x", destPath, host, port); err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != content {
		t.Fatalf("got %q, want %q", got, content)
	}
}

func TestDownloadResumesFromOffset(t *testing.T) {
	dir := t.TempDir()
	content := "hello world"
	srcPath := writeTempFile(t, dir, "x", content)
	source := &fakeSource{files: map[string]testFile{
		"x": {path: srcPath, size: uint64(len(content)), digest: digestOf(content)},
	}}
	addr, stop := startServer(t, source)
	defer stop()

	host, portStr, _ := net.SplitHostPort(addr)
	var port int
	fmt.Sscanf(portStr, "%d", &port)

	destPath := writeTempFile(t, dir, "dest", content[:2])
	controller := &fakeProviderController{expected: map[string]string{"x": digestOf(content)}}

	if err := Download(controller, "x", destPath, host, port); err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != content {
		t.Fatalf("got %q, want %q", got, content)
	}
}

// TestDownloadShortTransferReturnsErrShortTransfer has a bare listener
// advertise a Content-Range whose full size exceeds the bytes it
// actually sends before closing cleanly, the case a flaky or
// misbehaving peer produces: the connection closes having delivered
// fewer bytes than the range declared as the file's full size.
func TestDownloadShortTransferReturnsErrShortTransfer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		if _, err := wire.ReadRequest(r); err != nil {
			return
		}
		w := bufio.NewWriter(conn)
		resp := wire.NewResponse(wire.StatusPartialContent)
		resp.Headers.Set(wire.HeaderContentLength, "5")
		resp.Headers.Set(wire.HeaderContentRange, wire.ContentRange{Unit: "bytes", Start: 0, End: 4, Full: 10}.String())
		if err := wire.WriteResponseHeader(w, resp); err != nil {
			return
		}
		w.WriteString("short")
		w.Flush()
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port)

	destPath := filepath.Join(t.TempDir(), "dest")
	controller := &fakeProviderController{}

	err = Download(controller, "x", destPath, host, port)
	if !errors.Is(err, ErrShortTransfer) {
		t.Fatalf("expected ErrShortTransfer, got %v", err)
	}
}

func TestDownloadProviderAlreadyExists(t *testing.T) {
	controller := &fakeProviderController{handles: map[string]*fakeProvider{"x": {}}}
	err := Download(controller, "x", "/tmp/irrelevant", "127.0.0.1", 1)
	if err != ErrProviderExists {
		t.Fatalf("expected ErrProviderExists, got %v", err)
	}
}
