// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package wire

import (
	"bufio"
	"bytes"
	"errors"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	req := Request{
		Method: MethodGet,
		Name:   "myfile.bin",
		Headers: Headers{
			"if-digest": "sha-256=9f8a",
			"range":     "bytes 1048576-",
		},
	}

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := WriteRequest(w, req); err != nil {
		t.Fatal(err)
	}
	w.Flush()

	got, err := ReadRequest(bufio.NewReader(&buf))
	if err != nil {
		t.Fatal(err)
	}
	if got.Method != req.Method || got.Name != req.Name {
		t.Fatalf("got %+v, want %+v", got, req)
	}
	if got.Headers["range"] != "bytes 1048576-" {
		t.Fatalf("headers not preserved: %+v", got.Headers)
	}
}

func TestMethodCaseInsensitive(t *testing.T) {
	m, err := ParseMethod("get")
	if err != nil || m != MethodGet {
		t.Fatalf("expected GET, got %v, %v", m, err)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	resp := NewResponse(StatusPartialContent)
	resp.Headers.Set(HeaderContentLength, "2097152")
	resp.Headers.Set(HeaderContentRange, "bytes 1048576-3145728/3145728")

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := WriteResponseHeader(w, resp); err != nil {
		t.Fatal(err)
	}
	w.Flush()

	got, err := ReadResponseHeader(bufio.NewReader(&buf))
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusPartialContent {
		t.Fatalf("status = %v, want 206", got.Status)
	}
	cl, ok, err := got.Headers.ContentLength()
	if !ok || err != nil || cl != 2097152 {
		t.Fatalf("content-length = %v, %v, %v", cl, ok, err)
	}
}

func TestParseRangeOpenEnded(t *testing.T) {
	h := Headers{"range": "bytes 5-"}
	r, ok, err := h.Range()
	if !ok || err != nil {
		t.Fatal(err)
	}
	if r.Start != 5 || r.End != -1 {
		t.Fatalf("got %+v", r)
	}
}

func TestParseContentRange(t *testing.T) {
	h := Headers{"content-range": "bytes 2-5/5"}
	cr, ok, err := h.ContentRange()
	if !ok || err != nil {
		t.Fatal(err)
	}
	if cr.Start != 2 || cr.End != 5 || cr.Full != 5 {
		t.Fatalf("got %+v", cr)
	}
}

func TestParseDigestHeader(t *testing.T) {
	h := Headers{"if-digest": "sha-256=9f8a"}
	kv, ok, err := h.IfDigest()
	if !ok || err != nil {
		t.Fatal(err)
	}
	if kv.Alg != "sha-256" || kv.Value != "9f8a" {
		t.Fatalf("got %+v", kv)
	}
}

func TestReadRequestMissingSeparator(t *testing.T) {
	raw := "GET foo\r\nbadheader\r\n\r\n"
	_, err := ReadRequest(bufio.NewReader(bytes.NewBufferString(raw)))
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}
