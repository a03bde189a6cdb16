// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transfer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/landrop/landrop/internal/config"
	"github.com/landrop/landrop/internal/metrics"
	"github.com/landrop/landrop/internal/wire"
)

// Download registers a provider context on controller for name, opens
// a connection to (ip, tcpPort), and streams the file to destPath. If
// a provider is already attached it returns ErrProviderExists without
// connecting.
// It resumes from the destination's current size when the file
// already exists.
func Download(controller ProviderController, name, destPath, ip string, tcpPort int) error {
	provider, ok := controller.RegisterProvider(name)
	if !ok {
		return ErrProviderExists
	}

	var finalErr error
	defer func() {
		provider.Release(finalErr)
	}()

	finalErr = download(provider, controller, name, destPath, ip, tcpPort)
	return finalErr
}

func download(provider ProviderHandle, controller ProviderController, name, destPath, ip string, tcpPort int) error {
	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", ip, tcpPort))
	if err != nil {
		return err
	}
	defer conn.Close()

	f, err := os.OpenFile(destPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	currentSize := info.Size()

	req := wire.Request{Method: wire.MethodGet, Name: name, Headers: wire.Headers{}}
	if expected := controller.ExpectedDigest(name); expected != "" {
		req.Headers.Set(wire.HeaderIfDigest, config.DigestAlgorithm+"="+expected)
	}
	if currentSize > 0 {
		req.Headers.Set(wire.HeaderRange, fmt.Sprintf("bytes %d-", currentSize))
	}

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	if err := wire.WriteRequest(w, req); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}

	resp, err := wire.ReadResponseHeader(r)
	if err != nil {
		return err
	}
	if !resp.Status.IsSuccess() {
		return fmt.Errorf("%w: status %d", ErrProtocolError, resp.Status)
	}

	length, hasLength, err := resp.Headers.ContentLength()
	if err != nil || !hasLength {
		return fmt.Errorf("%w: response carries no content-length", ErrProtocolError)
	}

	offset := int64(0)
	total := length
	if cr, present, err := resp.Headers.ContentRange(); err == nil && present {
		offset = cr.Start
		total = cr.Full
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}

	written, copyErr := copyChunks(conn, r, f, length, provider, offset)

	if err := f.Truncate(offset + written); err != nil {
		return err
	}

	if copyErr != nil {
		if errors.Is(copyErr, io.EOF) {
			return ErrShortTransfer
		}
		return copyErr
	}

	if offset+written < total {
		return ErrShortTransfer
	}
	return nil
}

func copyChunks(conn net.Conn, r *bufio.Reader, f *os.File, length int64, provider ProviderHandle, offset int64) (int64, error) {
	buf := make([]byte, config.FileChunkSize)
	var written int64
	for written < length {
		if provider.Stopped() {
			return written, nil
		}
		chunk := int64(len(buf))
		if remaining := length - written; remaining < chunk {
			chunk = remaining
		}
		conn.SetReadDeadline(time.Now().Add(config.TCPFileRecvTimeout))
		n, err := r.Read(buf[:chunk])
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
			metrics.BytesReceived(n)
			provider.UpdateProgress(uint64(offset + written))
		}
		if err != nil {
			if err == io.EOF && written >= length {
				break
			}
			return written, err
		}
	}
	return written, nil
}
