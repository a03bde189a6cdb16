// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transfer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/landrop/landrop/internal/config"
	"github.com/landrop/landrop/internal/metrics"
	"github.com/landrop/landrop/internal/wire"
)

// Server listens on the configured transfer address and spawns one
// handler goroutine per accepted connection.
type Server struct {
	bindAddr string
	source   FileSource

	addrReady chan string
}

// NewServer constructs a Server bound to addr; it does not start
// listening until Serve is called, so it can be added to a
// suture.Supervisor before any socket exists.
func NewServer(addr string, source FileSource) *Server {
	return &Server{bindAddr: addr, source: source, addrReady: make(chan string, 1)}
}

// Addr blocks until Serve has bound its listener and returns its
// address, useful when the server was constructed with port 0 and the
// OS picked one.
func (s *Server) Addr() string {
	addr := <-s.addrReady
	s.addrReady <- addr
	return addr
}

// Serve accepts connections until ctx is cancelled. It satisfies
// suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.bindAddr)
	if err != nil {
		return fmt.Errorf("transfer: listen: %w", err)
	}
	s.addrReady <- ln.Addr().String()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) String() string {
	return "transfer.Server(" + s.bindAddr + ")"
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	peerIP := ""
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		peerIP = tcpAddr.IP.String()
	}

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	req, err := wire.ReadRequest(r)
	if err != nil {
		s.respondError(w, wire.StatusBadRequest)
		if debug {
			l.Debugln("transfer: bad request from", peerIP, err)
		}
		return
	}

	if err := s.handleRequest(conn, r, w, req, peerIP); err != nil {
		l.Warnf("transfer: serving %q to %s: %v", req.Name, peerIP, err)
	}
}

func (s *Server) handleRequest(conn net.Conn, r *bufio.Reader, w *bufio.Writer, req wire.Request, peerIP string) error {
	rng, hasRange, err := req.Headers.Range()
	if err != nil {
		s.respondError(w, wire.StatusBadRequest)
		return err
	}
	if hasRange && rng.Unit != "bytes" {
		s.respondError(w, wire.StatusBadRequest)
		return fmt.Errorf("unsupported range unit %q", rng.Unit)
	}

	if len(req.Name) > config.MaxNameLength {
		s.respondError(w, wire.StatusBadRequest)
		return fmt.Errorf("name %q exceeds MaxNameLength", req.Name)
	}

	path, size, digest, ok := s.source.ResolveFile(req.Name)
	if !ok {
		s.respondError(w, wire.StatusNotFound)
		return nil
	}

	if kv, present, err := req.Headers.IfDigest(); err != nil {
		s.respondError(w, wire.StatusBadRequest)
		return err
	} else if present {
		if kv.Alg != config.DigestAlgorithm {
			s.respondError(w, wire.StatusBadRequest)
			return fmt.Errorf("unsupported digest algorithm %q", kv.Alg)
		}
		if kv.Value != digest {
			s.respondError(w, wire.StatusPreconditionFailed)
			return nil
		}
	}

	consumer, ok := s.source.RegisterConsumer(req.Name, peerIP)
	if !ok {
		s.respondError(w, wire.StatusNotFound)
		return ErrNotShareable
	}

	var streamErr error
	defer func() {
		consumer.Release(streamErr)
	}()

	start := int64(0)
	length := int64(size)
	if hasRange {
		start = rng.Start
		if start > int64(size) {
			s.respondError(w, wire.StatusRangeNotSatisfiable)
			return nil
		}
		end := int64(size) - 1
		if rng.End >= 0 {
			end = rng.End
		}
		length = end - start + 1
		if length < 0 {
			length = 0
		}
	}

	partial := start != 0 || length != int64(size)
	status := wire.StatusOK
	if partial {
		status = wire.StatusPartialContent
	}

	resp := wire.NewResponse(status)
	resp.Headers.Set(wire.HeaderContentLength, fmt.Sprintf("%d", length))
	resp.Headers.Set(wire.HeaderContentType, wire.DefaultContentType)
	if partial {
		end := start + length - 1
		if end < start {
			end = start
		}
		resp.Headers.Set(wire.HeaderContentRange, wire.ContentRange{
			Unit: "bytes", Start: start, End: end, Full: int64(size),
		}.String())
	}
	if digest != "" {
		resp.Headers.Set(wire.HeaderDigest, config.DigestAlgorithm+"="+digest)
	}

	if err := wire.WriteResponseHeader(w, resp); err != nil {
		streamErr = err
		return err
	}

	if req.Method == wire.MethodHead {
		return w.Flush()
	}

	if err := s.streamBody(conn, w, path, start, length, consumer); err != nil {
		streamErr = err
		return err
	}
	return nil
}

func (s *Server) streamBody(conn net.Conn, w *bufio.Writer, path string, start, length int64, consumer ConsumerHandle) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInconsistentFileState, err)
	}
	defer f.Close()

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", ErrInconsistentFileState, err)
	}

	remaining := length
	buf := make([]byte, config.FileChunkSize)
	for remaining > 0 {
		if consumer.Stopped() {
			return nil
		}
		chunk := int64(len(buf))
		if remaining < chunk {
			chunk = remaining
		}
		n, err := f.Read(buf[:chunk])
		if n > 0 {
			conn.SetWriteDeadline(time.Now().Add(config.TCPFileSendTimeout))
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			metrics.BytesSent(n)
			remaining -= int64(n)
		}
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("%w: file ended before declared length", ErrInconsistentFileState)
			}
			return fmt.Errorf("%w: %v", ErrInconsistentFileState, err)
		}
	}
	return w.Flush()
}

func (s *Server) respondError(w *bufio.Writer, status wire.StatusCode) {
	resp := wire.NewResponse(status)
	resp.Headers.Set(wire.HeaderContentLength, "0")
	if err := wire.WriteResponseHeader(w, resp); err != nil {
		return
	}
	w.Flush()
}
