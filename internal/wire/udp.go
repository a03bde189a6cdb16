// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package wire implements the two on-the-wire formats this node
// speaks: the fixed-size binary UDP discovery datagrams and the
// CRLF-framed transfer protocol messages. Every datagram field has a
// fixed wire position, so the datagram codec is plain encoding/binary
// over fixed buffers rather than anything reflection-based; the
// transfer framing is a line scanner over bufio (transfer.go).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic and protocol version identify this as a landrop datagram, not
// noise from some other broadcast protocol sharing the port.
const (
	Magic   uint16 = 0xD16D
	Version uint8  = 1
)

type Kind uint8

const (
	KindHello    Kind = 0x01
	KindHere     Kind = 0x02
	KindFind     Kind = 0x11
	KindFound    Kind = 0x12
	KindNotFound Kind = 0x13
)

func (k Kind) String() string {
	switch k {
	case KindHello:
		return "HELLO"
	case KindHere:
		return "HERE"
	case KindFind:
		return "FIND"
	case KindFound:
		return "FOUND"
	case KindNotFound:
		return "NOTFOUND"
	default:
		return fmt.Sprintf("Kind(%#x)", uint8(k))
	}
}

const (
	headerSize   = 4 // magic(2) + version(1) + kind(1)
	maxName      = 32
	nameField    = 1 + maxName // length byte + padded name bytes
	digestSize   = 64
	fileDataSize = nameField + digestSize + 8 // + size(u64)
)

// MaxName is the longest file name this protocol can carry, exported
// for callers that need to validate names before they ever reach the
// wire.
const MaxName = maxName

var (
	// ErrProtocolMismatch is returned when a received datagram's
	// magic, version, or kind is not recognized. Callers drop such
	// datagrams silently.
	ErrProtocolMismatch = errors.New("wire: protocol mismatch")
	ErrTruncated        = errors.New("wire: truncated datagram")
	ErrNameTooLong      = errors.New("wire: name exceeds MaxName")
)

// FileData is the payload shared by FIND, FOUND, and NOTFOUND
// datagrams: a file name, an optional digest (empty means "any" on a
// FIND, "unknown" on a FOUND/NOTFOUND), and a declared size.
type FileData struct {
	Name   string
	Digest string // 64 lower-case hex chars, or "" if unknown
	Size   uint64
}

// Datagram is a tagged union over the five message kinds this
// protocol exchanges. Exactly the fields relevant to Kind are
// populated; the exhaustive switch lives in Encode/Decode, not in a
// type hierarchy.
type Datagram struct {
	Kind Kind

	// HERE
	UDPPort uint16
	TCPPort uint16

	// FIND / FOUND / NOTFOUND
	File FileData
}

func Hello() Datagram {
	return Datagram{Kind: KindHello}
}

func Here(udpPort, tcpPort uint16) Datagram {
	return Datagram{Kind: KindHere, UDPPort: udpPort, TCPPort: tcpPort}
}

func Find(name, digest string) Datagram {
	return Datagram{Kind: KindFind, File: FileData{Name: name, Digest: digest}}
}

func Found(name, digest string, size uint64) Datagram {
	return Datagram{Kind: KindFound, File: FileData{Name: name, Digest: digest, Size: size}}
}

func NotFound(name, digest string) Datagram {
	return Datagram{Kind: KindNotFound, File: FileData{Name: name, Digest: digest}}
}

// Encode serializes d into its fixed-size wire form. It is total: any
// Datagram value produced by the constructors above encodes without
// error, except a FileData.Name longer than MaxName.
func Encode(d Datagram) ([]byte, error) {
	var body []byte
	switch d.Kind {
	case KindHello:
		body = nil
	case KindHere:
		body = make([]byte, 4)
		binary.BigEndian.PutUint16(body[0:2], d.UDPPort)
		binary.BigEndian.PutUint16(body[2:4], d.TCPPort)
	case KindFind, KindFound, KindNotFound:
		b, err := encodeFileData(d.File)
		if err != nil {
			return nil, err
		}
		body = b
	default:
		return nil, fmt.Errorf("wire: unknown kind %v", d.Kind)
	}

	buf := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint16(buf[0:2], Magic)
	buf[2] = Version
	buf[3] = uint8(d.Kind)
	copy(buf[headerSize:], body)
	return buf, nil
}

func encodeFileData(fd FileData) ([]byte, error) {
	if len(fd.Name) > maxName {
		return nil, ErrNameTooLong
	}
	buf := make([]byte, fileDataSize)
	buf[0] = byte(len(fd.Name))
	copy(buf[1:1+maxName], fd.Name)

	digestField := buf[nameField : nameField+digestSize]
	if fd.Digest != "" {
		copy(digestField, fd.Digest)
	}
	// a leading zero byte signals "no digest"; digestField is already
	// zero-filled by make() when fd.Digest == "".

	binary.BigEndian.PutUint64(buf[nameField+digestSize:], fd.Size)
	return buf, nil
}

// Decode parses a raw UDP payload into a Datagram. It returns
// ErrProtocolMismatch for anything that isn't a recognized landrop
// datagram, and ErrTruncated if the body is shorter than its kind
// requires.
func Decode(raw []byte) (Datagram, error) {
	if len(raw) < headerSize {
		return Datagram{}, ErrTruncated
	}
	magic := binary.BigEndian.Uint16(raw[0:2])
	version := raw[2]
	kind := Kind(raw[3])
	if magic != Magic || version != Version {
		return Datagram{}, ErrProtocolMismatch
	}

	body := raw[headerSize:]
	switch kind {
	case KindHello:
		return Datagram{Kind: KindHello}, nil
	case KindHere:
		if len(body) < 4 {
			return Datagram{}, ErrTruncated
		}
		return Datagram{
			Kind:    KindHere,
			UDPPort: binary.BigEndian.Uint16(body[0:2]),
			TCPPort: binary.BigEndian.Uint16(body[2:4]),
		}, nil
	case KindFind, KindFound, KindNotFound:
		fd, err := decodeFileData(body)
		if err != nil {
			return Datagram{}, err
		}
		return Datagram{Kind: kind, File: fd}, nil
	default:
		return Datagram{}, ErrProtocolMismatch
	}
}

func decodeFileData(body []byte) (FileData, error) {
	if len(body) < fileDataSize {
		return FileData{}, ErrTruncated
	}
	nameLen := int(body[0])
	if nameLen > maxName {
		nameLen = maxName
	}
	name := string(body[1 : 1+nameLen])

	digestField := body[nameField : nameField+digestSize]
	var digest string
	if digestField[0] != 0 {
		digest = string(digestField)
	}

	size := binary.BigEndian.Uint64(body[nameField+digestSize:])
	return FileData{Name: name, Digest: digest, Size: size}, nil
}
