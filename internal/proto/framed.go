// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package proto

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// maxFrameSize bounds a single frame so a corrupt or hostile peer can't make
// the codec allocate an unbounded buffer from a bogus length prefix.
const maxFrameSize = 64 << 20 // 64 MiB

// FramedCodec frames each Request/Response as a 4-byte big-endian length
// prefix followed by that many bytes of JSON. This is the default codec
// used by kvs-server/kvs-client.
type FramedCodec struct {
	rw io.ReadWriter
}

// NewFramedCodec wraps rw for request/response exchange.
func NewFramedCodec(rw io.ReadWriter) *FramedCodec {
	return &FramedCodec{rw: rw}
}

func (c *FramedCodec) writeFrame(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("proto: marshal frame: %w", err)
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := c.rw.Write(header[:]); err != nil {
		return fmt.Errorf("proto: write frame header: %w", err)
	}
	if _, err := c.rw.Write(payload); err != nil {
		return fmt.Errorf("proto: write frame payload: %w", err)
	}
	return nil
}

func (c *FramedCodec) readFrame(v any) error {
	var header [4]byte
	if _, err := io.ReadFull(c.rw, header[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > maxFrameSize {
		return fmt.Errorf("proto: frame size %d exceeds maximum %d", n, maxFrameSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(c.rw, payload); err != nil {
		return fmt.Errorf("proto: read frame payload: %w", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("proto: unmarshal frame: %w", err)
	}
	return nil
}

func (c *FramedCodec) WriteRequest(r Request) error { return c.writeFrame(r) }
func (c *FramedCodec) ReadRequest() (Request, error) {
	var r Request
	err := c.readFrame(&r)
	return r, err
}

func (c *FramedCodec) WriteResponse(r Response) error { return c.writeFrame(r) }
func (c *FramedCodec) ReadResponse() (Response, error) {
	var r Response
	err := c.readFrame(&r)
	return r, err
}
