// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package proto

import (
	"encoding/json"
	"io"
)

// StreamCodec frames Request/Response values as a stream of JSON objects
// with no length prefix, the same self-delimiting approach internal/record
// uses for segment files -- json.Decoder's own object boundary detection is
// the framing. json.Encoder ends each object with a newline, which the
// decoder skips as whitespace.
type StreamCodec struct {
	enc *json.Encoder
	dec *json.Decoder
}

// NewStreamCodec wraps rw for request/response exchange.
func NewStreamCodec(rw io.ReadWriter) *StreamCodec {
	return &StreamCodec{enc: json.NewEncoder(rw), dec: json.NewDecoder(rw)}
}

func (c *StreamCodec) WriteRequest(r Request) error  { return c.enc.Encode(r) }
func (c *StreamCodec) ReadRequest() (Request, error) {
	var r Request
	err := c.dec.Decode(&r)
	return r, err
}

func (c *StreamCodec) WriteResponse(r Response) error  { return c.enc.Encode(r) }
func (c *StreamCodec) ReadResponse() (Response, error) {
	var r Response
	err := c.dec.Decode(&r)
	return r, err
}
