// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package record implements the self-delimited JSON record format used by
// segment logs: a concatenation of Set and Remove records, each one JSON
// object, with no length prefix. The only way to know where a record ends is
// to ask the decoder how many bytes it consumed.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

var (
	// ErrEmptyKey is returned by NewSet and NewRemove when the key is the
	// empty string. Values are not checked, and Decoder.Next does not check
	// keys.
	ErrEmptyKey = errors.New("record: key must not be empty")

	// ErrUnknownRecord is returned by Decoder.Next when a JSON object doesn't
	// match any known record shape.
	ErrUnknownRecord = errors.New("record: unrecognized record shape")
)

// Kind distinguishes the two record shapes that can live in a segment log.
type Kind int

const (
	// KindSet marks a record as a live value for Key.
	KindSet Kind = iota
	// KindRemove marks a record as a tombstone for Key.
	KindRemove
)

// Record is one logical entry in a segment log: either Set{Key, Value} or
// Remove{Key}. Value is nil for a Remove record.
type Record struct {
	Kind  Kind
	Key   string
	Value []byte
}

// wireRecord is the on-disk JSON shape. Exactly one of Set/Remove is non-nil,
// mirroring the internally-tagged enum the original Rust implementation
// serialized with serde.
type wireRecord struct {
	Set *wireSet `json:"Set,omitempty"`
	Rm  *wireRm  `json:"Remove,omitempty"`
}

type wireSet struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type wireRm struct {
	Key string `json:"key"`
}

// NewSet builds a Set record. Returns ErrEmptyKey if key is empty.
func NewSet(key string, value []byte) (Record, error) {
	if key == "" {
		return Record{}, ErrEmptyKey
	}
	return Record{Kind: KindSet, Key: key, Value: value}, nil
}

// NewRemove builds a Remove record. Returns ErrEmptyKey if key is empty.
func NewRemove(key string) (Record, error) {
	if key == "" {
		return Record{}, ErrEmptyKey
	}
	return Record{Kind: KindRemove, Key: key}, nil
}

func (r Record) toWire() wireRecord {
	switch r.Kind {
	case KindSet:
		return wireRecord{Set: &wireSet{Key: r.Key, Value: string(r.Value)}}
	default:
		return wireRecord{Rm: &wireRm{Key: r.Key}}
	}
}

func fromWire(w wireRecord) (Record, error) {
	switch {
	case w.Set != nil:
		return Record{Kind: KindSet, Key: w.Set.Key, Value: []byte(w.Set.Value)}, nil
	case w.Rm != nil:
		return Record{Kind: KindRemove, Key: w.Rm.Key}, nil
	default:
		return Record{}, ErrUnknownRecord
	}
}

// Encode serializes r as a single JSON object with no trailing delimiter.
// Concatenating the output of successive calls is a valid segment log.
func Encode(r Record) ([]byte, error) {
	return json.Marshal(r.toWire())
}

// Decoder reads a concatenated stream of JSON records, reporting the byte
// offset immediately following each one so callers can compute record
// length without a length prefix on the wire.
type Decoder struct {
	jd  *json.Decoder
	buf *countingReader
}

// countingReader lets us recover how many bytes json.Decoder actually
// consumed even when it reads from a bufio-wrapped source, by asking
// InputOffset() directly -- this wrapper exists only to document that
// intent at the call site.
type countingReader struct {
	io.Reader
}

// NewDecoder returns a Decoder reading records from r.
func NewDecoder(r io.Reader) *Decoder {
	cr := &countingReader{r}
	jd := json.NewDecoder(cr)
	jd.DisallowUnknownFields()
	return &Decoder{jd: jd, buf: cr}
}

// Next decodes the next record and returns it along with the absolute byte
// offset immediately after it (relative to the start of the stream handed to
// NewDecoder). io.EOF is returned when no further complete record is
// present -- including the case of a truncated, partially-written trailing
// record, which is treated as end-of-log rather than an error (recovery
// truncates silently; see engine package).
func (d *Decoder) Next() (Record, int64, error) {
	var w wireRecord
	if err := d.jd.Decode(&w); err != nil {
		if err == io.EOF {
			return Record{}, 0, io.EOF
		}
		// Any decode error on what may be a partial trailing record is treated
		// as end-of-log, not a hard failure, per the recovery contract.
		if isTruncationError(err) {
			return Record{}, 0, io.EOF
		}
		return Record{}, 0, err
	}
	rec, err := fromWire(w)
	if err != nil {
		return Record{}, 0, err
	}
	return rec, d.jd.InputOffset(), nil
}

// isTruncationError reports whether err looks like the decoder ran out of
// bytes mid-object, which happens naturally when a writer crashed between
// two record writes and left a partial JSON object at the tail of a segment.
func isTruncationError(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		bytes.Contains([]byte(err.Error()), []byte("unexpected end of JSON input"))
}
