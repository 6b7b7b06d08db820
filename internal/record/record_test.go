// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package record

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Record{
		mustSet(t, "a", []byte("1")),
		mustSet(t, "key with spaces", []byte("a longer value with \"quotes\" and \nnewlines")),
		mustRemove(t, "a"),
	}

	for _, rec := range cases {
		raw, err := Encode(rec)
		require.NoError(t, err)

		dec := NewDecoder(bytes.NewReader(raw))
		got, end, err := dec.Next()
		require.NoError(t, err)
		require.Equal(t, rec.Kind, got.Kind)
		require.Equal(t, rec.Key, got.Key)
		require.Equal(t, rec.Value, got.Value)
		require.Equal(t, int64(len(raw)), end)
	}
}

func TestDecodeStreamOffsets(t *testing.T) {
	var buf bytes.Buffer
	var want []Record
	for i := 0; i < 5; i++ {
		rec := mustSet(t, string(rune('a'+i)), []byte{byte(i)})
		want = append(want, rec)
		raw, err := Encode(rec)
		require.NoError(t, err)
		buf.Write(raw)
	}

	dec := NewDecoder(&buf)
	var prevEnd int64
	for i := 0; i < len(want); i++ {
		got, end, err := dec.Next()
		require.NoError(t, err)
		require.Equal(t, want[i].Key, got.Key)
		require.Greater(t, end, prevEnd)
		prevEnd = end
	}
	_, _, err := dec.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestDecodeTruncatedTrailingRecordIsEOF(t *testing.T) {
	rec := mustSet(t, "a", []byte("1"))
	raw, err := Encode(rec)
	require.NoError(t, err)

	// Simulate a process crash mid-append: the trailing bytes of the second
	// record never made it to disk.
	raw = append(raw, []byte(`{"Set":{"key":"b","val`)...)

	dec := NewDecoder(bytes.NewReader(raw))
	got, _, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, "a", got.Key)

	_, _, err = dec.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestEncodeRejectsEmptyKey(t *testing.T) {
	_, err := NewSet("", []byte("v"))
	require.ErrorIs(t, err, ErrEmptyKey)

	_, err = NewRemove("")
	require.ErrorIs(t, err, ErrEmptyKey)
}

func mustSet(t *testing.T, key string, value []byte) Record {
	t.Helper()
	rec, err := NewSet(key, value)
	require.NoError(t, err)
	return rec
}

func mustRemove(t *testing.T, key string) Record {
	t.Helper()
	rec, err := NewRemove(key)
	require.NoError(t, err)
	return rec
}
