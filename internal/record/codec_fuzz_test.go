// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package record

import (
	"bytes"
	"testing"

	"github.com/google/gofuzz"
	"github.com/stretchr/testify/require"
)

// TestCodecRoundTripFuzz exercises testable property #6 (decode(encode(r))
// == r) over randomly generated key/value byte strings, the way gofuzz is
// used elsewhere in the pack to hammer a codec with inputs a hand-written
// table wouldn't think to try.
func TestCodecRoundTripFuzz(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(1, 64)

	for i := 0; i < 200; i++ {
		var key, value string
		f.Fuzz(&key)
		f.Fuzz(&value)
		if key == "" {
			key = "nonempty"
		}

		want, err := NewSet(key, []byte(value))
		require.NoError(t, err)

		raw, err := Encode(want)
		require.NoError(t, err)

		dec := NewDecoder(bytes.NewReader(raw))
		got, _, err := dec.Next()
		require.NoError(t, err)
		require.Equal(t, want.Kind, got.Kind)
		require.Equal(t, want.Key, got.Key)
		require.Equal(t, want.Value, got.Value)
	}
}
