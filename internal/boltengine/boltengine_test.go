// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package boltengine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/kvs/internal/kverrors"
)

func TestSetGetRemove(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "kvs.bolt"))
	require.NoError(t, err)
	defer st.Shutdown()

	_, ok, err := st.Get("a")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, st.Set("a", []byte("1")))
	v, ok, err := st.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", string(v))

	require.NoError(t, st.Remove("a"))
	_, ok, err = st.Get("a")
	require.NoError(t, err)
	require.False(t, ok)

	err = st.Remove("a")
	require.ErrorIs(t, err, kverrors.ErrKeyNotFound)
}

func TestCloneSharesOneHandle(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "kvs.bolt"))
	require.NoError(t, err)
	defer st.Shutdown()

	clone := st.Clone()
	require.NoError(t, clone.Set("k", []byte("v")))

	v, ok, err := st.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", string(v))
}

// TestCloneCloseDoesNotAffectSharedHandle guards the per-connection shape
// kvserver.handleConn relies on: Close on one clone (what a connection's
// deferred cleanup calls) must not disturb the shared DB that other,
// still-live clones (and later connections) keep using.
func TestCloneCloseDoesNotAffectSharedHandle(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "kvs.bolt"))
	require.NoError(t, err)
	defer st.Shutdown()

	require.NoError(t, st.Set("before", []byte("v")))

	first := st.Clone()
	require.NoError(t, first.Close())

	second := st.Clone()
	require.NoError(t, second.Set("after", []byte("w")))

	v, ok, err := st.Get("before")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", string(v))

	v, ok, err = st.Get("after")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "w", string(v))
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kvs.bolt")
	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Set("k", []byte("v")))
	require.NoError(t, st.Shutdown())

	st2, err := Open(path)
	require.NoError(t, err)
	defer st2.Shutdown()
	v, ok, err := st2.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", string(v))
}
