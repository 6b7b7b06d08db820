// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/kvs/internal/kverrors"
	"github.com/dreamsxin/kvs/internal/segment"
)

func TestSetGetOverwriteAndReopen(t *testing.T) {
	dir := t.TempDir()

	st, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, st.Set("a", []byte("1")))
	require.NoError(t, st.Set("a", []byte("2")))

	v, ok, err := st.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2", string(v))

	require.NoError(t, st.Shutdown())

	st2, err := Open(dir)
	require.NoError(t, err)
	defer st2.Shutdown()

	v, ok, err = st2.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2", string(v))
}

func TestRemoveSemantics(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	require.NoError(t, err)
	defer st.Shutdown()

	err = st.Remove("k")
	require.ErrorIs(t, err, kverrors.ErrKeyNotFound)

	require.NoError(t, st.Set("k", []byte("v")))
	require.NoError(t, st.Remove("k"))

	_, ok, err := st.Get("k")
	require.NoError(t, err)
	require.False(t, ok)

	err = st.Remove("k")
	require.ErrorIs(t, err, kverrors.ErrKeyNotFound)
}

func TestGetMissingKeyReturnsNotOK(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	require.NoError(t, err)
	defer st.Shutdown()

	_, ok, err := st.Get("nope")
	require.NoError(t, err)
	require.False(t, ok)
}

// TestCompactionReducesSegmentCountAndPreservesValues is testable
// property #3 (compaction preserves the observable mapping) and #4
// (compaction reduces on-disk size) from spec.md §8: 200 keys, then 200
// overwrites, crossing the compaction threshold at least once; every key
// must read back the last value set, and the live segment count must not
// grow without bound.
func TestCompactionReducesSegmentCountAndPreservesValues(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir, WithCompactionThreshold(256))
	require.NoError(t, err)
	defer st.Shutdown()

	for i := 0; i < 200; i++ {
		require.NoError(t, st.Set(fmt.Sprintf("key%d", i), []byte("v")))
	}
	ids, err := segment.ListIDs(dir)
	require.NoError(t, err)
	countAfterFirstWave := len(ids)
	require.Equal(t, []uint64{0}, ids, "distinct keys shadow no bytes, so the first wave must not compact yet")

	for i := 0; i < 200; i++ {
		require.NoError(t, st.Set(fmt.Sprintf("key%d", i), []byte("w")))
	}

	for i := 0; i < 200; i++ {
		v, ok, err := st.Get(fmt.Sprintf("key%d", i))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "w", string(v))
	}

	ids, err = segment.ListIDs(dir)
	require.NoError(t, err)
	require.NotContains(t, ids, uint64(0), "the overwrites should have forced at least one compaction, reclaiming segment 0")
	require.LessOrEqual(t, len(ids), countAfterFirstWave+2)
}

func TestCloneSharesStateIndependentReaderCache(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	require.NoError(t, err)
	defer st.Shutdown()

	require.NoError(t, st.Set("shared", []byte("v")))

	clone := st.Clone()
	v, ok, err := clone.Get("shared")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", string(v))
	require.NoError(t, clone.Close())

	// st itself is unaffected by the clone's Close.
	v, ok, err = st.Get("shared")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", string(v))
}

func TestConcurrentWritersAndReadersLinearize(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	require.NoError(t, err)
	defer st.Shutdown()

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			eng := st.Clone()
			defer eng.Close()
			key := fmt.Sprintf("key%d", i)
			require.NoError(t, eng.Set(key, []byte("v")))
			v, ok, err := eng.Get(key)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "v", string(v))
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		v, ok, err := st.Get(fmt.Sprintf("key%d", i))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "v", string(v))
	}
}

func TestMalformedSegmentNamesIgnoredDuringRecovery(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, st.Set("a", []byte("1")))
	require.NoError(t, st.Shutdown())

	require.NoError(t, os.WriteFile(dir+"/not-a-segment.txt", []byte("junk"), 0644))

	st2, err := Open(dir)
	require.NoError(t, err)
	defer st2.Shutdown()

	v, ok, err := st2.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", string(v))
}
