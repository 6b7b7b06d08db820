// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package kvserver_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/kvs/client"
	"github.com/dreamsxin/kvs/internal/engine"
	"github.com/dreamsxin/kvs/internal/kvserver"
	"github.com/dreamsxin/kvs/internal/pool"
)

func startServer(t *testing.T, p pool.Pool) string {
	t.Helper()

	eng, err := engine.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { eng.Shutdown() })

	srv := kvserver.NewServer("127.0.0.1:0", eng, p, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ready := make(chan string, 1)
	go func() {
		ln, lerr := srv.Listen()
		require.NoError(t, lerr)
		ready <- ln.Addr().String()
		require.NoError(t, srv.Serve(ctx, ln))
	}()

	return <-ready
}

// TestEndToEndSetGetRemove is testable scenario #4 from spec.md §8.
func TestEndToEndSetGetRemove(t *testing.T) {
	p := pool.NewSharedQueuePool(4, nil, nil)
	t.Cleanup(func() { p.Close() })
	addr := startServer(t, p)

	c, err := client.Connect(addr)
	require.NoError(t, err)

	require.NoError(t, c.Set("x", "1"))

	v, ok, err := c.Get("x")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", v)

	require.NoError(t, c.Remove("x"))

	_, ok, err = c.Get("x")
	require.NoError(t, err)
	require.False(t, ok)

	err = c.Remove("x")
	require.Error(t, err)
	msg, isServerErr := client.IsServerError(err)
	require.True(t, isServerErr)
	require.NotEmpty(t, msg)
}

// TestEndToEndConcurrentClients is testable scenario #5 from spec.md §8:
// N concurrent clients each doing one Set of a distinct key must all
// succeed, and every key must subsequently read back.
func TestEndToEndConcurrentClients(t *testing.T) {
	p := pool.NewSharedQueuePool(8, nil, nil)
	t.Cleanup(func() { p.Close() })
	addr := startServer(t, p)

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := client.Connect(addr)
			require.NoError(t, err)
			require.NoError(t, c.Set(fmt.Sprintf("key%d", i), "v"))
		}(i)
	}
	wg.Wait()

	c, err := client.Connect(addr)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		v, ok, err := c.Get(fmt.Sprintf("key%d", i))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "v", v)
	}
}

func TestShutdownUnblocksAccept(t *testing.T) {
	eng, err := engine.Open(t.TempDir())
	require.NoError(t, err)
	defer eng.Shutdown()

	p := pool.NewSharedQueuePool(2, nil, nil)
	defer p.Close()

	srv := kvserver.NewServer("127.0.0.1:0", eng, p, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := srv.Listen()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	time.Sleep(10 * time.Millisecond)
	srv.Shutdown()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}
