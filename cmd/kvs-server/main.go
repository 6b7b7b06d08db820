// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Command kvs-server binds a TCP listener and serves GET/SET/REMOVE
// requests against a persistent data directory, per spec.md §6 "CLI
// surfaces". Argument parsing, engine-file bookkeeping and logging setup
// are deliberately thin: spec.md §1 scopes the CLI front-end as an
// external collaborator, not part of the deep design.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreamsxin/kvs/internal/boltengine"
	"github.com/dreamsxin/kvs/internal/engine"
	"github.com/dreamsxin/kvs/internal/kvserver"
	"github.com/dreamsxin/kvs/internal/pool"
)

const engineMarkerFile = "engine"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		addr        = flag.String("addr", "127.0.0.1:4000", "address to listen on")
		engineName  = flag.String("engine", "kvs", "storage engine: kvs or sled")
		dir         = flag.String("dir", ".", "data directory")
		poolKind    = flag.String("pool", "shared", "worker pool: shared or stealing")
		poolSize    = flag.Int("pool-size", 4, "number of pool workers / max in-flight connections")
		metricsAddr = flag.String("metrics-addr", "", "address to expose /metrics on (disabled if empty)")
	)
	flag.Parse()

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	absDir, err := filepath.Abs(*dir)
	if err != nil {
		return fmt.Errorf("kvs-server: resolve dir %s: %w", *dir, err)
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return fmt.Errorf("kvs-server: create dir %s: %w", absDir, err)
	}

	resolvedEngine, err := reconcileEngineMarker(absDir, *engineName)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()

	eng, closeEngine, err := openEngine(resolvedEngine, absDir, logger, reg)
	if err != nil {
		return fmt.Errorf("kvs-server: open engine: %w", err)
	}
	defer closeEngine()

	p, err := newPool(*poolKind, *poolSize, logger, reg)
	if err != nil {
		return err
	}
	defer p.Close()

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, reg, logger)
	}

	srv := kvserver.NewServer(*addr, eng, p, logger, reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	level.Info(logger).Log("msg", "kvs-server starting", "engine", resolvedEngine, "addr", *addr, "pool", *poolKind, "dir", absDir)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("kvs-server: %w", err)
	}
	return nil
}

// reconcileEngineMarker implements spec.md §6's persisted-engine rule: the
// first launch against a fresh directory writes the "engine" marker file;
// every later launch must match it, or the process exits 1 before
// accepting connections.
func reconcileEngineMarker(dir, requested string) (string, error) {
	path := filepath.Join(dir, engineMarkerFile)
	existing, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, []byte(requested), 0644); err != nil {
			return "", fmt.Errorf("kvs-server: write engine marker: %w", err)
		}
		return requested, nil
	}
	if err != nil {
		return "", fmt.Errorf("kvs-server: read engine marker: %w", err)
	}
	persisted := strings.TrimSpace(string(existing))
	if persisted != requested {
		return "", fmt.Errorf("kvs-server: data dir %s was created with engine %q, cannot open with %q", dir, persisted, requested)
	}
	return persisted, nil
}

func openEngine(name, dir string, logger log.Logger, reg prometheus.Registerer) (engine.Engine, func(), error) {
	switch name {
	case "kvs":
		st, err := engine.Open(dir, engine.WithLogger(logger), engine.WithRegisterer(reg))
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Shutdown() }, nil
	case "sled":
		st, err := boltengine.Open(filepath.Join(dir, "kvs.bolt"))
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Shutdown() }, nil
	default:
		return nil, nil, fmt.Errorf("kvs-server: unknown engine %q", name)
	}
}

func newPool(kind string, n int, logger log.Logger, reg prometheus.Registerer) (pool.Pool, error) {
	if n <= 0 {
		n = 4
	}
	switch kind {
	case "shared":
		return pool.NewSharedQueuePool(n, logger, reg), nil
	case "stealing":
		return pool.NewStealingPool(n, logger, reg), nil
	default:
		return nil, fmt.Errorf("kvs-server: unknown pool %q", kind)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger log.Logger) {
	mux := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	level.Info(logger).Log("msg", "metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		level.Error(logger).Log("msg", "metrics server stopped", "err", err)
	}
}
