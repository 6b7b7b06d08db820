// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Command latency_bench load-tests a running kvs-server the way the
// teacher's bench/bench_test.go load-tests a WAL implementation directly:
// here the subject under test is reached over the wire instead of in
// process, so what gets measured is end-to-end request latency rather than
// raw append throughput. It corresponds to the concurrency benchmarks in
// original_source/benches/concurrency_benches.rs (spec.md §9
// "Benchmark harness").
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	hdrwriter "github.com/benmathews/hdrhistogram-writer"
	"github.com/benmathews/bench"

	"github.com/dreamsxin/kvs/client"
)

// kvsRequester drives one simulated client: every Request call does one Set
// followed by one Get of the same key, mirroring testable property #5
// (N concurrent set/get client threads).
type kvsRequester struct {
	addr string
	c    *client.Client
	id   int
	n    int64
}

func (r *kvsRequester) Setup() error {
	c, err := client.Connect(r.addr)
	if err != nil {
		return fmt.Errorf("bench: connect: %w", err)
	}
	r.c = c
	return nil
}

func (r *kvsRequester) Request() (bool, time.Duration, error) {
	key := fmt.Sprintf("bench-%d-%d", r.id, atomic.AddInt64(&r.n, 1))
	value := fmt.Sprintf("v-%d", rand.Int63())

	start := time.Now()
	if err := r.c.Set(key, value); err != nil {
		return false, time.Since(start), err
	}
	if _, ok, err := r.c.Get(key); err != nil {
		return false, time.Since(start), err
	} else if !ok {
		return false, time.Since(start), fmt.Errorf("bench: %q missing after set", key)
	}
	return true, time.Since(start), nil
}

func (r *kvsRequester) Teardown() error {
	return nil
}

func main() {
	var (
		addr       = flag.String("addr", "127.0.0.1:4000", "kvs-server address")
		clients    = flag.Int("clients", 50, "number of concurrent simulated clients")
		duration   = flag.Duration("duration", 10*time.Second, "how long to run the benchmark")
		reportEvery = flag.Duration("report-every", time.Second, "reporting period")
		outFile    = flag.String("out", "latency.hgrm", "HDR distribution output file")
	)
	flag.Parse()

	requesters := make([]bench.Requester, *clients)
	for i := range requesters {
		requesters[i] = &kvsRequester{addr: *addr, id: i}
	}

	benchmark := bench.NewBenchmark(requesters, -1, -1, *duration, *reportEvery)
	results, err := benchmark.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bench: run: %v\n", err)
		os.Exit(1)
	}

	hist := hdrhistogram.New(1, int64(time.Minute.Microseconds()), 3)
	var total, failed int64
	for r := range results {
		total++
		if r.Err != nil {
			failed++
			continue
		}
		hist.RecordValue(r.Duration.Microseconds())
	}

	fmt.Printf("requests=%d failed=%d p50=%dus p99=%dus p999=%dus max=%dus\n",
		total, failed,
		hist.ValueAtQuantile(50), hist.ValueAtQuantile(99), hist.ValueAtQuantile(99.9), hist.Max())

	percentiles := []float64{50, 90, 99, 99.9, 99.99}
	if err := hdrwriter.WriteDistributionFile(hist, percentiles, 1.0, *outFile); err != nil {
		fmt.Fprintf(os.Stderr, "bench: write distribution: %v\n", err)
		os.Exit(1)
	}
}
