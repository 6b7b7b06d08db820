// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package kvserver implements the TCP server that dispatches GET/SET/REMOVE
// requests to a cloned engine.Engine handle per connection, using a
// pool.Pool to bound how many connections are served concurrently.
package kvserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamsxin/kvs/internal/engine"
	"github.com/dreamsxin/kvs/internal/kverrors"
	"github.com/dreamsxin/kvs/internal/pool"
	"github.com/dreamsxin/kvs/internal/proto"
)

// Server accepts connections on Addr and dispatches each to a cloned Engine
// handle, running on Pool.
type Server struct {
	Addr   string
	Engine engine.Engine
	Pool   pool.Pool
	Logger log.Logger

	// NewCodec selects the wire framing for each accepted connection.
	// Defaults to proto.NewFramedCodec if nil.
	NewCodec func(net.Conn) proto.Codec

	metrics  *serverMetrics
	running  atomic.Bool
	listener net.Listener
}

// NewServer returns a Server ready for Run. logger and reg may be nil.
func NewServer(addr string, eng engine.Engine, p pool.Pool, logger log.Logger, reg prometheus.Registerer) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Server{
		Addr:    addr,
		Engine:  eng,
		Pool:    p,
		Logger:  logger,
		metrics: newServerMetrics(reg),
	}
}

// Run binds Addr and serves connections until ctx is done or Shutdown is
// called. It returns once the listener is closed and blocks until then.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Listen binds Addr and returns the listener without serving on it yet,
// letting callers (tests, mainly) discover the bound address when Addr
// requests an ephemeral port ("host:0") before calling Serve.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return nil, fmt.Errorf("kvserver: listen %s: %w", s.Addr, err)
	}
	s.listener = ln
	return ln, nil
}

// Serve runs the accept loop on a listener obtained from Listen, until ctx
// is done or Shutdown is called. It returns once the listener is closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.running.Store(true)

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	level.Info(s.Logger).Log("msg", "server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.running.Load() {
				level.Info(s.Logger).Log("msg", "server shutting down")
				return nil
			}
			return fmt.Errorf("kvserver: accept: %w", err)
		}
		if !s.running.Load() {
			conn.Close()
			ln.Close()
			return nil
		}

		s.metrics.connectionsAccepted.Inc()
		eng := s.Engine.Clone()
		s.Pool.Spawn(func() { s.handleConn(conn, eng) })
	}
}

// Shutdown flips the running flag and dials a throwaway connection to
// unblock the Accept call in Run, matching the original's shutdown signal
// mechanism (there is no other way to interrupt a blocking Accept
// portably without relying on a context-aware listener).
func (s *Server) Shutdown() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	if s.listener == nil {
		return
	}
	addr := s.listener.Addr().String()
	if conn, err := net.Dial("tcp", addr); err == nil {
		conn.Close()
	}
	s.listener.Close()
}

func (s *Server) newCodec(conn net.Conn) proto.Codec {
	if s.NewCodec != nil {
		return s.NewCodec(conn)
	}
	return proto.NewFramedCodec(conn)
}

// handleConn serves request/response pairs in strict lockstep until the
// peer closes the connection or an I/O error occurs. It never panics the
// caller's goroutine out from under the pool; errors just end this one
// connection.
func (s *Server) handleConn(conn net.Conn, eng engine.Engine) {
	defer conn.Close()
	defer eng.Close()
	s.metrics.connectionsActive.Inc()
	defer s.metrics.connectionsActive.Dec()

	codec := s.newCodec(conn)

	for {
		req, err := codec.ReadRequest()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				level.Debug(s.Logger).Log("msg", "connection read error", "err", err)
			}
			return
		}

		resp := s.dispatch(eng, req)

		if err := codec.WriteResponse(resp); err != nil {
			level.Debug(s.Logger).Log("msg", "connection write error", "err", err)
			return
		}
	}
}

func (s *Server) dispatch(eng engine.Engine, req proto.Request) proto.Response {
	switch {
	case req.Get != nil:
		s.metrics.requestsGet.Inc()
		value, ok, err := eng.Get(req.Get.Key)
		if err != nil {
			return proto.Err(err.Error())
		}
		if !ok {
			return proto.OKGet(nil)
		}
		str := string(value)
		return proto.OKGet(&str)

	case req.Set != nil:
		s.metrics.requestsSet.Inc()
		if err := eng.Set(req.Set.Key, []byte(req.Set.Value)); err != nil {
			return proto.Err(err.Error())
		}
		return proto.OKSet()

	case req.Remove != nil:
		s.metrics.requestsRemove.Inc()
		if err := eng.Remove(req.Remove.Key); err != nil {
			if errors.Is(err, kverrors.ErrKeyNotFound) {
				return proto.Err("Key not found")
			}
			return proto.Err(err.Error())
		}
		return proto.OKRemove()

	default:
		return proto.Err("unrecognized request")
	}
}
