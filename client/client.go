// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package client implements the single-shot TCP client for kvserver: each
// call to Get/Set/Remove dials, sends exactly one request, awaits exactly
// one response, and closes the connection, matching the lockstep
// request/response protocol in internal/proto (spec.md §4.H).
package client

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dreamsxin/kvs/internal/kverrors"
	"github.com/dreamsxin/kvs/internal/proto"
)

// ErrServer wraps the message carried by a Response.Err frame. Callers
// must not parse Message; it is an opaque, human-readable string from the
// server (spec.md §6 "Error messages are opaque").
type ErrServer struct {
	Message string
}

func (e *ErrServer) Error() string { return e.Message }

// Config holds Client construction options, built with the functional
// Option pattern used throughout this codebase.
type Config struct {
	DialTimeout time.Duration
	NewCodec    func(net.Conn) proto.Codec
}

// Option mutates a Config during Connect.
type Option func(*Config)

// WithDialTimeout bounds how long Connect waits for the TCP handshake.
// Zero (the default) means no timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) { c.DialTimeout = d }
}

// WithCodec overrides the wire framing. Defaults to proto.NewFramedCodec,
// matching kvserver.Server's default so an unconfigured Client/Server pair
// is automatically compatible.
func WithCodec(newCodec func(net.Conn) proto.Codec) Option {
	return func(c *Config) { c.NewCodec = newCodec }
}

func defaultConfig() Config {
	return Config{NewCodec: func(conn net.Conn) proto.Codec { return proto.NewFramedCodec(conn) }}
}

// Client talks to one kvserver.Server over addr. It holds no connection
// between calls -- per spec.md §4.H this is a deliberate design choice, not
// an oversight, matching the protocol's explicit non-goal of pipelining or
// connection pooling.
type Client struct {
	addr string
	cfg  Config
}

// Connect validates addr is dialable and returns a Client bound to it. It
// does not keep the connection open; each subsequent Get/Set/Remove dials
// its own.
func Connect(addr string, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	conn, err := dial(addr, cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("client: connect %s: %w", addr, err)
	}
	conn.Close()

	return &Client{addr: addr, cfg: cfg}, nil
}

func dial(addr string, timeout time.Duration) (net.Conn, error) {
	if timeout > 0 {
		return net.DialTimeout("tcp", addr, timeout)
	}
	return net.Dial("tcp", addr)
}

func (c *Client) call(req proto.Request) (proto.Response, error) {
	conn, err := dial(c.addr, c.cfg.DialTimeout)
	if err != nil {
		return proto.Response{}, fmt.Errorf("client: dial %s: %w", c.addr, err)
	}
	defer conn.Close()

	codec := c.cfg.NewCodec(conn)
	if err := codec.WriteRequest(req); err != nil {
		return proto.Response{}, fmt.Errorf("client: send request: %w", err)
	}
	resp, err := codec.ReadResponse()
	if err != nil {
		return proto.Response{}, fmt.Errorf("client: read response: %w", err)
	}
	return resp, nil
}

// Get fetches key, returning ok=false if the server reports no value for it.
func (c *Client) Get(key string) (value string, ok bool, err error) {
	resp, err := c.call(proto.NewGet(key))
	if err != nil {
		return "", false, err
	}
	switch {
	case resp.Err != nil:
		return "", false, &ErrServer{Message: resp.Err.Message}
	case resp.Get != nil:
		if resp.Get.Value == nil {
			return "", false, nil
		}
		return *resp.Get.Value, true, nil
	default:
		return "", false, fmt.Errorf("client: get %q: %w", key, kverrors.ErrWrongCommand)
	}
}

// Set installs value for key.
func (c *Client) Set(key, value string) error {
	resp, err := c.call(proto.NewSet(key, value))
	if err != nil {
		return err
	}
	switch {
	case resp.Err != nil:
		return &ErrServer{Message: resp.Err.Message}
	case resp.Set != nil:
		return nil
	default:
		return fmt.Errorf("client: set %q: %w", key, kverrors.ErrWrongCommand)
	}
}

// Remove deletes key. If the server reports the key was absent, the
// returned error satisfies errors.As to an *ErrServer whose Message came
// from the server (spec.md §6 "rm" of a missing key is a non-zero exit
// with the server-provided message).
func (c *Client) Remove(key string) error {
	resp, err := c.call(proto.NewRemove(key))
	if err != nil {
		return err
	}
	switch {
	case resp.Err != nil:
		return &ErrServer{Message: resp.Err.Message}
	case resp.Remove != nil:
		return nil
	default:
		return fmt.Errorf("client: remove %q: %w", key, kverrors.ErrWrongCommand)
	}
}

// IsServerError reports whether err is (or wraps) an *ErrServer, and
// returns its message.
func IsServerError(err error) (message string, ok bool) {
	var se *ErrServer
	if errors.As(err, &se) {
		return se.Message, true
	}
	return "", false
}
