// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package proto

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFramedCodecRoundTrip(t *testing.T) {
	testCodecRoundTrip(t, func(rw *bytes.Buffer) Codec { return NewFramedCodec(rw) })
}

func TestStreamCodecRoundTrip(t *testing.T) {
	testCodecRoundTrip(t, func(rw *bytes.Buffer) Codec { return NewStreamCodec(rw) })
}

func testCodecRoundTrip(t *testing.T, newCodec func(*bytes.Buffer) Codec) {
	t.Helper()
	var buf bytes.Buffer
	c := newCodec(&buf)

	req := NewSet("k", "v")
	require.NoError(t, c.WriteRequest(req))
	got, err := c.ReadRequest()
	require.NoError(t, err)
	require.Equal(t, req, got)

	value := "v"
	resp := OKGet(&value)
	require.NoError(t, c.WriteResponse(resp))
	gotResp, err := c.ReadResponse()
	require.NoError(t, err)
	require.Equal(t, resp, gotResp)
}

func TestFramedCodecLockstepOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn, err := ln.Accept()
		require.NoError(t, err)
		defer conn.Close()

		codec := NewFramedCodec(conn)
		req, err := codec.ReadRequest()
		require.NoError(t, err)
		require.NotNil(t, req.Get)
		require.Equal(t, "hello", req.Get.Key)

		value := "world"
		require.NoError(t, codec.WriteResponse(OKGet(&value)))
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	codec := NewFramedCodec(conn)
	require.NoError(t, codec.WriteRequest(NewGet("hello")))
	resp, err := codec.ReadResponse()
	require.NoError(t, err)
	require.NotNil(t, resp.Get)
	require.Equal(t, "world", *resp.Get.Value)

	<-serverDone
}

func TestErrResponse(t *testing.T) {
	var buf bytes.Buffer
	c := NewFramedCodec(&buf)
	require.NoError(t, c.WriteResponse(Err("key not found")))
	resp, err := c.ReadResponse()
	require.NoError(t, err)
	require.NotNil(t, resp.Err)
	require.Equal(t, "key not found", resp.Err.Message)
}
