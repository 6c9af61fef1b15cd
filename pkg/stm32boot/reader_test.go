// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stm32boot

import (
	"errors"
	"io"
	"os"
	"testing"
	"time"
)

// scriptConn replays a fixed reply stream. Once drained it behaves like a
// silent serial port: each Read blocks for the read timeout and returns 0.
type scriptConn struct {
	replies []byte
	written []byte
	timeout time.Duration
	readErr error
	chunk   int
}

func (c *scriptConn) Read(p []byte) (int, error) {
	if c.readErr != nil {
		return 0, c.readErr
	}
	if len(c.replies) == 0 {
		time.Sleep(c.timeout)
		return 0, nil
	}
	n := len(p)
	if c.chunk > 0 && n > c.chunk {
		n = c.chunk
	}
	n = copy(p[:n], c.replies)
	c.replies = c.replies[n:]
	return n, nil
}

func (c *scriptConn) Write(p []byte) (int, error) {
	c.written = append(c.written, p...)
	return len(p), nil
}

func (c *scriptConn) Close() error { return nil }

func (c *scriptConn) SetReadTimeout(t time.Duration) error {
	c.timeout = t
	return nil
}

func (c *scriptConn) ResetInput() error {
	c.replies = nil
	return nil
}

func TestReadWithTimeoutSilent(t *testing.T) {
	conn := &scriptConn{}
	timeout := 50 * time.Millisecond

	start := time.Now()
	n, err := ReadWithTimeout(conn, make([]byte, 4), timeout)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("got %d bytes, want 0", n)
	}
	if elapsed < timeout || elapsed > timeout+200*time.Millisecond {
		t.Errorf("elapsed %v outside tolerance of %v", elapsed, timeout)
	}
}

func TestReadWithTimeoutChunked(t *testing.T) {
	conn := &scriptConn{replies: []byte{1, 2, 3, 4, 5}, chunk: 2}
	buf := make([]byte, 5)

	n, err := ReadWithTimeout(conn, buf, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 5 {
		t.Fatalf("got %d bytes, want 5", n)
	}
	for i, b := range buf {
		if b != byte(i+1) {
			t.Errorf("buf[%d] = %d", i, b)
		}
	}
}

func TestReadWithTimeoutDeadlineErrorIsNotFailure(t *testing.T) {
	conn := &scriptConn{readErr: os.ErrDeadlineExceeded}
	n, err := ReadWithTimeout(conn, make([]byte, 1), 20*time.Millisecond)
	if err != nil || n != 0 {
		t.Errorf("got (%d, %v), want (0, nil)", n, err)
	}
}

func TestReadWithTimeoutTransportError(t *testing.T) {
	conn := &scriptConn{readErr: io.ErrUnexpectedEOF}
	_, err := ReadWithTimeout(conn, make([]byte, 1), time.Second)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("got %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestExpectAck(t *testing.T) {
	tests := []struct {
		name    string
		replies []byte
		kind    string
	}{
		{"ack", []byte{Ack}, "ack"},
		{"nack", []byte{Nack}, "nack"},
		{"garbage", []byte{0x42}, "unexpected"},
		{"silent", nil, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &scriptConn{replies: tt.replies}
			err := ExpectAck(conn, 20*time.Millisecond)
			if got := ReplyKind(err); got != tt.kind {
				t.Errorf("ReplyKind = %q, want %q (err %v)", got, tt.kind, err)
			}
			if err != nil && !IsReplyError(err) {
				t.Errorf("IsReplyError(%v) = false", err)
			}
		})
	}
}

func TestReplyKindTransport(t *testing.T) {
	if got := ReplyKind(io.EOF); got != "io" {
		t.Errorf("ReplyKind(io.EOF) = %q, want io", got)
	}
	if IsReplyError(io.EOF) {
		t.Error("io.EOF must not be a reply error")
	}
}
