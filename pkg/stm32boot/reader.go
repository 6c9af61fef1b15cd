// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stm32boot

import (
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// Conn is the transport the bootloader protocol runs over: a reliable,
// ordered, duplex byte stream.
//
// Read must honor the timeout set by SetReadTimeout and return (0, nil) or a
// timeout error when no data arrived in time. ResetInput discards any bytes
// already received but not yet read.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
	SetReadTimeout(t time.Duration) error
	ResetInput() error
}

// ReadWithTimeout reads into buf until it is full or the timeout elapses.
// It returns the number of bytes obtained, which may be short. A transport
// timeout is not an error; only genuine I/O failures are returned.
func ReadWithTimeout(conn Conn, buf []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	n := 0
	for n < len(buf) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := conn.SetReadTimeout(remaining); err != nil {
			return n, err
		}
		m, err := conn.Read(buf[n:])
		n += m
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return n, err
		}
	}
	return n, nil
}

// ReadFull reads exactly len(buf) bytes or fails with ErrTimeout
func ReadFull(conn Conn, buf []byte, timeout time.Duration) error {
	n, err := ReadWithTimeout(conn, buf, timeout)
	if err != nil {
		return err
	}
	if n < len(buf) {
		return ErrTimeout
	}
	return nil
}

// ReadByte reads a single byte within timeout
func ReadByte(conn Conn, timeout time.Duration) (byte, error) {
	var b [1]byte
	if err := ReadFull(conn, b[:], timeout); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ExpectAck waits for one acknowledgement byte.
// Returns nil on ACK, ErrNack on NACK, ErrTimeout when nothing arrived, an
// *UnexpectedByteError for any other byte, or the transport error.
func ExpectAck(conn Conn, timeout time.Duration) error {
	b, err := ReadByte(conn, timeout)
	if err != nil {
		return err
	}
	return ClassifyReply(b)
}

// ClassifyReply maps a reply byte to its acknowledgement error
func ClassifyReply(b byte) error {
	switch b {
	case Ack:
		return nil
	case Nack:
		return ErrNack
	default:
		return &UnexpectedByteError{Got: b}
	}
}

// IsReplyError reports whether err is a protocol-level reply failure rather
// than a transport failure.
func IsReplyError(err error) bool {
	var unexpected *UnexpectedByteError
	return errors.Is(err, ErrNack) || errors.Is(err, ErrTimeout) || errors.As(err, &unexpected)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
