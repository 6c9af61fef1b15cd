// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stm32boot

import (
	"errors"
	"fmt"
)

// Reply errors returned where an ACK was expected
var (
	// ErrNack is returned when the target rejected a step with 0x1F
	ErrNack = errors.New("NACK")

	// ErrTimeout is returned when the target sent nothing before the deadline
	ErrTimeout = errors.New("timeout waiting for reply")
)

// UnexpectedByteError is returned when a byte other than ACK or NACK arrives
// where an acknowledgement was expected. It usually means the link lost sync.
type UnexpectedByteError struct {
	Got byte
}

func (e *UnexpectedByteError) Error() string {
	return fmt.Sprintf("unexpected byte 0x%02X (expected ACK 0x%02X)", e.Got, Ack)
}

// ReplyKind classifies a failed acknowledgement for logging
func ReplyKind(err error) string {
	var unexpected *UnexpectedByteError
	switch {
	case err == nil:
		return "ack"
	case errors.Is(err, ErrNack):
		return "nack"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &unexpected):
		return "unexpected"
	default:
		return "io"
	}
}
