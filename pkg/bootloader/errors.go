// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/stboot/pkg/stm32boot"
)

var (
	// ErrBusy is returned when a command is issued while another one is in flight
	ErrBusy = errors.New("another bootloader command is in flight")

	// ErrSessionClosed is returned for work submitted to a closed session
	ErrSessionClosed = errors.New("session closed")

	// ErrNotConnected is returned when a session has no live connection
	ErrNotConnected = errors.New("not connected")

	// ErrImageTooLarge is returned when a firmware file does not fit the configured page range
	ErrImageTooLarge = errors.New("firmware image larger than the configured flash range")
)

// noPage marks errors that are not tied to a page transfer
const noPage = -1

// PreconditionError is returned when a command is rejected before any byte is
// sent because discovery prerequisites are unmet.
type PreconditionError struct {
	Command stm32boot.Command
	Need    string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s rejected: %s required", e.Command.Name, e.Need)
}

// ProtocolError is a command-level failure: the target replied NACK, sent an
// unexpected byte or stayed silent. The connection remains usable.
type ProtocolError struct {
	Command stm32boot.Command
	Step    string
	Page    int // -1 when not in a page transfer
	Offset  int
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Page >= 0 {
		return fmt.Sprintf("%s %s failed at page %d offset %d: %v", e.Command.Name, e.Step, e.Page, e.Offset, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Command.Name, e.Step, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Kind returns "nack", "timeout" or "unexpected"
func (e *ProtocolError) Kind() string {
	return stm32boot.ReplyKind(e.Err)
}

// TransportError is an I/O failure on the link. It is fatal to the
// connection: the caller must reconnect and restart from INIT.
type TransportError struct {
	Command stm32boot.Command
	Op      string
	Page    int
	Err     error
}

func (e *TransportError) Error() string {
	if e.Page >= 0 {
		return fmt.Sprintf("%s: transport %s failed at page %d: %v", e.Command.Name, e.Op, e.Page, e.Err)
	}
	return fmt.Sprintf("%s: transport %s failed: %v", e.Command.Name, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FileError reports a firmware file that could not be opened, read or written.
// It is raised before the transport is touched.
type FileError struct {
	Path string
	Op   string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err leaves the connection unusable
func IsFatal(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// failureLocation extracts the page and offset a failure occurred at
func failureLocation(err error) (page, offset int) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Page, pe.Offset
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Page, 0
	}
	return noPage, 0
}
