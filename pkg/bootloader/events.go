// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"time"

	"github.com/Thermoquad/stboot/pkg/stm32boot"
)

// Event is emitted by the engine while commands run: either a Progress or a
// Completion.
type Event interface {
	event()
}

// Progress reports a position inside a page transfer.
//
// READ reports every byte received; WRITE reports once per acknowledged page
// with Offset equal to the page length.
type Progress struct {
	Command stm32boot.Command
	Page    int
	Offset  int
	Pages   int // Upper bound of pages in this transfer
	Bytes   int // Bytes transferred so far
	Total   int // Total bytes expected, 0 when unknown

	// PageComplete is set on the event that finishes a page
	PageComplete bool
}

// Percentage returns the completed fraction in the range 0..1
func (p Progress) Percentage() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Bytes) / float64(p.Total)
	if f > 1 {
		return 1
	}
	return f
}

// Completion reports the outcome of one command
type Completion struct {
	Command stm32boot.Command
	Err     error
	Page    int // Failure page, -1 when not applicable
	Offset  int
	Elapsed time.Duration
}

// OK reports whether the command succeeded
func (c Completion) OK() bool {
	return c.Err == nil
}

func (Progress) event()   {}
func (Completion) event() {}

// ProgressCallback is called during page transfers
type ProgressCallback func(Progress)

// CompletionCallback is called once per finished command
type CompletionCallback func(Completion)
