// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/stboot/pkg/stm32boot"
)

// Statistics tracks command outcomes and transfer throughput.
// It is not safe for concurrent use; Session guards its own copy.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	Commands           uint64
	Succeeded          uint64
	Failed             uint64
	Nacks              uint64
	Timeouts           uint64
	UnexpectedBytes    uint64
	TransportErrors    uint64
	PreconditionErrors uint64
	FileErrors         uint64

	BytesRead    uint64
	BytesWritten uint64
	PagesRead    uint64
	PagesWritten uint64

	// Rates (calculated)
	ByteRate float64 // bytes/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update folds an engine event into the counters
func (s *Statistics) Update(ev Event) {
	switch ev := ev.(type) {
	case Progress:
		switch ev.Command.Opcode {
		case stm32boot.OpReadMemory:
			s.BytesRead++
			if ev.PageComplete {
				s.PagesRead++
			}
		case stm32boot.OpWriteMemory:
			s.BytesWritten++
			if ev.PageComplete {
				s.PagesWritten++
			}
		}
	case Completion:
		s.Commands++
		if ev.Err == nil {
			s.Succeeded++
		} else {
			s.Failed++
			s.classify(ev.Err)
		}
	}
	s.LastUpdateTime = time.Now()
}

func (s *Statistics) classify(err error) {
	var (
		pe *ProtocolError
		te *TransportError
		ce *PreconditionError
		fe *FileError
	)
	switch {
	case errors.As(err, &pe):
		switch pe.Kind() {
		case "nack":
			s.Nacks++
		case "timeout":
			s.Timeouts++
		default:
			s.UnexpectedBytes++
		}
	case errors.As(err, &te):
		s.TransportErrors++
	case errors.As(err, &ce):
		s.PreconditionErrors++
	case errors.As(err, &fe):
		s.FileErrors++
	}
}

// CalculateRates calculates transfer throughput
func (s *Statistics) CalculateRates() {
	elapsed := s.LastUpdateTime.Sub(s.StartTime).Seconds()
	if elapsed > 0 {
		s.ByteRate = float64(s.BytesRead+s.BytesWritten) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	elapsed := s.LastUpdateTime.Sub(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.1f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Commands:        %8d\n", s.Commands)
	result += fmt.Sprintf("Succeeded:       %8d\n", s.Succeeded)

	if s.Failed > 0 {
		result += fmt.Sprintf("Failed:          %8d\n", s.Failed)
		if s.Nacks > 0 {
			result += fmt.Sprintf("  NACK:             %5d\n", s.Nacks)
		}
		if s.Timeouts > 0 {
			result += fmt.Sprintf("  Timeout:          %5d\n", s.Timeouts)
		}
		if s.UnexpectedBytes > 0 {
			result += fmt.Sprintf("  Unexpected byte:  %5d\n", s.UnexpectedBytes)
		}
		if s.TransportErrors > 0 {
			result += fmt.Sprintf("  Transport:        %5d\n", s.TransportErrors)
		}
		if s.PreconditionErrors > 0 {
			result += fmt.Sprintf("  Precondition:     %5d\n", s.PreconditionErrors)
		}
		if s.FileErrors > 0 {
			result += fmt.Sprintf("  File:             %5d\n", s.FileErrors)
		}
	}
	if s.PagesRead > 0 {
		result += fmt.Sprintf("Read:            %8d bytes (%d pages)\n", s.BytesRead, s.PagesRead)
	}
	if s.PagesWritten > 0 {
		result += fmt.Sprintf("Written:         %8d bytes (%d pages)\n", s.BytesWritten, s.PagesWritten)
	}

	result += fmt.Sprintf("Throughput:      %8.1f bytes/sec\n", s.ByteRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
