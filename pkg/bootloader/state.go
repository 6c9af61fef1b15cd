// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"time"

	"github.com/Thermoquad/stboot/pkg/stm32boot"
)

// Stage is how far discovery has progressed on the current connection.
// Stages are ordered: each one implies the previous.
type Stage int

const (
	StageUnsynced     Stage = iota // No successful INIT yet
	StageSynced                    // INIT acknowledged
	StageCommandsRead              // GET completed, ledger populated
	StageIdentified                // GID completed
)

func (s Stage) String() string {
	switch s {
	case StageUnsynced:
		return "unsynced"
	case StageSynced:
		return "synced"
	case StageCommandsRead:
		return "commands read"
	case StageIdentified:
		return "identified"
	default:
		return "unknown"
	}
}

// ReadProtection holds the GVRP reply
type ReadProtection struct {
	Version byte
	Option1 byte
	Option2 byte
}

// EraseResult records a completed mass erase
type EraseResult struct {
	Elapsed time.Duration
}

// ReadResult records a completed READ
type ReadResult struct {
	Path    string
	Pages   int
	Bytes   int
	Stopped bool // Ended early on an empty run
	Elapsed time.Duration
}

// WriteResult records a completed WRITE
type WriteResult struct {
	Path    string
	Pages   int
	Bytes   int // Source bytes sent, excluding 0xFF padding
	Elapsed time.Duration
}

// State is a snapshot of what the engine knows about the target
type State struct {
	Stage    Stage
	Version  byte // From GET
	Commands stm32boot.Ledger

	Protection *ReadProtection

	ProductID []byte
	DeviceID  uint16
	Device    *stm32boot.Device // nil when the ID is not in the table

	Erase *EraseResult
	Read  *ReadResult
	Write *WriteResult

	// Set by an acknowledged INIT or GET, cleared by a failed INIT
	synced bool
}

// Synced reports whether the last INIT, or a later GET, was acknowledged
func (s State) Synced() bool {
	return s.synced
}

// Supports reports whether GET declared op
func (s State) Supports(op byte) bool {
	return s.Stage >= StageCommandsRead && s.Commands.Contains(op)
}

// clone returns a snapshot that does not share mutable storage
func (s State) clone() State {
	c := s
	c.Commands = s.Commands.Clone()
	if s.ProductID != nil {
		c.ProductID = append([]byte(nil), s.ProductID...)
	}
	return c
}
