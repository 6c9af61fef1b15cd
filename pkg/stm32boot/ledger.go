// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stm32boot

// Ledger holds the opcodes a target declared in its GET reply, in discovery
// order. Duplicates are kept as reported.
type Ledger struct {
	opcodes []byte
}

// NewLedger creates a ledger from a list of opcodes, truncated to MaxCommands
func NewLedger(ops ...byte) Ledger {
	var l Ledger
	for _, op := range ops {
		l.Add(op)
	}
	return l
}

// Add appends op unless the ledger is full
func (l *Ledger) Add(op byte) bool {
	if len(l.opcodes) >= MaxCommands {
		return false
	}
	l.opcodes = append(l.opcodes, op)
	return true
}

// Contains reports whether the target declared op
func (l Ledger) Contains(op byte) bool {
	for _, o := range l.opcodes {
		if o == op {
			return true
		}
	}
	return false
}

// Len returns the number of recorded opcodes
func (l Ledger) Len() int {
	return len(l.opcodes)
}

// Opcodes returns a copy of the recorded opcodes
func (l Ledger) Opcodes() []byte {
	out := make([]byte, len(l.opcodes))
	copy(out, l.opcodes)
	return out
}

// Commands returns the recorded opcodes resolved to named commands.
// Opcodes outside the well-known set are named by their hex value.
func (l Ledger) Commands() []Command {
	out := make([]Command, 0, len(l.opcodes))
	for _, op := range l.opcodes {
		c, ok := LookupCommand(op)
		if !ok {
			c = Command{Opcode: op, Name: FormatOpcode(op)}
		}
		out = append(out, c)
	}
	return out
}

// Clear empties the ledger
func (l *Ledger) Clear() {
	l.opcodes = nil
}

// Clone returns an independent copy
func (l Ledger) Clone() Ledger {
	return Ledger{opcodes: l.Opcodes()}
}
