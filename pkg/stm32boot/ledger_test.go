// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stm32boot

import (
	"strings"
	"testing"
)

func TestLedger(t *testing.T) {
	l := NewLedger(OpGet, OpGetVersion, OpGetID)

	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}
	if !l.Contains(OpGetID) {
		t.Error("ledger should contain GID")
	}
	if l.Contains(OpWriteMemory) {
		t.Error("ledger should not contain WRITE")
	}

	clone := l.Clone()
	l.Clear()
	if l.Len() != 0 {
		t.Error("Clear() left opcodes behind")
	}
	if clone.Len() != 3 {
		t.Error("Clone() shares storage with the original")
	}
}

func TestLedgerCapacity(t *testing.T) {
	var l Ledger
	for i := 0; i < MaxCommands; i++ {
		if !l.Add(byte(i)) {
			t.Fatalf("Add(%d) rejected before capacity", i)
		}
	}
	if l.Add(0xAA) {
		t.Error("Add accepted an opcode past capacity")
	}
	if l.Len() != MaxCommands {
		t.Errorf("Len() = %d, want %d", l.Len(), MaxCommands)
	}
}

func TestLedgerOpcodesIsCopy(t *testing.T) {
	l := NewLedger(OpGet)
	ops := l.Opcodes()
	ops[0] = 0x99
	if !l.Contains(OpGet) {
		t.Error("mutating Opcodes() result changed the ledger")
	}
}

func TestFormatLedger(t *testing.T) {
	if got := FormatLedger(Ledger{}); got != "(none)" {
		t.Errorf("empty ledger = %q", got)
	}
	got := FormatLedger(NewLedger(OpGet, 0x55))
	if !strings.Contains(got, "GET(0x00)") || !strings.Contains(got, "UNKNOWN(0x55)(0x55)") {
		t.Errorf("FormatLedger = %q", got)
	}
}

func TestFormatVersion(t *testing.T) {
	if got := FormatVersion(0x31); got != "3.1" {
		t.Errorf("FormatVersion(0x31) = %q", got)
	}
}

func TestFormatHex(t *testing.T) {
	data := make([]byte, 17)
	got := FormatHex(data)
	if strings.Count(got, "\n") != 1 {
		t.Errorf("expected one line break in %q", got)
	}
	if FormatReply(Ack) != "ACK" || FormatReply(Nack) != "NACK" || FormatReply(0x42) != "0x42" {
		t.Error("FormatReply mismatch")
	}
}
