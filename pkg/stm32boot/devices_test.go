// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stm32boot

import "testing"

func TestDeviceTable(t *testing.T) {
	table := Devices()
	if len(table) != 29 {
		t.Fatalf("device table has %d entries, want 29", len(table))
	}

	seen := make(map[uint16]bool)
	for _, d := range table {
		if seen[d.ID] {
			t.Errorf("duplicate device ID 0x%03X", d.ID)
		}
		seen[d.ID] = true

		if d.Flash.Start != FlashBase {
			t.Errorf("%s: flash starts at 0x%08X", d.Name, d.Flash.Start)
		}
		if d.Flash.Size() == 0 || d.RAM.Size() == 0 {
			t.Errorf("%s: empty memory range", d.Name)
		}
		if d.PageSize == 0 {
			t.Errorf("%s: zero page size", d.Name)
		}
	}
}

func TestLookupDevice(t *testing.T) {
	d, ok := LookupDevice(0x413)
	if !ok {
		t.Fatal("0x413 not found")
	}
	if d.Flash.Size() != 1024*1024 {
		t.Errorf("F40x flash size = %d", d.Flash.Size())
	}
	if d.FlashPages() != 4096 {
		t.Errorf("F40x FlashPages() = %d", d.FlashPages())
	}

	if _, ok := LookupDevice(0xFFF); ok {
		t.Error("unknown ID resolved")
	}
}

func TestDevicesIsCopy(t *testing.T) {
	table := Devices()
	table[0].Name = "changed"
	d, _ := LookupDevice(table[0].ID)
	if d.Name == "changed" {
		t.Error("Devices() exposes the internal table")
	}
}

func TestRange(t *testing.T) {
	r := Range{0x100, 0x200}
	if !r.Contains(0x100) || r.Contains(0x200) {
		t.Error("Range must be half-open")
	}
	if (Range{0x200, 0x100}).Size() != 0 {
		t.Error("inverted range must be empty")
	}
}
