// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stm32boot

// Range is a half-open address range [Start, End)
type Range struct {
	Start uint32
	End   uint32
}

// Size returns the number of bytes in the range
func (r Range) Size() uint32 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// Contains reports whether addr falls inside the range
func (r Range) Contains(addr uint32) bool {
	return addr >= r.Start && addr < r.End
}

// Device describes the memory layout of an STM32 part as reported by GID
type Device struct {
	ID             uint16
	Name           string
	RAM            Range // RAM usable by the bootloader host
	Flash          Range
	OptionBytes    Range
	SystemMemory   Range
	PageSize       uint32 // Erase page size in bytes
	PagesPerSector uint32 // Pages covered by one write-protection sector
}

// FlashPages returns the number of 256-byte transfer pages covering flash
func (d Device) FlashPages() int {
	return int(d.Flash.Size() / PageSize)
}

// devices is the static descriptor table, keyed by product ID
var devices = []Device{
	// F0
	{0x440, "STM32F030x8/F05xxx", Range{0x20000800, 0x20002000}, Range{0x08000000, 0x08010000}, Range{0x1FFFF800, 0x1FFFF80F}, Range{0x1FFFEC00, 0x1FFFF800}, 1024, 4},
	{0x442, "STM32F030xC/F09xxx", Range{0x20001800, 0x20008000}, Range{0x08000000, 0x08040000}, Range{0x1FFFF800, 0x1FFFF80F}, Range{0x1FFFD800, 0x1FFFF800}, 2048, 2},
	{0x444, "STM32F03xx4/6", Range{0x20000800, 0x20001000}, Range{0x08000000, 0x08008000}, Range{0x1FFFF800, 0x1FFFF80F}, Range{0x1FFFEC00, 0x1FFFF800}, 1024, 4},
	{0x448, "STM32F070xB/F071xx/F072xx", Range{0x20001800, 0x20004000}, Range{0x08000000, 0x08020000}, Range{0x1FFFF800, 0x1FFFF80F}, Range{0x1FFFC800, 0x1FFFF800}, 2048, 2},

	// F1
	{0x412, "STM32F10xxx Low-density", Range{0x20000200, 0x20002800}, Range{0x08000000, 0x08008000}, Range{0x1FFFF800, 0x1FFFF80F}, Range{0x1FFFF000, 0x1FFFF800}, 1024, 4},
	{0x410, "STM32F10xxx Medium-density", Range{0x20000200, 0x20005000}, Range{0x08000000, 0x08020000}, Range{0x1FFFF800, 0x1FFFF80F}, Range{0x1FFFF000, 0x1FFFF800}, 1024, 4},
	{0x414, "STM32F10xxx High-density", Range{0x20000200, 0x20010000}, Range{0x08000000, 0x08080000}, Range{0x1FFFF800, 0x1FFFF80F}, Range{0x1FFFF000, 0x1FFFF800}, 2048, 2},
	{0x420, "STM32F10xxx Medium-density VL", Range{0x20000200, 0x20002000}, Range{0x08000000, 0x08020000}, Range{0x1FFFF800, 0x1FFFF80F}, Range{0x1FFFF000, 0x1FFFF800}, 1024, 4},
	{0x428, "STM32F10xxx High-density VL", Range{0x20000200, 0x20008000}, Range{0x08000000, 0x08080000}, Range{0x1FFFF800, 0x1FFFF80F}, Range{0x1FFFF000, 0x1FFFF800}, 2048, 2},
	{0x418, "STM32F105xx/F107xx", Range{0x20001000, 0x20010000}, Range{0x08000000, 0x08040000}, Range{0x1FFFF800, 0x1FFFF80F}, Range{0x1FFFB000, 0x1FFFF800}, 2048, 2},
	{0x430, "STM32F10xxx XL-density", Range{0x20000800, 0x20018000}, Range{0x08000000, 0x08100000}, Range{0x1FFFF800, 0x1FFFF80F}, Range{0x1FFFE000, 0x1FFFF800}, 2048, 2},

	// F2 / F4 (sector based; page size is the smallest sector)
	{0x411, "STM32F2xxxx", Range{0x20002000, 0x20020000}, Range{0x08000000, 0x08100000}, Range{0x1FFFC000, 0x1FFFC00F}, Range{0x1FFF0000, 0x1FFF7800}, 16384, 1},
	{0x413, "STM32F40xxx/41xxx", Range{0x20003000, 0x20020000}, Range{0x08000000, 0x08100000}, Range{0x1FFFC000, 0x1FFFC00F}, Range{0x1FFF0000, 0x1FFF7800}, 16384, 1},
	{0x419, "STM32F42xxx/43xxx", Range{0x20003000, 0x20030000}, Range{0x08000000, 0x08200000}, Range{0x1FFEC000, 0x1FFFC00F}, Range{0x1FFF0000, 0x1FFF7800}, 16384, 1},
	{0x423, "STM32F401xB/C", Range{0x20003000, 0x20010000}, Range{0x08000000, 0x08040000}, Range{0x1FFFC000, 0x1FFFC00F}, Range{0x1FFF0000, 0x1FFF7800}, 16384, 1},
	{0x433, "STM32F401xD/E", Range{0x20003000, 0x20018000}, Range{0x08000000, 0x08080000}, Range{0x1FFFC000, 0x1FFFC00F}, Range{0x1FFF0000, 0x1FFF7800}, 16384, 1},
	{0x431, "STM32F411xx", Range{0x20003000, 0x20020000}, Range{0x08000000, 0x08080000}, Range{0x1FFFC000, 0x1FFFC00F}, Range{0x1FFF0000, 0x1FFF7800}, 16384, 1},
	{0x421, "STM32F446xx", Range{0x20003000, 0x20020000}, Range{0x08000000, 0x08080000}, Range{0x1FFFC000, 0x1FFFC00F}, Range{0x1FFF0000, 0x1FFF7800}, 16384, 1},
	{0x434, "STM32F469xx/479xx", Range{0x20003000, 0x20060000}, Range{0x08000000, 0x08200000}, Range{0x1FFEC000, 0x1FFFC00F}, Range{0x1FFF0000, 0x1FFF7800}, 16384, 1},

	// F3
	{0x422, "STM32F302xB/C/F303xB/C/F358xx", Range{0x20001400, 0x2000A000}, Range{0x08000000, 0x08040000}, Range{0x1FFFF800, 0x1FFFF80F}, Range{0x1FFFD800, 0x1FFFF800}, 2048, 2},
	{0x432, "STM32F37xxx/F38xxx", Range{0x20001400, 0x20008000}, Range{0x08000000, 0x08040000}, Range{0x1FFFF800, 0x1FFFF80F}, Range{0x1FFFD800, 0x1FFFF800}, 2048, 2},
	{0x438, "STM32F303x4/6/8/F334xx/F328xx", Range{0x20001800, 0x20003000}, Range{0x08000000, 0x08010000}, Range{0x1FFFF800, 0x1FFFF80F}, Range{0x1FFFD800, 0x1FFFF800}, 2048, 2},

	// L0 / L1 / L4
	{0x417, "STM32L05xxx/06xxx", Range{0x20001000, 0x20002000}, Range{0x08000000, 0x08010000}, Range{0x1FF80000, 0x1FF8000F}, Range{0x1FF00000, 0x1FF01000}, 128, 32},
	{0x425, "STM32L031xx/041xx", Range{0x20001000, 0x20002000}, Range{0x08000000, 0x08008000}, Range{0x1FF80000, 0x1FF8000F}, Range{0x1FF00000, 0x1FF01000}, 128, 32},
	{0x416, "STM32L1xxx6/8/B", Range{0x20000800, 0x20004000}, Range{0x08000000, 0x08020000}, Range{0x1FF80000, 0x1FF8000F}, Range{0x1FF00000, 0x1FF01000}, 256, 16},
	{0x427, "STM32L1xxxC", Range{0x20001000, 0x20008000}, Range{0x08000000, 0x08040000}, Range{0x1FF80000, 0x1FF8001F}, Range{0x1FF00000, 0x1FF02000}, 256, 16},
	{0x436, "STM32L1xxxD", Range{0x20001000, 0x2000C000}, Range{0x08000000, 0x08060000}, Range{0x1FF80000, 0x1FF8009F}, Range{0x1FF00000, 0x1FF02000}, 256, 16},
	{0x437, "STM32L1xxxE", Range{0x20001000, 0x20014000}, Range{0x08000000, 0x08080000}, Range{0x1FF80000, 0x1FF8009F}, Range{0x1FF00000, 0x1FF02000}, 256, 16},
	{0x415, "STM32L47x/48x", Range{0x20003100, 0x20018000}, Range{0x08000000, 0x08100000}, Range{0x1FFF7800, 0x1FFFF80F}, Range{0x1FFF0000, 0x1FFF7000}, 2048, 1},
}

// LookupDevice finds the descriptor for a product ID.
// Not finding an ID is a valid outcome for parts missing from the table.
func LookupDevice(id uint16) (Device, bool) {
	for _, d := range devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

// Devices returns a copy of the descriptor table
func Devices() []Device {
	out := make([]Device, len(devices))
	copy(out, devices)
	return out
}
