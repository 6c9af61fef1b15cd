// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stm32boot

import (
	"fmt"
	"strings"
)

// FormatOpcode returns the human-readable name for an opcode
func FormatOpcode(op byte) string {
	if c, ok := LookupCommand(op); ok {
		return c.Name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", op)
}

// FormatReply returns the human-readable name for a reply byte
func FormatReply(b byte) string {
	switch b {
	case Ack:
		return "ACK"
	case Nack:
		return "NACK"
	default:
		return fmt.Sprintf("0x%02X", b)
	}
}

// FormatVersion renders a bootloader version byte as major.minor (0x31 -> "3.1")
func FormatVersion(v byte) string {
	return fmt.Sprintf("%d.%d", v>>4, v&0x0F)
}

// FormatLedger renders the ledger as "GET(0x00) GVRP(0x01) ..."
func FormatLedger(l Ledger) string {
	if l.Len() == 0 {
		return "(none)"
	}
	parts := make([]string, 0, l.Len())
	for _, c := range l.Commands() {
		parts = append(parts, fmt.Sprintf("%s(0x%02X)", c.Name, c.Opcode))
	}
	return strings.Join(parts, " ")
}

// FormatDevice renders a device descriptor as a multi-line block
func FormatDevice(d Device) string {
	var s strings.Builder
	s.WriteString(fmt.Sprintf("  Device: %s (0x%03X)\n", d.Name, d.ID))
	s.WriteString(fmt.Sprintf("  RAM: 0x%08X-0x%08X (%d KiB)\n", d.RAM.Start, d.RAM.End, d.RAM.Size()/1024))
	s.WriteString(fmt.Sprintf("  Flash: 0x%08X-0x%08X (%d KiB)\n", d.Flash.Start, d.Flash.End, d.Flash.Size()/1024))
	s.WriteString(fmt.Sprintf("  Option bytes: 0x%08X-0x%08X\n", d.OptionBytes.Start, d.OptionBytes.End))
	s.WriteString(fmt.Sprintf("  System memory: 0x%08X-0x%08X\n", d.SystemMemory.Start, d.SystemMemory.End))
	s.WriteString(fmt.Sprintf("  Page size: %d bytes, %d pages/sector\n", d.PageSize, d.PagesPerSector))
	return s.String()
}

// FormatHex renders bytes as a space separated hex dump, 16 per line
func FormatHex(data []byte) string {
	var s strings.Builder
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			s.WriteString("\n")
		} else if i > 0 {
			s.WriteString(" ")
		}
		s.WriteString(fmt.Sprintf("%02X", b))
	}
	return s.String()
}
