// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package stm32boot implements the wire level of the STM32 USART bootloader
// protocol (AN3155): opcode framing, address and block checksums, ACK/NACK
// handling, the command ledger reported by GET and the device descriptor table.
//
// The bootloader protocol has no message delimiters. Every command is an
// opcode followed by its complement, and every step is acknowledged by a
// single ACK or NACK byte, so all reads are timed single-byte or fixed-length
// reads against the transport.
package stm32boot

import "time"

// Protocol sentinel bytes
const (
	Init = 0x7F // Auto-baud / init probe
	Ack  = 0x79
	Nack = 0x1F
)

// Bootloader opcodes
const (
	OpGet              = 0x00
	OpGetVersion       = 0x01 // GVRP: version and read protection status
	OpGetID            = 0x02
	OpReadMemory       = 0x11
	OpGo               = 0x21
	OpWriteMemory      = 0x31
	OpErase            = 0x43
	OpExtendedErase    = 0x44
	OpWriteProtect     = 0x63
	OpWriteUnprotect   = 0x73
	OpReadoutProtect   = 0x82
	OpReadoutUnprotect = 0x92
)

// MaxCommands is the ledger capacity: the number of well-known opcodes
const MaxCommands = 12

// Transfer geometry
const (
	PageSize         = 256
	DefaultPageCount = 2048 // 512 KiB
	FlashBase        = 0x08000000
)

// Timeouts
const (
	DefaultTimeout      = 2000 * time.Millisecond
	DefaultEraseTimeout = 15000 * time.Millisecond
)

// Command is a named bootloader opcode
type Command struct {
	Opcode byte
	Name   string
}

// CmdInit is the pseudo-command used for the 0x7F probe. It is never
// reported by GET and never lands in a Ledger.
var CmdInit = Command{Opcode: Init, Name: "INIT"}

// Commands lists the well-known bootloader opcodes in AN3155 order
var Commands = []Command{
	{OpGet, "GET"},
	{OpGetVersion, "GVRP"},
	{OpGetID, "GID"},
	{OpReadMemory, "READ"},
	{OpGo, "GO"},
	{OpWriteMemory, "WRITE"},
	{OpErase, "ERASE"},
	{OpExtendedErase, "EER"},
	{OpWriteProtect, "WP"},
	{OpWriteUnprotect, "WUP"},
	{OpReadoutProtect, "RP"},
	{OpReadoutUnprotect, "RUP"},
}

// LookupCommand returns the well-known command for an opcode
func LookupCommand(op byte) (Command, bool) {
	if op == Init {
		return CmdInit, true
	}
	for _, c := range Commands {
		if c.Opcode == op {
			return c, true
		}
	}
	return Command{}, false
}

// MustCommand returns the well-known command for op and panics when op is
// not one of the opcodes in Commands.
func MustCommand(op byte) Command {
	c, ok := LookupCommand(op)
	if !ok {
		panic("stm32boot: unknown opcode")
	}
	return c
}

func (c Command) String() string {
	return c.Name
}
