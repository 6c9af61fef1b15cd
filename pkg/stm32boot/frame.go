// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stm32boot

import (
	"encoding/binary"
	"fmt"
)

// EncodeOpcode returns the two-byte opcode frame [cmd, ^cmd].
// The complement lets the target validate the link independently of any payload.
func EncodeOpcode(cmd byte) []byte {
	return []byte{cmd, ^cmd}
}

// EncodeAddress returns the 4 big-endian address bytes followed by their XOR
func EncodeAddress(addr uint32) []byte {
	frame := make([]byte, 5)
	binary.BigEndian.PutUint32(frame[:4], addr)
	frame[4] = XORChecksum(frame[:4])
	return frame
}

// DecodeAddress parses a 5-byte address frame and validates its checksum
func DecodeAddress(frame []byte) (uint32, error) {
	if len(frame) != 5 {
		return 0, fmt.Errorf("address frame must be 5 bytes, got %d", len(frame))
	}
	if sum := XORChecksum(frame[:4]); sum != frame[4] {
		return 0, fmt.Errorf("address checksum mismatch: expected 0x%02X, got 0x%02X", sum, frame[4])
	}
	return binary.BigEndian.Uint32(frame[:4]), nil
}

// EncodeLength returns the length frame [n, ^n], where n is the byte count minus one
func EncodeLength(n byte) []byte {
	return []byte{n, ^n}
}

// LengthByte returns the N-1 encoding of a transfer size in the range 1..256
func LengthByte(size int) (byte, error) {
	if size < 1 || size > PageSize {
		return 0, fmt.Errorf("transfer size %d out of range 1..%d", size, PageSize)
	}
	return byte(size - 1), nil
}

// BlockChecksum XOR-folds the length byte with every data byte.
// For a full 256-byte page the length byte is 0xFF.
func BlockChecksum(length byte, data []byte) byte {
	return length ^ XORChecksum(data)
}

// XORChecksum XOR-folds every byte of data
func XORChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum ^= b
	}
	return sum
}

// MassEraseFrame returns the extended-erase payload selecting a global mass
// erase: the 0xFFFF sentinel followed by its checksum 0x00.
func MassEraseFrame() []byte {
	return []byte{0xFF, 0xFF, 0x00}
}

// IsComplement reports whether pair is a valid [b, ^b] frame
func IsComplement(pair []byte) bool {
	return len(pair) == 2 && pair[0]^pair[1] == 0xFF
}

// DeviceIDFromBytes combines the product ID bytes returned by GID.
// A single byte is taken as-is; two bytes are big-endian.
func DeviceIDFromBytes(id []byte) (uint16, error) {
	switch len(id) {
	case 1:
		return uint16(id[0]), nil
	case 2:
		return binary.BigEndian.Uint16(id), nil
	default:
		return 0, fmt.Errorf("product ID must be 1 or 2 bytes, got %d", len(id))
	}
}
