// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stm32boot

import (
	"crypto/sha256"
	"fmt"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Manifest describes a flash image dumped by a READ sequence.
// It is stored as a CBOR map with integer keys next to the image.
type Manifest struct {
	DeviceID     uint16    `cbor:"0,keyasint"`
	DeviceName   string    `cbor:"1,keyasint,omitempty"`
	Version      byte      `cbor:"2,keyasint"`
	BaseAddress  uint32    `cbor:"3,keyasint"`
	PageSize     uint16    `cbor:"4,keyasint"`
	Pages        uint32    `cbor:"5,keyasint"`
	Size         uint64    `cbor:"6,keyasint"`
	SHA256       []byte    `cbor:"7,keyasint"`
	SkipEmpty    bool      `cbor:"8,keyasint"`
	Created      time.Time `cbor:"9,keyasint"`
	ProductIDRaw []byte    `cbor:"10,keyasint,omitempty"`
}

// EncodeManifest serializes a manifest to CBOR
func EncodeManifest(m *Manifest) ([]byte, error) {
	data, err := cbor.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return data, nil
}

// DecodeManifest parses a CBOR manifest
func DecodeManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty manifest")
	}
	var m Manifest
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, nil
}

// DigestFile computes the SHA-256 digest and size of an image file
func DigestFile(path string) ([]byte, uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	sum := sha256.Sum256(data)
	return sum[:], uint64(len(data)), nil
}

// WriteManifest encodes m and writes it to path
func WriteManifest(path string, m *Manifest) error {
	data, err := EncodeManifest(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadManifest reads and decodes a manifest file
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeManifest(data)
}

// FormatManifest renders a manifest in human-readable form
func FormatManifest(m *Manifest) string {
	name := m.DeviceName
	if name == "" {
		name = "unknown device"
	}
	return fmt.Sprintf("  Device: %s (0x%03X)\n"+
		"  Bootloader: %s\n"+
		"  Base address: 0x%08X\n"+
		"  Pages: %d x %d bytes (%d bytes)\n"+
		"  SHA-256: %x\n"+
		"  Skip empty: %v\n"+
		"  Created: %s\n",
		name, m.DeviceID,
		FormatVersion(m.Version),
		m.BaseAddress,
		m.Pages, m.PageSize, m.Size,
		m.SHA256,
		m.SkipEmpty,
		m.Created.Format(time.RFC3339))
}
