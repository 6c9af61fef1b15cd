// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"time"

	"github.com/Thermoquad/stboot/pkg/stm32boot"
	"github.com/rs/zerolog"
)

// Profile describes a target: where its image lives, how large it is and how
// to talk it into the bootloader. Board variants differ only in their profile.
type Profile struct {
	// BaseAddress is the address of page 0 for READ and WRITE
	BaseAddress uint32

	// StartAddress is the GO target
	StartAddress uint32

	// PageSize is the transfer block size, 1..256
	PageSize int

	// PageCount bounds READ and WRITE
	PageCount int

	// EnterCommand, when set, is written raw before the INIT probe to ask
	// the running application to reboot into the system bootloader
	EnterCommand []byte

	// EnterDelay is how long to wait after EnterCommand
	EnterDelay time.Duration

	// FullRead disables the skip-empty heuristic
	FullRead bool

	// SkipThreshold is the run of consecutive 0xFF bytes after which a READ
	// stops early when FullRead is off
	SkipThreshold int

	// WriteLengthPrefix sends the AN3155 N-1 byte before WRITE data.
	// Off by default: the deployed targets expect data + checksum only.
	WriteLengthPrefix bool
}

// DefaultProfile returns the 512 KiB, 256-byte page profile at 0x08000000
// with lossless reads.
func DefaultProfile() Profile {
	return Profile{
		BaseAddress:   stm32boot.FlashBase,
		StartAddress:  stm32boot.FlashBase,
		PageSize:      stm32boot.PageSize,
		PageCount:     stm32boot.DefaultPageCount,
		EnterDelay:    500 * time.Millisecond,
		FullRead:      true,
		SkipThreshold: 32,
	}
}

// Config holds the engine configuration.
type Config struct {
	Profile Profile

	// Timeout bounds every acknowledgement and data read
	Timeout time.Duration

	// EraseTimeout bounds the final acknowledgement of a mass erase
	EraseTimeout time.Duration

	// Pacing is slept before each WRITE page to let flash programming finish
	Pacing time.Duration

	// ProgressCallback receives per-byte (READ) and per-page (WRITE) progress (optional)
	ProgressCallback ProgressCallback

	// CompletionCallback receives one Completion per command (optional)
	CompletionCallback CompletionCallback

	Logger zerolog.Logger
}

func defaultConfig() Config {
	return Config{
		Profile:      DefaultProfile(),
		Timeout:      stm32boot.DefaultTimeout,
		EraseTimeout: stm32boot.DefaultEraseTimeout,
		Pacing:       100 * time.Millisecond,
		Logger:       zerolog.Nop(),
	}
}

// Option is a functional option for configuring the Engine.
type Option func(*Config)

// WithProfile replaces the target profile.
//
// Example:
//
//	p := bootloader.DefaultProfile()
//	p.PageCount = 256
//	eng := bootloader.New(conn, bootloader.WithProfile(p))
func WithProfile(p Profile) Option {
	return func(c *Config) {
		c.Profile = p
	}
}

// WithTimeout sets the acknowledgement and data read timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.Timeout = timeout
		}
	}
}

// WithEraseTimeout sets the mass erase timeout
func WithEraseTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.EraseTimeout = timeout
		}
	}
}

// WithPacing sets the delay before each WRITE page. Zero disables it.
func WithPacing(pacing time.Duration) Option {
	return func(c *Config) {
		if pacing >= 0 {
			c.Pacing = pacing
		}
	}
}

// WithProgressCallback sets a callback for transfer progress.
//
// Example:
//
//	eng := bootloader.New(conn,
//	    bootloader.WithProgressCallback(func(p bootloader.Progress) {
//	        fmt.Printf("page %d offset %d\n", p.Page, p.Offset)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithCompletionCallback sets a callback invoked when each command finishes
func WithCompletionCallback(callback CompletionCallback) Option {
	return func(c *Config) {
		c.CompletionCallback = callback
	}
}

// WithLogger sets the structured logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithSkipEmpty enables the lossy skip-empty READ heuristic. A READ stops at
// the first page boundary after more than threshold consecutive 0xFF bytes.
func WithSkipEmpty(threshold int) Option {
	return func(c *Config) {
		c.Profile.FullRead = false
		if threshold > 0 {
			c.Profile.SkipThreshold = threshold
		}
	}
}

// WithPageCount bounds READ and WRITE to n pages
func WithPageCount(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Profile.PageCount = n
		}
	}
}

// WithBaseAddress sets the address of page 0
func WithBaseAddress(addr uint32) Option {
	return func(c *Config) {
		c.Profile.BaseAddress = addr
	}
}

// WithStartAddress sets the GO target address
func WithStartAddress(addr uint32) Option {
	return func(c *Config) {
		c.Profile.StartAddress = addr
	}
}

// WithEnterCommand sets the vendor-specific bytes that reboot the running
// application into the bootloader before INIT.
func WithEnterCommand(cmd []byte, delay time.Duration) Option {
	return func(c *Config) {
		c.Profile.EnterCommand = append([]byte(nil), cmd...)
		if delay >= 0 {
			c.Profile.EnterDelay = delay
		}
	}
}

// WithWriteLengthPrefix toggles the AN3155 length byte before WRITE data
func WithWriteLengthPrefix(enabled bool) Option {
	return func(c *Config) {
		c.Profile.WriteLengthPrefix = enabled
	}
}

// normalize clamps profile values the engine cannot honor
func (c *Config) normalize() {
	if c.Profile.PageSize < 1 || c.Profile.PageSize > stm32boot.PageSize {
		c.Profile.PageSize = stm32boot.PageSize
	}
	if c.Profile.PageCount < 1 {
		c.Profile.PageCount = stm32boot.DefaultPageCount
	}
	if c.Profile.SkipThreshold < 1 {
		c.Profile.SkipThreshold = 32
	}
}
