// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Thermoquad/stboot/pkg/bootloader"
	"github.com/Thermoquad/stboot/pkg/stm32boot"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int
	parity   string

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Bootloader flags
	logLevel     string
	ackTimeout   time.Duration
	eraseTimeout time.Duration
	enterHex     string
	enterDelay   time.Duration

	logger = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "stboot",
	Short: "STM32 USART bootloader client",
	Long: `stboot - A CLI tool for reading, writing and erasing STM32 flash through the
system bootloader (AN3155) over a serial port or a WebSocket byte bridge.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  Bluetooth: --port /dev/rfcomm0 (an RFCOMM TTY bound with rfcomm)
  WebSocket: --url ws://host/path [--username user]

The target must already run its system bootloader, or --enter must name the
bytes (hex) that make the running application reboot into it.

For WebSocket authentication, the password is read from the STBOOT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")
	rootCmd.PersistentFlags().StringVar(&parity, "parity", "even", "Parity: even (AN3155 default) or none (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Bootloader flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().DurationVar(&ackTimeout, "timeout", stm32boot.DefaultTimeout, "ACK and data read timeout")
	rootCmd.PersistentFlags().DurationVar(&eraseTimeout, "erase-timeout", stm32boot.DefaultEraseTimeout, "Mass erase timeout")
	rootCmd.PersistentFlags().StringVar(&enterHex, "enter", "", "Hex bytes sent before INIT to reboot the application into the bootloader")
	rootCmd.PersistentFlags().DurationVar(&enterDelay, "enter-delay", 500*time.Millisecond, "Delay after the --enter bytes")
}

// setupLogging builds the stderr console logger from --log-level
func setupLogging(cmd *cobra.Command, args []string) error {
	level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
		Level(level).
		With().
		Timestamp().
		Logger()
	return nil
}

// engineOptions translates the root flags into engine options
func engineOptions() ([]bootloader.Option, error) {
	opts := []bootloader.Option{
		bootloader.WithLogger(logger),
		bootloader.WithTimeout(ackTimeout),
		bootloader.WithEraseTimeout(eraseTimeout),
	}

	if enterHex != "" {
		enter, err := hex.DecodeString(strings.ReplaceAll(enterHex, " ", ""))
		if err != nil {
			return nil, fmt.Errorf("invalid --enter bytes: %w", err)
		}
		opts = append(opts, bootloader.WithEnterCommand(enter, enterDelay))
	}

	return opts, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
