// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/stboot/pkg/stm32boot"
	"github.com/spf13/cobra"
)

var (
	monitorDuration time.Duration
	monitorInit     bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display raw bytes received on the link",
	Long: `Print every byte received on the connection as hex with a timestamp.
ACK and NACK bytes are labeled.

With --init, the INIT byte is sent first so the bootloader reply shows up in
the dump. Useful for diagnosing baud rate and bridge problems.

Exit codes:
  0 - Duration elapsed
  1 - Connection error while monitoring
  2 - Connection error`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorDuration, "duration", 30*time.Second, "How long to listen")
	monitorCmd.Flags().BoolVar(&monitorInit, "init", false, "Send the INIT byte before listening")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("STBoot - Link Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %v\n\n", monitorDuration)

	if monitorInit {
		if _, err := conn.Write([]byte{stm32boot.Init}); err != nil {
			fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
			os.Exit(2)
		}
		fmt.Printf("[%s] Sent INIT (0x%02X)\n", time.Now().Format("15:04:05.000"), stm32boot.Init)
	}

	start := time.Now()
	endTime := start.Add(monitorDuration)
	bytesReceived := 0
	chunks := 0
	buf := make([]byte, 256)

	for time.Now().Before(endTime) {
		n, err := stm32boot.ReadWithTimeout(conn, buf, time.Second)
		if err != nil {
			if errors.Is(err, ErrConnectionClosed) {
				logger.Info().Msg("connection closed")
			}
			fmt.Printf("\n[%s] Connection error: %v\n", time.Now().Format("15:04:05.000"), err)
			printMonitorSummary(time.Since(start), chunks, bytesReceived)
			os.Exit(1)
		}
		if n == 0 {
			continue
		}

		chunks++
		bytesReceived += n
		data := buf[:n]
		fmt.Printf("[%s] %d bytes: %s", time.Now().Format("15:04:05.000"), n, stm32boot.FormatHex(data))
		if n == 1 && (data[0] == stm32boot.Ack || data[0] == stm32boot.Nack) {
			fmt.Printf(" (%s)", stm32boot.FormatReply(data[0]))
		}
		fmt.Println()
	}

	printMonitorSummary(monitorDuration, chunks, bytesReceived)
	return nil
}

func printMonitorSummary(d time.Duration, chunks, bytesReceived int) {
	fmt.Printf("\n--- Monitor Results ---\n")
	fmt.Printf("Duration: %s\n", formatElapsed(d))
	fmt.Printf("Reads: %d\n", chunks)
	fmt.Printf("Bytes received: %d\n", bytesReceived)
}
