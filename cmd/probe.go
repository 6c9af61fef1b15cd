// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/stboot/pkg/bootloader"
	"github.com/spf13/cobra"
)

var (
	probeCount    int
	probeInterval time.Duration
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test connection by synchronizing with the bootloader",
	Long: `Send the INIT byte and wait for the bootloader to acknowledge it, then
measure round trips with repeated GET commands.

Exit codes:
  0 - Bootloader acknowledged every probe
  1 - The target refused or stayed silent
  2 - Connection error

Useful for checking baud rate, parity and wiring before flashing.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeCount, "count", 3, "Number of GET round trips after INIT")
	probeCmd.Flags().DurationVar(&probeInterval, "interval", 100*time.Millisecond, "Delay between round trips")
}

func runProbe(cmd *cobra.Command, args []string) error {
	opts, err := engineOptions()
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("STBoot - Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %v\n\n", ackTimeout)

	eng := bootloader.New(conn, opts...)

	start := time.Now()
	if err := eng.Init(); err != nil {
		fmt.Printf("INIT: FAILED: %v\n", err)
		os.Exit(exitCode(err))
	}
	fmt.Printf("INIT: ACK, rtt=%v\n", time.Since(start).Round(time.Millisecond))

	successCount := 0
	failCount := 0
	var total time.Duration

	for i := 1; i <= probeCount; i++ {
		fmt.Printf("GET %d/%d: ", i, probeCount)

		start := time.Now()
		err := eng.GetCommands()
		rtt := time.Since(start)
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failCount++
			if bootloader.IsFatal(err) {
				os.Exit(2)
			}
		} else {
			st := eng.State()
			fmt.Printf("ACK, %d commands, rtt=%v\n", st.Commands.Len(), rtt.Round(time.Millisecond))
			successCount++
			total += rtt
		}

		if i < probeCount {
			time.Sleep(probeInterval)
		}
	}

	// Summary
	if probeCount > 0 {
		fmt.Printf("\n--- Probe statistics ---\n")
		fmt.Printf("%d requests sent, %d acknowledged, %.0f%% loss\n",
			probeCount, successCount, float64(failCount)/float64(probeCount)*100)
		if successCount > 0 {
			fmt.Printf("average rtt=%v\n", (total / time.Duration(successCount)).Round(time.Millisecond))
		}
	}

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
