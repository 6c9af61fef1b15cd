// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/Thermoquad/stboot/pkg/bootloader"
	"github.com/Thermoquad/stboot/pkg/stm32boot"
	"github.com/spf13/cobra"
)

var (
	writeErase        bool
	writePacing       time.Duration
	writeAddress      string
	writePages        int
	writeLengthPrefix bool
	writeNoGo         bool
	writeTUI          bool
	writeAttempts     int
)

var writeCmd = &cobra.Command{
	Use:   "write <image>",
	Short: "Program a firmware image",
	Long: `Synchronize, identify the target and program <image> page by page.

The final page is padded with 0xFF. Use --erase to mass erase flash first;
without it, pages must already be erased.

Each page is sent as data followed by its XOR checksum. Bootloaders that
follow AN3155 to the letter expect a length byte first: pass --length-prefix.

The application is started with GO afterwards unless --no-go is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runWrite,
}

func init() {
	rootCmd.AddCommand(writeCmd)
	writeCmd.Flags().BoolVar(&writeErase, "erase", false, "Mass erase before writing")
	writeCmd.Flags().DurationVar(&writePacing, "pacing", 100*time.Millisecond, "Delay before each page")
	writeCmd.Flags().StringVar(&writeAddress, "address", "0x08000000", "Address of the first page")
	writeCmd.Flags().IntVar(&writePages, "pages", stm32boot.DefaultPageCount, "Largest image accepted, in 256-byte pages")
	writeCmd.Flags().BoolVar(&writeLengthPrefix, "length-prefix", false, "Send the AN3155 length byte before page data")
	writeCmd.Flags().BoolVar(&writeNoGo, "no-go", false, "Stay in the bootloader after writing")
	writeCmd.Flags().BoolVar(&writeTUI, "tui", isTerminal(), "Show the interactive progress view")
	writeCmd.Flags().IntVar(&writeAttempts, "attempts", 1, "Restart the whole write after a lost link up to this many times")
}

func runWrite(cmd *cobra.Command, args []string) error {
	base, err := parseAddress("address", writeAddress)
	if err != nil {
		return err
	}

	extra := []bootloader.Option{
		bootloader.WithBaseAddress(base),
		bootloader.WithStartAddress(base),
		bootloader.WithPageCount(writePages),
		bootloader.WithPacing(writePacing),
		bootloader.WithWriteLengthPrefix(writeLengthPrefix),
	}

	plan := bootloader.WritePlan(args[0], writeErase, !writeNoGo)
	report, _, err := runPlan(plan, runOptions{
		title:    transferTitle(plan),
		tui:      writeTUI,
		attempts: writeAttempts,
		extra:    extra,
	})
	if err != nil {
		return finish(err)
	}

	w := report.Write
	fmt.Printf("\nWrote %d pages (%d bytes) from %s in %s\n", w.Pages, w.Bytes, w.Path, formatElapsed(w.Elapsed))
	return nil
}
