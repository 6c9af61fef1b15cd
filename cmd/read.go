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
	readPages         int
	readAddress       string
	readSkipEmpty     bool
	readSkipThreshold int
	readManifest      bool
	readNoGo          bool
	readTUI           bool
	readAttempts      int
)

var readCmd = &cobra.Command{
	Use:   "read <output>",
	Short: "Dump flash to a file",
	Long: `Synchronize, identify the target and read flash page by page into <output>.

Reads are lossless by default. --skip-empty stops at the first page boundary
after a run of erased (0xFF) bytes longer than --skip-threshold, which is
fast but can truncate images that contain erased gaps.

The application is started with GO afterwards unless --no-go is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runRead,
}

func init() {
	rootCmd.AddCommand(readCmd)
	readCmd.Flags().IntVar(&readPages, "pages", stm32boot.DefaultPageCount, "Number of 256-byte pages to read")
	readCmd.Flags().StringVar(&readAddress, "address", "0x08000000", "Address of the first page")
	readCmd.Flags().BoolVar(&readSkipEmpty, "skip-empty", false, "Stop early after a run of erased bytes")
	readCmd.Flags().IntVar(&readSkipThreshold, "skip-threshold", 32, "Erased byte run that ends a --skip-empty read")
	readCmd.Flags().BoolVar(&readManifest, "manifest", false, "Write a CBOR manifest to <output>.cbor")
	readCmd.Flags().BoolVar(&readNoGo, "no-go", false, "Stay in the bootloader after reading")
	readCmd.Flags().BoolVar(&readTUI, "tui", isTerminal(), "Show the interactive progress view")
	readCmd.Flags().IntVar(&readAttempts, "attempts", 1, "Restart the whole read after a lost link up to this many times")
}

func runRead(cmd *cobra.Command, args []string) error {
	output := args[0]

	base, err := parseAddress("address", readAddress)
	if err != nil {
		return err
	}

	extra := []bootloader.Option{
		bootloader.WithBaseAddress(base),
		bootloader.WithStartAddress(base),
		bootloader.WithPageCount(readPages),
	}
	if readSkipEmpty {
		extra = append(extra, bootloader.WithSkipEmpty(readSkipThreshold))
	}

	plan := bootloader.ReadPlan(output, !readNoGo)
	report, _, err := runPlan(plan, runOptions{
		title:    transferTitle(plan),
		tui:      readTUI,
		attempts: readAttempts,
		extra:    extra,
	})
	if err != nil {
		return finish(err)
	}

	r := report.Read
	fmt.Printf("\nRead %d pages (%d bytes) to %s in %s\n", r.Pages, r.Bytes, r.Path, formatElapsed(r.Elapsed))
	if r.Stopped {
		fmt.Printf("Stopped early on erased flash\n")
	}

	if readManifest {
		path := output + ".cbor"
		if err := writeReadManifest(path, report, base); err != nil {
			return finish(err)
		}
		fmt.Printf("Manifest: %s\n", path)
	}
	return nil
}

func writeReadManifest(path string, report *bootloader.Report, base uint32) error {
	digest, size, err := stm32boot.DigestFile(report.Read.Path)
	if err != nil {
		return &bootloader.FileError{Path: report.Read.Path, Op: "digest", Err: err}
	}

	st := report.State
	m := &stm32boot.Manifest{
		DeviceID:     st.DeviceID,
		Version:      st.Version,
		BaseAddress:  base,
		PageSize:     stm32boot.PageSize,
		Pages:        uint32(report.Read.Pages),
		Size:         size,
		SHA256:       digest,
		SkipEmpty:    readSkipEmpty,
		Created:      time.Now().UTC(),
		ProductIDRaw: st.ProductID,
	}
	if st.Device != nil {
		m.DeviceName = st.Device.Name
	}

	if err := stm32boot.WriteManifest(path, m); err != nil {
		return &bootloader.FileError{Path: path, Op: "write", Err: err}
	}
	return nil
}
