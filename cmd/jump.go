// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/stboot/pkg/bootloader"
	"github.com/spf13/cobra"
)

var jumpAddress string

var jumpCmd = &cobra.Command{
	Use:   "go",
	Short: "Start the application",
	Long: `Synchronize, identify the target and jump to the application with GO.
The bootloader session ends; run INIT again to talk to it.`,
	RunE: runJump,
}

func init() {
	rootCmd.AddCommand(jumpCmd)
	jumpCmd.Flags().StringVar(&jumpAddress, "address", "0x08000000", "Start address")
}

func runJump(cmd *cobra.Command, args []string) error {
	addr, err := parseAddress("address", jumpAddress)
	if err != nil {
		return err
	}

	_, _, err = runPlan(bootloader.JumpPlan(), runOptions{
		title:    "go",
		attempts: 1,
		extra:    []bootloader.Option{bootloader.WithStartAddress(addr)},
	})
	if err != nil {
		return finish(err)
	}
	fmt.Printf("\nApplication started at 0x%08X\n", addr)
	return nil
}
