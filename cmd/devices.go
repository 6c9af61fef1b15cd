// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"

	"github.com/Thermoquad/stboot/pkg/stm32boot"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices [product-id]",
	Short: "List known STM32 devices",
	Long: `Print the device table used to resolve the product ID reported by GID.
With a product ID (e.g. 0x413), print the full descriptor for that part.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		id, err := strconv.ParseUint(args[0], 0, 16)
		if err != nil {
			return fmt.Errorf("invalid product ID %q: %w", args[0], err)
		}
		d, ok := stm32boot.LookupDevice(uint16(id))
		if !ok {
			return fmt.Errorf("unknown product ID 0x%03X", id)
		}
		fmt.Print(stm32boot.FormatDevice(d))
		return nil
	}

	fmt.Printf("%-6s %-32s %10s %10s\n", "ID", "Device", "Flash", "Page")
	for _, d := range stm32boot.Devices() {
		fmt.Printf("0x%03X  %-32s %7d KiB %8d B\n", d.ID, d.Name, d.Flash.Size()/1024, d.PageSize)
	}
	return nil
}
