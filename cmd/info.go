// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/stboot/pkg/bootloader"
	"github.com/Thermoquad/stboot/pkg/stm32boot"
	"github.com/spf13/cobra"
)

var infoNoGVRP bool

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Identify the target",
	Long: `Synchronize with the bootloader and report its version, supported
commands, read protection status and device.

Runs INIT, GET, GVRP and GID. Use --no-gvrp for bootloaders that do not
implement GVRP.`,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().BoolVar(&infoNoGVRP, "no-gvrp", false, "Skip the read protection query")
}

func runInfo(cmd *cobra.Command, args []string) error {
	report, _, err := runPlan(bootloader.ProbePlan(!infoNoGVRP), runOptions{title: "info", attempts: 1})
	if report != nil {
		printTargetInfo(report.State)
	}
	return finish(err)
}

func printTargetInfo(st bootloader.State) {
	fmt.Printf("\nTarget (%s):\n", st.Stage)
	if st.Stage < bootloader.StageCommandsRead {
		return
	}
	fmt.Printf("  Bootloader: %s\n", stm32boot.FormatVersion(st.Version))
	fmt.Printf("  Commands: %s\n", stm32boot.FormatLedger(st.Commands))

	if p := st.Protection; p != nil {
		fmt.Printf("  GVRP: version %s, option bytes 0x%02X 0x%02X\n",
			stm32boot.FormatVersion(p.Version), p.Option1, p.Option2)
	}

	if st.Stage < bootloader.StageIdentified {
		return
	}
	fmt.Printf("  Product ID: %s\n", stm32boot.FormatHex(st.ProductID))
	if st.Device != nil {
		fmt.Print(stm32boot.FormatDevice(*st.Device))
	} else {
		fmt.Printf("  Device: unknown (0x%03X)\n", st.DeviceID)
	}
}
