// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/stboot/pkg/bootloader"
	"github.com/spf13/cobra"
)

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Mass erase flash",
	Long: `Synchronize, identify the target and mass erase its flash with the
extended erase command. The erase can take several seconds; see --erase-timeout.`,
	RunE: runErase,
}

func init() {
	rootCmd.AddCommand(eraseCmd)
}

func runErase(cmd *cobra.Command, args []string) error {
	report, _, err := runPlan(bootloader.ErasePlan(), runOptions{title: "erase", attempts: 1})
	if err != nil {
		return finish(err)
	}
	fmt.Printf("\nFlash erased in %s\n", formatElapsed(report.State.Erase.Elapsed))
	return nil
}
