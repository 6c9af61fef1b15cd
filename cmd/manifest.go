// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/Thermoquad/stboot/pkg/stm32boot"
	"github.com/spf13/cobra"
)

var manifestVerify string

var manifestCmd = &cobra.Command{
	Use:   "manifest <file.cbor>",
	Short: "Show a read manifest",
	Long: `Decode and print the CBOR manifest written by "read --manifest".
With --verify, check an image file against the recorded size and SHA-256.`,
	Args: cobra.ExactArgs(1),
	RunE: runManifest,
}

func init() {
	rootCmd.AddCommand(manifestCmd)
	manifestCmd.Flags().StringVar(&manifestVerify, "verify", "", "Image file to check against the manifest")
}

func runManifest(cmd *cobra.Command, args []string) error {
	m, err := stm32boot.ReadManifest(args[0])
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}

	fmt.Printf("Manifest %s:\n", args[0])
	fmt.Print(stm32boot.FormatManifest(m))

	if manifestVerify == "" {
		return nil
	}

	digest, size, err := stm32boot.DigestFile(manifestVerify)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	if size != m.Size || !bytes.Equal(digest, m.SHA256) {
		fmt.Printf("\n%s: MISMATCH (size %d, SHA-256 %x)\n", manifestVerify, size, digest)
		os.Exit(1)
	}
	fmt.Printf("\n%s: OK\n", manifestVerify)
	return nil
}
