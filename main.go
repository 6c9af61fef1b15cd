// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// STBoot - STM32 USART Bootloader Client
//
// A CLI tool for reading, writing and erasing STM32 flash through the
// system bootloader over a serial port or a WebSocket byte bridge.

package main

import (
	"os"

	"github.com/Thermoquad/stboot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
