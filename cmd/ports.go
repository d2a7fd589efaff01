// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kestrel Bench Works

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports that may carry a meter",
	Long: `Enumerate the serial ports visible to the host. WITRN-class meters
usually show up as a USB CDC-ACM device (/dev/ttyACM* on Linux, COM* on
Windows).

Exit codes:
  0 - At least one port found
  1 - No serial ports present`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := serial.GetPortsList()
	if err != nil {
		return fmt.Errorf("enumerate serial ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		os.Exit(1)
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}
