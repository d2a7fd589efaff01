// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works
//
// pdtap - USB-PD Sniffer Capture Tool
//
// Captures and decodes USB Power-Delivery traffic from WITRN-class
// USB meters, with live TUI display, offline replay, and a WebSocket
// event bridge.

package main

import (
	"os"

	"github.com/kestrelbench/pdtap/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
