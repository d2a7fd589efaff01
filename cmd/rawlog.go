// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kestrel Bench Works

package cmd

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelbench/pdtap/pkg/capture"
)

var rawLogCmd = &cobra.Command{
	Use:   "rawlog",
	Short: "Dump raw meter frames in hex as they arrive",
	Long: `Continuously read framed reports from the meter and print each one as a
timestamped hex dump with its class and sequence byte, without decoding.

Useful when the decoder rejects traffic and you need to see the bits on
the wire. Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	transport, connInfo, err := OpenTransport()
	if err != nil {
		return err
	}
	defer transport.Close()

	fmt.Printf("pdtap - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	for {
		frame, err := transport.ReadFrame()
		if err != nil {
			if capture.IsFatal(err) {
				logger.Info().Err(err).Msg("connection closed")
				return nil
			}
			logger.Warn().Err(err).Msg("read error")
			continue
		}

		fmt.Printf("[%s] class=%02X seq=%3d ticks=%-10d %s\n",
			time.Now().Format("15:04:05.000"),
			frame.Class(), frame.Seq(), frame.Ticks(),
			hex.EncodeToString(frame[:]))
	}
}
