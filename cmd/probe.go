// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kestrel Bench Works

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelbench/pdtap/pkg/capture"
	"github.com/kestrelbench/pdtap/pkg/pdwire"
)

var (
	probeSeconds int
	probeCount   int
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Measure link quality by sampling frames from the meter",
	Long: `Read frames for a fixed window and report what arrived: per-class counts,
decode failures, and gaps in the sequence counter that indicate lost
frames between meter and host.

A healthy WITRN-class meter streams telemetry continuously, so a silent
probe almost always means the wrong port, baud rate, or URL.

Exit codes:
  0 - Frames were received and decoded
  1 - Nothing usable arrived inside the window
  2 - Connection error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeSeconds, "seconds", 5, "Sampling window in seconds")
	probeCmd.Flags().IntVar(&probeCount, "count", 0, "Stop after this many frames (0 = window only)")
}

func runProbe(cmd *cobra.Command, args []string) error {
	transport, connInfo, err := OpenTransport()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer transport.Close()

	fmt.Printf("pdtap - Link Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Window: %d seconds\n\n", probeSeconds)

	adapter := pdwire.NewAdapter()
	var ctx pdwire.Context
	deadline := time.Now().Add(time.Duration(probeSeconds) * time.Second)

	var (
		frames, telemetry, events, other int
		decodeFailures, seqGaps          int
		haveSeq                          bool
		lastSeq                          byte
	)

	// ReadFrame has no deadline of its own, so run it on the side and
	// let the window cut the wait short.
	type readResult struct {
		frame pdwire.RawFrame
		err   error
	}
	results := make(chan readResult)
	go func() {
		for {
			f, rerr := transport.ReadFrame()
			results <- readResult{f, rerr}
			if rerr != nil && capture.IsFatal(rerr) {
				return
			}
		}
	}()

sample:
	for time.Now().Before(deadline) {
		var res readResult
		select {
		case res = <-results:
		case <-time.After(time.Until(deadline)):
			break sample
		}
		if res.err != nil {
			if capture.IsFatal(res.err) {
				fmt.Fprintf(os.Stderr, "Connection lost: %v\n", res.err)
				break sample
			}
			continue
		}

		frames++
		if haveSeq && res.frame.Seq() != lastSeq+1 {
			seqGaps++
		}
		lastSeq = res.frame.Seq()
		haveSeq = true

		dec, derr := adapter.Decode(res.frame, ctx, time.Now())
		if derr != nil {
			decodeFailures++
			continue
		}
		switch dec.Class {
		case pdwire.ClassTelemetry:
			telemetry++
		case pdwire.ClassControl:
			ctx = ctx.Update(dec.Msg)
			events++
			fmt.Printf("  %s\n", pdwire.FormatSummary(dec.Msg))
		default:
			other++
		}

		if probeCount > 0 && frames >= probeCount {
			break sample
		}
	}

	fmt.Printf("\n--- Probe statistics ---\n")
	fmt.Printf("%d frames received (%d telemetry, %d PD events, %d other)\n",
		frames, telemetry, events, other)
	fmt.Printf("%d decode failures, %d sequence gaps\n", decodeFailures, seqGaps)
	if frames > 0 {
		fmt.Printf("%.1f frames/s\n", float64(frames)/float64(probeSeconds))
	}

	if frames == 0 || frames == decodeFailures {
		fmt.Println("\nNo usable frames; check port, baud rate, or URL.")
		os.Exit(1)
	}
	return nil
}
