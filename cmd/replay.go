// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kestrel Bench Works

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kestrelbench/pdtap/pkg/capture"
	"github.com/kestrelbench/pdtap/pkg/pdwire"
)

var (
	replayExportCSV  string
	replayExportSnap string
	replayQuiet      bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture-file>",
	Short: "Decode a stored capture offline",
	Long: `Replay previously captured frames through the decoder, reproducing
exactly the message log a live session would have built from the same
bytes.

The input is a CSV capture (timestamp, hex payload — payloads are
normalized to the fixed frame size) or a .pdsnap snapshot. Rows that
cannot be decoded are counted and skipped.

The decoded log can be re-exported with --export-csv or
--export-snapshot.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayExportCSV, "export-csv", "", "Write the decoded log to a CSV file")
	replayCmd.Flags().StringVar(&replayExportSnap, "export-snapshot", "", "Write the decoded log to a snapshot file")
	replayCmd.Flags().BoolVarP(&replayQuiet, "quiet", "q", false, "Suppress per-message output")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig()
	if err != nil {
		return err
	}

	frames, skippedRows, err := loadFrames(args[0])
	if err != nil {
		return err
	}

	controller, err := capture.NewController(cfg, logger, capture.Callbacks{})
	if err != nil {
		return err
	}
	res, err := controller.Import(frames)
	if err != nil {
		return err
	}

	session := controller.Session()
	if !replayQuiet {
		for _, msg := range session.Messages() {
			fmt.Print(pdwire.FormatMessage(msg))
		}
	}

	fmt.Printf("Decoded %d frames (%d messages, %d telemetry), skipped %d\n",
		res.Decoded, len(res.Messages), len(res.Samples), res.Skipped+skippedRows)
	if quick := session.QuickStatus(); quick != "" {
		fmt.Printf("Final contract: %s\n", quick)
	}

	if replayExportCSV != "" {
		if err := exportCSV(replayExportCSV, session.Messages()); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", replayExportCSV)
	}
	if replayExportSnap != "" {
		if err := exportSnapshot(replayExportSnap, session.Messages()); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", replayExportSnap)
	}
	return nil
}

// loadFrames reads a capture file, selecting the parser by extension:
// .csv is the text capture format, anything else a CBOR snapshot.
func loadFrames(path string) ([]capture.StoredFrame, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	if filepath.Ext(path) == ".csv" {
		return capture.ReadCSV(f)
	}
	frames, err := capture.ReadSnapshot(f)
	return frames, 0, err
}

func exportCSV(path string, msgs []*pdwire.Message) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	defer f.Close()
	return capture.WriteCSV(f, msgs)
}

func exportSnapshot(path string, msgs []*pdwire.Message) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	defer f.Close()
	return capture.WriteSnapshot(f, msgs)
}
