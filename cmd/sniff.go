// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kestrel Bench Works

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kestrelbench/pdtap/pkg/capture"
	"github.com/kestrelbench/pdtap/pkg/pdwire"
)

var (
	sniffUseTUI      bool
	sniffShowGoodCRC bool
	sniffPaused      bool
)

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Capture and decode live USB-PD traffic",
	Long: `Connect to the sniffer and stream decoded USB-PD messages with a live
telemetry readout.

Collection starts immediately unless --paused is given; while paused,
protocol messages are not logged but telemetry and decode context keep
flowing, so resuming never decodes against stale capabilities.

GoodCRC acknowledgments are hidden by default since they ack every bus
message; show them with --goodcrc.`,
	RunE: runSniff,
}

func init() {
	rootCmd.AddCommand(sniffCmd)
	sniffCmd.Flags().BoolVar(&sniffUseTUI, "tui", true, "Use terminal UI (false for text mode)")
	sniffCmd.Flags().BoolVar(&sniffShowGoodCRC, "goodcrc", false, "Show GoodCRC acknowledgments")
	sniffCmd.Flags().BoolVar(&sniffPaused, "paused", false, "Connect without starting collection")
}

func runSniff(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig()
	if err != nil {
		return err
	}

	transport, connInfo, err := OpenTransport()
	if err != nil {
		return err
	}

	if sniffUseTUI {
		return runSniffTUI(cfg, transport, connInfo)
	}
	return runSniffText(cfg, transport, connInfo)
}

// runSniffText streams decoded messages to stdout.
func runSniffText(cfg capture.Config, transport capture.Transport, connInfo string) error {
	fatal := make(chan error, 1)

	controller, err := capture.NewController(cfg, logger, capture.Callbacks{
		OnMessage: func(index int, msg *pdwire.Message) {
			if msg.IsGoodCRC() && !sniffShowGoodCRC {
				return
			}
			fmt.Print(pdwire.FormatMessage(msg))
		},
		OnSample: func(s pdwire.Sample, lowFrequency bool) {
			if lowFrequency {
				fmt.Printf("\r%s", pdwire.FormatSample(s))
			}
		},
		OnState: func(s capture.State) {
			logger.Info().Stringer("state", s).Msg("connection state")
		},
		OnFatal: func(err error) {
			select {
			case fatal <- err:
			default:
			}
		},
	})
	if err != nil {
		transport.Close()
		return err
	}

	fmt.Printf("pdtap - Live Capture\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if err := controller.Connect(transport, true); err != nil {
		transport.Close()
		return err
	}
	if !sniffPaused {
		// Latched during Connecting, applied once the first event lands.
		if err := controller.Resume(); err != nil {
			return err
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var stats capture.StatsSnapshot
	select {
	case <-interrupt:
		fmt.Println()
		stats = controller.Stats()
		if err := controller.Disconnect(); err != nil && err != capture.ErrNotConnected {
			return err
		}
	case err := <-fatal:
		return fmt.Errorf("capture ended: %w", err)
	}

	fmt.Printf("Frames: %d  Control: %d  Telemetry: %d  Decode failures: %d  Dropped: %d\n",
		stats.Frames, stats.Control, stats.Telemetry, stats.DecodeFailures, stats.Dropped)
	return nil
}

// runSniffTUI drives the capture through the bubbletea program; the
// controller callbacks feed events into the TUI via p.Send.
func runSniffTUI(cfg capture.Config, transport capture.Transport, connInfo string) error {
	var p *tea.Program

	controller, err := capture.NewController(cfg, logger, capture.Callbacks{
		OnMessage: func(index int, msg *pdwire.Message) {
			p.Send(controlMsg{index: index, msg: msg})
		},
		OnSample: func(s pdwire.Sample, lowFrequency bool) {
			if lowFrequency {
				p.Send(sampleMsg{sample: s})
			}
		},
		OnMarker: func(mk capture.Marker) {
			p.Send(markerMsg{marker: mk})
		},
		OnState: func(s capture.State) {
			p.Send(stateMsg{state: s})
		},
		OnFatal: func(err error) {
			p.Send(fatalMsg{err: err})
		},
	})
	if err != nil {
		transport.Close()
		return err
	}

	m := initialSniffModel(connInfo, sniffShowGoodCRC)
	m.controller = controller
	// Connecting is deferred to the model's Init so no callback fires
	// before the program is consuming messages.
	m.connect = func() error {
		if err := controller.Connect(transport, true); err != nil {
			return err
		}
		if sniffPaused {
			return nil
		}
		return controller.Resume()
	}
	p = tea.NewProgram(m)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}

	if err := controller.Disconnect(); err != nil && err != capture.ErrNotConnected {
		return err
	}
	return nil
}
