// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kestrelbench/pdtap/pkg/capture"
	"github.com/kestrelbench/pdtap/pkg/pdwire"
)

// Messages
type tickMsg time.Time
type controlMsg struct {
	index int
	msg   *pdwire.Message
}
type sampleMsg struct {
	sample pdwire.Sample
}
type markerMsg struct {
	marker capture.Marker
}
type stateMsg struct {
	state capture.State
}
type fatalMsg struct {
	err error
}

// sniffModel is the live-capture TUI: a scrolling message log over a
// telemetry readout and a quick PDO/RDO status line.
type sniffModel struct {
	connInfo    string
	controller  *capture.Controller
	connect     func() error
	showGoodCRC bool

	vp       viewport.Model
	vpReady  bool
	messages []*pdwire.Message

	baseTime time.Time // first message, for relative display times
	hasBase  bool

	lastSample  *pdwire.Sample
	markerCount int
	state       capture.State
	status      string // transient footer notice
	fatalErr    error

	width    int
	height   int
	quitting bool
}

func initialSniffModel(connInfo string, showGoodCRC bool) sniffModel {
	return sniffModel{
		connInfo:    connInfo,
		showGoodCRC: showGoodCRC,
		state:       capture.StateDisconnected,
		width:       80,
		height:      24,
	}
}

func (m sniffModel) Init() tea.Cmd {
	connect := m.connect
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
		func() tea.Msg {
			if err := connect(); err != nil {
				return fatalMsg{err: err}
			}
			return nil
		},
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m sniffModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "p":
			m.status = actionStatus("pause", m.controller.Pause())
		case "r":
			m.status = actionStatus("resume", m.controller.Resume())
		case "c":
			if err := m.controller.Clear(); err != nil {
				m.status = actionStatus("clear", err)
			} else {
				m.messages = nil
				m.hasBase = false
				m.markerCount = 0
				m.status = "cleared"
				m.refreshLog()
			}
		case "g":
			m.showGoodCRC = !m.showGoodCRC
			m.refreshLog()
		default:
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()

	case tickMsg:
		return m, tickCmd()

	case controlMsg:
		if !m.hasBase {
			m.baseTime = msg.msg.Timestamp()
			m.hasBase = true
		}
		m.messages = append(m.messages, msg.msg)
		m.refreshLog()

	case sampleMsg:
		s := msg.sample
		m.lastSample = &s

	case markerMsg:
		m.markerCount++

	case stateMsg:
		m.state = msg.state

	case fatalMsg:
		m.fatalErr = msg.err
		m.state = capture.StateDisconnected
	}

	return m, nil
}

func actionStatus(action string, err error) string {
	if err != nil {
		return fmt.Sprintf("%s: %v", action, err)
	}
	return ""
}

func (m *sniffModel) resizeViewport() {
	h := m.height - 10
	if h < 4 {
		h = 4
	}
	if !m.vpReady {
		m.vp = viewport.New(m.width-4, h)
		m.vpReady = true
	} else {
		m.vp.Width = m.width - 4
		m.vp.Height = h
	}
	m.refreshLog()
}

// refreshLog rerenders the message list into the viewport, applying the
// GoodCRC filter, and pins the view to the newest entry.
func (m *sniffModel) refreshLog() {
	if !m.vpReady {
		return
	}
	var sb strings.Builder
	for _, msg := range m.messages {
		if msg.IsGoodCRC() && !m.showGoodCRC {
			continue
		}
		rel := msg.Timestamp().Sub(m.baseTime).Seconds()
		fmt.Fprintf(&sb, "%9.3fs  %s\n", rel, pdwire.FormatSummary(msg))
	}
	m.vp.SetContent(sb.String())
	m.vp.GotoBottom()
}

func (m sniffModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("PDTAP - LIVE CAPTURE"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | State: %s | p pause  r resume  c clear  g goodcrc  q quit",
		m.connInfo, m.state)))
	s.WriteString("\n\n")

	// Telemetry readout
	readout := strings.Builder{}
	if m.lastSample != nil {
		readout.WriteString(fmt.Sprintf("%s %s\n",
			labelStyle.Render("Bus:"), valueStyle.Render(pdwire.FormatSample(*m.lastSample))))
	} else {
		readout.WriteString(headerStyle.Render("(no telemetry yet)\n"))
	}
	if quick := m.controller.Session().QuickStatus(); quick != "" {
		readout.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Contract:"), valueStyle.Render(quick)))
	}
	stats := m.controller.Stats()
	readout.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Messages:"), valueStyle.Render(fmt.Sprintf("%d", len(m.messages))),
		labelStyle.Render("Markers:"), valueStyle.Render(fmt.Sprintf("%d", m.markerCount)),
		labelStyle.Render("Decode failures:"), valueStyle.Render(fmt.Sprintf("%d", stats.DecodeFailures)),
		labelStyle.Render("Dropped:"), valueStyle.Render(fmt.Sprintf("%d", stats.Dropped)),
	))
	s.WriteString(boxStyle.Render(readout.String()))
	s.WriteString("\n\n")

	// Message log
	s.WriteString(labelStyle.Render("Messages:"))
	s.WriteString("\n")
	if m.vpReady {
		s.WriteString(boxStyle.Width(m.width - 4).Render(m.vp.View()))
	} else {
		s.WriteString(headerStyle.Render("  (waiting for terminal size)"))
	}
	s.WriteString("\n")

	// Footer
	if m.fatalErr != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ disconnected: %v", m.fatalErr)))
	} else if m.status != "" {
		s.WriteString(headerStyle.Render(m.status))
	}

	return s.String()
}
