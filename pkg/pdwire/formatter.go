// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works

package pdwire

import (
	"fmt"
	"strings"
)

// FormatMessage formats a decoded PD message into a human-readable
// multi-line string, one indented line per payload field.
func FormatMessage(m *Message) string {
	timestamp := m.Timestamp().Format("15:04:05.000")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s %s id=%d raw=%s\n", timestamp, m.SOP(), m.TypeName(), m.MessageID(), m.RawHex())
	for _, f := range m.Fields() {
		formatField(&sb, f, 1)
	}
	return sb.String()
}

// FormatSummary formats the single-line variant used by list views.
func FormatSummary(m *Message) string {
	line := fmt.Sprintf("%s %s", m.SOP(), m.TypeName())
	if quick := m.QuickSummary(); quick != "" {
		line += " [" + quick + "]"
	}
	return line
}

// FormatSample formats a telemetry sample as a fixed-width readout.
func FormatSample(s Sample) string {
	return fmt.Sprintf("%7.4fV %7.4fA %7.3fW  CC1=%.3fV CC2=%.3fV D+=%.3fV D-=%.3fV",
		s.Voltage, s.Current, s.Power, s.CC1, s.CC2, s.DPlus, s.DMinus)
}

func formatField(sb *strings.Builder, f Field, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	if f.Value == "" {
		fmt.Fprintf(sb, "%s\n", f.Name)
	} else {
		fmt.Fprintf(sb, "%s: %s\n", f.Name, f.Value)
	}
	for _, child := range f.Children {
		formatField(sb, child, depth+1)
	}
}
