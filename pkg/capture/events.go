// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works

package capture

import "github.com/kestrelbench/pdtap/pkg/pdwire"

// TelemetryEvent is one decoded measurement leaving the worker. The two
// frequency flags let independent consumers of the same stream
// down-sample differently without re-reading the device: the chart
// consumes every event, the numeric readout only low-frequency ones.
type TelemetryEvent struct {
	Sample        pdwire.Sample
	HighFrequency bool // always true; consumed by the plotting sink
	LowFrequency  bool // true at most once per low-frequency interval
}

// ControlEvent is one decoded protocol message leaving the worker, or
// the disconnect sentinel that terminates the stream. Disconnected is
// the final event a worker ever emits; Err carries the cause.
type ControlEvent struct {
	Msg          *pdwire.Message
	Disconnected bool
	Err          error
}
