// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works

package capture

import (
	"time"

	"github.com/kestrelbench/pdtap/pkg/pdwire"
)

// StoredFrame is one previously captured report: the normalized 64-byte
// payload plus the timestamp storage recorded for it.
type StoredFrame struct {
	Time  time.Time
	Frame pdwire.RawFrame
}

// ReplayResult is the outcome of decoding a stored frame sequence.
type ReplayResult struct {
	Messages []*pdwire.Message
	Samples  []pdwire.Sample
	Decoded  int
	Skipped  int
}

// Replay decodes stored frames in order, seeded from an empty context,
// running exactly the decode and context-update sequence live capture
// runs. Pause does not apply here: every decodable control frame is
// appended. Frames the adapter rejects are counted and skipped; they
// never abort the run.
//
// For identical byte sequences this must produce the identical message
// list a live worker would have produced.
func Replay(frames []StoredFrame) *ReplayResult {
	adapter := pdwire.NewAdapter()
	var ctx pdwire.Context
	res := &ReplayResult{}

	for _, sf := range frames {
		dec, err := adapter.Decode(sf.Frame, ctx, sf.Time)
		if err != nil {
			res.Skipped++
			continue
		}
		switch dec.Class {
		case pdwire.ClassTelemetry:
			res.Samples = append(res.Samples, dec.Sample)
			res.Decoded++
		case pdwire.ClassControl:
			ctx = ctx.Update(dec.Msg)
			res.Messages = append(res.Messages, dec.Msg)
			res.Decoded++
		default:
			// Unclassified frames are discarded, same as live capture.
		}
	}
	return res
}
