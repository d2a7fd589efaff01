// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works

package pdwire

import (
	"encoding/binary"
	"math"
)

// EventFrame synthesizes a sealed PD event report from an SOP* code and
// the raw message bytes (header plus payload). Input longer than
// MaxPayload is truncated. Snapshot restore and tests use this to turn
// stored message bytes back into decodable frames.
func EventFrame(sop byte, message []byte, ticks uint32) RawFrame {
	if len(message) > MaxPayload {
		message = message[:MaxPayload]
	}
	var f RawFrame
	f[offClass] = ClassByteEvent
	binary.LittleEndian.PutUint32(f[offTicks:offTicks+4], ticks)
	f[offSOP] = sop
	f[offPayLen] = byte(len(message))
	copy(f[offPayload:], message)
	return Seal(f)
}

// TelemetryFrame synthesizes a sealed telemetry report from channel
// readings.
func TelemetryFrame(ticks uint32, voltage, current, cc1, cc2, dPlus, dMinus float32) RawFrame {
	var f RawFrame
	f[offClass] = ClassByteTelemetry
	binary.LittleEndian.PutUint32(f[offTicks:offTicks+4], ticks)
	for i, v := range []float32{voltage, current, cc1, cc2, dPlus, dMinus} {
		binary.LittleEndian.PutUint32(f[offADC+i*4:offADC+i*4+4], math.Float32bits(v))
	}
	return Seal(f)
}
