// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works

package pdwire

import (
	"encoding/binary"
	"math"
	"time"
)

// Sample is one decoded telemetry report: the measured bus rails at a
// point in time. Power is derived, not measured.
type Sample struct {
	Time    time.Time
	Ticks   uint32
	Voltage float64 // VBUS, volts
	Current float64 // amps, sign follows direction of flow
	Power   float64 // watts, always non-negative
	CC1     float64
	CC2     float64
	DPlus   float64
	DMinus  float64
}

// decodeSample unpacks the six little-endian float32 ADC readings of a
// telemetry report.
func decodeSample(f RawFrame, at time.Time) Sample {
	s := Sample{
		Time:    at,
		Ticks:   f.Ticks(),
		Voltage: adcField(f, 0),
		Current: adcField(f, 1),
		CC1:     adcField(f, 2),
		CC2:     adcField(f, 3),
		DPlus:   adcField(f, 4),
		DMinus:  adcField(f, 5),
	}
	s.Power = math.Abs(s.Voltage * s.Current)
	return s
}

// adcField reads the n-th float32 ADC slot from a telemetry frame.
func adcField(f RawFrame, n int) float64 {
	off := offADC + n*4
	bits := binary.LittleEndian.Uint32(f[off : off+4])
	return float64(math.Float32frombits(bits))
}
