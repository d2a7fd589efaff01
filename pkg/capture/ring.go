// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works

package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/kestrelbench/pdtap/pkg/pdwire"
)

// MarkerKind labels the protocol event a chart marker points at.
type MarkerKind int

const (
	MarkerCapability MarkerKind = iota
	MarkerRequest
)

func (k MarkerKind) String() string {
	switch k {
	case MarkerCapability:
		return "capability"
	case MarkerRequest:
		return "request"
	default:
		return "unknown"
	}
}

// Marker is a discrete protocol event pinned to the telemetry timeline.
type Marker struct {
	RelativeTime float64
	Kind         MarkerKind
}

// MarkerPolicy selects how long markers are retained.
type MarkerPolicy int

const (
	// MarkerHistory retains every marker for the life of the session.
	MarkerHistory MarkerPolicy = iota
	// MarkerWindowed trims markers that fall behind the visible window.
	MarkerWindowed
)

// ParseMarkerPolicy maps a config-file value onto a MarkerPolicy.
func ParseMarkerPolicy(s string) (MarkerPolicy, error) {
	switch s {
	case "history":
		return MarkerHistory, nil
	case "windowed":
		return MarkerWindowed, nil
	default:
		return 0, fmt.Errorf("marker_policy must be \"history\" or \"windowed\", got %q", s)
	}
}

// TelemetryRing is the fixed-capacity time/voltage/current series
// behind the chart. The first pushed sample fixes the rebasing origin;
// every stored time is relative to it, so the series starts at zero.
// Single writer (the controller's drain loop), snapshot-on-read for
// everyone else.
type TelemetryRing struct {
	mu sync.RWMutex

	capacity int
	times    []float64
	volts    []float64
	amps     []float64
	head     int // next write slot once the ring is full
	count    int

	origin    time.Time
	hasOrigin bool
	latest    float64 // largest relative time seen

	markers []Marker
	policy  MarkerPolicy
	window  float64 // seconds; marker retention bound when windowed
}

// NewTelemetryRing creates an empty ring holding at most capacity
// samples. window bounds marker retention under MarkerWindowed.
func NewTelemetryRing(capacity int, policy MarkerPolicy, window float64) *TelemetryRing {
	return &TelemetryRing{
		capacity: capacity,
		times:    make([]float64, 0, capacity),
		volts:    make([]float64, 0, capacity),
		amps:     make([]float64, 0, capacity),
		policy:   policy,
		window:   window,
	}
}

// Push stores one sample and returns its relative time.
func (r *TelemetryRing) Push(s pdwire.Sample) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasOrigin {
		r.origin = s.Time
		r.hasOrigin = true
	}
	rel := s.Time.Sub(r.origin).Seconds()
	if rel > r.latest {
		r.latest = rel
	}

	if r.count < r.capacity {
		r.times = append(r.times, rel)
		r.volts = append(r.volts, s.Voltage)
		r.amps = append(r.amps, s.Current)
		r.count++
	} else {
		r.times[r.head] = rel
		r.volts[r.head] = s.Voltage
		r.amps[r.head] = s.Current
		r.head = (r.head + 1) % r.capacity
	}

	if r.policy == MarkerWindowed {
		r.trimMarkersLocked()
	}
	return rel
}

// Mark records a marker at the latest relative time and reports whether
// it was new. Duplicate (relativeTime, kind) pairs are ignored.
func (r *TelemetryRing) Mark(kind MarkerKind) (Marker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := Marker{RelativeTime: r.latest, Kind: kind}
	for _, have := range r.markers {
		if have == m {
			return m, false
		}
	}
	r.markers = append(r.markers, m)
	return m, true
}

// trimMarkersLocked drops markers that left the visible window.
func (r *TelemetryRing) trimMarkersLocked() {
	bound := r.latest - r.window
	if bound <= 0 {
		return
	}
	kept := r.markers[:0]
	for _, m := range r.markers {
		if m.RelativeTime >= bound {
			kept = append(kept, m)
		}
	}
	r.markers = kept
}

// Len returns the number of stored samples.
func (r *TelemetryRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Latest returns the largest relative time pushed so far.
func (r *TelemetryRing) Latest() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// Window copies out the samples inside the trailing window of the given
// length in seconds. The left bound is latest-window clamped to zero,
// so a window longer than the session returns everything. Samples come
// back in insertion order.
func (r *TelemetryRing) Window(seconds float64) (times, volts, amps []float64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bound := r.latest - seconds
	if bound < 0 {
		bound = 0
	}
	for i := 0; i < r.count; i++ {
		idx := i
		if r.count == r.capacity {
			idx = (r.head + i) % r.capacity
		}
		if r.times[idx] < bound {
			continue
		}
		times = append(times, r.times[idx])
		volts = append(volts, r.volts[idx])
		amps = append(amps, r.amps[idx])
	}
	return times, volts, amps
}

// Markers snapshots the retained markers.
func (r *TelemetryRing) Markers() []Marker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Marker, len(r.markers))
	copy(out, r.markers)
	return out
}

// Reset drops all samples, markers, and the rebasing origin.
func (r *TelemetryRing) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times = r.times[:0]
	r.volts = r.volts[:0]
	r.amps = r.amps[:0]
	r.head = 0
	r.count = 0
	r.hasOrigin = false
	r.origin = time.Time{}
	r.latest = 0
	r.markers = nil
}
