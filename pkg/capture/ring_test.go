// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works

package capture

import (
	"testing"
	"time"

	"github.com/kestrelbench/pdtap/pkg/pdwire"
)

func sampleAt(base time.Time, offset time.Duration, volts, amps float64) pdwire.Sample {
	return pdwire.Sample{Time: base.Add(offset), Voltage: volts, Current: amps}
}

func TestRingRebasesToFirstSample(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	r := NewTelemetryRing(8, MarkerHistory, 60)

	if rel := r.Push(sampleAt(base, 0, 5, 1)); rel != 0 {
		t.Errorf("first sample must land at relative time 0, got %v", rel)
	}
	if rel := r.Push(sampleAt(base, 1500*time.Millisecond, 5, 1)); rel != 1.5 {
		t.Errorf("expected relative time 1.5, got %v", rel)
	}
	if got := r.Latest(); got != 1.5 {
		t.Errorf("Latest = %v, want 1.5", got)
	}
}

func TestRingWrapsAtCapacity(t *testing.T) {
	base := time.Now()
	r := NewTelemetryRing(3, MarkerHistory, 60)

	for i := 0; i < 5; i++ {
		r.Push(sampleAt(base, time.Duration(i)*time.Second, float64(i), 0))
	}
	if got := r.Len(); got != 3 {
		t.Fatalf("Len = %d, want capacity 3", got)
	}

	times, volts, _ := r.Window(1000)
	wantTimes := []float64{2, 3, 4}
	wantVolts := []float64{2, 3, 4}
	if len(times) != 3 {
		t.Fatalf("window returned %d samples, want 3", len(times))
	}
	for i := range times {
		if times[i] != wantTimes[i] || volts[i] != wantVolts[i] {
			t.Errorf("sample %d: got (%v, %v), want (%v, %v)",
				i, times[i], volts[i], wantTimes[i], wantVolts[i])
		}
	}
}

func TestRingWindowClampsToZero(t *testing.T) {
	base := time.Now()
	r := NewTelemetryRing(8, MarkerHistory, 60)
	r.Push(sampleAt(base, 0, 5, 1))
	r.Push(sampleAt(base, 2*time.Second, 5, 1))

	// A window longer than the session must not exclude early samples.
	times, _, _ := r.Window(30)
	if len(times) != 2 {
		t.Errorf("expected both samples inside the clamped window, got %d", len(times))
	}

	times, _, _ = r.Window(1)
	if len(times) != 1 || times[0] != 2 {
		t.Errorf("expected only the trailing sample, got %v", times)
	}
}

func TestRingMarkerDedup(t *testing.T) {
	base := time.Now()
	r := NewTelemetryRing(8, MarkerHistory, 60)
	r.Push(sampleAt(base, 0, 5, 1))

	m, added := r.Mark(MarkerCapability)
	if !added {
		t.Fatal("first marker must be reported as new")
	}
	if m.RelativeTime != 0 || m.Kind != MarkerCapability {
		t.Errorf("unexpected marker %+v", m)
	}
	if _, added := r.Mark(MarkerCapability); added {
		t.Error("duplicate (time, kind) marker must be ignored")
	}
	// Same instant, different kind: distinct marker.
	if _, added := r.Mark(MarkerRequest); !added {
		t.Error("different kind at the same instant must be kept")
	}
	if got := len(r.Markers()); got != 2 {
		t.Errorf("expected 2 retained markers, got %d", got)
	}
}

func TestRingWindowedPolicyTrimsMarkers(t *testing.T) {
	base := time.Now()
	r := NewTelemetryRing(64, MarkerWindowed, 10)

	r.Push(sampleAt(base, 0, 5, 1))
	r.Mark(MarkerCapability)
	r.Push(sampleAt(base, 5*time.Second, 5, 1))
	r.Mark(MarkerRequest)

	// Advance past the 10s retention window measured from the latest sample.
	r.Push(sampleAt(base, 12*time.Second, 5, 1))

	markers := r.Markers()
	if len(markers) != 1 {
		t.Fatalf("expected the t=0 marker trimmed, got %d markers", len(markers))
	}
	if markers[0].Kind != MarkerRequest {
		t.Errorf("wrong marker survived: %+v", markers[0])
	}
}

func TestRingHistoryPolicyKeepsMarkers(t *testing.T) {
	base := time.Now()
	r := NewTelemetryRing(64, MarkerHistory, 10)

	r.Push(sampleAt(base, 0, 5, 1))
	r.Mark(MarkerCapability)
	r.Push(sampleAt(base, 120*time.Second, 5, 1))

	if got := len(r.Markers()); got != 1 {
		t.Errorf("history policy must never trim, got %d markers", got)
	}
}

func TestRingReset(t *testing.T) {
	base := time.Now()
	r := NewTelemetryRing(8, MarkerHistory, 60)
	r.Push(sampleAt(base, 0, 5, 1))
	r.Mark(MarkerCapability)
	r.Reset()

	if r.Len() != 0 || r.Latest() != 0 || len(r.Markers()) != 0 {
		t.Error("reset ring must be empty")
	}
	// The next push re-establishes the origin.
	if rel := r.Push(sampleAt(base, time.Hour, 5, 1)); rel != 0 {
		t.Errorf("post-reset first sample must rebase to 0, got %v", rel)
	}
}

func TestParseMarkerPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    MarkerPolicy
		wantErr bool
	}{
		{"history", MarkerHistory, false},
		{"windowed", MarkerWindowed, false},
		{"forever", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMarkerPolicy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
