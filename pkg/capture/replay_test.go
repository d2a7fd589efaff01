// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works

package capture

import (
	"errors"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kestrelbench/pdtap/pkg/pdwire"
)

func TestReplayMatchesLiveDecode(t *testing.T) {
	// A realistic negotiation: capability, request resolved against it,
	// accept, telemetry in between.
	frames := []scriptStep{
		{frame: telemetryFrame(5.00, 0.05)},
		{frame: capabilityFrame()},
		{frame: requestFrame(2)},
		{frame: acceptFrame()},
		{frame: telemetryFrame(8.98, 1.52)},
	}

	// Live path: an unpaused worker over the same byte sequence.
	script := append(append([]scriptStep{}, frames...),
		scriptStep{err: Fatal(errors.New("device removed"))})
	var paused atomic.Bool
	telemetry, control, _ := runWorker(t, testConfig(), &paused, newScriptedTransport(script...))

	// Offline path.
	base := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	stored := make([]StoredFrame, len(frames))
	for i, step := range frames {
		stored[i] = StoredFrame{Time: base.Add(time.Duration(i) * time.Second), Frame: step.frame}
	}
	res := Replay(stored)

	var liveMessages []ControlEvent
	for _, ev := range control {
		if !ev.Disconnected {
			liveMessages = append(liveMessages, ev)
		}
	}
	if len(res.Messages) != len(liveMessages) {
		t.Fatalf("replay produced %d messages, live produced %d", len(res.Messages), len(liveMessages))
	}
	for i, msg := range res.Messages {
		live := liveMessages[i].Msg
		if msg.TypeName() != live.TypeName() {
			t.Errorf("message %d: type %q vs live %q", i, msg.TypeName(), live.TypeName())
		}
		if msg.RawHex() != live.RawHex() {
			t.Errorf("message %d: raw bytes diverge", i)
		}
		// The decoded trees carry the context resolution, so equality
		// here proves the request resolved identically offline.
		if !reflect.DeepEqual(msg.Fields(), live.Fields()) {
			t.Errorf("message %d: decoded fields diverge\nreplay: %+v\nlive:   %+v",
				i, msg.Fields(), live.Fields())
		}
	}

	if len(res.Samples) != len(telemetry) {
		t.Fatalf("replay produced %d samples, live produced %d", len(res.Samples), len(telemetry))
	}
	for i, s := range res.Samples {
		live := telemetry[i].Sample
		if s.Voltage != live.Voltage || s.Current != live.Current || s.Power != live.Power {
			t.Errorf("sample %d: (%v, %v, %v) vs live (%v, %v, %v)",
				i, s.Voltage, s.Current, s.Power, live.Voltage, live.Current, live.Power)
		}
	}
	if res.Decoded != 5 || res.Skipped != 0 {
		t.Errorf("decoded %d skipped %d, want 5/0", res.Decoded, res.Skipped)
	}
}

func TestReplaySkipsMalformedFrames(t *testing.T) {
	good := capabilityFrame()
	bad := capabilityFrame()
	bad[63] ^= 0xFF

	base := time.Now()
	res := Replay([]StoredFrame{
		{Time: base, Frame: bad},
		{Time: base.Add(time.Second), Frame: good},
		{Time: base.Add(2 * time.Second), Frame: bad},
	})

	if res.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", res.Skipped)
	}
	if len(res.Messages) != 1 || res.Decoded != 1 {
		t.Errorf("expected the one good frame to survive, got %d messages", len(res.Messages))
	}
}

func TestReplaySeedsEmptyContext(t *testing.T) {
	// A request with no capability in the sequence resolves nothing,
	// regardless of what any prior session decoded.
	res := Replay([]StoredFrame{
		{Time: time.Now(), Frame: requestFrame(1)},
	})
	if len(res.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(res.Messages))
	}
	if rendered := pdwire.FormatMessage(res.Messages[0]); strings.Contains(rendered, "Copy of PDO") {
		t.Fatalf("request resolved a PDO with no capability in the replayed sequence:\n%s", rendered)
	}
}

func TestReplayEmptyInput(t *testing.T) {
	res := Replay(nil)
	if res.Decoded != 0 || res.Skipped != 0 || len(res.Messages) != 0 || len(res.Samples) != 0 {
		t.Errorf("empty replay must be empty, got %+v", res)
	}
}
