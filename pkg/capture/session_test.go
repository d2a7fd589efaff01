// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works

package capture

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrelbench/pdtap/pkg/pdwire"
)

// feedTransport lets a test hand frames to a running worker one at a
// time, so lifecycle ordering can be controlled from the outside.
type feedTransport struct {
	ch   chan scriptStep
	done chan struct{}
	once sync.Once
}

func newFeedTransport() *feedTransport {
	return &feedTransport{
		ch:   make(chan scriptStep, 64),
		done: make(chan struct{}),
	}
}

func (t *feedTransport) ReadFrame() (pdwire.RawFrame, error) {
	select {
	case step := <-t.ch:
		return step.frame, step.err
	case <-t.done:
		return pdwire.RawFrame{}, Fatal(io.ErrClosedPipe)
	}
}

func (t *feedTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

func (t *feedTransport) feed(f pdwire.RawFrame) { t.ch <- scriptStep{frame: f} }
func (t *feedTransport) fail(err error)         { t.ch <- scriptStep{err: err} }

// recorder collects callback activity for assertions.
type recorder struct {
	mu       sync.Mutex
	states   []State
	messages []*pdwire.Message
	samples  int
	markers  []Marker
	fatals   []error
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnMessage: func(_ int, msg *pdwire.Message) {
			r.mu.Lock()
			r.messages = append(r.messages, msg)
			r.mu.Unlock()
		},
		OnSample: func(pdwire.Sample, bool) {
			r.mu.Lock()
			r.samples++
			r.mu.Unlock()
		},
		OnMarker: func(m Marker) {
			r.mu.Lock()
			r.markers = append(r.markers, m)
			r.mu.Unlock()
		},
		OnState: func(s State) {
			r.mu.Lock()
			r.states = append(r.states, s)
			r.mu.Unlock()
		},
		OnFatal: func(err error) {
			r.mu.Lock()
			r.fatals = append(r.fatals, err)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) stateLog() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.states))
	copy(out, r.states)
	return out
}

func (r *recorder) sawState(want State) bool {
	for _, s := range r.stateLog() {
		if s == want {
			return true
		}
	}
	return false
}

func (r *recorder) fatalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fatals)
}

func newTestController(t *testing.T, rec *recorder) *Controller {
	t.Helper()
	c, err := NewController(testConfig(), zerolog.Nop(), rec.callbacks())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	t.Cleanup(func() {
		if c.State() != StateDisconnected {
			c.Disconnect()
		}
	})
	return c
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestControllerConfirmationGating(t *testing.T) {
	rec := &recorder{}
	c := newTestController(t, rec)
	transport := newFeedTransport()

	if err := c.Connect(transport, false); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := c.State(); got != StateConnecting {
		t.Fatalf("state after Connect = %v, want connecting", got)
	}

	// Silence from the device must never read as connected.
	time.Sleep(50 * time.Millisecond)
	if rec.sawState(StatePaused) || rec.sawState(StateCollecting) {
		t.Fatal("connected announced before any event was drained")
	}

	transport.feed(telemetryFrame(5, 1))
	waitFor(t, "confirmed connection", func() bool { return c.State() == StatePaused })

	want := []State{StateConnecting, StatePaused}
	got := rec.stateLog()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("state sequence = %v, want %v", got, want)
	}
}

func TestControllerAutostartLatch(t *testing.T) {
	rec := &recorder{}
	c := newTestController(t, rec)
	transport := newFeedTransport()

	if err := c.Connect(transport, false); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	// Resume while still unconfirmed: latched, not refused.
	if err := c.Resume(); err != nil {
		t.Fatalf("Resume while connecting: %v", err)
	}

	transport.feed(telemetryFrame(5, 1))
	waitFor(t, "autostarted collection", func() bool { return c.State() == StateCollecting })

	if rec.sawState(StatePaused) {
		t.Error("latched resume must skip the paused announcement")
	}
}

func TestControllerPauseCancelsLatch(t *testing.T) {
	rec := &recorder{}
	c := newTestController(t, rec)
	transport := newFeedTransport()

	if err := c.Connect(transport, false); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := c.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	transport.feed(telemetryFrame(5, 1))
	waitFor(t, "confirmed connection", func() bool { return c.State() == StatePaused })

	if rec.sawState(StateCollecting) {
		t.Error("pause during connecting must cancel the latched resume")
	}
}

func TestControllerPauseSuppressesLogNotTelemetry(t *testing.T) {
	rec := &recorder{}
	c := newTestController(t, rec)
	transport := newFeedTransport()

	if err := c.Connect(transport, false); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	transport.feed(capabilityFrame())
	waitFor(t, "capability in the log", func() bool { return c.Session().Len() == 1 })

	if err := c.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	ringBefore := c.Session().Ring().Len()

	transport.feed(acceptFrame())
	transport.feed(acceptFrame())
	transport.feed(telemetryFrame(5, 1))
	// The telemetry sample trailing the accepts proves the worker
	// consumed them.
	waitFor(t, "telemetry during pause", func() bool {
		return c.Session().Ring().Len() > ringBefore
	})
	if got := c.Session().Len(); got != 1 {
		t.Fatalf("log grew during pause: %d messages", got)
	}

	// Context still advanced behind the paused log, so the resumed
	// request resolves against the capability.
	if err := c.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	transport.feed(requestFrame(2))
	waitFor(t, "resumed request", func() bool { return c.Session().Len() == 2 })

	rendered := pdwire.FormatMessage(c.Session().Messages()[1])
	if !strings.Contains(rendered, "Copy of PDO") {
		t.Errorf("request lost its capability context:\n%s", rendered)
	}
}

func TestControllerMarkersFollowProtocolEvents(t *testing.T) {
	rec := &recorder{}
	c := newTestController(t, rec)
	transport := newFeedTransport()

	if err := c.Connect(transport, false); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	transport.feed(telemetryFrame(5, 1))
	transport.feed(capabilityFrame())
	transport.feed(requestFrame(1))
	transport.feed(acceptFrame())
	waitFor(t, "three log entries", func() bool { return c.Session().Len() == 3 })

	markers := c.Session().Ring().Markers()
	if len(markers) != 2 {
		t.Fatalf("expected capability+request markers, got %d", len(markers))
	}
	if markers[0].Kind != MarkerCapability || markers[1].Kind != MarkerRequest {
		t.Errorf("unexpected marker kinds: %+v", markers)
	}

	rec.mu.Lock()
	notified := len(rec.markers)
	rec.mu.Unlock()
	if notified != 2 {
		t.Errorf("expected 2 marker notifications, got %d", notified)
	}
}

func TestControllerFatalDisconnectAndReconnectIsolation(t *testing.T) {
	rec := &recorder{}
	c := newTestController(t, rec)
	transport := newFeedTransport()

	if err := c.Connect(transport, false); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	transport.feed(capabilityFrame())
	transport.feed(telemetryFrame(5, 1))
	waitFor(t, "live data", func() bool {
		return c.Session().Len() == 1 && c.Session().Ring().Len() == 1
	})
	prior := c.Session()

	cause := errors.New("device removed")
	transport.fail(Fatal(cause))
	waitFor(t, "fatal disconnect", func() bool { return c.State() == StateDisconnected })

	if rec.fatalCount() != 1 {
		t.Fatalf("expected 1 fatal notification, got %d", rec.fatalCount())
	}
	rec.mu.Lock()
	reported := rec.fatals[0]
	rec.mu.Unlock()
	if !errors.Is(reported, cause) {
		t.Errorf("fatal callback got %v, want wrapped %v", reported, cause)
	}
	// Data survives the disconnect for export.
	if prior.Len() != 1 || prior.Ring().Len() != 1 {
		t.Error("session data must be retained after a fatal disconnect")
	}

	// Stale data guards the next connection.
	second := newFeedTransport()
	if err := c.Connect(second, false); err != ErrPriorData {
		t.Fatalf("Connect over prior data = %v, want ErrPriorData", err)
	}
	if err := c.Connect(second, true); err != nil {
		t.Fatalf("Connect with clearPrior: %v", err)
	}
	if err := c.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	fresh := c.Session()
	if fresh == prior {
		t.Fatal("reconnect must build a fresh session")
	}
	if fresh.Len() != 0 || fresh.Ring().Len() != 0 {
		t.Error("fresh session must start empty")
	}

	// Decode context must not leak across connections: a request with
	// no preceding capability resolves nothing.
	second.feed(requestFrame(1))
	waitFor(t, "request on fresh session", func() bool { return fresh.Len() == 1 })
	rendered := pdwire.FormatMessage(fresh.Messages()[0])
	if strings.Contains(rendered, "Copy of PDO") {
		t.Errorf("capability context leaked across reconnect:\n%s", rendered)
	}
}

func TestControllerImportExclusion(t *testing.T) {
	rec := &recorder{}
	c := newTestController(t, rec)

	base := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	frames := []StoredFrame{
		{Time: base, Frame: telemetryFrame(5, 1)},
		{Time: base.Add(time.Second), Frame: capabilityFrame()},
		{Time: base.Add(2 * time.Second), Frame: requestFrame(1)},
	}

	res, err := c.Import(frames)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Decoded != 3 || res.Skipped != 0 {
		t.Errorf("decoded %d skipped %d, want 3/0", res.Decoded, res.Skipped)
	}

	s := c.Session()
	if !s.Imported() {
		t.Fatal("session must be marked imported")
	}
	if s.Len() != 2 || s.Ring().Len() != 1 {
		t.Errorf("imported session holds %d messages / %d samples, want 2/1", s.Len(), s.Ring().Len())
	}
	if got := len(s.Ring().Markers()); got != 2 {
		t.Errorf("expected capability+request markers, got %d", got)
	}

	// Live collection over imported data is refused until cleared.
	if err := c.Resume(); err != ErrImportActive {
		t.Fatalf("Resume over import = %v, want ErrImportActive", err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := c.Resume(); err != ErrNotConnected {
		t.Fatalf("Resume after clear = %v, want ErrNotConnected", err)
	}
}

func TestControllerRefusals(t *testing.T) {
	rec := &recorder{}
	c := newTestController(t, rec)

	if err := c.Pause(); err != ErrNotConnected {
		t.Errorf("Pause while idle = %v, want ErrNotConnected", err)
	}
	if err := c.Disconnect(); err != ErrNotConnected {
		t.Errorf("Disconnect while idle = %v, want ErrNotConnected", err)
	}

	transport := newFeedTransport()
	if err := c.Connect(transport, false); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Connect(newFeedTransport(), false); err != ErrAlreadyConnected {
		t.Errorf("second Connect = %v, want ErrAlreadyConnected", err)
	}
	if _, err := c.Import(nil); err != ErrAlreadyConnected {
		t.Errorf("Import while connected = %v, want ErrAlreadyConnected", err)
	}

	if err := c.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	transport.feed(telemetryFrame(5, 1))
	waitFor(t, "collecting", func() bool { return c.State() == StateCollecting })

	if err := c.Clear(); err != ErrCollecting {
		t.Errorf("Clear while collecting = %v, want ErrCollecting", err)
	}
	if _, err := c.Import(nil); err != ErrCollecting {
		t.Errorf("Import while collecting = %v, want ErrCollecting", err)
	}

	if err := c.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Errorf("Clear while paused = %v, want success", err)
	}
}

func TestControllerDisconnectJoinsWorker(t *testing.T) {
	rec := &recorder{}
	c := newTestController(t, rec)
	transport := newFeedTransport()

	if err := c.Connect(transport, false); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	transport.feed(telemetryFrame(5, 1))
	waitFor(t, "confirmed connection", func() bool { return c.State() == StatePaused })

	done := make(chan struct{})
	go func() {
		c.Disconnect()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Disconnect hung on a worker stuck in a blocking read")
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("state after Disconnect = %v", got)
	}
}
