// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works

package capture

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrelbench/pdtap/pkg/pdwire"
)

// State is the connection lifecycle position.
type State int

const (
	StateDisconnected State = iota
	StateConnecting         // transport open, no event drained yet
	StatePaused             // confirmed connected, log appends suppressed
	StateCollecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StatePaused:
		return "paused"
	case StateCollecting:
		return "collecting"
	default:
		return "unknown"
	}
}

// Callbacks notify the presentation layer. Nil fields are skipped. All
// callbacks except OnState from lifecycle calls fire on the drain
// goroutine, so they must return quickly.
type Callbacks struct {
	OnMessage func(index int, msg *pdwire.Message)
	OnSample  func(s pdwire.Sample, lowFrequency bool)
	OnMarker  func(m Marker)
	OnState   func(s State)
	OnFatal   func(err error)
}

// Session is the root data aggregate for one connection or import: the
// ordered control-message log, the telemetry ring, and the quick-status
// snapshots. Appends come only from the controller's drain loop or an
// import; readers take snapshots.
type Session struct {
	mu       sync.RWMutex
	messages []*pdwire.Message
	ring     *TelemetryRing

	lastCapability *pdwire.Message
	lastRequest    *pdwire.Message

	imported bool
}

// NewSession creates an empty session with a ring sized per cfg.
func NewSession(cfg Config) *Session {
	policy, _ := ParseMarkerPolicy(cfg.MarkerPolicy)
	return &Session{
		ring: NewTelemetryRing(cfg.RingCapacity, policy, cfg.WindowSeconds),
	}
}

// append adds a message to the log, refreshes the quick-status
// snapshots, and returns the message's stable index.
func (s *Session) append(msg *pdwire.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	if msg.ProvidesCapability() {
		s.lastCapability = msg
	}
	if msg.ProvidesRequest() {
		s.lastRequest = msg
	}
	return len(s.messages) - 1
}

// Messages snapshots the control-message log. Indexes are stable:
// Messages()[i] is the message OnMessage reported with index i.
func (s *Session) Messages() []*pdwire.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*pdwire.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the control-message count.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Ring exposes the telemetry series.
func (s *Session) Ring() *TelemetryRing { return s.ring }

// QuickStatus renders the compact last-capability/last-request line
// shown in status bars, e.g. "PDO: 5.00V/3.00A  RDO: Obj#1 3.00A/3.00A".
func (s *Session) QuickStatus() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := ""
	if s.lastCapability != nil {
		out += "PDO: " + s.lastCapability.QuickSummary()
	}
	if s.lastRequest != nil {
		if out != "" {
			out += "  "
		}
		out += "RDO: " + s.lastRequest.QuickSummary()
	}
	return out
}

// Imported reports whether this session's data came from storage.
func (s *Session) Imported() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.imported
}

func (s *Session) hasData() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages) > 0 || s.ring.Len() > 0
}

// Controller owns the connection lifecycle: it starts and stops the
// acquisition worker, drains its channels into the session on a fixed
// tick, gates the connected announcement on the first drained event,
// and arbitrates between live capture and imported data.
type Controller struct {
	cfg Config
	log zerolog.Logger
	cb  Callbacks

	mu        sync.Mutex
	state     State
	session   *Session
	worker    *Worker
	transport Transport
	autostart bool

	paused atomic.Bool

	drainStop chan struct{}
	drainDone chan struct{}
}

// NewController validates cfg and returns an idle controller holding an
// empty session.
func NewController(cfg Config, log zerolog.Logger, cb Callbacks) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		cfg:     cfg,
		log:     log,
		cb:      cb,
		state:   StateDisconnected,
		session: NewSession(cfg),
	}
	c.paused.Store(true)
	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the current data aggregate. The pointer stays valid
// until the next Connect, Import, or Clear replaces it.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Stats snapshots the live worker's counters, or zeroes when idle.
func (c *Controller) Stats() StatsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.worker == nil {
		return StatsSnapshot{}
	}
	return c.worker.Stats().Snapshot()
}

// Connect builds a fresh session and worker over the given transport
// and enters Connecting. If the prior session still holds data the
// caller must pass clearPrior=true, confirming the operator accepted
// losing it. The connected announcement is deferred until the first
// event is drained, so an opened-but-silent device never reads as
// connected.
func (c *Controller) Connect(t Transport, clearPrior bool) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	if c.session.hasData() && !clearPrior {
		c.mu.Unlock()
		return ErrPriorData
	}

	c.session = NewSession(c.cfg)
	c.paused.Store(true)
	c.autostart = false
	c.transport = t
	c.worker = NewWorker(t, c.cfg, &c.paused, c.log)
	c.drainStop = make(chan struct{})
	c.drainDone = make(chan struct{})
	c.state = StateConnecting

	go c.worker.Run()
	go c.drainLoop(c.worker, c.drainStop, c.drainDone)
	c.mu.Unlock()

	c.notifyState(StateConnecting)
	return nil
}

// Pause suppresses control-log appends. Telemetry keeps flowing. A
// pause during Connecting cancels a pending deferred resume.
func (c *Controller) Pause() error {
	c.mu.Lock()
	switch c.state {
	case StateDisconnected:
		c.mu.Unlock()
		return ErrNotConnected
	case StateConnecting:
		c.autostart = false
		c.mu.Unlock()
		return nil
	case StatePaused:
		c.mu.Unlock()
		return nil
	}
	c.paused.Store(true)
	c.state = StatePaused
	c.mu.Unlock()

	c.notifyState(StatePaused)
	return nil
}

// Resume starts (or restarts) collecting. While still Connecting the
// request is latched and applied the instant the connection confirms
// rather than dropped. Resume is refused while imported data is loaded;
// the operator must Clear it first.
func (c *Controller) Resume() error {
	c.mu.Lock()
	if c.session.Imported() {
		c.mu.Unlock()
		return ErrImportActive
	}
	switch c.state {
	case StateDisconnected:
		c.mu.Unlock()
		return ErrNotConnected
	case StateConnecting:
		c.autostart = true
		c.mu.Unlock()
		return nil
	case StateCollecting:
		c.mu.Unlock()
		return nil
	}
	c.paused.Store(false)
	c.state = StateCollecting
	c.mu.Unlock()

	c.notifyState(StateCollecting)
	return nil
}

// Disconnect stops the worker and drain loop and returns to
// Disconnected. Session data is retained for export until the next
// Connect or Clear.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	worker, transport := c.worker, c.transport
	drainStop, drainDone := c.drainStop, c.drainDone
	c.worker = nil
	c.transport = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	close(drainStop)
	<-drainDone
	c.stopWorker(worker, transport)
	c.notifyState(StateDisconnected)
	return nil
}

// Import replays stored frames into a fresh session marked as imported.
// Refused while a live session exists.
func (c *Controller) Import(frames []StoredFrame) (*ReplayResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateCollecting:
		return nil, ErrCollecting
	case StateDisconnected:
	default:
		return nil, ErrAlreadyConnected
	}

	res := Replay(frames)
	session := NewSession(c.cfg)
	session.imported = true
	for _, s := range res.Samples {
		session.ring.Push(s)
	}
	for _, msg := range res.Messages {
		session.append(msg)
		if msg.ProvidesCapability() {
			session.ring.Mark(MarkerCapability)
		}
		if msg.ProvidesRequest() {
			session.ring.Mark(MarkerRequest)
		}
	}
	c.session = session
	return res, nil
}

// Clear drops all session data and leaves import mode. Refused while
// actively collecting.
func (c *Controller) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateCollecting {
		return ErrCollecting
	}
	c.session = NewSession(c.cfg)
	return nil
}

// drainLoop is the single consumer: on each tick it drains both worker
// channels to exhaustion without blocking. It exits on the stop signal
// or after handling the disconnect sentinel.
func (c *Controller) drainLoop(w *Worker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.cfg.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if c.drainOnce(w) {
				return
			}
		}
	}
}

// drainOnce empties both channels. Returns true once the disconnect
// sentinel has been handled.
func (c *Controller) drainOnce(w *Worker) bool {
telemetry:
	for {
		select {
		case ev := <-w.Telemetry():
			c.confirmConnected()
			c.consumeTelemetry(ev)
		default:
			break telemetry
		}
	}
	for {
		select {
		case ev := <-w.Control():
			c.confirmConnected()
			if ev.Disconnected {
				c.handleDisconnected(w, ev.Err)
				return true
			}
			c.consumeControl(ev)
		default:
			return false
		}
	}
}

// confirmConnected moves Connecting to Paused (or straight to
// Collecting when a resume was latched) on the first drained event.
func (c *Controller) confirmConnected() {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	next := StatePaused
	if c.autostart {
		c.autostart = false
		c.paused.Store(false)
		next = StateCollecting
	}
	c.state = next
	c.mu.Unlock()

	c.notifyState(next)
}

func (c *Controller) consumeTelemetry(ev TelemetryEvent) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	session.ring.Push(ev.Sample)
	if c.cb.OnSample != nil {
		c.cb.OnSample(ev.Sample, ev.LowFrequency)
	}
}

func (c *Controller) consumeControl(ev ControlEvent) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	idx := session.append(ev.Msg)
	if c.cb.OnMessage != nil {
		c.cb.OnMessage(idx, ev.Msg)
	}
	if ev.Msg.ProvidesCapability() {
		c.emitMarker(session, MarkerCapability)
	}
	if ev.Msg.ProvidesRequest() {
		c.emitMarker(session, MarkerRequest)
	}
}

func (c *Controller) emitMarker(session *Session, kind MarkerKind) {
	if m, added := session.ring.Mark(kind); added && c.cb.OnMarker != nil {
		c.cb.OnMarker(m)
	}
}

// handleDisconnected reacts to the worker's terminal sentinel: joins
// the worker, surfaces the cause, and transitions to Disconnected. No
// automatic reconnect; that is a new explicit exchange.
func (c *Controller) handleDisconnected(w *Worker, cause error) {
	c.mu.Lock()
	transport := c.transport
	c.worker = nil
	c.transport = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	c.stopWorker(w, transport)
	c.log.Error().Err(cause).Msg("device disconnected")
	if c.cb.OnFatal != nil {
		c.cb.OnFatal(cause)
	}
	c.notifyState(StateDisconnected)
}

// stopWorker raises the stop signal and waits for the loop to exit.
// A worker stuck in a blocking read is unstuck by closing the transport
// under it; if it still will not exit we log and move on rather than
// hang the controller.
func (c *Controller) stopWorker(w *Worker, t Transport) {
	if w == nil {
		return
	}
	w.Stop()
	select {
	case <-w.Done():
	case <-time.After(c.cfg.joinTimeout()):
		if t != nil {
			t.Close()
		}
		select {
		case <-w.Done():
		case <-time.After(c.cfg.joinTimeout()):
			c.log.Warn().Msg("worker did not stop after transport close")
			return
		}
	}
	if t != nil {
		t.Close()
	}
	// Discard anything still queued; the session is already final.
	for {
		select {
		case <-w.Telemetry():
		case <-w.Control():
		default:
			return
		}
	}
}

func (c *Controller) notifyState(s State) {
	if c.cb.OnState != nil {
		c.cb.OnState(s)
	}
}
