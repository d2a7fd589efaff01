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

// Stats counts what flowed through a worker. Counters are atomic so the
// consumer side can read them while the worker runs.
type Stats struct {
	Frames         atomic.Uint64
	Telemetry      atomic.Uint64
	Control        atomic.Uint64
	Paused         atomic.Uint64 // control frames suppressed by pause
	Dropped        atomic.Uint64 // events lost to a saturated channel
	DecodeFailures atomic.Uint64
	Transient      atomic.Uint64 // read errors retried
}

// StatsSnapshot is a plain-value copy of Stats for display.
type StatsSnapshot struct {
	Frames         uint64
	Telemetry      uint64
	Control        uint64
	Paused         uint64
	Dropped        uint64
	DecodeFailures uint64
	Transient      uint64
}

// Snapshot copies the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Frames:         s.Frames.Load(),
		Telemetry:      s.Telemetry.Load(),
		Control:        s.Control.Load(),
		Paused:         s.Paused.Load(),
		Dropped:        s.Dropped.Load(),
		DecodeFailures: s.DecodeFailures.Load(),
		Transient:      s.Transient.Load(),
	}
}

// Worker owns the device transport: it pulls frames, decodes them
// against its own rolling context, and pushes events onto two bounded
// channels. It never blocks on a full channel and never shares mutable
// state with the consumer beyond the pause flag and stop signal.
type Worker struct {
	transport Transport
	adapter   *pdwire.Adapter
	log       zerolog.Logger

	telemetryCh chan TelemetryEvent
	controlCh   chan ControlEvent

	paused   *atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	retryDelay  time.Duration
	lowFreqGate time.Duration

	ctx         pdwire.Context // single writer: the worker goroutine
	lastLowFreq time.Time

	stats Stats
}

// NewWorker builds a worker over an open transport. The paused flag is
// shared with the controller; the worker only ever reads it.
func NewWorker(t Transport, cfg Config, paused *atomic.Bool, log zerolog.Logger) *Worker {
	return &Worker{
		transport:   t,
		adapter:     pdwire.NewAdapter(),
		log:         log,
		telemetryCh: make(chan TelemetryEvent, cfg.ChannelDepth),
		controlCh:   make(chan ControlEvent, cfg.ChannelDepth),
		paused:      paused,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		retryDelay:  cfg.retryDelay(),
		lowFreqGate: cfg.lowFrequencyInterval(),
	}
}

// Telemetry returns the worker's telemetry event channel.
func (w *Worker) Telemetry() <-chan TelemetryEvent { return w.telemetryCh }

// Control returns the worker's control event channel.
func (w *Worker) Control() <-chan ControlEvent { return w.controlCh }

// Done is closed when the worker loop has exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Stats exposes the worker's counters.
func (w *Worker) Stats() *Stats { return &w.stats }

// Stop raises the stop signal. Safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Run is the acquisition loop. It exits when Stop is raised or the
// transport fails fatally; in the fatal case it emits one disconnected
// sentinel on the control channel first. Run must be started exactly
// once, in its own goroutine.
func (w *Worker) Run() {
	defer close(w.done)

	for {
		select {
		case <-w.stop:
			return
		default:
		}

		frame, err := w.transport.ReadFrame()
		if err != nil {
			if IsFatal(err) {
				w.log.Error().Err(err).Msg("transport lost, stopping acquisition")
				w.emitDisconnected(err)
				return
			}
			w.stats.Transient.Add(1)
			w.log.Warn().Err(err).Msg("transient read error, retrying")
			if !w.sleep(w.retryDelay) {
				return
			}
			continue
		}
		w.stats.Frames.Add(1)
		w.handleFrame(frame)
	}
}

// handleFrame decodes one frame and routes the result.
func (w *Worker) handleFrame(frame pdwire.RawFrame) {
	dec, err := w.adapter.Decode(frame, w.ctx, time.Now())
	if err != nil {
		// Malformed frame: count, leave context untouched, move on.
		w.stats.DecodeFailures.Add(1)
		w.log.Debug().Err(err).Msg("frame rejected")
		return
	}

	switch dec.Class {
	case pdwire.ClassTelemetry:
		w.stats.Telemetry.Add(1)
		w.emitTelemetry(dec.Sample)

	case pdwire.ClassControl:
		// Context updates even while paused so the next unpaused
		// message still decodes against fresh capabilities.
		w.ctx = w.ctx.Update(dec.Msg)
		if w.paused.Load() {
			w.stats.Paused.Add(1)
			return
		}
		w.stats.Control.Add(1)
		w.emitControl(ControlEvent{Msg: dec.Msg})

	default:
		// Unclassified frames carry nothing usable.
	}
}

// emitTelemetry sends a sample, stamping the frequency flags.
// Telemetry flows regardless of pause; suppressing it would leave holes
// in the plotted history.
func (w *Worker) emitTelemetry(s pdwire.Sample) {
	ev := TelemetryEvent{Sample: s, HighFrequency: true}
	if s.Time.Sub(w.lastLowFreq) >= w.lowFreqGate {
		ev.LowFrequency = true
		w.lastLowFreq = s.Time
	}
	select {
	case w.telemetryCh <- ev:
	default:
		w.stats.Dropped.Add(1)
	}
}

// emitControl sends a control event, dropping it if the channel is
// saturated. Blocking here would stall device reads and skew telemetry
// timing.
func (w *Worker) emitControl(ev ControlEvent) {
	select {
	case w.controlCh <- ev:
	default:
		w.stats.Dropped.Add(1)
	}
}

// emitDisconnected delivers the terminal sentinel. Unlike ordinary
// events it must not be silently dropped, so it waits for channel space
// unless the stop signal fires first.
func (w *Worker) emitDisconnected(cause error) {
	ev := ControlEvent{Disconnected: true, Err: cause}
	select {
	case w.controlCh <- ev:
	case <-w.stop:
	}
}

// sleep waits for d, returning false if the stop signal interrupted it.
func (w *Worker) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-w.stop:
		return false
	}
}
