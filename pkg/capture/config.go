// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works

package capture

import (
	"fmt"
	"time"
)

// Config carries the engine tunables. Interval fields are expressed in
// milliseconds so they map directly onto config-file keys.
type Config struct {
	// ChannelDepth bounds the telemetry and control channels between
	// worker and controller; events are dropped, never blocked on, when
	// a channel is full.
	ChannelDepth int `toml:"channel_depth"`

	// RingCapacity bounds the telemetry time-series.
	RingCapacity int `toml:"ring_capacity"`

	// MarkerPolicy is "history" (markers retained for the whole
	// session) or "windowed" (trimmed to the visible window).
	MarkerPolicy string `toml:"marker_policy"`

	// WindowSeconds is the trailing chart window, also the marker
	// retention bound under the windowed policy.
	WindowSeconds float64 `toml:"window_seconds"`

	// PollIntervalMS is the consumer drain tick.
	PollIntervalMS int `toml:"poll_interval_ms"`

	// LowFrequencyMS gates the down-sampled readout flag.
	LowFrequencyMS int `toml:"low_frequency_ms"`

	// RetryDelayMS is the worker's pause after a transient read error.
	RetryDelayMS int `toml:"retry_delay_ms"`

	// JoinTimeoutMS bounds how long disconnect waits for the worker
	// before force-closing the transport under it.
	JoinTimeoutMS int `toml:"join_timeout_ms"`
}

// DefaultConfig returns the tunables used when no config file is given.
func DefaultConfig() Config {
	return Config{
		ChannelDepth:   256,
		RingCapacity:   30000,
		MarkerPolicy:   "history",
		WindowSeconds:  60,
		PollIntervalMS: 10,
		LowFrequencyMS: 100,
		RetryDelayMS:   25,
		JoinTimeoutMS:  500,
	}
}

// Validate rejects tunables the engine cannot run with.
func (c Config) Validate() error {
	if c.ChannelDepth < 1 {
		return fmt.Errorf("channel_depth must be at least 1, got %d", c.ChannelDepth)
	}
	if c.RingCapacity < 1 {
		return fmt.Errorf("ring_capacity must be at least 1, got %d", c.RingCapacity)
	}
	if _, err := ParseMarkerPolicy(c.MarkerPolicy); err != nil {
		return err
	}
	if c.WindowSeconds <= 0 {
		return fmt.Errorf("window_seconds must be positive, got %g", c.WindowSeconds)
	}
	if c.PollIntervalMS < 1 {
		return fmt.Errorf("poll_interval_ms must be at least 1, got %d", c.PollIntervalMS)
	}
	if c.LowFrequencyMS < 1 {
		return fmt.Errorf("low_frequency_ms must be at least 1, got %d", c.LowFrequencyMS)
	}
	if c.RetryDelayMS < 1 {
		return fmt.Errorf("retry_delay_ms must be at least 1, got %d", c.RetryDelayMS)
	}
	if c.JoinTimeoutMS < 1 {
		return fmt.Errorf("join_timeout_ms must be at least 1, got %d", c.JoinTimeoutMS)
	}
	return nil
}

func (c Config) pollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

func (c Config) lowFrequencyInterval() time.Duration {
	return time.Duration(c.LowFrequencyMS) * time.Millisecond
}

func (c Config) retryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

func (c Config) joinTimeout() time.Duration {
	return time.Duration(c.JoinTimeoutMS) * time.Millisecond
}
