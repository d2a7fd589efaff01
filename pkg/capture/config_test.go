// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works

package capture

import "testing"

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero channel depth", func(c *Config) { c.ChannelDepth = 0 }},
		{"negative ring capacity", func(c *Config) { c.RingCapacity = -1 }},
		{"bad marker policy", func(c *Config) { c.MarkerPolicy = "forever" }},
		{"zero window", func(c *Config) { c.WindowSeconds = 0 }},
		{"zero poll interval", func(c *Config) { c.PollIntervalMS = 0 }},
		{"zero low-frequency gate", func(c *Config) { c.LowFrequencyMS = 0 }},
		{"zero retry delay", func(c *Config) { c.RetryDelayMS = 0 }},
		{"zero join timeout", func(c *Config) { c.JoinTimeoutMS = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestFatalClassification(t *testing.T) {
	plain := errTransient{}
	if IsFatal(plain) {
		t.Error("plain errors must read as transient")
	}
	wrapped := Fatal(plain)
	if !IsFatal(wrapped) {
		t.Error("Fatal-wrapped errors must read as fatal")
	}
	if wrapped.Error() == "" {
		t.Error("fatal wrapper must render its cause")
	}
}

type errTransient struct{}

func (errTransient) Error() string { return "bus glitch" }
