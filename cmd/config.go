// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kestrel Bench Works

package cmd

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/kestrelbench/pdtap/pkg/capture"
)

// fileConfig is the on-disk engine config. Every key is optional and
// overrides the built-in default.
type fileConfig struct {
	ChannelDepth   int     `toml:"channel_depth"`
	RingCapacity   int     `toml:"ring_capacity"`
	MarkerPolicy   string  `toml:"marker_policy"`
	WindowSeconds  float64 `toml:"window_seconds"`
	PollIntervalMS int     `toml:"poll_interval_ms"`
	LowFrequencyMS int     `toml:"low_frequency_ms"`
	RetryDelayMS   int     `toml:"retry_delay_ms"`
	JoinTimeoutMS  int     `toml:"join_timeout_ms"`

	Port string `toml:"port"`
	Baud int    `toml:"baud"`
	URL  string `toml:"url"`
}

// loadEngineConfig returns the engine tunables, layered defaults ←
// config file ← connection flags.
func loadEngineConfig() (capture.Config, error) {
	cfg := capture.DefaultConfig()
	if configPath == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(configPath, &raw)
	if err != nil {
		return capture.Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("channel_depth") {
		cfg.ChannelDepth = raw.ChannelDepth
	}
	if meta.IsDefined("ring_capacity") {
		cfg.RingCapacity = raw.RingCapacity
	}
	if meta.IsDefined("marker_policy") {
		cfg.MarkerPolicy = strings.TrimSpace(raw.MarkerPolicy)
	}
	if meta.IsDefined("window_seconds") {
		cfg.WindowSeconds = raw.WindowSeconds
	}
	if meta.IsDefined("poll_interval_ms") {
		cfg.PollIntervalMS = raw.PollIntervalMS
	}
	if meta.IsDefined("low_frequency_ms") {
		cfg.LowFrequencyMS = raw.LowFrequencyMS
	}
	if meta.IsDefined("retry_delay_ms") {
		cfg.RetryDelayMS = raw.RetryDelayMS
	}
	if meta.IsDefined("join_timeout_ms") {
		cfg.JoinTimeoutMS = raw.JoinTimeoutMS
	}

	// Connection settings in the file act as defaults for the flags.
	if meta.IsDefined("port") && portName == "" {
		portName = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("baud") && baudRate == 115200 {
		baudRate = raw.Baud
	}
	if meta.IsDefined("url") && wsURL == "" {
		wsURL = strings.TrimSpace(raw.URL)
	}

	if err := cfg.Validate(); err != nil {
		return capture.Config{}, fmt.Errorf("config %s: %w", configPath, err)
	}
	return cfg, nil
}
