// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works

package capture

import "errors"

// Operator-invalid actions. These are rejected synchronously with no
// state mutation; none of them indicates a device or decode problem.
var (
	// ErrNotConnected is returned by lifecycle operations that need a
	// live session when none exists.
	ErrNotConnected = errors.New("no device connected")

	// ErrAlreadyConnected is returned by Connect while a live session
	// is active.
	ErrAlreadyConnected = errors.New("a capture session is already active")

	// ErrPriorData is returned by Connect when a previous session still
	// holds data and the caller has not confirmed clearing it.
	ErrPriorData = errors.New("previous session data present; confirm clearing before reconnecting")

	// ErrImportActive is returned by Resume while imported data is
	// loaded; live capture may not mix with an imported session.
	ErrImportActive = errors.New("imported data loaded; clear it before resuming live capture")

	// ErrCollecting is returned by Import and Clear while a live
	// session is actively collecting.
	ErrCollecting = errors.New("live capture in progress; pause or disconnect first")
)
