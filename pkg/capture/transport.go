// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works

package capture

import (
	"errors"
	"fmt"

	"github.com/kestrelbench/pdtap/pkg/pdwire"
)

// Transport delivers fixed-size device reports. ReadFrame blocks until
// a full report is available; the error return distinguishes fatal
// transport loss from transient noise (see FatalError).
type Transport interface {
	ReadFrame() (pdwire.RawFrame, error)
	Close() error
}

// FatalError marks an unrecoverable transport failure. Transports wrap
// disconnect-class errors in it; the worker treats everything else as
// transient. This replaces matching on error message substrings, which
// breaks whenever a driver rewords its errors.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as an unrecoverable transport failure.
func Fatal(err error) error {
	return &FatalError{Err: err}
}

// IsFatal reports whether err is (or wraps) a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
