// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Bench Works

package pdwire

// Context is the rolling decode state needed to interpret
// context-dependent PD messages: the most recent capability message
// (Requests reference its objects), the most recent request, and the
// most recent chunk-opening extended message.
//
// Context is a value type and Update is pure: given the same context
// and the same message, Update always returns the identical result.
// That determinism is what makes offline replay match live capture.
type Context struct {
	LastCapability *Message
	LastRequest    *Message
	LastExtended   *Message
}

// Update returns the context after observing msg. Fields the message
// does not provide retain their prior value; several predicates may
// fire for the same message.
func (c Context) Update(msg *Message) Context {
	if msg == nil {
		return c
	}
	if msg.ProvidesCapability() {
		c.LastCapability = msg
	}
	if msg.ProvidesRequest() {
		c.LastRequest = msg
	}
	if msg.ProvidesExtended() {
		c.LastExtended = msg
	}
	return c
}

// Provides reports whether msg would change any context field.
func (c Context) Provides(msg *Message) bool {
	if msg == nil {
		return false
	}
	return msg.ProvidesCapability() || msg.ProvidesRequest() || msg.ProvidesExtended()
}
