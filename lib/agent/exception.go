// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package agent

// OnExceptionThrown filters an exception event and delivers it to the
// host when the session captures exceptions, the runtime is started,
// and the throwing method is not ignored. It reports whether the event
// was delivered.
func (c *Coordinator) OnExceptionThrown(event ExceptionEvent) bool {
	if !c.session.CaptureExceptions || !c.session.Started() {
		return false
	}
	if c.ignoredMethods[event.MethodKey()] {
		return false
	}
	c.host.DeliverException(event)
	return true
}
