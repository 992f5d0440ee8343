// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent is the class-load coordinator: the component the host
// runtime calls for every class definition, exception, and object that
// needs an id.
//
// For each class load the [Coordinator] decides whether the class is
// instrumented at all (agent namespaces, optional core-class skipping,
// then the scope [scope.Matcher]), looks the class up in the local
// class cache by name and MD5 digest, and only on a miss asks the
// collector to instrument it. The answer, including "not
// instrumented", is stored in the cache so an unchanged class is never
// sent to the collector twice. Traced-method metadata from the answer
// is registered with the host, or buffered until the host signals
// that its runtime is ready and then delivered once, in load order.
//
// # Locking
//
// Everything from the cache lookup to queueing traced methods runs
// under one load lock, as do REGISTER_CLASS, FLUSH, and the swap of
// buffered registrations on runtime ready. Scope matching and
// digesting happen outside it. Object ids use the allocator's own
// lock.
//
// [Host] upcalls never run under the load lock. Registrations go to
// an ordered queue that a single goroutine at a time delivers once the
// lock is released, so a host whose RegisterTracedMethod loads another
// class through the same Coordinator does not deadlock. That class's
// registrations are delivered after the batch in progress. A load
// that completes while another goroutine is delivering may return
// before its own registrations reach the host.
//
// # Failure
//
// Collector, cache, and id-space failures are unrecoverable for the
// host. [Coordinator.Load] returns them; the host-facing entry points
// ([Coordinator.OnClassLoad], [Coordinator.ObjectID]) pass them to the
// configured fatal handler, [process.Fatal] by default.
//
// [Start] wires a Coordinator from configuration: it dials and
// handshakes with the collector, resolves the working set and cache
// location, pushes persisted id counters, and builds the allocator.
package agent
