// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/loomtrace/loom/lib/collector"
	"github.com/loomtrace/loom/lib/digest"
	"github.com/loomtrace/loom/lib/identity"
	"github.com/loomtrace/loom/lib/process"
	"github.com/loomtrace/loom/lib/schema"
	"github.com/loomtrace/loom/lib/scope"
)

// Options configures a Coordinator.
type Options struct {
	// Session is the handshake result. Required.
	Session *collector.Session

	// Collector is the collector connection. Required. The coordinator
	// closes it on Shutdown.
	Collector CollectorClient

	// Cache stores instrumentation decisions. Nil disables caching.
	// The coordinator closes it on Shutdown.
	Cache ClassCache

	// Matcher selects classes in scope. Nil admits every class.
	Matcher *scope.Matcher

	// Allocator assigns object ids. Nil builds one from the session's
	// host id and host bits.
	Allocator *identity.Allocator

	// Host receives callbacks. Required.
	Host Host

	// RegisterOutOfScope sends REGISTER_CLASS for classes the matcher
	// rejects.
	RegisterOutOfScope bool

	// IgnoredMethods lists "pkg/Class.method(descriptor)ret" keys whose
	// exceptions are suppressed.
	IgnoredMethods []string

	// Logger receives per-class diagnostics. Nil discards.
	Logger *slog.Logger

	// Metrics, when set, is updated on every load.
	Metrics *Metrics

	// Fatal handles unrecoverable errors at the host-facing entry
	// points. Nil means process.Fatal.
	Fatal func(error)
}

// Coordinator orchestrates class loads. Safe for concurrent use.
type Coordinator struct {
	session   *collector.Session
	collector CollectorClient
	cache     ClassCache
	matcher   *scope.Matcher
	allocator *identity.Allocator
	host      Host
	logger    *slog.Logger
	metrics   *Metrics
	fatal     func(error)

	registerOutOfScope bool
	ignoredMethods     map[string]bool

	// loadMu is the load lock. It guards pending, outbox, delivering
	// and shutdown and serializes every cache and collector exchange.
	// Host upcalls never run under it.
	loadMu sync.Mutex

	// pending holds registrations made before the runtime is ready.
	pending []schema.TracedMethod

	// outbox holds registrations waiting for delivery to the host, in
	// load order. delivering is set while one goroutine drains it.
	outbox     []schema.TracedMethod
	delivering bool

	shutdown bool

	stats counters
}

type counters struct {
	skipped         atomic.Int64
	outOfScope      atomic.Int64
	cacheHits       atomic.Int64
	instrumented    atomic.Int64
	notInstrumented atomic.Int64
}

// New builds a Coordinator.
func New(options Options) (*Coordinator, error) {
	if options.Session == nil {
		return nil, errors.New("coordinator requires a session")
	}
	if options.Collector == nil {
		return nil, errors.New("coordinator requires a collector client")
	}
	if options.Host == nil {
		return nil, errors.New("coordinator requires a host")
	}

	allocator := options.Allocator
	if allocator == nil {
		var err error
		allocator, err = identity.New(options.Session.HostID, options.Session.HostBits)
		if err != nil {
			return nil, fmt.Errorf("building object id allocator: %w", err)
		}
	}
	matcher := options.Matcher
	if matcher == nil {
		matcher = scope.NewMatcher(nil, nil)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	fatal := options.Fatal
	if fatal == nil {
		fatal = process.Fatal
	}

	ignored := make(map[string]bool, len(options.IgnoredMethods))
	for _, method := range options.IgnoredMethods {
		ignored[method] = true
	}

	return &Coordinator{
		session:            options.Session,
		collector:          options.Collector,
		cache:              options.Cache,
		matcher:            matcher,
		allocator:          allocator,
		host:               options.Host,
		logger:             logger,
		metrics:            options.Metrics,
		fatal:              fatal,
		registerOutOfScope: options.RegisterOutOfScope,
		ignoredMethods:     ignored,
	}, nil
}

// Session returns the coordinator's session.
func (c *Coordinator) Session() *collector.Session { return c.session }

// OnClassLoad is the host entry point for a class definition. It
// returns replacement bytecode, or nil to keep the original. Errors go
// to the fatal handler.
func (c *Coordinator) OnClassLoad(name string, bytecode []byte) []byte {
	result, err := c.Load(name, bytecode)
	if err != nil {
		c.logger.Error("class load failed", "class", name, "error", err)
		c.fatal(err)
		return nil
	}
	return result.Bytecode
}

// Load runs the full decision for one class definition. Every returned
// error is unrecoverable.
func (c *Coordinator) Load(name string, bytecode []byte) (LoadResult, error) {
	if name == "" || hasAnyPrefix(name, agentPrefixes) {
		return c.finish(name, LoadResult{Outcome: OutcomeSkipped}), nil
	}
	if c.session.SkipCoreClasses && hasAnyPrefix(name, corePrefixes) {
		return c.finish(name, LoadResult{Outcome: OutcomeSkipped}), nil
	}

	if !hasAnyPrefix(name, bootstrapPrefixes) && c.session.MarkCaptureStarted() {
		c.logger.Info("starting capture", "class", name)
		c.host.StartCapture()
	}

	if !c.matcher.Accept(name) {
		if c.registerOutOfScope {
			if err := c.registerClass(name, bytecode); err != nil {
				return LoadResult{}, err
			}
		}
		return c.finish(name, LoadResult{Outcome: OutcomeOutOfScope}), nil
	}

	sum := digest.Of(bytecode)
	result, err := c.loadLocked(name, sum, bytecode)
	c.deliver()
	if err != nil {
		return LoadResult{}, err
	}
	return c.finish(name, result), nil
}

// loadLocked resolves the class under the load lock and queues its
// traced methods.
func (c *Coordinator) loadLocked(name string, sum digest.Digest, bytecode []byte) (LoadResult, error) {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if c.shutdown {
		return LoadResult{Outcome: OutcomeSkipped}, nil
	}

	record, outcome, err := c.resolve(name, sum, bytecode)
	if err != nil {
		return LoadResult{}, err
	}

	result := LoadResult{Outcome: outcome}
	if record.Instrumented {
		result.Bytecode = record.Bytecode
		result.ClassID = record.ClassID
		result.TracedMethods = len(record.TracedMethods)
		c.queueTracedMethods(record.TracedMethods)
	}
	return result, nil
}

// resolve returns the decision for (name, sum) from the cache or the
// collector. Called with loadMu held.
func (c *Coordinator) resolve(name string, sum digest.Digest, bytecode []byte) (*schema.ClassRecord, Outcome, error) {
	if c.cache != nil {
		record, ok, err := c.cache.Lookup(name, sum)
		if err != nil {
			return nil, 0, fmt.Errorf("class cache lookup for %s: %w", name, err)
		}
		if ok {
			if record.Instrumented {
				if err := c.collector.UseCachedClass(record.ClassID); err != nil {
					return nil, 0, err
				}
			}
			c.logger.Debug("class cache hit", "class", name, "instrumented", record.Instrumented)
			return record, OutcomeCacheHit, nil
		}
	}

	response, err := c.collector.Instrument(name, bytecode)
	if err != nil {
		return nil, 0, err
	}

	record := &schema.ClassRecord{Name: name, Digest: sum}
	outcome := OutcomeNotInstrumented
	if response.Instrumented {
		record.Instrumented = true
		record.ClassID = response.ClassID
		record.Bytecode = response.Bytecode
		record.TracedMethods = response.TracedMethods
		outcome = OutcomeInstrumented
		c.logger.Debug("class instrumented",
			"class", name, "class_id", response.ClassID,
			"bytes", len(response.Bytecode), "methods", len(response.TracedMethods))
	}

	if c.cache != nil {
		if response.Instrumented {
			if err := c.cache.SaveLastIDs(response.LastIDs); err != nil {
				return nil, 0, fmt.Errorf("persisting collector ids: %w", err)
			}
		}
		if err := c.cache.Store(record); err != nil {
			return nil, 0, fmt.Errorf("class cache store for %s: %w", name, err)
		}
	}
	return record, outcome, nil
}

// queueTracedMethods queues methods for delivery, or buffers them
// until the runtime is ready. Called with loadMu held.
func (c *Coordinator) queueTracedMethods(methods []schema.TracedMethod) {
	if len(methods) == 0 {
		return
	}
	if c.session.Started() {
		c.outbox = append(c.outbox, methods...)
		return
	}
	c.pending = append(c.pending, methods...)
	c.metrics.setPending(len(c.pending))
}

// deliver hands queued registrations to the host with loadMu released.
// Only one goroutine delivers at a time. Registrations queued while it
// runs, including those from classes the host loads inside
// RegisterTracedMethod, are delivered by that goroutine after the
// current batch, so the host sees them in queue order.
func (c *Coordinator) deliver() {
	c.loadMu.Lock()
	if c.delivering {
		c.loadMu.Unlock()
		return
	}
	c.delivering = true
	for len(c.outbox) > 0 {
		batch := c.outbox
		c.outbox = nil
		c.loadMu.Unlock()
		for _, method := range batch {
			c.host.RegisterTracedMethod(method)
		}
		c.loadMu.Lock()
	}
	c.delivering = false
	c.loadMu.Unlock()
}

func (c *Coordinator) registerClass(name string, bytecode []byte) error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if c.shutdown {
		return nil
	}
	return c.collector.RegisterClass(name, bytecode)
}

func (c *Coordinator) finish(name string, result LoadResult) LoadResult {
	switch result.Outcome {
	case OutcomeSkipped:
		c.stats.skipped.Add(1)
	case OutcomeOutOfScope:
		c.stats.outOfScope.Add(1)
	case OutcomeCacheHit:
		c.stats.cacheHits.Add(1)
	case OutcomeInstrumented:
		c.stats.instrumented.Add(1)
	case OutcomeNotInstrumented:
		c.stats.notInstrumented.Add(1)
	}
	c.metrics.observeLoad(result.Outcome)
	if result.Outcome != OutcomeSkipped {
		c.logger.Debug("class load", "class", name, "outcome", result.Outcome.String())
	}
	return result
}

// OnRuntimeReady marks the session started and delivers every buffered
// traced method in load order. Only the first call has any effect.
func (c *Coordinator) OnRuntimeReady() {
	c.loadMu.Lock()
	if !c.session.MarkStarted() {
		c.loadMu.Unlock()
		return
	}
	drained := len(c.pending)
	c.outbox = append(c.pending, c.outbox...)
	c.pending = nil
	c.metrics.setPending(0)
	c.loadMu.Unlock()

	c.logger.Info("runtime ready", "drained_registrations", drained)
	c.deliver()
}

// ObjectID returns the object id for a host tag slot: tag itself when
// non-zero, else a freshly allocated id with fresh set. Exhaustion of
// the id space goes to the fatal handler.
func (c *Coordinator) ObjectID(tag int64) (id int64, fresh bool) {
	id, fresh, err := c.allocator.AssignIfAbsent(tag)
	if err != nil {
		c.logger.Error("object id allocation failed", "error", err)
		c.fatal(err)
		return 0, false
	}
	return id, fresh
}

// Shutdown sends FLUSH and closes the collector connection and the
// cache. Later loads pass through unmodified. Calling Shutdown again
// does nothing.
func (c *Coordinator) Shutdown() error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if c.shutdown {
		return nil
	}
	c.shutdown = true

	var errs []error
	if err := c.collector.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := c.collector.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing collector connection: %w", err))
	}
	if c.cache != nil {
		if err := c.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing class cache: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Stats is a snapshot of load counters.
type Stats struct {
	Skipped         int64
	OutOfScope      int64
	CacheHits       int64
	Instrumented    int64
	NotInstrumented int64

	// Pending is the number of buffered traced-method registrations.
	Pending int
}

// Loads returns the total number of loads counted.
func (s Stats) Loads() int64 {
	return s.Skipped + s.OutOfScope + s.CacheHits + s.Instrumented + s.NotInstrumented
}

// Stats returns the current counters.
func (c *Coordinator) Stats() Stats {
	c.loadMu.Lock()
	pending := len(c.pending)
	c.loadMu.Unlock()

	return Stats{
		Skipped:         c.stats.skipped.Load(),
		OutOfScope:      c.stats.outOfScope.Load(),
		CacheHits:       c.stats.cacheHits.Load(),
		Instrumented:    c.stats.instrumented.Load(),
		NotInstrumented: c.stats.notInstrumented.Load(),
		Pending:         pending,
	}
}
