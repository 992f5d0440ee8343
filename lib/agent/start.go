// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loomtrace/loom/lib/classcache"
	"github.com/loomtrace/loom/lib/collector"
	"github.com/loomtrace/loom/lib/config"
	"github.com/loomtrace/loom/lib/identity"
	"github.com/loomtrace/loom/lib/scope"
)

// StartOptions carries the process-level collaborators Start does not
// read from the configuration.
type StartOptions struct {
	// Logger is shared by the collector client, cache, and coordinator.
	// Nil discards.
	Logger *slog.Logger

	// Registerer receives the coordinator metrics. Nil disables
	// metrics.
	Registerer prometheus.Registerer

	// Fatal overrides the fatal handler. Nil means process.Fatal.
	Fatal func(error)
}

// Start connects to the collector, performs the handshake, opens the
// class cache, and returns a ready Coordinator. On error every
// resource opened so far is closed.
func Start(ctx context.Context, cfg *config.Config, host Host, options StartOptions) (_ *Coordinator, err error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var metrics *Metrics
	if options.Registerer != nil {
		metrics, err = NewMetrics(options.Registerer)
		if err != nil {
			return nil, err
		}
	}

	dialTimeout, err := cfg.DialTimeout()
	if err != nil {
		return nil, err
	}
	clientOptions := collector.Options{DialTimeout: dialTimeout, Logger: logger}
	if metrics != nil {
		clientOptions.Observe = metrics.ObserveRequest
	}
	client, err := collector.Dial(ctx, cfg.Address(), clientOptions)
	if err != nil {
		return nil, err
	}

	var cache *classcache.Cache
	success := false
	defer func() {
		if success {
			return
		}
		client.Close()
		if cache != nil {
			cache.Close()
		}
	}()

	session, err := client.Handshake(collector.HandshakeOptions{
		ClientName: cfg.Collector.ClientName,
		LegacyHost: cfg.Collector.LegacyHost,
	})
	if err != nil {
		return nil, fmt.Errorf("collector handshake: %w", err)
	}

	workingSet := effectiveWorkingSet(cfg, session)
	matcher, err := buildMatcher(workingSet, cfg.Scope.SpecialCases)
	if err != nil {
		return nil, err
	}

	if cachePath := cacheRoot(cfg, session, workingSet); cachePath != "" {
		compression, err := classcache.ParseCompression(cfg.Cache.Compression)
		if err != nil {
			return nil, err
		}
		cache, err = classcache.Open(cachePath, classcache.Options{Compression: compression, Logger: logger})
		if err != nil {
			return nil, err
		}
		ids, ok, err := cache.LoadLastIDs()
		if err != nil {
			return nil, err
		}
		if ok {
			if err := client.SyncCacheIDs(ids); err != nil {
				return nil, err
			}
		}
		logger.Info("class cache opened", "root", cachePath, "compression", compression.String(), "synced_ids", ok)
	} else {
		logger.Info("class cache disabled")
	}

	allocator, err := identity.New(session.HostID, session.HostBits)
	if err != nil {
		return nil, fmt.Errorf("building object id allocator: %w", err)
	}

	coordinatorOptions := Options{
		Session:            session,
		Collector:          client,
		Matcher:            matcher,
		Allocator:          allocator,
		Host:               host,
		RegisterOutOfScope: cfg.Scope.RegisterOutOfScope,
		IgnoredMethods:     cfg.Exceptions.IgnoredMethods,
		Logger:             logger,
		Metrics:            metrics,
		Fatal:              options.Fatal,
	}
	// A typed nil *classcache.Cache must not become a non-nil interface.
	if cache != nil {
		coordinatorOptions.Cache = cache
	}
	coordinator, err := New(coordinatorOptions)
	if err != nil {
		return nil, err
	}
	success = true
	return coordinator, nil
}

// effectiveWorkingSet returns the local working set when configured,
// otherwise the collector's.
func effectiveWorkingSet(cfg *config.Config, session *collector.Session) string {
	if cfg.Scope.WorkingSet != "" {
		return cfg.Scope.WorkingSet
	}
	return session.WorkingSet
}

// buildMatcher compiles the working set and special cases. An empty
// working set admits every class.
func buildMatcher(workingSet, specialCases string) (*scope.Matcher, error) {
	var primary, special *scope.Set
	if workingSet != "" {
		parsed, err := scope.Parse(workingSet)
		if err != nil {
			return nil, fmt.Errorf("working set: %w", err)
		}
		primary = parsed
	}
	if specialCases != "" {
		parsed, err := scope.Parse(specialCases)
		if err != nil {
			return nil, fmt.Errorf("special cases: %w", err)
		}
		special = parsed
	}
	return scope.NewMatcher(primary, special), nil
}

// cacheRoot picks the cache directory: the collector's path, else a
// per-scope directory under the configured root, else "" for no cache.
func cacheRoot(cfg *config.Config, session *collector.Session, workingSet string) string {
	if cfg.Cache.Disabled {
		return ""
	}
	if session.CachePath != "" {
		return session.CachePath
	}
	if cfg.Cache.Root != "" {
		return filepath.Join(cfg.Cache.Root, classcache.Namespace(workingSet, session.StructureDatabaseID))
	}
	return ""
}
