// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/loomtrace/loom/lib/agent"
	"github.com/loomtrace/loom/lib/config"
	"github.com/loomtrace/loom/lib/schema"
)

type replayOptions struct {
	classes    string
	output     string
	workers    int
	readyAfter int
}

// classFile is one .class file and the slash-separated class name
// derived from its path.
type classFile struct {
	name string
	path string
}

// summary counts outcomes across a replay.
type summary struct {
	Classes         int   `json:"classes"`
	Skipped         int64 `json:"skipped"`
	OutOfScope      int64 `json:"out_of_scope"`
	CacheHits       int64 `json:"cache_hits"`
	Instrumented    int64 `json:"instrumented"`
	NotInstrumented int64 `json:"not_instrumented"`
	Written         int64 `json:"written"`
	Registered      int   `json:"registered_methods"`
}

func (s summary) write(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(s)
}

// findClasses lists every .class file under root, sorted by class name
// so replays are repeatable.
func findClasses(root string) ([]classFile, error) {
	var classes []classFile
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".class") {
			return nil
		}
		relative, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.ToSlash(relative), ".class")
		classes = append(classes, classFile{name: name, path: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].name < classes[j].name })
	return classes, nil
}

// replay loads every class through coordinator. The runtime-ready
// signal fires once readyAfter loads have completed, or at the end if
// there were fewer classes. The first load error stops the replay.
func replay(ctx context.Context, coordinator *agent.Coordinator, options replayOptions, logger *slog.Logger) (summary, error) {
	classes, err := findClasses(options.classes)
	if err != nil {
		return summary{}, err
	}
	workers := max(options.workers, 1)

	var completed, written atomic.Int64
	var readyOnce sync.Once
	signalReady := func() {
		readyOnce.Do(func() {
			logger.Info("signalling runtime ready", "loads", completed.Load())
			coordinator.OnRuntimeReady()
		})
	}
	if options.readyAfter <= 0 {
		signalReady()
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	jobs := make(chan classFile)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for class := range jobs {
				wrote, err := loadOne(coordinator, class, options.output)
				if err != nil {
					cancel(err)
					continue
				}
				if wrote {
					written.Add(1)
				}
				if completed.Add(1) == int64(options.readyAfter) {
					signalReady()
				}
			}
		}()
	}

feed:
	for _, class := range classes {
		select {
		case jobs <- class:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := context.Cause(ctx); err != nil {
		return summary{}, err
	}
	signalReady()

	stats := coordinator.Stats()
	return summary{
		Classes:         len(classes),
		Skipped:         stats.Skipped,
		OutOfScope:      stats.OutOfScope,
		CacheHits:       stats.CacheHits,
		Instrumented:    stats.Instrumented,
		NotInstrumented: stats.NotInstrumented,
		Written:         written.Load(),
	}, nil
}

// loadOne feeds one class to the coordinator and writes any
// replacement under output. It reports whether a file was written.
func loadOne(coordinator *agent.Coordinator, class classFile, output string) (bool, error) {
	bytecode, err := os.ReadFile(class.path)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", class.path, err)
	}
	result, err := coordinator.Load(class.name, bytecode)
	if err != nil {
		return false, fmt.Errorf("loading %s: %w", class.name, err)
	}
	if result.Bytecode == nil || output == "" {
		return false, nil
	}
	target := filepath.Join(output, filepath.FromSlash(class.name)+".class")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return false, err
	}
	if err := os.WriteFile(target, result.Bytecode, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// replayHost stands in for the managed runtime: it records
// registrations and logs callbacks.
type replayHost struct {
	logger *slog.Logger

	mu         sync.Mutex
	registered []schema.TracedMethod
}

func newReplayHost(logger *slog.Logger) *replayHost {
	return &replayHost{logger: logger}
}

func (h *replayHost) StartCapture() {
	h.logger.Info("capture started")
}

func (h *replayHost) RegisterTracedMethod(method schema.TracedMethod) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.registered = append(h.registered, method)
}

func (h *replayHost) DeliverException(event agent.ExceptionEvent) {
	h.logger.Debug("exception", "method", event.MethodKey(), "bytecode_index", event.BytecodeIndex)
}

func (h *replayHost) registeredCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.registered)
}

// overrideCollector points cfg at a host:port address.
func overrideCollector(cfg *config.Config, address string) error {
	host, portString, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("--collector: %w", err)
	}
	port, err := strconv.Atoi(portString)
	if err != nil {
		return fmt.Errorf("--collector port %q: %w", portString, err)
	}
	cfg.Collector.Host = host
	cfg.Collector.Port = port
	return nil
}
