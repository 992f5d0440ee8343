// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// loom-replay drives the Loom runtime the way a managed runtime would,
// from a directory of compiled classes instead of a live process.
//
// It loads the configuration (--config, else $LOOM_CONFIG, else
// defaults), connects to the collector, and feeds every .class file
// under --classes to the class-load coordinator, optionally from
// several goroutines. After --ready-after loads it signals that the
// runtime is ready, which releases buffered traced-method
// registrations. Replacement bytecode is written under --output with
// the same relative path. A summary of load outcomes is printed to
// stdout at the end.
//
// With --metrics-listen the coordinator's Prometheus metrics are
// served on /metrics while the replay runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/loomtrace/loom/lib/agent"
	"github.com/loomtrace/loom/lib/config"
	"github.com/loomtrace/loom/lib/process"
	"github.com/loomtrace/loom/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath, collectorAddress, metricsListen string
	var options replayOptions
	var verbosity int
	var showVersion bool

	flagSet := pflag.NewFlagSet("loom-replay", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "configuration file (default: $LOOM_CONFIG, else built-in defaults)")
	flagSet.StringVar(&collectorAddress, "collector", "", "collector host:port, overriding the configuration")
	flagSet.StringVar(&options.classes, "classes", "", "directory of .class files to load (required)")
	flagSet.StringVar(&options.output, "output", "", "directory for replacement bytecode (default: discard)")
	flagSet.IntVar(&options.workers, "workers", 1, "concurrent loading goroutines")
	flagSet.IntVar(&options.readyAfter, "ready-after", 0, "signal runtime ready after this many loads")
	flagSet.StringVar(&metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")
	flagSet.CountVarP(&verbosity, "verbose", "v", "increase log verbosity")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if showVersion {
		version.Print("loom-replay")
		return nil
	}
	if options.classes == "" {
		return fmt.Errorf("--classes is required")
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if collectorAddress != "" {
		if err := overrideCollector(cfg, collectorAddress); err != nil {
			return err
		}
	}
	logger := process.NewLogger(max(verbosity, cfg.Verbosity))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	if metricsListen != "" {
		listener, err := net.Listen("tcp", metricsListen)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Handler: mux}
		go func() {
			if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer server.Close()
		logger.Info("serving metrics", "address", listener.Addr().String())
	}

	host := newReplayHost(logger)
	coordinator, err := agent.Start(ctx, cfg, host, agent.StartOptions{
		Logger:     logger,
		Registerer: registry,
	})
	if err != nil {
		return err
	}

	result, replayErr := replay(ctx, coordinator, options, logger)
	if err := coordinator.Shutdown(); err != nil && replayErr == nil {
		replayErr = err
	}
	if replayErr != nil {
		return replayErr
	}
	result.Registered = host.registeredCount()
	return result.write(os.Stdout)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv(config.EnvironmentVariable) != "" {
		return config.Load()
	}
	cfg := config.Default()
	hostname, _ := os.Hostname()
	cfg.Collector.ClientName = version.ClientName("replay", hostname)
	return cfg, nil
}
