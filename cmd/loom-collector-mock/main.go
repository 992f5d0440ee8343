// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// loom-collector-mock runs a stand-in collector for local testing of
// the Loom runtime. It speaks the collector protocol, hands out the
// session configuration given on the command line, and instruments
// classes deterministically: the replacement bytecode is the original
// prefixed with "LOOM", so tools can check which classes were
// rewritten without a real bytecode rewriter.
//
// It runs until SIGINT or SIGTERM and then logs a summary of the
// requests it received.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/loomtrace/loom/lib/collector/collectortest"
	"github.com/loomtrace/loom/lib/collector/wire"
	"github.com/loomtrace/loom/lib/process"
	"github.com/loomtrace/loom/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	listen    string
	mode      string
	methods   int
	verbosity int
	session   collectortest.Config
}

func run() error {
	var opts options
	var hostID int32
	var hostBits uint8
	var showVersion bool

	flagSet := pflag.NewFlagSet("loom-collector-mock", pflag.ContinueOnError)
	flagSet.StringVar(&opts.listen, "listen", "127.0.0.1:8058", "TCP address to listen on")
	flagSet.StringVar(&opts.mode, "mode", "always", "instrumentation decision: always or never")
	flagSet.IntVar(&opts.methods, "methods", 1, "traced methods reported per instrumented class")
	flagSet.Int32Var(&hostID, "host-id", 1, "host id handed to every client")
	flagSet.Uint8Var(&hostBits, "host-bits", 8, "host id width in bits")
	flagSet.BoolVar(&opts.session.CaptureExceptions, "capture-exceptions", false, "ask clients to capture exceptions")
	flagSet.StringVar(&opts.session.CachePath, "cache-path", "", "class cache path sent to clients")
	flagSet.StringVar(&opts.session.WorkingSet, "working-set", "", "scope expression sent to clients")
	flagSet.StringVar(&opts.session.StructureDatabaseID, "structure-db", "", "structure database id sent to clients")
	flagSet.BoolVar(&opts.session.SkipCoreClasses, "skip-core", false, "ask clients to skip core platform classes")
	flagSet.CountVarP(&opts.verbosity, "verbose", "v", "increase log verbosity")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if showVersion {
		version.Print("loom-collector-mock")
		return nil
	}
	opts.session.HostID = hostID
	opts.session.HostBits = hostBits

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, opts)
}

// serve runs the collector until ctx is done.
func serve(ctx context.Context, opts options) error {
	logger := process.NewLogger(opts.verbosity + 1)

	instrumenter, err := instrumenterFor(opts.mode, opts.methods)
	if err != nil {
		return err
	}
	config := opts.session
	config.Instrumenter = instrumenter
	config.Logger = logger

	server, err := collectortest.Listen(opts.listen, config)
	if err != nil {
		return err
	}
	logger.Info("collector mock listening",
		"address", server.Address(),
		"mode", opts.mode,
		"host_id", config.HostID,
		"host_bits", config.HostBits,
	)

	<-ctx.Done()
	if err := server.Close(); err != nil {
		logger.Warn("closing listener", "error", err)
	}
	logger.Info("collector mock stopped",
		"clients", len(server.Clients()),
		"instrument_requests", server.Count(wire.InstrumentClass),
		"cached_classes", server.Count(wire.UseCachedClass),
		"registered_classes", server.Count(wire.RegisterClass),
		"flushes", server.Count(wire.Flush),
	)
	return nil
}
