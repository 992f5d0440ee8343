// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// loom-cache inspects a class cache directory.
//
//	loom-cache --root DIR list
//	loom-cache --root DIR show CLASS
//	loom-cache --root DIR verify [CLASS...]
//	loom-cache namespace WORKING_SET [STRUCTURE_DB]
//
// list prints one line per stored class. show prints every recorded
// field of one class. verify re-reads stored bytecode and checks it
// against the recorded content hash, for the named classes or for the
// whole cache, and exits non-zero when any check fails. namespace
// prints the directory name the runtime derives for a working set when
// only a cache root is configured, followed by one line per parsed rule
// (operation and rule kind, tab separated) in evaluation-list order.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/loomtrace/loom/lib/process"
	"github.com/loomtrace/loom/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		process.Fatal(err)
	}
}

func run(args []string, stdout io.Writer) error {
	var root string
	var verbosity int
	var showVersion bool

	flagSet := pflag.NewFlagSet("loom-cache", pflag.ContinueOnError)
	flagSet.StringVar(&root, "root", "", "cache directory (the one containing classes/)")
	flagSet.CountVarP(&verbosity, "verbose", "v", "increase log verbosity")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.SetInterspersed(false)
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if showVersion {
		version.Print("loom-cache")
		return nil
	}

	logger := process.NewLogger(verbosity)

	rest := flagSet.Args()
	if len(rest) == 0 {
		return fmt.Errorf("missing command (list, show, verify, namespace)")
	}
	command, rest := rest[0], rest[1:]

	if command == "namespace" {
		return runNamespace(rest, stdout)
	}
	if root == "" {
		return fmt.Errorf("%s requires --root", command)
	}

	cache, err := openCache(root, logger)
	if err != nil {
		return err
	}
	defer cache.Close()

	switch command {
	case "list":
		if len(rest) != 0 {
			return fmt.Errorf("list takes no arguments")
		}
		return runList(cache, stdout)
	case "show":
		if len(rest) != 1 {
			return fmt.Errorf("show takes exactly one class name")
		}
		return runShow(cache, rest[0], stdout)
	case "verify":
		return runVerify(cache, rest, stdout)
	default:
		return fmt.Errorf("unknown command %q (want list, show, verify, namespace)", command)
	}
}
