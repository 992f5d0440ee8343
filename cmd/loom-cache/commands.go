// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/loomtrace/loom/lib/classcache"
	"github.com/loomtrace/loom/lib/scope"
)

// openCache refuses to create a cache where none exists; Open would
// silently make an empty one.
func openCache(root string, logger *slog.Logger) (*classcache.Cache, error) {
	info, err := os.Stat(filepath.Join(root, "classes"))
	if err != nil {
		return nil, fmt.Errorf("%s is not a class cache: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a class cache: classes is not a directory", root)
	}
	return classcache.Open(root, classcache.Options{Logger: logger})
}

func runList(cache *classcache.Cache, stdout io.Writer) error {
	writer := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "CLASS\tINSTRUMENTED\tCLASS ID\tMETHODS\tSIZE\tSTORED\tCOMPRESSION")
	count := 0
	err := cache.Walk(func(entry classcache.Entry) error {
		count++
		if !entry.Instrumented {
			_, err := fmt.Fprintf(writer, "%s\tno\t-\t-\t-\t-\t-\n", entry.Name)
			return err
		}
		_, err := fmt.Fprintf(writer, "%s\tyes\t%d\t%d\t%d\t%d\t%s\n",
			entry.Name, entry.ClassID, entry.MethodCount, entry.Size, entry.StoredSize, entry.Compression)
		return err
	})
	if err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "%d classes\n", count)
	return err
}

func runShow(cache *classcache.Cache, name string, stdout io.Writer) error {
	entry, err := cache.Describe(name)
	if err != nil {
		return err
	}
	writer := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "name:\t%s\n", entry.Name)
	fmt.Fprintf(writer, "digest:\t%s\n", entry.Digest)
	fmt.Fprintf(writer, "instrumented:\t%t\n", entry.Instrumented)
	if entry.Instrumented {
		fmt.Fprintf(writer, "class id:\t%d\n", entry.ClassID)
		fmt.Fprintf(writer, "traced methods:\t%d\n", entry.MethodCount)
		fmt.Fprintf(writer, "size:\t%d\n", entry.Size)
		fmt.Fprintf(writer, "stored size:\t%d\n", entry.StoredSize)
		fmt.Fprintf(writer, "compression:\t%s\n", entry.Compression)
		fmt.Fprintf(writer, "content hash:\t%s\n", entry.ContentHash)
	}
	return writer.Flush()
}

// runVerify checks the named classes, or every class in the cache when
// names is empty.
func runVerify(cache *classcache.Cache, names []string, stdout io.Writer) error {
	if len(names) == 0 {
		// Walk holds the cache lock, so collect first and verify after.
		err := cache.Walk(func(entry classcache.Entry) error {
			names = append(names, entry.Name)
			return nil
		})
		if err != nil {
			return err
		}
	}

	failed := 0
	for _, name := range names {
		if err := cache.Verify(name); err != nil {
			if !errors.Is(err, classcache.ErrCorrupt) && !errors.Is(err, classcache.ErrNotFound) {
				return err
			}
			failed++
			fmt.Fprintf(stdout, "FAIL %s: %v\n", name, err)
			continue
		}
		fmt.Fprintf(stdout, "ok   %s\n", name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d classes failed verification", failed, len(names))
	}
	fmt.Fprintf(stdout, "%d classes verified\n", len(names))
	return nil
}

func runNamespace(args []string, stdout io.Writer) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("namespace takes WORKING_SET [STRUCTURE_DB]")
	}
	workingSet := args[0]
	structureDatabase := ""
	if len(args) == 2 {
		structureDatabase = args[1]
	}

	var operations []scope.Operation
	if workingSet != "" {
		set, err := scope.Parse(workingSet)
		if err != nil {
			return fmt.Errorf("working set: %w", err)
		}
		operations = set.Operations()
	}

	if _, err := fmt.Fprintln(stdout, classcache.Namespace(workingSet, structureDatabase)); err != nil {
		return err
	}
	for _, op := range operations {
		if _, err := fmt.Fprintf(stdout, "%s\t%s\n", op, op.Rule.Kind); err != nil {
			return err
		}
	}
	return nil
}
