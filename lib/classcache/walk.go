// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package classcache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by Verify when no usable record exists for
// the class.
var ErrNotFound = errors.New("class not in cache")

// Walk calls fn for every decodable record in the cache. Undecodable
// or outdated records are skipped. The order follows the directory
// tree (lexical by escaped name). Walk holds the shared lock for its
// whole duration, so fn must not call back into the Cache.
func (c *Cache) Walk(fn func(Entry) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.lock.lockShared(); err != nil {
		return err
	}
	defer c.lock.unlock()

	classesRoot := filepath.Join(c.root, classesDir)
	return filepath.WalkDir(classesRoot, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || entry.Name() != metadataFile {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		metadata, err := unmarshalMetadata(data)
		if err != nil || metadata.Version != metadataVersion {
			c.logger.Debug("skipping unreadable cache record", "path", path)
			return nil
		}
		return fn(metadata.entry())
	})
}

// Describe returns the stored entry for name without reading its
// bytecode.
func (c *Cache) Describe(name string) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.lock.lockShared(); err != nil {
		return Entry{}, err
	}
	defer c.lock.unlock()

	metadata, ok, err := c.readMetadata(name, c.classPath(name))
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return metadata.entry(), nil
}

// Verify re-reads the stored bytecode of name and checks it against
// the recorded content hash. Records that are not instrumented have
// nothing to verify and pass. A missing record returns ErrNotFound; a
// failed check returns an error wrapping ErrCorrupt.
func (c *Cache) Verify(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.lock.lockShared(); err != nil {
		return err
	}
	defer c.lock.unlock()

	directory := c.classPath(name)
	metadata, ok, err := c.readMetadata(name, directory)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if !metadata.Instrumented {
		return nil
	}
	_, ok, err = c.readBytecode(name, directory, metadata)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s: bytecode file missing", ErrNotFound, name)
	}
	return nil
}
