// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package classcache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/loomtrace/loom/lib/codec"
	"github.com/loomtrace/loom/lib/schema"
)

const idsFile = "ids.cbor"

// LoadLastIDs reads the persisted id counters. The boolean is false
// when none have been saved yet.
func (c *Cache) LoadLastIDs() (schema.LastIDs, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.lock.lockShared(); err != nil {
		return schema.LastIDs{}, false, err
	}
	defer c.lock.unlock()

	data, err := os.ReadFile(filepath.Join(c.root, idsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return schema.LastIDs{}, false, nil
	}
	if err != nil {
		return schema.LastIDs{}, false, fmt.Errorf("reading last ids: %w", err)
	}

	var ids schema.LastIDs
	if err := codec.Unmarshal(data, &ids); err != nil {
		return schema.LastIDs{}, false, fmt.Errorf("decoding last ids: %w", err)
	}
	return ids, true, nil
}

// SaveLastIDs persists the id counters, replacing any earlier values.
func (c *Cache) SaveLastIDs(ids schema.LastIDs) error {
	data, err := codec.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encoding last ids: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.lock.lockExclusive(); err != nil {
		return err
	}
	defer c.lock.unlock()

	if err := c.writeAtomic(filepath.Join(c.root, idsFile), data); err != nil {
		return fmt.Errorf("writing last ids: %w", err)
	}
	return nil
}
