// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package classcache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/loomtrace/loom/lib/digest"
	"github.com/loomtrace/loom/lib/schema"
)

// Directory and file names within the cache root.
const (
	classesDir   = "classes"
	tmpDir       = "tmp"
	lockFile     = ".lock"
	metadataFile = "info.cbor"
	bytecodeFile = "class.bin"
)

// ErrCorrupt reports a stored bytecode file that does not match the
// content hash in its metadata. The cache cannot tell which of the two
// is right, so callers treat it as fatal.
var ErrCorrupt = errors.New("class cache entry is corrupt")

// Options configures a Cache.
type Options struct {
	// Compression is the policy for new bytecode files. Existing files
	// are read with whatever tag their metadata records.
	Compression CompressionTag

	// Logger receives debug lines for misses. Nil discards.
	Logger *slog.Logger
}

// Cache is an open cache root.
type Cache struct {
	root        string
	compression CompressionTag
	logger      *slog.Logger

	mu   sync.Mutex
	lock *fileLock
}

// Open creates the cache directories under root if needed and returns
// a Cache. Opening an existing root is idempotent.
func Open(root string, options Options) (*Cache, error) {
	if root == "" {
		return nil, fmt.Errorf("class cache root is empty")
	}
	switch options.Compression {
	case CompressionNone, CompressionLZ4, CompressionZstd, CompressionAuto:
	default:
		return nil, fmt.Errorf("unsupported compression policy %s", options.Compression)
	}

	for _, dir := range []string{
		root,
		filepath.Join(root, classesDir),
		filepath.Join(root, tmpDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory %s: %w", dir, err)
		}
	}

	lock, err := openFileLock(filepath.Join(root, lockFile))
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Cache{
		root:        root,
		compression: options.Compression,
		logger:      logger,
		lock:        lock,
	}, nil
}

// Root returns the cache root directory.
func (c *Cache) Root() string { return c.root }

// Close releases the lock file. The Cache must not be used afterwards.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lock.close()
}

// Lookup returns the stored decision for (name, sum). The boolean is
// false on a miss: no record, an unreadable or outdated record, a
// digest mismatch, or an instrumented record whose bytecode file is
// missing. A bytecode file that fails verification returns an error
// wrapping ErrCorrupt. Other errors are I/O failures.
func (c *Cache) Lookup(name string, sum digest.Digest) (*schema.ClassRecord, bool, error) {
	if name == "" {
		return nil, false, fmt.Errorf("looking up class with empty name")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.lock.lockShared(); err != nil {
		return nil, false, err
	}
	defer c.lock.unlock()

	directory := c.classPath(name)
	metadata, ok, err := c.readMetadata(name, directory)
	if err != nil || !ok {
		return nil, false, err
	}
	if metadata.Digest != sum {
		c.logger.Debug("class cache digest mismatch",
			"class", name, "stored", metadata.Digest.String(), "requested", sum.String())
		return nil, false, nil
	}

	record := &schema.ClassRecord{
		Name:          name,
		Digest:        sum,
		Instrumented:  metadata.Instrumented,
		ClassID:       metadata.ClassID,
		TracedMethods: metadata.TracedMethods,
	}
	if !metadata.Instrumented {
		return record, true, nil
	}

	bytecode, ok, err := c.readBytecode(name, directory, metadata)
	if err != nil || !ok {
		return nil, false, err
	}
	record.Bytecode = bytecode
	return record, true, nil
}

// readMetadata loads and checks info.cbor. Missing, undecodable, or
// mismatched records report ok false with no error.
func (c *Cache) readMetadata(name, directory string) (*metadataRecord, bool, error) {
	data, err := os.ReadFile(filepath.Join(directory, metadataFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache metadata for %s: %w", name, err)
	}

	metadata, err := unmarshalMetadata(data)
	if err != nil {
		c.logger.Debug("class cache metadata undecodable", "class", name, "error", err)
		return nil, false, nil
	}
	if metadata.Version != metadataVersion || metadata.Name != name {
		c.logger.Debug("class cache metadata stale",
			"class", name, "version", metadata.Version, "stored_name", metadata.Name)
		return nil, false, nil
	}
	return metadata, true, nil
}

// readBytecode loads class.bin and verifies it against metadata.
func (c *Cache) readBytecode(name, directory string, metadata *metadataRecord) ([]byte, bool, error) {
	encoded, err := os.ReadFile(filepath.Join(directory, bytecodeFile))
	if errors.Is(err, fs.ErrNotExist) {
		c.logger.Debug("class cache bytecode missing", "class", name)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cached bytecode for %s: %w", name, err)
	}

	if metadata.Size < 0 || metadata.Size > maxBytecodeSize {
		return nil, false, fmt.Errorf("%w: %s: recorded size %d outside [0, %d]", ErrCorrupt, name, metadata.Size, maxBytecodeSize)
	}
	bytecode, err := decompress(encoded, metadata.Compression, int(metadata.Size))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	if hashBytecode(bytecode) != metadata.ContentHash {
		return nil, false, fmt.Errorf("%w: %s: bytecode hash mismatch", ErrCorrupt, name)
	}
	return bytecode, true, nil
}

// Store persists record, replacing any earlier decision for the same
// class name. Instrumented records write metadata then bytecode; other
// records write metadata only. Every error is an I/O or encoding
// failure.
func (c *Cache) Store(record *schema.ClassRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("storing class record: %w", err)
	}

	metadata := &metadataRecord{
		Version:      metadataVersion,
		Name:         record.Name,
		Digest:       record.Digest,
		Instrumented: record.Instrumented,
	}

	var encoded []byte
	if record.Instrumented {
		var (
			tag CompressionTag
			err error
		)
		encoded, tag, err = compress(record.Bytecode, c.compression)
		if err != nil {
			return fmt.Errorf("compressing bytecode for %s: %w", record.Name, err)
		}
		metadata.ClassID = record.ClassID
		metadata.TracedMethods = record.TracedMethods
		metadata.Compression = tag
		metadata.Size = int64(len(record.Bytecode))
		metadata.StoredSize = int64(len(encoded))
		metadata.ContentHash = hashBytecode(record.Bytecode)
	}

	data, err := marshalMetadata(metadata)
	if err != nil {
		return fmt.Errorf("marshaling cache metadata for %s: %w", record.Name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.lock.lockExclusive(); err != nil {
		return err
	}
	defer c.lock.unlock()

	directory := c.classPath(record.Name)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("creating cache directory for %s: %w", record.Name, err)
	}

	bytecodePath := filepath.Join(directory, bytecodeFile)
	if err := os.Remove(bytecodePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing stale bytecode for %s: %w", record.Name, err)
	}
	if err := c.writeAtomic(filepath.Join(directory, metadataFile), data); err != nil {
		return fmt.Errorf("writing cache metadata for %s: %w", record.Name, err)
	}
	if !record.Instrumented {
		return nil
	}
	if err := c.writeAtomic(bytecodePath, encoded); err != nil {
		return fmt.Errorf("writing cached bytecode for %s: %w", record.Name, err)
	}
	return nil
}

// writeAtomic writes data to a temp file under tmp/ and renames it
// into place.
func (c *Cache) writeAtomic(finalPath string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Join(c.root, tmpDir), "entry-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming to %s: %w", finalPath, err)
	}

	success = true
	return nil
}

func (c *Cache) classPath(name string) string {
	return filepath.Join(c.root, classesDir, filepath.FromSlash(EscapeName(name)))
}
