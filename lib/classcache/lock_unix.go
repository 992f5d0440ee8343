// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package classcache

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// fileLock is an advisory flock(2) on a file shared by every process
// using the same cache root. Callers serialize their own goroutines;
// the lock only arbitrates between processes.
type fileLock struct {
	file *os.File
}

func openFileLock(path string) (*fileLock, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening cache lock %s: %w", path, err)
	}
	return &fileLock{file: file}, nil
}

func (l *fileLock) lockShared() error {
	return l.flock(unix.LOCK_SH)
}

func (l *fileLock) lockExclusive() error {
	return l.flock(unix.LOCK_EX)
}

func (l *fileLock) unlock() error {
	return l.flock(unix.LOCK_UN)
}

func (l *fileLock) flock(how int) error {
	for {
		err := unix.Flock(int(l.file.Fd()), how)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("flock %s: %w", l.file.Name(), err)
		}
		return nil
	}
}

func (l *fileLock) close() error {
	return l.file.Close()
}
