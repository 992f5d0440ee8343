// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !unix

package classcache

// fileLock is a no-op where flock(2) is unavailable. A cache root is
// then safe for one process only.
type fileLock struct{}

func openFileLock(string) (*fileLock, error) { return &fileLock{}, nil }

func (*fileLock) lockShared() error    { return nil }
func (*fileLock) lockExclusive() error { return nil }
func (*fileLock) unlock() error        { return nil }
func (*fileLock) close() error         { return nil }
