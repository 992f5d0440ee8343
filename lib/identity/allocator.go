// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// MaxHostBits is the widest host id field that still leaves room for
// a counter value of 1 below the sign bit.
const MaxHostBits = 62

// ErrExhausted is returned when the counter has no representable
// values left.
var ErrExhausted = errors.New("object id space exhausted")

// Allocator hands out host-prefixed object ids. Safe for concurrent
// use; the counter is guarded by its own mutex, independent of any
// class-loading lock.
type Allocator struct {
	hostID   int64
	hostBits uint

	mu      sync.Mutex
	counter int64
}

// New returns an allocator for hostID with a hostBits-wide host field.
// hostID must fit in hostBits; a zero width requires a zero host id.
func New(hostID int64, hostBits int) (*Allocator, error) {
	if hostBits < 0 || hostBits > MaxHostBits {
		return nil, fmt.Errorf("host bit width %d out of range [0, %d]", hostBits, MaxHostBits)
	}
	mask := int64(1)<<uint(hostBits) - 1
	if hostID < 0 || hostID&mask != hostID {
		return nil, fmt.Errorf("host id %d does not fit in %d bits", hostID, hostBits)
	}
	return &Allocator{hostID: hostID, hostBits: uint(hostBits)}, nil
}

// HostID returns the host id carried in the low bits of every id.
func (a *Allocator) HostID() int64 { return a.hostID }

// HostBits returns the width of the host id field.
func (a *Allocator) HostBits() int { return int(a.hostBits) }

// AssignIfAbsent returns tag unchanged when it is non-zero (the object
// already has an id). Otherwise it allocates a new id and reports
// fresh as true; the caller stores the id back into the tag slot.
func (a *Allocator) AssignIfAbsent(tag int64) (id int64, fresh bool, err error) {
	if tag != 0 {
		return tag, false, nil
	}
	id, err = a.Next()
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// Next allocates an id unconditionally.
func (a *Allocator) Next() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.counter >= math.MaxInt64>>a.hostBits {
		return 0, fmt.Errorf("%w: counter %d with %d host bits", ErrExhausted, a.counter, a.hostBits)
	}
	a.counter++
	return a.counter<<a.hostBits | a.hostID, nil
}

// Allocated returns how many ids have been handed out.
func (a *Allocator) Allocated() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counter
}
