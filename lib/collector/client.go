// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/loomtrace/loom/lib/clock"
	"github.com/loomtrace/loom/lib/collector/wire"
	"github.com/loomtrace/loom/lib/schema"
)

// MaxTracedMethods bounds the method table of one instrument response.
// A class file cannot declare more methods than this.
const MaxTracedMethods = 0xFFFF

// Options configures a Client.
type Options struct {
	// DialTimeout bounds connection establishment in Dial. Zero means
	// only the context deadline applies.
	DialTimeout time.Duration

	// Logger receives handshake diagnostics. Nil discards.
	Logger *slog.Logger

	// Observe, when set, is called after every request with the request
	// name ("handshake" or a command name such as "instrument_class")
	// and its wall-clock duration, including failed requests.
	Observe func(request string, elapsed time.Duration)

	// Clock times requests for Observe. Nil means clock.Real().
	Clock clock.Clock
}

// Client is a connection to the collector.
type Client struct {
	conn    io.ReadWriteCloser
	reader  *wire.Reader
	writer  *wire.Writer
	logger  *slog.Logger
	observe func(string, time.Duration)
	clock   clock.Clock

	mu sync.Mutex
	// broken holds the first failure; once set, every call returns it.
	broken error
}

// Dial opens a TCP connection to the collector at address. The context
// bounds connection establishment only; later requests have no
// timeout.
func Dial(ctx context.Context, address string, options Options) (*Client, error) {
	dialer := net.Dialer{Timeout: options.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("connecting to collector at %s: %w", address, err)
	}
	return NewClient(conn, options), nil
}

// NewClient wraps an established stream.
func NewClient(conn io.ReadWriteCloser, options Options) *Client {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timer := options.Clock
	if timer == nil {
		timer = clock.Real()
	}
	return &Client{
		conn:    conn,
		reader:  wire.NewReader(conn),
		writer:  wire.NewWriter(conn),
		logger:  logger,
		observe: options.Observe,
		clock:   timer,
	}
}

// Close closes the stream. Calls after Close return ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken == ErrClosed {
		return nil
	}
	c.broken = ErrClosed
	return c.conn.Close()
}

// exchange runs fn with the stream to itself. A failure from fn breaks
// the client, except for *ServerError, which leaves the stream
// aligned at the next response.
func (c *Client) exchange(request string, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken != nil {
		return c.broken
	}

	start := c.clock.Now()
	err := fn()
	if c.observe != nil {
		c.observe(request, clock.Since(c.clock, start))
	}
	var serverError *ServerError
	if err != nil && !errors.As(err, &serverError) {
		c.broken = fmt.Errorf("collector %s: %w", request, err)
		return c.broken
	}
	return err
}

// InstrumentResult is the collector's answer to an instrument request.
type InstrumentResult struct {
	// Instrumented is false when the collector left the class alone.
	// The other fields are then zero.
	Instrumented  bool
	Bytecode      []byte
	ClassID       int32
	TracedMethods []schema.TracedMethod

	// LastIDs is the collector's id counters after this class.
	LastIDs schema.LastIDs
}

// Instrument sends a class definition and reads the collector's
// answer. A collector-reported failure is a *ServerError; a malformed
// response is a *wire.ProtocolError.
func (c *Client) Instrument(name string, bytecode []byte) (*InstrumentResult, error) {
	var result *InstrumentResult
	err := c.exchange(wire.InstrumentClass.String(), func() error {
		if err := c.writer.WriteCommand(wire.InstrumentClass); err != nil {
			return err
		}
		if err := c.writer.WriteUTF(name); err != nil {
			return err
		}
		if err := c.writer.WriteBlob(bytecode); err != nil {
			return err
		}
		if err := c.writer.Flush(); err != nil {
			return err
		}

		var err error
		result, err = c.readInstrumentResponse(name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) readInstrumentResponse(name string) (*InstrumentResult, error) {
	length, err := c.reader.ReadInt32()
	if err != nil {
		return nil, err
	}
	switch {
	case length == 0:
		return &InstrumentResult{}, nil
	case length == wire.InstrumentErrorLength:
		message, err := c.reader.ReadUTF()
		if err != nil {
			return nil, err
		}
		return nil, &ServerError{Class: name, Message: message}
	case length < 0:
		return nil, &wire.ProtocolError{Reason: fmt.Sprintf("instrument response length %d for %s", length, name)}
	}

	bytecode, err := c.reader.ReadBytes(length)
	if err != nil {
		return nil, err
	}
	classID, err := c.reader.ReadInt32()
	if err != nil {
		return nil, err
	}
	count, err := c.reader.ReadInt32()
	if err != nil {
		return nil, err
	}
	if count < 0 || count > MaxTracedMethods {
		return nil, &wire.ProtocolError{Reason: fmt.Sprintf("traced method count %d for %s", count, name)}
	}

	methods := make([]schema.TracedMethod, count)
	for i := range methods {
		if methods[i], err = c.readTracedMethod(); err != nil {
			return nil, err
		}
	}

	lastIDs, err := c.readLastIDs()
	if err != nil {
		return nil, err
	}

	return &InstrumentResult{
		Instrumented:  true,
		Bytecode:      bytecode,
		ClassID:       classID,
		TracedMethods: methods,
		LastIDs:       lastIDs,
	}, nil
}

func (c *Client) readTracedMethod() (schema.TracedMethod, error) {
	var method schema.TracedMethod
	var err error
	if method.BehaviorID, err = c.reader.ReadInt32(); err != nil {
		return method, err
	}
	if method.InstrumentationMode, err = c.reader.ReadInt8(); err != nil {
		return method, err
	}
	if method.CallMode, err = c.reader.ReadInt8(); err != nil {
		return method, err
	}
	return method, nil
}

func (c *Client) readLastIDs() (schema.LastIDs, error) {
	var ids schema.LastIDs
	var err error
	if ids.ClassID, err = c.reader.ReadInt32(); err != nil {
		return ids, err
	}
	if ids.BehaviorID, err = c.reader.ReadInt32(); err != nil {
		return ids, err
	}
	if ids.FieldID, err = c.reader.ReadInt32(); err != nil {
		return ids, err
	}
	return ids, nil
}

// UseCachedClass tells the collector that the class with classID was
// defined from the local cache.
func (c *Client) UseCachedClass(classID int32) error {
	return c.exchange(wire.UseCachedClass.String(), func() error {
		if err := c.writer.WriteCommand(wire.UseCachedClass); err != nil {
			return err
		}
		if err := c.writer.WriteInt32(classID); err != nil {
			return err
		}
		return c.writer.Flush()
	})
}

// RegisterClass reports a class that was loaded without
// instrumentation. There is no response.
func (c *Client) RegisterClass(name string, bytecode []byte) error {
	return c.exchange(wire.RegisterClass.String(), func() error {
		if err := c.writer.WriteCommand(wire.RegisterClass); err != nil {
			return err
		}
		if err := c.writer.WriteUTF(name); err != nil {
			return err
		}
		if err := c.writer.WriteBlob(bytecode); err != nil {
			return err
		}
		return c.writer.Flush()
	})
}

// SyncCacheIDs pushes persisted id counters so the collector does not
// reissue ids baked into cached classes.
func (c *Client) SyncCacheIDs(ids schema.LastIDs) error {
	return c.exchange(wire.SyncCacheIDs.String(), func() error {
		if err := c.writer.WriteCommand(wire.SyncCacheIDs); err != nil {
			return err
		}
		for _, value := range []int32{ids.ClassID, ids.BehaviorID, ids.FieldID} {
			if err := c.writer.WriteInt32(value); err != nil {
				return err
			}
		}
		return c.writer.Flush()
	})
}

// Flush asks the collector to flush its buffers. Sent at shutdown.
func (c *Client) Flush() error {
	return c.exchange(wire.Flush.String(), func() error {
		if err := c.writer.WriteCommand(wire.Flush); err != nil {
			return err
		}
		return c.writer.Flush()
	})
}
