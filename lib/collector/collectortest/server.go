// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package collectortest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/loomtrace/loom/lib/collector/wire"
	"github.com/loomtrace/loom/lib/schema"
)

// Response is an Instrumenter's answer for one class.
type Response struct {
	// Instrumented selects the answer; false means "leave it alone".
	Instrumented bool

	// Bytecode is the replacement class definition.
	Bytecode []byte

	// TracedMethods lists per-method metadata. A zero BehaviorID is
	// replaced with a server-allocated id.
	TracedMethods []schema.TracedMethod

	// Error, when non-empty, is sent as a collector failure instead of
	// any bytecode.
	Error string
}

// Instrumenter decides how to answer an instrument request. It may be
// called from several connection goroutines at once.
type Instrumenter func(name string, bytecode []byte) Response

// Prefix is prepended to bytecode by AlwaysInstrument.
var Prefix = []byte("LOOM")

// AlwaysInstrument returns an Instrumenter that instruments every
// class: the replacement is Prefix followed by the original bytes, with
// methods traced methods of mode 1.
func AlwaysInstrument(methods int) Instrumenter {
	return func(name string, bytecode []byte) Response {
		traced := make([]schema.TracedMethod, methods)
		for i := range traced {
			traced[i] = schema.TracedMethod{InstrumentationMode: 1}
		}
		return Response{
			Instrumented:  true,
			Bytecode:      append(bytes.Clone(Prefix), bytecode...),
			TracedMethods: traced,
		}
	}
}

// NeverInstrument answers "not instrumented" for every class.
func NeverInstrument(string, []byte) Response {
	return Response{}
}

// Config is the collector-side session configuration.
type Config struct {
	HostID              int32
	HostBits            uint8
	CaptureExceptions   bool
	CachePath           string
	WorkingSet          string
	StructureDatabaseID string
	SkipCoreClasses     bool

	// ExtraConfiguration is written verbatim before CONFIG_DONE, for
	// exercising unknown-command handling.
	ExtraConfiguration []byte

	// Instrumenter answers instrument requests. Nil means
	// AlwaysInstrument(1).
	Instrumenter Instrumenter

	// Logger receives connection diagnostics. Nil discards.
	Logger *slog.Logger
}

// Request is one command the server received.
type Request struct {
	Command  wire.Command
	Client   string
	Name     string
	Bytecode []byte
	ClassID  int32
	LastIDs  schema.LastIDs
}

// Server is a running stub collector.
type Server struct {
	config   Config
	listener net.Listener
	logger   *slog.Logger

	mu          sync.Mutex
	requests    []Request
	clients     []string
	connections map[net.Conn]struct{}
	lastIDs     schema.LastIDs
	closed      bool
	// notify is closed and replaced whenever a request is recorded.
	notify chan struct{}

	wg sync.WaitGroup
}

// Start listens on 127.0.0.1 with an ephemeral port.
func Start(config Config) (*Server, error) {
	return Listen("127.0.0.1:0", config)
}

// Listen starts a server on address.
func Listen(address string, config Config) (*Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}
	if config.Instrumenter == nil {
		config.Instrumenter = AlwaysInstrument(1)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	server := &Server{
		config:      config,
		listener:    listener,
		logger:      logger,
		connections: make(map[net.Conn]struct{}),
		notify:      make(chan struct{}),
	}
	server.wg.Add(1)
	go server.acceptLoop()
	return server, nil
}

// Address returns the listening address in host:port form.
func (s *Server) Address() string {
	return s.listener.Addr().String()
}

// Close stops accepting, closes open connections, and waits for every
// connection goroutine to exit.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	err := s.listener.Close()
	for conn := range s.connections {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// Requests returns a copy of every request received so far, in arrival
// order across all connections.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many requests carried command.
func (s *Server) Count(command wire.Command) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, request := range s.requests {
		if request.Command == command {
			count++
		}
	}
	return count
}

// Clients returns the client names of completed handshakes.
func (s *Server) Clients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.clients...)
}

// LastIDs returns the server's id counters.
func (s *Server) LastIDs() schema.LastIDs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastIDs
}

// WaitCount blocks until at least n requests carrying command have
// arrived or timeout elapses, and reports whether the count was
// reached. Commands without a response (everything except
// INSTRUMENT_CLASS) are otherwise racy to assert on.
func (s *Server) WaitCount(command wire.Command, n int, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		s.mu.Lock()
		notify := s.notify
		s.mu.Unlock()

		if s.Count(command) >= n {
			return true
		}
		select {
		case <-notify:
		case <-timer.C:
			return s.Count(command) >= n
		}
	}
}

func (s *Server) record(request Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, request)
	close(s.notify)
	s.notify = make(chan struct{})
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.connections[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.connections, conn)
				s.mu.Unlock()
				conn.Close()
			}()
			if err := s.serve(conn); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("stub collector connection failed", "remote", conn.RemoteAddr().String(), "error", err)
			}
		}()
	}
}

func (s *Server) serve(conn net.Conn) error {
	reader := wire.NewReader(conn)
	writer := wire.NewWriter(conn)

	client, err := s.handshake(reader, writer)
	if err != nil {
		return err
	}

	for {
		command, err := reader.ReadCommand()
		if err != nil {
			return err
		}
		request := Request{Command: command, Client: client}

		switch command {
		case wire.InstrumentClass:
			if request.Name, err = reader.ReadUTF(); err != nil {
				return err
			}
			if request.Bytecode, err = reader.ReadBlob(); err != nil {
				return err
			}
			s.record(request)
			if err := s.answerInstrument(writer, request.Name, request.Bytecode); err != nil {
				return err
			}
		case wire.UseCachedClass:
			if request.ClassID, err = reader.ReadInt32(); err != nil {
				return err
			}
			s.record(request)
		case wire.RegisterClass:
			if request.Name, err = reader.ReadUTF(); err != nil {
				return err
			}
			if request.Bytecode, err = reader.ReadBlob(); err != nil {
				return err
			}
			s.record(request)
		case wire.SyncCacheIDs:
			ids, err := readLastIDs(reader)
			if err != nil {
				return err
			}
			request.LastIDs = ids
			s.mu.Lock()
			s.lastIDs = s.lastIDs.Max(ids)
			s.mu.Unlock()
			s.record(request)
		case wire.Flush:
			s.record(request)
		default:
			return fmt.Errorf("unexpected command %d from %s", byte(command), client)
		}
	}
}

func (s *Server) handshake(reader *wire.Reader, writer *wire.Writer) (string, error) {
	signature, err := reader.ReadInt32()
	if err != nil {
		return "", err
	}
	if signature != wire.Signature {
		return "", fmt.Errorf("bad signature %#x", signature)
	}
	client, err := reader.ReadUTF()
	if err != nil {
		return "", err
	}
	if _, err := reader.ReadBool(); err != nil {
		return "", err
	}

	config := s.config
	steps := []func() error{
		func() error { return writer.WriteInt32(config.HostID) },
		func() error { return writer.WriteCommand(wire.SetHostBits) },
		func() error { return writer.WriteByte(config.HostBits) },
		func() error { return writer.WriteCommand(wire.SetCaptureExceptions) },
		func() error { return writer.WriteBool(config.CaptureExceptions) },
	}
	if config.CachePath != "" {
		steps = append(steps,
			func() error { return writer.WriteCommand(wire.SetCachePath) },
			func() error { return writer.WriteUTF(config.CachePath) })
	}
	if config.WorkingSet != "" {
		steps = append(steps,
			func() error { return writer.WriteCommand(wire.SetWorkingSet) },
			func() error { return writer.WriteUTF(config.WorkingSet) })
	}
	if config.StructureDatabaseID != "" {
		steps = append(steps,
			func() error { return writer.WriteCommand(wire.SetStructureDatabase) },
			func() error { return writer.WriteUTF(config.StructureDatabaseID) })
	}
	if config.SkipCoreClasses {
		steps = append(steps,
			func() error { return writer.WriteCommand(wire.SetSkipCoreClasses) },
			func() error { return writer.WriteBool(true) })
	}
	for _, extra := range config.ExtraConfiguration {
		steps = append(steps, func() error { return writer.WriteByte(extra) })
	}
	steps = append(steps,
		func() error { return writer.WriteCommand(wire.ConfigDone) },
		writer.Flush)

	for _, step := range steps {
		if err := step(); err != nil {
			return "", err
		}
	}

	s.mu.Lock()
	s.clients = append(s.clients, client)
	s.mu.Unlock()
	s.logger.Info("stub collector handshake", "client", client, "host_id", config.HostID)
	return client, nil
}

func (s *Server) answerInstrument(writer *wire.Writer, name string, bytecode []byte) error {
	response := s.config.Instrumenter(name, bytecode)

	if response.Error != "" {
		if err := writer.WriteInt32(wire.InstrumentErrorLength); err != nil {
			return err
		}
		if err := writer.WriteUTF(response.Error); err != nil {
			return err
		}
		return writer.Flush()
	}
	if !response.Instrumented || len(response.Bytecode) == 0 {
		if err := writer.WriteInt32(0); err != nil {
			return err
		}
		return writer.Flush()
	}

	s.mu.Lock()
	s.lastIDs.ClassID++
	classID := s.lastIDs.ClassID
	methods := make([]schema.TracedMethod, len(response.TracedMethods))
	for i, method := range response.TracedMethods {
		if method.BehaviorID == 0 {
			s.lastIDs.BehaviorID++
			method.BehaviorID = s.lastIDs.BehaviorID
		}
		methods[i] = method
	}
	lastIDs := s.lastIDs
	s.mu.Unlock()

	if err := writer.WriteBlob(response.Bytecode); err != nil {
		return err
	}
	if err := writer.WriteInt32(classID); err != nil {
		return err
	}
	if err := writer.WriteInt32(int32(len(methods))); err != nil {
		return err
	}
	for _, method := range methods {
		if err := writer.WriteInt32(method.BehaviorID); err != nil {
			return err
		}
		if err := writer.WriteByte(byte(method.InstrumentationMode)); err != nil {
			return err
		}
		if err := writer.WriteByte(byte(method.CallMode)); err != nil {
			return err
		}
	}
	for _, value := range []int32{lastIDs.ClassID, lastIDs.BehaviorID, lastIDs.FieldID} {
		if err := writer.WriteInt32(value); err != nil {
			return err
		}
	}
	return writer.Flush()
}

func readLastIDs(reader *wire.Reader) (schema.LastIDs, error) {
	var ids schema.LastIDs
	var err error
	if ids.ClassID, err = reader.ReadInt32(); err != nil {
		return ids, err
	}
	if ids.BehaviorID, err = reader.ReadInt32(); err != nil {
		return ids, err
	}
	if ids.FieldID, err = reader.ReadInt32(); err != nil {
		return ids, err
	}
	return ids, nil
}
