// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"fmt"

	"github.com/loomtrace/loom/lib/collector/wire"
	"github.com/loomtrace/loom/lib/identity"
)

// HandshakeOptions identifies this process to the collector.
type HandshakeOptions struct {
	// ClientName is shown in the collector's host list.
	ClientName string

	// LegacyHost sets the mode byte that tells the collector to emit
	// bytecode for hosts without the newer class file features.
	LegacyHost bool
}

// Handshake sends the signature and client identity, then reads the
// host id and configuration commands up to CONFIG_DONE. It must be the
// first exchange on the stream. Unknown configuration commands are
// logged and skipped.
func (c *Client) Handshake(options HandshakeOptions) (*Session, error) {
	var session *Session
	err := c.exchange("handshake", func() error {
		if err := c.writer.WriteInt32(wire.Signature); err != nil {
			return err
		}
		if err := c.writer.WriteUTF(options.ClientName); err != nil {
			return err
		}
		if err := c.writer.WriteBool(options.LegacyHost); err != nil {
			return err
		}
		if err := c.writer.Flush(); err != nil {
			return err
		}

		hostID, err := c.reader.ReadInt32()
		if err != nil {
			return fmt.Errorf("reading host id: %w", err)
		}
		session = &Session{HostID: int64(hostID)}
		return c.readConfiguration(session)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("collector handshake complete",
		"host_id", session.HostID,
		"host_bits", session.HostBits,
		"capture_exceptions", session.CaptureExceptions,
		"cache_path", session.CachePath,
		"working_set", session.WorkingSet,
	)
	return session, nil
}

func (c *Client) readConfiguration(session *Session) error {
	for {
		command, err := c.reader.ReadCommand()
		if err != nil {
			return fmt.Errorf("reading configuration command: %w", err)
		}
		switch command {
		case wire.SetCaptureExceptions:
			if session.CaptureExceptions, err = c.reader.ReadBool(); err != nil {
				return err
			}
		case wire.SetHostBits:
			bits, err := c.reader.ReadByte()
			if err != nil {
				return err
			}
			session.HostBits = int(bits)
		case wire.SetCachePath:
			if session.CachePath, err = c.reader.ReadUTF(); err != nil {
				return err
			}
		case wire.SetWorkingSet:
			if session.WorkingSet, err = c.reader.ReadUTF(); err != nil {
				return err
			}
		case wire.SetStructureDatabase:
			if session.StructureDatabaseID, err = c.reader.ReadUTF(); err != nil {
				return err
			}
		case wire.SetSkipCoreClasses:
			if session.SkipCoreClasses, err = c.reader.ReadBool(); err != nil {
				return err
			}
		case wire.ConfigDone:
			return checkHostID(session)
		default:
			c.logger.Warn("ignoring unknown collector configuration command", "command", byte(command))
		}
	}
}

// checkHostID validates the host id against the announced width.
func checkHostID(session *Session) error {
	if session.HostBits > identity.MaxHostBits {
		return &wire.ProtocolError{Reason: fmt.Sprintf("host bits %d exceeds %d", session.HostBits, identity.MaxHostBits)}
	}
	if session.HostBits == 0 {
		session.HostID = 0
		return nil
	}
	mask := int64(1)<<uint(session.HostBits) - 1
	if session.HostID&mask != session.HostID {
		return fmt.Errorf("%w: host id %d, %d bits", ErrHostIDOverflow, session.HostID, session.HostBits)
	}
	return nil
}
