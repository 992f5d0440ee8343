// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Writer buffers outbound values. Nothing reaches the stream until
// Flush.
type Writer struct {
	buffer *bufio.Writer
}

// NewWriter returns a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{buffer: bufio.NewWriter(w)}
}

// WriteCommand writes a one-byte command.
func (w *Writer) WriteCommand(command Command) error {
	return w.WriteByte(byte(command))
}

// WriteByte writes one raw byte.
func (w *Writer) WriteByte(value byte) error {
	if err := w.buffer.WriteByte(value); err != nil {
		return fmt.Errorf("write byte: %w", err)
	}
	return nil
}

// WriteBool writes 1 or 0.
func (w *Writer) WriteBool(value bool) error {
	if value {
		return w.WriteByte(1)
	}
	return w.WriteByte(0)
}

// WriteInt32 writes a big-endian int32.
func (w *Writer) WriteInt32(value int32) error {
	var encoded [4]byte
	binary.BigEndian.PutUint32(encoded[:], uint32(value))
	if _, err := w.buffer.Write(encoded[:]); err != nil {
		return fmt.Errorf("write int32: %w", err)
	}
	return nil
}

// WriteUTF writes a 16-bit length-prefixed modified UTF-8 string.
func (w *Writer) WriteUTF(value string) error {
	encoded := EncodeModifiedUTF8(value)
	if len(encoded) > MaxUTFLength {
		return fmt.Errorf("string of %d encoded bytes exceeds %d", len(encoded), MaxUTFLength)
	}
	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], uint16(len(encoded)))
	if _, err := w.buffer.Write(prefix[:]); err != nil {
		return fmt.Errorf("write string length: %w", err)
	}
	if _, err := w.buffer.Write(encoded); err != nil {
		return fmt.Errorf("write string: %w", err)
	}
	return nil
}

// WriteBlob writes an int32 length followed by data.
func (w *Writer) WriteBlob(data []byte) error {
	if len(data) > MaxBlobLength {
		return fmt.Errorf("blob of %d bytes exceeds %d", len(data), MaxBlobLength)
	}
	if err := w.WriteInt32(int32(len(data))); err != nil {
		return err
	}
	if _, err := w.buffer.Write(data); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	return nil
}

// Flush sends buffered bytes to the stream.
func (w *Writer) Flush() error {
	if err := w.buffer.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Reader decodes inbound values. A short read mid-value returns an
// error wrapping io.ErrUnexpectedEOF; a clean end of stream before the
// first byte of a value returns io.EOF.
type Reader struct {
	buffer *bufio.Reader
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{buffer: bufio.NewReader(r)}
}

// ReadCommand reads a one-byte command.
func (r *Reader) ReadCommand() (Command, error) {
	value, err := r.ReadByte()
	return Command(value), err
}

// ReadByte reads one raw byte.
func (r *Reader) ReadByte() (byte, error) {
	value, err := r.buffer.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("read byte: %w", err)
	}
	return value, nil
}

// ReadInt8 reads a signed byte.
func (r *Reader) ReadInt8() (int8, error) {
	value, err := r.ReadByte()
	return int8(value), err
}

// ReadBool reads a byte; any non-zero value is true.
func (r *Reader) ReadBool() (bool, error) {
	value, err := r.ReadByte()
	return value != 0, err
}

// ReadInt32 reads a big-endian int32.
func (r *Reader) ReadInt32() (int32, error) {
	var encoded [4]byte
	if _, err := io.ReadFull(r.buffer, encoded[:]); err != nil {
		return 0, fmt.Errorf("read int32: %w", err)
	}
	return int32(binary.BigEndian.Uint32(encoded[:])), nil
}

// ReadUTF reads a 16-bit length-prefixed modified UTF-8 string.
func (r *Reader) ReadUTF() (string, error) {
	var prefix [2]byte
	if _, err := io.ReadFull(r.buffer, prefix[:]); err != nil {
		return "", fmt.Errorf("read string length: %w", err)
	}
	encoded := make([]byte, binary.BigEndian.Uint16(prefix[:]))
	if _, err := io.ReadFull(r.buffer, encoded); err != nil {
		return "", fmt.Errorf("read string: %w", noEOF(err))
	}
	return DecodeModifiedUTF8(encoded)
}

// ReadBlob reads an int32 length followed by that many bytes.
func (r *Reader) ReadBlob() ([]byte, error) {
	length, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	return r.ReadBytes(length)
}

// ReadBytes reads exactly length bytes after validating length against
// MaxBlobLength.
func (r *Reader) ReadBytes(length int32) ([]byte, error) {
	if length < 0 || length > MaxBlobLength {
		return nil, protocolErrorf("blob length %d outside [0, %d]", length, MaxBlobLength)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r.buffer, data); err != nil {
		return nil, fmt.Errorf("read blob: %w", noEOF(err))
	}
	return data, nil
}

// noEOF turns a clean EOF into ErrUnexpectedEOF for reads that follow
// an already consumed length prefix.
func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
