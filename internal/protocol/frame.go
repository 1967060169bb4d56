// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

// Package protocol reads and writes the packets exchanged before a player
// is logged in.
//
// Every packet travels in a frame: a VarInt length followed by that many
// bytes, the first of which encode the packet id as a VarInt.
package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/samber/oops"
)

// MaxFrameSize bounds a single frame.
const MaxFrameSize = 2 << 20

// CodeMalformed marks frames and packets that cannot be decoded.
const CodeMalformed = "PROTOCOL_MALFORMED"

const maxVarIntLen = 5

// ByteReader is what ReadFrame reads from, typically a *bufio.Reader.
type ByteReader interface {
	io.Reader
	io.ByteReader
}

// Frame is one decoded frame.
type Frame struct {
	ID      int32
	Payload []byte
}

// ReadVarInt reads a VarInt of at most five bytes.
func ReadVarInt(r io.ByteReader) (int32, error) {
	var v uint64
	for i := 0; i < maxVarIntLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if i > 0 && errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return 0, err //nolint:wrapcheck // callers see raw I/O errors
		}
		v |= uint64(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			if v > math.MaxUint32 {
				return 0, oops.Code(CodeMalformed).Errorf("varint overflows 32 bits")
			}
			return int32(uint32(v)), nil //nolint:gosec // two's complement reinterpretation is the wire format
		}
	}
	return 0, oops.Code(CodeMalformed).Errorf("varint longer than %d bytes", maxVarIntLen)
}

// AppendVarInt appends v in VarInt form.
func AppendVarInt(b []byte, v int32) []byte {
	return binary.AppendUvarint(b, uint64(uint32(v))) //nolint:gosec // two's complement reinterpretation is the wire format
}

// ReadFrame reads one frame. io.EOF is returned untouched when the stream
// ends cleanly between frames.
func ReadFrame(r ByteReader) (Frame, error) {
	length, err := ReadVarInt(r)
	if err != nil {
		return Frame{}, err
	}
	if length <= 0 || length > MaxFrameSize {
		return Frame{}, oops.Code(CodeMalformed).
			With("length", length).
			Errorf("frame length out of range")
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, err //nolint:wrapcheck // callers see raw I/O errors
	}

	d := decoder{buf: buf}
	id := d.varInt()
	if d.err != nil {
		return Frame{}, d.err
	}
	return Frame{ID: id, Payload: buf[d.off:]}, nil
}

// WriteFrame writes id and payload as one frame with a single Write.
func WriteFrame(w io.Writer, id int32, payload []byte) error {
	body := AppendVarInt(make([]byte, 0, maxVarIntLen+len(payload)), id)
	body = append(body, payload...)
	if len(body) > MaxFrameSize {
		return oops.Code(CodeMalformed).
			With("length", len(body)).
			Errorf("frame too large")
	}
	out := AppendVarInt(make([]byte, 0, maxVarIntLen+len(body)), int32(len(body))) //nolint:gosec // bounded by MaxFrameSize
	out = append(out, body...)
	_, err := w.Write(out)
	return err //nolint:wrapcheck // callers see raw I/O errors
}
