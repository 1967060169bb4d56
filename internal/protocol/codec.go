// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package protocol

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/samber/oops"
)

type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) fail(field string, format string, args ...any) {
	if d.err == nil {
		d.err = oops.Code(CodeMalformed).With("field", field).Errorf(format, args...)
	}
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.off
}

func (d *decoder) varInt() int32 {
	if d.err != nil {
		return 0
	}
	var v uint64
	for i := 0; i < maxVarIntLen; i++ {
		if d.off >= len(d.buf) {
			d.fail("varint", "truncated varint")
			return 0
		}
		b := d.buf[d.off]
		d.off++
		v |= uint64(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			if v > 0xffffffff {
				d.fail("varint", "varint overflows 32 bits")
				return 0
			}
			return int32(uint32(v)) //nolint:gosec // two's complement reinterpretation is the wire format
		}
	}
	d.fail("varint", "varint longer than %d bytes", maxVarIntLen)
	return 0
}

func (d *decoder) string(field string, maxRunes int) string {
	n := d.varInt()
	if d.err != nil {
		return ""
	}
	if n < 0 || int(n) > maxRunes*utf8.UTFMax || int(n) > d.remaining() {
		d.fail(field, "string length %d out of range", n)
		return ""
	}
	raw := d.buf[d.off : d.off+int(n)]
	d.off += int(n)
	if !utf8.Valid(raw) {
		d.fail(field, "string is not valid UTF-8")
		return ""
	}
	if utf8.RuneCount(raw) > maxRunes {
		d.fail(field, "string longer than %d characters", maxRunes)
		return ""
	}
	return string(raw)
}

func (d *decoder) bytes(field string, maxLen int) []byte {
	n := d.varInt()
	if d.err != nil {
		return nil
	}
	if n < 0 || int(n) > maxLen || int(n) > d.remaining() {
		d.fail(field, "byte array length %d out of range", n)
		return nil
	}
	out := make([]byte, n)
	copy(out, d.buf[d.off:])
	d.off += int(n)
	return out
}

func (d *decoder) uint16(field string) uint16 {
	if d.err != nil {
		return 0
	}
	if d.remaining() < 2 {
		d.fail(field, "truncated uint16")
		return 0
	}
	v := binary.BigEndian.Uint16(d.buf[d.off:])
	d.off += 2
	return v
}

func (d *decoder) end(strict bool) error {
	if d.err == nil && strict && d.remaining() != 0 {
		d.fail("payload", "%d trailing bytes", d.remaining())
	}
	return d.err
}

type encoder struct {
	buf []byte
}

func (e *encoder) varInt(v int32) {
	e.buf = AppendVarInt(e.buf, v)
}

func (e *encoder) string(s string) {
	e.varInt(int32(len(s))) //nolint:gosec // packet strings are far below 2^31
	e.buf = append(e.buf, s...)
}

func (e *encoder) bytes(b []byte) {
	e.varInt(int32(len(b))) //nolint:gosec // bounded by MaxFrameSize
	e.buf = append(e.buf, b...)
}
