// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package protocol

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowline/glowline/pkg/errutil"
)

func TestVarInt(t *testing.T) {
	tests := []struct {
		value int32
		wire  []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{255, []byte{0xff, 0x01}},
		{25565, []byte{0xdd, 0xc7, 0x01}},
		{2097151, []byte{0xff, 0xff, 0x7f}},
		{2147483647, []byte{0xff, 0xff, 0xff, 0xff, 0x07}},
		{-1, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
		{-2147483648, []byte{0x80, 0x80, 0x80, 0x80, 0x08}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.wire, AppendVarInt(nil, tt.value), "encode %d", tt.value)

		got, err := ReadVarInt(bytes.NewReader(tt.wire))
		require.NoError(t, err, "decode %d", tt.value)
		assert.Equal(t, tt.value, got)

		d := decoder{buf: tt.wire}
		assert.Equal(t, tt.value, d.varInt())
		require.NoError(t, d.err)
	}
}

func TestReadVarInt_Errors(t *testing.T) {
	_, err := ReadVarInt(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)

	_, err = ReadVarInt(bytes.NewReader([]byte{0x80}))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = ReadVarInt(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x01}))
	errutil.AssertErrorCode(t, err, CodeMalformed)

	_, err = ReadVarInt(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0x1f}))
	errutil.AssertErrorCode(t, err, CodeMalformed)
}

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, 0x01, []byte("payload")))
	require.NoError(t, WriteFrame(&buf, 0x02, nil))

	r := bufio.NewReader(&buf)
	f, err := ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, Frame{ID: 0x01, Payload: []byte("payload")}, f)

	f, err = ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, int32(0x02), f.ID)
	assert.Empty(t, f.Payload)

	_, err = ReadFrame(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrame_Errors(t *testing.T) {
	tests := []struct {
		name string
		wire []byte
		code string
		is   error
	}{
		{"zero length", []byte{0x00}, CodeMalformed, nil},
		{"negative length", []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, CodeMalformed, nil},
		{"too long", AppendVarInt(nil, MaxFrameSize+1), CodeMalformed, nil},
		{"truncated body", []byte{0x05, 0x00, 0x01}, "", io.ErrUnexpectedEOF},
		{"truncated id", []byte{0x01, 0x80}, CodeMalformed, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bufio.NewReader(bytes.NewReader(tt.wire)))
			require.Error(t, err)
			if tt.code != "" {
				errutil.AssertErrorCode(t, err, tt.code)
			}
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestWriteFrame_TooLarge(t *testing.T) {
	err := WriteFrame(io.Discard, 0x00, make([]byte, MaxFrameSize))
	errutil.AssertErrorCode(t, err, CodeMalformed)
}

func payload(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func str(s string) []byte {
	return append(AppendVarInt(nil, int32(len(s))), s...)
}

func TestDecode_Handshake(t *testing.T) {
	wire := payload(AppendVarInt(nil, 47), str("play.example.com"), []byte{0x63, 0xdd}, AppendVarInt(nil, NextStateLogin))

	var hs Handshake
	require.NoError(t, Decode(wire, &hs))
	assert.Equal(t, Handshake{ProtocolVersion: 47, ServerAddress: "play.example.com", ServerPort: 25565, NextState: NextStateLogin}, hs)

	err := Decode(append(wire, 0x00), &hs)
	errutil.AssertErrorCode(t, err, CodeMalformed)
}

func TestDecode_LoginStart(t *testing.T) {
	var ls LoginStart
	require.NoError(t, Decode(str("Alice"), &ls))
	assert.Equal(t, "Alice", ls.Name)

	// Trailing fields from newer clients are ignored.
	require.NoError(t, Decode(payload(str("Alice"), make([]byte, 16)), &ls))
	assert.Equal(t, "Alice", ls.Name)

	tests := []struct {
		name string
		wire []byte
	}{
		{"empty name", str("")},
		{"too long", str(strings.Repeat("a", MaxUsernameLength+1))},
		{"invalid utf8", str("\xff\xfe")},
		{"length past end", []byte{0x10, 'a'}},
		{"nothing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ls LoginStart
			errutil.AssertErrorCode(t, Decode(tt.wire, &ls), CodeMalformed)
		})
	}
}

func TestDecode_EncryptionResponse(t *testing.T) {
	secret := bytes.Repeat([]byte{0xaa}, 128)
	token := bytes.Repeat([]byte{0xbb}, 128)
	wire := payload(AppendVarInt(nil, 128), secret, AppendVarInt(nil, 128), token)

	var er EncryptionResponse
	require.NoError(t, Decode(wire, &er))
	assert.Equal(t, secret, er.SharedSecret)
	assert.Equal(t, token, er.VerifyToken)

	wire[2] = 0xcc
	assert.Equal(t, byte(0xaa), er.SharedSecret[0], "decoded bytes must not alias the frame")

	errutil.AssertErrorCode(t, Decode(wire[:100], &er), CodeMalformed)
	errutil.AssertErrorCode(t, Decode(append(wire, 0x01), &er), CodeMalformed)
	errutil.AssertErrorCode(t, Decode(AppendVarInt(nil, maxCipherLength+1), &er), CodeMalformed)
}

func TestWrite_Clientbound(t *testing.T) {
	tests := []struct {
		name    string
		packet  Clientbound
		id      int32
		payload []byte
	}{
		{
			name:    "disconnect",
			packet:  Disconnect{Reason: `Invalid "token"`},
			id:      IDDisconnect,
			payload: str(`{"text":"Invalid \"token\""}`),
		},
		{
			name:    "encryption request",
			packet:  EncryptionRequest{ServerID: "abc", PublicKey: []byte{1, 2, 3}, VerifyToken: []byte{9, 8, 7, 6}},
			id:      IDEncryptionRequest,
			payload: payload(str("abc"), []byte{3, 1, 2, 3}, []byte{4, 9, 8, 7, 6}),
		},
		{
			name:    "login success",
			packet:  LoginSuccess{UUID: "4566e69f-c907-48ee-8d71-d7ba5aa00d20", Username: "Alice"},
			id:      IDLoginSuccess,
			payload: payload(str("4566e69f-c907-48ee-8d71-d7ba5aa00d20"), str("Alice")),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Write(&buf, tt.packet))

			f, err := ReadFrame(bufio.NewReader(&buf))
			require.NoError(t, err)
			assert.Equal(t, tt.id, f.ID)
			assert.Equal(t, tt.payload, f.Payload)
		})
	}
}

func TestExpect(t *testing.T) {
	var ls LoginStart
	require.NoError(t, Expect(Frame{ID: IDLoginStart, Payload: str("Alice")}, IDLoginStart, &ls))
	assert.Equal(t, "Alice", ls.Name)

	var er EncryptionResponse
	err := Expect(Frame{ID: IDLoginStart, Payload: str("Alice")}, IDEncryptionResponse, &er)
	errutil.AssertErrorCode(t, err, CodeMalformed)
	errutil.AssertErrorContext(t, err, "packet_id", IDLoginStart)
}

func TestReasonJSON(t *testing.T) {
	assert.Equal(t, `{"text":"The server is full!"}`, ReasonJSON("The server is full!"))
	assert.Equal(t, `{"text":"<b>"}`, ReasonJSON("<b>"))
}
