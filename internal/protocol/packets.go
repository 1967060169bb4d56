// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package protocol

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/samber/oops"
)

// Packet ids. Serverbound and clientbound ids overlap.
const (
	IDHandshake          int32 = 0x00
	IDLoginStart         int32 = 0x00
	IDEncryptionResponse int32 = 0x01

	IDDisconnect        int32 = 0x00
	IDEncryptionRequest int32 = 0x01
	IDLoginSuccess      int32 = 0x02
)

// Handshake next states.
const (
	NextStateStatus int32 = 1
	NextStateLogin  int32 = 2
)

// Field limits.
const (
	MaxUsernameLength = 16
	maxAddressLength  = 255
	maxCipherLength   = 1024
)

// Serverbound packets can be decoded from a frame payload.
type Serverbound interface {
	decode(d *decoder) error
}

// Clientbound packets can be written to a client.
type Clientbound interface {
	PacketID() int32
	encode(e *encoder)
}

// Decode fills p from payload.
func Decode(payload []byte, p Serverbound) error {
	return p.decode(&decoder{buf: payload})
}

// Write frames p and writes it to w.
func Write(w io.Writer, p Clientbound) error {
	var e encoder
	p.encode(&e)
	return WriteFrame(w, p.PacketID(), e.buf)
}

// Handshake opens every connection and selects the next state.
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       int32
}

func (p *Handshake) decode(d *decoder) error {
	p.ProtocolVersion = d.varInt()
	p.ServerAddress = d.string("server_address", maxAddressLength)
	p.ServerPort = d.uint16("server_port")
	p.NextState = d.varInt()
	return d.end(true)
}

// LoginStart carries the name the client wants to log in as. Newer
// clients append fields after the name; they are ignored.
type LoginStart struct {
	Name string
}

func (p *LoginStart) decode(d *decoder) error {
	p.Name = d.string("name", MaxUsernameLength)
	if d.err == nil && p.Name == "" {
		d.fail("name", "empty name")
	}
	return d.end(false)
}

// EncryptionResponse carries the RSA encrypted shared secret and verify
// token.
type EncryptionResponse struct {
	SharedSecret []byte
	VerifyToken  []byte
}

func (p *EncryptionResponse) decode(d *decoder) error {
	p.SharedSecret = d.bytes("shared_secret", maxCipherLength)
	p.VerifyToken = d.bytes("verify_token", maxCipherLength)
	return d.end(true)
}

// Disconnect drops the client during login with a chat component reason.
type Disconnect struct {
	Reason string
}

// PacketID implements Clientbound.
func (Disconnect) PacketID() int32 { return IDDisconnect }

func (p Disconnect) encode(e *encoder) {
	e.string(ReasonJSON(p.Reason))
}

// ReasonJSON renders text as a plain chat component.
func ReasonJSON(text string) string {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(struct {
		Text string `json:"text"`
	}{Text: text}); err != nil {
		return `{"text":""}`
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// EncryptionRequest asks the client to authenticate and encrypt.
type EncryptionRequest struct {
	ServerID    string
	PublicKey   []byte
	VerifyToken []byte
}

// PacketID implements Clientbound.
func (EncryptionRequest) PacketID() int32 { return IDEncryptionRequest }

func (p EncryptionRequest) encode(e *encoder) {
	e.string(p.ServerID)
	e.bytes(p.PublicKey)
	e.bytes(p.VerifyToken)
}

// LoginSuccess completes the login.
type LoginSuccess struct {
	// UUID in dashed form.
	UUID     string
	Username string
}

// PacketID implements Clientbound.
func (LoginSuccess) PacketID() int32 { return IDLoginSuccess }

func (p LoginSuccess) encode(e *encoder) {
	e.string(p.UUID)
	e.string(p.Username)
}

// Expect checks that f carries packet id and decodes it into p.
func Expect(f Frame, id int32, p Serverbound) error {
	if f.ID != id {
		return oops.Code(CodeMalformed).
			With("packet_id", f.ID).
			With("expected_id", id).
			Errorf("unexpected packet")
	}
	return Decode(f.Payload, p)
}
