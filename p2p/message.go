// Package p2p implements the node's overlay protocol: a plain TCP session
// handshake, length-prefixed framing, a small fixed set of request/answer/
// broadcast message kinds, a peer registry with request/answer correlation,
// and a discovery worker that bootstraps and maintains the connection set.
//
// Grounded on original_source/new_src/net/p2p/p2pencoding.h (Message's raw
// accessors, the RequestType/CommandType enums, the Request/Answer encoder/
// decoder static methods) and p2pmanager.h (the Manager class shape this
// package's Manager follows almost method-for-method).
package p2p

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"hash/fnv"
)

// RequestType is the first byte of every wire message.
type RequestType byte

const (
	TypeRequest   RequestType = 0x00
	TypeAnswer    RequestType = 0x01
	TypeBroadcast RequestType = 0x02
)

// CommandType is the big-endian uint16 following the 8-byte request id.
type CommandType uint16

const (
	CommandPing                 CommandType = 0x0000
	CommandInfo                 CommandType = 0x0001
	CommandRequestNodes         CommandType = 0x0002
	CommandRequestValidatorTxs  CommandType = 0x0003
	CommandBroadcastValidatorTx CommandType = 0x0004
	CommandBroadcastTx          CommandType = 0x0005
	CommandBroadcastBlock       CommandType = 0x0006
)

// MaxFrameSize is the largest payload a session will accept before closing
// the connection.
const MaxFrameSize = 128 * 1024 * 1024

var (
	ErrMessageTooShort = errors.New("p2p: input too short for its wire layout")
	ErrFrameTooLarge   = errors.New("p2p: frame exceeds MaxFrameSize")
)

// Message is type(1) || request_id(8) || command(2) || body, the unit both
// Request/Answer correlation and Broadcast dedup operate on.
type Message struct {
	Type      RequestType
	RequestID [8]byte
	Command   CommandType
	Body      []byte
}

func (m *Message) Encode() []byte {
	out := make([]byte, 0, 11+len(m.Body))
	out = append(out, byte(m.Type))
	out = append(out, m.RequestID[:]...)
	out = append(out, byte(m.Command>>8), byte(m.Command))
	out = append(out, m.Body...)
	return out
}

func DecodeMessage(b []byte) (*Message, error) {
	if len(b) < 11 {
		return nil, ErrMessageTooShort
	}
	m := &Message{Type: RequestType(b[0]), Command: CommandType(b[9])<<8 | CommandType(b[10])}
	copy(m.RequestID[:], b[1:9])
	if len(b) > 11 {
		m.Body = append([]byte(nil), b[11:]...)
	}
	return m, nil
}

// newRequestID fills an 8-byte random correlation id for an outbound Request.
func newRequestID() [8]byte {
	var id [8]byte
	_, _ = rand.Read(id[:])
	return id
}

// NewRequest builds a Request-type Message with a fresh random request id.
func NewRequest(cmd CommandType, body []byte) *Message {
	return &Message{Type: TypeRequest, RequestID: newRequestID(), Command: cmd, Body: body}
}

// NewAnswer builds an Answer-type Message reusing the Request's id.
func NewAnswer(req *Message, body []byte) *Message {
	return &Message{Type: TypeAnswer, RequestID: req.RequestID, Command: req.Command, Body: body}
}

// NewBroadcast builds a Broadcast-type Message whose request id is the
// fnv1a-64 fingerprint of body, a stable dedup key: the same payload
// broadcast by two different peers fingerprints identically.
func NewBroadcast(cmd CommandType, body []byte) *Message {
	return &Message{Type: TypeBroadcast, RequestID: fingerprint(body), Command: cmd, Body: body}
}

func fingerprint(body []byte) [8]byte {
	h := fnv.New64a()
	_, _ = h.Write(body)
	var out [8]byte
	binary.BigEndian.PutUint64(out[:], h.Sum64())
	return out
}

// appendUint64 / readUint64 are the big-endian helpers every fixed-width
// field in this package's wire formats uses.
func appendUint64(out []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(out, b[:]...)
}

func readUint64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }
