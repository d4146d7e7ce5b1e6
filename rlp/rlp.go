// Package rlp implements the canonical RLP (Recursive Length Prefix)
// encoding used to serialize TxBlock and TxValidator.
//
// Unlike go-ethereum's reflection-driven rlp package, this is a small
// from-scratch encoder/decoder over raw byte-string elements: callers
// (package txs) assemble/parse the typed fields themselves, the same
// division of labor original_source/new_src/utils/tx.cpp uses between its
// RLP helpers and Tx's own field (de)serialization. No third-party RLP
// library exists anywhere in the retrieval pack — every repo in the family
// hand-rolls this wire format, so hand-rolling here matches the corpus.
package rlp

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// ErrNotList is returned when a decode expects an RLP list header but
	// finds a string header instead.
	ErrNotList = errors.New("rlp: expected list header")
	// ErrOversizedString is returned for a single byte below 0x80 wrapped in
	// the 0x81 short-string marker instead of its canonical one-byte form.
	// Long-form string markers (0xb8-0xbf) are accepted wherever a string
	// appears; the decoder does not check them against a field's expected size.
	ErrOversizedString = errors.New("rlp: oversized short-string marker")
	// ErrShortInput is returned when the buffer ends before a declared
	// length is satisfied.
	ErrShortInput = errors.New("rlp: input too short for declared length")
	// ErrLengthMismatch is returned when the outer length prefix disagrees
	// with the amount of remaining payload: a declared length smaller than
	// the remaining payload is always rejected, never truncated.
	ErrLengthMismatch = errors.New("rlp: outer length does not match payload")
)

// EncodeString encodes a single RLP byte string.
func EncodeString(b []byte) []byte {
	switch {
	case len(b) == 1 && b[0] < 0x80:
		return []byte{b[0]}
	case len(b) <= 55:
		out := make([]byte, 0, 1+len(b))
		out = append(out, 0x80+byte(len(b)))
		return append(out, b...)
	default:
		lenBytes := minimalBigEndian(uint64(len(b)))
		out := make([]byte, 0, 1+len(lenBytes)+len(b))
		out = append(out, 0xb7+byte(len(lenBytes)))
		out = append(out, lenBytes...)
		return append(out, b...)
	}
}

// EncodeUint encodes v as a minimal big-endian RLP string (0 encodes as the
// empty string).
func EncodeUint(v uint64) []byte {
	return EncodeString(minimalBigEndian(v))
}

// EncodeBigInt encodes a non-negative big.Int as a minimal big-endian RLP string.
func EncodeBigInt(v *big.Int) []byte {
	if v == nil || v.Sign() == 0 {
		return EncodeString(nil)
	}
	return EncodeString(v.Bytes())
}

// EncodeUint256 encodes a uint256.Int as a minimal big-endian RLP string.
func EncodeUint256(v *uint256.Int) []byte {
	if v == nil || v.IsZero() {
		return EncodeString(nil)
	}
	return EncodeString(v.Bytes())
}

// EncodeList wraps already-encoded elements in an RLP list header.
func EncodeList(elements ...[]byte) []byte {
	var payload []byte
	for _, e := range elements {
		payload = append(payload, e...)
	}
	switch {
	case len(payload) <= 55:
		out := make([]byte, 0, 1+len(payload))
		out = append(out, 0xc0+byte(len(payload)))
		return append(out, payload...)
	default:
		lenBytes := minimalBigEndian(uint64(len(payload)))
		out := make([]byte, 0, 1+len(lenBytes)+len(payload))
		out = append(out, 0xf7+byte(len(lenBytes)))
		out = append(out, lenBytes...)
		return append(out, payload...)
	}
}

func minimalBigEndian(v uint64) []byte {
	if v == 0 {
		return nil
	}
	var buf [8]byte
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	i := 0
	for i < 8 && buf[i] == 0 {
		i++
	}
	return buf[i:]
}

// DecodeList splits the outer RLP list in b into its raw element byte
// strings. Nested lists are not supported — this core only ever RLP-encodes
// flat lists of byte strings, matching the TxBlock/TxValidator field shapes.
func DecodeList(b []byte) ([][]byte, error) {
	if len(b) == 0 {
		return nil, ErrShortInput
	}
	prefix := b[0]
	if prefix < 0xc0 {
		return nil, ErrNotList
	}

	var payload []byte
	switch {
	case prefix <= 0xf7:
		size := int(prefix - 0xc0)
		if len(b) != 1+size {
			return nil, ErrLengthMismatch
		}
		payload = b[1 : 1+size]
	default:
		lenOfLen := int(prefix - 0xf7)
		if len(b) < 1+lenOfLen {
			return nil, ErrShortInput
		}
		size := decodeBigEndianLen(b[1 : 1+lenOfLen])
		if uint64(len(b)-1-lenOfLen) != size {
			return nil, ErrLengthMismatch
		}
		payload = b[1+lenOfLen : 1+lenOfLen+int(size)]
	}

	var items [][]byte
	for len(payload) > 0 {
		item, rest, err := decodeString(payload)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		payload = rest
	}
	return items, nil
}

func decodeString(b []byte) (item []byte, rest []byte, err error) {
	if len(b) == 0 {
		return nil, nil, ErrShortInput
	}
	prefix := b[0]
	switch {
	case prefix < 0x80:
		return b[0:1], b[1:], nil
	case prefix <= 0xb7:
		size := int(prefix - 0x80)
		if len(b) < 1+size {
			return nil, nil, ErrShortInput
		}
		// A single byte in [0x00,0x7f] must use the implicit single-byte
		// form above; anything re-encoded through the short-string marker
		// with size==1 and a low value byte is non-canonical.
		if size == 1 && b[1] < 0x80 {
			return nil, nil, ErrOversizedString
		}
		return b[1 : 1+size], b[1+size:], nil
	case prefix <= 0xbf:
		lenOfLen := int(prefix - 0xb7)
		if len(b) < 1+lenOfLen {
			return nil, nil, ErrShortInput
		}
		size := decodeBigEndianLen(b[1 : 1+lenOfLen])
		if uint64(len(b)-1-lenOfLen) < size {
			return nil, nil, ErrLengthMismatch
		}
		return b[1+lenOfLen : 1+lenOfLen+int(size)], b[1+lenOfLen+int(size):], nil
	default:
		return nil, nil, ErrNotList
	}
}

func decodeBigEndianLen(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
