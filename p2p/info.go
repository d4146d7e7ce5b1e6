package p2p

import (
	"encoding/binary"

	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/txs"
)

// Info is the payload of an Info Answer: version(8) || epoch_micros(8) ||
// latest_height(8) || latest_hash(32).
type Info struct {
	Version      uint64
	EpochMicros  uint64
	LatestHeight uint64
	LatestHash   common.Hash
}

// ProtocolVersion is the version this package's wire format implements.
const ProtocolVersion = 1

func EncodeInfo(i Info) []byte {
	out := make([]byte, 0, 8+8+8+common.HashLength)
	out = appendUint64(out, i.Version)
	out = appendUint64(out, i.EpochMicros)
	out = appendUint64(out, i.LatestHeight)
	out = append(out, i.LatestHash.Bytes()...)
	return out
}

func DecodeInfo(b []byte) (Info, error) {
	if len(b) != 24+common.HashLength {
		return Info{}, ErrMessageTooShort
	}
	return Info{
		Version:      readUint64(b[0:8]),
		EpochMicros:  readUint64(b[8:16]),
		LatestHeight: readUint64(b[16:24]),
		LatestHash:   common.BytesToHash(b[24:]),
	}, nil
}

// EncodeValidatorTxs serializes a RequestValidatorTxs answer body: a
// sequence of size(4) || rlp_bytes, one per TxValidator.
func EncodeValidatorTxs(txList []*txs.TxValidator) []byte {
	var out []byte
	for _, tx := range txList {
		raw := txs.EncodeTxValidator(tx)
		var sz [4]byte
		binary.BigEndian.PutUint32(sz[:], uint32(len(raw)))
		out = append(out, sz[:]...)
		out = append(out, raw...)
	}
	return out
}

// DecodeValidatorTxs parses a RequestValidatorTxs answer body.
func DecodeValidatorTxs(b []byte) ([]*txs.TxValidator, error) {
	var out []*txs.TxValidator
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, ErrMessageTooShort
		}
		size := binary.BigEndian.Uint32(b[:4])
		b = b[4:]
		if uint32(len(b)) < size {
			return nil, ErrMessageTooShort
		}
		tx, err := txs.DecodeTxValidator(b[:size])
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
		b = b[size:]
	}
	return out, nil
}
