// Package txs implements the two transaction shapes this chain's consensus
// and execution layers exchange: TxBlock (a signed EVM-like transaction) and
// TxValidator (a signed
// consensus vote). Canonical encoding, hashing and EIP-155-aware signature
// recovery live here; nonce/balance checks belong to package state.
//
// Grounded on core/types/legacy.go and core/types/tx_constructors.go's
// transaction-field shape, and on original_source/new_src/utils/tx.cpp for
// the RLP field order and the DB-trust sender-suffix shortcut.
package txs

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/crypto"
	"github.com/rdpos-chain/core/rlp"
)

// DecodeMode selects whether a decoder trusts an appended sender suffix
// (storage's own encoding) or must always recover the sender from the
// signature (the network path); the network decoder always ecrecovers.
type DecodeMode int

const (
	// DecodeNetwork always recovers `from` via ecrecover; used for P2P input.
	DecodeNetwork DecodeMode = iota
	// DecodeTrusted reads a trailing 20-byte sender suffix appended by the
	// database encoding, skipping ecrecover. Must never be used on
	// network-sourced bytes.
	DecodeTrusted
)

var (
	ErrNotRLPList              = errors.New("txs: not an RLP list")
	ErrWrongFieldCount         = errors.New("txs: wrong RLP field count")
	ErrLegacySignatureRejected = errors.New("txs: legacy (pre-EIP-155) v not supported")
	ErrInvalidV                = errors.New("txs: v does not encode a valid EIP-155 recovery id")
	ErrInvalidSignature        = errors.New("txs: signature recovery failed")
	ErrTrustedSuffixMissing    = errors.New("txs: trusted decode requires a 20-byte sender suffix")
)

// TxBlock is an EIP-155-signed EVM-compatible transaction.
type TxBlock struct {
	To       common.Address
	Value    *uint256.Int
	Data     []byte
	ChainID  uint64
	Nonce    *uint256.Int
	GasLimit *uint256.Int
	GasPrice *uint256.Int

	V byte // recovery id, 0 or 1 (pre-EIP-155 encoding)
	R [32]byte
	S [32]byte

	From common.Address // derived, not part of the signed payload
}

// eip155V returns the wire `v` value: recid + chainID*2 + 35.
func eip155V(chainID uint64, recid byte) uint64 {
	return uint64(recid) + chainID*2 + 35
}

// decodeEIP155V splits a wire `v` into (chainID, recid), rejecting legacy
// v ∈ {27,28} and anything that doesn't fit the EIP-155 scheme.
func decodeEIP155V(v uint64) (chainID uint64, recid byte, err error) {
	if v == 27 || v == 28 {
		return 0, 0, ErrLegacySignatureRejected
	}
	if v < 35 {
		return 0, 0, ErrInvalidV
	}
	chainID = (v - 35) / 2
	recid = byte((v - 35) % 2)
	return chainID, recid, nil
}

func (tx *TxBlock) signature() common.Signature {
	var sig common.Signature
	copy(sig[0:32], tx.R[:])
	copy(sig[32:64], tx.S[:])
	sig[64] = tx.V
	return sig
}

// unsignedRLP returns the RLP encoding of the 6 payload fields plus the
// EIP-155 placeholder triple [chainID, 0, 0], which is what gets hashed and
// signed before v/r/s exist.
func (tx *TxBlock) unsignedRLP() []byte {
	return rlp.EncodeList(
		rlp.EncodeUint256(tx.Nonce),
		rlp.EncodeUint256(tx.GasPrice),
		rlp.EncodeUint256(tx.GasLimit),
		rlp.EncodeString(tx.To.Bytes()),
		rlp.EncodeUint256(tx.Value),
		rlp.EncodeString(tx.Data),
		rlp.EncodeUint(tx.ChainID),
		rlp.EncodeUint(0),
		rlp.EncodeUint(0),
	)
}

// HashUnsigned returns keccak256(unsignedRLP), the value Sign/Recover
// operate over: `from = recover(keccak(rlp_unsigned(tx, chain_id)), sig)`.
func (tx *TxBlock) HashUnsigned() common.Hash {
	return crypto.Keccak256(tx.unsignedRLP())
}

// signedRLP returns the canonical 9-field RLP encoding including v,r,s.
func (tx *TxBlock) signedRLP() []byte {
	v := eip155V(tx.ChainID, tx.V)
	return rlp.EncodeList(
		rlp.EncodeUint256(tx.Nonce),
		rlp.EncodeUint256(tx.GasPrice),
		rlp.EncodeUint256(tx.GasLimit),
		rlp.EncodeString(tx.To.Bytes()),
		rlp.EncodeUint256(tx.Value),
		rlp.EncodeString(tx.Data),
		rlp.EncodeUint(v),
		rlp.EncodeString(tx.R[:]),
		rlp.EncodeString(tx.S[:]),
	)
}

// Hash returns keccak256 of the RLP-with-signature bytes (sender suffix excluded).
func (tx *TxBlock) Hash() common.Hash {
	return crypto.Keccak256(tx.signedRLP())
}

// Sign signs tx with priv, setting chainID, v, r, s and From.
func (tx *TxBlock) Sign(priv common.PrivKey, chainID uint64) error {
	tx.ChainID = chainID
	msgHash := tx.HashUnsigned()
	sig, err := crypto.Sign(msgHash, priv)
	if err != nil {
		return err
	}
	copy(tx.R[:], sig.R())
	copy(tx.S[:], sig.S())
	tx.V = sig.V()
	tx.From = crypto.ToAddress(crypto.UPubkeyFromPrivKey(priv))
	return nil
}

// EncodeTxBlock serializes tx to its canonical wire form. When mode is
// DecodeTrusted's write-side counterpart (i.e. for storage), the 20-byte
// sender is appended after the RLP and is not covered by Hash().
func EncodeTxBlock(tx *TxBlock, mode DecodeMode) []byte {
	out := tx.signedRLP()
	if mode == DecodeTrusted {
		out = append(out, tx.From.Bytes()...)
	}
	return out
}

// DecodeTxBlock parses b into a TxBlock. In DecodeNetwork mode the sender is
// always recovered via ecrecover; in DecodeTrusted mode the trailing 20-byte
// suffix (appended only by the database encoding) is trusted instead.
func DecodeTxBlock(b []byte, mode DecodeMode) (*TxBlock, error) {
	rlpPart := b
	var trustedFrom *common.Address
	if mode == DecodeTrusted {
		if len(b) < common.AddressLength {
			return nil, ErrTrustedSuffixMissing
		}
		split := len(b) - common.AddressLength
		rlpPart = b[:split]
		addr := common.BytesToAddress(b[split:])
		trustedFrom = &addr
	}

	items, err := rlp.DecodeList(rlpPart)
	if err != nil {
		return nil, err
	}
	if len(items) != 9 {
		return nil, ErrWrongFieldCount
	}

	tx := &TxBlock{
		Nonce:    new(uint256.Int).SetBytes(items[0]),
		GasPrice: new(uint256.Int).SetBytes(items[1]),
		GasLimit: new(uint256.Int).SetBytes(items[2]),
		To:       common.BytesToAddress(items[3]),
		Value:    new(uint256.Int).SetBytes(items[4]),
		Data:     append([]byte(nil), items[5]...),
	}
	vField := new(uint256.Int).SetBytes(items[6])
	chainID, recid, err := decodeEIP155V(vField.Uint64())
	if err != nil {
		return nil, err
	}
	tx.ChainID = chainID
	tx.V = recid
	copy(tx.R[:], leftPad32(items[7]))
	copy(tx.S[:], leftPad32(items[8]))

	sig := tx.signature()
	if !crypto.ValidSignatureValues(sig) {
		return nil, ErrInvalidSignature
	}

	if mode == DecodeTrusted {
		tx.From = *trustedFrom
		return tx, nil
	}

	msgHash := tx.HashUnsigned()
	upub, ok := crypto.Recover(sig, msgHash)
	if !ok {
		return nil, ErrInvalidSignature
	}
	tx.From = crypto.ToAddress(upub)
	return tx, nil
}

func leftPad32(b []byte) []byte {
	var out [32]byte
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(out[32-len(b):], b)
	return out[:]
}
