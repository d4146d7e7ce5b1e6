// Package block implements the header/body data model for a finalized
// chain block: merkle-rooted transaction lists, randomness derived from
// validator reveal votes, and the sign/freeze lifecycle that turns a
// mutable block under construction into an immutable, hash-addressed one.
//
// Grounded on original_source/new_src/core/block.h's field layout and
// lifecycle (mutable construction, finalize, getters), and on
// original_source/new_src/utils/merkle.cpp for the merkle root algorithm.
package block

import (
	"encoding/binary"
	"errors"

	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/crypto"
	"github.com/rdpos-chain/core/txs"
)

// HeaderLength is the fixed byte length of a serialized Header.
const HeaderLength = common.HashLength /*prev*/ + common.SignatureLength /*sig*/ +
	common.HashLength /*randomness*/ + common.HashLength /*validatorTxMerkleRoot*/ +
	common.HashLength /*txMerkleRoot*/ + 8 /*timestamp*/ + 8 /*nHeight*/ +
	8 /*validatorTxCount*/ + 8 /*txCount*/

var (
	ErrAlreadyFinalized  = errors.New("block: already finalized")
	ErrNotFinalized      = errors.New("block: not finalized")
	ErrShortHeader       = errors.New("block: header too short")
	ErrShortBody         = errors.New("block: truncated body")
	ErrSignatureMismatch = errors.New("block: signature does not recover")
)

// Header is a block's fixed-shape metadata. Sig is the zero signature until
// the owning Block is finalized.
type Header struct {
	PrevHash              common.Hash
	Sig                   common.Signature
	Randomness            common.Hash
	ValidatorTxMerkleRoot common.Hash
	TxMerkleRoot          common.Hash
	Timestamp             uint64 // microseconds since epoch
	NHeight               uint64
	ValidatorTxCount      uint64
	TxCount               uint64
}

// Block is a chain block: a Header plus its two ordered transaction lists.
// It starts mutable (append_tx/append_validator_tx allowed) and becomes
// immutable once Finalize succeeds.
type Block struct {
	Header       Header
	ValidatorTxs []*txs.TxValidator
	Txs          []*txs.TxBlock

	finalized bool
}

// New allocates a mutable block extending prevHash at nHeight.
func New(prevHash common.Hash, nHeight uint64) *Block {
	return &Block{Header: Header{PrevHash: prevHash, NHeight: nHeight}}
}

// Mutable reports whether the block still accepts AppendTx/AppendValidatorTx.
func (b *Block) Mutable() bool { return !b.finalized }

// AppendTx appends tx to the block's ordered TxBlock list. Only valid
// before Finalize.
func (b *Block) AppendTx(tx *txs.TxBlock) error {
	if b.finalized {
		return ErrAlreadyFinalized
	}
	b.Txs = append(b.Txs, tx)
	return nil
}

// AppendValidatorTx appends tx to the block's ordered TxValidator list.
// Only valid before Finalize.
func (b *Block) AppendValidatorTx(tx *txs.TxValidator) error {
	if b.finalized {
		return ErrAlreadyFinalized
	}
	b.ValidatorTxs = append(b.ValidatorTxs, tx)
	return nil
}

// randomness derives the block's randomness hash: keccak256 of the
// concatenation, in list order, of every reveal vote's 32-byte secret.
func (b *Block) randomness() common.Hash {
	var secrets []byte
	for _, tx := range b.ValidatorTxs {
		if tx.IsReveal() {
			secrets = append(secrets, tx.Payload()...)
		}
	}
	if len(secrets) == 0 {
		return common.Hash{}
	}
	return crypto.Keccak256(secrets)
}

// Finalize recomputes the merkle roots and randomness, stamps the given
// timestamp, signs the unsigned header hash with priv, and freezes the
// block. After this call AppendTx/AppendValidatorTx return
// ErrAlreadyFinalized and Hash() returns the signed header hash used for
// chain linkage.
func (b *Block) Finalize(priv common.PrivKey, newTimestamp uint64) error {
	if b.finalized {
		return ErrAlreadyFinalized
	}

	txHashes := make([]common.Hash, len(b.Txs))
	for i, tx := range b.Txs {
		txHashes[i] = tx.Hash()
	}
	validatorTxHashes := make([]common.Hash, len(b.ValidatorTxs))
	for i, tx := range b.ValidatorTxs {
		validatorTxHashes[i] = tx.Hash()
	}

	b.Header.TxMerkleRoot = MerkleRoot(txHashes)
	b.Header.ValidatorTxMerkleRoot = MerkleRoot(validatorTxHashes)
	b.Header.Randomness = b.randomness()
	b.Header.Timestamp = newTimestamp
	b.Header.TxCount = uint64(len(b.Txs))
	b.Header.ValidatorTxCount = uint64(len(b.ValidatorTxs))

	unsignedHash := crypto.Keccak256(b.headerBytes(false))
	sig, err := crypto.Sign(unsignedHash, priv)
	if err != nil {
		return err
	}
	b.Header.Sig = sig
	b.finalized = true
	return nil
}

// Hash returns the signed header hash used for chain linkage. Only valid
// after Finalize.
func (b *Block) Hash() (common.Hash, error) {
	if !b.finalized {
		return common.Hash{}, ErrNotFinalized
	}
	return crypto.Keccak256(b.headerBytes(true)), nil
}

// Proposer recovers the address that signed the (finalized) block's header.
func (b *Block) Proposer() (common.Address, error) {
	if !b.finalized {
		return common.Address{}, ErrNotFinalized
	}
	unsignedHash := crypto.Keccak256(b.headerBytes(false))
	upub, ok := crypto.Recover(b.Header.Sig, unsignedHash)
	if !ok {
		return common.Address{}, ErrSignatureMismatch
	}
	return crypto.ToAddress(upub), nil
}

// headerBytes serializes the header fields in fixed order. When includeSig
// is false (the pre-finalization hash input) the signature field is all
// zero bytes rather than omitted, keeping the layout fixed-width.
func (b *Block) headerBytes(includeSig bool) []byte {
	out := make([]byte, 0, HeaderLength)
	out = append(out, b.Header.PrevHash.Bytes()...)
	if includeSig {
		out = append(out, b.Header.Sig.Bytes()...)
	} else {
		out = append(out, make([]byte, common.SignatureLength)...)
	}
	out = append(out, b.Header.Randomness.Bytes()...)
	out = append(out, b.Header.ValidatorTxMerkleRoot.Bytes()...)
	out = append(out, b.Header.TxMerkleRoot.Bytes()...)
	out = appendUint64(out, b.Header.Timestamp)
	out = appendUint64(out, b.Header.NHeight)
	out = appendUint64(out, b.Header.ValidatorTxCount)
	out = appendUint64(out, b.Header.TxCount)
	return out
}

func appendUint64(out []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(out, buf[:]...)
}

func parseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLength {
		return Header{}, ErrShortHeader
	}
	var h Header
	off := 0
	h.PrevHash = common.BytesToHash(b[off : off+common.HashLength])
	off += common.HashLength
	h.Sig = common.BytesToSignature(b[off : off+common.SignatureLength])
	off += common.SignatureLength
	h.Randomness = common.BytesToHash(b[off : off+common.HashLength])
	off += common.HashLength
	h.ValidatorTxMerkleRoot = common.BytesToHash(b[off : off+common.HashLength])
	off += common.HashLength
	h.TxMerkleRoot = common.BytesToHash(b[off : off+common.HashLength])
	off += common.HashLength
	h.Timestamp = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	h.NHeight = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	h.ValidatorTxCount = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	h.TxCount = binary.BigEndian.Uint64(b[off : off+8])
	return h, nil
}

// SerializeBlock encodes b as a length-prefixed header followed by the
// validator-tx list then the tx list, each entry itself length-prefixed
// (u32 size ‖ bytes). mode controls whether TxBlock entries carry the
// DB-trust sender suffix; TxValidator entries never do; that type has no
// DB-trust shortcut; its decoder always recovers the sender.
func SerializeBlock(b *Block, mode txs.DecodeMode) []byte {
	out := append([]byte(nil), b.headerBytes(true)...)
	for _, tx := range b.ValidatorTxs {
		out = appendLenPrefixed(out, txs.EncodeTxValidator(tx))
	}
	for _, tx := range b.Txs {
		out = appendLenPrefixed(out, txs.EncodeTxBlock(tx, mode))
	}
	return out
}

func appendLenPrefixed(out []byte, payload []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	out = append(out, lenBuf[:]...)
	return append(out, payload...)
}

func readLenPrefixed(b []byte) (payload []byte, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, ErrShortBody
	}
	size := binary.BigEndian.Uint32(b[:4])
	if uint64(len(b)-4) < uint64(size) {
		return nil, nil, ErrShortBody
	}
	return b[4 : 4+size], b[4+size:], nil
}

// DeserializeBlock parses b (storage's serialize_block/deserialize_block
// wire form) into a finalized Block. mode controls how TxBlock entries are
// decoded (trusted sender suffix vs. network ecrecover).
func DeserializeBlock(data []byte, mode txs.DecodeMode) (*Block, error) {
	header, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	rest := data[HeaderLength:]

	blk := &Block{Header: header, finalized: true}
	for i := uint64(0); i < header.ValidatorTxCount; i++ {
		var payload []byte
		payload, rest, err = readLenPrefixed(rest)
		if err != nil {
			return nil, err
		}
		tx, err := txs.DecodeTxValidator(payload)
		if err != nil {
			return nil, err
		}
		blk.ValidatorTxs = append(blk.ValidatorTxs, tx)
	}
	for i := uint64(0); i < header.TxCount; i++ {
		var payload []byte
		payload, rest, err = readLenPrefixed(rest)
		if err != nil {
			return nil, err
		}
		tx, err := txs.DecodeTxBlock(payload, mode)
		if err != nil {
			return nil, err
		}
		blk.Txs = append(blk.Txs, tx)
	}
	return blk, nil
}
