package txs

import (
	"bytes"
	"errors"

	"github.com/holiman/uint256"

	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/crypto"
	"github.com/rdpos-chain/core/rlp"
)

// Function selectors identifying the two TxValidator data shapes.
var (
	CommitSelector = [4]byte{0xcf, 0xff, 0xe7, 0x46}
	RevealSelector = [4]byte{0x6f, 0xc5, 0xa2, 0xd6}
)

var (
	ErrUnknownSelector = errors.New("txs: data does not start with a known selector")
	ErrBadCommitLength = errors.New("txs: commit data must be selector + 32-byte hash")
	ErrBadRevealLength = errors.New("txs: reveal data must be selector + 32-byte secret")
	ErrRevealMismatch  = errors.New("txs: keccak256(reveal secret) does not match commit hash")
)

// TxValidator is a signed consensus vote: a commit or a reveal for a given
// height. There is no DB-trust decode shortcut — the sender is always
// recovered.
type TxValidator struct {
	Data     []byte
	NHeight  uint64
	ChainID  uint64

	V byte
	R [32]byte
	S [32]byte

	From common.Address
}

// NewCommit builds the unsigned payload for a commit vote over secret.
func NewCommit(secret common.Hash, height uint64) *TxValidator {
	data := make([]byte, 0, 4+32)
	data = append(data, CommitSelector[:]...)
	data = append(data, crypto.Keccak256(secret[:]).Bytes()...)
	return &TxValidator{Data: data, NHeight: height}
}

// NewReveal builds the unsigned payload for a reveal vote disclosing secret.
func NewReveal(secret common.Hash, height uint64) *TxValidator {
	data := make([]byte, 0, 4+32)
	data = append(data, RevealSelector[:]...)
	data = append(data, secret[:]...)
	return &TxValidator{Data: data, NHeight: height}
}

// IsCommit reports whether tx carries a commit vote.
func (tx *TxValidator) IsCommit() bool {
	return len(tx.Data) >= 4 && bytes.Equal(tx.Data[:4], CommitSelector[:])
}

// IsReveal reports whether tx carries a reveal vote.
func (tx *TxValidator) IsReveal() bool {
	return len(tx.Data) >= 4 && bytes.Equal(tx.Data[:4], RevealSelector[:])
}

// Payload returns the bytes after the 4-byte selector (the committed hash or
// the revealed secret).
func (tx *TxValidator) Payload() []byte {
	if len(tx.Data) < 4 {
		return nil
	}
	return tx.Data[4:]
}

// MatchesCommit reports whether keccak256(reveal.Payload()) == commit.Payload(),
// the invariant linking a reveal vote back to its commit.
func (reveal *TxValidator) MatchesCommit(commit *TxValidator) bool {
	if !reveal.IsReveal() || !commit.IsCommit() {
		return false
	}
	return bytes.Equal(crypto.Keccak256(reveal.Payload()).Bytes(), commit.Payload())
}

func (tx *TxValidator) signature() common.Signature {
	var sig common.Signature
	copy(sig[0:32], tx.R[:])
	copy(sig[32:64], tx.S[:])
	sig[64] = tx.V
	return sig
}

func (tx *TxValidator) unsignedRLP() []byte {
	return rlp.EncodeList(
		rlp.EncodeString(tx.Data),
		rlp.EncodeUint(tx.NHeight),
		rlp.EncodeUint(tx.ChainID),
		rlp.EncodeUint(0),
		rlp.EncodeUint(0),
	)
}

// HashUnsigned returns the hash Sign/Recover operate over.
func (tx *TxValidator) HashUnsigned() common.Hash {
	return crypto.Keccak256(tx.unsignedRLP())
}

func (tx *TxValidator) signedRLP() []byte {
	v := eip155V(tx.ChainID, tx.V)
	return rlp.EncodeList(
		rlp.EncodeString(tx.Data),
		rlp.EncodeUint(tx.NHeight),
		rlp.EncodeUint(v),
		rlp.EncodeString(tx.R[:]),
		rlp.EncodeString(tx.S[:]),
	)
}

// Hash returns keccak256 of the RLP-with-signature bytes.
func (tx *TxValidator) Hash() common.Hash {
	return crypto.Keccak256(tx.signedRLP())
}

// Sign signs tx with priv, setting chainID, v, r, s and From.
func (tx *TxValidator) Sign(priv common.PrivKey, chainID uint64) error {
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

// EncodeTxValidator serializes tx to its canonical 5-field RLP wire form.
func EncodeTxValidator(tx *TxValidator) []byte {
	return tx.signedRLP()
}

// DecodeTxValidator parses b into a TxValidator, always recovering `from`.
func DecodeTxValidator(b []byte) (*TxValidator, error) {
	items, err := rlp.DecodeList(b)
	if err != nil {
		return nil, err
	}
	if len(items) != 5 {
		return nil, ErrWrongFieldCount
	}

	tx := &TxValidator{
		Data: append([]byte(nil), items[0]...),
	}
	heightField := new(uint256.Int).SetBytes(items[1])
	tx.NHeight = heightField.Uint64()

	vField := new(uint256.Int).SetBytes(items[2])
	chainID, recid, err := decodeEIP155V(vField.Uint64())
	if err != nil {
		return nil, err
	}
	tx.ChainID = chainID
	tx.V = recid
	copy(tx.R[:], leftPad32(items[3]))
	copy(tx.S[:], leftPad32(items[4]))

	sig := tx.signature()
	if !crypto.ValidSignatureValues(sig) {
		return nil, ErrInvalidSignature
	}

	msgHash := tx.HashUnsigned()
	upub, ok := crypto.Recover(sig, msgHash)
	if !ok {
		return nil, ErrInvalidSignature
	}
	tx.From = crypto.ToAddress(upub)

	if !tx.IsCommit() && !tx.IsReveal() {
		return nil, ErrUnknownSelector
	}
	if tx.IsCommit() && len(tx.Payload()) != 32 {
		return nil, ErrBadCommitLength
	}
	if tx.IsReveal() && len(tx.Payload()) != 32 {
		return nil, ErrBadRevealLength
	}
	return tx, nil
}
