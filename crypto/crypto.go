// Package crypto implements the node's signature primitives: keccak256
// hashing and secp256k1 sign/verify/recover, plus address derivation.
//
// Grounded on accounts/keystore/key.go's secp256k1-via-btcec key handling
// and crypto/tosalign/hash.go's address-from-pubkey derivation idiom, adapted
// from blake3/bech32 addressing to the keccak256/EIP-55 scheme this chain
// uses. Low-s normalization and v-parity handling follow
// original_source/new_src/utils/ecdsa.cpp.
package crypto

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/sha3"

	"github.com/rdpos-chain/core/common"
)

var (
	secp256k1N     = btcec.S256().N
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// Sentinel errors. Sign/Recover/Verify never panic on malformed input —
// they report failure through these or a plain boolean instead.
var ErrSignFailed = errors.New("crypto: sign failed")

// Keccak256 returns the legacy Keccak256 digest of the concatenation of data.
func Keccak256(data ...[]byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		h.Write(b)
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}

// Keccak256Bytes is the byte-slice-returning form used by callers that don't
// want a common.Hash (e.g. RLP hash-of-bytes helpers).
func Keccak256Bytes(data ...[]byte) []byte {
	h := Keccak256(data...)
	return h.Bytes()
}

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (common.PrivKey, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return common.PrivKey{}, err
	}
	var out common.PrivKey
	copy(out[:], key.Serialize())
	return out, nil
}

// UPubkeyFromPrivKey derives the uncompressed public key for priv.
func UPubkeyFromPrivKey(priv common.PrivKey) common.UPubKey {
	_, pub := btcec.PrivKeyFromBytes(priv[:])
	var out common.UPubKey
	copy(out[:], pub.SerializeUncompressed())
	return out
}

// PubkeyFromPrivKey derives the compressed public key for priv.
func PubkeyFromPrivKey(priv common.PrivKey) common.PubKey {
	_, pub := btcec.PrivKeyFromBytes(priv[:])
	var out common.PubKey
	copy(out[:], pub.SerializeCompressed())
	return out
}

// Sign produces a low-s canonical 65-byte signature (r || s || v) over
// msgHash using priv. If s > n/2, s is replaced by n-s and v's parity bit is
// flipped. Returns ErrSignFailed if the underlying library
// call errors.
func Sign(msgHash common.Hash, priv common.PrivKey) (common.Signature, error) {
	key, _ := btcec.PrivKeyFromBytes(priv[:])
	compact := ecdsa.SignCompact(key, msgHash[:], false)
	if len(compact) != 65 {
		return common.Signature{}, ErrSignFailed
	}
	// compact = [header(1) | r(32) | s(32)]; header = 27 + recid.
	recid := compact[0] - 27
	r := compact[1:33]
	s := compact[33:65]

	sBig := new(big.Int).SetBytes(s)
	if sBig.Cmp(secp256k1HalfN) > 0 {
		sBig = new(big.Int).Sub(secp256k1N, sBig)
		recid ^= 1
	}

	var sig common.Signature
	copy(sig[0:32], leftPad32(r))
	copy(sig[32:64], leftPad32(sBig.Bytes()))
	sig[64] = recid
	return sig, nil
}

// Recover recovers the uncompressed public key that produced sig over
// msgHash, returning false if v > 3 or recovery otherwise fails.
func Recover(sig common.Signature, msgHash common.Hash) (common.UPubKey, bool) {
	v := sig[64]
	if v > 3 {
		return common.UPubKey{}, false
	}
	compact := make([]byte, 65)
	compact[0] = 27 + v
	copy(compact[1:33], sig[0:32])
	copy(compact[33:65], sig[32:64])

	pub, _, err := ecdsa.RecoverCompact(compact, msgHash[:])
	if err != nil {
		return common.UPubKey{}, false
	}
	var out common.UPubKey
	copy(out[:], pub.SerializeUncompressed())
	return out, true
}

// Verify reports whether sig is a valid signature over msgHash by the
// secp256k1 key upub. s is normalized (low-s) before the comparison,
// matching the compact-format recovery Sign() and Recover() use: a
// signature recovers to exactly one public key for a given recovery id, so
// verification reduces to comparing the recovered key against upub after
// confirming r, s lie in the valid range.
func Verify(msgHash common.Hash, upub common.UPubKey, sig common.Signature) bool {
	if !ValidSignatureValues(sig) {
		return false
	}
	if s := new(big.Int).SetBytes(sig[32:64]); s.Cmp(secp256k1HalfN) > 0 {
		copy(sig[32:64], leftPad32(new(big.Int).Sub(secp256k1N, s).Bytes()))
		sig[64] ^= 1
	}
	recovered, ok := Recover(sig, msgHash)
	if !ok {
		return false
	}
	return bytes.Equal(recovered[:], upub[:])
}

// ValidSignatureValues reports whether r and s (as found in sig) both lie in
// the open interval (0, n) and v is 0 or 1.
func ValidSignatureValues(sig common.Signature) bool {
	r := new(big.Int).SetBytes(sig[0:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if r.Sign() <= 0 || r.Cmp(secp256k1N) >= 0 {
		return false
	}
	if s.Sign() <= 0 || s.Cmp(secp256k1N) >= 0 {
		return false
	}
	return sig[64] == 0 || sig[64] == 1
}

// ToAddress derives an Address from an uncompressed public key:
// keccak256(pubkey[1:65])[12:32].
func ToAddress(upub common.UPubKey) common.Address {
	digest := Keccak256(upub[1:65])
	return common.BytesToAddress(digest[12:32])
}

// ToAddressCompressed derives an Address from a compressed public key by
// first decompressing it.
func ToAddressCompressed(pub common.PubKey) (common.Address, error) {
	parsed, err := btcec.ParsePubKey(pub[:])
	if err != nil {
		return common.Address{}, err
	}
	var upub common.UPubKey
	copy(upub[:], parsed.SerializeUncompressed())
	return ToAddress(upub), nil
}

func leftPad32(b []byte) []byte {
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}
