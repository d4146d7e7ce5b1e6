// Package common defines the fixed-width primitive types shared across the
// node: content hashes, addresses and wire signatures.
package common

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// HashLength is the byte length of a content hash.
	HashLength = 32
	// AddressLength is the byte length of an account address.
	AddressLength = 20
	// SignatureLength is the byte length of a serialized signature: r(32) || s(32) || v(1).
	SignatureLength = 65
	// PrivKeyLength is the byte length of a secp256k1 private key.
	PrivKeyLength = 32
	// PubKeyLength is the byte length of a compressed secp256k1 public key.
	PubKeyLength = 33
	// UPubKeyLength is the byte length of an uncompressed secp256k1 public key (0x04 prefix included).
	UPubKeyLength = 65
)

// Hash is a fixed 32-byte content hash.
type Hash [HashLength]byte

// BytesToHash sets b as the trailing bytes of a Hash (left-padded with zeroes
// if b is shorter than HashLength, truncated from the left if longer).
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// HexToHash returns BytesToHash(hex-decoded s).
func HexToHash(s string) Hash {
	return BytesToHash(FromHex(s))
}

// RandomHash returns a Hash filled from a cryptographic RNG.
func RandomHash() Hash {
	var h Hash
	if _, err := rand.Read(h[:]); err != nil {
		panic("common: failed to read random bytes: " + err.Error())
	}
	return h
}

// Bytes returns the byte slice view of h.
func (h Hash) Bytes() []byte { return h[:] }

// Hex returns the 0x-prefixed lowercase hex encoding of h.
func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool { return h == Hash{} }

// Big returns h interpreted as a big-endian uint256.
func (h Hash) Big() *uint256.Int {
	var z uint256.Int
	z.SetBytes(h[:])
	return &z
}

// BigToHash encodes i as a 32-byte big-endian Hash, truncating from the left
// on overflow.
func BigToHash(i *uint256.Int) Hash {
	return BytesToHash(i.Bytes())
}

// Address is a fixed 20-byte account address, derived from a public key by
// crypto.ToAddress.
type Address [AddressLength]byte

// BytesToAddress sets b as the trailing bytes of an Address.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// HexToAddress returns BytesToAddress(hex-decoded s).
func HexToAddress(s string) Address {
	return BytesToAddress(FromHex(s))
}

// Bytes returns the byte slice view of a.
func (a Address) Bytes() []byte { return a[:] }

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == Address{} }

func (a Address) String() string { return a.Hex() }

// Less reports whether a sorts strictly before b in big-endian byte order.
func (a Address) Less(b Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Signature is a serialized secp256k1 signature: r(32) || s(32) || v(1).
// v is the post-normalization recovery id, either 0 or 1.
type Signature [SignatureLength]byte

// BytesToSignature copies b (which must be exactly SignatureLength bytes)
// into a Signature. Panics on length mismatch — callers decode lengths
// explicitly before reaching here.
func BytesToSignature(b []byte) Signature {
	if len(b) != SignatureLength {
		panic(fmt.Sprintf("common: invalid signature length %d", len(b)))
	}
	var s Signature
	copy(s[:], b)
	return s
}

func (s Signature) Bytes() []byte { return s[:] }
func (s Signature) R() []byte     { return s[0:32] }
func (s Signature) S() []byte     { return s[32:64] }
func (s Signature) V() byte       { return s[64] }

// PrivKey is a 32-byte secp256k1 private key scalar.
type PrivKey [PrivKeyLength]byte

func (k PrivKey) Bytes() []byte { return k[:] }

// PubKey is a 33-byte compressed secp256k1 public key.
type PubKey [PubKeyLength]byte

func (k PubKey) Bytes() []byte { return k[:] }

// UPubKey is a 65-byte uncompressed secp256k1 public key (0x04 prefix + X + Y).
type UPubKey [UPubKeyLength]byte

func (k UPubKey) Bytes() []byte { return k[:] }
