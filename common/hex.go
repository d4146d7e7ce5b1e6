package common

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// FromHex decodes a hex string, accepting an optional "0x"/"0X" prefix and an
// odd-length digit run (left-padded with a zero nibble), matching the
// leniency of the bdk-cpp `Hex` codec this type is derived from.
func FromHex(s string) []byte {
	if has0xPrefix(s) {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// keccak256 here is the same legacy Keccak (pre-NIST-finalization padding)
// that package crypto exposes; common can't import crypto (crypto imports
// common for Address/Hash), so the checksum hash is computed directly
// against golang.org/x/crypto/sha3's legacy-compatible state, matching
// crypto.Keccak256 byte-for-byte.
func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// Hex returns the EIP-55 checksummed hex representation of a: a hex nibble
// of the lowercase address is upper-cased when the corresponding nibble of
// keccak256(lowercase address hex string) is >= 8.
func (a Address) Hex() string {
	lower := strings.ToLower(hex.EncodeToString(a[:]))
	hashed := keccak256([]byte(lower))
	out := make([]byte, len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' {
			var nibble byte
			if i%2 == 0 {
				nibble = hashed[i/2] >> 4
			} else {
				nibble = hashed[i/2] & 0x0f
			}
			if nibble >= 8 {
				c -= 'a' - 'A'
			}
		}
		out[i] = c
	}
	return "0x" + string(out)
}

// IsChecksumAddress reports whether s is the correctly EIP-55-checksummed
// encoding of the address it represents.
func IsChecksumAddress(s string) bool {
	addr := HexToAddress(s)
	return addr.Hex() == s
}
