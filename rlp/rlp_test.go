package rlp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeListRoundtrip(t *testing.T) {
	a := EncodeUint(54100)
	b := EncodeUint(25_000_000_000)
	c := EncodeString([]byte{0xde, 0xad, 0xbe, 0xef})
	list := EncodeList(a, b, c)

	items, err := DecodeList(list)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, items[2])
}

func TestEncodeUintZeroIsEmptyString(t *testing.T) {
	require.Equal(t, []byte{0x80}, EncodeUint(0))
}

func TestDecodeListRejectsShortLengthPrefix(t *testing.T) {
	// A list header claiming 10 bytes of payload but only 2 are present.
	bogus := []byte{0xca, 0x01, 0x02}
	_, err := DecodeList(bogus)
	require.Error(t, err)
}

func TestDecodeStringRejectsNonCanonicalShortForm(t *testing.T) {
	// 0x01 re-encoded via the short-string marker (0x81 0x01) instead of
	// the implicit single-byte form.
	bogus := EncodeList([]byte{0x81, 0x01})
	_, err := DecodeList(bogus)
	require.ErrorIs(t, err, ErrOversizedString)
}
