package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rdpos-chain/core/common"
)

func TestSignRecoverRoundtrip(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)
	upub := UPubkeyFromPrivKey(priv)

	msg := Keccak256([]byte("hello rdpos"))
	sig, err := Sign(msg, priv)
	require.NoError(t, err)
	require.True(t, ValidSignatureValues(sig))

	recovered, ok := Recover(sig, msg)
	require.True(t, ok)
	require.Equal(t, upub, recovered)
	require.True(t, Verify(msg, upub, sig))
}

func TestAddressDerivation(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)
	upub := UPubkeyFromPrivKey(priv)
	addr := ToAddress(upub)

	want := Keccak256(upub[1:65])
	require.Equal(t, want[12:32], addr.Bytes())
}

func TestChecksumAddress(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)
	addr := ToAddress(UPubkeyFromPrivKey(priv))
	checksummed := addr.Hex()
	require.True(t, common.IsChecksumAddress(checksummed))
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)
	upub := UPubkeyFromPrivKey(priv)
	msg := Keccak256([]byte("data"))
	sig, err := Sign(msg, priv)
	require.NoError(t, err)

	sig[0] ^= 0xff
	require.False(t, Verify(msg, upub, sig))
}
