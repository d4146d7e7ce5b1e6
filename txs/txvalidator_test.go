package txs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/crypto"
)

func TestTxValidatorCommitSignDecodeRoundtrip(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	secret := common.RandomHash()
	tx := NewCommit(secret, 42)
	require.NoError(t, tx.Sign(priv, 1))
	require.True(t, tx.IsCommit())
	require.False(t, tx.IsReveal())

	encoded := EncodeTxValidator(tx)
	decoded, err := DecodeTxValidator(encoded)
	require.NoError(t, err)

	require.Equal(t, tx.From, decoded.From)
	require.Equal(t, tx.Hash(), decoded.Hash())
	require.Equal(t, tx.NHeight, decoded.NHeight)
	require.True(t, decoded.IsCommit())
}

func TestTxValidatorRevealMatchesCommit(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	secret := common.RandomHash()
	commit := NewCommit(secret, 7)
	require.NoError(t, commit.Sign(priv, 1))

	reveal := NewReveal(secret, 7)
	require.NoError(t, reveal.Sign(priv, 1))

	require.True(t, reveal.MatchesCommit(commit))

	other := NewReveal(common.RandomHash(), 7)
	require.NoError(t, other.Sign(priv, 1))
	require.False(t, other.MatchesCommit(commit))
}

func TestDecodeTxValidatorRejectsUnknownSelector(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	tx := &TxValidator{Data: []byte{0x01, 0x02, 0x03, 0x04, 0xaa}}
	require.NoError(t, tx.Sign(priv, 1))

	_, err = DecodeTxValidator(EncodeTxValidator(tx))
	require.ErrorIs(t, err, ErrUnknownSelector)
}

func TestDecodeTxValidatorRejectsWrongFieldCount(t *testing.T) {
	_, err := DecodeTxValidator([]byte{0xc0})
	require.Error(t, err)
}
