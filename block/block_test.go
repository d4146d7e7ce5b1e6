package block

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/crypto"
	"github.com/rdpos-chain/core/txs"
)

func newSignedTx(t *testing.T, priv common.PrivKey, nonce uint64) *txs.TxBlock {
	t.Helper()
	tx := &txs.TxBlock{
		To:       common.HexToAddress("0x00000000000000000000000000000000000042"),
		Value:    uint256.NewInt(1),
		Nonce:    uint256.NewInt(nonce),
		GasLimit: uint256.NewInt(21000),
		GasPrice: uint256.NewInt(1),
	}
	require.NoError(t, tx.Sign(priv, 1))
	return tx
}

func commitRevealPair(t *testing.T, priv common.PrivKey, height uint64, secret common.Hash) (*txs.TxValidator, *txs.TxValidator) {
	t.Helper()
	commit := txs.NewCommit(secret, height)
	require.NoError(t, commit.Sign(priv, 1))
	reveal := txs.NewReveal(secret, height)
	require.NoError(t, reveal.Sign(priv, 1))
	return commit, reveal
}

func TestBlockFinalizeSignsAndFreezes(t *testing.T) {
	validatorKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	senderKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	blk := New(common.Hash{}, 1)
	require.True(t, blk.Mutable())
	require.NoError(t, blk.AppendTx(newSignedTx(t, senderKey, 0)))

	secret := common.RandomHash()
	commit, reveal := commitRevealPair(t, senderKey, 1, secret)
	require.NoError(t, blk.AppendValidatorTx(commit))
	require.NoError(t, blk.AppendValidatorTx(reveal))

	require.NoError(t, blk.Finalize(validatorKey, 1_656_356_646_000_001))
	require.False(t, blk.Mutable())

	require.Equal(t, crypto.Keccak256(secret.Bytes()), blk.Header.Randomness)
	require.NotEqual(t, common.Hash{}, blk.Header.TxMerkleRoot)

	_, err = blk.Hash()
	require.NoError(t, err)

	proposer, err := blk.Proposer()
	require.NoError(t, err)
	require.Equal(t, crypto.ToAddress(crypto.UPubkeyFromPrivKey(validatorKey)), proposer)

	require.ErrorIs(t, blk.AppendTx(newSignedTx(t, senderKey, 1)), ErrAlreadyFinalized)
}

func TestBlockSerializeDeserializeRoundtrip(t *testing.T) {
	validatorKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	senderKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	blk := New(common.RandomHash(), 42)
	require.NoError(t, blk.AppendTx(newSignedTx(t, senderKey, 0)))
	require.NoError(t, blk.AppendTx(newSignedTx(t, senderKey, 1)))

	secret := common.RandomHash()
	commit, reveal := commitRevealPair(t, senderKey, 43, secret)
	require.NoError(t, blk.AppendValidatorTx(commit))
	require.NoError(t, blk.AppendValidatorTx(reveal))
	require.NoError(t, blk.Finalize(validatorKey, 1_700_000_000_000_000))

	encoded := SerializeBlock(blk, txs.DecodeTrusted)
	decoded, err := DeserializeBlock(encoded, txs.DecodeTrusted)
	require.NoError(t, err)

	wantHash, err := blk.Hash()
	require.NoError(t, err)
	gotHash, err := decoded.Hash()
	require.NoError(t, err)
	require.Equal(t, wantHash, gotHash)
	require.Len(t, decoded.Txs, 2)
	require.Len(t, decoded.ValidatorTxs, 2)
	require.Equal(t, blk.Txs[0].From, decoded.Txs[0].From)
}

func TestMerkleRootSingleLeafEqualsItsHash(t *testing.T) {
	h := common.RandomHash()
	root := MerkleRoot([]common.Hash{h})
	require.Equal(t, crypto.Keccak256(h.Bytes()), root)
}

func TestMerkleRootEmptyIsZero(t *testing.T) {
	require.Equal(t, common.Hash{}, MerkleRoot(nil))
}
