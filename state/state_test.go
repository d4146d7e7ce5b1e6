package state

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/crypto"
	"github.com/rdpos-chain/core/rdpos"
	"github.com/rdpos-chain/core/storage"
	"github.com/rdpos-chain/core/tosdb/memorydb"
	"github.com/rdpos-chain/core/txs"
)

func newTestState(t *testing.T) (*State, *rdpos.RdPoS, map[common.Address]common.PrivKey) {
	t.Helper()
	genesisKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	db := memorydb.New()
	chain, err := storage.Open(db, genesisKey)
	require.NoError(t, err)

	privByAddr := make(map[common.Address]common.PrivKey)
	addrs := make([]common.Address, rdpos.MinValidators+1)
	for i := range addrs {
		priv, err := crypto.GenerateKey()
		require.NoError(t, err)
		addr := crypto.ToAddress(crypto.UPubkeyFromPrivKey(priv))
		addrs[i] = addr
		privByAddr[addr] = priv
	}

	engine, err := rdpos.New(addrs, chain)
	require.NoError(t, err)

	s := New(db, chain, engine, 1)
	return s, engine, privByAddr
}

func TestValidateTxForRPCAdmitsAndRejects(t *testing.T) {
	s, _, _ := newTestState(t)

	senderPriv, err := crypto.GenerateKey()
	require.NoError(t, err)
	sender := crypto.ToAddress(crypto.UPubkeyFromPrivKey(senderPriv))
	require.NoError(t, s.CreditGenesisAccount(sender, uint256.NewInt(100000)))

	tx := &txs.TxBlock{
		To:       common.HexToAddress("0x00000000000000000000000000000000000099"),
		Value:    uint256.NewInt(5),
		Nonce:    uint256.NewInt(0),
		GasLimit: uint256.NewInt(21000),
		GasPrice: uint256.NewInt(1),
	}
	require.NoError(t, tx.Sign(senderPriv, 1))

	require.NoError(t, s.ValidateTxForRPC(tx))
	require.Equal(t, 1, s.MempoolLen())

	require.ErrorIs(t, s.ValidateTxForRPC(tx), ErrAlreadyInMempool)

	unknownPriv, err := crypto.GenerateKey()
	require.NoError(t, err)
	unfunded := &txs.TxBlock{
		To:       sender,
		Value:    uint256.NewInt(1),
		Nonce:    uint256.NewInt(0),
		GasLimit: uint256.NewInt(21000),
		GasPrice: uint256.NewInt(1),
	}
	require.NoError(t, unfunded.Sign(unknownPriv, 1))
	var rpcErr *RPCError
	require.ErrorAs(t, s.ValidateTxForRPC(unfunded), &rpcErr)
	require.Equal(t, RPCAccountNotFound, rpcErr.Code)
}

func TestCreateValidateProcessBlockRoundtrip(t *testing.T) {
	s, engine, privByAddr := newTestState(t)

	senderPriv, err := crypto.GenerateKey()
	require.NoError(t, err)
	sender := crypto.ToAddress(crypto.UPubkeyFromPrivKey(senderPriv))
	receiver := common.HexToAddress("0x00000000000000000000000000000000000099")
	require.NoError(t, s.CreditGenesisAccount(sender, uint256.NewInt(1000000)))

	tx := &txs.TxBlock{
		To:       receiver,
		Value:    uint256.NewInt(5),
		Nonce:    uint256.NewInt(0),
		GasLimit: uint256.NewInt(21000),
		GasPrice: uint256.NewInt(1),
	}
	require.NoError(t, tx.Sign(senderPriv, 1))
	require.NoError(t, s.ValidateTxForRPC(tx))

	randomizers := engine.Randomizers()
	secrets := make([]common.Hash, rdpos.MinValidators)
	for i, addr := range randomizers {
		secrets[i] = common.RandomHash()
		commit := txs.NewCommit(secrets[i], 1)
		require.NoError(t, commit.Sign(privByAddr[addr], 1))
		_, err := engine.AddValidatorTx(commit)
		require.NoError(t, err)
	}
	for i, addr := range randomizers {
		reveal := txs.NewReveal(secrets[i], 1)
		require.NoError(t, reveal.Sign(privByAddr[addr], 1))
		_, err := engine.AddValidatorTx(reveal)
		require.NoError(t, err)
	}

	blk := s.CreateNewBlock()
	proposerPriv := privByAddr[engine.Proposer()]
	require.NoError(t, blk.Finalize(proposerPriv, 2_000_000))

	require.NoError(t, s.ValidateNextBlock(blk))
	require.NoError(t, s.ProcessNextBlock(blk))

	require.Equal(t, 0, s.MempoolLen())
	require.Equal(t, uint256.NewInt(1000000-5-21000).String(), s.GetNativeBalance(sender).String())
	require.Equal(t, uint256.NewInt(5).String(), s.GetNativeBalance(receiver).String())
	require.Equal(t, uint256.NewInt(1).String(), s.GetNativeNonce(sender).String())

	latestHash, err := blk.Hash()
	require.NoError(t, err)
	tipHash, err := s.storage.Latest().Hash()
	require.NoError(t, err)
	require.Equal(t, latestHash, tipHash)
}
