package storage

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/rdpos-chain/core/block"
	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/crypto"
	"github.com/rdpos-chain/core/tosdb/memorydb"
	"github.com/rdpos-chain/core/txs"
)

func TestOpenSynthesizesGenesisOnEmptyDB(t *testing.T) {
	genesisKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	s, err := Open(memorydb.New(), genesisKey)
	require.NoError(t, err)

	latest := s.Latest()
	require.Equal(t, uint64(0), latest.Header.NHeight)
	require.Equal(t, common.Hash{}, latest.Header.PrevHash)
	require.Equal(t, common.Hash{}, latest.Header.Randomness)
	require.Equal(t, uint64(GenesisTimestamp), latest.Header.Timestamp)
}

func TestPushBackRejectsWrongPrevHash(t *testing.T) {
	genesisKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	s, err := Open(memorydb.New(), genesisKey)
	require.NoError(t, err)

	bad := block.New(common.RandomHash(), 1)
	require.NoError(t, bad.Finalize(genesisKey, GenesisTimestamp+1))
	require.ErrorIs(t, s.PushBack(bad), ErrBadPrevHash)
}

func TestPushBackAndGetBlockAndTx(t *testing.T) {
	genesisKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	senderKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	s, err := Open(memorydb.New(), genesisKey)
	require.NoError(t, err)

	genesisHash, err := s.Latest().Hash()
	require.NoError(t, err)

	tx := &txs.TxBlock{
		To:       common.HexToAddress("0x00000000000000000000000000000000000099"),
		Value:    uint256.NewInt(5),
		Nonce:    uint256.NewInt(0),
		GasLimit: uint256.NewInt(21000),
		GasPrice: uint256.NewInt(1),
	}
	require.NoError(t, tx.Sign(senderKey, 1))

	next := block.New(genesisHash, 1)
	require.NoError(t, next.AppendTx(tx))
	require.NoError(t, next.Finalize(genesisKey, GenesisTimestamp+1))
	require.NoError(t, s.PushBack(next))

	nextHash, err := next.Hash()
	require.NoError(t, err)

	gotByHash, err := s.GetBlockByHash(nextHash)
	require.NoError(t, err)
	require.Equal(t, uint64(1), gotByHash.Header.NHeight)

	gotByHeight, err := s.GetBlockByHeight(1)
	require.NoError(t, err)
	gotByHeightHash, err := gotByHeight.Hash()
	require.NoError(t, err)
	require.Equal(t, nextHash, gotByHeightHash)

	gotTx, loc, err := s.GetTx(tx.Hash())
	require.NoError(t, err)
	require.Equal(t, tx.Hash(), gotTx.Hash())
	require.Equal(t, nextHash, loc.BlockHash)
	require.Equal(t, uint32(0), loc.Index)
	require.Equal(t, uint64(1), loc.Height)
}

func TestShutdownAndReopenRoundtrip(t *testing.T) {
	genesisKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	db := memorydb.New()

	s, err := Open(db, genesisKey)
	require.NoError(t, err)
	genesisHash, err := s.Latest().Hash()
	require.NoError(t, err)

	next := block.New(genesisHash, 1)
	require.NoError(t, next.Finalize(genesisKey, GenesisTimestamp+1))
	require.NoError(t, s.PushBack(next))
	require.NoError(t, s.Shutdown())

	reopened, err := Open(db, genesisKey)
	require.NoError(t, err)
	nextHash, err := next.Hash()
	require.NoError(t, err)
	reopenedHash, err := reopened.Latest().Hash()
	require.NoError(t, err)
	require.Equal(t, nextHash, reopenedHash)
}
