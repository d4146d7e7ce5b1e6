package rdpos

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rdpos-chain/core/block"
	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/crypto"
	"github.com/rdpos-chain/core/txs"
)

type fixedTip struct{ b *block.Block }

func (f fixedTip) Latest() *block.Block { return f.b }

func genesisTip(t *testing.T) (*block.Block, common.PrivKey) {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	g := block.New(common.Hash{}, 0)
	require.NoError(t, g.Finalize(priv, 1000))
	return g, priv
}

func validatorSet(t *testing.T, n int) ([]common.Address, []common.PrivKey) {
	t.Helper()
	addrs := make([]common.Address, n)
	privs := make([]common.PrivKey, n)
	for i := 0; i < n; i++ {
		priv, err := crypto.GenerateKey()
		require.NoError(t, err)
		privs[i] = priv
		addrs[i] = crypto.ToAddress(crypto.UPubkeyFromPrivKey(priv))
	}
	return addrs, privs
}

func TestRandomGenShuffleIsDeterministic(t *testing.T) {
	seed := common.RandomHash()
	addrs, _ := validatorSet(t, 6)

	a := append([]common.Address(nil), addrs...)
	b := append([]common.Address(nil), addrs...)

	NewRandomGen(seed).Shuffle(a)
	NewRandomGen(seed).Shuffle(b)

	require.Equal(t, a, b)
}

func TestNewRejectsTooFewValidators(t *testing.T) {
	g, _ := genesisTip(t)
	addrs, _ := validatorSet(t, MinValidators)
	_, err := New(addrs, fixedTip{g})
	require.ErrorIs(t, err, ErrTooFewValidators)
}

func TestAddValidatorTxRejectsWrongHeightAndNonRandomizer(t *testing.T) {
	g, _ := genesisTip(t)
	addrs, privs := validatorSet(t, MinValidators+1)
	r, err := New(addrs, fixedTip{g})
	require.NoError(t, err)

	proposer := r.Proposer()
	var outsiderPriv common.PrivKey
	for i, a := range addrs {
		if a == proposer {
			outsiderPriv = privs[i]
		}
	}

	commit := txs.NewCommit(common.RandomHash(), 1)
	require.NoError(t, commit.Sign(outsiderPriv, 1))
	_, err = r.AddValidatorTx(commit)
	require.ErrorIs(t, err, ErrNotRandomizer)

	randomizers := r.Randomizers()
	var randomizerPriv common.PrivKey
	for i, a := range addrs {
		if a == randomizers[0] {
			randomizerPriv = privs[i]
		}
	}
	wrongHeight := txs.NewCommit(common.RandomHash(), 99)
	require.NoError(t, wrongHeight.Sign(randomizerPriv, 1))
	_, err = r.AddValidatorTx(wrongHeight)
	require.ErrorIs(t, err, ErrWrongHeight)
}

func TestAddValidatorTxDedups(t *testing.T) {
	g, _ := genesisTip(t)
	addrs, privs := validatorSet(t, MinValidators+1)
	r, err := New(addrs, fixedTip{g})
	require.NoError(t, err)

	randomizers := r.Randomizers()
	var randomizerPriv common.PrivKey
	for i, a := range addrs {
		if a == randomizers[0] {
			randomizerPriv = privs[i]
		}
	}

	commit := txs.NewCommit(common.RandomHash(), 1)
	require.NoError(t, commit.Sign(randomizerPriv, 1))

	accepted, err := r.AddValidatorTx(commit)
	require.NoError(t, err)
	require.True(t, accepted)

	accepted, err = r.AddValidatorTx(commit)
	require.NoError(t, err)
	require.False(t, accepted)
}

func TestValidateAndProcessBlockRoundtrip(t *testing.T) {
	g, _ := genesisTip(t)
	addrs, privs := validatorSet(t, MinValidators+1)
	r, err := New(addrs, fixedTip{g})
	require.NoError(t, err)

	privByAddr := make(map[common.Address]common.PrivKey, len(addrs))
	for i, a := range addrs {
		privByAddr[a] = privs[i]
	}

	proposer := r.Proposer()
	randomizers := r.Randomizers()

	secrets := make([]common.Hash, MinValidators)
	var blk *block.Block

	buildBlock := func() *block.Block {
		genesisHash, err := g.Hash()
		require.NoError(t, err)
		b := block.New(genesisHash, 1)
		for i, addr := range randomizers {
			secrets[i] = common.RandomHash()
			commit := txs.NewCommit(secrets[i], 1)
			require.NoError(t, commit.Sign(privByAddr[addr], 1))
			require.NoError(t, b.AppendValidatorTx(commit))
		}
		for i, addr := range randomizers {
			reveal := txs.NewReveal(secrets[i], 1)
			require.NoError(t, reveal.Sign(privByAddr[addr], 1))
			require.NoError(t, b.AppendValidatorTx(reveal))
		}
		require.NoError(t, b.Finalize(privByAddr[proposer], 2000))
		return b
	}
	blk = buildBlock()

	require.NoError(t, r.ValidateBlock(blk))

	r.ProcessBlock(blk)
	// ProcessBlock reseeds from the block's randomness and then reshuffles,
	// and every Fisher-Yates swap advances the seed once more.
	reference := NewRandomGen(blk.Header.Randomness)
	reference.Shuffle(append([]common.Address(nil), addrs...))
	require.Equal(t, reference.Seed(), r.gen.Seed())
	require.Empty(t, r.validatorMempool)
}

func TestValidateBlockRejectsWrongProposer(t *testing.T) {
	g, _ := genesisTip(t)
	addrs, privs := validatorSet(t, MinValidators+1)
	r, err := New(addrs, fixedTip{g})
	require.NoError(t, err)

	privByAddr := make(map[common.Address]common.PrivKey, len(addrs))
	for i, a := range addrs {
		privByAddr[a] = privs[i]
	}
	randomizers := r.Randomizers()

	genesisHash, err := g.Hash()
	require.NoError(t, err)
	b := block.New(genesisHash, 1)
	for _, addr := range randomizers {
		secret := common.RandomHash()
		commit := txs.NewCommit(secret, 1)
		require.NoError(t, commit.Sign(privByAddr[addr], 1))
		require.NoError(t, b.AppendValidatorTx(commit))
	}
	// Sign with a randomizer instead of the proposer.
	require.NoError(t, b.Finalize(privByAddr[randomizers[0]], 2000))

	err = r.ValidateBlock(b)
	require.ErrorIs(t, err, ErrWrongProposer)
}
