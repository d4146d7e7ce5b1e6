package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/crypto"
	"github.com/rdpos-chain/core/rdpos"
	"github.com/rdpos-chain/core/state"
	"github.com/rdpos-chain/core/storage"
	"github.com/rdpos-chain/core/tosdb/memorydb"
	"github.com/rdpos-chain/core/txs"
)

// buildCommittee wires a full committee of Engines (one per validator, all
// sharing the same State/rdPoS so a single Engine's private actions are
// immediately visible to the others, as if relayed over a network) to
// exercise a block production round without any real p2p.Manager.
func buildCommittee(t *testing.T) []*Engine {
	t.Helper()
	genesisKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	db := memorydb.New()
	chain, err := storage.Open(db, genesisKey)
	require.NoError(t, err)

	privs := make([]common.PrivKey, rdpos.MinValidators+1)
	addrs := make([]common.Address, rdpos.MinValidators+1)
	for i := range addrs {
		priv, err := crypto.GenerateKey()
		require.NoError(t, err)
		privs[i] = priv
		addrs[i] = crypto.ToAddress(crypto.UPubkeyFromPrivKey(priv))
	}

	engine, err := rdpos.New(addrs, chain)
	require.NoError(t, err)
	st := state.New(db, chain, engine, 1)

	engines := make([]*Engine, len(privs))
	for i, priv := range privs {
		engines[i] = New(st, chain, engine, nil, priv, 1)
	}
	return engines
}

func TestEngineStartStopIsClean(t *testing.T) {
	engines := buildCommittee(t)
	e := engines[0]
	e.Start()
	time.Sleep(5 * time.Millisecond)
	e.Stop()
}

func TestDoRandomizerVotesIsNoopForNonRandomizer(t *testing.T) {
	engines := buildCommittee(t)

	var nonRandomizer *Engine
	for _, e := range engines {
		isRandomizer := false
		for _, addr := range e.rdpos.Randomizers() {
			if addr == e.self {
				isRandomizer = true
				break
			}
		}
		if !isRandomizer {
			nonRandomizer = e
			break
		}
	}
	require.NotNil(t, nonRandomizer, "committee of MinValidators+1 must have a non-randomizer (the proposer)")

	nonRandomizer.doRandomizerVotes(1)
	require.Empty(t, nonRandomizer.rdpos.PendingVotes())
}

func privForAddr(engines []*Engine, addr common.Address) common.PrivKey {
	for _, e := range engines {
		if e.self == addr {
			return e.priv
		}
	}
	return common.PrivKey{}
}

func TestHaveFullVoteSetReflectsCommitteeParticipation(t *testing.T) {
	engines := buildCommittee(t)
	e := engines[0]
	require.False(t, e.haveFullVoteSet())

	randomizers := e.rdpos.Randomizers()
	secrets := make([]common.Hash, len(randomizers))
	for i, addr := range randomizers {
		secrets[i] = common.RandomHash()
		commit := txs.NewCommit(secrets[i], 1)
		require.NoError(t, commit.Sign(privForAddr(engines, addr), 1))
		_, err := e.rdpos.AddValidatorTx(commit)
		require.NoError(t, err)
	}
	for i, addr := range randomizers {
		reveal := txs.NewReveal(secrets[i], 1)
		require.NoError(t, reveal.Sign(privForAddr(engines, addr), 1))
		_, err := e.rdpos.AddValidatorTx(reveal)
		require.NoError(t, err)
	}

	require.True(t, e.haveFullVoteSet())
}
