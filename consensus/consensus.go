// Package consensus drives the single per-validator worker loop that turns
// rdPoS's shuffled validator list into actual blocks: the proposer branch
// assembles and finalizes a block once enough validator votes and at least
// one pending transaction are available; the randomizer branch generates a
// secret, commits its hash, waits for the rest of the committee, then
// reveals.
//
// Grounded on original_source/src/core/consensus.cpp/.h (Consensus's
// validatorLoop/doValidatorBlock/doValidatorTx, the 10 microsecond spin-wait,
// the "recheck storage tip before looping again" shape) and
// consensus/bft/reactor.go's stop-channel-driven worker goroutine pattern.
package consensus

import (
	"context"
	"time"

	"github.com/rdpos-chain/core/block"
	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/crypto"
	"github.com/rdpos-chain/core/log"
	"github.com/rdpos-chain/core/p2p"
	"github.com/rdpos-chain/core/rdpos"
	"github.com/rdpos-chain/core/state"
	"github.com/rdpos-chain/core/storage"
	"github.com/rdpos-chain/core/txs"
)

// pollInterval is the spin-wait sleep between mempool/tip checks; both the
// proposer and randomizer branches use it.
const pollInterval = 10 * time.Microsecond

// peerPollEvery bounds how often the proposer re-queries NORMAL peers for
// validator votes while spin-waiting, rather than hammering the network
// every 10us.
const peerPollEvery = 10

// Engine drives the validator worker loop for a single node. It is only
// started on a node holding a validator private key; an RPC-only or
// discovery-only node never constructs one.
type Engine struct {
	state   *state.State
	chain   *storage.Storage
	rdpos   *rdpos.RdPoS
	p2p     *p2p.Manager
	log     log.Logger
	priv    common.PrivKey
	self    common.Address
	chainID uint64

	stop chan struct{}
	done chan struct{}
}

// New builds a validator Engine. priv must be the private key for one of
// the addresses in rdpos's validator set; Engine derives its own address
// from it to decide whether it is the current proposer or a randomizer.
func New(st *state.State, chain *storage.Storage, engine *rdpos.RdPoS, network *p2p.Manager, priv common.PrivKey, chainID uint64) *Engine {
	return &Engine{
		state:   st,
		chain:   chain,
		rdpos:   engine,
		p2p:     network,
		log:     log.New("module", "consensus"),
		priv:    priv,
		self:    crypto.ToAddress(crypto.UPubkeyFromPrivKey(priv)),
		chainID: chainID,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the validator loop in its own goroutine.
func (e *Engine) Start() {
	e.log.Info("starting validator loop")
	go e.validatorLoop()
}

// Stop requests the loop exit and blocks until it has.
func (e *Engine) Stop() {
	close(e.stop)
	<-e.done
}

func (e *Engine) stopped() bool {
	select {
	case <-e.stop:
		return true
	default:
		return false
	}
}

func (e *Engine) validatorLoop() {
	defer close(e.done)
	for !e.stopped() {
		latest := e.chain.Latest()

		if e.rdpos.Proposer() == e.self {
			e.doProposerBlock()
		} else {
			e.doRandomizerVotes(latest.Header.NHeight + 1)
		}
		if e.stopped() {
			return
		}

		logged := false
		for sameTip(e.chain.Latest(), latest) && !e.stopped() {
			if !logged {
				e.log.Debug("waiting for next block")
				logged = true
			}
			time.Sleep(pollInterval)
		}
	}
}

func sameTip(a, b *block.Block) bool {
	ha, errA := a.Hash()
	hb, errB := b.Hash()
	return errA == nil && errB == nil && ha == hb
}

// doProposerBlock waits for a full committee of votes plus at least one
// pending transaction, then assembles, finalizes, validates, processes and
// broadcasts the next block.
func (e *Engine) doProposerBlock() {
	attempts := 0
	for e.state.MempoolLen() == 0 || !e.haveFullVoteSet() {
		if e.stopped() {
			return
		}
		if attempts%peerPollEvery == 0 {
			e.pullValidatorTxsFromPeers()
		}
		attempts++
		time.Sleep(pollInterval)
	}
	for e.state.MempoolLen() < 1 {
		if e.stopped() {
			return
		}
		time.Sleep(pollInterval)
	}
	if e.stopped() {
		return
	}

	blk := e.state.CreateNewBlock()
	if err := blk.Finalize(e.priv, uint64(time.Now().UnixMicro())); err != nil {
		e.log.Error("failed to finalize proposed block", "err", err)
		return
	}
	if err := e.state.ValidateNextBlock(blk); err != nil {
		e.log.Error("self-proposed block failed validation", "err", err)
		return
	}
	if err := e.state.ProcessNextBlock(blk); err != nil {
		e.log.Error("failed to process self-proposed block", "err", err)
		return
	}
	if e.p2p != nil {
		e.p2p.BroadcastBlock(blk)
	}
}

// haveFullVoteSet reports whether the randomizer vote count needed to build
// a block (2*MinValidators commits+reveals) is already present.
func (e *Engine) haveFullVoteSet() bool {
	return len(e.rdpos.PendingVotes()) == 2*rdpos.MinValidators
}

func (e *Engine) pullValidatorTxsFromPeers() {
	if e.p2p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p2p.RequestTimeout)
	defer cancel()
	for _, peer := range e.p2p.Peers() {
		if peer.Type != p2p.NodeNormal {
			continue
		}
		sess, ok := e.p2p.Session(peer.NodeID())
		if !ok {
			continue
		}
		votes, err := e.p2p.RequestValidatorTxs(ctx, sess)
		if err != nil {
			continue
		}
		for _, v := range votes {
			_, _ = e.rdpos.AddValidatorTx(v)
		}
	}
}

// doRandomizerVotes generates a secret, broadcasts its commit, waits for the
// rest of the committee's commits, then broadcasts the reveal. No-op if
// this node is not a randomizer at height.
func (e *Engine) doRandomizerVotes(height uint64) {
	isRandomizer := false
	for _, addr := range e.rdpos.Randomizers() {
		if addr == e.self {
			isRandomizer = true
			break
		}
	}
	if !isRandomizer {
		return
	}

	secret := common.RandomHash()
	commit := txs.NewCommit(secret, height)
	if err := commit.Sign(e.priv, e.chainID); err != nil {
		e.log.Error("failed to sign commit vote", "err", err)
		return
	}
	if _, err := e.rdpos.AddValidatorTx(commit); err != nil {
		e.log.Debug("local commit rejected", "err", err)
	}
	if e.p2p != nil {
		e.p2p.BroadcastValidatorTx(commit)
	}

	attempts := 0
	for len(e.rdpos.PendingVotes()) < rdpos.MinValidators && !e.stopped() {
		if attempts%peerPollEvery == 0 {
			e.pullValidatorTxsFromPeers()
		}
		attempts++
		time.Sleep(pollInterval)
	}
	if e.stopped() {
		return
	}

	reveal := txs.NewReveal(secret, height)
	if err := reveal.Sign(e.priv, e.chainID); err != nil {
		e.log.Error("failed to sign reveal vote", "err", err)
		return
	}
	if _, err := e.rdpos.AddValidatorTx(reveal); err != nil {
		e.log.Debug("local reveal rejected", "err", err)
	}
	if e.p2p != nil {
		e.p2p.BroadcastValidatorTx(reveal)
	}
}
