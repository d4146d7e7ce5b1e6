// Package rdpos implements the chain's rdPoS consensus bookkeeping: the
// validator set, the deterministic shuffle that picks a proposer and its
// randomizers for each height, the two-phase commit/reveal mempool that
// feeds block randomness, and the validate/process checks a block must
// pass before it extends the chain.
//
// Grounded on original_source/new_src/core/rdpos.cpp/.h (loadFromDB's
// reseed-then-shuffle sequence, addValidatorTx's height/membership/dedup
// checks, validateBlock/processBlock) and original_source/new_src/utils/
// randomgen.cpp/.h (the Fisher-Yates shuffle RandomGen.Shuffle
// reproduces). The validator mempool's RWMutex-guarded map follows
// consensus/bft/vote_pool.go's VotePool shape, adapted from QC-weight
// voting to commit/reveal bookkeeping.
package rdpos

import (
	"errors"
	"sync"

	"github.com/rdpos-chain/core/block"
	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/crypto"
	"github.com/rdpos-chain/core/txs"
)

// MinValidators is the fixed randomizer-set size: a block's validator-tx
// list must carry exactly this many commits followed by this many reveals.
const MinValidators = 4

var (
	ErrTooFewValidators   = errors.New("rdpos: validator list shorter than MinValidators+1")
	ErrWrongHeight        = errors.New("rdpos: validator tx height does not match current height")
	ErrNotRandomizer      = errors.New("rdpos: sender is not a randomizer for this height")
	ErrWrongProposer      = errors.New("rdpos: block signer is not randomList[0]")
	ErrWrongVoteShape     = errors.New("rdpos: validator tx list is not MinValidators commits then MinValidators reveals")
	ErrWrongVoteSender    = errors.New("rdpos: validator tx sender is not the expected randomizer at this position")
	ErrRevealDoesNotMatch = errors.New("rdpos: reveal does not match its paired commit")
	ErrRandomnessMismatch = errors.New("rdpos: block randomness does not match its reveal votes")
)

// ChainTip is the narrow view of chain storage rdPoS needs: the most
// recently accepted block, whose randomness seeds the next shuffle.
type ChainTip interface {
	Latest() *block.Block
}

// RdPoS holds the validator set and the mempool of commit/reveal votes
// collected for the height currently being built.
type RdPoS struct {
	mu sync.RWMutex

	validatorList []common.Address // genesis order, fixed for the node's lifetime
	randomList    []common.Address // current shuffle; randomList[0] is the proposer

	gen *RandomGen

	mempoolMu        sync.RWMutex
	validatorMempool map[common.Hash]*txs.TxValidator
	mempoolHeight    uint64

	chain ChainTip
}

// New builds an RdPoS over validators, seeded from chain's current tip.
// validators must have at least MinValidators+1 entries.
func New(validators []common.Address, chain ChainTip) (*RdPoS, error) {
	if len(validators) < MinValidators+1 {
		return nil, ErrTooFewValidators
	}
	r := &RdPoS{
		validatorList:    append([]common.Address(nil), validators...),
		validatorMempool: make(map[common.Hash]*txs.TxValidator),
		chain:            chain,
	}
	latest := chain.Latest()
	r.gen = NewRandomGen(latest.Header.Randomness)
	r.reshuffle()
	r.mempoolHeight = latest.Header.NHeight + 1
	return r, nil
}

// reshuffle recomputes randomList from validatorList using gen's current
// seed. Callers must hold mu for writing.
func (r *RdPoS) reshuffle() {
	r.randomList = append([]common.Address(nil), r.validatorList...)
	r.gen.Shuffle(r.randomList)
}

// RandomList returns a copy of the current shuffle (randomList[0] is the
// proposer, randomList[1:MinValidators+1] are the randomizers).
func (r *RdPoS) RandomList() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]common.Address(nil), r.randomList...)
}

// Proposer returns the current proposer, randomList[0].
func (r *RdPoS) Proposer() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.randomList[0]
}

// Randomizers returns the current randomizer set, randomList[1:MinValidators+1].
func (r *RdPoS) Randomizers() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]common.Address(nil), r.randomList[1:MinValidators+1]...)
}

func (r *RdPoS) isRandomizer(addr common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.randomList[1 : MinValidators+1] {
		if v == addr {
			return true
		}
	}
	return false
}

// AddValidatorTx admits a commit or reveal vote into the mempool for the
// height currently being built. It rejects votes for any other height,
// votes from non-randomizers, and duplicates (by hash). It reports
// accepted=true only the first time a given vote hash is admitted, which
// callers use to decide whether to rebroadcast it.
func (r *RdPoS) AddValidatorTx(tx *txs.TxValidator) (accepted bool, err error) {
	r.mempoolMu.Lock()
	defer r.mempoolMu.Unlock()

	if tx.NHeight != r.mempoolHeight {
		return false, ErrWrongHeight
	}
	if !r.isRandomizer(tx.From) {
		return false, ErrNotRandomizer
	}
	h := tx.Hash()
	if _, ok := r.validatorMempool[h]; ok {
		return false, nil
	}
	r.validatorMempool[h] = tx
	return true, nil
}

// PendingVotes returns the mempool contents for the height under
// construction, sorted into the commit-then-reveal order ValidateBlock and
// Finalize expect: every randomizer's commit in randomList order, followed
// by every randomizer's reveal in the same order.
func (r *RdPoS) PendingVotes() []*txs.TxValidator {
	randomizers := r.Randomizers()

	r.mempoolMu.RLock()
	bySender := make(map[common.Address][]*txs.TxValidator, len(r.validatorMempool))
	for _, tx := range r.validatorMempool {
		bySender[tx.From] = append(bySender[tx.From], tx)
	}
	r.mempoolMu.RUnlock()

	var commits, reveals []*txs.TxValidator
	for _, addr := range randomizers {
		for _, tx := range bySender[addr] {
			if tx.IsCommit() {
				commits = append(commits, tx)
			}
		}
	}
	for _, addr := range randomizers {
		for _, tx := range bySender[addr] {
			if tx.IsReveal() {
				reveals = append(reveals, tx)
			}
		}
	}
	return append(commits, reveals...)
}

// ValidateBlock checks that blk's proposer signature recovers to the
// current randomList[0], and that its validator-tx list is exactly
// MinValidators commits followed by MinValidators reveals from the
// current randomizer set in randomList order, each reveal matching its
// paired commit and blk's own randomness matching the reveals.
func (r *RdPoS) ValidateBlock(blk *block.Block) error {
	proposer, err := blk.Proposer()
	if err != nil {
		return err
	}
	r.mu.RLock()
	expectedProposer := r.randomList[0]
	randomizers := append([]common.Address(nil), r.randomList[1:MinValidators+1]...)
	r.mu.RUnlock()
	if proposer != expectedProposer {
		return ErrWrongProposer
	}

	if len(blk.ValidatorTxs) != 2*MinValidators {
		return ErrWrongVoteShape
	}
	commits := blk.ValidatorTxs[:MinValidators]
	reveals := blk.ValidatorTxs[MinValidators:]

	commitBySender := make(map[common.Address]*txs.TxValidator, MinValidators)
	for i, tx := range commits {
		if !tx.IsCommit() {
			return ErrWrongVoteShape
		}
		if tx.From != randomizers[i] {
			return ErrWrongVoteSender
		}
		commitBySender[tx.From] = tx
	}
	for i, tx := range reveals {
		if !tx.IsReveal() {
			return ErrWrongVoteShape
		}
		if tx.From != randomizers[i] {
			return ErrWrongVoteSender
		}
		commit, ok := commitBySender[tx.From]
		if !ok || !tx.MatchesCommit(commit) {
			return ErrRevealDoesNotMatch
		}
	}

	var secrets []byte
	for _, tx := range reveals {
		secrets = append(secrets, tx.Payload()...)
	}
	if crypto.Keccak256(secrets) != blk.Header.Randomness {
		return ErrRandomnessMismatch
	}
	return nil
}

// ProcessBlock advances rdPoS state past an accepted block: gen is reseeded
// directly from the block's own randomness (not gen's own evolving
// sequence), randomList is reshuffled from that seed, the mempool is
// cleared, and the height under construction advances.
func (r *RdPoS) ProcessBlock(blk *block.Block) {
	r.mu.Lock()
	r.gen.SetSeed(blk.Header.Randomness)
	r.reshuffle()
	r.mu.Unlock()

	r.mempoolMu.Lock()
	r.validatorMempool = make(map[common.Hash]*txs.TxValidator)
	r.mempoolHeight = blk.Header.NHeight + 1
	r.mempoolMu.Unlock()
}
