// Package state implements the account ledger and transaction mempool that
// sit on top of rdPoS and storage: balance/nonce bookkeeping, RPC-facing
// transaction admission, and the validate/process/create-block orchestration
// that drives a block from proposal through to chain append.
//
// Grounded on staking/state.go's map-of-accounts bookkeeping pattern
// (simplified to a plain map, since dynamic validator reconfiguration is out
// of scope here) and original_source/new_src/core/state.cpp/.h for the exact
// per-tx balance/nonce update formula and the admission/validation/process
// contract.
package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/rdpos-chain/core/block"
	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/rdpos"
	"github.com/rdpos-chain/core/storage"
	"github.com/rdpos-chain/core/tosdb"
	"github.com/rdpos-chain/core/txs"
)

// RPC-facing error codes returned by ValidateTxForRPC.
const (
	RPCInvalidNonce        = -32001
	RPCInsufficientBalance = -32002
	RPCAccountNotFound     = -32003
)

// RPCError is a non-fatal transaction admission failure carrying the
// JSON-RPC-style numeric code the external RPC collaborator maps back to a
// response object.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string { return e.Message }

func newRPCError(code int, format string, args ...interface{}) *RPCError {
	return &RPCError{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	// ErrAlreadyInMempool is informational, not a protocol failure: the tx
	// is simply dropped rather than re-admitted.
	ErrAlreadyInMempool   = errors.New("state: tx already in mempool")
	ErrBadPrevHash        = errors.New("state: block prev_hash does not match chain tip")
	ErrBadHeight          = errors.New("state: block n_height is not chain tip + 1")
	ErrTxAlreadyIncluded  = errors.New("state: tx already included in a previous block")
	ErrDuplicateTxInBlock = errors.New("state: tx hash repeated within the same block")
)

// State owns the native account ledger and the pending TxBlock mempool. A
// single RWMutex guards both; public methods never expose the underlying
// maps.
type State struct {
	mu       sync.RWMutex
	accounts map[common.Address]*Account
	mempool  map[common.Hash]*txs.TxBlock

	db      tosdb.Database
	storage *storage.Storage
	rdpos   *rdpos.RdPoS
	chainID uint64
}

// New builds a State backed by db (for account persistence), chain (for tip
// lookups and block append) and engine (for rdPoS validate/process calls).
// db should be the same handle storage.Open was given: accounts share the
// node's single key-value store, distinguished by the nativeAccounts prefix.
func New(db tosdb.Database, chain *storage.Storage, engine *rdpos.RdPoS, chainID uint64) *State {
	return &State{
		accounts: make(map[common.Address]*Account),
		mempool:  make(map[common.Hash]*txs.TxBlock),
		db:       db,
		storage:  chain,
		rdpos:    engine,
		chainID:  chainID,
	}
}

// getAccount returns the account for addr, loading it from the database on
// first access and caching it in memory. The returned pointer is a live
// reference into the in-memory cache; callers that must not mutate state
// should clone it.
func (s *State) getAccount(addr common.Address) (*Account, bool) {
	if acc, ok := s.accounts[addr]; ok {
		return acc, true
	}
	raw, err := s.db.Get(accountKey(addr))
	if err != nil {
		return nil, false
	}
	acc, ok := decodeAccount(raw)
	if !ok {
		return nil, false
	}
	s.accounts[addr] = acc
	return acc, true
}

// GetNativeBalance returns addr's balance, or zero if the account doesn't exist.
func (s *State) GetNativeBalance(addr common.Address) *uint256.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if acc, ok := s.getAccount(addr); ok {
		return new(uint256.Int).Set(acc.Balance)
	}
	return uint256.NewInt(0)
}

// GetNativeNonce returns addr's nonce widened to a u256, or zero if the
// account doesn't exist.
func (s *State) GetNativeNonce(addr common.Address) *uint256.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if acc, ok := s.getAccount(addr); ok {
		return uint256.NewInt(uint64(acc.Nonce))
	}
	return uint256.NewInt(0)
}

// txCost returns value + gas_price*gas_limit, the full balance debit a tx
// applies to its sender.
func txCost(tx *txs.TxBlock) *uint256.Int {
	cost := new(uint256.Int).Mul(tx.GasPrice, tx.GasLimit)
	return cost.Add(cost, tx.Value)
}

// ValidateTxForRPC admits tx into the pending-transaction mempool. It
// returns ErrAlreadyInMempool (informational, not an RPCError) if the tx is
// already pending, or an *RPCError for AccountNotFound/InsufficientBalance/
// InvalidNonce. On success the tx is inserted into the mempool.
func (s *State) ValidateTxForRPC(tx *txs.TxBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := tx.Hash()
	if _, ok := s.mempool[h]; ok {
		return ErrAlreadyInMempool
	}

	acc, ok := s.getAccount(tx.From)
	if !ok {
		return newRPCError(RPCAccountNotFound, "account %s not found", tx.From.Hex())
	}
	if acc.Balance.Lt(tx.Value) {
		return newRPCError(RPCInsufficientBalance, "account %s balance below tx value", tx.From.Hex())
	}
	if uint64(acc.Nonce) != tx.Nonce.Uint64() {
		return newRPCError(RPCInvalidNonce, "expected nonce %d, got %s", acc.Nonce, tx.Nonce.String())
	}

	s.mempool[h] = tx
	return nil
}

// ValidateNextBlock checks blk against the chain tip, rdPoS's consensus
// rules, and every included TxBlock's nonce/balance/not-already-processed
// invariants, applying each tx to a scratch copy of account state so that
// multiple txs from the same sender within one block are checked against
// their cumulative effect.
func (s *State) ValidateNextBlock(blk *block.Block) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tip := s.storage.Latest()
	tipHash, err := tip.Hash()
	if err != nil {
		return err
	}
	if blk.Header.PrevHash != tipHash {
		return ErrBadPrevHash
	}
	if blk.Header.NHeight != tip.Header.NHeight+1 {
		return ErrBadHeight
	}
	if err := s.rdpos.ValidateBlock(blk); err != nil {
		return err
	}

	scratch := make(map[common.Address]*Account)
	seen := make(map[common.Hash]bool, len(blk.Txs))
	for _, tx := range blk.Txs {
		h := tx.Hash()
		if seen[h] {
			return ErrDuplicateTxInBlock
		}
		seen[h] = true
		if _, _, err := s.storage.GetTx(h); err == nil {
			return ErrTxAlreadyIncluded
		}
		if err := s.checkAndApplyScratch(scratch, tx); err != nil {
			return err
		}
	}
	return nil
}

// checkAndApplyScratch validates tx against scratch (falling back to live
// account state on first touch) and mutates scratch in place on success.
func (s *State) checkAndApplyScratch(scratch map[common.Address]*Account, tx *txs.TxBlock) error {
	from, ok := scratch[tx.From]
	if !ok {
		live, found := s.getAccount(tx.From)
		if !found {
			return newRPCError(RPCAccountNotFound, "account %s not found", tx.From.Hex())
		}
		from = live.clone()
		scratch[tx.From] = from
	}

	cost := txCost(tx)
	if uint64(from.Nonce) != tx.Nonce.Uint64() {
		return newRPCError(RPCInvalidNonce, "expected nonce %d, got %s", from.Nonce, tx.Nonce.String())
	}
	if from.Balance.Lt(cost) {
		return newRPCError(RPCInsufficientBalance, "account %s balance below tx cost", tx.From.Hex())
	}
	from.Balance.Sub(from.Balance, cost)
	from.Nonce++

	to, ok := scratch[tx.To]
	if !ok {
		if live, found := s.getAccount(tx.To); found {
			to = live.clone()
		} else {
			to = newZeroAccount()
		}
		scratch[tx.To] = to
	}
	to.Balance.Add(to.Balance, tx.Value)
	return nil
}

// applyTx mutates the live account map exactly as checkAndApplyScratch
// mutates a scratch copy; used by ProcessNextBlock once a block has already
// been validated.
func (s *State) applyTx(tx *txs.TxBlock) {
	from, ok := s.accounts[tx.From]
	if !ok {
		from, _ = s.getAccount(tx.From)
	}
	cost := txCost(tx)
	from.Balance.Sub(from.Balance, cost)
	from.Nonce++

	to, ok := s.accounts[tx.To]
	if !ok {
		if live, found := s.getAccount(tx.To); found {
			to = live
		} else {
			to = newZeroAccount()
			s.accounts[tx.To] = to
		}
	}
	to.Balance.Add(to.Balance, tx.Value)
}

// ProcessNextBlock applies blk's transactions to the live account ledger in
// order, persists the touched accounts, advances rdPoS past the block,
// appends it to storage, and clears every included tx from the mempool.
// Callers must have already validated blk via ValidateNextBlock.
func (s *State) ProcessNextBlock(blk *block.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[common.Address]bool)
	for _, tx := range blk.Txs {
		s.applyTx(tx)
		touched[tx.From] = true
		touched[tx.To] = true
	}

	batch := s.db.NewBatch()
	for addr := range touched {
		acc, ok := s.accounts[addr]
		if !ok {
			continue
		}
		if err := batch.Put(accountKey(addr), encodeAccount(acc)); err != nil {
			return err
		}
	}
	if err := batch.Write(); err != nil {
		return err
	}

	s.rdpos.ProcessBlock(blk)
	if err := s.storage.PushBack(blk); err != nil {
		return err
	}
	for _, tx := range blk.Txs {
		delete(s.mempool, tx.Hash())
	}
	return nil
}

// CreateNewBlock allocates a mutable block extending the chain tip, with
// every pending TxBlock appended (any order, since each is individually
// valid against its own nonce) followed by votes in the canonical
// commit-then-reveal order rdPoS hands back. The caller (the proposer's
// consensus loop) still owns signing: it must call blk.Finalize with the
// validator's private key to produce the block rdPoS/state expect.
func (s *State) CreateNewBlock() *block.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tip := s.storage.Latest()
	tipHash, _ := tip.Hash()
	blk := block.New(tipHash, tip.Header.NHeight+1)
	for _, tx := range s.mempool {
		_ = blk.AppendTx(tx)
	}
	for _, vote := range s.rdpos.PendingVotes() {
		_ = blk.AppendValidatorTx(vote)
	}
	return blk
}

// MempoolLen reports the number of pending TxBlocks.
func (s *State) MempoolLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.mempool)
}

// CreditGenesisAccount seeds addr with balance and a zero nonce, persisting
// it immediately. Used once, at genesis bring-up, by the node's composition
// root; never called mid-chain.
func (s *State) CreditGenesisAccount(addr common.Address, balance *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := &Account{Balance: new(uint256.Int).Set(balance)}
	s.accounts[addr] = acc
	return s.db.Put(accountKey(addr), encodeAccount(acc))
}
