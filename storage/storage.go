package storage

import (
	"encoding/binary"
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/rdpos-chain/core/block"
	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/tosdb"
	"github.com/rdpos-chain/core/txs"
)

const (
	// HotWindowBlocks bounds the in-memory chain deque by block count.
	HotWindowBlocks = 1000
	// HotWindowTxs bounds the in-memory chain deque by transaction count,
	// whichever of the two limits is reached first.
	HotWindowTxs = 1_000_000
	// StartupLoadBlocks is how many of the most recent blocks are loaded
	// into the hot window when opening a non-empty database.
	StartupLoadBlocks = 500
	// cacheSize bounds the LRU cache tier for cold blocks/txs pulled from disk.
	cacheSize = 4096
	// GenesisTimestamp is the fixed microsecond timestamp stamped onto a
	// synthesized genesis block.
	GenesisTimestamp = 1_656_356_646_000_000
)

var (
	ErrBlockNotFound  = errors.New("storage: block not found")
	ErrTxNotFound     = errors.New("storage: transaction not found")
	ErrBadPrevHash    = errors.New("storage: prev_hash does not match chain tip")
	ErrBadHeight      = errors.New("storage: n_height is not chain tip + 1")
	ErrBadFrontHeight = errors.New("storage: n_height is not chain front - 1")
	ErrEmptyChain     = errors.New("storage: chain is empty")
)

// TxLocation pins a transaction to the block and position it was included in.
type TxLocation struct {
	BlockHash common.Hash
	Index     uint32
	Height    uint64
}

// Storage owns the durable database handle and the in-memory hot window of
// recently finalized blocks, along with hash/height/tx indices over that
// window. All public methods lock internally; callers never see the
// underlying maps.
type Storage struct {
	db tosdb.Database

	mu           sync.RWMutex
	chain        []*block.Block // oldest at index 0, newest at the end
	blockByHash  map[common.Hash]*block.Block
	heightByHash map[common.Hash]uint64
	hashByHeight map[uint64]common.Hash
	txIndex      map[common.Hash]TxLocation
	txCount      int

	cacheMu    sync.Mutex
	blockCache *lru.Cache
	txCache    *lru.Cache
}

// Open loads the chain from db, synthesizing a genesis block signed by
// genesisPrivKey if the database is empty.
func Open(db tosdb.Database, genesisPrivKey common.PrivKey) (*Storage, error) {
	blockCache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	txCache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}

	s := &Storage{
		db:           db,
		blockByHash:  make(map[common.Hash]*block.Block),
		heightByHash: make(map[common.Hash]uint64),
		hashByHeight: make(map[uint64]common.Hash),
		txIndex:      make(map[common.Hash]TxLocation),
		blockCache:   blockCache,
		txCache:      txCache,
	}

	latestHashBytes, err := db.Get(latestKey)
	if err != nil {
		genesis := block.New(common.Hash{}, 0)
		if err := genesis.Finalize(genesisPrivKey, GenesisTimestamp); err != nil {
			return nil, err
		}
		if err := s.pushBackInternal(genesis); err != nil {
			return nil, err
		}
		if err := s.persistBlock(genesis); err != nil {
			return nil, err
		}
		hash, err := genesis.Hash()
		if err != nil {
			return nil, err
		}
		if err := db.Put(latestKey, hash.Bytes()); err != nil {
			return nil, err
		}
		return s, nil
	}

	latestHash := common.BytesToHash(latestHashBytes)
	raw, err := db.Get(blockKey(latestHash.Bytes()))
	if err != nil {
		return nil, err
	}
	latest, err := block.DeserializeBlock(raw, txs.DecodeTrusted)
	if err != nil {
		return nil, err
	}

	loaded := []*block.Block{latest}
	cur := latest
	for i := uint64(1); i < StartupLoadBlocks && cur.Header.NHeight > 0; i++ {
		prevRaw, err := db.Get(blockKey(cur.Header.PrevHash.Bytes()))
		if err != nil {
			break
		}
		prev, err := block.DeserializeBlock(prevRaw, txs.DecodeTrusted)
		if err != nil {
			break
		}
		loaded = append(loaded, prev)
		cur = prev
	}
	for _, b := range loaded {
		if err := s.pushFrontInternal(b); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Latest returns the most recently added block. Never nil once Open
// succeeds: genesis synthesis guarantees at least one block.
func (s *Storage) Latest() *block.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chain[len(s.chain)-1]
}

// PushBack appends block to the end of the chain, verifying that its
// prev_hash and n_height extend the current tip. It also persists the
// block to the database and advances the "latest" pointer.
func (s *Storage) PushBack(b *block.Block) error {
	s.mu.Lock()
	if err := s.pushBackInternal(b); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	if err := s.persistBlock(b); err != nil {
		return err
	}
	hash, err := b.Hash()
	if err != nil {
		return err
	}
	return s.db.Put(latestKey, hash.Bytes())
}

func (s *Storage) pushBackInternal(b *block.Block) error {
	hash, err := b.Hash()
	if err != nil {
		return err
	}
	if len(s.chain) > 0 {
		tip := s.chain[len(s.chain)-1]
		tipHash, _ := tip.Hash()
		if b.Header.PrevHash != tipHash {
			return ErrBadPrevHash
		}
		if b.Header.NHeight != tip.Header.NHeight+1 {
			return ErrBadHeight
		}
	}

	s.chain = append(s.chain, b)
	s.indexBlock(b, hash)
	s.trimFront()
	return nil
}

// PushFront inserts block at the start of the chain. Used only when loading
// a historical window from the database at startup.
func (s *Storage) PushFront(b *block.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushFrontInternal(b)
}

func (s *Storage) pushFrontInternal(b *block.Block) error {
	hash, err := b.Hash()
	if err != nil {
		return err
	}
	if len(s.chain) > 0 {
		front := s.chain[0]
		if b.Header.NHeight != front.Header.NHeight-1 {
			return ErrBadFrontHeight
		}
		if front.Header.PrevHash != hash {
			return ErrBadPrevHash
		}
	}

	s.chain = append([]*block.Block{b}, s.chain...)
	s.indexBlock(b, hash)
	return nil
}

func (s *Storage) indexBlock(b *block.Block, hash common.Hash) {
	s.blockByHash[hash] = b
	s.heightByHash[hash] = b.Header.NHeight
	s.hashByHeight[b.Header.NHeight] = hash
	for i, tx := range b.Txs {
		s.txIndex[tx.Hash()] = TxLocation{BlockHash: hash, Index: uint32(i), Height: b.Header.NHeight}
	}
	s.txCount += len(b.Txs)
}

func (s *Storage) unindexBlock(b *block.Block, hash common.Hash) {
	delete(s.blockByHash, hash)
	delete(s.heightByHash, hash)
	delete(s.hashByHeight, b.Header.NHeight)
	for _, tx := range b.Txs {
		delete(s.txIndex, tx.Hash())
	}
	s.txCount -= len(b.Txs)
}

// trimFront evicts the oldest hot-window block once the bounds are exceeded.
// Evicted blocks remain retrievable from the database via the cache tier.
func (s *Storage) trimFront() {
	for len(s.chain) > HotWindowBlocks || s.txCount > HotWindowTxs {
		if len(s.chain) <= 1 {
			return
		}
		front := s.chain[0]
		hash, err := front.Hash()
		if err != nil {
			return
		}
		s.unindexBlock(front, hash)
		s.chain = s.chain[1:]
	}
}

// PopBack removes the newest block from the hot window. For pruning only;
// never called in normal block production.
func (s *Storage) PopBack() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.chain) == 0 {
		return
	}
	last := s.chain[len(s.chain)-1]
	hash, _ := last.Hash()
	s.unindexBlock(last, hash)
	s.chain = s.chain[:len(s.chain)-1]
}

// PopFront removes the oldest block from the hot window. For pruning only.
func (s *Storage) PopFront() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.chain) == 0 {
		return
	}
	front := s.chain[0]
	hash, _ := front.Hash()
	s.unindexBlock(front, hash)
	s.chain = s.chain[1:]
}

// GetBlockByHash looks up a block by hash: hot window, then cache, then DB
// (populating the cache on a DB hit).
func (s *Storage) GetBlockByHash(hash common.Hash) (*block.Block, error) {
	s.mu.RLock()
	if b, ok := s.blockByHash[hash]; ok {
		s.mu.RUnlock()
		return b, nil
	}
	s.mu.RUnlock()

	s.cacheMu.Lock()
	if cached, ok := s.blockCache.Get(hash); ok {
		s.cacheMu.Unlock()
		return cached.(*block.Block), nil
	}
	s.cacheMu.Unlock()

	raw, err := s.db.Get(blockKey(hash.Bytes()))
	if err != nil {
		return nil, ErrBlockNotFound
	}
	b, err := block.DeserializeBlock(raw, txs.DecodeTrusted)
	if err != nil {
		return nil, err
	}
	s.cacheMu.Lock()
	s.blockCache.Add(hash, b)
	s.cacheMu.Unlock()
	return b, nil
}

// GetBlockByHeight looks up a block by height through the same three tiers.
func (s *Storage) GetBlockByHeight(height uint64) (*block.Block, error) {
	s.mu.RLock()
	if hash, ok := s.hashByHeight[height]; ok {
		b := s.blockByHash[hash]
		s.mu.RUnlock()
		return b, nil
	}
	s.mu.RUnlock()

	raw, err := s.db.Get(heightMapKey(height))
	if err != nil {
		return nil, ErrBlockNotFound
	}
	return s.GetBlockByHash(common.BytesToHash(raw))
}

// GetTx looks up a transaction by hash through the hot window, cache, then
// DB tiers, returning the tx alongside its block location.
func (s *Storage) GetTx(txHash common.Hash) (*txs.TxBlock, TxLocation, error) {
	s.mu.RLock()
	if loc, ok := s.txIndex[txHash]; ok {
		b := s.blockByHash[loc.BlockHash]
		s.mu.RUnlock()
		if int(loc.Index) < len(b.Txs) {
			return b.Txs[loc.Index], loc, nil
		}
		return nil, TxLocation{}, ErrTxNotFound
	}
	s.mu.RUnlock()

	s.cacheMu.Lock()
	if cached, ok := s.txCache.Get(txHash); ok {
		s.cacheMu.Unlock()
		entry := cached.(txCacheEntry)
		return entry.tx, entry.loc, nil
	}
	s.cacheMu.Unlock()

	raw, err := s.db.Get(txToBlockKey(txHash.Bytes()))
	if err != nil {
		return nil, TxLocation{}, ErrTxNotFound
	}
	loc := decodeTxLocation(raw)
	b, err := s.GetBlockByHash(loc.BlockHash)
	if err != nil {
		return nil, TxLocation{}, err
	}
	if int(loc.Index) >= len(b.Txs) {
		return nil, TxLocation{}, ErrTxNotFound
	}
	tx := b.Txs[loc.Index]
	s.cacheMu.Lock()
	s.txCache.Add(txHash, txCacheEntry{tx: tx, loc: loc})
	s.cacheMu.Unlock()
	return tx, loc, nil
}

type txCacheEntry struct {
	tx  *txs.TxBlock
	loc TxLocation
}

func encodeTxLocation(loc TxLocation) []byte {
	out := make([]byte, 0, common.HashLength+4+8)
	out = append(out, loc.BlockHash.Bytes()...)
	var idxBuf [4]byte
	binary.BigEndian.PutUint32(idxBuf[:], loc.Index)
	out = append(out, idxBuf[:]...)
	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], loc.Height)
	return append(out, heightBuf[:]...)
}

func decodeTxLocation(b []byte) TxLocation {
	var loc TxLocation
	loc.BlockHash = common.BytesToHash(b[0:common.HashLength])
	loc.Index = binary.BigEndian.Uint32(b[common.HashLength : common.HashLength+4])
	loc.Height = binary.BigEndian.Uint64(b[common.HashLength+4 : common.HashLength+12])
	return loc
}

// persistBlock writes block, its height index entry, and every tx-to-block
// mapping it contains in a single atomic batch.
func (s *Storage) persistBlock(b *block.Block) error {
	hash, err := b.Hash()
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	if err := batch.Put(blockKey(hash.Bytes()), block.SerializeBlock(b, txs.DecodeTrusted)); err != nil {
		return err
	}
	if err := batch.Put(heightMapKey(b.Header.NHeight), hash.Bytes()); err != nil {
		return err
	}
	for i, tx := range b.Txs {
		loc := TxLocation{BlockHash: hash, Index: uint32(i), Height: b.Header.NHeight}
		if err := batch.Put(txToBlockKey(tx.Hash().Bytes()), encodeTxLocation(loc)); err != nil {
			return err
		}
	}
	return batch.Write()
}

// Shutdown flushes every hot-window block and its tx index entries to the
// database in a single batch, then updates the "latest" pointer. Mirrors
// the destructor-time flush the original storage performs.
func (s *Storage) Shutdown() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch := s.db.NewBatch()
	for _, b := range s.chain {
		hash, err := b.Hash()
		if err != nil {
			return err
		}
		if err := batch.Put(blockKey(hash.Bytes()), block.SerializeBlock(b, txs.DecodeTrusted)); err != nil {
			return err
		}
		if err := batch.Put(heightMapKey(b.Header.NHeight), hash.Bytes()); err != nil {
			return err
		}
		for i, tx := range b.Txs {
			loc := TxLocation{BlockHash: hash, Index: uint32(i), Height: b.Header.NHeight}
			if err := batch.Put(txToBlockKey(tx.Hash().Bytes()), encodeTxLocation(loc)); err != nil {
				return err
			}
		}
	}
	if err := batch.Write(); err != nil {
		return err
	}
	if len(s.chain) == 0 {
		return ErrEmptyChain
	}
	tip := s.chain[len(s.chain)-1]
	hash, err := tip.Hash()
	if err != nil {
		return err
	}
	return s.db.Put(latestKey, hash.Bytes())
}
