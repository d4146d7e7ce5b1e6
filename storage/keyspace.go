// Package storage implements the append-only chain history: a bounded
// in-memory hot window backed by a durable key-value store, with hash and
// height indices and a three-tier (hot window, cache, database) lookup for
// both blocks and transactions.
//
// Grounded on original_source/src/core/storage.h's member layout (chain_
// deque, blockByHash_/blockHeightByHash_/blockHashByHeight_/txByHash_ maps,
// cachedBlocks_/cachedTxs_) and core/rawdb's prefixed-keyspace idiom for
// how those maps are mirrored into a KeyValueStore.
package storage

// Prefixed keyspaces in the underlying database. The state package stores
// account balances under NativeAccountsPrefix; no package reads or writes
// ValidatorsPrefix, and rdpos keeps its validator list in memory only.
var (
	BlocksPrefix          = []byte("blocks")
	BlockHeightMapsPrefix = []byte("blockHeightMaps")
	TxToBlocksPrefix      = []byte("txToBlocks")
	NativeAccountsPrefix  = []byte("nativeAccounts")
	ValidatorsPrefix      = []byte("validators")
)

var latestKey = append(append([]byte(nil), BlocksPrefix...), []byte(":latest")...)

func blockKey(heightOrHash []byte) []byte {
	return append(append([]byte(nil), BlocksPrefix...), heightOrHash...)
}

func heightMapKey(height uint64) []byte {
	return append(append([]byte(nil), BlockHeightMapsPrefix...), encodeHeight(height)...)
}

func txToBlockKey(txHash []byte) []byte {
	return append(append([]byte(nil), TxToBlocksPrefix...), txHash...)
}

func encodeHeight(h uint64) []byte {
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(h)
		h >>= 8
	}
	return buf
}
