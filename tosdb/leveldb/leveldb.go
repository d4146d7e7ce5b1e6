// Package leveldb implements the tosdb.Database interface on top of
// github.com/syndtr/goleveldb, the durable backing store for a node's
// chain history and account state.
package leveldb

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/rdpos-chain/core/tosdb"
)

const (
	minCache   = 16
	minHandles = 16
)

// Database wraps a goleveldb instance.
type Database struct {
	fn string
	db *leveldb.DB
}

// New opens (creating if absent) a LevelDB instance at file, with cache
// and handles sized to the given MB/count, or package minimums if smaller.
func New(file string, cache int, handles int, namespace string, readonly bool) (*Database, error) {
	if cache < minCache {
		cache = minCache
	}
	if handles < minHandles {
		handles = minHandles
	}

	opts := &opt.Options{
		Filter:                 filter.NewBloomFilter(10),
		OpenFilesCacheCapacity: handles,
		BlockCacheCapacity:     cache / 2 * opt.MiB,
		WriteBuffer:            cache / 4 * opt.MiB,
		ReadOnly:               readonly,
	}
	db, err := leveldb.OpenFile(file, opts)
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(file, nil)
	}
	if err != nil {
		return nil, err
	}
	return &Database{fn: file, db: db}, nil
}

// Close flushes and closes the database.
func (d *Database) Close() error {
	return d.db.Close()
}

// Has reports whether key is present.
func (d *Database) Has(key []byte) (bool, error) {
	return d.db.Has(key, nil)
}

// Get retrieves the value for key.
func (d *Database) Get(key []byte) ([]byte, error) {
	return d.db.Get(key, nil)
}

// Put inserts key/value into the database.
func (d *Database) Put(key []byte, value []byte) error {
	return d.db.Put(key, value, nil)
}

// Delete removes key from the database.
func (d *Database) Delete(key []byte) error {
	return d.db.Delete(key, nil)
}

// NewBatch creates a write-only batch to accumulate operations for this database.
func (d *Database) NewBatch() tosdb.Batch {
	return &batch{db: d.db, b: new(leveldb.Batch)}
}

// Stat returns a LevelDB internal metric for property.
func (d *Database) Stat(property string) (string, error) {
	return d.db.GetProperty(property)
}

// Compact flattens the key range [start, limit).
func (d *Database) Compact(start []byte, limit []byte) error {
	return d.db.CompactRange(util.Range{Start: start, Limit: limit})
}

// NewIterator creates an iterator over keys with the given prefix, seeked
// to start (or to the prefix itself if start is empty).
func (d *Database) NewIterator(prefix []byte, start []byte) tosdb.Iterator {
	rng := util.BytesPrefix(prefix)
	rng.Start = append(rng.Start, start...)
	return d.db.NewIterator(rng, nil)
}

type batch struct {
	db   *leveldb.DB
	b    *leveldb.Batch
	size int
}

func (b *batch) Put(key []byte, value []byte) error {
	b.b.Put(key, value)
	b.size += len(key) + len(value)
	return nil
}

func (b *batch) Delete(key []byte) error {
	b.b.Delete(key)
	b.size += len(key)
	return nil
}

func (b *batch) ValueSize() int {
	return b.size
}

func (b *batch) Write() error {
	return b.db.Write(b.b, nil)
}

func (b *batch) Reset() {
	b.b.Reset()
	b.size = 0
}

func (b *batch) Replay(w tosdb.KeyValueWriter) error {
	return b.b.Replay(&replayer{writer: w})
}

type replayer struct {
	writer tosdb.KeyValueWriter
	err    error
}

func (r *replayer) Put(key []byte, value []byte) {
	if r.err != nil {
		return
	}
	r.err = r.writer.Put(key, value)
}

func (r *replayer) Delete(key []byte) {
	if r.err != nil {
		return
	}
	r.err = r.writer.Delete(key)
}
