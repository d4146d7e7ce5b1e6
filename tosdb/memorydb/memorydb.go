// Package memorydb implements the tosdb.Database interface as a plain,
// lock-guarded map. Used for tests and for ephemeral nodes.
package memorydb

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/rdpos-chain/core/tosdb"
)

var (
	// ErrMemorydbClosed is returned if a call is made after the database has
	// been closed.
	ErrMemorydbClosed = errors.New("memorydb: closed")
	// ErrMemorydbNotFound is returned if a key is requested that is not
	// found in the database.
	ErrMemorydbNotFound = errors.New("memorydb: not found")
)

// Database is an in-memory key-value store.
type Database struct {
	lock sync.RWMutex
	db   map[string][]byte
}

// New returns a newly allocated, empty in-memory database.
func New() *Database {
	return &Database{db: make(map[string][]byte)}
}

// Close deallocates all internal map entries.
func (d *Database) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.db = nil
	return nil
}

// Has reports whether key is present.
func (d *Database) Has(key []byte) (bool, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	if d.db == nil {
		return false, ErrMemorydbClosed
	}
	_, ok := d.db[string(key)]
	return ok, nil
}

// Get retrieves the value for key.
func (d *Database) Get(key []byte) ([]byte, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	if d.db == nil {
		return nil, ErrMemorydbClosed
	}
	if v, ok := d.db[string(key)]; ok {
		return append([]byte(nil), v...), nil
	}
	return nil, ErrMemorydbNotFound
}

// Put inserts key/value into the database.
func (d *Database) Put(key []byte, value []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.db == nil {
		return ErrMemorydbClosed
	}
	d.db[string(key)] = append([]byte(nil), value...)
	return nil
}

// Delete removes key from the database.
func (d *Database) Delete(key []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.db == nil {
		return ErrMemorydbClosed
	}
	delete(d.db, string(key))
	return nil
}

// Stat always returns an empty string and a nil error: there is nothing
// meaningful to report for an in-memory map.
func (d *Database) Stat(property string) (string, error) {
	return "", nil
}

// Compact is a no-op for an in-memory map.
func (d *Database) Compact(start []byte, limit []byte) error {
	return nil
}

// Len returns the number of entries currently in the database.
func (d *Database) Len() int {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return len(d.db)
}

// NewBatch creates a write-only batch to accumulate operations for this database.
func (d *Database) NewBatch() tosdb.Batch {
	return &batch{db: d}
}

type keyvalue struct {
	key    []byte
	value  []byte
	delete bool
}

type batch struct {
	db     *Database
	writes []keyvalue
	size   int
}

func (b *batch) Put(key []byte, value []byte) error {
	b.writes = append(b.writes, keyvalue{append([]byte(nil), key...), append([]byte(nil), value...), false})
	b.size += len(key) + len(value)
	return nil
}

func (b *batch) Delete(key []byte) error {
	b.writes = append(b.writes, keyvalue{append([]byte(nil), key...), nil, true})
	b.size += len(key)
	return nil
}

func (b *batch) ValueSize() int {
	return b.size
}

func (b *batch) Write() error {
	b.db.lock.Lock()
	defer b.db.lock.Unlock()
	if b.db.db == nil {
		return ErrMemorydbClosed
	}
	for _, kv := range b.writes {
		if kv.delete {
			delete(b.db.db, string(kv.key))
			continue
		}
		b.db.db[string(kv.key)] = kv.value
	}
	return nil
}

func (b *batch) Reset() {
	b.writes = b.writes[:0]
	b.size = 0
}

func (b *batch) Replay(w tosdb.KeyValueWriter) error {
	for _, kv := range b.writes {
		if kv.delete {
			if err := w.Delete(kv.key); err != nil {
				return err
			}
			continue
		}
		if err := w.Put(kv.key, kv.value); err != nil {
			return err
		}
	}
	return nil
}

// iterator walks a sorted snapshot of keys matching a prefix, taken at
// creation time (the underlying map may change concurrently afterwards).
type iterator struct {
	index int
	keys  []string
	values [][]byte
}

// NewIterator creates an iterator over a snapshot of keys with the given
// prefix, starting at the given key (or at the prefix if start is empty).
func (d *Database) NewIterator(prefix []byte, start []byte) tosdb.Iterator {
	d.lock.RLock()
	defer d.lock.RUnlock()

	pr := string(prefix)
	keys := make([]string, 0, len(d.db))
	for k := range d.db {
		if strings.HasPrefix(k, pr) && k >= pr+string(start) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = append([]byte(nil), d.db[k]...)
	}
	return &iterator{index: -1, keys: keys, values: values}
}

func (it *iterator) Next() bool {
	if it.index >= len(it.keys) {
		return false
	}
	it.index++
	return it.index < len(it.keys)
}

func (it *iterator) Error() error { return nil }

func (it *iterator) Key() []byte {
	if it.index < 0 || it.index >= len(it.keys) {
		return nil
	}
	return []byte(it.keys[it.index])
}

func (it *iterator) Value() []byte {
	if it.index < 0 || it.index >= len(it.values) {
		return nil
	}
	return it.values[it.index]
}

func (it *iterator) Release() {}
