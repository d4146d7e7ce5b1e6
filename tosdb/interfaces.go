// Package tosdb defines the key-value store interfaces the rest of the node
// uses to read and write durable state, independent of the underlying
// storage engine (in-memory map or LevelDB).
package tosdb

import "io"

// KeyValueReader wraps the Has and Get methods of a backing data store.
type KeyValueReader interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
}

// KeyValueWriter wraps the Put and Delete methods of a backing data store.
type KeyValueWriter interface {
	Put(key []byte, value []byte) error
	Delete(key []byte) error
}

// Iterator iterates over a database's key/value pairs in ascending key order.
//
// When it encounters an error any seek will return false and will yield no
// more key/value pairs; the error can then be queried by calling the Error
// method. A call to Release is still required.
type Iterator interface {
	Next() bool
	Error() error
	Key() []byte
	Value() []byte
	Release()
}

// Iteratee wraps the NewIterator method, which creates iterators over key/value
// pairs whose keys start with the given prefix and are greater than or equal to
// the given start key.
type Iteratee interface {
	NewIterator(prefix []byte, start []byte) Iterator
}

// Stater wraps the Stat method.
type Stater interface {
	Stat(property string) (string, error)
}

// Compacter wraps the Compact method.
type Compacter interface {
	// Compact flattens the underlying data store for the given key range. A
	// nil start is treated as a key before all keys in the data store; a nil
	// limit is treated as a key after all keys in the data store. If both is
	// nil then it will compact entire data store.
	Compact(start []byte, limit []byte) error
}

// KeyValueStore contains all the methods required to allow handling different
// key-value data stores backing the high level database.
type KeyValueStore interface {
	KeyValueReader
	KeyValueWriter
	Iteratee
	Stater
	Compacter
	io.Closer
}

// Batch is a write-only database that commits changes to its host database
// when Write is called. A batch cannot be used concurrently.
type Batch interface {
	KeyValueWriter

	// ValueSize retrieves the amount of data queued up for writing.
	ValueSize() int

	// Write flushes any accumulated data to disk.
	Write() error

	// Reset resets the batch for reuse.
	Reset()

	// Replay replays the batch contents.
	Replay(w KeyValueWriter) error
}

// Batcher wraps the NewBatch method of a backing data store.
type Batcher interface {
	NewBatch() Batch
}

// Database contains all the methods required by the node to allow
// interacting with the database.
type Database interface {
	KeyValueStore
	Batcher
}
