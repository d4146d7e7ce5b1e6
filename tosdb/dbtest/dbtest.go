// Package dbtest holds a reusable conformance suite for tosdb.KeyValueStore
// implementations, shared by the memorydb and leveldb test packages.
package dbtest

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rdpos-chain/core/tosdb"
)

// TestDatabaseSuite runs a fixed set of behavioral checks against a fresh
// store returned by New for each subtest.
func TestDatabaseSuite(t *testing.T, New func() tosdb.KeyValueStore) {
	t.Run("PutGetHasDelete", func(t *testing.T) { testPutGetHasDelete(t, New()) })
	t.Run("BatchWrites", func(t *testing.T) { testBatchWrites(t, New()) })
	t.Run("Iterator", func(t *testing.T) { testIterator(t, New()) })
}

func testPutGetHasDelete(t *testing.T, db tosdb.KeyValueStore) {
	defer db.Close()

	has, err := db.Has([]byte("missing"))
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, db.Put([]byte("key"), []byte("value")))

	has, err = db.Has([]byte("key"))
	require.NoError(t, err)
	require.True(t, has)

	got, err := db.Get([]byte("key"))
	require.NoError(t, err)
	require.True(t, bytes.Equal([]byte("value"), got))

	require.NoError(t, db.Put([]byte("key"), []byte("value2")))
	got, err = db.Get([]byte("key"))
	require.NoError(t, err)
	require.True(t, bytes.Equal([]byte("value2"), got))

	require.NoError(t, db.Delete([]byte("key")))
	has, err = db.Has([]byte("key"))
	require.NoError(t, err)
	require.False(t, has)

	_, err = db.Get([]byte("key"))
	require.Error(t, err)
}

func testBatchWrites(t *testing.T, db tosdb.KeyValueStore) {
	defer db.Close()

	batch := db.(tosdb.Batcher).NewBatch()
	for i := 0; i < 100; i++ {
		k := []byte{byte(i)}
		require.NoError(t, batch.Put(k, k))
	}
	require.NoError(t, batch.Write())

	for i := 0; i < 100; i++ {
		k := []byte{byte(i)}
		got, err := db.Get(k)
		require.NoError(t, err)
		require.True(t, bytes.Equal(k, got))
	}

	batch.Reset()
	for i := 0; i < 50; i++ {
		require.NoError(t, batch.Delete([]byte{byte(i)}))
	}
	require.NoError(t, batch.Write())

	for i := 0; i < 50; i++ {
		has, err := db.Has([]byte{byte(i)})
		require.NoError(t, err)
		require.False(t, has)
	}
	for i := 50; i < 100; i++ {
		has, err := db.Has([]byte{byte(i)})
		require.NoError(t, err)
		require.True(t, has)
	}
}

func testIterator(t *testing.T, db tosdb.KeyValueStore) {
	defer db.Close()

	keys := []string{"aa1", "aa2", "aa3", "bb1", "bb2"}
	for _, k := range keys {
		require.NoError(t, db.Put([]byte(k), []byte(k)))
	}

	var got []string
	it := db.NewIterator([]byte("aa"), nil)
	for it.Next() {
		got = append(got, string(it.Key()))
	}
	require.NoError(t, it.Error())
	it.Release()

	sort.Strings(got)
	require.Equal(t, []string{"aa1", "aa2", "aa3"}, got)
}
