// Package memtable implements the ordered in-memory index: a
// concurrent-safe key -> (value, tombstone) map backed by a probabilistic
// skip list, with a monotonic byte-size estimate used to decide when the
// owning database should flush.
package memtable

import "sync/atomic"

// DefaultMaxBytes is the default flush threshold, around 4 MiB.
const DefaultMaxBytes = 4 << 20

// Memtable wraps the skip list with the byte-size accounting the facade
// needs to decide when to flush. The estimate accumulates the key+value
// size of every accepted mutation and is never decremented — an
// overwrite of an existing key still grows the estimate, which is a
// conservative but simple trigger for flushing.
type Memtable struct {
	sl    *skipList
	bytes int64 // atomic
}

// New returns an empty memtable.
func New() *Memtable {
	return &Memtable{sl: newSkipList()}
}

// Put inserts or overwrites key with value.
func (m *Memtable) Put(key, value []byte) {
	m.sl.insert(key, value, false)
	atomic.AddInt64(&m.bytes, int64(len(key)+len(value)))
}

// Delete marks key as tombstoned. A later Put on the same key supersedes it.
func (m *Memtable) Delete(key []byte) {
	m.sl.insert(key, nil, true)
	atomic.AddInt64(&m.bytes, int64(len(key)))
}

// Get returns the memtable's newest-known state for key.
func (m *Memtable) Get(key []byte) (value []byte, result LookupResult) {
	return m.sl.lookup(key)
}

// MemoryUsage returns a monotonically nondecreasing byte estimate.
func (m *Memtable) MemoryUsage() int64 {
	return atomic.LoadInt64(&m.bytes)
}

// Iterator yields the memtable's entries in ascending key order, including
// tombstones — callers that need public read semantics (db.Get) must
// interpret Tombstone themselves; flush needs tombstones to carry deletion
// markers into the SSTable.
type Iterator struct {
	it *iterator
}

// NewIterator returns a finite, single-pass, ascending-order iterator
// over the memtable. It is not a snapshot: writes made after the call may
// be observed, so the caller keeps the memtable unchanged while iterating.
func (m *Memtable) NewIterator() *Iterator {
	return &Iterator{it: m.sl.newIterator()}
}

func (it *Iterator) Valid() bool  { return it.it.valid() }
func (it *Iterator) Entry() Entry { return it.it.entry() }
func (it *Iterator) Next()        { it.it.next() }
