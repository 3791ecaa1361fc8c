// Package sstable implements an immutable on-disk sorted table: a data
// region of framed records, an embedded key->offset index, and an 8-byte
// footer locating that index.
package sstable

import (
	"bufio"
	"errors"
	"io"
	"os"
	"sort"

	"github.com/oakenshield/lsmgo/internal/encoding"
)

// footerSize is the width of the trailing footer: index_offset(8 LE).
const footerSize = 8

// ErrCorrupt marks a table that failed validation on Open.
var ErrCorrupt = errors.New("sstable: corrupt footer")

// indexEntry is one (key, offset) pair from the embedded index.
type indexEntry struct {
	key    []byte
	offset int64
}

// Result is the three-way answer an SSTable lookup produces.
type Result int

const (
	NotPresent Result = iota
	Found
	Deleted
)

// Builder produces an immutable sorted file from an ordered sequence of
// (key, value, tombstone) entries fed to it one at a time in ascending
// key order.
type Builder struct {
	f      *os.File
	w      *bufio.Writer
	offset int64
	index  []indexEntry
	n      int
}

// NewBuilder creates the builder's output file at path.
func NewBuilder(path string) (*Builder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &Builder{f: f, w: bufio.NewWriter(f)}, nil
}

// Add appends one data record: klen(4 LE) | key | vlen(4 LE) | value |
// type(1), and remembers (key, offset) in the in-memory index. Every key
// gets an index entry; there is no sparse sampling.
func (b *Builder) Add(key, value []byte, tombstone bool) error {
	start := b.offset

	klen := uint32(len(key))
	vlen := uint32(len(value))
	if tombstone {
		vlen = 0
	}

	hdr := make([]byte, 4)
	encoding.PutUint32(hdr, klen)
	if _, err := b.w.Write(hdr); err != nil {
		return err
	}
	if _, err := b.w.Write(key); err != nil {
		return err
	}
	encoding.PutUint32(hdr, vlen)
	if _, err := b.w.Write(hdr); err != nil {
		return err
	}
	if vlen > 0 {
		if _, err := b.w.Write(value[:vlen]); err != nil {
			return err
		}
	}
	typ := byte(0)
	if tombstone {
		typ = 1
	}
	if err := b.w.WriteByte(typ); err != nil {
		return err
	}

	b.offset += int64(4) + int64(klen) + int64(4) + int64(vlen) + 1
	b.index = append(b.index, indexEntry{key: cloneBytes(key), offset: start})
	b.n++
	return nil
}

// Empty reports whether Add has never been called — an empty memtable
// must never be flushed into a table.
func (b *Builder) Empty() bool {
	return b.n == 0
}

// Finish writes the index and footer, flushes, and closes the file,
// returning the final file size. On a builder that never saw an Add it
// returns an error and removes the file NewBuilder created.
func (b *Builder) Finish() (int64, error) {
	if b.n == 0 {
		_ = b.f.Close()
		_ = os.Remove(b.f.Name())
		return 0, errors.New("sstable: refusing to finish an empty builder")
	}

	indexOffset := b.offset

	countBuf := make([]byte, 4)
	encoding.PutUint32(countBuf, uint32(len(b.index)))
	if _, err := b.w.Write(countBuf); err != nil {
		return 0, err
	}
	for _, e := range b.index {
		klenBuf := make([]byte, 4)
		encoding.PutUint32(klenBuf, uint32(len(e.key)))
		if _, err := b.w.Write(klenBuf); err != nil {
			return 0, err
		}
		if _, err := b.w.Write(e.key); err != nil {
			return 0, err
		}
		offBuf := make([]byte, 8)
		encoding.PutUint64(offBuf, uint64(e.offset))
		if _, err := b.w.Write(offBuf); err != nil {
			return 0, err
		}
	}

	footer := make([]byte, footerSize)
	encoding.PutUint64(footer, uint64(indexOffset))
	if _, err := b.w.Write(footer); err != nil {
		return 0, err
	}

	if err := b.w.Flush(); err != nil {
		return 0, err
	}
	if err := b.f.Sync(); err != nil {
		return 0, err
	}
	size := indexOffset + 4 + indexBytes(b.index) + footerSize
	return size, b.f.Close()
}

func indexBytes(entries []indexEntry) int64 {
	var n int64
	for _, e := range entries {
		n += 4 + int64(len(e.key)) + 8
	}
	return n
}

// Table is an open, immutable SSTable: a file handle plus the in-memory
// index loaded from its footer.
type Table struct {
	path        string
	f           *os.File
	index       []indexEntry
	indexOffset int64
	fileSize    int64
}

// Open reads the footer to locate and load the embedded index.
func Open(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := st.Size()
	if size < footerSize {
		f.Close()
		return nil, ErrCorrupt
	}

	footer := make([]byte, footerSize)
	if _, err := f.ReadAt(footer, size-footerSize); err != nil {
		f.Close()
		return nil, err
	}
	indexOffset := int64(encoding.GetUint64(footer))
	if indexOffset < 0 || indexOffset >= size {
		f.Close()
		return nil, ErrCorrupt
	}

	r := io.NewSectionReader(f, indexOffset, size-footerSize-indexOffset)
	br := bufio.NewReader(r)

	countBuf := make([]byte, 4)
	if _, err := io.ReadFull(br, countBuf); err != nil {
		f.Close()
		return nil, ErrCorrupt
	}
	count := encoding.GetUint32(countBuf)

	entries := make([]indexEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		klenBuf := make([]byte, 4)
		if _, err := io.ReadFull(br, klenBuf); err != nil {
			f.Close()
			return nil, ErrCorrupt
		}
		klen := encoding.GetUint32(klenBuf)
		key := make([]byte, klen)
		if _, err := io.ReadFull(br, key); err != nil {
			f.Close()
			return nil, ErrCorrupt
		}
		offBuf := make([]byte, 8)
		if _, err := io.ReadFull(br, offBuf); err != nil {
			f.Close()
			return nil, ErrCorrupt
		}
		entries = append(entries, indexEntry{key: key, offset: int64(encoding.GetUint64(offBuf))})
	}

	return &Table{
		path:        path,
		f:           f,
		index:       entries,
		indexOffset: indexOffset,
		fileSize:    size,
	}, nil
}

// Close releases the table's file handle.
func (t *Table) Close() error {
	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	return err
}

// Path returns the table's file path.
func (t *Table) Path() string { return t.path }

// SmallestKey returns the lowest key stored in the table. The index is
// built in ascending order by Add, so it is always the first entry.
func (t *Table) SmallestKey() []byte {
	if len(t.index) == 0 {
		return nil
	}
	return t.index[0].key
}

// LargestKey returns the highest key stored in the table.
func (t *Table) LargestKey() []byte {
	if len(t.index) == 0 {
		return nil
	}
	return t.index[len(t.index)-1].key
}

// Get binary-searches the in-memory index for the first entry whose key
// is not less than target; on an exact match it seeks to that offset,
// parses the stored record, and returns Found/Deleted. If no exact match
// is found, it returns NotPresent.
func (t *Table) Get(key []byte) ([]byte, Result, error) {
	i := sort.Search(len(t.index), func(i int) bool {
		return bytesCompare(t.index[i].key, key) >= 0
	})
	if i >= len(t.index) || !bytesEqual(t.index[i].key, key) {
		return nil, NotPresent, nil
	}

	value, tombstone, err := t.readRecordAt(t.index[i].offset)
	if err != nil {
		return nil, NotPresent, err
	}
	if tombstone {
		return nil, Deleted, nil
	}
	return value, Found, nil
}

// Iterator walks a Table's records in ascending key order. It tracks a
// position into the index and re-parses the record at that position's
// offset on every move, rather than holding the whole table in memory.
type Iterator struct {
	t   *Table
	pos int
	key []byte
	val []byte
	tmb bool
	err error
}

// NewIterator returns an iterator positioned before the first record;
// call SeekToFirst or Seek before reading.
func (t *Table) NewIterator() *Iterator {
	return &Iterator{t: t, pos: -1}
}

// SeekToFirst positions the iterator at the table's smallest key.
func (it *Iterator) SeekToFirst() {
	it.pos = 0
	it.load()
}

// Seek positions the iterator at the first key not less than target.
func (it *Iterator) Seek(target []byte) {
	it.pos = sort.Search(len(it.t.index), func(i int) bool {
		return bytesCompare(it.t.index[i].key, target) >= 0
	})
	it.load()
}

// Next advances the iterator to the following record.
func (it *Iterator) Next() {
	if it.pos < 0 {
		return
	}
	it.pos++
	it.load()
}

func (it *Iterator) load() {
	if it.err != nil || it.pos < 0 || it.pos >= len(it.t.index) {
		it.key, it.val, it.tmb = nil, nil, false
		return
	}
	entry := it.t.index[it.pos]
	val, tombstone, err := it.t.readRecordAt(entry.offset)
	if err != nil {
		it.err = err
		it.key, it.val, it.tmb = nil, nil, false
		return
	}
	it.key, it.val, it.tmb = entry.key, val, tombstone
}

// Valid reports whether the iterator is positioned at a record.
func (it *Iterator) Valid() bool {
	return it.err == nil && it.pos >= 0 && it.pos < len(it.t.index)
}

// Key returns the current record's key. Valid must be true.
func (it *Iterator) Key() []byte { return it.key }

// Value returns the current record's value. Valid must be true.
func (it *Iterator) Value() []byte { return it.val }

// Tombstone reports whether the current record is a deletion marker.
func (it *Iterator) Tombstone() bool { return it.tmb }

// Err returns the first error encountered while reading, if any.
func (it *Iterator) Err() error { return it.err }

func (t *Table) readRecordAt(offset int64) (value []byte, tombstone bool, err error) {
	hdr := make([]byte, 4)
	if _, err := t.f.ReadAt(hdr, offset); err != nil {
		return nil, false, err
	}
	klen := encoding.GetUint32(hdr)
	pos := offset + 4 + int64(klen)

	vlenBuf := make([]byte, 4)
	if _, err := t.f.ReadAt(vlenBuf, pos); err != nil {
		return nil, false, err
	}
	vlen := encoding.GetUint32(vlenBuf)
	pos += 4

	var val []byte
	if vlen > 0 {
		val = make([]byte, vlen)
		if _, err := t.f.ReadAt(val, pos); err != nil {
			return nil, false, err
		}
		pos += int64(vlen)
	}

	typBuf := make([]byte, 1)
	if _, err := t.f.ReadAt(typBuf, pos); err != nil {
		return nil, false, err
	}
	return val, typBuf[0] == 1, nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func bytesCompare(a, b []byte) int {
	return compare(a, b)
}

func bytesEqual(a, b []byte) bool {
	return compare(a, b) == 0
}

func compare(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
