// Package wal implements an append-only write-ahead log: a file of
// framed mutation records with a forced-sync primitive, suitable for
// truncated-tail recovery after a crash.
package wal

import (
	"bufio"
	"errors"
	"io"
	"os"

	"github.com/oakenshield/lsmgo/internal/encoding"
)

// Record type tags.
const (
	TypePut       byte = 0
	TypeTombstone byte = 1
)

// ErrClosed is returned by operations on a closed WAL.
var ErrClosed = errors.New("wal: closed")

// ErrCorrupt names a record that fails to parse. Replay does not return
// it: it truncates the log at such a record instead.
var ErrCorrupt = errors.New("wal: corrupt record")

// WAL is an append-only journal of Put/Tombstone mutations. The facade
// holds its own engine lock across append-then-memtable-mutate so
// on-disk order matches in-memory visibility order.
type WAL struct {
	f *os.File
	w *bufio.Writer
}

// Open opens path for append, creating it if it does not exist.
func Open(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &WAL{f: f, w: bufio.NewWriter(f)}, nil
}

// Append writes one framed record to the log's end:
// type(1) | klen(4 LE) | key(klen) | vlen(4 LE) | value(vlen)
// The value-length field is always emitted, even for tombstones (as
// zero), to keep the parser uniform across record kinds.
func (w *WAL) Append(key, value []byte, tombstone bool) error {
	if w == nil || w.f == nil {
		return ErrClosed
	}

	typ := TypePut
	if tombstone {
		typ = TypeTombstone
		value = nil
	}

	klen := uint32(len(key))
	vlen := uint32(len(value))

	hdr := make([]byte, 1+4)
	hdr[0] = typ
	encoding.PutUint32(hdr[1:5], klen)
	if _, err := w.w.Write(hdr); err != nil {
		return err
	}
	if _, err := w.w.Write(key); err != nil {
		return err
	}
	var vlenBuf [4]byte
	encoding.PutUint32(vlenBuf[:], vlen)
	if _, err := w.w.Write(vlenBuf[:]); err != nil {
		return err
	}
	if len(value) > 0 {
		if _, err := w.w.Write(value); err != nil {
			return err
		}
	}
	return w.w.Flush()
}

// Sync flushes the OS buffers so all previously appended records are on
// stable storage.
func (w *WAL) Sync() error {
	if w == nil || w.f == nil {
		return ErrClosed
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.f.Sync()
}

// Close releases the file.
func (w *WAL) Close() error {
	if w == nil || w.f == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		_ = w.f.Close()
		w.f = nil
		return err
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// Record is one parsed WAL entry.
type Record struct {
	Key       []byte
	Value     []byte
	Tombstone bool
}

// Replay reads records sequentially from path and invokes apply for each
// one, in file order. It stops at the first short read or malformed type
// byte and truncates the file to the offset of the last fully-parsed
// record, so a torn write from a crash mid-append never corrupts
// recovery: the log is simply rolled back to its last complete record.
// Replay is a no-op if path does not exist.
func Replay(path string, apply func(Record)) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var validOffset int64

	for {
		hdr := make([]byte, 1+4)
		n, err := io.ReadFull(r, hdr)
		if err != nil || n != len(hdr) {
			break
		}
		typ := hdr[0]
		if typ != TypePut && typ != TypeTombstone {
			break
		}
		klen := encoding.GetUint32(hdr[1:5])
		key := make([]byte, klen)
		if n, err := io.ReadFull(r, key); err != nil || uint32(n) != klen {
			break
		}

		vlenBuf := make([]byte, 4)
		if n, err := io.ReadFull(r, vlenBuf); err != nil || n != 4 {
			break
		}
		vlen := encoding.GetUint32(vlenBuf)

		var value []byte
		if typ == TypePut {
			value = make([]byte, vlen)
			if n, err := io.ReadFull(r, value); err != nil || uint32(n) != vlen {
				break
			}
		} else if vlen != 0 {
			// Malformed tombstone carrying a nonzero value length; stop here.
			break
		}

		validOffset += int64(1+4) + int64(klen) + int64(4)
		if typ == TypePut {
			validOffset += int64(vlen)
		}

		apply(Record{Key: key, Value: value, Tombstone: typ == TypeTombstone})
	}

	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	if st.Size() != validOffset {
		return os.Truncate(path, validOffset)
	}
	return nil
}
