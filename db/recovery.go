package db

import (
	"github.com/oakenshield/lsmgo/memtable"
	"github.com/oakenshield/lsmgo/wal"
)

// recoverWAL replays path into mem in file order. wal.Replay already
// truncates a torn tail to its longest valid prefix, so by the time
// this returns the log on disk and the memtable it produced agree.
func recoverWAL(path string, mem *memtable.Memtable) error {
	return wal.Replay(path, func(r wal.Record) {
		if r.Tombstone {
			mem.Delete(r.Key)
			return
		}
		mem.Put(r.Key, r.Value)
	})
}
