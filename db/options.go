package db

import (
	"io"
	"os"

	"github.com/oakenshield/lsmgo/memtable"
)

// Options configures a database instance.
type Options struct {
	Dir              string    // base directory; created if missing
	Sync             bool      // fsync the WAL after every write
	MemtableMaxBytes int64     // triggers a flush once reached
	Verbose          bool      // log flush/recovery decisions to Log
	Log              io.Writer // destination for verbose logging
}

// DefaultOptions returns sane defaults: synchronous writes, a 4 MiB
// memtable threshold, and quiet logging to stderr.
func DefaultOptions() Options {
	return Options{
		Dir:              ".",
		Sync:             true,
		MemtableMaxBytes: memtable.DefaultMaxBytes,
		Verbose:          false,
		Log:              os.Stderr,
	}
}
