package version

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/oakenshield/lsmgo/sstable"
)

// VersionSet owns the database's file-number counter, the current
// Version, and a cache of open table handles shared across lookups.
// There is no manifest file: on recovery the level-0 list is rebuilt
// entirely from a directory listing, which keeps crash recovery simple
// at the cost of re-deriving file metadata on every Open.
type VersionSet struct {
	mu             sync.Mutex
	dir            string
	nextFileNumber uint64
	current        *Version
	cache          map[uint64]*sstable.Table
}

// fileName returns the on-disk path for a level-0 file number.
func fileName(dir string, number uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%06d.sst", number))
}

// Recover scans dir for existing `<number>.sst` files, opens each one to
// learn its key range, and assembles the initial Version with the
// highest-numbered file first. It also seeds the file-number counter
// past the largest number found on disk.
func Recover(dir string) (*VersionSet, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	vs := &VersionSet{dir: dir, nextFileNumber: 1, cache: map[uint64]*sstable.Table{}}

	var metas []*FileMetaData
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".sst") {
			continue
		}
		stem := strings.TrimSuffix(name, ".sst")
		number, err := strconv.ParseUint(stem, 10, 64)
		if err != nil {
			// Not one of our files; skip rather than fail recovery.
			continue
		}

		// Seed the counter from every numbered file, including ones
		// that fail to open below, so a new flush never reuses a number
		// already present on disk.
		if number >= vs.nextFileNumber {
			vs.nextFileNumber = number + 1
		}

		path := filepath.Join(dir, name)
		tbl, err := sstable.Open(path)
		if err != nil {
			// A table that fails to open (truncated footer, garbage
			// bytes) is dropped from the recovered set rather than
			// treated as a fatal error. The skip is not logged or
			// reported to the caller.
			continue
		}

		metas = append(metas, &FileMetaData{
			Number:      number,
			FileSize:    fileSize(path),
			SmallestKey: cloneBytes(tbl.SmallestKey()),
			LargestKey:  cloneBytes(tbl.LargestKey()),
		})
		vs.cache[number] = tbl
	}

	sort.Slice(metas, func(i, j int) bool { return metas[i].Number > metas[j].Number })
	vs.current = newVersion(metas, vs.openTable)
	return vs, nil
}

func fileSize(path string) int64 {
	st, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return st.Size()
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// openTable returns the cached handle for number, opening it from disk
// on first use.
func (vs *VersionSet) openTable(number uint64) (*sstable.Table, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if tbl, ok := vs.cache[number]; ok {
		return tbl, nil
	}
	tbl, err := sstable.Open(fileName(vs.dir, number))
	if err != nil {
		return nil, err
	}
	vs.cache[number] = tbl
	return tbl, nil
}

// NewFileNumber allocates the next level-0 file number and returns the
// path the caller should build the new SSTable at.
func (vs *VersionSet) NewFileNumber() (number uint64, path string) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	number = vs.nextFileNumber
	vs.nextFileNumber++
	return number, fileName(vs.dir, number)
}

// Current returns the current Version. Callers must not retain it across
// a LogAndApply call if they need to see newly flushed files.
func (vs *VersionSet) Current() *Version {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.current
}

// LogAndApply installs meta as the newest level-0 file, replacing the
// current Version with one that has meta prepended. The caller holds
// the database's own lock across this call and the memtable swap that
// follows it, so readers never observe a Version with the new file but
// a memtable that still holds the data that file was built from.
func (vs *VersionSet) LogAndApply(meta *FileMetaData, tbl *sstable.Table) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	vs.cache[meta.Number] = tbl
	files := make([]*FileMetaData, 0, len(vs.current.files)+1)
	files = append(files, meta)
	files = append(files, vs.current.files...)
	vs.current = newVersion(files, vs.openTable)
}

// Close releases every cached table handle.
func (vs *VersionSet) Close() error {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	var firstErr error
	for _, tbl := range vs.cache {
		if err := tbl.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
