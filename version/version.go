// Package version tracks the set of on-disk SSTables that make up the
// database's level-0 list and answers point lookups against it.
package version

import (
	"bytes"

	"github.com/oakenshield/lsmgo/sstable"
)

// FileMetaData describes one SSTable file: its number (also its
// filename stem), size on disk, and key range, so a lookup can skip
// files that cannot possibly contain the target key.
type FileMetaData struct {
	Number      uint64
	FileSize    int64
	SmallestKey []byte
	LargestKey  []byte
}

func (m *FileMetaData) contains(key []byte) bool {
	return bytes.Compare(key, m.SmallestKey) >= 0 && bytes.Compare(key, m.LargestKey) <= 0
}

// Result mirrors the table package's three-way lookup outcome at the
// version level.
type Result int

const (
	NotPresent Result = iota
	Found
	Deleted
)

// Version is an immutable snapshot of the level-0 file list, newest file
// first. Lookups scan newest to oldest and stop at the first hit,
// because a newer file's record always shadows an older one's for the
// same key.
type Version struct {
	files []*FileMetaData
	open  func(number uint64) (*sstable.Table, error)
}

// newVersion builds a Version from files already ordered newest-first.
func newVersion(files []*FileMetaData, open func(uint64) (*sstable.Table, error)) *Version {
	return &Version{files: files, open: open}
}

// Files returns the version's file list, newest first.
func (v *Version) Files() []*FileMetaData {
	return v.files
}

// Get scans files newest-first, skipping any whose key range cannot
// contain key, and returns the first match found.
func (v *Version) Get(key []byte) ([]byte, Result, error) {
	for _, meta := range v.files {
		if !meta.contains(key) {
			continue
		}
		tbl, err := v.open(meta.Number)
		if err != nil {
			return nil, NotPresent, err
		}
		value, res, err := tbl.Get(key)
		if err != nil {
			return nil, NotPresent, err
		}
		switch res {
		case sstable.Found:
			return value, Found, nil
		case sstable.Deleted:
			return nil, Deleted, nil
		}
	}
	return nil, NotPresent, nil
}
