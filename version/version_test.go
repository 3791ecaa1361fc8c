package version

import (
	"path/filepath"
	"testing"

	"github.com/oakenshield/lsmgo/sstable"
)

func buildTable(t *testing.T, path string, kvs map[string]string, tombstones map[string]bool) {
	t.Helper()
	b, err := sstable.NewBuilder(path)
	if err != nil {
		t.Fatal(err)
	}
	keys := make([]string, 0, len(kvs)+len(tombstones))
	for k := range kvs {
		keys = append(keys, k)
	}
	for k := range tombstones {
		if _, ok := kvs[k]; !ok {
			keys = append(keys, k)
		}
	}
	sortStrings(keys)
	for _, k := range keys {
		if tombstones[k] {
			if err := b.Add([]byte(k), nil, true); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := b.Add([]byte(k), []byte(kvs[k]), false); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := b.Finish(); err != nil {
		t.Fatal(err)
	}
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func TestRecoverOrdersNewestFirst(t *testing.T) {
	dir := t.TempDir()
	buildTable(t, filepath.Join(dir, "000001.sst"), map[string]string{"a": "old"}, nil)
	buildTable(t, filepath.Join(dir, "000002.sst"), map[string]string{"a": "new"}, nil)

	vs, err := Recover(dir)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	defer vs.Close()

	files := vs.Current().Files()
	if len(files) != 2 || files[0].Number != 2 || files[1].Number != 1 {
		t.Fatalf("files = %+v; want [2, 1]", files)
	}

	v, res, err := vs.Current().Get([]byte("a"))
	if err != nil || res != Found || string(v) != "new" {
		t.Fatalf("Get(a) = %q, %v, %v; want new, Found, nil", v, res, err)
	}
}

func TestGetSkipsFilesOutOfRange(t *testing.T) {
	dir := t.TempDir()
	buildTable(t, filepath.Join(dir, "000001.sst"), map[string]string{"a": "1", "b": "2"}, nil)
	buildTable(t, filepath.Join(dir, "000002.sst"), map[string]string{"y": "3", "z": "4"}, nil)

	vs, err := Recover(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer vs.Close()

	v, res, err := vs.Current().Get([]byte("a"))
	if err != nil || res != Found || string(v) != "1" {
		t.Fatalf("Get(a) = %q, %v, %v", v, res, err)
	}
	_, res, err = vs.Current().Get([]byte("missing"))
	if err != nil || res != NotPresent {
		t.Fatalf("Get(missing) = %v, %v; want NotPresent", res, err)
	}
}

func TestTombstoneShadowsOlderFile(t *testing.T) {
	dir := t.TempDir()
	buildTable(t, filepath.Join(dir, "000001.sst"), map[string]string{"a": "1"}, nil)
	buildTable(t, filepath.Join(dir, "000002.sst"), nil, map[string]bool{"a": true})

	vs, err := Recover(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer vs.Close()

	_, res, err := vs.Current().Get([]byte("a"))
	if err != nil || res != Deleted {
		t.Fatalf("Get(a) = %v, %v; want Deleted", res, err)
	}
}

func TestNewFileNumberMonotonic(t *testing.T) {
	dir := t.TempDir()
	buildTable(t, filepath.Join(dir, "000003.sst"), map[string]string{"a": "1"}, nil)

	vs, err := Recover(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer vs.Close()

	n, path := vs.NewFileNumber()
	if n != 4 {
		t.Fatalf("NewFileNumber = %d; want 4 (seeded past 3)", n)
	}
	if filepath.Base(path) != "000004.sst" {
		t.Fatalf("path = %q; want 000004.sst", path)
	}
}

func TestLogAndApplyPrependsNewest(t *testing.T) {
	dir := t.TempDir()
	buildTable(t, filepath.Join(dir, "000001.sst"), map[string]string{"a": "1"}, nil)

	vs, err := Recover(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer vs.Close()

	num, path := vs.NewFileNumber()
	buildTable(t, path, map[string]string{"a": "2"}, nil)
	tbl, err := sstable.Open(path)
	if err != nil {
		t.Fatal(err)
	}

	vs.LogAndApply(&FileMetaData{
		Number:      num,
		SmallestKey: []byte("a"),
		LargestKey:  []byte("a"),
	}, tbl)

	files := vs.Current().Files()
	if len(files) != 2 || files[0].Number != num {
		t.Fatalf("files = %+v; want newest file (%d) first", files, num)
	}
	v, res, err := vs.Current().Get([]byte("a"))
	if err != nil || res != Found || string(v) != "2" {
		t.Fatalf("Get(a) = %q, %v, %v; want 2, Found, nil", v, res, err)
	}
}
