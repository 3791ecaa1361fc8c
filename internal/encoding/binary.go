// Package encoding holds the little-endian record framing helpers shared
// by the wal and sstable packages.
package encoding

import "encoding/binary"

// PutUint32 writes v as 4 little-endian bytes into buf[0:4].
func PutUint32(buf []byte, v uint32) {
	binary.LittleEndian.PutUint32(buf, v)
}

// PutUint64 writes v as 8 little-endian bytes into buf[0:8].
func PutUint64(buf []byte, v uint64) {
	binary.LittleEndian.PutUint64(buf, v)
}

// GetUint32 reads 4 little-endian bytes from buf[0:4].
func GetUint32(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf)
}

// GetUint64 reads 8 little-endian bytes from buf[0:8].
func GetUint64(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf)
}
