// Package indexfmt defines the normative on-disk layout of the append-only
// index log: 32-byte IndexEntry records and the bitfield-tagged offset that
// packs a deletion flag and a data-file index into the same 64-bit word as
// the byte offset. This layout must never be split into a struct on disk —
// only the accessor helpers below may interpret the bits.
package indexfmt

import (
	"encoding/binary"
	"fmt"

	"github.com/mortehu/cantera-cas/pkg/caskey"
)

const (
	// EntrySize is the fixed size in bytes of one index record.
	EntrySize = 32

	// MaxDataFiles is the number of data files addressable by the 6-bit
	// data-file index packed into the offset.
	MaxDataFiles = 50

	// HashBucketSize determines how many consistent-hash buckets a
	// repository contributes: ceil(total_bytes / HashBucketSize).
	HashBucketSize = 128 * 1024 * 1024

	kDeletedMask uint64 = 0x8000000000000000
	kBucketMask  uint64 = 0x3f00000000000000
	kOffsetMask  uint64 = 0x00ffffffffffffff

	bucketShift = 56
)

// Entry is the in-memory projection of one 32-byte index record. It is
// never serialized field-by-field; Marshal/Unmarshal below produce and
// consume the exact wire layout.
type Entry struct {
	// Offset is the tagged 64-bit word: bit 63 deletion flag, bits 56-61
	// data-file index, bits 0-55 byte offset within that data file.
	Offset uint64
	Size   uint32
	Key    caskey.Key
}

// MakeOffset packs a byte offset, data-file index and deletion flag into
// the tagged 64-bit word stored in Entry.Offset.
func MakeOffset(dataFileIdx int, byteOffset uint64, deleted bool) (uint64, error) {
	if dataFileIdx < 0 || dataFileIdx >= MaxDataFiles {
		return 0, fmt.Errorf("indexfmt: data file index %d out of range [0,%d)", dataFileIdx, MaxDataFiles)
	}
	if byteOffset&^kOffsetMask != 0 {
		return 0, fmt.Errorf("indexfmt: byte offset %d exceeds 56 bits", byteOffset)
	}
	v := byteOffset | (uint64(dataFileIdx) << bucketShift)
	if deleted {
		v |= kDeletedMask
	}
	return v, nil
}

// IsDeleted reports whether offset's deletion bit is set (a tombstone).
func IsDeleted(offset uint64) bool {
	return offset&kDeletedMask != 0
}

// DataFileIndex extracts the 6-bit data-file index from offset.
func DataFileIndex(offset uint64) int {
	return int((offset & kBucketMask) >> bucketShift)
}

// ByteOffset extracts the 56-bit byte offset from offset.
func ByteOffset(offset uint64) uint64 {
	return offset & kOffsetMask
}

// WithDeleted returns offset with the deletion bit set, preserving the
// data-file index and byte offset — used to build a tombstone record for
// an existing entry.
func WithDeleted(offset uint64) uint64 {
	return offset | kDeletedMask
}

// Marshal encodes an Entry into its 32-byte wire form.
func (e Entry) Marshal() [EntrySize]byte {
	var buf [EntrySize]byte
	binary.LittleEndian.PutUint64(buf[0:8], e.Offset)
	binary.LittleEndian.PutUint32(buf[8:12], e.Size)
	copy(buf[12:32], e.Key[:])
	return buf
}

// Unmarshal decodes a 32-byte record into an Entry.
func Unmarshal(buf []byte) (Entry, error) {
	if len(buf) != EntrySize {
		return Entry{}, fmt.Errorf("indexfmt: record is %d bytes, want %d", len(buf), EntrySize)
	}
	var e Entry
	e.Offset = binary.LittleEndian.Uint64(buf[0:8])
	e.Size = binary.LittleEndian.Uint32(buf[8:12])
	copy(e.Key[:], buf[12:32])
	return e, nil
}
