// Package dictionary implements the per-block string dictionary of the ZDW
// format.
//
// The writer side (Dictionary) interns every distinct text value seen during
// the first pass over a block, arena-allocated in large chunks. At
// serialization time entries are emitted in ascending byte-lexicographic
// order and each is assigned its byte offset into the serialized blob;
// offset 0 is reserved as the null origin byte meaning "no value".
//
// The reader side (Blob) holds the deserialized byte blob and resolves
// offsets back to null-terminated entries.
package dictionary

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/adobe/zdw/endian"
	"github.com/adobe/zdw/errs"
	"github.com/adobe/zdw/internal/memory"
)

// arenaChunkSize is the allocation unit of the writer's string arena.
// Freeing is by arena, never per-entry.
const arenaChunkSize = 64 * 1024 * 1024

// entry is one interned string. data points into an arena chunk (without
// the null terminator); offset is assigned during WriteTo.
type entry struct {
	data   []byte
	offset uint64
}

// Dictionary is the writer-side insert-only set of distinct byte strings.
//
// Entries are deduplicated through an xxhash64-keyed bucket map; equal
// hashes fall back to byte comparison within the bucket. Not safe for
// concurrent use: exactly one block-in-progress owns a Dictionary.
type Dictionary struct {
	buckets map[uint64][]*entry
	arena   [][]byte
	free    []byte // tail of the current arena chunk

	size        uint64 // serialized bytes of all entries, terminators included
	numEntries  int
	lowOnMemory bool
	offsetWidth int // valid after WriteTo
}

// New creates an empty writer-side dictionary.
func New() *Dictionary {
	return &Dictionary{
		buckets: make(map[uint64][]*entry),
	}
}

// Insert interns value, copying it into the arena. Duplicate insertions are
// idempotent. The return value reports whether memory headroom remains;
// false signals the block writer to close the current block.
func (d *Dictionary) Insert(value []byte) bool {
	h := xxhash.Sum64(value)
	bucket := d.buckets[h]
	for _, e := range bucket {
		if bytes.Equal(e.data, value) {
			return true
		}
	}

	stored := d.copyToArena(value)
	d.buckets[h] = append(bucket, &entry{data: stored})
	d.size += uint64(len(value)) + 1
	d.numEntries++

	return !d.lowOnMemory
}

// copyToArena places value (plus a null terminator) into the arena and
// returns the stored bytes without the terminator.
func (d *Dictionary) copyToArena(value []byte) []byte {
	need := len(value) + 1
	if len(d.free) < need {
		size := arenaChunkSize
		if need > size {
			size = need
		}
		chunk := make([]byte, size)
		d.arena = append(d.arena, chunk)
		d.free = chunk
		if !memory.CanAllocate(0) {
			d.lowOnMemory = true
		}
	}

	stored := d.free[:len(value):len(value)]
	copy(stored, value)
	d.free[len(value)] = 0
	d.free = d.free[need:]

	return stored
}

// Empty reports whether no entries have been interned.
func (d *Dictionary) Empty() bool { return d.numEntries == 0 }

// NumEntries returns the number of distinct interned strings.
func (d *Dictionary) NumEntries() int { return d.numEntries }

// Size returns the serialized blob size in bytes, including the origin null
// byte.
func (d *Dictionary) Size() uint64 { return d.size + 1 }

// OffsetWidth returns the byte width needed to express the largest offset
// of the serialized form.
func (d *Dictionary) OffsetWidth() int {
	return endian.UvarWidth(d.Size())
}

// Offset returns the serialized offset assigned to value. WriteTo must have
// run first; an unknown value returns 0.
func (d *Dictionary) Offset(value []byte) uint64 {
	for _, e := range d.buckets[xxhash.Sum64(value)] {
		if bytes.Equal(e.data, value) {
			return e.offset
		}
	}

	return 0
}

// Reset discards all entries and arena chunks, keeping the Dictionary
// usable for the next block.
func (d *Dictionary) Reset() {
	d.buckets = make(map[uint64][]*entry)
	d.arena = nil
	d.free = nil
	d.size = 0
	d.numEntries = 0
	d.lowOnMemory = false
	d.offsetWidth = 0
}

// WriteTo serializes the dictionary:
//
//	offset_width (u8)
//	blob_size    (offset_width bytes LE)   -- absent when offset_width == 0
//	0x00                                   -- origin byte, offset 0 sentinel
//	entries, null-terminated, ascending byte-lexicographic order
//
// As a side effect every entry's offset is populated for the second pass.
// An empty dictionary serializes as the single byte 0x00.
func (d *Dictionary) WriteTo(w io.Writer) (int64, error) {
	if d.Empty() {
		n, err := w.Write([]byte{0})
		return int64(n), err
	}

	sorted := make([]*entry, 0, d.numEntries)
	for _, bucket := range d.buckets {
		sorted = append(sorted, bucket...)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].data, sorted[j].data) < 0
	})

	blobSize := d.Size()
	offsetWidth := endian.UvarWidth(blobSize)
	d.offsetWidth = offsetWidth

	var written int64
	header := make([]byte, 0, 1+offsetWidth+1)
	header = append(header, byte(offsetWidth))
	header = endian.AppendUvar(header, blobSize, offsetWidth)
	header = append(header, 0) // origin byte
	n, err := w.Write(header)
	written += int64(n)
	if err != nil {
		return written, err
	}

	offset := uint64(1)
	terminator := []byte{0}
	for _, e := range sorted {
		e.offset = offset
		if n, err = w.Write(e.data); err != nil {
			return written + int64(n), err
		}
		written += int64(n)
		if n, err = w.Write(terminator); err != nil {
			return written + int64(n), err
		}
		written += int64(n)
		offset += uint64(len(e.data)) + 1
	}

	if offset != blobSize {
		return written, fmt.Errorf("%w: dictionary wrote %d bytes, expected %d", errs.ErrCorruptedData, offset, blobSize)
	}

	return written, nil
}
