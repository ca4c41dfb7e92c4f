package dictionary

import (
	"fmt"
	"io"

	"github.com/adobe/zdw/endian"
	"github.com/adobe/zdw/errs"
)

// maxBlobChunk caps a single allocation when loading very large
// dictionaries; larger blobs are read as multiple chunks with entries
// stitched across chunk seams. Much larger than any single possible entry.
const maxBlobChunk = 500_000_000

// Blob is the reader-side dictionary: the serialized byte blob (possibly
// split into chunks) plus a cache of resolved entry lengths.
//
// An offset is either 0 (the "no value" sentinel) or the position of the
// first byte of a null-terminated entry. Logical offsets follow chunk
// concatenation order.
type Blob struct {
	chunks     [][]byte
	chunkSizes []uint64
	size       uint64 // total logical size including the origin byte

	lengths map[uint64]int // offset -> entry length, filled lazily
}

// ReadBlob deserializes a dictionary from r:
// offset_width (u8), blob_size (offset_width bytes LE), then blob_size raw
// bytes. An offset_width of zero yields an empty dictionary.
func ReadBlob(r io.Reader) (*Blob, error) {
	var widthByte [1]byte
	if _, err := io.ReadFull(r, widthByte[:]); err != nil {
		return nil, fmt.Errorf("%w: dictionary offset width: %v", errs.ErrIoRead, err)
	}
	offsetWidth := int(widthByte[0])
	if offsetWidth == 0 {
		return &Blob{lengths: make(map[uint64]int)}, nil
	}
	if offsetWidth > 8 {
		return nil, fmt.Errorf("%w: dictionary offset width %d", errs.ErrCorruptedData, offsetWidth)
	}

	var sizeBytes [8]byte
	if _, err := io.ReadFull(r, sizeBytes[:offsetWidth]); err != nil {
		return nil, fmt.Errorf("%w: dictionary size: %v", errs.ErrIoRead, err)
	}
	size := endian.Uvar(sizeBytes[:], offsetWidth)

	b := &Blob{
		size:    size,
		lengths: make(map[uint64]int),
	}

	remaining := size
	for remaining > maxBlobChunk {
		if err := b.readChunk(r, maxBlobChunk); err != nil {
			return nil, err
		}
		remaining -= maxBlobChunk
	}
	if err := b.readChunk(r, remaining); err != nil {
		return nil, err
	}

	return b, nil
}

// SkipBlob consumes a serialized dictionary from r without retaining it,
// returning the blob size skipped. Used by statistics-only scans.
func SkipBlob(r io.Reader, skip func(n uint64) error) (uint64, error) {
	var widthByte [1]byte
	if _, err := io.ReadFull(r, widthByte[:]); err != nil {
		return 0, fmt.Errorf("%w: dictionary offset width: %v", errs.ErrIoRead, err)
	}
	offsetWidth := int(widthByte[0])
	if offsetWidth == 0 {
		return 0, nil
	}
	if offsetWidth > 8 {
		return 0, fmt.Errorf("%w: dictionary offset width %d", errs.ErrCorruptedData, offsetWidth)
	}

	var sizeBytes [8]byte
	if _, err := io.ReadFull(r, sizeBytes[:offsetWidth]); err != nil {
		return 0, fmt.Errorf("%w: dictionary size: %v", errs.ErrIoRead, err)
	}
	size := endian.Uvar(sizeBytes[:], offsetWidth)
	if err := skip(size); err != nil {
		return 0, err
	}

	return size, nil
}

// readChunk reads size bytes as a new chunk. Any partial entry at the tail
// of the previous chunk is moved onto the front of the new one so that no
// entry straddles a chunk boundary.
func (b *Blob) readChunk(r io.Reader, size uint64) error {
	if size == 0 {
		return nil
	}

	var stitch []byte
	if n := len(b.chunks); n > 0 {
		prev := b.chunks[n-1]
		end := len(prev)
		cut := end
		for cut > 0 && prev[cut-1] != 0 {
			cut--
		}
		if cut < end {
			stitch = prev[cut:end]
			b.chunks[n-1] = prev[:cut]
			b.chunkSizes[n-1] = uint64(cut)
		}
	}

	chunk := make([]byte, uint64(len(stitch))+size)
	copy(chunk, stitch)
	if _, err := io.ReadFull(r, chunk[len(stitch):]); err != nil {
		return fmt.Errorf("%w: dictionary data: %v", errs.ErrIoRead, err)
	}

	b.chunks = append(b.chunks, chunk)
	b.chunkSizes = append(b.chunkSizes, uint64(len(chunk)))

	return nil
}

// Size returns the logical blob size, including the origin byte; zero for
// an empty dictionary.
func (b *Blob) Size() uint64 { return b.size }

// Lookup resolves offset to the entry bytes, excluding the null terminator.
// Offset 0 returns (nil, nil): the value is absent. An offset beyond the
// blob is corrupted data.
func (b *Blob) Lookup(offset uint64) ([]byte, error) {
	if offset == 0 {
		return nil, nil
	}
	if offset > b.size {
		return nil, fmt.Errorf("%w: dictionary offset %d exceeds blob size %d", errs.ErrCorruptedData, offset, b.size)
	}

	rel := offset
	chunkIdx := 0
	for chunkIdx < len(b.chunkSizes) && rel >= b.chunkSizes[chunkIdx] {
		rel -= b.chunkSizes[chunkIdx]
		chunkIdx++
	}
	if chunkIdx >= len(b.chunks) {
		return nil, fmt.Errorf("%w: dictionary offset %d has no chunk", errs.ErrCorruptedData, offset)
	}
	chunk := b.chunks[chunkIdx]

	if length, ok := b.lengths[offset]; ok {
		return chunk[rel : rel+uint64(length)], nil
	}

	end := rel
	for end < uint64(len(chunk)) && chunk[end] != 0 {
		end++
	}
	if end == uint64(len(chunk)) {
		return nil, fmt.Errorf("%w: dictionary entry at offset %d is not terminated", errs.ErrCorruptedData, offset)
	}
	b.lengths[offset] = int(end - rel)

	return chunk[rel:end], nil
}

// Release drops the blob chunks and cache. The Blob is unusable afterwards.
func (b *Blob) Release() {
	b.chunks = nil
	b.chunkSizes = nil
	b.lengths = nil
	b.size = 0
}
