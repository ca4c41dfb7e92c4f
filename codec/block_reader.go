package codec

import (
	"fmt"

	"github.com/adobe/zdw/dictionary"
	"github.com/adobe/zdw/endian"
	"github.com/adobe/zdw/errs"
	"github.com/adobe/zdw/section"
	"github.com/adobe/zdw/stream"
)

// blockReader holds the decode state of one block: the dictionary blob,
// per-column widths and baselines, and the previous-row stored values. The
// dictionary and descriptors live exactly one block.
type blockReader struct {
	prelude   *section.BlockPrelude
	blob      *dictionary.Blob
	widths    []uint8
	baselines []uint64
	usedCount int

	flags      []byte
	stored     []uint64 // last stored value per file column
	valueBytes [8]byte
	rowsRead   uint32
}

// parseBlock reads a block header: prelude, dictionary, column stats.
func parseBlock(r *stream.Reader, numColumns int) (*blockReader, error) {
	prelude, err := section.ReadBlockPrelude(r)
	if err != nil {
		return nil, err
	}

	blob, err := dictionary.ReadBlob(r)
	if err != nil {
		return nil, err
	}

	widths, baselines, usedCount, err := section.ReadColumnStats(r, numColumns)
	if err != nil {
		return nil, err
	}

	return &blockReader{
		prelude:   prelude,
		blob:      blob,
		widths:    widths,
		baselines: baselines,
		usedCount: usedCount,
		flags:     make([]byte, (usedCount+7)/8),
		stored:    make([]uint64, numColumns),
	}, nil
}

// skipBlockDictionary reads a block header but discards the dictionary;
// used by statistics-only scans.
func skipBlockDictionary(r *stream.Reader, numColumns int) (*blockReader, uint64, error) {
	prelude, err := section.ReadBlockPrelude(r)
	if err != nil {
		return nil, 0, err
	}

	blobSize, err := dictionary.SkipBlob(r, r.Skip)
	if err != nil {
		return nil, 0, err
	}

	widths, baselines, usedCount, err := section.ReadColumnStats(r, numColumns)
	if err != nil {
		return nil, 0, err
	}

	return &blockReader{
		prelude:   prelude,
		widths:    widths,
		baselines: baselines,
		usedCount: usedCount,
		flags:     make([]byte, (usedCount+7)/8),
		stored:    make([]uint64, numColumns),
	}, blobSize, nil
}

// readRowValues consumes one row's flag bytes and changed stored values,
// updating the per-column slots. It does no type decoding; the caller maps
// stored values to output.
func (b *blockReader) readRowValues(r *stream.Reader) error {
	if len(b.flags) > 0 {
		if err := r.ReadFull(b.flags); err != nil {
			return err
		}
	}

	u := 0
	for c, width := range b.widths {
		if width == 0 {
			continue
		}
		if b.flags[u/8]&(1<<(u%8)) != 0 {
			buf := b.valueBytes[:width]
			if err := r.ReadFull(buf); err != nil {
				return err
			}
			b.stored[c] = endian.Uvar(buf, int(width))
		}
		u++
	}
	b.rowsRead++

	return nil
}

// finalValue applies the column baseline: a stored value of zero always
// decodes to zero (the type default); anything else gets the baseline
// added.
func (b *blockReader) finalValue(c int) uint64 {
	v := b.stored[c]
	if v == 0 {
		return 0
	}

	return v + b.baselines[c]
}

// lookupWord resolves a dictionary-typed column's final value to its entry
// bytes, validating the offset range.
func (b *blockReader) lookupWord(c int) ([]byte, error) {
	offset := b.finalValue(c)
	if offset > b.blob.Size() {
		return nil, fmt.Errorf("%w: column %d dictionary offset %d exceeds blob size %d",
			errs.ErrCorruptedData, c, offset, b.blob.Size())
	}

	return b.blob.Lookup(offset)
}

// exhausted reports whether every row of the block has been read.
func (b *blockReader) exhausted() bool {
	return b.rowsRead >= b.prelude.NumRows
}

// release frees the dictionary blob.
func (b *blockReader) release() {
	if b.blob != nil {
		b.blob.Release()
	}
}

// countSetBits tallies the delta bits of the current row per used-column
// position; used by the statistics mode.
func (b *blockReader) countSetBits(perColumn []uint64) uint64 {
	var total uint64
	for u := 0; u < b.usedCount; u++ {
		if b.flags[u/8]&(1<<(u%8)) != 0 {
			total++
			if u < len(perColumn) {
				perColumn[u]++
			}
		}
	}

	return total
}
