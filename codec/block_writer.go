package codec

import (
	"bufio"
	"fmt"

	"github.com/adobe/zdw/dictionary"
	"github.com/adobe/zdw/endian"
	"github.com/adobe/zdw/errs"
	"github.com/adobe/zdw/schema"
	"github.com/adobe/zdw/section"
)

// blockWriter accumulates the first-pass statistics for one block and emits
// its wire image during the second pass. Exactly one block-in-progress owns
// the dictionary and the min/max accumulators.
type blockWriter struct {
	columns []schema.Column
	uniques *dictionary.Dictionary

	minmaxSet []bool
	colMin    []uint64
	colMax    []uint64

	// Populated by computeColumnStats.
	widths      []uint8
	baselines   []uint64
	usedColumns []int

	prevStored []uint64
	numRows    uint32
}

func newBlockWriter(columns []schema.Column) *blockWriter {
	n := len(columns)

	return &blockWriter{
		columns:    columns,
		uniques:    dictionary.New(),
		minmaxSet:  make([]bool, n),
		colMin:     make([]uint64, n),
		colMax:     make([]uint64, n),
		widths:     make([]uint8, n),
		baselines:  make([]uint64, n),
		prevStored: make([]uint64, n),
	}
}

// reset prepares the blockWriter for the next block.
func (b *blockWriter) reset() {
	b.uniques.Reset()
	for i := range b.minmaxSet {
		b.minmaxSet[i] = false
		b.colMin[i] = 0
		b.colMax[i] = 0
		b.widths[i] = 0
		b.baselines[i] = 0
		b.prevStored[i] = 0
	}
	b.usedColumns = b.usedColumns[:0]
	b.numRows = 0
}

// observeRow feeds one row's fields into the first-pass accumulators.
// The return value reports whether memory headroom remains; false tells the
// driver to close the block after this row.
func (b *blockWriter) observeRow(fields [][]byte) bool {
	headroom := true
	for c, field := range fields {
		if len(field) == 0 {
			continue
		}

		col := b.columns[c]
		switch {
		case col.Type.UsesDictionary():
			b.minmaxSet[c] = true
			if !b.uniques.Insert(field) {
				headroom = false
			}
		case col.Type == schema.TypeChar:
			b.observeValue(c, charStoredValue(field))
		case col.Type.IsInteger():
			b.observeValue(c, parseUintWrap(field))
		}
	}
	b.numRows++

	return headroom
}

func (b *blockWriter) observeValue(c int, v uint64) {
	if v == 0 {
		return
	}
	if !b.minmaxSet[c] {
		b.minmaxSet[c] = true
		b.colMin[c] = v
		b.colMax[c] = v
		return
	}
	if v > b.colMax[c] {
		b.colMax[c] = v
	} else if v < b.colMin[c] {
		b.colMin[c] = v
	}
}

// computeColumnStats decides each column's byte width and baseline from the
// first-pass accumulators. Must run after the dictionary has been
// serialized (the offset width is fixed then).
func (b *blockWriter) computeColumnStats() {
	offsetWidth := uint8(b.uniques.OffsetWidth())

	b.usedColumns = b.usedColumns[:0]
	for c := range b.columns {
		if !b.minmaxSet[c] {
			b.widths[c] = 0
			b.baselines[c] = 0
			continue
		}

		if b.columns[c].Type.UsesDictionary() {
			b.widths[c] = offsetWidth
			b.baselines[c] = 0
		} else {
			// The baseline is min-1 so the smallest actual value
			// encodes as 1; zero on the wire always means "default".
			base := b.colMin[c] - 1
			b.baselines[c] = base
			b.widths[c] = uint8(endian.UvarWidth(b.colMax[c] - base))
		}
		b.usedColumns = append(b.usedColumns, c)
	}
}

// writeHeader emits the block prelude, dictionary, and column stats.
// Serializing the dictionary assigns entry offsets for encodeRow.
func (b *blockWriter) writeHeader(w *bufio.Writer, maxRowSize uint32, isFinal bool) error {
	prelude := &section.BlockPrelude{
		NumRows:    b.numRows,
		MaxRowSize: maxRowSize,
		IsFinal:    isFinal,
	}
	if err := prelude.WriteTo(w); err != nil {
		return err
	}

	if _, err := b.uniques.WriteTo(w); err != nil {
		return fmt.Errorf("%w: dictionary: %v", errs.ErrFileCreate, err)
	}

	b.computeColumnStats()

	return section.WriteColumnStats(w, b.widths, b.baselines)
}

// encodeRow emits one row of the block body: the same-as-previous bit
// array, then the stored value of each used column whose bit is set.
// flagBuf and valueBuf are caller-owned scratch reused across rows.
func (b *blockWriter) encodeRow(w *bufio.Writer, fields [][]byte, flagBuf, valueBuf []byte) error {
	for i := range flagBuf {
		flagBuf[i] = 0
	}
	valueBuf = valueBuf[:0]

	for u, c := range b.usedColumns {
		field := fields[c]
		col := b.columns[c]

		var stored uint64
		switch {
		case col.Type.UsesDictionary():
			if len(field) > 0 {
				stored = b.uniques.Offset(field)
			}
		case col.Type == schema.TypeChar:
			stored = charStoredValue(field)
			if stored != 0 {
				stored -= b.baselines[c]
			}
		default:
			stored = parseUintWrap(field)
			if stored != 0 {
				stored -= b.baselines[c]
			}
		}

		if stored != b.prevStored[c] {
			flagBuf[u/8] |= 1 << (u % 8)
			valueBuf = endian.AppendUvar(valueBuf, stored, int(b.widths[c]))
			b.prevStored[c] = stored
		}
	}

	if _, err := w.Write(flagBuf); err != nil {
		return fmt.Errorf("%w: row flags: %v", errs.ErrFileCreate, err)
	}
	if _, err := w.Write(valueBuf); err != nil {
		return fmt.Errorf("%w: row values: %v", errs.ErrFileCreate, err)
	}

	return nil
}

// flagBytes returns the per-row size of the same-as-previous bit array.
func (b *blockWriter) flagBytes() int {
	return (len(b.usedColumns) + 7) / 8
}
