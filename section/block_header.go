package section

import (
	"fmt"
	"io"

	"github.com/adobe/zdw/endian"
	"github.com/adobe/zdw/errs"
	"github.com/adobe/zdw/stream"
)

// BlockPrelude is the fixed front of each block, preceding the dictionary.
//
// Wire layout:
//
//	u32 num_rows
//	u32 max_row_size
//	u8  is_final        0 = another block follows, 1 = last
type BlockPrelude struct {
	NumRows    uint32
	MaxRowSize uint32
	IsFinal    bool
}

// BlockPreludeSize is the serialized size of a BlockPrelude.
const BlockPreludeSize = 9

// Bytes serializes the prelude.
func (p *BlockPrelude) Bytes() []byte {
	engine := endian.GetLittleEndianEngine()

	b := make([]byte, 0, BlockPreludeSize)
	b = engine.AppendUint32(b, p.NumRows)
	b = engine.AppendUint32(b, p.MaxRowSize)
	if p.IsFinal {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}

	return b
}

// WriteTo emits the prelude to w.
func (p *BlockPrelude) WriteTo(w io.Writer) error {
	if _, err := w.Write(p.Bytes()); err != nil {
		return fmt.Errorf("%w: block header: %v", errs.ErrFileCreate, err)
	}

	return nil
}

// ReadBlockPrelude parses the prelude from r.
func ReadBlockPrelude(r *stream.Reader) (*BlockPrelude, error) {
	engine := endian.GetLittleEndianEngine()

	var buf [BlockPreludeSize]byte
	if err := r.ReadFull(buf[:]); err != nil {
		return nil, err
	}

	return &BlockPrelude{
		NumRows:    engine.Uint32(buf[0:4]),
		MaxRowSize: engine.Uint32(buf[4:8]),
		IsFinal:    buf[8] != 0,
	}, nil
}

// WriteColumnStats emits the per-block column statistics that follow the
// dictionary: one byte width per file column, then a u64 baseline for each
// column whose width is nonzero, in declaration order.
func WriteColumnStats(w io.Writer, widths []uint8, baselines []uint64) error {
	engine := endian.GetLittleEndianEngine()

	buf := make([]byte, 0, len(widths)+8*len(widths))
	buf = append(buf, widths...)
	for c, width := range widths {
		if width > 0 {
			buf = engine.AppendUint64(buf, baselines[c])
		}
	}

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: column stats: %v", errs.ErrFileCreate, err)
	}

	return nil
}

// ReadColumnStats parses the column statistics for numColumns columns.
// The returned baselines slice is indexed by file column; unused columns
// hold zero. usedCount is the number of columns with nonzero width.
func ReadColumnStats(r *stream.Reader, numColumns int) (widths []uint8, baselines []uint64, usedCount int, err error) {
	engine := endian.GetLittleEndianEngine()

	widths = make([]uint8, numColumns)
	if numColumns > 0 {
		if err = r.ReadFull(widths); err != nil {
			return nil, nil, 0, err
		}
	}

	baselines = make([]uint64, numColumns)
	var base [8]byte
	for c, width := range widths {
		if width == 0 {
			continue
		}
		if width > 8 {
			return nil, nil, 0, fmt.Errorf("%w: column %d has byte width %d", errs.ErrCorruptedData, c, width)
		}
		if err = r.ReadFull(base[:]); err != nil {
			return nil, nil, 0, err
		}
		baselines[c] = engine.Uint64(base[:])
		usedCount++
	}

	return widths, baselines, usedCount, nil
}
