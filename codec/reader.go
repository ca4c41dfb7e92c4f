package codec

import (
	"fmt"
	"io"

	"github.com/go-kit/log/level"

	"github.com/adobe/zdw/errs"
	"github.com/adobe/zdw/internal/options"
	"github.com/adobe/zdw/schema"
	"github.com/adobe/zdw/section"
	"github.com/adobe/zdw/stream"
)

// readerState is the decode state machine:
// Begin -> ParseBlockHeader -> GetNextRow -> (ParseBlockHeader | Finishing) -> End.
type readerState int

const (
	stateBegin readerState = iota
	stateParseBlockHeader
	stateGetNextRow
	stateFinishing
	stateEnd
)

// Reader decodes a ZDW byte stream into rows.
//
// Rows are produced strictly in file order; within a row, columns are
// decoded in file-declaration order before shaping reorders them. The only
// state spanning blocks is the file header; each block's dictionary and
// descriptors are released when the block ends.
//
// The Reader consumes raw ZDW bytes: any outer compression must be removed
// by the caller first. Not safe for concurrent use.
type Reader struct {
	*ReaderConfig

	in     *stream.Reader
	header *section.FileHeader
	table  *schema.Table
	plan   *projection

	numFileColumns int
	block          *blockReader
	state          readerState
	rowNumber      uint64
	assembler      *rowAssembler
	numBuf         [64]byte
	closed         bool
}

// NewReader creates a Reader over the raw ZDW stream r.
func NewReader(r io.Reader, opts ...ReaderOption) (*Reader, error) {
	cfg := newReaderConfig()
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	return &Reader{
		ReaderConfig: cfg,
		in:           stream.NewReaderSize(r, cfg.bufferSize),
	}, nil
}

// ReadHeader parses the file header and resolves the column projection.
// It must be called exactly once, before row iteration; NextRow calls it
// implicitly.
func (r *Reader) ReadHeader() error {
	if r.state != stateBegin {
		return errs.ErrHeaderAlreadyRead
	}

	header, err := section.ReadFileHeader(r.in)
	if err != nil {
		return err
	}
	r.header = header
	r.numFileColumns = len(header.Columns)
	r.table = schema.NewTable(header.Columns)

	r.plan, err = resolveProjection(header.Columns, r.projection, r.rule, r.hasProjection)
	if err != nil {
		return err
	}

	r.state = stateParseBlockHeader

	return nil
}

// Version returns the file format version; valid after ReadHeader.
func (r *Reader) Version() uint16 { return r.header.Version }

// Metadata returns the file's metadata pairs (version 11 files only).
func (r *Reader) Metadata() []section.MetadataPair { return r.header.Metadata }

// FileColumns returns the file's column table in declaration order.
func (r *Reader) FileColumns() []schema.Column { return r.header.Columns }

// OutputColumns returns the caller-visible columns in output order, after
// projection; blank fill-in columns appear as generic text.
func (r *Reader) OutputColumns() []schema.Column { return r.plan.outputSchema() }

// HasColumn reports whether the file carries the named column,
// case-insensitively.
func (r *Reader) HasColumn(name string) bool {
	if r.table == nil {
		return false
	}
	_, ok := r.table.Lookup(name)

	return ok
}

// IsLastBlock reports whether the current block carries the final flag.
func (r *Reader) IsLastBlock() bool {
	return r.block != nil && r.block.prelude.IsFinal
}

// NextRow decodes and shapes the next row. At the end of the file it
// returns errs.ErrAtEndOfFile after verifying no trailing bytes remain.
func (r *Reader) NextRow() (Row, error) {
	for {
		switch r.state {
		case stateBegin:
			if err := r.ReadHeader(); err != nil {
				return Row{}, err
			}

		case stateParseBlockHeader:
			if err := r.parseNextBlockHeader(); err != nil {
				return Row{}, err
			}

		case stateGetNextRow:
			if !r.block.exhausted() {
				if r.in.EOF() {
					return Row{}, fmt.Errorf("%w: block truncated at row %d of %d",
						errs.ErrRowCountMismatch, r.block.rowsRead, r.block.prelude.NumRows)
				}
				if err := r.block.readRowValues(r.in); err != nil {
					return Row{}, err
				}
				r.assembler.reset()
				if err := r.emitRow(r.assembler); err != nil {
					return Row{}, err
				}

				return r.assembler.row(), nil
			}

			wasFinal := r.block.prelude.IsFinal
			r.releaseBlock()
			if wasFinal {
				r.state = stateFinishing
			} else {
				r.state = stateParseBlockHeader
			}

		case stateFinishing:
			r.state = stateEnd
			if !r.in.ProbeEOF() {
				return Row{}, errs.ErrTruncatedOrLonger
			}

			return Row{}, errs.ErrAtEndOfFile

		case stateEnd:
			return Row{}, errs.ErrAtEndOfFile
		}
	}
}

func (r *Reader) parseNextBlockHeader() error {
	block, err := parseBlock(r.in, r.numFileColumns)
	if err != nil {
		return err
	}
	r.block = block

	if r.assembler == nil {
		r.assembler = newRowAssembler(r.plan.order(), r.plan.numOutput)
	}
	r.state = stateGetNextRow

	level.Debug(r.logger).Log("msg", "block header parsed", "rows", block.prelude.NumRows,
		"dictionary_bytes", block.blob.Size(), "final", block.prelude.IsFinal)

	return nil
}

func (r *Reader) releaseBlock() {
	if r.block != nil {
		r.block.release()
		r.block = nil
	}
}

// Unconvert streams every row of the file into out, already shaped. This
// is the bulk-decode path behind the CLI: out is either a plain TSV writer
// or an ordered writer built from OutputOrder.
func (r *Reader) Unconvert(out stream.RowWriter) error {
	if r.state == stateBegin {
		if err := r.ReadHeader(); err != nil {
			return err
		}
	}

	for r.state != stateEnd {
		switch r.state {
		case stateParseBlockHeader:
			block, err := parseBlock(r.in, r.numFileColumns)
			if err != nil {
				return err
			}
			r.block = block
			r.state = stateGetNextRow

		case stateGetNextRow:
			for !r.block.exhausted() {
				if r.in.EOF() {
					return fmt.Errorf("%w: block truncated at row %d of %d",
						errs.ErrRowCountMismatch, r.block.rowsRead, r.block.prelude.NumRows)
				}
				if err := r.block.readRowValues(r.in); err != nil {
					return err
				}
				if err := r.emitRow(out); err != nil {
					return err
				}
			}
			wasFinal := r.block.prelude.IsFinal
			r.releaseBlock()
			if wasFinal {
				r.state = stateFinishing
			} else {
				r.state = stateParseBlockHeader
			}

		case stateFinishing:
			r.state = stateEnd
			if err := out.Flush(); err != nil {
				return err
			}
			if !r.in.ProbeEOF() {
				return errs.ErrTruncatedOrLonger
			}
		}
	}

	return nil
}

// OutputOrder returns the arrival-position permutation for
// stream.NewOrderedWriter, or nil when the natural order applies.
func (r *Reader) OutputOrder() []int {
	if r.plan == nil || r.plan.identity {
		return nil
	}

	return r.plan.order()
}

// Test performs an integrity scan: every block is structurally decoded and
// all dictionary offsets validated, but no rows are materialized.
func (r *Reader) Test() error {
	if r.state == stateBegin {
		if err := r.ReadHeader(); err != nil {
			return err
		}
	}

	for {
		block, err := parseBlock(r.in, r.numFileColumns)
		if err != nil {
			return err
		}
		r.block = block

		for !block.exhausted() {
			if r.in.EOF() {
				return fmt.Errorf("%w: block truncated at row %d of %d",
					errs.ErrRowCountMismatch, block.rowsRead, block.prelude.NumRows)
			}
			if err := block.readRowValues(r.in); err != nil {
				return err
			}
			if err := r.validateRowOffsets(block); err != nil {
				return err
			}
		}

		final := block.prelude.IsFinal
		r.releaseBlock()
		if final {
			break
		}
	}

	r.state = stateEnd
	if !r.in.ProbeEOF() {
		return errs.ErrTruncatedOrLonger
	}

	return nil
}

func (r *Reader) validateRowOffsets(block *blockReader) error {
	for c, col := range r.header.Columns {
		if block.widths[c] == 0 || !col.Type.UsesDictionary() {
			continue
		}
		if offset := block.finalValue(c); offset > block.blob.Size() {
			return fmt.Errorf("%w: column %q dictionary offset %d exceeds blob size %d",
				errs.ErrCorruptedData, col.Name, offset, block.blob.Size())
		}
	}

	return nil
}

// BlockStats summarizes one block for the statistics mode.
type BlockStats struct {
	NumRows        uint32
	MaxRowSize     uint32
	IsFinal        bool
	DictionarySize uint64
	UsedColumns    int
	DeltaBitsSet   uint64
	BitsPerColumn  []uint64
}

// Stats scans the file collecting per-block statistics without
// materializing rows or dictionaries. Row bodies are only walked for
// non-final blocks (the final block need not be traversed to find the next
// one).
func (r *Reader) Stats() ([]BlockStats, error) {
	if r.state == stateBegin {
		if err := r.ReadHeader(); err != nil {
			return nil, err
		}
	}

	var all []BlockStats
	for {
		block, blobSize, err := skipBlockDictionary(r.in, r.numFileColumns)
		if err != nil {
			return all, err
		}

		stats := BlockStats{
			NumRows:        block.prelude.NumRows,
			MaxRowSize:     block.prelude.MaxRowSize,
			IsFinal:        block.prelude.IsFinal,
			DictionarySize: blobSize,
			UsedColumns:    block.usedCount,
			BitsPerColumn:  make([]uint64, block.usedCount),
		}

		if !block.prelude.IsFinal {
			for !block.exhausted() {
				if r.in.EOF() {
					return all, fmt.Errorf("%w: block truncated at row %d of %d",
						errs.ErrRowCountMismatch, block.rowsRead, block.prelude.NumRows)
				}
				if err := block.readRowValues(r.in); err != nil {
					return all, err
				}
				stats.DeltaBitsSet += block.countSetBits(stats.BitsPerColumn)
			}
		}

		all = append(all, stats)
		if block.prelude.IsFinal {
			break
		}
	}

	r.state = stateEnd

	return all, nil
}

// WriteSchema writes the output columns as a comma-and-newline separated
// "name type" list, the form used for table-creation statements.
func (r *Reader) WriteSchema(w io.Writer) error {
	if r.plan == nil {
		return errs.ErrHeaderNotReadYet
	}

	for i, col := range r.plan.outputSchema() {
		line := schema.DescLine(col, " ")
		if line == "" {
			return fmt.Errorf("%w: column %q has type %s", errs.ErrUnexpectedDescType, col.Name, col.Type)
		}
		if i > 0 {
			line = ",\n" + line
		}
		if _, err := io.WriteString(w, line); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrFileCreate, err)
		}
	}

	return nil
}

// Close releases the current block's dictionary and descriptors. It is
// idempotent; closing does not touch the underlying reader's source, which
// the caller owns.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.releaseBlock()
	if r.assembler != nil {
		r.assembler.release()
		r.assembler = nil
	}
	r.state = stateEnd

	return nil
}
