package codec

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/go-kit/log/level"

	"github.com/adobe/zdw/errs"
	"github.com/adobe/zdw/internal/options"
	"github.com/adobe/zdw/schema"
	"github.com/adobe/zdw/section"
)

// Writer converts tab-separated rows into the ZDW byte format.
//
// Conversion is two-pass per block: the first pass scans rows to build the
// dictionary and per-column statistics, the second emits the encoded rows.
// When the process memory budget is exhausted mid-scan the current block is
// closed and a fresh one begins, so a file may carry any number of blocks;
// the last one has the final flag set.
//
// The Writer emits raw ZDW bytes: any outer compression (gzip, xz, ...) is
// layered by the caller. Not safe for concurrent use.
type Writer struct {
	*WriterConfig

	table *schema.Table
	out   *bufio.Writer

	block      *blockWriter
	spillPaths []string
	totalRows  uint64
}

// NewWriter creates a Writer for the given schema writing raw ZDW bytes to
// out.
func NewWriter(table *schema.Table, out io.Writer, opts ...WriterOption) (*Writer, error) {
	cfg := newWriterConfig()
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}
	if len(cfg.metadata) > 0 && cfg.version < section.MetadataVersion {
		return nil, fmt.Errorf("%w: metadata requires the version 11 format", errs.ErrBadMetadataParam)
	}

	return &Writer{
		WriterConfig: cfg,
		table:        table,
		out:          bufio.NewWriterSize(out, defaultRowCapacity),
		block:        newBlockWriter(table.Columns()),
	}, nil
}

// TotalRows reports the number of rows converted so far.
func (w *Writer) TotalRows() uint64 { return w.totalRows }

// SpillPaths returns the spill files kept alive by WithKeepSpills, in block
// order. The caller owns their removal.
func (w *Writer) SpillPaths() []string { return w.spillPaths }

// Convert consumes all rows from in and writes the complete ZDW stream.
// When in is an io.ReadSeeker the second pass rewinds it; otherwise rows
// are spilled to compressed temp files between passes.
func (w *Writer) Convert(in io.Reader) error {
	header := &section.FileHeader{
		Version:  w.version,
		Metadata: w.metadata,
		Columns:  w.table.Columns(),
	}
	if err := header.WriteTo(w.out); err != nil {
		return err
	}

	var err error
	if seeker, ok := in.(io.ReadSeeker); ok {
		err = w.convertSeekable(seeker)
	} else {
		err = w.convertStreaming(in)
	}
	if err != nil {
		return err
	}

	if err := w.out.Flush(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrFileCreate, err)
	}

	return nil
}

// convertSeekable runs the two passes per block by rewinding the source.
func (w *Writer) convertSeekable(in io.ReadSeeker) error {
	blockStart, err := in.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIoRead, err)
	}

	blockIndex := 0
	for {
		w.block.reset()
		scanner := newRowScanner(in, w.trimTrailingSpaces)

		done, consumed, err := w.scanBlock(scanner, nil)
		if err != nil {
			return err
		}

		if _, err := in.Seek(blockStart, io.SeekStart); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrIoRead, err)
		}
		second := newRowScanner(in, w.trimTrailingSpaces)
		if err := w.emitBlock(second, scanner.maxRowSize(), done, blockIndex); err != nil {
			return err
		}

		if done {
			return nil
		}
		blockStart += consumed
		if _, err := in.Seek(blockStart, io.SeekStart); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrIoRead, err)
		}
		blockIndex++
	}
}

// convertStreaming spills pass-1 rows to temp files so the second pass can
// re-read a non-seekable source.
func (w *Writer) convertStreaming(in io.Reader) error {
	scanner := newRowScanner(in, w.trimTrailingSpaces)

	blockIndex := 0
	for {
		w.block.reset()
		spill, err := newSpillFile(w.spillDir, w.spillBase, blockIndex)
		if err != nil {
			return err
		}

		done, _, err := w.scanBlock(scanner, spill)
		if err != nil {
			spill.finish()
			spill.remove()
			return err
		}
		if err := spill.finish(); err != nil {
			spill.remove()
			return err
		}

		second, err := spill.open()
		if err != nil {
			spill.remove()
			return err
		}
		emitErr := w.emitBlock(newRowScanner(second, w.trimTrailingSpaces), scanner.maxRowSize(), done, blockIndex)
		second.Close()

		if w.keepSpills {
			w.spillPaths = append(w.spillPaths, spill.path)
		} else {
			spill.remove()
		}
		if emitErr != nil {
			return emitErr
		}

		if done {
			return nil
		}
		blockIndex++
	}
}

// scanBlock is the first pass: it feeds rows into the block accumulators
// until the input is exhausted (done=true) or the memory budget trips.
// consumed is the byte length of input scanned into this block; rows are
// mirrored to spill when non-nil.
func (w *Writer) scanBlock(scanner *rowScanner, spill *spillFile) (done bool, consumed int64, err error) {
	numColumns := w.table.NumColumns()
	var spillBuf []byte

	for {
		row, err := scanner.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return true, scanner.consumed, nil
			}
			return false, 0, err
		}

		fields := scanner.split(row)
		if len(fields) != numColumns {
			return false, 0, fmt.Errorf("%w: row %d has %d columns, schema has %d",
				errs.ErrWrongColumnCountOnRow, w.block.numRows+1, len(fields), numColumns)
		}

		if spill != nil {
			spillBuf = joinFields(spillBuf[:0], fields)
			if _, err := spill.Write(spillBuf); err != nil {
				return false, 0, err
			}
		}

		if !w.block.observeRow(fields) {
			// Memory budget tripped: close the block after this row.
			level.Debug(w.logger).Log("msg", "memory budget reached, rotating block",
				"rows", w.block.numRows)
			return false, scanner.consumed, nil
		}
	}
}

// emitBlock is the second pass: it writes the block header and re-encodes
// exactly the rows counted by the first pass.
func (w *Writer) emitBlock(scanner *rowScanner, maxRowSize uint32, isFinal bool, blockIndex int) error {
	if err := w.block.writeHeader(w.out, maxRowSize, isFinal); err != nil {
		return err
	}

	flagBuf := make([]byte, w.block.flagBytes())
	valueBuf := make([]byte, 0, len(w.block.usedColumns)*8)

	var count uint32
	for count < w.block.numRows {
		row, err := scanner.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: block %d ended after %d of %d rows",
					errs.ErrRowCountMismatch, blockIndex, count, w.block.numRows)
			}
			return err
		}

		fields := scanner.split(row)
		if err := w.block.encodeRow(w.out, fields, flagBuf, valueBuf); err != nil {
			return err
		}
		count++
	}
	w.totalRows += uint64(count)

	level.Info(w.logger).Log("msg", "block written", "block", blockIndex,
		"rows", count, "dictionary_bytes", w.block.uniques.Size(),
		"dictionary_entries", w.block.uniques.NumEntries(), "final", isFinal)

	return nil
}
