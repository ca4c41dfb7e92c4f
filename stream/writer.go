package stream

import (
	"bufio"
	"fmt"
	"io"

	"github.com/adobe/zdw/errs"
	"github.com/adobe/zdw/internal/pool"
)

// RowWriter is the sink the row-shaping layer writes decoded rows into.
// Fields arrive in file-declaration order; implementations decide placement.
type RowWriter interface {
	// WriteField appends one column value for the current row.
	WriteField(p []byte) error
	// WriteEmptyField appends an empty column value for the current row.
	WriteEmptyField() error
	// EndRow terminates the current row.
	EndRow() error
	// Flush forces buffered rows to the underlying stream.
	Flush() error
}

// Writer emits tab-separated rows directly to an output stream in arrival
// order.
type Writer struct {
	bw         *bufio.Writer
	fieldCount int
}

// NewWriter wraps w with the default buffer size.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriterSize(w, DefaultBufferSize)}
}

// WriteField appends one field, preceded by a tab when it is not the first
// of the row.
func (w *Writer) WriteField(p []byte) error {
	if w.fieldCount > 0 {
		if err := w.bw.WriteByte('\t'); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrFileCreate, err)
		}
	}
	w.fieldCount++
	if _, err := w.bw.Write(p); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrFileCreate, err)
	}

	return nil
}

// WriteEmptyField appends an empty field.
func (w *Writer) WriteEmptyField() error {
	return w.WriteField(nil)
}

// EndRow terminates the row with a newline.
func (w *Writer) EndRow() error {
	w.fieldCount = 0
	if err := w.bw.WriteByte('\n'); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrFileCreate, err)
	}

	return nil
}

// Flush drains the internal buffer.
func (w *Writer) Flush() error {
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrFileCreate, err)
	}

	return nil
}

// OrderedWriter accumulates the fields of one row into per-column buffers
// and emits them permuted on EndRow.
//
// The permutation maps arrival position to output position: order[i] = j
// places the i-th field written at output position j; Drop (-1) discards
// the field. The non-dropped entries must form a bijection onto 0..k-1.
type OrderedWriter struct {
	out *Writer

	order   []int              // arrival position -> output slot or Drop
	buffers []*pool.ByteBuffer // one per arrival position, nil for dropped
	slots   [][]byte           // output slot -> field bytes, rebuilt per row
	arrival int
}

// Drop marks a column as discarded in an OrderedWriter permutation.
const Drop = -1

// NewOrderedWriter builds an OrderedWriter over w with the given
// permutation. It fails with ErrBadRequestedColumn when the non-dropped
// entries do not form a gapless bijection onto 0..k-1.
func NewOrderedWriter(w io.Writer, order []int) (*OrderedWriter, error) {
	ow := &OrderedWriter{
		out:     NewWriter(w),
		order:   append([]int(nil), order...),
		buffers: make([]*pool.ByteBuffer, len(order)),
	}

	maxVal := -1
	retained := 0
	seen := make(map[int]bool)
	for i, val := range order {
		if val == Drop {
			continue
		}
		if val < 0 || seen[val] {
			return nil, fmt.Errorf("%w: output position %d repeated or negative", errs.ErrBadRequestedColumn, val)
		}
		seen[val] = true
		ow.buffers[i] = pool.GetRowBuffer()
		retained++
		if val > maxVal {
			maxVal = val
		}
	}

	// No gaps: the count of retained columns must equal one past the
	// largest output index.
	if maxVal+1 != retained {
		return nil, fmt.Errorf("%w: output positions have gaps", errs.ErrBadRequestedColumn)
	}
	ow.slots = make([][]byte, retained)

	return ow, nil
}

// WriteField buffers one field for the current row; fields at dropped or
// out-of-range arrival positions are discarded.
func (w *OrderedWriter) WriteField(p []byte) error {
	if w.arrival < len(w.buffers) && w.buffers[w.arrival] != nil {
		buf := w.buffers[w.arrival]
		buf.Reset()
		buf.MustWrite(p)
	}
	w.arrival++

	return nil
}

// WriteEmptyField buffers an empty field for the current row.
func (w *OrderedWriter) WriteEmptyField() error {
	return w.WriteField(nil)
}

// EndRow emits the buffered fields in permuted order, tab-joined and
// newline-terminated.
func (w *OrderedWriter) EndRow() error {
	for i, slot := range w.order {
		if slot != Drop {
			w.slots[slot] = w.buffers[i].Bytes()
		}
	}
	w.arrival = 0

	for _, field := range w.slots {
		if err := w.out.WriteField(field); err != nil {
			return err
		}
	}

	return w.out.EndRow()
}

// Flush drains the underlying writer.
func (w *OrderedWriter) Flush() error {
	return w.out.Flush()
}

// Close returns the per-column buffers to the pool.
func (w *OrderedWriter) Close() {
	for _, buf := range w.buffers {
		pool.PutRowBuffer(buf)
	}
	w.buffers = nil
}
