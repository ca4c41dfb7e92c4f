package codec

import (
	"strconv"
	"time"

	"github.com/go-kit/log/level"

	"github.com/adobe/zdw/internal/pool"
	"github.com/adobe/zdw/schema"
	"github.com/adobe/zdw/stream"
)

// datetimeLayout is the textual form of DATETIME columns, interpreted in
// UTC.
const datetimeLayout = "2006-01-02 15:04:05"

// Row is one decoded, shaped row. Fields are in caller output order and
// remain valid until the next call that produces a row.
type Row struct {
	Fields [][]byte
}

// TypedValue is one decoded cell of the typed row view.
type TypedValue struct {
	Column schema.Column
	// Text holds the textual form for all types; after a DECIMAL or
	// DATETIME parse failure it holds the column default instead.
	Text string
	// Uint/Int are set for integer columns (by signedness).
	Uint uint64
	Int  int64
	// Float is set for DECIMAL columns.
	Float float64
	// Time is set for DATETIME columns, in UTC.
	Time time.Time
}

// rowAssembler collects the shaped fields of one row into a growable
// buffer, applying the projection's arrival-to-slot permutation. Fields are
// stored null-terminated; the slot index exposes them as byte slices.
type rowAssembler struct {
	order   []int // arrival position -> output slot, or ignored
	buf     *pool.ByteBuffer
	starts  []int // per arrival position, -1 for dropped
	ends    []int
	fields  [][]byte
	arrival int
}

var _ stream.RowWriter = (*rowAssembler)(nil)

func newRowAssembler(order []int, numOutput int) *rowAssembler {
	return &rowAssembler{
		order:  order,
		buf:    pool.GetRowBuffer(),
		starts: make([]int, len(order)),
		ends:   make([]int, len(order)),
		fields: make([][]byte, numOutput),
	}
}

func (a *rowAssembler) WriteField(p []byte) error {
	if a.arrival < len(a.order) && a.order[a.arrival] != ignored {
		a.starts[a.arrival] = a.buf.Len()
		a.buf.MustWrite(p)
		a.ends[a.arrival] = a.buf.Len()
		a.buf.WriteByte(0)
	}
	a.arrival++

	return nil
}

func (a *rowAssembler) WriteEmptyField() error {
	return a.WriteField(nil)
}

func (a *rowAssembler) EndRow() error {
	for i, slot := range a.order {
		if slot != ignored && i < a.arrival {
			a.fields[slot] = a.buf.B[a.starts[i]:a.ends[i]]
		}
	}

	return nil
}

func (a *rowAssembler) Flush() error { return nil }

// row returns the assembled row; reset prepares for the next one.
func (a *rowAssembler) row() Row { return Row{Fields: a.fields} }

func (a *rowAssembler) reset() {
	a.buf.Reset()
	a.arrival = 0
}

func (a *rowAssembler) release() {
	pool.PutRowBuffer(a.buf)
	a.buf = nil
}

// emitRow shapes the current block row into out: every column of the
// decode plan in declaration order, then the blank columns. out handles
// placement and dropping.
func (r *Reader) emitRow(out stream.RowWriter) error {
	r.rowNumber++

	for c, col := range r.plan.allColumns {
		var err error
		switch {
		case col.Type.IsVirtual():
			err = r.emitDefault(out, col.Type)
		case r.block.widths[c] == 0:
			err = r.emitDefault(out, col.Type)
		default:
			err = r.emitValue(out, c, col)
		}
		if err != nil {
			return err
		}
	}

	for range r.plan.blankArrivals() {
		if err := out.WriteEmptyField(); err != nil {
			return err
		}
	}

	return out.EndRow()
}

// emitDefault writes the type's default value. The virtual columns route
// through here: they have no stored bytes and synthesize their value per
// row.
func (r *Reader) emitDefault(out stream.RowWriter, t schema.ColumnType) error {
	switch {
	case t == schema.TypeVirtualExportBasename:
		return out.WriteField([]byte(r.basename))
	case t == schema.TypeVirtualExportRow:
		return out.WriteField(strconv.AppendUint(r.numBuf[:0], r.rowNumber, 10))
	case t == schema.TypeDecimal:
		return out.WriteField([]byte(schema.DecimalDefault))
	case t.IsInteger():
		return out.WriteField([]byte("0"))
	default:
		return out.WriteEmptyField()
	}
}

// emitValue type-decodes one used column's stored value.
func (r *Reader) emitValue(out stream.RowWriter, c int, col schema.Column) error {
	switch {
	case col.Type.UsesDictionary():
		if r.block.stored[c] == 0 {
			return r.emitDefault(out, col.Type)
		}
		word, err := r.block.lookupWord(c)
		if err != nil {
			return err
		}
		if r.outputEnc != nil && isPlainText(col.Type) {
			if encoded, err := r.outputEnc.Bytes(word); err == nil {
				word = encoded
			}
		}
		return out.WriteField(word)

	case col.Type == schema.TypeChar:
		if r.block.stored[c] == 0 {
			return out.WriteEmptyField()
		}
		tuple := r.block.finalValue(c)
		low := byte(tuple)
		if low == '\\' {
			r.numBuf[0] = low
			r.numBuf[1] = byte(tuple >> 8)
			return out.WriteField(r.numBuf[:2])
		}
		if low == 0 {
			return out.WriteEmptyField()
		}
		r.numBuf[0] = low
		return out.WriteField(r.numBuf[:1])

	case col.Type.IsSigned():
		var v int64
		if r.block.stored[c] != 0 {
			v = int64(r.block.finalValue(c))
		}
		return out.WriteField(strconv.AppendInt(r.numBuf[:0], v, 10))

	default:
		var v uint64
		if r.block.stored[c] != 0 {
			v = r.block.finalValue(c)
		}
		return out.WriteField(strconv.AppendUint(r.numBuf[:0], v, 10))
	}
}

// isPlainText reports whether a dictionary type carries free text subject
// to output re-encoding (DATETIME and DECIMAL stay raw).
func isPlainText(t schema.ColumnType) bool {
	switch t {
	case schema.TypeVarchar, schema.TypeText, schema.TypeTinyText,
		schema.TypeMediumText, schema.TypeLongText, schema.TypeChar2:
		return true
	default:
		return false
	}
}

// Typed converts a shaped row into typed values. DECIMAL parse failures and
// DATETIME parse failures are non-fatal: the column default is substituted
// and a warning logged.
func (r *Reader) Typed(row Row) []TypedValue {
	cols := r.OutputColumns()
	values := make([]TypedValue, len(row.Fields))
	for i, field := range row.Fields {
		col := cols[i]
		v := TypedValue{Column: col, Text: string(field)}

		switch {
		case col.Type == schema.TypeDecimal:
			f, err := strconv.ParseFloat(v.Text, 64)
			if err != nil {
				level.Warn(r.logger).Log("msg", "bad decimal value, using default",
					"column", col.Name, "value", v.Text)
				v.Text = schema.DecimalDefault
				f = 0
			}
			v.Float = f
		case col.Type == schema.TypeDatetime:
			if v.Text != "" {
				ts, err := time.ParseInLocation(datetimeLayout, v.Text, time.UTC)
				if err != nil {
					level.Warn(r.logger).Log("msg", "bad datetime value, using default",
						"column", col.Name, "value", v.Text)
					v.Text = ""
				} else {
					v.Time = ts
				}
			}
		case col.Type.IsSigned():
			v.Int, _ = strconv.ParseInt(v.Text, 10, 64)
			v.Int = clampSigned(v.Int, col.Type)
		case col.Type.IsInteger(), col.Type == schema.TypeVirtualExportRow:
			v.Uint, _ = strconv.ParseUint(v.Text, 10, 64)
		}

		values[i] = v
	}

	return values
}

// clampSigned casts a signed value to the column's target width.
func clampSigned(v int64, t schema.ColumnType) int64 {
	switch t {
	case schema.TypeTinySigned:
		return int64(int8(v))
	case schema.TypeShortSigned:
		return int64(int16(v))
	case schema.TypeLongSigned:
		return int64(int32(v))
	default:
		return v
	}
}
