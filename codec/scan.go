package codec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/adobe/zdw/errs"
)

// defaultRowCapacity is the starting row-buffer size; it doubles whenever a
// longer row arrives and its high-water mark is persisted as the block's
// max_row_size.
const defaultRowCapacity = 16 * 1024

// rowScanner reads logical rows from a tab-separated source.
//
// A physical newline preceded by an odd number of backslashes is escaped
// and does not terminate the row; the newline stays embedded in the row
// text. Likewise a tab preceded by an odd number of backslashes does not
// separate fields. A final line with no terminating newline is dropped, as
// is any empty line.
type rowScanner struct {
	br       *bufio.Reader
	row      []byte
	fields   [][]byte
	rowCap   uint32
	trim     bool
	consumed int64 // bytes of input scanned, blank lines included
}

func newRowScanner(r io.Reader, trimTrailingSpaces bool) *rowScanner {
	return &rowScanner{
		br:     bufio.NewReaderSize(r, defaultRowCapacity),
		row:    make([]byte, 0, defaultRowCapacity),
		rowCap: defaultRowCapacity,
		trim:   trimTrailingSpaces,
	}
}

// maxRowSize returns the row-buffer capacity high-water mark.
func (s *rowScanner) maxRowSize() uint32 { return s.rowCap }

// next returns the next logical row without its terminating newline, or
// io.EOF when the source is exhausted. The returned slice is valid until
// the following call.
func (s *rowScanner) next() ([]byte, error) {
	for {
		s.row = s.row[:0]

		for {
			chunk, err := s.br.ReadBytes('\n')
			s.row = append(s.row, chunk...)
			s.consumed += int64(len(chunk))
			if err != nil {
				if errors.Is(err, io.EOF) {
					// A trailing fragment with no newline is dropped.
					return nil, io.EOF
				}
				return nil, fmt.Errorf("%w: %v", errs.ErrIoRead, err)
			}
			if !endlineEscaped(s.row) {
				break
			}
		}

		if len(s.row) < 2 {
			// Blank line; at EOF the inner loop will surface io.EOF.
			continue
		}

		for uint32(len(s.row)) >= s.rowCap {
			s.rowCap *= 2
		}

		return s.row[:len(s.row)-1], nil
	}
}

// endlineEscaped reports whether the row's trailing newline is preceded by
// an odd number of backslashes, i.e. the newline itself is escaped.
func endlineEscaped(row []byte) bool {
	if len(row) == 0 || row[len(row)-1] != '\n' {
		return false
	}
	n := 0
	for i := len(row) - 2; i >= 0 && row[i] == '\\'; i-- {
		n++
	}

	return n%2 == 1
}

// split breaks a row into fields on unescaped tabs. When trimming is
// enabled, trailing spaces are removed from every field. The returned
// slices alias row (after in-place trimming).
func (s *rowScanner) split(row []byte) [][]byte {
	s.fields = s.fields[:0]

	start := 0
	for i := 0; i < len(row); i++ {
		if row[i] != '\t' {
			continue
		}
		if tabEscaped(row, i) {
			continue
		}
		s.fields = append(s.fields, s.trimField(row[start:i]))
		start = i + 1
	}
	s.fields = append(s.fields, s.trimField(row[start:]))

	return s.fields
}

// tabEscaped reports whether the tab at index i is preceded by an odd
// number of backslashes.
func tabEscaped(row []byte, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && row[j] == '\\'; j-- {
		n++
	}

	return n%2 == 1
}

func (s *rowScanner) trimField(field []byte) []byte {
	if !s.trim {
		return field
	}

	return bytes.TrimRight(field, " ")
}

// joinFields reassembles trimmed fields into a physical row for the spill
// file, reinserting tab separators and the trailing newline.
func joinFields(dst []byte, fields [][]byte) []byte {
	for i, field := range fields {
		if i > 0 {
			dst = append(dst, '\t')
		}
		dst = append(dst, field...)
	}

	return append(dst, '\n')
}
