package codec

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, input string, trim bool) ([]string, *rowScanner) {
	t.Helper()

	s := newRowScanner(strings.NewReader(input), trim)
	var rows []string
	for {
		row, err := s.next()
		if errors.Is(err, io.EOF) {
			return rows, s
		}
		require.NoError(t, err)
		rows = append(rows, string(row))
	}
}

func TestScannerBasicRows(t *testing.T) {
	rows, _ := scanAll(t, "a\tb\nc\td\n", false)
	require.Equal(t, []string{"a\tb", "c\td"}, rows)
}

func TestScannerSkipsBlankLines(t *testing.T) {
	rows, _ := scanAll(t, "\n\na\tb\n\nc\td\n\n", false)
	require.Equal(t, []string{"a\tb", "c\td"}, rows)
}

func TestScannerDropsUnterminatedTail(t *testing.T) {
	rows, _ := scanAll(t, "a\tb\npartial", false)
	require.Equal(t, []string{"a\tb"}, rows)
}

func TestScannerEscapedNewlineContinues(t *testing.T) {
	// One backslash escapes the newline: the row continues and keeps the
	// newline embedded. Two backslashes do not.
	rows, _ := scanAll(t, "a\\\nb\n", false)
	require.Equal(t, []string{"a\\\nb"}, rows)

	rows, _ = scanAll(t, "a\\\\\nb\n", false)
	require.Equal(t, []string{"a\\\\", "b"}, rows)
}

func TestScannerConsumedTracksBlanks(t *testing.T) {
	s := newRowScanner(strings.NewReader("\nx\ty\n"), false)
	row, err := s.next()
	require.NoError(t, err)
	require.Equal(t, "x\ty", string(row))
	require.Equal(t, int64(5), s.consumed)
}

func TestScannerCapacityDoubles(t *testing.T) {
	long := strings.Repeat("x", defaultRowCapacity+10)
	rows, s := scanAll(t, long+"\n", false)
	require.Len(t, rows, 1)
	require.Equal(t, uint32(defaultRowCapacity*2), s.maxRowSize())
}

func TestSplitPlain(t *testing.T) {
	s := newRowScanner(strings.NewReader(""), false)
	fields := s.split([]byte("a\tb\t\tc"))
	require.Equal(t, [][]byte{[]byte("a"), []byte("b"), {}, []byte("c")}, fields)
}

func TestSplitEscapedTab(t *testing.T) {
	s := newRowScanner(strings.NewReader(""), false)

	// The tab after a lone backslash is escaped; the one after a double
	// backslash is a separator.
	fields := s.split([]byte("\\\tx\ty"))
	require.Len(t, fields, 2)
	require.Equal(t, "\\\tx", string(fields[0]))
	require.Equal(t, "y", string(fields[1]))

	fields = s.split([]byte("a\\\\\tb"))
	require.Len(t, fields, 2)
	require.Equal(t, "a\\\\", string(fields[0]))
	require.Equal(t, "b", string(fields[1]))
}

func TestSplitTrimsTrailingSpaces(t *testing.T) {
	s := newRowScanner(strings.NewReader(""), true)
	fields := s.split([]byte("a  \tb\tc   "))
	require.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, fields)
}

func TestJoinFields(t *testing.T) {
	fields := [][]byte{[]byte("a"), []byte("b"), nil}
	require.Equal(t, "a\tb\t\n", string(joinFields(nil, fields)))
}

func TestParseUintWrap(t *testing.T) {
	require.Equal(t, uint64(0), parseUintWrap([]byte("")))
	require.Equal(t, uint64(0), parseUintWrap([]byte("abc")))
	require.Equal(t, uint64(100), parseUintWrap([]byte("100")))
	require.Equal(t, uint64(100), parseUintWrap([]byte("100junk")))
	// Negative values wrap, two's-complement style.
	require.Equal(t, ^uint64(5)+1, parseUintWrap([]byte("-5")))
	require.Equal(t, uint64(7), parseUintWrap([]byte("+7")))
}

func TestCharStoredValue(t *testing.T) {
	require.Equal(t, uint64(0), charStoredValue(nil))
	require.Equal(t, uint64('x'), charStoredValue([]byte("x")))
	// Escape pair: backslash low byte, escaped char high byte.
	require.Equal(t, uint64('\\')|uint64('\t')<<8, charStoredValue([]byte("\\\t")))
	// A lone backslash has no high byte.
	require.Equal(t, uint64('\\'), charStoredValue([]byte("\\")))
}
