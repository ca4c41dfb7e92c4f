package codec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/adobe/zdw/schema"
)

func TestRowAssemblerPermutesAndDrops(t *testing.T) {
	a := newRowAssembler([]int{1, ignored, 0}, 2)
	defer a.release()

	require.NoError(t, a.WriteField([]byte("one")))
	require.NoError(t, a.WriteField([]byte("dropped")))
	require.NoError(t, a.WriteField([]byte("zero")))
	require.NoError(t, a.EndRow())

	row := a.row()
	require.Equal(t, "zero", string(row.Fields[0]))
	require.Equal(t, "one", string(row.Fields[1]))
}

func TestRowAssemblerReuse(t *testing.T) {
	a := newRowAssembler([]int{0}, 1)
	defer a.release()

	require.NoError(t, a.WriteField([]byte("first")))
	require.NoError(t, a.EndRow())
	require.Equal(t, "first", string(a.row().Fields[0]))

	a.reset()
	require.NoError(t, a.WriteField([]byte("second")))
	require.NoError(t, a.EndRow())
	require.Equal(t, "second", string(a.row().Fields[0]))
}

func TestTypedParseFailureLogsAndDefaults(t *testing.T) {
	// Force garbage into a DECIMAL column by building a file whose
	// dictionary entry is not numeric. The decoder substitutes the
	// default and logs a warning rather than failing.
	desc := "amount\tdecimal(24,12)\n"
	data := convert(t, desc, "not-a-number\n")

	var logged bytes.Buffer
	rows, r := collectTypedRows(t, data, WithReaderLogger(log.NewLogfmtLogger(&logged)))
	defer r.Close()

	require.Len(t, rows, 1)
	require.Equal(t, 0.0, rows[0][0].Float)
	require.Equal(t, "0.000000000000", rows[0][0].Text)
	require.Contains(t, logged.String(), "bad decimal value")
}

func TestTypedDatetimeParseFailure(t *testing.T) {
	desc := "when\tdatetime\n"
	data := convert(t, desc, "yesterday-ish\n")

	var logged bytes.Buffer
	rows, r := collectTypedRows(t, data, WithReaderLogger(log.NewLogfmtLogger(&logged)))
	defer r.Close()

	require.Len(t, rows, 1)
	require.True(t, rows[0][0].Time.IsZero())
	require.Contains(t, logged.String(), "bad datetime value")
}

func TestOutputEncodingAppliesToText(t *testing.T) {
	// A UTF-8 é re-encoded to Latin-1 becomes the single byte 0xE9.
	desc := "name\tvarchar(10)\n"
	data := convert(t, desc, "caf\xc3\xa9\n")

	got := unconvert(t, data, WithOutputEncoding(charmap.ISO8859_1))
	require.Equal(t, "caf\xe9\n", got)
}

func TestClampSigned(t *testing.T) {
	require.Equal(t, int64(-1), clampSigned(255, schema.TypeTinySigned))
	require.Equal(t, int64(-1), clampSigned(-1, schema.TypeLongLongSigned))
}

func TestVirtualRowCounterIncrementsPerRow(t *testing.T) {
	data := convert(t, twoColDesc, strings.Repeat("a\tb\n", 3))

	got := unconvert(t, data, WithOutputColumns([]string{VirtualRowColumn}, FailOnInvalid))
	require.Equal(t, "1\n2\n3\n", got)
}
