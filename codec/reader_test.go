package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adobe/zdw/errs"
	"github.com/adobe/zdw/internal/memory"
	"github.com/adobe/zdw/schema"
	"github.com/adobe/zdw/stream"
)

// unconvert decodes a ZDW byte image to TSV text.
func unconvert(t *testing.T, data []byte, opts ...ReaderOption) string {
	t.Helper()

	r, err := NewReader(bytes.NewReader(data), opts...)
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.ReadHeader())

	var out bytes.Buffer
	var sink stream.RowWriter
	if order := r.OutputOrder(); order != nil {
		ow, err := stream.NewOrderedWriter(&out, order)
		require.NoError(t, err)
		defer ow.Close()
		sink = ow
	} else {
		sink = stream.NewWriter(&out)
	}
	require.NoError(t, r.Unconvert(sink))

	return out.String()
}

// collectRows pulls every row through the NextRow state machine.
func collectRows(t *testing.T, data []byte, opts ...ReaderOption) ([]string, *Reader) {
	t.Helper()

	r, err := NewReader(bytes.NewReader(data), opts...)
	require.NoError(t, err)

	var rows []string
	for {
		row, err := r.NextRow()
		if errors.Is(err, errs.ErrAtEndOfFile) {
			return rows, r
		}
		require.NoError(t, err)

		fields := make([]string, len(row.Fields))
		for i, f := range row.Fields {
			fields[i] = string(f)
		}
		rows = append(rows, strings.Join(fields, "\t"))
	}
}

const twoColDesc = "first\tvarchar(10)\nsecond\tvarchar(10)\n"

func TestRoundTripTwoTextColumns(t *testing.T) {
	input := "a\tb\na\tc\n"
	data := convert(t, twoColDesc, input)
	require.Equal(t, input, unconvert(t, data))
}

func TestRoundTripMixedTypes(t *testing.T) {
	desc := strings.Join([]string{
		"name\tvarchar(32)",
		"note\ttext",
		"when\tdatetime",
		"grade\tchar(1)",
		"state\tchar(2)",
		"amount\tdecimal(24,12)",
		"count_u\tint unsigned",
		"count_s\tint",
		"big_s\tbigint",
		"tiny_u\ttinyint unsigned",
	}, "\n") + "\n"

	input := strings.Join([]string{
		"alpha\tnote one\t2024-01-02 03:04:05\tA\tCA\t12.500000000000\t100\t-5\t-9000000000\t255",
		"alpha\t\t2024-01-02 03:04:05\tB\tNY\t0.000000000000\t0\t0\t0\t0",
		"beta\tnote two\t\t\t\t12.500000000000\t101\t-3\t9000000000\t1",
	}, "\n") + "\n"

	data := convert(t, desc, input)
	require.Equal(t, input, unconvert(t, data))
}

func TestRoundTripDefaults(t *testing.T) {
	// Each type's default text round-trips: empty text, "0" for integers
	// (stored as zero), the 12-digit zero for DECIMAL.
	desc := "txt\tvarchar(10)\nnum\tint unsigned\ndec\tdecimal(24,12)\n"
	input := "\t0\t0.000000000000\nx\t5\t1.250000000000\n"

	data := convert(t, desc, input)
	require.Equal(t, input, unconvert(t, data))
}

func TestRoundTripEscapedChar(t *testing.T) {
	input := "\\\t\n"
	data := convert(t, "c\tchar(1)\n", input)
	require.Equal(t, input, unconvert(t, data))
}

func TestRoundTripEmptyFile(t *testing.T) {
	data := convert(t, twoColDesc, "")
	require.Equal(t, "", unconvert(t, data))
}

func TestRoundTripMultiBlock(t *testing.T) {
	orig := memory.ThresholdMB()
	defer memory.SetThresholdMB(orig)
	// A ceiling below any real process size forces a rotation on every
	// dictionary arena allocation.
	memory.SetThresholdMB(0.001)

	input := "a\tb\nc\td\ne\tf\n"
	data := convertStreaming(t, twoColDesc, input)
	memory.SetThresholdMB(orig)

	// More than one block, chained by is_final, decoding to the same rows.
	stats := mustStats(t, data)
	require.Greater(t, len(stats), 1)
	for i, block := range stats {
		require.Equal(t, i == len(stats)-1, block.IsFinal, "block %d", i)
	}

	require.Equal(t, input, unconvert(t, data))
}

func mustStats(t *testing.T, data []byte) []BlockStats {
	t.Helper()
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Close()
	stats, err := r.Stats()
	require.NoError(t, err)

	return stats
}

func TestNextRowStateMachine(t *testing.T) {
	data := convert(t, twoColDesc, "a\tb\na\tc\n")

	rows, r := collectRows(t, data)
	require.Equal(t, []string{"a\tb", "a\tc"}, rows)

	// After End every call returns the sentinel.
	_, err := r.NextRow()
	require.ErrorIs(t, err, errs.ErrAtEndOfFile)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close()) // idempotent
}

func TestReaderAcceptsVersion9(t *testing.T) {
	// Version 9 files share the version 10 layout for everything this
	// fixture uses.
	data := expectedTwoTextColumns()
	data[0] = 9

	rows, r := collectRows(t, data)
	defer r.Close()
	require.Equal(t, []string{"a\tb", "a\tc"}, rows)
	require.Equal(t, uint16(9), r.Version())
}

func TestReaderRejectsOldVersions(t *testing.T) {
	data := expectedTwoTextColumns()
	data[0] = 8

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Close()
	require.ErrorIs(t, r.ReadHeader(), errs.ErrUnsupportedVersion)
}

func TestHeaderAlreadyRead(t *testing.T) {
	data := convert(t, twoColDesc, "a\tb\n")
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.ReadHeader())
	require.ErrorIs(t, r.ReadHeader(), errs.ErrHeaderAlreadyRead)
}

func TestTrailingBytesAreAnError(t *testing.T) {
	data := convert(t, twoColDesc, "a\tb\n")
	data = append(data, 0xFF)

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Close()

	for {
		_, err = r.NextRow()
		if err != nil {
			break
		}
	}
	require.ErrorIs(t, err, errs.ErrTruncatedOrLonger)
}

func TestCorruptDictionaryOffset(t *testing.T) {
	data := expectedTwoTextColumns()
	// Row 1's first stored value is at the fourth byte from the end of the
	// row body; point it past the blob.
	data[len(data)-4] = 9

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.NextRow()
	require.ErrorIs(t, err, errs.ErrCorruptedData)
}

func TestTestModeCatchesCorruption(t *testing.T) {
	good := convert(t, twoColDesc, "a\tb\na\tc\n")
	r, err := NewReader(bytes.NewReader(good))
	require.NoError(t, err)
	require.NoError(t, r.Test())
	r.Close()

	bad := expectedTwoTextColumns()
	bad[len(bad)-4] = 9
	r, err = NewReader(bytes.NewReader(bad))
	require.NoError(t, err)
	defer r.Close()
	require.ErrorIs(t, r.Test(), errs.ErrCorruptedData)
}

func TestProjectionReorder(t *testing.T) {
	data := convert(t, twoColDesc, "a\tb\na\tc\n")

	got := unconvert(t, data, WithOutputColumns([]string{"second", "first"}, FailOnInvalid))
	require.Equal(t, "b\ta\nc\ta\n", got)
}

func TestProjectionCaseInsensitive(t *testing.T) {
	data := convert(t, twoColDesc, "a\tb\n")

	got := unconvert(t, data, WithOutputColumns([]string{"SECOND"}, FailOnInvalid))
	require.Equal(t, "b\n", got)
}

func TestProjectionFailOnInvalid(t *testing.T) {
	data := convert(t, twoColDesc, "a\tb\n")

	r, err := NewReader(bytes.NewReader(data),
		WithOutputColumns([]string{"first", "missing"}, FailOnInvalid))
	require.NoError(t, err)
	defer r.Close()
	require.ErrorIs(t, r.ReadHeader(), errs.ErrBadRequestedColumn)
}

func TestProjectionSkipInvalidCompacts(t *testing.T) {
	data := convert(t, twoColDesc, "a\tb\n")

	// "missing" leaves a gap at position 1 that must compact away.
	got := unconvert(t, data, WithOutputColumns([]string{"second", "missing", "first"}, SkipInvalid))
	require.Equal(t, "b\ta\n", got)
}

func TestProjectionFillMissing(t *testing.T) {
	data := convert(t, "a\tvarchar(10)\nb\tvarchar(10)\n", "1\t2\n3\t4\n")

	got := unconvert(t, data, WithOutputColumns([]string{"a", "c", "b"}, FillMissing))
	require.Equal(t, "1\t\t2\n3\t\t4\n", got)

	// The side-car lists the filled-in column as generic text.
	r, err := NewReader(bytes.NewReader(data),
		WithOutputColumns([]string{"a", "c", "b"}, FillMissing))
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.ReadHeader())
	cols := r.OutputColumns()
	require.Equal(t, "c", cols[1].Name)
	require.Equal(t, "c\ttext", schema.DescLine(cols[1], "\t"))
}

func TestProjectionExclude(t *testing.T) {
	data := convert(t, twoColDesc, "a\tb\n")

	got := unconvert(t, data, WithOutputColumns([]string{"first"}, Exclude))
	require.Equal(t, "b\n", got)
}

func TestProjectionNoColumns(t *testing.T) {
	data := convert(t, twoColDesc, "a\tb\n")

	r, err := NewReader(bytes.NewReader(data),
		WithOutputColumns([]string{"first", "second"}, Exclude))
	require.NoError(t, err)
	defer r.Close()
	require.ErrorIs(t, r.ReadHeader(), errs.ErrNoColumnsToOutput)
}

func TestVirtualColumns(t *testing.T) {
	data := convert(t, twoColDesc, "a\tb\na\tc\n")

	got := unconvert(t, data,
		WithBasename("export42"),
		WithOutputColumns([]string{VirtualRowColumn, "first", VirtualBasenameColumn}, FailOnInvalid))
	require.Equal(t, "1\ta\texport42\n2\ta\texport42\n", got)
}

func TestTypedValues(t *testing.T) {
	desc := "amount\tdecimal(24,12)\nwhen\tdatetime\ncount\tint\n"
	input := "12.500000000000\t2024-01-02 03:04:05\t-5\n"
	data := convert(t, desc, input)

	rows, r := collectTypedRows(t, data)
	require.Len(t, rows, 1)

	values := rows[0]
	require.Equal(t, 12.5, values[0].Float)
	require.Equal(t, "2024-01-02 03:04:05", values[1].Time.UTC().Format("2006-01-02 15:04:05"))
	require.Equal(t, int64(-5), values[2].Int)
	r.Close()
}

func collectTypedRows(t *testing.T, data []byte, opts ...ReaderOption) ([][]TypedValue, *Reader) {
	t.Helper()

	r, err := NewReader(bytes.NewReader(data), opts...)
	require.NoError(t, err)

	var rows [][]TypedValue
	for {
		row, err := r.NextRow()
		if errors.Is(err, errs.ErrAtEndOfFile) {
			return rows, r
		}
		require.NoError(t, err)
		rows = append(rows, r.Typed(row))
	}
}

func TestRowCountInvariant(t *testing.T) {
	// Sum of per-row flag bytes and value bytes must equal the row body:
	// exercised indirectly by decoding a file with many value repeats.
	input := strings.Repeat("same\tsame\n", 50) + "diff\tother\n"
	data := convert(t, twoColDesc, input)
	require.Equal(t, input, unconvert(t, data))

	stats := mustStats(t, data)
	require.Len(t, stats, 1)
	require.Equal(t, uint32(51), stats[0].NumRows)
}
