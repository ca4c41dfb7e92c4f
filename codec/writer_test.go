package codec

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adobe/zdw/schema"
	"github.com/adobe/zdw/section"
)

// nonSeeker hides the Seek method to force the streaming (spill) path.
type nonSeeker struct {
	r io.Reader
}

func (n nonSeeker) Read(p []byte) (int, error) { return n.r.Read(p) }

func mustTable(t *testing.T, desc string) *schema.Table {
	t.Helper()
	table, err := schema.ParseDesc(strings.NewReader(desc))
	require.NoError(t, err)

	return table
}

func convert(t *testing.T, desc, input string, opts ...WriterOption) []byte {
	t.Helper()

	var out bytes.Buffer
	w, err := NewWriter(mustTable(t, desc), &out, opts...)
	require.NoError(t, err)
	require.NoError(t, w.Convert(strings.NewReader(input)))

	return out.Bytes()
}

func convertStreaming(t *testing.T, desc, input string, opts ...WriterOption) []byte {
	t.Helper()

	opts = append(opts, WithSpillLocation(t.TempDir(), "test"))
	var out bytes.Buffer
	w, err := NewWriter(mustTable(t, desc), &out, opts...)
	require.NoError(t, err)
	require.NoError(t, w.Convert(nonSeeker{strings.NewReader(input)}))

	return out.Bytes()
}

// expectedTwoTextColumns is the bit-exact wire image for the two-row,
// two-column text scenario.
func expectedTwoTextColumns() []byte {
	var b []byte
	b = append(b, 10, 0)                    // version
	b = append(b, "first\x00second\x00\x00"...) // column names
	b = append(b, 0, 0)                     // type tags: VARCHAR, VARCHAR
	b = append(b, 10, 0, 10, 0)             // declared char widths
	b = append(b, 2, 0, 0, 0)               // num_rows
	b = append(b, 0, 0x40, 0, 0)            // max_row_size (16 KiB)
	b = append(b, 1)                        // is_final
	b = append(b, 1, 7)                     // offset_width, blob_size
	b = append(b, 0, 'a', 0, 'b', 0, 'c', 0)
	b = append(b, 1, 1)                              // byte widths
	b = append(b, 0, 0, 0, 0, 0, 0, 0, 0)            // baseline[first]
	b = append(b, 0, 0, 0, 0, 0, 0, 0, 0)            // baseline[second]
	b = append(b, 0b11, 0x01, 0x03)                  // row 1
	b = append(b, 0b10, 0x05)                        // row 2

	return b
}

func TestWriterTwoTextColumnsWireExact(t *testing.T) {
	desc := "first\tvarchar(10)\nsecond\tvarchar(10)\n"
	got := convert(t, desc, "a\tb\na\tc\n")
	require.Equal(t, expectedTwoTextColumns(), got)
}

func TestWriterStreamingMatchesSeekable(t *testing.T) {
	desc := "first\tvarchar(10)\nsecond\tvarchar(10)\n"
	input := "a\tb\na\tc\n"
	require.Equal(t, convert(t, desc, input), convertStreaming(t, desc, input))
}

func TestWriterIntegerDeltaCompression(t *testing.T) {
	got := convert(t, "n\tint unsigned\n", "100\n101\n100\n")

	// Header: version, "n\0\0", tag LONG(9), width u16.
	header := []byte{10, 0, 'n', 0, 0, 9, 0, 0}
	require.Equal(t, header, got[:len(header)])

	rest := got[len(header):]
	require.Equal(t, []byte{3, 0, 0, 0}, rest[0:4])    // num_rows
	require.Equal(t, byte(1), rest[8])                 // is_final
	require.Equal(t, byte(0), rest[9])                 // empty dictionary
	require.Equal(t, byte(1), rest[10])                // width[n] = 1
	// Baseline 99 = min-1.
	require.Equal(t, []byte{99, 0, 0, 0, 0, 0, 0, 0}, rest[11:19])
	// Rows: stored values 1, 2, 1, each flagged changed.
	require.Equal(t, []byte{0b1, 1, 0b1, 2, 0b1, 1}, rest[19:])
}

func TestWriterUnusedColumnHasZeroWidth(t *testing.T) {
	desc := "a\tvarchar(10)\nmid\tvarchar(10)\nb\tvarchar(10)\n"
	got := convert(t, desc, "x\t\ty\nx\t\tz\n")

	// Find the column stats: after header and dictionary.
	// Header: 2 + len("a\0mid\0b\0\0") + 3 + 6 = 2+9+3+6 = 20 bytes.
	// Block prelude: 9 bytes. Dictionary "x,y,z": [1,7,0,x,0,y,0,z,0] = 9.
	widths := got[20+9+9 : 20+9+9+3]
	require.Equal(t, []byte{1, 0, 1}, widths)

	// Two baselines only (used columns), then rows with 2 addressable
	// bits in one flag byte.
	rows := got[20+9+9+3+16:]
	require.Equal(t, []byte{0b11, 0x01, 0x03, 0b10, 0x05}, rows)
}

func TestWriterEscapedCharColumn(t *testing.T) {
	got := convert(t, "c\tchar(1)\n", "\\\t\n")

	// Header: version + "c\0\0" + tag CHAR(6) + width u16(1).
	header := []byte{10, 0, 'c', 0, 0, 6, 1, 0}
	require.Equal(t, header, got[:len(header)])

	rest := got[len(header):]
	require.Equal(t, []byte{1, 0, 0, 0}, rest[0:4]) // one row
	require.Equal(t, byte(1), rest[8])              // final
	require.Equal(t, byte(0), rest[9])              // empty dictionary
	require.Equal(t, byte(1), rest[10])             // one-byte width

	// Stored tuple is '\\' | '\t'<<8 = 2396; baseline 2395; stored 1.
	baseline := uint64(rest[11]) | uint64(rest[12])<<8
	require.Equal(t, uint64(2395), baseline)
	require.Equal(t, []byte{0b1, 1}, rest[19:])
}

func TestWriterEmptyInputWritesFinalEmptyBlock(t *testing.T) {
	got := convert(t, "a\tvarchar(10)\n", "")

	// Header: version + "a\0\0" + tag + width = 2+3+1+2 = 8 bytes.
	rest := got[8:]
	require.Equal(t, []byte{0, 0, 0, 0}, rest[0:4]) // zero rows
	require.Equal(t, byte(1), rest[8])              // is_final
	require.Equal(t, byte(0), rest[9])              // empty dictionary
	require.Equal(t, byte(0), rest[10])             // column unused
	require.Len(t, rest, 11)                        // nothing else
}

func TestWriterWrongColumnCount(t *testing.T) {
	var out bytes.Buffer
	w, err := NewWriter(mustTable(t, "a\tvarchar(10)\nb\tvarchar(10)\n"), &out)
	require.NoError(t, err)

	err = w.Convert(strings.NewReader("only-one-column\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "wrong number of columns")
}

func TestWriterSignedIntegerWraps(t *testing.T) {
	got := convert(t, "n\tint\n", "-5\n-3\n")

	// Values wrap to 2^64-5 and 2^64-3; min-1 = 2^64-6; stored 1 and 3;
	// width 1.
	rest := got[8:]
	require.Equal(t, byte(1), rest[10]) // width
	wantBase := ^uint64(5) // 2^64-6
	var gotBase uint64
	for i := 0; i < 8; i++ {
		gotBase |= uint64(rest[11+i]) << (8 * i)
	}
	require.Equal(t, wantBase, gotBase)
	require.Equal(t, []byte{0b1, 1, 0b1, 3}, rest[19:])
}

func TestWriterMetadataRequiresVersion11(t *testing.T) {
	var out bytes.Buffer
	_, err := NewWriter(mustTable(t, "a\tvarchar(10)\n"), &out,
		WithMetadata([]section.MetadataPair{{Key: "k", Value: "v"}}))
	require.Error(t, err)
}
