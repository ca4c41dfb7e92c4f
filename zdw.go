// Package zdw implements the ZDW columnar archival file format for
// row-oriented tabular data.
//
// ZDW rearranges tab-separated rows into structures that generic entropy
// coders (gzip, xz, bzip2) compress well: a globally sorted string
// dictionary shared across all text columns of a block, per-column
// minimum-value baselines with variable byte widths for integers and
// dictionary offsets, and a bit-flagged run-elimination scheme that emits a
// value only when it differs from the previous row.
//
// # Basic usage
//
// Converting a .sql export with its .desc.sql side-car:
//
//	conv := &zdw.FileConverter{Compression: "gzip"}
//	outPath, err := conv.ConvertFile("export.sql")
//
// Reading rows back:
//
//	f, _ := os.Open("export.zdw.gz")
//	defer f.Close()
//	rows, _ := zdw.OpenReader(f, "export.zdw.gz")
//	defer rows.Close()
//	for {
//	    row, err := rows.NextRow()
//	    if errors.Is(err, errs.ErrAtEndOfFile) {
//	        break
//	    }
//	    // row.Fields holds the decoded columns
//	}
//
// # Package structure
//
// This package provides file-oriented wrappers around the codec package,
// which holds the block writer/reader and drivers. The schema, dictionary,
// section, stream, endian and compress packages carry the supporting
// layers; the errs package defines the error taxonomy.
package zdw

import (
	"io"

	"github.com/adobe/zdw/codec"
	"github.com/adobe/zdw/compress"
)

// OpenReader layers decompression (chosen by path suffix) over r and
// returns a row reader. The basename of path feeds the
// virtual_export_basename column.
// Closing the returned reader releases codec state and the decompressor,
// but not r itself.
func OpenReader(r io.Reader, path string, opts ...codec.ReaderOption) (*StreamReader, error) {
	zr, err := compress.ByExtension(path).NewReader(r)
	if err != nil {
		return nil, err
	}

	opts = append([]codec.ReaderOption{codec.WithBasename(BaseName(path))}, opts...)
	cr, err := codec.NewReader(zr, opts...)
	if err != nil {
		zr.Close()
		return nil, err
	}

	return &StreamReader{Reader: cr, decompressor: zr}, nil
}

// StreamReader couples a codec.Reader with the decompressor feeding it.
type StreamReader struct {
	*codec.Reader
	decompressor io.Closer
}

// Close releases the codec state and the decompression layer. Idempotent.
func (s *StreamReader) Close() error {
	err := s.Reader.Close()
	if s.decompressor != nil {
		if cerr := s.decompressor.Close(); err == nil {
			err = cerr
		}
		s.decompressor = nil
	}

	return err
}

// BaseName strips the directory and every extension from the final ".zdw"
// onwards, naming the data set carried by the file.
func BaseName(path string) string {
	base := path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			base = path[i+1:]
			break
		}
	}

	// Cut at the last ".zdw" occurrence.
	for i := len(base) - 4; i >= 0; i-- {
		if base[i:i+4] == ".zdw" {
			return base[:i]
		}
	}

	return base
}
