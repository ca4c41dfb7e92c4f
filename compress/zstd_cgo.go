//go:build cgo

package compress

import (
	"io"

	"github.com/valyala/gozstd"
)

// newZstdWriter layers the cgo-backed zstd encoder over w.
func newZstdWriter(w io.Writer, level int) (io.WriteCloser, error) {
	if level == DefaultLevel {
		level = gozstd.DefaultCompressionLevel
	}

	return gozstd.NewWriterLevel(w, level), nil
}

// newZstdReader layers the cgo-backed zstd decoder over r.
func newZstdReader(r io.Reader) (io.ReadCloser, error) {
	zr := gozstd.NewReader(r)

	return readCloser{
		Reader: zr,
		close: func() error {
			zr.Release()
			return nil
		},
	}, nil
}
