//go:build !cgo

package compress

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/adobe/zdw/errs"
)

// newZstdWriter layers the pure-Go zstd encoder over w.
func newZstdWriter(w io.Writer, level int) (io.WriteCloser, error) {
	opts := []zstd.EOption{}
	if level != DefaultLevel {
		opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	}
	zw, err := zstd.NewWriter(w, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd level %d: %v", errs.ErrBadParameter, level, err)
	}

	return zw, nil
}

// newZstdReader layers the pure-Go zstd decoder over r.
func newZstdReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", errs.ErrIoRead, err)
	}

	return zr.IOReadCloser(), nil
}
