package compress

import (
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/adobe/zdw/errs"
)

// LZ4Codec handles .lz4 containers for fast, lighter compression.
type LZ4Codec struct {
	Level int
}

var _ Codec = LZ4Codec{}

func (LZ4Codec) Name() string      { return "lz4" }
func (LZ4Codec) Extension() string { return ".lz4" }

func (c LZ4Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	zw := lz4.NewWriter(w)
	if c.Level != DefaultLevel {
		level := lz4.CompressionLevel(1 << (8 + c.Level))
		if err := zw.Apply(lz4.CompressionLevelOption(level)); err != nil {
			return nil, fmt.Errorf("%w: lz4 level %d: %v", errs.ErrBadParameter, c.Level, err)
		}
	}

	return zw, nil
}

func (LZ4Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return readCloser{Reader: lz4.NewReader(r)}, nil
}
