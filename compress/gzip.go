package compress

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/adobe/zdw/errs"
)

// GzipCodec is the default container codec, also used for the writer's
// pass-1 spill files.
type GzipCodec struct {
	// Level is the gzip compression level; DefaultLevel uses the library
	// default.
	Level int
}

var _ Codec = GzipCodec{}

func (GzipCodec) Name() string      { return "gzip" }
func (GzipCodec) Extension() string { return ".gz" }

func (c GzipCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	level := c.Level
	if level == DefaultLevel {
		level = gzip.DefaultCompression
	}
	zw, err := gzip.NewWriterLevel(w, level)
	if err != nil {
		return nil, fmt.Errorf("%w: gzip level %d: %v", errs.ErrBadParameter, level, err)
	}

	return zw, nil
}

func (GzipCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: gzip: %v", errs.ErrIoRead, err)
	}

	return zr, nil
}
