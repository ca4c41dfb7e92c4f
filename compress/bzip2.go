package compress

import (
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"

	"github.com/adobe/zdw/errs"
)

// Bzip2Codec handles .bz2 containers. The standard library only
// decompresses bzip2, so both directions go through dsnet/compress.
type Bzip2Codec struct {
	Level int
}

var _ Codec = Bzip2Codec{}

func (Bzip2Codec) Name() string      { return "bzip2" }
func (Bzip2Codec) Extension() string { return ".bz2" }

func (c Bzip2Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	cfg := &bzip2.WriterConfig{Level: c.Level}
	if c.Level == DefaultLevel {
		cfg.Level = bzip2.DefaultCompression
	}
	zw, err := bzip2.NewWriter(w, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: bzip2 level %d: %v", errs.ErrBadParameter, cfg.Level, err)
	}

	return zw, nil
}

func (Bzip2Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := bzip2.NewReader(r, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: bzip2: %v", errs.ErrIoRead, err)
	}

	return zr, nil
}
