package compress

import (
	"fmt"
	"io"

	"github.com/ulikunitz/xz"

	"github.com/adobe/zdw/errs"
)

// XzCodec handles .xz containers, the recommended archival wrapper: the
// dictionary's sorted layout is arranged for xz to capitalize on.
type XzCodec struct{}

var _ Codec = XzCodec{}

func (XzCodec) Name() string      { return "xz" }
func (XzCodec) Extension() string { return ".xz" }

func (XzCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	zw, err := xz.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("%w: xz: %v", errs.ErrFileCreate, err)
	}

	return zw, nil
}

func (XzCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := xz.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: xz: %v", errs.ErrIoRead, err)
	}

	return readCloser{Reader: zr}, nil
}
