package compress

import "io"

// ZstdCodec handles .zst containers. The implementation is selected at
// build time: cgo builds use the libzstd binding, others a pure-Go codec.
type ZstdCodec struct {
	Level int
}

var _ Codec = ZstdCodec{}

func (ZstdCodec) Name() string      { return "zstd" }
func (ZstdCodec) Extension() string { return ".zst" }

func (c ZstdCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return newZstdWriter(w, c.Level)
}

func (ZstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return newZstdReader(r)
}
