// Package compress provides the stream compression codecs around the ZDW
// byte format.
//
// The codec itself never compresses anything: it reads from and writes to
// already-decompressed byte streams. These codecs wrap the outermost file
// I/O (the .zdw.gz/.bz2/.xz/.zst/.lz4 containers the CLI tools produce and
// consume) and the writer's pass-1 spill files.
//
// Zstd has two implementations selected at build time: the cgo-backed
// gozstd codec when cgo is available, and a pure-Go fallback otherwise.
package compress

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/adobe/zdw/errs"
)

// Codec wraps an output stream with compression and an input stream with
// the matching decompression.
type Codec interface {
	// Name is the codec identity ("gzip", "bzip2", "xz", "zstd", "lz4", "none").
	Name() string
	// Extension is the filename suffix including the dot; empty for none.
	Extension() string
	// NewWriter layers a compressing writer over w. Closing the returned
	// writer flushes the codec but not w.
	NewWriter(w io.Writer) (io.WriteCloser, error)
	// NewReader layers a decompressing reader over r.
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// DefaultLevel means "use the codec's own default compression level".
const DefaultLevel = 0

// ByName resolves a codec by identity. args is the pass-through compressor
// argument string; the only recognized form is a level flag like "-9".
func ByName(name, args string) (Codec, error) {
	level, err := parseLevelArgs(args)
	if err != nil {
		return nil, err
	}

	switch name {
	case "", "none":
		return NoopCodec{}, nil
	case "gzip":
		return GzipCodec{Level: level}, nil
	case "bzip2":
		return Bzip2Codec{Level: level}, nil
	case "xz":
		return XzCodec{}, nil
	case "zstd":
		return ZstdCodec{Level: level}, nil
	case "lz4":
		return LZ4Codec{Level: level}, nil
	default:
		return nil, fmt.Errorf("%w: unknown compressor %q", errs.ErrBadParameter, name)
	}
}

// ByExtension resolves the codec implied by a file path's suffix; paths
// without a recognized suffix get the no-op codec.
func ByExtension(path string) Codec {
	switch {
	case strings.HasSuffix(path, ".gz"):
		return GzipCodec{}
	case strings.HasSuffix(path, ".bz2"):
		return Bzip2Codec{}
	case strings.HasSuffix(path, ".xz"):
		return XzCodec{}
	case strings.HasSuffix(path, ".zst"):
		return ZstdCodec{}
	case strings.HasSuffix(path, ".lz4"):
		return LZ4Codec{}
	default:
		return NoopCodec{}
	}
}

// parseLevelArgs understands "-N" level flags; anything else is rejected so
// a typo doesn't silently change the output.
func parseLevelArgs(args string) (int, error) {
	args = strings.TrimSpace(args)
	if args == "" {
		return DefaultLevel, nil
	}
	if !strings.HasPrefix(args, "-") {
		return 0, fmt.Errorf("%w: compressor argument %q", errs.ErrBadParameter, args)
	}
	level, err := strconv.Atoi(args[1:])
	if err != nil || level < 1 {
		return 0, fmt.Errorf("%w: compressor argument %q", errs.ErrBadParameter, args)
	}

	return level, nil
}

// nopWriteCloser adapts a plain io.Writer to io.WriteCloser.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// readCloser pairs a reader with a close func for codecs whose readers
// don't implement io.Closer themselves.
type readCloser struct {
	io.Reader
	close func() error
}

func (rc readCloser) Close() error {
	if rc.close == nil {
		return nil
	}

	return rc.close()
}
