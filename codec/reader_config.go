package codec

import (
	"github.com/go-kit/log"
	"golang.org/x/text/encoding"

	"github.com/adobe/zdw/internal/options"
	"github.com/adobe/zdw/stream"
)

// InclusionRule governs how a caller-supplied column list is matched
// against the file's columns.
type InclusionRule int

const (
	// FailOnInvalid requires every requested name to exist exactly once.
	FailOnInvalid InclusionRule = iota
	// SkipInvalid ignores duplicates and absent names.
	SkipInvalid
	// Exclude treats the list as a deny list; output is the remaining
	// columns in file-declaration order.
	Exclude
	// FillMissing emits absent names as empty text columns.
	FillMissing
)

// ReaderConfig holds the reader's tunables. Construct through NewReader
// with functional options.
type ReaderConfig struct {
	logger        log.Logger
	bufferSize    int
	basename      string
	outputEnc     *encoding.Encoder
	projection    []string
	rule          InclusionRule
	hasProjection bool
}

// ReaderOption configures a Reader.
type ReaderOption = options.Option[*ReaderConfig]

func newReaderConfig() *ReaderConfig {
	return &ReaderConfig{
		logger:     log.NewNopLogger(),
		bufferSize: stream.DefaultBufferSize,
	}
}

// WithReaderLogger directs status output and parse warnings to logger.
func WithReaderLogger(logger log.Logger) ReaderOption {
	return options.NoError(func(cfg *ReaderConfig) {
		cfg.logger = logger
	})
}

// WithBufferSize sets the input buffer capacity.
func WithBufferSize(size int) ReaderOption {
	return options.NoError(func(cfg *ReaderConfig) {
		if size > 0 {
			cfg.bufferSize = size
		}
	})
}

// WithBasename supplies the source-file basename reported by the
// virtual_export_basename column.
func WithBasename(name string) ReaderOption {
	return options.NoError(func(cfg *ReaderConfig) {
		cfg.basename = name
	})
}

// WithOutputColumns projects and reorders the output to the named columns
// under the given inclusion rule. Names match case-insensitively; for
// name-driven rules each column's output position is the position of its
// first occurrence in the list.
func WithOutputColumns(names []string, rule InclusionRule) ReaderOption {
	return options.NoError(func(cfg *ReaderConfig) {
		cfg.projection = names
		cfg.rule = rule
		cfg.hasProjection = true
	})
}

// WithOutputEncoding re-encodes text column values from the stored bytes
// into the given character encoding on output.
func WithOutputEncoding(enc encoding.Encoding) ReaderOption {
	return options.NoError(func(cfg *ReaderConfig) {
		cfg.outputEnc = enc.NewEncoder()
	})
}
