package codec

import (
	"fmt"

	"github.com/go-kit/log"

	"github.com/adobe/zdw/errs"
	"github.com/adobe/zdw/internal/memory"
	"github.com/adobe/zdw/internal/options"
	"github.com/adobe/zdw/section"
)

// WriterConfig holds the writer's tunables. Construct through NewWriter
// with functional options.
type WriterConfig struct {
	logger             log.Logger
	version            uint16
	metadata           []section.MetadataPair
	trimTrailingSpaces bool
	spillDir           string
	spillBase          string
	keepSpills         bool
}

// WriterOption configures a Writer.
type WriterOption = options.Option[*WriterConfig]

func newWriterConfig() *WriterConfig {
	return &WriterConfig{
		logger:    log.NewNopLogger(),
		version:   section.CurrentVersion,
		spillDir:  ".",
		spillBase: "zdw",
	}
}

// WithLogger directs status output and warnings to logger.
func WithLogger(logger log.Logger) WriterOption {
	return options.NoError(func(cfg *WriterConfig) {
		cfg.logger = logger
	})
}

// WithVersion11 switches output to the version 11 format, which carries a
// metadata block in the file header.
func WithVersion11() WriterOption {
	return options.NoError(func(cfg *WriterConfig) {
		cfg.version = section.MetadataVersion
	})
}

// WithMetadata attaches key-value metadata pairs. Requires WithVersion11;
// NewWriter rejects invalid pairs and metadata without version 11.
func WithMetadata(pairs []section.MetadataPair) WriterOption {
	return options.New(func(cfg *WriterConfig) error {
		if err := section.ValidateMetadata(pairs); err != nil {
			return err
		}
		cfg.metadata = append(cfg.metadata, pairs...)

		return nil
	})
}

// WithTrimTrailingSpaces strips trailing spaces from every field before
// encoding.
func WithTrimTrailingSpaces() WriterOption {
	return options.NoError(func(cfg *WriterConfig) {
		cfg.trimTrailingSpaces = true
	})
}

// WithMemoryLimitMB caps the process memory budget that triggers block
// rotation. The budget is process-wide.
func WithMemoryLimitMB(mb float64) WriterOption {
	return options.New(func(cfg *WriterConfig) error {
		if !memory.SetThresholdMB(mb) {
			return fmt.Errorf("%w: memory limit %v MB", errs.ErrBadParameter, mb)
		}

		return nil
	})
}

// WithSpillLocation places pass-1 spill files for non-seekable input under
// dir, named after base.
func WithSpillLocation(dir, base string) WriterOption {
	return options.NoError(func(cfg *WriterConfig) {
		if dir != "" {
			cfg.spillDir = dir
		}
		if base != "" {
			cfg.spillBase = base
		}
	})
}

// WithKeepSpills retains spill files after conversion so a validation pass
// can re-read the streamed input; the caller removes them via
// Writer.SpillPaths.
func WithKeepSpills() WriterOption {
	return options.NoError(func(cfg *WriterConfig) {
		cfg.keepSpills = true
	})
}
