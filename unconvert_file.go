package zdw

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/adobe/zdw/codec"
	"github.com/adobe/zdw/errs"
	"github.com/adobe/zdw/schema"
	"github.com/adobe/zdw/stream"
)

// FileUnconverter decodes .zdw archives back into tab-separated .sql files
// with their description side-cars.
type FileUnconverter struct {
	// OutputDir redirects output; empty keeps files next to the archive.
	OutputDir string
	// AppendSuffix is appended to the output basename.
	AppendSuffix string
	// NoExtension suppresses the default ".sql" output extension.
	NoExtension bool
	// ToStdout streams rows to Stdout instead of files; no description
	// side-car is written unless DescOnly is also set.
	ToStdout bool
	// Stdout receives rows in ToStdout mode; defaults to os.Stdout.
	Stdout io.Writer
	// Columns projects the output under Rule; nil decodes every column.
	Columns []string
	Rule    codec.InclusionRule
	// DescOnly writes only the description side-car.
	DescOnly bool
	// TestOnly verifies file integrity without materializing rows.
	TestOnly bool
	// StatsOnly scans block statistics without materializing rows.
	StatsOnly bool
	// Logger receives progress output; nil is silent.
	Logger log.Logger

	outDir string // resolved per call: OutputDir or the archive's directory
}

func (u *FileUnconverter) logger() log.Logger {
	if u.Logger == nil {
		return log.NewNopLogger()
	}

	return u.Logger
}

func (u *FileUnconverter) readerOptions(basename string) []codec.ReaderOption {
	opts := []codec.ReaderOption{
		codec.WithReaderLogger(u.logger()),
		codec.WithBasename(basename),
	}
	if u.Columns != nil {
		opts = append(opts, codec.WithOutputColumns(u.Columns, u.Rule))
	}

	return opts
}

// UnconvertFile decodes the archive at zdwPath. Depending on the mode this
// writes "<dir>/<base><suffix>.sql" plus "<dir>/<base><suffix>.desc.sql",
// streams rows to standard output, or only verifies/scans the file.
func (u *FileUnconverter) UnconvertFile(zdwPath string) error {
	f, err := os.Open(zdwPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errs.ErrFileOpen, zdwPath, err)
	}
	defer f.Close()

	return u.Unconvert(f, zdwPath)
}

// Unconvert decodes the archive read from in; path names it for output
// naming and compression sniffing (pass "-" or "" for standard input).
func (u *FileUnconverter) Unconvert(in io.Reader, path string) error {
	basename := BaseName(path)
	if basename == "" || basename == "-" {
		basename = "stdin"
	}
	outDir := u.OutputDir
	if outDir == "" {
		outDir = dirOf(path)
	}
	u.outDir = outDir

	reader, err := OpenReader(in, path, u.readerOptions(basename)...)
	if err != nil {
		return err
	}
	defer reader.Close()

	switch {
	case u.TestOnly:
		if err := reader.Test(); err != nil {
			return err
		}
		level.Info(u.logger()).Log("msg", "tested good", "file", path)
		return nil

	case u.StatsOnly:
		stats, err := reader.Stats()
		if err != nil {
			return err
		}
		for i, block := range stats {
			level.Info(u.logger()).Log("msg", "block statistics", "block", i,
				"rows", block.NumRows, "max_row_size", block.MaxRowSize,
				"dictionary_bytes", block.DictionarySize, "used_columns", block.UsedColumns,
				"delta_bits_set", block.DeltaBitsSet, "final", block.IsFinal)
		}
		return nil

	case u.DescOnly:
		if err := reader.ReadHeader(); err != nil {
			return err
		}
		if u.ToStdout {
			return schema.WriteDesc(u.stdout(), reader.OutputColumns())
		}
		return u.writeDescFile(reader, basename)

	case u.ToStdout:
		return u.unconvertRows(reader, u.stdout())

	default:
		if err := reader.ReadHeader(); err != nil {
			return err
		}
		if err := u.writeDescFile(reader, basename); err != nil {
			return err
		}

		outPath := u.outputPath(basename, u.extension())
		out, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", errs.ErrFileCreate, outPath, err)
		}
		defer out.Close()
		level.Info(u.logger()).Log("msg", "writing", "file", outPath)

		return u.unconvertRows(reader, out)
	}
}

// unconvertRows streams every decoded row to out, honoring the projection
// plan's output ordering.
func (u *FileUnconverter) unconvertRows(reader *StreamReader, out io.Writer) error {
	if err := maybeReadHeader(reader); err != nil {
		return err
	}

	order := reader.OutputOrder()
	if order == nil {
		return reader.Unconvert(stream.NewWriter(out))
	}

	ow, err := stream.NewOrderedWriter(out, order)
	if err != nil {
		return err
	}
	defer ow.Close()

	return reader.Unconvert(ow)
}

func maybeReadHeader(reader *StreamReader) error {
	err := reader.ReadHeader()
	if err != nil && !errors.Is(err, errs.ErrHeaderAlreadyRead) {
		return err
	}

	return nil
}

// writeDescFile emits the description side-car for the output columns.
func (u *FileUnconverter) writeDescFile(reader *StreamReader, basename string) error {
	descPath := u.outputPath(basename, ".desc"+u.extension())
	f, err := os.Create(descPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errs.ErrFileCreate, descPath, err)
	}
	defer f.Close()

	return schema.WriteDesc(f, reader.OutputColumns())
}

func (u *FileUnconverter) extension() string {
	if u.NoExtension {
		return ""
	}

	return ".sql"
}

func (u *FileUnconverter) outputPath(basename, ext string) string {
	dir := u.outDir
	if dir == "" {
		dir = "."
	}

	return dir + "/" + basename + u.AppendSuffix + ext
}

func (u *FileUnconverter) stdout() io.Writer {
	if u.Stdout != nil {
		return u.Stdout
	}

	return os.Stdout
}
