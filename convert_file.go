package zdw

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/adobe/zdw/codec"
	"github.com/adobe/zdw/compress"
	"github.com/adobe/zdw/errs"
	"github.com/adobe/zdw/schema"
	"github.com/adobe/zdw/section"
	"github.com/adobe/zdw/stream"
)

// streamOnly hides any Seek method of the wrapped reader.
type streamOnly struct {
	r io.Reader
}

func (s streamOnly) Read(p []byte) (int, error) { return s.r.Read(p) }

// loadDesc reads and parses a description side-car file.
func loadDesc(path string) (*schema.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrFileOpen, path, err)
	}
	defer f.Close()

	return schema.ParseDesc(f)
}

// FileConverter converts .sql export files (with .desc.sql side-cars) into
// .zdw archives.
type FileConverter struct {
	// Compression names the container codec: "gzip" (default), "bzip2",
	// "xz", "zstd", "lz4" or "none".
	Compression string
	// CompressionArgs is the pass-through argument string for the
	// container codec, e.g. "-9".
	CompressionArgs string
	// OutputDir redirects output; empty keeps files next to the source.
	OutputDir string
	// Validate re-decodes the produced archive and byte-compares it with
	// the source data.
	Validate bool
	// RemoveSource deletes the source files after successful conversion.
	RemoveSource bool
	// TrimTrailingSpaces strips trailing spaces from every field.
	TrimTrailingSpaces bool
	// MemoryLimitMB caps the process memory budget (0 keeps the current
	// setting).
	MemoryLimitMB float64
	// Version11 emits the version 11 format with a metadata block.
	Version11 bool
	// Metadata pairs stored in the file header (version 11 only). When
	// empty and Version11 is set, a "<basename>.metadata" side-car is
	// loaded if present.
	Metadata []section.MetadataPair
	// Logger receives progress output; nil is silent.
	Logger log.Logger
}

func (c *FileConverter) logger() log.Logger {
	if c.Logger == nil {
		return log.NewNopLogger()
	}

	return c.Logger
}

func (c *FileConverter) codec() (compress.Codec, error) {
	name := c.Compression
	if name == "" {
		name = "gzip"
	}

	return compress.ByName(name, c.CompressionArgs)
}

// ConvertFile converts the .sql file at sqlPath. The description side-car
// "<base>.desc.sql" must exist next to it. The archive is written as
// "<base>.zdw<ext>" via a temporary ".creating" name, and the final path is
// returned.
func (c *FileConverter) ConvertFile(sqlPath string) (string, error) {
	stub, ok := strings.CutSuffix(sqlPath, ".sql")
	if !ok {
		return "", fmt.Errorf("%w: %s does not end in .sql", errs.ErrFileOpen, sqlPath)
	}

	table, err := loadDesc(stub + ".desc.sql")
	if err != nil {
		return "", err
	}

	in, err := os.Open(sqlPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", errs.ErrFileOpen, sqlPath, err)
	}
	defer in.Close()

	outPath, err := c.convert(table, in, stub)
	if err != nil {
		return "", err
	}

	if c.Validate {
		if err := c.validate(outPath, sqlPath, nil); err != nil {
			return "", err
		}
	}
	if c.RemoveSource {
		os.Remove(sqlPath)
		os.Remove(stub + ".desc.sql")
	}

	return outPath, nil
}

// ConvertStream converts rows read from in (typically standard input).
// basename names the output archive; descPath locates the description
// side-car.
func (c *FileConverter) ConvertStream(in io.Reader, descPath, basename string) (string, error) {
	table, err := loadDesc(descPath)
	if err != nil {
		return "", err
	}

	stub := basename
	if c.OutputDir != "" {
		stub = c.OutputDir + "/" + basename
	}

	// Streamed input always takes the spill path, even when the source
	// happens to be seekable, so validation can re-read the exact rows.
	outPath, spills, err := c.run(table, streamOnly{in}, stub)
	defer func() {
		for _, path := range spills {
			os.Remove(path)
		}
	}()
	if err != nil {
		return "", err
	}

	if c.Validate {
		if err := c.validate(outPath, "", spills); err != nil {
			return "", err
		}
	}

	return outPath, nil
}

// convert drives the codec writer for a seekable source file.
func (c *FileConverter) convert(table *schema.Table, in *os.File, stub string) (string, error) {
	outPath, _, err := c.run(table, in, c.outputBase(stub))

	return outPath, err
}

// run writes the archive to "<outBase>.creating.zdw<ext>" and renames it to
// "<outBase>.zdw<ext>" on success. For non-seekable input under validation
// the pass-1 spill files are kept and returned for the comparison pass.
func (c *FileConverter) run(table *schema.Table, in io.Reader, outBase string) (string, []string, error) {
	cdc, err := c.codec()
	if err != nil {
		return "", nil, err
	}

	finalPath := outBase + ".zdw" + cdc.Extension()
	tempPath := outBase + ".creating.zdw" + cdc.Extension()

	out, err := os.Create(tempPath)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", errs.ErrFileCreate, tempPath, err)
	}
	defer func() {
		if out != nil {
			out.Close()
			os.Remove(tempPath)
		}
	}()

	zw, err := cdc.NewWriter(out)
	if err != nil {
		return "", nil, err
	}

	metadata, err := c.loadMetadata(outBase)
	if err != nil {
		return "", nil, err
	}

	opts := []codec.WriterOption{
		codec.WithLogger(c.logger()),
		codec.WithSpillLocation(dirOf(outBase), BaseName(outBase)),
	}
	if c.TrimTrailingSpaces {
		opts = append(opts, codec.WithTrimTrailingSpaces())
	}
	if c.MemoryLimitMB > 0 {
		opts = append(opts, codec.WithMemoryLimitMB(c.MemoryLimitMB))
	}
	if c.Version11 {
		opts = append(opts, codec.WithVersion11())
		if len(metadata) > 0 {
			opts = append(opts, codec.WithMetadata(metadata))
		}
	} else if len(metadata) > 0 {
		return "", nil, fmt.Errorf("%w: metadata requires the version 11 format", errs.ErrBadMetadataParam)
	}

	_, seekable := in.(io.ReadSeeker)
	if c.Validate && !seekable {
		opts = append(opts, codec.WithKeepSpills())
	}

	w, err := codec.NewWriter(table, zw, opts...)
	if err != nil {
		return "", nil, err
	}

	if err := w.Convert(in); err != nil {
		return "", w.SpillPaths(), err
	}
	if err := zw.Close(); err != nil {
		return "", w.SpillPaths(), fmt.Errorf("%w: %v", errs.ErrFileCreate, err)
	}
	if err := out.Close(); err != nil {
		out = nil
		os.Remove(tempPath)
		return "", w.SpillPaths(), fmt.Errorf("%w: %s: %v", errs.ErrFileCreate, tempPath, err)
	}
	out = nil

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return "", w.SpillPaths(), fmt.Errorf("%w: %s: %v", errs.ErrFileCreate, finalPath, err)
	}

	level.Info(c.logger()).Log("msg", "conversion complete", "rows", w.TotalRows(), "file", finalPath)

	return finalPath, w.SpillPaths(), nil
}

// outputBase resolves the output path stub, honoring OutputDir.
func (c *FileConverter) outputBase(stub string) string {
	if c.OutputDir == "" {
		return stub
	}

	return c.OutputDir + "/" + BaseName(stub)
}

// loadMetadata resolves the metadata pairs: explicit ones win, otherwise,
// for version 11 output, a "<outBase>.metadata" side-car is loaded when
// present.
func (c *FileConverter) loadMetadata(outBase string) ([]section.MetadataPair, error) {
	if len(c.Metadata) > 0 {
		return c.Metadata, nil
	}
	if !c.Version11 {
		return nil, nil
	}

	pairs, err := LoadMetadataFile(outBase + ".metadata")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	return pairs, nil
}

// LoadMetadataFile parses a metadata side-car of "key=value" lines, one
// pair per line; blank lines are skipped. A line without '=' is an error.
func LoadMetadataFile(path string) ([]section.MetadataPair, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrBadMetadataFile, path, err)
	}
	defer f.Close()

	var pairs []section.MetadataPair
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %s line %d has no '='", errs.ErrBadMetadataFile, path, line)
		}
		pairs = append(pairs, section.MetadataPair{Key: key, Value: value})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrBadMetadataFile, path, err)
	}

	return pairs, nil
}

// validate decodes the produced archive and byte-compares it against the
// source rows (trimmed when trimming was requested). spillPaths override
// the source for streamed input.
func (c *FileConverter) validate(zdwPath, sqlPath string, spillPaths []string) error {
	level.Info(c.logger()).Log("msg", "validating", "file", zdwPath)

	f, err := os.Open(zdwPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errs.ErrFileOpen, zdwPath, err)
	}
	defer f.Close()

	reader, err := OpenReader(f, zdwPath)
	if err != nil {
		return err
	}
	defer reader.Close()

	decoded, pw := io.Pipe()
	defer decoded.Close()
	go func() {
		pw.CloseWithError(reader.Unconvert(stream.NewWriter(pw)))
	}()

	var source io.Reader
	if len(spillPaths) > 0 {
		readers := make([]io.Reader, 0, len(spillPaths))
		closers := make([]io.Closer, 0, len(spillPaths))
		defer func() {
			for _, cl := range closers {
				cl.Close()
			}
		}()
		for _, path := range spillPaths {
			sf, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", errs.ErrCannotOpenTempFile, path, err)
			}
			closers = append(closers, sf)
			zr, err := compress.GzipCodec{}.NewReader(sf)
			if err != nil {
				return err
			}
			closers = append(closers, zr)
			readers = append(readers, zr)
		}
		source = io.MultiReader(readers...)
	} else {
		sf, err := os.Open(sqlPath)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", errs.ErrFileOpen, sqlPath, err)
		}
		defer sf.Close()
		if c.TrimTrailingSpaces {
			source = trimmedSource(sf)
		} else {
			source = sf
		}
	}

	if !streamsEqual(decoded, source) {
		return fmt.Errorf("%w: %s", errs.ErrFilesDiffer, zdwPath)
	}

	return nil
}

// trimmedSource re-emits the source rows with trailing spaces trimmed from
// each field, matching what the writer encoded.
func trimmedSource(r io.Reader) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		bw := bufio.NewWriter(pw)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<30)
		var err error
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			fields := bytes.Split(line, []byte("\t"))
			for i, field := range fields {
				if i > 0 {
					if err = bw.WriteByte('\t'); err != nil {
						break
					}
				}
				if _, err = bw.Write(bytes.TrimRight(field, " ")); err != nil {
					break
				}
			}
			if err == nil {
				err = bw.WriteByte('\n')
			}
			if err != nil {
				break
			}
		}
		if err == nil {
			err = scanner.Err()
		}
		if err == nil {
			err = bw.Flush()
		}
		pw.CloseWithError(err)
	}()

	return pr
}

// streamsEqual byte-compares two streams.
func streamsEqual(a, b io.Reader) bool {
	ba := bufio.NewReaderSize(a, 64*1024)
	bb := bufio.NewReaderSize(b, 64*1024)
	bufA := make([]byte, 64*1024)
	bufB := make([]byte, 64*1024)

	for {
		na, errA := io.ReadFull(ba, bufA)
		nb, errB := io.ReadFull(bb, bufB)
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false
		}
		endA := errors.Is(errA, io.EOF) || errors.Is(errA, io.ErrUnexpectedEOF)
		endB := errors.Is(errB, io.EOF) || errors.Is(errB, io.ErrUnexpectedEOF)
		if endA || endB {
			return endA && endB && na == nb
		}
	}
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}

	return "."
}
