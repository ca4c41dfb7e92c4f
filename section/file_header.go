// Package section defines the wire-level structures of a ZDW file: the
// file header (version, optional metadata, column table) and the per-block
// header (row counts, dictionary prelude, column stats).
package section

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/adobe/zdw/endian"
	"github.com/adobe/zdw/errs"
	"github.com/adobe/zdw/schema"
	"github.com/adobe/zdw/stream"
)

// Supported file format versions.
const (
	// MinVersion is the oldest version the reader accepts. Versions 1-8
	// used a different dictionary layout and are out of scope.
	MinVersion = 9
	// CurrentVersion is what the writer emits by default.
	CurrentVersion = 10
	// MetadataVersion introduced the metadata block; it is the newest
	// version the reader accepts and is opt-in on the writer.
	MetadataVersion = 11
)

// MetadataPair is one key-value pair of the version 11 metadata block.
type MetadataPair struct {
	Key   string
	Value string
}

// FileHeader is the once-per-file header.
//
// Wire layout (all integers little-endian):
//
//	u16  version
//	[v11+] u32 metadata_length, then (key\0 value\0)* of exactly that size
//	(name\0)* \0        column names, empty name terminates
//	u8  x N             column type tags
//	u16 x N             declared char widths
type FileHeader struct {
	Version  uint16
	Metadata []MetadataPair
	Columns  []schema.Column
}

// ValidateMetadata checks the metadata constraints: keys may not contain
// '=' or newline, values may not contain newline.
func ValidateMetadata(pairs []MetadataPair) error {
	for _, p := range pairs {
		if strings.ContainsAny(p.Key, "=\n") {
			return fmt.Errorf("%w: key %q", errs.ErrBadMetadataParam, p.Key)
		}
		if strings.Contains(p.Value, "\n") {
			return fmt.Errorf("%w: value for key %q", errs.ErrBadMetadataParam, p.Key)
		}
	}

	return nil
}

// WriteTo emits the header. Metadata is emitted sorted by key, and only for
// version 11.
func (h *FileHeader) WriteTo(w io.Writer) error {
	engine := endian.GetLittleEndianEngine()

	buf := engine.AppendUint16(nil, h.Version)

	if h.Version >= MetadataVersion {
		if err := ValidateMetadata(h.Metadata); err != nil {
			return err
		}
		pairs := append([]MetadataPair(nil), h.Metadata...)
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })

		var length uint32
		for _, p := range pairs {
			length += uint32(len(p.Key) + len(p.Value) + 2)
		}
		buf = engine.AppendUint32(buf, length)
		for _, p := range pairs {
			buf = append(buf, p.Key...)
			buf = append(buf, 0)
			buf = append(buf, p.Value...)
			buf = append(buf, 0)
		}
	}

	for _, col := range h.Columns {
		buf = append(buf, col.Name...)
		buf = append(buf, 0)
	}
	buf = append(buf, 0)

	for _, col := range h.Columns {
		buf = append(buf, byte(col.Type))
	}
	for _, col := range h.Columns {
		buf = engine.AppendUint16(buf, col.CharWidth)
	}

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: file header: %v", errs.ErrFileCreate, err)
	}

	return nil
}

// ReadFileHeader parses the header from r, rejecting unsupported versions.
func ReadFileHeader(r *stream.Reader) (*FileHeader, error) {
	engine := endian.GetLittleEndianEngine()

	var versionBytes [2]byte
	if err := r.ReadFull(versionBytes[:]); err != nil {
		return nil, err
	}
	h := &FileHeader{Version: engine.Uint16(versionBytes[:])}

	if h.Version < MinVersion || h.Version > MetadataVersion {
		return nil, fmt.Errorf("%w: file version %d, supported %d-%d",
			errs.ErrUnsupportedVersion, h.Version, MinVersion, MetadataVersion)
	}

	if h.Version >= MetadataVersion {
		var err error
		if h.Metadata, err = readMetadata(r); err != nil {
			return nil, err
		}
	}

	var names []string
	for {
		name, err := r.ReadCString()
		if err != nil {
			return nil, err
		}
		if len(name) == 0 {
			break
		}
		names = append(names, string(name))
	}

	types := make([]byte, len(names))
	if len(types) > 0 {
		if err := r.ReadFull(types); err != nil {
			return nil, err
		}
	}
	widths := make([]byte, 2*len(names))
	if len(widths) > 0 {
		if err := r.ReadFull(widths); err != nil {
			return nil, err
		}
	}

	h.Columns = make([]schema.Column, len(names))
	for i, name := range names {
		colType := schema.ColumnType(types[i])
		if !colType.IsValid() {
			return nil, fmt.Errorf("%w: column %q has type tag %d", errs.ErrCorruptedData, name, types[i])
		}
		h.Columns[i] = schema.Column{
			Name:      name,
			Type:      colType,
			CharWidth: engine.Uint16(widths[2*i:]),
		}
	}

	return h, nil
}

func readMetadata(r *stream.Reader) ([]MetadataPair, error) {
	engine := endian.GetLittleEndianEngine()

	var lengthBytes [4]byte
	if err := r.ReadFull(lengthBytes[:]); err != nil {
		return nil, err
	}
	length := engine.Uint32(lengthBytes[:])
	if length == 0 {
		return nil, nil
	}

	raw := make([]byte, length)
	if err := r.ReadFull(raw); err != nil {
		return nil, err
	}

	var pairs []MetadataPair
	for len(raw) > 0 {
		key, rest, ok := cutNul(raw)
		if !ok {
			return nil, fmt.Errorf("%w: unterminated metadata key", errs.ErrCorruptedData)
		}
		value, rest, ok := cutNul(rest)
		if !ok {
			return nil, fmt.Errorf("%w: unterminated metadata value for key %q", errs.ErrCorruptedData, key)
		}
		pairs = append(pairs, MetadataPair{Key: string(key), Value: string(value)})
		raw = rest
	}

	return pairs, nil
}

func cutNul(b []byte) (before, after []byte, found bool) {
	for i, c := range b {
		if c == 0 {
			return b[:i], b[i+1:], true
		}
	}

	return b, nil, false
}
