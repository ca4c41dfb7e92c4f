// Package errs defines the error taxonomy shared by the ZDW writer, reader
// and command-line tools.
//
// Every failure mode the codec can surface has a package-level sentinel that
// callers test with errors.Is. Call sites wrap sentinels with context:
//
//	return fmt.Errorf("%w: dictionary offset %d exceeds blob size %d", errs.ErrCorruptedData, off, size)
//
// Each sentinel carries a stable numeric code (see Code) so the CLI tools can
// exit with the same status numbers across releases. ErrAtEndOfFile is not a
// failure: like io.EOF, it terminates row iteration.
package errs

import "errors"

// Sentinel errors for all codec failure modes.
var (
	// CLI-surface errors.
	ErrBadParameter      = errors.New("bad parameter")
	ErrMissingArgument   = errors.New("missing argument after parameter")
	ErrTooManyInputFiles = errors.New("too many input files")
	ErrNoInputFiles      = errors.New("no input files")

	// Stream-surface errors.
	ErrIoRead            = errors.New("read from input stream failed")
	ErrFileCreate        = errors.New("could not create output file")
	ErrFileOpen          = errors.New("could not open file")
	ErrCannotOpenTempFile = errors.New("could not open temp file")

	// Lifecycle errors.
	ErrUnsupportedVersion = errors.New("unsupported ZDW version")
	ErrHeaderAlreadyRead  = errors.New("header already read")
	ErrHeaderNotReadYet   = errors.New("header not read yet")

	// Format errors.
	ErrTruncatedOrLonger     = errors.New("file is longer than the final block indicates")
	ErrCorruptedData         = errors.New("corrupted data")
	ErrRowCountMismatch      = errors.New("row count does not match block header")
	ErrWrongColumnCountOnRow = errors.New("wrong number of columns on row")

	// Projection errors.
	ErrBadRequestedColumn = errors.New("requested column is invalid")
	ErrNoColumnsToOutput  = errors.New("no columns to output")

	// Schema side-car errors.
	ErrUnexpectedDescType      = errors.New("unexpected column type in description")
	ErrDescFileMissingTypeInfo = errors.New("description file is missing type info")

	ErrOutOfMemory      = errors.New("out of memory")
	ErrBadMetadataParam = errors.New("invalid metadata parameter")
	ErrBadMetadataFile  = errors.New("invalid metadata file")

	// ErrAtEndOfFile is the row-iteration terminator, not a failure.
	ErrAtEndOfFile = errors.New("at end of file")

	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrFilesDiffer is returned by the writer's validation mode when the
	// decoded output does not byte-match the source data.
	ErrFilesDiffer = errors.New("converted data differs from source")
)

// codes maps sentinels to their stable numeric identity. The values are
// wire/API-stable; do not renumber.
var codes = map[error]int{
	ErrBadParameter:            1,
	ErrMissingArgument:         2,
	ErrTooManyInputFiles:       3,
	ErrNoInputFiles:            4,
	ErrIoRead:                  5,
	ErrFileCreate:              6,
	ErrFileOpen:                7,
	ErrCannotOpenTempFile:      8,
	ErrUnsupportedVersion:      9,
	ErrHeaderAlreadyRead:       10,
	ErrHeaderNotReadYet:        11,
	ErrTruncatedOrLonger:       12,
	ErrCorruptedData:           13,
	ErrRowCountMismatch:        14,
	ErrWrongColumnCountOnRow:   15,
	ErrBadRequestedColumn:      16,
	ErrNoColumnsToOutput:       17,
	ErrUnexpectedDescType:      18,
	ErrDescFileMissingTypeInfo: 19,
	ErrOutOfMemory:             20,
	ErrBadMetadataParam:        21,
	ErrBadMetadataFile:         22,
	ErrAtEndOfFile:             23,
	ErrUnsupportedOperation:    24,
	ErrFilesDiffer:             25,
}

const unknownErrorCode = 99

// Code returns the stable numeric code for err, matching against the
// sentinel chain with errors.Is. nil maps to 0; an unrecognized error maps
// to 99.
func Code(err error) int {
	if err == nil {
		return 0
	}
	for sentinel, code := range codes {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return unknownErrorCode
}
