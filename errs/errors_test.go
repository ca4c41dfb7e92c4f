package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeStability(t *testing.T) {
	// The numeric codes are API-stable; a renumbering is a breaking
	// change for callers scripting around the CLI exit statuses.
	require.Equal(t, 0, Code(nil))
	require.Equal(t, 1, Code(ErrBadParameter))
	require.Equal(t, 9, Code(ErrUnsupportedVersion))
	require.Equal(t, 13, Code(ErrCorruptedData))
	require.Equal(t, 23, Code(ErrAtEndOfFile))
	require.Equal(t, 25, Code(ErrFilesDiffer))
}

func TestCodeMatchesWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("%w: dictionary offset 9 exceeds blob size 7", ErrCorruptedData)
	require.Equal(t, Code(ErrCorruptedData), Code(wrapped))

	doubly := fmt.Errorf("while decoding block 3: %w", wrapped)
	require.Equal(t, Code(ErrCorruptedData), Code(doubly))
}

func TestCodeUnknownError(t *testing.T) {
	require.Equal(t, 99, Code(errors.New("something else")))
}

func TestSentinelsAreDistinct(t *testing.T) {
	require.False(t, errors.Is(ErrCorruptedData, ErrTruncatedOrLonger))
	require.False(t, errors.Is(ErrAtEndOfFile, ErrRowCountMismatch))
}
