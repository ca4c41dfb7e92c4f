package endian

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUvarWidth(t *testing.T) {
	tests := []struct {
		value uint64
		want  int
	}{
		{0, 1},
		{1, 1},
		{255, 1},
		{256, 2},
		{65535, 2},
		{65536, 3},
		{1 << 24, 4},
		{1<<32 - 1, 4},
		{1 << 32, 5},
		{1<<64 - 1, 8},
	}

	for _, tc := range tests {
		require.Equal(t, tc.want, UvarWidth(tc.value), "value %d", tc.value)
	}
}

func TestUvarRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 0x7f, 0xff, 0x100, 0xffff, 0x10000, 0xdeadbeef, 1<<56 - 1, 1<<64 - 1}

	for _, v := range values {
		w := UvarWidth(v)
		buf := make([]byte, 8)
		PutUvar(buf, v, w)
		require.Equal(t, v, Uvar(buf, w), "width %d", w)

		appended := AppendUvar(nil, v, w)
		require.Len(t, appended, w)
		require.Equal(t, v, Uvar(appended, w))
	}
}

func TestUvarZeroWidth(t *testing.T) {
	require.Equal(t, uint64(0), Uvar(nil, 0))
	require.Empty(t, AppendUvar(nil, 42, 0))
}

func TestUvarLittleEndianLayout(t *testing.T) {
	buf := make([]byte, 4)
	PutUvar(buf, 0x01020304, 4)
	require.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, buf)
}

func TestEngines(t *testing.T) {
	le := GetLittleEndianEngine()
	b := le.AppendUint32(nil, 0xAABBCCDD)
	require.Equal(t, []byte{0xDD, 0xCC, 0xBB, 0xAA}, b)
	require.Equal(t, uint32(0xAABBCCDD), le.Uint32(b))

	be := GetBigEndianEngine()
	require.Equal(t, uint32(0xDDCCBBAA), be.Uint32(b))
}
