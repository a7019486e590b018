package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAlign8(t *testing.T) {
	cases := []struct {
		in, want int64
	}{
		{0, 0},
		{1, 8},
		{7, 8},
		{8, 8},
		{9, 16},
		{16, 16},
		{4095, 4096},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Align8(c.in), "Align8(%d)", c.in)
	}
}

func TestAlignExtent(t *testing.T) {
	require.Equal(t, int64(4096), AlignExtent(1))
	require.Equal(t, int64(4096), AlignExtent(4096))
	require.Equal(t, int64(8192), AlignExtent(4097))
}

func TestEncodingRoundTrip(t *testing.T) {
	b := make([]byte, 32)

	PutU32(b, 0, 0xDEADBEEF)
	require.Equal(t, uint32(0xDEADBEEF), ReadU32(b, 0))

	PutU64(b, 8, 0x1122334455667788)
	require.Equal(t, uint64(0x1122334455667788), ReadU64(b, 8))

	PutI64(b, 16, -4096)
	require.Equal(t, int64(-4096), ReadI64(b, 16))
}

func TestHeaderFieldsDoNotOverlapChecksum(t *testing.T) {
	// Every defined header field must sit inside the checksummed region.
	require.Less(t, CreatedOffset+8, ChecksumOffset)
	require.Equal(t, ChecksumOffset/4, ChecksumDwords)
}
