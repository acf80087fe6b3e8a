package bitio

import "testing"

import "github.com/stretchr/testify/require"

func TestCompressedU32Boundaries(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want uint32
	}{
		{"one-byte-max", []byte{0x7F}, 0x7F},
		{"two-byte-max", []byte{0xBF, 0xFF}, 0x3FFF},
		{"four-byte-max", []byte{0xDF, 0xFF, 0xFF, 0xFF}, 0x1FFFFFFF},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, n, err := DecodeCompressedU32(tc.in)
			require.NoError(t, err)
			require.Equal(t, len(tc.in), n)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCompressedU32RejectsOverflow(t *testing.T) {
	_, err := EncodeCompressedU32(nil, 0x20000000)
	require.Error(t, err)
}

func TestCompressedU32RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 0x7F, 0x80, 0x3FFF, 0x4000, 0x1FFFFFFF} {
		enc, err := EncodeCompressedU32(nil, v)
		require.NoError(t, err)
		got, n, err := DecodeCompressedU32(enc)
		require.NoError(t, err)
		require.Equal(t, len(enc), n)
		require.Equal(t, v, got)
	}
}
