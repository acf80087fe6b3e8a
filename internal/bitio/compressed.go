// Package bitio implements the primitive codec the binary assembly format
// is built on: a compressed-u32 integer encoding and a typed cursor over a
// byte slice, in the spirit of the teacher's own hand-rolled byte readers
// (std/compiler/parser.go, std/compiler/ir.go) rather than a generic
// encoding/gob-style reflection walk.
package bitio

import "github.com/lumenrt/corevm/internal/rterr"

// Compressed-u32 tag bits, per spec §4.1: values <= 0x7F encode in one
// byte; <= 0x3FFF in two bytes (high two bits "10"); <= 0x1FFFFFFF in four
// bytes (high three bits "110"); anything larger fails.
const (
	tag1Mask  = 0x80
	tag1Value = 0x00
	tag2Mask  = 0xC0
	tag2Value = 0x80
	tag4Mask  = 0xE0
	tag4Value = 0xC0

	max1 = 0x7F
	max2 = 0x3FFF
	max4 = 0x1FFFFFFF
)

// EncodeCompressedU32 appends the compressed encoding of v to dst and
// returns the extended slice. It returns rterr.ErrIntOutOfRange if v
// exceeds the largest representable value (0x1FFFFFFF).
func EncodeCompressedU32(dst []byte, v uint32) ([]byte, error) {
	switch {
	case v <= max1:
		return append(dst, byte(v)), nil
	case v <= max2:
		return append(dst, byte(tag2Value|(v>>8)), byte(v)), nil
	case v <= max4:
		return append(dst,
			byte(tag4Value|(v>>24)),
			byte(v>>16),
			byte(v>>8),
			byte(v),
		), nil
	default:
		return dst, rterr.ErrIntOutOfRange
	}
}

// DecodeCompressedU32 reads a compressed u32 from the front of b, returning
// the value and the number of bytes consumed.
func DecodeCompressedU32(b []byte) (uint32, int, error) {
	if len(b) == 0 {
		return 0, 0, rterr.ErrIndexOutOfRange
	}
	first := b[0]
	switch {
	case first&tag1Mask == tag1Value:
		return uint32(first), 1, nil
	case first&tag2Mask == tag2Value:
		if len(b) < 2 {
			return 0, 0, rterr.ErrIndexOutOfRange
		}
		v := uint32(first&^tag2Mask)<<8 | uint32(b[1])
		return v, 2, nil
	case first&tag4Mask == tag4Value:
		if len(b) < 4 {
			return 0, 0, rterr.ErrIndexOutOfRange
		}
		v := uint32(first&^tag4Mask)<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
		return v, 4, nil
	default:
		return 0, 0, rterr.ErrIntOutOfRange
	}
}
