package bitio

import (
	"encoding/binary"

	"github.com/lumenrt/corevm/internal/rterr"
)

// Cursor reads primitives, bit-flag sets, enums, and tagged sum types off a
// byte slice in declaration order. It is the only surface the rest of the
// core reads the on-disk form through.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor wraps b for sequential reading starting at offset 0.
func NewCursor(b []byte) *Cursor { return &Cursor{buf: b} }

// Pos reports the current read offset.
func (c *Cursor) Pos() int { return c.pos }

// Remaining reports how many bytes are left unread.
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

func (c *Cursor) take(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.buf) {
		return nil, rterr.ErrIndexOutOfRange
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// U8 reads one byte.
func (c *Cursor) U8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// U16 reads a little-endian uint16.
func (c *Cursor) U16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// U32 reads a little-endian uint32.
func (c *Cursor) U32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// U64 reads a little-endian uint64.
func (c *Cursor) U64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// I8/I16/I32/I64 are the signed counterparts, reinterpreting the same
// little-endian bytes.
func (c *Cursor) I8() (int8, error) {
	v, err := c.U8()
	return int8(v), err
}
func (c *Cursor) I16() (int16, error) {
	v, err := c.U16()
	return int16(v), err
}
func (c *Cursor) I32() (int32, error) {
	v, err := c.U32()
	return int32(v), err
}
func (c *Cursor) I64() (int64, error) {
	v, err := c.U64()
	return int64(v), err
}

// CompressedU32 reads one compressed-u32 value.
func (c *Cursor) CompressedU32() (uint32, error) {
	v, n, err := DecodeCompressedU32(c.buf[c.pos:])
	if err != nil {
		return 0, err
	}
	c.pos += n
	return v, nil
}

// CompressedU32AsU64 reads a compressed-u32 and widens it to a u64, the
// shape pointer-copy sizes and LoadArg argument indices decode into in
// internal/container's instruction decoder (register ids there are plain
// little-endian u64 words).
func (c *Cursor) CompressedU32AsU64() (uint64, error) {
	v, err := c.CompressedU32()
	return uint64(v), err
}

// Bytes reads n raw bytes.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	return c.take(n)
}

// String reads a compressed-u32 length followed by that many UTF-8 bytes,
// the encoding used by the string section.
func (c *Cursor) String() (string, error) {
	n, err := c.CompressedU32()
	if err != nil {
		return "", err
	}
	b, err := c.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Enum reads a byte and checks it against [0, bound); used for tag bytes of
// tagged sum types and attribute enums.
func (c *Cursor) Enum(bound uint8, typeName string) (uint8, error) {
	v, err := c.U8()
	if err != nil {
		return 0, err
	}
	if v >= bound {
		return 0, rterr.EnumOutOfBounds{TypeName: typeName}
	}
	return v, nil
}
