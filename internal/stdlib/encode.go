package stdlib

import "github.com/lumenrt/corevm/internal/object"

// encodeRef/encodeU64/decodeU64 are the little-endian word encodings every
// native method here exchanges with the interpreter through, the same
// shape rt/exception.go's encodeRef uses for a NativeFunc's raw return
// bytes.
func encodeRef(r object.Ref) []byte { return encodeU64(uint64(r)) }

func encodeU64(v uint64) []byte {
	return []byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
	}
}

func decodeU64(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
