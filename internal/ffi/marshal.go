package ffi

import (
	"encoding/binary"

	"github.com/lumenrt/corevm/internal/rterr"
)

// MarshalCallType encodes t as the single 64-bit word spec §6 describes:
// byte 3 (the third-from-low byte, i.e. bits 24..31) is the discriminant;
// for Structure, bits 0..23 carry the field count and `count` further
// words follow, one per field, depth-first.
func MarshalCallType(t CallType) []uint64 {
	word := uint64(t.Discriminant()) << 24
	if t.Kind != TypeStructure {
		return []uint64{word}
	}
	word |= uint64(len(t.Fields)) & 0xFFFFFF
	out := []uint64{word}
	for _, f := range t.Fields {
		out = append(out, MarshalCallType(f)...)
	}
	return out
}

// UnmarshalCallType decodes a CallType from words starting at offset 0,
// returning the type and the number of words consumed.
func UnmarshalCallType(words []uint64) (CallType, int, error) {
	if len(words) == 0 {
		return CallType{}, 0, rterr.ErrWrongFormat
	}
	word := words[0]
	kind := TypeKind(byte(word >> 24))
	if kind != TypeStructure {
		return CallType{Kind: kind}, 1, nil
	}
	count := int(word & 0xFFFFFF)
	consumed := 1
	fields := make([]CallType, 0, count)
	for i := 0; i < count; i++ {
		f, n, err := UnmarshalCallType(words[consumed:])
		if err != nil {
			return CallType{}, 0, err
		}
		fields = append(fields, f)
		consumed += n
	}
	return CallType{Kind: TypeStructure, Fields: fields}, consumed, nil
}

// MarshalConfig projects a Configuration to the native representation spec
// §4.9 describes for a managed System.NonPurusCallConfiguration: one byte
// each for CallConvention/Encoding/ObjectStrategy, a little-endian u32
// argument count, one ByRefArguments byte per argument (1 for by-ref, 0
// otherwise), and a little-endian word stream for ReturnType followed by
// each Arguments entry.
// This is the byte-for-byte contract UnmarshalConfig round-trips against; it
// plays the role the managed object's field layout would if
// NonPurusCallConfiguration's own fields were marshalled one at a time.
func MarshalConfig(c Configuration) []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, byte(c.CallConvention), byte(c.Encoding), byte(c.ObjectStrategy))
	argc := make([]byte, 4)
	binary.LittleEndian.PutUint32(argc, uint32(len(c.Arguments)))
	buf = append(buf, argc...)

	for _, a := range c.Arguments {
		if a.ByRef {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}

	appendWords := func(words []uint64) {
		for _, w := range words {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], w)
			buf = append(buf, b[:]...)
		}
	}
	appendWords(MarshalCallType(c.ReturnType))
	for _, a := range c.Arguments {
		appendWords(MarshalCallType(a.Type))
	}
	return buf
}

// UnmarshalConfig is MarshalConfig's inverse; UnmarshalConfig(MarshalConfig(c))
// is Equal to c for any Configuration (spec §8's marshal/unmarshal
// round-trip property).
func UnmarshalConfig(buf []byte) (Configuration, error) {
	if len(buf) < 7 {
		return Configuration{}, rterr.ErrWrongFileSize
	}
	c := Configuration{
		CallConvention: CallConvention(buf[0]),
		Encoding:       StringEncoding(buf[1]),
		ObjectStrategy: ObjectStrategy(buf[2]),
	}
	argc := int(binary.LittleEndian.Uint32(buf[3:7]))
	off := 7
	if off+argc > len(buf) {
		return Configuration{}, rterr.ErrWrongFileSize
	}
	byRef := make([]bool, argc)
	for i := 0; i < argc; i++ {
		byRef[i] = buf[off+i] != 0
	}
	off += argc

	readWords := func() []uint64 {
		rest := (len(buf) - off) / 8
		words := make([]uint64, rest)
		for i := 0; i < rest; i++ {
			words[i] = binary.LittleEndian.Uint64(buf[off : off+8])
			off += 8
		}
		return words
	}
	words := readWords()

	ret, n, err := UnmarshalCallType(words)
	if err != nil {
		return Configuration{}, err
	}
	words = words[n:]
	c.ReturnType = ret

	c.Arguments = make([]Argument, argc)
	for i := 0; i < argc; i++ {
		t, n, err := UnmarshalCallType(words)
		if err != nil {
			return Configuration{}, err
		}
		words = words[n:]
		c.Arguments[i] = Argument{ByRef: byRef[i], Type: t}
	}
	return c, nil
}
