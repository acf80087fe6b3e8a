package container

import (
	"github.com/lumenrt/corevm/internal/bitio"
	"github.com/lumenrt/corevm/internal/ffi"
	"github.com/lumenrt/corevm/internal/instr"
	"github.com/lumenrt/corevm/internal/rterr"
	"github.com/lumenrt/corevm/internal/token"
)

// decodeInstructions reads count bytecode instructions in sequence: a tag
// byte followed by fixed operands per variant. remapString translates an on-disk StringRef
// (string-section byte offset) to the Assembly's own positional string
// index, since OpLoadString's Val is read at interpret time through
// Assembly.GetString(index) rather than re-parsing the string section
// (internal/rt/interp.go).
func decodeInstructions(c *bitio.Cursor, count uint32, remapString func(uint32) (uint32, error)) ([]instr.Instruction, error) {
	out := make([]instr.Instruction, count)
	for i := range out {
		in, err := decodeInstruction(c, remapString)
		if err != nil {
			return nil, err
		}
		out[i] = in
	}
	return out, nil
}

func reg(c *bitio.Cursor) (uint64, error) { return c.U64() }

func typeToken(c *bitio.Cursor) (token.Token, error) {
	v, err := c.U32()
	return token.Token(v), err
}

func methodRef(c *bitio.Cursor) (instr.MethodRef, error) {
	idx, err := c.U32()
	if err != nil {
		return instr.MethodRef{}, err
	}
	specific, err := c.U8()
	if err != nil {
		return instr.MethodRef{}, err
	}
	var args []token.Token
	if specific != 0 {
		n, err := c.CompressedU32()
		if err != nil {
			return instr.MethodRef{}, err
		}
		args = make([]token.Token, n)
		for i := range args {
			args[i], err = typeToken(c)
			if err != nil {
				return instr.MethodRef{}, err
			}
		}
	}
	return instr.MethodRef{Index: idx, Specific: specific != 0, TypeArgs: args}, nil
}

func jumpTarget(c *bitio.Cursor) (instr.JumpTarget, error) {
	kind, err := c.Enum(3, "JumpKind")
	if err != nil {
		return instr.JumpTarget{}, err
	}
	off, err := c.U32()
	if err != nil {
		return instr.JumpTarget{}, err
	}
	return instr.JumpTarget{Kind: instr.JumpKind(kind), Offset: off}, nil
}

func regList(c *bitio.Cursor) ([]uint64, error) {
	n, err := c.CompressedU32()
	if err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		out[i], err = reg(c)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeInstruction(c *bitio.Cursor, remapString func(uint32) (uint32, error)) (instr.Instruction, error) {
	opByte, err := c.U8()
	if err != nil {
		return instr.Instruction{}, err
	}
	op := instr.Op(opByte)
	in := instr.Instruction{Op: op}

	switch op {
	case instr.OpLoadTrue, instr.OpLoadFalse, instr.OpLoadThis:
		in.RegisterAddr, err = reg(c)

	case instr.OpLoadU8, instr.OpLoadU16, instr.OpLoadU32, instr.OpLoadU64,
		instr.OpLoadI8, instr.OpLoadI16, instr.OpLoadI32, instr.OpLoadI64:
		in.RegisterAddr, err = reg(c)
		if err == nil {
			in.Val, err = c.U64()
		}

	case instr.OpLoadString:
		in.RegisterAddr, err = reg(c)
		if err == nil {
			var ref uint32
			ref, err = c.CompressedU32()
			if err == nil {
				var idx uint32
				idx, err = remapString(ref)
				in.Val = uint64(idx)
			}
		}

	case instr.OpLoadTypeValueSize:
		in.RegisterAddr, err = reg(c)
		if err == nil {
			in.TypeRef, err = typeToken(c)
		}

	case instr.OpReadPointerTo:
		in.Ptr, err = reg(c)
		if err == nil {
			in.Destination, err = reg(c)
		}
		if err == nil {
			in.Size, err = c.CompressedU32AsU64()
		}

	case instr.OpWritePointer:
		in.Ptr, err = reg(c)
		if err == nil {
			in.Source, err = reg(c)
		}
		if err == nil {
			in.Size, err = c.CompressedU32AsU64()
		}

	case instr.OpIsAllZero:
		in.RegisterAddr, err = reg(c)
		if err == nil {
			in.ToCheck, err = reg(c)
		}

	case instr.OpNewObject:
		in.RegisterAddr, err = reg(c)
		if err == nil {
			in.TypeRef, err = typeToken(c)
		}
		if err == nil {
			in.Ctor, err = typeToken(c)
		}
		if err == nil {
			in.Args, err = regList(c)
		}

	case instr.OpNewArray:
		in.RegisterAddr, err = reg(c)
		if err == nil {
			in.TypeRef, err = typeToken(c)
		}
		if err == nil {
			in.Len, err = c.U64()
		}

	case instr.OpNewDynamicArray:
		in.RegisterAddr, err = reg(c)
		if err == nil {
			in.TypeRef, err = typeToken(c)
		}
		if err == nil {
			in.LenAddr, err = reg(c)
		}

	case instr.OpInstanceCall:
		var structRecv uint8
		structRecv, err = c.U8()
		if err == nil {
			in.StructReceiver = structRecv != 0
			in.Val1, err = reg(c)
		}
		if err == nil {
			in.TypeRef, err = typeToken(c)
		}
		if err == nil {
			in.Method, err = methodRef(c)
		}
		if err == nil {
			in.Args, err = regList(c)
		}
		if err == nil {
			in.RetAt, err = reg(c)
		}

	case instr.OpStaticCall:
		in.TypeRef, err = typeToken(c)
		if err == nil {
			in.Method, err = methodRef(c)
		}
		if err == nil {
			in.Args, err = regList(c)
		}
		if err == nil {
			in.RetAt, err = reg(c)
		}

	case instr.OpStaticNonPurusCall:
		in.ConfigImm, err = decodeConfiguration(c)
		if err == nil {
			in.FPointer, err = c.U64()
		}
		if err == nil {
			in.Args, err = regList(c)
		}
		if err == nil {
			in.RetAt, err = reg(c)
		}

	case instr.OpDynamicNonPurusCall:
		in.FPointerAddr, err = reg(c)
		if err == nil {
			in.ConfigAddr, err = reg(c)
		}
		if err == nil {
			in.Args, err = regList(c)
		}
		if err == nil {
			in.RetAt, err = reg(c)
		}

	case instr.OpLoadNonPurusCallConfiguration:
		in.RegisterAddr, err = reg(c)
		if err == nil {
			in.ConfigImm, err = decodeConfiguration(c)
		}

	case instr.OpLoadArg:
		in.RegisterAddr, err = reg(c)
		if err == nil {
			in.Val, err = c.CompressedU32AsU64()
		}

	case instr.OpLoadStatic:
		in.RegisterAddr, err = reg(c)
		if err == nil {
			in.TypeRef, err = typeToken(c)
		}
		if err == nil {
			in.FieldRef, err = typeToken(c)
		}

	case instr.OpSetStaticField:
		in.RegisterAddr, err = reg(c)
		if err == nil {
			in.TypeRef, err = typeToken(c)
		}
		if err == nil {
			in.FieldRef, err = typeToken(c)
		}

	case instr.OpLoadField:
		var structRecv uint8
		structRecv, err = c.U8()
		if err == nil {
			in.StructReceiver = structRecv != 0
			in.RegisterAddr, err = reg(c)
		}
		if err == nil {
			in.Val1, err = reg(c)
		}
		if err == nil {
			in.TypeRef, err = typeToken(c)
		}
		if err == nil {
			in.FieldRef, err = typeToken(c)
		}

	case instr.OpSetThisField:
		var structRecv uint8
		structRecv, err = c.U8()
		if err == nil {
			in.StructReceiver = structRecv != 0
			in.RegisterAddr, err = reg(c)
		}
		if err == nil {
			in.TypeRef, err = typeToken(c)
		}
		if err == nil {
			in.FieldRef, err = typeToken(c)
		}

	case instr.OpThrow:
		in.Val1, err = reg(c)

	case instr.OpReturnVal:
		in.RegisterAddr, err = reg(c)

	case instr.OpJump, instr.OpJumpIfTrue, instr.OpJumpIfAllZero, instr.OpJumpIfNotAllZero:
		if op != instr.OpJump {
			in.ToCheck, err = reg(c)
		}
		if err == nil {
			in.Target, err = jumpTarget(c)
		}

	default:
		return instr.Instruction{}, rterr.EnumOutOfBounds{TypeName: "Op"}
	}
	if err != nil {
		return instr.Instruction{}, err
	}
	return in, nil
}

// decodeConfiguration reads a NonPurusCallConfiguration inline at a call
// site, the format LoadNonPurusCallConfiguration inlines at build time
//.
func decodeConfiguration(c *bitio.Cursor) (*ffi.Configuration, error) {
	cc, err := c.Enum(7, "CallConvention")
	if err != nil {
		return nil, err
	}
	ret, err := decodeCallType(c)
	if err != nil {
		return nil, err
	}
	enc, err := c.Enum(5, "StringEncoding")
	if err != nil {
		return nil, err
	}
	strat, err := c.Enum(2, "ObjectStrategy")
	if err != nil {
		return nil, err
	}
	n, err := c.CompressedU32()
	if err != nil {
		return nil, err
	}
	args := make([]ffi.Argument, n)
	for i := range args {
		byRef, err := c.U8()
		if err != nil {
			return nil, err
		}
		t, err := decodeCallType(c)
		if err != nil {
			return nil, err
		}
		args[i] = ffi.Argument{ByRef: byRef != 0, Type: t}
	}
	return &ffi.Configuration{
		CallConvention: ffi.CallConvention(cc),
		ReturnType: ret,
		Encoding: ffi.StringEncoding(enc),
		ObjectStrategy: ffi.ObjectStrategy(strat),
		Arguments: args,
	}, nil
}

// decodeCallType reads one NonPurusCallType wire word : the
// discriminant in byte 3 (bits 24..31) of a 64-bit word, the same layout
// ffi.MarshalCallType writes, with Structure (0xFF) carrying a field count
// in the low 24 bits followed by that many nested CallTypes.
func decodeCallType(c *bitio.Cursor) (ffi.CallType, error) {
	word, err := c.U64()
	if err != nil {
		return ffi.CallType{}, err
	}
	kind := ffi.TypeKind(byte(word >> 24))
	if kind != ffi.TypeStructure {
		return ffi.Scalar(kind), nil
	}
	count := uint32(word & 0x00FFFFFF)
	fields := make([]ffi.CallType, count)
	for i := range fields {
		fields[i], err = decodeCallType(c)
		if err != nil {
			return ffi.CallType{}, err
		}
	}
	return ffi.Structure(fields...), nil
}
