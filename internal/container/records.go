package container

import (
	"github.com/lumenrt/corevm/internal/bitio"
	"github.com/lumenrt/corevm/internal/instr"
	"github.com/lumenrt/corevm/internal/token"
	"github.com/lumenrt/corevm/internal/typesys"
)

// The records below are this loader's own pending-value shapes for the
// TypeDef section : every type/field/method reference is
// still a raw token.Token here, resolved into *typesys.TypeHandle only once
// buildTypeDefs knows the owning Assembly's TypeDef slots are reserved
//. Optional wire values use a presence byte
// rather than a sentinel, since the compressed-u32 codec cannot represent
// one (its largest encodable value is 0x1FFFFFFF).

type paramRecord struct {
	ByRef bool
	TypeTok token.Token
}

type methodRecord struct {
	Name string
	Attrs typesys.MethodAttrs
	Params []paramRecord
	HasReturn bool
	ReturnTok token.Token
	Locals []token.Token
	Convention typesys.CallConvention
	GenericBounds []typesys.GenericBound
	Native bool
	Instructions []instr.Instruction
}

type fieldRecord struct {
	Name string
	Attrs typesys.FieldAttrs
	TypeTok token.Token
}

type typeDefRecord struct {
	Name string
	IsStruct bool
	Visibility typesys.Visibility
	HasParent bool
	ParentTok token.Token
	GenericBounds []typesys.GenericBound
	Fields []fieldRecord
	Methods []methodRecord
	HasStaticCtor bool
	StaticCtorField uint32
}

func readStringRef(c *bitio.Cursor, strs *StringTable) (string, error) {
	ref, err := c.CompressedU32()
	if err != nil {
		return "", err
	}
	return strs.At(ref)
}

func decodeGenericBounds(c *bitio.Cursor, strs *StringTable) ([]typesys.GenericBound, error) {
	n, err := c.CompressedU32()
	if err != nil {
		return nil, err
	}
	out := make([]typesys.GenericBound, n)
	for i := range out {
		name, err := readStringRef(c, strs)
		if err != nil {
			return nil, err
		}
		out[i] = typesys.GenericBound{Name: name}
	}
	return out, nil
}

func decodeFieldRecord(c *bitio.Cursor, strs *StringTable) (fieldRecord, error) {
	var fr fieldRecord
	name, err := readStringRef(c, strs)
	if err != nil {
		return fr, err
	}
	static, err := c.U8()
	if err != nil {
		return fr, err
	}
	vis, err := c.Enum(4, "Visibility")
	if err != nil {
		return fr, err
	}
	ty, err := typeToken(c)
	if err != nil {
		return fr, err
	}
	fr.Name = name
	fr.Attrs = typesys.FieldAttrs{Static: static != 0, Visibility: typesys.Visibility(vis)}
	fr.TypeTok = ty
	return fr, nil
}

func decodeParamRecord(c *bitio.Cursor) (paramRecord, error) {
	byRef, err := c.U8()
	if err != nil {
		return paramRecord{}, err
	}
	ty, err := typeToken(c)
	if err != nil {
		return paramRecord{}, err
	}
	return paramRecord{ByRef: byRef != 0, TypeTok: ty}, nil
}

// decodeMethodRecord reads one Method record : signature,
// attributes, and either a bytecode body or a bare native marker (native
// bodies are wired up from internal/stdlib's catalog after loading, keyed
// by owning type + name, not carried on disk).
func decodeMethodRecord(c *bitio.Cursor, strs *StringTable, remapString func(uint32) (uint32, error)) (methodRecord, error) {
	var mr methodRecord
	name, err := readStringRef(c, strs)
	if err != nil {
		return mr, err
	}
	vis, err := c.Enum(4, "Visibility")
	if err != nil {
		return mr, err
	}
	static, err := c.U8()
	if err != nil {
		return mr, err
	}
	implByRuntime, err := c.U8()
	if err != nil {
		return mr, err
	}
	hideWhenCapturing, err := c.U8()
	if err != nil {
		return mr, err
	}
	hasOverride, err := c.U8()
	if err != nil {
		return mr, err
	}
	var overrides *uint32
	if hasOverride != 0 {
		slot, err := c.U32()
		if err != nil {
			return mr, err
		}
		overrides = &slot
	}
	bounds, err := decodeGenericBounds(c, strs)
	if err != nil {
		return mr, err
	}
	paramN, err := c.CompressedU32()
	if err != nil {
		return mr, err
	}
	params := make([]paramRecord, paramN)
	for i := range params {
		params[i], err = decodeParamRecord(c)
		if err != nil {
			return mr, err
		}
	}
	hasReturn, err := c.U8()
	if err != nil {
		return mr, err
	}
	var returnTok token.Token
	if hasReturn != 0 {
		returnTok, err = typeToken(c)
		if err != nil {
			return mr, err
		}
	}
	localN, err := c.CompressedU32()
	if err != nil {
		return mr, err
	}
	locals := make([]token.Token, localN)
	for i := range locals {
		locals[i], err = typeToken(c)
		if err != nil {
			return mr, err
		}
	}
	conv, err := c.U8()
	if err != nil {
		return mr, err
	}
	native, err := c.U8()
	if err != nil {
		return mr, err
	}
	var instructions []instr.Instruction
	if native == 0 {
		count, err := c.CompressedU32()
		if err != nil {
			return mr, err
		}
		instructions, err = decodeInstructions(c, count, remapString)
		if err != nil {
			return mr, err
		}
	}

	mr.Name = name
	mr.Attrs = typesys.MethodAttrs{
		Visibility: typesys.Visibility(vis),
		Static: static != 0,
		ImplementedByRuntime: implByRuntime != 0,
		HideWhenCapturing: hideWhenCapturing != 0,
		Overrides: overrides,
	}
	mr.GenericBounds = bounds
	mr.Params = params
	mr.HasReturn = hasReturn != 0
	mr.ReturnTok = returnTok
	mr.Locals = locals
	mr.Convention = typesys.CallConvention(conv)
	mr.Native = native != 0
	mr.Instructions = instructions
	return mr, nil
}

// decodeTypeDefRecord reads one TypeDef record : a class or
// struct's name, parent (classes only), generic bounds, fields, and
// methods, plus the static-constructor field slot if one exists.
func decodeTypeDefRecord(c *bitio.Cursor, strs *StringTable, remapString func(uint32) (uint32, error)) (typeDefRecord, error) {
	var def typeDefRecord
	name, err := readStringRef(c, strs)
	if err != nil {
		return def, err
	}
	isStruct, err := c.U8()
	if err != nil {
		return def, err
	}
	vis, err := c.Enum(4, "Visibility")
	if err != nil {
		return def, err
	}
	hasParent, err := c.U8()
	if err != nil {
		return def, err
	}
	var parentTok token.Token
	if isStruct == 0 && hasParent != 0 {
		parentTok, err = typeToken(c)
		if err != nil {
			return def, err
		}
	}
	bounds, err := decodeGenericBounds(c, strs)
	if err != nil {
		return def, err
	}
	fieldN, err := c.CompressedU32()
	if err != nil {
		return def, err
	}
	fields := make([]fieldRecord, fieldN)
	for i := range fields {
		fields[i], err = decodeFieldRecord(c, strs)
		if err != nil {
			return def, err
		}
	}
	methodN, err := c.CompressedU32()
	if err != nil {
		return def, err
	}
	methods := make([]methodRecord, methodN)
	for i := range methods {
		methods[i], err = decodeMethodRecord(c, strs, remapString)
		if err != nil {
			return def, err
		}
	}
	hasStaticCtor, err := c.U8()
	if err != nil {
		return def, err
	}
	var staticCtorField uint32
	if hasStaticCtor != 0 {
		staticCtorField, err = c.U32()
		if err != nil {
			return def, err
		}
	}

	def.Name = name
	def.IsStruct = isStruct != 0
	def.Visibility = typesys.Visibility(vis)
	def.HasParent = isStruct == 0 && hasParent != 0
	def.ParentTok = parentTok
	def.GenericBounds = bounds
	def.Fields = fields
	def.Methods = methods
	def.HasStaticCtor = hasStaticCtor != 0
	def.StaticCtorField = staticCtorField
	return def, nil
}
