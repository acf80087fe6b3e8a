package container

import (
	"github.com/lumenrt/corevm/internal/bitio"
	"github.com/lumenrt/corevm/internal/rterr"
	"github.com/lumenrt/corevm/internal/token"
	"github.com/lumenrt/corevm/internal/typesys"
)

// LoadAssembly registers a new Assembly named name in am and populates it
// from img: strings, the cross-reference tables, and every TypeDef (spec
// §4.1, §4.3). Types are built in parent-first order so that same-assembly
// inheritance seeds its child's method table correctly ; cross-assembly
// parents are expected to already be registered in am.
func LoadAssembly(am *typesys.AssemblyManager, img *Image, name string, isCore bool) (*typesys.Assembly, error) {
	asm, err := typesys.NewAssembly(am, name, isCore)
	if err != nil {
		return nil, err
	}

	strs, err := img.Strings()
	if err != nil {
		return nil, err
	}
	remapString, err := internStrings(asm, strs)
	if err != nil {
		return nil, err
	}

	if err := loadTypeRefs(asm, img, strs); err != nil {
		return nil, err
	}
	if err := loadTypeSpecs(asm, img); err != nil {
		return nil, err
	}
	if err := loadMethodSpecs(asm, img); err != nil {
		return nil, err
	}

	defs, err := loadTypeDefRecords(asm, img, strs, remapString)
	if err != nil {
		return nil, err
	}
	asm.ReserveTypes(len(defs))
	if err := buildTypeDefs(asm, defs); err != nil {
		return nil, err
	}

	return asm, nil
}

// internStrings walks the whole string section once, in file order,
// interning every string into asm via AddString and recording the byte
// offset each one started at. The returned function is the remapString
// the instruction decoder needs to translate an on-disk StringRef (a byte
// offset, spec §4.1) into the positional index Assembly.GetString expects
// at interpret time (internal/rt/interp.go's OpLoadString handler).
func internStrings(asm *typesys.Assembly, strs *StringTable) (func(uint32) (uint32, error), error) {
	c := bitio.NewCursor(strs.data)
	byOffset := make(map[uint32]uint32)
	for c.Remaining() > 0 {
		offset := uint32(c.Pos())
		s, err := c.String()
		if err != nil {
			return nil, err
		}
		byOffset[offset] = asm.AddString(s)
	}
	return func(ref uint32) (uint32, error) {
		idx, ok := byOffset[ref]
		if !ok {
			return 0, rterr.UnknownStringRef{Ref: ref}
		}
		return idx, nil
	}, nil
}

// sectionOrNil reads section id, treating UnknownSection as "absent" —
// every cross-reference table is optional (an assembly with no generics
// need not carry a type-spec table, for instance).
func sectionOrNil(img *Image, id uint32) ([]byte, error) {
	data, err := img.Section(id)
	if err != nil {
		if _, ok := err.(rterr.UnknownSection); ok {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func loadTypeRefs(asm *typesys.Assembly, img *Image, strs *StringTable) error {
	data, err := sectionOrNil(img, SectionTypeRefs)
	if err != nil || data == nil {
		return err
	}
	c := bitio.NewCursor(data)
	count, err := c.CompressedU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := readStringRef(c, strs)
		if err != nil {
			return err
		}
		idx, err := c.U32()
		if err != nil {
			return err
		}
		asm.AddTypeRef(typesys.TypeRef{AssemblyName: name, Index: idx})
	}
	return nil
}

func loadTypeSpecs(asm *typesys.Assembly, img *Image) error {
	data, err := sectionOrNil(img, SectionTypeSpecs)
	if err != nil || data == nil {
		return err
	}
	c := bitio.NewCursor(data)
	count, err := c.CompressedU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		generic, err := typeToken(c)
		if err != nil {
			return err
		}
		argN, err := c.CompressedU32()
		if err != nil {
			return err
		}
		args := make([]token.Token, argN)
		for j := range args {
			args[j], err = typeToken(c)
			if err != nil {
				return err
			}
		}
		asm.AddTypeSpec(typesys.TypeSpecRef{Generic: generic, Args: args})
	}
	return nil
}

func loadMethodSpecs(asm *typesys.Assembly, img *Image) error {
	data, err := sectionOrNil(img, SectionMethodSpecs)
	if err != nil || data == nil {
		return err
	}
	c := bitio.NewCursor(data)
	count, err := c.CompressedU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		methodIdx, err := c.U32()
		if err != nil {
			return err
		}
		genN, err := c.CompressedU32()
		if err != nil {
			return err
		}
		generics := make([]token.Token, genN)
		for j := range generics {
			generics[j], err = typeToken(c)
			if err != nil {
				return err
			}
		}
		asm.AddMethodSpec(typesys.MethodSpecRef{MethodIndex: methodIdx, Generics: generics})
	}
	return nil
}

// loadTypeDefRecords reads the whole TypeDef section into pending records,
// in file order — the order every TypeDef-kind token addresses
// by index, so it must match the order the assembler wrote them in
// regardless of the order types are later built in.
func loadTypeDefRecords(asm *typesys.Assembly, img *Image, strs *StringTable, remapString func(uint32) (uint32, error)) ([]typeDefRecord, error) {
	data, err := sectionOrNil(img, SectionTypeDefs)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	c := bitio.NewCursor(data)
	count, err := c.CompressedU32()
	if err != nil {
		return nil, err
	}
	defs := make([]typeDefRecord, count)
	for i := range defs {
		defs[i], err = decodeTypeDefRecord(c, strs, remapString)
		if err != nil {
			return nil, err
		}
	}
	return defs, nil
}

// buildTypeDefs constructs every TypeDef's real typesys.Descriptor, parent
// first, and files it into asm's reserved TypeDef slot at its original
// file index. A same-assembly parent dependency cycle — which
// the format permits but no real assembly should contain — is broken by
// leaving the later-visited member unresolved; its ParentHandle then fails
// to resolve at use (graceful per spec §9) rather than looping forever.
func buildTypeDefs(asm *typesys.Assembly, defs []typeDefRecord) error {
	built := make([]bool, len(defs))
	building := make([]bool, len(defs))

	var build func(i uint32) error
	build = func(i uint32) error {
		if built[i] || building[i] {
			return nil
		}
		building[i] = true
		def := defs[i]
		if def.HasParent && def.ParentTok.Kind() == token.KindTypeDef {
			if int(def.ParentTok.Index()) < len(defs) {
				if err := build(def.ParentTok.Index()); err != nil {
					return err
				}
			}
		}
		d, err := buildOneTypeDef(asm, def)
		if err != nil {
			return err
		}
		asm.SetType(i, d)
		built[i] = true
		building[i] = false
		return nil
	}

	for i := range defs {
		if err := build(uint32(i)); err != nil {
			return err
		}
	}
	return nil
}

func buildOneTypeDef(asm *typesys.Assembly, def typeDefRecord) (typesys.Descriptor, error) {
	fields := make([]*typesys.Field, len(def.Fields))
	for i, fr := range def.Fields {
		th, err := typesys.HandleFromToken(asm, fr.TypeTok)
		if err != nil {
			return nil, err
		}
		fields[i] = typesys.NewField(fr.Name, fr.Attrs, th)
	}

	if def.IsStruct {
		var buildErr error
		s := typesys.NewStruct(asm, def.Name, def.Visibility, fields, def.GenericBounds,
			func(owner *typesys.Struct) []*typesys.Method {
				ms, err := buildMethods(asm, owner, def.Methods)
				if err != nil {
					buildErr = err
				}
				return ms
			})
		if buildErr != nil {
			return nil, buildErr
		}
		if def.HasStaticCtor {
			s.SetStaticCtorFieldID(def.StaticCtorField)
		}
		return s, nil
	}

	var parent *typesys.TypeHandle
	if def.HasParent {
		h, err := typesys.HandleFromToken(asm, def.ParentTok)
		if err != nil {
			return nil, err
		}
		parent = h
	}
	var buildErr error
	c := typesys.NewClass(asm, def.Name, def.Visibility, parent, fields, def.GenericBounds,
		func(owner *typesys.Class) []*typesys.Method {
			ms, err := buildMethods(asm, owner, def.Methods)
			if err != nil {
				buildErr = err
			}
			return ms
		})
	if buildErr != nil {
		return nil, buildErr
	}
	if def.HasStaticCtor {
		c.SetStaticCtorFieldID(def.StaticCtorField)
	}
	return c, nil
}

func buildMethods(asm *typesys.Assembly, owner typesys.Descriptor, defs []methodRecord) ([]*typesys.Method, error) {
	out := make([]*typesys.Method, len(defs))
	for i, mr := range defs {
		params := make([]typesys.Parameter, len(mr.Params))
		for j, p := range mr.Params {
			th, err := typesys.HandleFromToken(asm, p.TypeTok)
			if err != nil {
				return nil, err
			}
			params[j] = typesys.Parameter{ByRef: p.ByRef, Type: th}
		}
		var ret *typesys.TypeHandle
		if mr.HasReturn {
			h, err := typesys.HandleFromToken(asm, mr.ReturnTok)
			if err != nil {
				return nil, err
			}
			ret = h
		}
		locals := make([]*typesys.TypeHandle, len(mr.Locals))
		for j, lt := range mr.Locals {
			h, err := typesys.HandleFromToken(asm, lt)
			if err != nil {
				return nil, err
			}
			locals[j] = h
		}
		out[i] = &typesys.Method{
			Name: mr.Name,
			Attrs: mr.Attrs,
			Params: params,
			Return: ret,
			Locals: locals,
			Convention: mr.Convention,
			GenericBounds: mr.GenericBounds,
			Instructions: mr.Instructions,
			Owner: owner,
		}
	}
	return out, nil
}
