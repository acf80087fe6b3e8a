package typesys

import (
	"fmt"
	"sync"

	"github.com/lumenrt/corevm/internal/coreid"
	"github.com/lumenrt/corevm/internal/rterr"
	"github.com/lumenrt/corevm/internal/token"
)

// Descriptor is the sum of ClassDef and StructDef : both expose
// owner assembly, name, attributes, method table, fields, static
// constructor id, and generic machinery. Implemented by *Class and
// *Struct.
type Descriptor interface {
	TypeName() string
	IsStruct() bool
	OwnerAssembly() *Assembly
	MethodTable() *MethodTable
	Fields() []*Field
	Parent() Descriptor // nil for structs and parentless classes
	StaticCtorFieldID() uint32
	TypeArgs() []*TypeHandle
	GenericBounds() []GenericBound
	CoreID() (coreid.ID, bool)
}

// TypeRef names a type defined in another assembly: its owning assembly's
// name and its index within that assembly's type list.
type TypeRef struct {
	AssemblyName string
	Index uint32
}

// GenericRef names an unresolved generic-parameter reference: resolved by
// the enclosing method's type-vars first, then the enclosing type's
// type-vars.
type GenericRef struct {
	Index uint32
}

// TypeSpecRef names a generic instantiation recorded in the owning
// assembly's type-spec table: the open generic's token plus its bound type
// arguments' tokens.
type TypeSpecRef struct {
	Generic token.Token
	Args []token.Token
}

// TypeHandle is the MaybeUnloaded abstraction : it holds
// either an already-resolved Descriptor or one of the unresolved reference
// shapes above, resolved lazily and cached in place on first use
// (invariant I6).
type TypeHandle struct {
	mu sync.Mutex
	resolved Descriptor

	defIndex int32 // >= 0 when this is a same-assembly forward reference (TypeDef)
	ref *TypeRef
	generic *GenericRef
	spec *TypeSpecRef
	inAssembly *Assembly // assembly this handle was recorded in, for TypeDef/TypeSpec/Generic lookups
}

// Loaded builds an already-resolved handle.
func Loaded(d Descriptor) *TypeHandle { return &TypeHandle{resolved: d} }

// UnloadedDef builds a handle pointing at a not-yet-emitted TypeDef slot in
// the same assembly (used while a batch of assemblies is still being
// materialized, spec §4.3).
func UnloadedDef(asm *Assembly, index uint32) *TypeHandle {
	return &TypeHandle{defIndex: int32(index), inAssembly: asm}
}

// UnloadedRef builds a handle pointing at a cross-assembly TypeRef.
func UnloadedRef(asm *Assembly, ref TypeRef) *TypeHandle {
	return &TypeHandle{ref: &ref, inAssembly: asm}
}

// UnloadedGeneric builds a handle pointing at an enclosing type/method's
// generic parameter slot.
func UnloadedGeneric(asm *Assembly, index uint32) *TypeHandle {
	return &TypeHandle{generic: &GenericRef{Index: index}, inAssembly: asm}
}

// UnloadedSpec builds a handle pointing at a generic instantiation.
func UnloadedSpec(asm *Assembly, spec TypeSpecRef) *TypeHandle {
	return &TypeHandle{spec: &spec, inAssembly: asm}
}

// ResolveContext supplies the enclosing method/type type-vars a Generic
// token resolves against.
type ResolveContext struct {
	AssemblyManager *AssemblyManager
	MethodTypeVars []*TypeHandle
	TypeTypeVars []*TypeHandle
}

// Resolve returns the cached descriptor if one is present, else performs
// lookup per the handle's reference shape and caches the result in place
// (invariant I6). A Generic handle with no bound type-vars in ctx reports
// ErrGenericNotInitialized.
func (h *TypeHandle) Resolve(ctx ResolveContext) (Descriptor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.resolved != nil {
		return h.resolved, nil
	}

	var d Descriptor
	var err error
	switch {
	case h.ref != nil:
		d, err = resolveTypeRef(ctx.AssemblyManager, *h.ref)
	case h.generic != nil:
		d, err = resolveGeneric(ctx, h.generic.Index)
	case h.spec != nil:
		d, err = resolveSpec(ctx, h.inAssembly, *h.spec)
	case h.defIndex >= 0 && h.inAssembly != nil:
		d, err = h.inAssembly.TypeByIndex(uint32(h.defIndex))
	default:
		return nil, rterr.ErrResolutionNotCompleted
	}
	if err != nil {
		return nil, err
	}
	h.resolved = d
	return d, nil
}

func resolveTypeRef(am *AssemblyManager, ref TypeRef) (Descriptor, error) {
	asm, err := am.Find(ref.AssemblyName)
	if err != nil {
		return nil, err
	}
	return asm.TypeByIndex(ref.Index)
}

func resolveGeneric(ctx ResolveContext, index uint32) (Descriptor, error) {
	// The enclosing method's type-vars are consulted first, then the
	// enclosing type's, per spec §4.5.
	if int(index) < len(ctx.MethodTypeVars) {
		return ctx.MethodTypeVars[index].Resolve(ctx)
	}
	idx := int(index) - len(ctx.MethodTypeVars)
	if idx >= 0 && idx < len(ctx.TypeTypeVars) {
		return ctx.TypeTypeVars[idx].Resolve(ctx)
	}
	return nil, rterr.ErrGenericNotInitialized
}

func resolveSpec(ctx ResolveContext, asm *Assembly, spec TypeSpecRef) (Descriptor, error) {
	genericTok, err := genericHandleFromToken(asm, spec.Generic)
	if err != nil {
		return nil, err
	}
	generic, err := genericTok.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	args := make([]*TypeHandle, len(spec.Args))
	for i, t := range spec.Args {
		h, err := genericHandleFromToken(asm, t)
		if err != nil {
			return nil, err
		}
		args[i] = h
	}
	return Instantiate(generic, args)
}

// ResolveTypeToken builds and resolves the handle a type-family token names
// against asm, the interpreter's entry point for TypeRef operands (spec
// §4.2, §4.7): OpNewObject/OpNewArray/OpLoadTypeValueSize/OpStaticCall all
// carry a bare token.Token rather than a pre-built *TypeHandle.
func ResolveTypeToken(ctx ResolveContext, asm *Assembly, t token.Token) (Descriptor, error) {
	h, err := genericHandleFromToken(asm, t)
	if err != nil {
		return nil, err
	}
	return h.Resolve(ctx)
}

// HandleFromToken builds (without resolving) the handle a type-family
// token names, the lazy counterpart of ResolveTypeToken: a loader building
// a Field/Parameter/Method.Return/Locals entry wants the unresolved handle
// itself (MaybeUnloaded, spec §3), not its resolution, since the
// referenced type may not exist yet.
func HandleFromToken(asm *Assembly, t token.Token) (*TypeHandle, error) {
	return genericHandleFromToken(asm, t)
}

// genericHandleFromToken builds (without resolving) the handle a token
// names, dispatching on its token.Kind.
func genericHandleFromToken(asm *Assembly, t token.Token) (*TypeHandle, error) {
	switch t.Kind() {
	case token.KindTypeDef:
		return UnloadedDef(asm, t.Index()), nil
	case token.KindTypeRef:
		ref, err := asm.TypeRefByIndex(t.Index())
		if err != nil {
			return nil, err
		}
		return UnloadedRef(asm, ref), nil
	case token.KindTypeSpec:
		spec, err := asm.TypeSpecByIndex(t.Index())
		if err != nil {
			return nil, err
		}
		return UnloadedSpec(asm, spec), nil
	case token.KindGeneric:
		return UnloadedGeneric(asm, t.Index()), nil
	default:
		return nil, fmt.Errorf("typesys: token kind %d is not a type token", t.Kind())
	}
}
