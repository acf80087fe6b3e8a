// Package stdlib builds the core assembly every VM needs before any user
// assembly can load: the scalar value types, System.String, System.Array`1,
// the Exception family, and the FFI marker types. It plays the role the
// original runtime's stdlib/definitions.rs + stdlib/*.rs play for it: a
// fixed, hand-built catalog rather than anything loaded from a container
// file, with native methods patched in directly as Go closures instead of
// bytecode.
package stdlib

import (
	"strconv"
	"strings"

	"github.com/lumenrt/corevm/internal/coreid"
	"github.com/lumenrt/corevm/internal/object"
	"github.com/lumenrt/corevm/internal/rt"
	"github.com/lumenrt/corevm/internal/rterr"
	"github.com/lumenrt/corevm/internal/typesys"
)

// Install builds the core assembly "!" against vm's assembly manager, wires
// vm.Catalog and vm.ArrayGeneric, and returns the assembly so a host can
// also hand it to internal/container as the well-known dependency every
// user assembly's TypeRef table points "!" at.
func Install(vm *rt.VM) (*typesys.Assembly, error) {
	asm, err := typesys.NewAssembly(vm.Assemblies, "!", true)
	if err != nil {
		return nil, err
	}
	heap := vm.Heap

	// stringDesc is read by every ToString native below but isn't built
	// until the String type itself is; since these are closures invoked at
	// call time, not at catalog-build time, capturing the variable (not its
	// not-yet-assigned value) is enough.
	var stringDesc typesys.Descriptor

	object_ := typesys.NewClass(asm, coreid.Names[coreid.Object], typesys.VisibilityPublic, nil, nil, nil,
		func(owner *typesys.Class) []*typesys.Method {
			return []*typesys.Method{
				{
					// Destructor is declared first, matching the original's
					// own System_Object_MethodId ordering: every class below
					// inherits this no-op unless it overrides it (Array`1,
					// System.DynamicLibrary). destroy (rt.VM.Destroy) always
					// finds a Destructor to invoke, never a missing slot.
					Name: "Destructor",
					Attrs: typesys.MethodAttrs{Visibility: typesys.VisibilityPublic},
					Owner: owner,
					Native: func(args []uint64) ([]byte, error) { return nil, nil },
				},
				{
					Name: "ToString",
					Attrs: typesys.MethodAttrs{Visibility: typesys.VisibilityPublic},
					Owner: owner,
					Native: func(args []uint64) ([]byte, error) {
						ref := object.NewManagedString(heap, stringDesc, coreid.Names[coreid.Object])
						return encodeRef(ref), nil
					},
				},
			}
		})
	asm.AddType(object_)
	asm.RegisterCoreName(object_.Name, coreid.Object)

	objectDestructorSlot, _ := object_.MethodTable().FindLastIndexByName("Destructor")
	objectToStringSlot, _ := object_.MethodTable().FindLastIndexByName("ToString")

	voidStruct := typesys.NewStruct(asm, coreid.Names[coreid.Void], typesys.VisibilityPublic, nil, nil,
		func(owner *typesys.Struct) []*typesys.Method { return nil })
	asm.AddType(voidStruct)
	asm.RegisterCoreName(voidStruct.Name, coreid.Void)

	le := func(b []byte) uint64 {
		var v uint64
		for i := len(b) - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		return v
	}

	// scalarType builds one of the value-type wrappers around a raw machine
	// word: a Struct with no declared fields (their storage is the core
	// layout table, spec §4.4 invariant I5) and a native ToString that
	// formats the receiver's own raw bytes.
	scalarType := func(id coreid.ID, size int, format func([]byte) string) *typesys.Struct {
		var s *typesys.Struct
		s = typesys.NewStruct(asm, coreid.Names[id], typesys.VisibilityPublic, nil, nil,
			func(owner *typesys.Struct) []*typesys.Method {
				return []*typesys.Method{
					{
						Name: "ToString",
						Attrs: typesys.MethodAttrs{Visibility: typesys.VisibilityPublic},
						Owner: owner,
						Native: func(args []uint64) ([]byte, error) {
							raw := heap.ReadBytes(args[0], size)
							str := format(raw)
							ref := object.NewManagedString(heap, stringDesc, str)
							return encodeRef(ref), nil
						},
					},
				}
			})
		asm.AddType(s)
		asm.RegisterCoreName(s.Name, id)
		return s
	}

	scalarType(coreid.Boolean, 1, func(b []byte) string {
		if b[0] != 0 {
			return "True"
		}
		return "False"
	})
	scalarType(coreid.UInt8, 1, func(b []byte) string { return strconv.FormatUint(le(b), 10) })
	scalarType(coreid.Int8, 1, func(b []byte) string { return strconv.FormatInt(int64(int8(b[0])), 10) })
	scalarType(coreid.UInt16, 2, func(b []byte) string { return strconv.FormatUint(le(b), 10) })
	scalarType(coreid.Int16, 2, func(b []byte) string { return strconv.FormatInt(int64(int16(le(b))), 10) })
	scalarType(coreid.UInt32, 4, func(b []byte) string { return strconv.FormatUint(le(b), 10) })
	scalarType(coreid.Int32, 4, func(b []byte) string { return strconv.FormatInt(int64(int32(le(b))), 10) })
	uint64Desc := scalarType(coreid.UInt64, 8, func(b []byte) string { return strconv.FormatUint(le(b), 10) })
	scalarType(coreid.Int64, 8, func(b []byte) string { return strconv.FormatInt(int64(le(b)), 10) })
	usizeDesc := scalarType(coreid.USize, 8, func(b []byte) string { return strconv.FormatUint(le(b), 10) })
	scalarType(coreid.Char, 2, func(b []byte) string { return string(rune(le(b))) })

	strType := typesys.NewClass(asm, coreid.Names[coreid.String], typesys.VisibilityPublic, typesys.Loaded(object_), nil, nil,
		func(owner *typesys.Class) []*typesys.Method {
			slot := objectToStringSlot
			return []*typesys.Method{
				{
					Name: "ToString",
					Attrs: typesys.MethodAttrs{Visibility: typesys.VisibilityPublic, Overrides: &slot},
					Owner: owner,
					Native: func(args []uint64) ([]byte, error) {
						// A string's ToString is itself: the receiver ref is
						// already a managed String instance.
						return encodeRef(object.Ref(args[0])), nil
					},
				},
				{
					Name: "get_Length",
					Attrs: typesys.MethodAttrs{Visibility: typesys.VisibilityPublic},
					Owner: owner,
					Native: func(args []uint64) ([]byte, error) {
						acc, err := object.NewStringAccessor(heap, object.Ref(args[0]))
						if err != nil {
							return nil, err
						}
						return encodeU64(acc.Len()), nil
					},
				},
			}
		})
	asm.AddType(strType)
	asm.RegisterCoreName(strType.Name, coreid.String)
	stringDesc = strType

	arrType := typesys.NewClass(asm, coreid.Names[coreid.ArrayOf1], typesys.VisibilityPublic, typesys.Loaded(object_),
		nil, []typesys.GenericBound{{Name: "T"}},
		func(owner *typesys.Class) []*typesys.Method {
			destructorSlot := objectDestructorSlot
			toStringSlot := objectToStringSlot
			return []*typesys.Method{
				{
					// No GC and no refcounted elements (spec Non-goals): an
					// array owns no resource beyond its own bump-allocated
					// storage, so its Destructor has nothing to release —
					// same no-op Object already declares, just reoccupying
					// the override slot for documentation's sake.
					Name: "Destructor",
					Attrs: typesys.MethodAttrs{Visibility: typesys.VisibilityPublic, Overrides: &destructorSlot},
					Owner: owner,
					Native: func(args []uint64) ([]byte, error) { return nil, nil },
				},
				{
					Name: "get_Length",
					Attrs: typesys.MethodAttrs{Visibility: typesys.VisibilityPublic},
					Owner: owner,
					Native: func(args []uint64) ([]byte, error) {
						acc, err := object.NewArrayAccessor(heap, object.Ref(args[0]))
						if err != nil {
							return nil, err
						}
						return encodeU64(acc.Len()), nil
					},
				},
				{
					Name: "GetPointerOfIndex",
					Attrs: typesys.MethodAttrs{Visibility: typesys.VisibilityPrivate},
					Owner: owner,
					Native: func(args []uint64) ([]byte, error) {
						acc, err := object.NewArrayAccessor(heap, object.Ref(args[0]))
						if err != nil {
							return nil, err
						}
						addr, err := acc.ElementAddr(args[1])
						if err != nil {
							return nil, err
						}
						return encodeU64(addr), nil
					},
				},
				{
					Name: "get_Index",
					Attrs: typesys.MethodAttrs{Visibility: typesys.VisibilityPublic},
					Owner: owner,
					Native: func(args []uint64) ([]byte, error) {
						acc, err := object.NewArrayAccessor(heap, object.Ref(args[0]))
						if err != nil {
							return nil, err
						}
						return acc.Element(args[1])
					},
				},
				{
					Name: "set_Index",
					Attrs: typesys.MethodAttrs{Visibility: typesys.VisibilityPublic},
					Owner: owner,
					Native: func(args []uint64) ([]byte, error) {
						acc, err := object.NewArrayAccessor(heap, object.Ref(args[0]))
						if err != nil {
							return nil, err
						}
						size := int(acc.ElementLayout().Size)
						if size > 8 {
							return nil, rterr.ErrElementTooWide
						}
						buf := make([]byte, size)
						v := args[2]
						for i := 0; i < size; i++ {
							buf[i] = byte(v)
							v >>= 8
						}
						return nil, acc.SetElement(args[1], buf)
					},
				},
				{
					// ToString overrides Object.ToString the way the
					// original does (definitions.rs's Array`1 block): it
					// joins each element's own virtual ToString result as
					// "[a, b]" rather than falling back to Object's type-name
					// rendering.
					Name: "ToString",
					Attrs: typesys.MethodAttrs{Visibility: typesys.VisibilityPublic, Overrides: &toStringSlot},
					Owner: owner,
					NativeCtx: func(ctx typesys.NativeContext, args []uint64) ([]byte, error) {
						ref := object.Ref(args[0])
						acc, err := object.NewArrayAccessor(heap, ref)
						if err != nil {
							return nil, err
						}
						mt, err := heap.MethodTableOf(ref)
						if err != nil {
							return nil, err
						}
						var elemDesc typesys.Descriptor
						if typeArgs := mt.Owner().TypeArgs(); len(typeArgs) == 1 {
							elemDesc, err = typeArgs[0].Resolve(typesys.ResolveContext{})
							if err != nil {
								return nil, err
							}
						}
						n := acc.Len()
						parts := make([]string, 0, n)
						for i := uint64(0); i < n; i++ {
							raw, err := acc.Element(i)
							if err != nil {
								return nil, err
							}
							var resBytes []byte
							if elemDesc != nil && !elemDesc.IsStruct() {
								// Class element: the stored word is itself a
								// managed reference with its own method
								// table — dispatch through its runtime
								// ToString slot (objectToStringSlot is
								// stable across every class in this
								// hierarchy).
								elemRef := object.Ref(decodeU64(raw))
								elemMT, err := heap.MethodTableOf(elemRef)
								if err != nil {
									return nil, err
								}
								m, ok := elemMT.Get(toStringSlot)
								if !ok {
									return nil, rterr.UnknownMethod{Name: "ToString"}
								}
								resBytes, err = ctx.Invoke(m, uint64(elemRef), nil)
								if err != nil {
									return nil, err
								}
							} else if elemDesc != nil {
								// Struct element: ToString is looked up
								// directly on the element's own type, and
								// "this" is the element's address inside the
								// array's own storage — the same
								// address-as-receiver convention scalar
								// structs already use.
								m, ok := elemDesc.MethodTable().FindFirstByName("ToString")
								if !ok {
									return nil, rterr.UnknownMethod{Name: "ToString"}
								}
								addr, err := acc.ElementAddr(i)
								if err != nil {
									return nil, err
								}
								resBytes, err = ctx.Invoke(m, addr, nil)
								if err != nil {
									return nil, err
								}
							}
							sacc, err := object.NewStringAccessor(heap, object.Ref(decodeU64(resBytes)))
							if err != nil {
								return nil, err
							}
							parts = append(parts, sacc.String())
						}
						s := "[" + strings.Join(parts, ", ") + "]"
						return encodeRef(object.NewManagedString(heap, stringDesc, s)), nil
					},
				},
			}
		})
	asm.AddType(arrType)
	asm.RegisterCoreName(arrType.Name, coreid.ArrayOf1)

	// Exception family : Exception declares Message (field 0)
	// and StackTrace (field 1); each host subtype below declares its own
	// extra payload field(s) starting again from field 0, scoped to its own
	// MethodTable the way object.NewFieldAccessorFor expects.
	strArrOfString, err := typesys.Instantiate(arrType, []*typesys.TypeHandle{typesys.Loaded(stringDesc)})
	if err != nil {
		return nil, err
	}

	excType := typesys.NewClass(asm, coreid.Names[coreid.Exception], typesys.VisibilityPublic, typesys.Loaded(object_),
		[]*typesys.Field{
			typesys.NewField("Message", typesys.FieldAttrs{Visibility: typesys.VisibilityPublic}, typesys.Loaded(stringDesc)),
			typesys.NewField("StackTrace", typesys.FieldAttrs{Visibility: typesys.VisibilityPublic}, typesys.Loaded(strArrOfString)),
		}, nil,
		func(owner *typesys.Class) []*typesys.Method {
			slot := objectToStringSlot
			return []*typesys.Method{
				{
					// Constructor_String (Exception.rs's own name) sets
					// Message and captures the current call stack into
					// StackTrace, the same way the four host ThrowXxx
					// helpers do for host-raised exceptions — except this
					// path is reachable from a managed `new Exception(msg)`
					// via NewObject, not just cpu.ThrowWin32 et al.
					Name: "Constructor_String",
					Attrs: typesys.MethodAttrs{Visibility: typesys.VisibilityPublic},
					Owner: owner,
					NativeCtx: func(ctx typesys.NativeContext, args []uint64) ([]byte, error) {
						acc, err := object.NewFieldAccessorFor(heap, object.Ref(args[0]), owner.MethodTable())
						if err != nil {
							return nil, err
						}
						if err := acc.Set(0, encodeRef(object.Ref(args[1]))); err != nil {
							return nil, err
						}
						names := ctx.StackTrace()
						trace := object.NewArray(heap, strArrOfString, stringDesc, uint64(len(names)))
						tacc, err := object.NewArrayAccessor(heap, trace)
						if err != nil {
							return nil, err
						}
						for i, name := range names {
							s := object.NewManagedString(heap, stringDesc, name)
							if err := tacc.SetElement(uint64(i), encodeRef(s)); err != nil {
								return nil, err
							}
						}
						return nil, acc.Set(1, encodeRef(trace))
					},
				},
				{
					Name: "ToString",
					Attrs: typesys.MethodAttrs{Visibility: typesys.VisibilityPublic, Overrides: &slot},
					Owner: owner,
					Native: func(args []uint64) ([]byte, error) {
						acc, err := object.NewFieldAccessorFor(heap, object.Ref(args[0]), owner.MethodTable())
						if err != nil {
							return nil, err
						}
						return acc.Get(0)
					},
				},
			}
		})
	asm.AddType(excType)
	asm.RegisterCoreName(excType.Name, coreid.Exception)

	win32Type := typesys.NewClass(asm, coreid.Names[coreid.Win32Exception], typesys.VisibilityPublic, typesys.Loaded(excType),
		[]*typesys.Field{
			typesys.NewField("Code", typesys.FieldAttrs{Visibility: typesys.VisibilityPublic}, typesys.Loaded(uint64Desc)),
		}, nil, func(owner *typesys.Class) []*typesys.Method { return nil })
	asm.AddType(win32Type)
	asm.RegisterCoreName(win32Type.Name, coreid.Win32Exception)

	errnoType := typesys.NewClass(asm, coreid.Names[coreid.ErrnoException], typesys.VisibilityPublic, typesys.Loaded(excType),
		[]*typesys.Field{
			typesys.NewField("Code", typesys.FieldAttrs{Visibility: typesys.VisibilityPublic}, typesys.Loaded(uint64Desc)),
		}, nil, func(owner *typesys.Class) []*typesys.Method { return nil })
	asm.AddType(errnoType)
	asm.RegisterCoreName(errnoType.Name, coreid.ErrnoException)

	dlErrType := typesys.NewClass(asm, coreid.Names[coreid.DlErrorException], typesys.VisibilityPublic, typesys.Loaded(excType),
		[]*typesys.Field{
			typesys.NewField("Message", typesys.FieldAttrs{Visibility: typesys.VisibilityPublic}, typesys.Loaded(stringDesc)),
		}, nil, func(owner *typesys.Class) []*typesys.Method { return nil })
	asm.AddType(dlErrType)
	asm.RegisterCoreName(dlErrType.Name, coreid.DlErrorException)

	invEnumType := typesys.NewClass(asm, coreid.Names[coreid.InvalidEnumException], typesys.VisibilityPublic, typesys.Loaded(excType),
		[]*typesys.Field{
			typesys.NewField("EnumName", typesys.FieldAttrs{Visibility: typesys.VisibilityPublic}, typesys.Loaded(stringDesc)),
			typesys.NewField("Message", typesys.FieldAttrs{Visibility: typesys.VisibilityPublic}, typesys.Loaded(stringDesc)),
		}, nil, func(owner *typesys.Class) []*typesys.Method { return nil })
	asm.AddType(invEnumType)
	asm.RegisterCoreName(invEnumType.Name, coreid.InvalidEnumException)

	// System.Pointer and the two NonPurusCall marker types :
	// Pointer holds one raw address word; the call-type/configuration types
	// carry no declared fields of their own since their real payload lives
	// in rt.ConfigStore/internal/ffi.Configuration (see DESIGN.md).
	pointerType := typesys.NewStruct(asm, coreid.Names[coreid.Pointer], typesys.VisibilityPublic,
		[]*typesys.Field{
			typesys.NewField("Value", typesys.FieldAttrs{Visibility: typesys.VisibilityPublic}, typesys.Loaded(usizeDesc)),
		}, nil,
		func(owner *typesys.Struct) []*typesys.Method {
			return []*typesys.Method{
				{
					Name: "ToString",
					Attrs: typesys.MethodAttrs{Visibility: typesys.VisibilityPublic},
					Owner: owner,
					Native: func(args []uint64) ([]byte, error) {
						addr := decodeU64(heap.ReadBytes(args[0], 8))
						ref := object.NewManagedString(heap, stringDesc, "0x"+strconv.FormatUint(addr, 16))
						return encodeRef(ref), nil
					},
				},
			}
		})
	asm.AddType(pointerType)
	asm.RegisterCoreName(pointerType.Name, coreid.Pointer)

	callTypeType := typesys.NewStruct(asm, coreid.Names[coreid.NonPurusCallType], typesys.VisibilityPublic, nil, nil,
		func(owner *typesys.Struct) []*typesys.Method { return nil })
	asm.AddType(callTypeType)
	asm.RegisterCoreName(callTypeType.Name, coreid.NonPurusCallType)

	callConfigType := typesys.NewStruct(asm, coreid.Names[coreid.NonPurusCallConfiguration], typesys.VisibilityPublic, nil, nil,
		func(owner *typesys.Struct) []*typesys.Method { return nil })
	asm.AddType(callConfigType)
	asm.RegisterCoreName(callConfigType.Name, coreid.NonPurusCallConfiguration)

	dynLibType := buildDynamicLibrary(asm, heap, object_, stringDesc, usizeDesc, objectDestructorSlot)
	asm.AddType(dynLibType)
	asm.RegisterCoreName(dynLibType.Name, coreid.DynamicLibrary)

	vm.ArrayGeneric = arrType
	vm.Catalog = rt.ExceptionCatalog{
		Exception: excType,
		StringType: stringDesc,
		StringArrayOf: strArrOfString,
		Win32Exception: win32Type,
		ErrnoException: errnoType,
		DlErrorException: dlErrType,
		InvalidEnumException: invEnumType,
	}
	return asm, nil
}
