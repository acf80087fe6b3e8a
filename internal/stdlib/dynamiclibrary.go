package stdlib

import (
	"github.com/lumenrt/corevm/internal/coreid"
	"github.com/lumenrt/corevm/internal/object"
	"github.com/lumenrt/corevm/internal/typesys"
)

// platformOpen/platformSymbol/platformClose are the one seam in this
// package that isn't expressible portably: dlopen/dlsym/dlclose (or their
// Windows equivalents) are OS facilities, not something golang.org/x/sys
// exposes as a bare syscall on every platform this module targets. Each
// build-tagged file in this package supplies its own implementation; see
// DESIGN.md for why the POSIX side goes through cgo instead of x/sys/unix.
var (
	platformOpen func(path string) (uintptr, error)
	platformSymbol func(handle uintptr, name string) (uintptr, error)
	platformClose func(handle uintptr) error
)

// buildDynamicLibrary builds System.DynamicLibrary: a one-field class
// (Handle, a raw OS handle stored as a USize) with Open/GetSymbol/Close
// native methods delegating to the platform hooks above.
func buildDynamicLibrary(asm *typesys.Assembly, heap *object.Heap, objectDesc typesys.Descriptor, stringDesc, usizeDesc typesys.Descriptor, objectDestructorSlot uint32) *typesys.Class {
	var dynLibDesc *typesys.Class

	dynLibDesc = typesys.NewClass(asm, coreid.Names[coreid.DynamicLibrary], typesys.VisibilityPublic, typesys.Loaded(objectDesc),
		[]*typesys.Field{
			typesys.NewField("Handle", typesys.FieldAttrs{Visibility: typesys.VisibilityPrivate}, typesys.Loaded(usizeDesc)),
		}, nil,
		func(owner *typesys.Class) []*typesys.Method {
			destructorSlot := objectDestructorSlot
			// Destructor overrides Object's no-op with a real release, the
			// way DynamicLibrary.rs's own Destructor closes the OS handle:
			// destroy (rt.VM.Destroy) calling it is this type's one path to
			// ever calling platformClose short of an explicit Close().
			destructor := &typesys.Method{
				Name: "Destructor",
				Attrs: typesys.MethodAttrs{Visibility: typesys.VisibilityPublic, Overrides: &destructorSlot},
				Owner: owner,
				Native: func(args []uint64) ([]byte, error) {
					acc, err := object.NewFieldAccessorFor(heap, object.Ref(args[0]), dynLibDesc.MethodTable())
					if err != nil {
						return nil, err
					}
					handle, err := acc.GetU64(0)
					if err != nil {
						return nil, err
					}
					return nil, platformClose(uintptr(handle))
				},
			}
			open := &typesys.Method{
				Name: "Open",
				Attrs: typesys.MethodAttrs{Visibility: typesys.VisibilityPublic, Static: true},
				Owner: owner,
				Native: func(args []uint64) ([]byte, error) {
					sacc, err := object.NewStringAccessor(heap, object.Ref(args[0]))
					if err != nil {
						return nil, err
					}
					handle, err := platformOpen(sacc.String())
					if err != nil {
						return nil, err
					}
					inst := object.NewInstance(heap, dynLibDesc, false)
					acc, err := object.NewFieldAccessorFor(heap, inst, dynLibDesc.MethodTable())
					if err != nil {
						return nil, err
					}
					if err := acc.SetU64(0, uint64(handle)); err != nil {
						return nil, err
					}
					return encodeRef(inst), nil
				},
			}
			getSymbol := &typesys.Method{
				Name: "GetSymbol",
				Attrs: typesys.MethodAttrs{Visibility: typesys.VisibilityPublic},
				Owner: owner,
				Native: func(args []uint64) ([]byte, error) {
					acc, err := object.NewFieldAccessorFor(heap, object.Ref(args[0]), dynLibDesc.MethodTable())
					if err != nil {
						return nil, err
					}
					handle, err := acc.GetU64(0)
					if err != nil {
						return nil, err
					}
					sacc, err := object.NewStringAccessor(heap, object.Ref(args[1]))
					if err != nil {
						return nil, err
					}
					addr, err := platformSymbol(uintptr(handle), sacc.String())
					if err != nil {
						return nil, err
					}
					// Returned by value as a System.Pointer: its value layout
					// is one machine word, so the raw address is the whole
					// encoding.
					return encodeU64(uint64(addr)), nil
				},
			}
			closeMethod := &typesys.Method{
				Name: "Close",
				Attrs: typesys.MethodAttrs{Visibility: typesys.VisibilityPublic},
				Owner: owner,
				Native: func(args []uint64) ([]byte, error) {
					acc, err := object.NewFieldAccessorFor(heap, object.Ref(args[0]), dynLibDesc.MethodTable())
					if err != nil {
						return nil, err
					}
					handle, err := acc.GetU64(0)
					if err != nil {
						return nil, err
					}
					return nil, platformClose(uintptr(handle))
				},
			}
			return []*typesys.Method{destructor, open, getSymbol, closeMethod}
		})
	return dynLibDesc
}
