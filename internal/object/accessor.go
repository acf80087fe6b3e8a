package object

import (
	"unicode/utf16"

	"github.com/lumenrt/corevm/internal/coreid"
	"github.com/lumenrt/corevm/internal/rterr"
	"github.com/lumenrt/corevm/internal/typesys"
)

// FieldAccessor is a newtype view over a managed reference, valid for any
// typed object. Static vs instance field offsets are
// discriminated by the object header's is_static for classes; a struct
// accessor is told which region to use explicitly since struct storage
// has no header to read it from.
type FieldAccessor struct {
	heap *Heap
	mt *typesys.MethodTable
	base uint64 // address of the field-data region (past header+MT for classes)
	isStatic bool
}

// NewFieldAccessor builds an accessor over a class instance, reading
// is_static from the object header.
func NewFieldAccessor(h *Heap, r Ref) (*FieldAccessor, error) {
	if r.IsNull() {
		return nil, rterr.NullReference{At: "FieldAccessor"}
	}
	mt, err := h.MethodTableOf(r)
	if err != nil {
		return nil, err
	}
	return &FieldAccessor{heap: h, mt: mt, base: h.DataAddr(r), isStatic: h.IsStatic(r)}, nil
}

// NewFieldAccessorFor builds an accessor scoped to declaring's own field-id
// space (rather than r's leaf-most runtime type), the way accessing an
// inherited field must: a field id only names a slot within the type that
// actually declared it, while the byte address it resolves to is shared
// across the whole instance.
func NewFieldAccessorFor(h *Heap, r Ref, declaring *typesys.MethodTable) (*FieldAccessor, error) {
	if r.IsNull() {
		return nil, rterr.NullReference{At: "FieldAccessor"}
	}
	return &FieldAccessor{heap: h, mt: declaring, base: h.DataAddr(r), isStatic: h.IsStatic(r)}, nil
}

// NewStructFieldAccessor builds an accessor over a struct value addressed
// directly (no header), the path LoadField/SetThisField take for structs
//.
func NewStructFieldAccessor(h *Heap, mt *typesys.MethodTable, base uint64, isStatic bool) *FieldAccessor {
	return &FieldAccessor{heap: h, mt: mt, base: base, isStatic: isStatic}
}

// Offset resolves field id's memory info via the method table's offset
// cache.
func (a *FieldAccessor) Offset(fieldID uint32) (typesys.FieldMemInfo, error) {
	return a.mt.FieldOffset(fieldID, a.isStatic, typesys.LayoutOptions{PreferCached: true})
}

// Get reads a field's raw bytes.
func (a *FieldAccessor) Get(fieldID uint32) ([]byte, error) {
	info, err := a.Offset(fieldID)
	if err != nil {
		return nil, err
	}
	return a.heap.ReadBytes(a.base+uint64(info.Offset), int(info.Layout.Size)), nil
}

// Set writes a field's raw bytes.
func (a *FieldAccessor) Set(fieldID uint32, data []byte) error {
	info, err := a.Offset(fieldID)
	if err != nil {
		return err
	}
	a.heap.WriteBytes(a.base+uint64(info.Offset), data)
	return nil
}

// GetU64/SetU64 are the common case for scalar fields no wider than a
// machine word: the field's own layout size is read or written, zero
// extending/truncating against a uint64 rather than always touching 8
// bytes (a field narrower than a word must not read past its own region).
func (a *FieldAccessor) GetU64(fieldID uint32) (uint64, error) {
	info, err := a.Offset(fieldID)
	if err != nil {
		return 0, err
	}
	n := int(info.Layout.Size)
	if n > 8 {
		n = 8
	}
	raw := a.heap.ReadBytes(a.base+uint64(info.Offset), n)
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(raw[i])
	}
	return v, nil
}

func (a *FieldAccessor) SetU64(fieldID uint32, v uint64) error {
	info, err := a.Offset(fieldID)
	if err != nil {
		return err
	}
	n := int(info.Layout.Size)
	if n > 8 {
		n = 8
	}
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = byte(v)
		v >>= 8
	}
	a.heap.WriteBytes(a.base+uint64(info.Offset), buf)
	return nil
}

// isArrayLike reports whether mt's owner is the core Array`1 type or
// String — the two runtime shapes that begin their data region with a
// length word.
func isArrayLike(mt *typesys.MethodTable) bool {
	id, ok := mt.Owner().CoreID()
	return ok && (id == coreid.ArrayOf1 || id == coreid.String)
}

// ArrayAccessor is valid iff the runtime type is (a generic instantiation
// of) System.Array`1 or System.String.
type ArrayAccessor struct {
	heap *Heap
	ref Ref
	mt *typesys.MethodTable
	elem typesys.Layout
}

// NewArrayAccessor validates r's runtime type and returns an accessor, or
// ErrNotArrayLike.
func NewArrayAccessor(h *Heap, r Ref) (*ArrayAccessor, error) {
	if r.IsNull() {
		return nil, rterr.NullReference{At: "ArrayAccessor"}
	}
	mt, err := h.MethodTableOf(r)
	if err != nil {
		return nil, err
	}
	if !isArrayLike(mt) {
		return nil, rterr.ErrNotArrayLike
	}
	var elem typesys.Layout
	if id, _ := mt.Owner().CoreID(); id == coreid.String {
		elem = typesys.CoreLayout(coreid.Char)
	} else if args := mt.Owner().TypeArgs(); len(args) == 1 {
		d, err := args[0].Resolve(typesys.ResolveContext{})
		if err == nil {
			elem = d.MethodTable().MemLayout(typesys.LayoutOptions{PreferCached: true})
		}
	}
	return &ArrayAccessor{heap: h, ref: r, mt: mt, elem: elem}, nil
}

// Len returns the array's element count.
func (a *ArrayAccessor) Len() uint64 { return a.heap.LoadU64(a.heap.DataAddr(a.ref)) }

// ElementLayout reports the element value layout.
func (a *ArrayAccessor) ElementLayout() typesys.Layout { return a.elem }

// elementAddr computes the address of element i, failing IndexOutOfRange
// past the length.
func (a *ArrayAccessor) elementAddr(i uint64) (uint64, error) {
	if i >= a.Len() {
		return 0, rterr.ErrIndexOutOfRange
	}
	base := a.heap.DataAddr(a.ref) + wordSize
	return base + i*uint64(a.elem.Size), nil
}

// ElementAddr returns element i's heap address, failing IndexOutOfRange
// past the length — the address System.Array`1's GetPointerOfIndex
// returns as a System.Pointer, and that a struct element's own method
// dispatch uses as its receiver address.
func (a *ArrayAccessor) ElementAddr(i uint64) (uint64, error) { return a.elementAddr(i) }

// Element reads element i's raw bytes.
func (a *ArrayAccessor) Element(i uint64) ([]byte, error) {
	addr, err := a.elementAddr(i)
	if err != nil {
		return nil, err
	}
	return a.heap.ReadBytes(addr, int(a.elem.Size)), nil
}

// SetElement writes element i's raw bytes.
func (a *ArrayAccessor) SetElement(i uint64, data []byte) error {
	addr, err := a.elementAddr(i)
	if err != nil {
		return err
	}
	a.heap.WriteBytes(addr, data)
	return nil
}

// AsBytes returns the whole backing slice, sized by the element layout
//.
func (a *ArrayAccessor) AsBytes() []byte {
	n := a.Len()
	if n == 0 {
		return []byte{}
	}
	base := a.heap.DataAddr(a.ref) + wordSize
	return a.heap.ReadBytes(base, int(n)*int(a.elem.Size))
}

// StringAccessor is valid iff the runtime type is System.String (spec
// §4.6).
type StringAccessor struct {
	heap *Heap
	ref Ref
}

// NewStringAccessor validates r's runtime type is System.String.
func NewStringAccessor(h *Heap, r Ref) (*StringAccessor, error) {
	if r.IsNull() {
		return nil, rterr.NullReference{At: "StringAccessor"}
	}
	mt, err := h.MethodTableOf(r)
	if err != nil {
		return nil, err
	}
	id, ok := mt.Owner().CoreID()
	if !ok || id != coreid.String {
		return nil, rterr.ErrWrongType
	}
	return &StringAccessor{heap: h, ref: r}, nil
}

// Len returns the string's length in utf-16 code units.
func (s *StringAccessor) Len() uint64 { return s.heap.LoadU64(s.heap.DataAddr(s.ref)) }

// Units returns the raw utf-16 code units.
func (s *StringAccessor) Units() []uint16 {
	n := int(s.Len())
	raw := s.heap.ReadBytes(s.heap.DataAddr(s.ref)+wordSize, n*2)
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
	}
	return out
}

// String performs a lossy utf-16 -> utf-8 conversion.
func (s *StringAccessor) String() string {
	return string(utf16.Decode(s.Units()))
}
