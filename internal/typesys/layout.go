package typesys

import "github.com/lumenrt/corevm/internal/coreid"

// Layout is a size/align pair for an in-memory value, computed the same
// way spec §4.4 describes: a struct's layout is the extended sum of its
// field layouts in order; a class's is its parent's layout extended by its
// own non-static fields (invariant I2).
type Layout struct {
	Size uintptr
	Align uintptr
}

// Empty is the zero-sized layout, e.g. System.Void.
var Empty = Layout{Size: 0, Align: 1}

func scalar(n uintptr) Layout { return Layout{Size: n, Align: n} }

func alignUp(v, align uintptr) uintptr {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// Extend appends next after l, padding for next's alignment, and returns
// the combined layout plus the offset next was placed at.
func (l Layout) Extend(next Layout) (combined Layout, offset uintptr) {
	if next.Align == 0 {
		next.Align = 1
	}
	offset = alignUp(l.Size, next.Align)
	combined.Size = offset + next.Size
	combined.Align = l.Align
	if next.Align > combined.Align {
		combined.Align = next.Align
	}
	if combined.Align == 0 {
		combined.Align = 1
	}
	return combined, offset
}

const wordSize = 8 // pointer-sized word

// coreLayouts hard-wires the fixed memory layout of every core type by id
// : classes get one pointer-sized word standing in
// for their ManagedReference slot when embedded by value (never the case
// for Object/String/Array/Exception themselves, whose *objects* are always
// reached by reference — this is the layout of a *value* of that type,
// i.e. the reference's own size).
var coreLayouts = [coreid.Count]Layout{
	coreid.Object: scalar(wordSize),
	coreid.Void: Empty,
	coreid.Boolean: scalar(1),
	coreid.UInt8: scalar(1),
	coreid.Int8: scalar(1),
	coreid.UInt16: scalar(2),
	coreid.Int16: scalar(2),
	coreid.UInt32: scalar(4),
	coreid.Int32: scalar(4),
	coreid.UInt64: scalar(8),
	coreid.Int64: scalar(8),
	coreid.USize: scalar(wordSize),
	coreid.Char: scalar(2),
	coreid.String: scalar(wordSize),
	coreid.ArrayOf1: scalar(wordSize),
	coreid.Exception: scalar(wordSize),
	coreid.Pointer: scalar(wordSize),
	coreid.NonPurusCallType: scalar(wordSize),
	coreid.NonPurusCallConfiguration: scalar(wordSize),
	coreid.DynamicLibrary: scalar(wordSize),
	coreid.Win32Exception: scalar(wordSize),
	coreid.ErrnoException: scalar(wordSize),
	coreid.DlErrorException: scalar(wordSize),
	coreid.InvalidEnumException: scalar(wordSize),
}

// CoreLayout returns the hard-wired layout for a core type id.
func CoreLayout(id coreid.ID) Layout { return coreLayouts[id] }
