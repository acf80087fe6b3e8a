package object

import (
	"github.com/lumenrt/corevm/internal/typesys"
)

// NewInstance allocates a zero-initialized instance of d, stamping its
// header and MT slot. Core
// types use their hard-wired layout (invariant I5); user types use their
// computed instance layout.
func NewInstance(h *Heap, d typesys.Descriptor, isStatic bool) Ref {
	layout := valueLayout(d)
	return h.CommonAlloc(d.MethodTable(), layout.Size, isStatic)
}

// NewArray allocates a System.Array`1[element] instance of the given
// length.
func NewArray(h *Heap, arrayDesc typesys.Descriptor, elementDesc typesys.Descriptor, length uint64) Ref {
	elemLayout := valueLayout(elementDesc)
	return h.AllocArray(arrayDesc.MethodTable(), elemLayout, length)
}

// NewManagedString interns s as a System.String instance.
func NewManagedString(h *Heap, stringDesc typesys.Descriptor, s string) Ref {
	units := encodeUTF16(s)
	return h.NewString(stringDesc.MethodTable(), units)
}

func encodeUTF16(s string) []uint16 {
	var out []uint16
	for _, r := range s {
		if r <= 0xFFFF {
			out = append(out, uint16(r))
			continue
		}
		r -= 0x10000
		out = append(out, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
	}
	return out
}

// valueLayout returns d's value layout: its hard-wired core layout if it
// names one, else its computed instance layout (invariant I5, I2).
func valueLayout(d typesys.Descriptor) typesys.Layout {
	if id, ok := d.CoreID(); ok {
		return typesys.CoreLayout(id)
	}
	return d.MethodTable().MemLayout(typesys.LayoutOptions{PreferCached: true})
}
