package typesys

import (
	"sync"

	"github.com/lumenrt/corevm/internal/instr"
	"github.com/lumenrt/corevm/internal/rterr"
)

// MethodTable owns a type's method pointers in definition order. When a
// type has a parent, the table is seeded with the parent's non-static
// method pointers and overrides replace those slots; non-overriding new
// methods append, and static methods live past the non-static region (spec
// §3, §4.4).
type MethodTable struct {
	owner Descriptor

	mu sync.RWMutex
	methods []*Method
	overrides map[int]bool

	layoutMu sync.Mutex
	cachedLayout *Layout
	cachedStaticLayout *Layout
}

// BuildMethodTable seeds from parent (nil for a struct or a root class),
// then folds in ownMethods, replacing the slot named by each method's
// Overrides attribute and appending the rest.
func BuildMethodTable(owner Descriptor, parent *MethodTable, ownMethods []*Method) *MethodTable {
	mt := &MethodTable{owner: owner, overrides: make(map[int]bool)}

	if parent != nil {
		parent.mu.RLock()
		for _, m := range parent.methods {
			if m.Attrs.Static {
				break // static methods are appended after the non-static region
			}
			mt.methods = append(mt.methods, m)
		}
		parent.mu.RUnlock()
	}

	for _, m := range ownMethods {
		if m.Attrs.Overrides != nil {
			slot := int(*m.Attrs.Overrides)
			for slot >= len(mt.methods) {
				mt.methods = append(mt.methods, nil)
			}
			mt.methods[slot] = m
			mt.overrides[slot] = true
		} else {
			mt.methods = append(mt.methods, m)
		}
	}
	return mt
}

// Clone duplicates mt's method slice verbatim for a generic instantiation's
// child descriptor: the child's MT shares the generic parent's method
// pointers but gets its own owner back-pointer.
func (mt *MethodTable) Clone(owner Descriptor) *MethodTable {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	child := &MethodTable{
		owner: owner,
		methods: append([]*Method(nil), mt.methods...),
		overrides: make(map[int]bool, len(mt.overrides)),
	}
	for k, v := range mt.overrides {
		child.overrides[k] = v
	}
	return child
}

// Owner returns the type this table belongs to.
func (mt *MethodTable) Owner() Descriptor { return mt.owner }

// Get returns the method at slot id.
func (mt *MethodTable) Get(id uint32) (*Method, bool) {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	if int(id) >= len(mt.methods) {
		return nil, false
	}
	m := mt.methods[id]
	return m, m != nil
}

// FindFirstByName returns the first method with the given name, in table
// order.
func (mt *MethodTable) FindFirstByName(name string) (*Method, bool) {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	for _, m := range mt.methods {
		if m != nil && m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// FindLastIndexByName returns the slot id of the last method with the
// given name, by convention how a static constructor (".sctor") is located
// when no explicit id was recorded.
func (mt *MethodTable) FindLastIndexByName(name string) (uint32, bool) {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	for i := len(mt.methods) - 1; i >= 0; i-- {
		if mt.methods[i] != nil && mt.methods[i].Name == name {
			return uint32(i), true
		}
	}
	return 0, false
}

// Resolve looks up the method a bytecode MethodRef names, instantiating
// its generic variant against ctx if the ref carries explicit type
// arguments.
func (mt *MethodTable) Resolve(ref instr.MethodRef, ctx ResolveContext) (*Method, error) {
	m, ok := mt.Get(ref.Index)
	if !ok {
		return nil, rterr.UnknownMethod{Name: "<slot>"}
	}
	if !ref.Specific {
		return m, nil
	}
	args := make([]Descriptor, len(ref.TypeArgs))
	for i, t := range ref.TypeArgs {
		h, err := genericHandleFromToken(mt.owner.OwnerAssembly(), t)
		if err != nil {
			return nil, err
		}
		d, err := h.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		args[i] = d
	}
	return m.Instantiate(args), nil
}

// Len reports how many method slots the table currently has.
func (mt *MethodTable) Len() int {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return len(mt.methods)
}

// --- Layout ---

// LayoutOptions mirrors the teacher's cache-control knobs: prefer a cached
// value when present, or skip memoizing a freshly computed one (spec
// §4.4's "prefer_cached"/"discard_calculated").
type LayoutOptions struct {
	PreferCached bool
	DiscardCalculated bool
}

// MemLayout returns the type's instance layout: a core type's is hard-wired
// by id (invariant I5); otherwise it's the parent's instance layout
// extended by this type's own non-static fields (invariant I2).
func (mt *MethodTable) MemLayout(opts LayoutOptions) Layout {
	mt.layoutMu.Lock()
	if opts.PreferCached && mt.cachedLayout != nil {
		l := *mt.cachedLayout
		mt.layoutMu.Unlock()
		return l
	}
	mt.layoutMu.Unlock()

	var layout Layout
	if id, ok := mt.owner.CoreID(); ok {
		layout = CoreLayout(id)
	} else {
		layout = mt.calcLayout(func(f *Field) bool { return !f.Attrs.Static })
	}

	if !opts.DiscardCalculated {
		mt.layoutMu.Lock()
		mt.cachedLayout = &layout
		mt.layoutMu.Unlock()
	}
	return layout
}

// StaticLayout returns the extended sum of this type's own static fields
// (invariant I3); statics are never inherited from a parent.
func (mt *MethodTable) StaticLayout(opts LayoutOptions) Layout {
	mt.layoutMu.Lock()
	if opts.PreferCached && mt.cachedStaticLayout != nil {
		l := *mt.cachedStaticLayout
		mt.layoutMu.Unlock()
		return l
	}
	mt.layoutMu.Unlock()

	var layout Layout
	for _, f := range mt.owner.Fields() {
		if f.Attrs.Static {
			layout, _ = layout.Extend(fieldLayout(f))
		}
	}

	if !opts.DiscardCalculated {
		mt.layoutMu.Lock()
		mt.cachedStaticLayout = &layout
		mt.layoutMu.Unlock()
	}
	return layout
}

func (mt *MethodTable) calcLayout(check func(*Field) bool) Layout {
	var total Layout
	if p := mt.owner.Parent(); p != nil {
		total = p.MethodTable().calcLayout(check)
	}
	for _, f := range mt.owner.Fields() {
		if !check(f) {
			continue
		}
		fl := fieldLayout(f)
		total, _ = total.Extend(fl)
	}
	return total
}

// FieldMemInfo is the result of locating one field's offset, layout, and
// resolved type.
type FieldMemInfo struct {
	Offset uintptr
	Layout Layout
}

// FieldOffset computes field i's offset by iterating fields 0..=i,
// extending the running layout and recording the offset at i.
// Static and non-static fields are laid out in separate regions, selected
// by static.
func (mt *MethodTable) FieldOffset(i uint32, static bool, opts LayoutOptions) (FieldMemInfo, error) {
	fields := mt.owner.Fields()
	if int(i) >= len(fields) {
		return FieldMemInfo{}, rterr.UnknownField{ID: i}
	}
	f := fields[i]
	if f.Attrs.Static != static {
		return FieldMemInfo{}, rterr.UnknownField{ID: i}
	}

	if opts.PreferCached {
		var cachedOff uintptr
		var ok bool
		if static {
			cachedOff, ok = f.CachedStaticOffset()
		} else {
			cachedOff, ok = f.CachedOffset()
		}
		if ok {
			if l, lok := f.CachedLayout(); lok {
				return FieldMemInfo{Offset: cachedOff, Layout: l}, nil
			}
		}
	}

	check := func(x *Field) bool { return x.Attrs.Static == static }
	var total Layout
	if !static {
		if p := mt.owner.Parent(); p != nil {
			total = p.MethodTable().calcLayout(check)
		}
	}
	var offset uintptr
	for idx := uint32(0); idx <= i; idx++ {
		if !check(fields[idx]) {
			continue
		}
		fl := fieldLayout(fields[idx])
		total, offset = total.Extend(fl)
	}

	if !opts.DiscardCalculated {
		if static {
			f.SetCachedStaticOffset(offset)
		} else {
			f.SetCachedOffset(offset)
		}
	}
	return FieldMemInfo{Offset: offset, Layout: fieldLayout(f)}, nil
}

func fieldLayout(f *Field) Layout {
	if l, ok := f.CachedLayout(); ok {
		return l
	}
	l := resolveFieldLayout(f)
	f.SetCachedLayout(l)
	return l
}

// resolveFieldLayout resolves a field's type handle with an empty
// ResolveContext — user fields never reference an unbound generic
// parameter directly without their owner's type-vars, which callers with a
// live interpreter context supply through ValueLayoutWithContext instead
// (internal/rt wires this at call sites where a concrete type-var binding
// exists).
func resolveFieldLayout(f *Field) Layout {
	d, err := f.Type.Resolve(ResolveContext{})
	if err != nil {
		return Layout{}
	}
	return d.MethodTable().MemLayout(LayoutOptions{PreferCached: true})
}
