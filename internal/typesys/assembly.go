package typesys

import (
	"fmt"
	"sync"

	"github.com/lumenrt/corevm/internal/coreid"
	"github.com/lumenrt/corevm/internal/rterr"
	"github.com/lumenrt/corevm/internal/token"
)

// Assembly is a named container of types, strings, and cross-references
//. "!" by convention names the core assembly.
type Assembly struct {
	Name string
	IsCore bool

	manager *AssemblyManager

	mu sync.RWMutex
	types []Descriptor
	strings []string
	typeRefs []TypeRef
	typeSpecs []TypeSpecRef
	methodSpecs []MethodSpecRef

	coreNameToID map[string]coreid.ID
}

// MethodSpecRef names a generic method instantiation recorded in a
// method-spec table entry.
type MethodSpecRef struct {
	MethodIndex uint32
	Generics []token.Token
}

// NewAssembly registers an empty assembly with am. Registration enforces
// name uniqueness.
func NewAssembly(am *AssemblyManager, name string, isCore bool) (*Assembly, error) {
	return am.add(name, isCore)
}

// AddString interns a string and returns its StringRef (its index).
func (a *Assembly) AddString(s string) uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.strings = append(a.strings, s)
	return uint32(len(a.strings) - 1)
}

// GetString looks up an interned string by ref, failing UnknownStringRef if
// out of range.
func (a *Assembly) GetString(ref uint32) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(ref) >= len(a.strings) {
		return "", rterr.UnknownStringRef{Ref: ref}
	}
	return a.strings[ref], nil
}

// AddType appends a type descriptor and returns its index.
func (a *Assembly) AddType(d Descriptor) uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.types = append(a.types, d)
	return uint32(len(a.types) - 1)
}

// TypeByIndex looks up a type descriptor by its TypeDef index.
func (a *Assembly) TypeByIndex(i uint32) (Descriptor, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(i) >= len(a.types) || a.types[i] == nil {
		return nil, rterr.ErrUnknownType
	}
	return a.types[i], nil
}

// ReserveTypes pre-sizes the type-def slot vector to n, the way
// internal/container's loader needs to: every TypeDef index an on-disk
// type-ref/field/parent token names must resolve via TypeByIndex before
// every type in the file is necessarily built, since building order
// follows parent dependency rather than file order.
func (a *Assembly) ReserveTypes(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.types) < n {
		grown := make([]Descriptor, n)
		copy(grown, a.types)
		a.types = grown
	}
}

// SetType fills a previously reserved TypeDef slot with its built
// descriptor.
func (a *Assembly) SetType(i uint32, d Descriptor) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(i) >= len(a.types) {
		grown := make([]Descriptor, i+1)
		copy(grown, a.types)
		a.types = grown
	}
	a.types[i] = d
}

// Types returns every registered type descriptor, in TypeDef index order
// (reserved-but-not-yet-built slots are omitted).
func (a *Assembly) Types() []Descriptor {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Descriptor, 0, len(a.types))
	for _, d := range a.types {
		if d != nil {
			out = append(out, d)
		}
	}
	return out
}

// FindTypeByName looks up a type by its simple name, the way a CLI entry
// point picks a Main type/method out of a loaded assembly.
func (a *Assembly) FindTypeByName(name string) (Descriptor, bool) {
	for _, d := range a.Types() {
		if d.TypeName() == name {
			return d, true
		}
	}
	return nil, false
}

// AddTypeRef/AddTypeSpec/AddMethodSpec append to their respective tables
//.
func (a *Assembly) AddTypeRef(r TypeRef) uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.typeRefs = append(a.typeRefs, r)
	return uint32(len(a.typeRefs) - 1)
}
func (a *Assembly) AddTypeSpec(s TypeSpecRef) uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.typeSpecs = append(a.typeSpecs, s)
	return uint32(len(a.typeSpecs) - 1)
}
func (a *Assembly) AddMethodSpec(s MethodSpecRef) uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.methodSpecs = append(a.methodSpecs, s)
	return uint32(len(a.methodSpecs) - 1)
}

func (a *Assembly) TypeRefByIndex(i uint32) (TypeRef, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(i) >= len(a.typeRefs) {
		return TypeRef{}, rterr.ErrUnknownType
	}
	return a.typeRefs[i], nil
}
func (a *Assembly) TypeSpecByIndex(i uint32) (TypeSpecRef, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(i) >= len(a.typeSpecs) {
		return TypeSpecRef{}, rterr.ErrUnknownType
	}
	return a.typeSpecs[i], nil
}
func (a *Assembly) MethodSpecByIndex(i uint32) (MethodSpecRef, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(i) >= len(a.methodSpecs) {
		return MethodSpecRef{}, rterr.ErrUnknownType
	}
	return a.methodSpecs[i], nil
}

// RegisterCoreName binds a core type's simple name to its catalog id,
// populated once while the core assembly's stdlib catalog is built
// (internal/stdlib).
func (a *Assembly) RegisterCoreName(name string, id coreid.ID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.coreNameToID == nil {
		a.coreNameToID = make(map[string]coreid.ID)
	}
	a.coreNameToID[name] = id
}

func (a *Assembly) coreIDOf(name string) (coreid.ID, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.coreNameToID[name]
	return id, ok
}

// AssemblyManager owns the VM's list of registered assemblies.
type AssemblyManager struct {
	mu sync.RWMutex
	byName map[string]*Assembly
	ordered []*Assembly
}

// NewAssemblyManager returns an empty manager.
func NewAssemblyManager() *AssemblyManager {
	return &AssemblyManager{byName: make(map[string]*Assembly)}
}

func (am *AssemblyManager) add(name string, isCore bool) (*Assembly, error) {
	am.mu.Lock()
	defer am.mu.Unlock()
	if _, exists := am.byName[name]; exists {
		return nil, fmt.Errorf("typesys: assembly %q already registered", name)
	}
	a := &Assembly{Name: name, IsCore: isCore, manager: am}
	am.byName[name] = a
	am.ordered = append(am.ordered, a)
	return a, nil
}

// Find looks up a registered assembly by name.
func (am *AssemblyManager) Find(name string) (*Assembly, error) {
	am.mu.RLock()
	defer am.mu.RUnlock()
	a, ok := am.byName[name]
	if !ok {
		return nil, fmt.Errorf("typesys: unknown assembly %q", name)
	}
	return a, nil
}

// All returns every registered assembly in registration order.
func (am *AssemblyManager) All() []*Assembly {
	am.mu.RLock()
	defer am.mu.RUnlock()
	return append([]*Assembly(nil), am.ordered...)
}

// Core returns the registered core assembly ("!").
func (am *AssemblyManager) Core() (*Assembly, error) { return am.Find("!") }
