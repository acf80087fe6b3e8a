package typesys

import "github.com/lumenrt/corevm/internal/coreid"

// Struct is a value type: it never carries a parent pointer.
type Struct struct {
	Assembly *Assembly
	Name string
	Visibility Visibility
	fields []*Field
	staticCtorID uint32
	genericBounds []GenericBound

	mt *MethodTable

	genericParent *Struct
	typeArgs []*TypeHandle
	instances *instanceCache
}

// NewStruct constructs a struct descriptor and its method table.
func NewStruct(asm *Assembly, name string, vis Visibility, fields []*Field, genericBounds []GenericBound, methodGen func(*Struct) []*Method) *Struct {
	s := &Struct{Assembly: asm, Name: name, Visibility: vis, fields: fields, genericBounds: genericBounds}
	if len(genericBounds) > 0 {
		s.instances = newInstanceCache()
	}
	s.mt = BuildMethodTable(s, nil, methodGen(s))
	return s
}

func (s *Struct) TypeName() string { return s.Name }
func (s *Struct) IsStruct() bool { return true }
func (s *Struct) OwnerAssembly() *Assembly { return s.Assembly }
func (s *Struct) MethodTable() *MethodTable { return s.mt }
func (s *Struct) Fields() []*Field { return s.fields }
func (s *Struct) Parent() Descriptor { return nil }
func (s *Struct) StaticCtorFieldID() uint32 { return s.staticCtorID }
func (s *Struct) TypeArgs() []*TypeHandle { return s.typeArgs }
func (s *Struct) GenericBounds() []GenericBound {
	if s.genericParent != nil {
		return s.genericParent.genericBounds
	}
	return s.genericBounds
}

func (s *Struct) CoreID() (coreid.ID, bool) {
	if !s.Assembly.IsCore {
		return 0, false
	}
	return s.Assembly.coreIDOf(s.Name)
}

func (s *Struct) SetStaticCtorFieldID(id uint32) { s.staticCtorID = id }

func (s *Struct) instantiate(args []Descriptor, argHandles []*TypeHandle) (*Struct, error) {
	if s.instances == nil {
		s.instances = newInstanceCache()
	}
	s.instances.mu.Lock()
	defer s.instances.mu.Unlock()
	k := key(args)
	if cached, ok := s.instances.byKey[k]; ok {
		return cached.(*Struct), nil
	}
	child := &Struct{
		Assembly: s.Assembly,
		Name: s.Name,
		Visibility: s.Visibility,
		genericParent: s,
		typeArgs: argHandles,
	}
	child.fields = make([]*Field, len(s.fields))
	for i, f := range s.fields {
		child.fields[i] = NewField(f.Name, f.Attrs, f.Type)
	}
	child.mt = s.mt.Clone(child)
	s.instances.byKey[k] = child
	return child, nil
}
