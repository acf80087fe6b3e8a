package typesys

import (
	"github.com/lumenrt/corevm/internal/coreid"
)

// Class is a reference type: it may have a parent, and its instances are
// always reached through a ManagedReference.
type Class struct {
	Assembly *Assembly
	Name string
	Visibility Visibility
	ParentHandle *TypeHandle // nil for a root class
	fields []*Field
	staticCtorID uint32
	genericBounds []GenericBound

	mt *MethodTable

	// Set only on instantiated generic children.
	genericParent *Class
	typeArgs []*TypeHandle
	instances *instanceCache // set only on the open generic definition
}

// NewClass constructs a class descriptor and its method table in one step,
// the way BuildMethodTable expects an owner to already exist.
func NewClass(asm *Assembly, name string, vis Visibility, parent *TypeHandle, fields []*Field, genericBounds []GenericBound, methodGen func(*Class) []*Method) *Class {
	c := &Class{
		Assembly: asm,
		Name: name,
		Visibility: vis,
		ParentHandle: parent,
		fields: fields,
		genericBounds: genericBounds,
	}
	if len(genericBounds) > 0 {
		c.instances = newInstanceCache()
	}
	var parentMT *MethodTable
	if parent != nil {
		if pd, err := parent.Resolve(ResolveContext{AssemblyManager: asm.manager}); err == nil {
			if pc, ok := pd.(*Class); ok {
				parentMT = pc.mt
			}
		}
	}
	c.mt = BuildMethodTable(c, parentMT, methodGen(c))
	return c
}

func (c *Class) TypeName() string { return c.Name }
func (c *Class) IsStruct() bool { return false }
func (c *Class) OwnerAssembly() *Assembly { return c.Assembly }
func (c *Class) MethodTable() *MethodTable { return c.mt }
func (c *Class) Fields() []*Field { return c.fields }
func (c *Class) StaticCtorFieldID() uint32 { return c.staticCtorID }
func (c *Class) TypeArgs() []*TypeHandle { return c.typeArgs }
func (c *Class) GenericBounds() []GenericBound {
	if c.genericParent != nil {
		return c.genericParent.genericBounds
	}
	return c.genericBounds
}

// Parent resolves ParentHandle, returning nil if this class is a root
// class or if the handle fails to resolve. It reports no error and does
// not check whether the resolved parent is a struct or a still-generic
// type.
func (c *Class) Parent() Descriptor {
	if c.ParentHandle == nil {
		return nil
	}
	d, err := c.ParentHandle.Resolve(ResolveContext{AssemblyManager: c.Assembly.manager})
	if err != nil {
		return nil
	}
	return d
}

// CoreID reports this class's core-catalog id, if the owning assembly is
// the core assembly.
func (c *Class) CoreID() (coreid.ID, bool) {
	if !c.Assembly.IsCore {
		return 0, false
	}
	return c.Assembly.coreIDOf(c.Name)
}

// SetStaticCtorFieldID records the static constructor's method-table slot
//.
func (c *Class) SetStaticCtorFieldID(id uint32) { c.staticCtorID = id }

// instantiate returns the cached instantiation of c for args, or builds and
// caches a new one by deep-duplicating c's fields and method table (spec
// §4.5).
func (c *Class) instantiate(args []Descriptor, argHandles []*TypeHandle) (*Class, error) {
	if c.instances == nil {
		c.instances = newInstanceCache()
	}
	c.instances.mu.Lock()
	defer c.instances.mu.Unlock()
	k := key(args)
	if cached, ok := c.instances.byKey[k]; ok {
		return cached.(*Class), nil
	}

	child := &Class{
		Assembly: c.Assembly,
		Name: c.Name,
		Visibility: c.Visibility,
		ParentHandle: c.ParentHandle,
		genericParent: c,
		typeArgs: argHandles,
	}
	// Fields are cloned with fresh caches since layouts depend on the
	// bound type arguments.
	child.fields = make([]*Field, len(c.fields))
	for i, f := range c.fields {
		child.fields[i] = NewField(f.Name, f.Attrs, f.Type)
	}
	child.mt = c.mt.Clone(child)

	c.instances.byKey[k] = child
	return child, nil
}
