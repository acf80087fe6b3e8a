package typesys

import (
	"strings"
	"sync"

	"github.com/lumenrt/corevm/internal/instr"
)

// CallConvention is the method's own calling convention tag, distinct from
// internal/ffi's non-purus CallConvention: this one only ever means
// "ordinary managed call" in the core, but is kept as a field so a loader
// can round-trip whatever the binary format records.
type CallConvention uint8

// Parameter is `{by-ref?: bool, type: MaybeUnloaded}`. ByRef
// means the caller passes a pointer.
type Parameter struct {
	ByRef bool
	Type *TypeHandle
}

// MethodAttrs carries the signature's visibility and behavioral flags
//.
type MethodAttrs struct {
	Visibility Visibility
	Static bool
	ImplementedByRuntime bool
	HideWhenCapturing bool
	Overrides *uint32 // slot index this method replaces in the parent's table, if any
}

// NativeFunc is the Go implementation of a method whose entry point is not
// the default bytecode interpreter. Args/ret are machine words addressed the
// same way the interpreter's register frame addresses them — see
// internal/rt for the calling convention between the interpreter and
// native methods.
type NativeFunc func(args []uint64) ([]byte, error)

// NativeContext is the handle a context-aware native method receives
// alongside its argument words: a way to invoke another method on the
// processor that's calling it (virtual dispatch into a value the native
// only holds a reference to, the way Array`1.ToString calls each
// element's own ToString slot) and a way to read that processor's current
// call stack (the way Exception's constructor captures StackTrace).
type NativeContext interface {
	Invoke(m *Method, this uint64, args []uint64) ([]byte, error)
	StackTrace() []string
}

// NativeCtxFunc is NativeFunc's context-aware sibling: for the handful of
// core methods that need to call back into the VM instead of just reading
// and writing the receiver's own bytes.
type NativeCtxFunc func(ctx NativeContext, args []uint64) ([]byte, error)

// Method is one declared method: a signature, calling convention, optional
// generic bounds, instruction list (empty for natives), and entry point
//.
type Method struct {
	Name string
	Attrs MethodAttrs
	Params []Parameter
	Return *TypeHandle
	Locals []*TypeHandle
	Convention CallConvention

	GenericBounds []GenericBound
	Instructions []instr.Instruction // empty when Native/NativeCtx != nil
	Native NativeFunc // nil for bytecode methods
	NativeCtx NativeCtxFunc // nil unless the native needs VM/stack context

	// Owner is the type this method was declared on (or, for an
	// instantiated generic method, the generic method it was instantiated
	// from carries the owner instead).
	Owner Descriptor

	mu sync.Mutex
	instances map[string]*Method // generic-method instantiation cache, keyed like typesys.key
}

// IsBytecode reports whether this method's entry point is the default
// interpreter.
func (m *Method) IsBytecode() bool { return m.Native == nil && m.NativeCtx == nil }

// Instantiate resolves a generic method's bound type arguments, returning
// the cached instantiation or building and caching a new one.
func (m *Method) Instantiate(args []Descriptor) *Method {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.instances == nil {
		m.instances = make(map[string]*Method)
	}
	k := key(args)
	if cached, ok := m.instances[k]; ok {
		return cached
	}
	child := *m
	child.instances = nil
	// Bytecode/Locals/Params type handles are left pointing at the
	// original generic-parameter handles; a ResolveContext carrying these
	// concrete args is supplied by the caller when it next resolves them
	// (internal/rt binds MethodTypeVars from Specific{... types} at call
	// time rather than baking them into the cached Method, since a Go
	// value receiver copy here only needs to be distinct for dispatch
	// bookkeeping, not to pre-resolve every operand).
	m.instances[k] = &child
	return &child
}

// Signature renders a human-readable signature, the way the teacher's own
// debug dump of a parsed function signature does (std/compiler/parser.go).
func (m *Method) Signature() string {
	var b strings.Builder
	if m.Attrs.Static {
		b.WriteString("static ")
	}
	b.WriteString(m.Name)
	b.WriteByte('(')
	for i := range m.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		if m.Params[i].ByRef {
			b.WriteString("ref ")
		}
		b.WriteString("arg")
	}
	b.WriteByte(')')
	return b.String()
}
