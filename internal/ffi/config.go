// Package ffi implements the "non-purus call" bridge: a configurable
// description of a foreign-function call (calling convention, return type,
// string encoding, object strategy, argument shapes) plus the logic to
// synthesize a call interface and marshal/unmarshal that configuration
// to/from managed objects. No libffi binding or other native
// FFI library appears anywhere in the retrieval pack, so the CIF synthesis
// here (abi_*.go) is built on the standard library and unsafe, following
// the argument-classification tables the teacher's own native-codegen
// backends use for their target ABIs (std/compiler/x64.go,
// std/compiler/backend_windows_x64.go) — see DESIGN.md.
package ffi

// CallConvention selects the platform ABI a non-purus call is synthesized
// against.
type CallConvention uint8

const (
	CallConventionPlatformDefault CallConvention = iota
	CallConventionCDecl
	CallConventionCDeclWithVararg
	CallConventionStdCall
	CallConventionFastCall
	CallConventionWin64
	CallConventionSysV
)

// StringEncoding selects how System.String arguments are re-encoded before
// the raw call.
type StringEncoding uint8

const (
	StringEncodingUtf16 StringEncoding = iota
	StringEncodingUtf8
	StringEncodingCUtf16
	StringEncodingCUtf8
	StringEncodingRemain
)

// ObjectStrategy selects whether a managed object argument is passed as its
// own pointer or repointed at its field-data region.
type ObjectStrategy uint8

const (
	ObjectStrategyRemain ObjectStrategy = iota
	ObjectStrategyPointToData
)

// TypeKind is the discriminant of a NonPurusCallType. Structure uses 0xFF
// per spec §6's wire form.
type TypeKind uint8

const (
	TypeVoid TypeKind = iota
	TypeU8
	TypeI8
	TypeU16
	TypeI16
	TypeU32
	TypeI32
	TypeU64
	TypeI64
	TypeString
	TypeObject
	TypeStructure TypeKind = 0xFF
)

// CallType is the sum NonPurusCallType: a scalar kind, or Structure with a
// nested field list.
type CallType struct {
	Kind TypeKind
	Fields []CallType // populated only when Kind == TypeStructure
}

// Scalar builds a non-structure CallType.
func Scalar(k TypeKind) CallType { return CallType{Kind: k} }

// Structure builds a Structure CallType from its field types.
func Structure(fields...CallType) CallType {
	return CallType{Kind: TypeStructure, Fields: fields}
}

// Discriminant returns the wire discriminant byte for this type.
func (t CallType) Discriminant() uint8 { return uint8(t.Kind) }

// Argument is one entry of a Configuration's argument list: whether the
// caller passes a pointer to the value (ByRef) and the value's declared
// NonPurusCallType.
type Argument struct {
	ByRef bool
	Type CallType
}

// Configuration is the NonPurusCallConfiguration: everything needed to
// synthesize a call interface for one non-purus call site.
type Configuration struct {
	CallConvention CallConvention
	ReturnType CallType
	Encoding StringEncoding
	ObjectStrategy ObjectStrategy
	Arguments []Argument
}

// Equal reports whether two configurations describe the same call shape,
// used by the marshal/unmarshal round-trip property.
func (c Configuration) Equal(o Configuration) bool {
	if c.CallConvention != o.CallConvention || c.Encoding != o.Encoding ||
		c.ObjectStrategy != o.ObjectStrategy || !c.ReturnType.equal(o.ReturnType) ||
		len(c.Arguments) != len(o.Arguments) {
		return false
	}
	for i := range c.Arguments {
		if c.Arguments[i].ByRef != o.Arguments[i].ByRef ||
			!c.Arguments[i].Type.equal(o.Arguments[i].Type) {
			return false
		}
	}
	return true
}

func (t CallType) equal(o CallType) bool {
	if t.Kind != o.Kind || len(t.Fields) != len(o.Fields) {
		return false
	}
	for i := range t.Fields {
		if !t.Fields[i].equal(o.Fields[i]) {
			return false
		}
	}
	return true
}
