// Package rterr collects the error kinds named in the runtime's error
// design: codec, resolution, execution, and host errors. Each is a small
// concrete error type rather than a single opaque enum, composed with
// fmt.Errorf("...: %w", ...) the way the teacher composes parser errors.
package rterr

import "fmt"

// Codec errors (§7).

var (
	ErrWrongFileSize  = fmt.Errorf("corevm: wrong file size")
	ErrWrongFormat    = fmt.Errorf("corevm: wrong format")
	ErrIntOutOfRange  = fmt.Errorf("corevm: integer out of range")
	ErrIndexOutOfRange = fmt.Errorf("corevm: index out of range")
	ErrInvalidChar    = fmt.Errorf("corevm: invalid char")
)

// UnknownSection is returned when a section id is past the image's section
// table.
type UnknownSection struct{ ID uint32 }

func (e UnknownSection) Error() string { return fmt.Sprintf("corevm: unknown section %d", e.ID) }

// UnknownStringRef is returned when a StringRef points outside the string
// section.
type UnknownStringRef struct{ Ref uint32 }

func (e UnknownStringRef) Error() string {
	return fmt.Sprintf("corevm: unknown string ref %#x", e.Ref)
}

// EnumOutOfBounds is returned when a tagged byte doesn't name a known
// variant of TypeName.
type EnumOutOfBounds struct{ TypeName string }

func (e EnumOutOfBounds) Error() string {
	return fmt.Sprintf("corevm: enum out of bounds for %s", e.TypeName)
}

// Resolution errors.

var (
	ErrInheritFromGeneric    = fmt.Errorf("corevm: cannot inherit from a generic type")
	ErrWrongParentType       = fmt.Errorf("corevm: parent token does not resolve to a class")
	ErrUnknownType           = fmt.Errorf("corevm: unknown type")
	ErrFailedMakeGeneric     = fmt.Errorf("corevm: failed to instantiate generic")
	ErrGenericNotInitialized = fmt.Errorf("corevm: generic type has no bound type arguments")
	ErrResolutionNotCompleted = fmt.Errorf("corevm: MaybeUnloaded handle still unresolved")
)

// UnknownField is returned by field lookups with no matching id.
type UnknownField struct{ ID uint32 }

func (e UnknownField) Error() string { return fmt.Sprintf("corevm: unknown field %d", e.ID) }

// UnknownMethod is returned by method-table lookups with no matching id.
type UnknownMethod struct{ Name string }

func (e UnknownMethod) Error() string { return fmt.Sprintf("corevm: unknown method %q", e.Name) }

// Execution errors (§7), raised inside the interpreter. internal/rt
// returns them as plain Go errors from the faulting invocation up through
// VM.Invoke; they are not stored in the processor's exception slot.

// FailedReadRegister/FailedWriteRegister are returned when an instruction
// names a register id outside the current frame.
type FailedReadRegister struct{ ID uint64 }

func (e FailedReadRegister) Error() string {
	return fmt.Sprintf("corevm: failed to read register %#x", e.ID)
}

type FailedWriteRegister struct{ ID uint64 }

func (e FailedWriteRegister) Error() string {
	return fmt.Sprintf("corevm: failed to write register %#x", e.ID)
}

// NullReference is returned when a managed reference is dereferenced while
// nil; At names the instruction operand that held it.
type NullReference struct{ At string }

func (e NullReference) Error() string { return fmt.Sprintf("corevm: null reference at %s", e.At) }

var (
	ErrAllInstructionsExecuted  = fmt.Errorf("corevm: method fell off its own end without returning")
	ErrUnsupportedAttributeType = fmt.Errorf("corevm: unsupported attribute type")
	ErrWrongType                = fmt.Errorf("corevm: wrong type")
	ErrUninitializedMethodTable = fmt.Errorf("corevm: method table not yet built")
	ErrBrokenReference          = fmt.Errorf("corevm: broken MaybeUnloaded reference")
	ErrConstructStaticClass     = fmt.Errorf("corevm: static constructor failed")
	ErrNotArrayLike             = fmt.Errorf("corevm: value is not array-like")
	ErrMethodReturnsAbnormally  = fmt.Errorf("corevm: method returned without setting ret_at")
	ErrElementTooWide           = fmt.Errorf("corevm: array element wider than one machine word")
)

// UnmarshalFailed wraps a marshalling failure of some inner value.
type UnmarshalFailed struct{ Inner error }

func (e UnmarshalFailed) Error() string { return fmt.Sprintf("corevm: unmarshal failed: %v", e.Inner) }
func (e UnmarshalFailed) Unwrap() error { return e.Inner }

// Host errors (§7), surfaced as managed exceptions via the throw helpers
// in internal/rt.

type Win32Exception struct{ Code uint32 }

func (e Win32Exception) Error() string { return fmt.Sprintf("corevm: win32 error %#x", e.Code) }

type ErrnoException struct{ Code int }

func (e ErrnoException) Error() string { return fmt.Sprintf("corevm: errno %d", e.Code) }

type DlErrorException struct{ Message string }

func (e DlErrorException) Error() string { return fmt.Sprintf("corevm: dlerror: %s", e.Message) }

type InvalidEnumException struct {
	EnumName string
	Message  string
}

func (e InvalidEnumException) Error() string {
	return fmt.Sprintf("corevm: invalid value for enum %s: %s", e.EnumName, e.Message)
}

var (
	ErrUnsupportedPlatform = fmt.Errorf("corevm: unsupported platform")
)
