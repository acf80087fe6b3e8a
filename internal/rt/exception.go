package rt

import (
	"sync"

	"github.com/lumenrt/corevm/internal/object"
	"github.com/lumenrt/corevm/internal/typesys"
)

// ExceptionManager is a processor's single exception slot.
type ExceptionManager struct {
	mu sync.RWMutex
	slot object.Ref
}

// HasException reports whether a throw is pending.
func (m *ExceptionManager) HasException() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.slot.IsNull()
}

// Exception returns the pending exception reference, or object.Null.
func (m *ExceptionManager) Exception() object.Ref {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slot
}

// Set stores ref as the pending exception (spec: "Throw sets it").
func (m *ExceptionManager) Set(ref object.Ref) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slot = ref
}

// Clear empties the slot, e.g. after a caught exception is handled.
func (m *ExceptionManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slot = object.Null
}

// ExceptionCatalog names the Exception-family descriptors and field ids
// the throw helpers need. internal/stdlib builds one of these once its
// core-type catalog exists and wires it into the VM; rt itself only knows
// the shapes it needs (Message, StackTrace, and each host subtype's own
// payload field), not which concrete Descriptor values they are.
type ExceptionCatalog struct {
	Exception typesys.Descriptor // declares Message (field 0), StackTrace (field 1)
	StringType typesys.Descriptor
	StringArrayOf typesys.Descriptor // System.Array`1[System.String]

	Win32Exception typesys.Descriptor // declares Code (field 0, System.UInt64)
	ErrnoException typesys.Descriptor // declares Code (field 0, System.UInt64)
	DlErrorException typesys.Descriptor // declares Message (field 0, string) — its own, distinct from Exception.Message
	InvalidEnumException typesys.Descriptor // declares EnumName (0), Message (1)
}

const (
	fieldExceptionMessage = 0
	fieldExceptionStackTrace = 1
)

// captureStackTrace builds a StackTrace array from stack, newest call
// first, oldest last, skipping HideWhenCapturing frames.
func captureStackTrace(h *object.Heap, cat ExceptionCatalog, stack *CallStack) object.Ref {
	frames := stack.Snapshot()
	n := len(frames)
	ref := object.NewArray(h, cat.StringArrayOf, cat.StringType, uint64(n))
	acc, err := object.NewArrayAccessor(h, ref)
	if err != nil {
		return ref
	}
	for i := 0; i < n; i++ {
		// frames[] is bottom (oldest) to top (newest); the trace reports
		// newest first, so walk it in reverse.
		fr := frames[n-1-i]
		name := "<unknown>"
		if fr.Method != nil {
			name = fr.Method.Signature()
		}
		s := object.NewManagedString(h, cat.StringType, name)
		_ = acc.SetElement(uint64(i), encodeRef(s))
	}
	return ref
}

func encodeRef(r object.Ref) []byte {
	v := uint64(r)
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24), byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56)}
}

func decodeRef(b []byte) object.Ref {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return object.Ref(v)
}

// newException allocates an instance of desc (Exception or a subtype),
// stamps Message and StackTrace , and returns it.
func newException(h *object.Heap, cat ExceptionCatalog, stack *CallStack, desc typesys.Descriptor, message string) object.Ref {
	ref := object.NewInstance(h, desc, false)
	msgAcc, err := object.NewFieldAccessorFor(h, ref, cat.Exception.MethodTable())
	if err == nil {
		msgRef := object.NewManagedString(h, cat.StringType, message)
		_ = msgAcc.Set(fieldExceptionMessage, encodeRef(msgRef))
		trace := captureStackTrace(h, cat, stack)
		_ = msgAcc.Set(fieldExceptionStackTrace, encodeRef(trace))
	}
	return ref
}

// ThrowWin32 constructs and raises a Win32Exception(code).
func (cpu *CPU) ThrowWin32(h *object.Heap, cat ExceptionCatalog, code uint32) {
	ref := newException(h, cat, cpu.Stack, cat.Win32Exception, "Win32 error")
	acc, err := object.NewFieldAccessorFor(h, ref, cat.Win32Exception.MethodTable())
	if err == nil {
		_ = acc.SetU64(0, uint64(code))
	}
	cpu.Exceptions.Set(ref)
}

// ThrowErrno constructs and raises an ErrnoException(code).
func (cpu *CPU) ThrowErrno(h *object.Heap, cat ExceptionCatalog, code int) {
	ref := newException(h, cat, cpu.Stack, cat.ErrnoException, "errno")
	acc, err := object.NewFieldAccessorFor(h, ref, cat.ErrnoException.MethodTable())
	if err == nil {
		_ = acc.SetU64(0, uint64(int64(code)))
	}
	cpu.Exceptions.Set(ref)
}

// ThrowDlError constructs and raises a DlErrorException(message).
func (cpu *CPU) ThrowDlError(h *object.Heap, cat ExceptionCatalog, message string) {
	ref := newException(h, cat, cpu.Stack, cat.DlErrorException, message)
	acc, err := object.NewFieldAccessorFor(h, ref, cat.DlErrorException.MethodTable())
	if err == nil {
		msgRef := object.NewManagedString(h, cat.StringType, message)
		_ = acc.Set(0, encodeRef(msgRef))
	}
	cpu.Exceptions.Set(ref)
}

// ThrowInvalidEnum constructs and raises an InvalidEnumException(enumName,
// message).
func (cpu *CPU) ThrowInvalidEnum(h *object.Heap, cat ExceptionCatalog, enumName, message string) {
	ref := newException(h, cat, cpu.Stack, cat.InvalidEnumException, message)
	acc, err := object.NewFieldAccessorFor(h, ref, cat.InvalidEnumException.MethodTable())
	if err == nil {
		nameRef := object.NewManagedString(h, cat.StringType, enumName)
		msgRef := object.NewManagedString(h, cat.StringType, message)
		_ = acc.Set(0, encodeRef(nameRef))
		_ = acc.Set(1, encodeRef(msgRef))
	}
	cpu.Exceptions.Set(ref)
}

// ThrowManaged raises an already-constructed managed exception object
// directly (the Throw instruction's own path, spec §4.7).
func (cpu *CPU) ThrowManaged(ref object.Ref) {
	cpu.Exceptions.Set(ref)
}
