// Package rt is the execution core: register frames, the per-processor
// logical call stack, the bytecode interpreter, static-field
// initialization, exception propagation, and the managed-object side of
// non-purus call marshalling. It is the glue between
// internal/typesys's descriptors, internal/object's heap, and
// internal/ffi's raw ABI dispatch.
package rt

import (
	"sync"

	"github.com/lumenrt/corevm/internal/object"
	"github.com/lumenrt/corevm/internal/rterr"
	"github.com/lumenrt/corevm/internal/typesys"
)

// RegisterFrame is the arena for one Common method invocation: locals are
// laid out the same way a struct's fields are (extended sum of layouts in
// order), and a register id indexes directly into that local list (spec
// §3: "Register frame... an arena sized by the sum of local-variable
// sizes"). The arena itself lives in the shared object heap rather than a
// private Go slice, so a register holding a struct value has a real heap
// address — the same address a by-ref parameter, ReadPointerTo/
// WritePointer, or a struct's "this pointer into the register frame"
// all operate on.
type RegisterFrame struct {
	heap *object.Heap
	base uint64
	offsets []uintptr
	layouts []typesys.Layout
}

// NewRegisterFrame builds a zero-initialized frame sized for locals,
// backed by a fresh heap allocation.
func NewRegisterFrame(h *object.Heap, locals []typesys.Layout) *RegisterFrame {
	f := &RegisterFrame{
		heap: h,
		offsets: make([]uintptr, len(locals)),
		layouts: append([]typesys.Layout(nil), locals...),
	}
	var total typesys.Layout
	for i, l := range locals {
		var off uintptr
		total, off = total.Extend(l)
		f.offsets[i] = off
	}
	f.base = h.RawAlloc(total.Size)
	return f
}

// Size reports the frame's total byte size.
func (f *RegisterFrame) Size() uintptr {
	var total uintptr
	for i, l := range f.layouts {
		if end := f.offsets[i] + l.Size; end > total {
			total = end
		}
	}
	return total
}

func (f *RegisterFrame) bounds(reg uint64) (uintptr, typesys.Layout, bool) {
	if reg >= uint64(len(f.offsets)) {
		return 0, typesys.Layout{}, false
	}
	return f.offsets[reg], f.layouts[reg], true
}

// Addr returns register reg's heap address, e.g. to pass it by-ref or hand
// it to ReadPointerTo/WritePointer.
func (f *RegisterFrame) Addr(reg uint64) (uint64, error) {
	off, _, ok := f.bounds(reg)
	if !ok {
		return 0, rterr.FailedReadRegister{ID: reg}
	}
	return f.base + uint64(off), nil
}

// Layout reports register reg's value layout.
func (f *RegisterFrame) Layout(reg uint64) (typesys.Layout, error) {
	_, l, ok := f.bounds(reg)
	if !ok {
		return typesys.Layout{}, rterr.FailedReadRegister{ID: reg}
	}
	return l, nil
}

// Read returns register reg's raw bytes.
func (f *RegisterFrame) Read(reg uint64) ([]byte, error) {
	off, l, ok := f.bounds(reg)
	if !ok {
		return nil, rterr.FailedReadRegister{ID: reg}
	}
	return f.heap.ReadBytes(f.base+uint64(off), int(l.Size)), nil
}

// Write stores register reg's raw bytes.
func (f *RegisterFrame) Write(reg uint64, data []byte) error {
	off, l, ok := f.bounds(reg)
	if !ok {
		return rterr.FailedWriteRegister{ID: reg}
	}
	n := int(l.Size)
	if n > len(data) {
		n = len(data)
	}
	f.heap.WriteBytes(f.base+uint64(off), data[:n])
	return nil
}

// ReadU64/WriteU64 zero-extend/truncate a register narrower than a machine
// word, the same discipline internal/object's FieldAccessor applies.
func (f *RegisterFrame) ReadU64(reg uint64) (uint64, error) {
	off, l, ok := f.bounds(reg)
	if !ok {
		return 0, rterr.FailedReadRegister{ID: reg}
	}
	n := int(l.Size)
	if n > 8 {
		n = 8
	}
	raw := f.heap.ReadBytes(f.base+uint64(off), n)
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(raw[i])
	}
	return v, nil
}

func (f *RegisterFrame) WriteU64(reg uint64, v uint64) error {
	off, l, ok := f.bounds(reg)
	if !ok {
		return rterr.FailedWriteRegister{ID: reg}
	}
	n := int(l.Size)
	if n > 8 {
		n = 8
	}
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = byte(v)
		v >>= 8
	}
	f.heap.WriteBytes(f.base+uint64(off), buf)
	return nil
}

// IsAllZero reports whether register reg's entire byte range is zero
//.
func (f *RegisterFrame) IsAllZero(reg uint64) (bool, error) {
	off, l, ok := f.bounds(reg)
	if !ok {
		return false, rterr.FailedReadRegister{ID: reg}
	}
	return f.heap.IsAllZero(f.base+uint64(off), int(l.Size)), nil
}

// FrameKind distinguishes a Native call frame from a Common (bytecode)
// one.
type FrameKind uint8

const (
	FrameNative FrameKind = iota
	FrameCommon
)

// Frame is one call-stack entry: either Native (method pointer + type-kind
// tag + tracked references) or Common (method pointer + type-kind tag +
// register frame).
type Frame struct {
	Kind FrameKind
	Method *typesys.Method
	Register *RegisterFrame // non-nil only for FrameCommon
	Tracked []object.Ref // temporaries a FrameNative invocation allocated
}

// HideWhenCapturing reports whether this frame is skipped when rendering
// stack traces.
func (fr *Frame) HideWhenCapturing() bool {
	return fr.Method != nil && fr.Method.Attrs.HideWhenCapturing
}

// CallStack is a processor's logical stack of frames.
type CallStack struct {
	mu sync.RWMutex
	frames []*Frame
}

// Push appends a new top frame.
func (s *CallStack) Push(fr *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, fr)
}

// Pop removes and returns the top frame.
func (s *CallStack) Pop() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.frames)
	if n == 0 {
		return nil
	}
	fr := s.frames[n-1]
	s.frames = s.frames[:n-1]
	return fr
}

// Top returns the current top frame without popping it (invariant I7: "The
// call stack top during interpreter execution always belongs to the
// currently dispatched method").
func (s *CallStack) Top() *Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// Snapshot returns the frames bottom-to-top, omitting HideWhenCapturing
// ones, for exception stack-trace capture.
func (s *CallStack) Snapshot() []*Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Frame, 0, len(s.frames))
	for _, fr := range s.frames {
		if fr.HideWhenCapturing() {
			continue
		}
		out = append(out, fr)
	}
	return out
}

// Depth reports the current stack depth, including hidden frames.
func (s *CallStack) Depth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.frames)
}
