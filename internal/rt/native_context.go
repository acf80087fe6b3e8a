package rt

import (
	"github.com/lumenrt/corevm/internal/typesys"
)

// nativeContext is the rt-side implementation of typesys.NativeContext
// handed to NativeCtx methods: it closes over the processor actually
// making the call, so a core-catalog native can dispatch back into the
// VM (Array`1.ToString calling an element's own ToString slot) or read
// the call stack (Exception's constructor capturing StackTrace) without
// internal/stdlib importing internal/rt's unexported machinery.
type nativeContext struct {
	vm *VM
	cpu *CPU
	ctx typesys.ResolveContext
}

// Invoke runs m with this/args on the same processor that's running the
// native method itself — ordinary virtual or static dispatch, just
// initiated from Go instead of a bytecode Call instruction.
func (n *nativeContext) Invoke(m *typesys.Method, this uint64, args []uint64) ([]byte, error) {
	return n.vm.Invoke(n.cpu, m, this, args, n.ctx)
}

// StackTrace renders the processor's current call stack, newest frame
// first, skipping HideWhenCapturing frames — the same shape
// captureStackTrace builds for the host throw helpers, exposed here so a
// managed constructor can build the identical StackTrace array itself.
func (n *nativeContext) StackTrace() []string {
	frames := n.cpu.Stack.Snapshot()
	out := make([]string, len(frames))
	for i, fr := range frames {
		name := "<unknown>"
		if fr.Method != nil {
			name = fr.Method.Signature()
		}
		out[len(frames)-1-i] = name
	}
	return out
}
