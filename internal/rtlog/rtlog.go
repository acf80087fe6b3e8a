// Package rtlog is the runtime's one logging surface: diagnostics written
// straight to os.Stderr, gated by environment variables read once, the way
// the teacher gates its VM backend's memory/step tracing
// (RTG_VM_MEM/RTG_VM_ALLOC/RTG_VM_STEPS). No structured logging framework
// appears anywhere in the retrieval pack for a project this shape, so this
// stays on the standard library (see DESIGN.md).
package rtlog

import (
	"fmt"
	"os"
)

var (
	traceEnabled = os.Getenv("CVM_TRACE") != ""
	memEnabled   = os.Getenv("CVM_MEM") != ""
)

// Trace logs an interpreter-step diagnostic when CVM_TRACE is set.
func Trace(format string, args ...any) {
	if !traceEnabled {
		return
	}
	fmt.Fprintf(os.Stderr, "[trace] "+format+"\n", args...)
}

// Mem logs an allocator diagnostic when CVM_MEM is set.
func Mem(format string, args ...any) {
	if !memEnabled {
		return
	}
	fmt.Fprintf(os.Stderr, "[mem] "+format+"\n", args...)
}

// Debug unconditionally reports an internal interpreter fault, mirroring
// the teacher's debug-build error logging in its interpreter loop.
func Debug(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[debug] "+format+"\n", args...)
}
