package ffi

import "fmt"

// RawArgs is the already-marshalled argument vector handed to a call: one
// machine word per Configuration.Arguments entry, in order, with by-ref
// arguments already holding the address of their backing storage (the
// indirection libffi would apply itself — spec §4.9: "By-ref arguments:
// one extra indirection per slot").
type RawArgs []uintptr

// platformCaller abstracts the single platform-specific primitive this
// package needs: invoke a raw code pointer with a fixed argument vector
// under some calling convention and read back a machine word. Each
// supported (GOOS, GOARCH) pair implements this in its own abi_*.go file,
// the way the teacher splits its native codegen backends one file per
// target (std/compiler/backend_linux_x64.go, backend_windows_x64.go, …).
type platformCaller interface {
	call(fptr uintptr, cc CallConvention, args RawArgs) (uintptr, error)
}

// Call synthesizes a call interface for cfg and invokes fptr with args,
// returning the raw result word. The caller is responsible for having
// already marshalled string/object arguments per cfg.Encoding/ObjectStrategy
// (see internal/rt, which owns the managed-object side of that marshalling)
// — this layer only performs the raw ABI dispatch spec §4.9 calls "the raw
// call".
func Call(cfg *Configuration, fptr uintptr, args RawArgs) (uintptr, error) {
	if len(args) != len(cfg.Arguments) {
		return 0, fmt.Errorf("ffi: configuration declares %d arguments, got %d", len(cfg.Arguments), len(args))
	}
	return currentPlatform.call(fptr, cfg.CallConvention, args)
}
