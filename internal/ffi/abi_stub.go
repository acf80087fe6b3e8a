//go:build !amd64 || windows

package ffi

import "fmt"

// unsupportedABI is selected on architectures/platforms this port of the
// FFI bridge hasn't implemented raw dispatch for yet, the same way the
// teacher ships a stub backend rather than failing to compile at all
// (std/compiler/backend_x64_stub.go).
type unsupportedABI struct{}

var currentPlatform platformCaller = unsupportedABI{}

func (unsupportedABI) call(fptr uintptr, cc CallConvention, args RawArgs) (uintptr, error) {
	return 0, fmt.Errorf("ffi: non-purus call dispatch is not implemented on this platform")
}
