//go:build !windows && !((linux || darwin) && cgo)

package stdlib

import "github.com/lumenrt/corevm/internal/rterr"

// No dlopen binding exists for this platform/build combination (cgo
// disabled, or an OS neither the unix nor windows file covers). Every
// DynamicLibrary call fails with ErrUnsupportedPlatform rather than the
// package failing to build.
func init() {
	platformOpen = func(path string) (uintptr, error) { return 0, rterr.ErrUnsupportedPlatform }
	platformSymbol = func(handle uintptr, name string) (uintptr, error) { return 0, rterr.ErrUnsupportedPlatform }
	platformClose = func(handle uintptr) error { return rterr.ErrUnsupportedPlatform }
}
