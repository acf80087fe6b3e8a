//go:build (linux || darwin) && cgo

package stdlib

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// dlopen/dlsym/dlclose are libc entry points, not kernel syscalls — there is
// no golang.org/x/sys/unix binding for them (x/sys/unix only wraps the
// syscall table). cgo against libdl is the ordinary Go idiom for this, the
// same tradeoff database/sql drivers and os/user make for libc-only
// facilities (see DESIGN.md).
func init() {
	platformOpen = func(path string) (uintptr, error) {
		cpath := C.CString(path)
		defer C.free(unsafe.Pointer(cpath))
		h := C.dlopen(cpath, C.RTLD_NOW)
		if h == nil {
			return 0, fmt.Errorf("corevm: dlopen %s: %s", path, C.GoString(C.dlerror()))
		}
		return uintptr(h), nil
	}
	platformSymbol = func(handle uintptr, name string) (uintptr, error) {
		cname := C.CString(name)
		defer C.free(unsafe.Pointer(cname))
		sym := C.dlsym(unsafe.Pointer(handle), cname)
		if sym == nil {
			return 0, fmt.Errorf("corevm: dlsym %s: %s", name, C.GoString(C.dlerror()))
		}
		return uintptr(sym), nil
	}
	platformClose = func(handle uintptr) error {
		if C.dlclose(unsafe.Pointer(handle)) != 0 {
			return fmt.Errorf("corevm: dlclose: %s", C.GoString(C.dlerror()))
		}
		return nil
	}
}
