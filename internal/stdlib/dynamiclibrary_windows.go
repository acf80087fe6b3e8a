//go:build windows

package stdlib

import "golang.org/x/sys/windows"

func init() {
	platformOpen = func(path string) (uintptr, error) {
		h, err := windows.LoadLibrary(path)
		if err != nil {
			return 0, err
		}
		return uintptr(h), nil
	}
	platformSymbol = func(handle uintptr, name string) (uintptr, error) {
		addr, err := windows.GetProcAddress(windows.Handle(handle), name)
		if err != nil {
			return 0, err
		}
		return uintptr(addr), nil
	}
	platformClose = func(handle uintptr) error {
		return windows.FreeLibrary(windows.Handle(handle))
	}
}
