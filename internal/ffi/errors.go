package ffi

import "fmt"

func errUnsupportedConvention(cc CallConvention) error {
	return fmt.Errorf("ffi: calling convention %d is not supported on this platform", cc)
}
