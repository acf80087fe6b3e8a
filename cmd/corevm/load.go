package main

import (
	"fmt"

	"github.com/lumenrt/corevm/internal/container"
	"github.com/lumenrt/corevm/internal/rt"
	"github.com/lumenrt/corevm/internal/stdlib"
	"github.com/lumenrt/corevm/internal/typesys"
)

// newVM builds a VM with the core assembly installed, the entry point every
// subcommand below needs before it can load a user assembly.
func newVM() (*rt.VM, error) {
	vm := rt.NewVM(typesys.NewAssemblyManager())
	if _, err := stdlib.Install(vm); err != nil {
		return nil, fmt.Errorf("corevm: installing core assembly: %w", err)
	}
	return vm, nil
}

// loadUserAssembly opens path and loads it into vm's assembly manager under
// name.
func loadUserAssembly(vm *rt.VM, path, name string) (*typesys.Assembly, error) {
	img, err := container.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corevm: opening %s: %w", path, err)
	}
	defer img.Close()

	asm, err := container.LoadAssembly(vm.Assemblies, img, name, false)
	if err != nil {
		return nil, fmt.Errorf("corevm: loading %s: %w", path, err)
	}
	return asm, nil
}

// findMethod locates typeName.methodName in asm, or — if typeName is empty
// — the first static method named methodName in any type.
func findMethod(asm *typesys.Assembly, typeName, methodName string) (typesys.Descriptor, *typesys.Method, error) {
	if typeName != "" {
		d, ok := asm.FindTypeByName(typeName)
		if !ok {
			return nil, nil, fmt.Errorf("corevm: no type named %q in %s", typeName, asm.Name)
		}
		m, ok := d.MethodTable().FindFirstByName(methodName)
		if !ok {
			return nil, nil, fmt.Errorf("corevm: type %q has no method named %q", typeName, methodName)
		}
		return d, m, nil
	}
	for _, d := range asm.Types() {
		if m, ok := d.MethodTable().FindFirstByName(methodName); ok && m.Attrs.Static {
			return d, m, nil
		}
	}
	return nil, nil, fmt.Errorf("corevm: no method named %q found in %s", methodName, asm.Name)
}
