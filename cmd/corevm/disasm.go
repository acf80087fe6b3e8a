package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lumenrt/corevm/internal/typesys"
)

var (
	disasmType   string
	disasmMethod string
)

func newDisasmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disasm <assembly-file>",
		Short: "Print the bytecode of one method, a type, or a whole assembly",
		Args:  cobra.ExactArgs(1),
		RunE:  runDisasm,
	}
	cmd.Flags().StringVar(&disasmType, "type", "", "limit to this type name")
	cmd.Flags().StringVar(&disasmMethod, "method", "", "limit to this method name")
	return cmd
}

func runDisasm(cmd *cobra.Command, args []string) error {
	vm, err := newVM()
	if err != nil {
		return err
	}
	asm, err := loadUserAssembly(vm, args[0], "disasm")
	if err != nil {
		return err
	}

	for _, d := range asm.Types() {
		if disasmType != "" && d.TypeName() != disasmType {
			continue
		}
		printType(d)
	}
	return nil
}

func printType(d typesys.Descriptor) {
	kind := "class"
	if d.IsStruct() {
		kind = "struct"
	}
	fmt.Printf("%s %s\n", kind, d.TypeName())
	n := d.MethodTable().Len()
	for i := 0; i < n; i++ {
		m, ok := d.MethodTable().Get(uint32(i))
		if !ok {
			continue
		}
		if disasmMethod != "" && m.Name != disasmMethod {
			continue
		}
		printMethod(uint32(i), m)
	}
}

func printMethod(slot uint32, m *typesys.Method) {
	fmt.Printf("  [%d] %s\n", slot, m.Signature())
	if !m.IsBytecode() {
		fmt.Println("      <native>")
		return
	}
	for pc, in := range m.Instructions {
		fmt.Printf("      %4d: %s %+v\n", pc, in.Op, in)
	}
}
