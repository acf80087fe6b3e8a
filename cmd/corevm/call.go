package main

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lumenrt/corevm/internal/typesys"
)

var (
	callType string
)

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <assembly-file> <method> [raw-u64-args...]",
		Short: "Invoke a static method directly, passing raw register words",
		Long: "Resolves a static method by name (optionally scoped with --type) " +
			"and invokes it on a fresh CPU with the given arguments, each parsed " +
			"as a uint64 register word. Useful for exercising a single method " +
			"without a Main entry point.",
		Args: cobra.MinimumNArgs(2),
		RunE: runCall,
	}
	cmd.Flags().StringVar(&callType, "type", "", "owning type name (default: search every type)")
	return cmd
}

func runCall(cmd *cobra.Command, args []string) error {
	path, methodName := args[0], args[1]

	vm, err := newVM()
	if err != nil {
		return err
	}
	asm, err := loadUserAssembly(vm, path, "call")
	if err != nil {
		return err
	}

	_, method, err := findMethod(asm, callType, methodName)
	if err != nil {
		return err
	}
	if !method.Attrs.Static {
		return fmt.Errorf("corevm: %s is not static; only static methods can be called this way", methodName)
	}

	rawArgs := make([]uint64, len(args)-2)
	for i, s := range args[2:] {
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return fmt.Errorf("corevm: argument %d (%q) is not a uint64: %w", i, s, err)
		}
		rawArgs[i] = v
	}

	cpu := vm.AddCPU()
	ctx := typesys.ResolveContext{AssemblyManager: vm.Assemblies}
	ret, err := vm.Invoke(cpu, method, 0, rawArgs, ctx)
	if cpu.Exceptions.HasException() {
		return fmt.Errorf("corevm: %s threw an unhandled exception", methodName)
	}
	if err != nil {
		return err
	}
	if len(ret) == 0 {
		fmt.Println("(void)")
		return nil
	}
	fmt.Println(hex.EncodeToString(ret))
	return nil
}
