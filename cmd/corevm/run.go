package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	runType   string
	runMethod string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <assembly-file> [-- args...]",
		Short: "Load an assembly and invoke its entry method",
		Long: "Loads a sectioned assembly image, resolves an entry method (by " +
			"default the first static method named Main), and invokes it the " +
			"way a process entry point is invoked, mapping its return value to " +
			"an exit code. Set CVM_TRACE=1 or CVM_MEM=1 to see " +
			"interpreter/allocator diagnostics on stderr.",
		Args: cobra.MinimumNArgs(1),
		RunE: runRun,
	}
	cmd.Flags().StringVar(&runType, "type", "", "entry type name (default: search every type)")
	cmd.Flags().StringVar(&runMethod, "method", "Main", "entry method name")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	path := args[0]
	argv := args[1:]

	vm, err := newVM()
	if err != nil {
		return err
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	asm, err := loadUserAssembly(vm, path, name)
	if err != nil {
		return err
	}

	_, method, err := findMethod(asm, runType, runMethod)
	if err != nil {
		return err
	}

	result := vm.RunMain(method, argv)
	if result.Err != nil {
		fmt.Fprintln(os.Stderr, result.Err)
	}
	os.Exit(int(result.ExitCode))
	return nil
}
