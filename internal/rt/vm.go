package rt

import (
	"fmt"
	"sync"

	"github.com/lumenrt/corevm/internal/coreid"
	"github.com/lumenrt/corevm/internal/object"
	"github.com/lumenrt/corevm/internal/typesys"
)

// VM is the process-wide façade: an AssemblyManager, a heap (standing in
// for the host's resource manager — the allocator and the per-call
// temporary tracking it coordinates live on internal/object's Heap and
// each CPU's MemoryRecord list respectively), a pool of CPUs, and a
// dedicated static-init CPU.
type VM struct {
	Assemblies *typesys.AssemblyManager
	Heap *object.Heap
	Statics *StaticStore
	Catalog ExceptionCatalog

	// ArrayGeneric is the open System.Array`1 descriptor; NewArray/
	// NewDynamicArray instantiate it per element type.
	ArrayGeneric typesys.Descriptor

	// Configs backs LoadNonPurusCallConfiguration/DynamicNonPurusCall: a
	// managed NonPurusCallConfiguration reference is a key into this table
	// rather than a fully marshalled managed object, since internal/stdlib
	// hasn't (yet) given NonPurusCallConfiguration real declared fields to
	// marshal through (see DESIGN.md).
	Configs *ConfigStore

	mu sync.Mutex
	cpus []*CPU
	staticCPU *CPU
}

// NewVM constructs a VM over an existing assembly manager.
func NewVM(am *typesys.AssemblyManager) *VM {
	return &VM{
		Assemblies: am,
		Heap: object.NewHeap(),
		Statics: NewStaticStore(),
		Configs: NewConfigStore(),
		staticCPU: NewCPU(StaticCPUID),
	}
}

// AddCPU creates a new 1-based common processor.
func (vm *VM) AddCPU() *CPU {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	id := CpuID(len(vm.cpus) + 1)
	cpu := NewCPU(id)
	vm.cpus = append(vm.cpus, cpu)
	return cpu
}

// StaticCPU returns the VM's dedicated static-constructor processor.
func (vm *VM) StaticCPU() *CPU { return vm.staticCPU }

var (
	defaultOnce sync.Once
	defaultVM *VM
)

// Default lazily initializes the process-wide VM singleton on first
// access ; a host that wants a specific AssemblyManager should
// call SetDefault before anything reaches for Default.
func Default() *VM {
	defaultOnce.Do(func() {
		if defaultVM == nil {
			defaultVM = NewVM(typesys.NewAssemblyManager())
		}
	})
	return defaultVM
}

// SetDefault installs vm as the process-wide singleton, if one hasn't
// already been installed or lazily created.
func SetDefault(vm *VM) {
	defaultOnce.Do(func() {
		defaultVM = vm
	})
}

// Invoke is the central call primitive every dispatch instruction goes
// through: a Native method's Go function runs directly; a bytecode
// method pushes a Common frame, runs the interpreter loop, and pops it
//.
func (vm *VM) Invoke(cpu *CPU, m *typesys.Method, this uint64, args []uint64, parentCtx typesys.ResolveContext) ([]byte, error) {
	if cpu.Exceptions.HasException() {
		return nil, nil
	}
	if m.Native != nil || m.NativeCtx != nil {
		fr := &Frame{Kind: FrameNative, Method: m}
		cpu.Push(fr)
		defer cpu.Pop()
		callArgs := args
		if !m.Attrs.Static {
			// A native instance method's receiver has nowhere else to ride
			// along: NativeFunc carries one flat []uint64, so it rides in
			// slot 0, ahead of the declared parameters, the way ec.this and
			// ec.args are kept separate for bytecode methods but must be
			// joined for a Go function call.
			callArgs = append([]uint64{this}, args...)
		}
		if m.NativeCtx != nil {
			nc := &nativeContext{vm: vm, cpu: cpu, ctx: typesys.ResolveContext{AssemblyManager: parentCtx.AssemblyManager}}
			return m.NativeCtx(nc, callArgs)
		}
		return m.Native(callArgs)
	}

	localLayouts := make([]typesys.Layout, len(m.Locals))
	ctx := typesys.ResolveContext{
		AssemblyManager: parentCtx.AssemblyManager,
		MethodTypeVars: parentCtx.MethodTypeVars,
		TypeTypeVars: parentCtx.TypeTypeVars,
	}
	for i, h := range m.Locals {
		d, err := h.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		localLayouts[i] = valueLayoutFor(d)
	}
	regs := NewRegisterFrame(vm.Heap, localLayouts)

	fr := &Frame{Kind: FrameCommon, Method: m, Register: regs}
	cpu.Push(fr)
	defer cpu.Pop()

	ec := &execContext{
		vm: vm, cpu: cpu, frame: regs, method: m, this: this, args: args, ctx: ctx,
	}
	return runInterpreter(ec)
}

// Destroy implements the spec's explicit destruction (spec §3: "deallocation
// is triggered by explicit destroy, which first invokes the type's
// destructor method"): it resolves ref's own runtime Destructor slot,
// invokes it, then releases the header's sync word via Heap.Destroy. A
// type with no Destructor in its method table (structs never declare one)
// just releases the lock.
func (vm *VM) Destroy(cpu *CPU, ref object.Ref) error {
	if ref.IsNull() {
		return nil
	}
	mt, err := vm.Heap.MethodTableOf(ref)
	if err != nil {
		return err
	}
	if idx, ok := mt.FindLastIndexByName("Destructor"); ok {
		if m, ok := mt.Get(idx); ok {
			ctx := typesys.ResolveContext{AssemblyManager: vm.Assemblies}
			if _, err := vm.Invoke(cpu, m, uint64(ref), nil, ctx); err != nil {
				return err
			}
		}
	}
	vm.Heap.Destroy(ref)
	return nil
}

// valueLayoutFor mirrors internal/object's own valueLayout decision so
// internal/rt doesn't need to import an unexported helper.
func valueLayoutFor(d typesys.Descriptor) typesys.Layout {
	if id, ok := d.CoreID(); ok {
		return typesys.CoreLayout(id)
	}
	return d.MethodTable().MemLayout(typesys.LayoutOptions{PreferCached: true})
}

// GetStaticField resolves (address, layout) for field fieldID on owner's
// static region, allocating and running the static constructor on first
// touch.
func (vm *VM) GetStaticField(owner typesys.Descriptor, fieldID uint32) (uint64, typesys.Layout, error) {
	base, err := vm.Statics.GetStaticField(vm.Heap, owner, vm.staticCPU, func(staticCPU *CPU) error {
		slot := owner.StaticCtorFieldID()
		m, ok := owner.MethodTable().Get(slot)
		if !ok {
			return nil // no static constructor declared
		}
		ctx := typesys.ResolveContext{AssemblyManager: vm.Assemblies}
		_, err := vm.Invoke(staticCPU, m, 0, nil, ctx)
		return err
	})
	if err != nil {
		return 0, typesys.Layout{}, err
	}
	info, err := owner.MethodTable().FieldOffset(fieldID, true, typesys.LayoutOptions{PreferCached: true})
	if err != nil {
		return 0, typesys.Layout{}, err
	}
	return base + uint64(info.Offset), info.Layout, nil
}

// MainResult is the VM's mapping of a Main invocation's outcome to a
// process exit code.
type MainResult struct {
	ExitCode uint8
	Err error
}

// RunMain verifies method's signature and invokes it with argv, building
// the managed argv array if the signature takes one.
func (vm *VM) RunMain(method *typesys.Method, argv []string) MainResult {
	if !method.Attrs.Static {
		return MainResult{ExitCode: 1, Err: fmt.Errorf("corevm: Main method must be static")}
	}
	retOK := method.Return == nil
	if !retOK {
		if id, ok := coreIDOfHandle(method.Return); ok {
			retOK = id == coreid.Void || id == coreid.UInt8
		}
	}
	if !retOK {
		return MainResult{ExitCode: 1, Err: fmt.Errorf("corevm: Main must return Void or UInt8")}
	}

	var args []uint64
	cpu := vm.AddCPU()
	ctx := typesys.ResolveContext{AssemblyManager: vm.Assemblies}

	switch len(method.Params) {
	case 0:
		// no argv parameter
	case 1:
		if vm.ArrayGeneric == nil || vm.Catalog.StringType == nil {
			return MainResult{ExitCode: 1, Err: fmt.Errorf("corevm: string array catalog not wired")}
		}
		strArr, err := typesys.Instantiate(vm.ArrayGeneric, []*typesys.TypeHandle{typesys.Loaded(vm.Catalog.StringType)})
		if err != nil {
			return MainResult{ExitCode: 1, Err: err}
		}
		ref := object.NewArray(vm.Heap, strArr, vm.Catalog.StringType, uint64(len(argv)))
		acc, err := object.NewArrayAccessor(vm.Heap, ref)
		if err != nil {
			return MainResult{ExitCode: 1, Err: err}
		}
		for i, a := range argv {
			s := object.NewManagedString(vm.Heap, vm.Catalog.StringType, a)
			_ = acc.SetElement(uint64(i), encodeRef(s))
		}
		args = []uint64{uint64(ref)}
	default:
		return MainResult{ExitCode: 1, Err: fmt.Errorf("corevm: Main must take no args or a single string array")}
	}

	result, err := vm.Invoke(cpu, method, 0, args, ctx)
	if cpu.Exceptions.HasException() {
		return MainResult{ExitCode: 1, Err: fmt.Errorf("corevm: unhandled exception reached Main")}
	}
	if err != nil {
		return MainResult{ExitCode: 1, Err: err}
	}
	if method.Return == nil {
		return MainResult{ExitCode: 0}
	}
	if len(result) == 0 {
		return MainResult{ExitCode: 0}
	}
	return MainResult{ExitCode: result[0]}
}

func coreIDOfHandle(h *typesys.TypeHandle) (coreid.ID, bool) {
	d, err := h.Resolve(typesys.ResolveContext{})
	if err != nil {
		return 0, false
	}
	return d.CoreID()
}
