package rt

import (
	"github.com/lumenrt/corevm/internal/instr"
	"github.com/lumenrt/corevm/internal/object"
	"github.com/lumenrt/corevm/internal/rterr"
	"github.com/lumenrt/corevm/internal/token"
	"github.com/lumenrt/corevm/internal/typesys"
)

// execContext is everything one instruction-dispatch loop needs: the VM it
// runs against, the processor it runs on, its register frame, the method
// being executed (for locals/owner/assembly lookups), the "this" value
// (either a heap Ref for a class instance, or a raw register-frame address
// for a struct's by-ref receiver — spec §4.7), the caller's argument words,
// and the type-variable bindings a generic instantiation carries.
type execContext struct {
	vm *VM
	cpu *CPU
	frame *RegisterFrame
	method *typesys.Method
	this uint64
	args []uint64
	ctx typesys.ResolveContext
}

func (ec *execContext) assembly() *typesys.Assembly { return ec.method.Owner.OwnerAssembly() }

func (ec *execContext) resolveType(t token.Token) (typesys.Descriptor, error) {
	return typesys.ResolveTypeToken(ec.ctx, ec.assembly(), t)
}

// runInterpreter executes method's bytecode from pc 0 until a ReturnVal
// instruction, an exception becomes pending, or the instruction list is
// exhausted without returning.
// There is no try/catch instruction in this instruction set :
// once an exception is set, every frame on the way back up simply stops
// executing and returns — the exception is read out of the processor's
// ExceptionManager slot by whoever initiated the call chain (ultimately
// RunMain).
func runInterpreter(ec *execContext) ([]byte, error) {
	if ec.cpu.Exceptions.HasException() {
		return nil, nil
	}
	instrs := ec.method.Instructions
	pc := 0
	for pc < len(instrs) {
		if ec.cpu.Exceptions.HasException() {
			return nil, nil
		}
		in := &instrs[pc]
		next := pc + 1

		result, jumped, ret, err := execOne(ec, in)
		if err != nil {
			return nil, err
		}
		if ec.cpu.Exceptions.HasException() {
			return nil, nil
		}
		if ret {
			return result, nil
		}
		if jumped {
			pc = int(in.Target.Resolve(pc))
			continue
		}
		pc = next
	}
	return nil, rterr.ErrAllInstructionsExecuted
}

// execOne runs a single instruction. ret reports whether the method
// returned (result holds its encoded bytes); jumped reports whether pc was
// already redirected by a taken jump.
func execOne(ec *execContext, in *instr.Instruction) (result []byte, jumped bool, ret bool, err error) {
	f := ec.frame
	h := ec.vm.Heap

	switch in.Op {
	case instr.OpLoadTrue:
		err = f.WriteU64(in.RegisterAddr, 1)
	case instr.OpLoadFalse:
		err = f.WriteU64(in.RegisterAddr, 0)
	case instr.OpLoadU8, instr.OpLoadU16, instr.OpLoadU32, instr.OpLoadU64,
		instr.OpLoadI8, instr.OpLoadI16, instr.OpLoadI32, instr.OpLoadI64:
		err = f.WriteU64(in.RegisterAddr, in.Val)

	case instr.OpLoadThis:
		err = f.WriteU64(in.RegisterAddr, ec.this)

	case instr.OpLoadString:
		// Val names the index into the declaring method's assembly string
		// table , the same table TypeRef/
		// FieldRef names resolve relative to.
		var s string
		s, err = ec.assembly().GetString(uint32(in.Val))
		if err == nil {
			ref := object.NewManagedString(h, ec.vm.Catalog.StringType, s)
			err = f.WriteU64(in.RegisterAddr, uint64(ref))
		}

	case instr.OpLoadTypeValueSize:
		var d typesys.Descriptor
		d, err = ec.resolveType(in.TypeRef)
		if err == nil {
			err = f.WriteU64(in.RegisterAddr, uint64(valueLayoutFor(d).Size))
		}

	case instr.OpReadPointerTo:
		var addr uint64
		addr, err = f.ReadU64(in.Ptr)
		if err == nil {
			data := h.ReadBytes(addr, int(in.Size))
			err = f.Write(in.Destination, data)
		}

	case instr.OpWritePointer:
		var addr uint64
		addr, err = f.ReadU64(in.Ptr)
		if err == nil {
			var data []byte
			data, err = f.Read(in.Source)
			if err == nil {
				n := int(in.Size)
				if n > len(data) {
					n = len(data)
				}
				h.WriteBytes(addr, data[:n])
			}
		}

	case instr.OpIsAllZero:
		var zero bool
		zero, err = f.IsAllZero(in.ToCheck)
		if err == nil {
			var v uint64
			if zero {
				v = 1
			}
			err = f.WriteU64(in.RegisterAddr, v)
		}

	case instr.OpNewObject:
		err = execNewObject(ec, in)

	case instr.OpNewArray:
		err = execNewArray(ec, in, in.Len)

	case instr.OpNewDynamicArray:
		var n uint64
		n, err = f.ReadU64(in.LenAddr)
		if err == nil {
			err = execNewArray(ec, in, n)
		}

	case instr.OpInstanceCall:
		result, err = execInstanceCall(ec, in)
		if err == nil && !ec.cpu.Exceptions.HasException() {
			err = writeCallResult(f, in.RetAt, result)
		}

	case instr.OpStaticCall:
		result, err = execStaticCall(ec, in)
		if err == nil && !ec.cpu.Exceptions.HasException() {
			err = writeCallResult(f, in.RetAt, result)
		}

	case instr.OpStaticNonPurusCall, instr.OpDynamicNonPurusCall:
		result, err = execNonPurusCall(ec, in)
		if err == nil {
			err = writeCallResult(f, in.RetAt, result)
		}

	case instr.OpLoadNonPurusCallConfiguration:
		err = execLoadConfiguration(ec, in)

	case instr.OpLoadArg:
		if int(in.Val) < len(ec.args) {
			err = f.WriteU64(in.RegisterAddr, ec.args[in.Val])
		} else {
			err = rterr.FailedReadRegister{ID: in.Val}
		}

	case instr.OpLoadStatic:
		err = execLoadStatic(ec, in)

	case instr.OpSetStaticField:
		err = execSetStaticField(ec, in)

	case instr.OpLoadField:
		err = execLoadField(ec, in)

	case instr.OpSetThisField:
		err = execSetThisField(ec, in)

	case instr.OpThrow:
		var exRef uint64
		exRef, err = f.ReadU64(in.Val1)
		if err == nil {
			ec.cpu.ThrowManaged(object.Ref(exRef))
		}

	case instr.OpReturnVal:
		ret = true
		l, lerr := f.Layout(in.RegisterAddr)
		if lerr != nil {
			err = lerr
			break
		}
		if l.Size == 0 {
			result = nil
		} else {
			result, err = f.Read(in.RegisterAddr)
		}

	case instr.OpJump:
		jumped = true

	case instr.OpJumpIfTrue:
		var v uint64
		v, err = f.ReadU64(in.ToCheck)
		jumped = err == nil && v != 0
		if !jumped {
			err = nil
		}

	case instr.OpJumpIfAllZero:
		var zero bool
		zero, err = f.IsAllZero(in.ToCheck)
		jumped = err == nil && zero
		if !jumped {
			err = nil
		}

	case instr.OpJumpIfNotAllZero:
		var zero bool
		zero, err = f.IsAllZero(in.ToCheck)
		jumped = err == nil && !zero
		if !jumped {
			err = nil
		}

	default:
		err = rterr.UnknownMethod{Name: "<unhandled opcode>"}
	}

	return result, jumped, ret, err
}

// writeCallResult stores a call's raw result bytes into dest, no-op if the
// callee's return type was zero-sized (spec: "RetAt unused when the
// callee's return type is zero-sized").
func writeCallResult(f *RegisterFrame, dest uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return f.Write(dest, data)
}

func execNewObject(ec *execContext, in *instr.Instruction) error {
	d, err := ec.resolveType(in.TypeRef)
	if err != nil {
		return err
	}
	ref := object.NewInstance(ec.vm.Heap, d, false)
	if ctor, ok := d.MethodTable().Get(in.Ctor.Index()); ok {
		argVals, err := readArgRegisters(ec.frame, in.Args)
		if err != nil {
			return err
		}
		_, err = ec.vm.Invoke(ec.cpu, ctor, uint64(ref), argVals, ec.ctx)
		if err != nil {
			return err
		}
		if ec.cpu.Exceptions.HasException() {
			return nil
		}
	}
	return ec.frame.WriteU64(in.RegisterAddr, uint64(ref))
}

func execNewArray(ec *execContext, in *instr.Instruction, length uint64) error {
	elemDesc, err := ec.resolveType(in.TypeRef)
	if err != nil {
		return err
	}
	arrDesc, err := typesys.Instantiate(ec.vm.ArrayGeneric, []*typesys.TypeHandle{typesys.Loaded(elemDesc)})
	if err != nil {
		return err
	}
	ref := object.NewArray(ec.vm.Heap, arrDesc, elemDesc, length)
	return ec.frame.WriteU64(in.RegisterAddr, uint64(ref))
}

func readArgRegisters(f *RegisterFrame, regs []uint64) ([]uint64, error) {
	out := make([]uint64, len(regs))
	for i, r := range regs {
		v, err := f.ReadU64(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// execInstanceCall dispatches an InstanceCall : a class receiver
// reads its runtime method table off the heap object's header (virtual
// dispatch); a struct receiver (in.StructReceiver) is a static-like lookup
// on TypeRef's own method table with a raw pointer into the register frame
// as "this".
func execInstanceCall(ec *execContext, in *instr.Instruction) ([]byte, error) {
	f := ec.frame
	argVals, err := readArgRegisters(f, in.Args)
	if err != nil {
		return nil, err
	}

	if in.StructReceiver {
		d, err := ec.resolveType(in.TypeRef)
		if err != nil {
			return nil, err
		}
		m, err := d.MethodTable().Resolve(in.Method, ec.ctx)
		if err != nil {
			return nil, err
		}
		thisAddr, err := f.Addr(in.Val1)
		if err != nil {
			return nil, err
		}
		return ec.vm.Invoke(ec.cpu, m, thisAddr, argVals, ec.ctx)
	}

	recvVal, err := f.ReadU64(in.Val1)
	if err != nil {
		return nil, err
	}
	ref := object.Ref(recvVal)
	mt, err := ec.vm.Heap.MethodTableOf(ref)
	if err != nil {
		return nil, err
	}
	m, err := mt.Resolve(in.Method, ec.ctx)
	if err != nil {
		return nil, err
	}
	return ec.vm.Invoke(ec.cpu, m, recvVal, argVals, ec.ctx)
}

// execStaticCall dispatches a static method named by TypeRef+Method, no
// receiver involved.
func execStaticCall(ec *execContext, in *instr.Instruction) ([]byte, error) {
	d, err := ec.resolveType(in.TypeRef)
	if err != nil {
		return nil, err
	}
	m, err := d.MethodTable().Resolve(in.Method, ec.ctx)
	if err != nil {
		return nil, err
	}
	argVals, err := readArgRegisters(ec.frame, in.Args)
	if err != nil {
		return nil, err
	}
	return ec.vm.Invoke(ec.cpu, m, 0, argVals, ec.ctx)
}

func execLoadStatic(ec *execContext, in *instr.Instruction) error {
	owner, err := ec.resolveType(in.TypeRef)
	if err != nil {
		return err
	}
	addr, layout, err := ec.vm.GetStaticField(owner, in.FieldRef.Index())
	if err != nil {
		return err
	}
	data := ec.vm.Heap.ReadBytes(addr, int(layout.Size))
	return ec.frame.Write(in.RegisterAddr, data)
}

func execSetStaticField(ec *execContext, in *instr.Instruction) error {
	owner, err := ec.resolveType(in.TypeRef)
	if err != nil {
		return err
	}
	addr, layout, err := ec.vm.GetStaticField(owner, in.FieldRef.Index())
	if err != nil {
		return err
	}
	data, err := ec.frame.Read(in.RegisterAddr)
	if err != nil {
		return err
	}
	n := int(layout.Size)
	if n > len(data) {
		n = len(data)
	}
	ec.vm.Heap.WriteBytes(addr, data[:n])
	return nil
}

// fieldAccessorFor builds the FieldAccessor for an instance-field op,
// scoped to the declaring type named by TypeRef so an inherited field's id
// resolves against its own declarer regardless of the receiver's leaf-most
// runtime type.
func fieldAccessorFor(ec *execContext, in *instr.Instruction) (*object.FieldAccessor, error) {
	declaring, err := ec.resolveType(in.TypeRef)
	if err != nil {
		return nil, err
	}
	if in.StructReceiver {
		base, err := ec.frame.Addr(in.Val1)
		if err != nil {
			return nil, err
		}
		return object.NewStructFieldAccessor(ec.vm.Heap, declaring.MethodTable(), base, false), nil
	}
	recvVal, err := ec.frame.ReadU64(in.Val1)
	if err != nil {
		return nil, err
	}
	return object.NewFieldAccessorFor(ec.vm.Heap, object.Ref(recvVal), declaring.MethodTable())
}

func execLoadField(ec *execContext, in *instr.Instruction) error {
	acc, err := fieldAccessorFor(ec, in)
	if err != nil {
		return err
	}
	data, err := acc.Get(in.FieldRef.Index())
	if err != nil {
		return err
	}
	return ec.frame.Write(in.RegisterAddr, data)
}

// execSetThisField writes a field of the current method's own receiver
// , so it addresses ec.this directly rather than
// reading a receiver out of a register.
func execSetThisField(ec *execContext, in *instr.Instruction) error {
	declaring, err := ec.resolveType(in.TypeRef)
	if err != nil {
		return err
	}
	var acc *object.FieldAccessor
	if in.StructReceiver {
		acc = object.NewStructFieldAccessor(ec.vm.Heap, declaring.MethodTable(), ec.this, false)
	} else {
		acc, err = object.NewFieldAccessorFor(ec.vm.Heap, object.Ref(ec.this), declaring.MethodTable())
		if err != nil {
			return err
		}
	}
	data, err := ec.frame.Read(in.RegisterAddr)
	if err != nil {
		return err
	}
	return acc.Set(in.FieldRef.Index(), data)
}
