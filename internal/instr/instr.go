// Package instr defines the bytecode instruction set: one opcode per
// operation, all sharing a single flat struct the way the teacher's own IR
// instruction does (std/compiler/ir.go's Inst{Op, Arg, Width, Val, Name}) —
// rather than one Go struct type per variant, which would fight the
// teacher's "one instruction shape carries whichever operands this opcode
// needs" texture.
package instr

import (
	"github.com/lumenrt/corevm/internal/ffi"
	"github.com/lumenrt/corevm/internal/token"
)

// Op is the instruction tag byte.
type Op uint8

const (
	OpLoadTrue Op = iota
	OpLoadFalse
	OpLoadU8
	OpLoadU16
	OpLoadU32
	OpLoadU64
	OpLoadI8
	OpLoadI16
	OpLoadI32
	OpLoadI64
	OpLoadThis
	OpLoadString
	OpLoadTypeValueSize
	OpReadPointerTo
	OpWritePointer
	OpIsAllZero
	OpNewObject
	OpNewArray
	OpNewDynamicArray
	OpInstanceCall
	OpStaticCall
	OpStaticNonPurusCall
	OpDynamicNonPurusCall
	OpLoadNonPurusCallConfiguration
	OpLoadArg
	OpLoadStatic
	OpLoadField
	OpSetThisField
	OpSetStaticField
	OpThrow
	OpReturnVal
	OpJump
	OpJumpIfTrue
	OpJumpIfAllZero
	OpJumpIfNotAllZero
)

var opNames = [...]string{
	"LoadTrue", "LoadFalse", "LoadU8", "LoadU16", "LoadU32", "LoadU64",
	"LoadI8", "LoadI16", "LoadI32", "LoadI64", "LoadThis", "LoadString",
	"LoadTypeValueSize", "ReadPointerTo", "WritePointer", "IsAllZero",
	"NewObject", "NewArray", "NewDynamicArray", "InstanceCall", "StaticCall",
	"StaticNonPurusCall", "DynamicNonPurusCall", "LoadNonPurusCallConfiguration",
	"LoadArg", "LoadStatic", "LoadField", "SetThisField", "SetStaticField",
	"Throw", "ReturnVal", "Jump", "JumpIfTrue", "JumpIfAllZero", "JumpIfNotAllZero",
}

// String renders an opcode's mnemonic, the way cmd/corevm's disasm
// subcommand prints one instruction per line.
func (op Op) String() string {
	if int(op) < 0 || int(op) >= len(opNames) {
		return "Unknown"
	}
	return opNames[op]
}

// JumpKind distinguishes the three encodings a JumpTarget may carry (spec
// §4.7: "relative targets use {Absolute | Forward | Backward}").
type JumpKind uint8

const (
	JumpAbsolute JumpKind = iota
	JumpForward
	JumpBackward
)

// JumpTarget is the decoded operand of every jump-family instruction.
type JumpTarget struct {
	Kind JumpKind
	Offset uint32 // absolute pc, or a relative distance for Forward/Backward
}

// Resolve turns a JumpTarget into an absolute instruction index given the
// current program counter.
func (t JumpTarget) Resolve(pc int) int {
	switch t.Kind {
	case JumpForward:
		return pc + int(t.Offset)
	case JumpBackward:
		return pc - int(t.Offset)
	default:
		return int(t.Offset)
	}
}

// MethodRef is either a direct method-table index (monomorphic call) or a
// Specific{index, type-args} pair instantiating the method's generic
// variant on first call.
type MethodRef struct {
	Index uint32
	Specific bool
	TypeArgs []token.Token
}

// Instruction is one decoded bytecode instruction. Only the fields
// relevant to Op are meaningful; this mirrors the teacher's single-struct
// IR instruction rather than per-opcode Go struct types.
type Instruction struct {
	Op Op

	RegisterAddr uint64 // destination register for loads/new/call results
	Val uint64 // immediate value for Load_u8..u64 (sign-extended for i8..i64)

	TypeRef token.Token
	FieldRef token.Token
	Method MethodRef

	Args []uint64 // argument registers for New*/*Call
	RetAt uint64 // result register; unused when the callee's return type is zero-sized

	Ptr, Size, Destination uint64 // ReadPointerTo
	Source uint64 // WritePointer (shares Ptr, Size)

	ToCheck uint64 // IsAllZero / JumpIfAllZero / JumpIfNotAllZero operand

	Len uint64 // NewArray static length
	LenAddr uint64 // NewDynamicArray length register

	Val1 uint64 // receiver register (InstanceCall) or this-pointer source
	Ctor token.Token

	// StructReceiver marks an InstanceCall whose receiver is a value type:
	// dispatch is a static-like lookup on TypeRef's method table with Val1
	// as a raw pointer into the register frame, rather than a virtual
	// dispatch read off a heap object's header.
	StructReceiver bool

	Target JumpTarget

	// NonPurusCall operands.
	FPointer uint64 // StaticNonPurusCall: immediate function pointer
	FPointerAddr uint64 // DynamicNonPurusCall: register holding the function pointer
	ConfigAddr uint64 // DynamicNonPurusCall: register holding a managed NonPurusCallConfiguration
	ConfigImm *ffi.Configuration // StaticNonPurusCall / LoadNonPurusCallConfiguration: inlined constant configuration
}
