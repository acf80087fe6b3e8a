// Package coreid enumerates the built-in standard-library type catalog by a
// stable numeric id, the way the Rust original's CoreTypeId works
// (stdlib/definitions.rs) and the teacher enumerates its own intrinsic
// opcodes by iota (std/compiler/ir.go's Opcode). Every package that needs
// to recognize "is this the core Array`1 / String / Exception type"
// (internal/typesys for hard-wired layouts, internal/object for accessor
// validity, internal/stdlib for native method dispatch) shares this one
// id space instead of comparing qualified names at runtime.
package coreid

// ID names one of the core assembly's built-in types.
type ID int

const (
	Object ID = iota
	Void
	Boolean
	UInt8
	Int8
	UInt16
	Int16
	UInt32
	Int32
	UInt64
	Int64
	USize
	Char
	String
	ArrayOf1
	Exception
	Pointer
	NonPurusCallType
	NonPurusCallConfiguration
	DynamicLibrary
	Win32Exception
	ErrnoException
	DlErrorException
	InvalidEnumException

	count
)

// Names gives every core id its fully qualified name in declaration order.
var Names = [count]string{
	Object:                    "System.Object",
	Void:                      "System.Void",
	Boolean:                   "System.Boolean",
	UInt8:                     "System.UInt8",
	Int8:                      "System.Int8",
	UInt16:                    "System.UInt16",
	Int16:                     "System.Int16",
	UInt32:                    "System.UInt32",
	Int32:                     "System.Int32",
	UInt64:                    "System.UInt64",
	Int64:                     "System.Int64",
	USize:                     "System.USize",
	Char:                      "System.Char",
	String:                    "System.String",
	ArrayOf1:                  "System.Array`1",
	Exception:                 "System.Exception",
	Pointer:                   "System.Pointer",
	NonPurusCallType:          "System.NonPurusCallType",
	NonPurusCallConfiguration: "System.NonPurusCallConfiguration",
	DynamicLibrary:            "System.DynamicLibrary",
	Win32Exception:            "System.Win32Exception",
	ErrnoException:            "System.ErrnoException",
	DlErrorException:          "System.DlErrorException",
	InvalidEnumException:      "System.InvalidEnumException",
}

// Count is the number of core ids.
const Count = int(count)

// String implements fmt.Stringer for readable diagnostics.
func (id ID) String() string {
	if id < 0 || int(id) >= Count {
		return "System.<unknown>"
	}
	return Names[id]
}
