// Package object implements the managed-object heap: a flat, byte-addressable
// region modeled the same way the teacher's own IR
// interpreter keeps VM memory — a growable []byte with a bump-pointer
// allocator (std/compiler/backend_vm.go's VM.memory/alloc) — rather than
// relying on Go's own GC-managed heap for managed-object storage. Method
// tables stay ordinary Go values owned by internal/typesys; the heap keeps
// a small side table mapping each object's method-table slot to one by
// numeric id, so the object header's "MethodTablePtr" word is an
// id into that table rather than a raw pointer.
package object

import (
	"sync"
	"unsafe"

	"github.com/lumenrt/corevm/internal/rterr"
	"github.com/lumenrt/corevm/internal/typesys"
)

// Ref is a ManagedReference: a nullable handle to an object header (spec
// §3). Zero is null.
type Ref uint64

// Null is the nil managed reference.
const Null Ref = 0

// IsNull reports whether r is the null reference.
func (r Ref) IsNull() bool { return r == Null }

const wordSize = 8

// offData (header word + MT-slot word) is the fixed prefix of every heap object (spec
// §3: "[ObjectHeader | MethodTablePtr | fields-of-leaf-most-type]").
const (
	offHeader = 0
	offMT = 8
	offData = 16
)

// Heap owns the flat memory region and the method-table registry.
type Heap struct {
	mu sync.RWMutex
	memory []byte
	next int

	mtTable []*typesys.MethodTable
	mtIndex map[*typesys.MethodTable]uint64
}

// NewHeap returns an empty heap with an initial reservation.
func NewHeap() *Heap {
	return &Heap{
		memory: make([]byte, 4096),
		next: wordSize, // reserve address 0 so Ref zero stays unambiguously null
		mtIndex: make(map[*typesys.MethodTable]uint64),
	}
}

func (h *Heap) ensureLocked(needed int) {
	if needed <= len(h.memory) {
		return
	}
	newSize := len(h.memory) * 2
	if newSize < needed {
		newSize = needed + 4*1024*1024
	}
	grown := make([]byte, newSize)
	copy(grown, h.memory)
	h.memory = grown
}

// alloc bump-allocates size word-aligned bytes, zero-initialized, and
// returns the starting address.
func (h *Heap) alloc(size int) Ref {
	h.mu.Lock()
	defer h.mu.Unlock()
	if size == 0 {
		size = wordSize
	}
	h.next = (h.next + wordSize - 1) &^ (wordSize - 1)
	addr := h.next
	h.next += size
	h.ensureLocked(h.next)
	return Ref(addr)
}

// mtID interns mt, returning its stable registry id.
func (h *Heap) mtID(mt *typesys.MethodTable) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id, ok := h.mtIndex[mt]; ok {
		return id
	}
	h.mtTable = append(h.mtTable, mt)
	id := uint64(len(h.mtTable) - 1)
	h.mtIndex[mt] = id
	return id
}

// MethodTableAt resolves a registry id back to its method table.
func (h *Heap) MethodTableAt(id uint64) (*typesys.MethodTable, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if int(id) >= len(h.mtTable) {
		return nil, false
	}
	return h.mtTable[id], true
}

// LoadU64/StoreU64 are the little-endian word accessors every other
// accessor in this package is built from.
func (h *Heap) LoadU64(addr uint64) uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return loadU64(h.memory, addr)
}

func (h *Heap) StoreU64(addr uint64, v uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	storeU64(h.memory, addr, v)
}

func loadU64(mem []byte, addr uint64) uint64 {
	b := mem[addr : addr+8]
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}

func storeU64(mem []byte, addr uint64, v uint64) {
	b := mem[addr : addr+8]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	b[5] = byte(v >> 40)
	b[6] = byte(v >> 48)
	b[7] = byte(v >> 56)
}

// ReadBytes/WriteBytes give the interpreter's ReadPointerTo/WritePointer
// instructions raw typed-memcpy access.
func (h *Heap) ReadBytes(addr uint64, n int) []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]byte, n)
	copy(out, h.memory[addr:int(addr)+n])
	return out
}

func (h *Heap) WriteBytes(addr uint64, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensureLocked(int(addr) + len(data))
	copy(h.memory[addr:], data)
}

// IsAllZero reports whether the n bytes at addr are entirely zero (spec
// §4.7, §8: "IsAllZero on a zero-sized type always yields true").
func (h *Heap) IsAllZero(addr uint64, n int) bool {
	if n == 0 {
		return true
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, b := range h.memory[addr : int(addr)+n] {
		if b != 0 {
			return false
		}
	}
	return true
}

// CommonAlloc allocates header + MT-slot + value area, zero-initialized,
// and stamps the header and MT slot.
func (h *Heap) CommonAlloc(mt *typesys.MethodTable, valueSize uintptr, isStatic bool) Ref {
	total := offData + int(valueSize)
	ref := h.alloc(total)
	addr := uint64(ref)
	hdr := newHeader(isStatic)
	h.StoreU64(addr+offHeader, uint64(hdr))
	h.StoreU64(addr+offMT, h.mtID(mt))
	return ref
}

// AllocArray allocates a System.Array`1[element] instance: header + MT +
// `[length:usize | element0 | element1 | …]`.
func (h *Heap) AllocArray(arrayMT *typesys.MethodTable, elementLayout typesys.Layout, length uint64) Ref {
	dataSize := wordSize + int(elementLayout.Size)*int(length)
	ref := h.CommonAlloc(arrayMT, uintptr(dataSize), false)
	h.StoreU64(uint64(ref)+offData, length)
	return ref
}

// NewString interns a utf-16 payload with a preceding length.
func (h *Heap) NewString(stringMT *typesys.MethodTable, units []uint16) Ref {
	dataSize := wordSize + len(units)*2
	ref := h.CommonAlloc(stringMT, uintptr(dataSize), false)
	addr := uint64(ref) + offData
	h.StoreU64(addr, uint64(len(units)))
	h.mu.Lock()
	h.ensureLocked(int(addr) + wordSize + len(units)*2)
	off := int(addr) + wordSize
	for _, u := range units {
		h.memory[off] = byte(u)
		h.memory[off+1] = byte(u >> 8)
		off += 2
	}
	h.mu.Unlock()
	return ref
}

// RawAlloc bump-allocates a header-less region, the way a struct's static
// storage is allocated directly by size rather than through CommonAlloc
//.
func (h *Heap) RawAlloc(size uintptr) uint64 {
	return uint64(h.alloc(int(size)))
}

// UnsafePointer converts a simulated-heap address to a real process
// pointer. This is the one deliberate escape hatch in this package: a
// non-purus call crosses into genuine native code, which has no
// notion of this heap's []byte-backed addressing and needs an actual
// pointer into process memory. Every other accessor in this package stays
// on plain byte-slice indexing precisely so this is the only seam where
// unsafe appears.
func (h *Heap) UnsafePointer(addr uint64) uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensureLocked(int(addr) + 1)
	return uintptr(unsafe.Pointer(&h.memory[addr]))
}

// MethodTableOf returns the method table a reference's header records, or
// NullReference if r is null.
func (h *Heap) MethodTableOf(r Ref) (*typesys.MethodTable, error) {
	if r.IsNull() {
		return nil, rterr.NullReference{At: "MethodTableOf"}
	}
	id := h.LoadU64(uint64(r) + offMT)
	mt, ok := h.MethodTableAt(id)
	if !ok {
		return nil, rterr.ErrUninitializedMethodTable
	}
	return mt, nil
}

// DataAddr returns the address of r's field-data region (past header+MT).
func (h *Heap) DataAddr(r Ref) uint64 { return uint64(r) + offData }
