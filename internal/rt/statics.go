package rt

import (
	"sync"

	"github.com/lumenrt/corevm/internal/object"
	"github.com/lumenrt/corevm/internal/typesys"
)

// staticEntry is one type's lazily-allocated static storage: addr is the
// base address of its static-field region (a heap object's data region for
// classes, a bare heap allocation for structs), guarded by once so the
// static constructor runs exactly one time.
//
// The source spec (§4.8) flags this as an open question — "implementers
// should enforce single-flight with a per-type in-progress marker to
// eliminate duplicate initialization" — so sync.Once is the decision this
// port makes for that open question (DESIGN.md records it).
type staticEntry struct {
	once sync.Once
	addr uint64
	err error
}

// StaticStore is the VM-wide class-static and struct-static map (spec
// §4.8, §4.11).
type StaticStore struct {
	mu sync.Mutex
	entries map[typesys.Descriptor]*staticEntry
}

// NewStaticStore returns an empty store.
func NewStaticStore() *StaticStore {
	return &StaticStore{entries: make(map[typesys.Descriptor]*staticEntry)}
}

func (s *StaticStore) entryFor(owner typesys.Descriptor) *staticEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[owner]
	if !ok {
		e = &staticEntry{}
		s.entries[owner] = e
	}
	return e
}

// GetStaticField obtains (base-address, static-layout) for owner,
// allocating the static region and running the static constructor on
// staticCPU exactly once. fieldOffset is applied by the
// caller via owner.MethodTable().FieldOffset(id, true,...); this just
// guarantees owner's static region exists before that offset is added.
func (s *StaticStore) GetStaticField(h *object.Heap, owner typesys.Descriptor, staticCPU *CPU, runCtor func(*CPU) error) (uint64, error) {
	e := s.entryFor(owner)
	e.once.Do(func() {
		layout := owner.MethodTable().StaticLayout(typesys.LayoutOptions{PreferCached: true})
		if owner.IsStruct() {
			e.addr = h.RawAlloc(layout.Size)
		} else {
			ref := h.CommonAlloc(owner.MethodTable(), layout.Size, true)
			e.addr = h.DataAddr(ref)
		}
		if runCtor != nil {
			e.err = runCtor(staticCPU)
		}
	})
	return e.addr, e.err
}
