package typesys

import (
	"strings"
	"sync"

	"github.com/lumenrt/corevm/internal/rterr"
)

// GenericBound names one generic parameter slot a type or method declares
//. Bound constraints beyond a name are
// not modeled; the source language's bounds are purely nominal markers the
// loader resolves positionally.
type GenericBound struct {
	Name string
}

// instanceCache maps a structural key over resolved argument handles to an
// already-instantiated child, so repeated Instantiate calls with an equal
// argument list return the same pointer.
type instanceCache struct {
	mu sync.Mutex
	byKey map[string]Descriptor
}

func newInstanceCache() *instanceCache { return &instanceCache{byKey: make(map[string]Descriptor)} }

// key builds a structural cache key over the resolved argument handles.
// Care is needed if some handles are still unloaded : callers
// must resolve before hashing, which Instantiate enforces by requiring
// already-resolved Descriptor arguments.
func key(args []Descriptor) string {
	var b strings.Builder
	for i, a := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(a.OwnerAssembly().Name)
		b.WriteByte('#')
		b.WriteString(a.TypeName())
		if targs := a.TypeArgs(); len(targs) > 0 {
			// An instantiated argument's own arguments are part of its
			// identity: Array`1[UInt8] and Array`1[String] share a name.
			inner := make([]Descriptor, 0, len(targs))
			for _, h := range targs {
				if d, err := h.Resolve(ResolveContext{}); err == nil {
					inner = append(inner, d)
				}
			}
			b.WriteByte('[')
			b.WriteString(key(inner))
			b.WriteByte(']')
		}
	}
	return b.String()
}

// Instantiate resolves each argument handle, then returns the cached child
// of generic keyed by the resolved argument list, or allocates and caches a
// new one by deep-duplicating the generic parent's fields and method table
//.
func Instantiate(generic Descriptor, argHandles []*TypeHandle) (Descriptor, error) {
	ctx := ResolveContext{AssemblyManager: generic.OwnerAssembly().manager}
	args := make([]Descriptor, len(argHandles))
	for i, h := range argHandles {
		d, err := h.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		args[i] = d
	}

	switch g := generic.(type) {
	case *Class:
		return g.instantiate(args, argHandles)
	case *Struct:
		return g.instantiate(args, argHandles)
	default:
		return nil, rterr.ErrFailedMakeGeneric
	}
}
