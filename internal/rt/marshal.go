package rt

import (
	"sync"
	"unicode/utf16"

	"github.com/lumenrt/corevm/internal/ffi"
	"github.com/lumenrt/corevm/internal/instr"
	"github.com/lumenrt/corevm/internal/object"
	"github.com/lumenrt/corevm/internal/rterr"
)

// ConfigStore binds a managed NonPurusCallConfiguration reference to the
// concrete internal/ffi.Configuration it describes. A real managed
// representation
// would marshal cfg's fields in and out of a heap object on every access;
// this VM instead hands out a reference that is opaque to managed code and
// keys straight back into this table, since internal/stdlib has not (yet)
// given that type real declared fields. LoadNonPurusCallConfiguration and
// DynamicNonPurusCall both go through this store.
type ConfigStore struct {
	mu sync.Mutex
	byRef map[object.Ref]*ffi.Configuration
}

// NewConfigStore returns an empty store.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{byRef: make(map[object.Ref]*ffi.Configuration)}
}

// Bind records cfg under ref.
func (s *ConfigStore) Bind(ref object.Ref, cfg *ffi.Configuration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRef[ref] = cfg
}

// Get looks up the configuration ref was bound to.
func (s *ConfigStore) Get(ref object.Ref) (*ffi.Configuration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.byRef[ref]
	return cfg, ok
}

// execLoadConfiguration allocates a fresh opaque slot and binds it to
// in.ConfigImm, standing in for a managed NonPurusCallConfiguration object
//. The slot is never dereferenced as a real object — only ever
// round-tripped through ConfigStore — so a bare heap address serves as its
// identity without needing a backing method table.
func execLoadConfiguration(ec *execContext, in *instr.Instruction) error {
	if in.ConfigImm == nil {
		return rterr.ErrWrongType
	}
	addr := ec.vm.Heap.RawAlloc(8)
	ref := object.Ref(addr)
	ec.vm.Configs.Bind(ref, in.ConfigImm)
	return ec.frame.WriteU64(in.RegisterAddr, uint64(ref))
}

// execNonPurusCall marshals arguments per the call's configuration,
// performs the raw ABI dispatch through internal/ffi, and unmarshals the
// result. Static calls carry an inlined configuration and
// immediate function pointer; dynamic calls read both out of registers.
func execNonPurusCall(ec *execContext, in *instr.Instruction) ([]byte, error) {
	var cfg *ffi.Configuration
	var fptr uint64

	if in.Op == instr.OpStaticNonPurusCall {
		cfg = in.ConfigImm
		fptr = in.FPointer
	} else {
		var err error
		fptr, err = ec.frame.ReadU64(in.FPointerAddr)
		if err != nil {
			return nil, err
		}
		configVal, err := ec.frame.ReadU64(in.ConfigAddr)
		if err != nil {
			return nil, err
		}
		var ok bool
		cfg, ok = ec.vm.Configs.Get(object.Ref(configVal))
		if !ok {
			return nil, rterr.ErrWrongType
		}
	}
	if cfg == nil {
		return nil, rterr.ErrWrongType
	}

	rawArgs := make(ffi.RawArgs, len(in.Args))
	var temporaries []uint64
	for i, reg := range in.Args {
		v, err := ec.frame.ReadU64(reg)
		if err != nil {
			return nil, err
		}
		arg := cfg.Arguments[i]
		word, tmp, err := marshalArgument(ec, arg, cfg.Encoding, cfg.ObjectStrategy, v)
		if err != nil {
			return nil, err
		}
		rawArgs[i] = word
		if tmp != 0 {
			temporaries = append(temporaries, tmp)
		}
	}
	for _, addr := range temporaries {
		ec.cpu.TrackTemporary(addr, 0)
	}
	defer ec.cpu.ReleaseTemporaries()

	raw, err := ffi.Call(cfg, uintptr(fptr), rawArgs)
	if err != nil {
		return nil, err
	}
	return unmarshalReturn(cfg.ReturnType, uint64(raw)), nil
}

// marshalArgument converts register value v into the raw machine word a
// non-purus call expects, per arg's ByRef/Type and the configuration's
// string encoding and object strategy. tmp is a
// nonzero heap address the caller should track as a call-scoped temporary
// (e.g. a re-encoded string buffer), or 0 if none was allocated.
func marshalArgument(ec *execContext, arg ffi.Argument, enc ffi.StringEncoding, strat ffi.ObjectStrategy, v uint64) (uintptr, uint64, error) {
	h := ec.vm.Heap

	switch arg.Type.Kind {
	case ffi.TypeString:
		acc, err := object.NewStringAccessor(h, object.Ref(v))
		if err != nil {
			return 0, 0, err
		}
		buf := encodeStringFor(acc.String(), enc)
		addr := h.RawAlloc(uintptr(len(buf)))
		h.WriteBytes(addr, buf)
		return uintptr(h.UnsafePointer(addr)), addr, nil

	case ffi.TypeObject:
		ref := object.Ref(v)
		addr := uint64(ref)
		if strat == ffi.ObjectStrategyPointToData {
			addr = h.DataAddr(ref)
		}
		return uintptr(h.UnsafePointer(addr)), 0, nil

	default:
		if arg.ByRef {
			// The register already holds the pointee's address (spec
			// §4.9: "By-ref arguments: one extra indirection per slot").
			return uintptr(h.UnsafePointer(v)), 0, nil
		}
		return uintptr(v), 0, nil
	}
}

func encodeStringFor(s string, enc ffi.StringEncoding) []byte {
	switch enc {
	case ffi.StringEncodingUtf8, ffi.StringEncodingCUtf8:
		b := []byte(s)
		if enc == ffi.StringEncodingCUtf8 {
			b = append(b, 0)
		}
		return b
	default: // Utf16, CUtf16, Remain: keep utf-16
		units := utf16.Encode([]rune(s))
		if enc == ffi.StringEncodingCUtf16 {
			units = append(units, 0)
		}
		out := make([]byte, len(units)*2)
		for i, u := range units {
			out[2*i] = byte(u)
			out[2*i+1] = byte(u >> 8)
		}
		return out
	}
}

// unmarshalReturn packs a non-purus call's raw result word into the bytes
// its declared return type's own layout calls for.
func unmarshalReturn(ret ffi.CallType, raw uint64) []byte {
	n := int(ret.Layout().Size)
	if n == 0 {
		return nil
	}
	if n > 8 {
		n = 8
	}
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = byte(raw)
		raw >>= 8
	}
	return buf
}
