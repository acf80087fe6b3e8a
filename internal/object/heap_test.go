package object_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenrt/corevm/internal/coreid"
	"github.com/lumenrt/corevm/internal/object"
	"github.com/lumenrt/corevm/internal/typesys"
)

func newCoreAssembly(t *testing.T) (*typesys.AssemblyManager, *typesys.Assembly) {
	t.Helper()
	am := typesys.NewAssemblyManager()
	core, err := typesys.NewAssembly(am, "!", true)
	require.NoError(t, err)
	return am, core
}

func newU8(core *typesys.Assembly) *typesys.Struct {
	core.RegisterCoreName("System.UInt8", coreid.UInt8)
	return typesys.NewStruct(core, "System.UInt8", typesys.VisibilityPublic, nil, nil,
		func(*typesys.Struct) []*typesys.Method { return nil })
}

func newU32(core *typesys.Assembly) *typesys.Struct {
	core.RegisterCoreName("System.UInt32", coreid.UInt32)
	return typesys.NewStruct(core, "System.UInt32", typesys.VisibilityPublic, nil, nil,
		func(*typesys.Struct) []*typesys.Method { return nil })
}

func newStringClass(core *typesys.Assembly) *typesys.Class {
	core.RegisterCoreName("System.String", coreid.String)
	return typesys.NewClass(core, "System.String", typesys.VisibilityPublic, nil, nil, nil,
		func(*typesys.Class) []*typesys.Method { return nil })
}

func newArrayGeneric(core *typesys.Assembly) *typesys.Class {
	core.RegisterCoreName("System.Array`1", coreid.ArrayOf1)
	return typesys.NewClass(core, "System.Array`1", typesys.VisibilityPublic, nil, nil,
		[]typesys.GenericBound{{Name: "T"}},
		func(*typesys.Class) []*typesys.Method { return nil })
}

func TestCommonAllocStampsHeaderAndMT(t *testing.T) {
	_, core := newCoreAssembly(t)
	u8 := newU8(core)
	h := object.NewHeap()

	ref := object.NewInstance(h, u8, false)
	require.False(t, ref.IsNull())

	mt, err := h.MethodTableOf(ref)
	require.NoError(t, err)
	require.Same(t, u8.MethodTable(), mt)
	require.False(t, h.IsStatic(ref))
}

func TestArrayAccessorLenAndElements(t *testing.T) {
	_, core := newCoreAssembly(t)
	u8 := newU8(core)
	arrGeneric := newArrayGeneric(core)

	inst, err := typesys.Instantiate(arrGeneric, []*typesys.TypeHandle{typesys.Loaded(u8)})
	require.NoError(t, err)
	arrInst := inst.(*typesys.Class)

	h := object.NewHeap()
	ref := object.NewArray(h, arrInst, u8, 3)

	acc, err := object.NewArrayAccessor(h, ref)
	require.NoError(t, err)
	require.Equal(t, uint64(3), acc.Len())
	require.Equal(t, uintptr(1), acc.ElementLayout().Size)

	require.NoError(t, acc.SetElement(0, []byte{7}))
	require.NoError(t, acc.SetElement(1, []byte{9}))
	got, err := acc.Element(0)
	require.NoError(t, err)
	require.Equal(t, []byte{7}, got)

	_, err = acc.Element(3)
	require.Error(t, err)

	require.Equal(t, 3, len(acc.AsBytes()))
}

func TestArrayAccessorEmptyLength(t *testing.T) {
	_, core := newCoreAssembly(t)
	u8 := newU8(core)
	arrGeneric := newArrayGeneric(core)
	inst, err := typesys.Instantiate(arrGeneric, []*typesys.TypeHandle{typesys.Loaded(u8)})
	require.NoError(t, err)
	arrInst := inst.(*typesys.Class)

	h := object.NewHeap()
	ref := object.NewArray(h, arrInst, u8, 0)
	acc, err := object.NewArrayAccessor(h, ref)
	require.NoError(t, err)
	require.Equal(t, uint64(0), acc.Len())
	require.Empty(t, acc.AsBytes())
}

func TestStringAccessorRoundTrip(t *testing.T) {
	_, core := newCoreAssembly(t)
	strClass := newStringClass(core)
	h := object.NewHeap()

	ref := object.NewManagedString(h, strClass, "hello")
	acc, err := object.NewStringAccessor(h, ref)
	require.NoError(t, err)
	require.Equal(t, uint64(5), acc.Len())
	require.Equal(t, "hello", acc.String())
}

func TestFieldAccessorGetSet(t *testing.T) {
	_, core := newCoreAssembly(t)
	u32 := newU32(core)

	fieldType := typesys.Loaded(u32)
	fA := typesys.NewField("A", typesys.FieldAttrs{}, fieldType)
	fB := typesys.NewField("B", typesys.FieldAttrs{}, fieldType)
	cls := typesys.NewClass(core, "Point", typesys.VisibilityPublic, nil,
		[]*typesys.Field{fA, fB}, nil, func(*typesys.Class) []*typesys.Method { return nil })

	h := object.NewHeap()
	ref := object.NewInstance(h, cls, false)

	acc, err := object.NewFieldAccessor(h, ref)
	require.NoError(t, err)
	require.NoError(t, acc.SetU64(0, 10))
	require.NoError(t, acc.SetU64(1, 20))

	a, err := acc.GetU64(0)
	require.NoError(t, err)
	require.Equal(t, uint64(10), a)

	b, err := acc.GetU64(1)
	require.NoError(t, err)
	require.Equal(t, uint64(20), b)
}

func TestLockInflatesOnContention(t *testing.T) {
	_, core := newCoreAssembly(t)
	u8 := newU8(core)
	h := object.NewHeap()
	ref := object.NewInstance(h, u8, false)

	h.Lock(ref, 1)
	h.Lock(ref, 2) // different owner tag forces inflation to a fat slot
	h.Unlock(ref)
	h.Destroy(ref)
}

func TestIsAllZero(t *testing.T) {
	_, core := newCoreAssembly(t)
	u32 := newU32(core)
	h := object.NewHeap()
	ref := object.NewInstance(h, u32, false)
	require.True(t, h.IsAllZero(h.DataAddr(ref), 4))
	h.StoreU64(h.DataAddr(ref), 1)
	require.False(t, h.IsAllZero(h.DataAddr(ref), 4))
	require.True(t, h.IsAllZero(h.DataAddr(ref), 0))
}
