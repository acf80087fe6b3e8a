package stdlib_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenrt/corevm/internal/object"
	"github.com/lumenrt/corevm/internal/rt"
	"github.com/lumenrt/corevm/internal/stdlib"
	"github.com/lumenrt/corevm/internal/typesys"
)

func newTestVM(t *testing.T) *rt.VM {
	t.Helper()
	vm := rt.NewVM(typesys.NewAssemblyManager())
	_, err := stdlib.Install(vm)
	require.NoError(t, err)
	return vm
}

func decodeRef(b []byte) object.Ref {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return object.Ref(v)
}

// TestArrayToStringJoinsElements exercises spec §8 scenario 2: a managed
// String array's virtual ToString produces "[aaa, bbb]".
func TestArrayToStringJoinsElements(t *testing.T) {
	vm := newTestVM(t)
	cpu := vm.AddCPU()
	ctx := typesys.ResolveContext{AssemblyManager: vm.Assemblies}

	strArrDesc, err := typesys.Instantiate(vm.ArrayGeneric, []*typesys.TypeHandle{typesys.Loaded(vm.Catalog.StringType)})
	require.NoError(t, err)

	ref := object.NewArray(vm.Heap, strArrDesc, vm.Catalog.StringType, 2)
	acc, err := object.NewArrayAccessor(vm.Heap, ref)
	require.NoError(t, err)

	setIdx, ok := strArrDesc.MethodTable().FindFirstByName("set_Index")
	require.True(t, ok)
	aaa := object.NewManagedString(vm.Heap, vm.Catalog.StringType, "aaa")
	bbb := object.NewManagedString(vm.Heap, vm.Catalog.StringType, "bbb")
	_, err = vm.Invoke(cpu, setIdx, uint64(ref), []uint64{0, uint64(aaa)}, ctx)
	require.NoError(t, err)
	_, err = vm.Invoke(cpu, setIdx, uint64(ref), []uint64{1, uint64(bbb)}, ctx)
	require.NoError(t, err)

	getIdx, ok := strArrDesc.MethodTable().FindFirstByName("get_Index")
	require.True(t, ok)
	out, err := vm.Invoke(cpu, getIdx, uint64(ref), []uint64{0}, ctx)
	require.NoError(t, err)
	first, err := object.NewStringAccessor(vm.Heap, decodeRef(out))
	require.NoError(t, err)
	require.Equal(t, "aaa", first.String())

	toString, ok := strArrDesc.MethodTable().FindFirstByName("ToString")
	require.True(t, ok)
	res, err := vm.Invoke(cpu, toString, uint64(ref), nil, ctx)
	require.NoError(t, err)
	sacc, err := object.NewStringAccessor(vm.Heap, decodeRef(res))
	require.NoError(t, err)
	require.Equal(t, "[aaa, bbb]", sacc.String())
	require.EqualValues(t, 2, acc.Len())
}

// TestExceptionConstructorCapturesStackTrace exercises spec §8 scenario 3:
// a managed `new Exception("boom")` populates Message and StackTrace.
func TestExceptionConstructorCapturesStackTrace(t *testing.T) {
	vm := newTestVM(t)
	cpu := vm.AddCPU()
	ctx := typesys.ResolveContext{AssemblyManager: vm.Assemblies}

	ctor, ok := vm.Catalog.Exception.MethodTable().FindFirstByName("Constructor_String")
	require.True(t, ok)

	ref := object.NewInstance(vm.Heap, vm.Catalog.Exception, false)
	msg := object.NewManagedString(vm.Heap, vm.Catalog.StringType, "boom")
	_, err := vm.Invoke(cpu, ctor, uint64(ref), []uint64{uint64(msg)}, ctx)
	require.NoError(t, err)

	facc, err := object.NewFieldAccessorFor(vm.Heap, ref, vm.Catalog.Exception.MethodTable())
	require.NoError(t, err)
	msgBytes, err := facc.Get(0)
	require.NoError(t, err)
	msgAcc, err := object.NewStringAccessor(vm.Heap, decodeRef(msgBytes))
	require.NoError(t, err)
	require.Equal(t, "boom", msgAcc.String())

	traceBytes, err := facc.Get(1)
	require.NoError(t, err)
	traceAcc, err := object.NewArrayAccessor(vm.Heap, decodeRef(traceBytes))
	require.NoError(t, err)
	require.GreaterOrEqual(t, traceAcc.Len(), uint64(1))
}

// TestObjectDestructorIsInvokedOnDestroy exercises spec §3: destroy
// invokes the runtime type's own Destructor before releasing the object.
func TestObjectDestructorIsInvokedOnDestroy(t *testing.T) {
	vm := newTestVM(t)
	cpu := vm.AddCPU()

	ref := object.NewInstance(vm.Heap, vm.Catalog.Exception, false)
	require.NoError(t, vm.Destroy(cpu, ref))
}
