package machine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArrayPushPopGrowth(t *testing.T) {
	vm := newTestVM(t)
	a := vm.NewArray(nil)
	require.Equal(t, 0, a.Len())

	for i := 0; i < 10; i++ {
		a.Push(Number(i))
	}
	require.Equal(t, 10, a.Len())
	require.GreaterOrEqual(t, a.Cap(), 10)

	v, err := a.Peek()
	require.NoError(t, err)
	require.Equal(t, Number(9), v)

	v, err = a.Pop()
	require.NoError(t, err)
	require.Equal(t, Number(9), v)
	require.Equal(t, 9, a.Len())

	_, err = a.Get(100)
	require.Error(t, err)

	require.NoError(t, a.Put(0, Number(42)))
	v, err = a.Get(0)
	require.NoError(t, err)
	require.Equal(t, Number(42), v)

	a.SetCount(3)
	require.Equal(t, 3, a.Len())
	a.SetCount(5)
	require.Equal(t, 5, a.Len())
	v, err = a.Get(4)
	require.NoError(t, err)
	require.Equal(t, Nil, v)

	a.Clear()
	require.Equal(t, 0, a.Len())
}

func TestArrayPopEmpty(t *testing.T) {
	vm := newTestVM(t)
	a := vm.NewArray(nil)
	_, err := a.Pop()
	require.Error(t, err)
}

func TestArraySliceIndependence(t *testing.T) {
	vm := newTestVM(t)
	a := vm.NewArray([]Value{Number(1), Number(2), Number(3), Number(4)})
	s := vm.ArraySlice(a, 1, 3)
	require.Equal(t, 2, s.Len())

	require.NoError(t, s.Put(0, Number(99)))
	v, err := a.Get(1)
	require.NoError(t, err)
	require.Equal(t, Number(2), v, "mutating the slice copy must not affect the source array")
}

func TestTablePutGetDeleteProto(t *testing.T) {
	vm := newTestVM(t)
	proto := vm.NewTable(0)
	require.NoError(t, proto.SetKey(vm.Symbol("inherited"), Number(1)))

	tbl := vm.NewTable(0)
	tbl.Proto = proto
	require.NoError(t, tbl.SetKey(vm.Symbol("local"), Number(2)))

	v, ok, err := tbl.Get(vm.Symbol("local"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Number(2), v)

	v, ok, err = tbl.Get(vm.Symbol("inherited"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Number(1), v)

	require.NoError(t, tbl.SetKey(vm.Symbol("local"), Nil))
	_, ok, err = tbl.Get(vm.Symbol("local"))
	require.NoError(t, err)
	require.False(t, ok, "assigning nil deletes the key")
}

func TestTableRehashPreservesEntries(t *testing.T) {
	vm := newTestVM(t)
	tbl := vm.NewTable(0)
	for i := 0; i < 200; i++ {
		require.NoError(t, tbl.SetKey(Number(i), Number(i*2)))
	}
	require.Equal(t, 200, tbl.Len())
	for i := 0; i < 200; i++ {
		v, ok, err := tbl.Get(Number(i))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, Number(i*2), v)
	}
}

func TestTableNilKeyIsNoop(t *testing.T) {
	vm := newTestVM(t)
	tbl := vm.NewTable(0)
	require.NoError(t, tbl.SetKey(Nil, Number(1)))
	require.Equal(t, 0, tbl.Len())
	v, ok, err := tbl.Get(Nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, Nil, v)
}

func TestTupleIndexAndCompare(t *testing.T) {
	vm := newTestVM(t)
	a := vm.NewTuple([]Value{Number(1), Number(2)}, false)
	b := vm.NewTuple([]Value{Number(1), Number(2)}, false)
	c := vm.NewTuple([]Value{Number(1), Number(3)}, false)

	eq, err := Equals(a, b)
	require.NoError(t, err)
	require.True(t, eq)

	lt, err := Compare(CmpLT, a, c)
	require.NoError(t, err)
	require.True(t, bool(lt))

	require.Equal(t, 2, a.Len())
	require.Equal(t, Number(2), a.Index(1))
}

func TestStructBuildLastValueWins(t *testing.T) {
	vm := newTestVM(t)
	b := vm.BeginStruct(2)
	b.Put(vm.Keyword("a"), Number(1))
	b.Put(vm.Keyword("b"), Number(2))
	b.Put(vm.Keyword("a"), Number(99))
	s := vm.EndStruct(b)

	require.Equal(t, 2, s.Len(), "duplicate key collapses to one pair")
	v, ok, err := s.Get(vm.Keyword("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Number(99), v, "last Put for a key wins")
}

func TestStructOrderIndependentHash(t *testing.T) {
	vm := newTestVM(t)
	b1 := vm.BeginStruct(2)
	b1.Put(vm.Keyword("a"), Number(1))
	b1.Put(vm.Keyword("b"), Number(2))
	s1 := vm.EndStruct(b1)

	b2 := vm.BeginStruct(2)
	b2.Put(vm.Keyword("b"), Number(2))
	b2.Put(vm.Keyword("a"), Number(1))
	s2 := vm.EndStruct(b2)

	h1, err := Hash(s1)
	require.NoError(t, err)
	h2, err := Hash(s2)
	require.NoError(t, err)
	require.Equal(t, h1, h2, "struct hash must not depend on insertion order")

	eq, err := Equals(s1, s2)
	require.NoError(t, err)
	require.True(t, eq)
}

func TestBufferPushAndForeignGrowth(t *testing.T) {
	vm := newTestVM(t)
	buf := vm.NewBuffer(0)
	require.NoError(t, buf.Push([]byte("hello")))
	require.Equal(t, "hello", string(buf.Bytes()))

	foreign := vm.NewForeignBuffer(make([]byte, 4, 4))
	require.True(t, foreign.Foreign())
	err := foreign.Ensure(8)
	require.Error(t, err, "a foreign-backed buffer must refuse to grow")
}

func TestHashEqualAcrossKinds(t *testing.T) {
	vm := newTestVM(t)
	s1 := vm.NewString("abc")
	s2 := vm.NewString("abc")

	h1, err := Hash(s1)
	require.NoError(t, err)
	h2, err := Hash(s2)
	require.NoError(t, err)
	require.Equal(t, h1, h2, "equal strings must hash equal, per table/struct lookup invariants")

	eq, err := Equals(s1, s2)
	require.NoError(t, err)
	require.True(t, eq)
	require.NotSame(t, s1, s2, "distinct allocations can still compare equal")
}

func TestGCStatsAndLock(t *testing.T) {
	vm := newTestVM(t)
	before := vm.Stats()
	require.False(t, before.Locked)

	vm.GCLock()
	locked := vm.Stats()
	require.True(t, locked.Locked)
	vm.GCUnlock()
	after := vm.Stats()
	require.False(t, after.Locked)

	for i := 0; i < 1000; i++ {
		vm.NewArray([]Value{Number(i)})
	}
	vm.Collect()
	stats := vm.Stats()
	require.GreaterOrEqual(t, stats.Collections, 1)
}

func TestGCRootSurvivesCollect(t *testing.T) {
	vm := newTestVM(t)
	kept := vm.NewArray([]Value{Number(1), Number(2), Number(3)})
	vm.GCRoot(kept)
	defer vm.GCUnroot(kept)

	for i := 0; i < 1000; i++ {
		vm.NewTable(4)
	}
	vm.Collect()

	require.Equal(t, 3, kept.Len(), "an explicitly rooted value must survive collection")
}
