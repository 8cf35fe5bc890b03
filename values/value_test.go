package values

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntArithmeticTruncatesTowardZero(t *testing.T) {
	a, b := NewInt(-7), NewInt(2)
	r, err := a.OpInt("/", b)
	require.NoError(t, err)
	require.EqualValues(t, -3, r)
}

func TestFloatFormattingKeepsOneFractionalDigit(t *testing.T) {
	require.Equal(t, "2.0", NewFloat(2).Str())
	require.Equal(t, "2.5", NewFloat(2.5).Str())
}

func TestStringEqualityRejectsCrossTypeComparison(t *testing.T) {
	_, err := NewString("a").OpBool("==", NewInt(1))
	require.Error(t, err)
}

func TestListConcatBuildsFreshListLeavingOperandsUntouched(t *testing.T) {
	a, b := NewList(), NewList()
	al, _ := a.AsList()
	bl, _ := b.AsList()
	al.Append(NewInt(1))
	bl.Append(NewInt(2))

	sum, err := Concat(a, b)
	require.NoError(t, err)
	sl, _ := sum.AsList()
	require.Len(t, sl.Items, 2)
	require.Len(t, al.Items, 1)
	require.Len(t, bl.Items, 1)
}

func TestCopyIndependenceForLists(t *testing.T) {
	orig := NewList()
	ol, _ := orig.AsList()
	ol.Append(NewInt(1))

	cp := orig.Copy()
	cl, _ := cp.AsList()
	cl.Items[0].AssignInt(99)

	require.EqualValues(t, 1, ol.Items[0].Int())
}

func TestCopyIndependenceForStructInstances(t *testing.T) {
	def := &StructDef{Name: "Point", Fields: []StructField{{Name: "x", Type: "int"}}}
	orig := NewStructInstance(def)
	origInst := orig.Data.(*StructInstance)
	origInst.Fields[0] = NewInt(1)

	cp := orig.Copy()
	cpInst := cp.Data.(*StructInstance)
	cpInst.Fields[0].AssignInt(42)

	require.EqualValues(t, 1, origInst.Fields[0].Int())
	require.Len(t, cpInst.Fields, len(def.Fields))
}

func TestStructInstanceFieldCountMatchesDef(t *testing.T) {
	def := &StructDef{Name: "Pair", Fields: []StructField{{Name: "a", Type: "int"}, {Name: "b", Type: "int"}}}
	inst := NewStructInstance(def)
	require.Len(t, inst.Data.(*StructInstance).Fields, len(def.Fields))
}

func TestHashableStructInstancesAreFieldwiseEqual(t *testing.T) {
	def := &StructDef{Name: "Point", Fields: []StructField{{Name: "x", Type: "int"}}}
	a := NewStructInstance(def)
	b := NewStructInstance(def)
	a.Data.(*StructInstance).Fields[0] = NewInt(5)
	b.Data.(*StructInstance).Fields[0] = NewInt(5)

	eq, err := a.OpBool("==", b)
	require.NoError(t, err)
	require.True(t, eq)
}

func TestNullIsUnhashable(t *testing.T) {
	require.False(t, NewNull().Hashable())
	_, err := NewNull().Hash()
	require.Error(t, err)
}

func TestAssignRejectsCrossTypeSlots(t *testing.T) {
	slot := NewInt(0)
	err := slot.Assign(NewString("x"))
	require.Error(t, err)
}

func TestListUnhashable(t *testing.T) {
	require.False(t, NewList().Hashable())
}

func TestSqrtRequiresNumeric(t *testing.T) {
	_, err := NewString("x").Sqrt()
	require.Error(t, err)

	r, err := NewInt(4).Sqrt()
	require.NoError(t, err)
	require.Equal(t, 2.0, r)
}

func TestListPopAtAndRemoveAt(t *testing.T) {
	v := NewList()
	l, _ := v.AsList()
	l.Append(NewInt(1))
	l.Append(NewInt(2))
	l.Append(NewInt(3))

	popped, err := l.PopAt(1)
	require.NoError(t, err)
	require.EqualValues(t, 2, popped.Int())
	require.Len(t, l.Items, 2)

	require.NoError(t, l.RemoveAt(0))
	require.Len(t, l.Items, 1)
	require.EqualValues(t, 3, l.Items[0].Int())

	_, err = l.PopAt(5)
	require.Error(t, err)
}
