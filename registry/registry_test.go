package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/juddc/Dipper/opcodes"
	"github.com/juddc/Dipper/values"
)

func TestTwoPhasePopulationPreservesInsertionOrder(t *testing.T) {
	ns := NewNamespace("globals")
	ns.InstallStructDef("Point", []values.StructField{{Name: "x", Type: "int"}})
	ns.InstallFunctionPrototype("b", nil, "int")
	ns.InstallFunctionPrototype("a", nil, "int")

	require.Equal(t, []string{"b", "a"}, ns.FunctionNames())
	require.Equal(t, []string{"Point"}, ns.StructDefNames())
}

func TestPrototypeIsUnsealedUntilBodyCompiled(t *testing.T) {
	ns := NewNamespace("globals")
	fn := ns.InstallFunctionPrototype("f", nil, "int")
	require.False(t, fn.Sealed())

	fn.Bytecode = []opcodes.Instruction{}
	require.True(t, fn.Sealed())
}

func TestHasCallableCoversBothFunctionsAndStructDefs(t *testing.T) {
	ns := NewNamespace("globals")
	ns.InstallFunctionPrototype("f", nil, "int")
	ns.InstallStructDef("Point", nil)

	require.True(t, ns.HasCallable("f"))
	require.True(t, ns.HasCallable("Point"))
	require.False(t, ns.HasCallable("nope"))
}

func TestConstOrderSurvivesRedeclaration(t *testing.T) {
	ns := NewNamespace("globals")
	ns.SetConst("A", values.NewInt(1))
	ns.SetConst("B", values.NewInt(2))
	ns.SetConst("A", values.NewInt(3))

	require.Equal(t, []string{"A", "B"}, ns.ConstNames())
	v, ok := ns.GetConst("A")
	require.True(t, ok)
	require.EqualValues(t, 3, v.Int())
}
