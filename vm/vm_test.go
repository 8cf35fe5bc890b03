package vm

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juddc/Dipper/ast"
	"github.com/juddc/Dipper/compiler"
	"github.com/juddc/Dipper/opcodes"
	"github.com/juddc/Dipper/programs"
	"github.com/juddc/Dipper/registry"
	"github.com/juddc/Dipper/values"
)

type runResult struct {
	ret    *values.Value
	code   int
	stdout string
	hints  map[int]int
}

func runProgram(t *testing.T, p programs.Program, argv []string) runResult {
	t.Helper()
	mod, err := compiler.CompileModule("test.dip", "main", p.Structs, p.Functions)
	require.NoError(t, err)
	return runModule(t, mod, argv)
}

func runModule(t *testing.T, mod *registry.Module, argv []string) runResult {
	t.Helper()
	var out bytes.Buffer
	var ret *values.Value
	m := &VirtualMachine{
		Stdout:     &out,
		Stderr:     io.Discard,
		Observer:   func(v *values.Value) { ret = v },
		TraceHints: make(map[int]int),
	}
	code, err := m.Run(mod, argv)
	require.NoError(t, err)
	return runResult{ret: ret, code: code, stdout: out.String(), hints: m.TraceHints}
}

func runCatalog(t *testing.T, name string, argv []string) runResult {
	t.Helper()
	p, ok := programs.Lookup(name)
	require.True(t, ok, "no catalog program %q", name)
	return runProgram(t, p, argv)
}

func TestReturnsFoldedSumOfLiterals(t *testing.T) {
	r := runCatalog(t, "add_five", nil)
	require.NotNil(t, r.ret)
	require.Equal(t, values.KindInt, r.ret.Kind)
	assert.EqualValues(t, 10, r.ret.Int())
	assert.Equal(t, 0, r.code)
}

func TestRecursiveFibonacci(t *testing.T) {
	r := runCatalog(t, "fib", nil)
	require.NotNil(t, r.ret)
	require.Equal(t, values.KindInt, r.ret.Kind)
	assert.EqualValues(t, 55, r.ret.Int())
}

func TestStringConcatLength(t *testing.T) {
	r := runCatalog(t, "string_len", nil)
	require.NotNil(t, r.ret)
	require.Equal(t, values.KindBool, r.ret.Kind)
	assert.True(t, r.ret.Bool())
}

func TestForLoopAccumulatesTenIterations(t *testing.T) {
	r := runCatalog(t, "loop_sum", nil)
	require.NotNil(t, r.ret)
	assert.EqualValues(t, 20, r.ret.Int())
}

func TestElifChainSelectsEqualityArm(t *testing.T) {
	r := runCatalog(t, "elif_chain", nil)
	require.NotNil(t, r.ret)
	assert.EqualValues(t, 999, r.ret.Int())
}

func TestSqrtOfFloat(t *testing.T) {
	r := runCatalog(t, "sqrt", nil)
	require.NotNil(t, r.ret)
	require.Equal(t, values.KindFloat, r.ret.Kind)
	assert.Equal(t, 2.0, r.ret.Float())
	assert.Equal(t, "2.0", r.ret.Str())
}

func TestStructConstructionAndPrint(t *testing.T) {
	r := runCatalog(t, "struct_point", nil)
	assert.Equal(t, "Point{3, 4}\n", r.stdout)
}

func TestArgvListIsPassedToMain(t *testing.T) {
	r := runCatalog(t, "echo_argv", []string{"echo_argv.dip", "a", "b"})
	require.NotNil(t, r.ret)
	assert.EqualValues(t, 3, r.ret.Int())
}

func TestMainWithZeroParamsIgnoresArgv(t *testing.T) {
	r := runCatalog(t, "add_five", []string{"add_five.dip", "ignored"})
	require.NotNil(t, r.ret)
	assert.EqualValues(t, 10, r.ret.Int())
}

func TestMissingMainIsFatal(t *testing.T) {
	mod := registry.NewModule("test.dip", "main")
	m := &VirtualMachine{Stdout: io.Discard, Stderr: io.Discard}
	code, err := m.Run(mod, nil)
	require.Error(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, err.Error(), "no main function")
}

func TestPrintSeparatesItemsWithSpacesAndEndsWithNewline(t *testing.T) {
	main := &ast.Function{
		Name: "main",
		Body: &ast.Block{Body: []ast.Statement{
			&ast.Print{Items: []ast.Expression{
				&ast.Integer{Value: 1},
				&ast.String{Value: "two"},
				&ast.Integer{Value: 3},
			}},
		}},
	}
	r := runProgram(t, programs.Program{Functions: []*ast.Function{main}}, nil)
	assert.Equal(t, "1 two 3\n", r.stdout)
}

func TestPrintTrailingCommaSuppressesNewline(t *testing.T) {
	main := &ast.Function{
		Name: "main",
		Body: &ast.Block{Body: []ast.Statement{
			&ast.Print{Items: []ast.Expression{&ast.String{Value: "no newline"}}, TrailingComma: true},
		}},
	}
	r := runProgram(t, programs.Program{Functions: []*ast.Function{main}}, nil)
	assert.Equal(t, "no newline", r.stdout)
}

func TestCalleeArgumentsAreDeepCopies(t *testing.T) {
	// f receives a list and appends to it; the caller's list must be
	// unchanged afterward because arguments are deep-copied into the
	// callee's frame.
	mod := registry.NewModule("test.dip", "main")

	f := mod.InstallFunctionPrototype("f", []registry.Param{{Name: "xs", Type: "list"}}, "")
	f.Bytecode = []opcodes.Instruction{
		{Op: opcodes.LIST_ADD, A: 0, B: 1, C: opcodes.Unused},
		{Op: opcodes.RET, A: opcodes.Unused, B: opcodes.Unused, C: opcodes.Unused},
	}
	f.DataTemplate = []*values.Value{values.NewList(), values.NewInt(99)}

	main := mod.InstallFunctionPrototype("main", nil, "int")
	main.Bytecode = []opcodes.Instruction{
		{Op: opcodes.LIST_NEW, A: 0, B: opcodes.Unused, C: opcodes.Unused},
		{Op: opcodes.LIST_ADD, A: 0, B: 1, C: opcodes.Unused},
		{Op: opcodes.LIST_NEW, A: 2, B: opcodes.Unused, C: opcodes.Unused},
		{Op: opcodes.LIST_ADD, A: 2, B: 0, C: opcodes.Unused},
		{Op: opcodes.CALL, A: 3, B: 2, C: opcodes.Unused},
		{Op: opcodes.LEN, A: 0, B: 4, C: opcodes.Unused},
		{Op: opcodes.RET, A: 4, B: opcodes.Unused, C: opcodes.Unused},
	}
	main.DataTemplate = []*values.Value{
		values.NewList(),
		values.NewInt(1),
		values.NewList(),
		values.NewString("f"),
		values.NewInt(0),
	}

	r := runModule(t, mod, nil)
	require.NotNil(t, r.ret)
	assert.EqualValues(t, 1, r.ret.Int())
}

func TestRuntimeArityMismatchIsFatal(t *testing.T) {
	// Hand-assembled bytecode: the compiler catches arity statically, so the
	// VM-level guard needs a module whose CALL passes too few arguments.
	mod := registry.NewModule("test.dip", "main")
	f := mod.InstallFunctionPrototype("f", []registry.Param{{Name: "a", Type: "int"}}, "int")
	f.Bytecode = []opcodes.Instruction{{Op: opcodes.RET, A: 0, B: opcodes.Unused, C: opcodes.Unused}}
	f.DataTemplate = []*values.Value{values.NewInt(0)}

	main := mod.InstallFunctionPrototype("main", nil, "int")
	main.Bytecode = []opcodes.Instruction{
		{Op: opcodes.LIST_NEW, A: 0, B: opcodes.Unused, C: opcodes.Unused},
		{Op: opcodes.CALL, A: 1, B: 0, C: 2},
		{Op: opcodes.RET, A: 2, B: opcodes.Unused, C: opcodes.Unused},
	}
	main.DataTemplate = []*values.Value{values.NewList(), values.NewString("f"), values.NewInt(0)}

	m := &VirtualMachine{Stdout: io.Discard, Stderr: io.Discard}
	code, err := m.Run(mod, nil)
	require.Error(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, err.Error(), "expects 1 arguments, got 0")
}

func TestExitOpcodePropagatesStatusToHost(t *testing.T) {
	mod := registry.NewModule("test.dip", "main")
	main := mod.InstallFunctionPrototype("main", nil, "")
	main.Bytecode = []opcodes.Instruction{
		{Op: opcodes.EXIT, A: 0, B: opcodes.Unused, C: opcodes.Unused},
	}
	main.DataTemplate = []*values.Value{values.NewInt(7)}

	m := &VirtualMachine{Stdout: io.Discard, Stderr: io.Discard}
	code, err := m.Run(mod, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, code)
}

func TestListPopAndRemoveOpcodes(t *testing.T) {
	mod := registry.NewModule("test.dip", "main")
	main := mod.InstallFunctionPrototype("main", nil, "int")
	// Build [11, 22], pop index 0 into the return slot, remove the survivor.
	main.Bytecode = []opcodes.Instruction{
		{Op: opcodes.LIST_NEW, A: 0, B: opcodes.Unused, C: opcodes.Unused},
		{Op: opcodes.LIST_ADD, A: 0, B: 1, C: opcodes.Unused},
		{Op: opcodes.LIST_ADD, A: 0, B: 2, C: opcodes.Unused},
		{Op: opcodes.LIST_POP, A: 0, B: 3, C: 4},
		{Op: opcodes.LIST_REM, A: 0, B: 3, C: opcodes.Unused},
		{Op: opcodes.RET, A: 4, B: opcodes.Unused, C: opcodes.Unused},
	}
	main.DataTemplate = []*values.Value{
		values.NewList(),
		values.NewInt(11),
		values.NewInt(22),
		values.NewInt(0),
		values.NewInt(0),
	}

	r := runModule(t, mod, nil)
	require.NotNil(t, r.ret)
	assert.EqualValues(t, 11, r.ret.Int())
}

func TestPassAndLabelAreSkipped(t *testing.T) {
	mod := registry.NewModule("test.dip", "main")
	main := mod.InstallFunctionPrototype("main", nil, "int")
	main.Bytecode = []opcodes.Instruction{
		{Op: opcodes.PASS, A: opcodes.Unused, B: opcodes.Unused, C: opcodes.Unused},
		{Op: opcodes.LABEL, A: opcodes.Unused, B: opcodes.Unused, C: opcodes.Unused},
		{Op: opcodes.RET, A: 0, B: opcodes.Unused, C: opcodes.Unused},
	}
	main.DataTemplate = []*values.Value{values.NewInt(3)}

	r := runModule(t, mod, nil)
	require.NotNil(t, r.ret)
	assert.EqualValues(t, 3, r.ret.Int())
}

func TestRuntimeTypeErrorCarriesInstructionContext(t *testing.T) {
	mod := registry.NewModule("test.dip", "main")
	main := mod.InstallFunctionPrototype("main", nil, "")
	// SET string -> int slot: cross-type assignment must fail with frame
	// context attached.
	main.Bytecode = []opcodes.Instruction{
		{Op: opcodes.SET, A: 0, B: 1, C: opcodes.Unused},
	}
	main.Annotations = []opcodes.Annotation{{Filename: "test.dip", Line: 3, Column: 9}}
	main.DataTemplate = []*values.Value{values.NewString("x"), values.NewInt(0)}

	m := &VirtualMachine{Stdout: io.Discard, Stderr: io.Discard}
	code, err := m.Run(mod, nil)
	require.Error(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, err.Error(), "line 3, column 9")
	assert.Contains(t, err.Error(), "cannot assign")
}

func TestCallStackDepthIsBounded(t *testing.T) {
	// main(){ return main() } recurses without a base case; the VM must
	// fail the depth guard instead of running away.
	main := &ast.Function{
		Name:       "main",
		ReturnType: "int",
		Body: &ast.Block{Body: []ast.Statement{
			&ast.Return{Expr: &ast.Call{Target: &ast.Name{Value: "main"}}},
		}},
	}
	mod, err := compiler.CompileModule("test.dip", "main", nil, []*ast.Function{main})
	require.NoError(t, err)

	m := &VirtualMachine{Stdout: io.Discard, Stderr: io.Discard}
	code, err := m.Run(mod, nil)
	require.Error(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, err.Error(), "call stack depth exceeded")
}

func TestTraceHintsCountLoopBackEdges(t *testing.T) {
	r := runCatalog(t, "loop_sum", nil)
	total := 0
	for _, n := range r.hints {
		total += n
	}
	// The loop body re-enters 9 times after the first pass.
	assert.Equal(t, 9, total)
}
