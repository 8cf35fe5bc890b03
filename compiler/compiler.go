// Package compiler lowers a type-annotated AST into register-oriented
// bytecode: an append-only data-register template, forward-patchable
// branch instructions, and constant folding when both operands of a
// binary expression are literals. Compilation is single-pass per function
// body; forward control-flow joins are resolved by patching branch
// targets once the destination instruction's index is known.
package compiler

import (
	"fmt"

	"github.com/juddc/Dipper/ast"
	"github.com/juddc/Dipper/errors"
	"github.com/juddc/Dipper/opcodes"
	"github.com/juddc/Dipper/registry"
	"github.com/juddc/Dipper/values"
)

const streamStdout = 1

// funcCompiler holds the working state for compiling one function body.
// Its dataTemplate/instructions/annotations are assigned into the target
// registry.Function only once the body is fully compiled and sealed.
type funcCompiler struct {
	filename string
	module   *registry.Namespace
	fn       *registry.Function

	dataTemplate []*values.Value
	dataTypes    []string
	varBindings  map[string]int
	instructions []opcodes.Instruction
	annotations  []opcodes.Annotation
}

func newFuncCompiler(filename string, module *registry.Namespace, fn *registry.Function) *funcCompiler {
	c := &funcCompiler{
		filename:    filename,
		module:      module,
		fn:          fn,
		varBindings: make(map[string]int),
	}
	for _, p := range fn.Args {
		c.reserveNamed(p.Name, p.Type)
	}
	return c
}

// reserve pushes a default-initialized value of typeName onto the
// template and returns its index. A typeName matching a struct-def in the
// enclosing module reserves a fresh struct-instance of that def rather
// than a generic default.
func (c *funcCompiler) reserve(typeName string) int {
	var v *values.Value
	if def, ok := c.module.GetStructDef(typeName); ok {
		v = values.NewStructInstance(def)
	} else {
		v = values.DefaultForType(typeName)
	}
	c.dataTemplate = append(c.dataTemplate, v)
	c.dataTypes = append(c.dataTypes, typeName)
	return len(c.dataTemplate) - 1
}

// reserveLiteral pushes a pre-populated literal value and returns its
// index; its simple type name is inferred from the value's kind.
func (c *funcCompiler) reserveLiteral(v *values.Value) int {
	c.dataTemplate = append(c.dataTemplate, v)
	c.dataTypes = append(c.dataTypes, simpleTypeOf(v))
	return len(c.dataTemplate) - 1
}

func (c *funcCompiler) reserveNamed(name, typeName string) int {
	idx := c.reserve(typeName)
	c.varBindings[name] = idx
	return idx
}

func (c *funcCompiler) lookup(name string) (int, string, bool) {
	idx, ok := c.varBindings[name]
	if !ok {
		return 0, "", false
	}
	return idx, c.dataTypes[idx], true
}

func simpleTypeOf(v *values.Value) string {
	switch v.Kind {
	case values.KindInt:
		return "int"
	case values.KindFloat:
		return "float"
	case values.KindString:
		return "str"
	case values.KindBool:
		return "bool"
	case values.KindList:
		return "list"
	case values.KindStructInstance:
		return v.Data.(*values.StructInstance).Def.Name
	case values.KindStructDef:
		return v.Data.(*values.StructDef).Name
	default:
		return "null"
	}
}

// emit appends an instruction plus its diagnostic annotation and returns
// the instruction's pointer (index), usable as a branch-patch handle.
func (c *funcCompiler) emit(op opcodes.Opcode, a, b, cc int, pos ast.Position, comment string) int {
	ptr := len(c.instructions)
	c.instructions = append(c.instructions, opcodes.Instruction{Op: op, A: a, B: b, C: cc})
	c.annotations = append(c.annotations, opcodes.Annotation{
		Filename: c.filename, Line: pos.Line, Column: pos.Column, Comment: comment,
	})
	return ptr
}

func (c *funcCompiler) currentPtr() int {
	return len(c.instructions)
}

// setBranch rewrites only the target slot of a branch/jump instruction:
// JMP's A, BT/BF's B, BEQ/BNE's C. Any other opcode is a compile bug.
func (c *funcCompiler) setBranch(ptr, target int) error {
	inst := &c.instructions[ptr]
	switch inst.Op {
	case opcodes.JMP:
		inst.A = target
	case opcodes.BT, opcodes.BF:
		inst.B = target
	case opcodes.BEQ, opcodes.BNE:
		inst.C = target
	default:
		return fmt.Errorf("cannot branch-patch unsupported instruction %s at ptr %d", inst.Op, ptr)
	}
	return nil
}

func (c *funcCompiler) compileErr(pos ast.Position, format string, args ...interface{}) error {
	return errors.NewCompileError(c.filename, pos, fmt.Sprintf(format, args...))
}

// seal appends an implicit RET if the last emitted opcode isn't already
// one, then writes the working state into the target function object. A
// branch patched to the end label of a construct whose every arm returns
// also needs the trailing RET, so its target stays a valid instruction
// index.
func (c *funcCompiler) seal() {
	end := len(c.instructions)
	needRet := end == 0 || c.instructions[end-1].Op != opcodes.RET
	if !needRet {
		for _, inst := range c.instructions {
			if target, ok := inst.Target(); ok && target >= end {
				needRet = true
				break
			}
		}
	}
	if needRet {
		c.emit(opcodes.RET, opcodes.Unused, opcodes.Unused, opcodes.Unused, ast.Position{}, "implicit return")
	}
	c.fn.Bytecode = c.instructions
	c.fn.Annotations = c.annotations
	c.fn.DataTemplate = c.dataTemplate
	c.fn.VarBindings = c.varBindings
}

// CompileModule builds a module in two phases: install every struct-def
// and function prototype first (so forward and mutually recursive
// references resolve), then compile each function body against the
// now-complete namespace.
func CompileModule(filename, moduleName string, structs []*ast.Struct, functions []*ast.Function) (*registry.Module, error) {
	mod := registry.NewModule(filename, moduleName)

	for _, s := range structs {
		fields := make([]values.StructField, len(s.Fields))
		for i, f := range s.Fields {
			fields[i] = values.StructField{Name: f.TypedName.Name, Type: f.TypedName.Type}
		}
		mod.InstallStructDef(s.Name, fields)
	}

	for _, fnNode := range functions {
		args := make([]registry.Param, len(fnNode.Args))
		for i, a := range fnNode.Args {
			args[i] = registry.Param{Name: a.Name, Type: a.Type}
		}
		mod.InstallFunctionPrototype(fnNode.Name, args, fnNode.ReturnType)
	}

	for _, fnNode := range functions {
		proto, _ := mod.GetFunction(fnNode.Name)
		fc := newFuncCompiler(filename, mod.Namespace, proto)
		if err := fc.compileBlock(fnNode.Body); err != nil {
			return nil, err
		}
		fc.seal()
	}

	return mod, nil
}

func (c *funcCompiler) compileBlock(block *ast.Block) error {
	for _, stmt := range block.Body {
		if err := c.compileStatement(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *funcCompiler) compileStatement(stmt ast.Statement) error {
	switch n := stmt.(type) {
	case *ast.If:
		return c.compileIf(n)
	case *ast.ForLoop:
		return c.compileForLoop(n)
	case *ast.Assignment:
		return c.compileAssignment(n)
	case *ast.Inplace:
		return c.compileInplace(n)
	case *ast.CallStatement:
		_, _, err := c.compileCall(n.Call)
		return err
	case *ast.Print:
		return c.compilePrint(n)
	case *ast.Return:
		return c.compileReturn(n)
	default:
		return c.compileErr(stmt.Pos(), "malformed AST: unexpected statement node %T", stmt)
	}
}

// compileExpr lowers any expression node, returning the register index
// holding its result and the simple type name of that result.
func (c *funcCompiler) compileExpr(expr ast.Expression) (int, string, error) {
	switch n := expr.(type) {
	case *ast.Integer:
		return c.reserveLiteral(values.NewInt(n.Value)), "int", nil
	case *ast.Float:
		return c.reserveLiteral(values.NewFloat(n.Value)), "float", nil
	case *ast.String:
		return c.reserveLiteral(values.NewString(n.Value)), "str", nil
	case *ast.Name:
		idx, typ, ok := c.lookup(n.Value)
		if !ok {
			return 0, "", c.compileErr(n.Pos(), "unknown variable %q", n.Value)
		}
		return idx, typ, nil
	case *ast.DottedName:
		final := n.Parts[len(n.Parts)-1]
		idx, typ, ok := c.lookup(final)
		if !ok {
			return 0, "", c.compileErr(n.Pos(), "unknown variable %q", final)
		}
		return idx, typ, nil
	case *ast.ArithExpr:
		return c.compileArithExpr(n)
	case *ast.BoolExpr:
		return c.compileBoolExpr(n)
	case *ast.Call:
		return c.compileCall(n)
	default:
		return 0, "", c.compileErr(expr.Pos(), "malformed AST: unexpected expression node %T", expr)
	}
}

func literalNode(n ast.Expression) (*values.Value, bool) {
	switch v := n.(type) {
	case *ast.Integer:
		return values.NewInt(v.Value), true
	case *ast.Float:
		return values.NewFloat(v.Value), true
	case *ast.String:
		return values.NewString(v.Value), true
	default:
		return nil, false
	}
}

func inferArithKind(lt, rt string) string {
	if lt == "str" || rt == "str" {
		return "str"
	}
	if lt == "float" || rt == "float" {
		return "float"
	}
	return "int"
}

func foldArith(left *values.Value, op string, right *values.Value) (*values.Value, error) {
	switch inferArithKind(simpleTypeOf(left), simpleTypeOf(right)) {
	case "str":
		s, err := left.OpStr(op, right)
		if err != nil {
			return nil, err
		}
		return values.NewString(s), nil
	case "float":
		f, err := left.OpFloat(op, right)
		if err != nil {
			return nil, err
		}
		return values.NewFloat(f), nil
	default:
		i, err := left.OpInt(op, right)
		if err != nil {
			return nil, err
		}
		return values.NewInt(i), nil
	}
}

func arithOpcode(op string) (opcodes.Opcode, bool) {
	switch op {
	case "+":
		return opcodes.ADD, true
	case "-":
		return opcodes.SUB, true
	case "*":
		return opcodes.MUL, true
	case "/":
		return opcodes.DIV, true
	default:
		return 0, false
	}
}

func (c *funcCompiler) compileArithExpr(n *ast.ArithExpr) (int, string, error) {
	if n.Child != nil {
		return c.compileExpr(n.Child)
	}
	if leftLit, lok := literalNode(n.Left); lok {
		if rightLit, rok := literalNode(n.Right); rok {
			result, err := foldArith(leftLit, n.Op, rightLit)
			if err != nil {
				return 0, "", c.compileErr(n.Pos(), "%s", err)
			}
			idx := c.reserveLiteral(result)
			return idx, simpleTypeOf(result), nil
		}
	}
	li, lt, err := c.compileExpr(n.Left)
	if err != nil {
		return 0, "", err
	}
	ri, rt, err := c.compileExpr(n.Right)
	if err != nil {
		return 0, "", err
	}
	op, ok := arithOpcode(n.Op)
	if !ok {
		return 0, "", c.compileErr(n.Pos(), "unsupported arithmetic operator %q", n.Op)
	}
	kind := inferArithKind(lt, rt)
	resIdx := c.reserve(kind)
	c.emit(op, li, ri, resIdx, n.Pos(), "")
	return resIdx, kind, nil
}

func boolOpcode(op string) (opcodes.Opcode, bool) {
	switch op {
	case "==":
		return opcodes.EQ, true
	case "!=":
		return opcodes.NEQ, true
	case ">":
		return opcodes.GT, true
	case "<":
		return opcodes.LT, true
	case ">=":
		return opcodes.GTE, true
	case "<=":
		return opcodes.LTE, true
	default:
		return 0, false
	}
}

func (c *funcCompiler) compileBoolExpr(n *ast.BoolExpr) (int, string, error) {
	if n.Child != nil {
		return c.compileExpr(n.Child)
	}
	if leftLit, lok := literalNode(n.Left); lok {
		if rightLit, rok := literalNode(n.Right); rok {
			result, err := leftLit.OpBool(n.Op, rightLit)
			if err != nil {
				return 0, "", c.compileErr(n.Pos(), "%s", err)
			}
			idx := c.reserveLiteral(values.NewBool(result))
			return idx, "bool", nil
		}
	}
	li, _, err := c.compileExpr(n.Left)
	if err != nil {
		return 0, "", err
	}
	ri, _, err := c.compileExpr(n.Right)
	if err != nil {
		return 0, "", err
	}
	op, ok := boolOpcode(n.Op)
	if !ok {
		return 0, "", c.compileErr(n.Pos(), "unsupported comparison operator %q", n.Op)
	}
	resIdx := c.reserve("bool")
	c.emit(op, li, ri, resIdx, n.Pos(), "")
	return resIdx, "bool", nil
}

func calleeName(target ast.Node) (string, bool) {
	switch n := target.(type) {
	case *ast.Name:
		return n.Value, true
	case *ast.DottedName:
		name := ""
		for i, p := range n.Parts {
			if i > 0 {
				name += "."
			}
			name += p
		}
		return name, true
	default:
		return "", false
	}
}

func (c *funcCompiler) compileCall(n *ast.Call) (int, string, error) {
	name, ok := calleeName(n.Target)
	if !ok {
		return 0, "", c.compileErr(n.Pos(), "malformed AST: unexpected call target %T", n.Target)
	}

	switch name {
	case "len":
		if len(n.Args) != 1 {
			return 0, "", c.compileErr(n.Pos(), "len() takes exactly 1 argument, got %d", len(n.Args))
		}
		argIdx, _, err := c.compileExpr(n.Args[0])
		if err != nil {
			return 0, "", err
		}
		destIdx := c.reserve("int")
		c.emit(opcodes.LEN, argIdx, destIdx, opcodes.Unused, n.Pos(), "")
		return destIdx, "int", nil
	case "sqrt":
		if len(n.Args) != 1 {
			return 0, "", c.compileErr(n.Pos(), "sqrt() takes exactly 1 argument, got %d", len(n.Args))
		}
		argIdx, _, err := c.compileExpr(n.Args[0])
		if err != nil {
			return 0, "", err
		}
		destIdx := c.reserve("float")
		c.emit(opcodes.SQRT, argIdx, destIdx, opcodes.Unused, n.Pos(), "")
		return destIdx, "float", nil
	}

	argIdxs := make([]int, len(n.Args))
	for i, a := range n.Args {
		idx, _, err := c.compileExpr(a)
		if err != nil {
			return 0, "", err
		}
		argIdxs[i] = idx
	}

	if fn, ok := c.module.GetFunction(name); ok {
		if len(fn.Args) != len(n.Args) {
			return 0, "", c.compileErr(n.Pos(), "function %q expects %d arguments, got %d", name, len(fn.Args), len(n.Args))
		}
		argsIdx := c.reserve("list")
		c.emit(opcodes.LIST_NEW, argsIdx, opcodes.Unused, opcodes.Unused, n.Pos(), "")
		for _, idx := range argIdxs {
			c.emit(opcodes.LIST_ADD, argsIdx, idx, opcodes.Unused, n.Pos(), "")
		}
		nameIdx := c.reserveLiteral(values.NewString(name))
		retType := fn.ReturnType
		retIdx := opcodes.Unused
		if retType != "" && retType != "auto" && retType != "void" {
			retIdx = c.reserve(retType)
		}
		c.emit(opcodes.CALL, nameIdx, argsIdx, retIdx, n.Pos(), name)
		return retIdx, retType, nil
	}

	if def, ok := c.module.GetStructDef(name); ok {
		if len(def.Fields) != len(n.Args) {
			return 0, "", c.compileErr(n.Pos(), "struct %q expects %d fields, got %d", name, len(def.Fields), len(n.Args))
		}
		argsIdx := c.reserve("list")
		c.emit(opcodes.LIST_NEW, argsIdx, opcodes.Unused, opcodes.Unused, n.Pos(), "")
		for _, idx := range argIdxs {
			c.emit(opcodes.LIST_ADD, argsIdx, idx, opcodes.Unused, n.Pos(), "")
		}
		nameIdx := c.reserveLiteral(values.NewString(name))
		retIdx := c.reserve(name)
		c.emit(opcodes.CALL, nameIdx, argsIdx, retIdx, n.Pos(), name)
		return retIdx, name, nil
	}

	return 0, "", c.compileErr(n.Pos(), "unknown callee %q", name)
}

func (c *funcCompiler) compileAssignment(n *ast.Assignment) error {
	idx, _, err := c.compileExpr(n.Expr)
	if err != nil {
		return err
	}
	c.varBindings[n.Target.Name] = idx
	return nil
}

func inplaceOpcode(op string) (opcodes.Opcode, bool) {
	switch op {
	case "+=":
		return opcodes.ADD, true
	case "-=":
		return opcodes.SUB, true
	case "*=":
		return opcodes.MUL, true
	case "/=":
		return opcodes.DIV, true
	default:
		return 0, false
	}
}

func (c *funcCompiler) compileInplace(n *ast.Inplace) error {
	idx, _, ok := c.lookup(n.Name)
	if !ok {
		return c.compileErr(n.Pos(), "unknown variable %q", n.Name)
	}
	rhsIdx, _, err := c.compileExpr(n.Expr)
	if err != nil {
		return err
	}
	op, ok := inplaceOpcode(n.Op)
	if !ok {
		return c.compileErr(n.Pos(), "unsupported in-place operator %q", n.Op)
	}
	c.emit(op, idx, rhsIdx, idx, n.Pos(), "")
	return nil
}

func (c *funcCompiler) compilePrint(n *ast.Print) error {
	spaceIdx := -1
	for i, item := range n.Items {
		idx, _, err := c.compileExpr(item)
		if err != nil {
			return err
		}
		if i > 0 {
			if spaceIdx == -1 {
				spaceIdx = c.reserveLiteral(values.NewInt(int64(' ')))
			}
			c.emit(opcodes.WRITEI, streamStdout, spaceIdx, opcodes.Unused, n.Pos(), "")
		}
		c.emit(opcodes.WRITEO, streamStdout, idx, opcodes.Unused, n.Pos(), "")
	}
	if !n.TrailingComma {
		c.emit(opcodes.WRITENL, streamStdout, opcodes.Unused, opcodes.Unused, n.Pos(), "")
	}
	return nil
}

func (c *funcCompiler) compileReturn(n *ast.Return) error {
	if n.Expr == nil {
		c.emit(opcodes.RET, opcodes.Unused, opcodes.Unused, opcodes.Unused, n.Pos(), "")
		return nil
	}
	idx, _, err := c.compileExpr(n.Expr)
	if err != nil {
		return err
	}
	c.emit(opcodes.RET, idx, opcodes.Unused, opcodes.Unused, n.Pos(), "")
	return nil
}

// compileIf lowers an if/elif/else chain with forward patching: a single
// top BF, chained through each Elif's own BF, a JMP-to-end list collected
// after every non-final block, and a final patch of the trailing branch
// only when the chain has no Else.
func (c *funcCompiler) compileIf(n *ast.If) error {
	condIdx, _, err := c.compileExpr(n.Cond)
	if err != nil {
		return err
	}
	pendingBranch := c.emit(opcodes.BF, condIdx, opcodes.Unused, opcodes.Unused, n.Pos(), "if condition")
	if err := c.compileBlock(n.Then); err != nil {
		return err
	}

	var jumpEnds []int
	hasMore := len(n.Elifs) > 0 || n.Else != nil
	if hasMore {
		jumpEnds = append(jumpEnds, c.emit(opcodes.JMP, opcodes.Unused, opcodes.Unused, opcodes.Unused, n.Pos(), ""))
	}

	for i, elif := range n.Elifs {
		if err := c.setBranch(pendingBranch, c.currentPtr()); err != nil {
			return err
		}
		condIdx, _, err := c.compileExpr(elif.Cond)
		if err != nil {
			return err
		}
		pendingBranch = c.emit(opcodes.BF, condIdx, opcodes.Unused, opcodes.Unused, elif.Pos(), "elif condition")
		if err := c.compileBlock(elif.Body); err != nil {
			return err
		}
		more := i < len(n.Elifs)-1 || n.Else != nil
		if more {
			jumpEnds = append(jumpEnds, c.emit(opcodes.JMP, opcodes.Unused, opcodes.Unused, opcodes.Unused, elif.Pos(), ""))
		}
	}

	lastIsElse := false
	if n.Else != nil {
		if err := c.setBranch(pendingBranch, c.currentPtr()); err != nil {
			return err
		}
		if err := c.compileBlock(n.Else.Body); err != nil {
			return err
		}
		lastIsElse = true
	}

	endLabel := c.currentPtr()
	if !lastIsElse {
		if err := c.setBranch(pendingBranch, endLabel); err != nil {
			return err
		}
	}
	for _, jp := range jumpEnds {
		if err := c.setBranch(jp, endLabel); err != nil {
			return err
		}
	}
	return nil
}

// compileForLoop lowers an integer-range loop: SET the start bound into a
// fresh loop register, compile the body, increment with ADDI, and BNE
// back to the top until the loop register reaches the end bound.
func (c *funcCompiler) compileForLoop(n *ast.ForLoop) error {
	startIdx, startType, err := c.compileExpr(n.Range.Start)
	if err != nil {
		return err
	}
	if startType != "int" {
		return c.compileErr(n.Range.Start.Pos(), "for-loop range start must be int, got %s", startType)
	}
	endIdx, endType, err := c.compileExpr(n.Range.End)
	if err != nil {
		return err
	}
	if endType != "int" {
		return c.compileErr(n.Range.End.Pos(), "for-loop range end must be int, got %s", endType)
	}

	loopVar := c.reserve("int")
	c.varBindings[n.Var] = loopVar
	c.emit(opcodes.SET, startIdx, loopVar, opcodes.Unused, n.Pos(), "")

	topPtr := c.currentPtr()
	if err := c.compileBlock(n.Body); err != nil {
		return err
	}
	c.emit(opcodes.ADDI, loopVar, 1, opcodes.Unused, n.Pos(), "")
	c.emit(opcodes.BNE, loopVar, endIdx, topPtr, n.Pos(), "")
	return nil
}
