package main

import (
	"fmt"
	"strings"

	"github.com/juddc/Dipper/ast"
)

// dumpProgram renders a Program's struct and function declarations as an
// indented tree for the -p flag. There is no parsed tree here, only the
// Go-literal one a real parser would have produced.
func dumpProgram(structs []*ast.Struct, functions []*ast.Function) string {
	var b strings.Builder
	for _, s := range structs {
		dumpNode(&b, s, 0)
	}
	for _, f := range functions {
		dumpNode(&b, f, 0)
	}
	return b.String()
}

func indent(b *strings.Builder, depth int, format string, args ...interface{}) {
	b.WriteString(strings.Repeat("  ", depth))
	fmt.Fprintf(b, format, args...)
	b.WriteString("\n")
}

func dumpNode(b *strings.Builder, n ast.Node, depth int) {
	if n == nil {
		return
	}
	pos := n.Pos()
	switch v := n.(type) {
	case *ast.Struct:
		indent(b, depth, "Struct %s @%d:%d", v.Name, pos.Line, pos.Column)
		for _, f := range v.Fields {
			indent(b, depth+1, "Field %s:%s", f.TypedName.Name, f.TypedName.Type)
		}
	case *ast.Function:
		argDesc := make([]string, len(v.Args))
		for i, a := range v.Args {
			argDesc[i] = a.Name + ":" + a.Type
		}
		indent(b, depth, "Function %s(%s) -> %s @%d:%d", v.Name, strings.Join(argDesc, ", "), v.ReturnType, pos.Line, pos.Column)
		dumpNode(b, v.Body, depth+1)
	case *ast.Block:
		for _, s := range v.Body {
			dumpNode(b, s, depth)
		}
	case *ast.If:
		indent(b, depth, "If @%d:%d", pos.Line, pos.Column)
		dumpNode(b, v.Cond, depth+1)
		dumpNode(b, v.Then, depth+1)
		for _, e := range v.Elifs {
			indent(b, depth, "Elif @%d:%d", e.Pos().Line, e.Pos().Column)
			dumpNode(b, e.Cond, depth+1)
			dumpNode(b, e.Body, depth+1)
		}
		if v.Else != nil {
			indent(b, depth, "Else @%d:%d", v.Else.Pos().Line, v.Else.Pos().Column)
			dumpNode(b, v.Else.Body, depth+1)
		}
	case *ast.ForLoop:
		indent(b, depth, "ForLoop %s @%d:%d", v.Var, pos.Line, pos.Column)
		dumpNode(b, v.Range.Start, depth+1)
		dumpNode(b, v.Range.End, depth+1)
		dumpNode(b, v.Body, depth+1)
	case *ast.Assignment:
		indent(b, depth, "Assignment %s:%s @%d:%d", v.Target.Name, v.Target.Type, pos.Line, pos.Column)
		dumpNode(b, v.Expr, depth+1)
	case *ast.Inplace:
		indent(b, depth, "Inplace %s %s @%d:%d", v.Name, v.Op, pos.Line, pos.Column)
		dumpNode(b, v.Expr, depth+1)
	case *ast.CallStatement:
		dumpNode(b, v.Call, depth)
	case *ast.Print:
		indent(b, depth, "Print (trailingComma=%v) @%d:%d", v.TrailingComma, pos.Line, pos.Column)
		for _, item := range v.Items {
			dumpNode(b, item, depth+1)
		}
	case *ast.Return:
		indent(b, depth, "Return @%d:%d", pos.Line, pos.Column)
		dumpNode(b, v.Expr, depth+1)
	case *ast.Call:
		name, _ := calleeName(v.Target)
		indent(b, depth, "Call %s @%d:%d", name, pos.Line, pos.Column)
		for _, a := range v.Args {
			dumpNode(b, a, depth+1)
		}
	case *ast.ArithExpr:
		if v.Child != nil {
			dumpNode(b, v.Child, depth)
			return
		}
		indent(b, depth, "ArithExpr %s @%d:%d", v.Op, pos.Line, pos.Column)
		dumpNode(b, v.Left, depth+1)
		dumpNode(b, v.Right, depth+1)
	case *ast.BoolExpr:
		if v.Child != nil {
			dumpNode(b, v.Child, depth)
			return
		}
		indent(b, depth, "BoolExpr %s @%d:%d", v.Op, pos.Line, pos.Column)
		dumpNode(b, v.Left, depth+1)
		dumpNode(b, v.Right, depth+1)
	case *ast.Integer:
		indent(b, depth, "Integer %d @%d:%d", v.Value, pos.Line, pos.Column)
	case *ast.Float:
		indent(b, depth, "Float %g @%d:%d", v.Value, pos.Line, pos.Column)
	case *ast.String:
		indent(b, depth, "String %q @%d:%d", v.Value, pos.Line, pos.Column)
	case *ast.Name:
		indent(b, depth, "Name %s @%d:%d", v.Value, pos.Line, pos.Column)
	case *ast.DottedName:
		indent(b, depth, "DottedName %s @%d:%d", strings.Join(v.Parts, "."), pos.Line, pos.Column)
	default:
		indent(b, depth, "%T @%d:%d", v, pos.Line, pos.Column)
	}
}

func calleeName(target ast.Node) (string, bool) {
	switch n := target.(type) {
	case *ast.Name:
		return n.Value, true
	case *ast.DottedName:
		return strings.Join(n.Parts, "."), true
	default:
		return "", false
	}
}
