// Package programs is Dipper's stand-in for an external parser: since
// this module owns no lexer or grammar, cmd/dipper resolves a ".dip"
// path to one of these hand-built ast.Function/ast.Struct trees rather
// than parsing file bytes into one. Each program is the tree a parser
// would produce for the source quoted in its comment.
package programs

import (
	"sort"

	"github.com/juddc/Dipper/ast"
)

// Program is everything CompileModule needs for one top-level source file:
// its struct declarations and its function declarations.
type Program struct {
	Structs   []*ast.Struct
	Functions []*ast.Function
}

func pos(line, col int) ast.Base { return ast.Base{Position: ast.NewPos(line, col)} }

func integer(line, col int, v int64) *ast.Integer { return &ast.Integer{Base: pos(line, col), Value: v} }
func float_(line, col int, v float64) *ast.Float  { return &ast.Float{Base: pos(line, col), Value: v} }
func str(line, col int, v string) *ast.String     { return &ast.String{Base: pos(line, col), Value: v} }
func nameRef(line, col int, v string) *ast.Name   { return &ast.Name{Base: pos(line, col), Value: v} }

func arith(line, col int, left ast.Expression, op string, right ast.Expression) *ast.ArithExpr {
	return &ast.ArithExpr{Base: pos(line, col), Left: left, Op: op, Right: right}
}

func boolExpr(line, col int, left ast.Expression, op string, right ast.Expression) *ast.BoolExpr {
	return &ast.BoolExpr{Base: pos(line, col), Left: left, Op: op, Right: right}
}

func call(line, col int, target string, args ...ast.Expression) *ast.Call {
	return &ast.Call{Base: pos(line, col), Target: nameRef(line, col, target), Args: args}
}

func block(stmts ...ast.Statement) *ast.Block {
	return &ast.Block{Body: stmts}
}

func ret(line, col int, expr ast.Expression) *ast.Return {
	return &ast.Return{Base: pos(line, col), Expr: expr}
}

func assign(line, col int, name, typ string, expr ast.Expression) *ast.Assignment {
	return &ast.Assignment{Base: pos(line, col), Target: ast.TypedName{Name: name, Type: typ}, Expr: expr}
}

func inplace(line, col int, name, op string, expr ast.Expression) *ast.Inplace {
	return &ast.Inplace{Base: pos(line, col), Name: name, Op: op, Expr: expr}
}

func printStmt(line, col int, items ...ast.Expression) *ast.Print {
	return &ast.Print{Base: pos(line, col), Items: items}
}

func forLoop(line, col int, v string, start, end ast.Expression, body *ast.Block) *ast.ForLoop {
	return &ast.ForLoop{Base: pos(line, col), Var: v, Range: &ast.RangeExpr{Start: start, End: end}, Body: body}
}

func arg(name, typ string) ast.TypedName { return ast.TypedName{Name: name, Type: typ} }

// addFive: `fn main(){ return 5+5 }` -> int 10.
func addFive() Program {
	main := &ast.Function{
		Base:       pos(1, 1),
		Name:       "main",
		ReturnType: "int",
		Body:       block(ret(1, 20, arith(1, 27, integer(1, 27, 5), "+", integer(1, 29, 5)))),
	}
	return Program{Functions: []*ast.Function{main}}
}

// fib exercises self recursion; fib(10) == 55.
// fn fib(n:int)->int{ if n<2 {return n} return fib(n-2)+fib(n-1) }
// fn main(){ return fib(10) }
func fib() Program {
	fibFn := &ast.Function{
		Base:       pos(1, 1),
		Name:       "fib",
		Args:       []ast.TypedName{arg("n", "int")},
		ReturnType: "int",
		Body: block(
			&ast.If{
				Base: pos(1, 20),
				Cond: boolExpr(1, 23, nameRef(1, 23, "n"), "<", integer(1, 25, 2)),
				Then: block(ret(1, 29, nameRef(1, 36, "n"))),
			},
			ret(1, 45, arith(1, 52,
				call(1, 52, "fib", arith(1, 56, nameRef(1, 56, "n"), "-", integer(1, 58, 2))),
				"+",
				call(1, 65, "fib", arith(1, 69, nameRef(1, 69, "n"), "-", integer(1, 71, 1))),
			)),
		),
	}
	main := &ast.Function{
		Base:       pos(2, 1),
		Name:       "main",
		ReturnType: "int",
		Body:       block(ret(2, 13, call(2, 20, "fib", integer(2, 24, 10)))),
	}
	return Program{Functions: []*ast.Function{fibFn, main}}
}

// stringLen:
// fn main(){ x="abcd" return len(x+"zzzz")==8 } -> bool true.
func stringLen() Program {
	main := &ast.Function{
		Base:       pos(1, 1),
		Name:       "main",
		ReturnType: "bool",
		Body: block(
			assign(1, 11, "x", "str", str(1, 13, "abcd")),
			ret(1, 20, boolExpr(1, 27,
				call(1, 27, "len", arith(1, 31, nameRef(1, 31, "x"), "+", str(1, 33, "zzzz"))),
				"==",
				integer(1, 45, 8),
			)),
		),
	}
	return Program{Functions: []*ast.Function{main}}
}

// loopSum:
// fn main(){ x=10 for i in 0..10 { x+=1 } return x } -> int 20.
func loopSum() Program {
	main := &ast.Function{
		Base:       pos(1, 1),
		Name:       "main",
		ReturnType: "int",
		Body: block(
			assign(1, 11, "x", "int", integer(1, 13, 10)),
			forLoop(1, 16, "i", integer(1, 24, 0), integer(1, 27, 10),
				block(inplace(1, 32, "x", "+=", integer(1, 35, 1)))),
			ret(1, 40, nameRef(1, 47, "x")),
		),
	}
	return Program{Functions: []*ast.Function{main}}
}

// elifChain is a multi-arm elif chain where only the third elif's
// equality guard matches -> int 999.
func elifChain() Program {
	main := &ast.Function{
		Base:       pos(1, 1),
		Name:       "main",
		ReturnType: "int",
		Body: block(
			assign(1, 11, "x", "int", integer(1, 13, 10)),
			&ast.If{
				Base: pos(1, 16),
				Cond: boolExpr(1, 19, nameRef(1, 19, "x"), ">", integer(1, 21, 20)),
				Then: block(ret(1, 25, nameRef(1, 32, "x"))),
				Elifs: []*ast.Elif{
					{Base: pos(1, 40), Cond: boolExpr(1, 45, nameRef(1, 45, "x"), ">", integer(1, 47, 15)),
						Body: block(ret(1, 51, integer(1, 58, 2)))},
					{Base: pos(1, 61), Cond: boolExpr(1, 66, nameRef(1, 66, "x"), ">", integer(1, 68, 11)),
						Body: block(ret(1, 72, integer(1, 79, 3)))},
					{Base: pos(1, 82), Cond: boolExpr(1, 87, nameRef(1, 87, "x"), "==", integer(1, 89, 10)),
						Body: block(ret(1, 94, integer(1, 101, 999)))},
				},
				Else: &ast.Else{Base: pos(1, 105), Body: block(ret(1, 110, arith(1, 117, nameRef(1, 117, "x"), "+", integer(1, 119, 10))))},
			},
		),
	}
	return Program{Functions: []*ast.Function{main}}
}

// sqrtOfFour:
// fn main(){ x:float=4.0 return sqrt(x) } -> float 2.0.
func sqrtOfFour() Program {
	main := &ast.Function{
		Base:       pos(1, 1),
		Name:       "main",
		ReturnType: "float",
		Body: block(
			assign(1, 11, "x", "float", float_(1, 19, 4.0)),
			ret(1, 24, call(1, 31, "sqrt", nameRef(1, 36, "x"))),
		),
	}
	return Program{Functions: []*ast.Function{main}}
}

// structPoint exercises struct-instance construction + print, the
// CALL-as-constructor path and StructInstance.Str.
// struct Point { x:int, y:int }
// fn main(){ p = Point(3, 4) print p }
func structPoint() Program {
	point := &ast.Struct{
		Base: pos(1, 1),
		Name: "Point",
		Fields: []*ast.Field{
			{Base: pos(1, 15), TypedName: arg("x", "int")},
			{Base: pos(1, 21), TypedName: arg("y", "int")},
		},
	}
	main := &ast.Function{
		Base: pos(2, 1),
		Name: "main",
		Body: block(
			assign(2, 11, "p", "Point", call(2, 15, "Point", integer(2, 21, 3), integer(2, 24, 4))),
			printStmt(2, 28, nameRef(2, 34, "p")),
		),
	}
	return Program{Structs: []*ast.Struct{point}, Functions: []*ast.Function{main}}
}

// echoArgv is an argv-handling demo: `fn main(args:[str])->int{ return
// len(args) }`, exercising the CLI's pass-through of trailing positional
// arguments into main's single list parameter.
func echoArgv() Program {
	main := &ast.Function{
		Base:       pos(1, 1),
		Name:       "main",
		Args:       []ast.TypedName{arg("args", "[str]")},
		ReturnType: "int",
		Body:       block(ret(1, 30, call(1, 37, "len", nameRef(1, 41, "args")))),
	}
	return Program{Functions: []*ast.Function{main}}
}

var catalog = map[string]Program{
	"add_five":     addFive(),
	"fib":          fib(),
	"string_len":   stringLen(),
	"loop_sum":     loopSum(),
	"elif_chain":   elifChain(),
	"sqrt":         sqrtOfFour(),
	"struct_point": structPoint(),
	"echo_argv":    echoArgv(),
}

// Lookup resolves a ".dip" base name (extension stripped by the caller) to
// its built-in program, the stand-in for what a real parser would produce
// from the file's source text.
func Lookup(name string) (Program, bool) {
	p, ok := catalog[name]
	return p, ok
}

// Names returns every built-in program name, sorted for the CLI's
// unknown-program message.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for k := range catalog {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
