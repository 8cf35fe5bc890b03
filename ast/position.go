// Package ast defines the node set the Dipper bytecode compiler consumes.
//
// This is an input contract only: no lexer, grammar, or parser lives in
// this module. Callers (a concrete parser, or a test constructing a tree
// by hand) build these nodes directly.
package ast

// Position locates a node in its source file for diagnostics.
type Position struct {
	Line   int
	Column int
}

// Node is the common interface every AST node implements.
type Node interface {
	Pos() Position
}

// Base carries the position every node needs; embed it in concrete nodes.
type Base struct {
	Position Position
}

func (b Base) Pos() Position { return b.Position }
