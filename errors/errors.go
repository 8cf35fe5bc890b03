// Package errors implements Dipper's diagnostic taxonomy: a typed Error
// carrying a source position, rendered as a three-line source window with
// a column-arrow pointer. Runtime errors additionally carry the failing
// instruction's opcode, operand registers, and call-frame names.
package errors

import (
	"fmt"
	"strings"

	"github.com/juddc/Dipper/ast"
)

// Kind classifies which phase raised the error.
type Kind int

const (
	// ParseError is a stub for the external parser's contract: this module
	// has no lexer/grammar of its own (an explicit non-goal), but a host
	// embedding a parser in front of this compiler needs a Kind to report
	// through, so the taxonomy reserves one.
	ParseError Kind = iota
	CompileError
	RuntimeError
)

func (k Kind) String() string {
	switch k {
	case ParseError:
		return "ParseError"
	case CompileError:
		return "CompileError"
	case RuntimeError:
		return "RuntimeError"
	default:
		return "Error"
	}
}

// Error is a positioned diagnostic. Source, when set via WithSource, lets
// Render produce the three-line source window; without it Render falls
// back to the single-line message.
type Error struct {
	Kind     Kind
	Filename string
	Position ast.Position
	Message  string
	Source   string

	// Runtime-only context, populated by the VM: the current opcode and
	// its operand registers, and a snapshot of the call frame stack at
	// the point of failure.
	Opcode    string
	Registers []int
	Frames    []string
}

func New(kind Kind, filename string, pos ast.Position, message string) *Error {
	return &Error{Kind: kind, Filename: filename, Position: pos, Message: message}
}

func NewParseError(filename string, pos ast.Position, message string) *Error {
	return New(ParseError, filename, pos, message)
}

func NewCompileError(filename string, pos ast.Position, message string) *Error {
	return New(CompileError, filename, pos, message)
}

func NewRuntimeError(filename string, pos ast.Position, message string) *Error {
	return New(RuntimeError, filename, pos, message)
}

// WithSource attaches the full source text so Render can show a source
// window, and returns the receiver for chaining.
func (e *Error) WithSource(source string) *Error {
	e.Source = source
	return e
}

// WithFrame attaches runtime frame context (opcode, register operands,
// call-stack contents) to a runtime error.
func (e *Error) WithFrame(opcode string, registers []int, frames []string) *Error {
	e.Opcode = opcode
	e.Registers = registers
	e.Frames = frames
	return e
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	return e.String()
}

// String renders "Kind at line L, column C: message".
func (e *Error) String() string {
	return fmt.Sprintf("%s at line %d, column %d: %s", e.Kind, e.Position.Line, e.Position.Column, e.Message)
}

// Render produces the full diagnostic: a header line, then (if Source is
// set) a three-line window around the failing line with a caret under the
// failing column, then (for runtime errors) opcode/register/frame context.
func (e *Error) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error in file %s line %d, col %d:\n", e.Filename, e.Position.Line, e.Position.Column)
	fmt.Fprintf(&b, "%s: %s\n", e.Kind, e.Message)
	if e.Source != "" {
		b.WriteString(sourceWindow(e.Source, e.Position.Line, e.Position.Column))
	}
	if e.Kind == RuntimeError && e.Opcode != "" {
		fmt.Fprintf(&b, "  opcode: %s registers: %v\n", e.Opcode, e.Registers)
		for _, f := range e.Frames {
			fmt.Fprintf(&b, "  at %s\n", f)
		}
	}
	return b.String()
}

// sourceWindow renders up to one line of context on either side of line,
// plus a caret line under column. line and column are 1-indexed.
func sourceWindow(source string, line, column int) string {
	lines := strings.Split(source, "\n")
	start := line - 2
	if start < 0 {
		start = 0
	}
	end := line + 1
	if end > len(lines) {
		end = len(lines)
	}
	var b strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&b, "%4d | %s\n", i+1, lines[i])
		if i+1 == line {
			col := column - 1
			if col < 0 {
				col = 0
			}
			b.WriteString("       " + strings.Repeat("-", col) + "^\n")
		}
	}
	return b.String()
}
