// Package registry holds the compiled artifacts of a Dipper program: the
// function objects and struct-defs that make up a Namespace/Module,
// populated in two phases (install prototypes, then compile bodies
// against the now-complete namespace).
package registry

import (
	"fmt"

	"github.com/juddc/Dipper/opcodes"
	"github.com/juddc/Dipper/values"
)

// Param is one declared function parameter: a name and its declared type.
type Param struct {
	Name string
	Type string
}

// Function is a compiled function object: signature, bytecode, the
// pristine data-register template each call frame deep-copies, and the
// name-to-register bindings. A Function exists in two states: a
// prototype (Bytecode nil, installed during phase one so
// forward/mutually-recursive calls resolve) and a sealed function
// (Bytecode populated during phase two).
type Function struct {
	Name         string
	Args         []Param
	ReturnType   string
	Bytecode     []opcodes.Instruction
	Annotations  []opcodes.Annotation
	DataTemplate []*values.Value
	VarBindings  map[string]int
}

// Sealed reports whether this function's body has been compiled.
func (f *Function) Sealed() bool {
	return f.Bytecode != nil
}

// Namespace is an ordered mapping of constants, struct-defs, functions,
// and sub-namespaces. A Dipper program is a single
// Module loaded by the CLI, but the sub-namespace slot is part of the
// contract so this shape matches a future multi-module host without
// change; cross-file import itself is an explicit non-goal and nothing
// populates Namespaces today.
type Namespace struct {
	Name string

	constOrder []string
	consts     map[string]*values.Value

	structOrder []string
	structs     map[string]*values.StructDef

	funcOrder []string
	funcs     map[string]*Function

	nsOrder    []string
	namespaces map[string]*Namespace
}

// NewNamespace returns an empty, ready-to-populate namespace.
func NewNamespace(name string) *Namespace {
	return &Namespace{
		Name:       name,
		consts:     make(map[string]*values.Value),
		structs:    make(map[string]*values.StructDef),
		funcs:      make(map[string]*Function),
		namespaces: make(map[string]*Namespace),
	}
}

// Module is the top-level Namespace loaded from a single source file.
type Module struct {
	*Namespace
	Filename string
}

// NewModule returns an empty module ready for two-phase population.
func NewModule(filename, name string) *Module {
	return &Module{Namespace: NewNamespace(name), Filename: filename}
}

// SetConst registers a named constant. Redeclaration overwrites the prior
// value but preserves original declaration order.
func (n *Namespace) SetConst(name string, v *values.Value) {
	if _, exists := n.consts[name]; !exists {
		n.constOrder = append(n.constOrder, name)
	}
	n.consts[name] = v
}

func (n *Namespace) GetConst(name string) (*values.Value, bool) {
	v, ok := n.consts[name]
	return v, ok
}

func (n *Namespace) ConstNames() []string {
	return append([]string(nil), n.constOrder...)
}

// InstallStructDef registers a struct-def's ordered field-type descriptor.
// This is a phase-one operation: the def exists, with no instances yet,
// so other prototypes may reference it by name.
func (n *Namespace) InstallStructDef(name string, fields []values.StructField) *values.StructDef {
	def := &values.StructDef{Name: name, Fields: fields}
	if _, exists := n.structs[name]; !exists {
		n.structOrder = append(n.structOrder, name)
	}
	n.structs[name] = def
	return def
}

func (n *Namespace) GetStructDef(name string) (*values.StructDef, bool) {
	d, ok := n.structs[name]
	return d, ok
}

func (n *Namespace) StructDefNames() []string {
	return append([]string(nil), n.structOrder...)
}

// InstallFunctionPrototype registers a function's signature with no body.
// The returned *Function is later sealed in place by the compiler during
// phase two.
func (n *Namespace) InstallFunctionPrototype(name string, args []Param, returnType string) *Function {
	fn := &Function{Name: name, Args: args, ReturnType: returnType}
	if _, exists := n.funcs[name]; !exists {
		n.funcOrder = append(n.funcOrder, name)
	}
	n.funcs[name] = fn
	return fn
}

func (n *Namespace) GetFunction(name string) (*Function, bool) {
	fn, ok := n.funcs[name]
	return fn, ok
}

func (n *Namespace) FunctionNames() []string {
	return append([]string(nil), n.funcOrder...)
}

// HasCallable reports whether name resolves to a function or a struct-def,
// the two kinds CALL may dispatch to.
func (n *Namespace) HasCallable(name string) bool {
	_, isFunc := n.funcs[name]
	_, isStruct := n.structs[name]
	return isFunc || isStruct
}

// SetSubNamespace registers a nested namespace.
func (n *Namespace) SetSubNamespace(name string, sub *Namespace) {
	if _, exists := n.namespaces[name]; !exists {
		n.nsOrder = append(n.nsOrder, name)
	}
	n.namespaces[name] = sub
}

func (n *Namespace) GetSubNamespace(name string) (*Namespace, bool) {
	sub, ok := n.namespaces[name]
	return sub, ok
}

// String renders a readable dump of the namespace's contents, used by the
// CLI's -c compiler-dump flag.
func (n *Namespace) String() string {
	s := fmt.Sprintf("namespace %s\n", n.Name)
	for _, name := range n.structOrder {
		def := n.structs[name]
		s += fmt.Sprintf("  struct %s (%d fields)\n", name, len(def.Fields))
	}
	for _, name := range n.funcOrder {
		fn := n.funcs[name]
		s += fmt.Sprintf("  func %s/%d -> %s (%d instructions)\n", name, len(fn.Args), fn.ReturnType, len(fn.Bytecode))
		for i, inst := range fn.Bytecode {
			s += fmt.Sprintf("    %4d %-8s %d %d %d\n", i, inst.Op, inst.A, inst.B, inst.C)
		}
		for i, v := range fn.DataTemplate {
			s += fmt.Sprintf("    data[%d] = %s\n", i, v.Repr())
		}
	}
	return s
}
