// Package values implements Dipper's tagged runtime value system: null,
// bool, int, float, string, list, struct-def, struct-instance, and
// function. Every variant shares a common capability set (copy, bool,
// int, float, str, repr, hash, len) plus four operator families dispatched
// by the caller based on the inferred result kind (op_bool, op_int,
// op_float, op_str).
package values

import (
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
)

// Kind tags the dynamic type of a Value.
type Kind byte

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindStructDef
	KindStructInstance
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindStructDef:
		return "struct-def"
	case KindStructInstance:
		return "struct-instance"
	case KindFunction:
		return "function"
	default:
		return "unknown"
	}
}

// Value is a single tagged runtime value. Register slots hold *Value so
// that in-place assignment (the SET opcode, compound in-place arithmetic,
// struct field binding) mutates the slot's content without changing its
// identity.
type Value struct {
	Kind Kind
	Data interface{}
}

// List is the backing store for KindList values: an unhashable, ordered,
// untyped sequence.
type List struct {
	Items []*Value
}

// StructField is one ordered member of a struct-def.
type StructField struct {
	Name string
	Type string
}

// StructDef is a type descriptor: a name plus an ordered field list. It is
// itself a Value variant (KindStructDef) and is identity-compared.
type StructDef struct {
	Name   string
	Fields []StructField
}

// FieldIndex returns the position of a field by name, or -1 if absent.
func (d *StructDef) FieldIndex(name string) int {
	for i, f := range d.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// StructInstance is a value bound to a StructDef, holding one Value per
// declared field in declaration order. Its field count equals its
// struct-def's field count for the instance's entire lifetime.
type StructInstance struct {
	Def    *StructDef
	Fields []*Value
}

// Function wraps a compiled code object. Code is stored as interface{}
// (rather than a concrete *registry.Function) to avoid an import cycle
// between values and registry.
type Function struct {
	Name string
	Code interface{}
}

// Constructors.

func NewNull() *Value { return &Value{Kind: KindNull} }

func NewBool(b bool) *Value { return &Value{Kind: KindBool, Data: b} }

func NewInt(i int64) *Value { return &Value{Kind: KindInt, Data: i} }

func NewFloat(f float64) *Value { return &Value{Kind: KindFloat, Data: f} }

func NewString(s string) *Value { return &Value{Kind: KindString, Data: s} }

func NewList() *Value { return &Value{Kind: KindList, Data: &List{}} }

func NewStructDef(name string, fields []StructField) *Value {
	return &Value{Kind: KindStructDef, Data: &StructDef{Name: name, Fields: fields}}
}

// NewStructInstance builds an instance with every field defaulted by its
// declared type, so field assignment stays type-checked from the first
// write. A field whose declared type is another struct name defaults to
// null (the def registry isn't visible here); the VM binds such fields
// wholesale on first assignment.
func NewStructInstance(def *StructDef) *Value {
	fields := make([]*Value, len(def.Fields))
	for i, f := range def.Fields {
		fields[i] = DefaultForType(f.Type)
	}
	return &Value{Kind: KindStructInstance, Data: &StructInstance{Def: def, Fields: fields}}
}

func NewFunction(name string, code interface{}) *Value {
	return &Value{Kind: KindFunction, Data: &Function{Name: name, Code: code}}
}

// DefaultForType returns a fresh zero-value Value for a declared type name,
// used by the compiler to pre-populate typed data-template slots.
func DefaultForType(typeName string) *Value {
	switch typeName {
	case "int":
		return NewInt(0)
	case "float":
		return NewFloat(0)
	case "str":
		return NewString("")
	case "bool":
		return NewBool(false)
	case "list", "[str]", "[int]", "[float]":
		return NewList()
	default:
		return NewNull()
	}
}

func typeErr(op string, a, b Kind) error {
	return fmt.Errorf("unsupported operator %q for types %s and %s", op, a, b)
}

// Copy performs a deep copy: scalars copy cheaply, containers and structs
// recurse.
func (v *Value) Copy() *Value {
	switch v.Kind {
	case KindList:
		l := v.Data.(*List)
		items := make([]*Value, len(l.Items))
		for i, it := range l.Items {
			items[i] = it.Copy()
		}
		return &Value{Kind: KindList, Data: &List{Items: items}}
	case KindStructInstance:
		inst := v.Data.(*StructInstance)
		fields := make([]*Value, len(inst.Fields))
		for i, f := range inst.Fields {
			fields[i] = f.Copy()
		}
		return &Value{Kind: KindStructInstance, Data: &StructInstance{Def: inst.Def, Fields: fields}}
	default:
		// Scalars (and identity-compared function/struct-def values) copy cheaply.
		cp := *v
		return &cp
	}
}

// Bool converts the value to a boolean: null is false, numbers are true
// when nonzero, strings and lists when nonempty, everything else true.
func (v *Value) Bool() bool {
	switch v.Kind {
	case KindNull:
		return false
	case KindBool:
		return v.Data.(bool)
	case KindInt:
		return v.Data.(int64) != 0
	case KindFloat:
		return v.Data.(float64) != 0
	case KindString:
		return len(v.Data.(string)) > 0
	case KindList:
		return len(v.Data.(*List).Items) > 0
	default:
		return true
	}
}

// Int converts the value to an integer.
func (v *Value) Int() int64 {
	switch v.Kind {
	case KindNull:
		return 0
	case KindBool:
		if v.Data.(bool) {
			return 1
		}
		return 0
	case KindInt:
		return v.Data.(int64)
	case KindFloat:
		return int64(v.Data.(float64))
	default:
		return 0
	}
}

// Float converts the value to a float.
func (v *Value) Float() float64 {
	switch v.Kind {
	case KindInt:
		return float64(v.Data.(int64))
	case KindFloat:
		return v.Data.(float64)
	case KindBool:
		if v.Data.(bool) {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// Str renders the value the way `print`/WRITEO expect to see it.
func (v *Value) Str() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.Data.(bool) {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.Data.(int64), 10)
	case KindFloat:
		return formatFloat(v.Data.(float64))
	case KindString:
		return v.Data.(string)
	case KindList:
		l := v.Data.(*List)
		parts := make([]string, len(l.Items))
		for i, it := range l.Items {
			parts[i] = it.Str()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindStructDef:
		return v.Data.(*StructDef).Name
	case KindStructInstance:
		inst := v.Data.(*StructInstance)
		parts := make([]string, len(inst.Fields))
		for i, f := range inst.Fields {
			parts[i] = f.Str()
		}
		return inst.Def.Name + "{" + strings.Join(parts, ", ") + "}"
	case KindFunction:
		return "<func " + v.Data.(*Function).Name + ">"
	default:
		return ""
	}
}

// formatFloat strips trailing zeros but keeps at least one fractional
// digit, so a whole float still prints as a float.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Repr is the diagnostic representation used by error messages and -c/-i
// dumps.
func (v *Value) Repr() string {
	if v.Kind == KindString {
		return `"` + v.Data.(string) + `"`
	}
	return fmt.Sprintf("<%s: %s>", v.Kind, v.Str())
}

// Hashable reports whether Hash can succeed for this value.
func (v *Value) Hashable() bool {
	switch v.Kind {
	case KindNull, KindList, KindFunction:
		return false
	case KindStructInstance:
		inst := v.Data.(*StructInstance)
		for _, f := range inst.Fields {
			if !f.Hashable() {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Hash returns a stable hash for hashable values, or an error otherwise.
func (v *Value) Hash() (uint64, error) {
	switch v.Kind {
	case KindBool:
		if v.Data.(bool) {
			return 1, nil
		}
		return 0, nil
	case KindInt:
		return uint64(v.Data.(int64)), nil
	case KindFloat:
		return uint64(int64(v.Data.(float64))), nil
	case KindString:
		h := fnv.New64a()
		_, _ = h.Write([]byte(v.Data.(string)))
		return h.Sum64(), nil
	case KindStructDef:
		h := fnv.New64a()
		_, _ = h.Write([]byte(v.Data.(*StructDef).Name))
		return h.Sum64(), nil
	case KindStructInstance:
		inst := v.Data.(*StructInstance)
		acc := fnv.New64a()
		for _, f := range inst.Fields {
			fh, err := f.Hash()
			if err != nil {
				return 0, fmt.Errorf("unhashable type: %s", v.Kind)
			}
			var buf [8]byte
			for i := range buf {
				buf[i] = byte(fh >> (8 * i))
			}
			_, _ = acc.Write(buf[:])
		}
		return acc.Sum64(), nil
	default:
		return 0, fmt.Errorf("unhashable type: %s", v.Kind)
	}
}

// Len returns the element count for list/string values, or an error for
// kinds with no meaningful length.
func (v *Value) Len() (int, error) {
	switch v.Kind {
	case KindString:
		return len(v.Data.(string)), nil
	case KindList:
		return len(v.Data.(*List).Items), nil
	default:
		return 0, fmt.Errorf("type %s has no len()", v.Kind)
	}
}

// Assign mutates the receiver in place to hold other's content. A typed
// slot only accepts an assignment whose dynamic kind matches its own;
// cross-type assignment is a type error.
func (v *Value) Assign(other *Value) error {
	if v.Kind != other.Kind {
		return fmt.Errorf("cannot assign value of type %s to slot of type %s", other.Kind, v.Kind)
	}
	switch v.Kind {
	case KindList:
		v.Data = other.Copy().Data
	case KindStructInstance:
		a, b := v.Data.(*StructInstance), other.Data.(*StructInstance)
		if a.Def != b.Def {
			return fmt.Errorf("cannot assign struct %s to slot of struct type %s", b.Def.Name, a.Def.Name)
		}
		v.Data = other.Copy().Data
	default:
		v.Data = other.Data
	}
	return nil
}

// AssignInt mutates an int slot in place.
func (v *Value) AssignInt(i int64) error {
	if v.Kind != KindInt {
		return fmt.Errorf("cannot assign_int to slot of type %s", v.Kind)
	}
	v.Data = i
	return nil
}

// AssignFloat mutates a float slot in place.
func (v *Value) AssignFloat(f float64) error {
	if v.Kind != KindFloat {
		return fmt.Errorf("cannot assign_float to slot of type %s", v.Kind)
	}
	v.Data = f
	return nil
}

// AssignStr mutates a string slot in place.
func (v *Value) AssignStr(s string) error {
	if v.Kind != KindString {
		return fmt.Errorf("cannot assign_str to slot of type %s", v.Kind)
	}
	v.Data = s
	return nil
}

// AssignBool mutates a bool slot in place.
func (v *Value) AssignBool(b bool) error {
	if v.Kind != KindBool {
		return fmt.Errorf("cannot assign_bool to slot of type %s", v.Kind)
	}
	v.Data = b
	return nil
}

// OpBool evaluates a comparison/equality operator, producing a bool:
// ==/!= on bool; the full ordering+equality set on int and float; ==/!=
// on string with no cross-type coercion (comparing a string to a
// non-string is a type error); element-wise ==/!= on list.
func (v *Value) OpBool(op string, other *Value) (bool, error) {
	switch v.Kind {
	case KindNull:
		if other.Kind != KindNull {
			return false, typeErr(op, v.Kind, other.Kind)
		}
		switch op {
		case "==":
			return true, nil
		case "!=":
			return false, nil
		}
	case KindBool:
		if other.Kind != KindBool {
			return false, typeErr(op, v.Kind, other.Kind)
		}
		a, b := v.Data.(bool), other.Data.(bool)
		switch op {
		case "==":
			return a == b, nil
		case "!=":
			return a != b, nil
		}
	case KindInt, KindFloat:
		if other.Kind != KindInt && other.Kind != KindFloat {
			return false, typeErr(op, v.Kind, other.Kind)
		}
		a, b := v.Float(), other.Float()
		switch op {
		case "==":
			return a == b, nil
		case "!=":
			return a != b, nil
		case "<":
			return a < b, nil
		case ">":
			return a > b, nil
		case "<=":
			return a <= b, nil
		case ">=":
			return a >= b, nil
		}
	case KindString:
		if other.Kind != KindString {
			return false, typeErr(op, v.Kind, other.Kind)
		}
		a, b := v.Data.(string), other.Data.(string)
		switch op {
		case "==":
			return a == b, nil
		case "!=":
			return a != b, nil
		}
	case KindList:
		if other.Kind != KindList {
			return false, typeErr(op, v.Kind, other.Kind)
		}
		eq := listEqual(v.Data.(*List), other.Data.(*List))
		switch op {
		case "==":
			return eq, nil
		case "!=":
			return !eq, nil
		}
	case KindFunction:
		if other.Kind != KindFunction {
			return false, typeErr(op, v.Kind, other.Kind)
		}
		eq := v.Data.(*Function) == other.Data.(*Function)
		switch op {
		case "==":
			return eq, nil
		case "!=":
			return !eq, nil
		}
	case KindStructDef:
		if other.Kind != KindStructDef {
			return false, typeErr(op, v.Kind, other.Kind)
		}
		eq := v.Data.(*StructDef) == other.Data.(*StructDef)
		switch op {
		case "==":
			return eq, nil
		case "!=":
			return !eq, nil
		}
	case KindStructInstance:
		if other.Kind != KindStructInstance {
			return false, typeErr(op, v.Kind, other.Kind)
		}
		eq, err := structInstanceEqual(v.Data.(*StructInstance), other.Data.(*StructInstance))
		if err != nil {
			return false, err
		}
		switch op {
		case "==":
			return eq, nil
		case "!=":
			return !eq, nil
		}
	}
	return false, typeErr(op, v.Kind, other.Kind)
}

func listEqual(a, b *List) bool {
	if len(a.Items) != len(b.Items) {
		return false
	}
	for i := range a.Items {
		eq, err := a.Items[i].OpBool("==", b.Items[i])
		if err != nil || !eq {
			return false
		}
	}
	return true
}

// structInstanceEqual compares field-wise when both instances are
// hashable, else falls back to identity.
func structInstanceEqual(a, b *StructInstance) (bool, error) {
	aVal := &Value{Kind: KindStructInstance, Data: a}
	bVal := &Value{Kind: KindStructInstance, Data: b}
	if !aVal.Hashable() || !bVal.Hashable() {
		return a == b, nil
	}
	if a.Def != b.Def || len(a.Fields) != len(b.Fields) {
		return false, nil
	}
	for i := range a.Fields {
		eq, err := a.Fields[i].OpBool("==", b.Fields[i])
		if err != nil {
			return false, err
		}
		if !eq {
			return false, nil
		}
	}
	return true, nil
}

// OpInt evaluates an arithmetic operator on int operands, producing an
// int. Division truncates toward zero, matching Go's native integer
// division.
func (v *Value) OpInt(op string, other *Value) (int64, error) {
	if v.Kind != KindInt || other.Kind != KindInt {
		return 0, typeErr(op, v.Kind, other.Kind)
	}
	a, b := v.Data.(int64), other.Data.(int64)
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return 0, fmt.Errorf("integer division by zero")
		}
		return a / b, nil
	}
	return 0, typeErr(op, v.Kind, other.Kind)
}

// OpFloat evaluates an arithmetic operator on float operands (widening an
// int operand to float if mixed), producing a float.
func (v *Value) OpFloat(op string, other *Value) (float64, error) {
	if !isNumeric(v) || !isNumeric(other) {
		return 0, typeErr(op, v.Kind, other.Kind)
	}
	a, b := v.Float(), other.Float()
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return 0, fmt.Errorf("float division by zero")
		}
		return a / b, nil
	}
	return 0, typeErr(op, v.Kind, other.Kind)
}

func isNumeric(v *Value) bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

// OpStr evaluates the string operator family: concatenation only.
func (v *Value) OpStr(op string, other *Value) (string, error) {
	if v.Kind != KindString || other.Kind != KindString {
		return "", typeErr(op, v.Kind, other.Kind)
	}
	if op != "+" {
		return "", typeErr(op, v.Kind, other.Kind)
	}
	return v.Data.(string) + other.Data.(string), nil
}

// Sqrt implements the `sqrt` builtin: float(sqrt(v)).
func (v *Value) Sqrt() (float64, error) {
	if !isNumeric(v) {
		return 0, fmt.Errorf("sqrt() requires a numeric operand, got %s", v.Kind)
	}
	return math.Sqrt(v.Float()), nil
}

// List helpers.

func (v *Value) AsList() (*List, error) {
	if v.Kind != KindList {
		return nil, fmt.Errorf("expected list, got %s", v.Kind)
	}
	return v.Data.(*List), nil
}

func (l *List) Append(item *Value) {
	l.Items = append(l.Items, item)
}

// PopAt removes and returns the item at idx.
func (l *List) PopAt(idx int) (*Value, error) {
	if idx < 0 || idx >= len(l.Items) {
		return nil, fmt.Errorf("list index %d out of range (len %d)", idx, len(l.Items))
	}
	item := l.Items[idx]
	l.Items = append(l.Items[:idx], l.Items[idx+1:]...)
	return item, nil
}

// RemoveAt removes (and discards) the item at idx.
func (l *List) RemoveAt(idx int) error {
	_, err := l.PopAt(idx)
	return err
}

func (l *List) Get(idx int) (*Value, error) {
	if idx < 0 || idx >= len(l.Items) {
		return nil, fmt.Errorf("list index %d out of range (len %d)", idx, len(l.Items))
	}
	return l.Items[idx], nil
}

func (l *List) Set(idx int, val *Value) error {
	if idx < 0 || idx >= len(l.Items) {
		return fmt.Errorf("list index %d out of range (len %d)", idx, len(l.Items))
	}
	l.Items[idx] = val
	return nil
}

// Concat returns a new list containing a's items followed by b's: a
// fresh list, neither operand mutated.
func Concat(a, b *Value) (*Value, error) {
	if a.Kind != KindList || b.Kind != KindList {
		return nil, typeErr("+", a.Kind, b.Kind)
	}
	al, bl := a.Data.(*List), b.Data.(*List)
	items := make([]*Value, 0, len(al.Items)+len(bl.Items))
	items = append(items, al.Items...)
	items = append(items, bl.Items...)
	return &Value{Kind: KindList, Data: &List{Items: items}}, nil
}
