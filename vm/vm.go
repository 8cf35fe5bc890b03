// Package vm implements Dipper's register-based virtual machine: a
// frame-based call stack executing a flat (opcode, a, b, c) instruction
// stream. The dispatch loop reads the current frame's instruction, skips
// PASS/LABEL, executes, advances unless the opcode itself set the
// pointer, and decorates failures with instruction and frame context.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/juddc/Dipper/ast"
	"github.com/juddc/Dipper/errors"
	"github.com/juddc/Dipper/opcodes"
	"github.com/juddc/Dipper/registry"
	"github.com/juddc/Dipper/values"
)

const (
	streamStdin  = 0
	streamStdout = 1
	streamStderr = 2
)

// VirtualMachine holds configuration shared across a single Run call: the
// output streams, an optional test observer that receives the program's
// terminal return value, an optional instruction trace (the CLI's -i
// flag), and TraceHints — an observability-only record of how many times
// each backward-jump target has been reached. TraceHints changes no
// execution semantics; it exists purely so a host could someday decide a
// loop is hot.
type VirtualMachine struct {
	Stdout     io.Writer
	Stderr     io.Writer
	Observer   func(*values.Value)
	Trace      bool
	TraceHints map[int]int
}

// New returns a VirtualMachine writing to os.Stdout/os.Stderr.
func New() *VirtualMachine {
	return &VirtualMachine{Stdout: os.Stdout, Stderr: os.Stderr, TraceHints: make(map[int]int)}
}

func (m *VirtualMachine) stdout() io.Writer {
	if m.Stdout == nil {
		return os.Stdout
	}
	return m.Stdout
}

func (m *VirtualMachine) stderr() io.Writer {
	if m.Stderr == nil {
		return os.Stderr
	}
	return m.Stderr
}

// Run executes module's main function to completion: push a frame for
// main, run until the call stack empties or a fatal error occurs. If
// main takes one parameter, it receives argv as a list of strings; if
// zero, none are passed. The returned int is the
// process exit status: 0 on a normal return, main's own EXIT status when
// it calls EXIT, or 1 on any reported error.
func (m *VirtualMachine) Run(module *registry.Module, argv []string) (int, error) {
	mainFn, ok := module.GetFunction("main")
	if !ok {
		return 1, fmt.Errorf("module %q has no main function", module.Name)
	}
	if len(mainFn.Args) > 1 {
		return 1, fmt.Errorf("main must take 0 or 1 parameters, got %d", len(mainFn.Args))
	}

	ec := newExecutionContext(module.Namespace, m)
	f := newFrame(mainFn)
	if len(mainFn.Args) == 1 {
		argvVal := values.NewList()
		list, _ := argvVal.AsList()
		for _, a := range argv {
			list.Append(values.NewString(a))
		}
		f.data[0] = argvVal
	}
	ec.pushFrame(f)

	return ec.run()
}

func (ec *executionContext) run() (int, error) {
	for {
		f := ec.currentFrame()
		if f == nil {
			return 0, nil
		}
		if len(ec.frames) >= maxCallDepth {
			return 1, fmt.Errorf("call stack depth exceeded (%d)", maxCallDepth)
		}

		if f.ip >= len(f.fn.Bytecode) {
			if err := ec.doReturn(f, opcodes.Unused); err != nil {
				return 1, ec.decorate(f, opcodes.Instruction{Op: opcodes.RET}, err)
			}
			if ec.finished {
				return ec.exitCode, nil
			}
			continue
		}

		inst := f.fn.Bytecode[f.ip]

		if inst.Op == opcodes.PASS || inst.Op == opcodes.LABEL {
			f.ip++
			continue
		}

		if ec.vm.Trace {
			fmt.Fprintf(ec.vm.stderr(), "ip=%-4d %-8s a=%-3d b=%-3d c=%-3d frame=%s\n",
				f.ip, inst.Op, inst.A, inst.B, inst.C, f.fn.Name)
		}

		branched, err := ec.exec(f, inst)
		if err != nil {
			return 1, ec.decorate(f, inst, err)
		}
		if ec.finished {
			return ec.exitCode, nil
		}
		if !branched {
			f.ip++
		}
	}
}

// exec executes one instruction against frame f, returning whether it set
// the instruction pointer itself (in which case the dispatch loop must
// not also advance it).
func (ec *executionContext) exec(f *frame, inst opcodes.Instruction) (bool, error) {
	switch inst.Op {
	case opcodes.JMP:
		ec.recordBackwardJump(f.ip, inst.A)
		f.ip = inst.A
		return true, nil
	case opcodes.BT:
		if f.data[inst.A].Bool() {
			ec.recordBackwardJump(f.ip, inst.B)
			f.ip = inst.B
			return true, nil
		}
		return false, nil
	case opcodes.BF:
		if !f.data[inst.A].Bool() {
			ec.recordBackwardJump(f.ip, inst.B)
			f.ip = inst.B
			return true, nil
		}
		return false, nil
	case opcodes.BEQ:
		eq, err := f.data[inst.A].OpBool("==", f.data[inst.B])
		if err != nil {
			return false, err
		}
		if eq {
			ec.recordBackwardJump(f.ip, inst.C)
			f.ip = inst.C
			return true, nil
		}
		return false, nil
	case opcodes.BNE:
		neq, err := f.data[inst.A].OpBool("!=", f.data[inst.B])
		if err != nil {
			return false, err
		}
		if neq {
			ec.recordBackwardJump(f.ip, inst.C)
			f.ip = inst.C
			return true, nil
		}
		return false, nil

	case opcodes.SET:
		return false, f.data[inst.B].Assign(f.data[inst.A])

	case opcodes.ADD, opcodes.SUB, opcodes.MUL, opcodes.DIV:
		return false, ec.execArith(f, inst)
	case opcodes.ADDI, opcodes.SUBI, opcodes.MULI, opcodes.DIVI:
		return false, ec.execArithImm(f, inst)
	case opcodes.EQ, opcodes.NEQ, opcodes.GT, opcodes.LT, opcodes.GTE, opcodes.LTE:
		return false, ec.execCompare(f, inst)

	case opcodes.SQRT:
		r, err := f.data[inst.A].Sqrt()
		if err != nil {
			return false, err
		}
		return false, f.data[inst.B].AssignFloat(r)
	case opcodes.LEN:
		n, err := f.data[inst.A].Len()
		if err != nil {
			return false, err
		}
		return false, f.data[inst.B].AssignInt(int64(n))

	case opcodes.WRITEI:
		w, err := ec.stream(inst.A)
		if err != nil {
			return false, err
		}
		_, err = w.Write([]byte{byte(f.data[inst.B].Int())})
		return false, err
	case opcodes.WRITEO:
		w, err := ec.stream(inst.A)
		if err != nil {
			return false, err
		}
		_, err = w.Write([]byte(f.data[inst.B].Str()))
		return false, err
	case opcodes.WRITENL:
		w, err := ec.stream(inst.A)
		if err != nil {
			return false, err
		}
		_, err = w.Write([]byte{'\n'})
		return false, err

	case opcodes.CALL:
		return false, ec.execCall(f, inst)
	case opcodes.RET:
		return true, ec.doReturn(f, inst.A)

	case opcodes.LIST_NEW:
		f.data[inst.A] = values.NewList()
		return false, nil
	case opcodes.LIST_ADD:
		l, err := f.data[inst.A].AsList()
		if err != nil {
			return false, err
		}
		l.Append(f.data[inst.B])
		return false, nil
	case opcodes.LIST_REM:
		l, err := f.data[inst.A].AsList()
		if err != nil {
			return false, err
		}
		return false, l.RemoveAt(int(f.data[inst.B].Int()))
	case opcodes.LIST_POP:
		l, err := f.data[inst.A].AsList()
		if err != nil {
			return false, err
		}
		item, err := l.PopAt(int(f.data[inst.B].Int()))
		if err != nil {
			return false, err
		}
		f.data[inst.C] = item
		return false, nil

	case opcodes.EXIT:
		ec.finished = true
		ec.exitCode = int(f.data[inst.A].Int())
		return true, nil

	default:
		return false, fmt.Errorf("unknown opcode %s", inst.Op)
	}
}

// recordBackwardJump updates TraceHints when a branch targets an earlier
// instruction, the signature of a loop back-edge.
func (ec *executionContext) recordBackwardJump(from, to int) {
	if to < from && ec.vm.TraceHints != nil {
		ec.vm.TraceHints[to]++
	}
}

func arithOpSymbol(op opcodes.Opcode) string {
	switch op {
	case opcodes.ADD, opcodes.ADDI:
		return "+"
	case opcodes.SUB, opcodes.SUBI:
		return "-"
	case opcodes.MUL, opcodes.MULI:
		return "*"
	default:
		return "/"
	}
}

// execArith dispatches ADD/SUB/MUL/DIV on the declared type of the
// destination register data[c].
func (ec *executionContext) execArith(f *frame, inst opcodes.Instruction) error {
	dest := f.data[inst.C]
	a, b := f.data[inst.A], f.data[inst.B]
	op := arithOpSymbol(inst.Op)
	switch dest.Kind {
	case values.KindInt:
		r, err := a.OpInt(op, b)
		if err != nil {
			return err
		}
		return dest.AssignInt(r)
	case values.KindFloat:
		r, err := a.OpFloat(op, b)
		if err != nil {
			return err
		}
		return dest.AssignFloat(r)
	case values.KindString:
		r, err := a.OpStr(op, b)
		if err != nil {
			return err
		}
		return dest.AssignStr(r)
	default:
		return fmt.Errorf("unsupported arithmetic destination type %s", dest.Kind)
	}
}

// execArithImm applies ADDI/SUBI/MULI/DIVI in place on data[a] against the
// literal integer operand b.
func (ec *executionContext) execArithImm(f *frame, inst opcodes.Instruction) error {
	dest := f.data[inst.A]
	lit := values.NewInt(int64(inst.B))
	op := arithOpSymbol(inst.Op)
	switch dest.Kind {
	case values.KindInt:
		r, err := dest.OpInt(op, lit)
		if err != nil {
			return err
		}
		return dest.AssignInt(r)
	case values.KindFloat:
		r, err := dest.OpFloat(op, lit)
		if err != nil {
			return err
		}
		return dest.AssignFloat(r)
	default:
		return fmt.Errorf("unsupported in-place destination type %s", dest.Kind)
	}
}

func compareOpSymbol(op opcodes.Opcode) string {
	switch op {
	case opcodes.EQ:
		return "=="
	case opcodes.NEQ:
		return "!="
	case opcodes.GT:
		return ">"
	case opcodes.LT:
		return "<"
	case opcodes.GTE:
		return ">="
	default:
		return "<="
	}
}

func (ec *executionContext) execCompare(f *frame, inst opcodes.Instruction) error {
	result, err := f.data[inst.A].OpBool(compareOpSymbol(inst.Op), f.data[inst.B])
	if err != nil {
		return err
	}
	return f.data[inst.C].AssignBool(result)
}

func (ec *executionContext) stream(idx int) (io.Writer, error) {
	switch idx {
	case streamStdout:
		return ec.vm.stdout(), nil
	case streamStderr:
		return ec.vm.stderr(), nil
	default:
		return nil, fmt.Errorf("invalid or unwritable stream index %d", idx)
	}
}

// execCall dispatches CALL to either a user function or a struct-def
// constructor: the callee name is read from data[a], the positional
// argument list from data[b].
func (ec *executionContext) execCall(f *frame, inst opcodes.Instruction) error {
	name, ok := f.data[inst.A].Data.(string)
	if !ok {
		return fmt.Errorf("CALL target register does not hold a string")
	}
	args, err := f.data[inst.B].AsList()
	if err != nil {
		return err
	}

	if fn, ok := ec.module.GetFunction(name); ok {
		if len(args.Items) != len(fn.Args) {
			return fmt.Errorf("function %q expects %d arguments, got %d", name, len(fn.Args), len(args.Items))
		}
		f.callerRetSlot = inst.C
		callee := newFrame(fn)
		for i, arg := range args.Items {
			callee.data[i] = arg.Copy()
		}
		ec.pushFrame(callee)
		return nil
	}

	if def, ok := ec.module.GetStructDef(name); ok {
		if len(args.Items) != len(def.Fields) {
			return fmt.Errorf("struct %q expects %d fields, got %d", name, len(def.Fields), len(args.Items))
		}
		dest := f.data[inst.C]
		if dest.Kind != values.KindStructInstance {
			return fmt.Errorf("internal error: destination for %q is not a struct-instance", name)
		}
		inst2 := dest.Data.(*values.StructInstance)
		if inst2.Def != def {
			return fmt.Errorf("internal error: destination struct-instance is not of type %q", name)
		}
		for i, arg := range args.Items {
			if inst2.Fields[i].Kind == values.KindNull {
				// Struct-typed field: no scalar default exists, bind wholesale.
				inst2.Fields[i] = arg.Copy()
				continue
			}
			if err := inst2.Fields[i].Assign(arg); err != nil {
				return fmt.Errorf("field %q of struct %q: %w", def.Fields[i].Name, name, err)
			}
		}
		return nil
	}

	return fmt.Errorf("unknown callee %q", name)
}

// doReturn pops the current frame, writing its return value into the new
// top frame's designated register. When the call stack empties, the
// observer (if any) is invoked and the VM terminates with status 0.
func (ec *executionContext) doReturn(f *frame, argIdx int) error {
	var retVal *values.Value
	if argIdx == opcodes.Unused {
		retVal = values.NewNull()
	} else {
		retVal = f.data[argIdx]
	}

	ec.popFrame()

	if len(ec.frames) == 0 {
		if ec.vm.Observer != nil {
			ec.vm.Observer(retVal)
		}
		ec.finished = true
		ec.exitCode = 0
		return nil
	}

	caller := ec.currentFrame()
	if caller.callerRetSlot == -1 {
		return nil
	}
	if err := caller.data[caller.callerRetSlot].Assign(retVal); err != nil {
		return fmt.Errorf("assigning return value: %w", err)
	}
	return nil
}

// decorate wraps a runtime failure with the current instruction's source
// annotation, the opcode and its operand registers, and the call stack's
// function names.
func (ec *executionContext) decorate(f *frame, inst opcodes.Instruction, err error) error {
	var pos ast.Position
	filename := f.fn.Name
	if f.ip >= 0 && f.ip < len(f.fn.Annotations) {
		ann := f.fn.Annotations[f.ip]
		pos = ast.Position{Line: ann.Line, Column: ann.Column}
		filename = ann.Filename
	}
	rerr := errors.NewRuntimeError(filename, pos, err.Error())
	rerr.WithFrame(inst.Op.String(), []int{inst.A, inst.B, inst.C}, ec.frameNames())
	return rerr
}
