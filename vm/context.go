package vm

import (
	"github.com/juddc/Dipper/registry"
	"github.com/juddc/Dipper/values"
)

// maxCallDepth is the call-stack safety bound: a call stack that reaches
// this depth is fatal.
const maxCallDepth = 500000

// frame is one activation record: the function being executed, its
// deep-copied register file, the instruction pointer, and the caller's
// destination slot for this call's return value.
type frame struct {
	fn            *registry.Function
	data          []*values.Value
	ip            int
	callerRetSlot int
}

func newFrame(fn *registry.Function) *frame {
	data := make([]*values.Value, len(fn.DataTemplate))
	for i, v := range fn.DataTemplate {
		data[i] = v.Copy()
	}
	return &frame{fn: fn, data: data, ip: 0, callerRetSlot: -1}
}

// executionContext is the live call stack for one VM run, plus the
// terminal-state flags RET (stack empties) and EXIT (explicit status) set.
type executionContext struct {
	module   *registry.Namespace
	vm       *VirtualMachine
	frames   []*frame
	finished bool
	exitCode int
}

func newExecutionContext(module *registry.Namespace, vm *VirtualMachine) *executionContext {
	return &executionContext{module: module, vm: vm}
}

func (ec *executionContext) pushFrame(f *frame) {
	ec.frames = append(ec.frames, f)
}

func (ec *executionContext) popFrame() *frame {
	f := ec.frames[len(ec.frames)-1]
	ec.frames = ec.frames[:len(ec.frames)-1]
	return f
}

func (ec *executionContext) currentFrame() *frame {
	if len(ec.frames) == 0 {
		return nil
	}
	return ec.frames[len(ec.frames)-1]
}

// frameNames returns the call stack's function names, innermost first, for
// diagnostics.
func (ec *executionContext) frameNames() []string {
	names := make([]string, len(ec.frames))
	for i := len(ec.frames) - 1; i >= 0; i-- {
		names[len(ec.frames)-1-i] = ec.frames[i].fn.Name
	}
	return names
}
