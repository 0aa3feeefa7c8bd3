// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package context implements ScriptContext (spec §4.7): the externally
// visible call-into-script surface built atop one Vm and its own private
// Stack, plus the recursive-mutex discipline that lets native code call
// back into the same context without deadlocking itself.
//
// The teacher (go-interpreter/wagon) has no equivalent of a context object
// distinct from its exec.VM — wagon's VM.ExecCode doubles as both the
// engine and the single call-in surface. ScriptContext generalizes that
// entry point into something a host can hold many of over one shared,
// read-only CompiledProgram. Each context needs its own Vm: a Vm's string,
// array and vtable tables are not safe for concurrent use.
package context

import (
	"fmt"
	"sync"

	"github.com/emberscript/corevm/abi"
	"github.com/emberscript/corevm/object"
	"github.com/emberscript/corevm/opcode"
	"github.com/emberscript/corevm/program"
	"github.com/emberscript/corevm/stack"
	"github.com/emberscript/corevm/vm"
)

// sentinelReturnPC mirrors the interpreter's own top-level-call sentinel
// (vm/interp.go's unexported sentinelReturnPC == int64(-1)): the all-ones
// bit pattern reads back the same way through the RET opcode's
// int64(s.GetPtr(0)) comparison, so this package can reproduce the
// convention without vm exporting the constant itself.
const sentinelReturnPC = ^stack.Word(0)

// ScriptContext owns one Stack and the call-into-script surface spec §4.7
// describes: Call/CallMethod/CallDelegate variants, object construction,
// constructor/destructor driving, break/resume, and the array-interface
// dispatcher native code uses to operate on script-visible arrays.
type ScriptContext struct {
	name  string
	vm    *vm.Vm
	stack *stack.Stack

	mu sync.Mutex

	lastResult abi.ExecResult
	broken     bool
}

// owner adapts ScriptContext to stack.Owner without exposing the whole
// context type to the stack package.
type owner struct{ name string }

func (o owner) ContextName() string { return o.name }

// New returns a ScriptContext bound to v with a freshly allocated Stack of
// the given depth (spec §4.2: "reserved size is a per-call compile-time
// constant").
func New(name string, v *vm.Vm, depth int) *ScriptContext {
	return &ScriptContext{
		name:  name,
		vm:    v,
		stack: stack.New(owner{name}, depth),
	}
}

// Name returns the context's diagnostic name.
func (c *ScriptContext) Name() string { return c.name }

// Vm returns the underlying Vm.
func (c *ScriptContext) Vm() *vm.Vm { return c.vm }

// Stack returns the context's private operand stack, exposed for the
// debug package's stack-unwinding and the native-call ABI.
func (c *ScriptContext) Stack() *stack.Stack { return c.stack }

// LastResult returns the ExecResult of the most recent Call/Resume.
func (c *ScriptContext) LastResult() abi.ExecResult { return c.lastResult }

// lock acquires the context's mutex unless the calling goroutine is
// already inside a call this context dispatched — detected via the
// stack's existing re-entrancy counter (spec §5: "a native function may
// call back into its own context") rather than tracking goroutine
// identity, since that counter is already threaded through every native
// call boundary for the debugger's benefit. The returned func must always
// be deferred.
func (c *ScriptContext) lock() func() {
	if c.stack.Nesting() > 0 {
		return func() {}
	}
	c.mu.Lock()
	return c.mu.Unlock
}

// runAt pushes the top-level sentinel return address and runs from pc,
// recording the result for Resume/InBreakMode.
func (c *ScriptContext) runAt(pc int64) abi.ExecResult {
	c.stack.PushPtr(sentinelReturnPC)
	res := c.vm.Run(c.stack, pc)
	c.recordResult(res)
	return res
}

func (c *ScriptContext) recordResult(res abi.ExecResult) {
	c.lastResult = res
	c.broken = res.Code == abi.Break || res.Code == abi.Breakpoint
}

// Call resolves name in the program's function index space and invokes it
// (spec §4.7 "Call(name)"). Arguments, if any, must already be pushed by
// the caller before Call is invoked.
func (c *ScriptContext) Call(name string) abi.ExecResult {
	unlock := c.lock()
	defer unlock()

	fn, ok := c.vm.Program.FunctionByName(name)
	if !ok {
		return abi.ExecResult{Code: abi.FuncNotFound}
	}
	return c.runAt(fn.EntryPC)
}

// CallOffset invokes the function starting at the raw instruction offset
// pc (spec §4.7 "CallOffset(pc)"), bypassing name resolution.
func (c *ScriptContext) CallOffset(pc int64) abi.ExecResult {
	unlock := c.lock()
	defer unlock()
	return c.runAt(pc)
}

// CallPointer invokes the function whose code pointer is raw — in this
// pure-Go rebuild, a PC value stored directly rather than a native machine
// address, the same convention builtinNewDynamic and object.VTable.Methods
// already use (spec §4.7 "CallPointer(raw)").
func (c *ScriptContext) CallPointer(raw stack.Word) abi.ExecResult {
	if raw == 0 {
		return abi.ExecResult{Code: abi.FuncNotFound}
	}
	unlock := c.lock()
	defer unlock()
	return c.runAt(int64(raw))
}

// resolveMethodPC decodes a DataType.MethodIndex-style signed index
// against instance's vtable: positive is a direct PC, negative is a
// negated vtable slot resolved through the instance's ScriptVtbl.Methods,
// zero is absent (spec §3 "Methods maps a method name to a signed index").
func resolveMethodPC(h *object.Header, signedIdx int64) (int64, abi.Result) {
	switch {
	case signedIdx > 0:
		return signedIdx, abi.OK
	case signedIdx < 0:
		if h == nil || h.ScriptVtbl == nil {
			return 0, abi.NullInstance
		}
		slot := int(-signedIdx - 1)
		if slot < 0 || slot >= len(h.ScriptVtbl.Methods) {
			return 0, abi.MethodNotFound
		}
		return int64(h.ScriptVtbl.Methods[slot]), abi.OK
	default:
		return 0, abi.MethodNotFound
	}
}

// CallMethod looks up name against instance's class descriptor and
// invokes it through CallMethodByIndex, which pushes instance as the
// method's implicit first argument; the this register itself is not set
// (spec §4.7 "CallMethod(name, instance)").
func (c *ScriptContext) CallMethod(name string, instance stack.Word) abi.ExecResult {
	if instance == 0 {
		return abi.ExecResult{Code: abi.NullInstance}
	}
	h := headerFromWord(instance)
	if h == nil || h.ScriptVtbl == nil {
		return abi.ExecResult{Code: abi.NullInstance}
	}
	dt, ok := c.dataTypeFor(h)
	if !ok {
		return abi.ExecResult{Code: abi.MethodNotFound}
	}
	signedIdx, ok := dt.MethodIndex(name)
	if !ok {
		return abi.ExecResult{Code: abi.MethodNotFound}
	}
	return c.CallMethodByIndex(signedIdx, instance)
}

// CallMethodByIndex invokes the method identified by signedIdx against
// instance without a name lookup (spec §4.7
// "CallMethodByIndex(signedIdx, instance)"), using the same positive-PC /
// negative-vtable-slot decoding CallMethod uses internally. instance is
// pushed as the method's implicit first argument, the same convention an
// ordinary CALL site uses for any argument (spec §4.2) — the method's own
// prologue is expected to consume it with LOAD_THIS_IMM, the same way
// script code installs the this register explicitly rather than the call
// mechanism doing so implicitly.
func (c *ScriptContext) CallMethodByIndex(signedIdx int64, instance stack.Word) abi.ExecResult {
	h := headerFromWord(instance)
	pc, code := resolveMethodPC(h, signedIdx)
	if code != abi.OK {
		return abi.ExecResult{Code: code}
	}

	unlock := c.lock()
	defer unlock()

	c.stack.PushPtr(instance)
	return c.runAt(pc)
}

// CallDelegate invokes a bound {instance, target} callable, resolving a
// vtable-indexed target through the instance's own ScriptVtbl (spec §4.7
// "CallDelegate(dg)"). As with CallMethodByIndex, the instance is pushed
// as the callee's implicit first argument.
func (c *ScriptContext) CallDelegate(dg object.Delegate) abi.ExecResult {
	instance := stack.Word(dg.Instance)
	var vt *object.VTable
	if !dg.IsStructInstance() {
		if h := headerFromWord(instance); h != nil {
			vt = h.ScriptVtbl
		}
	}
	raw := dg.Resolve(vt)
	if raw == 0 {
		return abi.ExecResult{Code: abi.MethodNotFound}
	}

	unlock := c.lock()
	defer unlock()

	c.stack.PushPtr(instance)
	return c.runAt(int64(raw))
}

// dataTypeFor resolves a header back to its owning DataType via the
// vtable's engine-back-pointer slot, which vm.vtableFor stores as a
// Program.Types index (vm/builtin_new.go).
func (c *ScriptContext) dataTypeFor(h *object.Header) (*program.DataType, bool) {
	if h == nil || h.ScriptVtbl == nil {
		return nil, false
	}
	idx := int(h.ScriptVtbl.EnginePtr)
	types := c.vm.Program.Types
	if idx < 0 || idx >= len(types) {
		return nil, false
	}
	return types[idx], true
}

// NewObject allocates an instance of the named class, runs its
// constructor if one exists, and bumps its strong refcount to one for the
// caller — calling the NEW_DYNAMIC builtin, running the ctor at the PC it
// returned (with the object pushed as its argument), then
// ADD_STRONG_AFTER_NEW (spec §4.7
// "NewObject(name)").
func (c *ScriptContext) NewObject(name string) (stack.Word, abi.ExecResult) {
	idx, ok := c.vm.Program.Pool.NameIndex(name)
	if !ok {
		return 0, abi.ExecResult{Code: abi.FuncNotFound, Message: fmt.Sprintf("newobject: unknown name %q", name)}
	}

	unlock := c.lock()
	defer unlock()

	c.stack.PushName(idx)
	if err := c.vm.CallBuiltin(opcode.BuiltinNewDynamic, c.stack); err != nil {
		c.stack.Pop(1)
		return 0, abi.ExecResult{Code: abi.Exception, Message: err.Error()}
	}

	ctorPC := int64(c.stack.GetPtr(0))
	objPtr := c.stack.GetPtr(1)
	c.stack.Pop(3)

	if ctorPC != -1 {
		c.stack.PushPtr(objPtr)
		res := c.runAt(ctorPC)
		if res.Code != abi.OK {
			return objPtr, res
		}
	}

	c.stack.PushPtr(objPtr)
	if err := c.vm.CallBuiltin(opcode.BuiltinAddStrongAfterNew, c.stack); err != nil {
		c.stack.Pop(1)
		return objPtr, abi.ExecResult{Code: abi.Exception, Message: err.Error()}
	}
	c.stack.Pop(1)

	return objPtr, abi.ExecResult{Code: abi.OK}
}

// ConstructObject runs the named class's constructor directly against
// instance, for host-owned memory a script class is overlaid onto rather
// than memory NEW allocated (spec §4.7 "ConstructObject(name, instance)").
// It is a no-op, returning abi.OK, when the class has no constructor.
func (c *ScriptContext) ConstructObject(name string, instance stack.Word) abi.ExecResult {
	dt, ok := c.classByName(name)
	if !ok {
		return abi.ExecResult{Code: abi.FuncNotFound, Message: fmt.Sprintf("constructobject: unknown class %q", name)}
	}
	if dt.CtorPC == -1 {
		return abi.ExecResult{Code: abi.OK}
	}

	unlock := c.lock()
	defer unlock()

	c.stack.PushPtr(instance)
	return c.runAt(dt.CtorPC)
}

// DestructObject runs the named class's destructor directly against
// instance (spec §4.7 "DestructObject(name, instance)"). It is a no-op,
// returning abi.OK, when the class has no destructor.
func (c *ScriptContext) DestructObject(name string, instance stack.Word) abi.ExecResult {
	dt, ok := c.classByName(name)
	if !ok {
		return abi.ExecResult{Code: abi.FuncNotFound, Message: fmt.Sprintf("destructobject: unknown class %q", name)}
	}
	if dt.DtorPC == -1 {
		return abi.ExecResult{Code: abi.OK}
	}

	unlock := c.lock()
	defer unlock()

	c.stack.PushPtr(instance)
	return c.runAt(dt.DtorPC)
}

// classByName resolves a class name to its DataType via ClassTypeHash,
// the same lookup vm/builtin_new.go's builtinNew/builtinNewDynamic use.
func (c *ScriptContext) classByName(name string) (*program.DataType, bool) {
	idx, ok := c.vm.Program.ClassTypeHash[name]
	if !ok {
		return nil, false
	}
	return c.vm.Program.Types[idx], true
}

// RunConstructors invokes the program's global-constructor entry point,
// if one was linked (spec §4.7 "RunConstructors()"). It is a no-op,
// returning abi.OK, when the program has no global constructors.
func (c *ScriptContext) RunConstructors() abi.ExecResult {
	if c.vm.Program.GlobalConstIndex < 0 {
		return abi.ExecResult{Code: abi.OK}
	}
	unlock := c.lock()
	defer unlock()
	return c.runAt(c.vm.Program.GlobalConstIndex)
}

// RunDestructors invokes the program's global-destructor entry point, if
// one was linked (spec §4.7 "RunDestructors()"). It is a no-op, returning
// abi.OK, when the program has no global destructors.
func (c *ScriptContext) RunDestructors() abi.ExecResult {
	if c.vm.Program.GlobalDestIndex < 0 {
		return abi.ExecResult{Code: abi.OK}
	}
	unlock := c.lock()
	defer unlock()
	return c.runAt(c.vm.Program.GlobalDestIndex)
}

// Break requests that the next polled instruction in a debug-mode run
// suspend with abi.Break (spec §4.7 "Break()"); it has no effect on a Vm
// built without Flags.Debug, since only a debug build polls.
func (c *ScriptContext) Break() { c.stack.RequestBreak() }

// InBreakMode reports whether the context's last Run ended on
// abi.Break or abi.Breakpoint and has not yet been resumed.
func (c *ScriptContext) InBreakMode() bool { return c.broken }

// Resume continues execution from the PC recorded by the suspending
// Break/Breakpoint result (spec §4.7 "Resume()"). Calling Resume when the
// context is not in break mode returns the last recorded result unchanged.
func (c *ScriptContext) Resume() abi.ExecResult {
	unlock := c.lock()
	defer unlock()

	if !c.broken {
		return c.lastResult
	}
	res := c.vm.Run(c.stack, c.stack.PC())
	c.recordResult(res)
	return res
}
