// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vm implements the interpreter (spec §4.3) and the builtin
// runtime library (spec §4.4): the single-dispatch execution engine shared
// between release and debug modes, and the wide operations (strings,
// 64-bit-on-32-bit emulation, refcounting, object construction, bit
// intrinsics, conversions) that don't fit the 256-opcode budget.
//
// The dispatch structure directly generalizes the teacher's
// (go-interpreter/wagon) exec.VM.execCode: a single function switching on
// the low byte of the current instruction. Unlike wagon there is no
// per-instance function table behind the switch: an opcode the switch does
// not handle ends the run with an abi.Exception result.
package vm

import (
	"fmt"
	"math"

	"github.com/emberscript/corevm/abi"
	"github.com/emberscript/corevm/object"
	"github.com/emberscript/corevm/opcode"
	"github.com/emberscript/corevm/program"
	"github.com/emberscript/corevm/stack"
	"github.com/emberscript/corevm/vm/internal/compile"
)

// Flags select which execution mode a Vm was built for (spec §4.3).
type Flags struct {
	// Debug enables null-pointer checks on indirect load/store and the
	// per-instruction breakExecution poll; divide/modulo-by-zero traps
	// return abi.Exception instead of asserting.
	Debug bool
	// NoBreak, when combined with Debug, keeps the null-pointer checks
	// but skips the per-instruction breakExecution poll — the "debug,
	// no_break" variant named in spec §2 row 4.
	NoBreak bool
}

// Vm owns the builtin runtime library for one CompiledProgram. Call frames
// live on the Stack and in the owning ScriptContext, but the Vm's string,
// array and vtable tables are mutated by builtins without locking, so a Vm
// is not safe for use by several concurrently-running contexts; each
// context owns its own Vm, and contexts share only the program.
type Vm struct {
	Program *program.CompiledProgram
	flags   Flags

	// builtins is the expanded builtin-call index space (spec §4.1 "the
	// builtin call opcode"), indexed by opcode.Builtin.
	builtins [numBuiltins]builtinFunc

	// dealloc is invoked by the refcount builtins when an object's
	// weakRefCount transitions to zero.
	dealloc object.Deallocator

	// onNewObject backs ADD_STRONG_AFTER_NEW's native-mirror-setup hook.
	onNewObject func(*object.Header)

	// stateDelegateSlot backs SET_STATE_LABEL when no instance member
	// named current_state_delegate applies.
	stateDelegateSlot *object.Delegate

	// vtables caches one VTable per class type index, lazily built by NEW
	// and NEW_DYNAMIC (vm/builtin_new.go), so classDescFor can recover the
	// owning DataType from a header's ScriptVtbl.EnginePtr without storing
	// a raw *Vm pointer in script-reachable memory.
	vtables map[int]*object.VTable

	// strings backs the string-value builtin family (vm/builtin_string.go):
	// each live string's {ptr} stack word is a key into this table rather
	// than a raw address, since a Go byte slice has no stable address the
	// way an *object.Header allocation does.
	strings   map[uint64]*stringBuf
	stringSeq uint64

	// arrays backs the dynamic-array builtin family (vm/builtin_array.go),
	// handle-addressed for the same reason strings are.
	arrays   map[uint64]*dynArray
	arraySeq uint64

	// jit is nil until EnableJIT is called. Run and Step never consult it:
	// a compiled run executes only through an explicit RunNative call, so
	// an un-JIT'd Vm pays no per-instruction cost for the feature.
	jit *compile.JIT
}

type builtinFunc func(vm *Vm, s *stack.Stack) error

const numBuiltins = int(opcode.BuiltinProfileProbe) + 1

// New returns a Vm bound to prog under the given execution flags, with the
// full builtin runtime library registered.
func New(prog *program.CompiledProgram, flags Flags) *Vm {
	vm := &Vm{Program: prog, flags: flags}
	vm.registerBuiltins()
	return vm
}

// SetDeallocator installs the callback invoked when an object's
// weakRefCount reaches zero.
func (vm *Vm) SetDeallocator(d object.Deallocator) { vm.dealloc = d }

// SetOnNewObject installs the native-mirror-setup callback used by
// ADD_STRONG_AFTER_NEW.
func (vm *Vm) SetOnNewObject(f func(*object.Header)) { vm.onNewObject = f }

// Flags returns the execution mode this Vm was constructed with.
func (vm *Vm) Flags() Flags { return vm.flags }

// CallBuiltin invokes the builtin at idx directly against s, bypassing the
// BCALL dispatch a running interpreter loop would normally go through. This
// is how the context package's externally-callable dispatchers (spec §4.7
// ArrayInterface) reach the same runtime library the bytecode does, without
// requiring a full CALL/RET-framed script invocation for a single native
// operation.
func (vm *Vm) CallBuiltin(idx opcode.Builtin, s *stack.Stack) error {
	if int(idx) >= numBuiltins || vm.builtins[idx] == nil {
		return fmt.Errorf("callbuiltin: unregistered builtin index %d", idx)
	}
	return vm.builtins[idx](vm, s)
}

// trapDivideByZero formats the spec-mandated message for an arithmetic trap
// (spec §4.3 "Integer divide/modulo by zero returns EXCEPTION with message
// 'divide by zero'").
func trapDivideByZero() error { return fmt.Errorf("divide by zero") }

func trapArrayBounds() error { return fmt.Errorf("array index out of bounds") }

// trapNullPtr formats the spec-mandated message for the debug-mode
// null-pointer check on indirect load/store (spec §4.3 "every indirect
// load/store with a pointer operand checks the pointer for null and
// returns EXCEPTION on failure").
func trapNullPtr() error { return fmt.Errorf("null pointer") }

// wellDefinedFloatToUnsigned implements the spec's WellDefinedFloatToUnsigned
// helper (§4.3): out-of-range floats must produce a well-defined unsigned
// result rather than the platform-undefined behavior of a raw CVTTSD2SI.
func wellDefinedFloatToUnsigned(f float64) uint64 {
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f >= math.MaxUint64:
		return math.MaxUint64
	default:
		return uint64(f)
	}
}
