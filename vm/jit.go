// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"github.com/emberscript/corevm/program"
	"github.com/emberscript/corevm/stack"
	"github.com/emberscript/corevm/vm/internal/compile"
)

// EnableJIT scans every function in the program for native-eligible
// instruction runs and compiles them. A Vm with no JIT enabled (the zero
// value of vm.jit) falls back to pure interpretation for every PC — the
// dual interpreter/JIT model is additive, not required (spec §4.6, §2 row:
// "release, jit").
func (vm *Vm) EnableJIT() (compiledRuns int, err error) {
	backend := &compile.AMD64Backend{}
	vm.jit = &compile.JIT{
		Backend:   backend,
		Allocator: &compile.MMapAllocator{},
	}

	for _, fn := range vm.Program.Functions {
		end := int64(len(vm.Program.Instructions))
		if next, ok := nextFunctionStart(vm.Program.Functions, fn.EntryPC); ok {
			end = next
		}
		compiled, cerr := vm.jit.CompileFunc(vm.Program.Instructions, fn.EntryPC, end)
		if cerr != nil {
			return compiledRuns, cerr
		}
		compiledRuns += len(compiled)
	}
	return compiledRuns, nil
}

// CloseJIT releases every executable page EnableJIT mapped.
func (vm *Vm) CloseJIT() error {
	if vm.jit == nil {
		return nil
	}
	return vm.jit.Close()
}

// nextFunctionStart returns the entry PC of whichever function begins
// soonest strictly after pc, bounding the instruction range EnableJIT hands
// the scanner for the function starting at pc.
func nextFunctionStart(fns []program.Function, pc int64) (int64, bool) {
	best := int64(-1)
	for _, fn := range fns {
		if fn.EntryPC > pc && (best == -1 || fn.EntryPC < best) {
			best = fn.EntryPC
		}
	}
	return best, best != -1
}

// HasNative reports whether the given PC begins a compiled native run.
func (vm *Vm) HasNative(pc int64) bool {
	if vm.jit == nil {
		return false
	}
	_, ok := vm.jit.Lookup(pc)
	return ok
}

// RunNative invokes the compiled native code starting at pc directly
// against s's operand stack, bypassing the interpreter loop for that run
// (spec §4.6). Callers must only do this at a PC HasNative reports true
// for; RunNative itself does not know where the compiled run ends, so the
// caller resumes interpretation from wherever its own PC tracking expects
// next (the scanner never selects a run ending mid-expression).
func (vm *Vm) RunNative(s *stack.Stack, pc int64) bool {
	unit, ok := vm.jit.Lookup(pc)
	if !ok {
		return false
	}
	unit.Invoke(s.SlotsHeader())
	return true
}
