// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package debug implements the observability layer spec §4.8 describes:
// breakpoint patch-in-place, a per-context stepping state machine, stack
// unwinding, live local-variable resolution, this-pointer reconstruction,
// and the line-oriented debug wire protocol codec of spec §6.
//
// wagon has no debugger to generalize from, so everything here is built
// directly from the spec's description; the one piece with a direct
// teacher analogue is the in-place opcode patch, which mirrors
// ops.WagonNativeExec's self-modifying-bytecode technique (tryNativeCompile
// overwrites fn.code[lower] and saves nothing since that patch is
// one-directional) but made reversible via program.PatchOpcode/RestoreOpcode.
package debug

import (
	"sync"

	"github.com/emberscript/corevm/abi"
	"github.com/emberscript/corevm/opcode"
	"github.com/emberscript/corevm/program"
	"github.com/emberscript/corevm/stack"
	"github.com/emberscript/corevm/vm"
)

// Breakpoint records one {pc, file, enabled} entry (spec §4.8).
type Breakpoint struct {
	File    string
	Line    int
	PC      int64
	Enabled bool
}

// BreakpointTable owns the free-list of breakpoints for one CompiledProgram
// and patches/restores OPC_BREAK bytes through it. A program's
// savedOpcodes array is itself per-program (program.PatchOpcode), so a
// BreakpointTable only needs to track which PCs it personally armed.
type BreakpointTable struct {
	prog *program.CompiledProgram

	mu   sync.Mutex
	byPC map[int64]*Breakpoint
}

// NewBreakpointTable returns a table bound to prog.
func NewBreakpointTable(prog *program.CompiledProgram) *BreakpointTable {
	return &BreakpointTable{prog: prog, byPC: make(map[int64]*Breakpoint)}
}

// SetBreakpoint records {pc, file, enabled} and patches or restores the
// instruction at pc accordingly (spec §4.8). Calling it again for a pc
// already tracked updates the existing entry in place.
func (t *BreakpointTable) SetBreakpoint(file string, pc int64, enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bp, ok := t.byPC[pc]
	if !ok {
		bp = &Breakpoint{File: file, PC: pc}
		if ln, found := t.prog.LineForPC(pc); found {
			bp.Line = ln.Line
		}
		t.byPC[pc] = bp
	}
	if bp.Enabled == enabled {
		return
	}
	bp.Enabled = enabled
	if enabled {
		t.prog.PatchOpcode(pc, byte(opcode.OpcBreak))
	} else {
		t.prog.RestoreOpcode(pc)
	}
}

// ToggleBreakpoint flips the enabled state of every breakpoint already
// tracked at pc, or arms a new one if none exists yet — the behavior
// toggle_breakpoint (spec §6) needs once PCsForLine has resolved a
// file/line pair to PCs.
func (t *BreakpointTable) ToggleBreakpoint(file string, pc int64) {
	t.mu.Lock()
	bp, ok := t.byPC[pc]
	t.mu.Unlock()
	t.SetBreakpoint(file, pc, !(ok && bp.Enabled))
}

// PCsForLine scans the program's sorted code-to-line map for every PC
// attributed to file:line, since a single source line may lower to more
// than one PC (e.g. a loop condition re-entered from two branches).
func (t *BreakpointTable) PCsForLine(file string, line int) []int64 {
	var pcs []int64
	for _, e := range t.prog.CodeToLine {
		if e.File == file && e.Line == line {
			pcs = append(pcs, e.PC)
		}
	}
	return pcs
}

// DeleteAll restores every enabled breakpoint's original opcode and clears
// the table (spec §6 "delete_all_breakpoints").
func (t *BreakpointTable) DeleteAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for pc, bp := range t.byPC {
		if bp.Enabled {
			t.prog.RestoreOpcode(pc)
		}
	}
	t.byPC = make(map[int64]*Breakpoint)
}

// At returns the breakpoint tracked at pc, if any.
func (t *BreakpointTable) At(pc int64) (Breakpoint, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bp, ok := t.byPC[pc]
	if !ok {
		return Breakpoint{}, false
	}
	return *bp, true
}

// All returns a snapshot of every tracked breakpoint, in no particular
// order.
func (t *BreakpointTable) All() []Breakpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Breakpoint, 0, len(t.byPC))
	for _, bp := range t.byPC {
		out = append(out, *bp)
	}
	return out
}

// StepOverBreakpoint executes exactly the one (otherwise-patched)
// instruction at pc and re-arms the breakpoint afterward, so a debugger can
// let execution pass a stop it already reported without ever leaving the
// patch byte live for more than a single instruction (spec §4.8
// "[breakpoints] are re-applied transparently when execution stops on one
// so stepping continues cleanly"). If pc is not currently an enabled
// breakpoint, it Steps the instruction without touching the program.
func (t *BreakpointTable) StepOverBreakpoint(v *vm.Vm, s *stack.Stack, pc int64) (nextPC int64, res abi.ExecResult, ok bool) {
	t.mu.Lock()
	bp, armed := t.byPC[pc]
	wasEnabled := armed && bp.Enabled
	t.mu.Unlock()

	if wasEnabled {
		t.prog.RestoreOpcode(pc)
	}
	nextPC, res, ok = v.Step(s, pc)
	if wasEnabled {
		t.prog.PatchOpcode(pc, byte(opcode.OpcBreak))
	}
	return nextPC, res, ok
}
