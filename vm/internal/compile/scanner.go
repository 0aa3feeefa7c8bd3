// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package compile is the x86-64 JIT backend (spec §4.6): a two-pass
// bytecode-to-native translator sharing the interpreter's stack layout and
// ABI. It generalizes the teacher's (go-interpreter/wagon)
// exec/internal/compile package — itself scoped to a handful of WASM
// opcodes as a proof of concept — from WASM's two-slice-header ABI
// (stack, locals) to this core's single *stack.Stack ABI (spec §6
// native-call contract: "&Stack-passing").
package compile

import "github.com/emberscript/corevm/opcode"

// InstructionRun describes one [Start,End) word-index span of a
// CompiledProgram's Instructions array, inclusive of supported-opcode
// metrics gathered while scanning (spec §4.6 "two-pass... scanner selects
// runs of JIT-eligible opcodes").
type InstructionRun struct {
	Start, End int64 // PC bounds, End exclusive

	Metrics Metrics
}

// Metrics mirrors the teacher's scanner.Metrics, generalized from a
// WASM-opcode vocabulary to this core's own.
type Metrics struct {
	StackReads, StackWrites uint
	IntegerOps              int
	AllOps                  int
}

// Scanner selects runs of consecutive, JIT-supported opcodes a Backend can
// translate to native code, skipping any PC that a branch elsewhere in the
// function can jump into — a conforming native translation unit must be
// enterable only at its first instruction (spec §4.6: "native code begins
// execution only at a selected run's first instruction; any indirect
// branch landing elsewhere in the same run forces a return to the
// interpreter").
type Scanner struct {
	Supported map[opcode.Op]bool
}

// minRunLength is the shortest sequence worth handing to the backend — one
// or two instructions have too much call/return overhead to pay for
// themselves (same heuristic as the teacher's scanner.ScanFunc: "emit if
// AllOps > 2").
const minRunLength = 3

// ScanFunc scans the half-open PC range [from,to) of prog for runs of
// supported opcodes at least minRunLength long, splitting at any PC an
// inbound branch can target.
func (s *Scanner) ScanFunc(instructions []uint32, from, to int64, inboundTargets map[int64]bool) []InstructionRun {
	var runs []InstructionRun
	cur := InstructionRun{}

	flush := func() {
		if cur.Metrics.AllOps > minRunLength-1 {
			runs = append(runs, cur)
		}
		cur = InstructionRun{}
	}

	for pc := from; pc < to; pc++ {
		op := opcode.Instruction(instructions[pc]).Op()
		isTarget := pc > from && inboundTargets[pc]

		if !s.Supported[op] || isTarget {
			flush()
			continue
		}

		if cur.Metrics.AllOps == 0 {
			cur.Start = pc
		}
		cur.End = pc + 1

		switch op {
		case opcode.PushIConst:
			cur.Metrics.IntegerOps++
			cur.Metrics.StackWrites++
		case opcode.IAddIConst, opcode.ISubIConst:
			cur.Metrics.IntegerOps++
			cur.Metrics.StackReads++
			cur.Metrics.StackWrites++
		case opcode.IAdd, opcode.ISub, opcode.IMul, opcode.IAnd, opcode.IOr, opcode.IXor,
			opcode.IShl, opcode.IShr, opcode.IShrU,
			opcode.ICmpEQ, opcode.ICmpNE, opcode.ICmpLT, opcode.ICmpLE, opcode.ICmpGT, opcode.ICmpGE:
			cur.Metrics.IntegerOps++
			cur.Metrics.StackReads += 2
			cur.Metrics.StackWrites++
		}
		cur.Metrics.AllOps++
	}
	flush()

	return runs
}

// InboundTargets computes the set of PCs that some branch or call
// instruction inside [from,to) can jump to — the scanner must not let a
// native run straddle one of these, since the interpreter may resume
// execution there directly (spec §4.6, §4.8 breakpoint re-entry).
func InboundTargets(instructions []uint32, from, to int64) map[int64]bool {
	targets := make(map[int64]bool)
	for pc := from; pc < to; pc++ {
		inst := opcode.Instruction(instructions[pc])
		switch inst.Op() {
		case opcode.Br,
			opcode.IBZP, opcode.IBNZP, opcode.IBZ, opcode.IBNZ,
			opcode.IBEQ, opcode.IBNE, opcode.IBLT, opcode.IBLE, opcode.IBGT, opcode.IBGE,
			opcode.FBZP, opcode.FBNZP, opcode.DBZP, opcode.DBNZP,
			opcode.Call:
			// These encode a PC-relative imm24 offset from the instruction
			// following the branch/call, the same addressing Br already
			// uses — VCall/NCall/NMCall/FCallDg/BCall*/FCall resolve their
			// target at runtime (a vtable slot, native index, or a pointer
			// already on the stack) rather than through this instruction's
			// own immediate, so they contribute no static target here.
			targets[pc+1+int64(inst.SImm24())] = true
		}
	}
	return targets
}
