// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"math"

	"github.com/emberscript/corevm/abi"
	"github.com/emberscript/corevm/object"
	"github.com/emberscript/corevm/opcode"
	"github.com/emberscript/corevm/stack"
)

// sentinelReturnPC is pushed by the caller of a top-level Run invocation so
// that a RET back to it stops the loop cleanly, mirroring the teacher's
// ops.Return/break-outer pattern (wagon execCode) generalized to an
// explicit sentinel rather than relying on running off the end of code.
const sentinelReturnPC = -1

// Run executes bytecode starting at pc until HALT, a RET to the sentinel,
// BREAKPOINT, BREAK, or EXCEPTION (spec §5 "Suspension points"). It is the
// single dispatch loop named in spec §4.3, parameterized at construction
// time by vm.flags.
func (vm *Vm) Run(s *stack.Stack, pc int64) abi.ExecResult {
	for {
		nextPC, res, stop := vm.step(s, pc)
		if stop {
			return res
		}
		pc = nextPC
	}
}

// Step executes exactly one instruction at pc and returns the interpreter's
// state as if Run had been called and immediately suspended — used by the
// debug package to single-step a breakpoint-patched PC after temporarily
// restoring its original opcode (spec §4.8 "breakpoints ... re-applied
// transparently when execution stops on one so stepping continues
// cleanly"): the debugger un-patches, Steps once, then re-patches, without
// ever letting the interpreter run past the unpatched instruction on its
// own. When the single instruction itself would suspend the loop (HALT,
// RET to sentinel, BREAKPOINT, BREAK, EXCEPTION), that ExecResult is
// returned unchanged and ok is false; otherwise ok is true and nextPC is
// where a following Run/Step should resume.
func (vm *Vm) Step(s *stack.Stack, pc int64) (nextPC int64, res abi.ExecResult, ok bool) {
	next, res, stop := vm.step(s, pc)
	return next, res, !stop
}

// step runs the dispatch loop's body for a single instruction at pc. stop
// reports whether execution must suspend (res is then the ExecResult to
// return to the caller); otherwise res is the zero value and nextPC is
// where the loop continues.
func (vm *Vm) step(s *stack.Stack, pc int64) (nextPC int64, res abi.ExecResult, stop bool) {
	prog := vm.Program
	debug := vm.flags.Debug
	poll := debug && !vm.flags.NoBreak

	{
		if pc < 0 || int(pc) >= len(prog.Instructions) {
			return pc, abi.ExecResult{Code: abi.InvalidPC, PC: pc}, true
		}
		if poll && s.BreakRequested() {
			s.ClearBreak()
			s.SetPC(pc)
			return pc, abi.ExecResult{Code: abi.Break, PC: pc}, true
		}

		inst := opcode.Instruction(prog.Instructions[pc])
		op := inst.Op()
		nextPC = pc + 1

		switch op {
		case opcode.Halt:
			s.SetPC(pc)
			return pc, abi.ExecResult{Code: abi.OK, PC: pc}, true

		case opcode.OpcBreak:
			s.SetPC(pc)
			if orig, ok := prog.SavedOpcode(pc); ok {
				_ = orig // the debugger re-applies the breakpoint on resume (spec §4.8)
			}
			return pc, abi.ExecResult{Code: abi.Breakpoint, PC: pc}, true

		case opcode.ChkStk:
			if !s.CheckStack(inst.UImm24()) {
				s.SetPC(pc)
				return pc, abi.ExecResult{Code: abi.Exception, PC: pc, Message: "stack overflow"}, true
			}

		// --- constant push ---
		case opcode.PushIConst:
			s.PushInt(inst.SImm24())
		case opcode.PushFConst:
			s.PushFloat(float32(inst.SImm24()))
		case opcode.PushDConst:
			s.PushDouble(float64(inst.SImm24()))
		case opcode.PushCInt32:
			s.PushInt(prog.Pool.Int32(inst.UImm24()))
		case opcode.PushCInt64:
			s.PushLong(prog.Pool.Int64(inst.UImm24()))
		case opcode.PushCFloat:
			s.PushFloat(prog.Pool.Float(inst.UImm24()))
		case opcode.PushCDouble:
			s.PushDouble(prog.Pool.Double(inst.UImm24()))
		case opcode.PushCName:
			s.PushName(inst.UImm24())
		case opcode.PushCInt16:
			s.PushInt(int32(prog.Pool.Int16(inst.UImm24())))
		case opcode.PushCStr:
			ptr, length := vm.internString([]byte(prog.Pool.String(inst.UImm24())))
			s.PushString(ptr, length)

		// --- local access ---
		case opcode.LPush8:
			s.PushInt(int32(int8(s.GetInt(int(inst.UImm24())))))
		case opcode.LPush8U:
			s.PushInt(int32(uint8(s.GetInt(int(inst.UImm24())))))
		case opcode.LPush16:
			s.PushInt(int32(int16(s.GetInt(int(inst.UImm24())))))
		case opcode.LPush16U:
			s.PushInt(int32(uint16(s.GetInt(int(inst.UImm24())))))
		case opcode.LPush32, opcode.LPush32F:
			s.PushInt(s.GetInt(int(inst.UImm24())))
		case opcode.LPush64D:
			s.PushDouble(s.GetDouble(int(inst.UImm24())))
		case opcode.LPushPtr:
			s.PushPtr(s.GetPtr(int(inst.UImm24())))
		case opcode.LPushAdr:
			s.PushPtr(wordFromPtr(s.Addr(int(inst.UImm24()))))
		case opcode.LStore8:
			s.SetInt(int(inst.UImm24()), int32(int8(s.GetInt(0))))
		case opcode.LStore16:
			s.SetInt(int(inst.UImm24()), int32(int16(s.GetInt(0))))
		case opcode.LStore32, opcode.LStore32F:
			s.SetInt(int(inst.UImm24()), s.GetInt(0))
		case opcode.LStore64D:
			s.SetDouble(int(inst.UImm24()), s.GetDouble(0))
		case opcode.LStorePtr:
			s.SetPtr(int(inst.UImm24()), s.GetPtr(0))
		case opcode.LMove32:
			dst, src, _ := inst.Fields8()
			s.SetInt(int(dst), s.GetInt(int(src)))
		case opcode.LMovePtr:
			dst, src, _ := inst.Fields8()
			s.SetPtr(int(dst), s.GetPtr(int(src)))

		// --- global access ---
		case opcode.GLoad8:
			s.PushInt(readGlobalInt8(prog.Globals.Bytes(), inst.UImm24()))
		case opcode.GLoad8U:
			s.PushInt(readGlobalUint8(prog.Globals.Bytes(), inst.UImm24()))
		case opcode.GLoad16:
			s.PushInt(readGlobalInt16(prog.Globals.Bytes(), inst.UImm24()))
		case opcode.GLoad16U:
			s.PushInt(readGlobalUint16(prog.Globals.Bytes(), inst.UImm24()))
		case opcode.GLoad32, opcode.GLoad32F:
			s.PushInt(readGlobalInt32(prog.Globals.Bytes(), inst.UImm24()))
		case opcode.GLoadPtr:
			s.PushPtr(readGlobalPtr(prog.Globals.Bytes(), inst.UImm24()))
		case opcode.GStore8:
			writeGlobalInt8(prog.Globals.Bytes(), inst.UImm24(), s.GetInt(0))
		case opcode.GStore16:
			writeGlobalInt16(prog.Globals.Bytes(), inst.UImm24(), s.GetInt(0))
		case opcode.GStore32, opcode.GStore32F:
			writeGlobalInt32(prog.Globals.Bytes(), inst.UImm24(), s.GetInt(0))
		case opcode.GStorePtr:
			writeGlobalPtr(prog.Globals.Bytes(), inst.UImm24(), s.GetPtr(0))
		case opcode.GLoad64D:
			s.PushDouble(readGlobalDouble(prog.Globals.Bytes(), inst.UImm24()))
		case opcode.GStore64D:
			writeGlobalDouble(prog.Globals.Bytes(), inst.UImm24(), s.GetDouble(0))
		case opcode.GLoadAdr:
			s.PushPtr(stack.Word(inst.UImm24()))

		// --- arithmetic ---
		case opcode.IAdd:
			b, a := s.GetInt(0), s.GetInt(1)
			s.Pop(2)
			s.PushInt(a + b)
		case opcode.ISub:
			b, a := s.GetInt(0), s.GetInt(1)
			s.Pop(2)
			s.PushInt(a - b)
		case opcode.IMul:
			b, a := s.GetInt(0), s.GetInt(1)
			s.Pop(2)
			s.PushInt(a * b)
		case opcode.IDiv:
			b, a := s.GetInt(0), s.GetInt(1)
			if b == 0 {
				// Release mode lets this fall through to Go's native
				// divide-by-zero panic, the int3-equivalent trap spec §7
				// calls for; debug mode catches it as EXCEPTION instead so
				// the debugger can break at the offending PC.
				if debug {
					s.SetPC(pc)
					return pc, abi.ExecResult{Code: abi.Exception, PC: pc, Message: trapDivideByZero().Error()}, true
				}
			}
			s.Pop(2)
			s.PushInt(a / b)
		case opcode.IMod:
			b, a := s.GetInt(0), s.GetInt(1)
			if b == 0 {
				if debug {
					s.SetPC(pc)
					return pc, abi.ExecResult{Code: abi.Exception, PC: pc, Message: trapDivideByZero().Error()}, true
				}
			}
			s.Pop(2)
			s.PushInt(a % b)
		case opcode.IAnd:
			b, a := s.GetInt(0), s.GetInt(1)
			s.Pop(2)
			s.PushInt(a & b)
		case opcode.IOr:
			b, a := s.GetInt(0), s.GetInt(1)
			s.Pop(2)
			s.PushInt(a | b)
		case opcode.IXor:
			b, a := s.GetInt(0), s.GetInt(1)
			s.Pop(2)
			s.PushInt(a ^ b)
		case opcode.IShl:
			// Shift amount masked to 5 bits, matching x86 SHL's implicit
			// masking so the JIT needs no extra fix-up (spec §4.6).
			b, a := s.GetInt(0), s.GetInt(1)
			s.Pop(2)
			s.PushInt(a << (uint32(b) & 31))
		case opcode.IShr:
			b, a := s.GetInt(0), s.GetInt(1)
			s.Pop(2)
			s.PushInt(a >> (uint32(b) & 31))
		case opcode.IShrU:
			b, a := s.GetInt(0), s.GetInt(1)
			s.Pop(2)
			s.PushInt(int32(uint32(a) >> (uint32(b) & 31)))
		case opcode.IAddIConst:
			a := s.GetInt(0)
			s.Pop(1)
			s.PushInt(a + inst.SImm24())
		case opcode.ISubIConst:
			a := s.GetInt(0)
			s.Pop(1)
			s.PushInt(a - inst.SImm24())
		case opcode.FAdd:
			b, a := s.GetFloat(0), s.GetFloat(1)
			s.Pop(2)
			s.PushFloat(a + b)
		case opcode.FSub:
			b, a := s.GetFloat(0), s.GetFloat(1)
			s.Pop(2)
			s.PushFloat(a - b)
		case opcode.FMul:
			b, a := s.GetFloat(0), s.GetFloat(1)
			s.Pop(2)
			s.PushFloat(a * b)
		case opcode.FDiv:
			b, a := s.GetFloat(0), s.GetFloat(1)
			s.Pop(2)
			s.PushFloat(a / b)
		case opcode.DAdd:
			b, a := s.GetDouble(0), s.GetDouble(1)
			s.Pop(2)
			s.PushDouble(a + b)
		case opcode.DSub:
			b, a := s.GetDouble(0), s.GetDouble(1)
			s.Pop(2)
			s.PushDouble(a - b)
		case opcode.DMul:
			b, a := s.GetDouble(0), s.GetDouble(1)
			s.Pop(2)
			s.PushDouble(a * b)
		case opcode.DDiv:
			b, a := s.GetDouble(0), s.GetDouble(1)
			s.Pop(2)
			s.PushDouble(a / b)

		// --- fused peephole compounds ---
		case opcode.LPush32IConst:
			a, b := inst.Fields8_16()
			_ = b
			s.PushInt(s.GetInt(int(a)) + inst.SImm24())
		case opcode.LIAddIConst:
			off := inst.UImm24() & 0xffff
			delta := int32(inst.UImm24() >> 16)
			s.SetInt(int(off), s.GetInt(int(off))+delta)
		case opcode.LAAdd:
			// Folds "push a local index, scale it, add to the pointer on
			// top of stack" into one instruction — the address-mode fusion
			// spec §4.6 names ("LPUSH32 + AADD + scale becomes a single
			// scaled-index lea/mov"). Low 16 bits select the local slot
			// holding the index, high 8 bits are the element-size scale.
			localIdx := int(inst.UImm24() & 0xffff)
			scale := int64(inst.UImm24() >> 16)
			idx := int64(s.GetInt(localIdx))
			s.SetPtr(0, s.GetPtr(0)+stack.Word(idx*scale))
		case opcode.LPushAdrPLoad32Imm:
			// Folds "LPUSHADR + PLOAD32_IMM" into a direct 32-bit global
			// load (spec §4.6): low 16 bits are the global byte offset,
			// high 8 bits an additional signed byte offset for small
			// struct-member fusions.
			base := inst.UImm24() & 0xffff
			extra := int32(int8(inst.UImm24() >> 16))
			s.PushInt(readGlobalInt32(prog.Globals.Bytes(), uint32(int32(base)+extra)))

		// --- comparisons ---
		case opcode.ICmpEQ:
			b, a := s.GetInt(0), s.GetInt(1)
			s.Pop(2)
			s.PushInt(boolInt(a == b))
		case opcode.ICmpNE:
			b, a := s.GetInt(0), s.GetInt(1)
			s.Pop(2)
			s.PushInt(boolInt(a != b))
		case opcode.ICmpLT:
			b, a := s.GetInt(0), s.GetInt(1)
			s.Pop(2)
			s.PushInt(boolInt(a < b))
		case opcode.ICmpLE:
			b, a := s.GetInt(0), s.GetInt(1)
			s.Pop(2)
			s.PushInt(boolInt(a <= b))
		case opcode.ICmpGT:
			b, a := s.GetInt(0), s.GetInt(1)
			s.Pop(2)
			s.PushInt(boolInt(a > b))
		case opcode.ICmpGE:
			b, a := s.GetInt(0), s.GetInt(1)
			s.Pop(2)
			s.PushInt(boolInt(a >= b))

		case opcode.FCmpEQ:
			b, a := s.GetFloat(0), s.GetFloat(1)
			s.Pop(2)
			s.PushInt(boolInt(a == b))
		case opcode.FCmpNE:
			b, a := s.GetFloat(0), s.GetFloat(1)
			s.Pop(2)
			s.PushInt(boolInt(a != b))
		case opcode.FCmpLT:
			b, a := s.GetFloat(0), s.GetFloat(1)
			s.Pop(2)
			s.PushInt(boolInt(a < b))
		case opcode.FCmpLE:
			b, a := s.GetFloat(0), s.GetFloat(1)
			s.Pop(2)
			s.PushInt(boolInt(a <= b))
		case opcode.FCmpGT:
			b, a := s.GetFloat(0), s.GetFloat(1)
			s.Pop(2)
			s.PushInt(boolInt(a > b))
		case opcode.FCmpGE:
			b, a := s.GetFloat(0), s.GetFloat(1)
			s.Pop(2)
			s.PushInt(boolInt(a >= b))

		case opcode.DCmpEQ:
			s.PushInt(boolInt(floatOrdered(doubleCmpArgs(s))))
		case opcode.DCmpNE:
			// NaN compares: every relation returns 0 except != , which
			// returns 1 (spec §4.3) — the JIT must bypass set-byte with a
			// parity fix-up to match this exactly (spec §4.6).
			b, a := s.GetDouble(0), s.GetDouble(1)
			s.Pop(2)
			if math.IsNaN(a) || math.IsNaN(b) {
				s.PushInt(1)
			} else {
				s.PushInt(boolInt(a != b))
			}
		case opcode.DCmpLT:
			b, a := s.GetDouble(0), s.GetDouble(1)
			s.Pop(2)
			s.PushInt(boolInt(a < b))
		case opcode.DCmpLE:
			b, a := s.GetDouble(0), s.GetDouble(1)
			s.Pop(2)
			s.PushInt(boolInt(a <= b))
		case opcode.DCmpGT:
			b, a := s.GetDouble(0), s.GetDouble(1)
			s.Pop(2)
			s.PushInt(boolInt(a > b))
		case opcode.DCmpGE:
			b, a := s.GetDouble(0), s.GetDouble(1)
			s.Pop(2)
			s.PushInt(boolInt(a >= b))

		// --- fused compare-and-branch ---
		case opcode.IBEQ:
			b, a := s.GetInt(0), s.GetInt(1)
			s.Pop(2)
			if a == b {
				nextPC = pc + 1 + int64(inst.SImm24())
			}
		case opcode.IBNE:
			b, a := s.GetInt(0), s.GetInt(1)
			s.Pop(2)
			if a != b {
				nextPC = pc + 1 + int64(inst.SImm24())
			}
		case opcode.IBLT:
			b, a := s.GetInt(0), s.GetInt(1)
			s.Pop(2)
			if a < b {
				nextPC = pc + 1 + int64(inst.SImm24())
			}
		case opcode.IBLE:
			b, a := s.GetInt(0), s.GetInt(1)
			s.Pop(2)
			if a <= b {
				nextPC = pc + 1 + int64(inst.SImm24())
			}
		case opcode.IBGT:
			b, a := s.GetInt(0), s.GetInt(1)
			s.Pop(2)
			if a > b {
				nextPC = pc + 1 + int64(inst.SImm24())
			}
		case opcode.IBGE:
			b, a := s.GetInt(0), s.GetInt(1)
			s.Pop(2)
			if a >= b {
				nextPC = pc + 1 + int64(inst.SImm24())
			}

		// --- branches ---
		case opcode.Br:
			nextPC = pc + 1 + int64(inst.SImm24())
		case opcode.FBZP:
			v := s.GetFloat(0)
			s.Pop(1)
			if v == 0 {
				nextPC = pc + 1 + int64(inst.SImm24())
			}
		case opcode.FBNZP:
			v := s.GetFloat(0)
			s.Pop(1)
			if v != 0 {
				nextPC = pc + 1 + int64(inst.SImm24())
			}
		case opcode.DBZP:
			v := s.GetDouble(0)
			s.Pop(1)
			if v == 0 {
				nextPC = pc + 1 + int64(inst.SImm24())
			}
		case opcode.DBNZP:
			v := s.GetDouble(0)
			s.Pop(1)
			if v != 0 {
				nextPC = pc + 1 + int64(inst.SImm24())
			}
		case opcode.IBZP:
			v := s.GetInt(0)
			s.Pop(1)
			if v == 0 {
				nextPC = pc + 1 + int64(inst.SImm24())
			}
		case opcode.IBNZP:
			v := s.GetInt(0)
			s.Pop(1)
			if v != 0 {
				nextPC = pc + 1 + int64(inst.SImm24())
			}
		case opcode.IBZ:
			// branch-or-pop: value kept if branch taken (short-circuit eval).
			v := s.GetInt(0)
			if v == 0 {
				nextPC = pc + 1 + int64(inst.SImm24())
			} else {
				s.Pop(1)
			}
		case opcode.IBNZ:
			v := s.GetInt(0)
			if v != 0 {
				nextPC = pc + 1 + int64(inst.SImm24())
			} else {
				s.Pop(1)
			}

		// --- this discipline ---
		case opcode.LoadThis:
			old := s.SetThisPtr(s.GetPtr(0))
			s.Pop(1)
			s.PushPtr(old)
		case opcode.LoadThisImm:
			s.SetThisPtr(s.GetPtr(0))
			s.Pop(1)
		case opcode.PushThis:
			s.PushPtr(s.ThisPtr())
		case opcode.PushThisTemp:
			s.PushPtr(s.ThisPtr())
		case opcode.PopThis:
			s.SetThisPtr(s.GetPtr(0))
			s.Pop(1)

		// --- struct / raw locals ---
		case opcode.PushRaw:
			s.PushRaw(int(inst.UImm24()))
		case opcode.PushZRaw:
			s.PushRawZero(int(inst.UImm24()))
		case opcode.PushStruct:
			u := inst.UImm24()
			align, size := u&0xff, u>>8
			s.PushStruct(align, size)

		// --- static-array bounds check (spec §4.3) ---
		case opcode.RangeIConst:
			if err := checkArrayBounds(s.GetInt(0), int32(inst.UImm24())); err != nil {
				s.SetPC(pc)
				return pc, abi.ExecResult{Code: abi.Exception, PC: pc, Message: err.Error()}, true
			}
		case opcode.RangeCIConst:
			if err := checkArrayBounds(s.GetInt(0), prog.Pool.Int32(inst.UImm24())); err != nil {
				s.SetPC(pc)
				return pc, abi.ExecResult{Code: abi.Exception, PC: pc, Message: err.Error()}, true
			}
		case opcode.Range:
			idx, limit := s.GetInt(0), s.GetInt(1)
			if err := checkArrayBounds(idx, limit); err != nil {
				s.SetPC(pc)
				return pc, abi.ExecResult{Code: abi.Exception, PC: pc, Message: err.Error()}, true
			}
			s.SetInt(1, idx)
			s.Pop(1)

		// --- indirect access (spec §4.3) ---
		// Non-_IMM forms read [idx(0), ptr(1)]: address = ptr + idx*uimm24
		// (the instruction's own unsigned scale, an element size in
		// bytes), result overwrites the ptr slot and idx is dropped. The
		// _IMM forms instead take the pointer alone at offset 0 and a
		// signed byte offset baked into the instruction, overwriting the
		// pointer slot in place with no pop at all.
		case opcode.PLoad8, opcode.PLoad8U, opcode.PLoad16, opcode.PLoad16U,
			opcode.PLoad32, opcode.PLoad32F, opcode.PLoadPtr:
			idx := s.GetInt(0)
			ptr := s.GetPtr(1)
			if debug && ptr == 0 {
				s.SetPC(pc)
				return pc, abi.ExecResult{Code: abi.Exception, PC: pc, Message: trapNullPtr().Error()}, true
			}
			base := ptrFromWord(ptr)
			off := int64(idx) * int64(inst.UImm24())
			s.Pop(1)
			switch op {
			case opcode.PLoad8:
				s.SetInt(0, loadInt8At(base, off))
			case opcode.PLoad8U:
				s.SetInt(0, loadUint8At(base, off))
			case opcode.PLoad16:
				s.SetInt(0, loadInt16At(base, off))
			case opcode.PLoad16U:
				s.SetInt(0, loadUint16At(base, off))
			case opcode.PLoad32, opcode.PLoad32F:
				s.SetInt(0, loadInt32At(base, off))
			case opcode.PLoadPtr:
				s.SetPtr(0, loadPtrAt(base, off))
			}
		case opcode.PLoad64D:
			idx := s.GetInt(0)
			ptr := s.GetPtr(1)
			if debug && ptr == 0 {
				s.SetPC(pc)
				return pc, abi.ExecResult{Code: abi.Exception, PC: pc, Message: trapNullPtr().Error()}, true
			}
			off := int64(idx) * int64(inst.UImm24())
			v := loadFloat64At(ptrFromWord(ptr), off)
			s.Pop(2)
			s.PushDouble(v)
		case opcode.PLoad8Imm, opcode.PLoad16Imm, opcode.PLoad32Imm:
			ptr := s.GetPtr(0)
			if debug && ptr == 0 {
				s.SetPC(pc)
				return pc, abi.ExecResult{Code: abi.Exception, PC: pc, Message: trapNullPtr().Error()}, true
			}
			base := ptrFromWord(ptr)
			off := int64(inst.SImm24())
			switch op {
			case opcode.PLoad8Imm:
				s.SetInt(0, loadInt8At(base, off))
			case opcode.PLoad16Imm:
				s.SetInt(0, loadInt16At(base, off))
			case opcode.PLoad32Imm:
				s.SetInt(0, loadInt32At(base, off))
			}
		case opcode.PStore8, opcode.PStore16, opcode.PStore32, opcode.PStore32F,
			opcode.PStorePtr, opcode.PStore64D:
			// [idx(0), ptr(1), value(2)]: store through ptr+idx*uimm24,
			// then drop idx and ptr — the stack's own contraction leaves
			// value as the new top, the assignment-expression convention
			// LStore/GStore already follow.
			idx := s.GetInt(0)
			ptr := s.GetPtr(1)
			if debug && ptr == 0 {
				s.SetPC(pc)
				return pc, abi.ExecResult{Code: abi.Exception, PC: pc, Message: trapNullPtr().Error()}, true
			}
			base := ptrFromWord(ptr)
			off := int64(idx) * int64(inst.UImm24())
			switch op {
			case opcode.PStore8:
				storeInt8At(base, off, s.GetInt(2))
			case opcode.PStore16:
				storeInt16At(base, off, s.GetInt(2))
			case opcode.PStore32, opcode.PStore32F:
				storeInt32At(base, off, s.GetInt(2))
			case opcode.PStorePtr:
				storePtrAt(base, off, s.GetPtr(2))
			case opcode.PStore64D:
				storeFloat64At(base, off, s.GetDouble(2))
			}
			s.Pop(2)
		case opcode.PStoreImm:
			// [ptr(0), value(1)]: store the full word through ptr+simm24,
			// drop only ptr — value remains as the new top.
			ptr := s.GetPtr(0)
			if debug && ptr == 0 {
				s.SetPC(pc)
				return pc, abi.ExecResult{Code: abi.Exception, PC: pc, Message: trapNullPtr().Error()}, true
			}
			storeWordAt(ptrFromWord(ptr), int64(inst.SImm24()), s.GetPtr(1))
			s.Pop(1)

		// --- switch ---
		case opcode.Switch:
			rng := inst.UImm24()
			idx := uint32(s.GetInt(0))
			s.Pop(1)
			tableStart := pc + 1
			if idx >= rng {
				target := int64(int32(prog.Instructions[tableStart]))
				nextPC = tableStart + 1 + target
			} else {
				target := int64(int32(prog.Instructions[tableStart+1+int64(idx)]))
				nextPC = tableStart + 1 + int64(rng) + target
			}

		// --- function invocation ---
		case opcode.Call:
			s.PushPtr(stack.Word(nextPC))
			nextPC = pc + 1 + int64(inst.SImm24())
		case opcode.FCall:
			target := int64(s.GetPtr(0))
			s.Pop(1)
			s.PushPtr(stack.Word(nextPC))
			nextPC = target
		case opcode.FCallDg:
			// Bound {instance, target} callable: target's low bit marks a
			// shifted vtable index resolved against the current `this`
			// rather than a direct code pointer (spec §4.7 CallDelegate,
			// mirrored here self-contained since vm cannot import context).
			raw := s.GetPtr(0)
			if raw == 0 {
				s.SetPC(pc)
				return pc, abi.ExecResult{Code: abi.Exception, PC: pc, Message: "function refptr is null"}, true
			}
			s.Pop(1)
			var vt *object.VTable
			if h := headerFromWord(s.ThisPtr()); h != nil {
				vt = h.ScriptVtbl
			}
			target := object.Delegate{Target: uintptr(raw)}.Resolve(vt)
			if target == 0 {
				s.SetPC(pc)
				return pc, abi.ExecResult{Code: abi.MethodNotFound, PC: pc}, true
			}
			s.PushPtr(stack.Word(nextPC))
			nextPC = int64(target)
		case opcode.VCall:
			// Virtual dispatch through the current `this`'s vtable, the
			// same DecRefStrong-reaches-zero -> virtual dtor path and any
			// other virtual method call route through (spec §4.5, §4.7).
			h := headerFromWord(s.ThisPtr())
			if h == nil || h.ScriptVtbl == nil {
				s.SetPC(pc)
				return pc, abi.ExecResult{Code: abi.NullInstance, PC: pc}, true
			}
			idx := int(inst.SImm24())
			if idx < 0 || idx >= len(h.ScriptVtbl.Methods) {
				s.SetPC(pc)
				return pc, abi.ExecResult{Code: abi.MethodNotFound, PC: pc}, true
			}
			s.PushPtr(stack.Word(nextPC))
			nextPC = int64(h.ScriptVtbl.Methods[idx])
		case opcode.NCall, opcode.NMCall:
			fn := vm.Program.Natives.At(inst.UImm24())
			if fn == nil {
				s.SetPC(pc)
				return pc, abi.ExecResult{Code: abi.FuncNotFound, PC: pc}, true
			}
			s.SetPC(pc)
			s.EnterNative()
			err := fn(s)
			s.LeaveNative()
			if err != nil {
				return pc, abi.ExecResult{Code: abi.Exception, PC: pc, Message: err.Error()}, true
			}
		case opcode.Ret:
			retAddr := int64(s.GetPtr(0))
			s.Pop(1 + int(inst.UImm24()))
			if retAddr == sentinelReturnPC {
				s.SetPC(pc)
				return pc, abi.ExecResult{Code: abi.OK, PC: pc}, true
			}
			nextPC = retAddr

		case opcode.BCall, opcode.BMCall, opcode.BCallTrap:
			idx := opcode.Builtin(inst.UImm24())
			if int(idx) >= numBuiltins || vm.builtins[idx] == nil {
				return pc, abi.ExecResult{Code: abi.MethodNotFound, PC: pc}, true
			}
			if err := vm.builtins[idx](vm, s); err != nil {
				s.SetPC(pc)
				return pc, abi.ExecResult{Code: abi.Exception, PC: pc, Message: err.Error()}, true
			}

		default:
			// An opcode this switch doesn't handle: there is no secondary
			// dispatch table, so the run stops with an Exception. Reaching
			// here means the program is malformed for this core's opcode set.
			return pc, abi.ExecResult{Code: abi.Exception, PC: pc, Message: "unhandled opcode"}, true
		}
	}

	return nextPC, abi.ExecResult{}, false
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func doubleCmpArgs(s *stack.Stack) (a, b float64) {
	b = s.GetDouble(0)
	a = s.GetDouble(1)
	s.Pop(2)
	return a, b
}

func floatOrdered(a, b float64) bool {
	// NaN compares return false ("ordered false") for every relation
	// except != (spec §4.3).
	return a == b
}

func readGlobalInt8(buf []byte, off uint32) int32  { return int32(int8(buf[off])) }
func readGlobalUint8(buf []byte, off uint32) int32 { return int32(buf[off]) }

func readGlobalInt16(buf []byte, off uint32) int32 {
	return int32(int16(opcode.Endianess.Uint16(buf[off:])))
}

func readGlobalUint16(buf []byte, off uint32) int32 {
	return int32(opcode.Endianess.Uint16(buf[off:]))
}

func writeGlobalInt8(buf []byte, off uint32, v int32) { buf[off] = byte(v) }

func writeGlobalInt16(buf []byte, off uint32, v int32) {
	opcode.Endianess.PutUint16(buf[off:], uint16(v))
}

func readGlobalInt32(buf []byte, off uint32) int32 {
	return int32(opcode.Endianess.Uint32(buf[off:]))
}

func writeGlobalInt32(buf []byte, off uint32, v int32) {
	opcode.Endianess.PutUint32(buf[off:], uint32(v))
}

func readGlobalPtr(buf []byte, off uint32) stack.Word {
	return stack.Word(opcode.Endianess.Uint64(buf[off:]))
}

func writeGlobalPtr(buf []byte, off uint32, v stack.Word) {
	opcode.Endianess.PutUint64(buf[off:], uint64(v))
}

func readGlobalDouble(buf []byte, off uint32) float64 {
	return math.Float64frombits(opcode.Endianess.Uint64(buf[off:]))
}

func writeGlobalDouble(buf []byte, off uint32, v float64) {
	opcode.Endianess.PutUint64(buf[off:], math.Float64bits(v))
}
