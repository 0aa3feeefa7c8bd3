// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debug

import (
	"github.com/emberscript/corevm/opcode"
	"github.com/emberscript/corevm/program"
	"github.com/emberscript/corevm/stack"
)

// Frame is one unwound call frame (spec §4.8 "Stack unwinding").
type Frame struct {
	ReturnPC int64
	Function string
	File     string
	Line     int
}

// isReturnAddress reports whether word, read as a PC, points just past a
// recognized call/halt instruction — the heuristic spec §4.8 describes
// ("find the next downward slot that holds a valid code pointer whose
// instruction byte is a recognized call/halt opcode"). Every CALL-family
// opcode pushes exactly the PC following itself (vm/interp.go), so the
// call site is always word-1.
func isReturnAddress(prog *program.CompiledProgram, word stack.Word) bool {
	pc := int64(word)
	callSite := pc - 1
	if callSite < 0 || int(callSite) >= len(prog.Instructions) {
		return false
	}
	if prog.InSwitchTable(callSite) {
		return false
	}
	op := opcode.Instruction(prog.Instructions[callSite]).Op()
	return opcode.IsCallOpcode(op) || op == opcode.Halt
}

// Unwind walks s's slots from the current top downward, collecting up to
// maxFrames return addresses recognized by isReturnAddress and annotating
// each with its enclosing function (funcMap) and source location
// (codeToLine), per spec §4.8. The innermost (current) PC is passed in
// separately since it is not itself a stacked return address.
func Unwind(prog *program.CompiledProgram, s *stack.Stack, currentPC int64, maxFrames int) []Frame {
	frames := make([]Frame, 0, maxFrames+1)
	frames = append(frames, annotate(prog, currentPC))

	slots := *s.SlotsHeader()
	for i := len(slots) - 1; i >= 0 && len(frames) <= maxFrames; i-- {
		if !isReturnAddress(prog, slots[i]) {
			continue
		}
		retPC := int64(slots[i])
		frames = append(frames, annotate(prog, retPC-1))
	}
	return frames
}

func annotate(prog *program.CompiledProgram, pc int64) Frame {
	f := Frame{ReturnPC: pc}
	if fn, ok := prog.FuncByPC(pc); ok {
		f.Function = fn.Name
	}
	if ln, ok := prog.LineForPC(pc); ok {
		f.File = ln.File
		f.Line = ln.Line
	}
	return f
}

// Depth returns the number of frames Unwind would currently report,
// cheaper than a full Unwind when the break handler only needs the count
// (spec §4.8 stepping decisions keyed on "depth").
func Depth(prog *program.CompiledProgram, s *stack.Stack, currentPC int64) int {
	depth := 1
	slots := *s.SlotsHeader()
	for i := len(slots) - 1; i >= 0; i-- {
		if isReturnAddress(prog, slots[i]) {
			depth++
		}
	}
	return depth
}
