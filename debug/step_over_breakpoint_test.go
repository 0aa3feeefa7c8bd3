// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debug

import (
	"testing"

	"github.com/emberscript/corevm/abi"
	"github.com/emberscript/corevm/opcode"
	"github.com/emberscript/corevm/program"
	"github.com/emberscript/corevm/stack"
	"github.com/emberscript/corevm/vm"
)

// TestStepOverBreakpointPreservesOneShotSemantics drives a tiny
// push/push/add/halt program through a breakpoint armed on the second
// instruction, confirming StepOverBreakpoint executes exactly that one
// instruction (leaving the opcode re-patched afterward) without running
// the rest of the program.
func TestStepOverBreakpointPreservesOneShotSemantics(t *testing.T) {
	prog := program.NewCompiledProgram()
	prog.Instructions = []uint32{
		uint32(opcode.EncodeSigned(opcode.PushIConst, 1)),
		uint32(opcode.EncodeSigned(opcode.PushIConst, 2)),
		uint32(opcode.Encode(opcode.IAdd, 0)),
		uint32(opcode.Encode(opcode.Halt, 0)),
	}
	if err := prog.Link(program.LinkDefault); err != nil {
		t.Fatal(err)
	}

	tbl := NewBreakpointTable(prog)
	tbl.SetBreakpoint("a.lc", 1, true)

	v := vm.New(prog, vm.Flags{Debug: true})
	s := stack.New(nopOwner{}, 16)

	// Run up to the breakpoint.
	res := v.Run(s, 0)
	if res.Code != abi.Breakpoint || res.PC != 1 {
		t.Fatalf("Run() = %+v, want Breakpoint at pc 1", res)
	}

	// Step exactly the patched instruction, confirming it re-arms after.
	nextPC, stepRes, ok := tbl.StepOverBreakpoint(v, s, 1)
	if !ok {
		t.Fatalf("StepOverBreakpoint returned ok=false, res=%+v", stepRes)
	}
	if nextPC != 2 {
		t.Fatalf("StepOverBreakpoint nextPC = %d, want 2", nextPC)
	}
	if byte(prog.Instructions[1]) != byte(opcode.OpcBreak) {
		t.Fatal("breakpoint opcode was not re-armed after StepOverBreakpoint")
	}
	if s.GetInt(0) != 2 {
		t.Fatalf("stack top after stepping the second PushIConst = %d, want 2", s.GetInt(0))
	}

	// Resume normally: should run IAdd then hit the re-armed breakpoint
	// only if pc 1 is revisited, which it isn't here, so it runs to Halt.
	res = v.Run(s, nextPC)
	if res.Code != abi.OK {
		t.Fatalf("final Run() = %+v, want OK", res)
	}
	if s.GetInt(0) != 3 {
		t.Fatalf("result = %d, want 3", s.GetInt(0))
	}
}
