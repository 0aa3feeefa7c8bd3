// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debug

import (
	"testing"

	"github.com/emberscript/corevm/opcode"
	"github.com/emberscript/corevm/program"
	"github.com/emberscript/corevm/stack"
)

// buildCallProgram builds a two-instruction program whose pc 0 is a CALL
// opcode, so a stack word of 1 (the address CALL pushes as its return
// slot) is recognized by isReturnAddress.
func buildCallProgram(t *testing.T) *program.CompiledProgram {
	t.Helper()
	prog := program.NewCompiledProgram()
	prog.Instructions = []uint32{
		uint32(opcode.EncodeSigned(opcode.Call, 5)),
		uint32(opcode.Encode(opcode.Halt, 0)),
	}
	prog.Functions = []program.Function{{Name: "main", EntryPC: 0}}
	prog.FuncMap = map[int64]int{0: 0, 1: 0}
	prog.CodeToLine = []program.LineEntry{
		{PC: 0, Line: 10, File: "a.lc"},
		{PC: 1, Line: 11, File: "a.lc"},
	}
	if err := prog.Link(program.LinkDefault); err != nil {
		t.Fatal(err)
	}
	return prog
}

func TestUnwindFindsCallerFrame(t *testing.T) {
	prog := buildCallProgram(t)
	s := stack.New(nopOwner{}, 16)
	s.PushPtr(1) // the return address CALL at pc 0 would have pushed

	frames := Unwind(prog, s, 1, 8)
	if len(frames) != 2 {
		t.Fatalf("Unwind returned %d frames, want 2", len(frames))
	}
	if frames[0].Function != "main" || frames[0].Line != 11 {
		t.Fatalf("frames[0] = %+v, want current frame at line 11", frames[0])
	}
	if frames[1].Function != "main" || frames[1].Line != 10 {
		t.Fatalf("frames[1] = %+v, want caller frame at line 10", frames[1])
	}
}

func TestUnwindIgnoresOrdinaryValues(t *testing.T) {
	prog := buildCallProgram(t)
	s := stack.New(nopOwner{}, 16)
	s.PushInt(42) // not a plausible return address

	frames := Unwind(prog, s, 1, 8)
	if len(frames) != 1 {
		t.Fatalf("Unwind returned %d frames, want 1 (no false caller frame)", len(frames))
	}
}

func TestDepthCountsFrames(t *testing.T) {
	prog := buildCallProgram(t)
	s := stack.New(nopOwner{}, 16)
	s.PushPtr(1)

	if got := Depth(prog, s, 1); got != 2 {
		t.Fatalf("Depth() = %d, want 2", got)
	}
}

type nopOwner struct{}

func (nopOwner) ContextName() string { return "test" }
