// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debug

import (
	"testing"

	"github.com/emberscript/corevm/opcode"
	"github.com/emberscript/corevm/program"
)

func newTestProgram(t *testing.T) *program.CompiledProgram {
	t.Helper()
	prog := program.NewCompiledProgram()
	prog.Instructions = []uint32{
		uint32(opcode.EncodeSigned(opcode.PushIConst, 1)),
		uint32(opcode.EncodeSigned(opcode.PushIConst, 2)),
		uint32(opcode.Encode(opcode.IAdd, 0)),
		uint32(opcode.Encode(opcode.Halt, 0)),
	}
	prog.CodeToLine = []program.LineEntry{
		{PC: 0, Line: 10, File: "a.lc"},
		{PC: 1, Line: 11, File: "a.lc"},
		{PC: 2, Line: 11, File: "a.lc"},
		{PC: 3, Line: 12, File: "a.lc"},
	}
	if err := prog.Link(program.LinkDefault); err != nil {
		t.Fatal(err)
	}
	return prog
}

func TestSetBreakpointPatchesAndRestores(t *testing.T) {
	prog := newTestProgram(t)
	original := prog.Instructions[1]

	tbl := NewBreakpointTable(prog)
	tbl.SetBreakpoint("a.lc", 1, true)

	if byte(prog.Instructions[1]) != byte(opcode.OpcBreak) {
		t.Fatalf("Instructions[1] low byte = %#x, want OPC_BREAK", byte(prog.Instructions[1]))
	}
	if saved, ok := prog.SavedOpcode(1); !ok || saved != byte(original) {
		t.Fatalf("SavedOpcode(1) = %v, %v; want %v, true", saved, ok, byte(original))
	}

	tbl.SetBreakpoint("a.lc", 1, false)
	if prog.Instructions[1] != original {
		t.Fatalf("Instructions[1] = %#x after restore, want %#x", prog.Instructions[1], original)
	}
	if _, ok := prog.SavedOpcode(1); ok {
		t.Fatal("SavedOpcode(1) still present after restore")
	}
}

func TestPCsForLine(t *testing.T) {
	prog := newTestProgram(t)
	tbl := NewBreakpointTable(prog)

	pcs := tbl.PCsForLine("a.lc", 11)
	if len(pcs) != 2 || pcs[0] != 1 || pcs[1] != 2 {
		t.Fatalf("PCsForLine(a.lc, 11) = %v, want [1 2]", pcs)
	}
}

func TestToggleBreakpointAndDeleteAll(t *testing.T) {
	prog := newTestProgram(t)
	tbl := NewBreakpointTable(prog)

	tbl.ToggleBreakpoint("a.lc", 1)
	if bp, ok := tbl.At(1); !ok || !bp.Enabled {
		t.Fatal("expected breakpoint at 1 to be enabled after first toggle")
	}
	tbl.ToggleBreakpoint("a.lc", 1)
	if bp, ok := tbl.At(1); !ok || bp.Enabled {
		t.Fatal("expected breakpoint at 1 to be disabled after second toggle")
	}

	tbl.SetBreakpoint("a.lc", 2, true)
	tbl.DeleteAll()
	if len(tbl.All()) != 0 {
		t.Fatal("DeleteAll left entries behind")
	}
	if _, ok := prog.SavedOpcode(2); ok {
		t.Fatal("DeleteAll did not restore pc 2's opcode")
	}
}
