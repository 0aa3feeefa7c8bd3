// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debug

import (
	"testing"

	"github.com/emberscript/corevm/opcode"
	"github.com/emberscript/corevm/program"
)

func TestThisReliableBalancedPair(t *testing.T) {
	prog := program.NewCompiledProgram()
	prog.Instructions = []uint32{
		uint32(opcode.Encode(opcode.LoadThis, 0)), // 0: open
		uint32(opcode.Encode(opcode.IAdd, 0)),     // 1: unrelated
		uint32(opcode.Encode(opcode.PopThis, 0)),  // 2: close
		uint32(opcode.Encode(opcode.Halt, 0)),     // 3
	}
	if err := prog.Link(program.LinkDefault); err != nil {
		t.Fatal(err)
	}

	if !ThisReliable(prog, 0, 3) {
		t.Fatal("this should be reliable once LOAD_THIS is matched by POP_THIS before pc 3")
	}
	if ThisReliable(prog, 0, 1) {
		t.Fatal("this should be unreliable between an open LOAD_THIS and its POP_THIS")
	}
}

func TestThisReliableLoadThisImmDoesNotOpenAPair(t *testing.T) {
	prog := program.NewCompiledProgram()
	prog.Instructions = []uint32{
		uint32(opcode.Encode(opcode.LoadThisImm, 0)),
		uint32(opcode.Encode(opcode.Halt, 0)),
	}
	if err := prog.Link(program.LinkDefault); err != nil {
		t.Fatal(err)
	}

	if !ThisReliable(prog, 0, 1) {
		t.Fatal("LOAD_THIS_IMM installs this for the whole frame; it should never read as unreliable")
	}
}
