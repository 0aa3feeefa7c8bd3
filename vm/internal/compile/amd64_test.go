// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// +build !appengine amd64

package compile

import (
	"runtime"
	"testing"

	asm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/emberscript/corevm/opcode"
)

func TestAMD64StackPushPop(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.SkipNow()
	}
	allocator := &MMapAllocator{}
	defer allocator.Close()

	builder, err := asm.NewBuilder("amd64", 64)
	if err != nil {
		t.Fatal(err)
	}

	b := &AMD64Backend{}
	b.emitPreamble(builder)
	mov := builder.NewProg()
	mov.As = x86.AMOVQ
	mov.From.Type = obj.TYPE_CONST
	mov.From.Offset = 1234
	mov.To.Type = obj.TYPE_REG
	mov.To.Reg = x86.REG_AX
	builder.AddInstruction(mov)
	b.emitStackPush(builder, x86.REG_AX)

	mov = builder.NewProg()
	mov.As = x86.AMOVQ
	mov.From.Type = obj.TYPE_CONST
	mov.From.Offset = 5678
	mov.To.Type = obj.TYPE_REG
	mov.To.Reg = x86.REG_AX
	builder.AddInstruction(mov)
	b.emitStackPush(builder, x86.REG_AX)

	ret := builder.NewProg()
	ret.As = obj.ARET
	builder.AddInstruction(ret)
	out := builder.Assemble()

	nativeBlock, err := allocator.AllocateExec(out)
	if err != nil {
		t.Fatal(err)
	}

	fakeStack := make([]uint64, 0, 5)
	nativeBlock.Invoke(&fakeStack)

	if got, want := len(fakeStack), 2; got != want {
		t.Fatalf("len(fakeStack) = %d, want %d", got, want)
	}
	if got, want := fakeStack[0], uint64(1234); got != want {
		t.Errorf("fakeStack[0] = %d, want %d", got, want)
	}
	if got, want := fakeStack[1], uint64(5678); got != want {
		t.Errorf("fakeStack[1] = %d, want %d", got, want)
	}
}

// TestAMD64BuildPushAdd compiles PUSH_ICONST 3; PUSH_ICONST 4; IADD through
// the full Build path and executes it, checking the result the same way
// vm.Run's interpreted path does for the same sequence (vm/vm_test.go
// TestAddTwoConstants).
func TestAMD64BuildPushAdd(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.SkipNow()
	}
	allocator := &MMapAllocator{}
	defer allocator.Close()

	instructions := []uint32{
		uint32(opcode.EncodeSigned(opcode.PushIConst, 3)),
		uint32(opcode.EncodeSigned(opcode.PushIConst, 4)),
		uint32(opcode.Encode(opcode.IAdd, 0)),
	}

	b := &AMD64Backend{}
	run := InstructionRun{Start: 0, End: int64(len(instructions))}
	out, err := b.Build(run, instructions)
	if err != nil {
		t.Fatal(err)
	}

	nativeBlock, err := allocator.AllocateExec(out)
	if err != nil {
		t.Fatal(err)
	}

	fakeStack := make([]uint64, 0, 5)
	nativeBlock.Invoke(&fakeStack)

	if got, want := len(fakeStack), 1; got != want {
		t.Fatalf("len(fakeStack) = %d, want %d", got, want)
	}
	if got, want := fakeStack[0], uint64(7); got != want {
		t.Errorf("fakeStack[0] = %d, want %d", got, want)
	}
}

func TestScannerSelectsSupportedRun(t *testing.T) {
	instructions := []uint32{
		uint32(opcode.EncodeSigned(opcode.PushIConst, 1)),
		uint32(opcode.EncodeSigned(opcode.PushIConst, 2)),
		uint32(opcode.Encode(opcode.IAdd, 0)),
		uint32(opcode.Encode(opcode.Halt, 0)), // unsupported: ends the run
	}

	b := &AMD64Backend{}
	s := b.Scanner()
	targets := InboundTargets(instructions, 0, int64(len(instructions)))
	runs := s.ScanFunc(instructions, 0, int64(len(instructions)), targets)

	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	if runs[0].Start != 0 || runs[0].End != 3 {
		t.Errorf("run = [%d,%d), want [0,3)", runs[0].Start, runs[0].End)
	}
	if runs[0].Metrics.AllOps != 3 {
		t.Errorf("AllOps = %d, want 3", runs[0].Metrics.AllOps)
	}
}
