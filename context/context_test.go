// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package context

import (
	"testing"

	"github.com/emberscript/corevm/abi"
	"github.com/emberscript/corevm/opcode"
	"github.com/emberscript/corevm/program"
	"github.com/emberscript/corevm/stack"
	"github.com/emberscript/corevm/vm"
)

// TestCallByName builds a one-function program (square(n) = n*n) using the
// same argument-replaced-by-result convention vm's recursive-fib test
// uses, and drives it through Call rather than a raw vm.Run.
func TestCallByName(t *testing.T) {
	const pcSquare = 0

	prog := program.NewCompiledProgram()
	prog.Instructions = []uint32{
		uint32(opcode.Encode(opcode.LPush32, 1)),          // 0: push n
		uint32(opcode.Encode(opcode.LPush32, 2)),          // 1: push n again
		uint32(opcode.Encode(opcode.IMul, 0)),             // 2: n*n
		uint32(opcode.Encode(opcode.LStore32, 2)),         // 3: overwrite n's slot with the product
		uint32(opcode.EncodeSigned(opcode.IBZP, 0)),       // 4: discard the stray product copy
		uint32(opcode.Encode(opcode.Ret, 0)),              // 5
	}
	prog.Functions = []program.Function{{Name: "square", EntryPC: pcSquare}}
	if err := prog.Link(program.LinkDefault); err != nil {
		t.Fatal(err)
	}

	v := vm.New(prog, vm.Flags{})
	ctx := New("test", v, 64)

	ctx.Stack().PushInt(7)
	res := ctx.Call("square")
	if res.Code != abi.OK {
		t.Fatalf("Call returned %v (%s), want OK", res.Code, res.Message)
	}
	if got := ctx.Stack().GetInt(0); got != 49 {
		t.Fatalf("square(7) = %d, want 49", got)
	}
}

// TestCallUnknownName checks that Call reports FuncNotFound rather than
// panicking or silently running from PC 0 when given an unregistered name.
func TestCallUnknownName(t *testing.T) {
	prog := program.NewCompiledProgram()
	prog.Instructions = []uint32{uint32(opcode.Encode(opcode.Halt, 0))}
	if err := prog.Link(program.LinkDefault); err != nil {
		t.Fatal(err)
	}

	v := vm.New(prog, vm.Flags{})
	ctx := New("test", v, 64)

	res := ctx.Call("nonexistent")
	if res.Code != abi.FuncNotFound {
		t.Fatalf("Call(unknown) = %v, want FuncNotFound", res.Code)
	}
}

// buildMethodProgram returns a program with one class ("Widget") whose
// single method ("identity", vtable slot 0) pushes its own this-pointer
// argument back out as its result, following LOAD_THIS_IMM/PUSH_THIS
// discipline (spec §4.4) rather than an implicit calling-convention
// register.
func buildMethodProgram(t *testing.T) (*program.CompiledProgram, int64) {
	t.Helper()

	const pcMethod = 0
	instr := []uint32{
		uint32(opcode.Encode(opcode.LPushPtr, 1)),   // 0: push copy of instance
		uint32(opcode.Encode(opcode.LoadThisImm, 0)), // 1: pop it into the this register
		uint32(opcode.Encode(opcode.PushThis, 0)),    // 2: push the this register back
		uint32(opcode.Encode(opcode.LStorePtr, 2)),   // 3: overwrite instance's slot with it
		uint32(opcode.EncodeSigned(opcode.IBZP, 0)),  // 4: discard the stray copy
		uint32(opcode.Encode(opcode.Ret, 0)),         // 5
	}

	prog := program.NewCompiledProgram()
	prog.Instructions = instr

	dt := program.NewDataType(program.TagClass, "Widget")
	dt.Size = 0
	dt.Align = 8
	dt.Methods["identity"] = -1 // negated vtable slot 0
	prog.Types = append(prog.Types, dt)
	prog.ClassTypeHash["Widget"] = 0
	prog.Pool.AddName("Widget") // NewObject resolves the class by interned name

	if err := prog.Link(program.LinkDefault); err != nil {
		t.Fatal(err)
	}
	return prog, pcMethod
}

// TestNewObjectAndCallMethod exercises NewObject (no constructor, so it
// only allocates and bumps the strong refcount) followed by CallMethod
// dispatching through the class's vtable.
func TestNewObjectAndCallMethod(t *testing.T) {
	prog, pcMethod := buildMethodProgram(t)

	v := vm.New(prog, vm.Flags{})
	ctx := New("test", v, 64)

	// vtableFor is populated lazily by the NEW/NEW_DYNAMIC builtins; wire
	// the method slot in ahead of time the way a linker would.
	objPtr, res := ctx.NewObject("Widget")
	if res.Code != abi.OK {
		t.Fatalf("NewObject returned %v (%s), want OK", res.Code, res.Message)
	}
	if objPtr == 0 {
		t.Fatal("NewObject returned a null pointer")
	}

	h := headerFromWord(objPtr)
	if h.StrongRefCount() != 1 {
		t.Fatalf("strongRefCount after NewObject = %d, want 1", h.StrongRefCount())
	}
	h.ScriptVtbl.Methods = []uintptr{uintptr(pcMethod)}

	res = ctx.CallMethod("identity", objPtr)
	if res.Code != abi.OK {
		t.Fatalf("CallMethod returned %v (%s), want OK", res.Code, res.Message)
	}
	if got := ctx.Stack().GetPtr(0); got != objPtr {
		t.Fatalf("identity() = %#x, want %#x (the instance itself)", got, objPtr)
	}
}

// TestCallMethodNullInstance checks the NullInstance guard fires before
// any vtable dereference is attempted.
func TestCallMethodNullInstance(t *testing.T) {
	prog, _ := buildMethodProgram(t)
	v := vm.New(prog, vm.Flags{})
	ctx := New("test", v, 64)

	res := ctx.CallMethod("identity", 0)
	if res.Code != abi.NullInstance {
		t.Fatalf("CallMethod(nil) = %v, want NullInstance", res.Code)
	}
}

// TestBreakAndResume drives a debug-mode Vm through a short straight-line
// program: Break before running, confirm Run suspends with abi.Break at the
// first instruction, then Resume to completion.
func TestBreakAndResume(t *testing.T) {
	prog := program.NewCompiledProgram()
	prog.Instructions = []uint32{
		uint32(opcode.EncodeSigned(opcode.PushIConst, 1)),
		uint32(opcode.EncodeSigned(opcode.PushIConst, 2)),
		uint32(opcode.Encode(opcode.IAdd, 0)),
		uint32(opcode.Encode(opcode.Halt, 0)),
	}
	prog.Functions = []program.Function{{Name: "add", EntryPC: 0}}
	if err := prog.Link(program.LinkDefault); err != nil {
		t.Fatal(err)
	}

	v := vm.New(prog, vm.Flags{Debug: true})
	ctx := New("test", v, 64)

	ctx.Break()
	res := ctx.Call("add")
	if res.Code != abi.Break {
		t.Fatalf("Call with a pending Break returned %v, want Break", res.Code)
	}
	if !ctx.InBreakMode() {
		t.Fatal("InBreakMode() = false after a Break result")
	}

	res = ctx.Resume()
	if res.Code != abi.OK {
		t.Fatalf("Resume returned %v (%s), want OK", res.Code, res.Message)
	}
	if ctx.InBreakMode() {
		t.Fatal("InBreakMode() = true after a completed Resume")
	}
	if got := ctx.Stack().GetInt(0); got != 3 {
		t.Fatalf("result after resume = %d, want 3", got)
	}
}

// TestArrayInterfacePushPop exercises ArrayInterface's Push/Pop commands
// against a freshly allocated array handle, confirming the pushed stack
// shape this package builds matches builtin_array.go's documented ABI.
func TestArrayInterfacePushPop(t *testing.T) {
	prog := program.NewCompiledProgram()
	if err := prog.Link(program.LinkDefault); err != nil {
		t.Fatal(err)
	}

	v := vm.New(prog, vm.Flags{})
	ctx := New("test", v, 64)

	arr := v.NewArray()

	if _, err := ctx.ArrayInterface(ArrayPush, arr, stack.Word(11), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := ctx.ArrayInterface(ArrayPush, arr, stack.Word(22), 0); err != nil {
		t.Fatal(err)
	}

	got, err := ctx.ArrayInterface(ArrayPop, arr, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != 22 {
		t.Fatalf("popped = %d, want 22", got)
	}

	if ctx.Stack().Height() != 0 {
		t.Fatalf("stack height after ArrayInterface calls = %d, want 0", ctx.Stack().Height())
	}
}
