// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"testing"

	"github.com/emberscript/corevm/program"
)

func newTestVm() *Vm {
	prog := program.NewCompiledProgram()
	return New(prog, Flags{})
}

func TestBuiltinStrAppendAndCompare(t *testing.T) {
	vm := newTestVm()
	s := newTestStack()

	aPtr, aLen := vm.internString([]byte("hello"))
	bPtr, bLen := vm.internString([]byte(" world"))

	s.PushString(aPtr, aLen)
	s.PushString(bPtr, bLen)
	if err := builtinStrAppend(vm, s); err != nil {
		t.Fatal(err)
	}

	resultLen := s.GetPtr(0)
	resultPtr := s.GetPtr(1)
	if got := string(vm.stringBytesAt(resultPtr, resultLen)); got != "hello world" {
		t.Fatalf("append result = %q, want %q", got, "hello world")
	}

	// The two operands' references were consumed by StrAppend; neither
	// handle should still resolve.
	if vm.stringBufAt(aPtr) != nil {
		t.Errorf("operand a's handle survived StrAppend")
	}
	if vm.stringBufAt(bPtr) != nil {
		t.Errorf("operand b's handle survived StrAppend")
	}

	s.Pop(2)
	cPtr, cLen := vm.internString([]byte("hello world"))
	s.PushString(resultPtr, resultLen)
	s.PushString(cPtr, cLen)
	if err := builtinStrCompare(vm, s); err != nil {
		t.Fatal(err)
	}
	if got := s.GetInt(0); got != 0 {
		t.Fatalf("compare(\"hello world\",\"hello world\") = %d, want 0", got)
	}
}

func TestBuiltinStrLoadBumpsRefcount(t *testing.T) {
	vm := newTestVm()
	s := newTestStack()

	ptr, length := vm.internString([]byte("owned"))
	buf := vm.stringBufAt(ptr)
	if buf.refs != 1 {
		t.Fatalf("initial refs = %d, want 1", buf.refs)
	}

	s.PushString(ptr, length)
	if err := builtinStrLoad(vm, s); err != nil {
		t.Fatal(err)
	}
	if buf.refs != 2 {
		t.Fatalf("refs after StrLoad = %d, want 2", buf.refs)
	}

	if err := builtinStrCleanup(vm, s); err != nil {
		t.Fatal(err)
	}
	if buf.refs != 1 {
		t.Fatalf("refs after one StrCleanup = %d, want 1", buf.refs)
	}
	if vm.stringBufAt(ptr) == nil {
		t.Fatalf("handle freed too early")
	}
}

func TestBuiltinNumToStr(t *testing.T) {
	vm := newTestVm()
	s := newTestStack()

	s.PushDouble(3.5)
	if err := builtinNumToStr(vm, s); err != nil {
		t.Fatal(err)
	}
	length, ptr := s.GetPtr(0), s.GetPtr(1)
	if got := string(vm.stringBytesAt(ptr, length)); got != "3.5" {
		t.Fatalf("NumToStr(3.5) = %q, want %q", got, "3.5")
	}
}

func TestBuiltinStrCleanupIsNoopOnEmptyString(t *testing.T) {
	vm := newTestVm()
	s := newTestStack()

	s.PushEmptyString()
	if err := builtinStrCleanup(vm, s); err != nil {
		t.Fatal(err)
	}
	if s.Height() != 0 {
		t.Fatalf("stack height = %d, want 0", s.Height())
	}
}
