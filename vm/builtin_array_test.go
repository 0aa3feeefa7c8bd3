// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"testing"

	"github.com/emberscript/corevm/stack"
)

func TestBuiltinArrayPushPopResize(t *testing.T) {
	vm := newTestVm()
	s := newTestStack()

	ptr := vm.newArray()

	s.PushPtr(ptr)
	s.PushPtr(stack.Word(42))
	if err := builtinArrayPush(vm, s); err != nil {
		t.Fatal(err)
	}
	s.PushPtr(ptr)
	s.PushPtr(stack.Word(43))
	if err := builtinArrayPush(vm, s); err != nil {
		t.Fatal(err)
	}

	if got := len(vm.arrayAt(ptr).elems); got != 2 {
		t.Fatalf("len after two pushes = %d, want 2", got)
	}

	s.PushPtr(ptr)
	if err := builtinArrayPop(vm, s); err != nil {
		t.Fatal(err)
	}
	if got := s.GetPtr(0); got != 43 {
		t.Fatalf("popped value = %d, want 43", got)
	}
	s.Pop(1)

	s.PushPtr(ptr)
	s.PushInt(5)
	if err := builtinArrayResize(vm, s); err != nil {
		t.Fatal(err)
	}
	if got := len(vm.arrayAt(ptr).elems); got != 5 {
		t.Fatalf("len after resize(5) = %d, want 5", got)
	}
	if got := vm.arrayAt(ptr).elems[0]; got != 42 {
		t.Fatalf("elems[0] after resize = %d, want 42 (preserved)", got)
	}
}

func TestBuiltinArrayInsertAndEraseFast(t *testing.T) {
	vm := newTestVm()
	s := newTestStack()
	ptr := vm.newArray()

	for _, v := range []stack.Word{10, 20, 30} {
		s.PushPtr(ptr)
		s.PushPtr(v)
		if err := builtinArrayPush(vm, s); err != nil {
			t.Fatal(err)
		}
	}

	// Insert 99 at index 1: [10, 99, 20, 30]
	s.PushPtr(ptr)
	s.PushInt(1)
	s.PushPtr(stack.Word(99))
	if err := builtinArrayInsert(vm, s); err != nil {
		t.Fatal(err)
	}
	got := vm.arrayAt(ptr).elems
	want := []stack.Word{10, 99, 20, 30}
	if len(got) != len(want) {
		t.Fatalf("len after insert = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("elems[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	// EraseFast index 0 swaps the last element (30) into slot 0.
	s.PushPtr(ptr)
	s.PushInt(0)
	if err := builtinArrayEraseFast(vm, s); err != nil {
		t.Fatal(err)
	}
	got = vm.arrayAt(ptr).elems
	if len(got) != 3 || got[0] != 30 {
		t.Fatalf("after EraseFast(0) = %v, want [30 99 20]", got)
	}
}

func TestBuiltinArrayEraseOutOfBounds(t *testing.T) {
	vm := newTestVm()
	s := newTestStack()
	ptr := vm.newArray()

	s.PushPtr(ptr)
	s.PushInt(0)
	if err := builtinArrayErase(vm, s); err == nil {
		t.Fatal("expected an out-of-bounds error on an empty array")
	}
}
