// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"strconv"

	"github.com/emberscript/corevm/opcode"
	"github.com/emberscript/corevm/stack"
)

// stringBuf is the refcounted backing store for a script string value.
// A script-visible string occupies two stack words, {ptr, len} (spec §4.2,
// stack.PushString), with ptr keyed into vm.strings rather than pointing at
// stringBuf.data directly — recovering a live Go slice from a bare integer
// would require the same unsafe address trick mem.go uses for *object.Header,
// and strings need no field-offset arithmetic the way object members do, so
// a handle table avoids that risk for no loss of fidelity to the spec's
// two-word value representation.
type stringBuf struct {
	data []byte
	refs int32
}

// internString allocates a new, singly-referenced stringBuf and returns its
// {ptr, len} stack representation. An empty string is always the canonical
// {0, 0} (stack.PushEmptyString) rather than a live handle, so StrCleanup on
// an empty string is always a no-op.
func (vm *Vm) internString(data []byte) (ptr, length stack.Word) {
	if len(data) == 0 {
		return 0, 0
	}
	if vm.strings == nil {
		vm.strings = make(map[uint64]*stringBuf)
	}
	vm.stringSeq++
	h := vm.stringSeq
	vm.strings[h] = &stringBuf{data: data, refs: 1}
	return stack.Word(h), stack.Word(len(data))
}

func (vm *Vm) stringBufAt(ptr stack.Word) *stringBuf {
	if ptr == 0 {
		return nil
	}
	return vm.strings[uint64(ptr)]
}

// stringBytesAt returns the backing bytes for a {ptr,length} pair. length is
// carried on the stack for parity with a real engine's two-word string
// value, even though the handle table already knows each buffer's size.
func (vm *Vm) stringBytesAt(ptr, length stack.Word) []byte {
	_ = length
	if buf := vm.stringBufAt(ptr); buf != nil {
		return buf.data
	}
	return nil
}

// dropStringRef decrements a string's refcount, freeing its handle table
// entry once the last reference is gone.
func (vm *Vm) dropStringRef(ptr stack.Word) {
	buf := vm.stringBufAt(ptr)
	if buf == nil {
		return
	}
	buf.refs--
	if buf.refs <= 0 {
		delete(vm.strings, uint64(ptr))
	}
}

// registerStringBuiltins wires the spec §4.4 string-value family (load,
// store, cleanup, append, compare) plus numeric-to-string conversion.
func (vm *Vm) registerStringBuiltins() {
	vm.builtins[opcode.BuiltinStrLoad] = builtinStrLoad
	vm.builtins[opcode.BuiltinStrStore] = builtinStrStore
	vm.builtins[opcode.BuiltinStrCleanup] = builtinStrCleanup
	vm.builtins[opcode.BuiltinStrAppend] = builtinStrAppend
	vm.builtins[opcode.BuiltinStrCompare] = builtinStrCompare
	vm.builtins[opcode.BuiltinNumToStr] = builtinNumToStr
}

// builtinStrLoad duplicates a string value as a new owned reference: stack
// in [len, ptr] (top to bottom, stack.PushString's push order), stack out
// the same [len, ptr] pair with the backing buffer's refcount incremented.
// The code generator emits this wherever a string rvalue is read out of a
// local/member/global slot it does not itself own, pairing the duplication
// with a later StrCleanup or StrStore of the new reference.
func builtinStrLoad(vm *Vm, s *stack.Stack) error {
	length, ptr := s.GetPtr(0), s.GetPtr(1)
	s.Pop(2)
	if buf := vm.stringBufAt(ptr); buf != nil {
		buf.refs++
	}
	s.PushString(ptr, length)
	return nil
}

// builtinStrStore assigns a new string value over an old one: stack in
// [newLen, newPtr, oldLen, oldPtr], stack out [newLen, newPtr] — the old
// value's reference is dropped and the new value is left on the stack as
// the assignment expression's result, matching the non-string LStore family.
func builtinStrStore(vm *Vm, s *stack.Stack) error {
	newLen, newPtr := s.GetPtr(0), s.GetPtr(1)
	oldPtr := s.GetPtr(3)
	s.Pop(4)
	vm.dropStringRef(oldPtr)
	s.PushString(newPtr, newLen)
	return nil
}

// builtinStrCleanup drops a string value's reference with no replacement:
// stack in [len, ptr], stack out empty.
func builtinStrCleanup(vm *Vm, s *stack.Stack) error {
	ptr := s.GetPtr(1)
	s.Pop(2)
	vm.dropStringRef(ptr)
	return nil
}

// builtinStrAppend concatenates two strings into a freshly owned result,
// consuming both operands' references: stack in [bLen, bPtr, aLen, aPtr],
// stack out [resultLen, resultPtr].
func builtinStrAppend(vm *Vm, s *stack.Stack) error {
	bPtr, bLen := s.GetPtr(1), s.GetPtr(0)
	aPtr, aLen := s.GetPtr(3), s.GetPtr(2)
	a := vm.stringBytesAt(aPtr, aLen)
	b := vm.stringBytesAt(bPtr, bLen)
	s.Pop(4)

	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)

	vm.dropStringRef(aPtr)
	vm.dropStringRef(bPtr)

	ptr, length := vm.internString(out)
	s.PushString(ptr, length)
	return nil
}

// builtinStrCompare performs a byte-lexicographic three-way comparison,
// consuming both operands' references (spec §4.2: "a builtin that returns a
// string writes it into reserved slots and is responsible for destroying
// consumed string arguments" — the same consume-and-destroy contract applies
// to any builtin that consumes string arguments, string-returning or not):
// stack in [bLen, bPtr, aLen, aPtr], stack out [result int32].
func builtinStrCompare(vm *Vm, s *stack.Stack) error {
	bPtr, bLen := s.GetPtr(1), s.GetPtr(0)
	aPtr, aLen := s.GetPtr(3), s.GetPtr(2)
	a := vm.stringBytesAt(aPtr, aLen)
	b := vm.stringBytesAt(bPtr, bLen)
	s.Pop(4)

	vm.dropStringRef(aPtr)
	vm.dropStringRef(bPtr)

	result := int32(0)
	switch {
	case string(a) < string(b):
		result = -1
	case string(a) > string(b):
		result = 1
	}
	s.PushInt(result)
	return nil
}

// builtinNumToStr formats a double as a decimal string: stack in [value
// double], stack out [len, ptr].
func builtinNumToStr(vm *Vm, s *stack.Stack) error {
	v := s.GetDouble(0)
	s.Pop(1)
	text := strconv.FormatFloat(v, 'g', -1, 64)
	ptr, length := vm.internString([]byte(text))
	s.PushString(ptr, length)
	return nil
}
