// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"github.com/emberscript/corevm/opcode"
	"github.com/emberscript/corevm/stack"
)

// dynArray is the backing store for a script dynamic-array value, handle-
// addressed the same way stringBuf is (vm/builtin_string.go): a dynamic
// array's element width varies per instantiation (spec §4.4 ArrayInterface
// takes a type tag), so this core stores elements as raw stack.Word slots
// regardless of the script-level element type, the same one-word-per-slot
// convention CHKSTK and the locals stack already use for every POD value.
type dynArray struct {
	elems []stack.Word
}

func (vm *Vm) arrayAt(ptr stack.Word) *dynArray {
	if ptr == 0 {
		return nil
	}
	return vm.arrays[uint64(ptr)]
}

// newArray allocates an empty dynamic array and returns its handle.
func (vm *Vm) newArray() stack.Word {
	if vm.arrays == nil {
		vm.arrays = make(map[uint64]*dynArray)
	}
	vm.arraySeq++
	h := vm.arraySeq
	vm.arrays[h] = &dynArray{}
	return stack.Word(h)
}

// NewArray allocates an empty dynamic array and returns its handle, for
// native class constructors that initialize a dynamic-array member
// themselves rather than relying on a zero-initialized handle (zero is
// never a valid array handle, so a member left at its zero value behaves
// as an absent array until a constructor calls this).
func (vm *Vm) NewArray() stack.Word { return vm.newArray() }

// registerArrayBuiltins wires the spec §4.4 dynamic-array method family,
// reached from script code via ArrayInterface(type, cmd, array_ptr, param,
// int_param) lowering to individual BCALL entries per command.
func (vm *Vm) registerArrayBuiltins() {
	vm.builtins[opcode.BuiltinArrayResize] = builtinArrayResize
	vm.builtins[opcode.BuiltinArrayReserve] = builtinArrayReserve
	vm.builtins[opcode.BuiltinArrayPush] = builtinArrayPush
	vm.builtins[opcode.BuiltinArrayPop] = builtinArrayPop
	vm.builtins[opcode.BuiltinArrayClear] = builtinArrayClear
	vm.builtins[opcode.BuiltinArrayErase] = builtinArrayErase
	vm.builtins[opcode.BuiltinArrayEraseFast] = builtinArrayEraseFast
	vm.builtins[opcode.BuiltinArrayInsert] = builtinArrayInsert
}

// builtinArrayResize: stack in [newSize, arrayPtr]. Growing zero-fills the
// new slots; shrinking drops the tail without running element destructors —
// callers holding object elements are responsible for emitting their own
// cleanup before shrinking, the same destructor discipline string slots use.
func builtinArrayResize(vm *Vm, s *stack.Stack) error {
	size := s.GetInt(0)
	ptr := s.GetPtr(1)
	s.Pop(2)
	a := vm.arrayAt(ptr)
	if a == nil || size < 0 {
		return trapArrayBounds()
	}
	switch n := int(size); {
	case n <= len(a.elems):
		a.elems = a.elems[:n]
	default:
		a.elems = append(a.elems, make([]stack.Word, n-len(a.elems))...)
	}
	return nil
}

// builtinArrayReserve: stack in [capacity, arrayPtr]. Only grows backing
// capacity; never changes Len.
func builtinArrayReserve(vm *Vm, s *stack.Stack) error {
	capWords := s.GetInt(0)
	ptr := s.GetPtr(1)
	s.Pop(2)
	a := vm.arrayAt(ptr)
	if a == nil || capWords < 0 {
		return trapArrayBounds()
	}
	if int(capWords) > cap(a.elems) {
		grown := make([]stack.Word, len(a.elems), capWords)
		copy(grown, a.elems)
		a.elems = grown
	}
	return nil
}

// builtinArrayPush: stack in [value, arrayPtr].
func builtinArrayPush(vm *Vm, s *stack.Stack) error {
	value := s.GetPtr(0)
	ptr := s.GetPtr(1)
	s.Pop(2)
	a := vm.arrayAt(ptr)
	if a == nil {
		return trapArrayBounds()
	}
	a.elems = append(a.elems, value)
	return nil
}

// builtinArrayPop: stack in [arrayPtr], stack out [poppedValue].
func builtinArrayPop(vm *Vm, s *stack.Stack) error {
	ptr := s.GetPtr(0)
	s.Pop(1)
	a := vm.arrayAt(ptr)
	if a == nil || len(a.elems) == 0 {
		return trapArrayBounds()
	}
	last := a.elems[len(a.elems)-1]
	a.elems = a.elems[:len(a.elems)-1]
	s.PushPtr(last)
	return nil
}

// builtinArrayClear: stack in [arrayPtr].
func builtinArrayClear(vm *Vm, s *stack.Stack) error {
	ptr := s.GetPtr(0)
	s.Pop(1)
	a := vm.arrayAt(ptr)
	if a == nil {
		return trapArrayBounds()
	}
	a.elems = a.elems[:0]
	return nil
}

// builtinArrayErase: stack in [index, arrayPtr]; preserves order of the
// remaining elements.
func builtinArrayErase(vm *Vm, s *stack.Stack) error {
	idx := s.GetInt(0)
	ptr := s.GetPtr(1)
	s.Pop(2)
	a := vm.arrayAt(ptr)
	if a == nil {
		return trapArrayBounds()
	}
	if err := checkArrayBounds(idx, int32(len(a.elems))); err != nil {
		return err
	}
	a.elems = append(a.elems[:idx], a.elems[idx+1:]...)
	return nil
}

// builtinArrayEraseFast: stack in [index, arrayPtr]; swaps the last element
// into the erased slot instead of shifting, trading order for O(1) removal —
// the "fast" variant named explicitly in spec §4.4 alongside the
// order-preserving erase.
func builtinArrayEraseFast(vm *Vm, s *stack.Stack) error {
	idx := s.GetInt(0)
	ptr := s.GetPtr(1)
	s.Pop(2)
	a := vm.arrayAt(ptr)
	if a == nil {
		return trapArrayBounds()
	}
	if err := checkArrayBounds(idx, int32(len(a.elems))); err != nil {
		return err
	}
	last := len(a.elems) - 1
	a.elems[idx] = a.elems[last]
	a.elems = a.elems[:last]
	return nil
}

// builtinArrayInsert: stack in [value, index, arrayPtr].
func builtinArrayInsert(vm *Vm, s *stack.Stack) error {
	value := s.GetPtr(0)
	idx := s.GetInt(1)
	ptr := s.GetPtr(2)
	s.Pop(3)
	a := vm.arrayAt(ptr)
	if a == nil {
		return trapArrayBounds()
	}
	if err := checkArrayBounds(idx, int32(len(a.elems)+1)); err != nil {
		return err
	}
	a.elems = append(a.elems, 0)
	copy(a.elems[idx+1:], a.elems[idx:])
	a.elems[idx] = value
	return nil
}
