// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package context

import (
	"fmt"

	"github.com/emberscript/corevm/opcode"
	"github.com/emberscript/corevm/stack"
)

// ArrayCmd selects the dynamic-array operation ArrayInterface dispatches
// (spec §4.7 "ArrayInterface(type, cmd, array_ptr, param, int_param)").
// The type tag named in the spec is carried by the caller's own script
// type system rather than by this dispatcher — every element is a single
// stack.Word regardless of script-level element type, the same
// representation vm/builtin_array.go's dynArray already uses.
type ArrayCmd int

const (
	ArrayResize ArrayCmd = iota
	ArrayReserve
	ArrayPush
	ArrayPop
	ArrayClear
	ArrayErase
	ArrayEraseFast
	ArrayInsert
)

// ArrayInterface performs cmd against the array at arrayPtr, the single
// entry point native host code uses to manipulate a script-visible
// dynamic array without a full CALL/RET-framed script invocation (spec
// §4.7). param carries a value-typed argument (ArrayPush's pushed value,
// ArrayInsert's inserted value); intParam carries an index or size.
//
// It returns the popped value for ArrayPop and zero for every other
// command that doesn't produce one.
func (c *ScriptContext) ArrayInterface(cmd ArrayCmd, arrayPtr, param stack.Word, intParam int32) (stack.Word, error) {
	s := c.stack
	s.EnterNative()
	defer s.LeaveNative()

	var builtin opcode.Builtin
	switch cmd {
	case ArrayResize:
		builtin = opcode.BuiltinArrayResize
		s.PushPtr(arrayPtr)
		s.PushInt(intParam)
	case ArrayReserve:
		builtin = opcode.BuiltinArrayReserve
		s.PushPtr(arrayPtr)
		s.PushInt(intParam)
	case ArrayPush:
		builtin = opcode.BuiltinArrayPush
		s.PushPtr(arrayPtr)
		s.PushPtr(param)
	case ArrayPop:
		builtin = opcode.BuiltinArrayPop
		s.PushPtr(arrayPtr)
	case ArrayClear:
		builtin = opcode.BuiltinArrayClear
		s.PushPtr(arrayPtr)
	case ArrayErase:
		builtin = opcode.BuiltinArrayErase
		s.PushPtr(arrayPtr)
		s.PushInt(intParam)
	case ArrayEraseFast:
		builtin = opcode.BuiltinArrayEraseFast
		s.PushPtr(arrayPtr)
		s.PushInt(intParam)
	case ArrayInsert:
		builtin = opcode.BuiltinArrayInsert
		s.PushPtr(arrayPtr)
		s.PushInt(intParam)
		s.PushPtr(param)
	default:
		return 0, fmt.Errorf("context: unknown array command %d", cmd)
	}

	if err := c.vm.CallBuiltin(builtin, s); err != nil {
		return 0, err
	}

	if cmd == ArrayPop {
		v := s.GetPtr(0)
		s.Pop(1)
		return v, nil
	}
	return 0, nil
}

