// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// +build !appengine

package compile

import "unsafe"

// NativeCodeUnit is an assembled, mapped, directly-invocable run of native
// instructions (spec §4.6).
type NativeCodeUnit interface {
	// Invoke runs the compiled range against stackHeader — the slice
	// header backing a *stack.Stack's operand words, obtained via
	// stack.Stack.SlotsHeader (spec §6 native-call ABI: "&Stack-passing
	// contract", generalized here to the JIT's raw-word view of it).
	Invoke(stackHeader *[]uint64)
}

type asmBlock struct {
	mem unsafe.Pointer
}

// Invoke casts the mapped executable region back into a callable Go
// function value and calls it with the stack's slice header. This crosses
// the same trust boundary as the teacher's asmBlock.Invoke
// (exec/internal/compile/native_exec.go): the page was written by
// AllocateExec, never by arbitrary input, so the cast is sound by
// construction rather than validated at the type level.
func (b *asmBlock) Invoke(stackHeader *[]uint64) {
	f := (uintptr)(unsafe.Pointer(&b.mem))
	fp := **(**func(unsafe.Pointer))(unsafe.Pointer(&f))
	fp(unsafe.Pointer(stackHeader))
}
