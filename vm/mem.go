// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"unsafe"

	"github.com/emberscript/corevm/object"
	"github.com/emberscript/corevm/stack"
)

// The script heap is addressed the same way the generated bytecode
// addresses it: as raw, pointer-sized stack words (spec §3 "Object
// header", §6 native-call ABI). Recovering a Go pointer from such a word
// is inherently unsafe — the same trust boundary the teacher's JIT
// trampoline crosses in exec/internal/compile/native_exec.go, which casts
// an unsafe.Pointer back into a function value to invoke compiled code.

func ptrFromWord(w stack.Word) unsafe.Pointer {
	return unsafe.Pointer(uintptr(w))
}

func wordFromPtr(p unsafe.Pointer) stack.Word {
	return stack.Word(uintptr(p))
}

func headerFromWord(w stack.Word) *object.Header {
	if w == 0 {
		return nil
	}
	return (*object.Header)(ptrFromWord(w))
}

// writeDelegateAt stores dg into the two words immediately following
// offset bytes past h's header — the instance member layout a class
// descriptor's Members table assigns (spec §4.4 SET_STATE_LABEL).
func writeDelegateAt(h *object.Header, offset uint32, dg object.Delegate) {
	if h == nil {
		return
	}
	base := uintptr(unsafe.Pointer(h)) + uintptr(offset)
	*(*object.Delegate)(unsafe.Pointer(base)) = dg
}

// The indirect-access opcode family (PLOAD*/PSTORE*, spec §4.3) addresses
// raw memory through a base pointer plus a byte offset computed at
// dispatch time — either an index scaled by the instruction's own uimm24
// element size, or a signed immediate offset for the _IMM forms. These
// helpers do the actual typed access once that address has been computed;
// sub-word loads sign/zero-extend into a full int32 the way stack slots
// already store narrower locals and globals.

func addrAt(base unsafe.Pointer, off int64) unsafe.Pointer {
	return unsafe.Pointer(uintptr(base) + uintptr(off))
}

func loadInt8At(base unsafe.Pointer, off int64) int32 {
	return int32(*(*int8)(addrAt(base, off)))
}

func loadUint8At(base unsafe.Pointer, off int64) int32 {
	return int32(*(*uint8)(addrAt(base, off)))
}

func loadInt16At(base unsafe.Pointer, off int64) int32 {
	return int32(*(*int16)(addrAt(base, off)))
}

func loadUint16At(base unsafe.Pointer, off int64) int32 {
	return int32(*(*uint16)(addrAt(base, off)))
}

func loadInt32At(base unsafe.Pointer, off int64) int32 {
	return *(*int32)(addrAt(base, off))
}

func loadFloat64At(base unsafe.Pointer, off int64) float64 {
	return *(*float64)(addrAt(base, off))
}

func loadPtrAt(base unsafe.Pointer, off int64) stack.Word {
	return wordFromPtr(*(*unsafe.Pointer)(addrAt(base, off)))
}

func storeInt8At(base unsafe.Pointer, off int64, v int32) {
	*(*int8)(addrAt(base, off)) = int8(v)
}

func storeInt16At(base unsafe.Pointer, off int64, v int32) {
	*(*int16)(addrAt(base, off)) = int16(v)
}

func storeInt32At(base unsafe.Pointer, off int64, v int32) {
	*(*int32)(addrAt(base, off)) = v
}

func storeFloat64At(base unsafe.Pointer, off int64, v float64) {
	*(*float64)(addrAt(base, off)) = v
}

func storePtrAt(base unsafe.Pointer, off int64, v stack.Word) {
	*(*unsafe.Pointer)(addrAt(base, off)) = ptrFromWord(v)
}

// storeWordAt writes a full pointer-sized word, backing PSTORE_IMM's
// generic "store whatever the source slot holds" form (spec §4.3: the
// immediate-offset store family has no narrower-than-word variant of its
// own in the source material this core is built from, so field writes
// narrower than a word go through generated mask-merge code rather than a
// dedicated opcode).
func storeWordAt(base unsafe.Pointer, off int64, v stack.Word) {
	*(*stack.Word)(addrAt(base, off)) = v
}
