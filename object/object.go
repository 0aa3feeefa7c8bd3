// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package object implements the reference-counted object model and the
// strong/weak/raw smart-pointer discipline (spec §3 "Object header", §4.5).
//
// This component has no analogue in the teacher (go-interpreter/wagon):
// WebAssembly has no classes or reference counting. It is built from
// scratch in the teacher's idiom — plain structs, explicit offsets,
// sync/atomic for the counters the spec's design notes (§9) direct hosts
// to use ("use the host language's atomic primitives... decrement must be
// acquire-release, and the transition to zero must synchronize with the
// free").
package object

import "sync/atomic"

// VTable is a per-class array of virtual-method code pointers held in the
// global data arena. Per spec §3, the engine-back-pointer and destructor
// trampoline live at fixed negative offsets ahead of the indexed slots.
type VTable struct {
	EnginePtr  uintptr        // slot -2
	Destructor uintptr        // slot -1: virtual destructor trampoline
	Methods    []uintptr      // indexed virtual-method pointers, slot >= 0
}

// Header is the prefix of every heap-allocated class instance (spec §3).
type Header struct {
	ScriptVtbl *VTable

	strongRefCount int32
	weakRefCount   int32
}

// NewHeader allocates a header in the newly-created state: zero strong
// references, one weak reference representing the "strong group" (spec
// §3: "initial value 1, the logical strong group holds one weak").
func NewHeader(vt *VTable) *Header {
	return &Header{ScriptVtbl: vt, strongRefCount: 0, weakRefCount: 1}
}

// StrongRefCount reads the current strong count.
func (h *Header) StrongRefCount() int32 { return atomic.LoadInt32(&h.strongRefCount) }

// WeakRefCount reads the current weak count.
func (h *Header) WeakRefCount() int32 { return atomic.LoadInt32(&h.weakRefCount) }

// IsDead reports whether strongRefCount has reached zero — per spec, this
// makes the object "dead" even if weak refs remain, and any weak pointer
// load observing this must null-fix (§4.5 FIX_WEAK).
func (h *Header) IsDead() bool { return h.StrongRefCount() == 0 }

// Deallocator is invoked exactly once, when weakRefCount transitions 1->0
// (spec invariant: "an object is freed exactly once").
type Deallocator func(h *Header)

// AddRefStrong increments the strong count iff the object pointer is
// non-nil (builtin ADD_STRONG, spec §4.4). Increment may be relaxed per the
// spec's design notes.
func AddRefStrong(h *Header) {
	if h == nil {
		return
	}
	atomic.AddInt32(&h.strongRefCount, 1)
}

// AddRefWeak increments the weak count iff the object pointer is non-nil.
func AddRefWeak(h *Header) {
	if h == nil {
		return
	}
	atomic.AddInt32(&h.weakRefCount, 1)
}

// DecRefStrong decrements the strong count and returns its new value; the
// caller (the builtin's bytecode-visible contract) branches on zero to run
// the virtual destructor followed by StrongZero (spec §4.5).
func DecRefStrong(h *Header) int32 {
	if h == nil {
		return 0
	}
	return atomic.AddInt32(&h.strongRefCount, -1)
}

// StrongZero decrements the weak count — since the strong group held one
// weak reference — and frees the object via dealloc if the weak count
// reaches zero (builtin STRONG_ZERO, spec §4.4).
func StrongZero(h *Header, dealloc Deallocator) {
	if h == nil {
		return
	}
	if atomic.AddInt32(&h.weakRefCount, -1) == 0 {
		if dealloc != nil {
			dealloc(h)
		}
	}
}

// DecRefWeak decrements the weak count; if it reaches zero the object is
// deallocated. If the strong count is already zero, the caller's slot must
// be nulled by the generated code (builtin DEC_WEAK, spec §4.4).
func DecRefWeak(h *Header, dealloc Deallocator) (nullOut bool) {
	if h == nil {
		return false
	}
	if atomic.AddInt32(&h.weakRefCount, -1) == 0 {
		if dealloc != nil {
			dealloc(h)
		}
	}
	return h.StrongRefCount() == 0
}

// FixWeak nulls the pointer if the target's strong count has already
// reached zero (builtin FIX_WEAK, spec §4.5 weak-fix law: testable
// property 4). Used on every weak-pointer load and copy.
func FixWeak(h *Header) *Header {
	if h == nil || h.IsDead() {
		return nil
	}
	return h
}

// AddRefStrongAfterNew performs AddRefStrong and then invokes the engine's
// "new object" callback for native mirror setup (builtin
// ADD_STRONG_AFTER_NEW, spec §4.4).
func AddRefStrongAfterNew(h *Header, onNew func(*Header)) {
	AddRefStrong(h)
	if onNew != nil {
		onNew(h)
	}
}

// ClassDesc is a minimal runtime-side view of a class's hierarchy, enough
// to support binary-searching isa tests (spec §4.5 "GenBaseChain").
type ClassDesc struct {
	// SortedBaseNames is the pre-built, sorted set of this class's own name
	// plus every ancestor's name.
	SortedBaseNames []string
}

// IsA binary-searches the class's sorted base-chain for name.
func (c *ClassDesc) IsA(name string) bool {
	lo, hi := 0, len(c.SortedBaseNames)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case c.SortedBaseNames[mid] == name:
			return true
		case c.SortedBaseNames[mid] < name:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return false
}

// Delegate is a two-word {instance, target} bound callable (spec §3).
// If the low bit of Target is 1, the upper bits encode a shifted vtable
// index rather than a direct code pointer; bit 1 marks "instance is a
// struct, not an object" so the deref logic skips the vtable path.
type Delegate struct {
	Instance uintptr
	Target   uintptr
}

const (
	delegateVtableBit = 1 << 0
	delegateStructBit = 1 << 1
)

// IsVtableIndexed reports whether Target encodes a vtable slot rather than
// a direct code pointer.
func (d Delegate) IsVtableIndexed() bool { return d.Target&delegateVtableBit != 0 }

// IsStructInstance reports whether Instance refers to a struct value
// rather than a heap object (so the deref logic must skip the vtable
// path).
func (d Delegate) IsStructInstance() bool { return d.Target&delegateStructBit != 0 }

// VtableIndex decodes the shifted vtable index out of Target. Only valid
// when IsVtableIndexed is true.
func (d Delegate) VtableIndex() int {
	return int(d.Target >> 2)
}

// Equal implements the builtin delegate-comparison semantics: equal iff
// both words match (spec §4.4).
func (d Delegate) Equal(o Delegate) bool {
	return d.Instance == o.Instance && d.Target == o.Target
}

// Resolve returns the concrete code pointer for this delegate, given the
// vtable to index into when IsVtableIndexed is true.
func (d Delegate) Resolve(vt *VTable) uintptr {
	if !d.IsVtableIndexed() {
		return d.Target
	}
	idx := d.VtableIndex()
	if vt == nil || idx < 0 || idx >= len(vt.Methods) {
		return 0
	}
	return vt.Methods[idx]
}
