// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package program

import "sort"

// TypeTag enumerates the script-visible data type kinds (spec §3 "Data
// type descriptor"). Per the spec's design notes (§9), the original
// engine's deep inheritance hierarchy for type nodes is re-architected
// here as a flat record with a tag enum and per-variant fields — a sum
// type, which Go expresses as a tagged struct rather than a class tree.
type TypeTag int

const (
	TagBool TypeTag = iota
	TagInt
	TagFloat
	TagDouble
	TagString
	TagEnum
	TagStruct
	TagClass
	TagStrongPtr
	TagWeakPtr
	TagRawPtr
	TagStaticArray
	TagDynamicArray
	TagArrayRef
	TagFuncPtr
	TagDelegate
	TagName
)

// Member describes one field of a struct/class type.
type Member struct {
	Name   string
	Type   int // index into Program.Types
	Offset uint32
}

// DataType is one script-visible type descriptor. Raw-pointer cycles
// between type nodes in the original engine (class <-> member-of <->
// array-element-of) are replaced per the spec's design notes with
// arena-with-indices: Base and ElementType are indices into the owning
// Program.Types arena rather than owned pointers, so the arena alone owns
// every descriptor and cross-references can never leak or cycle-leak.
type DataType struct {
	Tag      TypeTag
	Name     string
	Size     uint32
	Align    uint32
	Members  []Member

	Base        int // index into Program.Types, or -1
	ElementType int // index into Program.Types, or -1 (arrays/pointers)

	// Optional generated-code entry points; -1 when absent.
	CtorPC        int64
	DtorPC        int64
	AssignPC      int64
	VirtualCtorPC int64
	VirtualDtorPC int64
	VirtualAssignPC int64

	// Optional native hooks, nil when the type is pure-script.
	NativeCtor func()
	NativeDtor func()

	// SortedBaseNames is the pre-built sorted name set used for fast isa
	// tests (spec §4.5 GenBaseChain).
	SortedBaseNames []string

	// Methods maps a method name to a signed index: positive is a PC,
	// negative is a negated vtable slot, zero means absent.
	Methods map[string]int64
}

// NewDataType returns a descriptor with PC fields defaulted to "absent"
// (-1) and Base/ElementType defaulted to "none" (-1).
func NewDataType(tag TypeTag, name string) *DataType {
	return &DataType{
		Tag: tag, Name: name,
		Base: -1, ElementType: -1,
		CtorPC: -1, DtorPC: -1, AssignPC: -1,
		VirtualCtorPC: -1, VirtualDtorPC: -1, VirtualAssignPC: -1,
		Methods: make(map[string]int64),
	}
}

// BuildBaseChain sorts and stores this type's own name plus every base
// name reachable by following Base through types, for binary-search isa
// tests.
func (d *DataType) BuildBaseChain(types []*DataType) {
	names := map[string]struct{}{d.Name: {}}
	cur := d.Base
	for cur >= 0 && cur < len(types) {
		t := types[cur]
		names[t.Name] = struct{}{}
		cur = t.Base
	}
	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}
	sort.Strings(out)
	d.SortedBaseNames = out
}

// IsA binary-searches SortedBaseNames for name.
func (d *DataType) IsA(name string) bool {
	i := sort.SearchStrings(d.SortedBaseNames, name)
	return i < len(d.SortedBaseNames) && d.SortedBaseNames[i] == name
}

// MemberOffset looks up a struct/class field's byte offset by name.
func (d *DataType) MemberOffset(name string) (uint32, bool) {
	for _, m := range d.Members {
		if m.Name == name {
			return m.Offset, true
		}
	}
	return 0, false
}

// MethodIndex looks up a method by name, returning its signed index and
// whether it was found (0 and false both indicate absence, per spec:
// "zero = absent").
func (d *DataType) MethodIndex(name string) (int64, bool) {
	idx, ok := d.Methods[name]
	if !ok || idx == 0 {
		return 0, false
	}
	return idx, true
}
