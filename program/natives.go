// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package program

import "github.com/emberscript/corevm/abi"

// NativeFuncTable is a sequence of function pointers conforming to the
// native-call ABI (spec §3, §6). Lookup is by fully-qualified string name
// at link time, yielding a stable index consumed by the NCALL/NMCALL
// opcode family — directly analogous to the teacher's FunctionIndexSpace
// host-function lookup in wagon's NewVM (`fn.IsHost()` branch), generalized
// from wasm import names to arbitrary native-function names.
type NativeFuncTable struct {
	fns   []abi.NativeFunc
	index map[string]uint32
}

// NewNativeFuncTable returns an empty table.
func NewNativeFuncTable() *NativeFuncTable {
	return &NativeFuncTable{index: make(map[string]uint32)}
}

// Register appends fn under name, returning its stable index. Registering
// the same name twice replaces the function but keeps its index, so
// existing NCALL sites compiled against that index keep working.
func (t *NativeFuncTable) Register(name string, fn abi.NativeFunc) uint32 {
	if idx, ok := t.index[name]; ok {
		t.fns[idx] = fn
		return idx
	}
	t.fns = append(t.fns, fn)
	idx := uint32(len(t.fns) - 1)
	t.index[name] = idx
	return idx
}

// Lookup resolves a fully-qualified name to its stable index.
func (t *NativeFuncTable) Lookup(name string) (uint32, bool) {
	idx, ok := t.index[name]
	return idx, ok
}

// At returns the native function at idx.
func (t *NativeFuncTable) At(idx uint32) abi.NativeFunc {
	if int(idx) >= len(t.fns) {
		return nil
	}
	return t.fns[idx]
}

// Len returns the number of registered native functions.
func (t *NativeFuncTable) Len() int { return len(t.fns) }
