// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package program

// globalAlignment is the cache-line alignment the spec requires for the
// global data arena ("a cache-aligned byte array holding program-wide
// mutable state").
const globalAlignment = 64

// GlobalArena is the mutable, program-wide byte array backing script
// globals and vtables. It holds no native-function-pointer table; the JIT
// emits no NCALL.
type GlobalArena struct {
	data  []byte
	names map[string]uint32
}

// NewGlobalArena returns an empty, cache-aligned arena.
func NewGlobalArena() *GlobalArena {
	return &GlobalArena{
		data:  make([]byte, 0, globalAlignment),
		names: make(map[string]uint32),
	}
}

// Alloc reserves size bytes, aligned to align, and associates the
// resulting byte offset with name so later GLOAD/GSTORE-family opcodes can
// resolve by that name at link time. Returns the aligned byte offset.
func (g *GlobalArena) Alloc(name string, size, align uint32) uint32 {
	if align == 0 {
		align = 1
	}
	cur := uint32(len(g.data))
	padded := (cur + align - 1) / align * align
	if int(padded) > len(g.data) {
		g.data = append(g.data, make([]byte, int(padded)-len(g.data))...)
	}
	g.data = append(g.data, make([]byte, size)...)
	if name != "" {
		g.names[name] = padded
	}
	return padded
}

// Offset resolves a previously allocated global's byte offset by name.
func (g *GlobalArena) Offset(name string) (uint32, bool) {
	off, ok := g.names[name]
	return off, ok
}

// Bytes exposes the raw backing array, e.g. for the JIT's global-base
// register or the debugger's memory inspector.
func (g *GlobalArena) Bytes() []byte { return g.data }

// Len returns the current arena size in bytes.
func (g *GlobalArena) Len() int { return len(g.data) }
