// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package program

// ConstPool holds the per-program, read-only-after-link sub-arenas of
// literal values (spec §3 "Constant pool"). Every Add path returns the
// element index; the 32-bit, 64-bit, float, double, string and name
// sub-arenas deduplicate through a hash index, while the byte and 16-bit
// sub-arenas append every value without deduplication, mirroring the
// teacher's pattern of interning shared data (wagon interns branch tables
// and, at the wasm-encoding layer, LEB128 literals) generalized here to a
// typed, per-kind arena set.
type ConstPool struct {
	bytes   []byte
	int16s  []int16
	int32s  []int32
	int64s  []int64
	floats  []float32
	doubles []float64
	strings []string
	names   []string

	int32Index  map[int32]uint32
	int64Index  map[int64]uint32
	floatIndex  map[float32]uint32
	doubleIndex map[float64]uint32
	stringIndex map[string]uint32
	nameIndex   map[string]uint32
}

// NewConstPool returns an empty pool ready for Add* calls.
func NewConstPool() *ConstPool {
	return &ConstPool{
		int32Index:  make(map[int32]uint32),
		int64Index:  make(map[int64]uint32),
		floatIndex:  make(map[float32]uint32),
		doubleIndex: make(map[float64]uint32),
		stringIndex: make(map[string]uint32),
		nameIndex:   make(map[string]uint32),
	}
}

// AddByte appends a boolean/byte literal; this sub-arena is not
// deduplicated since single bytes gain nothing from interning.
func (p *ConstPool) AddByte(v byte) uint32 {
	p.bytes = append(p.bytes, v)
	return uint32(len(p.bytes) - 1)
}

// AddInt16 appends a 16-bit literal.
func (p *ConstPool) AddInt16(v int16) uint32 {
	p.int16s = append(p.int16s, v)
	return uint32(len(p.int16s) - 1)
}

// AddInt32 deduplicates and returns the index of a 32-bit literal.
func (p *ConstPool) AddInt32(v int32) uint32 {
	if idx, ok := p.int32Index[v]; ok {
		return idx
	}
	p.int32s = append(p.int32s, v)
	idx := uint32(len(p.int32s) - 1)
	p.int32Index[v] = idx
	return idx
}

// AddInt64 deduplicates and returns the index of a 64-bit literal.
func (p *ConstPool) AddInt64(v int64) uint32 {
	if idx, ok := p.int64Index[v]; ok {
		return idx
	}
	p.int64s = append(p.int64s, v)
	idx := uint32(len(p.int64s) - 1)
	p.int64Index[v] = idx
	return idx
}

// AddFloat deduplicates and returns the index of a float literal.
func (p *ConstPool) AddFloat(v float32) uint32 {
	if idx, ok := p.floatIndex[v]; ok {
		return idx
	}
	p.floats = append(p.floats, v)
	idx := uint32(len(p.floats) - 1)
	p.floatIndex[v] = idx
	return idx
}

// AddDouble deduplicates and returns the index of a double literal.
func (p *ConstPool) AddDouble(v float64) uint32 {
	if idx, ok := p.doubleIndex[v]; ok {
		return idx
	}
	p.doubles = append(p.doubles, v)
	idx := uint32(len(p.doubles) - 1)
	p.doubleIndex[v] = idx
	return idx
}

// AddString deduplicates and returns the index of a string literal.
func (p *ConstPool) AddString(v string) uint32 {
	if idx, ok := p.stringIndex[v]; ok {
		return idx
	}
	p.strings = append(p.strings, v)
	idx := uint32(len(p.strings) - 1)
	p.stringIndex[v] = idx
	return idx
}

// AddName interns an identifier into the name table, returning an index
// compared by integer identity thereafter (spec GLOSSARY "Interned name").
func (p *ConstPool) AddName(v string) uint32 {
	if idx, ok := p.nameIndex[v]; ok {
		return idx
	}
	p.names = append(p.names, v)
	idx := uint32(len(p.names) - 1)
	p.nameIndex[v] = idx
	return idx
}

// Byte, Int16, Int32, Int64, Float, Double, String, Name read back an
// element previously added to the corresponding sub-arena.
func (p *ConstPool) Byte(i uint32) byte       { return p.bytes[i] }
func (p *ConstPool) Int16(i uint32) int16     { return p.int16s[i] }
func (p *ConstPool) Int32(i uint32) int32     { return p.int32s[i] }
func (p *ConstPool) Int64(i uint32) int64     { return p.int64s[i] }
func (p *ConstPool) Float(i uint32) float32   { return p.floats[i] }
func (p *ConstPool) Double(i uint32) float64  { return p.doubles[i] }
func (p *ConstPool) String(i uint32) string   { return p.strings[i] }
func (p *ConstPool) Name(i uint32) string     { return p.names[i] }

// NameIndex returns the interned index of name if present, and whether it
// was found — used by the debugger and SET_STATE_LABEL to resolve names
// back to indices without re-interning.
func (p *ConstPool) NameIndex(name string) (uint32, bool) {
	idx, ok := p.nameIndex[name]
	return idx, ok
}
