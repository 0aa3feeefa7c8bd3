// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package program holds everything an external compiler hands to the
// execution core: the constant pool, the global data arena, the native
// function/class tables, and the CompiledProgram aggregate itself (spec §3,
// §6 "Compiled-program consumer contract").
//
// The teacher (go-interpreter/wagon) has no equivalent of a composite
// "compiled program with debug side-tables" object — a wasm.Module plus a
// disassembled, compile.Compile-rewritten function array plays that role
// there. CompiledProgram generalizes that same idea (code + per-function
// side tables produced once, read thereafter) to the spec's richer debug
// and linking metadata.
package program

import (
	"sort"

	"github.com/emberscript/corevm/abi"
)

// Function describes one entry in the program's function index space.
type Function struct {
	Name      string
	EntryPC   int64
	ParamSig  []TypeTag
	ReturnSig []TypeTag
}

// LineEntry is one {pc, line, file} triple in the sorted-by-PC
// code-to-line map (spec §6 codeToLine).
type LineEntry struct {
	PC   int64
	Line int
	File string
}

// VtableRegion marks a {globalOffset, count} span of the global arena
// holding a class's vtable slots, to be patched from PC indices to
// absolute code pointers after linking (spec §6 vtbls[]).
type VtableRegion struct {
	GlobalOffset uint32
	Count        int
}

// SwitchRange marks an inline switch-jump-table PC span so the disassembler
// and JIT skip it during normal decoding (spec §6 switchRange[]).
type SwitchRange struct {
	Start, End int64
}

// CompiledProgram is the opaque-to-the-core unit produced by an external
// compiler (spec §2). It becomes read-only once Link completes, except for
// the in-place breakpoint patch described in §4.8/§5.
type CompiledProgram struct {
	Instructions []uint32 // dense array of 32-bit instructions
	Barriers     []int64  // sorted PC list, JIT flush/align decisions
	Loops        []int64  // sorted PC list, JIT flush/align decisions
	SwitchRanges []SwitchRange

	Functions []Function
	FuncMap   map[int64]int // PC -> function index

	CodeToLine []LineEntry // sorted by PC

	Types          []*DataType
	TypeHash       map[string]int // type name -> index into Types
	ClassTypeHash  map[string]int // class name -> index into Types

	Pool    *ConstPool
	Globals *GlobalArena

	Natives *NativeFuncTable
	Classes map[string]*abi.NativeClass

	VtableRegions []VtableRegion

	GlobalConstIndex int64 // PC of global-ctor entry, -1 if absent
	GlobalDestIndex  int64 // PC of global-dtor entry, -1 if absent

	// savedOpcodes parallels Instructions: when a breakpoint is enabled at
	// a PC, the original low byte is saved here so it can be restored
	// (spec §3 "Lifecycle": "Bytecode instructions: mutable only for
	// breakpoint patching; original opcode bytes are saved in a parallel
	// array").
	savedOpcodes map[int64]byte

	linked bool
}

// LinkFlag controls optional post-link behavior.
type LinkFlag int

const (
	// LinkDefault performs a one-shot link.
	LinkDefault LinkFlag = iota
	// LinkKeepCompiler marks a link by a host that intends to incrementally
	// recompile. Link discards no side table under either flag, so the two
	// flags currently produce the same result.
	LinkKeepCompiler
)

// NewCompiledProgram returns an unlinked program with its side tables
// initialized to empty, ready for an external compiler to populate.
func NewCompiledProgram() *CompiledProgram {
	return &CompiledProgram{
		FuncMap:          make(map[int64]int),
		TypeHash:         make(map[string]int),
		ClassTypeHash:    make(map[string]int),
		Pool:             NewConstPool(),
		Globals:          NewGlobalArena(),
		Natives:          NewNativeFuncTable(),
		Classes:          make(map[string]*abi.NativeClass),
		savedOpcodes:     make(map[int64]byte),
		GlobalConstIndex: -1,
		GlobalDestIndex:  -1,
	}
}

// Link finalizes the program: builds the isa base-chains for every class
// and struct type and sorts the debug side tables so binary search works.
// VtableRegions are left as they are: a code pointer in this core is the
// PC itself, so there is no PC-to-address rewrite to apply. Calling Link twice
// (LinkKeepCompiler followed by any operation) must behave identically to
// a single Link call (testable property 7).
func (p *CompiledProgram) Link(flag LinkFlag) error {
	for _, t := range p.Types {
		if t.Tag == TagClass || t.Tag == TagStruct {
			t.BuildBaseChain(p.Types)
		}
	}
	sort.Slice(p.CodeToLine, func(i, j int) bool { return p.CodeToLine[i].PC < p.CodeToLine[j].PC })
	sort.Slice(p.Barriers, func(i, j int) bool { return p.Barriers[i] < p.Barriers[j] })
	sort.Slice(p.Loops, func(i, j int) bool { return p.Loops[i] < p.Loops[j] })
	sort.Slice(p.SwitchRanges, func(i, j int) bool { return p.SwitchRanges[i].Start < p.SwitchRanges[j].Start })
	p.linked = true
	return nil
}

// Linked reports whether Link has completed.
func (p *CompiledProgram) Linked() bool { return p.linked }

// FuncByPC resolves a PC to the enclosing function via FuncMap (spec §4.8
// stack unwinding support). Source locations come from LineForPC.
func (p *CompiledProgram) FuncByPC(pc int64) (Function, bool) {
	idx, ok := p.FuncMap[pc]
	if !ok {
		return Function{}, false
	}
	if idx < 0 || idx >= len(p.Functions) {
		return Function{}, false
	}
	return p.Functions[idx], true
}

// FunctionByName linearly scans Functions for name. The function index
// space is small relative to a script program's instruction count, so this
// is left as a scan rather than an additional name-keyed map the way
// TypeHash/ClassTypeHash are for types (spec §6 only names functions[] as
// "name, type signature, entry PC", not a name index).
func (p *CompiledProgram) FunctionByName(name string) (Function, bool) {
	for _, fn := range p.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return Function{}, false
}

// LineForPC binary-searches CodeToLine for the entry covering pc.
func (p *CompiledProgram) LineForPC(pc int64) (LineEntry, bool) {
	i := sort.Search(len(p.CodeToLine), func(i int) bool { return p.CodeToLine[i].PC > pc }) - 1
	if i < 0 {
		return LineEntry{}, false
	}
	return p.CodeToLine[i], true
}

// InSwitchTable reports whether pc falls inside an inline switch jump
// table, so disassemblers and the JIT can skip decoding it as an
// instruction.
func (p *CompiledProgram) InSwitchTable(pc int64) bool {
	for _, r := range p.SwitchRanges {
		if pc >= r.Start && pc < r.End {
			return true
		}
	}
	return false
}

// PatchOpcode overwrites the low byte of the instruction at pc, saving the
// original byte the first time it is patched at that PC (used by the
// breakpoint mechanism, spec §4.8).
func (p *CompiledProgram) PatchOpcode(pc int64, newOp byte) (original byte) {
	word := p.Instructions[pc]
	original = byte(word)
	if _, saved := p.savedOpcodes[pc]; !saved {
		p.savedOpcodes[pc] = original
	}
	p.Instructions[pc] = (word &^ 0xff) | uint32(newOp)
	return original
}

// RestoreOpcode restores the low byte previously saved by PatchOpcode.
func (p *CompiledProgram) RestoreOpcode(pc int64) {
	orig, ok := p.savedOpcodes[pc]
	if !ok {
		return
	}
	word := p.Instructions[pc]
	p.Instructions[pc] = (word &^ 0xff) | uint32(orig)
	delete(p.savedOpcodes, pc)
}

// SavedOpcode returns the original opcode byte saved at pc, if patched.
func (p *CompiledProgram) SavedOpcode(pc int64) (byte, bool) {
	b, ok := p.savedOpcodes[pc]
	return b, ok
}
