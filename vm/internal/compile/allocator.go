// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// +build !appengine

package compile

import (
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"
)

const (
	minAllocSize = 1024
	// allocationAlignment keeps runs on cache-line-friendly boundaries.
	allocationAlignment = 128 - 1
)

type mmapBlock struct {
	mem       mmap.MMap
	consumed  uint32
	remaining uint32
}

// MMapAllocator copies assembled native code into executable pages, one
// mmap'd region per Close-managed block (spec §4.6 "executable-page
// allocation"). A script reaching the JIT threshold compiles many small
// runs (the scanner ends a run at any unsupported opcode or inbound branch
// target), so unlike the
// teacher's version — which always maps a fresh page and leaves a "TODO:
// Use free pages where possible" in AllocateExec — this one first scans
// every still-open block for leftover room and only maps new pages when
// none has enough; PooledMMapAllocator covers the case where bulk-compiling
// a whole function up front makes a single big pool page more economical
// than first-fit scanning across many small ones.
type MMapAllocator struct {
	blocks []*mmapBlock
}

// Close unmaps every page this allocator has handed out.
func (a *MMapAllocator) Close() error {
	for _, block := range a.blocks {
		if err := block.mem.Unmap(); err != nil {
			return err
		}
	}
	return nil
}

// AllocateExec copies asm into the first open block with enough remaining
// room, or a freshly mapped executable region if none qualifies, and
// returns a NativeCodeUnit that can invoke it.
func (a *MMapAllocator) AllocateExec(asm []byte) (NativeCodeUnit, error) {
	aligned := uint32(len(asm)+allocationAlignment) &^ uint32(allocationAlignment)

	for _, block := range a.blocks {
		if block.remaining <= uint32(len(asm)) {
			continue
		}
		off := block.consumed
		copy(block.mem[off:], asm)
		block.consumed += aligned
		block.remaining -= aligned

		sub := block.mem[off:]
		return &asmBlock{mem: unsafe.Pointer(&sub)}, nil
	}

	alloc := minAllocSize
	consumed := aligned
	if int(consumed) > alloc {
		alloc += int(consumed)
	}
	m, err := mmap.MapRegion(nil, alloc, mmap.EXEC|mmap.RDWR, mmap.ANON, int64(0))
	if err != nil {
		return nil, err
	}
	block := &mmapBlock{
		mem:       m,
		consumed:  consumed,
		remaining: uint32(alloc) - consumed,
	}
	a.blocks = append(a.blocks, block)
	copy(m, asm)

	out := asmBlock{mem: unsafe.Pointer(&m)}
	return &out, nil
}
