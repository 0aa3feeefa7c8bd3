// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import (
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"
)

// PooledMMapAllocator packs multiple compiled runs into the same
// executable page when room remains, checking only the most recently
// mapped page rather than scanning every open block first-fit the way
// MMapAllocator does. A program with many short JIT-eligible runs
// — the common case once the scanner's minRunLength cutoff is in effect —
// benefits from amortizing the mmap syscall across them. Adapted from the
// teacher's second, pooling allocator variant
// (exec/internal/compile/native/allocator.go), which that package kept
// separate from the primary one-page-per-run allocator; here both
// strategies live side by side in one package so a caller picks per
// workload instead of the two implementations drifting unreferenced.
type PooledMMapAllocator struct {
	last   *mmapBlock
	blocks []*mmapBlock
}

const (
	pooledMinAllocSize        = 32 * 1024
	pooledAllocationAlignment = 2048 - 1
)

// Close unmaps every page this allocator has handed out.
func (a *PooledMMapAllocator) Close() error {
	for _, block := range a.blocks {
		if err := block.mem.Unmap(); err != nil {
			return err
		}
	}
	return nil
}

// AllocateExec copies asm into the current pool page if room remains,
// otherwise maps a fresh page sized to hold at least pooledMinAllocSize.
func (a *PooledMMapAllocator) AllocateExec(asmCode []byte) (NativeCodeUnit, error) {
	if a.last != nil && a.last.remaining > uint32(len(asmCode)) {
		off := a.last.consumed
		copy(a.last.mem[off:], asmCode)

		aligned := uint32(len(asmCode)+pooledAllocationAlignment) &^ uint32(pooledAllocationAlignment)
		a.last.consumed += aligned
		a.last.remaining -= aligned

		sub := a.last.mem[off:]
		return &asmBlock{mem: unsafe.Pointer(&sub)}, nil
	}

	alloc := pooledMinAllocSize
	consumed := uint32(len(asmCode)+pooledAllocationAlignment) &^ uint32(pooledAllocationAlignment)
	if int(consumed) > alloc {
		alloc += int(consumed)
	}
	m, err := mmap.MapRegion(nil, alloc, mmap.EXEC|mmap.RDWR, mmap.ANON, int64(0))
	if err != nil {
		return nil, err
	}
	a.last = &mmapBlock{
		mem:       m,
		consumed:  consumed,
		remaining: uint32(alloc) - consumed,
	}
	a.blocks = append(a.blocks, a.last)
	copy(m[:len(asmCode)], asmCode)

	return &asmBlock{mem: unsafe.Pointer(&m)}, nil
}
