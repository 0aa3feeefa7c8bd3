// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// +build !appengine

package compile

import "testing"

func TestMMapAllocator(t *testing.T) {
	a := &MMapAllocator{}
	defer a.Close()

	shortAlloc, err := a.AllocateExec([]byte{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	if d := **(**[4]byte)(shortAlloc.(*asmBlock).mem); d != [4]byte{1, 2, 3, 4} {
		t.Errorf("shortAlloc = %d, want [4]byte{1,2,3,4}", d)
	}
	last := a.blocks[len(a.blocks)-1]
	if want := uint32(128); last.consumed != want {
		t.Errorf("last.consumed = %d, want %d", last.consumed, want)
	}
	if want := uint32(minAllocSize - allocationAlignment - 1); last.remaining != want {
		t.Errorf("last.remaining = %d, want %d", last.remaining, want)
	}

	// Allocation of a massive slice should grow by exactly its own size
	// plus one fresh minAllocSize block.
	b := make([]byte, 36*1024)
	b[1] = 5
	massiveAlloc, err := a.AllocateExec(b)
	if err != nil {
		t.Fatal(err)
	}
	if d := **(**[2]byte)(massiveAlloc.(*asmBlock).mem); d != [2]byte{0, 5} {
		t.Errorf("massiveAlloc = %d, want [2]byte{0,5}", d)
	}
	last = a.blocks[len(a.blocks)-1]
	if want := uint32(36 * 1024); last.consumed != want {
		t.Errorf("last.consumed = %d, want %d", last.consumed, want)
	}
	if want := uint32(minAllocSize); last.remaining != want {
		t.Errorf("last.remaining = %d, want %d", last.remaining, want)
	}
}
