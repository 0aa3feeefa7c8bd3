// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import "testing"

func TestPooledAllocatorReusesPage(t *testing.T) {
	a := &PooledMMapAllocator{}
	defer a.Close()

	first, err := a.AllocateExec([]byte{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	if len(a.blocks) != 1 {
		t.Fatalf("len(blocks) after first alloc = %d, want 1", len(a.blocks))
	}

	second, err := a.AllocateExec([]byte{5, 6})
	if err != nil {
		t.Fatal(err)
	}
	if len(a.blocks) != 1 {
		t.Fatalf("len(blocks) after second small alloc = %d, want 1 (should reuse the page)", len(a.blocks))
	}

	if d := **(**[4]byte)(first.(*asmBlock).mem); d != [4]byte{1, 2, 3, 4} {
		t.Errorf("first = %v, want [1 2 3 4]", d)
	}
	if d := **(**[2]byte)(second.(*asmBlock).mem); d != [2]byte{5, 6} {
		t.Errorf("second = %v, want [5 6]", d)
	}

	// An allocation too large for the remaining pool space must map a new
	// page rather than corrupt the first.
	big := make([]byte, 64*1024)
	big[0] = 9
	_, err = a.AllocateExec(big)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.blocks) != 2 {
		t.Fatalf("len(blocks) after oversized alloc = %d, want 2", len(a.blocks))
	}
}
