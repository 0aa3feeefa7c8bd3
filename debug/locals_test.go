// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debug

import "testing"

func TestLocalVarTableLiveSet(t *testing.T) {
	t1 := NewLocalVarTable()
	t1.Define(VarScope{ScopeIndex: 0, Offset: 1}, LocalVar{Name: "x", StartPC: 0, EndPC: 10})
	t1.Define(VarScope{ScopeIndex: 0, Offset: 2}, LocalVar{Name: "y", StartPC: 5, EndPC: 10})
	t1.Define(VarScope{ScopeIndex: 1, Offset: 1}, LocalVar{Name: "z", StartPC: 0, EndPC: 10})

	live := t1.LiveSet(3, []int{0})
	if len(live) != 1 || live[0].Name != "x" {
		t.Fatalf("LiveSet(3, [0]) = %+v, want just x", live)
	}

	live = t1.LiveSet(6, []int{0})
	names := map[string]bool{}
	for _, v := range live {
		names[v.Name] = true
	}
	if len(live) != 2 || !names["x"] || !names["y"] {
		t.Fatalf("LiveSet(6, [0]) = %+v, want x and y", live)
	}

	live = t1.LiveSet(6, []int{0, 1})
	if len(live) != 3 {
		t.Fatalf("LiveSet(6, [0,1]) returned %d vars, want 3", len(live))
	}

	live = t1.LiveSet(20, []int{0})
	if len(live) != 0 {
		t.Fatalf("LiveSet(20, [0]) = %+v, want none (past EndPC)", live)
	}
}
