// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package program

import (
	"bytes"
	"testing"
)

func buildSampleProgram() *CompiledProgram {
	p := NewCompiledProgram()
	p.Instructions = []uint32{1, 2, 3, 4}
	p.Barriers = []int64{2}
	p.Loops = []int64{0}
	p.SwitchRanges = []SwitchRange{{Start: 10, End: 20}}
	p.Functions = []Function{
		{Name: "main", EntryPC: 0, ParamSig: nil, ReturnSig: []TypeTag{TagInt}},
		{Name: "helper", EntryPC: 2, ParamSig: []TypeTag{TagInt, TagFloat}},
	}
	p.CodeToLine = []LineEntry{
		{PC: 0, Line: 1, File: "a.lc"},
		{PC: 2, Line: 2, File: "a.lc"},
	}

	base := NewDataType(TagClass, "Entity")
	base.Size, base.Align = 16, 8
	derived := NewDataType(TagClass, "Pawn")
	derived.Base = 0
	derived.Members = []Member{{Name: "hp", Type: 0, Offset: 0}}
	derived.Methods["Update"] = 4
	p.Types = []*DataType{base, derived}

	p.Globals.Alloc("score", 4, 4)
	p.Pool.AddInt32(42)
	p.Pool.AddString("hello")
	p.Pool.AddName("Pawn")
	p.Pool.AddFloat(1.5)
	p.Pool.AddDouble(2.25)

	p.VtableRegions = []VtableRegion{{GlobalOffset: 0, Count: 2}}
	p.GlobalConstIndex = -1
	p.GlobalDestIndex = -1
	return p
}

func TestProgramWriteReadRoundTrip(t *testing.T) {
	want := buildSampleProgram()

	var buf bytes.Buffer
	if err := want.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if len(got.Instructions) != len(want.Instructions) {
		t.Fatalf("Instructions length = %d, want %d", len(got.Instructions), len(want.Instructions))
	}
	for i := range want.Instructions {
		if got.Instructions[i] != want.Instructions[i] {
			t.Fatalf("Instructions[%d] = %d, want %d", i, got.Instructions[i], want.Instructions[i])
		}
	}

	if len(got.Functions) != 2 || got.Functions[0].Name != "main" || got.Functions[1].Name != "helper" {
		t.Fatalf("Functions round-tripped wrong: %+v", got.Functions)
	}
	if len(got.Functions[1].ParamSig) != 2 || got.Functions[1].ParamSig[1] != TagFloat {
		t.Fatalf("ParamSig round-tripped wrong: %+v", got.Functions[1].ParamSig)
	}

	if len(got.CodeToLine) != 2 || got.CodeToLine[1].Line != 2 {
		t.Fatalf("CodeToLine round-tripped wrong: %+v", got.CodeToLine)
	}

	if len(got.Types) != 2 || got.Types[1].Name != "Pawn" || got.Types[1].Base != 0 {
		t.Fatalf("Types round-tripped wrong: %+v", got.Types)
	}
	if idx, ok := got.Types[1].Methods["Update"]; !ok || idx != 4 {
		t.Fatalf("Methods round-tripped wrong: %+v", got.Types[1].Methods)
	}

	if off, ok := got.Globals.Offset("score"); !ok || off != 0 {
		t.Fatalf("Globals round-tripped wrong: off=%d ok=%v", off, ok)
	}

	if got.Pool.Int32(0) != 42 || got.Pool.String(0) != "hello" || got.Pool.Name(0) != "Pawn" {
		t.Fatalf("Pool round-tripped wrong: int32=%d string=%q name=%q",
			got.Pool.Int32(0), got.Pool.String(0), got.Pool.Name(0))
	}
	if got.Pool.Float(0) != 1.5 || got.Pool.Double(0) != 2.25 {
		t.Fatalf("Pool float/double round-tripped wrong: %v %v", got.Pool.Float(0), got.Pool.Double(0))
	}

	if len(got.VtableRegions) != 1 || got.VtableRegions[0].Count != 2 {
		t.Fatalf("VtableRegions round-tripped wrong: %+v", got.VtableRegions)
	}

	// Link must succeed on the decoded program and rebuild the base chain
	// that BuildBaseChain computes at link time rather than encoding it.
	if err := got.Link(LinkDefault); err != nil {
		t.Fatalf("Link decoded program: %v", err)
	}
	if !got.Types[1].IsA("Entity") {
		t.Fatal("decoded Pawn should IsA(\"Entity\") after Link rebuilds the base chain")
	}

	if _, ok := got.ClassTypeHash["Pawn"]; !ok {
		t.Fatal("ClassTypeHash was not rebuilt for decoded class types")
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte{0, 0, 0, 0}))
	if err == nil {
		t.Fatal("Read should reject a stream without the program magic header")
	}
}
