// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debug

// VarScope identifies the {scope-index, offset} key spec §4.8 uses to
// address one local-variable record.
type VarScope struct {
	ScopeIndex int
	Offset     int
}

// LocalVar is one entry in localVars: {name, type, startPC, endPC} (spec
// §4.8 "Local variables").
type LocalVar struct {
	Name    string
	Type    int // index into program.CompiledProgram.Types
	StartPC int64
	EndPC   int64
}

// LocalVarTable maps {scope-index, offset} to the variable declared there,
// the side table an external compiler would populate alongside
// CompiledProgram (spec §4.8); it isn't part of the consumer contract named
// in §6, so it lives here rather than on program.CompiledProgram itself.
type LocalVarTable struct {
	byScope map[VarScope]LocalVar
}

// NewLocalVarTable returns an empty table ready for a compiler to populate.
func NewLocalVarTable() *LocalVarTable {
	return &LocalVarTable{byScope: make(map[VarScope]LocalVar)}
}

// Define records the variable declared at scope.
func (t *LocalVarTable) Define(scope VarScope, v LocalVar) {
	t.byScope[scope] = v
}

// LiveSet returns every variable whose [StartPC, EndPC) range covers pc,
// scoped to the scopes given — "the set of variables with startPC <= PC <
// endPC is the live set" (spec §4.8). scopes is typically every enclosing
// scope index for the current frame, outermost first.
func (t *LocalVarTable) LiveSet(pc int64, scopes []int) []LocalVar {
	live := make([]LocalVar, 0)
	want := make(map[int]struct{}, len(scopes))
	for _, sc := range scopes {
		want[sc] = struct{}{}
	}
	for scope, v := range t.byScope {
		if _, ok := want[scope.ScopeIndex]; !ok {
			continue
		}
		if pc >= v.StartPC && pc < v.EndPC {
			live = append(live, v)
		}
	}
	return live
}
