// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debug

import (
	"testing"

	"github.com/emberscript/corevm/program"
)

func TestShouldResumeTransparentlyStepOver(t *testing.T) {
	prog := newTestProgram(t)

	d := &Data{}
	d.ArmStep(StepOver, Location{Function: "f", File: "a.lc", Line: 10, Depth: 1})

	// Same frame, same line: keep resuming.
	if !d.ShouldResumeTransparently(prog, 0, Location{Function: "f", File: "a.lc", Line: 10, Depth: 1}) {
		t.Fatal("expected transparent resume: same function/file/line")
	}
	d.ArmStep(StepOver, Location{Function: "f", File: "a.lc", Line: 10, Depth: 1})

	// Deeper frame: keep resuming regardless of line.
	if !d.ShouldResumeTransparently(prog, 0, Location{Function: "g", File: "a.lc", Line: 99, Depth: 2}) {
		t.Fatal("expected transparent resume: deeper frame")
	}
	d.ArmStep(StepOver, Location{Function: "f", File: "a.lc", Line: 10, Depth: 1})

	// Same frame, new line: surface the stop.
	if d.ShouldResumeTransparently(prog, 0, Location{Function: "f", File: "a.lc", Line: 11, Depth: 1}) {
		t.Fatal("expected break: same function, line advanced")
	}
}

func TestShouldResumeTransparentlyStepOut(t *testing.T) {
	prog := newTestProgram(t)

	d := &Data{}
	d.ArmStep(StepOut, Location{Function: "f", File: "a.lc", Line: 10, Depth: 3})

	if !d.ShouldResumeTransparently(prog, 0, Location{Depth: 3}) {
		t.Fatal("expected transparent resume while depth >= captured depth")
	}
	d.ArmStep(StepOut, Location{Function: "f", File: "a.lc", Line: 10, Depth: 3})

	if d.ShouldResumeTransparently(prog, 0, Location{Depth: 2}) {
		t.Fatal("expected break once depth drops below captured depth")
	}
}

func TestShouldResumeTransparentlyStepIntoSkipsGeneratedRanges(t *testing.T) {
	prog := newTestProgram(t)
	prog.CodeToLine = []program.LineEntry{{PC: 2, Line: 20, File: "a.lc"}}

	d := &Data{}
	d.ArmStep(StepInto, Location{Line: 5})

	if !d.ShouldResumeTransparently(prog, 1, Location{Line: 6}) {
		t.Fatal("expected transparent resume: pc before codeToLine[0].PC")
	}
}

func TestPendingStepRoundTrip(t *testing.T) {
	d := &Data{}
	if got := d.PendingStep(); got != StepNone {
		t.Fatalf("PendingStep() on fresh Data = %v, want StepNone", got)
	}
	d.RequestStep(StepInto)
	if got := d.PendingStep(); got != StepInto {
		t.Fatalf("PendingStep() = %v, want StepInto", got)
	}
	if got := d.PendingStep(); got != StepNone {
		t.Fatalf("PendingStep() after consuming = %v, want StepNone", got)
	}
}
