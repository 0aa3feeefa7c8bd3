// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debug

import (
	"sync/atomic"

	"github.com/emberscript/corevm/program"
)

// StepCmd selects the stepping granularity a debugger has requested (spec
// §4.8 "stepCmd ∈ {none, into, over, out}").
type StepCmd int32

const (
	StepNone StepCmd = iota
	StepInto
	StepOver
	StepOut
)

// Location is a {function, file, line} snapshot of where execution last
// stopped, captured the last time the break handler ran (spec §4.8
// "snapshots ... captured the last time the break handler ran").
type Location struct {
	Function string
	File     string
	Line     int
	Depth    int
}

// Data is the per-context debug side-state the break handler consults —
// ScriptContextDebugData in spec §4.8. stepCmd is accessed with atomics so
// a debugger goroutine can post a step request while the context's own
// goroutine is spinning in its break-mode wait loop.
type Data struct {
	stepCmd int32 // atomic StepCmd

	// origLoc/activeStepCmd/activeDepth are only touched by the context's
	// own goroutine (inside the break handler), never concurrently with a
	// StepCmd load, so they need no synchronization of their own.
	origLoc       Location
	activeStepCmd StepCmd
	activeDepth   int
}

// RequestStep posts cmd for the break handler to pick up the next time it
// runs (spec §6 "step_over|step_into|step_out").
func (d *Data) RequestStep(cmd StepCmd) { atomic.StoreInt32(&d.stepCmd, int32(cmd)) }

// PendingStep returns and clears the posted step command, or StepNone if
// none is pending.
func (d *Data) PendingStep() StepCmd {
	return StepCmd(atomic.SwapInt32(&d.stepCmd, int32(StepNone)))
}

// ShouldResumeTransparently implements the break handler's decision table
// (spec §4.8): given the current location/depth and the step mode captured
// the last time a step command was accepted, it reports whether this stop
// should be passed through without surfacing to the debugger.
//
//   - over: resume if (same function, same file, line unchanged) or
//     (deeper frame, or same frame with line <= original).
//   - into: resume if line unchanged, with an allowance to skip
//     compiler-generated ctor/dtor ranges located before the first entry
//     in codeToLine.
//   - out: resume while depth >= captured depth.
func (d *Data) ShouldResumeTransparently(prog *program.CompiledProgram, pc int64, cur Location) bool {
	switch d.activeStepCmd {
	case StepOver:
		sameFrame := cur.Function == d.origLoc.Function && cur.File == d.origLoc.File
		if sameFrame && cur.Line != d.origLoc.Line {
			d.activeStepCmd = StepNone
			return false
		}
		if cur.Depth >= d.activeDepth &&
			(cur.Depth > d.activeDepth || cur.File != d.origLoc.File || cur.Line <= d.origLoc.Line) {
			return true
		}
		d.activeStepCmd = StepNone
		return false

	case StepInto:
		if cur.Line == d.origLoc.Line {
			return true
		}
		if len(prog.CodeToLine) > 0 && pc < prog.CodeToLine[0].PC {
			// compiler-generated ctor/dtor/copy range, before any
			// user-visible line — not worth surfacing a step stop.
			return true
		}
		d.activeStepCmd = StepNone
		return false

	case StepOut:
		if d.activeDepth != 0 && cur.Depth >= d.activeDepth {
			return true
		}
		d.activeStepCmd = StepNone
		return false
	}
	return false
}

// ArmStep records cur as the step's origin and activates cmd, called once
// the break handler observes a freshly posted step command (spec §4.8
// "snapshots ... captured the last time the break handler ran").
func (d *Data) ArmStep(cmd StepCmd, cur Location) {
	d.origLoc = cur
	d.activeStepCmd = cmd
	d.activeDepth = cur.Depth
}

// ActiveStepCmd reports the step mode currently armed (StepNone if none).
func (d *Data) ActiveStepCmd() StepCmd { return d.activeStepCmd }
