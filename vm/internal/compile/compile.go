// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

// Backend translates a scanner-selected instruction run into native code.
type Backend interface {
	Scanner() *Scanner
	Build(run InstructionRun, instructions []uint32) ([]byte, error)
}

// Allocator places assembled native code into executable memory.
type Allocator interface {
	AllocateExec(asm []byte) (NativeCodeUnit, error)
	Close() error
}

// JIT ties a Backend and Allocator together: it scans a function body for
// eligible runs and compiles each to an invocable NativeCodeUnit, caching
// the result by its starting PC so a repeated call (spec §4.6 "compiled
// once, invoked many times") skips re-translation.
type JIT struct {
	Backend   Backend
	Allocator Allocator

	units map[int64]NativeCodeUnit
}

// CompileFunc scans [from,to) and compiles every eligible run, returning
// the set of starting PCs now available as native code.
func (j *JIT) CompileFunc(instructions []uint32, from, to int64) ([]int64, error) {
	if j.units == nil {
		j.units = make(map[int64]NativeCodeUnit)
	}
	targets := InboundTargets(instructions, from, to)
	runs := j.Backend.Scanner().ScanFunc(instructions, from, to, targets)

	var compiled []int64
	for _, run := range runs {
		asm, err := j.Backend.Build(run, instructions)
		if err != nil {
			continue // this run isn't translatable; the interpreter still covers it
		}
		unit, err := j.Allocator.AllocateExec(asm)
		if err != nil {
			return compiled, err
		}
		j.units[run.Start] = unit
		compiled = append(compiled, run.Start)
	}
	return compiled, nil
}

// Lookup returns the compiled unit starting at pc, if any.
func (j *JIT) Lookup(pc int64) (NativeCodeUnit, bool) {
	unit, ok := j.units[pc]
	return unit, ok
}

// Close releases every page the JIT's allocator has mapped.
func (j *JIT) Close() error {
	if j.Allocator == nil {
		return nil
	}
	return j.Allocator.Close()
}
