// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debug

import (
	"github.com/emberscript/corevm/opcode"
	"github.com/emberscript/corevm/program"
)

// ThisReliable scans the function body from startPC to pc (exclusive),
// counting LOAD_THIS/PUSH_THIS installs against POP_THIS restores, to
// decide whether the current this register still refers to the frame's
// owning instance (spec §4.8 "Reconstruction of this"). An open
// LOAD_THIS/PUSH_THIS without a matching POP_THIS means some nested call's
// this is still installed — or about to be — and the register can't be
// trusted to belong to this frame, so this is reported unreliable.
//
// LOAD_THIS_IMM is excluded: it installs this permanently for the frame
// (the normal method prologue) rather than opening a save/restore pair, so
// it never contributes to the balance.
func ThisReliable(prog *program.CompiledProgram, startPC, pc int64) bool {
	balance := 0
	for p := startPC; p < pc; p++ {
		if p < 0 || int(p) >= len(prog.Instructions) || prog.InSwitchTable(p) {
			continue
		}
		switch opcode.Instruction(prog.Instructions[p]).Op() {
		case opcode.LoadThis, opcode.PushThis, opcode.PushThisTemp:
			balance++
		case opcode.PopThis:
			balance--
		}
	}
	return balance == 0
}
