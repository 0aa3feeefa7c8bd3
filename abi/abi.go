// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package abi describes the contract between compiled bytecode, the
// interpreter/JIT, and native host code (spec §6, §4.9). It exists as its
// own package so vm, context, and object can all depend on the shared
// vocabulary without importing one another.
package abi

import "github.com/emberscript/corevm/stack"

// Result is the exit code an execution engine returns from a call-into-script
// entry point.
type Result int

// Exit / result codes (spec §6).
const (
	OK Result = iota
	NoJIT
	NullPtr
	InvalidPC
	FuncNotFound
	NullInstance
	MethodNotFound
	NoProg
	Exception
	Breakpoint
	Break
)

func (r Result) String() string {
	switch r {
	case OK:
		return "OK"
	case NoJIT:
		return "NO_JIT"
	case NullPtr:
		return "NULL_PTR"
	case InvalidPC:
		return "INVALID_PC"
	case FuncNotFound:
		return "FUNC_NOT_FOUND"
	case NullInstance:
		return "NULL_INSTANCE"
	case MethodNotFound:
		return "METHOD_NOT_FOUND"
	case NoProg:
		return "NO_PROG"
	case Exception:
		return "EXCEPTION"
	case Breakpoint:
		return "BREAKPOINT"
	case Break:
		return "BREAK"
	default:
		return "UNKNOWN"
	}
}

// ExecResult is returned by the interpreter's main loop (spec §7).
type ExecResult struct {
	Code    Result
	PC      int64
	Message string
}

// NativeFunc is the signature every function registered in the program's
// native function table must implement (spec §6 native-call ABI): it reads
// its arguments off the top of the stack and may push up to the number of
// slots the code generator reserved at the call site.
//
// Before calling a NativeFunc the VM publishes its stack top into a
// context-side scratch slot so that a reentrant call back into the VM
// observes a consistent top; on return the VM reloads its local top from
// that slot. NativeFunc implementations must not invoke Break or alter the
// current this register outside of the CallMethod-style helpers.
type NativeFunc func(s *stack.Stack) error

// NativeClass describes a host type registered as a script-visible
// composite type (spec §3 "Native class descriptor").
type NativeClass struct {
	Name        string
	Size        uint32
	Align       uint32
	IsStruct    bool
	MemberOffset map[string]uint32
	Ctor        NativeFunc
	Dtor        NativeFunc
}
