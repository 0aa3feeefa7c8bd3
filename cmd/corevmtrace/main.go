// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command corevmtrace loads a program previously written by
// program.Write, links it, and runs a named function — the thin
// "main.go driving a VM with flags" entry point the pack's
// KTStephano-GVM example shows, generalized from GVM's fixed bytecode
// set to a program.CompiledProgram plus the debug wire-protocol
// machinery described in spec §4.8.
//
// Usage:
//
//	corevmtrace [-func name] [-debug] [-pgdsn conn] [-run n] program.bin
//
// -debug drops into the same kind of single-step console GVM's
// execProgramDebugMode offers (n/next, r/run, b/break <pc>), rebuilt
// against debug.BreakpointTable/debug.Data instead of GVM's bare
// break-line set, so stepping re-arms breakpoints transparently.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v4"

	"github.com/emberscript/corevm/abi"
	corectx "github.com/emberscript/corevm/context"
	"github.com/emberscript/corevm/debug"
	"github.com/emberscript/corevm/opcode"
	"github.com/emberscript/corevm/program"
	"github.com/emberscript/corevm/stack"
	"github.com/emberscript/corevm/vm"
)

var (
	funcName    = flag.String("func", "main", "name of the program function to run")
	debugMode   = flag.Bool("debug", false, "enter single-step debug mode")
	pgDSN       = flag.String("pgdsn", "", "postgres connection string for operation tracing (optional)")
	runNum      = flag.Int("run", 0, "run number recorded against each traced operation")
	stackDepth  = flag.Int("stack", 4096, "operand stack depth reserved for the run")
	commitEvery = flag.Int64("commit-every", 0, "rows per trace-sink commit (0 = sink default)")
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: corevmtrace [flags] program.bin")
		os.Exit(2)
	}

	prog, err := loadProgram(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "corevmtrace:", err)
		os.Exit(1)
	}

	sink, closeSink, err := openSink()
	if err != nil {
		fmt.Fprintln(os.Stderr, "corevmtrace:", err)
		os.Exit(1)
	}
	defer closeSink()

	v := vm.New(prog, vm.Flags{Debug: *debugMode})
	cc := corectx.New("main", v, *stackDepth)

	if *debugMode {
		runDebugSession(prog, v, cc, sink)
		return
	}

	res := runTraced(prog, v, cc, sink)
	fmt.Printf("result: %s pc=%d\n", res.Code, res.PC)
	if res.Code != abi.OK {
		os.Exit(1)
	}
}

// loadProgram decodes and links a serialized program.CompiledProgram.
// Native functions are never part of the encoding (program.Read's doc
// comment), so a real host would register them here before Link; this
// standalone dogfood CLI has none to register.
func loadProgram(path string) (*program.CompiledProgram, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	prog, err := program.Read(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := prog.Link(program.LinkDefault); err != nil {
		return nil, fmt.Errorf("link %s: %w", path, err)
	}
	return prog, nil
}

// openSink builds the TraceSink flags select: debug.NopSink when -pgdsn
// is empty (the teacher's pg == nil early-return, generalized), or a
// debug.PostgresTraceSink bound to a freshly opened connection.
func openSink() (debug.TraceSink, func(), error) {
	if *pgDSN == "" {
		return debug.NopSink{}, func() {}, nil
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, *pgDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect trace db: %w", err)
	}
	sink, err := debug.NewPostgresTraceSink(ctx, conn, *runNum, *commitEvery)
	if err != nil {
		conn.Close(ctx)
		return nil, nil, fmt.Errorf("open trace sink: %w", err)
	}
	return sink, func() { sink.Close() }, nil
}

// runTraced walks the named function one instruction at a time via
// vm.Step, logging each instruction to sink before advancing — the CLI
// itself drives the trace, so the interpreter's own dispatch loop never
// needs to know a sink exists.
func runTraced(prog *program.CompiledProgram, v *vm.Vm, cc *corectx.ScriptContext, sink debug.TraceSink) abi.ExecResult {
	fn, ok := prog.FunctionByName(*funcName)
	if !ok {
		return abi.ExecResult{Code: abi.FuncNotFound}
	}

	s := cc.Stack()
	s.PushPtr(^stack.Word(0))
	pc := fn.EntryPC
	var opNum int64

	for {
		if pc >= 0 && int(pc) < len(prog.Instructions) {
			inst := opcode.Instruction(prog.Instructions[pc])
			rec := debug.OpRecord{
				RunNum: *runNum,
				OpNum:  opNum,
				OpCode: byte(inst.Op()),
				OpName: fmt.Sprintf("op_%d", inst.Op()),
			}
			if err := sink.LogOp(rec); err != nil {
				fmt.Fprintln(os.Stderr, "corevmtrace: trace:", err)
			}
			opNum++
		}

		nextPC, res, ok := v.Step(s, pc)
		if !ok {
			return res
		}
		pc = nextPC
	}
}

// runDebugSession is the -debug console: n/next single-steps (re-arming
// any breakpoint transparently via BreakpointTable.StepOverBreakpoint),
// r/run resumes free-running, b/break <pc> toggles a breakpoint — the
// same three commands GVM's execProgramDebugMode offers, against this
// program's richer PC/line/stack state instead of GVM's flat register file.
func runDebugSession(prog *program.CompiledProgram, v *vm.Vm, cc *corectx.ScriptContext, sink debug.TraceSink) {
	fmt.Println("commands: n/next, r/run, b/break <pc>, s/stack, q/quit")

	fn, ok := prog.FunctionByName(*funcName)
	if !ok {
		fmt.Fprintf(os.Stderr, "corevmtrace: function %q not found\n", *funcName)
		os.Exit(1)
	}

	tbl := debug.NewBreakpointTable(prog)
	s := cc.Stack()
	s.PushPtr(^stack.Word(0))
	pc := fn.EntryPC
	printState(prog, s, pc)

	reader := bufio.NewReader(os.Stdin)
	running := false
	for {
		var line string
		if !running {
			fmt.Print("-> ")
			raw, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimSpace(strings.ToLower(raw))
		}

		switch {
		case running:
			nextPC, res, ok := tbl.StepOverBreakpoint(v, s, pc)
			if !ok {
				fmt.Printf("result: %s pc=%d\n", res.Code, res.PC)
				if res.Code == abi.Breakpoint {
					pc = res.PC
					running = false
					printState(prog, s, pc)
					continue
				}
				return
			}
			pc = nextPC
		case line == "n" || line == "next":
			nextPC, res, ok := tbl.StepOverBreakpoint(v, s, pc)
			if !ok {
				fmt.Printf("result: %s pc=%d\n", res.Code, res.PC)
				return
			}
			pc = nextPC
			printState(prog, s, pc)
		case line == "r" || line == "run":
			running = true
		case strings.HasPrefix(line, "b"):
			arg := strings.TrimSpace(strings.TrimPrefix(line, "b"))
			arg = strings.TrimPrefix(strings.TrimSpace(strings.TrimPrefix(arg, "reak")), " ")
			target, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				fmt.Println("bad pc:", err)
				continue
			}
			tbl.ToggleBreakpoint("", target)
			bp, _ := tbl.At(target)
			fmt.Printf("breakpoint at pc %d: enabled=%v\n", target, bp.Enabled)
		case line == "s" || line == "stack":
			printState(prog, s, pc)
		case line == "q" || line == "quit":
			return
		default:
			fmt.Println("unknown command:", line)
		}
	}
}

func printState(prog *program.CompiledProgram, s *stack.Stack, pc int64) {
	le, _ := prog.LineForPC(pc)
	fmt.Printf("pc=%d line=%d file=%s top=%d\n", pc, le.Line, le.File, topOrZero(s))
}

func topOrZero(s *stack.Stack) int32 {
	if s.Height() == 0 {
		return 0
	}
	return s.GetInt(0)
}
