// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debug

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Command is one line-oriented request from a debugger client, decoded
// from the newline-delimited text protocol in spec §6. Name is the first
// line; Args holds every subsequent line belonging to the command, in
// order, already stripped of trailing newlines.
type Command struct {
	Name string
	Args []string
}

// commandArgc records how many argument lines each named command consumes
// beyond its name line, per spec §6's per-command grammar. Commands not
// listed take zero argument lines.
var commandArgc = map[string]int{
	"query_file":        1,
	"goto_definition":   3,
	"toggle_breakpoint": 2,
	"continue_context":  1,
	"getcallstack":      1,
	"step_over":         1,
	"step_into":         1,
	"step_out":          1,
}

// Decoder reads Commands off a line-oriented stream (spec §6 "line-oriented,
// newline-delimited text over TCP"). The transport itself (the TCP
// listener) is out of scope here; Decoder works against any io.Reader so a
// host can wire it to a net.Conn, a pipe, or a test buffer alike.
type Decoder struct {
	sc *bufio.Scanner
}

// NewDecoder wraps r for command-at-a-time reads.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{sc: bufio.NewScanner(r)}
}

// Next reads one Command, or returns io.EOF once the stream is exhausted.
func (d *Decoder) Next() (Command, error) {
	if !d.sc.Scan() {
		if err := d.sc.Err(); err != nil {
			return Command{}, err
		}
		return Command{}, io.EOF
	}
	name := d.sc.Text()
	n := commandArgc[name]
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if !d.sc.Scan() {
			return Command{}, fmt.Errorf("debug: command %q truncated: expected %d argument lines, got %d", name, n, i)
		}
		args = append(args, d.sc.Text())
	}
	return Command{Name: name, Args: args}, nil
}

// Encoder writes server->debugger replies (spec §6) one line-joined
// message at a time.
type Encoder struct {
	w io.Writer
}

// NewEncoder wraps w for reply writes.
func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: w} }

// Send writes name followed by each of fields, newline-joined, matching
// the teacher-independent wire format spec §6 specifies (e.g.
// "debug_break\n<ctx>\n<line>\n<file>").
func (e *Encoder) Send(name string, fields ...string) error {
	parts := make([]string, 0, len(fields)+1)
	parts = append(parts, name)
	parts = append(parts, fields...)
	_, err := io.WriteString(e.w, strings.Join(parts, "\n")+"\n")
	return err
}

// DebugBreak sends the "debug_break\n<ctx>\n<line>\n<file>" push.
func (e *Encoder) DebugBreak(ctx string, line int, file string) error {
	return e.Send("debug_break", ctx, strconv.Itoa(line), file)
}

// DebugContinue sends "debug_continue\n<ctx>".
func (e *Encoder) DebugContinue(ctx string) error {
	return e.Send("debug_continue", ctx)
}

// DebugOutput sends "debug_output\n<msg>".
func (e *Encoder) DebugOutput(msg string) error {
	return e.Send("debug_output", msg)
}

// Error sends "error\n<file>\n<line>\n<col>\n<msg>\n<warnid>".
func (e *Encoder) Error(file string, line, col int, msg string, warnID int) error {
	return e.Send("error", file, strconv.Itoa(line), strconv.Itoa(col), msg, strconv.Itoa(warnID))
}

// File replies to query_file with "file\n<path>\n<contents>".
func (e *Encoder) File(path, contents string) error {
	return e.Send("file", path, contents)
}

// ProjectFolder replies to get_project_folder.
func (e *Encoder) ProjectFolder(cwd string) error {
	return e.Send("project_folder", cwd)
}

// GotoDefinition replies to goto_definition.
func (e *Encoder) GotoDefinition(file string, line, col int) error {
	return e.Send("goto_definition", file, strconv.Itoa(line), strconv.Itoa(col))
}

// Contexts replies to getcontexts with one name per line.
func (e *Encoder) Contexts(names []string) error {
	return e.Send("getcontexts", names...)
}

// CallStack replies to getcallstack with one frame description per line.
func (e *Encoder) CallStack(frames []string) error {
	return e.Send("getcallstack", frames...)
}

// ReloadResult sends "reload_success" or "reload_failure".
func (e *Encoder) ReloadResult(ok bool) error {
	if ok {
		return e.Send("reload_success")
	}
	return e.Send("reload_failure")
}
