// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debug

import (
	"bytes"
	"io"
	"reflect"
	"testing"
)

func TestDecoderReadsMultiLineCommands(t *testing.T) {
	in := "query_file\n/foo.lc\nstep_into\nctxA\ngetcontexts\n"
	d := NewDecoder(bytes.NewBufferString(in))

	cmd, err := d.Next()
	if err != nil {
		t.Fatal(err)
	}
	want := Command{Name: "query_file", Args: []string{"/foo.lc"}}
	if !reflect.DeepEqual(cmd, want) {
		t.Fatalf("Next() = %+v, want %+v", cmd, want)
	}

	cmd, err = d.Next()
	if err != nil {
		t.Fatal(err)
	}
	want = Command{Name: "step_into", Args: []string{"ctxA"}}
	if !reflect.DeepEqual(cmd, want) {
		t.Fatalf("Next() = %+v, want %+v", cmd, want)
	}

	cmd, err = d.Next()
	if err != nil {
		t.Fatal(err)
	}
	want = Command{Name: "getcontexts", Args: []string{}}
	if !reflect.DeepEqual(cmd, want) {
		t.Fatalf("Next() = %+v, want %+v", cmd, want)
	}

	if _, err := d.Next(); err != io.EOF {
		t.Fatalf("Next() at stream end = %v, want io.EOF", err)
	}
}

func TestDecoderTruncatedCommand(t *testing.T) {
	d := NewDecoder(bytes.NewBufferString("toggle_breakpoint\nfoo.lc\n"))
	if _, err := d.Next(); err == nil {
		t.Fatal("expected an error for a truncated toggle_breakpoint command")
	}
}

func TestEncoderDebugBreak(t *testing.T) {
	var buf bytes.Buffer
	e := NewEncoder(&buf)
	if err := e.DebugBreak("ctxA", 42, "foo.lc"); err != nil {
		t.Fatal(err)
	}
	want := "debug_break\nctxA\n42\nfoo.lc\n"
	if buf.String() != want {
		t.Fatalf("DebugBreak wrote %q, want %q", buf.String(), want)
	}
}

func TestEncoderErrorMessage(t *testing.T) {
	var buf bytes.Buffer
	e := NewEncoder(&buf)
	if err := e.Error("foo.lc", 3, 7, "unexpected token", 12); err != nil {
		t.Fatal(err)
	}
	want := "error\nfoo.lc\n3\n7\nunexpected token\n12\n"
	if buf.String() != want {
		t.Fatalf("Error wrote %q, want %q", buf.String(), want)
	}
}
