// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debug

// OpRecord is one interpreted instruction's trace event, the unit a
// TraceSink consumes.
type OpRecord struct {
	RunNum int
	OpNum  int64
	OpCode byte
	OpName string
	Fields []string
	Data   []interface{}
}

// TraceSink receives a stream of OpRecords for post-run analysis. It is
// the Go-native generalization of the teacher pack's opLog hook (a
// per-instruction database insert gated on a connection being configured);
// LogOp must return quickly since it runs on the interpreter's own
// goroutine inline with execution.
type TraceSink interface {
	LogOp(rec OpRecord) error
	Close() error
}

// NopSink discards every record, the default when no sink is configured.
type NopSink struct{}

// LogOp implements TraceSink.
func (NopSink) LogOp(OpRecord) error { return nil }

// Close implements TraceSink.
func (NopSink) Close() error { return nil }
