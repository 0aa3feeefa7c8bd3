// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package context

import (
	"unsafe"

	"github.com/emberscript/corevm/object"
	"github.com/emberscript/corevm/stack"
)

// headerFromWord recovers an *object.Header from a raw stack word the
// same way vm/mem.go's unexported helper of the same name does — this
// package crosses the identical trust boundary from its own side of the
// call-into-script surface (spec §3 "Object header").
func headerFromWord(w stack.Word) *object.Header {
	if w == 0 {
		return nil
	}
	return (*object.Header)(unsafe.Pointer(uintptr(w)))
}
