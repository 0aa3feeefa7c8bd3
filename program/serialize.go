// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package program

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// magic tags the start of an encoded CompiledProgram, the same way wagon's
// own module decoder checks a fixed magic/version pair before trusting the
// rest of a stream.
const magic uint32 = 0x63767061 // "cvpa"

// Write encodes the link-ready parts of p to w: the instruction stream and
// every side table an external compiler fills in (spec §3 "everything an
// external compiler hands to the execution core"). Native function
// pointers and native ctor/dtor hooks are never part of the encoding —
// exactly as wagon never serializes a module's host-function
// implementations, only the import names a host re-resolves after decode
// — so a loader must call Natives.Register (and set any DataType
// NativeCtor/NativeDtor) itself once Read returns.
func (p *CompiledProgram) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, magic); err != nil {
		return err
	}
	enc := &encoder{w: bw}
	enc.writeUint32s(p.Instructions)
	enc.writeInt64s(p.Barriers)
	enc.writeInt64s(p.Loops)
	enc.writeUint32(uint32(len(p.SwitchRanges)))
	for _, r := range p.SwitchRanges {
		enc.writeInt64(r.Start)
		enc.writeInt64(r.End)
	}
	enc.writeUint32(uint32(len(p.Functions)))
	for _, fn := range p.Functions {
		enc.writeString(fn.Name)
		enc.writeInt64(fn.EntryPC)
		enc.writeTypeTags(fn.ParamSig)
		enc.writeTypeTags(fn.ReturnSig)
	}
	enc.writeUint32(uint32(len(p.CodeToLine)))
	for _, le := range p.CodeToLine {
		enc.writeInt64(le.PC)
		enc.writeUint32(uint32(le.Line))
		enc.writeString(le.File)
	}
	enc.writeDataTypes(p.Types)
	enc.writeGlobals(p.Globals)
	enc.writePool(p.Pool)
	enc.writeUint32(uint32(len(p.VtableRegions)))
	for _, v := range p.VtableRegions {
		enc.writeUint32(v.GlobalOffset)
		enc.writeUint32(uint32(v.Count))
	}
	enc.writeInt64(p.GlobalConstIndex)
	enc.writeInt64(p.GlobalDestIndex)
	if enc.err != nil {
		return enc.err
	}
	return bw.Flush()
}

// Read decodes a program previously written by Write. The returned program
// is unlinked: the caller must register natives and call Link before
// running it, matching how an external compiler hands off a fresh
// CompiledProgram (spec §3 lifecycle).
func Read(r io.Reader) (*CompiledProgram, error) {
	br := bufio.NewReader(r)
	var got uint32
	if err := binary.Read(br, binary.LittleEndian, &got); err != nil {
		return nil, fmt.Errorf("program: read magic: %w", err)
	}
	if got != magic {
		return nil, fmt.Errorf("program: bad magic %#x, want %#x", got, magic)
	}

	p := NewCompiledProgram()
	dec := &decoder{r: br}
	p.Instructions = dec.readUint32s()
	p.Barriers = dec.readInt64s()
	p.Loops = dec.readInt64s()
	n := dec.readUint32()
	p.SwitchRanges = make([]SwitchRange, n)
	for i := range p.SwitchRanges {
		p.SwitchRanges[i] = SwitchRange{Start: dec.readInt64(), End: dec.readInt64()}
	}
	n = dec.readUint32()
	p.Functions = make([]Function, n)
	for i := range p.Functions {
		p.Functions[i] = Function{
			Name:      dec.readString(),
			EntryPC:   dec.readInt64(),
			ParamSig:  dec.readTypeTags(),
			ReturnSig: dec.readTypeTags(),
		}
	}
	n = dec.readUint32()
	p.CodeToLine = make([]LineEntry, n)
	for i := range p.CodeToLine {
		p.CodeToLine[i] = LineEntry{PC: dec.readInt64(), Line: int(dec.readUint32()), File: dec.readString()}
	}
	p.Types = dec.readDataTypes()
	for i, t := range p.Types {
		p.TypeHash[t.Name] = i
		if t.Tag == TagClass {
			p.ClassTypeHash[t.Name] = i
		}
	}
	dec.readGlobals(p.Globals)
	dec.readPool(p.Pool)
	n = dec.readUint32()
	p.VtableRegions = make([]VtableRegion, n)
	for i := range p.VtableRegions {
		p.VtableRegions[i] = VtableRegion{GlobalOffset: dec.readUint32(), Count: int(dec.readUint32())}
	}
	p.GlobalConstIndex = dec.readInt64()
	p.GlobalDestIndex = dec.readInt64()

	// rebuild FuncMap the way an external compiler would have populated
	// it originally: one entry per function entry PC.
	for i, fn := range p.Functions {
		p.FuncMap[int64(fn.EntryPC)] = i
	}
	if dec.err != nil {
		return nil, dec.err
	}
	return p, nil
}

type encoder struct {
	w   io.Writer
	err error
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *encoder) writeUint32(v uint32) {
	if e.err != nil {
		return
	}
	e.fail(binary.Write(e.w, binary.LittleEndian, v))
}

func (e *encoder) writeInt64(v int64) {
	if e.err != nil {
		return
	}
	e.fail(binary.Write(e.w, binary.LittleEndian, v))
}

func (e *encoder) writeUint32s(vs []uint32) {
	e.writeUint32(uint32(len(vs)))
	for _, v := range vs {
		e.writeUint32(v)
	}
}

func (e *encoder) writeInt64s(vs []int64) {
	e.writeUint32(uint32(len(vs)))
	for _, v := range vs {
		e.writeInt64(v)
	}
}

func (e *encoder) writeString(s string) {
	e.writeUint32(uint32(len(s)))
	if e.err != nil {
		return
	}
	_, err := io.WriteString(e.w, s)
	e.fail(err)
}

func (e *encoder) writeTypeTags(ts []TypeTag) {
	e.writeUint32(uint32(len(ts)))
	for _, t := range ts {
		e.writeUint32(uint32(t))
	}
}

func (e *encoder) writeDataTypes(types []*DataType) {
	e.writeUint32(uint32(len(types)))
	for _, t := range types {
		e.writeUint32(uint32(t.Tag))
		e.writeString(t.Name)
		e.writeUint32(t.Size)
		e.writeUint32(t.Align)
		e.writeUint32(uint32(len(t.Members)))
		for _, m := range t.Members {
			e.writeString(m.Name)
			e.writeUint32(uint32(m.Type))
			e.writeUint32(m.Offset)
		}
		e.writeInt64(int64(t.Base))
		e.writeInt64(int64(t.ElementType))
		e.writeInt64(t.CtorPC)
		e.writeInt64(t.DtorPC)
		e.writeInt64(t.AssignPC)
		e.writeInt64(t.VirtualCtorPC)
		e.writeInt64(t.VirtualDtorPC)
		e.writeInt64(t.VirtualAssignPC)
		e.writeUint32(uint32(len(t.Methods)))
		for name, idx := range t.Methods {
			e.writeString(name)
			e.writeInt64(idx)
		}
	}
}

func (e *encoder) writeGlobals(g *GlobalArena) {
	data := g.Bytes()
	e.writeUint32(uint32(len(data)))
	if e.err != nil {
		return
	}
	_, err := e.w.Write(data)
	e.fail(err)
	e.writeUint32(uint32(len(g.names)))
	for name, off := range g.names {
		e.writeString(name)
		e.writeUint32(off)
	}
}

func (e *encoder) writePool(p *ConstPool) {
	e.writeUint32(uint32(len(p.bytes)))
	if e.err == nil && len(p.bytes) > 0 {
		_, err := e.w.Write(p.bytes)
		e.fail(err)
	}
	e.writeUint32(uint32(len(p.int16s)))
	for _, v := range p.int16s {
		e.writeUint32(uint32(uint16(v)))
	}
	e.writeUint32(uint32(len(p.int32s)))
	for _, v := range p.int32s {
		e.writeUint32(uint32(v))
	}
	e.writeInt64s(p.int64s)
	e.writeUint32(uint32(len(p.floats)))
	for _, v := range p.floats {
		e.writeUint32(math.Float32bits(v))
	}
	e.writeUint32(uint32(len(p.doubles)))
	for _, v := range p.doubles {
		e.writeInt64(int64(math.Float64bits(v)))
	}
	e.writeUint32(uint32(len(p.strings)))
	for _, s := range p.strings {
		e.writeString(s)
	}
	e.writeUint32(uint32(len(p.names)))
	for _, s := range p.names {
		e.writeString(s)
	}
}

type decoder struct {
	r   io.Reader
	err error
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *decoder) readUint32() uint32 {
	if d.err != nil {
		return 0
	}
	var v uint32
	d.fail(binary.Read(d.r, binary.LittleEndian, &v))
	return v
}

func (d *decoder) readInt64() int64 {
	if d.err != nil {
		return 0
	}
	var v int64
	d.fail(binary.Read(d.r, binary.LittleEndian, &v))
	return v
}

func (d *decoder) readUint32s() []uint32 {
	n := d.readUint32()
	out := make([]uint32, n)
	for i := range out {
		out[i] = d.readUint32()
	}
	return out
}

func (d *decoder) readInt64s() []int64 {
	n := d.readUint32()
	out := make([]int64, n)
	for i := range out {
		out[i] = d.readInt64()
	}
	return out
}

func (d *decoder) readString() string {
	n := d.readUint32()
	if d.err != nil || n == 0 {
		return ""
	}
	buf := make([]byte, n)
	_, err := io.ReadFull(d.r, buf)
	d.fail(err)
	return string(buf)
}

func (d *decoder) readTypeTags() []TypeTag {
	n := d.readUint32()
	out := make([]TypeTag, n)
	for i := range out {
		out[i] = TypeTag(d.readUint32())
	}
	return out
}

func (d *decoder) readDataTypes() []*DataType {
	n := d.readUint32()
	out := make([]*DataType, n)
	for i := range out {
		t := &DataType{}
		t.Tag = TypeTag(d.readUint32())
		t.Name = d.readString()
		t.Size = d.readUint32()
		t.Align = d.readUint32()
		nm := d.readUint32()
		t.Members = make([]Member, nm)
		for j := range t.Members {
			t.Members[j] = Member{Name: d.readString(), Type: int(d.readUint32()), Offset: d.readUint32()}
		}
		t.Base = int(d.readInt64())
		t.ElementType = int(d.readInt64())
		t.CtorPC = d.readInt64()
		t.DtorPC = d.readInt64()
		t.AssignPC = d.readInt64()
		t.VirtualCtorPC = d.readInt64()
		t.VirtualDtorPC = d.readInt64()
		t.VirtualAssignPC = d.readInt64()
		nmeth := d.readUint32()
		t.Methods = make(map[string]int64, nmeth)
		for j := uint32(0); j < nmeth; j++ {
			name := d.readString()
			t.Methods[name] = d.readInt64()
		}
		out[i] = t
	}
	return out
}

func (d *decoder) readGlobals(g *GlobalArena) {
	n := d.readUint32()
	if d.err != nil {
		return
	}
	buf := make([]byte, n)
	if n > 0 {
		_, err := io.ReadFull(d.r, buf)
		d.fail(err)
	}
	g.data = buf
	nn := d.readUint32()
	for i := uint32(0); i < nn; i++ {
		name := d.readString()
		off := d.readUint32()
		g.names[name] = off
	}
}

func (d *decoder) readPool(p *ConstPool) {
	n := d.readUint32()
	if n > 0 {
		p.bytes = make([]byte, n)
		_, err := io.ReadFull(d.r, p.bytes)
		d.fail(err)
	}
	n = d.readUint32()
	p.int16s = make([]int16, n)
	for i := range p.int16s {
		p.int16s[i] = int16(uint16(d.readUint32()))
	}
	n = d.readUint32()
	p.int32s = make([]int32, n)
	for i := range p.int32s {
		v := int32(d.readUint32())
		p.int32s[i] = v
		p.int32Index[v] = uint32(i)
	}
	p.int64s = d.readInt64s()
	for i, v := range p.int64s {
		p.int64Index[v] = uint32(i)
	}
	n = d.readUint32()
	p.floats = make([]float32, n)
	for i := range p.floats {
		v := math.Float32frombits(d.readUint32())
		p.floats[i] = v
		p.floatIndex[v] = uint32(i)
	}
	n = d.readUint32()
	p.doubles = make([]float64, n)
	for i := range p.doubles {
		v := math.Float64frombits(uint64(d.readInt64()))
		p.doubles[i] = v
		p.doubleIndex[v] = uint32(i)
	}
	n = d.readUint32()
	p.strings = make([]string, n)
	for i := range p.strings {
		s := d.readString()
		p.strings[i] = s
		p.stringIndex[s] = uint32(i)
	}
	n = d.readUint32()
	p.names = make([]string, n)
	for i := range p.names {
		s := d.readString()
		p.names[i] = s
		p.nameIndex[s] = uint32(i)
	}
}
