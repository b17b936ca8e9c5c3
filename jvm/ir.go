// Copyright 2026 The go-shroud Authors
// This file is part of go-shroud.
//
// go-shroud is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-shroud is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-shroud. If not, see <http://www.gnu.org/licenses/>.

// Package jvm models parsed JVM classes and methods as an instruction tree.
//
// The model mirrors what a class-file reader hands the compiler: a method is
// an ordered instruction list in which labels appear as pseudo-instructions,
// plus try/catch ranges and a local-variable table. Instructions are a single
// flat struct tagged by opcode rather than a type hierarchy; the handful of
// operand fields a given opcode uses is determined by its family.
package jvm

import (
	"fmt"
	"sync/atomic"
)

// Label marks a position in a method's instruction list. Identity is pointer
// identity; two labels with the same list position are still distinct targets
// until merged by the producer.
type Label struct {
	id int64
}

var labelSeq int64

// NewLabel allocates a fresh label. Safe for concurrent use: classes are
// rewritten in parallel and each rewrite mints labels.
func NewLabel() *Label {
	return &Label{id: atomic.AddInt64(&labelSeq, 1)}
}

func (l *Label) String() string { return fmt.Sprintf("L%d", l.id) }

// ConstTag discriminates LDC-style constant operands.
type ConstTag uint8

const (
	ConstInt ConstTag = iota
	ConstLong
	ConstFloat
	ConstDouble
	ConstString
	ConstClass
)

// Const is a loadable class-file constant.
type Const struct {
	Tag ConstTag
	I   int64   // ConstInt, ConstLong
	F   float64 // ConstFloat, ConstDouble
	S   string  // ConstString (value), ConstClass (internal name)
}

func (c Const) String() string {
	switch c.Tag {
	case ConstInt, ConstLong:
		return fmt.Sprintf("%d", c.I)
	case ConstFloat, ConstDouble:
		return fmt.Sprintf("%g", c.F)
	case ConstString:
		return fmt.Sprintf("%q", c.S)
	default:
		return c.S + ".class"
	}
}

// Insn is one instruction (or label pseudo-instruction) in a method body.
//
// Op == OpLabelMark means the instruction is the position marker for Pos.
// For real instructions the populated operand fields depend on the opcode:
//
//	bipush/sipush/newarray  Val
//	iinc                    Var, Val
//	*load/*store/ret        Var
//	ldc/ldc_w/ldc2_w        Cst
//	field/method access     Owner, Name, Desc (+ Itf for invokeinterface)
//	invokedynamic           Name, Desc, Boot*
//	branches                Target
//	tableswitch             Low, High, Dflt, Targets
//	lookupswitch            Keys, Dflt, Targets
//	new/anewarray/checkcast/instanceof  Owner
//	multianewarray          Desc, Dims
type Insn struct {
	Op  Opcode
	Pos *Label // OpLabelMark only

	Val  int32
	Var  int
	Cst  Const
	Dims int

	Owner string
	Name  string
	Desc  string
	Itf   bool

	// Invokedynamic bootstrap reference.
	BootOwner string
	BootName  string
	BootDesc  string

	Target  *Label
	Dflt    *Label
	Targets []*Label
	Keys    []int32
	Low     int32
	High    int32
}

// OpLabelMark tags label pseudo-instructions. 0xfe is reserved (impdep1) in
// the class-file format, so it can never collide with a real instruction.
const OpLabelMark Opcode = 0xfe

// IsLabel reports whether the instruction is a label marker.
func (in *Insn) IsLabel() bool { return in.Op == OpLabelMark }

// Clone copies the instruction, remapping every label operand through remap.
// Labels missing from remap are kept as-is; the flattener relies on that as a
// defensive fallback for ranges that reference foreign labels.
func (in *Insn) Clone(remap map[*Label]*Label) *Insn {
	out := *in
	out.Pos = mapLabel(remap, in.Pos)
	out.Target = mapLabel(remap, in.Target)
	out.Dflt = mapLabel(remap, in.Dflt)
	if in.Targets != nil {
		out.Targets = make([]*Label, len(in.Targets))
		for i, l := range in.Targets {
			out.Targets[i] = mapLabel(remap, l)
		}
	}
	if in.Keys != nil {
		out.Keys = append([]int32(nil), in.Keys...)
	}
	return &out
}

func mapLabel(remap map[*Label]*Label, l *Label) *Label {
	if l == nil {
		return nil
	}
	if n, ok := remap[l]; ok {
		return n
	}
	return l
}

// TryCatch is one exception-table range. Type is the internal name of the
// caught class, or "" for a finally-style catch-all.
type TryCatch struct {
	Start   *Label
	End     *Label
	Handler *Label
	Type    string
}

// LocalVar is one local-variable-table record.
type LocalVar struct {
	Name  string
	Desc  string
	Start *Label
	End   *Label
	Slot  int
}

// Method is one method body plus its declaration data.
type Method struct {
	Access    int
	Name      string
	Desc      string
	MaxStack  int
	MaxLocals int
	Code      []*Insn
	TryCatch  []*TryCatch
	LocalVars []*LocalVar
}

// IsStatic reports whether the method has ACC_STATIC set.
func (m *Method) IsStatic() bool { return m.Access&AccStatic != 0 }

// IsInitializer reports whether the method is <init> or <clinit>.
func (m *Method) IsInitializer() bool {
	return m.Name == "<init>" || m.Name == "<clinit>"
}

// LabelIndex returns a map from every marked label to its index in Code.
func (m *Method) LabelIndex() map[*Label]int {
	idx := make(map[*Label]int)
	for i, in := range m.Code {
		if in.IsLabel() {
			idx[in.Pos] = i
		}
	}
	return idx
}

// Identity returns the owner-qualified method identity string used for
// logging and for seeding the state encoder.
func (m *Method) Identity(owner string) string {
	return owner + "." + m.Name + m.Desc
}

// Field is a field declaration (the compiler only needs its shape).
type Field struct {
	Access int
	Name   string
	Desc   string
}

// Class is one parsed class handed in by the driver.
type Class struct {
	Version   int
	Access    int
	Name      string // internal name, e.g. "com/example/Main"
	SuperName string
	Methods   []*Method
	Fields    []*Field
}

// IsInterface reports whether the class has ACC_INTERFACE set.
func (c *Class) IsInterface() bool { return c.Access&AccInterface != 0 }
