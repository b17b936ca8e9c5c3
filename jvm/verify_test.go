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

package jvm

import (
	"errors"
	"testing"
)

func verifiable() *Method {
	l := NewLabel()
	return &Method{
		Access: AccStatic, Name: "m", Desc: "(I)I",
		MaxStack: 2, MaxLocals: 1,
		Code: []*Insn{
			{Op: OpIload, Var: 0},
			{Op: OpIfle, Target: l},
			{Op: OpIload, Var: 0},
			{Op: OpIreturn},
			{Op: OpLabelMark, Pos: l},
			{Op: OpIconst0},
			{Op: OpIreturn},
		},
	}
}

func TestVerifyAccepts(t *testing.T) {
	if err := Verify(verifiable()); err != nil {
		t.Fatalf("valid method rejected: %v", err)
	}
}

func TestVerifyUnresolvedTarget(t *testing.T) {
	m := verifiable()
	m.Code[1].Target = NewLabel() // not marked anywhere
	if err := Verify(m); !errors.Is(err, ErrUnresolvedLabel) {
		t.Fatalf("err = %v, want ErrUnresolvedLabel", err)
	}
}

func TestVerifyInvertedRange(t *testing.T) {
	m := verifiable()
	start, end := NewLabel(), NewLabel()
	m.Code = append([]*Insn{
		{Op: OpLabelMark, Pos: end},
	}, m.Code...)
	m.Code = append(m.Code, &Insn{Op: OpLabelMark, Pos: start})
	m.TryCatch = []*TryCatch{{Start: start, End: end, Handler: end}}
	if err := Verify(m); !errors.Is(err, ErrBadRange) {
		t.Fatalf("err = %v, want ErrBadRange", err)
	}
}

func TestVerifySwitchKeys(t *testing.T) {
	a, d := NewLabel(), NewLabel()
	m := &Method{
		Access: AccStatic, Name: "sw", Desc: "(I)V",
		MaxStack: 1, MaxLocals: 1,
		Code: []*Insn{
			{Op: OpIload, Var: 0},
			{Op: OpLookupswitch, Keys: []int32{5, 2}, Targets: []*Label{a, a}, Dflt: d},
			{Op: OpLabelMark, Pos: a},
			{Op: OpLabelMark, Pos: d},
			{Op: OpReturn},
		},
	}
	if err := Verify(m); !errors.Is(err, ErrSwitchKeys) {
		t.Fatalf("err = %v, want ErrSwitchKeys", err)
	}
}

func TestVerifyStackExcursion(t *testing.T) {
	m := &Method{
		Access: AccStatic, Name: "deep", Desc: "()V",
		MaxStack: 1, MaxLocals: 0,
		Code: []*Insn{
			{Op: OpIconst0},
			{Op: OpIconst0},
			{Op: OpPop2},
			{Op: OpReturn},
		},
	}
	if err := Verify(m); !errors.Is(err, ErrStackDepth) {
		t.Fatalf("err = %v, want ErrStackDepth", err)
	}
	if err := RecomputeFrames(m); err != nil {
		t.Fatal(err)
	}
	if m.MaxStack != 2 {
		t.Fatalf("recomputed MaxStack = %d, want 2", m.MaxStack)
	}
	if err := Verify(m); err != nil {
		t.Fatalf("verify after recompute: %v", err)
	}
}

func TestVerifyUnderflow(t *testing.T) {
	m := &Method{
		Access: AccStatic, Name: "under", Desc: "()V",
		MaxStack: 1, MaxLocals: 0,
		Code: []*Insn{
			{Op: OpPop},
			{Op: OpReturn},
		},
	}
	if err := Verify(m); !errors.Is(err, ErrStackDepth) {
		t.Fatalf("err = %v, want ErrStackDepth", err)
	}
}

func TestRecomputeFramesLocals(t *testing.T) {
	m := &Method{
		Access: AccStatic, Name: "wide", Desc: "(I)V",
		MaxStack: 0, MaxLocals: 0,
		Code: []*Insn{
			{Op: OpLconst0},
			{Op: OpLstore, Var: 3},
			{Op: OpReturn},
		},
	}
	if err := RecomputeFrames(m); err != nil {
		t.Fatal(err)
	}
	if m.MaxLocals != 5 {
		t.Fatalf("MaxLocals = %d, want 5 (slot 3 wide)", m.MaxLocals)
	}
	if m.MaxStack != 2 {
		t.Fatalf("MaxStack = %d, want 2", m.MaxStack)
	}
}

func TestHandlerEntryDepth(t *testing.T) {
	start, end, handler := NewLabel(), NewLabel(), NewLabel()
	m := &Method{
		Access: AccStatic, Name: "g", Desc: "()V",
		MaxStack: 1, MaxLocals: 1,
		Code: []*Insn{
			{Op: OpLabelMark, Pos: start},
			{Op: OpNop},
			{Op: OpLabelMark, Pos: end},
			{Op: OpReturn},
			{Op: OpLabelMark, Pos: handler},
			{Op: OpAstore, Var: 0}, // caught exception on the stack
			{Op: OpReturn},
		},
		TryCatch: []*TryCatch{{Start: start, End: end, Handler: handler}},
	}
	if err := Verify(m); err != nil {
		t.Fatalf("handler entry depth mishandled: %v", err)
	}
}
