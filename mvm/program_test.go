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

package mvm

import (
	"math"
	"testing"
)

func TestConstPoolDedup(t *testing.T) {
	p := NewProgram()
	a := p.InternInt(42)
	b := p.InternInt(42)
	c := p.InternInt(43)
	if a != b {
		t.Fatalf("same value interned twice: %d vs %d", a, b)
	}
	if a == c {
		t.Fatalf("distinct values share index %d", a)
	}
	if n := len(p.Pool); n != 2 {
		t.Fatalf("pool size = %d, want 2", n)
	}
}

func TestConstPoolTagsDistinguish(t *testing.T) {
	p := NewProgram()
	i := p.InternInt(1)
	f := p.InternFloat(float32(math.Float32frombits(1))) // same bits, float tag
	s := p.InternString("1")
	if i == f || i == s || f == s {
		t.Fatalf("entries with distinct tags collided: %d %d %d", i, f, s)
	}
}

func TestFloatInternByBits(t *testing.T) {
	p := NewProgram()
	a := p.InternFloat(float32(math.NaN()))
	b := p.InternFloat(float32(math.NaN()))
	if a != b {
		t.Fatalf("NaN interned twice: %d vs %d", a, b)
	}
	if got := p.Pool[a].Float(); !math.IsNaN(got) {
		t.Fatalf("Float() = %v, want NaN", got)
	}
}

func TestMemberInterning(t *testing.T) {
	p := NewProgram()
	ref := MemberRef{Owner: "a/B", Name: "f", Desc: "I", Static: true}
	if i, j := p.InternField(ref), p.InternField(ref); i != j {
		t.Fatalf("field interned twice: %d vs %d", i, j)
	}
	other := ref
	other.Static = false
	if i, j := p.InternField(ref), p.InternField(other); i == j {
		t.Fatal("static flag must participate in field identity")
	}
	if i, j := p.InternMethod(ref), p.InternMethod(ref); i != j {
		t.Fatalf("method interned twice: %d vs %d", i, j)
	}
}

func TestClassAndMultiInterning(t *testing.T) {
	p := NewProgram()
	if i, j := p.InternClass("a/B"), p.InternClass("a/B"); i != j {
		t.Fatal("class interned twice")
	}
	rec := MultiArray{Desc: "[[I", Dims: 2}
	if i, j := p.InternMulti(rec), p.InternMulti(rec); i != j {
		t.Fatal("multi-array record interned twice")
	}
}

func TestOpcodeString(t *testing.T) {
	cases := []struct {
		op   Opcode
		want string
	}{
		{OpHalt, "HALT"},
		{OpPush, "PUSH"},
		{OpDup2X2, "DUP2_X2"},
		{OpGoto, "GOTO"},
		{OpGoto | WideBit, "GOTO_W"},
		{OpInvokeDynamic, "INVOKEDYNAMIC"},
		{opMax, "INVALID"},
	}
	for _, c := range cases {
		if got := c.op.String(); got != c.want {
			t.Errorf("Opcode(%d).String() = %q, want %q", c.op, got, c.want)
		}
	}
}
