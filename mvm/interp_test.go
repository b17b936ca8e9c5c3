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
	"errors"
	"math"
	"testing"
)

// prog builds a program from instructions, appending side tables as needed
// by the individual test.
func prog(insts ...Inst) *Program {
	p := NewProgram()
	p.Code = append(p.Code, insts...)
	p.MaxLocals = 8
	p.MaxStack = 16
	return p
}

func run(t *testing.T, p *Program, env Env) Value {
	t.Helper()
	if env == nil {
		env = NewMapEnv()
	}
	it := NewInterp(p, env)
	v, err := it.Run()
	if err != nil {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
	return v
}

func TestStackExercise(t *testing.T) {
	// push 1, push 2, DUP_X1, POP2, push 3 leaves 3 on top.
	v := run(t, prog(
		Inst{Op: OpPush, A: 1},
		Inst{Op: OpPush, A: 2},
		Inst{Op: OpDupX1},
		Inst{Op: OpPop2},
		Inst{Op: OpPush, A: 3},
		Inst{Op: OpHalt},
	), nil)
	if v.I != 3 {
		t.Fatalf("top of stack = %d, want 3", v.I)
	}
}

func TestPopEmptyStack(t *testing.T) {
	it := NewInterp(prog(Inst{Op: OpPop}, Inst{Op: OpHalt}), NewMapEnv())
	_, err := it.Run()
	if !errors.Is(err, ErrStackBounds) {
		t.Fatalf("err = %v, want ErrStackBounds", err)
	}
}

func TestIntArithmetic(t *testing.T) {
	cases := []struct {
		op   Opcode
		a, b int32
		want int32
	}{
		{OpIAdd, 2, 3, 5},
		{OpISub, 2, 3, -1},
		{OpIMul, -4, 3, -12},
		{OpIDiv, 7, 2, 3},
		{OpIRem, 7, 2, 1},
		{OpIDiv, math.MinInt32, -1, math.MinInt32},
		{OpIRem, math.MinInt32, -1, 0},
		{OpIShl, 1, 33, 2}, // shift distance masked to 5 bits
		{OpIShr, -8, 1, -4},
		{OpIUshr, -1, 28, 15},
		{OpIAnd, 0b1100, 0b1010, 0b1000},
		{OpIOr, 0b1100, 0b1010, 0b1110},
		{OpIXor, 0b1100, 0b1010, 0b0110},
	}
	for _, c := range cases {
		v := run(t, prog(
			Inst{Op: OpPush, A: int64(c.a)},
			Inst{Op: OpPush, A: int64(c.b)},
			Inst{Op: c.op},
			Inst{Op: OpHalt},
		), nil)
		if int32(v.I) != c.want {
			t.Errorf("%s(%d, %d) = %d, want %d", c.op, c.a, c.b, int32(v.I), c.want)
		}
	}
}

func TestDivisionByZeroThrows(t *testing.T) {
	it := NewInterp(prog(
		Inst{Op: OpPush, A: 1},
		Inst{Op: OpPush, A: 0},
		Inst{Op: OpIDiv},
		Inst{Op: OpHalt},
	), NewMapEnv())
	_, err := it.Run()
	var thrown *Thrown
	if !errors.As(err, &thrown) {
		t.Fatalf("err = %v, want *Thrown", err)
	}
	if thrown.Ref.Class != "java/lang/ArithmeticException" {
		t.Fatalf("thrown %s, want ArithmeticException", thrown.Ref.Class)
	}
}

func TestFloatCompareNaN(t *testing.T) {
	nan := NewProgram()
	nan.MaxStack = 4
	nanIdx := nan.InternFloat(float32(math.NaN()))
	oneIdx := nan.InternFloat(1.0)

	build := func(op Opcode) *Program {
		p := NewProgram()
		p.MaxStack = 4
		p.Pool = nan.Pool
		p.Code = []Inst{
			{Op: OpLdc, A: int64(nanIdx)},
			{Op: OpLdc, A: int64(oneIdx)},
			{Op: op},
			{Op: OpHalt},
		}
		return p
	}
	if v := run(t, build(OpFCmpL), nil); v.I != -1 {
		t.Errorf("FCMPL with NaN = %d, want -1", v.I)
	}
	if v := run(t, build(OpFCmpG), nil); v.I != 1 {
		t.Errorf("FCMPG with NaN = %d, want 1", v.I)
	}
}

func TestDoubleCompareNaN(t *testing.T) {
	p := NewProgram()
	p.MaxStack = 4
	nanIdx := p.InternDouble(math.NaN())
	p.Code = []Inst{
		{Op: OpLdc2, A: int64(nanIdx)},
		{Op: OpLdc2, A: int64(nanIdx)},
		{Op: OpDCmpL},
		{Op: OpHalt},
	}
	if v := run(t, p, nil); v.I != -1 {
		t.Errorf("DCMPL(NaN, NaN) = %d, want -1", v.I)
	}
}

func TestLongOps(t *testing.T) {
	v := run(t, prog(
		Inst{Op: OpPushL, A: 1 << 40},
		Inst{Op: OpPushL, A: 3},
		Inst{Op: OpLAdd},
		Inst{Op: OpHalt},
	), nil)
	if v.I != (1<<40)+3 {
		t.Fatalf("LADD = %d", v.I)
	}
	v = run(t, prog(
		Inst{Op: OpPushL, A: -1},
		Inst{Op: OpPush, A: 56},
		Inst{Op: OpLUshr},
		Inst{Op: OpHalt},
	), nil)
	if v.I != 255 {
		t.Fatalf("LUSHR(-1, 56) = %d, want 255", v.I)
	}
}

func TestConversionsSaturate(t *testing.T) {
	p := NewProgram()
	p.MaxStack = 4
	inf := p.InternDouble(math.Inf(1))
	p.Code = []Inst{
		{Op: OpLdc2, A: int64(inf)},
		{Op: OpD2I},
		{Op: OpHalt},
	}
	if v := run(t, p, nil); int32(v.I) != math.MaxInt32 {
		t.Fatalf("D2I(+Inf) = %d, want MaxInt32", int32(v.I))
	}

	q := NewProgram()
	q.MaxStack = 4
	nan := q.InternFloat(float32(math.NaN()))
	q.Code = []Inst{
		{Op: OpLdc, A: int64(nan)},
		{Op: OpF2I},
		{Op: OpHalt},
	}
	if v := run(t, q, nil); v.I != 0 {
		t.Fatalf("F2I(NaN) = %d, want 0", v.I)
	}
}

func TestBranchesAndLocals(t *testing.T) {
	// s = 0; for (i = 0; i < 3; i++) s += i;  => 3
	p := prog(
		Inst{Op: OpPush, A: 0},
		Inst{Op: OpIStore, A: 0}, // s
		Inst{Op: OpPush, A: 0},
		Inst{Op: OpIStore, A: 1}, // i
		// 4: loop head
		Inst{Op: OpILoad, A: 1},
		Inst{Op: OpPush, A: 3},
		Inst{Op: OpIfICmpGe, A: 13},
		Inst{Op: OpILoad, A: 0},
		Inst{Op: OpILoad, A: 1},
		Inst{Op: OpIAdd},
		Inst{Op: OpIStore, A: 0},
		Inst{Op: OpIInc, A: 1<<32 | 1},
		Inst{Op: OpGoto, A: 4},
		// 13:
		Inst{Op: OpILoad, A: 0},
		Inst{Op: OpHalt},
	)
	if v := run(t, p, nil); v.I != 3 {
		t.Fatalf("loop sum = %d, want 3", v.I)
	}
}

func TestTableSwitch(t *testing.T) {
	p := prog(
		Inst{Op: OpPush, A: 2},
		Inst{Op: OpTableSwitch, A: 0},
		// 2: case 1
		Inst{Op: OpPush, A: 10},
		Inst{Op: OpHalt},
		// 4: case 2
		Inst{Op: OpPush, A: 20},
		Inst{Op: OpHalt},
		// 6: default
		Inst{Op: OpPush, A: -1},
		Inst{Op: OpHalt},
	)
	p.AddTableSwitch(TableSwitch{Low: 1, High: 2, Default: 6, Targets: []int32{2, 4}})
	if v := run(t, p, nil); v.I != 20 {
		t.Fatalf("tableswitch took %d, want 20", v.I)
	}
}

func TestLookupSwitchDefault(t *testing.T) {
	p := prog(
		Inst{Op: OpPush, A: 5},
		Inst{Op: OpLookupSwitch, A: 0},
		Inst{Op: OpPush, A: 1},
		Inst{Op: OpHalt},
		Inst{Op: OpPush, A: 99},
		Inst{Op: OpHalt},
	)
	p.AddLookupSwitch(LookupSwitch{Keys: []int32{-3, 7}, Targets: []int32{2, 2}, Default: 4})
	if v := run(t, p, nil); v.I != 99 {
		t.Fatalf("lookupswitch default took %d, want 99", v.I)
	}
}

func TestHandlerDispatch(t *testing.T) {
	env := NewMapEnv()
	env.Supers["java/lang/ArithmeticException"] = []string{"java/lang/RuntimeException"}
	p := prog(
		Inst{Op: OpPush, A: 1},
		Inst{Op: OpPush, A: 0},
		Inst{Op: OpIDiv}, // throws inside the region
		Inst{Op: OpHalt},
		// 4: handler, thrown ref on stack
		Inst{Op: OpPop},
		Inst{Op: OpPush, A: 42},
		Inst{Op: OpHalt},
	)
	p.AddHandler(TryRegion{Start: 0, End: 3, Handler: 4, Type: "java/lang/RuntimeException"})
	if v := run(t, p, env); v.I != 42 {
		t.Fatalf("handler result = %d, want 42", v.I)
	}
}

func TestAthrowPreservesInstance(t *testing.T) {
	env := NewMapEnv()
	p := prog(
		Inst{Op: OpNew, A: 0},
		Inst{Op: OpAThrow},
		Inst{Op: OpHalt},
	)
	p.InternClass("com/example/Boom")
	it := NewInterp(p, env)
	_, err := it.Run()
	var thrown *Thrown
	if !errors.As(err, &thrown) {
		t.Fatalf("err = %v, want *Thrown", err)
	}
	if thrown.Ref.Class != "com/example/Boom" {
		t.Fatalf("rethrown class = %s", thrown.Ref.Class)
	}
}

func TestMonitorReleasedOnThrow(t *testing.T) {
	env := NewMapEnv()
	lock := NewInstance("com/example/Lock")
	p := prog(
		Inst{Op: OpALoad, A: 0},
		Inst{Op: OpMonitorEnter},
		Inst{Op: OpPush, A: 1},
		Inst{Op: OpPush, A: 0},
		Inst{Op: OpIDiv}, // throws with the monitor held
		Inst{Op: OpHalt},
	)
	it := NewInterp(p, env)
	if err := it.SetLocal(0, RefVal(lock)); err != nil {
		t.Fatal(err)
	}
	_, err := it.Run()
	var thrown *Thrown
	if !errors.As(err, &thrown) {
		t.Fatalf("err = %v, want *Thrown", err)
	}
	if lock.MonitorDepth() != 0 {
		t.Fatalf("monitor depth = %d after throw, want 0", lock.MonitorDepth())
	}
}

func TestFieldsThroughEnv(t *testing.T) {
	env := NewMapEnv()
	p := prog(
		Inst{Op: OpPush, A: 7},
		Inst{Op: OpPutStatic, A: 0},
		Inst{Op: OpGetStatic, A: 0},
		Inst{Op: OpHalt},
	)
	p.InternField(MemberRef{Owner: "com/example/FieldSample", Name: "s", Desc: "I", Static: true})
	if v := run(t, p, env); v.I != 7 {
		t.Fatalf("static round-trip = %d, want 7", v.I)
	}
	if len(env.Clinit) != 1 || env.Clinit[0] != "com/example/FieldSample" {
		t.Fatalf("clinit order = %v", env.Clinit)
	}
}

func TestInvokeStatic(t *testing.T) {
	env := NewMapEnv()
	env.Funcs["com/example/GuardTarget.compute()I"] = func(args []Value) (Value, *Object, error) {
		return IntVal(42), nil, nil
	}
	p := prog(
		Inst{Op: OpInvokeStatic, A: 0},
		Inst{Op: OpHalt},
	)
	p.InternMethod(MemberRef{Owner: "com/example/GuardTarget", Name: "compute", Desc: "()I", Static: true})
	if v := run(t, p, env); v.I != 42 {
		t.Fatalf("invokestatic = %d, want 42", v.I)
	}
}

func TestArraysAndBounds(t *testing.T) {
	p := prog(
		Inst{Op: OpPush, A: 3},
		Inst{Op: OpNewArray, A: 10}, // int[3]
		Inst{Op: OpDup},
		Inst{Op: OpPush, A: 1},
		Inst{Op: OpPush, A: 9},
		Inst{Op: OpIAStore},
		Inst{Op: OpPush, A: 1},
		Inst{Op: OpIALoad},
		Inst{Op: OpHalt},
	)
	if v := run(t, p, nil); v.I != 9 {
		t.Fatalf("array element = %d, want 9", v.I)
	}

	oob := prog(
		Inst{Op: OpPush, A: 1},
		Inst{Op: OpNewArray, A: 10},
		Inst{Op: OpPush, A: 5},
		Inst{Op: OpIALoad},
		Inst{Op: OpHalt},
	)
	it := NewInterp(oob, NewMapEnv())
	_, err := it.Run()
	var thrown *Thrown
	if !errors.As(err, &thrown) {
		t.Fatalf("err = %v, want *Thrown", err)
	}
	if thrown.Ref.Class != "java/lang/ArrayIndexOutOfBoundsException" {
		t.Fatalf("thrown = %s", thrown.Ref.Class)
	}
}

func TestInstanceOfAndCheckcast(t *testing.T) {
	env := NewMapEnv()
	env.Supers["com/example/Sub"] = []string{"com/example/Base"}
	p := prog(
		Inst{Op: OpNew, A: 0}, // Sub
		Inst{Op: OpInstanceOf, A: 1},
		Inst{Op: OpHalt},
	)
	p.InternClass("com/example/Sub")
	p.InternClass("com/example/Base")
	if v := run(t, p, env); v.I != 1 {
		t.Fatalf("instanceof = %d, want 1", v.I)
	}

	bad := prog(
		Inst{Op: OpNew, A: 1}, // Base is not a Sub
		Inst{Op: OpCheckCast, A: 0},
		Inst{Op: OpHalt},
	)
	bad.InternClass("com/example/Sub")
	bad.InternClass("com/example/Base")
	it := NewInterp(bad, env)
	_, err := it.Run()
	var thrown *Thrown
	if !errors.As(err, &thrown) {
		t.Fatalf("err = %v, want *Thrown", err)
	}
	if thrown.Ref.Class != "java/lang/ClassCastException" {
		t.Fatalf("thrown = %s", thrown.Ref.Class)
	}
}
