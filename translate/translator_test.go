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

package translate

import (
	"errors"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/shroudlabs/go-shroud/jvm"
	"github.com/shroudlabs/go-shroud/mvm"
)

// method builds a static test method around the given code.
func method(desc string, code ...*jvm.Insn) *jvm.Method {
	return &jvm.Method{
		Access:    jvm.AccPublic | jvm.AccStatic,
		Name:      "test",
		Desc:      desc,
		MaxStack:  8,
		MaxLocals: 8,
		Code:      code,
	}
}

func insn(op jvm.Opcode) *jvm.Insn        { return &jvm.Insn{Op: op} }
func mark(l *jvm.Label) *jvm.Insn         { return &jvm.Insn{Op: jvm.OpLabelMark, Pos: l} }
func pushVal(v int32) *jvm.Insn           { return &jvm.Insn{Op: jvm.OpSipush, Val: v} }
func load(op jvm.Opcode, v int) *jvm.Insn { return &jvm.Insn{Op: op, Var: v} }

func mustTranslate(t *testing.T, m *jvm.Method) *mvm.Program {
	t.Helper()
	prog, ok := Translate(m)
	if !ok {
		t.Fatal("Translate rejected a lowerable method")
	}
	return prog
}

// runProg executes a translated program with the given locals.
func runProg(t *testing.T, prog *mvm.Program, env mvm.Env, locals ...mvm.Value) mvm.Value {
	t.Helper()
	if env == nil {
		env = mvm.NewMapEnv()
	}
	it := mvm.NewInterp(prog, env)
	for i, v := range locals {
		if err := it.SetLocal(i, v); err != nil {
			t.Fatal(err)
		}
	}
	v, err := it.Run()
	if err != nil {
		t.Fatalf("interpreting translated program: %v", err)
	}
	return v
}

func ops(prog *mvm.Program) []mvm.Opcode {
	out := make([]mvm.Opcode, len(prog.Code))
	for i, in := range prog.Code {
		out[i] = in.Op
	}
	return out
}

// ---- Lowering shape --------------------------------------------------------

func TestConstantsLowering(t *testing.T) {
	prog := mustTranslate(t, method("()I",
		insn(jvm.OpIconst2),
		&jvm.Insn{Op: jvm.OpBipush, Val: -7},
		&jvm.Insn{Op: jvm.OpLdc, Cst: jvm.Const{Tag: jvm.ConstInt, I: 100000}},
		insn(jvm.OpIadd),
		insn(jvm.OpIadd),
		insn(jvm.OpIreturn),
	))
	want := []mvm.Opcode{mvm.OpPush, mvm.OpPush, mvm.OpLdc, mvm.OpIAdd, mvm.OpIAdd, mvm.OpHalt, mvm.OpHalt}
	if got := ops(prog); !reflect.DeepEqual(got, want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	if prog.Code[1].A != -7 {
		t.Fatalf("bipush operand = %d, want -7 (sign extended)", prog.Code[1].A)
	}
	if prog.Pool[prog.Code[2].A].Bits != 100000 {
		t.Fatal("ldc did not intern 100000")
	}
}

func TestStackOpCategorySelection(t *testing.T) {
	// POP2 over a long lowers to a single POP.
	prog := mustTranslate(t, method("()V",
		insn(jvm.OpLconst1),
		insn(jvm.OpPop2),
		insn(jvm.OpReturn),
	))
	want := []mvm.Opcode{mvm.OpPushL, mvm.OpPop, mvm.OpHalt, mvm.OpHalt}
	if got := ops(prog); !reflect.DeepEqual(got, want) {
		t.Fatalf("POP2/cat2 ops = %v, want %v", got, want)
	}

	// POP2 over two ints keeps the two-slot variant.
	prog = mustTranslate(t, method("()V",
		insn(jvm.OpIconst1),
		insn(jvm.OpIconst2),
		insn(jvm.OpPop2),
		insn(jvm.OpReturn),
	))
	if prog.Code[2].Op != mvm.OpPop2 {
		t.Fatalf("POP2/cat1 lowered to %s", prog.Code[2].Op)
	}

	// DUP2 over a double becomes DUP.
	prog = mustTranslate(t, method("()V",
		insn(jvm.OpDconst1),
		insn(jvm.OpDup2),
		insn(jvm.OpPop2),
		insn(jvm.OpPop2),
		insn(jvm.OpReturn),
	))
	if prog.Code[1].Op != mvm.OpDup {
		t.Fatalf("DUP2/cat2 lowered to %s", prog.Code[1].Op)
	}

	// DUP2_X2 forms: long over two ints (form 2) uses DUP_X2.
	prog = mustTranslate(t, method("()V",
		insn(jvm.OpIconst1),
		insn(jvm.OpIconst2),
		insn(jvm.OpLconst1),
		insn(jvm.OpDup2X2),
		insn(jvm.OpPop2),
		insn(jvm.OpPop2),
		insn(jvm.OpPop2),
		insn(jvm.OpReturn),
	))
	if prog.Code[3].Op != mvm.OpDupX2 {
		t.Fatalf("DUP2_X2 form 2 lowered to %s", prog.Code[3].Op)
	}

	// DUP over a category-2 top is illegal and rejects the method.
	if _, ok := Translate(method("()V",
		insn(jvm.OpLconst1),
		insn(jvm.OpDup),
		insn(jvm.OpReturn),
	)); ok {
		t.Fatal("DUP over cat2 must reject")
	}
}

func TestSwapLowering(t *testing.T) {
	prog := mustTranslate(t, method("()I",
		pushVal(1),
		pushVal(2),
		insn(jvm.OpSwap),
		insn(jvm.OpIsub), // 2 - 1
		insn(jvm.OpIreturn),
	))
	if v := runProg(t, prog, nil); v.I != 1 {
		t.Fatalf("swap/sub = %d, want 1", v.I)
	}
}

func TestBranchResolution(t *testing.T) {
	skip := jvm.NewLabel()
	prog := mustTranslate(t, method("(I)I",
		load(jvm.OpIload, 0),
		&jvm.Insn{Op: jvm.OpIfle, Target: skip},
		pushVal(10),
		insn(jvm.OpIreturn),
		mark(skip),
		pushVal(-10),
		insn(jvm.OpIreturn),
	))
	if v := runProg(t, prog, nil, mvm.IntVal(5)); v.I != 10 {
		t.Fatalf("positive branch = %d, want 10", v.I)
	}
	if v := runProg(t, prog, nil, mvm.IntVal(0)); v.I != -10 {
		t.Fatalf("non-positive branch = %d, want -10", v.I)
	}
}

func TestWideBranchEncoding(t *testing.T) {
	far := jvm.NewLabel()
	code := []*jvm.Insn{{Op: jvm.OpGoto, Target: far}}
	for i := 0; i < 20000; i++ {
		code = append(code, insn(jvm.OpIconst0), insn(jvm.OpPop))
	}
	code = append(code, mark(far), insn(jvm.OpIconst1), insn(jvm.OpIreturn))
	prog := mustTranslate(t, &jvm.Method{
		Access: jvm.AccStatic, Name: "wide", Desc: "()I",
		MaxStack: 2, MaxLocals: 1, Code: code,
	})
	if !prog.Code[0].Op.Wide() {
		t.Fatalf("far branch not widened: %s", prog.Code[0].Op)
	}
	if v := runProg(t, prog, nil); v.I != 1 {
		t.Fatalf("wide goto result = %d, want 1", v.I)
	}
}

func TestLoopSum(t *testing.T) {
	loop := jvm.NewLabel()
	done := jvm.NewLabel()
	prog := mustTranslate(t, method("()I",
		insn(jvm.OpIconst0), load(jvm.OpIstore, 0), // s = 0
		insn(jvm.OpIconst0), load(jvm.OpIstore, 1), // i = 0
		mark(loop),
		load(jvm.OpIload, 1), insn(jvm.OpIconst3),
		&jvm.Insn{Op: jvm.OpIfIcmpge, Target: done},
		load(jvm.OpIload, 0), load(jvm.OpIload, 1), insn(jvm.OpIadd), load(jvm.OpIstore, 0),
		&jvm.Insn{Op: jvm.OpIinc, Var: 1, Val: 1},
		&jvm.Insn{Op: jvm.OpGoto, Target: loop},
		mark(done),
		load(jvm.OpIload, 0), insn(jvm.OpIreturn),
	))
	if v := runProg(t, prog, nil); v.I != 3 {
		t.Fatalf("loop sum = %d, want 3", v.I)
	}
}

func TestLookupSwitchLowering(t *testing.T) {
	a, b, dflt := jvm.NewLabel(), jvm.NewLabel(), jvm.NewLabel()
	m := method("(I)I",
		load(jvm.OpIload, 0),
		&jvm.Insn{Op: jvm.OpLookupswitch,
			Keys: []int32{-1, 7}, Targets: []*jvm.Label{a, b}, Dflt: dflt},
		mark(a), pushVal(100), insn(jvm.OpIreturn),
		mark(b), pushVal(200), insn(jvm.OpIreturn),
		mark(dflt), pushVal(300), insn(jvm.OpIreturn),
	)
	prog := mustTranslate(t, m)
	if v := runProg(t, prog, nil, mvm.IntVal(7)); v.I != 200 {
		t.Fatalf("key 7 -> %d, want 200", v.I)
	}
	if v := runProg(t, prog, nil, mvm.IntVal(99)); v.I != 300 {
		t.Fatalf("default -> %d, want 300", v.I)
	}

	// Unsorted keys reject.
	bad := method("(I)V",
		load(jvm.OpIload, 0),
		&jvm.Insn{Op: jvm.OpLookupswitch,
			Keys: []int32{7, -1}, Targets: []*jvm.Label{a, b}, Dflt: dflt},
		mark(a), mark(b), mark(dflt), insn(jvm.OpReturn),
	)
	if _, ok := Translate(bad); ok {
		t.Fatal("unsorted lookupswitch keys must reject")
	}
}

func TestFieldRoundTrip(t *testing.T) {
	// FieldSample.s = 7; return FieldSample.s;
	prog := mustTranslate(t, method("()I",
		&jvm.Insn{Op: jvm.OpBipush, Val: 7},
		&jvm.Insn{Op: jvm.OpPutstatic, Owner: "com/example/FieldSample", Name: "s", Desc: "I"},
		&jvm.Insn{Op: jvm.OpGetstatic, Owner: "com/example/FieldSample", Name: "s", Desc: "I"},
		insn(jvm.OpIreturn),
	))
	env := mvm.NewMapEnv()
	if v := runProg(t, prog, env); v.I != 7 {
		t.Fatalf("static field round trip = %d, want 7", v.I)
	}
	if len(prog.Fields) != 1 {
		t.Fatalf("field table has %d entries, want 1 (interned)", len(prog.Fields))
	}
	if !prog.Fields[0].Static {
		t.Fatal("static flag lost in field table")
	}
}

func TestInvocationLowering(t *testing.T) {
	prog := mustTranslate(t, method("()I",
		&jvm.Insn{Op: jvm.OpInvokestatic, Owner: "com/example/GuardTarget",
			Name: "compute", Desc: "()I"},
		insn(jvm.OpIreturn),
	))
	env := mvm.NewMapEnv()
	env.Funcs["com/example/GuardTarget.compute()I"] = func(args []mvm.Value) (mvm.Value, *mvm.Object, error) {
		return mvm.IntVal(42), nil, nil
	}
	if v := runProg(t, prog, env); v.I != 42 {
		t.Fatalf("invokestatic = %d, want 42", v.I)
	}
	if prog.Code[0].Op != mvm.OpInvokeStatic {
		t.Fatalf("kind = %s", prog.Code[0].Op)
	}
}

func TestTryCatchTranslation(t *testing.T) {
	start, end, handler := jvm.NewLabel(), jvm.NewLabel(), jvm.NewLabel()
	m := method("()I",
		mark(start),
		insn(jvm.OpIconst1),
		insn(jvm.OpIconst0),
		insn(jvm.OpIdiv),
		insn(jvm.OpIreturn),
		mark(end),
		mark(handler),
		insn(jvm.OpPop),
		&jvm.Insn{Op: jvm.OpBipush, Val: 42},
		insn(jvm.OpIreturn),
	)
	m.TryCatch = []*jvm.TryCatch{{
		Start: start, End: end, Handler: handler,
		Type: "java/lang/ArithmeticException",
	}}
	prog := mustTranslate(t, m)
	if len(prog.Handlers) != 1 {
		t.Fatalf("handler table has %d entries", len(prog.Handlers))
	}
	if v := runProg(t, prog, mvm.NewMapEnv()); v.I != 42 {
		t.Fatalf("catch result = %d, want 42", v.I)
	}
}

func TestMonitorReleaseInjection(t *testing.T) {
	// synchronized (lock) { throw inside } must still release the monitor.
	m := method("(Ljava/lang/Object;)V",
		load(jvm.OpAload, 0),
		insn(jvm.OpMonitorenter),
		insn(jvm.OpIconst1),
		insn(jvm.OpIconst0),
		insn(jvm.OpIdiv),
		insn(jvm.OpPop),
		load(jvm.OpAload, 0),
		insn(jvm.OpMonitorexit),
		insn(jvm.OpReturn),
	)
	prog := mustTranslate(t, m)
	if len(prog.Handlers) != 1 {
		t.Fatalf("no synthetic release region: %d handlers", len(prog.Handlers))
	}

	lock := mvm.NewInstance("com/example/Lock")
	it := mvm.NewInterp(prog, mvm.NewMapEnv())
	if err := it.SetLocal(0, mvm.RefVal(lock)); err != nil {
		t.Fatal(err)
	}
	_, err := it.Run()
	var thrown *mvm.Thrown
	if !errors.As(err, &thrown) {
		t.Fatalf("err = %v, want rethrown guest exception", err)
	}
	if lock.MonitorDepth() != 0 {
		t.Fatalf("monitor depth = %d after throw, want 0", lock.MonitorDepth())
	}
}

// ---- Rejection matrix ------------------------------------------------------

func TestRejections(t *testing.T) {
	l := jvm.NewLabel()
	cases := map[string]*jvm.Method{
		"jsr": method("()V", &jvm.Insn{Op: jvm.OpJsr, Target: l}, mark(l), insn(jvm.OpReturn)),
		"ret": method("()V", load(jvm.OpRet, 1), insn(jvm.OpReturn)),
		"unresolved label": method("()V",
			&jvm.Insn{Op: jvm.OpGoto, Target: jvm.NewLabel()},
			insn(jvm.OpReturn)),
		"stack underflow": method("()V", insn(jvm.OpPop), insn(jvm.OpReturn)),
	}
	ctor := &jvm.Method{
		Access: jvm.AccPublic, Name: "<init>", Desc: "()V",
		MaxStack: 1, MaxLocals: 1,
		Code: []*jvm.Insn{
			load(jvm.OpAload, 0),
			{Op: jvm.OpInvokespecial, Owner: "java/lang/Object", Name: "<init>", Desc: "()V"},
			insn(jvm.OpReturn),
		},
	}
	cases["constructor chaining"] = ctor

	for name, m := range cases {
		if _, ok := Translate(m); ok {
			t.Errorf("%s: expected rejection", name)
		}
	}
}

func TestDeterminism(t *testing.T) {
	build := func() *jvm.Method {
		return method("()I",
			&jvm.Insn{Op: jvm.OpLdc, Cst: jvm.Const{Tag: jvm.ConstInt, I: 12345}},
			&jvm.Insn{Op: jvm.OpGetstatic, Owner: "a/B", Name: "x", Desc: "I"},
			insn(jvm.OpIadd),
			&jvm.Insn{Op: jvm.OpLdc, Cst: jvm.Const{Tag: jvm.ConstInt, I: 12345}},
			insn(jvm.OpIadd),
			insn(jvm.OpIreturn),
		)
	}
	p1 := mustTranslate(t, build())
	p2 := mustTranslate(t, build())
	if !reflect.DeepEqual(p1.Code, p2.Code) {
		t.Fatalf("translation is not deterministic:\n%s\nvs\n%s",
			spew.Sdump(p1.Code), spew.Sdump(p2.Code))
	}
	if !reflect.DeepEqual(p1.Pool, p2.Pool) {
		t.Fatal("pool assignment is not deterministic")
	}
	if p1.Pool[p1.Code[0].A] != (mvm.PoolEntry{Tag: mvm.PoolInteger, Bits: 12345}) {
		t.Fatal("unexpected pool entry")
	}
}

func TestConversionMatrix(t *testing.T) {
	prog := mustTranslate(t, method("(I)J",
		load(jvm.OpIload, 0),
		insn(jvm.OpI2l),
		insn(jvm.OpLreturn),
	))
	if v := runProg(t, prog, nil, mvm.IntVal(-5)); v.I != -5 || v.Kind != mvm.KLong {
		t.Fatalf("i2l = %+v", v)
	}

	prog = mustTranslate(t, method("(I)I",
		load(jvm.OpIload, 0),
		insn(jvm.OpI2b),
		insn(jvm.OpIreturn),
	))
	if v := runProg(t, prog, nil, mvm.IntVal(0x181)); int32(v.I) != -127 {
		t.Fatalf("i2b(0x181) = %d, want -127", int32(v.I))
	}
}

func TestAllocationLowering(t *testing.T) {
	prog := mustTranslate(t, method("()I",
		insn(jvm.OpIconst3),
		&jvm.Insn{Op: jvm.OpNewarray, Val: jvm.TInt},
		insn(jvm.OpArraylength),
		insn(jvm.OpIreturn),
	))
	if v := runProg(t, prog, nil); v.I != 3 {
		t.Fatalf("newarray length = %d, want 3", v.I)
	}

	prog = mustTranslate(t, method("()I",
		insn(jvm.OpIconst2),
		insn(jvm.OpIconst3),
		&jvm.Insn{Op: jvm.OpMultianewarray, Desc: "[[I", Dims: 2},
		insn(jvm.OpArraylength),
		insn(jvm.OpIreturn),
	))
	if len(prog.MultiArr) != 1 || prog.MultiArr[0].Dims != 2 {
		t.Fatalf("multi-array table = %+v", prog.MultiArr)
	}
	if v := runProg(t, prog, nil); v.I != 2 {
		t.Fatalf("multianewarray outer length = %d, want 2", v.I)
	}
}
