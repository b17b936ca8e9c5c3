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

package nativegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shroudlabs/go-shroud/flow"
	"github.com/shroudlabs/go-shroud/jvm"
	"github.com/shroudlabs/go-shroud/translate"
)

func testClass(methods ...*jvm.Method) *jvm.Class {
	return &jvm.Class{
		Access:    jvm.AccPublic,
		Name:      "com/example/Target",
		SuperName: "java/lang/Object",
		Methods:   methods,
	}
}

func staticMethod(name, desc string, code ...*jvm.Insn) *jvm.Method {
	return &jvm.Method{
		Access: jvm.AccPublic | jvm.AccStatic, Name: name, Desc: desc,
		MaxStack: 8, MaxLocals: 8, Code: code,
	}
}

func emit(t *testing.T, cfg Config, m *jvm.Method) (*ClassContext, string) {
	t.Helper()
	ctx := NewClassContext(testClass(m), 0, cfg)
	_, err := ctx.EmitMethod(m, nil)
	require.NoError(t, err)
	return ctx, ctx.Def()
}

func TestPrimitiveMethodElidesRefTracking(t *testing.T) {
	m := staticMethod("add", "(II)I",
		&jvm.Insn{Op: jvm.OpIload, Var: 0},
		&jvm.Insn{Op: jvm.OpIload, Var: 1},
		&jvm.Insn{Op: jvm.OpIadd},
		&jvm.Insn{Op: jvm.OpIreturn},
	)
	_, src := emit(t, Config{}, m)
	assert.Contains(t, src, "while (true)")
	assert.Contains(t, src, "switch (state)")
	assert.Contains(t, src, "return rv.i;")
	assert.NotContains(t, src, "RefSet", "primitive-only method must not carry the tracking set")
}

func TestRefTrackingDrainedThroughSingleEpilogue(t *testing.T) {
	m := staticMethod("greet", "()Ljava/lang/String;",
		&jvm.Insn{Op: jvm.OpLdc, Cst: jvm.Const{Tag: jvm.ConstString, S: "hi"}},
		&jvm.Insn{Op: jvm.OpAreturn},
	)
	_, src := emit(t, Config{}, m)
	assert.Contains(t, src, "shroud::RefSet refs(env);")
	assert.Contains(t, src, "refs.release();")
	assert.Equal(t, 1, strings.Count(src, "done:"), "every exit must route through one epilogue")
	assert.Contains(t, src, "goto done;")
}

func TestCacheCoherenceAcrossBranches(t *testing.T) {
	// The else branch lexically precedes the then branch's class use; both
	// uses must resolve through the lazy accessor so runtime order does not
	// matter.
	l := jvm.NewLabel()
	m := staticMethod("pick", "(I)I",
		&jvm.Insn{Op: jvm.OpIload, Var: 0},
		&jvm.Insn{Op: jvm.OpIfne, Target: l},
		&jvm.Insn{Op: jvm.OpGetstatic, Owner: "com/example/GuardTarget", Name: "VALUE", Desc: "I"},
		&jvm.Insn{Op: jvm.OpIreturn},
		&jvm.Insn{Op: jvm.OpLabelMark, Pos: l},
		&jvm.Insn{Op: jvm.OpInvokestatic, Owner: "com/example/GuardTarget", Name: "compute", Desc: "()I"},
		&jvm.Insn{Op: jvm.OpIreturn},
	)
	ctx, src := emit(t, Config{}, m)

	assert.GreaterOrEqual(t, strings.Count(src, "sp_c0_cls_init(env, 0)"), 2,
		"both uses must go through the initialising accessor")
	// One shared cache slot for the class, however many uses.
	assert.Equal(t, []string{"com/example/GuardTarget"}, ctx.ReferencedClasses())
	assert.True(t, ctx.ClinitForced(0), "static member owners must be clinit-forced")
}

func TestRecursiveStaticSelfCallIsDirect(t *testing.T) {
	l := jvm.NewLabel()
	m := staticMethod("fact", "(I)I",
		&jvm.Insn{Op: jvm.OpIload, Var: 0},
		&jvm.Insn{Op: jvm.OpIfle, Target: l},
		&jvm.Insn{Op: jvm.OpIload, Var: 0},
		&jvm.Insn{Op: jvm.OpIload, Var: 0},
		&jvm.Insn{Op: jvm.OpIconst1},
		&jvm.Insn{Op: jvm.OpIsub},
		&jvm.Insn{Op: jvm.OpInvokestatic, Owner: "com/example/Target",
			Name: "fact", Desc: "(I)I"},
		&jvm.Insn{Op: jvm.OpImul},
		&jvm.Insn{Op: jvm.OpIreturn},
		&jvm.Insn{Op: jvm.OpLabelMark, Pos: l},
		&jvm.Insn{Op: jvm.OpIconst1},
		&jvm.Insn{Op: jvm.OpIreturn},
	)
	m.Name = "fact"
	ctx := NewClassContext(testClass(m), 0, Config{})
	ctx.Class.Name = "com/example/Target"
	_, err := ctx.EmitMethod(m, nil)
	require.NoError(t, err)
	src := ctx.Def()

	assert.Contains(t, src, "sp_c0_m0(env, clazz", "self recursion must call the emitted function directly")
	assert.NotContains(t, src, "CallStatic", "no interop round-trip for the self call")
}

func TestLocalClassHandleCollapsesLookups(t *testing.T) {
	m := staticMethod("twice", "(Ljava/lang/Object;)I",
		&jvm.Insn{Op: jvm.OpAload, Var: 0},
		&jvm.Insn{Op: jvm.OpInstanceof, Owner: "com/example/Thing"},
		&jvm.Insn{Op: jvm.OpAload, Var: 0},
		&jvm.Insn{Op: jvm.OpInstanceof, Owner: "com/example/Thing"},
		&jvm.Insn{Op: jvm.OpIadd},
		&jvm.Insn{Op: jvm.OpIreturn},
	)
	_, src := emit(t, Config{}, m)
	assert.Contains(t, src, "jclass lc_0 = nullptr;")
	assert.Equal(t, 2, strings.Count(src, "if (lc_0 == nullptr)"),
		"each use guards the same per-method handle")
	assert.NotContains(t, src, "lc_1", "one class, one handle")
}

func TestExceptionDispatchCoversRegions(t *testing.T) {
	start, end, handler := jvm.NewLabel(), jvm.NewLabel(), jvm.NewLabel()
	m := staticMethod("guarded", "()I",
		&jvm.Insn{Op: jvm.OpLabelMark, Pos: start},
		&jvm.Insn{Op: jvm.OpInvokestatic, Owner: "com/example/Thrower", Name: "boom", Desc: "()I"},
		&jvm.Insn{Op: jvm.OpIreturn},
		&jvm.Insn{Op: jvm.OpLabelMark, Pos: end},
		&jvm.Insn{Op: jvm.OpLabelMark, Pos: handler},
		&jvm.Insn{Op: jvm.OpPop},
		&jvm.Insn{Op: jvm.OpIconst1},
		&jvm.Insn{Op: jvm.OpIreturn},
	)
	m.TryCatch = []*jvm.TryCatch{{
		Start: start, End: end, Handler: handler,
		Type: "java/lang/UnsupportedOperationException",
	}}
	_, src := emit(t, Config{}, m)
	assert.Contains(t, src, "exc:")
	assert.Contains(t, src, "env->ExceptionOccurred()")
	assert.Contains(t, src, "IsInstanceOf", "typed handler must match the exception class")
	assert.Contains(t, src, "env->Throw(t);", "unhandled exceptions re-throw before the epilogue")
}

func TestNativeFlattenEncodesStates(t *testing.T) {
	m := staticMethod("add", "(II)I",
		&jvm.Insn{Op: jvm.OpIload, Var: 0},
		&jvm.Insn{Op: jvm.OpIload, Var: 1},
		&jvm.Insn{Op: jvm.OpIadd},
		&jvm.Insn{Op: jvm.OpIreturn},
	)
	_, plain := emit(t, Config{}, m)
	assert.Contains(t, plain, "case 0u:", "unflattened bodies use raw indices")
	assert.NotContains(t, plain, "_mix")

	m2 := staticMethod("add", "(II)I",
		&jvm.Insn{Op: jvm.OpIload, Var: 0},
		&jvm.Insn{Op: jvm.OpIload, Var: 1},
		&jvm.Insn{Op: jvm.OpIadd},
		&jvm.Insn{Op: jvm.OpIreturn},
	)
	_, obf := emit(t, Config{NativeFlatten: true, Strength: flow.StrengthHigh}, m2)
	assert.Contains(t, obf, "_mix", "flattened bodies embed the mixing helper")
	assert.NotContains(t, obf, "case 0u:", "raw indices must not appear as case labels")
}

func TestBackendsAreExclusive(t *testing.T) {
	src := func(virt bool) string {
		m := staticMethod("add", "(II)I",
			&jvm.Insn{Op: jvm.OpIload, Var: 0},
			&jvm.Insn{Op: jvm.OpIload, Var: 1},
			&jvm.Insn{Op: jvm.OpIadd},
			&jvm.Insn{Op: jvm.OpIreturn},
		)
		prog, ok := translate.Translate(m)
		require.True(t, ok)
		ctx := NewClassContext(testClass(m), 0, Config{Virtualization: virt})
		if !virt {
			prog = nil
		}
		_, err := ctx.EmitMethod(m, prog)
		require.NoError(t, err)
		return ctx.Def()
	}

	vm := src(true)
	assert.Contains(t, vm, "shroud::vm_invoke")
	assert.Contains(t, vm, "_img")
	assert.NotContains(t, vm, "while (true)", "VM bodies carry no state machine")
	assert.NotContains(t, vm, "switch (state)")

	sm := src(false)
	assert.Contains(t, sm, "while (true)")
	assert.NotContains(t, sm, "vm_invoke", "state-machine bodies carry no VM hooks")
	assert.NotContains(t, sm, "_img")
}

func TestInstanceMethodReceiverInLocals(t *testing.T) {
	m := &jvm.Method{
		Access: jvm.AccPublic, Name: "self", Desc: "()Ljava/lang/Object;",
		MaxStack: 2, MaxLocals: 1,
		Code: []*jvm.Insn{
			{Op: jvm.OpAload, Var: 0},
			{Op: jvm.OpAreturn},
		},
	}
	_, src := emit(t, Config{}, m)
	assert.Contains(t, src, "jobject obj")
	assert.Contains(t, src, "lo[0].l = obj;")
}

func TestHiddenMethodDeduplication(t *testing.T) {
	ctx := NewClassContext(testClass(), 0, Config{})
	ctx.AddHiddenMethod("com/example/Host", "helper", "()V", "sp_c0_m9")
	ctx.AddHiddenMethod("com/example/Host", "helper", "()V", "sp_c0_m9")
	require.Len(t, ctx.Plan, 1)
	assert.Equal(t, "com/example/Host", ctx.Plan[0].HiddenOwner)
}
