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

	"github.com/shroudlabs/go-shroud/jvm"
)

func TestWriteClassRegistration(t *testing.T) {
	m := staticMethod("run", "()I",
		&jvm.Insn{Op: jvm.OpLdc, Cst: jvm.Const{Tag: jvm.ConstString, S: "payload"}},
		&jvm.Insn{Op: jvm.OpPop},
		&jvm.Insn{Op: jvm.OpGetstatic, Owner: "com/example/FieldSample", Name: "s", Desc: "I"},
		&jvm.Insn{Op: jvm.OpIreturn},
	)
	ctx := NewClassContext(testClass(m), 3, Config{})
	_, err := ctx.EmitMethod(m, nil)
	require.NoError(t, err)
	arts := WriteClass(ctx)

	assert.Equal(t, 3, arts.ClassID)
	assert.Equal(t, "sp_c3_register", arts.Registration)
	require.Len(t, arts.Lowered, 1)
	assert.Equal(t, "run", arts.Lowered[0].JavaName)

	src := arts.Source
	// Loader capture comes first and is the fatal-only failure.
	assert.Contains(t, src, "shroud::capture_loader(env, owner);")
	capIdx := strings.Index(src, "capture_loader")
	regIdx := strings.Index(src, "RegisterNatives")
	require.True(t, capIdx >= 0 && regIdx >= 0)
	assert.Less(t, capIdx, regIdx, "loader capture must precede native installation")

	// String constants become global references during registration.
	assert.Contains(t, src, "env->NewStringUTF(\"payload\")")
	assert.Contains(t, src, "NewGlobalRef")
	assert.Contains(t, src, "DeleteLocalRef")

	// The static-touched class is clinit-forced before bodies can run.
	assert.Contains(t, src, "sp_c3_cls_init(env, 0)")

	// Every JNI step is followed by an early-return exception check.
	assert.Greater(t, strings.Count(src, "if (env->ExceptionCheck()) return;"), 3)

	// The double-checked lazy class accessor is part of the unit.
	assert.Contains(t, src, "s->ready.load(std::memory_order_acquire)")
	assert.Contains(t, src, "shroud::resolve_class(env, s, g_class_names[id])")

	// Header declares the prototype and the registration hook.
	assert.Contains(t, arts.Header, "JNIEXPORT jint JNICALL sp_c3_m0")
	assert.Contains(t, arts.Header, "extern \"C\" void sp_c3_register(JNIEnv *env, jclass owner);")
}

func TestWriteClassHiddenHosts(t *testing.T) {
	ctx := NewClassContext(testClass(), 0, Config{})
	ctx.AddHiddenMethod("com/example/Host", "helper", "()V", "sp_c0_m7")
	arts := WriteClass(ctx)
	assert.Contains(t, arts.Source, "jclass hc = sp_c0_cls(env, 0);")
	assert.Contains(t, arts.Source, "env->RegisterNatives(hc, methods, 1);")
}

func TestWriteBuildRegistry(t *testing.T) {
	a := &ClassArtifacts{ClassID: 0, Name: "a/A", Registration: "sp_c0_register"}
	b := &ClassArtifacts{ClassID: 1, Name: "b/B", Registration: "sp_c1_register"}
	central := WriteBuild([]*ClassArtifacts{a, b})
	assert.Contains(t, central, "extern \"C\" void sp_c0_register(JNIEnv *env, jclass owner);")
	assert.Contains(t, central, "sp_c1_register,")
	assert.Contains(t, central, "void register_class(JNIEnv *env, int class_id, jclass owner)")
	idx0 := strings.Index(central, "sp_c0_register,")
	idx1 := strings.Index(central, "sp_c1_register,")
	require.True(t, idx0 >= 0 && idx1 >= 0)
	assert.Less(t, idx0, idx1, "registry order must follow class ids")
}

func TestRuntimeHeaderShape(t *testing.T) {
	assert.Contains(t, RuntimeHeader, "class RefSet")
	assert.Contains(t, RuntimeHeader, "struct ClassSlot")
	assert.Contains(t, RuntimeHeader, "std::atomic<bool> ready{false};")
	assert.Contains(t, RuntimeHeader, "vm_invoke")
	assert.Contains(t, RuntimeHeader, "SHROUD_EXC_CHECK")
}

func TestCxxEscape(t *testing.T) {
	assert.Equal(t, `a\"b`, cxxEscape(`a"b`))
	assert.Equal(t, `back\\slash`, cxxEscape(`back\slash`))
	assert.Equal(t, `\x01`, cxxEscape("\x01"))
	// A hex escape followed by a hex digit must split the literal.
	assert.Equal(t, `\x01" "ff`, cxxEscape("\x01ff"))
}
