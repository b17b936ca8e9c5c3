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
	"fmt"
	"math"
	"strings"

	"github.com/shroudlabs/go-shroud/jvm"
)

// The state-machine backend mirrors the JVM operand stack slot for slot:
// category-2 values occupy two jvalue slots with the value in the lower one,
// so the DUP/POP family reduces to plain slot juggling and needs no
// category analysis at emission time.

// ErrUnsupportedNative marks instructions the interop backend cannot render;
// the driver keeps such methods in Java.
type ErrUnsupportedNative struct {
	Op jvm.Opcode
}

func (e *ErrUnsupportedNative) Error() string {
	return fmt.Sprintf("nativegen: no interop lowering for %s", e.Op)
}

// emitStep renders one dispatch case for the instruction at raw state idx.
func (e *methodEmitter) emitStep(idx int, in *jvm.Insn) error {
	e.bodyf("        case %s: {\n", e.caseLabel(idx))
	e.bodyf("            state_raw = %du;\n", idx)

	terminal, err := e.stepBody(idx, in)
	if err != nil {
		return err
	}
	if !terminal {
		e.bodyf("            state = %s;\n", e.encState(idx+1))
	}
	e.bodyf("            break; }\n")
	return nil
}

// stepBody writes the instruction's work. terminal means the case assigned
// state (or left the loop) itself.
func (e *methodEmitter) stepBody(idx int, in *jvm.Insn) (terminal bool, err error) {
	w := func(format string, args ...interface{}) {
		e.bodyf("            "+format+"\n", args...)
	}
	p := e.ctx.prefix()

	switch in.Op {
	case jvm.OpNop:

	// ---- Constants ----
	case jvm.OpAconstNull:
		w("st[sp++].l = nullptr;")
	case jvm.OpIconstM1, jvm.OpIconst0, jvm.OpIconst1, jvm.OpIconst2,
		jvm.OpIconst3, jvm.OpIconst4, jvm.OpIconst5:
		w("st[sp++].i = %d;", int(in.Op)-int(jvm.OpIconst0))
	case jvm.OpLconst0, jvm.OpLconst1:
		w("st[sp].j = %d; sp += 2;", int(in.Op)-int(jvm.OpLconst0))
	case jvm.OpFconst0, jvm.OpFconst1, jvm.OpFconst2:
		w("st[sp++].f = %d.0f;", int(in.Op)-int(jvm.OpFconst0))
	case jvm.OpDconst0, jvm.OpDconst1:
		w("st[sp].d = %d.0; sp += 2;", int(in.Op)-int(jvm.OpDconst0))
	case jvm.OpBipush, jvm.OpSipush:
		w("st[sp++].i = %d;", in.Val)
	case jvm.OpLdc, jvm.OpLdcW, jvm.OpLdc2W:
		e.emitLdc(in.Cst, w)

	// ---- Locals ----
	case jvm.OpIload, jvm.OpFload, jvm.OpAload:
		w("st[sp++] = lo[%d];", in.Var)
	case jvm.OpLload, jvm.OpDload:
		w("st[sp] = lo[%d]; sp += 2;", in.Var)
	case jvm.OpIstore, jvm.OpFstore, jvm.OpAstore:
		w("lo[%d] = st[--sp];", in.Var)
	case jvm.OpLstore, jvm.OpDstore:
		w("sp -= 2; lo[%d] = st[sp];", in.Var)
	case jvm.OpIinc:
		w("lo[%d].i += %d;", in.Var, in.Val)

	// ---- Stack manipulation ----
	case jvm.OpPop:
		w("sp -= 1;")
	case jvm.OpPop2:
		w("sp -= 2;")
	case jvm.OpDup:
		w("st[sp] = st[sp-1]; sp++;")
	case jvm.OpDupX1:
		w("{ jvalue v1 = st[sp-1], v2 = st[sp-2]; st[sp-2] = v1; st[sp-1] = v2; st[sp] = v1; sp++; }")
	case jvm.OpDupX2:
		w("{ jvalue v1 = st[sp-1], v2 = st[sp-2], v3 = st[sp-3]; st[sp-3] = v1; st[sp-2] = v3; st[sp-1] = v2; st[sp] = v1; sp++; }")
	case jvm.OpDup2:
		w("st[sp] = st[sp-2]; st[sp+1] = st[sp-1]; sp += 2;")
	case jvm.OpDup2X1:
		w("{ jvalue v1 = st[sp-1], v2 = st[sp-2], v3 = st[sp-3]; st[sp-3] = v2; st[sp-2] = v1; st[sp-1] = v3; st[sp] = v2; st[sp+1] = v1; sp += 2; }")
	case jvm.OpDup2X2:
		w("{ jvalue v1 = st[sp-1], v2 = st[sp-2], v3 = st[sp-3], v4 = st[sp-4]; st[sp-4] = v2; st[sp-3] = v1; st[sp-2] = v4; st[sp-1] = v3; st[sp] = v2; st[sp+1] = v1; sp += 2; }")
	case jvm.OpSwap:
		w("{ jvalue v1 = st[sp-1]; st[sp-1] = st[sp-2]; st[sp-2] = v1; }")

	// ---- Arithmetic ----
	case jvm.OpIadd:
		w("st[sp-2].i = (jint)((uint32_t)st[sp-2].i + (uint32_t)st[sp-1].i); sp--;")
	case jvm.OpIsub:
		w("st[sp-2].i = (jint)((uint32_t)st[sp-2].i - (uint32_t)st[sp-1].i); sp--;")
	case jvm.OpImul:
		w("st[sp-2].i = (jint)((uint32_t)st[sp-2].i * (uint32_t)st[sp-1].i); sp--;")
	case jvm.OpIdiv:
		w("if (st[sp-1].i == 0) { env->ThrowNew(env->FindClass(\"java/lang/ArithmeticException\"), \"/ by zero\"); goto exc; }")
		w("st[sp-2].i = (st[sp-2].i == INT32_MIN && st[sp-1].i == -1) ? INT32_MIN : st[sp-2].i / st[sp-1].i; sp--;")
	case jvm.OpIrem:
		w("if (st[sp-1].i == 0) { env->ThrowNew(env->FindClass(\"java/lang/ArithmeticException\"), \"/ by zero\"); goto exc; }")
		w("st[sp-2].i = (st[sp-2].i == INT32_MIN && st[sp-1].i == -1) ? 0 : st[sp-2].i %% st[sp-1].i; sp--;")
	case jvm.OpIneg:
		w("st[sp-1].i = (jint)(0u - (uint32_t)st[sp-1].i);")
	case jvm.OpIshl:
		w("st[sp-2].i = (jint)((uint32_t)st[sp-2].i << (st[sp-1].i & 31)); sp--;")
	case jvm.OpIshr:
		w("st[sp-2].i = st[sp-2].i >> (st[sp-1].i & 31); sp--;")
	case jvm.OpIushr:
		w("st[sp-2].i = (jint)((uint32_t)st[sp-2].i >> (st[sp-1].i & 31)); sp--;")
	case jvm.OpIand:
		w("st[sp-2].i &= st[sp-1].i; sp--;")
	case jvm.OpIor:
		w("st[sp-2].i |= st[sp-1].i; sp--;")
	case jvm.OpIxor:
		w("st[sp-2].i ^= st[sp-1].i; sp--;")

	case jvm.OpLadd:
		w("st[sp-4].j = (jlong)((uint64_t)st[sp-4].j + (uint64_t)st[sp-2].j); sp -= 2;")
	case jvm.OpLsub:
		w("st[sp-4].j = (jlong)((uint64_t)st[sp-4].j - (uint64_t)st[sp-2].j); sp -= 2;")
	case jvm.OpLmul:
		w("st[sp-4].j = (jlong)((uint64_t)st[sp-4].j * (uint64_t)st[sp-2].j); sp -= 2;")
	case jvm.OpLdiv:
		w("if (st[sp-2].j == 0) { env->ThrowNew(env->FindClass(\"java/lang/ArithmeticException\"), \"/ by zero\"); goto exc; }")
		w("st[sp-4].j = (st[sp-4].j == INT64_MIN && st[sp-2].j == -1) ? INT64_MIN : st[sp-4].j / st[sp-2].j; sp -= 2;")
	case jvm.OpLrem:
		w("if (st[sp-2].j == 0) { env->ThrowNew(env->FindClass(\"java/lang/ArithmeticException\"), \"/ by zero\"); goto exc; }")
		w("st[sp-4].j = (st[sp-4].j == INT64_MIN && st[sp-2].j == -1) ? 0 : st[sp-4].j %% st[sp-2].j; sp -= 2;")
	case jvm.OpLneg:
		w("st[sp-2].j = (jlong)(0ull - (uint64_t)st[sp-2].j);")
	case jvm.OpLshl:
		w("st[sp-3].j = (jlong)((uint64_t)st[sp-3].j << (st[sp-1].i & 63)); sp--;")
	case jvm.OpLshr:
		w("st[sp-3].j = st[sp-3].j >> (st[sp-1].i & 63); sp--;")
	case jvm.OpLushr:
		w("st[sp-3].j = (jlong)((uint64_t)st[sp-3].j >> (st[sp-1].i & 63)); sp--;")
	case jvm.OpLand:
		w("st[sp-4].j &= st[sp-2].j; sp -= 2;")
	case jvm.OpLor:
		w("st[sp-4].j |= st[sp-2].j; sp -= 2;")
	case jvm.OpLxor:
		w("st[sp-4].j ^= st[sp-2].j; sp -= 2;")

	case jvm.OpFadd:
		w("st[sp-2].f += st[sp-1].f; sp--;")
	case jvm.OpFsub:
		w("st[sp-2].f -= st[sp-1].f; sp--;")
	case jvm.OpFmul:
		w("st[sp-2].f *= st[sp-1].f; sp--;")
	case jvm.OpFdiv:
		w("st[sp-2].f /= st[sp-1].f; sp--;")
	case jvm.OpFrem:
		w("st[sp-2].f = std::fmod(st[sp-2].f, st[sp-1].f); sp--;")
	case jvm.OpFneg:
		w("st[sp-1].f = -st[sp-1].f;")
	case jvm.OpDadd:
		w("st[sp-4].d += st[sp-2].d; sp -= 2;")
	case jvm.OpDsub:
		w("st[sp-4].d -= st[sp-2].d; sp -= 2;")
	case jvm.OpDmul:
		w("st[sp-4].d *= st[sp-2].d; sp -= 2;")
	case jvm.OpDdiv:
		w("st[sp-4].d /= st[sp-2].d; sp -= 2;")
	case jvm.OpDrem:
		w("st[sp-4].d = std::fmod(st[sp-4].d, st[sp-2].d); sp -= 2;")
	case jvm.OpDneg:
		w("st[sp-2].d = -st[sp-2].d;")

	// ---- Conversions ----
	case jvm.OpI2l:
		w("st[sp-1].j = (jlong)st[sp-1].i; sp++;")
	case jvm.OpI2f:
		w("st[sp-1].f = (jfloat)st[sp-1].i;")
	case jvm.OpI2d:
		w("st[sp-1].d = (jdouble)st[sp-1].i; sp++;")
	case jvm.OpL2i:
		w("st[sp-2].i = (jint)st[sp-2].j; sp--;")
	case jvm.OpL2f:
		w("st[sp-2].f = (jfloat)st[sp-2].j; sp--;")
	case jvm.OpL2d:
		w("st[sp-2].d = (jdouble)st[sp-2].j;")
	case jvm.OpF2i:
		w("st[sp-1].i = shroud::f2i(st[sp-1].f);")
	case jvm.OpF2l:
		w("st[sp-1].j = shroud::f2l(st[sp-1].f); sp++;")
	case jvm.OpF2d:
		w("st[sp-1].d = (jdouble)st[sp-1].f; sp++;")
	case jvm.OpD2i:
		w("st[sp-2].i = shroud::d2i(st[sp-2].d); sp--;")
	case jvm.OpD2l:
		w("st[sp-2].j = shroud::d2l(st[sp-2].d);")
	case jvm.OpD2f:
		w("st[sp-2].f = (jfloat)st[sp-2].d; sp--;")
	case jvm.OpI2b:
		w("st[sp-1].i = (jint)(jbyte)st[sp-1].i;")
	case jvm.OpI2c:
		w("st[sp-1].i = (jint)(jchar)st[sp-1].i;")
	case jvm.OpI2s:
		w("st[sp-1].i = (jint)(jshort)st[sp-1].i;")

	// ---- Comparisons ----
	case jvm.OpLcmp:
		w("{ jlong b = st[sp-2].j, a = st[sp-4].j; sp -= 3; st[sp-1].i = a < b ? -1 : (a > b ? 1 : 0); }")
	case jvm.OpFcmpl:
		w("{ jfloat b = st[sp-1].f, a = st[sp-2].f; sp--; st[sp-1].i = (a != a || b != b) ? -1 : (a < b ? -1 : (a > b ? 1 : 0)); }")
	case jvm.OpFcmpg:
		w("{ jfloat b = st[sp-1].f, a = st[sp-2].f; sp--; st[sp-1].i = (a != a || b != b) ? 1 : (a < b ? -1 : (a > b ? 1 : 0)); }")
	case jvm.OpDcmpl:
		w("{ jdouble b = st[sp-2].d, a = st[sp-4].d; sp -= 3; st[sp-1].i = (a != a || b != b) ? -1 : (a < b ? -1 : (a > b ? 1 : 0)); }")
	case jvm.OpDcmpg:
		w("{ jdouble b = st[sp-2].d, a = st[sp-4].d; sp -= 3; st[sp-1].i = (a != a || b != b) ? 1 : (a < b ? -1 : (a > b ? 1 : 0)); }")

	// ---- Branches ----
	case jvm.OpGoto, jvm.OpGotoW:
		w("state = %s;", e.encState(e.labelTo[in.Target]))
		return true, nil
	case jvm.OpIfeq, jvm.OpIfne, jvm.OpIflt, jvm.OpIfge, jvm.OpIfgt, jvm.OpIfle:
		ops := map[jvm.Opcode]string{
			jvm.OpIfeq: "==", jvm.OpIfne: "!=", jvm.OpIflt: "<",
			jvm.OpIfge: ">=", jvm.OpIfgt: ">", jvm.OpIfle: "<=",
		}
		w("state = st[--sp].i %s 0 ? %s : %s;",
			ops[in.Op], e.encState(e.labelTo[in.Target]), e.encState(idx+1))
		return true, nil
	case jvm.OpIfIcmpeq, jvm.OpIfIcmpne, jvm.OpIfIcmplt, jvm.OpIfIcmpge,
		jvm.OpIfIcmpgt, jvm.OpIfIcmple:
		ops := map[jvm.Opcode]string{
			jvm.OpIfIcmpeq: "==", jvm.OpIfIcmpne: "!=", jvm.OpIfIcmplt: "<",
			jvm.OpIfIcmpge: ">=", jvm.OpIfIcmpgt: ">", jvm.OpIfIcmple: "<=",
		}
		w("sp -= 2; state = st[sp].i %s st[sp+1].i ? %s : %s;",
			ops[in.Op], e.encState(e.labelTo[in.Target]), e.encState(idx+1))
		return true, nil
	case jvm.OpIfnull:
		w("state = st[--sp].l == nullptr ? %s : %s;",
			e.encState(e.labelTo[in.Target]), e.encState(idx+1))
		return true, nil
	case jvm.OpIfnonnull:
		w("state = st[--sp].l != nullptr ? %s : %s;",
			e.encState(e.labelTo[in.Target]), e.encState(idx+1))
		return true, nil
	case jvm.OpIfAcmpeq:
		w("sp -= 2; state = env->IsSameObject(st[sp].l, st[sp+1].l) ? %s : %s;",
			e.encState(e.labelTo[in.Target]), e.encState(idx+1))
		return true, nil
	case jvm.OpIfAcmpne:
		w("sp -= 2; state = !env->IsSameObject(st[sp].l, st[sp+1].l) ? %s : %s;",
			e.encState(e.labelTo[in.Target]), e.encState(idx+1))
		return true, nil

	// ---- Switches ----
	case jvm.OpTableswitch:
		w("{ jint v = st[--sp].i;")
		w("  switch (v) {")
		for i, l := range in.Targets {
			w("  case %d: state = %s; break;", in.Low+int32(i), e.encState(e.labelTo[l]))
		}
		w("  default: state = %s; break;", e.encState(e.labelTo[in.Dflt]))
		w("  } }")
		return true, nil
	case jvm.OpLookupswitch:
		w("{ jint v = st[--sp].i;")
		w("  switch (v) {")
		for i, l := range in.Targets {
			w("  case %d: state = %s; break;", in.Keys[i], e.encState(e.labelTo[l]))
		}
		w("  default: state = %s; break;", e.encState(e.labelTo[in.Dflt]))
		w("  } }")
		return true, nil

	// ---- Returns ----
	case jvm.OpIreturn, jvm.OpFreturn, jvm.OpAreturn:
		w("rv = st[sp-1];")
		w("goto done;")
		return true, nil
	case jvm.OpLreturn, jvm.OpDreturn:
		w("rv = st[sp-2];")
		w("goto done;")
		return true, nil
	case jvm.OpReturn:
		w("goto done;")
		return true, nil

	// ---- Fields ----
	case jvm.OpGetstatic, jvm.OpPutstatic, jvm.OpGetfield, jvm.OpPutfield:
		return false, e.emitField(in, w, p)

	// ---- Invocations ----
	case jvm.OpInvokevirtual, jvm.OpInvokespecial, jvm.OpInvokestatic, jvm.OpInvokeinterface:
		return false, e.emitInvoke(in, w, p)

	// ---- Allocation ----
	case jvm.OpNew:
		slot := e.ctx.classCache(in.Owner)
		w("{ jclass c = %s; SHROUD_EXC_CHECK(env, exc);", e.classExpr(slot, false))
		w("  jobject o = env->AllocObject(c); SHROUD_EXC_CHECK(env, exc);")
		w("  %sst[sp++].l = o; }", e.track("o"))
	case jvm.OpNewarray:
		ctor := map[int32]string{
			jvm.TBoolean: "NewBooleanArray", jvm.TChar: "NewCharArray",
			jvm.TFloat: "NewFloatArray", jvm.TDouble: "NewDoubleArray",
			jvm.TByte: "NewByteArray", jvm.TShort: "NewShortArray",
			jvm.TInt: "NewIntArray", jvm.TLong: "NewLongArray",
		}[in.Val]
		w("{ jobject a = env->%s(st[sp-1].i); SHROUD_EXC_CHECK(env, exc); %sst[sp-1].l = a; }",
			ctor, e.track("a"))
	case jvm.OpAnewarray:
		slot := e.ctx.classCache(in.Owner)
		w("{ jclass c = %s; SHROUD_EXC_CHECK(env, exc);", e.classExpr(slot, false))
		w("  jobject a = env->NewObjectArray(st[sp-1].i, c, nullptr); SHROUD_EXC_CHECK(env, exc);")
		w("  %sst[sp-1].l = a; }", e.track("a"))
	case jvm.OpMultianewarray:
		w("{ jint dims[%d];", in.Dims)
		for d := in.Dims - 1; d >= 0; d-- {
			w("  dims[%d] = st[--sp].i;", d)
		}
		w("  jobject a = shroud::multi_array(env, \"%s\", dims, %d); SHROUD_EXC_CHECK(env, exc);",
			cxxEscape(in.Desc), in.Dims)
		w("  %sst[sp++].l = a; }", e.track("a"))
	case jvm.OpArraylength:
		w("if (st[sp-1].l == nullptr) { shroud::throw_npe(env); goto exc; }")
		w("st[sp-1].i = env->GetArrayLength((jarray)st[sp-1].l);")

	// ---- Array element access ----
	case jvm.OpIaload, jvm.OpLaload, jvm.OpFaload, jvm.OpDaload, jvm.OpAaload,
		jvm.OpBaload, jvm.OpCaload, jvm.OpSaload:
		e.emitArrayLoad(in.Op, w)
	case jvm.OpIastore, jvm.OpLastore, jvm.OpFastore, jvm.OpDastore, jvm.OpAastore,
		jvm.OpBastore, jvm.OpCastore, jvm.OpSastore:
		e.emitArrayStore(in.Op, w)

	// ---- Type checks ----
	case jvm.OpCheckcast:
		slot := e.ctx.classCache(in.Owner)
		lc := e.localClassHandle(slot)
		w("if (%s == nullptr) { %s = %s; SHROUD_EXC_CHECK(env, exc); }", lc, lc, e.classExpr(slot, false))
		w("if (st[sp-1].l != nullptr && !env->IsInstanceOf(st[sp-1].l, %s)) { shroud::throw_cce(env, \"%s\"); goto exc; }",
			lc, cxxEscape(in.Owner))
	case jvm.OpInstanceof:
		slot := e.ctx.classCache(in.Owner)
		lc := e.localClassHandle(slot)
		w("if (%s == nullptr) { %s = %s; SHROUD_EXC_CHECK(env, exc); }", lc, lc, e.classExpr(slot, false))
		w("st[sp-1].i = (st[sp-1].l != nullptr && env->IsInstanceOf(st[sp-1].l, %s)) ? 1 : 0;", lc)

	// ---- Monitors ----
	case jvm.OpMonitorenter:
		w("if (st[sp-1].l == nullptr) { shroud::throw_npe(env); goto exc; }")
		w("env->MonitorEnter(st[--sp].l); SHROUD_EXC_CHECK(env, exc);")
	case jvm.OpMonitorexit:
		w("if (st[sp-1].l == nullptr) { shroud::throw_npe(env); goto exc; }")
		w("env->MonitorExit(st[--sp].l); SHROUD_EXC_CHECK(env, exc);")

	// ---- Exceptions ----
	case jvm.OpAthrow:
		w("{ jthrowable t = (jthrowable)st[--sp].l;")
		w("  if (t == nullptr) shroud::throw_npe(env); else env->Throw(t);")
		w("  goto exc; }")
		return true, nil

	default:
		return false, &ErrUnsupportedNative{Op: in.Op}
	}
	return false, nil
}

func (e *methodEmitter) emitLdc(c jvm.Const, w func(string, ...interface{})) {
	switch c.Tag {
	case jvm.ConstInt:
		w("st[sp++].i = (jint)%dL;", int32(c.I))
	case jvm.ConstLong:
		w("st[sp].j = (jlong)%dLL; sp += 2;", c.I)
	case jvm.ConstFloat:
		w("st[sp++].f = shroud::bits_to_float(0x%08xu);", math.Float32bits(float32(c.F)))
	case jvm.ConstDouble:
		w("st[sp].d = shroud::bits_to_double(0x%016xull); sp += 2;", math.Float64bits(c.F))
	case jvm.ConstString:
		idx := e.ctx.internString(c.S)
		w("st[sp++].l = %s_str(env, %d);", e.ctx.prefix(), idx)
	case jvm.ConstClass:
		slot := e.ctx.classCache(c.S)
		lc := e.localClassHandle(slot)
		w("if (%s == nullptr) { %s = %s; SHROUD_EXC_CHECK(env, exc); }", lc, lc, e.classExpr(slot, false))
		w("st[sp++].l = %s;", lc)
	}
}

var arrayAccess = map[jvm.Opcode]struct {
	jtype  string
	carr   string
	member string
	region string
	wide   bool
}{
	jvm.OpIaload: {"jint", "jintArray", "i", "Int", false},
	jvm.OpLaload: {"jlong", "jlongArray", "j", "Long", true},
	jvm.OpFaload: {"jfloat", "jfloatArray", "f", "Float", false},
	jvm.OpDaload: {"jdouble", "jdoubleArray", "d", "Double", true},
	jvm.OpBaload: {"jbyte", "jbyteArray", "i", "Byte", false},
	jvm.OpCaload: {"jchar", "jcharArray", "i", "Char", false},
	jvm.OpSaload: {"jshort", "jshortArray", "i", "Short", false},

	jvm.OpIastore: {"jint", "jintArray", "i", "Int", false},
	jvm.OpLastore: {"jlong", "jlongArray", "j", "Long", true},
	jvm.OpFastore: {"jfloat", "jfloatArray", "f", "Float", false},
	jvm.OpDastore: {"jdouble", "jdoubleArray", "d", "Double", true},
	jvm.OpBastore: {"jbyte", "jbyteArray", "i", "Byte", false},
	jvm.OpCastore: {"jchar", "jcharArray", "i", "Char", false},
	jvm.OpSastore: {"jshort", "jshortArray", "i", "Short", false},
}

func (e *methodEmitter) emitArrayLoad(op jvm.Opcode, w func(string, ...interface{})) {
	if op == jvm.OpAaload {
		w("{ jint i = st[--sp].i; jobjectArray a = (jobjectArray)st[sp-1].l;")
		w("  if (a == nullptr) { shroud::throw_npe(env); goto exc; }")
		w("  jobject v = env->GetObjectArrayElement(a, i); SHROUD_EXC_CHECK(env, exc);")
		w("  %sst[sp-1].l = v; }", e.track("v"))
		return
	}
	acc := arrayAccess[op]
	w("{ jint i = st[--sp].i; %s a = (%s)st[sp-1].l;", acc.carr, acc.carr)
	w("  if (a == nullptr) { shroud::throw_npe(env); goto exc; }")
	w("  %s v; env->Get%sArrayRegion(a, i, 1, &v); SHROUD_EXC_CHECK(env, exc);", acc.jtype, acc.region)
	if acc.wide {
		w("  st[sp-1].%s = v; sp++; }", acc.member)
	} else {
		w("  st[sp-1].%s = (%s)v; }", acc.member, map[string]string{"i": "jint", "f": "jfloat"}[acc.member])
	}
}

func (e *methodEmitter) emitArrayStore(op jvm.Opcode, w func(string, ...interface{})) {
	if op == jvm.OpAastore {
		w("{ jobject v = st[--sp].l; jint i = st[--sp].i; jobjectArray a = (jobjectArray)st[--sp].l;")
		w("  if (a == nullptr) { shroud::throw_npe(env); goto exc; }")
		w("  env->SetObjectArrayElement(a, i, v); SHROUD_EXC_CHECK(env, exc); }")
		return
	}
	acc := arrayAccess[op]
	pop := "st[--sp]"
	if acc.wide {
		pop = "(sp -= 2, st[sp])"
	}
	w("{ %s v = (%s)%s.%s; jint i = st[--sp].i; %s a = (%s)st[--sp].l;",
		acc.jtype, acc.jtype, pop, acc.member, acc.carr, acc.carr)
	w("  if (a == nullptr) { shroud::throw_npe(env); goto exc; }")
	w("  env->Set%sArrayRegion(a, i, 1, &v); SHROUD_EXC_CHECK(env, exc); }", acc.region)
}

func (e *methodEmitter) emitField(in *jvm.Insn, w func(string, ...interface{}), p string) error {
	kind, err := jvm.ParseFieldDesc(in.Desc)
	if err != nil {
		return err
	}
	static := in.Op == jvm.OpGetstatic || in.Op == jvm.OpPutstatic
	fid := e.ctx.fieldCache(in.Owner, in.Name, in.Desc, static)
	slot := e.ctx.fields[fid].ClassCache
	suffix := callSuffix(kind)
	m := kind.JNIType()

	switch in.Op {
	case jvm.OpGetstatic:
		w("{ jclass c = %s; SHROUD_EXC_CHECK(env, exc);", e.classExpr(slot, true))
		w("  jfieldID f = %s_fid(env, %d); SHROUD_EXC_CHECK(env, exc);", p, fid)
		if kind == jvm.KindRef {
			w("  jobject v = env->GetStatic%sField(c, f); SHROUD_EXC_CHECK(env, exc);", suffix)
			w("  %sst[sp++].l = v; }", e.track("v"))
		} else if kind.Wide() {
			w("  st[sp].%s = env->GetStatic%sField(c, f); SHROUD_EXC_CHECK(env, exc); sp += 2; }", m, suffix)
		} else {
			w("  st[sp].%s = env->GetStatic%sField(c, f); SHROUD_EXC_CHECK(env, exc); sp++; }", m, suffix)
		}
	case jvm.OpPutstatic:
		w("{ jclass c = %s; SHROUD_EXC_CHECK(env, exc);", e.classExpr(slot, true))
		w("  jfieldID f = %s_fid(env, %d); SHROUD_EXC_CHECK(env, exc);", p, fid)
		if kind.Wide() {
			w("  sp -= 2; env->SetStatic%sField(c, f, st[sp].%s); SHROUD_EXC_CHECK(env, exc); }", suffix, m)
		} else {
			w("  env->SetStatic%sField(c, f, st[--sp].%s); SHROUD_EXC_CHECK(env, exc); }", suffix, m)
		}
	case jvm.OpGetfield:
		w("{ jobject o = st[sp-1].l;")
		w("  if (o == nullptr) { shroud::throw_npe(env); goto exc; }")
		w("  jfieldID f = %s_fid(env, %d); SHROUD_EXC_CHECK(env, exc);", p, fid)
		if kind == jvm.KindRef {
			w("  jobject v = env->Get%sField(o, f); SHROUD_EXC_CHECK(env, exc);", suffix)
			w("  %sst[sp-1].l = v; }", e.track("v"))
		} else if kind.Wide() {
			w("  st[sp-1].%s = env->Get%sField(o, f); SHROUD_EXC_CHECK(env, exc); sp++; }", m, suffix)
		} else {
			w("  st[sp-1].%s = env->Get%sField(o, f); SHROUD_EXC_CHECK(env, exc); }", m, suffix)
		}
	case jvm.OpPutfield:
		if kind.Wide() {
			w("{ sp -= 2; jvalue v = st[sp]; jobject o = st[--sp].l;")
		} else {
			w("{ jvalue v = st[--sp]; jobject o = st[--sp].l;")
		}
		w("  if (o == nullptr) { shroud::throw_npe(env); goto exc; }")
		w("  jfieldID f = %s_fid(env, %d); SHROUD_EXC_CHECK(env, exc);", p, fid)
		w("  env->Set%sField(o, f, v.%s); SHROUD_EXC_CHECK(env, exc); }", suffix, m)
	}
	return nil
}

func (e *methodEmitter) emitInvoke(in *jvm.Insn, w func(string, ...interface{}), p string) error {
	sig, err := jvm.ParseMethodDesc(in.Desc)
	if err != nil {
		return err
	}
	static := in.Op == jvm.OpInvokestatic
	mid := e.ctx.methodCache(in.Owner, in.Name, in.Desc, static)
	slot := e.ctx.methods[mid].ClassCache

	// Static recursion bypasses the interop bridge with a direct call.
	if static && e.m.IsStatic() && in.Owner == e.ctx.Class.Name &&
		in.Name == e.m.Name && in.Desc == e.m.Desc {
		e.emitSelfCall(sig, w)
		return nil
	}

	n := len(sig.Args)
	w("{")
	argExpr := "nullptr"
	if n > 0 {
		w("  jvalue ca[%d];", n)
		argExpr = "ca"
		for i := n - 1; i >= 0; i-- {
			if sig.Args[i].Wide() {
				w("  sp -= 2; ca[%d] = st[sp];", i)
			} else {
				w("  ca[%d] = st[--sp];", i)
			}
		}
	}
	w("  jmethodID m = %s_mid(env, %d); SHROUD_EXC_CHECK(env, exc);", p, mid)

	var call string
	suffix := callSuffix(sig.Ret)
	switch in.Op {
	case jvm.OpInvokestatic:
		w("  jclass c = %s; SHROUD_EXC_CHECK(env, exc);", e.classExpr(slot, true))
		call = fmt.Sprintf("env->CallStatic%sMethodA(c, m, %s)", suffix, argExpr)
	case jvm.OpInvokespecial:
		w("  jobject r = st[--sp].l;")
		w("  if (r == nullptr) { shroud::throw_npe(env); goto exc; }")
		w("  jclass c = %s; SHROUD_EXC_CHECK(env, exc);", e.classExpr(slot, false))
		call = fmt.Sprintf("env->CallNonvirtual%sMethodA(r, c, m, %s)", suffix, argExpr)
	default: // virtual and interface dispatch identically through JNI
		w("  jobject r = st[--sp].l;")
		w("  if (r == nullptr) { shroud::throw_npe(env); goto exc; }")
		call = fmt.Sprintf("env->Call%sMethodA(r, m, %s)", suffix, argExpr)
	}
	e.emitCallResult(sig.Ret, call, w)
	w("}")
	return nil
}

// emitSelfCall renders the direct C++ recursion for a static self-call.
func (e *methodEmitter) emitSelfCall(sig *jvm.MethodSig, w func(string, ...interface{})) {
	n := len(sig.Args)
	w("{")
	if n > 0 {
		w("  jvalue ca[%d];", n)
		for i := n - 1; i >= 0; i-- {
			if sig.Args[i].Wide() {
				w("  sp -= 2; ca[%d] = st[sp];", i)
			} else {
				w("  ca[%d] = st[--sp];", i)
			}
		}
	}
	var args []string
	for i, k := range sig.Args {
		args = append(args, fmt.Sprintf("ca[%d].%s", i, k.JNIType()))
	}
	call := fmt.Sprintf("%s(env, clazz%s)", e.name, joinArgs(args))
	e.emitCallResult(sig.Ret, call, w)
	w("}")
}

func joinArgs(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return ", " + strings.Join(args, ", ")
}

func (e *methodEmitter) emitCallResult(ret jvm.TypeKind, call string, w func(string, ...interface{})) {
	switch {
	case ret == jvm.KindVoid:
		w("  %s; SHROUD_EXC_CHECK(env, exc);", call)
	case ret == jvm.KindRef:
		w("  jobject rr = %s; SHROUD_EXC_CHECK(env, exc);", call)
		w("  %sst[sp++].l = rr;", e.track("rr"))
	case ret.Wide():
		w("  st[sp].%s = %s; SHROUD_EXC_CHECK(env, exc); sp += 2;", ret.JNIType(), call)
	default:
		w("  st[sp].%s = %s; SHROUD_EXC_CHECK(env, exc); sp++;", ret.JNIType(), call)
	}
}
