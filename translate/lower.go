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
	"github.com/shroudlabs/go-shroud/jvm"
	"github.com/shroudlabs/go-shroud/mvm"
)

// visitInsn lowers one bytecode instruction, updating the symbolic stack.
// Anything without a mapping calls fail().
func (t *translator) visitInsn(in *jvm.Insn) {
	switch in.Op {
	case jvm.OpNop:
		// dropped

	// ---- Constants ----
	case jvm.OpAconstNull:
		t.emit(mvm.OpAconstNull, 0)
		t.push(catNull)
	case jvm.OpIconstM1, jvm.OpIconst0, jvm.OpIconst1, jvm.OpIconst2,
		jvm.OpIconst3, jvm.OpIconst4, jvm.OpIconst5:
		t.emit(mvm.OpPush, int64(in.Op)-int64(jvm.OpIconst0))
		t.push(cat1)
	case jvm.OpBipush, jvm.OpSipush:
		t.emit(mvm.OpPush, int64(in.Val))
		t.push(cat1)
	case jvm.OpLconst0, jvm.OpLconst1:
		t.emit(mvm.OpPushL, int64(in.Op)-int64(jvm.OpLconst0))
		t.push(cat2)
	case jvm.OpFconst0, jvm.OpFconst1, jvm.OpFconst2:
		idx := t.prog.InternFloat(float32(in.Op) - float32(jvm.OpFconst0))
		t.emit(mvm.OpLdc, int64(idx))
		t.push(cat1)
	case jvm.OpDconst0, jvm.OpDconst1:
		idx := t.prog.InternDouble(float64(in.Op) - float64(jvm.OpDconst0))
		t.emit(mvm.OpLdc2, int64(idx))
		t.push(cat2)
	case jvm.OpLdc, jvm.OpLdcW, jvm.OpLdc2W:
		t.lowerLdc(in.Cst)

	// ---- Locals ----
	case jvm.OpIload:
		t.emit(mvm.OpILoad, int64(in.Var))
		t.push(cat1)
	case jvm.OpFload:
		t.emit(mvm.OpFLoad, int64(in.Var))
		t.push(cat1)
	case jvm.OpLload:
		t.emit(mvm.OpLLoad, int64(in.Var))
		t.push(cat2)
	case jvm.OpDload:
		t.emit(mvm.OpDLoad, int64(in.Var))
		t.push(cat2)
	case jvm.OpAload:
		t.emit(mvm.OpALoad, int64(in.Var))
		t.push(catRef)
	case jvm.OpIstore:
		t.emit(mvm.OpIStore, int64(in.Var))
		t.popN(1)
	case jvm.OpFstore:
		t.emit(mvm.OpFStore, int64(in.Var))
		t.popN(1)
	case jvm.OpLstore:
		t.emit(mvm.OpLStore, int64(in.Var))
		t.popN(1)
	case jvm.OpDstore:
		t.emit(mvm.OpDStore, int64(in.Var))
		t.popN(1)
	case jvm.OpAstore:
		t.emit(mvm.OpAStore, int64(in.Var))
		t.popN(1)
	case jvm.OpIinc:
		t.emit(mvm.OpIInc, int64(in.Var)<<32|int64(uint32(in.Val)))

	// ---- Array access ----
	case jvm.OpIaload, jvm.OpFaload, jvm.OpBaload, jvm.OpCaload, jvm.OpSaload:
		t.emit(arrayLoadOp(in.Op), 0)
		t.popN(2)
		t.push(cat1)
	case jvm.OpLaload, jvm.OpDaload:
		t.emit(arrayLoadOp(in.Op), 0)
		t.popN(2)
		t.push(cat2)
	case jvm.OpAaload:
		t.emit(mvm.OpAALoad, 0)
		t.popN(2)
		t.push(catRef)
	case jvm.OpIastore, jvm.OpFastore, jvm.OpBastore, jvm.OpCastore,
		jvm.OpSastore, jvm.OpLastore, jvm.OpDastore, jvm.OpAastore:
		t.emit(arrayStoreOp(in.Op), 0)
		t.popN(3)
	case jvm.OpArraylength:
		t.emit(mvm.OpArrayLength, 0)
		t.popN(1)
		t.push(cat1)

	// ---- Stack manipulation: variants picked from the observed categories ----
	case jvm.OpPop:
		c, ok := t.top()
		if !ok {
			return
		}
		if !c.isCat1() {
			t.fail()
			return
		}
		t.emit(mvm.OpPop, 0)
		t.popN(1)
	case jvm.OpPop2:
		c, ok := t.top()
		if !ok {
			return
		}
		if c == cat2 {
			t.emit(mvm.OpPop, 0)
			t.popN(1)
		} else {
			t.emit(mvm.OpPop2, 0)
			t.popN(2)
		}
	case jvm.OpDup:
		c, ok := t.top()
		if !ok || !c.isCat1() {
			t.fail()
			return
		}
		t.emit(mvm.OpDup, 0)
		t.push(c)
	case jvm.OpDupX1:
		t.lowerDupX1()
	case jvm.OpDupX2:
		t.lowerDupX2()
	case jvm.OpDup2:
		t.lowerDup2()
	case jvm.OpDup2X1:
		t.lowerDup2X1()
	case jvm.OpDup2X2:
		t.lowerDup2X2()
	case jvm.OpSwap:
		a, ok := t.pop()
		if !ok {
			return
		}
		b, ok := t.pop()
		if !ok {
			return
		}
		if !a.isCat1() || !b.isCat1() {
			t.fail()
			return
		}
		t.emit(mvm.OpSwap, 0)
		t.push(a)
		t.push(b)

	// ---- Arithmetic ----
	case jvm.OpIadd, jvm.OpIsub, jvm.OpImul, jvm.OpIdiv, jvm.OpIrem,
		jvm.OpIshl, jvm.OpIshr, jvm.OpIushr, jvm.OpIand, jvm.OpIor, jvm.OpIxor:
		t.emit(intArithOp(in.Op), 0)
		t.popN(2)
		t.push(cat1)
	case jvm.OpIneg:
		t.emit(mvm.OpINeg, 0)
	case jvm.OpLadd, jvm.OpLsub, jvm.OpLmul, jvm.OpLdiv, jvm.OpLrem,
		jvm.OpLand, jvm.OpLor, jvm.OpLxor:
		t.emit(longArithOp(in.Op), 0)
		t.popN(2)
		t.push(cat2)
	case jvm.OpLshl, jvm.OpLshr, jvm.OpLushr:
		// Shift amount is an int on top of a long.
		t.emit(longArithOp(in.Op), 0)
		t.popN(2)
		t.push(cat2)
	case jvm.OpLneg:
		t.emit(mvm.OpLNeg, 0)
	case jvm.OpFadd, jvm.OpFsub, jvm.OpFmul, jvm.OpFdiv, jvm.OpFrem:
		t.emit(floatArithOp(in.Op), 0)
		t.popN(2)
		t.push(cat1)
	case jvm.OpFneg:
		t.emit(mvm.OpFNeg, 0)
	case jvm.OpDadd, jvm.OpDsub, jvm.OpDmul, jvm.OpDdiv, jvm.OpDrem:
		t.emit(doubleArithOp(in.Op), 0)
		t.popN(2)
		t.push(cat2)
	case jvm.OpDneg:
		t.emit(mvm.OpDNeg, 0)

	// ---- Conversions ----
	case jvm.OpI2l, jvm.OpI2f, jvm.OpI2d, jvm.OpL2i, jvm.OpL2f, jvm.OpL2d,
		jvm.OpF2i, jvm.OpF2l, jvm.OpF2d, jvm.OpD2i, jvm.OpD2l, jvm.OpD2f,
		jvm.OpI2b, jvm.OpI2c, jvm.OpI2s:
		t.emit(convOp(in.Op), 0)
		t.popN(1)
		t.push(convResultCat(in.Op))

	// ---- Comparisons ----
	case jvm.OpLcmp:
		t.emit(mvm.OpLCmp, 0)
		t.popN(2)
		t.push(cat1)
	case jvm.OpFcmpl:
		t.emit(mvm.OpFCmpL, 0)
		t.popN(2)
		t.push(cat1)
	case jvm.OpFcmpg:
		t.emit(mvm.OpFCmpG, 0)
		t.popN(2)
		t.push(cat1)
	case jvm.OpDcmpl:
		t.emit(mvm.OpDCmpL, 0)
		t.popN(2)
		t.push(cat1)
	case jvm.OpDcmpg:
		t.emit(mvm.OpDCmpG, 0)
		t.popN(2)
		t.push(cat1)

	// ---- Branches ----
	case jvm.OpGoto, jvm.OpGotoW:
		t.branchTo(mvm.OpGoto, in.Target, true)
	case jvm.OpIfeq, jvm.OpIfne, jvm.OpIflt, jvm.OpIfge, jvm.OpIfgt, jvm.OpIfle:
		t.popN(1)
		t.branchTo(mvm.OpIfEq+mvm.Opcode(in.Op-jvm.OpIfeq), in.Target, false)
	case jvm.OpIfIcmpeq, jvm.OpIfIcmpne, jvm.OpIfIcmplt, jvm.OpIfIcmpge,
		jvm.OpIfIcmpgt, jvm.OpIfIcmple:
		t.popN(2)
		t.branchTo(mvm.OpIfICmpEq+mvm.Opcode(in.Op-jvm.OpIfIcmpeq), in.Target, false)
	case jvm.OpIfnull:
		t.popN(1)
		t.branchTo(mvm.OpIfNull, in.Target, false)
	case jvm.OpIfnonnull:
		t.popN(1)
		t.branchTo(mvm.OpIfNonNull, in.Target, false)
	case jvm.OpIfAcmpeq:
		t.popN(2)
		t.branchTo(mvm.OpIfACmpEq, in.Target, false)
	case jvm.OpIfAcmpne:
		t.popN(2)
		t.branchTo(mvm.OpIfACmpNe, in.Target, false)

	// ---- Switches ----
	case jvm.OpTableswitch:
		t.popN(1)
		rec := t.prog.AddTableSwitch(mvm.TableSwitch{Low: in.Low, High: in.High})
		t.switchFix = append(t.switchFix, switchFixup{
			table: true, rec: rec, dflt: in.Dflt, labels: in.Targets,
		})
		t.saveSwitchTargets(in)
		t.emit(mvm.OpTableSwitch, int64(rec))
		t.known = false
	case jvm.OpLookupswitch:
		for i := 1; i < len(in.Keys); i++ {
			if in.Keys[i] <= in.Keys[i-1] {
				t.fail()
				return
			}
		}
		if len(in.Keys) != len(in.Targets) {
			t.fail()
			return
		}
		t.popN(1)
		rec := t.prog.AddLookupSwitch(mvm.LookupSwitch{Keys: append([]int32(nil), in.Keys...)})
		t.switchFix = append(t.switchFix, switchFixup{
			table: false, rec: rec, dflt: in.Dflt, labels: in.Targets,
		})
		t.saveSwitchTargets(in)
		t.emit(mvm.OpLookupSwitch, int64(rec))
		t.known = false

	// ---- Returns ----
	case jvm.OpIreturn, jvm.OpLreturn, jvm.OpFreturn, jvm.OpDreturn, jvm.OpAreturn:
		t.emit(mvm.OpHalt, 0)
		t.popN(1)
		t.known = false
	case jvm.OpReturn:
		t.emit(mvm.OpHalt, 0)
		t.known = false

	// ---- Fields ----
	case jvm.OpGetstatic, jvm.OpPutstatic, jvm.OpGetfield, jvm.OpPutfield:
		t.lowerField(in)

	// ---- Invocations ----
	case jvm.OpInvokevirtual, jvm.OpInvokespecial, jvm.OpInvokestatic, jvm.OpInvokeinterface:
		t.lowerInvoke(in)
	case jvm.OpInvokedynamic:
		t.lowerInvokeDynamic(in)

	// ---- Allocation ----
	case jvm.OpNew:
		idx := t.prog.InternClass(in.Owner)
		t.emit(mvm.OpNew, int64(idx))
		t.push(catRef)
	case jvm.OpNewarray:
		t.emit(mvm.OpNewArray, int64(in.Val))
		t.popN(1)
		t.push(catRef)
	case jvm.OpAnewarray:
		idx := t.prog.InternClass(in.Owner)
		t.emit(mvm.OpANewArray, int64(idx))
		t.popN(1)
		t.push(catRef)
	case jvm.OpMultianewarray:
		idx := t.prog.InternMulti(mvm.MultiArray{Desc: in.Desc, Dims: int32(in.Dims)})
		t.emit(mvm.OpMultiANewArray, int64(idx))
		t.popN(in.Dims)
		t.push(catRef)

	// ---- Type checks ----
	case jvm.OpCheckcast:
		idx := t.prog.InternClass(in.Owner)
		t.emit(mvm.OpCheckCast, int64(idx))
		if c, ok := t.pop(); ok {
			if c == catNull {
				t.push(catNull)
			} else {
				t.push(catRef)
			}
		}
	case jvm.OpInstanceof:
		idx := t.prog.InternClass(in.Owner)
		t.emit(mvm.OpInstanceOf, int64(idx))
		t.popN(1)
		t.push(cat1)

	// ---- Monitors ----
	case jvm.OpMonitorenter:
		t.lowerMonitorEnter()
	case jvm.OpMonitorexit:
		t.lowerMonitorExit()

	// ---- Exceptions ----
	case jvm.OpAthrow:
		t.emit(mvm.OpAThrow, 0)
		t.popN(1)
		t.known = false

	// ---- Legacy subroutines: never lowered ----
	case jvm.OpJsr, jvm.OpJsrW, jvm.OpRet:
		t.fail()

	default:
		t.fail()
	}
}

func (t *translator) saveSwitchTargets(in *jvm.Insn) {
	t.saveAt(in.Dflt)
	for _, l := range in.Targets {
		t.saveAt(l)
	}
}

func (t *translator) lowerLdc(c jvm.Const) {
	switch c.Tag {
	case jvm.ConstInt:
		t.emit(mvm.OpLdc, int64(t.prog.InternInt(int32(c.I))))
		t.push(cat1)
	case jvm.ConstFloat:
		t.emit(mvm.OpLdc, int64(t.prog.InternFloat(float32(c.F))))
		t.push(cat1)
	case jvm.ConstLong:
		t.emit(mvm.OpLdc2, int64(t.prog.InternLong(c.I)))
		t.push(cat2)
	case jvm.ConstDouble:
		t.emit(mvm.OpLdc2, int64(t.prog.InternDouble(c.F)))
		t.push(cat2)
	case jvm.ConstString:
		t.emit(mvm.OpLdc, int64(t.prog.InternString(c.S)))
		t.push(catRef)
	case jvm.ConstClass:
		t.emit(mvm.OpLdc, int64(t.prog.InternClassConst(c.S)))
		t.push(catRef)
	default:
		t.fail()
	}
}

// ---- DUP family ------------------------------------------------------------
//
// Category-2 values hold a single micro-VM slot, so each JVM form maps onto
// the slot-count variant matching its observed categories. Shapes outside
// the JVMS-legal forms reject the method.

func (t *translator) lowerDupX1() {
	a, ok := t.pop()
	if !ok {
		return
	}
	b, ok := t.pop()
	if !ok {
		return
	}
	if !a.isCat1() || !b.isCat1() {
		t.fail()
		return
	}
	t.emit(mvm.OpDupX1, 0)
	t.push(a)
	t.push(b)
	t.push(a)
}

func (t *translator) lowerDupX2() {
	a, ok := t.pop()
	if !ok {
		return
	}
	b, ok := t.pop()
	if !ok {
		return
	}
	if !a.isCat1() {
		t.fail()
		return
	}
	if b == cat2 {
		// Form 2: value2 is category 2 -> one slot below.
		t.emit(mvm.OpDupX1, 0)
		t.push(a)
		t.push(b)
		t.push(a)
		return
	}
	c, ok := t.pop()
	if !ok {
		return
	}
	if !c.isCat1() {
		t.fail()
		return
	}
	t.emit(mvm.OpDupX2, 0)
	t.push(a)
	t.push(c)
	t.push(b)
	t.push(a)
}

func (t *translator) lowerDup2() {
	a, ok := t.top()
	if !ok {
		return
	}
	if a == cat2 {
		t.emit(mvm.OpDup, 0)
		t.push(a)
		return
	}
	b, ok := t.peekSecond()
	if !ok || !b.isCat1() {
		t.fail()
		return
	}
	t.emit(mvm.OpDup2, 0)
	t.push(b)
	t.push(a)
}

func (t *translator) lowerDup2X1() {
	a, ok := t.pop()
	if !ok {
		return
	}
	if a == cat2 {
		b, ok := t.pop()
		if !ok || !b.isCat1() {
			t.fail()
			return
		}
		t.emit(mvm.OpDupX1, 0)
		t.push(a)
		t.push(b)
		t.push(a)
		return
	}
	b, ok := t.pop()
	if !ok {
		return
	}
	c, ok := t.pop()
	if !ok {
		return
	}
	if !b.isCat1() || !c.isCat1() {
		t.fail()
		return
	}
	t.emit(mvm.OpDup2X1, 0)
	t.push(b)
	t.push(a)
	t.push(c)
	t.push(b)
	t.push(a)
}

func (t *translator) lowerDup2X2() {
	a, ok := t.pop()
	if !ok {
		return
	}
	if a == cat2 {
		b, ok := t.pop()
		if !ok {
			return
		}
		if b == cat2 {
			// Form 4: cat2 over cat2.
			t.emit(mvm.OpDupX1, 0)
			t.push(a)
			t.push(b)
			t.push(a)
			return
		}
		c, ok := t.pop()
		if !ok || !c.isCat1() {
			t.fail()
			return
		}
		// Form 2: cat2 over two cat1.
		t.emit(mvm.OpDupX2, 0)
		t.push(a)
		t.push(c)
		t.push(b)
		t.push(a)
		return
	}
	b, ok := t.pop()
	if !ok || !b.isCat1() {
		t.fail()
		return
	}
	c, ok := t.pop()
	if !ok {
		return
	}
	if c == cat2 {
		// Form 3: two cat1 over cat2.
		t.emit(mvm.OpDup2X1, 0)
		t.push(b)
		t.push(a)
		t.push(c)
		t.push(b)
		t.push(a)
		return
	}
	d, ok := t.pop()
	if !ok || !d.isCat1() {
		t.fail()
		return
	}
	// Form 1: all category 1.
	t.emit(mvm.OpDup2X2, 0)
	t.push(b)
	t.push(a)
	t.push(d)
	t.push(c)
	t.push(b)
	t.push(a)
}

func (t *translator) peekSecond() (cat, bool) {
	if len(t.cats) < 2 {
		t.fail()
		return cat1, false
	}
	return t.cats[len(t.cats)-2], true
}

// ---- Members ---------------------------------------------------------------

func (t *translator) lowerField(in *jvm.Insn) {
	kind, err := jvm.ParseFieldDesc(in.Desc)
	if err != nil {
		t.fail()
		return
	}
	static := in.Op == jvm.OpGetstatic || in.Op == jvm.OpPutstatic
	idx := t.prog.InternField(mvm.MemberRef{
		Owner: in.Owner, Name: in.Name, Desc: in.Desc, Static: static,
	})
	valCat := cat1
	switch {
	case kind.Wide():
		valCat = cat2
	case kind == jvm.KindRef:
		valCat = catRef
	}
	switch in.Op {
	case jvm.OpGetstatic:
		t.emit(mvm.OpGetStatic, int64(idx))
		t.push(valCat)
	case jvm.OpPutstatic:
		t.emit(mvm.OpPutStatic, int64(idx))
		t.popN(1)
	case jvm.OpGetfield:
		t.emit(mvm.OpGetField, int64(idx))
		t.popN(1)
		t.push(valCat)
	case jvm.OpPutfield:
		t.emit(mvm.OpPutField, int64(idx))
		t.popN(2)
	}
}

func (t *translator) lowerInvoke(in *jvm.Insn) {
	sig, err := jvm.ParseMethodDesc(in.Desc)
	if err != nil {
		t.fail()
		return
	}
	var op mvm.Opcode
	switch in.Op {
	case jvm.OpInvokevirtual:
		op = mvm.OpInvokeVirtual
	case jvm.OpInvokespecial:
		op = mvm.OpInvokeSpecial
	case jvm.OpInvokestatic:
		op = mvm.OpInvokeStatic
	default:
		op = mvm.OpInvokeInterface
	}
	idx := t.prog.InternMethod(mvm.MemberRef{
		Owner: in.Owner, Name: in.Name, Desc: in.Desc,
		Static: in.Op == jvm.OpInvokestatic,
	})
	t.emit(op, int64(idx))
	n := len(sig.Args)
	if in.Op != jvm.OpInvokestatic {
		n++
	}
	if !t.popN(n) {
		return
	}
	t.pushReturn(sig.Ret)
}

func (t *translator) lowerInvokeDynamic(in *jvm.Insn) {
	sig, err := jvm.ParseMethodDesc(in.Desc)
	if err != nil {
		t.fail()
		return
	}
	idx := t.prog.AddBootstrap(mvm.BootstrapRef{
		Name: in.Name, Desc: in.Desc,
		BootOwner: in.BootOwner, BootName: in.BootName, BootDesc: in.BootDesc,
	})
	t.emit(mvm.OpInvokeDynamic, int64(idx))
	if !t.popN(len(sig.Args)) {
		return
	}
	t.pushReturn(sig.Ret)
}

func (t *translator) pushReturn(ret jvm.TypeKind) {
	switch {
	case ret == jvm.KindVoid:
	case ret.Wide():
		t.push(cat2)
	case ret == jvm.KindRef:
		t.push(catRef)
	default:
		t.push(cat1)
	}
}

// ---- Monitors --------------------------------------------------------------
//
// A throw inside a monitored region must release the monitor. The monitored
// reference is stashed in a fresh local before the enter; a synthetic
// catch-all region covering enter..exit rethrows after releasing. Unmatched
// exits (the bytecode's own exceptional-release path) lower to a plain exit.

func (t *translator) lowerMonitorEnter() {
	tmp := t.m.MaxLocals + t.extraVars
	t.extraVars++
	t.emit(mvm.OpDup, 0)
	t.emit(mvm.OpAStore, int64(tmp))
	t.emit(mvm.OpMonitorEnter, 0)
	t.popN(1)
	t.monitors = append(t.monitors, monRegion{tmpSlot: tmp, startPC: len(t.prog.Code)})
}

func (t *translator) lowerMonitorExit() {
	t.emit(mvm.OpMonitorExit, 0)
	t.popN(1)
	if len(t.monitors) == 0 {
		return
	}
	reg := t.monitors[len(t.monitors)-1]
	t.monitors = t.monitors[:len(t.monitors)-1]
	end := len(t.prog.Code) - 1 // region excludes the structured exit itself
	if end <= reg.startPC {
		return
	}
	// Out-of-line release block, reachable only through dispatch. The
	// dispatcher clears the stack and pushes the thrown reference, so the
	// block reloads the monitored object, exits and rethrows.
	skip := t.emit(mvm.OpGoto, 0)
	handler := len(t.prog.Code)
	t.emit(mvm.OpALoad, int64(reg.tmpSlot))
	t.emit(mvm.OpMonitorExit, 0)
	t.emit(mvm.OpAThrow, 0)
	t.prog.Code[skip].A = int64(len(t.prog.Code))
	t.prog.AddHandler(mvm.TryRegion{
		Start: int32(reg.startPC), End: int32(end), Handler: int32(handler),
	})
}

// ---- Opcode tables ---------------------------------------------------------

func arrayLoadOp(op jvm.Opcode) mvm.Opcode {
	switch op {
	case jvm.OpIaload:
		return mvm.OpIALoad
	case jvm.OpLaload:
		return mvm.OpLALoad
	case jvm.OpFaload:
		return mvm.OpFALoad
	case jvm.OpDaload:
		return mvm.OpDALoad
	case jvm.OpAaload:
		return mvm.OpAALoad
	case jvm.OpBaload:
		return mvm.OpBALoad
	case jvm.OpCaload:
		return mvm.OpCALoad
	default:
		return mvm.OpSALoad
	}
}

func arrayStoreOp(op jvm.Opcode) mvm.Opcode {
	switch op {
	case jvm.OpIastore:
		return mvm.OpIAStore
	case jvm.OpLastore:
		return mvm.OpLAStore
	case jvm.OpFastore:
		return mvm.OpFAStore
	case jvm.OpDastore:
		return mvm.OpDAStore
	case jvm.OpAastore:
		return mvm.OpAAStore
	case jvm.OpBastore:
		return mvm.OpBAStore
	case jvm.OpCastore:
		return mvm.OpCAStore
	default:
		return mvm.OpSAStore
	}
}

func intArithOp(op jvm.Opcode) mvm.Opcode {
	switch op {
	case jvm.OpIadd:
		return mvm.OpIAdd
	case jvm.OpIsub:
		return mvm.OpISub
	case jvm.OpImul:
		return mvm.OpIMul
	case jvm.OpIdiv:
		return mvm.OpIDiv
	case jvm.OpIrem:
		return mvm.OpIRem
	case jvm.OpIshl:
		return mvm.OpIShl
	case jvm.OpIshr:
		return mvm.OpIShr
	case jvm.OpIushr:
		return mvm.OpIUshr
	case jvm.OpIand:
		return mvm.OpIAnd
	case jvm.OpIor:
		return mvm.OpIOr
	default:
		return mvm.OpIXor
	}
}

func longArithOp(op jvm.Opcode) mvm.Opcode {
	switch op {
	case jvm.OpLadd:
		return mvm.OpLAdd
	case jvm.OpLsub:
		return mvm.OpLSub
	case jvm.OpLmul:
		return mvm.OpLMul
	case jvm.OpLdiv:
		return mvm.OpLDiv
	case jvm.OpLrem:
		return mvm.OpLRem
	case jvm.OpLshl:
		return mvm.OpLShl
	case jvm.OpLshr:
		return mvm.OpLShr
	case jvm.OpLushr:
		return mvm.OpLUshr
	case jvm.OpLand:
		return mvm.OpLAnd
	case jvm.OpLor:
		return mvm.OpLOr
	default:
		return mvm.OpLXor
	}
}

func floatArithOp(op jvm.Opcode) mvm.Opcode {
	switch op {
	case jvm.OpFadd:
		return mvm.OpFAdd
	case jvm.OpFsub:
		return mvm.OpFSub
	case jvm.OpFmul:
		return mvm.OpFMul
	case jvm.OpFdiv:
		return mvm.OpFDiv
	default:
		return mvm.OpFRem
	}
}

func doubleArithOp(op jvm.Opcode) mvm.Opcode {
	switch op {
	case jvm.OpDadd:
		return mvm.OpDAdd
	case jvm.OpDsub:
		return mvm.OpDSub
	case jvm.OpDmul:
		return mvm.OpDMul
	case jvm.OpDdiv:
		return mvm.OpDDiv
	default:
		return mvm.OpDRem
	}
}

func convOp(op jvm.Opcode) mvm.Opcode {
	return mvm.OpI2L + mvm.Opcode(op-jvm.OpI2l)
}

func convResultCat(op jvm.Opcode) cat {
	switch op {
	case jvm.OpI2l, jvm.OpI2d, jvm.OpF2l, jvm.OpF2d, jvm.OpL2d, jvm.OpD2l:
		return cat2
	}
	return cat1
}
