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
	"fmt"
)

// Structural re-verification gate. After a method has been rewritten (body
// replacement or control-flow flattening) the writer runs Verify before the
// class is serialized. A failure is first answered by RecomputeFrames and one
// retry; if the method still does not verify, the caller must keep the
// original bytes and surface the error.

var (
	// ErrUnresolvedLabel is returned when a branch, switch, try/catch or
	// local-variable record references a label that is not marked in Code.
	ErrUnresolvedLabel = errors.New("jvm: branch target is not in the method")

	// ErrBadRange is returned for inverted or empty try/catch ranges.
	ErrBadRange = errors.New("jvm: malformed try/catch range")

	// ErrSwitchKeys is returned when lookupswitch keys are not strictly
	// increasing or key and target counts disagree.
	ErrSwitchKeys = errors.New("jvm: malformed lookupswitch keys")

	// ErrStackDepth is returned when abstract interpretation finds a stack
	// depth conflict or an excursion beyond the declared MaxStack.
	ErrStackDepth = errors.New("jvm: stack depth conflict")
)

// Verify checks m's structural integrity. It does not type-check operands;
// the host VM's verifier remains the final authority. The checks here are the
// ones the rewriting passes can plausibly break.
func Verify(m *Method) error {
	idx := m.LabelIndex()
	for _, in := range m.Code {
		for _, l := range branchTargets(in) {
			if _, ok := idx[l]; !ok {
				return fmt.Errorf("%w: %s -> %s", ErrUnresolvedLabel, in.Op, l)
			}
		}
		if in.Op == OpLookupswitch {
			if len(in.Keys) != len(in.Targets) {
				return fmt.Errorf("%w: %d keys, %d targets", ErrSwitchKeys, len(in.Keys), len(in.Targets))
			}
			for i := 1; i < len(in.Keys); i++ {
				if in.Keys[i] <= in.Keys[i-1] {
					return fmt.Errorf("%w: key %d after %d", ErrSwitchKeys, in.Keys[i], in.Keys[i-1])
				}
			}
		}
	}
	for _, tc := range m.TryCatch {
		s, okS := idx[tc.Start]
		e, okE := idx[tc.End]
		_, okH := idx[tc.Handler]
		if !okS || !okE || !okH {
			return fmt.Errorf("%w: handler labels missing", ErrUnresolvedLabel)
		}
		if e <= s {
			return fmt.Errorf("%w: [%d,%d)", ErrBadRange, s, e)
		}
	}
	maxDepth, err := simulateStack(m, idx)
	if err != nil {
		return err
	}
	if maxDepth > m.MaxStack {
		return fmt.Errorf("%w: needs %d slots, declares %d", ErrStackDepth, maxDepth, m.MaxStack)
	}
	return nil
}

// RecomputeFrames re-derives MaxStack and MaxLocals from the code. It is the
// recovery step between the first verification failure and giving up on the
// rewritten method.
func RecomputeFrames(m *Method) error {
	idx := m.LabelIndex()
	maxDepth, err := simulateStack(m, idx)
	if err != nil {
		return err
	}
	m.MaxStack = maxDepth
	maxLocal := argSlots(m)
	for _, in := range m.Code {
		if slot, wide, ok := localUse(in); ok {
			need := slot + 1
			if wide {
				need = slot + 2
			}
			if need > maxLocal {
				maxLocal = need
			}
		}
	}
	m.MaxLocals = maxLocal
	return nil
}

func argSlots(m *Method) int {
	sig, err := ParseMethodDesc(m.Desc)
	if err != nil {
		return m.MaxLocals
	}
	slots := sig.ArgSlots
	if !m.IsStatic() {
		slots++
	}
	return slots
}

func localUse(in *Insn) (slot int, wide bool, ok bool) {
	switch in.Op {
	case OpIload, OpFload, OpAload, OpIstore, OpFstore, OpAstore, OpIinc, OpRet:
		return in.Var, false, true
	case OpLload, OpDload, OpLstore, OpDstore:
		return in.Var, true, true
	}
	return 0, false, false
}

func branchTargets(in *Insn) []*Label {
	var out []*Label
	if in.Target != nil {
		out = append(out, in.Target)
	}
	if in.Dflt != nil {
		out = append(out, in.Dflt)
	}
	out = append(out, in.Targets...)
	return out
}

// simulateStack runs a worklist abstract interpretation tracking only stack
// depth. Depth conflicts at merge points indicate a broken rewrite.
func simulateStack(m *Method, idx map[*Label]int) (int, error) {
	depthAt := make(map[int]int) // instruction index -> depth on entry
	type item struct{ pc, depth int }
	work := []item{{0, 0}}
	for _, tc := range m.TryCatch {
		work = append(work, item{idx[tc.Handler], 1})
	}
	max := 0
	for len(work) > 0 {
		it := work[len(work)-1]
		work = work[:len(work)-1]
		pc, depth := it.pc, it.depth
		for pc < len(m.Code) {
			in := m.Code[pc]
			if prev, seen := depthAt[pc]; seen {
				if prev != depth {
					return 0, fmt.Errorf("%w: at %d: %d vs %d", ErrStackDepth, pc, prev, depth)
				}
				break
			}
			depthAt[pc] = depth
			if !in.IsLabel() {
				pop, push, err := stackEffect(in)
				if err != nil {
					return 0, err
				}
				depth += push - pop
				if depth < 0 {
					return 0, fmt.Errorf("%w: underflow at %d (%s)", ErrStackDepth, pc, in.Op)
				}
				if depth > max {
					max = depth
				}
				for _, l := range branchTargets(in) {
					work = append(work, item{idx[l], depth})
				}
				if in.Op == OpGoto || in.Op == OpGotoW || in.Op.IsReturn() ||
					in.Op == OpAthrow || in.Op == OpTableswitch || in.Op == OpLookupswitch {
					break
				}
			}
			pc++
		}
	}
	return max, nil
}

// stackEffect returns the slot counts an instruction pops and pushes.
func stackEffect(in *Insn) (pop, push int, err error) {
	switch in.Op {
	case OpNop, OpGoto, OpGotoW, OpIinc, OpRet, OpReturn:
		return 0, 0, nil
	case OpAconstNull, OpIconstM1, OpIconst0, OpIconst1, OpIconst2, OpIconst3,
		OpIconst4, OpIconst5, OpFconst0, OpFconst1, OpFconst2,
		OpBipush, OpSipush:
		return 0, 1, nil
	case OpLconst0, OpLconst1, OpDconst0, OpDconst1:
		return 0, 2, nil
	case OpLdc, OpLdcW:
		return 0, 1, nil
	case OpLdc2W:
		return 0, 2, nil
	case OpIload, OpFload, OpAload:
		return 0, 1, nil
	case OpLload, OpDload:
		return 0, 2, nil
	case OpIaload, OpFaload, OpAaload, OpBaload, OpCaload, OpSaload:
		return 2, 1, nil
	case OpLaload, OpDaload:
		return 2, 2, nil
	case OpIstore, OpFstore, OpAstore:
		return 1, 0, nil
	case OpLstore, OpDstore:
		return 2, 0, nil
	case OpIastore, OpFastore, OpAastore, OpBastore, OpCastore, OpSastore:
		return 3, 0, nil
	case OpLastore, OpDastore:
		return 4, 0, nil
	case OpPop:
		return 1, 0, nil
	case OpPop2:
		return 2, 0, nil
	case OpDup:
		return 1, 2, nil
	case OpDupX1:
		return 2, 3, nil
	case OpDupX2:
		return 3, 4, nil
	case OpDup2:
		return 2, 4, nil
	case OpDup2X1:
		return 3, 5, nil
	case OpDup2X2:
		return 4, 6, nil
	case OpSwap:
		return 2, 2, nil
	case OpIadd, OpIsub, OpImul, OpIdiv, OpIrem, OpIshl, OpIshr, OpIushr,
		OpIand, OpIor, OpIxor, OpFadd, OpFsub, OpFmul, OpFdiv, OpFrem:
		return 2, 1, nil
	case OpLadd, OpLsub, OpLmul, OpLdiv, OpLrem, OpLand, OpLor, OpLxor,
		OpDadd, OpDsub, OpDmul, OpDdiv, OpDrem:
		return 4, 2, nil
	case OpIneg, OpFneg, OpI2f, OpF2i, OpI2b, OpI2c, OpI2s:
		return 1, 1, nil
	case OpLneg, OpDneg, OpL2d, OpD2l:
		return 2, 2, nil
	case OpLshl, OpLshr, OpLushr:
		return 3, 2, nil
	case OpI2l, OpI2d, OpF2l, OpF2d:
		return 1, 2, nil
	case OpL2i, OpL2f, OpD2i, OpD2f:
		return 2, 1, nil
	case OpLcmp, OpDcmpl, OpDcmpg:
		return 4, 1, nil
	case OpFcmpl, OpFcmpg:
		return 2, 1, nil
	case OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle, OpIfnull, OpIfnonnull,
		OpTableswitch, OpLookupswitch:
		return 1, 0, nil
	case OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge, OpIfIcmpgt,
		OpIfIcmple, OpIfAcmpeq, OpIfAcmpne:
		return 2, 0, nil
	case OpIreturn, OpFreturn, OpAreturn, OpAthrow:
		return 1, 0, nil
	case OpLreturn, OpDreturn:
		return 2, 0, nil
	case OpGetstatic, OpPutstatic, OpGetfield, OpPutfield:
		kind, derr := ParseFieldDesc(in.Desc)
		if derr != nil {
			return 0, 0, derr
		}
		width := 1
		if kind.Wide() {
			width = 2
		}
		switch in.Op {
		case OpGetstatic:
			return 0, width, nil
		case OpPutstatic:
			return width, 0, nil
		case OpGetfield:
			return 1, width, nil
		default:
			return 1 + width, 0, nil
		}
	case OpInvokevirtual, OpInvokespecial, OpInvokestatic, OpInvokeinterface, OpInvokedynamic:
		sig, derr := ParseMethodDesc(in.Desc)
		if derr != nil {
			return 0, 0, derr
		}
		pop := sig.ArgSlots
		if in.Op != OpInvokestatic && in.Op != OpInvokedynamic {
			pop++
		}
		push := 0
		if sig.Ret != KindVoid {
			push = 1
			if sig.Ret.Wide() {
				push = 2
			}
		}
		return pop, push, nil
	case OpNew:
		return 0, 1, nil
	case OpNewarray, OpAnewarray, OpArraylength, OpCheckcast, OpInstanceof:
		return 1, 1, nil
	case OpMonitorenter, OpMonitorexit:
		return 1, 0, nil
	case OpMultianewarray:
		return in.Dims, 1, nil
	case OpJsr, OpJsrW:
		return 0, 1, nil
	}
	return 0, 0, fmt.Errorf("jvm: no stack model for %s", in.Op)
}
