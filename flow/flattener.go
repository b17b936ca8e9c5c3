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

package flow

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shroudlabs/go-shroud/jvm"
)

// The Java-layer flattener. A method body becomes
//
//	prologue:  state = encode(0)
//	loop:      load state; lookupswitch
//	  case encode(0): state = encode(1); goto loop
//	  case encode(1): <cloned original body>
//	  case decoys:    push noise; pop; state = encode(1); goto loop
//	  default:        state = encode(1); goto loop
//
// The original body is cloned under a full label remap; try/catch and
// local-variable tables are rebuilt against the cloned labels. Any failure
// leaves the method untouched: the rewrite is assembled on the side and only
// swapped in once complete.

var (
	// ErrInitializer is returned for <init> and <clinit>; constructor
	// initialisation chaining does not survive the dispatch loop.
	ErrInitializer = errors.New("flow: refusing to flatten initializer")

	// ErrSubroutines is returned for methods using the legacy JSR/RET
	// subroutine opcodes.
	ErrSubroutines = errors.New("flow: method uses legacy subroutines")

	// ErrNoCode is returned for abstract and native methods.
	ErrNoCode = errors.New("flow: method has no code")
)

// rawEntry and rawBody are the two live states; decoys count up from
// rawDummyBase.
const (
	rawEntry     = 0
	rawBody      = 1
	rawDummyBase = 100
)

// Flatten rewrites m in place into an encoded-state dispatch loop. On any
// error the method is left exactly as it was.
func Flatten(m *jvm.Method, owner string, strength Strength) (err error) {
	// The clone walk indexes freely into instruction operands; a malformed
	// body surfaces as a panic, which is contained to this method.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("flow: flattening %s.%s%s panicked: %v", owner, m.Name, m.Desc, r)
		}
	}()

	if m.IsInitializer() {
		return ErrInitializer
	}
	if len(m.Code) == 0 {
		return ErrNoCode
	}
	for _, in := range m.Code {
		if in.Op == jvm.OpJsr || in.Op == jvm.OpJsrW || in.Op == jvm.OpRet {
			return ErrSubroutines
		}
	}

	dummies := strength.DummyStates()
	raws := []uint32{rawEntry, rawBody}
	for i := 0; i < dummies; i++ {
		raws = append(raws, uint32(rawDummyBase+i))
	}
	enc, err := NewEncoder(m.Identity(owner), strength, raws)
	if err != nil {
		return err
	}

	// Clone the body under a fresh-label bijection.
	remap := make(map[*jvm.Label]*jvm.Label)
	for _, in := range m.Code {
		if in.IsLabel() {
			remap[in.Pos] = jvm.NewLabel()
		}
	}
	body := make([]*jvm.Insn, 0, len(m.Code)+32)
	for _, in := range m.Code {
		body = append(body, in.Clone(remap))
	}

	stateVar := m.MaxLocals
	loop := jvm.NewLabel()
	caseEntry := jvm.NewLabel()
	caseBody := jvm.NewLabel()
	deflt := jvm.NewLabel()
	dummyLabels := make([]*jvm.Label, dummies)
	for i := range dummyLabels {
		dummyLabels[i] = jvm.NewLabel()
	}

	var code []*jvm.Insn
	add := func(ins ...*jvm.Insn) { code = append(code, ins...) }
	mark := func(l *jvm.Label) { add(&jvm.Insn{Op: jvm.OpLabelMark, Pos: l}) }

	// Prologue: enter the dispatch loop in the entry state.
	add(pushInt(int32(enc.Encode(rawEntry))))
	add(&jvm.Insn{Op: jvm.OpIstore, Var: stateVar})

	// Dispatch: keys must reach the switch sorted, labels aligned.
	type dispatchCase struct {
		key   int32
		label *jvm.Label
	}
	cases := []dispatchCase{
		{int32(enc.Encode(rawEntry)), caseEntry},
		{int32(enc.Encode(rawBody)), caseBody},
	}
	for i, l := range dummyLabels {
		cases = append(cases, dispatchCase{int32(enc.Encode(uint32(rawDummyBase + i))), l})
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].key < cases[j].key })

	mark(loop)
	add(&jvm.Insn{Op: jvm.OpIload, Var: stateVar})
	sw := &jvm.Insn{Op: jvm.OpLookupswitch, Dflt: deflt}
	for _, c := range cases {
		sw.Keys = append(sw.Keys, c.key)
		sw.Targets = append(sw.Targets, c.label)
	}
	add(sw)

	// Entry state steers to the body through the encoded transition.
	mark(caseEntry)
	add(transition(enc, rawBody, stateVar)...)
	add(&jvm.Insn{Op: jvm.OpGoto, Target: loop})

	// Decoy states burn a constant and steer to the body.
	for _, l := range dummyLabels {
		mark(l)
		add(pushInt(enc.Noise()))
		add(&jvm.Insn{Op: jvm.OpPop})
		add(transition(enc, rawBody, stateVar)...)
		add(&jvm.Insn{Op: jvm.OpGoto, Target: loop})
	}

	// Unknown keys also steer to the body rather than trapping.
	mark(deflt)
	add(transition(enc, rawBody, stateVar)...)
	add(&jvm.Insn{Op: jvm.OpGoto, Target: loop})

	mark(caseBody)
	add(body...)

	// Rebuild the tables against the cloned labels, dropping ranges the
	// remap collapsed and records the cloning duplicated.
	tryCatch := rebuildTryCatch(m.TryCatch, remap, code)
	localVars := rebuildLocalVars(m.LocalVars, remap)

	m.Code = code
	m.TryCatch = tryCatch
	m.LocalVars = localVars
	m.MaxLocals++
	if m.MaxStack < 3 {
		// The HIGH transition sequence needs three operand slots.
		m.MaxStack = 3
	}
	return nil
}

func pushInt(v int32) *jvm.Insn {
	switch {
	case v >= -1 && v <= 5:
		return &jvm.Insn{Op: jvm.Opcode(int(jvm.OpIconst0) + int(v))}
	case v >= -128 && v <= 127:
		return &jvm.Insn{Op: jvm.OpBipush, Val: v}
	case v >= -32768 && v <= 32767:
		return &jvm.Insn{Op: jvm.OpSipush, Val: v}
	}
	return &jvm.Insn{Op: jvm.OpLdc, Cst: jvm.Const{Tag: jvm.ConstInt, I: int64(v)}}
}

// transition emits the bytecode storing encode(nextRaw) into the state slot.
// LOW stores the raw id. MEDIUM and HIGH inline the mixing algebra so the
// next key is computed, not loaded, at run time.
func transition(enc *Encoder, nextRaw uint32, stateVar int) []*jvm.Insn {
	mask, mul, bias := enc.Params()
	var out []*jvm.Insn
	switch enc.Strength() {
	case StrengthLow:
		out = append(out, pushInt(int32(nextRaw)))
	case StrengthMedium:
		out = append(out,
			pushInt(int32(nextRaw)),
			pushInt(int32(mask)),
			&jvm.Insn{Op: jvm.OpIxor},
			pushInt(int32(mul)),
			&jvm.Insn{Op: jvm.OpImul},
			pushInt(int32(bias)),
			&jvm.Insn{Op: jvm.OpIadd},
		)
	case StrengthHigh:
		rotMask := mask<<7 | mask>>25
		out = append(out,
			pushInt(int32(nextRaw)),
			pushInt(int32(rotMask)),
			&jvm.Insn{Op: jvm.OpIxor},
			pushInt(int32(mul)),
			&jvm.Insn{Op: jvm.OpImul},
			// rotl(x, 3) = (x << 3) | (x >>> 29)
			&jvm.Insn{Op: jvm.OpDup},
			pushInt(3),
			&jvm.Insn{Op: jvm.OpIshl},
			&jvm.Insn{Op: jvm.OpSwap},
			pushInt(29),
			&jvm.Insn{Op: jvm.OpIushr},
			&jvm.Insn{Op: jvm.OpIor},
			pushInt(int32(bias)),
			&jvm.Insn{Op: jvm.OpIadd},
			// x ^= x >>> 13
			&jvm.Insn{Op: jvm.OpDup},
			pushInt(13),
			&jvm.Insn{Op: jvm.OpIushr},
			&jvm.Insn{Op: jvm.OpIxor},
		)
	}
	out = append(out, &jvm.Insn{Op: jvm.OpIstore, Var: stateVar})
	return out
}

// rebuildTryCatch clones the exception table through the remap and drops
// entries whose range collapsed to zero length or inverted under cloning.
func rebuildTryCatch(table []*jvm.TryCatch, remap map[*jvm.Label]*jvm.Label, code []*jvm.Insn) []*jvm.TryCatch {
	idx := make(map[*jvm.Label]int)
	for i, in := range code {
		if in.IsLabel() {
			idx[in.Pos] = i
		}
	}
	var out []*jvm.TryCatch
	for _, tc := range table {
		n := &jvm.TryCatch{
			Start:   mapOrKeep(remap, tc.Start),
			End:     mapOrKeep(remap, tc.End),
			Handler: mapOrKeep(remap, tc.Handler),
			Type:    tc.Type,
		}
		s, okS := idx[n.Start]
		e, okE := idx[n.End]
		if !okS || !okE || e <= s {
			continue
		}
		if _, okH := idx[n.Handler]; !okH {
			continue
		}
		covered := false
		for i := s + 1; i < e; i++ {
			if !code[i].IsLabel() {
				covered = true
				break
			}
		}
		if !covered {
			continue
		}
		out = append(out, n)
	}
	return out
}

// rebuildLocalVars clones the local-variable table and deduplicates records
// by (slot, start, end); cloning can spuriously duplicate entries.
func rebuildLocalVars(vars []*jvm.LocalVar, remap map[*jvm.Label]*jvm.Label) []*jvm.LocalVar {
	type key struct {
		slot       int
		start, end *jvm.Label
	}
	seen := make(map[key]bool)
	var out []*jvm.LocalVar
	for _, lv := range vars {
		n := &jvm.LocalVar{
			Name:  lv.Name,
			Desc:  lv.Desc,
			Start: mapOrKeep(remap, lv.Start),
			End:   mapOrKeep(remap, lv.End),
			Slot:  lv.Slot,
		}
		k := key{slot: n.Slot, start: n.Start, end: n.End}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, n)
	}
	return out
}

// mapOrKeep follows the remap, keeping the original endpoint when the map
// does not contain it. Tables occasionally reference labels outside the
// cloned body; keeping them is the defensive fallback.
func mapOrKeep(remap map[*jvm.Label]*jvm.Label, l *jvm.Label) *jvm.Label {
	if l == nil {
		return nil
	}
	if n, ok := remap[l]; ok {
		return n
	}
	return l
}
