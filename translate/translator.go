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

// Package translate lowers one JVM method body to a micro-VM program.
//
// The translation is a single left-to-right pass. Labels record the next
// instruction index as they are visited; branch and switch operands that
// reference labels are collected as fixups and patched once the pass ends,
// so forward references need no back-pointers. A symbolic stack of slot
// categories follows the pass for one purpose only: selecting between the
// category-1 and category-2 variants of the polymorphic stack opcodes.
//
// Translation either succeeds completely or reports nothing: a method with
// any instruction the translator cannot lower, an unresolvable label, or a
// stack shape outside the JVM-legal forms yields (nil, false) and the caller
// falls back to the state-machine backend.
package translate

import (
	"github.com/shroudlabs/go-shroud/jvm"
	"github.com/shroudlabs/go-shroud/mvm"
)

// narrowMax is the largest branch target index that still fits the narrow
// operand encoding; beyond it the wide opcode variant is emitted.
const narrowMax = 0x7fff

// cat is a symbolic operand-stack slot category.
type cat uint8

const (
	cat1 cat = iota
	cat2
	catRef
	catNull
)

func (c cat) isCat1() bool { return c != cat2 }
func (c cat) isRef() bool  { return c == catRef || c == catNull }

type fixup struct {
	pos   int // instruction whose operand receives the target index
	label *jvm.Label
}

type switchFixup struct {
	table  bool
	rec    int
	dflt   *jvm.Label
	labels []*jvm.Label
}

type handlerFixup struct {
	rec                 int
	start, end, handler *jvm.Label
}

// monRegion tracks one monitorenter awaiting its structured exit.
type monRegion struct {
	tmpSlot int
	startPC int
}

type translator struct {
	m    *jvm.Method
	prog *mvm.Program

	labelIdx   map[*jvm.Label]int
	fixups     []fixup
	switchFix  []switchFixup
	handlerFix []handlerFixup

	cats  []cat
	known bool
	saved map[*jvm.Label][]cat

	monitors  []monRegion
	extraVars int

	failed bool
}

// Translate lowers m to a micro-VM program. ok is false when the method
// contains anything the micro-VM cannot express; the caller must then keep
// the method on the fallback backend. Rejection is silent by contract.
func Translate(m *jvm.Method) (prog *mvm.Program, ok bool) {
	t := &translator{
		m:        m,
		prog:     mvm.NewProgram(),
		labelIdx: make(map[*jvm.Label]int),
		saved:    make(map[*jvm.Label][]cat),
		known:    true,
	}
	if !t.run() {
		return nil, false
	}
	return t.prog, true
}

func (t *translator) fail() { t.failed = true }

func (t *translator) emit(op mvm.Opcode, a int64) int {
	t.prog.Code = append(t.prog.Code, mvm.Inst{Op: op, A: a})
	return len(t.prog.Code) - 1
}

func (t *translator) emitBranch(op mvm.Opcode, target *jvm.Label) {
	pos := t.emit(op, -1)
	t.fixups = append(t.fixups, fixup{pos: pos, label: target})
}

// ---- Symbolic stack --------------------------------------------------------

func (t *translator) push(c cat) { t.cats = append(t.cats, c) }

func (t *translator) pop() (cat, bool) {
	if len(t.cats) == 0 {
		t.fail()
		return cat1, false
	}
	c := t.cats[len(t.cats)-1]
	t.cats = t.cats[:len(t.cats)-1]
	return c, true
}

func (t *translator) popN(n int) bool {
	for i := 0; i < n; i++ {
		if _, ok := t.pop(); !ok {
			return false
		}
	}
	return true
}

func (t *translator) top() (cat, bool) {
	if len(t.cats) == 0 {
		t.fail()
		return cat1, false
	}
	return t.cats[len(t.cats)-1], true
}

// saveAt records the symbolic stack for a branch target so the pass can
// resume with the right shape when the label is reached after an
// unconditional transfer.
func (t *translator) saveAt(l *jvm.Label) {
	if _, dup := t.saved[l]; !dup {
		t.saved[l] = append([]cat(nil), t.cats...)
	}
}

// ---- Main pass -------------------------------------------------------------

func (t *translator) run() bool {
	if t.m.Code == nil {
		return false
	}
	// Constructor chaining cannot be replayed through the interop bridge:
	// the uninitialised receiver is not expressible. Reject constructors
	// that delegate to another <init>.
	if t.m.Name == "<init>" {
		for _, in := range t.m.Code {
			if in.Op == jvm.OpInvokespecial && in.Name == "<init>" {
				return false
			}
		}
	}

	// Handler table first: entries exist before the pass so the try markers
	// can carry their record index.
	handlerAt := make(map[*jvm.Label][]int) // start label -> record ids
	leaveAt := make(map[*jvm.Label][]int)
	for _, tc := range t.m.TryCatch {
		rec := t.prog.AddHandler(mvm.TryRegion{Type: tc.Type})
		t.handlerFix = append(t.handlerFix, handlerFixup{
			rec: rec, start: tc.Start, end: tc.End, handler: tc.Handler,
		})
		handlerAt[tc.Start] = append(handlerAt[tc.Start], rec)
		leaveAt[tc.End] = append(leaveAt[tc.End], rec)
		t.saved[tc.Handler] = []cat{catRef}
	}

	for _, in := range t.m.Code {
		if t.failed {
			return false
		}
		if in.IsLabel() {
			t.visitLabel(in.Pos, handlerAt, leaveAt)
			continue
		}
		t.visitInsn(in)
	}
	if t.failed {
		return false
	}
	t.emit(mvm.OpHalt, 0)

	if !t.patch() {
		return false
	}
	t.prog.MaxLocals = t.m.MaxLocals + t.extraVars
	t.prog.MaxStack = t.m.MaxStack
	return true
}

func (t *translator) visitLabel(l *jvm.Label, handlerAt, leaveAt map[*jvm.Label][]int) {
	t.labelIdx[l] = len(t.prog.Code)
	if st, ok := t.saved[l]; ok {
		t.cats = append(t.cats[:0], st...)
		t.known = true
	} else if !t.known {
		t.cats = t.cats[:0]
		t.known = true
	}
	for _, rec := range handlerAt[l] {
		t.emit(mvm.OpTryEnter, int64(rec))
	}
	for _, rec := range leaveAt[l] {
		t.emit(mvm.OpTryLeave, int64(rec))
	}
}

// patch substitutes instruction indices for labels in branch operands,
// switch records and handler records. Any label that was never visited
// rejects the method.
func (t *translator) patch() bool {
	resolve := func(l *jvm.Label) (int, bool) {
		idx, ok := t.labelIdx[l]
		return idx, ok
	}
	for _, f := range t.fixups {
		idx, ok := resolve(f.label)
		if !ok {
			return false
		}
		t.prog.Code[f.pos].A = int64(idx)
		if idx > narrowMax {
			t.prog.Code[f.pos].Op |= mvm.WideBit
		}
	}
	for _, sf := range t.switchFix {
		dflt, ok := resolve(sf.dflt)
		if !ok {
			return false
		}
		targets := make([]int32, len(sf.labels))
		for i, l := range sf.labels {
			idx, ok := resolve(l)
			if !ok {
				return false
			}
			targets[i] = int32(idx)
		}
		if sf.table {
			t.prog.TableSw[sf.rec].Default = int32(dflt)
			t.prog.TableSw[sf.rec].Targets = targets
		} else {
			t.prog.LookupSw[sf.rec].Default = int32(dflt)
			t.prog.LookupSw[sf.rec].Targets = targets
		}
	}
	for _, hf := range t.handlerFix {
		s, ok1 := resolve(hf.start)
		e, ok2 := resolve(hf.end)
		h, ok3 := resolve(hf.handler)
		if !ok1 || !ok2 || !ok3 {
			return false
		}
		t.prog.Handlers[hf.rec].Start = int32(s)
		t.prog.Handlers[hf.rec].End = int32(e)
		t.prog.Handlers[hf.rec].Handler = int32(h)
	}
	return true
}

// branchTo records the post-pop stack at the target and, for the
// unconditional transfers, marks the fall-through shape unknown.
func (t *translator) branchTo(op mvm.Opcode, target *jvm.Label, unconditional bool) {
	t.saveAt(target)
	t.emitBranch(op, target)
	if unconditional {
		t.known = false
	}
}
