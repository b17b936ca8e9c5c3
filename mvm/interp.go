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
	"fmt"
	"math"
)

// Reference interpreter. It is the oracle the translator is tested against:
// for every method the translator accepts, running the program here must
// produce the observable behaviour of the original bytecode. Guest exceptions
// are modelled as data and dispatched by linear scan over the handler table;
// Go errors are reserved for machine faults (bad image, stack bounds), which
// indicate translator bugs rather than guest behaviour.

// ---- Error sentinels -------------------------------------------------------

// ErrStackBounds is returned when the operand stack is accessed out of range.
var ErrStackBounds = errors.New("mvm: operand stack index out of range")

// ErrLocalBounds is returned for a locals slot outside the declared frame.
var ErrLocalBounds = errors.New("mvm: locals index out of range")

// ErrBadOpcode is returned when execution reaches an instruction the
// interpreter has no handler for.
var ErrBadOpcode = errors.New("mvm: invalid opcode")

// ErrBadOperand is returned when an operand indexes a side table out of range.
var ErrBadOperand = errors.New("mvm: operand indexes side table out of range")

// ErrNoHalt is returned when the program counter runs off the code array.
var ErrNoHalt = errors.New("mvm: program ran off the end without HALT")

// ErrMonitorState is returned on monitorexit of an unowned monitor.
var ErrMonitorState = errors.New("mvm: unbalanced monitor operation")

// ---- Values ----------------------------------------------------------------

// SlotKind tags a stack or locals slot.
type SlotKind uint8

const (
	KInt SlotKind = iota
	KLong
	KFloat
	KDouble
	KRef
)

// Value is one 64-bit stack slot. Longs and doubles occupy a single slot.
type Value struct {
	Kind SlotKind
	I    int64
	F    float64
	R    *Object
}

// IntVal builds an int slot.
func IntVal(v int32) Value { return Value{Kind: KInt, I: int64(v)} }

// LongVal builds a long slot.
func LongVal(v int64) Value { return Value{Kind: KLong, I: v} }

// FloatVal builds a float slot (float32 semantics, stored widened).
func FloatVal(v float32) Value { return Value{Kind: KFloat, F: float64(v)} }

// DoubleVal builds a double slot.
func DoubleVal(v float64) Value { return Value{Kind: KDouble, F: v} }

// RefVal builds a reference slot; nil is the null reference.
func RefVal(o *Object) Value { return Value{Kind: KRef, R: o} }

// Object is a guest heap object: either a plain instance or an array.
type Object struct {
	Class  string // internal name; arrays use "[" + element descriptor
	Fields map[string]Value
	Elems  []Value // arrays only
	Elem   SlotKind

	// monitor is an entry count; the interpreter has a single guest thread,
	// so ownership is implicit and only balance is tracked.
	monitor int

	// Message mirrors java.lang.Throwable detail for synthesized exceptions.
	Message string
}

// NewInstance allocates a plain object of the given class.
func NewInstance(class string) *Object {
	return &Object{Class: class, Fields: make(map[string]Value)}
}

// MonitorDepth exposes the entry count for monitor-balance tests.
func (o *Object) MonitorDepth() int { return o.monitor }

// Thrown wraps a guest exception escaping the translated method.
type Thrown struct {
	Ref *Object
}

func (t *Thrown) Error() string {
	return fmt.Sprintf("mvm: uncaught %s: %s", t.Ref.Class, t.Ref.Message)
}

// ---- Host environment ------------------------------------------------------

// Env is the host side of the interpreter: field and method resolution,
// allocation of non-array instances and the class hierarchy. The generated
// native library talks to the real JVM here; tests supply a map-backed stub.
//
// Callbacks return a guest exception as *Object (nil when none was thrown).
type Env interface {
	GetStatic(ref MemberRef) (Value, *Object, error)
	PutStatic(ref MemberRef, v Value) (*Object, error)
	GetField(obj *Object, ref MemberRef) (Value, *Object, error)
	PutField(obj *Object, ref MemberRef, v Value) (*Object, error)

	// Invoke runs a method. For instance kinds args[0] is the receiver.
	Invoke(kind Opcode, ref MemberRef, args []Value) (Value, *Object, error)
	InvokeDynamic(site BootstrapRef, args []Value) (Value, *Object, error)

	NewInstance(class string) (*Object, *Object, error)
	IsInstance(obj *Object, class string) bool
}

// ---- Interpreter -----------------------------------------------------------

// Interp executes one Program invocation. It is single-use: the operand
// stack and locals live for one Run, matching the per-invocation frame of
// the generated native code.
type Interp struct {
	prog   *Program
	env    Env
	stack  []Value
	locals []Value
	pc     int

	// entered tracks monitor entries for release on throw.
	entered []*Object
}

// NewInterp prepares an invocation frame. The caller seeds the arguments
// into locals before Run.
func NewInterp(prog *Program, env Env) *Interp {
	nLocals := prog.MaxLocals
	if nLocals < 1 {
		nLocals = 1
	}
	return &Interp{
		prog:   prog,
		env:    env,
		stack:  make([]Value, 0, prog.MaxStack+4),
		locals: make([]Value, nLocals),
	}
}

// SetLocal stores an argument slot prior to Run.
func (it *Interp) SetLocal(slot int, v Value) error {
	if slot < 0 || slot >= len(it.locals) {
		return fmt.Errorf("%w: %d of %d", ErrLocalBounds, slot, len(it.locals))
	}
	it.locals[slot] = v
	return nil
}

// Stack exposes the operand stack; tests inspect it after single-program runs.
func (it *Interp) Stack() []Value { return it.stack }

func (it *Interp) push(v Value) {
	it.stack = append(it.stack, v)
}

func (it *Interp) pop() (Value, error) {
	if len(it.stack) == 0 {
		return Value{}, fmt.Errorf("%w: pop at index -1", ErrStackBounds)
	}
	v := it.stack[len(it.stack)-1]
	it.stack = it.stack[:len(it.stack)-1]
	return v, nil
}

func (it *Interp) peek(depth int) (Value, error) {
	i := len(it.stack) - 1 - depth
	if i < 0 {
		return Value{}, fmt.Errorf("%w: peek at index %d", ErrStackBounds, i)
	}
	return it.stack[i], nil
}

func (it *Interp) local(slot int) (Value, error) {
	if slot < 0 || slot >= len(it.locals) {
		return Value{}, fmt.Errorf("%w: %d of %d", ErrLocalBounds, slot, len(it.locals))
	}
	return it.locals[slot], nil
}

func (it *Interp) setLocal(slot int, v Value) error {
	if slot < 0 || slot >= len(it.locals) {
		return fmt.Errorf("%w: %d of %d", ErrLocalBounds, slot, len(it.locals))
	}
	it.locals[slot] = v
	return nil
}

// throwName synthesizes a guest exception by class name.
func throwName(class, msg string) *Object {
	o := NewInstance(class)
	o.Message = msg
	return o
}

// Run executes until HALT. The method's result, if any, is whatever the
// program left on top of the stack. An uncaught guest exception is returned
// as *Thrown; any other error is a machine fault.
func (it *Interp) Run() (Value, error) {
	for {
		if it.pc < 0 || it.pc >= len(it.prog.Code) {
			return Value{}, fmt.Errorf("%w: pc=%d", ErrNoHalt, it.pc)
		}
		in := it.prog.Code[it.pc]
		next := it.pc + 1

		thrown, err := it.step(in, &next)
		if err != nil {
			return Value{}, err
		}
		if thrown != nil {
			target, ok := it.dispatch(thrown)
			if !ok {
				it.releaseMonitors()
				return Value{}, &Thrown{Ref: thrown}
			}
			it.stack = it.stack[:0]
			it.push(RefVal(thrown))
			it.pc = target
			continue
		}
		if in.Op.Base() == OpHalt {
			if len(it.stack) > 0 {
				return it.stack[len(it.stack)-1], nil
			}
			return Value{}, nil
		}
		it.pc = next
	}
}

// dispatch finds the innermost handler covering pc for the thrown object.
// Regions are scanned in table order, matching the translator's emission
// order (inner regions first).
func (it *Interp) dispatch(thrown *Object) (int, bool) {
	for _, h := range it.prog.Handlers {
		if int32(it.pc) < h.Start || int32(it.pc) >= h.End {
			continue
		}
		if h.Type != "" && !it.env.IsInstance(thrown, h.Type) {
			continue
		}
		return int(h.Handler), true
	}
	return 0, false
}

// releaseMonitors unwinds monitor entries when a throw escapes the method.
func (it *Interp) releaseMonitors() {
	for i := len(it.entered) - 1; i >= 0; i-- {
		if it.entered[i].monitor > 0 {
			it.entered[i].monitor--
		}
	}
	it.entered = it.entered[:0]
}

// branchTarget validates a branch operand.
func (it *Interp) branchTarget(a int64) (int, error) {
	if a < 0 || a >= int64(len(it.prog.Code)) {
		return 0, fmt.Errorf("%w: branch to %d", ErrBadOperand, a)
	}
	return int(a), nil
}

// step executes one instruction. It returns the guest exception raised by
// the instruction, if any; machine faults come back as errors.
func (it *Interp) step(in Inst, next *int) (*Object, error) {
	op := in.Op.Base()
	switch op {
	case OpHalt, OpTryEnter, OpTryLeave:
		return nil, nil

	// ---- Constants ----
	case OpPush:
		it.push(IntVal(int32(in.A)))
	case OpPushL:
		it.push(LongVal(in.A))
	case OpAconstNull:
		it.push(RefVal(nil))
	case OpLdc, OpLdc2:
		if in.A < 0 || in.A >= int64(len(it.prog.Pool)) {
			return nil, fmt.Errorf("%w: pool %d", ErrBadOperand, in.A)
		}
		e := it.prog.Pool[in.A]
		switch e.Tag {
		case PoolInteger:
			it.push(IntVal(int32(e.Bits)))
		case PoolLong:
			it.push(LongVal(e.Bits))
		case PoolFloat:
			it.push(FloatVal(float32(math.Float32frombits(uint32(e.Bits)))))
		case PoolDouble:
			it.push(DoubleVal(math.Float64frombits(uint64(e.Bits))))
		case PoolString:
			s := NewInstance("java/lang/String")
			s.Message = e.Str
			it.push(RefVal(s))
		case PoolClass:
			c := NewInstance("java/lang/Class")
			c.Message = e.Str
			it.push(RefVal(c))
		}

	// ---- Locals ----
	case OpILoad, OpLLoad, OpFLoad, OpDLoad, OpALoad:
		v, err := it.local(int(in.A))
		if err != nil {
			return nil, err
		}
		it.push(v)
	case OpIStore, OpLStore, OpFStore, OpDStore, OpAStore:
		v, err := it.pop()
		if err != nil {
			return nil, err
		}
		if err := it.setLocal(int(in.A), v); err != nil {
			return nil, err
		}
	case OpIInc:
		slot := int(in.A >> 32)
		delta := int32(in.A)
		v, err := it.local(slot)
		if err != nil {
			return nil, err
		}
		v.I = int64(int32(v.I) + delta)
		if err := it.setLocal(slot, v); err != nil {
			return nil, err
		}

	// ---- Stack manipulation ----
	case OpPop:
		if _, err := it.pop(); err != nil {
			return nil, err
		}
	case OpPop2:
		for i := 0; i < 2; i++ {
			if _, err := it.pop(); err != nil {
				return nil, err
			}
		}
	case OpDup:
		v, err := it.peek(0)
		if err != nil {
			return nil, err
		}
		it.push(v)
	case OpDupX1:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		b, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(a)
		it.push(b)
		it.push(a)
	case OpDupX2:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		b, err := it.pop()
		if err != nil {
			return nil, err
		}
		c, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(a)
		it.push(c)
		it.push(b)
		it.push(a)
	case OpDup2:
		a, err := it.peek(0)
		if err != nil {
			return nil, err
		}
		b, err := it.peek(1)
		if err != nil {
			return nil, err
		}
		it.push(b)
		it.push(a)
	case OpDup2X1:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		b, err := it.pop()
		if err != nil {
			return nil, err
		}
		c, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(b)
		it.push(a)
		it.push(c)
		it.push(b)
		it.push(a)
	case OpDup2X2:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		b, err := it.pop()
		if err != nil {
			return nil, err
		}
		c, err := it.pop()
		if err != nil {
			return nil, err
		}
		d, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(b)
		it.push(a)
		it.push(d)
		it.push(c)
		it.push(b)
		it.push(a)
	case OpSwap:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		b, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(a)
		it.push(b)

	// ---- Integer arithmetic ----
	case OpIAdd, OpISub, OpIMul, OpIDiv, OpIRem, OpIShl, OpIShr, OpIUshr,
		OpIAnd, OpIOr, OpIXor:
		b, err := it.pop()
		if err != nil {
			return nil, err
		}
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		x, y := int32(a.I), int32(b.I)
		var r int32
		switch op {
		case OpIAdd:
			r = x + y
		case OpISub:
			r = x - y
		case OpIMul:
			r = x * y
		case OpIDiv:
			if y == 0 {
				return throwName("java/lang/ArithmeticException", "/ by zero"), nil
			}
			r = x / y
			if x == math.MinInt32 && y == -1 {
				r = math.MinInt32
			}
		case OpIRem:
			if y == 0 {
				return throwName("java/lang/ArithmeticException", "/ by zero"), nil
			}
			if x == math.MinInt32 && y == -1 {
				r = 0
			} else {
				r = x % y
			}
		case OpIShl:
			r = x << (uint32(y) & 31)
		case OpIShr:
			r = x >> (uint32(y) & 31)
		case OpIUshr:
			r = int32(uint32(x) >> (uint32(y) & 31))
		case OpIAnd:
			r = x & y
		case OpIOr:
			r = x | y
		case OpIXor:
			r = x ^ y
		}
		it.push(IntVal(r))
	case OpINeg:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(IntVal(-int32(a.I)))

	// ---- Long arithmetic ----
	case OpLAdd, OpLSub, OpLMul, OpLDiv, OpLRem, OpLShl, OpLShr, OpLUshr,
		OpLAnd, OpLOr, OpLXor:
		b, err := it.pop()
		if err != nil {
			return nil, err
		}
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		x, y := a.I, b.I
		var r int64
		switch op {
		case OpLAdd:
			r = x + y
		case OpLSub:
			r = x - y
		case OpLMul:
			r = x * y
		case OpLDiv:
			if y == 0 {
				return throwName("java/lang/ArithmeticException", "/ by zero"), nil
			}
			if x == math.MinInt64 && y == -1 {
				r = math.MinInt64
			} else {
				r = x / y
			}
		case OpLRem:
			if y == 0 {
				return throwName("java/lang/ArithmeticException", "/ by zero"), nil
			}
			if x == math.MinInt64 && y == -1 {
				r = 0
			} else {
				r = x % y
			}
		case OpLShl:
			r = x << (uint64(y) & 63)
		case OpLShr:
			r = x >> (uint64(y) & 63)
		case OpLUshr:
			r = int64(uint64(x) >> (uint64(y) & 63))
		case OpLAnd:
			r = x & y
		case OpLOr:
			r = x | y
		case OpLXor:
			r = x ^ y
		}
		it.push(LongVal(r))
	case OpLNeg:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(LongVal(-a.I))

	// ---- Float arithmetic (float32 semantics) ----
	case OpFAdd, OpFSub, OpFMul, OpFDiv, OpFRem:
		b, err := it.pop()
		if err != nil {
			return nil, err
		}
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		x, y := float32(a.F), float32(b.F)
		var r float32
		switch op {
		case OpFAdd:
			r = x + y
		case OpFSub:
			r = x - y
		case OpFMul:
			r = x * y
		case OpFDiv:
			r = x / y
		case OpFRem:
			r = float32(math.Mod(float64(x), float64(y)))
		}
		it.push(FloatVal(r))
	case OpFNeg:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(FloatVal(-float32(a.F)))

	// ---- Double arithmetic ----
	case OpDAdd, OpDSub, OpDMul, OpDDiv, OpDRem:
		b, err := it.pop()
		if err != nil {
			return nil, err
		}
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		var r float64
		switch op {
		case OpDAdd:
			r = a.F + b.F
		case OpDSub:
			r = a.F - b.F
		case OpDMul:
			r = a.F * b.F
		case OpDDiv:
			r = a.F / b.F
		case OpDRem:
			r = math.Mod(a.F, b.F)
		}
		it.push(DoubleVal(r))
	case OpDNeg:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(DoubleVal(-a.F))

	// ---- Conversions ----
	case OpI2L:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(LongVal(int64(int32(a.I))))
	case OpI2F:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(FloatVal(float32(int32(a.I))))
	case OpI2D:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(DoubleVal(float64(int32(a.I))))
	case OpL2I:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(IntVal(int32(a.I)))
	case OpL2F:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(FloatVal(float32(a.I)))
	case OpL2D:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(DoubleVal(float64(a.I)))
	case OpF2I:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(IntVal(f2i(float32(a.F))))
	case OpF2L:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(LongVal(f2l(float64(float32(a.F)))))
	case OpF2D:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(DoubleVal(float64(float32(a.F))))
	case OpD2I:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(IntVal(f2i32(a.F)))
	case OpD2L:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(LongVal(f2l(a.F)))
	case OpD2F:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(FloatVal(float32(a.F)))
	case OpI2B:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(IntVal(int32(int8(a.I))))
	case OpI2C:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(IntVal(int32(uint16(a.I))))
	case OpI2S:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(IntVal(int32(int16(a.I))))

	// ---- Comparisons ----
	case OpLCmp:
		b, err := it.pop()
		if err != nil {
			return nil, err
		}
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(IntVal(cmp64(a.I, b.I)))
	case OpFCmpL, OpFCmpG:
		b, err := it.pop()
		if err != nil {
			return nil, err
		}
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(IntVal(fcmp(float64(float32(a.F)), float64(float32(b.F)), op == OpFCmpG)))
	case OpDCmpL, OpDCmpG:
		b, err := it.pop()
		if err != nil {
			return nil, err
		}
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		it.push(IntVal(fcmp(a.F, b.F, op == OpDCmpG)))

	// ---- Branches ----
	case OpGoto:
		t, err := it.branchTarget(in.A)
		if err != nil {
			return nil, err
		}
		*next = t
	case OpIfEq, OpIfNe, OpIfLt, OpIfGe, OpIfGt, OpIfLe:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		x := int32(a.I)
		var taken bool
		switch op {
		case OpIfEq:
			taken = x == 0
		case OpIfNe:
			taken = x != 0
		case OpIfLt:
			taken = x < 0
		case OpIfGe:
			taken = x >= 0
		case OpIfGt:
			taken = x > 0
		case OpIfLe:
			taken = x <= 0
		}
		if taken {
			t, err := it.branchTarget(in.A)
			if err != nil {
				return nil, err
			}
			*next = t
		}
	case OpIfICmpEq, OpIfICmpNe, OpIfICmpLt, OpIfICmpGe, OpIfICmpGt, OpIfICmpLe:
		b, err := it.pop()
		if err != nil {
			return nil, err
		}
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		x, y := int32(a.I), int32(b.I)
		var taken bool
		switch op {
		case OpIfICmpEq:
			taken = x == y
		case OpIfICmpNe:
			taken = x != y
		case OpIfICmpLt:
			taken = x < y
		case OpIfICmpGe:
			taken = x >= y
		case OpIfICmpGt:
			taken = x > y
		case OpIfICmpLe:
			taken = x <= y
		}
		if taken {
			t, err := it.branchTarget(in.A)
			if err != nil {
				return nil, err
			}
			*next = t
		}
	case OpIfNull, OpIfNonNull:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		if (a.R == nil) == (op == OpIfNull) {
			t, err := it.branchTarget(in.A)
			if err != nil {
				return nil, err
			}
			*next = t
		}
	case OpIfACmpEq, OpIfACmpNe:
		b, err := it.pop()
		if err != nil {
			return nil, err
		}
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		if (a.R == b.R) == (op == OpIfACmpEq) {
			t, err := it.branchTarget(in.A)
			if err != nil {
				return nil, err
			}
			*next = t
		}

	// ---- Switches ----
	case OpTableSwitch:
		if in.A < 0 || in.A >= int64(len(it.prog.TableSw)) {
			return nil, fmt.Errorf("%w: tableswitch %d", ErrBadOperand, in.A)
		}
		rec := it.prog.TableSw[in.A]
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		k := int32(a.I)
		if k < rec.Low || k > rec.High {
			*next = int(rec.Default)
		} else {
			*next = int(rec.Targets[k-rec.Low])
		}
	case OpLookupSwitch:
		if in.A < 0 || in.A >= int64(len(it.prog.LookupSw)) {
			return nil, fmt.Errorf("%w: lookupswitch %d", ErrBadOperand, in.A)
		}
		rec := it.prog.LookupSw[in.A]
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		k := int32(a.I)
		*next = int(rec.Default)
		for i, key := range rec.Keys {
			if key == k {
				*next = int(rec.Targets[i])
				break
			}
			if key > k {
				break
			}
		}

	// ---- Arrays ----
	case OpNewArray:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		n := int32(a.I)
		if n < 0 {
			return throwName("java/lang/NegativeArraySizeException", ""), nil
		}
		it.push(RefVal(newPrimArray(int(in.A), int(n))))
	case OpANewArray:
		cls, err := it.className(in.A)
		if err != nil {
			return nil, err
		}
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		n := int32(a.I)
		if n < 0 {
			return throwName("java/lang/NegativeArraySizeException", ""), nil
		}
		arr := &Object{Class: "[L" + cls + ";", Elems: make([]Value, n), Elem: KRef}
		for i := range arr.Elems {
			arr.Elems[i] = RefVal(nil)
		}
		it.push(RefVal(arr))
	case OpMultiANewArray:
		if in.A < 0 || in.A >= int64(len(it.prog.MultiArr)) {
			return nil, fmt.Errorf("%w: multianewarray %d", ErrBadOperand, in.A)
		}
		rec := it.prog.MultiArr[in.A]
		dims := make([]int32, rec.Dims)
		for i := int(rec.Dims) - 1; i >= 0; i-- {
			v, err := it.pop()
			if err != nil {
				return nil, err
			}
			dims[i] = int32(v.I)
			if dims[i] < 0 {
				return throwName("java/lang/NegativeArraySizeException", ""), nil
			}
		}
		it.push(RefVal(newMultiArray(rec.Desc, dims)))
	case OpArrayLength:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		if a.R == nil {
			return throwName("java/lang/NullPointerException", ""), nil
		}
		it.push(IntVal(int32(len(a.R.Elems))))
	case OpIALoad, OpLALoad, OpFALoad, OpDALoad, OpAALoad, OpBALoad, OpCALoad, OpSALoad:
		idx, err := it.pop()
		if err != nil {
			return nil, err
		}
		arr, err := it.pop()
		if err != nil {
			return nil, err
		}
		if arr.R == nil {
			return throwName("java/lang/NullPointerException", ""), nil
		}
		i := int32(idx.I)
		if i < 0 || int(i) >= len(arr.R.Elems) {
			return throwName("java/lang/ArrayIndexOutOfBoundsException",
				fmt.Sprintf("Index %d out of bounds for length %d", i, len(arr.R.Elems))), nil
		}
		it.push(arr.R.Elems[i])
	case OpIAStore, OpLAStore, OpFAStore, OpDAStore, OpAAStore, OpBAStore, OpCAStore, OpSAStore:
		v, err := it.pop()
		if err != nil {
			return nil, err
		}
		idx, err := it.pop()
		if err != nil {
			return nil, err
		}
		arr, err := it.pop()
		if err != nil {
			return nil, err
		}
		if arr.R == nil {
			return throwName("java/lang/NullPointerException", ""), nil
		}
		i := int32(idx.I)
		if i < 0 || int(i) >= len(arr.R.Elems) {
			return throwName("java/lang/ArrayIndexOutOfBoundsException",
				fmt.Sprintf("Index %d out of bounds for length %d", i, len(arr.R.Elems))), nil
		}
		switch op {
		case OpBAStore:
			v = IntVal(int32(int8(v.I)))
		case OpCAStore:
			v = IntVal(int32(uint16(v.I)))
		case OpSAStore:
			v = IntVal(int32(int16(v.I)))
		}
		arr.R.Elems[i] = v

	// ---- Fields ----
	case OpGetStatic, OpPutStatic, OpGetField, OpPutField:
		if in.A < 0 || in.A >= int64(len(it.prog.Fields)) {
			return nil, fmt.Errorf("%w: field %d", ErrBadOperand, in.A)
		}
		ref := it.prog.Fields[in.A]
		switch op {
		case OpGetStatic:
			v, ex, err := it.env.GetStatic(ref)
			if err != nil || ex != nil {
				return ex, err
			}
			it.push(v)
		case OpPutStatic:
			v, err := it.pop()
			if err != nil {
				return nil, err
			}
			ex, err := it.env.PutStatic(ref, v)
			if err != nil || ex != nil {
				return ex, err
			}
		case OpGetField:
			o, err := it.pop()
			if err != nil {
				return nil, err
			}
			if o.R == nil {
				return throwName("java/lang/NullPointerException", ref.Name), nil
			}
			v, ex, err := it.env.GetField(o.R, ref)
			if err != nil || ex != nil {
				return ex, err
			}
			it.push(v)
		case OpPutField:
			v, err := it.pop()
			if err != nil {
				return nil, err
			}
			o, err := it.pop()
			if err != nil {
				return nil, err
			}
			if o.R == nil {
				return throwName("java/lang/NullPointerException", ref.Name), nil
			}
			ex, err := it.env.PutField(o.R, ref, v)
			if err != nil || ex != nil {
				return ex, err
			}
		}

	// ---- Invocation ----
	case OpInvokeVirtual, OpInvokeSpecial, OpInvokeInterface, OpInvokeStatic:
		if in.A < 0 || in.A >= int64(len(it.prog.Methods)) {
			return nil, fmt.Errorf("%w: method %d", ErrBadOperand, in.A)
		}
		ref := it.prog.Methods[in.A]
		args, ex, err := it.popArgs(ref, op != OpInvokeStatic)
		if err != nil || ex != nil {
			return ex, err
		}
		ret, ex, err := it.env.Invoke(op, ref, args)
		if err != nil || ex != nil {
			return ex, err
		}
		if hasReturn(ref.Desc) {
			it.push(ret)
		}
	case OpInvokeDynamic:
		if in.A < 0 || in.A >= int64(len(it.prog.Bootstraps)) {
			return nil, fmt.Errorf("%w: bootstrap %d", ErrBadOperand, in.A)
		}
		site := it.prog.Bootstraps[in.A]
		args, ex, err := it.popArgs(MemberRef{Desc: site.Desc}, false)
		if err != nil || ex != nil {
			return ex, err
		}
		ret, ex, err := it.env.InvokeDynamic(site, args)
		if err != nil || ex != nil {
			return ex, err
		}
		if hasReturn(site.Desc) {
			it.push(ret)
		}

	// ---- Allocation and type checks ----
	case OpNew:
		cls, err := it.className(in.A)
		if err != nil {
			return nil, err
		}
		o, ex, err := it.env.NewInstance(cls)
		if err != nil || ex != nil {
			return ex, err
		}
		it.push(RefVal(o))
	case OpCheckCast:
		cls, err := it.className(in.A)
		if err != nil {
			return nil, err
		}
		a, err := it.peek(0)
		if err != nil {
			return nil, err
		}
		if a.R != nil && !it.env.IsInstance(a.R, cls) {
			return throwName("java/lang/ClassCastException", a.R.Class+" -> "+cls), nil
		}
	case OpInstanceOf:
		cls, err := it.className(in.A)
		if err != nil {
			return nil, err
		}
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		r := int32(0)
		if a.R != nil && it.env.IsInstance(a.R, cls) {
			r = 1
		}
		it.push(IntVal(r))

	// ---- Monitors ----
	case OpMonitorEnter:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		if a.R == nil {
			return throwName("java/lang/NullPointerException", ""), nil
		}
		a.R.monitor++
		it.entered = append(it.entered, a.R)
	case OpMonitorExit:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		if a.R == nil {
			return throwName("java/lang/NullPointerException", ""), nil
		}
		if a.R.monitor <= 0 {
			return nil, ErrMonitorState
		}
		a.R.monitor--
		for i := len(it.entered) - 1; i >= 0; i-- {
			if it.entered[i] == a.R {
				it.entered = append(it.entered[:i], it.entered[i+1:]...)
				break
			}
		}

	// ---- Exceptions ----
	case OpAThrow:
		a, err := it.pop()
		if err != nil {
			return nil, err
		}
		if a.R == nil {
			return throwName("java/lang/NullPointerException", ""), nil
		}
		return a.R, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrBadOpcode, in.Op)
	}
	return nil, nil
}

func (it *Interp) className(a int64) (string, error) {
	if a < 0 || a >= int64(len(it.prog.Classes)) {
		return "", fmt.Errorf("%w: class %d", ErrBadOperand, a)
	}
	return it.prog.Classes[a], nil
}

// popArgs pops call arguments in declaration order (receiver first when
// withRecv). Null receivers throw before the host is consulted.
func (it *Interp) popArgs(ref MemberRef, withRecv bool) ([]Value, *Object, error) {
	slots := argCount(ref.Desc)
	n := slots
	if withRecv {
		n++
	}
	args := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		v, err := it.pop()
		if err != nil {
			return nil, nil, err
		}
		args[i] = v
	}
	if withRecv && args[0].R == nil {
		return nil, throwName("java/lang/NullPointerException", ref.Name), nil
	}
	return args, nil, nil
}

// argCount counts micro-VM argument slots (category 2 values use one slot).
func argCount(desc string) int {
	n := 0
	for i := 1; i < len(desc) && desc[i] != ')'; {
		switch desc[i] {
		case 'L':
			for desc[i] != ';' {
				i++
			}
			i++
		case '[':
			i++
			continue
		default:
			i++
		}
		n++
	}
	return n
}

func hasReturn(desc string) bool {
	return desc[len(desc)-1] != 'V'
}

func newPrimArray(typeCode, n int) *Object {
	kind := KInt
	desc := "?"
	switch typeCode {
	case 4:
		desc = "[Z"
	case 5:
		desc = "[C"
	case 6:
		kind, desc = KFloat, "[F"
	case 7:
		kind, desc = KDouble, "[D"
	case 8:
		desc = "[B"
	case 9:
		desc = "[S"
	case 10:
		desc = "[I"
	case 11:
		kind, desc = KLong, "[J"
	}
	arr := &Object{Class: desc, Elems: make([]Value, n), Elem: kind}
	for i := range arr.Elems {
		arr.Elems[i] = Value{Kind: kind}
	}
	return arr
}

func newMultiArray(desc string, dims []int32) *Object {
	n := int(dims[0])
	arr := &Object{Class: desc, Elems: make([]Value, n), Elem: KRef}
	if len(dims) == 1 {
		// Leaf dimension: element kind follows the descriptor tail.
		kind := KRef
		switch desc[1] {
		case 'Z', 'B', 'C', 'S', 'I':
			kind = KInt
		case 'J':
			kind = KLong
		case 'F':
			kind = KFloat
		case 'D':
			kind = KDouble
		}
		arr.Elem = kind
		for i := range arr.Elems {
			arr.Elems[i] = Value{Kind: kind}
		}
		return arr
	}
	for i := 0; i < n; i++ {
		arr.Elems[i] = RefVal(newMultiArray(desc[1:], dims[1:]))
	}
	return arr
}

func cmp64(a, b int64) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// fcmp implements the JVM float comparison: the G variant pushes +1 on NaN,
// the L variant -1.
func fcmp(a, b float64, gVariant bool) int32 {
	if math.IsNaN(a) || math.IsNaN(b) {
		if gVariant {
			return 1
		}
		return -1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// f2i implements the saturating float-to-int conversion.
func f2i(f float32) int32 { return f2i32(float64(f)) }

func f2i32(f float64) int32 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

func f2l(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}
