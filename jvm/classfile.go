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
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Class-file reader: byte arrays in, instruction trees out. Bytecode offsets
// become Label pseudo-instructions so the rest of the pipeline never sees a
// raw offset. Only the attributes the compiler consumes are decoded; the
// rest are skipped.

// ErrNotClassFile is returned when the magic number is wrong.
var ErrNotClassFile = errors.New("jvm: not a class file")

// ErrMalformedClass wraps structural parse failures.
var ErrMalformedClass = errors.New("jvm: malformed class file")

const classMagic = 0xCAFEBABE

// cpInfo is one constant-pool entry in raw form.
type cpInfo struct {
	tag  uint8
	u16a uint16
	u16b uint16
	i64  int64
	f64  float64
	str  string
}

// Constant-pool tags (JVMS §4.4).
const (
	cpUtf8               = 1
	cpInteger            = 3
	cpFloat              = 4
	cpLong               = 5
	cpDouble             = 6
	cpClass              = 7
	cpString             = 8
	cpFieldref           = 9
	cpMethodref          = 10
	cpInterfaceMethodref = 11
	cpNameAndType        = 12
	cpMethodHandle       = 15
	cpMethodType         = 16
	cpDynamic            = 17
	cpInvokeDynamic      = 18
	cpModule             = 19
	cpPackage            = 20
)

type cfReader struct {
	data []byte
	off  int
	cp   []cpInfo
}

func (r *cfReader) u1() uint8 {
	v := r.data[r.off]
	r.off++
	return v
}

func (r *cfReader) u2() uint16 {
	v := binary.BigEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *cfReader) u4() uint32 {
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *cfReader) bytes(n int) []byte {
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *cfReader) utf8(idx uint16) string {
	if int(idx) < len(r.cp) {
		return r.cp[idx].str
	}
	return ""
}

func (r *cfReader) classNameAt(idx uint16) string {
	if int(idx) < len(r.cp) {
		return r.utf8(r.cp[idx].u16a)
	}
	return ""
}

func (r *cfReader) nameAndType(idx uint16) (name, desc string) {
	if int(idx) < len(r.cp) {
		nt := r.cp[idx]
		return r.utf8(nt.u16a), r.utf8(nt.u16b)
	}
	return "", ""
}

func (r *cfReader) memberRef(idx uint16) (owner, name, desc string) {
	if int(idx) < len(r.cp) {
		ref := r.cp[idx]
		owner = r.classNameAt(ref.u16a)
		name, desc = r.nameAndType(ref.u16b)
	}
	return
}

// ParseClass decodes a class file into the instruction-tree model.
func ParseClass(data []byte) (cls *Class, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			cls, err = nil, fmt.Errorf("%w: %v", ErrMalformedClass, rec)
		}
	}()
	r := &cfReader{data: data}
	if r.u4() != classMagic {
		return nil, ErrNotClassFile
	}
	minor := r.u2()
	major := r.u2()
	_ = minor

	cpCount := int(r.u2())
	r.cp = make([]cpInfo, cpCount)
	for i := 1; i < cpCount; i++ {
		tag := r.u1()
		e := cpInfo{tag: tag}
		switch tag {
		case cpUtf8:
			n := int(r.u2())
			e.str = string(r.bytes(n))
		case cpInteger:
			e.i64 = int64(int32(r.u4()))
		case cpFloat:
			e.f64 = float64(math.Float32frombits(r.u4()))
		case cpLong:
			e.i64 = int64(uint64(r.u4())<<32 | uint64(r.u4()))
		case cpDouble:
			e.f64 = math.Float64frombits(uint64(r.u4())<<32 | uint64(r.u4()))
		case cpClass, cpString, cpMethodType, cpModule, cpPackage:
			e.u16a = r.u2()
		case cpMethodHandle:
			r.u1()
			e.u16a = r.u2()
		default: // refs, name-and-type, dynamics
			e.u16a = r.u2()
			e.u16b = r.u2()
		}
		r.cp[i] = e
		if tag == cpLong || tag == cpDouble {
			i++ // wide entries take two slots
		}
	}

	cls = &Class{Version: int(major)}
	cls.Access = int(r.u2())
	cls.Name = r.classNameAt(r.u2())
	cls.SuperName = r.classNameAt(r.u2())
	for n := int(r.u2()); n > 0; n-- {
		r.u2() // interfaces: names are not needed downstream
	}
	for n := int(r.u2()); n > 0; n-- {
		f := &Field{Access: int(r.u2()), Name: r.utf8(r.u2()), Desc: r.utf8(r.u2())}
		skipAttributes(r)
		cls.Fields = append(cls.Fields, f)
	}
	for n := int(r.u2()); n > 0; n-- {
		m, err := r.parseMethod()
		if err != nil {
			return nil, err
		}
		cls.Methods = append(cls.Methods, m)
	}
	return cls, nil
}

func skipAttributes(r *cfReader) {
	for n := int(r.u2()); n > 0; n-- {
		r.u2()
		r.bytes(int(r.u4()))
	}
}

func (r *cfReader) parseMethod() (*Method, error) {
	m := &Method{
		Access: int(r.u2()),
		Name:   r.utf8(r.u2()),
		Desc:   r.utf8(r.u2()),
	}
	for n := int(r.u2()); n > 0; n-- {
		name := r.utf8(r.u2())
		length := int(r.u4())
		end := r.off + length
		if name == "Code" {
			if err := r.parseCode(m); err != nil {
				return nil, err
			}
		}
		r.off = end
	}
	return m, nil
}

// parseCode decodes the Code attribute: bytecode, exception table, and the
// LocalVariableTable sub-attribute.
func (r *cfReader) parseCode(m *Method) error {
	m.MaxStack = int(r.u2())
	m.MaxLocals = int(r.u2())
	codeLen := int(r.u4())
	code := r.bytes(codeLen)

	labels := make(map[int]*Label)
	labelAt := func(off int) *Label {
		if l, ok := labels[off]; ok {
			return l
		}
		l := NewLabel()
		labels[off] = l
		return l
	}

	insns, err := r.decodeBytecode(code, labelAt)
	if err != nil {
		return err
	}

	for n := int(r.u2()); n > 0; n-- {
		start := int(r.u2())
		endPC := int(r.u2())
		handler := int(r.u2())
		typeIdx := r.u2()
		tc := &TryCatch{
			Start:   labelAt(start),
			End:     labelAt(endPC),
			Handler: labelAt(handler),
		}
		if typeIdx != 0 {
			tc.Type = r.classNameAt(typeIdx)
		}
		m.TryCatch = append(m.TryCatch, tc)
	}

	for n := int(r.u2()); n > 0; n-- {
		name := r.utf8(r.u2())
		length := int(r.u4())
		end := r.off + length
		if name == "LocalVariableTable" {
			for c := int(r.u2()); c > 0; c-- {
				start := int(r.u2())
				span := int(r.u2())
				lv := &LocalVar{
					Name:  r.utf8(r.u2()),
					Desc:  r.utf8(r.u2()),
					Start: labelAt(start),
					End:   labelAt(start + span),
					Slot:  int(r.u2()),
				}
				m.LocalVars = append(m.LocalVars, lv)
			}
		}
		r.off = end
	}

	// Interleave label markers with decoded instructions by offset.
	m.Code = weaveLabels(insns, labels)
	return nil
}

type offsetInsn struct {
	off int
	in  *Insn
}

func weaveLabels(insns []offsetInsn, labels map[int]*Label) []*Insn {
	out := make([]*Insn, 0, len(insns)+len(labels))
	for _, oi := range insns {
		if l, ok := labels[oi.off]; ok {
			out = append(out, &Insn{Op: OpLabelMark, Pos: l})
			delete(labels, oi.off)
		}
		out = append(out, oi.in)
	}
	// Labels at the code end (exception range ends) trail the last insn.
	for _, l := range labels {
		out = append(out, &Insn{Op: OpLabelMark, Pos: l})
	}
	return out
}

// decodeBytecode walks the raw code array once, materialising one Insn per
// instruction and labels for every branch target.
func (r *cfReader) decodeBytecode(code []byte, labelAt func(int) *Label) ([]offsetInsn, error) {
	var out []offsetInsn
	pc := 0
	for pc < len(code) {
		start := pc
		op := Opcode(code[pc])
		pc++
		in := &Insn{Op: op}

		switch {
		case op <= OpDconst1 || (op >= OpIaload && op <= OpSaload) ||
			(op >= OpIastore && op <= OpSastore) ||
			(op >= OpPop && op <= OpLxor) ||
			(op >= OpI2l && op <= OpDcmpg) ||
			op.IsReturn() || op == OpArraylength || op == OpAthrow ||
			op == OpMonitorenter || op == OpMonitorexit:
			// no operands

		case op == OpBipush:
			in.Val = int32(int8(code[pc]))
			pc++
		case op == OpSipush:
			in.Val = int32(int16(binary.BigEndian.Uint16(code[pc:])))
			pc += 2

		case op == OpLdc:
			in.Cst = r.loadableConst(uint16(code[pc]))
			pc++
		case op == OpLdcW || op == OpLdc2W:
			in.Cst = r.loadableConst(binary.BigEndian.Uint16(code[pc:]))
			pc += 2

		case op >= OpIload && op <= OpAload:
			in.Var = int(code[pc])
			pc++
		case op >= 0x1a && op <= 0x2d: // iload_0 .. aload_3
			base := int(op) - 0x1a
			in.Op = OpIload + Opcode(base/4)
			in.Var = base % 4
		case op >= OpIstore && op <= OpAstore:
			in.Var = int(code[pc])
			pc++
		case op >= 0x3b && op <= 0x4e: // istore_0 .. astore_3
			base := int(op) - 0x3b
			in.Op = OpIstore + Opcode(base/4)
			in.Var = base % 4

		case op == OpIinc:
			in.Var = int(code[pc])
			in.Val = int32(int8(code[pc+1]))
			pc += 2

		case op.IsBranch() && op != OpGotoW && op != OpJsrW:
			delta := int(int16(binary.BigEndian.Uint16(code[pc:])))
			pc += 2
			in.Target = labelAt(start + delta)
		case op == OpGotoW || op == OpJsrW:
			delta := int(int32(binary.BigEndian.Uint32(code[pc:])))
			pc += 4
			in.Target = labelAt(start + delta)

		case op == OpTableswitch:
			pc = (pc + 3) &^ 3
			dflt := int(int32(binary.BigEndian.Uint32(code[pc:])))
			low := int32(binary.BigEndian.Uint32(code[pc+4:]))
			high := int32(binary.BigEndian.Uint32(code[pc+8:]))
			pc += 12
			in.Dflt = labelAt(start + dflt)
			in.Low, in.High = low, high
			for k := low; k <= high; k++ {
				delta := int(int32(binary.BigEndian.Uint32(code[pc:])))
				pc += 4
				in.Targets = append(in.Targets, labelAt(start+delta))
			}
		case op == OpLookupswitch:
			pc = (pc + 3) &^ 3
			dflt := int(int32(binary.BigEndian.Uint32(code[pc:])))
			npairs := int(int32(binary.BigEndian.Uint32(code[pc+4:])))
			pc += 8
			in.Dflt = labelAt(start + dflt)
			for k := 0; k < npairs; k++ {
				key := int32(binary.BigEndian.Uint32(code[pc:]))
				delta := int(int32(binary.BigEndian.Uint32(code[pc+4:])))
				pc += 8
				in.Keys = append(in.Keys, key)
				in.Targets = append(in.Targets, labelAt(start+delta))
			}

		case op >= OpGetstatic && op <= OpInvokeinterface:
			idx := binary.BigEndian.Uint16(code[pc:])
			pc += 2
			in.Owner, in.Name, in.Desc = r.memberRef(idx)
			if op == OpInvokeinterface {
				in.Itf = true
				pc += 2 // count + zero byte
			}
		case op == OpInvokedynamic:
			idx := binary.BigEndian.Uint16(code[pc:])
			pc += 4 // two zero bytes follow
			if int(idx) < len(r.cp) {
				indy := r.cp[idx]
				in.Name, in.Desc = r.nameAndType(indy.u16b)
				// Bootstrap method details live in the BootstrapMethods
				// attribute; the index is recorded as a marker in BootName.
				in.BootName = fmt.Sprintf("bsm#%d", indy.u16a)
			}

		case op == OpNew || op == OpAnewarray || op == OpCheckcast || op == OpInstanceof:
			in.Owner = r.classNameAt(binary.BigEndian.Uint16(code[pc:]))
			pc += 2
		case op == OpNewarray:
			in.Val = int32(code[pc])
			pc++
		case op == OpMultianewarray:
			name := r.classNameAt(binary.BigEndian.Uint16(code[pc:]))
			in.Desc = name
			in.Dims = int(code[pc+2])
			pc += 3

		case op == OpRet:
			in.Var = int(code[pc])
			pc++
		case op == OpWide:
			wop := Opcode(code[pc])
			pc++
			in.Op = wop
			in.Var = int(binary.BigEndian.Uint16(code[pc:]))
			pc += 2
			if wop == OpIinc {
				in.Val = int32(int16(binary.BigEndian.Uint16(code[pc:])))
				pc += 2
			}

		default:
			return nil, fmt.Errorf("%w: opcode 0x%02x at %d", ErrMalformedClass, uint8(op), start)
		}
		out = append(out, offsetInsn{off: start, in: in})
	}
	return out, nil
}

func (r *cfReader) loadableConst(idx uint16) Const {
	if int(idx) >= len(r.cp) {
		return Const{}
	}
	e := r.cp[idx]
	switch e.tag {
	case cpInteger:
		return Const{Tag: ConstInt, I: e.i64}
	case cpLong:
		return Const{Tag: ConstLong, I: e.i64}
	case cpFloat:
		return Const{Tag: ConstFloat, F: e.f64}
	case cpDouble:
		return Const{Tag: ConstDouble, F: e.f64}
	case cpString:
		return Const{Tag: ConstString, S: r.utf8(e.u16a)}
	case cpClass:
		return Const{Tag: ConstClass, S: r.utf8(e.u16a)}
	}
	return Const{}
}
