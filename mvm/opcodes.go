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

// Package mvm defines the micro-VM a protected method is lowered to: the
// instruction set, the per-method side tables, the wire format the native
// runtime decodes, and a reference interpreter used as the test oracle for
// the translator.
//
// Instructions are a flat `(opcode:u16, operand:i64)` stream. Values of
// category 2 (long, double) occupy a single 64-bit stack slot; the stack
// manipulation opcodes therefore come in slot-count variants and the
// translator picks the variant from the bytecode-level slot categories.
package mvm

import "strconv"

// Opcode is a micro-VM instruction code.
type Opcode uint16

// WideBit marks the wide variant of a branch opcode whose target index does
// not fit the narrow 16-bit signed encoding. The interpreter and the native
// runtime mask it off before dispatch.
const WideBit Opcode = 0x8000

const (
	OpHalt Opcode = iota

	// ---- Constants ---------------------------------------------------------

	// OpPush pushes the operand sign-extended from its low 32 bits.
	OpPush
	// OpPushL pushes the full 64-bit operand as a long.
	OpPushL
	// OpLdc pushes the category-1 pool entry at index operand.
	OpLdc
	// OpLdc2 pushes the category-2 pool entry at index operand.
	OpLdc2
	// OpAconstNull pushes the null reference.
	OpAconstNull

	// ---- Locals ------------------------------------------------------------

	OpILoad
	OpLLoad
	OpFLoad
	OpDLoad
	OpALoad
	OpIStore
	OpLStore
	OpFStore
	OpDStore
	OpAStore
	// OpIInc packs the slot in the high word of the operand and the
	// sign-extended delta in the low word.
	OpIInc

	// ---- Array access ------------------------------------------------------

	OpIALoad
	OpLALoad
	OpFALoad
	OpDALoad
	OpAALoad
	OpBALoad
	OpCALoad
	OpSALoad
	OpIAStore
	OpLAStore
	OpFAStore
	OpDAStore
	OpAAStore
	OpBAStore
	OpCAStore
	OpSAStore
	OpArrayLength

	// ---- Stack manipulation (slot-count semantics) ------------------------

	OpPop
	OpPop2
	OpDup
	OpDupX1
	OpDupX2
	OpDup2
	OpDup2X1
	OpDup2X2
	OpSwap

	// ---- Integer arithmetic ------------------------------------------------

	OpIAdd
	OpISub
	OpIMul
	OpIDiv
	OpIRem
	OpINeg
	OpIShl
	OpIShr
	OpIUshr
	OpIAnd
	OpIOr
	OpIXor

	// ---- Long arithmetic ---------------------------------------------------

	OpLAdd
	OpLSub
	OpLMul
	OpLDiv
	OpLRem
	OpLNeg
	OpLShl
	OpLShr
	OpLUshr
	OpLAnd
	OpLOr
	OpLXor

	// ---- Float/double arithmetic ------------------------------------------

	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpFRem
	OpFNeg
	OpDAdd
	OpDSub
	OpDMul
	OpDDiv
	OpDRem
	OpDNeg

	// ---- Conversions -------------------------------------------------------

	OpI2L
	OpI2F
	OpI2D
	OpL2I
	OpL2F
	OpL2D
	OpF2I
	OpF2L
	OpF2D
	OpD2I
	OpD2L
	OpD2F
	OpI2B
	OpI2C
	OpI2S

	// ---- Comparisons -------------------------------------------------------

	// OpLCmp pushes -1/0/1. The L-variant float comparisons push -1 on NaN,
	// the G-variants push +1.
	OpLCmp
	OpFCmpL
	OpFCmpG
	OpDCmpL
	OpDCmpG

	// ---- Branches (operand = target instruction index) ---------------------

	OpGoto
	OpIfEq
	OpIfNe
	OpIfLt
	OpIfGe
	OpIfGt
	OpIfLe
	OpIfICmpEq
	OpIfICmpNe
	OpIfICmpLt
	OpIfICmpGe
	OpIfICmpGt
	OpIfICmpLe
	OpIfNull
	OpIfNonNull
	OpIfACmpEq
	OpIfACmpNe

	// ---- Switches (operand = side-table record index) ----------------------

	OpTableSwitch
	OpLookupSwitch

	// ---- Field access (operand = member-table index) -----------------------

	OpGetStatic
	OpPutStatic
	OpGetField
	OpPutField

	// ---- Invocation (operand = member-table index) -------------------------

	OpInvokeVirtual
	OpInvokeSpecial
	OpInvokeInterface
	OpInvokeStatic
	// OpInvokeDynamic's operand indexes the bootstrap table.
	OpInvokeDynamic

	// ---- Allocation --------------------------------------------------------

	OpNew
	// OpNewArray's operand is the NEWARRAY primitive type code.
	OpNewArray
	OpANewArray
	// OpMultiANewArray's operand indexes the multi-array table.
	OpMultiANewArray

	// ---- Type checks (operand = class-table index) -------------------------

	OpCheckCast
	OpInstanceOf

	// ---- Monitors ----------------------------------------------------------

	OpMonitorEnter
	OpMonitorExit

	// ---- Exceptions --------------------------------------------------------

	OpAThrow
	// OpTryEnter/OpTryLeave bracket a handler region for the native runtime;
	// the operand indexes the handler table. Structural no-ops for the
	// reference interpreter, which dispatches on pc ranges.
	OpTryEnter
	OpTryLeave

	opMax
)

var opcodeNames = [...]string{
	OpHalt: "HALT",
	OpPush: "PUSH", OpPushL: "PUSH_L", OpLdc: "LDC", OpLdc2: "LDC2",
	OpAconstNull: "ACONST_NULL",
	OpILoad: "ILOAD", OpLLoad: "LLOAD", OpFLoad: "FLOAD", OpDLoad: "DLOAD",
	OpALoad: "ALOAD", OpIStore: "ISTORE", OpLStore: "LSTORE",
	OpFStore: "FSTORE", OpDStore: "DSTORE", OpAStore: "ASTORE", OpIInc: "IINC",
	OpIALoad: "IALOAD", OpLALoad: "LALOAD", OpFALoad: "FALOAD",
	OpDALoad: "DALOAD", OpAALoad: "AALOAD", OpBALoad: "BALOAD",
	OpCALoad: "CALOAD", OpSALoad: "SALOAD",
	OpIAStore: "IASTORE", OpLAStore: "LASTORE", OpFAStore: "FASTORE",
	OpDAStore: "DASTORE", OpAAStore: "AASTORE", OpBAStore: "BASTORE",
	OpCAStore: "CASTORE", OpSAStore: "SASTORE", OpArrayLength: "ARRAYLENGTH",
	OpPop: "POP", OpPop2: "POP2", OpDup: "DUP", OpDupX1: "DUP_X1",
	OpDupX2: "DUP_X2", OpDup2: "DUP2", OpDup2X1: "DUP2_X1",
	OpDup2X2: "DUP2_X2", OpSwap: "SWAP",
	OpIAdd: "IADD", OpISub: "ISUB", OpIMul: "IMUL", OpIDiv: "IDIV",
	OpIRem: "IREM", OpINeg: "INEG", OpIShl: "ISHL", OpIShr: "ISHR",
	OpIUshr: "IUSHR", OpIAnd: "IAND", OpIOr: "IOR", OpIXor: "IXOR",
	OpLAdd: "LADD", OpLSub: "LSUB", OpLMul: "LMUL", OpLDiv: "LDIV",
	OpLRem: "LREM", OpLNeg: "LNEG", OpLShl: "LSHL", OpLShr: "LSHR",
	OpLUshr: "LUSHR", OpLAnd: "LAND", OpLOr: "LOR", OpLXor: "LXOR",
	OpFAdd: "FADD", OpFSub: "FSUB", OpFMul: "FMUL", OpFDiv: "FDIV",
	OpFRem: "FREM", OpFNeg: "FNEG",
	OpDAdd: "DADD", OpDSub: "DSUB", OpDMul: "DMUL", OpDDiv: "DDIV",
	OpDRem: "DREM", OpDNeg: "DNEG",
	OpI2L: "I2L", OpI2F: "I2F", OpI2D: "I2D", OpL2I: "L2I", OpL2F: "L2F",
	OpL2D: "L2D", OpF2I: "F2I", OpF2L: "F2L", OpF2D: "F2D", OpD2I: "D2I",
	OpD2L: "D2L", OpD2F: "D2F", OpI2B: "I2B", OpI2C: "I2C", OpI2S: "I2S",
	OpLCmp: "LCMP", OpFCmpL: "FCMPL", OpFCmpG: "FCMPG",
	OpDCmpL: "DCMPL", OpDCmpG: "DCMPG",
	OpGoto: "GOTO", OpIfEq: "IFEQ", OpIfNe: "IFNE", OpIfLt: "IFLT",
	OpIfGe: "IFGE", OpIfGt: "IFGT", OpIfLe: "IFLE",
	OpIfICmpEq: "IF_ICMPEQ", OpIfICmpNe: "IF_ICMPNE", OpIfICmpLt: "IF_ICMPLT",
	OpIfICmpGe: "IF_ICMPGE", OpIfICmpGt: "IF_ICMPGT", OpIfICmpLe: "IF_ICMPLE",
	OpIfNull: "IFNULL", OpIfNonNull: "IFNONNULL",
	OpIfACmpEq: "IF_ACMPEQ", OpIfACmpNe: "IF_ACMPNE",
	OpTableSwitch: "TABLESWITCH", OpLookupSwitch: "LOOKUPSWITCH",
	OpGetStatic: "GETSTATIC", OpPutStatic: "PUTSTATIC",
	OpGetField: "GETFIELD", OpPutField: "PUTFIELD",
	OpInvokeVirtual: "INVOKEVIRTUAL", OpInvokeSpecial: "INVOKESPECIAL",
	OpInvokeInterface: "INVOKEINTERFACE", OpInvokeStatic: "INVOKESTATIC",
	OpInvokeDynamic: "INVOKEDYNAMIC",
	OpNew: "NEW", OpNewArray: "NEWARRAY", OpANewArray: "ANEWARRAY",
	OpMultiANewArray: "MULTIANEWARRAY",
	OpCheckCast: "CHECKCAST", OpInstanceOf: "INSTANCEOF",
	OpMonitorEnter: "MONITORENTER", OpMonitorExit: "MONITOREXIT",
	OpAThrow: "ATHROW", OpTryEnter: "TRYENTER", OpTryLeave: "TRYLEAVE",
}

// Base strips the wide marker.
func (op Opcode) Base() Opcode { return op &^ WideBit }

// Wide reports whether the wide marker is set.
func (op Opcode) Wide() bool { return op&WideBit != 0 }

func (op Opcode) String() string {
	base := op.Base()
	if int(base) < len(opcodeNames) && opcodeNames[base] != "" {
		if op.Wide() {
			return opcodeNames[base] + "_W"
		}
		return opcodeNames[base]
	}
	return "INVALID"
}

// IsBranch reports whether the operand of op is a target instruction index.
func (op Opcode) IsBranch() bool {
	b := op.Base()
	return b >= OpGoto && b <= OpIfACmpNe
}

// Inst is one micro-VM instruction: the `(opcode, operand)` tuple of the
// program stream. Branch operands are instruction indices after fixup.
type Inst struct {
	Op Opcode
	A  int64
}

func (in Inst) String() string {
	return in.Op.String() + " " + strconv.FormatInt(in.A, 10)
}
