// Completion: 100% - Encoder core complete
package main

import (
	"fmt"
	"os"
)

// Asm encodes x86-64 instructions into a text buffer. One Asm exists per
// compilation context; positions into the buffer are plain offsets, valid
// across appends.
//
// Encoding rule: a REX prefix is written when the operation is 64-bit wide
// (REX.W) or when any referenced register is one of r8-r15 (REX.R/X/B).
// Every emitting method has an exact twin in PredictSize; callers reserve
// space and compute backpatch math from the prediction, so the two must
// never disagree.

type Asm struct {
	text *Buffer
}

func NewAsm(buf *Buffer) *Asm {
	return &Asm{text: buf}
}

// Pos returns the current text offset (the instruction-pointer cursor).
func (a *Asm) Pos() int {
	return a.text.Len()
}

func (a *Asm) trace(format string, args ...interface{}) {
	if VerboseMode {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// rexByte composes a REX prefix. Returns the byte and whether it carries
// any information worth emitting.
func rexByte(wide bool, reg, index, base uint8) (byte, bool) {
	rex := byte(0x40)
	if wide {
		rex |= 0x08 // REX.W
	}
	if reg >= 8 {
		rex |= 0x04 // REX.R
	}
	if index >= 8 {
		rex |= 0x02 // REX.X
	}
	if base >= 8 {
		rex |= 0x01 // REX.B
	}
	return rex, rex != 0x40
}

func modRMByte(mod byte, reg, rm uint8) byte {
	return mod<<6 | (reg&7)<<3 | rm&7
}

// emitRM writes REX + opcode + ModR/M (+SIB, +displacement) for an
// instruction whose r/m slot is rm and whose reg slot is regField. rm is
// either a direct register or a memory operand; the precomputed encoding
// bytes are recorded back onto the operand.
func (a *Asm) emitRM(opcode []byte, regField uint8, rm *Operand, wide bool) {
	var index uint8
	if rm.HasIndex {
		index = rm.Index.Encoding
	}
	rex, need := rexByte(wide, regField, index, rm.Reg.Encoding)
	if need {
		rm.RexBits = rex
		a.text.WriteU8(rex)
	}
	a.text.WriteBytes(opcode)

	switch rm.Kind {
	case OperandRegister:
		rm.Mode = ModeDirect
		rm.ModRM = modRMByte(3, regField, rm.Reg.Encoding)
		a.text.WriteU8(rm.ModRM)
	case OperandMemory:
		rm.Mode = rm.memMode()
		mod := byte(0)
		switch rm.Mode {
		case ModeDisp8:
			mod = 1
		case ModeDisp32:
			mod = 2
		}
		if rm.needsSIB() {
			rm.ModRM = modRMByte(mod, regField, 4)
			scaleBits := byte(0)
			switch rm.Scale {
			case 2:
				scaleBits = 1
			case 4:
				scaleBits = 2
			case 8:
				scaleBits = 3
			}
			idx := uint8(4) // no index
			if rm.HasIndex {
				idx = rm.Index.Encoding
			}
			rm.SIB = scaleBits<<6 | (idx&7)<<3 | rm.Reg.Encoding&7
			rm.HasSIB = true
			a.text.WriteU8(rm.ModRM)
			a.text.WriteU8(rm.SIB)
		} else {
			rm.ModRM = modRMByte(mod, regField, rm.Reg.Encoding)
			a.text.WriteU8(rm.ModRM)
		}
		switch rm.Mode {
		case ModeDisp8:
			a.text.WriteU8(uint8(int8(rm.Disp)))
		case ModeDisp32:
			a.text.WriteU32(uint32(rm.Disp))
		}
	default:
		compilerError("emitRM: operand kind %v cannot take the r/m slot", rm.Kind)
	}
}

// sizeRM predicts the byte count emitRM will write for the same inputs.
func sizeRM(opcodeLen int, regField uint8, rm *Operand, wide bool) int {
	var index uint8
	if rm.HasIndex {
		index = rm.Index.Encoding
	}
	n := opcodeLen + 1 // opcode + ModR/M
	if _, need := rexByte(wide, regField, index, rm.Reg.Encoding); need {
		n++
	}
	if rm.Kind == OperandMemory {
		if rm.needsSIB() {
			n++
		}
		mode := rm.memMode()
		switch mode {
		case ModeDisp8:
			n++
		case ModeDisp32:
			n += 4
		}
	}
	return n
}

// EncOp identifies one semantic encoder operation. Each value maps to one
// entry point; PredictSize covers every value the dispatcher accepts.
type EncOp int

const (
	EncMov EncOp = iota
	EncAdd
	EncSub
	EncMul
	EncDiv
	EncMod
	EncAnd
	EncOr
	EncXor
	EncShl
	EncShr
	EncCmpEQ
	EncCmpNE
	EncCmpLT
	EncCmpLE
	EncCmpGT
	EncCmpGE
	EncLogAnd
	EncLogOr
	EncLogNot
	EncNeg
	EncBitNot
	EncInc
	EncDec
	EncAddrOf
	EncDeref
	EncPush
	EncPop
	EncJmp
	EncJcc
	EncCall
	EncRet
	EncLoad
	EncStore
	EncLea
)

var encOpNames = map[EncOp]string{
	EncMov: "mov", EncAdd: "add", EncSub: "sub", EncMul: "imul",
	EncDiv: "idiv", EncMod: "idiv(mod)", EncAnd: "and", EncOr: "or",
	EncXor: "xor", EncShl: "shl", EncShr: "sar", EncCmpEQ: "sete",
	EncCmpNE: "setne", EncCmpLT: "setl", EncCmpLE: "setle",
	EncCmpGT: "setg", EncCmpGE: "setge", EncLogAnd: "andl",
	EncLogOr: "orl", EncLogNot: "notl", EncNeg: "neg", EncBitNot: "not",
	EncInc: "inc", EncDec: "dec", EncAddrOf: "lea", EncDeref: "deref",
	EncPush: "push", EncPop: "pop", EncJmp: "jmp", EncJcc: "jcc",
	EncCall: "call", EncRet: "ret", EncLoad: "load", EncStore: "store",
	EncLea: "lea",
}

func (op EncOp) String() string {
	if s, ok := encOpNames[op]; ok {
		return s
	}
	return "unknown"
}

// Encode emits one semantic operation and returns the bytes written.
// Control-flow operations (jmp/jcc/call) always emit their 32-bit-offset
// forms with a zero placeholder; the caller records the position and
// patches it later.
func (a *Asm) Encode(op EncOp, dst, src Operand) int {
	start := a.Pos()
	switch op {
	case EncMov:
		a.Mov(dst, src)
	case EncAdd, EncSub, EncAnd, EncOr, EncXor:
		a.ALUOp(op, dst, src)
	case EncMul:
		a.Mul(dst, src)
	case EncDiv:
		a.Div(dst, src, false)
	case EncMod:
		a.Div(dst, src, true)
	case EncShl, EncShr:
		a.Shift(op, dst, src)
	case EncCmpEQ, EncCmpNE, EncCmpLT, EncCmpLE, EncCmpGT, EncCmpGE:
		a.CompareSet(op, dst, src)
	case EncLogAnd, EncLogOr:
		a.LogicalOp(op, dst, src)
	case EncLogNot:
		a.LogicalNot(dst)
	case EncNeg:
		a.Neg(dst)
	case EncBitNot:
		a.BitNot(dst)
	case EncInc:
		a.Inc(dst)
	case EncDec:
		a.Dec(dst)
	case EncAddrOf, EncLea:
		a.Lea(dst, src)
	case EncDeref:
		a.Deref(dst)
	case EncPush:
		a.Push(dst)
	case EncPop:
		a.Pop(dst)
	case EncJmp:
		a.JmpRel32(0)
	case EncJcc:
		a.JccRel32(CondFromImm(src.Imm), 0)
	case EncCall:
		a.CallRel32(0)
	case EncRet:
		a.Ret()
	case EncLoad:
		a.Load(dst, src)
	case EncStore:
		a.Store(dst, src)
	default:
		compilerError("Encode: unhandled operation %v", op)
	}
	return a.Pos() - start
}

// PredictSize returns the exact byte count Encode will write for the same
// operation and operands, without touching the buffer.
func PredictSize(op EncOp, dst, src Operand) int {
	switch op {
	case EncMov:
		return sizeMov(dst, src)
	case EncAdd, EncSub, EncAnd, EncOr, EncXor:
		return sizeALUOp(dst, src)
	case EncMul:
		return sizeMul(dst, src)
	case EncDiv, EncMod:
		return sizeDiv(dst, src)
	case EncShl, EncShr:
		return sizeShift(dst, src)
	case EncCmpEQ, EncCmpNE, EncCmpLT, EncCmpLE, EncCmpGT, EncCmpGE:
		return sizeCompareSet(dst, src)
	case EncLogAnd, EncLogOr:
		return sizeLogicalOp(dst, src)
	case EncLogNot:
		return sizeLogicalNot(dst)
	case EncNeg, EncBitNot, EncInc, EncDec:
		d := dst
		return sizeRM(1, 0, &d, true)
	case EncAddrOf, EncLea:
		s := src
		return sizeRM(1, dst.Reg.Encoding, &s, true)
	case EncDeref:
		return sizeDeref(dst)
	case EncPush, EncPop:
		return sizePushPop(dst)
	case EncJmp:
		return 5
	case EncJcc:
		return 6
	case EncCall:
		return 5
	case EncRet:
		return 1
	case EncLoad:
		s := src
		return sizeRM(1, dst.Reg.Encoding, &s, true)
	case EncStore:
		d := dst
		return sizeRM(1, src.Reg.Encoding, &d, true)
	default:
		compilerError("PredictSize: unhandled operation %v", op)
		return 0
	}
}
