// Completion: 100% - Instruction implementation complete
package main

// Integer arithmetic. add/sub/and/or/xor share one ALU shape (reg-reg,
// reg-mem, mem-reg and the 83/81 immediate forms); imul has its own
// opcodes; idiv is emitted as the full mov/cqo/idiv sequence because
// rax:rdx are architecturally fixed for it.

type aluEncoding struct {
	rmReg byte  // op r/m64, r64
	regRM byte  // op r64, r/m64
	digit uint8 // /digit for the 81 and 83 immediate forms
}

var aluEncodings = map[EncOp]aluEncoding{
	EncAdd: {rmReg: 0x01, regRM: 0x03, digit: 0},
	EncOr:  {rmReg: 0x09, regRM: 0x0B, digit: 1},
	EncAnd: {rmReg: 0x21, regRM: 0x23, digit: 4},
	EncSub: {rmReg: 0x29, regRM: 0x2B, digit: 5},
	EncXor: {rmReg: 0x31, regRM: 0x33, digit: 6},
}

// ALUOp emits add/sub/and/or/xor for the supported operand pairs.
func (a *Asm) ALUOp(op EncOp, dst, src Operand) {
	enc, ok := aluEncodings[op]
	if !ok {
		compilerError("ALUOp: %v is not an ALU operation", op)
	}
	switch {
	case dst.Kind == OperandRegister && src.Kind == OperandRegister:
		a.trace("%s %s, %s", op, dst, src)
		a.emitRM([]byte{enc.rmReg}, src.Reg.Encoding, &dst, true)
	case dst.Kind == OperandRegister && src.Kind == OperandImmediate:
		a.trace("%s %s, %d", op, dst, src.Imm)
		if fitsInt8(src.Imm) {
			a.emitRM([]byte{0x83}, enc.digit, &dst, true)
			a.text.WriteU8(uint8(int8(src.Imm)))
		} else {
			a.emitRM([]byte{0x81}, enc.digit, &dst, true)
			a.text.WriteU32(uint32(src.Imm))
		}
	case dst.Kind == OperandRegister && src.Kind == OperandMemory:
		a.trace("%s %s, %s", op, dst, src)
		a.emitRM([]byte{enc.regRM}, dst.Reg.Encoding, &src, true)
	case dst.Kind == OperandMemory && src.Kind == OperandRegister:
		a.trace("%s %s, %s", op, dst, src)
		a.emitRM([]byte{enc.rmReg}, src.Reg.Encoding, &dst, true)
	default:
		compilerError("%s %s, %s: unsupported operand pair", op, dst, src)
	}
}

func sizeALUOp(dst, src Operand) int {
	switch {
	case dst.Kind == OperandRegister && src.Kind == OperandRegister:
		d := dst
		return sizeRM(1, src.Reg.Encoding, &d, true)
	case dst.Kind == OperandRegister && src.Kind == OperandImmediate:
		d := dst
		n := sizeRM(1, 0, &d, true)
		if fitsInt8(src.Imm) {
			return n + 1
		}
		return n + 4
	case dst.Kind == OperandRegister && src.Kind == OperandMemory:
		s := src
		return sizeRM(1, dst.Reg.Encoding, &s, true)
	case dst.Kind == OperandMemory && src.Kind == OperandRegister:
		d := dst
		return sizeRM(1, src.Reg.Encoding, &d, true)
	}
	compilerError("sizeALUOp: unsupported operand pair %s, %s", dst, src)
	return 0
}

// Mul emits signed multiply: imul r64, r/m64 (0F AF) or the three-operand
// imul r64, r/m64, imm32 (69) form for immediates.
func (a *Asm) Mul(dst, src Operand) {
	switch src.Kind {
	case OperandRegister, OperandMemory:
		a.trace("imul %s, %s", dst, src)
		a.emitRM([]byte{0x0F, 0xAF}, dst.Reg.Encoding, &src, true)
	case OperandImmediate:
		a.trace("imul %s, %s, %d", dst, dst, src.Imm)
		d := dst
		a.emitRM([]byte{0x69}, dst.Reg.Encoding, &d, true)
		a.text.WriteU32(uint32(src.Imm))
	default:
		compilerError("imul %s, %s: unsupported operand pair", dst, src)
	}
}

func sizeMul(dst, src Operand) int {
	switch src.Kind {
	case OperandRegister, OperandMemory:
		s := src
		return sizeRM(2, dst.Reg.Encoding, &s, true)
	case OperandImmediate:
		d := dst
		return sizeRM(1, dst.Reg.Encoding, &d, true) + 4
	}
	compilerError("sizeMul: unsupported operand pair %s, %s", dst, src)
	return 0
}

// Div emits dst = dst / src (or dst % src when mod is set) as a fixed
// sequence. The divisor is always staged through r11 so the sequence is
// the same length no matter which registers the allocator picked, and so
// a divisor living in rax or rdx cannot be clobbered mid-sequence:
//
//	mov r11, src
//	mov rax, dst
//	cqo
//	idiv r11
//	mov dst, rax   (or rdx for mod)
//
// r11 is excluded from the allocator pool for exactly this reason; a
// dividend living there would be overwritten by the staging move.
func (a *Asm) Div(dst, src Operand, mod bool) {
	if dst.Kind != OperandRegister {
		compilerError("idiv %s, %s: destination must be a register", dst, src)
	}
	if dst.Reg.Name == "r11" {
		compilerError("idiv %s, %s: r11 is the divisor staging register", dst, src)
	}
	a.Mov(RegOp("r11"), src)
	a.Mov(RegOp("rax"), dst)
	a.trace("cqo")
	a.text.WriteU8(0x48) // REX.W
	a.text.WriteU8(0x99) // CQO
	a.trace("idiv r11")
	r11 := RegOp("r11")
	a.emitRM([]byte{0xF7}, 7, &r11, true)
	if mod {
		a.Mov(dst, RegOp("rdx"))
	} else {
		a.Mov(dst, RegOp("rax"))
	}
}

func sizeDiv(dst, src Operand) int {
	n := sizeMov(RegOp("r11"), src)
	n += sizeMov(RegOp("rax"), dst)
	n += 2 // cqo
	r11 := RegOp("r11")
	n += sizeRM(1, 7, &r11, true)
	n += sizeMov(dst, RegOp("rax")) // same size for the rdx form
	return n
}

// Neg: REX.W F7 /3
func (a *Asm) Neg(dst Operand) {
	a.trace("neg %s", dst)
	a.emitRM([]byte{0xF7}, 3, &dst, true)
}

// BitNot: REX.W F7 /2
func (a *Asm) BitNot(dst Operand) {
	a.trace("not %s", dst)
	a.emitRM([]byte{0xF7}, 2, &dst, true)
}

// Inc: REX.W FF /0
func (a *Asm) Inc(dst Operand) {
	a.trace("inc %s", dst)
	a.emitRM([]byte{0xFF}, 0, &dst, true)
}

// Dec: REX.W FF /1
func (a *Asm) Dec(dst Operand) {
	a.trace("dec %s", dst)
	a.emitRM([]byte{0xFF}, 1, &dst, true)
}

// AddImmToReg is the name-based convenience form used by the direct path.
func (a *Asm) AddImmToReg(reg string, imm int64) {
	a.ALUOp(EncAdd, RegOp(reg), ImmOp(imm))
}

// SubImmFromReg is the name-based convenience form used by the direct path.
func (a *Asm) SubImmFromReg(reg string, imm int64) {
	a.ALUOp(EncSub, RegOp(reg), ImmOp(imm))
}

// XorRegWithReg zeroes or combines registers without an immediate.
func (a *Asm) XorRegWithReg(dst, src string) {
	a.ALUOp(EncXor, RegOp(dst), RegOp(src))
}
