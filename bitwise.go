// Completion: 100% - Instruction implementation complete
package main

// Shifts and bit tests. and/or/xor share the ALU shape in arith.go.
// Shift-by-register means shift by cl: the caller stages the count into
// rcx first (the IR emitter and direct path both do).

// Shift emits shl (EncShl) or sar (EncShr) on dst. src is either an
// immediate count or rcx. Arithmetic right shift is used because every
// value in the source language is a signed 64-bit integer.
func (a *Asm) Shift(op EncOp, dst, src Operand) {
	var digit uint8
	var name string
	switch op {
	case EncShl:
		digit, name = 4, "shl"
	case EncShr:
		digit, name = 7, "sar"
	default:
		compilerError("Shift: %v is not a shift", op)
	}
	switch src.Kind {
	case OperandImmediate:
		a.trace("%s %s, %d", name, dst, src.Imm)
		a.emitRM([]byte{0xC1}, digit, &dst, true)
		a.text.WriteU8(uint8(src.Imm & 63))
	case OperandRegister:
		if src.Reg.Name != "rcx" {
			compilerError("%s %s, %s: register shift count must be in rcx", name, dst, src)
		}
		a.trace("%s %s, cl", name, dst)
		a.emitRM([]byte{0xD3}, digit, &dst, true)
	default:
		compilerError("%s %s, %s: unsupported shift count", name, dst, src)
	}
}

func sizeShift(dst, src Operand) int {
	d := dst
	switch src.Kind {
	case OperandImmediate:
		return sizeRM(1, 4, &d, true) + 1
	case OperandRegister:
		return sizeRM(1, 4, &d, true)
	}
	compilerError("sizeShift: unsupported shift count %s", src)
	return 0
}

// TestRegReg: REX.W 85 /r — sets ZF from reg1 & reg2.
func (a *Asm) TestRegReg(reg1, reg2 string) {
	r1 := RegOp(reg1)
	r2 := RegOp(reg2)
	a.trace("test %s, %s", reg1, reg2)
	a.emitRM([]byte{0x85}, r2.Reg.Encoding, &r1, true)
}

func sizeTestRegReg(reg1, reg2 string) int {
	r1 := RegOp(reg1)
	r2 := RegOp(reg2)
	return sizeRM(1, r2.Reg.Encoding, &r1, true)
}
