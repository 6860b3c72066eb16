// Completion: 100% - Instruction implementation complete
package main

// Comparisons and boolean material. The six relational operators become
// cmp + SETcc + MOVZX so the result is a clean 0/1 qword; logical and/or
// normalize both sides the same way before combining them.

// Cond is an x86 condition code (the tttn field of Jcc/SETcc).
type Cond uint8

const (
	CondE  Cond = 0x4
	CondNE Cond = 0x5
	CondL  Cond = 0xC
	CondGE Cond = 0xD
	CondLE Cond = 0xE
	CondG  Cond = 0xF
)

// Negate flips a condition (the low bit inverts the sense on x86).
func (c Cond) Negate() Cond {
	return c ^ 1
}

func (c Cond) String() string {
	switch c {
	case CondE:
		return "e"
	case CondNE:
		return "ne"
	case CondL:
		return "l"
	case CondGE:
		return "ge"
	case CondLE:
		return "le"
	case CondG:
		return "g"
	default:
		return "?"
	}
}

// CondFromImm recovers a condition smuggled through an immediate operand
// (the generic Encode dispatcher has no condition parameter).
func CondFromImm(v int64) Cond {
	return Cond(uint8(v))
}

var encOpConds = map[EncOp]Cond{
	EncCmpEQ: CondE,
	EncCmpNE: CondNE,
	EncCmpLT: CondL,
	EncCmpLE: CondLE,
	EncCmpGT: CondG,
	EncCmpGE: CondGE,
}

// Cmp emits cmp dst, src (flags only).
func (a *Asm) Cmp(dst, src Operand) {
	switch src.Kind {
	case OperandRegister:
		a.trace("cmp %s, %s", dst, src)
		a.emitRM([]byte{0x39}, src.Reg.Encoding, &dst, true)
	case OperandImmediate:
		a.trace("cmp %s, %d", dst, src.Imm)
		if fitsInt8(src.Imm) {
			a.emitRM([]byte{0x83}, 7, &dst, true)
			a.text.WriteU8(uint8(int8(src.Imm)))
		} else {
			a.emitRM([]byte{0x81}, 7, &dst, true)
			a.text.WriteU32(uint32(src.Imm))
		}
	case OperandMemory:
		a.trace("cmp %s, %s", dst, src)
		a.emitRM([]byte{0x3B}, dst.Reg.Encoding, &src, true)
	default:
		compilerError("cmp %s, %s: unsupported operand pair", dst, src)
	}
}

func sizeCmp(dst, src Operand) int {
	switch src.Kind {
	case OperandRegister:
		d := dst
		return sizeRM(1, src.Reg.Encoding, &d, true)
	case OperandImmediate:
		d := dst
		n := sizeRM(1, 7, &d, true)
		if fitsInt8(src.Imm) {
			return n + 1
		}
		return n + 4
	case OperandMemory:
		s := src
		return sizeRM(1, dst.Reg.Encoding, &s, true)
	}
	compilerError("sizeCmp: unsupported operand pair %s, %s", dst, src)
	return 0
}

// Setcc writes SETcc on the low byte of a 64-bit register. Encodings
// 4-7 (spl/bpl/sil/dil) need an empty REX prefix to reach the low byte
// instead of ah-dh; 8-15 need REX.B.
func (a *Asm) Setcc(c Cond, reg Register) {
	a.trace("set%s %s", c, loByte(reg))
	if reg.Encoding >= 8 {
		a.text.WriteU8(0x41)
	} else if reg.Encoding >= 4 {
		a.text.WriteU8(0x40)
	}
	a.text.WriteU8(0x0F)
	a.text.WriteU8(0x90 + uint8(c))
	a.text.WriteU8(modRMByte(3, 0, reg.Encoding))
}

func sizeSetcc(reg Register) int {
	if reg.Encoding >= 4 {
		return 4
	}
	return 3
}

// MovzxLoByte zero-extends a register's low byte over the full qword:
// REX.W 0F B6 /r with reg as both sides.
func (a *Asm) MovzxLoByte(reg Register) {
	a.trace("movzx %s, %s", reg.Name, loByte(reg))
	op := Operand{Kind: OperandRegister, Reg: reg, Mode: ModeDirect}
	a.emitRM([]byte{0x0F, 0xB6}, reg.Encoding, &op, true)
}

func sizeMovzxLoByte(reg Register) int {
	op := Operand{Kind: OperandRegister, Reg: reg}
	return sizeRM(2, reg.Encoding, &op, true)
}

func loByte(reg Register) string {
	if name, ok := loByteName[reg.Name]; ok {
		return name
	}
	return reg.Name + ".b"
}

// CompareSet materializes a relational comparison: dst = (dst OP src) as
// 0 or 1.
func (a *Asm) CompareSet(op EncOp, dst, src Operand) {
	c, ok := encOpConds[op]
	if !ok {
		compilerError("CompareSet: %v is not a comparison", op)
	}
	if dst.Kind != OperandRegister {
		compilerError("cmp/set %s, %s: destination must be a register", dst, src)
	}
	a.Cmp(dst, src)
	a.Setcc(c, dst.Reg)
	a.MovzxLoByte(dst.Reg)
}

func sizeCompareSet(dst, src Operand) int {
	return sizeCmp(dst, src) + sizeSetcc(dst.Reg) + sizeMovzxLoByte(dst.Reg)
}

// LogicalOp materializes dst = dst && src or dst = dst || src over
// already-evaluated values: both sides are normalized to 0/1, then
// combined bitwise. src is clobbered; callers pass a scratch copy.
// (True short-circuit evaluation with jumps lives in the direct path,
// where operand side effects still exist.)
func (a *Asm) LogicalOp(op EncOp, dst, src Operand) {
	if dst.Kind != OperandRegister || src.Kind != OperandRegister {
		compilerError("logical %s, %s: want register, register", dst, src)
	}
	a.TestRegReg(dst.Reg.Name, dst.Reg.Name)
	a.Setcc(CondNE, dst.Reg)
	a.MovzxLoByte(dst.Reg)
	a.TestRegReg(src.Reg.Name, src.Reg.Name)
	a.Setcc(CondNE, src.Reg)
	a.MovzxLoByte(src.Reg)
	if op == EncLogAnd {
		a.ALUOp(EncAnd, dst, src)
	} else {
		a.ALUOp(EncOr, dst, src)
	}
}

func sizeLogicalOp(dst, src Operand) int {
	n := sizeTestRegReg(dst.Reg.Name, dst.Reg.Name)
	n += sizeSetcc(dst.Reg) + sizeMovzxLoByte(dst.Reg)
	n += sizeTestRegReg(src.Reg.Name, src.Reg.Name)
	n += sizeSetcc(src.Reg) + sizeMovzxLoByte(src.Reg)
	n += sizeALUOp(dst, src)
	return n
}

// LogicalNot materializes dst = !dst.
func (a *Asm) LogicalNot(dst Operand) {
	if dst.Kind != OperandRegister {
		compilerError("logical not %s: want register", dst)
	}
	a.TestRegReg(dst.Reg.Name, dst.Reg.Name)
	a.Setcc(CondE, dst.Reg)
	a.MovzxLoByte(dst.Reg)
}

func sizeLogicalNot(dst Operand) int {
	return sizeTestRegReg(dst.Reg.Name, dst.Reg.Name) +
		sizeSetcc(dst.Reg) + sizeMovzxLoByte(dst.Reg)
}
