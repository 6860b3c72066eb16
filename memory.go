// Completion: 100% - Instruction implementation complete
package main

// Memory forms: load, store, lea, dereference. The ModR/M mode (direct /
// disp8 / disp32) is chosen by the operand itself; rsp/r12 bases force a
// SIB byte and rbp/r13 bases force at least a disp8.

// Load: REX.W 8B /r — mov reg, [mem]
func (a *Asm) Load(dst, src Operand) {
	if dst.Kind != OperandRegister || src.Kind != OperandMemory {
		compilerError("load %s, %s: want register, memory", dst, src)
	}
	a.trace("mov %s, %s", dst, src)
	a.emitRM([]byte{0x8B}, dst.Reg.Encoding, &src, true)
}

// Store: REX.W 89 /r — mov [mem], reg
func (a *Asm) Store(dst, src Operand) {
	if dst.Kind != OperandMemory || src.Kind != OperandRegister {
		compilerError("store %s, %s: want memory, register", dst, src)
	}
	a.trace("mov %s, %s", dst, src)
	a.emitRM([]byte{0x89}, src.Reg.Encoding, &dst, true)
}

// Lea: REX.W 8D /r — lea reg, [mem]
func (a *Asm) Lea(dst, src Operand) {
	if dst.Kind != OperandRegister || src.Kind != OperandMemory {
		compilerError("lea %s, %s: want register, memory", dst, src)
	}
	a.trace("lea %s, %s", dst, src)
	a.emitRM([]byte{0x8D}, dst.Reg.Encoding, &src, true)
}

// Deref replaces a register's value with the qword it points at:
// mov reg, [reg]
func (a *Asm) Deref(dst Operand) {
	if dst.Kind != OperandRegister {
		compilerError("deref %s: want register", dst)
	}
	mem := Operand{Kind: OperandMemory, Reg: dst.Reg}
	mem.Mode = mem.memMode()
	a.trace("mov %s, [%s]", dst, dst)
	a.emitRM([]byte{0x8B}, dst.Reg.Encoding, &mem, true)
}

func sizeDeref(dst Operand) int {
	mem := Operand{Kind: OperandMemory, Reg: dst.Reg}
	return sizeRM(1, dst.Reg.Encoding, &mem, true)
}

// LeaRipRel emits lea reg, [rip+disp32] with a zero placeholder and
// returns the buffer offset of the displacement, for a later fixup.
func (a *Asm) LeaRipRel(dst string) int {
	r, ok := GetRegister(dst)
	if !ok {
		compilerError("lea: unknown register %q", dst)
	}
	a.trace("lea %s, [rip+?]", dst)
	rex, _ := rexByte(true, r.Encoding, 0, 0)
	a.text.WriteU8(rex)
	a.text.WriteU8(0x8D)
	a.text.WriteU8(modRMByte(0, r.Encoding, 5)) // mod=00 r/m=101 selects RIP-relative
	pos := a.text.Len()
	a.text.WriteU32(0)
	return pos
}

// leaRipRelSize is the fixed size of a LeaRipRel emission.
const leaRipRelSize = 7
