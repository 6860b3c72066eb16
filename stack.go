// Completion: 100% - Instruction implementation complete
package main

// Stack operations. push/pop default to 64-bit operands in long mode, so
// no REX.W is needed; only REX.B for r8-r15.

// Push emits push for a register, immediate, or memory operand.
func (a *Asm) Push(op Operand) {
	switch op.Kind {
	case OperandRegister:
		a.trace("push %s", op)
		if op.Reg.Extended() {
			a.text.WriteU8(0x41)
		}
		a.text.WriteU8(0x50 + op.Reg.Encoding&7)
	case OperandImmediate:
		a.trace("push %d", op.Imm)
		if fitsInt8(op.Imm) {
			a.text.WriteU8(0x6A)
			a.text.WriteU8(uint8(int8(op.Imm)))
		} else if fitsInt32(op.Imm) {
			a.text.WriteU8(0x68)
			a.text.WriteU32(uint32(op.Imm))
		} else {
			compilerError("push %d: immediate too wide, stage through a register", op.Imm)
		}
	case OperandMemory:
		a.trace("push %s", op)
		a.emitRM([]byte{0xFF}, 6, &op, false)
	default:
		compilerError("push %s: unsupported operand", op)
	}
}

// Pop emits pop for a register or memory operand.
func (a *Asm) Pop(op Operand) {
	switch op.Kind {
	case OperandRegister:
		a.trace("pop %s", op)
		if op.Reg.Extended() {
			a.text.WriteU8(0x41)
		}
		a.text.WriteU8(0x58 + op.Reg.Encoding&7)
	case OperandMemory:
		a.trace("pop %s", op)
		a.emitRM([]byte{0x8F}, 0, &op, false)
	default:
		compilerError("pop %s: unsupported operand", op)
	}
}

func sizePushPop(op Operand) int {
	switch op.Kind {
	case OperandRegister:
		if op.Reg.Extended() {
			return 2
		}
		return 1
	case OperandImmediate:
		if fitsInt8(op.Imm) {
			return 2
		}
		return 5
	case OperandMemory:
		o := op
		return sizeRM(1, 0, &o, false)
	}
	compilerError("sizePushPop: unsupported operand %s", op)
	return 0
}

// PushReg / PopReg are the name-based convenience forms.
func (a *Asm) PushReg(reg string) {
	a.Push(RegOp(reg))
}

func (a *Asm) PopReg(reg string) {
	a.Pop(RegOp(reg))
}

// Enter writes the standard function prologue and returns the buffer
// offset of the frame-size immediate, so the caller can patch the real
// frame size in once all locals are known:
//
//	push rbp
//	mov rbp, rsp
//	sub rsp, frameSize
//
// The sub always takes the 81 /5 imm32 form so the patch slot is a fixed
// four bytes regardless of the provisional size.
func (a *Asm) Enter(frameSize int32) int {
	a.PushReg("rbp")
	a.MovRegToReg("rbp", "rsp")
	a.trace("sub rsp, %d", frameSize)
	rsp := RegOp("rsp")
	a.emitRM([]byte{0x81}, 5, &rsp, true)
	pos := a.text.Len()
	a.text.WriteU32(uint32(frameSize))
	return pos
}

// enterSize is the fixed size of an Enter emission.
const enterSize = 1 + 3 + 7

// Leave restores the caller frame: mov rsp, rbp; pop rbp (C9).
func (a *Asm) Leave() {
	a.trace("leave")
	a.text.WriteU8(0xC9)
}

// Ret: C3
func (a *Asm) Ret() {
	a.trace("ret")
	a.text.WriteU8(0xC3)
}
