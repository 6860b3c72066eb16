// Completion: 100% - Operand model complete
package main

import "fmt"

// Operand is the tagged representation of one x86-64 instruction operand.
// Exactly one variant is active, selected by Kind; every consumer switches
// exhaustively on it. An Operand lives for one encoder call only.

type OperandKind int

const (
	OperandRegister OperandKind = iota
	OperandImmediate
	OperandMemory
	OperandAbsolute
)

func (k OperandKind) String() string {
	switch k {
	case OperandRegister:
		return "register"
	case OperandImmediate:
		return "immediate"
	case OperandMemory:
		return "memory"
	case OperandAbsolute:
		return "absolute"
	default:
		return "unknown"
	}
}

// AddressingMode is the ModR/M mod field for a memory operand.
type AddressingMode int

const (
	ModeIndirect AddressingMode = iota // [base], mod=00
	ModeDisp8                         // [base+disp8], mod=01
	ModeDisp32                        // [base+disp32], mod=10
	ModeDirect                        // register direct, mod=11
)

type Operand struct {
	Kind OperandKind

	// OperandRegister / OperandMemory
	Reg      Register // the register itself, or the memory base
	Index    Register // optional SIB index
	HasIndex bool
	Scale    uint8 // 1, 2, 4 or 8
	Disp     int32 // displacement for memory operands

	// OperandImmediate
	Imm int64

	// OperandAbsolute
	Addr uint64

	// Filled in by the encoder once the operand has been through it.
	Mode    AddressingMode
	RexBits byte // R/X/B contribution
	ModRM   byte
	SIB     byte
	HasSIB  bool
}

// RegOp builds a register operand from a register name.
func RegOp(name string) Operand {
	r, ok := GetRegister(name)
	if !ok {
		compilerError("unknown register %q", name)
	}
	return Operand{Kind: OperandRegister, Reg: r, Mode: ModeDirect}
}

// ImmOp builds an immediate operand.
func ImmOp(v int64) Operand {
	return Operand{Kind: OperandImmediate, Imm: v}
}

// MemOp builds a [base+disp] memory operand.
func MemOp(base string, disp int32) Operand {
	r, ok := GetRegister(base)
	if !ok {
		compilerError("unknown base register %q", base)
	}
	op := Operand{Kind: OperandMemory, Reg: r, Disp: disp}
	op.Mode = op.memMode()
	return op
}

// AbsOp builds an absolute-address operand.
func AbsOp(addr uint64) Operand {
	return Operand{Kind: OperandAbsolute, Addr: addr}
}

// memMode picks the ModR/M mod bits for a memory operand. rbp and r13
// cannot be encoded with mod=00, so a zero displacement still takes the
// disp8 form for those bases.
func (op *Operand) memMode() AddressingMode {
	if op.Disp == 0 && op.Reg.Encoding&7 != 5 {
		return ModeIndirect
	}
	if op.Disp >= -128 && op.Disp <= 127 {
		return ModeDisp8
	}
	return ModeDisp32
}

// dispBytes returns how many displacement bytes the operand encodes.
func (op *Operand) dispBytes() int {
	switch op.Mode {
	case ModeDisp8:
		return 1
	case ModeDisp32:
		return 4
	default:
		return 0
	}
}

// needsSIB reports whether the memory operand requires a SIB byte: either
// it has an index register, or the base is rsp/r12 (encoding 4 in the r/m
// field means "SIB follows").
func (op *Operand) needsSIB() bool {
	if op.Kind != OperandMemory {
		return false
	}
	return op.HasIndex || op.Reg.Encoding&7 == 4
}

func (op Operand) String() string {
	switch op.Kind {
	case OperandRegister:
		return op.Reg.Name
	case OperandImmediate:
		return fmt.Sprintf("%d", op.Imm)
	case OperandMemory:
		if op.Disp != 0 {
			return fmt.Sprintf("[%s%+d]", op.Reg.Name, op.Disp)
		}
		return fmt.Sprintf("[%s]", op.Reg.Name)
	case OperandAbsolute:
		return fmt.Sprintf("[0x%x]", op.Addr)
	default:
		return "?"
	}
}
