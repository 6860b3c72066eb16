// Completion: 100% - Instruction implementation complete
package main

// Control transfer. Jumps and calls always take their rel32 forms, so
// every emission has a fixed size and an offset that can be patched once
// the target is known. The protocol is the same everywhere: emit with a
// zero placeholder, remember the offset returned, then PatchRel32 with
// the resolved target. The displacement is relative to the end of the
// instruction, target - (pos + 4).

// JmpRel32 emits jmp rel32 (E9, 5 bytes) and returns the offset of the
// displacement. target 0 leaves a placeholder for patching.
func (a *Asm) JmpRel32(target int) int {
	a.trace("jmp 0x%x", target)
	a.text.WriteU8(0xE9)
	pos := a.text.Len()
	if target == 0 {
		a.text.WriteU32(0)
	} else {
		a.text.WriteU32(uint32(int32(target - (pos + 4))))
	}
	return pos
}

// JccRel32 emits a conditional jump rel32 (0F 80+cc, 6 bytes) and returns
// the offset of the displacement.
func (a *Asm) JccRel32(c Cond, target int) int {
	a.trace("j%s 0x%x", c, target)
	a.text.WriteU8(0x0F)
	a.text.WriteU8(0x80 + uint8(c))
	pos := a.text.Len()
	if target == 0 {
		a.text.WriteU32(0)
	} else {
		a.text.WriteU32(uint32(int32(target - (pos + 4))))
	}
	return pos
}

// CallRel32 emits call rel32 (E8, 5 bytes) and returns the offset of the
// displacement.
func (a *Asm) CallRel32(target int) int {
	a.trace("call 0x%x", target)
	a.text.WriteU8(0xE8)
	pos := a.text.Len()
	if target == 0 {
		a.text.WriteU32(0)
	} else {
		a.text.WriteU32(uint32(int32(target - (pos + 4))))
	}
	return pos
}

// CallRipIndirect emits call [rip+disp32] (FF /2, 6 bytes) with a zero
// displacement and returns its offset. This is the form that calls
// through an import address table slot.
func (a *Asm) CallRipIndirect() int {
	a.trace("call [rip+?]")
	a.text.WriteU8(0xFF)
	a.text.WriteU8(0x15)
	pos := a.text.Len()
	a.text.WriteU32(0)
	return pos
}

// PatchRel32 resolves a recorded placeholder against a now-known target.
func (a *Asm) PatchRel32(pos, target int) {
	a.text.PatchU32(pos, uint32(int32(target-(pos+4))))
}

const (
	jmpRel32Size  = 5
	jccRel32Size  = 6
	callRel32Size = 5
	callRipSize   = 6
)
