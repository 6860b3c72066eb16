// Completion: 100% - Optimization pipeline complete
package main

import "fmt"

// The optimization pipeline: strictly ordered passes over the chain,
// each gated by the numeric level. Register allocation runs before
// memory layout before dead-code elimination because later passes read
// what earlier ones recorded, but every pass also tolerates the earlier
// ones having been skipped: a lower level must never corrupt the chain,
// only leave it less cooked.
//
//	level >= 1  fold/type
//	level >= 2  register allocation
//	level >= 3  memory layout
//	level >= 4  dead-code elimination
//	level >= 5  control-flow
//	level >= 7  final emission
//
// Below 7 the chain stays byte-free and inspectable: nothing is
// assembled, not even the pre-encoded direct-path blobs riding it.

type Optimizer struct {
	level int
	chain *InstrChain
	ra    *RegisterAllocator
	asm   *Asm
	img   *Image
	syms  *SymbolTable

	tempRegs  map[int]Register // temp number -> allocated register
	tempSlots map[int]int32    // temp number -> frame slot, when the pool ran dry
	frame     *Frame           // shared with the direct path

	// alternates between the two reload scratches, reset per instruction
	reloadNext int
}

func NewOptimizer(level int, chain *InstrChain, asm *Asm, img *Image, frame *Frame, syms *SymbolTable) *Optimizer {
	if syms == nil {
		syms = NewSymbolTable()
	}
	return &Optimizer{
		level:     level,
		chain:     chain,
		ra:        NewRegisterAllocator(0),
		asm:       asm,
		img:       img,
		syms:      syms,
		tempRegs:  make(map[int]Register),
		tempSlots: make(map[int]int32),
		frame:     frame,
	}
}

// FrameBytes returns the stack frame size the chain needs, 8-byte
// aligned, available after Optimize has run.
func (o *Optimizer) FrameBytes() int32 {
	return o.frame.Size() + o.ra.FrameBytes()
}

// Optimize runs every enabled pass in order.
func (o *Optimizer) Optimize() {
	if o.level >= 1 {
		o.foldAndType()
	}
	if o.level >= 2 {
		o.allocateRegisters()
	}
	if o.level >= 3 {
		o.layoutMemory()
	}
	if o.level >= 4 {
		o.eliminateDeadCode()
	}
	if o.level >= 5 {
		o.placeControlFlow()
	}
	if o.level >= 7 {
		o.emit()
	}
}

var icBinaryOps = map[ICOp]bool{
	ICAdd: true, ICSub: true, ICMul: true, ICDiv: true, ICMod: true,
	ICAnd: true, ICOr: true, ICXor: true, ICShl: true, ICShr: true,
}

// foldAndType folds instructions whose inputs turned out constant after
// generation-time folding already ran, and tags pointer-producing
// results.
func (o *Optimizer) foldAndType() {
	o.chain.ForEach(func(h int, ins *Instruction) {
		if icBinaryOps[ins.Op] && ins.A.Kind == ValConst && ins.B.Kind == ValConst {
			v, ok := foldIC(ins.Op, ins.A.Imm, ins.B.Imm, ins.Line)
			if ok {
				ins.Op = ICMove
				ins.A = ConstVal(v)
				ins.B = IRValue{}
				ins.Flags |= FlagFolded
			}
		}
		switch ins.Op {
		case ICLoad:
			ins.Flags |= FlagPointer
		case ICNeg, ICBitNot:
			if ins.A.Kind == ValConst {
				var v int64
				if ins.Op == ICNeg {
					v = -ins.A.Imm
				} else {
					v = ^ins.A.Imm
				}
				ins.Op = ICMove
				ins.A = ConstVal(v)
				ins.Flags |= FlagFolded
			}
		}
	})
}

func foldIC(op ICOp, a, b int64, line int) (int64, bool) {
	switch op {
	case ICAdd:
		return a + b, true
	case ICSub:
		return a - b, true
	case ICMul:
		return a * b, true
	case ICDiv:
		if b == 0 {
			compilerError("line %d: division by zero", line)
		}
		return a / b, true
	case ICMod:
		if b == 0 {
			compilerError("line %d: modulo by zero", line)
		}
		return a % b, true
	case ICAnd:
		return a & b, true
	case ICOr:
		return a | b, true
	case ICXor:
		return a ^ b, true
	case ICShl:
		return a << (uint64(b) & 63), true
	case ICShr:
		return a >> (uint64(b) & 63), true
	}
	return 0, false
}

// allocateRegisters assigns a register to every instruction that
// produces a temp, freeing input temps at their (single) use. When the
// pool runs dry the temp gets a frame slot instead: the emitter stores
// it at its producer and reloads it at its use, so no live register is
// ever silently shared.
func (o *Optimizer) allocateRegisters() {
	o.chain.ForEach(func(h int, ins *Instruction) {
		var aReg, bReg Register
		if ins.A.Kind == ValTemp {
			aReg = o.tempRegs[ins.A.Temp]
		}
		if ins.B.Kind == ValTemp {
			bReg = o.tempRegs[ins.B.Temp]
		}

		// inputs die here; their registers return to the pool
		if ins.A.Kind == ValTemp {
			o.ra.Free(aReg)
		}
		if ins.B.Kind == ValTemp {
			o.ra.Free(bReg)
		}
		for _, arg := range ins.Args {
			if arg.Kind == ValTemp {
				o.ra.Free(o.tempRegs[arg.Temp])
			}
		}

		if ins.Result.Kind == ValTemp {
			if r, ok := o.ra.TryAllocate(); ok {
				o.tempRegs[ins.Result.Temp] = r
				ins.Regs = []Register{r, aReg, bReg}
			} else {
				o.tempSlots[ins.Result.Temp] = o.frame.Slot(fmt.Sprintf(".t%d", ins.Result.Temp))
				ins.Regs = []Register{{}, aReg, bReg}
			}
		} else if aReg.Name != "" || bReg.Name != "" {
			ins.Regs = []Register{{}, aReg, bReg}
		}
	})
}

// layoutMemory gives every variable and every load/store an 8-byte
// aligned rbp-relative slot, advancing one monotone counter.
func (o *Optimizer) layoutMemory() {
	slot := o.frame.Slot
	o.chain.ForEach(func(h int, ins *Instruction) {
		switch ins.Op {
		case ICStore:
			if ins.Result.Kind == ValVar {
				ins.StackOffset = slot(ins.Result.Name)
			}
		case ICLoad:
			if ins.A.Kind == ValVar {
				ins.StackOffset = slot(ins.A.Name)
			}
		case ICPrint:
			if ins.A.Kind == ValVar {
				ins.StackOffset = slot(ins.A.Name)
			}
		}
	})
}

// eliminateDeadCode unlinks no-ops. Head and tail stay valid; removed
// slots stay allocated in the arena.
func (o *Optimizer) eliminateDeadCode() {
	o.chain.ForEach(func(h int, ins *Instruction) {
		switch {
		case ins.Op == ICNop:
			o.chain.Remove(h)
		case ins.Op == ICMove && ins.Result.Kind == ValNone:
			o.chain.Remove(h)
		case ins.Op == ICMove && ins.A.Kind == ValTemp && ins.Result.Kind == ValTemp &&
			ins.A.Temp == ins.Result.Temp:
			o.chain.Remove(h)
		}
	})
}

// placeControlFlow is where branch-target consolidation will live once
// the chain carries structured control flow of its own; today every
// branch arrives pre-encoded in an ICAsm blob and there is nothing to
// consolidate.
func (o *Optimizer) placeControlFlow() {
}

// emit runs the encoder over every live instruction and attaches the
// produced bytes. ICAsm blobs are appended as-is with their references
// shifted to the final text base.
func (o *Optimizer) emit() {
	o.chain.ForEach(func(h int, ins *Instruction) {
		start := o.asm.Pos()
		o.reloadNext = 0
		switch ins.Op {
		case ICAsm:
			o.emitBlob(ins)
		case ICPrint:
			o.emitPrint(ins)
		case ICStore:
			o.emitStore(ins)
		case ICLoad:
			o.emitLoad(ins)
		case ICMove:
			o.emitMove(ins)
		case ICCall:
			o.emitCall(ins)
		case ICRet:
			o.emitRet(ins)
		case ICJmp, ICBranch:
			// target-less skeleton nodes contribute no bytes
		case ICLogNot:
			dst := o.valueToReg(ins.A, ins.Regs)
			o.asm.LogicalNot(RegOp(dst.Name))
			o.bindResult(ins, dst)
		case ICNeg:
			dst := o.valueToReg(ins.A, ins.Regs)
			o.asm.Neg(RegOp(dst.Name))
			o.bindResult(ins, dst)
		case ICBitNot:
			dst := o.valueToReg(ins.A, ins.Regs)
			o.asm.BitNot(RegOp(dst.Name))
			o.bindResult(ins, dst)
		default:
			if enc, ok := icToEnc[ins.Op]; ok {
				o.emitBinary(ins, enc)
			} else {
				warnf("line %d: no emission for %s, dropping", ins.Line, ins.Op)
			}
		}
		if end := o.asm.Pos(); end > start {
			ins.Bytes = append([]byte(nil), o.asm.text.Bytes()[start:end]...)
		}
	})
}

var icToEnc = map[ICOp]EncOp{
	ICAdd: EncAdd, ICSub: EncSub, ICMul: EncMul, ICDiv: EncDiv,
	ICMod: EncMod, ICAnd: EncAnd, ICOr: EncOr, ICXor: EncXor,
	ICShl: EncShl, ICShr: EncShr,
	ICCmpEQ: EncCmpEQ, ICCmpNE: EncCmpNE, ICCmpLT: EncCmpLT,
	ICCmpLE: EncCmpLE, ICCmpGT: EncCmpGT, ICCmpGE: EncCmpGE,
	ICLogAnd: EncLogAnd, ICLogOr: EncLogOr,
}

// valueToReg materializes an IR value in a register: consts get a mov,
// vars get a load from their slot, temps are already resident or, when
// the allocation pass ran out of registers, reloaded from their frame
// slot. The preferred register comes from the allocation pass; when that
// pass was skipped the emitter allocates on the spot.
func (o *Optimizer) valueToReg(v IRValue, regs []Register) Register {
	switch v.Kind {
	case ValTemp:
		if slot, ok := o.tempSlots[v.Temp]; ok {
			r := o.reloadReg()
			o.asm.MovMemToReg(r.Name, "rbp", slot)
			return r
		}
		if r, ok := o.tempRegs[v.Temp]; ok {
			return r
		}
	case ValConst:
		r := o.scratchReg(regs)
		o.asm.MovImmToReg(r.Name, v.Imm)
		return r
	case ValVar:
		r := o.scratchReg(regs)
		o.asm.MovMemToReg(r.Name, "rbp", o.frame.Slot(v.Name))
		return r
	}
	r := o.scratchReg(regs)
	return r
}

// scratchReg never evicts: a pool register may hold a value that is
// still live, and the emitter has no record of whose it is. With the
// pool dry it borrows a reload scratch instead.
func (o *Optimizer) scratchReg(regs []Register) Register {
	if len(regs) > 0 && regs[0].Name != "" {
		return regs[0]
	}
	if r, ok := o.ra.TryAllocate(); ok {
		return r
	}
	return o.reloadReg()
}

// reloadReg alternates between r12 and r13, which are reserved for the
// emitter. One instruction touches at most two values, so alternation
// within one instruction never hands the same scratch out twice.
func (o *Optimizer) reloadReg() Register {
	names := [2]string{"r12", "r13"}
	r := x86Registers[names[o.reloadNext&1]]
	o.reloadNext++
	return r
}

// bindResult records where an instruction left its result: slot-assigned
// temps are stored to the frame, register temps end up in the register
// the allocation pass picked (with a move when the value was computed
// elsewhere).
func (o *Optimizer) bindResult(ins *Instruction, r Register) {
	if ins.Result.Kind != ValTemp {
		return
	}
	if slot, ok := o.tempSlots[ins.Result.Temp]; ok {
		o.asm.MovRegToMem(r.Name, "rbp", slot)
		return
	}
	if len(ins.Regs) > 0 && ins.Regs[0].Name != "" && ins.Regs[0].Name != r.Name {
		o.asm.MovRegToReg(ins.Regs[0].Name, r.Name)
		r = ins.Regs[0]
	}
	o.tempRegs[ins.Result.Temp] = r
}

func (o *Optimizer) emitBinary(ins *Instruction, enc EncOp) {
	dst := o.valueToReg(ins.A, ins.Regs)
	var src Operand
	switch ins.B.Kind {
	case ValConst:
		src = ImmOp(ins.B.Imm)
	default:
		src = RegOp(o.valueToReg(ins.B, nil).Name)
	}
	// shifts by register go through rcx
	if (enc == EncShl || enc == EncShr) && src.Kind == OperandRegister && src.Reg.Name != "rcx" {
		o.asm.MovRegToReg("rcx", src.Reg.Name)
		src = RegOp("rcx")
	}
	o.asm.Encode(enc, RegOp(dst.Name), src)
	o.bindResult(ins, dst)
}

func (o *Optimizer) emitMove(ins *Instruction) {
	dst := o.scratchReg(ins.Regs)
	switch ins.A.Kind {
	case ValConst:
		o.asm.MovImmToReg(dst.Name, ins.A.Imm)
	case ValTemp:
		if src, ok := o.tempRegs[ins.A.Temp]; ok && src.Name != dst.Name {
			o.asm.MovRegToReg(dst.Name, src.Name)
		}
	case ValVar:
		src := o.valueToReg(ins.A, ins.Regs)
		dst = src
	}
	o.bindResult(ins, dst)
}

func (o *Optimizer) emitStore(ins *Instruction) {
	src := o.valueToReg(ins.A, ins.Regs)
	off := ins.StackOffset
	if off == 0 {
		off = o.frame.Slot(ins.Result.Name)
	}
	o.asm.MovRegToMem(src.Name, "rbp", off)
}

func (o *Optimizer) emitLoad(ins *Instruction) {
	dst := o.scratchReg(ins.Regs)
	off := ins.StackOffset
	if off == 0 {
		off = o.frame.Slot(ins.A.Name)
	}
	o.asm.MovMemToReg(dst.Name, "rbp", off)
	o.bindResult(ins, dst)
}

// emitPrint produces a printf call for one value: the integer format
// string in rcx, the value in rdx, 32 bytes of shadow space around the
// indirect call through the import address table.
func (o *Optimizer) emitPrint(ins *Instruction) {
	fmtSym := o.img.AddString("%lld\n")
	o.img.AddImport("msvcrt.dll", "printf", 0)

	switch ins.A.Kind {
	case ValConst:
		o.asm.MovImmToReg("rdx", ins.A.Imm)
	case ValVar:
		off := ins.StackOffset
		if off == 0 {
			off = o.frame.Slot(ins.A.Name)
		}
		o.asm.MovMemToReg("rdx", "rbp", off)
	case ValTemp:
		if r, ok := o.tempRegs[ins.A.Temp]; ok {
			o.asm.MovRegToReg("rdx", r.Name)
		}
	}

	dispPos := o.asm.LeaRipRel("rcx")
	o.img.AddRef(Reference{Offset: dispPos, Kind: RefRel32, Symbol: fmtSym})

	o.asm.SubImmFromReg("rsp", 40) // shadow space + alignment
	callPos := o.asm.CallRipIndirect()
	o.img.AddRef(Reference{Offset: callPos, Kind: RefRel32, Symbol: "printf"})
	o.asm.AddImmToReg("rsp", 40)
}

// Windows x64 integer argument registers, in order.
var callArgRegs = []string{"rcx", "rdx", "r8", "r9"}

// emitCall marshals the arguments per the Windows x64 convention: the
// first four into rcx/rdx/r8/r9, the rest pushed right to left, 32 bytes
// of shadow space, caller cleanup. Functions defined in the program are
// called through their label; everything else is registered as a C
// runtime import and called through the import address table. Argument
// temps are marshaled in chain order, which the pool's rax-first hand-out
// keeps clear of the convention registers they move into.
func (o *Optimizer) emitCall(ins *Instruction) {
	pushed := 0
	for i := len(ins.Args) - 1; i >= len(callArgRegs); i-- {
		o.pushValue(ins.Args[i])
		pushed++
	}
	for i := 0; i < len(ins.Args) && i < len(callArgRegs); i++ {
		o.moveValueTo(callArgRegs[i], ins.Args[i])
	}
	o.asm.SubImmFromReg("rsp", 32)
	if fi, ok := o.syms.Func(ins.A.Name); ok {
		pos := o.asm.CallRel32(0)
		o.img.AddRef(Reference{Offset: pos, Kind: RefRel32, Symbol: fi.Label})
	} else {
		o.img.AddImport("msvcrt.dll", ins.A.Name, 0)
		pos := o.asm.CallRipIndirect()
		o.img.AddRef(Reference{Offset: pos, Kind: RefRel32, Symbol: ins.A.Name})
	}
	o.asm.AddImmToReg("rsp", int64(32+8*pushed))
	if ins.Result.Kind == ValTemp {
		r := o.scratchReg(ins.Regs)
		if r.Name != "rax" {
			o.asm.MovRegToReg(r.Name, "rax")
		}
		o.bindResult(ins, r)
	}
}

// moveValueTo materializes an IR value directly in a named register.
func (o *Optimizer) moveValueTo(reg string, v IRValue) {
	switch v.Kind {
	case ValConst:
		o.asm.MovImmToReg(reg, v.Imm)
	case ValVar:
		o.asm.MovMemToReg(reg, "rbp", o.frame.Slot(v.Name))
	case ValTemp:
		if slot, ok := o.tempSlots[v.Temp]; ok {
			o.asm.MovMemToReg(reg, "rbp", slot)
		} else if r, ok := o.tempRegs[v.Temp]; ok && r.Name != reg {
			o.asm.MovRegToReg(reg, r.Name)
		}
	}
}

// pushValue pushes an IR value for a stack-passed argument.
func (o *Optimizer) pushValue(v IRValue) {
	switch v.Kind {
	case ValConst:
		o.asm.Push(ImmOp(v.Imm))
	case ValVar:
		o.asm.Push(MemOp("rbp", o.frame.Slot(v.Name)))
	case ValTemp:
		if slot, ok := o.tempSlots[v.Temp]; ok {
			o.asm.Push(MemOp("rbp", slot))
		} else if r, ok := o.tempRegs[v.Temp]; ok {
			o.asm.PushReg(r.Name)
		}
	}
}

func (o *Optimizer) emitRet(ins *Instruction) {
	if ins.A.Kind != ValNone {
		src := o.valueToReg(ins.A, ins.Regs)
		if src.Name != "rax" {
			o.asm.MovRegToReg("rax", src.Name)
		}
	}
	o.asm.Leave()
	o.asm.Ret()
}

// emitBlob appends a pre-encoded direct-path blob and rebases its
// references from blob-relative to text-relative.
func (o *Optimizer) emitBlob(ins *Instruction) {
	base := o.asm.Pos()
	o.asm.text.WriteBytes(ins.Bytes)
	for _, l := range ins.Labels {
		o.img.DefineLabel(l.Name, base+l.Offset)
	}
	for _, r := range ins.Refs {
		ref := Reference{
			Offset: base + r.Offset,
			Kind:   r.Kind,
			Symbol: r.Symbol,
		}
		if r.Symbol == "" {
			ref.Target = int64(base) + int64(r.Target)
		}
		o.img.AddRef(ref)
	}
}
