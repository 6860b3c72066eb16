package main

import (
	"testing"
)

func newTestOptimizer(level int, chain *InstrChain) *Optimizer {
	img := NewImage()
	asm := NewAsm(img.Text)
	return NewOptimizer(level, chain, asm, img, NewFrame(), NewSymbolTable())
}

// TestLevelZeroLeavesChainUntouched tests that every pass can be
// skipped without corrupting the chain
func TestLevelZeroLeavesChainUntouched(t *testing.T) {
	chain := NewInstrChain()
	chain.Append(Instruction{Op: ICAdd, A: ConstVal(1), B: ConstVal(2), Result: TempVal(1)})
	chain.Append(Instruction{Op: ICNop})

	opt := newTestOptimizer(0, chain)
	opt.Optimize()

	if chain.Len() != 2 {
		t.Fatalf("Level 0 changed the chain: %d instructions", chain.Len())
	}
	if chain.At(chain.Head()).Op != ICAdd {
		t.Errorf("Level 0 rewrote an instruction")
	}
	if opt.asm.Pos() != 0 {
		t.Errorf("Level 0 emitted %d bytes", opt.asm.Pos())
	}
}

// TestFoldPassRewritesConstantArithmetic tests instruction-level folding
func TestFoldPassRewritesConstantArithmetic(t *testing.T) {
	chain := NewInstrChain()
	h := chain.Append(Instruction{Op: ICMul, A: ConstVal(6), B: ConstVal(7), Result: TempVal(1)})

	opt := newTestOptimizer(1, chain)
	opt.Optimize()

	ins := chain.At(h)
	if ins.Op != ICMove {
		t.Fatalf("Expected fold to a move, got %s", ins.Op)
	}
	if ins.A.Imm != 42 {
		t.Errorf("Expected folded 42, got %d", ins.A.Imm)
	}
	if ins.Flags&FlagFolded == 0 {
		t.Errorf("Folded flag not set")
	}
}

// TestDeadCodePassRemovesNops tests DCE unlinking while preserving
// head and tail
func TestDeadCodePassRemovesNops(t *testing.T) {
	chain := NewInstrChain()
	h1 := chain.Append(Instruction{Op: ICStore, A: ConstVal(1), Result: VarVal("x")})
	chain.Append(Instruction{Op: ICNop})
	chain.Append(Instruction{Op: ICNop})
	h4 := chain.Append(Instruction{Op: ICStore, A: ConstVal(2), Result: VarVal("y")})

	opt := newTestOptimizer(4, chain)
	opt.Optimize()

	if chain.Len() != 2 {
		t.Fatalf("Expected 2 instructions after DCE, got %d", chain.Len())
	}
	if chain.Head() != h1 || chain.Tail() != h4 {
		t.Errorf("DCE corrupted head/tail: head=%d tail=%d", chain.Head(), chain.Tail())
	}
	if chain.Next(h1) != h4 {
		t.Errorf("DCE left a dead node linked")
	}
}

// TestRegisterAllocationRecordsRegisters tests that pass 2 records a
// register on every temp-producing instruction
func TestRegisterAllocationRecordsRegisters(t *testing.T) {
	chain := NewInstrChain()
	h1 := chain.Append(Instruction{Op: ICAdd, A: VarVal("a"), B: ConstVal(1), Result: TempVal(1)})
	h2 := chain.Append(Instruction{Op: ICMul, A: TempVal(1), B: ConstVal(2), Result: TempVal(2)})

	opt := newTestOptimizer(2, chain)
	opt.Optimize()

	r1 := chain.At(h1).Regs
	r2 := chain.At(h2).Regs
	if len(r1) == 0 || r1[0].Name == "" {
		t.Fatalf("No register recorded on first instruction")
	}
	if len(r2) == 0 || r2[0].Name == "" {
		t.Fatalf("No register recorded on second instruction")
	}
	// temp 1 died at its use in h2, so its register may be reused; the
	// input register recorded on h2 must be temp 1's register
	if r2[1].Name != r1[0].Name {
		t.Errorf("Input register on h2 (%s) is not temp 1's register (%s)", r2[1].Name, r1[0].Name)
	}
}

// TestMemoryLayoutAssignsAlignedSlots tests pass 3's monotone 8-byte
// slots
func TestMemoryLayoutAssignsAlignedSlots(t *testing.T) {
	chain := NewInstrChain()
	h1 := chain.Append(Instruction{Op: ICStore, A: ConstVal(1), Result: VarVal("x")})
	h2 := chain.Append(Instruction{Op: ICStore, A: ConstVal(2), Result: VarVal("y")})
	h3 := chain.Append(Instruction{Op: ICStore, A: ConstVal(3), Result: VarVal("x")})

	opt := newTestOptimizer(3, chain)
	opt.Optimize()

	o1 := chain.At(h1).StackOffset
	o2 := chain.At(h2).StackOffset
	o3 := chain.At(h3).StackOffset
	if o1 != -8 || o2 != -16 {
		t.Errorf("Expected slots -8 and -16, got %d and %d", o1, o2)
	}
	if o3 != o1 {
		t.Errorf("Same variable got two slots: %d and %d", o3, o1)
	}
	if opt.FrameBytes() != 16 {
		t.Errorf("Expected 16 frame bytes, got %d", opt.FrameBytes())
	}
}

// TestEmissionAttachesBytes tests that level 7 runs the encoder and
// attaches the produced bytes to each instruction
func TestEmissionAttachesBytes(t *testing.T) {
	chain := NewInstrChain()
	h := chain.Append(Instruction{Op: ICStore, A: ConstVal(42), Result: VarVal("x")})

	opt := newTestOptimizer(7, chain)
	opt.Optimize()

	ins := chain.At(h)
	if len(ins.Bytes) == 0 {
		t.Fatal("Emission attached no bytes")
	}
	if opt.asm.Pos() != len(ins.Bytes) {
		t.Errorf("Buffer holds %d bytes but instruction carries %d", opt.asm.Pos(), len(ins.Bytes))
	}
}

// TestBlobRebasing tests that an ICAsm blob's references shift by the
// text base when the chain is assembled
func TestBlobRebasing(t *testing.T) {
	chain := NewInstrChain()
	// padding instruction before the blob so the base is nonzero
	chain.Append(Instruction{Op: ICStore, A: ConstVal(1), Result: VarVal("x")})
	chain.Append(Instruction{
		Op:    ICAsm,
		Bytes: []byte{0xE8, 0x00, 0x00, 0x00, 0x00}, // call rel32 placeholder
		Refs:  []BlobRef{{Offset: 1, Kind: RefRel32, Symbol: "printf"}},
		Labels: []BlobLabel{
			{Name: "after_call", Offset: 5},
		},
	})

	img := NewImage()
	asm := NewAsm(img.Text)
	opt := NewOptimizer(7, chain, asm, img, NewFrame(), NewSymbolTable())
	opt.Optimize()

	refs := img.Refs()
	if len(refs) != 1 {
		t.Fatalf("Expected 1 reference, got %d", len(refs))
	}
	if refs[0].Offset <= 1 {
		t.Errorf("Reference not rebased: offset %d", refs[0].Offset)
	}
	// the blob's bytes must start at ref.Offset-1
	if img.Text.Bytes()[refs[0].Offset-1] != 0xE8 {
		t.Errorf("Blob not at the recorded reference position")
	}
	if off, ok := img.Label("after_call"); !ok || off != refs[0].Offset+4 {
		t.Errorf("Blob label not rebased: %d (found=%v)", off, ok)
	}
}

// TestLevelSixLeavesBlobsUnassembled tests that below level 7 nothing
// reaches the text buffer, pre-encoded blobs included
func TestLevelSixLeavesBlobsUnassembled(t *testing.T) {
	chain := NewInstrChain()
	chain.Append(Instruction{
		Op:    ICAsm,
		Bytes: []byte{0xE8, 0x00, 0x00, 0x00, 0x00},
		Refs:  []BlobRef{{Offset: 1, Kind: RefRel32, Symbol: "printf"}},
	})

	opt := newTestOptimizer(6, chain)
	opt.Optimize()

	if opt.asm.Pos() != 0 {
		t.Errorf("Level 6 emitted %d bytes", opt.asm.Pos())
	}
	if len(opt.img.Refs()) != 0 {
		t.Errorf("Level 6 recorded %d references", len(opt.img.Refs()))
	}
}

// TestCallEmissionMarshalsArguments tests that an unknown callee's
// argument lands in rcx and the call goes through the import table
func TestCallEmissionMarshalsArguments(t *testing.T) {
	chain := NewInstrChain()
	chain.Append(Instruction{
		Op: ICCall, A: VarVal("putchar"), B: ConstVal(1),
		Args: []IRValue{ConstVal(65)}, Result: TempVal(1),
	})

	opt := newTestOptimizer(9, chain)
	opt.Optimize()

	expected := []byte{
		0x48, 0xC7, 0xC1, 0x41, 0x00, 0x00, 0x00, // mov rcx, 65
		0x48, 0x83, 0xEC, 0x20, // sub rsp, 32
		0xFF, 0x15, 0x00, 0x00, 0x00, 0x00, // call [rip+imp]
		0x48, 0x83, 0xC4, 0x20, // add rsp, 32
	}
	got := opt.asm.text.Bytes()
	if len(got) != len(expected) {
		t.Fatalf("Expected %d bytes, got %d", len(expected), len(got))
	}
	for i, e := range expected {
		if got[i] != e {
			t.Errorf("Byte %d: expected 0x%02X, got 0x%02X", i, e, got[i])
		}
	}

	refs := opt.img.Refs()
	if len(refs) != 1 || refs[0].Symbol != "putchar" || refs[0].Offset != 13 {
		t.Errorf("Expected one putchar reference at offset 13, got %+v", refs)
	}
	if _, ok := opt.img.findImport("putchar"); !ok {
		t.Errorf("Unknown callee was not registered as an import")
	}
}

// TestCallEmissionUsesFunctionLabel tests that a callee defined in the
// program is called through its label, not as an import
func TestCallEmissionUsesFunctionLabel(t *testing.T) {
	chain := NewInstrChain()
	chain.Append(Instruction{
		Op: ICCall, A: VarVal("double"), B: ConstVal(1),
		Args: []IRValue{ConstVal(21)}, Result: TempVal(1),
	})

	img := NewImage()
	asm := NewAsm(img.Text)
	syms := NewSymbolTable()
	syms.DefineFunc("double", []string{"n"})
	opt := NewOptimizer(9, chain, asm, img, NewFrame(), syms)
	opt.Optimize()

	refs := img.Refs()
	if len(refs) != 1 {
		t.Fatalf("Expected 1 reference, got %d", len(refs))
	}
	if refs[0].Symbol != "fn_double" {
		t.Errorf("Expected a reference to fn_double, got %q", refs[0].Symbol)
	}
	if asm.text.Bytes()[refs[0].Offset-1] != 0xE8 {
		t.Errorf("Expected a direct call at the reference position")
	}
	if len(img.Imports()) != 0 {
		t.Errorf("Defined function was registered as an import: %+v", img.Imports())
	}
}

// TestPoolOverflowSpillsToFrame tests that a temp produced with the pool
// dry gets a frame slot, stored at its producer and reloaded at its use
func TestPoolOverflowSpillsToFrame(t *testing.T) {
	chain := NewInstrChain()
	n := len(allocatablePool) + 1
	handles := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		handles = append(handles, chain.Append(Instruction{
			Op: ICAdd, A: VarVal("a"), B: ConstVal(int64(i)), Result: TempVal(i),
		}))
	}
	hStore := chain.Append(Instruction{Op: ICStore, A: TempVal(n), Result: VarVal("x")})

	opt := newTestOptimizer(9, chain)
	opt.Optimize()

	if r := chain.At(handles[0]).Regs; len(r) == 0 || r[0].Name != "rax" {
		t.Fatalf("First temp did not get rax")
	}
	if r := chain.At(handles[n-1]).Regs; len(r) == 0 || r[0].Name != "" {
		t.Errorf("Overflow temp was given a register despite the dry pool")
	}

	// the overflow temp lives at rbp-8, the first frame slot; x follows
	// at rbp-16. Its consumer reloads through r12 and stores to x.
	expected := []byte{
		0x4C, 0x8B, 0x65, 0xF8, // mov r12, [rbp-8]
		0x4C, 0x89, 0x65, 0xF0, // mov [rbp-16], r12
	}
	got := chain.At(hStore).Bytes
	if len(got) != len(expected) {
		t.Fatalf("Expected %d store bytes, got %d", len(expected), len(got))
	}
	for i, e := range expected {
		if got[i] != e {
			t.Errorf("Store byte %d: expected 0x%02X, got 0x%02X", i, e, got[i])
		}
	}

	// the producer's last instruction must be the store to the slot
	prod := chain.At(handles[n-1]).Bytes
	spill := []byte{0x4C, 0x89, 0x65, 0xF8} // mov [rbp-8], r12
	if len(prod) < len(spill) {
		t.Fatalf("Producer emitted only %d bytes", len(prod))
	}
	for i, e := range spill {
		if prod[len(prod)-len(spill)+i] != e {
			t.Errorf("Producer does not end with the slot store")
			break
		}
	}
}

// TestDivisionOperandsNeverUseDivScratch tests that even with the pool
// exhausted a division's operands stay clear of r11, the register the
// idiv sequence stages the divisor through
func TestDivisionOperandsNeverUseDivScratch(t *testing.T) {
	chain := NewInstrChain()
	n := len(allocatablePool)
	for i := 1; i <= n; i++ {
		chain.Append(Instruction{
			Op: ICAdd, A: VarVal("a"), B: ConstVal(int64(i)), Result: TempVal(i),
		})
	}
	hDiv := chain.Append(Instruction{
		Op: ICDiv, A: TempVal(n), B: ConstVal(3), Result: TempVal(n + 1),
	})

	opt := newTestOptimizer(9, chain)
	opt.Optimize()

	chain.ForEach(func(h int, ins *Instruction) {
		for _, r := range ins.Regs {
			if r.Name == "r11" {
				t.Errorf("Allocator handed out the divisor staging register r11")
			}
		}
	})
	if len(chain.At(hDiv).Bytes) == 0 {
		t.Errorf("Division emitted no bytes")
	}
}
