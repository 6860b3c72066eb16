package main

import (
	"strings"
	"testing"
)

func testLayout() Layout {
	return Layout{
		ImageBase: 0x140000000,
		TextRVA:   0x1000,
		DataRVA:   0x2000,
		RDataRVA:  0x3000,
	}
}

// TestResolveLabelReference tests patching a rel32 call against a text
// label: rel32 = label RVA - RVA of the byte after the displacement
func TestResolveLabelReference(t *testing.T) {
	img := NewImage()
	img.Text.WriteU8(0xE8)
	img.Text.WriteU32(0) // placeholder at offset 1
	img.Text.WriteN(0x90, 59)
	img.DefineLabel("fn_main", 64)
	img.AddRef(Reference{Offset: 1, Kind: RefRel32, Symbol: "fn_main"})

	if err := img.Resolve(testLayout()); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	refs := img.Refs()
	if refs[0].State != RefResolved {
		t.Fatalf("Expected resolved state, got %s", refs[0].State)
	}
	// target RVA 0x1040, next-instruction RVA 0x1005: rel32 = 0x3B
	if got := img.Text.ReadU32(1); got != 0x3B {
		t.Errorf("Expected rel32 0x3B, got 0x%X", got)
	}
}

// TestResolveImportReference tests that an import resolves against the
// IAT slot the PE builder assigned
func TestResolveImportReference(t *testing.T) {
	img := NewImage()
	img.Text.WriteU8(0xFF)
	img.Text.WriteU8(0x15)
	img.Text.WriteU32(0) // placeholder at offset 2
	img.AddImport("msvcrt.dll", "printf", 0)
	img.Imports()[0].IATRVA = 0x4028
	img.AddRef(Reference{Offset: 2, Kind: RefRel32, Symbol: "printf"})

	if err := img.Resolve(testLayout()); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	// IAT slot 0x4028, next-instruction RVA 0x1006: rel32 = 0x3022
	if got := img.Text.ReadU32(2); got != 0x3022 {
		t.Errorf("Expected rel32 0x3022, got 0x%X", got)
	}
}

// TestResolveDataReference tests that an interned string resolves
// against .rdata
func TestResolveDataReference(t *testing.T) {
	img := NewImage()
	img.RData.WriteN(0, 16)
	asm := NewAsm(img.Text)
	pos := asm.LeaRipRel("rcx")
	sym := img.AddString("hello")
	img.AddRef(Reference{Offset: pos, Kind: RefRel32, Symbol: sym})

	if err := img.Resolve(testLayout()); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	// string at rdata+16 = RVA 0x3010, next RVA 0x1007: rel32 = 0x2009
	if got := img.Text.ReadU32(pos); got != 0x2009 {
		t.Errorf("Expected rel32 0x2009, got 0x%X", got)
	}
}

// TestResolveAbsoluteReference tests that absolute kinds carry the full
// virtual address including the image base
func TestResolveAbsoluteReference(t *testing.T) {
	img := NewImage()
	img.Text.WriteU64(0)
	img.DefineLabel("entry", 0)
	img.AddRef(Reference{Offset: 0, Kind: RefAbs64, Symbol: "entry"})

	if err := img.Resolve(testLayout()); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	b := img.Text.Bytes()
	var got uint64
	for i := 7; i >= 0; i-- {
		got = got<<8 | uint64(b[i])
	}
	if got != 0x140001000 {
		t.Errorf("Expected VA 0x140001000, got 0x%X", got)
	}
}

// TestResolveUnknownSymbolFails tests the Failed state and the
// collected error
func TestResolveUnknownSymbolFails(t *testing.T) {
	img := NewImage()
	img.Text.WriteU32(0)
	img.AddRef(Reference{Offset: 0, Kind: RefRel32, Symbol: "nowhere"})

	err := img.Resolve(testLayout())
	if err == nil {
		t.Fatal("Expected an error for an unknown symbol")
	}
	if !strings.Contains(err.Error(), "nowhere") {
		t.Errorf("Error does not name the symbol: %v", err)
	}
	if img.Refs()[0].State != RefFailed {
		t.Errorf("Expected failed state, got %s", img.Refs()[0].State)
	}
}

// TestFinalizeRefusesPendingReferences tests that an image with an
// unconsumed reference never finalizes
func TestFinalizeRefusesPendingReferences(t *testing.T) {
	img := NewImage()
	img.Text.WriteU32(0)
	img.AddRef(Reference{Offset: 0, Kind: RefRel32, Symbol: "later"})

	if err := img.Finalize(); err == nil {
		t.Fatal("Finalize accepted a pending reference")
	}

	img.DefineLabel("later", 0)
	if err := img.Resolve(testLayout()); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if err := img.Finalize(); err != nil {
		t.Errorf("Finalize rejected a fully resolved image: %v", err)
	}
}

// TestStringInterning tests that identical strings share one .rdata copy
func TestStringInterning(t *testing.T) {
	img := NewImage()
	a := img.AddString("%lld\n")
	b := img.AddString("%lld\n")
	c := img.AddString("other")

	if a != b {
		t.Errorf("Identical strings got two symbols: %q and %q", a, b)
	}
	if a == c {
		t.Errorf("Different strings share a symbol")
	}
	if img.RData.Len() != len("%lld\n")+1+len("other")+1 {
		t.Errorf("Unexpected .rdata size %d", img.RData.Len())
	}
}

// TestDefineLabelRecordsExport tests that every defined label lands in
// the export table once, in definition order
func TestDefineLabelRecordsExport(t *testing.T) {
	img := NewImage()
	img.DefineLabel("fn_main", 0)
	img.DefineLabel("fn_helper", 32)
	img.DefineLabel("fn_main", 0) // same binding again, no duplicate entry

	exps := img.Exports()
	if len(exps) != 2 {
		t.Fatalf("Expected 2 export entries, got %d", len(exps))
	}
	if exps[0].Name != "fn_main" || exps[0].Offset != 0 {
		t.Errorf("First export wrong: %+v", exps[0])
	}
	if exps[1].Name != "fn_helper" || exps[1].Offset != 32 {
		t.Errorf("Second export wrong: %+v", exps[1])
	}
}

// TestImportDeduplication tests that registering the same function
// twice collapses to one entry
func TestImportDeduplication(t *testing.T) {
	img := NewImage()
	img.AddImport("msvcrt.dll", "printf", 0)
	img.AddImport("msvcrt.dll", "printf", 0)
	img.AddImport("KERNEL32.dll", "ExitProcess", 0)

	if len(img.Imports()) != 2 {
		t.Errorf("Expected 2 imports, got %d", len(img.Imports()))
	}
}
