package main

import (
	"bytes"
	"debug/pe"
	"strings"
	"testing"
)

func buildExecutable(t *testing.T, src string) []byte {
	t.Helper()
	c, err := CompileSource(src, 9)
	if err != nil {
		t.Fatalf("CompileSource failed: %v", err)
	}
	data, err := NewPEBuilder(c.Image).Build(entryOffset)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return data
}

// TestExecutableParsesAsPE32Plus tests the whole pipeline by handing the
// produced bytes to the standard PE parser
func TestExecutableParsesAsPE32Plus(t *testing.T) {
	data := buildExecutable(t, "var a = 2 + 3\na\n")

	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Produced bytes do not parse as PE: %v", err)
	}
	defer f.Close()

	if f.FileHeader.Machine != pe.IMAGE_FILE_MACHINE_AMD64 {
		t.Errorf("Expected AMD64 machine, got 0x%X", f.FileHeader.Machine)
	}
	if f.FileHeader.NumberOfSections != 4 {
		t.Errorf("Expected 4 sections, got %d", f.FileHeader.NumberOfSections)
	}

	oh, ok := f.OptionalHeader.(*pe.OptionalHeader64)
	if !ok {
		t.Fatal("Expected a 64-bit optional header")
	}
	if oh.Magic != peMagicPE32Plus {
		t.Errorf("Expected magic 0x20B, got 0x%X", oh.Magic)
	}
	if oh.ImageBase != peImageBase {
		t.Errorf("Expected image base 0x%X, got 0x%X", uint64(peImageBase), oh.ImageBase)
	}
	if oh.AddressOfEntryPoint != 0x1000 {
		t.Errorf("Expected entry at .text start 0x1000, got 0x%X", oh.AddressOfEntryPoint)
	}
	if oh.Subsystem != pe.IMAGE_SUBSYSTEM_WINDOWS_CUI {
		t.Errorf("Expected console subsystem, got %d", oh.Subsystem)
	}
	if oh.SectionAlignment != peSectionAlign || oh.FileAlignment != peFileAlign {
		t.Errorf("Alignment mismatch: section 0x%X file 0x%X",
			oh.SectionAlignment, oh.FileAlignment)
	}
}

// TestExecutableSectionNames tests section order and naming
func TestExecutableSectionNames(t *testing.T) {
	data := buildExecutable(t, "var a = 1\n")

	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	defer f.Close()

	want := []string{".text", ".data", ".rdata", ".idata"}
	for i, name := range want {
		if f.Sections[i].Name != name {
			t.Errorf("Section %d: expected %s, got %s", i, name, f.Sections[i].Name)
		}
	}
	if f.Sections[0].VirtualAddress != 0x1000 {
		t.Errorf("Expected .text at RVA 0x1000, got 0x%X", f.Sections[0].VirtualAddress)
	}
}

// TestExecutableImports tests that the import tables are readable and
// carry the baseline set plus anything the program pulled in
func TestExecutableImports(t *testing.T) {
	data := buildExecutable(t, "var a = 5\na\n")

	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	defer f.Close()

	syms, err := f.ImportedSymbols()
	if err != nil {
		t.Fatalf("ImportedSymbols failed: %v", err)
	}

	want := []string{"ExitProcess:KERNEL32.dll", "printf:msvcrt.dll"}
	for _, w := range want {
		found := false
		for _, s := range syms {
			if s == w {
				found = true
			}
		}
		if !found {
			t.Errorf("Import %s missing from %v", w, syms)
		}
	}
}

// TestDOSStub tests the MZ signature and the PE header offset at 0x3C
func TestDOSStub(t *testing.T) {
	data := buildExecutable(t, "var a = 1\n")

	if data[0] != 'M' || data[1] != 'Z' {
		t.Fatalf("Missing MZ signature: %02X %02X", data[0], data[1])
	}
	peOff := uint32(data[0x3C]) | uint32(data[0x3D])<<8 |
		uint32(data[0x3E])<<16 | uint32(data[0x3F])<<24
	if peOff != dosHeaderSize+dosStubSize {
		t.Errorf("Expected PE header at 0x%X, got 0x%X", dosHeaderSize+dosStubSize, peOff)
	}
	if data[peOff] != 'P' || data[peOff+1] != 'E' || data[peOff+2] != 0 || data[peOff+3] != 0 {
		t.Errorf("Missing PE signature at 0x%X", peOff)
	}
	if !bytes.Contains(data[:peOff], []byte("This program requires Windows.")) {
		t.Errorf("DOS stub message missing")
	}
}

// TestImportDataLayout tests the single-cursor .idata layout directly:
// descriptors, thunk tables, hint/name entries, DLL names
func TestImportDataLayout(t *testing.T) {
	libs := map[string][]string{
		"msvcrt.dll":   {"printf", "puts"},
		"KERNEL32.dll": {"ExitProcess"},
	}
	const base = uint32(0x5000)
	data, iatMap, err := BuildImportData(libs, base)
	if err != nil {
		t.Fatalf("BuildImportData failed: %v", err)
	}

	// IDT: 2 descriptors + null = 60 bytes; DLLs sorted, KERNEL32 first
	readU32 := func(off int) uint32 {
		return uint32(data[off]) | uint32(data[off+1])<<8 |
			uint32(data[off+2])<<16 | uint32(data[off+3])<<24
	}

	// KERNEL32: ILT directly after the IDT
	if got := readU32(0); got != base+60 {
		t.Errorf("Expected first ILT at 0x%X, got 0x%X", base+60, got)
	}
	// the null descriptor terminates the table
	for off := 40; off < 60; off++ {
		if data[off] != 0 {
			t.Fatalf("Null descriptor not zero at byte %d", off)
		}
	}

	// every function has a distinct 8-byte IAT slot
	seen := make(map[uint32]string)
	for _, fn := range []string{"printf", "puts", "ExitProcess"} {
		rva, ok := iatMap[fn]
		if !ok {
			t.Fatalf("No IAT slot for %s", fn)
		}
		if prev, dup := seen[rva]; dup {
			t.Errorf("%s and %s share IAT slot 0x%X", fn, prev, rva)
		}
		seen[rva] = fn
	}

	// adjacent functions in one DLL occupy adjacent slots
	if iatMap["puts"] != iatMap["printf"]+8 {
		t.Errorf("printf/puts slots not adjacent: 0x%X 0x%X",
			iatMap["printf"], iatMap["puts"])
	}

	// hint/name entries use hint 0 and carry the function names
	if !bytes.Contains(data, []byte("ExitProcess\x00")) {
		t.Errorf("Hint/name table missing ExitProcess")
	}
	if !bytes.Contains(data, []byte("msvcrt.dll\x00")) {
		t.Errorf("DLL name table missing msvcrt.dll")
	}

	// ILT and IAT hold identical thunks before loading
	// KERNEL32: ILT at 60, IAT at 60+16
	if readU32(60) != readU32(76) {
		t.Errorf("ILT/IAT thunks differ: 0x%X vs 0x%X", readU32(60), readU32(76))
	}
	if iatMap["ExitProcess"] != base+76 {
		t.Errorf("Expected ExitProcess IAT slot at 0x%X, got 0x%X",
			base+76, iatMap["ExitProcess"])
	}
}

// TestBuildFailsOnUnresolvedCall tests that a reference to a symbol no
// table knows aborts the build instead of producing a broken file
func TestBuildFailsOnUnresolvedCall(t *testing.T) {
	img := NewImage()
	img.Text.WriteU8(0xE8)
	img.Text.WriteU32(0)
	img.AddRef(Reference{Offset: 1, Kind: RefRel32, Symbol: "missing_function"})

	_, err := NewPEBuilder(img).Build(0)
	if err == nil {
		t.Fatal("Build accepted an unresolvable reference")
	}
	if !strings.Contains(err.Error(), "missing_function") {
		t.Errorf("Error does not name the symbol: %v", err)
	}
}

// TestNestedCallResolvesFunctionLabel tests that a call appearing inside
// an expression statement resolves against the function's label rather
// than leaking into the import table
func TestNestedCallResolvesFunctionLabel(t *testing.T) {
	data := buildExecutable(t, "func double(n) { return n + n }\nvar x = double(21)\nx\n")

	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	defer f.Close()

	syms, err := f.ImportedSymbols()
	if err != nil {
		t.Fatalf("ImportedSymbols failed: %v", err)
	}
	for _, s := range syms {
		if strings.HasPrefix(s, "double:") {
			t.Errorf("Defined function leaked into the import table: %s", s)
		}
	}
}

// TestNestedUnknownCallBecomesImport tests that an unknown callee inside
// an expression is imported from the C runtime
func TestNestedUnknownCallBecomesImport(t *testing.T) {
	data := buildExecutable(t, "var x = putchar(65)\n")

	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	defer f.Close()

	syms, err := f.ImportedSymbols()
	if err != nil {
		t.Fatalf("ImportedSymbols failed: %v", err)
	}
	found := false
	for _, s := range syms {
		if s == "putchar:msvcrt.dll" {
			found = true
		}
	}
	if !found {
		t.Errorf("putchar missing from the import table: %v", syms)
	}
}
