// Completion: 100% - PE generation complete for Windows x86_64
package main

import (
	"fmt"
	"os"
	"sort"
)

// PE (Portable Executable) format constants for Windows x86_64
const (
	// DOS header (stub)
	dosHeaderSize = 64
	dosStubSize   = 128

	// PE headers
	peSignatureSize     = 4
	coffHeaderSize      = 20
	optionalHeaderSize  = 240 // PE32+ (64-bit)
	peSectionHeaderSize = 40
	peSectionCount      = 4 // .text .data .rdata .idata

	// Memory layout for PE
	peImageBase    = 0x140000000 // Standard Windows x64 image base
	peSectionAlign = 0x1000      // 4KB section alignment in memory
	peFileAlign    = 0x200       // 512 byte file alignment

	peMagicPE32     = 0x10B
	peMagicPE32Plus = 0x20B

	// Section characteristics
	scnMemExecute  = 0x20000000
	scnMemRead     = 0x40000000
	scnMemWrite    = 0x80000000
	scnCntCode     = 0x00000020
	scnCntInitData = 0x00000040
)

// PEBuilder turns a resolved Image into an executable file. One linear
// emission pass: DOS stub, signature, COFF header, optional header,
// data directories, section headers, then the section payloads in the
// same order the headers describe. The sub-tables of .idata are placed
// by a running RVA cursor; the header fields only make sense because
// emission follows that exact sequence.
type PEBuilder struct {
	img   *Image
	magic uint16
	file  *Buffer
}

func NewPEBuilder(img *Image) *PEBuilder {
	return &PEBuilder{img: img, magic: peMagicPE32Plus, file: NewBuffer(0)}
}

// stdImports is the baseline import set every produced executable
// carries: process control and console I/O from KERNEL32, the C runtime
// from msvcrt.
var stdImports = map[string][]string{
	"KERNEL32.dll": {"ExitProcess", "GetStdHandle", "WriteConsoleA", "ReadConsoleA"},
	"msvcrt.dll":   {"printf", "puts", "scanf", "malloc", "free"},
}

// Build lays out the sections, builds the import tables, resolves every
// pending reference, and emits the file bytes.
func (pb *PEBuilder) Build(entryOffset int) ([]byte, error) {
	// empty sections still get a header and a minimal payload
	if pb.img.Data.Len() == 0 {
		pb.img.Data.WriteN(0, 16)
	}
	if pb.img.RData.Len() == 0 {
		pb.img.RData.WriteN(0, 16)
	}

	textSize := uint32(pb.img.Text.Len())
	dataSize := uint32(pb.img.Data.Len())
	rdataSize := uint32(pb.img.RData.Len())

	textRVA := uint32(peSectionAlign)
	dataRVA := textRVA + alignTo(textSize, peSectionAlign)
	rdataRVA := dataRVA + alignTo(dataSize, peSectionAlign)
	idataRVA := rdataRVA + alignTo(rdataSize, peSectionAlign)

	idata, iatMap, err := BuildImportData(pb.importLibraries(), idataRVA)
	if err != nil {
		return nil, err
	}
	idataSize := uint32(len(idata))

	// hand each import its IAT slot so the resolver can find it
	imports := pb.img.Imports()
	for i := range imports {
		if rva, ok := iatMap[imports[i].Name]; ok {
			imports[i].IATRVA = rva
		} else {
			return nil, fmt.Errorf("import %s has no IAT slot", imports[i].Name)
		}
	}

	layout := Layout{
		ImageBase: peImageBase,
		TextRVA:   textRVA,
		DataRVA:   dataRVA,
		RDataRVA:  rdataRVA,
	}
	if err := pb.img.Resolve(layout); err != nil {
		return nil, err
	}
	if err := pb.img.Finalize(); err != nil {
		return nil, err
	}

	headerSize := alignTo(dosHeaderSize+dosStubSize+peSignatureSize+
		coffHeaderSize+optionalHeaderSize+peSectionCount*peSectionHeaderSize,
		peFileAlign)

	textRaw := headerSize
	dataRaw := textRaw + alignTo(textSize, peFileAlign)
	rdataRaw := dataRaw + alignTo(dataSize, peFileAlign)
	idataRaw := rdataRaw + alignTo(rdataSize, peFileAlign)

	entryRVA := textRVA + uint32(entryOffset)
	imageSize := alignTo(idataRVA+idataSize, peSectionAlign)

	pb.writeDOSHeader()
	pb.writeCOFFHeader()
	pb.writeOptionalHeader(entryRVA, textSize, dataSize+rdataSize+idataSize,
		imageSize, headerSize, idataRVA, idataSize, iatMap)

	pb.writeSectionHeader(".text", textSize, textRVA,
		alignTo(textSize, peFileAlign), textRaw,
		scnCntCode|scnMemExecute|scnMemRead)
	pb.writeSectionHeader(".data", dataSize, dataRVA,
		alignTo(dataSize, peFileAlign), dataRaw,
		scnCntInitData|scnMemRead|scnMemWrite)
	pb.writeSectionHeader(".rdata", rdataSize, rdataRVA,
		alignTo(rdataSize, peFileAlign), rdataRaw,
		scnCntInitData|scnMemRead)
	pb.writeSectionHeader(".idata", idataSize, idataRVA,
		alignTo(idataSize, peFileAlign), idataRaw,
		scnCntInitData|scnMemRead|scnMemWrite)

	pb.padTo(int(textRaw))
	pb.file.WriteBytes(pb.img.Text.Bytes())
	pb.padTo(int(dataRaw))
	pb.file.WriteBytes(pb.img.Data.Bytes())
	pb.padTo(int(rdataRaw))
	pb.file.WriteBytes(pb.img.RData.Bytes())
	pb.padTo(int(idataRaw))
	pb.file.WriteBytes(idata)
	pb.padTo(int(idataRaw + alignTo(idataSize, peFileAlign)))

	return pb.file.Bytes(), nil
}

// WriteFile builds the image and writes it to disk.
func (pb *PEBuilder) WriteFile(path string, entryOffset int) error {
	data, err := pb.Build(entryOffset)
	if err != nil {
		return err
	}
	if VerboseMode {
		fmt.Fprintf(os.Stderr, "writing %s (%d bytes)\n", path, len(data))
	}
	return os.WriteFile(path, data, 0755)
}

// importLibraries merges the standard import set with anything the
// compilation registered on top of it.
func (pb *PEBuilder) importLibraries() map[string][]string {
	libs := make(map[string][]string)
	for dll, funcs := range stdImports {
		libs[dll] = append([]string(nil), funcs...)
	}
	for _, imp := range pb.img.Imports() {
		if !containsString(libs[imp.DLL], imp.Name) {
			libs[imp.DLL] = append(libs[imp.DLL], imp.Name)
		}
	}
	return libs
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (pb *PEBuilder) writeDOSHeader() {
	w := pb.file
	w.WriteU16(0x5A4D) // "MZ" signature
	w.WriteN(0, 58)
	w.WriteU32(dosHeaderSize + dosStubSize) // PE header offset at 0x3C

	stubMsg := []byte("This program requires Windows.\r\n$")
	w.WriteBytes(stubMsg)
	w.WriteN(0, dosStubSize-len(stubMsg))
}

func (pb *PEBuilder) writeCOFFHeader() {
	w := pb.file
	w.WriteU32(0x00004550)       // "PE\0\0"
	w.WriteU16(0x8664)           // Machine: AMD64
	w.WriteU16(peSectionCount)   // Number of sections
	w.WriteU32(0)                // TimeDateStamp (0 for reproducibility)
	w.WriteU32(0)                // Pointer to symbol table (deprecated)
	w.WriteU32(0)                // Number of symbols (deprecated)
	w.WriteU16(optionalHeaderSize)
	w.WriteU16(0x0022) // Characteristics: EXECUTABLE_IMAGE | LARGE_ADDRESS_AWARE
}

func (pb *PEBuilder) writeOptionalHeader(entryRVA, codeSize, dataSize,
	imageSize, headerSize, idataRVA, idataSize uint32,
	iatMap map[string]uint32) {

	w := pb.file
	w.WriteU16(pb.magic) // PE32+ (0x20B) or PE32 (0x10B)
	w.WriteU8(1)         // Major linker version
	w.WriteU8(0)         // Minor linker version
	w.WriteU32(codeSize)
	w.WriteU32(dataSize)
	w.WriteU32(0) // Size of uninitialized data
	w.WriteU32(entryRVA)
	w.WriteU32(peSectionAlign) // Base of code

	w.WriteU64(peImageBase)
	w.WriteU32(peSectionAlign)
	w.WriteU32(peFileAlign)
	w.WriteU16(6) // Major OS version
	w.WriteU16(0)
	w.WriteU16(0) // Image version
	w.WriteU16(0)
	w.WriteU16(6) // Major subsystem version
	w.WriteU16(0)
	w.WriteU32(0) // Win32 version value (reserved)
	w.WriteU32(imageSize)
	w.WriteU32(headerSize)
	w.WriteU32(0)      // Checksum
	w.WriteU16(3)      // Subsystem: CUI (Console)
	w.WriteU16(0x8120) // DLL characteristics: DYNAMIC_BASE | NX_COMPAT | TERMINAL_SERVER_AWARE | NO_SEH
	w.WriteU64(0x100000)
	w.WriteU64(0x1000)
	w.WriteU64(0x100000)
	w.WriteU64(0x1000)
	w.WriteU32(0)  // Loader flags
	w.WriteU32(16) // Number of data directories

	// Data directories: only the import directory is populated. The IAT
	// directory (12) points at the first IAT inside .idata.
	iatRVA, iatSize := iatRange(iatMap)
	for i := 0; i < 16; i++ {
		switch i {
		case 1:
			w.WriteU32(idataRVA)
			w.WriteU32(idataSize)
		case 12:
			w.WriteU32(iatRVA)
			w.WriteU32(iatSize)
		default:
			w.WriteU64(0)
		}
	}
}

// iatRange finds the span of the import address tables so the IAT data
// directory can describe them.
func iatRange(iatMap map[string]uint32) (uint32, uint32) {
	if len(iatMap) == 0 {
		return 0, 0
	}
	lo := uint32(0xFFFFFFFF)
	hi := uint32(0)
	for _, rva := range iatMap {
		if rva < lo {
			lo = rva
		}
		if rva+8 > hi {
			hi = rva + 8
		}
	}
	return lo, hi + 8 - lo // trailing null entry
}

func (pb *PEBuilder) writeSectionHeader(name string, virtualSize, virtualAddr,
	rawSize, rawAddr, characteristics uint32) {
	w := pb.file
	nameBytes := make([]byte, 8)
	copy(nameBytes, name)
	w.WriteBytes(nameBytes)
	w.WriteU32(virtualSize)
	w.WriteU32(virtualAddr)
	w.WriteU32(rawSize)
	w.WriteU32(rawAddr)
	w.WriteU32(0) // Pointer to relocations
	w.WriteU32(0) // Pointer to line numbers
	w.WriteU16(0) // Number of relocations
	w.WriteU16(0) // Number of line numbers
	w.WriteU32(characteristics)
}

func (pb *PEBuilder) padTo(offset int) {
	if pb.file.Len() > offset {
		compilerError("PE emission overran file offset 0x%x (at 0x%x)", offset, pb.file.Len())
	}
	pb.file.WriteN(0, offset-pb.file.Len())
}

func alignTo(value, align uint32) uint32 {
	return (value + align - 1) &^ (align - 1)
}

// BuildImportData lays out the .idata section:
//
//  1. Import Directory Table - one IMAGE_IMPORT_DESCRIPTOR per DLL
//     (20 bytes each), null-terminated
//  2. Import Lookup Table then Import Address Table per DLL - arrays of
//     RVAs to hint/name entries, each null-terminated (the loader
//     overwrites the IAT with resolved addresses)
//  3. Hint/Name Table - uint16 hint + NUL-terminated name, 2-byte aligned
//  4. DLL name strings
//
// Offsets are computed with one RVA cursor in exactly this order, so the
// descriptor fields written in step 1 reference positions that steps 2-4
// will produce. Returns the section bytes and the IAT RVA of every
// imported function. DLL names are sorted for deterministic output.
func BuildImportData(libraries map[string][]string, idataRVA uint32) ([]byte, map[string]uint32, error) {
	if len(libraries) == 0 {
		return nil, nil, fmt.Errorf("no libraries to import")
	}

	buf := NewBuffer(0)
	iatMap := make(map[string]uint32)

	libNames := make([]string, 0, len(libraries))
	for name := range libraries {
		libNames = append(libNames, name)
	}
	sort.Strings(libNames)

	type libData struct {
		name        string
		functions   []string
		iltOffset   uint32
		iatOffset   uint32
		hintsOffset uint32
		nameOffset  uint32
	}

	hintEntrySize := func(funcName string) uint32 {
		n := 2 + len(funcName) + 1
		if n%2 != 0 {
			n++
		}
		return uint32(n)
	}

	// First pass: place every sub-table with one running cursor.
	cursor := uint32((len(libNames) + 1) * 20) // IDT incl. null descriptor
	libs := make([]libData, 0, len(libNames))
	for _, name := range libNames {
		funcs := libraries[name]
		ld := libData{name: name, functions: funcs}
		thunkSize := uint32((len(funcs) + 1) * 8)
		ld.iltOffset = cursor
		cursor += thunkSize
		ld.iatOffset = cursor
		cursor += thunkSize
		libs = append(libs, ld)
	}
	for i := range libs {
		libs[i].hintsOffset = cursor
		for _, fn := range libs[i].functions {
			cursor += hintEntrySize(fn)
		}
	}
	for i := range libs {
		libs[i].nameOffset = cursor
		cursor += uint32(len(libs[i].name) + 1)
	}

	// Import Directory Table
	for _, ld := range libs {
		buf.WriteU32(idataRVA + ld.iltOffset)  // OriginalFirstThunk
		buf.WriteU32(0)                        // TimeDateStamp
		buf.WriteU32(0)                        // ForwarderChain
		buf.WriteU32(idataRVA + ld.nameOffset) // Name
		buf.WriteU32(idataRVA + ld.iatOffset)  // FirstThunk
	}
	buf.WriteN(0, 20) // null descriptor

	// ILT then IAT per DLL, both pointing at the hint/name entries
	for _, ld := range libs {
		for pass := 0; pass < 2; pass++ {
			hint := ld.hintsOffset
			for i, fn := range ld.functions {
				buf.WriteU64(uint64(idataRVA + hint))
				hint += hintEntrySize(fn)
				if pass == 1 {
					iatMap[fn] = idataRVA + ld.iatOffset + uint32(i*8)
				}
			}
			buf.WriteU64(0)
		}
	}

	// Hint/name table
	for _, ld := range libs {
		for _, fn := range ld.functions {
			buf.WriteU16(0) // hint: force lookup by name
			buf.WriteString(fn)
			buf.WriteU8(0)
			if (2+len(fn)+1)%2 != 0 {
				buf.WriteU8(0)
			}
		}
	}

	// DLL names
	for _, ld := range libs {
		buf.WriteString(ld.name)
		buf.WriteU8(0)
	}

	if VerboseMode {
		fmt.Fprintf(os.Stderr, "import data: %d DLLs, %d bytes, %d IAT slots\n",
			len(libs), buf.Len(), len(iatMap))
	}
	return buf.Bytes(), iatMap, nil
}
