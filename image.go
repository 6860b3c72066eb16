// Completion: 100% - Image and reference resolution complete
package main

import "fmt"

// The binary image under construction: the text and data buffers, the
// symbols defined in them, and every reference that was emitted before
// its target was known. Each reference moves Unresolved → Resolved when
// its symbol is found and patched, or Unresolved → Failed when no table
// knows the symbol; one Failed reference fails the whole build. Every
// reference is consumed exactly once.

// RefKind selects the width and addressing of a reference.
type RefKind int

const (
	RefRel8 RefKind = iota
	RefRel16
	RefRel32
	RefAbs8
	RefAbs16
	RefAbs32
	RefAbs64
)

// Width returns the patched byte count.
func (k RefKind) Width() int {
	switch k {
	case RefRel8, RefAbs8:
		return 1
	case RefRel16, RefAbs16:
		return 2
	case RefRel32, RefAbs32:
		return 4
	case RefAbs64:
		return 8
	}
	return 0
}

// Relative reports whether the patched value is IP-relative.
func (k RefKind) Relative() bool {
	return k == RefRel8 || k == RefRel16 || k == RefRel32
}

func (k RefKind) String() string {
	switch k {
	case RefRel8:
		return "rel8"
	case RefRel16:
		return "rel16"
	case RefRel32:
		return "rel32"
	case RefAbs8:
		return "abs8"
	case RefAbs16:
		return "abs16"
	case RefAbs32:
		return "abs32"
	case RefAbs64:
		return "abs64"
	}
	return "?"
}

// RefState tracks a reference through resolution.
type RefState int

const (
	RefUnresolved RefState = iota
	RefResolved
	RefFailed
)

func (s RefState) String() string {
	switch s {
	case RefUnresolved:
		return "unresolved"
	case RefResolved:
		return "resolved"
	case RefFailed:
		return "failed"
	}
	return "?"
}

// Reference is one pending relocation in the text section. Offset is the
// position of the placeholder. Either Symbol names an import, label, or
// data symbol, or (Symbol empty) Target is a direct text offset.
type Reference struct {
	Offset int
	Kind   RefKind
	Symbol string
	Target int64
	State  RefState
}

// ImportEntry is one function imported from a DLL. IATRVA is filled by
// the PE builder once the import tables have been laid out.
type ImportEntry struct {
	DLL    string
	Name   string
	Hint   uint16
	IATRVA uint32
}

// ExportEntry is a function defined in this image.
type ExportEntry struct {
	Name   string
	Offset int // text offset
}

// Layout carries the section RVAs the PE builder assigned. References
// against imports and data need them; text-to-text references do not.
type Layout struct {
	ImageBase uint64
	TextRVA   uint32
	DataRVA   uint32
	RDataRVA  uint32
}

// Image owns the section buffers and symbol tables for one compilation.
type Image struct {
	Text  *Buffer
	Data  *Buffer
	RData *Buffer

	labels  map[string]int // name -> text offset
	dataSym map[string]int // name -> rdata offset
	refs    []Reference
	imports []ImportEntry
	exports []ExportEntry
}

func NewImage() *Image {
	return &Image{
		Text:    NewBuffer(0),
		Data:    NewBuffer(0),
		RData:   NewBuffer(0),
		labels:  make(map[string]int),
		dataSym: make(map[string]int),
	}
}

// DefineLabel binds a name to the current (or given) text offset. Each
// label also becomes an export entry, recorded once in definition order.
func (img *Image) DefineLabel(name string, offset int) {
	if old, exists := img.labels[name]; exists {
		if old != offset {
			compilerError("label %q defined twice (0x%x and 0x%x)", name, old, offset)
		}
		return
	}
	img.labels[name] = offset
	img.exports = append(img.exports, ExportEntry{Name: name, Offset: offset})
}

// Label looks a name up in the label table.
func (img *Image) Label(name string) (int, bool) {
	off, ok := img.labels[name]
	return off, ok
}

// Exports returns the labels defined in the text section, in definition
// order. The verbose compilation summary lists them.
func (img *Image) Exports() []ExportEntry {
	return img.exports
}

// AddString interns a NUL-terminated string in .rdata and returns its
// symbol name. Identical strings share one copy.
func (img *Image) AddString(s string) string {
	name := fmt.Sprintf("str_%d", len(img.dataSym))
	for existing, off := range img.dataSym {
		if img.stringAt(off) == s {
			return existing
		}
	}
	img.dataSym[name] = img.RData.Len()
	img.RData.WriteString(s)
	img.RData.WriteU8(0)
	return name
}

func (img *Image) stringAt(off int) string {
	b := img.RData.Bytes()
	end := off
	for end < len(b) && b[end] != 0 {
		end++
	}
	return string(b[off:end])
}

// DataSymbol returns the .rdata offset of an interned symbol.
func (img *Image) DataSymbol(name string) (int, bool) {
	off, ok := img.dataSym[name]
	return off, ok
}

// AddImport registers a DLL function. Duplicates collapse to one entry.
func (img *Image) AddImport(dll, name string, hint uint16) {
	for _, imp := range img.imports {
		if imp.DLL == dll && imp.Name == name {
			return
		}
	}
	img.imports = append(img.imports, ImportEntry{DLL: dll, Name: name, Hint: hint})
}

// Imports exposes the collected entries to the PE builder, which fills
// in each IATRVA during layout.
func (img *Image) Imports() []ImportEntry {
	return img.imports
}

// AddRef records a pending relocation.
func (img *Image) AddRef(ref Reference) {
	ref.State = RefUnresolved
	img.refs = append(img.refs, ref)
}

// Refs exposes the reference table (tests inspect states through it).
func (img *Image) Refs() []Reference {
	return img.refs
}

func (img *Image) findImport(name string) (ImportEntry, bool) {
	for _, imp := range img.imports {
		if imp.Name == name {
			return imp, true
		}
	}
	return ImportEntry{}, false
}

// Resolve patches every unresolved reference against the label, import,
// and data tables, in that lookup order. Returns an error naming every
// symbol that no table knows; those references are left in the Failed
// state.
func (img *Image) Resolve(layout Layout) error {
	var failed []string
	for i := range img.refs {
		ref := &img.refs[i]
		if ref.State != RefUnresolved {
			continue
		}

		var targetVA int64 // RVA of the target
		found := true
		switch {
		case ref.Symbol == "":
			targetVA = int64(layout.TextRVA) + ref.Target
		default:
			if off, ok := img.labels[ref.Symbol]; ok {
				targetVA = int64(layout.TextRVA) + int64(off)
			} else if imp, ok := img.findImport(ref.Symbol); ok {
				targetVA = int64(imp.IATRVA)
			} else if off, ok := img.dataSym[ref.Symbol]; ok {
				targetVA = int64(layout.RDataRVA) + int64(off)
			} else {
				found = false
			}
		}
		if !found {
			ref.State = RefFailed
			failed = append(failed, ref.Symbol)
			continue
		}

		img.patch(ref, targetVA, layout)
		ref.State = RefResolved
	}
	if len(failed) > 0 {
		return fmt.Errorf("unresolved symbols: %v", failed)
	}
	return nil
}

func (img *Image) patch(ref *Reference, targetVA int64, layout Layout) {
	var value int64
	if ref.Kind.Relative() {
		next := int64(layout.TextRVA) + int64(ref.Offset+ref.Kind.Width())
		value = targetVA - next
	} else {
		// absolute kinds carry the full virtual address
		value = int64(layout.ImageBase) + targetVA
	}
	switch ref.Kind {
	case RefRel8, RefAbs8:
		img.Text.PatchU8(ref.Offset, uint8(value))
	case RefRel16, RefAbs16:
		img.Text.PatchU16(ref.Offset, uint16(value))
	case RefRel32, RefAbs32:
		img.Text.PatchU32(ref.Offset, uint32(value))
	case RefAbs64:
		img.Text.PatchU64(ref.Offset, uint64(value))
	}
}

// Finalize refuses to hand out an image with pending or failed
// references; a successfully produced image has none.
func (img *Image) Finalize() error {
	for _, ref := range img.refs {
		if ref.State != RefResolved {
			return fmt.Errorf("reference at 0x%x (%s, %q) is %s",
				ref.Offset, ref.Kind, ref.Symbol, ref.State)
		}
	}
	return nil
}
