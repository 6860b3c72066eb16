// Completion: 100% - Symbol handling complete
package main

// Frame assigns rbp-relative stack slots, 8 bytes each, handed out
// monotonically downward. One Frame per function; the IR emitter and the
// direct path share it so a variable stored by one is found by the
// other.

type Frame struct {
	slots map[string]int32
	size  int32
}

func NewFrame() *Frame {
	return &Frame{slots: make(map[string]int32)}
}

// Slot returns the offset of a variable, assigning the next 8-byte slot
// on first reference.
func (f *Frame) Slot(name string) int32 {
	if off, ok := f.slots[name]; ok {
		return off
	}
	f.size += 8
	off := -f.size
	f.slots[name] = off
	return off
}

// Lookup returns a slot without assigning one.
func (f *Frame) Lookup(name string) (int32, bool) {
	off, ok := f.slots[name]
	return off, ok
}

// Size returns the bytes the frame's variables occupy, a multiple of 8.
func (f *Frame) Size() int32 {
	return f.size
}

// FuncInfo is one user-defined function known to the backend.
type FuncInfo struct {
	Name   string
	Params []string
	Label  string
}

// SymbolTable tracks the functions defined in the program, so calls can
// be routed to labels instead of imports.
type SymbolTable struct {
	funcs map[string]*FuncInfo
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{funcs: make(map[string]*FuncInfo)}
}

func (st *SymbolTable) DefineFunc(name string, params []string) *FuncInfo {
	fi := &FuncInfo{Name: name, Params: params, Label: "fn_" + name}
	st.funcs[name] = fi
	return fi
}

func (st *SymbolTable) Func(name string) (*FuncInfo, bool) {
	fi, ok := st.funcs[name]
	return fi, ok
}
