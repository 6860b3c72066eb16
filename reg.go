// Completion: 100% - Utility module complete
package main

// Register definitions for x86-64

type Register struct {
	Name     string
	Size     int   // Size in bits
	Encoding uint8 // Encoding for instruction generation
}

// Extended returns true for r8-r15, which need a REX bit to address.
func (r Register) Extended() bool {
	return r.Encoding >= 8
}

var x86Registers = map[string]Register{
	"rax": {Name: "rax", Size: 64, Encoding: 0},
	"rcx": {Name: "rcx", Size: 64, Encoding: 1},
	"rdx": {Name: "rdx", Size: 64, Encoding: 2},
	"rbx": {Name: "rbx", Size: 64, Encoding: 3},
	"rsp": {Name: "rsp", Size: 64, Encoding: 4},
	"rbp": {Name: "rbp", Size: 64, Encoding: 5},
	"rsi": {Name: "rsi", Size: 64, Encoding: 6},
	"rdi": {Name: "rdi", Size: 64, Encoding: 7},
	"r8":  {Name: "r8", Size: 64, Encoding: 8},
	"r9":  {Name: "r9", Size: 64, Encoding: 9},
	"r10": {Name: "r10", Size: 64, Encoding: 10},
	"r11": {Name: "r11", Size: 64, Encoding: 11},
	"r12": {Name: "r12", Size: 64, Encoding: 12},
	"r13": {Name: "r13", Size: 64, Encoding: 13},
	"r14": {Name: "r14", Size: 64, Encoding: 14},
	"r15": {Name: "r15", Size: 64, Encoding: 15},

	// 8-bit low-byte registers, used by the SETcc sequences
	"al":   {Name: "al", Size: 8, Encoding: 0},
	"cl":   {Name: "cl", Size: 8, Encoding: 1},
	"dl":   {Name: "dl", Size: 8, Encoding: 2},
	"bl":   {Name: "bl", Size: 8, Encoding: 3},
	"r8b":  {Name: "r8b", Size: 8, Encoding: 8},
	"r9b":  {Name: "r9b", Size: 8, Encoding: 9},
	"r10b": {Name: "r10b", Size: 8, Encoding: 10},
	"r11b": {Name: "r11b", Size: 8, Encoding: 11},
}

// GetRegister looks up a register by name.
func GetRegister(name string) (Register, bool) {
	r, ok := x86Registers[name]
	return r, ok
}

// IsRegister returns true if name is a known register.
func IsRegister(name string) bool {
	_, ok := x86Registers[name]
	return ok
}

// allocatablePool is the fixed set the register allocator hands out, in
// allocation order. rsp and rbp are excluded: they hold the stack and frame
// pointers for the whole function. r11 is excluded because Div stages the
// divisor through it, and a pooled r11 could hold the dividend at that
// point. r12 and r13 are the emitter's reload scratches; r14 and r15 are
// simply unclaimed.
var allocatablePool = []string{
	"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "r8", "r9", "r10",
}

// loByteName maps a 64-bit register name to its low-byte alias.
var loByteName = map[string]string{
	"rax": "al", "rcx": "cl", "rdx": "dl", "rbx": "bl",
	"rsi": "sil", "rdi": "dil",
	"r8": "r8b", "r9": "r9b", "r10": "r10b", "r11": "r11b",
}
