// Completion: 100% - Intermediate representation complete
package main

// The intermediate representation: near-machine instructions held in an
// arena-backed chain. Links are integer handles into the arena, never
// pointers, because the arena reallocates on growth and a held pointer
// would dangle across an append. Removal unlinks a node and marks its
// slot dead; slots are never reused within one compilation context.

// ICOp is the operation code of one intermediate instruction.
type ICOp int

const (
	ICNop ICOp = iota

	// arithmetic and bitwise
	ICAdd
	ICSub
	ICMul
	ICDiv
	ICMod
	ICAnd
	ICOr
	ICXor
	ICShl
	ICShr
	ICNeg
	ICBitNot

	// comparisons and logic
	ICCmpEQ
	ICCmpNE
	ICCmpLT
	ICCmpLE
	ICCmpGT
	ICCmpGE
	ICLogAnd
	ICLogOr
	ICLogNot

	// data movement
	ICLoad
	ICStore
	ICMove

	// control
	ICJmp
	ICBranch
	ICCall
	ICRet

	// output of a bare literal statement
	ICPrint

	// a pre-encoded machine-code blob from the direct path, with
	// blob-relative references to shift at final assembly
	ICAsm

	// ahead-of-time image operations
	ICAOTStore
	ICAOTResolve
	ICAOTPatch
)

var icOpNames = map[ICOp]string{
	ICNop: "nop", ICAdd: "add", ICSub: "sub", ICMul: "mul", ICDiv: "div",
	ICMod: "mod", ICAnd: "and", ICOr: "or", ICXor: "xor", ICShl: "shl",
	ICShr: "shr", ICNeg: "neg", ICBitNot: "bitnot",
	ICCmpEQ: "cmpeq", ICCmpNE: "cmpne", ICCmpLT: "cmplt", ICCmpLE: "cmple",
	ICCmpGT: "cmpgt", ICCmpGE: "cmpge", ICLogAnd: "logand",
	ICLogOr: "logor", ICLogNot: "lognot",
	ICLoad: "load", ICStore: "store", ICMove: "move",
	ICJmp: "jmp", ICBranch: "branch", ICCall: "call", ICRet: "ret",
	ICPrint: "print", ICAsm: "asm",
	ICAOTStore: "aotstore", ICAOTResolve: "aotresolve", ICAOTPatch: "aotpatch",
}

func (op ICOp) String() string {
	if s, ok := icOpNames[op]; ok {
		return s
	}
	return "unknown"
}

// IRValueKind classifies an instruction operand.
type IRValueKind int

const (
	ValNone IRValueKind = iota
	ValConst
	ValVar
	ValTemp
)

// IRValue is a variable, constant, or temporary referenced by an
// instruction. Temps are numbered per generation context.
type IRValue struct {
	Kind IRValueKind
	Imm  int64
	Name string
	Temp int
}

func ConstVal(v int64) IRValue {
	return IRValue{Kind: ValConst, Imm: v}
}

func VarVal(name string) IRValue {
	return IRValue{Kind: ValVar, Name: name}
}

func TempVal(n int) IRValue {
	return IRValue{Kind: ValTemp, Temp: n}
}

// Optimization flags recorded on instructions by the passes.
const (
	FlagFolded  uint8 = 1 << 0 // result known at generation time
	FlagPointer uint8 = 1 << 1 // result carries an address, not a value
	FlagLive    uint8 = 1 << 2 // result is consumed downstream
)

// BlobRef is a reference inside an ICAsm blob, relative to the blob's
// first byte. At final assembly the blob lands at some text offset and
// every ref shifts by that base before being handed to the image.
type BlobRef struct {
	Offset int     // placeholder position within the blob
	Kind   RefKind // width and rel/abs
	Symbol string  // import or label name; empty when Target is direct
	Target int     // blob-relative target, used when Symbol is empty
}

// BlobLabel is a label defined inside an ICAsm blob, at an offset
// relative to the blob's first byte.
type BlobLabel struct {
	Name   string
	Offset int
}

// Instruction is one node of the chain. next/prev are arena handles,
// -1 at the ends.
type Instruction struct {
	Op     ICOp
	A, B   IRValue
	Result IRValue
	Flags  uint8
	Line   int

	// call arguments in source order; only ICCall carries these
	Args []IRValue

	// filled in by the optimizer passes
	Regs        []Register
	StackOffset int32

	// filled in by final emission, or carried in by ICAsm
	Bytes  []byte
	Refs   []BlobRef
	Labels []BlobLabel

	next, prev int
	dead       bool
}

// InstrChain owns the instruction arena. The zero handle is a valid
// slot, so the empty chain uses -1 sentinels.
type InstrChain struct {
	nodes []Instruction
	head  int
	tail  int
	live  int
}

func NewInstrChain() *InstrChain {
	return &InstrChain{head: -1, tail: -1}
}

// Head and Tail return the end handles, -1 when empty.
func (c *InstrChain) Head() int { return c.head }
func (c *InstrChain) Tail() int { return c.tail }

// Len returns the number of live instructions.
func (c *InstrChain) Len() int { return c.live }

// At returns the instruction at a handle. The pointer is valid only
// until the next Append.
func (c *InstrChain) At(h int) *Instruction {
	return &c.nodes[h]
}

// Next and Prev walk the chain, skipping nothing: dead nodes are already
// unlinked.
func (c *InstrChain) Next(h int) int { return c.nodes[h].next }
func (c *InstrChain) Prev(h int) int { return c.nodes[h].prev }

// Append links a new instruction at the tail and returns its handle.
func (c *InstrChain) Append(ins Instruction) int {
	ins.next = -1
	ins.prev = c.tail
	ins.dead = false
	h := len(c.nodes)
	c.nodes = append(c.nodes, ins)
	if c.tail >= 0 {
		c.nodes[c.tail].next = h
	} else {
		c.head = h
	}
	c.tail = h
	c.live++
	return h
}

// Remove unlinks an instruction and marks its slot dead. Head and tail
// stay consistent; the slot itself stays allocated so that any handle
// still held elsewhere indexes valid (if dead) storage.
func (c *InstrChain) Remove(h int) {
	n := &c.nodes[h]
	if n.dead {
		return
	}
	if n.prev >= 0 {
		c.nodes[n.prev].next = n.next
	} else {
		c.head = n.next
	}
	if n.next >= 0 {
		c.nodes[n.next].prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.dead = true
	n.next = -1
	n.prev = -1
	c.live--
}

// Dead reports whether a handle was removed.
func (c *InstrChain) Dead(h int) bool {
	return c.nodes[h].dead
}

// ForEach visits every live instruction in chain order. The visitor may
// Remove the current node but must not Append.
func (c *InstrChain) ForEach(fn func(h int, ins *Instruction)) {
	for h := c.head; h >= 0; {
		next := c.nodes[h].next
		fn(h, &c.nodes[h])
		h = next
	}
}
