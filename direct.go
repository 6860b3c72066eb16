// Completion: 100% - Direct-to-assembly path complete
package main

// The direct path: program-tree nodes straight to machine code, no
// intermediate instructions. Control flow, calls, and function bodies
// come through here because they need backpatched jumps and the Windows
// x64 calling convention, neither of which the chain represents.
//
// Each statement compiles into a detached blob with blob-relative
// references and labels; the blob rides the chain as one ICAsm
// instruction and is rebased when the chain is assembled, so direct-path
// and chain-emitted code interleave in program order.
//
// Expression evaluation is a stack machine into rax: left operand to
// rax, push, right operand to rax, move to rbx, pop rax, combine.

type DirectCompiler struct {
	img  *Image
	syms *SymbolTable
}

// blob accumulates one statement's bytes and relocation records.
type blob struct {
	asm    *Asm
	refs   []BlobRef
	labels []BlobLabel
}

func newBlob() *blob {
	return &blob{asm: NewAsm(NewBuffer(256))}
}

func (b *blob) ref(r BlobRef) {
	b.refs = append(b.refs, r)
}

func (b *blob) label(name string) {
	b.labels = append(b.labels, BlobLabel{Name: name, Offset: b.asm.Pos()})
}

func NewDirectCompiler(img *Image, syms *SymbolTable) *DirectCompiler {
	return &DirectCompiler{img: img, syms: syms}
}

// CanCompile reports whether a node should take the direct path.
func (dc *DirectCompiler) CanCompile(node *Node) bool {
	switch node.Kind {
	case NodeIf, NodeWhile, NodeFor, NodeFunc, NodeCall, NodeStrLit:
		return true
	}
	return false
}

// CompileStatement lowers one statement into an ICAsm instruction.
func (dc *DirectCompiler) CompileStatement(node *Node, frame *Frame) (Instruction, bool) {
	b := newBlob()
	ok := dc.stmt(b, node, frame)
	if !ok {
		return Instruction{}, false
	}
	return Instruction{
		Op:     ICAsm,
		Line:   node.Line,
		Bytes:  append([]byte(nil), b.asm.text.Bytes()...),
		Refs:   b.refs,
		Labels: b.labels,
	}, true
}

func (dc *DirectCompiler) stmt(b *blob, node *Node, frame *Frame) bool {
	switch node.Kind {
	case NodeBlock:
		for _, kid := range node.Kids {
			if !dc.stmt(b, kid, frame) {
				return false
			}
		}
		return true

	case NodeDecl, NodeAssign:
		dc.expr(b, node.Kids[0], frame)
		b.asm.MovRegToMem("rax", "rbp", frame.Slot(node.Sval))
		return true

	case NodeExprStmt:
		dc.expr(b, node.Kids[0], frame)
		return true

	case NodeCall:
		dc.call(b, node, frame)
		return true

	case NodeIntLit:
		// bare literal statement: print it
		b.asm.MovImmToReg("rax", node.Ival)
		dc.printRax(b)
		return true

	case NodeStrLit:
		dc.printString(b, node.Sval)
		return true

	case NodeIdent:
		b.asm.MovMemToReg("rax", "rbp", frame.Slot(node.Sval))
		dc.printRax(b)
		return true

	case NodeIf:
		return dc.compileIf(b, node, frame)

	case NodeWhile:
		return dc.compileWhile(b, node, frame)

	case NodeFor:
		return dc.compileFor(b, node, frame)

	case NodeFunc:
		return dc.compileFunc(b, node)

	case NodeReturn:
		if len(node.Kids) > 0 {
			dc.expr(b, node.Kids[0], frame)
		} else {
			b.asm.XorRegWithReg("rax", "rax")
		}
		b.asm.Leave()
		b.asm.Ret()
		return true

	default:
		warnf("line %d: direct path cannot lower %s", node.Line, node.Kind)
		return false
	}
}

// compileIf: condition to rax, jz over the then-block, optional
// unconditional jump over the else-block. Two backpatches: the
// conditional skip and the end-of-then jump.
func (dc *DirectCompiler) compileIf(b *blob, node *Node, frame *Frame) bool {
	dc.expr(b, node.Kids[0], frame)
	b.asm.TestRegReg("rax", "rax")
	skipPos := b.asm.JccRel32(CondE, 0)

	if !dc.stmt(b, node.Kids[1], frame) {
		return false
	}

	if len(node.Kids) > 2 {
		endPos := b.asm.JmpRel32(0)
		b.asm.PatchRel32(skipPos, b.asm.Pos())
		if !dc.stmt(b, node.Kids[2], frame) {
			return false
		}
		b.asm.PatchRel32(endPos, b.asm.Pos())
	} else {
		b.asm.PatchRel32(skipPos, b.asm.Pos())
	}
	return true
}

// compileWhile: top-of-loop condition, jz out, body, jmp back.
func (dc *DirectCompiler) compileWhile(b *blob, node *Node, frame *Frame) bool {
	top := b.asm.Pos()
	dc.expr(b, node.Kids[0], frame)
	b.asm.TestRegReg("rax", "rax")
	exitPos := b.asm.JccRel32(CondE, 0)

	if !dc.stmt(b, node.Kids[1], frame) {
		return false
	}
	// top can be 0, which JmpRel32 would take for a placeholder
	backPos := b.asm.JmpRel32(0)
	b.asm.PatchRel32(backPos, top)
	b.asm.PatchRel32(exitPos, b.asm.Pos())
	return true
}

// compileFor: init, then the while shape with the step before the
// back-jump.
func (dc *DirectCompiler) compileFor(b *blob, node *Node, frame *Frame) bool {
	if !dc.stmt(b, node.Kids[0], frame) {
		return false
	}
	top := b.asm.Pos()
	dc.expr(b, node.Kids[1], frame)
	b.asm.TestRegReg("rax", "rax")
	exitPos := b.asm.JccRel32(CondE, 0)

	if !dc.stmt(b, node.Kids[3], frame) {
		return false
	}
	if !dc.stmt(b, node.Kids[2], frame) {
		return false
	}
	backPos := b.asm.JmpRel32(0)
	b.asm.PatchRel32(backPos, top)
	b.asm.PatchRel32(exitPos, b.asm.Pos())
	return true
}

// compileFunc: label, prologue with a provisional frame size, parameter
// spill from rcx/rdx/r8/r9, body, fallback epilogue, then the real
// frame size patched into the prologue. A jump over the whole body
// keeps straight-line execution from falling into it.
func (dc *DirectCompiler) compileFunc(b *blob, node *Node) bool {
	var params []string
	for _, kid := range node.Kids {
		if kid.Kind == NodeParam {
			params = append(params, kid.Sval)
		}
	}
	if len(params) > 4 {
		compilerError("line %d: function %q has %d parameters, at most 4 are supported",
			node.Line, node.Sval, len(params))
	}
	fi := dc.syms.DefineFunc(node.Sval, params)

	skipPos := b.asm.JmpRel32(0)
	b.label(fi.Label)

	frame := NewFrame()
	framePos := b.asm.Enter(0)
	argRegs := []string{"rcx", "rdx", "r8", "r9"}
	for i, p := range params {
		b.asm.MovRegToMem(argRegs[i], "rbp", frame.Slot(p))
	}

	body := node.Kids[len(node.Kids)-1]
	if !dc.stmt(b, body, frame) {
		return false
	}

	// fallback return 0 for bodies that run off the end
	b.asm.XorRegWithReg("rax", "rax")
	b.asm.Leave()
	b.asm.Ret()

	b.asm.text.PatchU32(framePos, uint32(alignFrame(frame.Size())))
	b.asm.PatchRel32(skipPos, b.asm.Pos())
	return true
}

// alignFrame rounds a frame size up to 16 bytes so rsp stays aligned
// across calls.
func alignFrame(n int32) int32 {
	return (n + 15) &^ 15
}

// expr evaluates an expression into rax.
func (dc *DirectCompiler) expr(b *blob, node *Node, frame *Frame) {
	switch node.Kind {
	case NodeIntLit:
		b.asm.MovImmToReg("rax", node.Ival)

	case NodeIdent:
		b.asm.MovMemToReg("rax", "rbp", frame.Slot(node.Sval))

	case NodeUnary:
		dc.expr(b, node.Kids[0], frame)
		dc.unary(b, node)

	case NodeBinary:
		dc.binary(b, node, frame)

	case NodeCall:
		dc.call(b, node, frame)

	default:
		warnf("line %d: direct path treats %s as 0", node.Line, node.Kind)
		b.asm.XorRegWithReg("rax", "rax")
	}
}

func (dc *DirectCompiler) unary(b *blob, node *Node) {
	switch node.Sval {
	case "-":
		b.asm.Neg(RegOp("rax"))
	case "~":
		b.asm.BitNot(RegOp("rax"))
	case "!":
		b.asm.LogicalNot(RegOp("rax"))
	case "+":
	case "++":
		b.asm.Inc(RegOp("rax"))
	case "--":
		b.asm.Dec(RegOp("rax"))
	default:
		warnf("line %d: unknown unary operator %q", node.Line, node.Sval)
	}
}

// binary evaluates lhs, parks it on the stack, evaluates rhs, then
// combines into rax. && and || short-circuit with real jumps here, since
// the right side may have effects.
func (dc *DirectCompiler) binary(b *blob, node *Node, frame *Frame) {
	if node.Sval == "&&" || node.Sval == "||" {
		dc.shortCircuit(b, node, frame)
		return
	}

	dc.expr(b, node.Kids[0], frame)
	b.asm.PushReg("rax")
	dc.expr(b, node.Kids[1], frame)
	b.asm.MovRegToReg("rbx", "rax")
	b.asm.PopReg("rax")

	rax, rbx := RegOp("rax"), RegOp("rbx")
	switch node.Sval {
	case "+":
		b.asm.ALUOp(EncAdd, rax, rbx)
	case "-":
		b.asm.ALUOp(EncSub, rax, rbx)
	case "*":
		b.asm.Mul(rax, rbx)
	case "/":
		b.asm.Div(rax, rbx, false)
	case "%":
		b.asm.Div(rax, rbx, true)
	case "&":
		b.asm.ALUOp(EncAnd, rax, rbx)
	case "|":
		b.asm.ALUOp(EncOr, rax, rbx)
	case "^":
		b.asm.ALUOp(EncXor, rax, rbx)
	case "<<":
		b.asm.MovRegToReg("rcx", "rbx")
		b.asm.Shift(EncShl, rax, RegOp("rcx"))
	case ">>":
		b.asm.MovRegToReg("rcx", "rbx")
		b.asm.Shift(EncShr, rax, RegOp("rcx"))
	case "==", "!=", "<", "<=", ">", ">=":
		b.asm.CompareSet(cmpEncOps[node.Sval], rax, rbx)
	default:
		warnf("line %d: unknown binary operator %q", node.Line, node.Sval)
	}
}

var cmpEncOps = map[string]EncOp{
	"==": EncCmpEQ, "!=": EncCmpNE, "<": EncCmpLT,
	"<=": EncCmpLE, ">": EncCmpGT, ">=": EncCmpGE,
}

// shortCircuit: for &&, a false left side skips the right side; for ||,
// a true left side does. The result is normalized to 0/1.
func (dc *DirectCompiler) shortCircuit(b *blob, node *Node, frame *Frame) {
	dc.expr(b, node.Kids[0], frame)
	b.asm.TestRegReg("rax", "rax")
	var skipPos int
	if node.Sval == "&&" {
		skipPos = b.asm.JccRel32(CondE, 0)
	} else {
		skipPos = b.asm.JccRel32(CondNE, 0)
	}
	dc.expr(b, node.Kids[1], frame)
	b.asm.PatchRel32(skipPos, b.asm.Pos())
	b.asm.TestRegReg("rax", "rax")
	b.asm.Setcc(CondNE, x86Registers["rax"])
	b.asm.MovzxLoByte(x86Registers["rax"])
}

// call implements the Windows x64 convention: first four arguments in
// rcx/rdx/r8/r9, the rest pushed right to left, 32 bytes of shadow
// space allocated by the caller, caller cleans up. The result lands in
// rax.
func (dc *DirectCompiler) call(b *blob, node *Node, frame *Frame) {
	args := node.Kids
	for i := len(args) - 1; i >= 0; i-- {
		dc.expr(b, args[i], frame)
		b.asm.PushReg("rax")
	}
	argRegs := []string{"rcx", "rdx", "r8", "r9"}
	for i := 0; i < len(args) && i < 4; i++ {
		b.asm.PopReg(argRegs[i])
	}

	b.asm.SubImmFromReg("rsp", 32)
	if fi, ok := dc.syms.Func(node.Sval); ok {
		pos := b.asm.CallRel32(0)
		b.ref(BlobRef{Offset: pos, Kind: RefRel32, Symbol: fi.Label})
	} else {
		dc.img.AddImport("msvcrt.dll", node.Sval, 0)
		pos := b.asm.CallRipIndirect()
		b.ref(BlobRef{Offset: pos, Kind: RefRel32, Symbol: node.Sval})
	}

	cleanup := int64(32)
	if len(args) > 4 {
		cleanup += int64(8 * (len(args) - 4))
	}
	b.asm.AddImmToReg("rsp", cleanup)
}

// printRax prints the value in rax through printf.
func (dc *DirectCompiler) printRax(b *blob) {
	fmtSym := dc.img.AddString("%lld\n")
	dc.img.AddImport("msvcrt.dll", "printf", 0)

	b.asm.MovRegToReg("rdx", "rax")
	dispPos := b.asm.LeaRipRel("rcx")
	b.ref(BlobRef{Offset: dispPos, Kind: RefRel32, Symbol: fmtSym})

	b.asm.SubImmFromReg("rsp", 40)
	callPos := b.asm.CallRipIndirect()
	b.ref(BlobRef{Offset: callPos, Kind: RefRel32, Symbol: "printf"})
	b.asm.AddImmToReg("rsp", 40)
}

// printString prints a literal through puts.
func (dc *DirectCompiler) printString(b *blob, s string) {
	sym := dc.img.AddString(s)
	dc.img.AddImport("msvcrt.dll", "puts", 0)

	dispPos := b.asm.LeaRipRel("rcx")
	b.ref(BlobRef{Offset: dispPos, Kind: RefRel32, Symbol: sym})

	b.asm.SubImmFromReg("rsp", 40)
	callPos := b.asm.CallRipIndirect()
	b.ref(BlobRef{Offset: callPos, Kind: RefRel32, Symbol: "puts"})
	b.asm.AddImmToReg("rsp", 40)
}
