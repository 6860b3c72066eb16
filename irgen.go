// Completion: 100% - Intermediate code generation complete
package main

// Lowering from the program tree to the instruction chain. Constant
// folding happens here, before anything is materialized: a binary or
// unary node whose leaves are all integer literals is evaluated at
// generation time and replaced by the result, so a foldable computation
// never becomes machine code. Division or modulo by a folded zero is
// fatal on the spot.
//
// Unknown node kinds are skipped with a warning rather than aborting, so
// a half-built pipeline still produces an inspectable chain.

type IRGenerator struct {
	chain   *InstrChain
	temps   int
	skipped int // unknown node kinds encountered
}

func NewIRGenerator(chain *InstrChain) *IRGenerator {
	return &IRGenerator{chain: chain}
}

func (g *IRGenerator) newTemp() IRValue {
	g.temps++
	return TempVal(g.temps)
}

// Skipped returns how many unknown node kinds were warned about.
func (g *IRGenerator) Skipped() int {
	return g.skipped
}

var binaryICOps = map[string]ICOp{
	"+": ICAdd, "-": ICSub, "*": ICMul, "/": ICDiv, "%": ICMod,
	"&": ICAnd, "|": ICOr, "^": ICXor, "<<": ICShl, ">>": ICShr,
	"==": ICCmpEQ, "!=": ICCmpNE, "<": ICCmpLT, "<=": ICCmpLE,
	">": ICCmpGT, ">=": ICCmpGE, "&&": ICLogAnd, "||": ICLogOr,
}

var unaryICOps = map[string]ICOp{
	"-": ICNeg, "~": ICBitNot, "!": ICLogNot,
}

// Gen lowers one statement node, appending instructions to the chain.
// Returns false only for conditions that make the whole compilation
// meaningless; unknown kinds return true after a warning.
func (g *IRGenerator) Gen(node *Node) bool {
	switch node.Kind {
	case NodeProgram, NodeBlock:
		for _, kid := range node.Kids {
			if !g.Gen(kid) {
				return false
			}
		}
		return true

	case NodeIntLit:
		// A bare literal statement prints itself.
		g.chain.Append(Instruction{Op: ICPrint, A: ConstVal(node.Ival), Line: node.Line})
		return true

	case NodeStrLit:
		g.chain.Append(Instruction{Op: ICPrint, A: IRValue{Kind: ValVar, Name: node.Sval}, Line: node.Line})
		return true

	case NodeIdent:
		g.chain.Append(Instruction{Op: ICPrint, A: VarVal(node.Sval), Line: node.Line})
		return true

	case NodeExprStmt:
		_, ok := g.genExpr(node.Kids[0])
		return ok

	case NodeDecl, NodeAssign:
		val, ok := g.genExpr(node.Kids[0])
		if !ok {
			return false
		}
		g.chain.Append(Instruction{
			Op: ICStore, A: val, Result: VarVal(node.Sval), Line: node.Line,
		})
		return true

	case NodeCall:
		return g.genCall(node) != (IRValue{})

	case NodeReturn:
		ins := Instruction{Op: ICRet, Line: node.Line}
		if len(node.Kids) > 0 {
			val, ok := g.genExpr(node.Kids[0])
			if !ok {
				return false
			}
			ins.A = val
		}
		g.chain.Append(ins)
		return true

	case NodeIf, NodeWhile, NodeFor, NodeFunc:
		// Structured control flow goes through the direct path, which
		// hands us a finished ICAsm blob instead. Reaching here means
		// the router did not intercept the node.
		warnf("line %d: %s lowered without the direct path, emitting branch skeleton", node.Line, node.Kind)
		g.genBranchSkeleton(node)
		return true

	default:
		g.skipped++
		warnf("line %d: skipping unknown node kind %s", node.Line, node.Kind)
		return true
	}
}

// genExpr lowers an expression and returns the value holding the result.
func (g *IRGenerator) genExpr(node *Node) (IRValue, bool) {
	// Fold before lowering anything.
	if v, ok := g.fold(node); ok {
		return ConstVal(v), true
	}

	switch node.Kind {
	case NodeIntLit:
		return ConstVal(node.Ival), true

	case NodeIdent:
		return VarVal(node.Sval), true

	case NodeBinary:
		op, known := binaryICOps[node.Sval]
		if !known {
			g.skipped++
			warnf("line %d: skipping unknown binary operator %q", node.Line, node.Sval)
			return ConstVal(0), true
		}
		lhs, ok := g.genExpr(node.Kids[0])
		if !ok {
			return IRValue{}, false
		}
		rhs, ok := g.genExpr(node.Kids[1])
		if !ok {
			return IRValue{}, false
		}
		dst := g.newTemp()
		g.chain.Append(Instruction{Op: op, A: lhs, B: rhs, Result: dst, Line: node.Line})
		return dst, true

	case NodeUnary:
		op, known := unaryICOps[node.Sval]
		if !known {
			g.skipped++
			warnf("line %d: skipping unknown unary operator %q", node.Line, node.Sval)
			return ConstVal(0), true
		}
		val, ok := g.genExpr(node.Kids[0])
		if !ok {
			return IRValue{}, false
		}
		dst := g.newTemp()
		g.chain.Append(Instruction{Op: op, A: val, Result: dst, Line: node.Line})
		return dst, true

	case NodeCall:
		return g.genCall(node), true

	default:
		g.skipped++
		warnf("line %d: skipping unknown expression kind %s", node.Line, node.Kind)
		return ConstVal(0), true
	}
}

// genCall lowers the arguments and attaches their values to one ICCall;
// the emitter marshals them into the calling convention.
func (g *IRGenerator) genCall(node *Node) IRValue {
	args := make([]IRValue, 0, len(node.Kids))
	for _, arg := range node.Kids {
		val, ok := g.genExpr(arg)
		if !ok {
			return IRValue{}
		}
		args = append(args, val)
	}
	dst := g.newTemp()
	g.chain.Append(Instruction{
		Op: ICCall, A: VarVal(node.Sval), B: ConstVal(int64(len(args))),
		Args: args, Result: dst, Line: node.Line,
	})
	return dst
}

// genBranchSkeleton appends bare branch/jmp placeholders for a control
// node that bypassed the direct path. The skeleton keeps the chain
// well-formed for inspection; it carries no encoded targets.
func (g *IRGenerator) genBranchSkeleton(node *Node) {
	g.chain.Append(Instruction{Op: ICBranch, Line: node.Line})
	for _, kid := range node.Kids {
		g.Gen(kid)
	}
	g.chain.Append(Instruction{Op: ICJmp, Line: node.Line})
}

// fold evaluates a constant subtree. Returns the value and true when the
// whole subtree is integer literals under foldable operators.
func (g *IRGenerator) fold(node *Node) (int64, bool) {
	switch node.Kind {
	case NodeIntLit:
		return node.Ival, true

	case NodeBinary:
		a, ok := g.fold(node.Kids[0])
		if !ok {
			return 0, false
		}
		b, ok := g.fold(node.Kids[1])
		if !ok {
			return 0, false
		}
		return foldBinary(node.Sval, a, b, node.Line)

	case NodeUnary:
		v, ok := g.fold(node.Kids[0])
		if !ok {
			return 0, false
		}
		return foldUnary(node.Sval, v)
	}
	return 0, false
}

// foldBinary evaluates the eight foldable binary operators.
func foldBinary(op string, a, b int64, line int) (int64, bool) {
	switch op {
	case "+":
		return a + b, true
	case "-":
		return a - b, true
	case "*":
		return a * b, true
	case "/":
		if b == 0 {
			compilerError("line %d: division by zero in constant expression", line)
		}
		return a / b, true
	case "%":
		if b == 0 {
			compilerError("line %d: modulo by zero in constant expression", line)
		}
		return a % b, true
	case "&":
		return a & b, true
	case "|":
		return a | b, true
	case "^":
		return a ^ b, true
	}
	return 0, false
}

// foldUnary evaluates the foldable unary operators.
func foldUnary(op string, v int64) (int64, bool) {
	switch op {
	case "-":
		return -v, true
	case "+":
		return v, true
	case "~":
		return ^v, true
	case "!":
		if v == 0 {
			return 1, true
		}
		return 0, true
	case "++":
		return v + 1, true
	case "--":
		return v - 1, true
	case "abs":
		if v < 0 {
			return -v, true
		}
		return v, true
	}
	return 0, false
}
