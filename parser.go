// Completion: 100% - Parser complete
package main

// Recursive-descent parser with precedence climbing for binary
// expressions. Statements end at ';' (optional after a closing brace).
// A bare expression statement that is just a literal or identifier
// auto-prints, which the lowering handles; the parser only shapes the
// tree.

type Parser struct {
	toks []Token
	pos  int
}

func NewParser(toks []Token) *Parser {
	return &Parser{toks: toks}
}

func (p *Parser) cur() Token {
	return p.toks[p.pos]
}

func (p *Parser) advance() Token {
	t := p.toks[p.pos]
	if t.Kind != TokEOF {
		p.pos++
	}
	return t
}

func (p *Parser) accept(sval string) bool {
	if p.cur().Kind == TokPunct && p.cur().Sval == sval {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) expect(sval string) {
	if !p.accept(sval) {
		compilerError("line %d: expected %q, found %q", p.cur().Line, sval, p.cur().Sval)
	}
}

func (p *Parser) acceptKeyword(name string) bool {
	if p.cur().Kind == TokKeyword && p.cur().Sval == name {
		p.pos++
		return true
	}
	return false
}

// ParseProgram parses until EOF and returns the program node.
func (p *Parser) ParseProgram() *Node {
	prog := newNode(NodeProgram, 1)
	for p.cur().Kind != TokEOF {
		prog.Kids = append(prog.Kids, p.parseStatement())
	}
	return prog
}

func (p *Parser) parseStatement() *Node {
	t := p.cur()
	switch {
	case p.acceptKeyword("var"):
		name := p.advance()
		if name.Kind != TokIdent {
			compilerError("line %d: expected variable name after var", name.Line)
		}
		p.expect("=")
		init := p.parseExpr(0)
		p.accept(";")
		n := newNode(NodeDecl, t.Line, init)
		n.Sval = name.Sval
		return n

	case p.acceptKeyword("if"):
		return p.parseIf(t.Line)

	case p.acceptKeyword("while"):
		cond := p.parseExpr(0)
		body := p.parseBlock()
		return newNode(NodeWhile, t.Line, cond, body)

	case p.acceptKeyword("for"):
		return p.parseFor(t.Line)

	case p.acceptKeyword("func"):
		return p.parseFunc(t.Line)

	case p.acceptKeyword("return"):
		n := newNode(NodeReturn, t.Line)
		if !p.accept(";") {
			n.Kids = append(n.Kids, p.parseExpr(0))
			p.accept(";")
		}
		return n

	case t.Kind == TokPunct && t.Sval == "{":
		return p.parseBlock()
	}

	// assignment or expression statement
	if t.Kind == TokIdent && p.peekIs(1, "=") {
		p.advance()
		p.advance()
		val := p.parseExpr(0)
		p.accept(";")
		n := newNode(NodeAssign, t.Line, val)
		n.Sval = t.Sval
		return n
	}

	expr := p.parseExpr(0)
	p.accept(";")
	switch expr.Kind {
	case NodeIntLit, NodeStrLit, NodeIdent, NodeCall:
		// bare literals and identifiers auto-print; calls run for effect
		return expr
	}
	return newNode(NodeExprStmt, t.Line, expr)
}

func (p *Parser) peekIs(ahead int, sval string) bool {
	i := p.pos + ahead
	if i >= len(p.toks) {
		return false
	}
	return p.toks[i].Kind == TokPunct && p.toks[i].Sval == sval
}

func (p *Parser) parseIf(line int) *Node {
	cond := p.parseExpr(0)
	then := p.parseBlock()
	n := newNode(NodeIf, line, cond, then)
	if p.acceptKeyword("else") {
		if p.acceptKeyword("if") {
			n.Kids = append(n.Kids, p.parseIf(p.cur().Line))
		} else {
			n.Kids = append(n.Kids, p.parseBlock())
		}
	}
	return n
}

func (p *Parser) parseFor(line int) *Node {
	init := p.parseStatement()
	cond := p.parseExpr(0)
	p.accept(";")
	step := p.parseSimpleStatement()
	body := p.parseBlock()
	return newNode(NodeFor, line, init, cond, step, body)
}

// parseSimpleStatement parses the step clause of a for: an assignment
// or expression, no block forms.
func (p *Parser) parseSimpleStatement() *Node {
	t := p.cur()
	if t.Kind == TokIdent && p.peekIs(1, "=") {
		p.advance()
		p.advance()
		val := p.parseExpr(0)
		n := newNode(NodeAssign, t.Line, val)
		n.Sval = t.Sval
		return n
	}
	return newNode(NodeExprStmt, t.Line, p.parseExpr(0))
}

func (p *Parser) parseFunc(line int) *Node {
	name := p.advance()
	if name.Kind != TokIdent {
		compilerError("line %d: expected function name", name.Line)
	}
	p.expect("(")
	n := newNode(NodeFunc, line)
	n.Sval = name.Sval
	for !p.accept(")") {
		param := p.advance()
		if param.Kind != TokIdent {
			compilerError("line %d: expected parameter name", param.Line)
		}
		pn := newNode(NodeParam, param.Line)
		pn.Sval = param.Sval
		n.Kids = append(n.Kids, pn)
		n.Ival++
		if !p.accept(",") && !p.peekIs(0, ")") {
			compilerError("line %d: expected , or ) in parameter list", p.cur().Line)
		}
	}
	n.Kids = append(n.Kids, p.parseBlock())
	return n
}

func (p *Parser) parseBlock() *Node {
	line := p.cur().Line
	p.expect("{")
	n := newNode(NodeBlock, line)
	for !p.accept("}") {
		if p.cur().Kind == TokEOF {
			compilerError("line %d: unterminated block", line)
		}
		n.Kids = append(n.Kids, p.parseStatement())
	}
	return n
}

// binary operator precedence, higher binds tighter
var precedence = map[string]int{
	"||": 1,
	"&&": 2,
	"|":  3,
	"^":  4,
	"&":  5,
	"==": 6, "!=": 6,
	"<": 7, "<=": 7, ">": 7, ">=": 7,
	"<<": 8, ">>": 8,
	"+": 9, "-": 9,
	"*": 10, "/": 10, "%": 10,
}

func (p *Parser) parseExpr(minPrec int) *Node {
	lhs := p.parseUnary()
	for {
		t := p.cur()
		if t.Kind != TokPunct {
			return lhs
		}
		prec, ok := precedence[t.Sval]
		if !ok || prec < minPrec {
			return lhs
		}
		p.advance()
		rhs := p.parseExpr(prec + 1)
		n := newNode(NodeBinary, t.Line, lhs, rhs)
		n.Sval = t.Sval
		lhs = n
	}
}

func (p *Parser) parseUnary() *Node {
	t := p.cur()
	if t.Kind == TokPunct {
		switch t.Sval {
		case "-", "+", "~", "!", "++", "--":
			p.advance()
			n := newNode(NodeUnary, t.Line, p.parseUnary())
			n.Sval = t.Sval
			return n
		}
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() *Node {
	t := p.advance()
	switch t.Kind {
	case TokInt:
		n := newNode(NodeIntLit, t.Line)
		n.Ival = t.Ival
		return n

	case TokString:
		n := newNode(NodeStrLit, t.Line)
		n.Sval = t.Sval
		return n

	case TokIdent:
		if p.accept("(") {
			n := newNode(NodeCall, t.Line)
			n.Sval = t.Sval
			for !p.accept(")") {
				n.Kids = append(n.Kids, p.parseExpr(0))
				if !p.accept(",") && !p.peekIs(0, ")") {
					compilerError("line %d: expected , or ) in argument list", p.cur().Line)
				}
			}
			return n
		}
		n := newNode(NodeIdent, t.Line)
		n.Sval = t.Sval
		return n

	case TokPunct:
		if t.Sval == "(" {
			inner := p.parseExpr(0)
			p.expect(")")
			return inner
		}
	}
	compilerError("line %d: unexpected token %q", t.Line, t.Sval)
	return nil
}
