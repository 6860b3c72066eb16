// Completion: 100% - Lexer complete
package main

import "strconv"

// Token kinds. Operators and punctuation ride in Sval of TokPunct.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokInt
	TokString
	TokIdent
	TokKeyword
	TokPunct
)

type Token struct {
	Kind TokenKind
	Sval string
	Ival int64
	Line int
}

var keywords = map[string]bool{
	"if": true, "else": true, "while": true, "for": true,
	"func": true, "return": true, "var": true,
}

// Lexer produces tokens from one source buffer.
type Lexer struct {
	src  string
	pos  int
	line int
}

func NewLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1}
}

func (lx *Lexer) peek() byte {
	if lx.pos >= len(lx.src) {
		return 0
	}
	return lx.src[lx.pos]
}

func (lx *Lexer) peek2() byte {
	if lx.pos+1 >= len(lx.src) {
		return 0
	}
	return lx.src[lx.pos+1]
}

// Tokenize scans the whole source. Comments run from // to end of line.
func (lx *Lexer) Tokenize() []Token {
	var toks []Token
	for {
		lx.skipSpace()
		if lx.pos >= len(lx.src) {
			toks = append(toks, Token{Kind: TokEOF, Line: lx.line})
			return toks
		}
		c := lx.peek()
		switch {
		case c >= '0' && c <= '9':
			toks = append(toks, lx.lexNumber())
		case c == '"':
			toks = append(toks, lx.lexString())
		case isIdentStart(c):
			toks = append(toks, lx.lexIdent())
		default:
			toks = append(toks, lx.lexPunct())
		}
	}
}

func (lx *Lexer) skipSpace() {
	for lx.pos < len(lx.src) {
		c := lx.peek()
		switch {
		case c == '\n':
			lx.line++
			lx.pos++
		case c == ' ' || c == '\t' || c == '\r':
			lx.pos++
		case c == '/' && lx.peek2() == '/':
			for lx.pos < len(lx.src) && lx.peek() != '\n' {
				lx.pos++
			}
		default:
			return
		}
	}
}

func (lx *Lexer) lexNumber() Token {
	start := lx.pos
	if lx.peek() == '0' && (lx.peek2() == 'x' || lx.peek2() == 'X') {
		lx.pos += 2
		for isHexDigit(lx.peek()) {
			lx.pos++
		}
	} else {
		for lx.peek() >= '0' && lx.peek() <= '9' {
			lx.pos++
		}
	}
	text := lx.src[start:lx.pos]
	v, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		compilerError("line %d: bad integer literal %q", lx.line, text)
	}
	return Token{Kind: TokInt, Ival: v, Sval: text, Line: lx.line}
}

func (lx *Lexer) lexString() Token {
	line := lx.line
	lx.pos++ // opening quote
	var out []byte
	for {
		if lx.pos >= len(lx.src) {
			compilerError("line %d: unterminated string literal", line)
		}
		c := lx.src[lx.pos]
		lx.pos++
		if c == '"' {
			break
		}
		if c == '\\' && lx.pos < len(lx.src) {
			e := lx.src[lx.pos]
			lx.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			case '\\', '"':
				out = append(out, e)
			case '0':
				out = append(out, 0)
			default:
				compilerError("line %d: unknown escape \\%c", line, e)
			}
			continue
		}
		if c == '\n' {
			lx.line++
		}
		out = append(out, c)
	}
	return Token{Kind: TokString, Sval: string(out), Line: line}
}

func (lx *Lexer) lexIdent() Token {
	start := lx.pos
	for lx.pos < len(lx.src) && isIdentPart(lx.peek()) {
		lx.pos++
	}
	name := lx.src[start:lx.pos]
	kind := TokIdent
	if keywords[name] {
		kind = TokKeyword
	}
	return Token{Kind: kind, Sval: name, Line: lx.line}
}

// two-character operators, longest match first
var doublePuncts = []string{
	"==", "!=", "<=", ">=", "&&", "||", "<<", ">>", "++", "--",
}

func (lx *Lexer) lexPunct() Token {
	if lx.pos+1 < len(lx.src) {
		two := lx.src[lx.pos : lx.pos+2]
		for _, p := range doublePuncts {
			if two == p {
				lx.pos += 2
				return Token{Kind: TokPunct, Sval: p, Line: lx.line}
			}
		}
	}
	c := lx.src[lx.pos]
	lx.pos++
	switch c {
	case '+', '-', '*', '/', '%', '&', '|', '^', '~', '!', '<', '>',
		'=', '(', ')', '{', '}', ',', ';':
		return Token{Kind: TokPunct, Sval: string(c), Line: lx.line}
	}
	compilerError("line %d: unexpected character %q", lx.line, string(c))
	return Token{}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
