package main

import (
	"testing"
)

// TestTokenizeBasicStatement tests the token stream for a declaration
func TestTokenizeBasicStatement(t *testing.T) {
	toks := NewLexer("var x = 42").Tokenize()

	want := []struct {
		kind TokenKind
		sval string
	}{
		{TokKeyword, "var"},
		{TokIdent, "x"},
		{TokPunct, "="},
		{TokInt, ""},
		{TokEOF, ""},
	}
	if len(toks) != len(want) {
		t.Fatalf("Expected %d tokens, got %d", len(want), len(toks))
	}
	for i, w := range want {
		if toks[i].Kind != w.kind {
			t.Errorf("Token %d: expected kind %d, got %d", i, w.kind, toks[i].Kind)
		}
		if w.sval != "" && toks[i].Sval != w.sval {
			t.Errorf("Token %d: expected %q, got %q", i, w.sval, toks[i].Sval)
		}
	}
	if toks[3].Ival != 42 {
		t.Errorf("Expected 42, got %d", toks[3].Ival)
	}
}

// TestHexLiterals tests base-16 integers
func TestHexLiterals(t *testing.T) {
	toks := NewLexer("0xFF 0x10").Tokenize()
	if toks[0].Ival != 255 || toks[1].Ival != 16 {
		t.Errorf("Expected 255 and 16, got %d and %d", toks[0].Ival, toks[1].Ival)
	}
}

// TestStringEscapes tests the escape sequences
func TestStringEscapes(t *testing.T) {
	toks := NewLexer(`"a\n\tb\\\"" "plain"`).Tokenize()
	if toks[0].Sval != "a\n\tb\\\"" {
		t.Errorf("Escape handling wrong: %q", toks[0].Sval)
	}
	if toks[1].Sval != "plain" {
		t.Errorf("Expected plain, got %q", toks[1].Sval)
	}
}

// TestTwoCharOperatorsWinOverSingle tests longest-match scanning
func TestTwoCharOperatorsWinOverSingle(t *testing.T) {
	toks := NewLexer("a <= b << 2 && c != d").Tokenize()
	var ops []string
	for _, tok := range toks {
		if tok.Kind == TokPunct {
			ops = append(ops, tok.Sval)
		}
	}
	want := []string{"<=", "<<", "&&", "!="}
	if len(ops) != len(want) {
		t.Fatalf("Expected %d operators, got %v", len(want), ops)
	}
	for i, w := range want {
		if ops[i] != w {
			t.Errorf("Operator %d: expected %q, got %q", i, w, ops[i])
		}
	}
}

// TestCommentsAndLineNumbers tests // comments and line tracking
func TestCommentsAndLineNumbers(t *testing.T) {
	src := "var a = 1 // trailing\n// whole line\nvar b = 2\n"
	toks := NewLexer(src).Tokenize()

	var idents []Token
	for _, tok := range toks {
		if tok.Kind == TokIdent {
			idents = append(idents, tok)
		}
	}
	if len(idents) != 2 {
		t.Fatalf("Expected 2 identifiers, got %d", len(idents))
	}
	if idents[0].Line != 1 || idents[1].Line != 3 {
		t.Errorf("Expected lines 1 and 3, got %d and %d", idents[0].Line, idents[1].Line)
	}
}
