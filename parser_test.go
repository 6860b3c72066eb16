package main

import (
	"testing"
)

func parseOne(t *testing.T, src string) *Node {
	t.Helper()
	prog := NewParser(NewLexer(src).Tokenize()).ParseProgram()
	if len(prog.Kids) != 1 {
		t.Fatalf("Expected 1 statement, got %d", len(prog.Kids))
	}
	return prog.Kids[0]
}

// TestPrecedenceMultiplicationBindsTighter tests 2 + 3 * 4 shapes as
// 2 + (3 * 4)
func TestPrecedenceMultiplicationBindsTighter(t *testing.T) {
	n := parseOne(t, "var x = 2 + 3 * 4")
	expr := n.Kids[0]
	if expr.Kind != NodeBinary || expr.Sval != "+" {
		t.Fatalf("Expected + at the root, got %s %q", expr.Kind, expr.Sval)
	}
	rhs := expr.Kids[1]
	if rhs.Kind != NodeBinary || rhs.Sval != "*" {
		t.Errorf("Expected * on the right, got %s %q", rhs.Kind, rhs.Sval)
	}
	if expr.Kids[0].Ival != 2 || rhs.Kids[0].Ival != 3 || rhs.Kids[1].Ival != 4 {
		t.Errorf("Leaves wrong: %d, %d, %d", expr.Kids[0].Ival, rhs.Kids[0].Ival, rhs.Kids[1].Ival)
	}
}

// TestParensOverridePrecedence tests (2 + 3) * 4
func TestParensOverridePrecedence(t *testing.T) {
	n := parseOne(t, "var x = (2 + 3) * 4")
	expr := n.Kids[0]
	if expr.Sval != "*" {
		t.Fatalf("Expected * at the root, got %q", expr.Sval)
	}
	if expr.Kids[0].Sval != "+" {
		t.Errorf("Expected + on the left, got %q", expr.Kids[0].Sval)
	}
}

// TestComparisonBindsLooserThanShift tests a << 1 < b shapes as
// (a << 1) < b
func TestComparisonBindsLooserThanShift(t *testing.T) {
	n := parseOne(t, "var x = a << 1 < b")
	expr := n.Kids[0]
	if expr.Sval != "<" {
		t.Fatalf("Expected < at the root, got %q", expr.Sval)
	}
	if expr.Kids[0].Sval != "<<" {
		t.Errorf("Expected << on the left, got %q", expr.Kids[0].Sval)
	}
}

// TestElseIfChains tests that else-if nests another if as the else arm
func TestElseIfChains(t *testing.T) {
	n := parseOne(t, "if a { b = 1 } else if c { b = 2 } else { b = 3 }")
	if n.Kind != NodeIf || len(n.Kids) != 3 {
		t.Fatalf("Expected if with 3 kids, got %s with %d", n.Kind, len(n.Kids))
	}
	elseArm := n.Kids[2]
	if elseArm.Kind != NodeIf {
		t.Fatalf("Expected nested if in the else arm, got %s", elseArm.Kind)
	}
	if len(elseArm.Kids) != 3 {
		t.Errorf("Nested if lost its else block: %d kids", len(elseArm.Kids))
	}
}

// TestForStatementShape tests the init/cond/step/body kid order
func TestForStatementShape(t *testing.T) {
	n := parseOne(t, "for var i = 0; i < 10; i = i + 1 { x = i }")
	if n.Kind != NodeFor || len(n.Kids) != 4 {
		t.Fatalf("Expected for with 4 kids, got %s with %d", n.Kind, len(n.Kids))
	}
	if n.Kids[0].Kind != NodeDecl {
		t.Errorf("Expected declaration init, got %s", n.Kids[0].Kind)
	}
	if n.Kids[1].Kind != NodeBinary || n.Kids[1].Sval != "<" {
		t.Errorf("Expected < condition, got %s %q", n.Kids[1].Kind, n.Kids[1].Sval)
	}
	if n.Kids[2].Kind != NodeAssign {
		t.Errorf("Expected assignment step, got %s", n.Kids[2].Kind)
	}
	if n.Kids[3].Kind != NodeBlock {
		t.Errorf("Expected block body, got %s", n.Kids[3].Kind)
	}
}

// TestFunctionDefinitionShape tests params, arity, and the trailing body
func TestFunctionDefinitionShape(t *testing.T) {
	n := parseOne(t, "func add(a, b) { return a + b }")
	if n.Kind != NodeFunc || n.Sval != "add" {
		t.Fatalf("Expected func add, got %s %q", n.Kind, n.Sval)
	}
	if n.Ival != 2 {
		t.Errorf("Expected arity 2, got %d", n.Ival)
	}
	if n.Kids[0].Kind != NodeParam || n.Kids[0].Sval != "a" {
		t.Errorf("First param wrong: %s %q", n.Kids[0].Kind, n.Kids[0].Sval)
	}
	body := n.Kids[len(n.Kids)-1]
	if body.Kind != NodeBlock {
		t.Errorf("Expected block body last, got %s", body.Kind)
	}
	if body.Kids[0].Kind != NodeReturn {
		t.Errorf("Expected return in the body, got %s", body.Kids[0].Kind)
	}
}

// TestBareLiteralPassesThrough tests that a bare literal statement stays
// a literal node instead of wrapping in an expression statement
func TestBareLiteralPassesThrough(t *testing.T) {
	n := parseOne(t, "42")
	if n.Kind != NodeIntLit || n.Ival != 42 {
		t.Errorf("Expected bare literal, got %s", n.Kind)
	}
}

// TestUnaryChain tests stacked unary operators
func TestUnaryChain(t *testing.T) {
	n := parseOne(t, "var x = -~5")
	expr := n.Kids[0]
	if expr.Kind != NodeUnary || expr.Sval != "-" {
		t.Fatalf("Expected - outermost, got %s %q", expr.Kind, expr.Sval)
	}
	inner := expr.Kids[0]
	if inner.Kind != NodeUnary || inner.Sval != "~" {
		t.Errorf("Expected ~ inside, got %s %q", inner.Kind, inner.Sval)
	}
}

// TestCallArguments tests argument list parsing
func TestCallArguments(t *testing.T) {
	n := parseOne(t, "f(1, 2 + 3, g(4))")
	if n.Kind != NodeCall || n.Sval != "f" {
		t.Fatalf("Expected call to f, got %s %q", n.Kind, n.Sval)
	}
	if len(n.Kids) != 3 {
		t.Fatalf("Expected 3 arguments, got %d", len(n.Kids))
	}
	if n.Kids[1].Sval != "+" {
		t.Errorf("Expected + expression argument, got %q", n.Kids[1].Sval)
	}
	if n.Kids[2].Kind != NodeCall || n.Kids[2].Sval != "g" {
		t.Errorf("Expected nested call to g, got %s %q", n.Kids[2].Kind, n.Kids[2].Sval)
	}
}
