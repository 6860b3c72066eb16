// Completion: 100% - Program tree complete
package main

// The program tree handed to the backend. Nodes are deliberately plain:
// one kind tag, a source line, a string and an integer payload, and
// ordered children. Operators ride in the string payload.

type NodeKind int

const (
	NodeProgram NodeKind = iota
	NodeIntLit
	NodeStrLit
	NodeIdent
	NodeUnary  // Sval is the operator, Kids[0] the operand
	NodeBinary // Sval is the operator, Kids[0] and Kids[1] the operands
	NodeAssign // Sval is the variable name, Kids[0] the value
	NodeDecl   // Sval is the variable name, Kids[0] the initializer
	NodeCall   // Sval is the callee name, Kids are the arguments
	NodeIf     // Kids: condition, then-block, optional else-block
	NodeWhile  // Kids: condition, body
	NodeFor    // Kids: init, condition, step, body
	NodeBlock
	NodeFunc   // Sval is the name, Ival the parameter count, params then body in Kids
	NodeParam  // Sval is the parameter name
	NodeReturn // Kids[0] is the optional value
	NodeExprStmt
)

var nodeKindNames = map[NodeKind]string{
	NodeProgram: "program", NodeIntLit: "int", NodeStrLit: "string",
	NodeIdent: "ident", NodeUnary: "unary", NodeBinary: "binary",
	NodeAssign: "assign", NodeDecl: "decl", NodeCall: "call",
	NodeIf: "if", NodeWhile: "while", NodeFor: "for", NodeBlock: "block",
	NodeFunc: "func", NodeParam: "param", NodeReturn: "return",
	NodeExprStmt: "exprstmt",
}

func (k NodeKind) String() string {
	if s, ok := nodeKindNames[k]; ok {
		return s
	}
	return "unknown"
}

type Node struct {
	Kind NodeKind
	Line int
	Sval string
	Ival int64
	Kids []*Node
}

func newNode(kind NodeKind, line int, kids ...*Node) *Node {
	return &Node{Kind: kind, Line: line, Kids: kids}
}

// IsLiteral reports whether a node is a bare literal (auto-printed when
// it stands alone as a statement).
func (n *Node) IsLiteral() bool {
	return n.Kind == NodeIntLit || n.Kind == NodeStrLit
}
