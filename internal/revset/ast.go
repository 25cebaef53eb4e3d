// Package revset parses and evaluates revision set expressions.
//
// The grammar, loosest binding first:
//
//	x | y          union
//	x & y, x ~ y   intersection, difference
//	~x             complement
//	x::y x.. ::x   ranges (prefix, infix and postfix)
//	x- x+          parents, children
//	f(args) sym "str" kind:value (x)
package revset

import "strings"

// Span is a byte range of the source expression.
type Span struct {
	Start int
	End   int
}

// NodeKind is the type of an AST node.
type NodeKind int

const (
	KindSymbol NodeKind = iota
	KindString
	KindPattern
	KindCall
	KindUnary
	KindPostfix
	KindBinary
)

// Node is a revset AST node.
type Node struct {
	Kind NodeKind
	Span Span

	// Symbol, String, Call: the name or literal. Pattern: the pattern kind.
	Name string
	// Pattern: the value after the colon.
	Value string

	// Unary, Postfix, Binary
	Op    string
	Left  *Node
	Right *Node

	// Call
	Args []*Node
}

func (n *Node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *Node) write(b *strings.Builder) {
	switch n.Kind {
	case KindSymbol:
		b.WriteString(n.Name)
	case KindString:
		b.WriteString(quote(n.Name))
	case KindPattern:
		b.WriteString(n.Name + ":" + quote(n.Value))
	case KindCall:
		b.WriteString(n.Name + "(")
		for i, a := range n.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			a.write(b)
		}
		b.WriteString(")")
	case KindUnary:
		b.WriteString(n.Op)
		n.Left.write(b)
	case KindPostfix:
		n.Left.write(b)
		b.WriteString(n.Op)
	case KindBinary:
		b.WriteString("(")
		n.Left.write(b)
		b.WriteString(" " + n.Op + " ")
		n.Right.write(b)
		b.WriteString(")")
	}
}

func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
