package revset

import (
	"fmt"
	"strings"
)

// ParseError describes a syntax error in a revset expression.
type ParseError struct {
	Message string
	Span    Span
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s at %d", e.Message, e.Span.Start)
}

type parser struct {
	tokens []token
	pos    int
}

// Parse parses a revset expression without expanding aliases.
func Parse(input string) (*Node, error) {
	lex := newLexer(input)
	p := &parser{}
	for {
		tok, err := lex.nextToken()
		if err != nil {
			return nil, &ParseError{Message: err.Error(), Span: Span{Start: lex.pos, End: lex.pos}}
		}
		p.tokens = append(p.tokens, tok)
		if tok.typ == tokEOF {
			break
		}
	}
	if p.current().typ == tokEOF {
		return nil, &ParseError{Message: "empty expression"}
	}
	node, err := p.parseUnion()
	if err != nil {
		return nil, err
	}
	if t := p.current(); t.typ != tokEOF {
		return nil, &ParseError{Message: fmt.Sprintf("unexpected %q", t.lit), Span: t.span}
	}
	return node, nil
}

func (p *parser) current() token {
	if p.pos >= len(p.tokens) {
		return token{typ: tokEOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *parser) isOp(lit string) bool {
	t := p.current()
	return t.typ == tokOp && t.lit == lit
}

func (p *parser) expect(tt tokenType, what string) (token, error) {
	t := p.current()
	if t.typ != tt {
		return t, &ParseError{Message: "expected " + what, Span: t.span}
	}
	return p.next(), nil
}

func (p *parser) parseUnion() (*Node, error) {
	left, err := p.parseIntersection()
	if err != nil {
		return nil, err
	}
	for p.isOp("|") {
		p.next()
		right, err := p.parseIntersection()
		if err != nil {
			return nil, err
		}
		left = binary("|", left, right)
	}
	return left, nil
}

func (p *parser) parseIntersection() (*Node, error) {
	left, err := p.parseNegation()
	if err != nil {
		return nil, err
	}
	for p.isOp("&") || p.isOp("~") {
		op := p.next()
		right, err := p.parseNegation()
		if err != nil {
			return nil, err
		}
		left = binary(op.lit, left, right)
	}
	return left, nil
}

func (p *parser) parseNegation() (*Node, error) {
	if p.isOp("~") {
		op := p.next()
		inner, err := p.parseNegation()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindUnary, Op: "~", Left: inner, Span: Span{Start: op.span.Start, End: inner.Span.End}}, nil
	}
	return p.parseRange()
}

func (p *parser) startsOperand() bool {
	switch p.current().typ {
	case tokSymbol, tokString, tokLParen:
		return true
	}
	return false
}

func (p *parser) parseRange() (*Node, error) {
	if p.isOp("::") || p.isOp("..") {
		op := p.next()
		if !p.startsOperand() {
			if op.lit == "::" {
				return &Node{Kind: KindCall, Name: "all", Span: op.span}, nil
			}
			root := &Node{Kind: KindCall, Name: "root", Span: op.span}
			return &Node{Kind: KindPostfix, Op: "..", Left: root, Span: op.span}, nil
		}
		operand, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindUnary, Op: op.lit, Left: operand, Span: Span{Start: op.span.Start, End: operand.Span.End}}, nil
	}

	left, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.isOp("::") || p.isOp("..") {
		op := p.next()
		if !p.startsOperand() {
			return &Node{Kind: KindPostfix, Op: op.lit, Left: left, Span: Span{Start: left.Span.Start, End: op.span.End}}, nil
		}
		right, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		return binary(op.lit, left, right), nil
	}
	return left, nil
}

func (p *parser) parsePostfix() (*Node, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.isOp("-") || p.isOp("+") {
		op := p.next()
		node = &Node{Kind: KindPostfix, Op: op.lit, Left: node, Span: Span{Start: node.Span.Start, End: op.span.End}}
	}
	return node, nil
}

func (p *parser) parsePrimary() (*Node, error) {
	t := p.current()
	switch t.typ {
	case tokLParen:
		p.next()
		inner, err := p.parseUnion()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokString:
		p.next()
		return &Node{Kind: KindString, Name: t.lit, Span: t.span}, nil
	case tokSymbol:
		p.next()
		switch p.current().typ {
		case tokLParen:
			return p.parseCall(t)
		case tokColon:
			p.next()
			v := p.current()
			if v.typ != tokString && v.typ != tokSymbol {
				return nil, &ParseError{Message: "expected pattern after " + t.lit + ":", Span: v.span}
			}
			p.next()
			return &Node{Kind: KindPattern, Name: t.lit, Value: v.lit, Span: Span{Start: t.span.Start, End: v.span.End}}, nil
		}
		return &Node{Kind: KindSymbol, Name: t.lit, Span: t.span}, nil
	}
	if t.typ == tokEOF {
		return nil, &ParseError{Message: "unexpected end of expression", Span: t.span}
	}
	return nil, &ParseError{Message: fmt.Sprintf("unexpected %q", t.lit), Span: t.span}
}

func (p *parser) parseCall(name token) (*Node, error) {
	p.next() // (
	call := &Node{Kind: KindCall, Name: name.lit}
	if p.current().typ != tokRParen {
		for {
			arg, err := p.parseUnion()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
			if p.current().typ != tokComma {
				break
			}
			p.next()
		}
	}
	end, err := p.expect(tokRParen, "')' after arguments to "+name.lit)
	if err != nil {
		return nil, err
	}
	call.Span = Span{Start: name.span.Start, End: end.span.End}
	return call, nil
}

func binary(op string, left, right *Node) *Node {
	return &Node{Kind: KindBinary, Op: op, Left: left, Right: right, Span: Span{Start: left.Span.Start, End: right.Span.End}}
}

// AliasTable holds user-defined symbol and function aliases.
type AliasTable struct {
	symbols map[string]*Node
	funcs   map[string]aliasFunc
}

type aliasFunc struct {
	params []string
	body   *Node
}

// NewAliasTable parses alias definitions. Keys are either a bare name
// ("trunk") or a function declaration ("author_of(x)").
func NewAliasTable(defs map[string]string) (*AliasTable, error) {
	t := &AliasTable{symbols: map[string]*Node{}, funcs: map[string]aliasFunc{}}
	for decl, def := range defs {
		body, err := Parse(def)
		if err != nil {
			return nil, fmt.Errorf("alias %q: %w", decl, err)
		}
		decl = strings.TrimSpace(decl)
		open := strings.IndexByte(decl, '(')
		if open < 0 {
			t.symbols[decl] = body
			continue
		}
		if !strings.HasSuffix(decl, ")") {
			return nil, fmt.Errorf("alias %q: malformed declaration", decl)
		}
		name := strings.TrimSpace(decl[:open])
		var params []string
		if inner := strings.TrimSpace(decl[open+1 : len(decl)-1]); inner != "" {
			for _, p := range strings.Split(inner, ",") {
				params = append(params, strings.TrimSpace(p))
			}
		}
		t.funcs[name] = aliasFunc{params: params, body: body}
	}
	return t, nil
}

const maxAliasDepth = 64

// Expand replaces alias references in node. Aliases may refer to other
// aliases but not to themselves.
func (t *AliasTable) Expand(node *Node) (*Node, error) {
	if t == nil {
		return node, nil
	}
	return t.expand(node, nil)
}

func (t *AliasTable) expand(node *Node, stack []string) (*Node, error) {
	if len(stack) > maxAliasDepth {
		return nil, fmt.Errorf("alias expansion too deep")
	}
	switch node.Kind {
	case KindSymbol:
		body, ok := t.symbols[node.Name]
		if !ok {
			return node, nil
		}
		if containsName(stack, node.Name) {
			return nil, fmt.Errorf("alias %q expands recursively", node.Name)
		}
		return t.expand(body, append(stack, node.Name))
	case KindCall:
		args := make([]*Node, len(node.Args))
		for i, a := range node.Args {
			ea, err := t.expand(a, stack)
			if err != nil {
				return nil, err
			}
			args[i] = ea
		}
		fn, ok := t.funcs[node.Name]
		if !ok || len(fn.params) != len(args) {
			cp := *node
			cp.Args = args
			return &cp, nil
		}
		key := node.Name + "()"
		if containsName(stack, key) {
			return nil, fmt.Errorf("alias %q expands recursively", key)
		}
		bound := map[string]*Node{}
		for i, p := range fn.params {
			bound[p] = args[i]
		}
		return t.expand(substitute(fn.body, bound), append(stack, key))
	case KindUnary, KindPostfix, KindBinary:
		cp := *node
		var err error
		if cp.Left, err = t.expand(node.Left, stack); err != nil {
			return nil, err
		}
		if node.Right != nil {
			if cp.Right, err = t.expand(node.Right, stack); err != nil {
				return nil, err
			}
		}
		return &cp, nil
	}
	return node, nil
}

// substitute replaces parameter symbols in body with the bound arguments.
func substitute(body *Node, bound map[string]*Node) *Node {
	if len(bound) == 0 {
		return body
	}
	switch body.Kind {
	case KindSymbol:
		if arg, ok := bound[body.Name]; ok {
			return arg
		}
		return body
	case KindCall:
		cp := *body
		cp.Args = make([]*Node, len(body.Args))
		for i, a := range body.Args {
			cp.Args[i] = substitute(a, bound)
		}
		return &cp
	case KindUnary, KindPostfix, KindBinary:
		cp := *body
		cp.Left = substitute(body.Left, bound)
		if body.Right != nil {
			cp.Right = substitute(body.Right, bound)
		}
		return &cp
	}
	return body
}

func containsName(stack []string, name string) bool {
	for _, s := range stack {
		if s == name {
			return true
		}
	}
	return false
}
