package expr

// Syntax tree produced by the parser. Positions are byte offsets into the
// source and are only used for error reporting.

type node interface{ offset() int }

type numberNode struct {
	val float64
	at  int
}

type identNode struct {
	name string
	at   int
}

type unaryNode struct {
	op tokenKind
	x  node
	at int
}

type binaryNode struct {
	op   tokenKind
	l, r node
	at   int
}

type callNode struct {
	name string
	args []node
	at   int
}

func (n *numberNode) offset() int { return n.at }
func (n *identNode) offset() int  { return n.at }
func (n *unaryNode) offset() int  { return n.at }
func (n *binaryNode) offset() int { return n.at }
func (n *callNode) offset() int   { return n.at }

const unaryBP = 80

func lbp(k tokenKind) (int, bool) {
	switch k {
	case tokStar, tokSlash:
		return 70, true
	case tokPlus, tokMinus:
		return 60, true
	}
	return 0, false
}

type parser struct {
	src  string
	toks []token
	i    int
}

func parse(src string) (node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	n, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorAt(t, "unexpected %s after complete expression", describe(t))
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) need(k tokenKind, msg string) (token, error) {
	t := p.peek()
	if t.kind != k {
		return t, p.errorAt(t, "%s, found %s", msg, describe(t))
	}
	return p.next(), nil
}

func (p *parser) errorAt(t token, format string, args ...any) error {
	return newError(p.src, t.pos, format, args...)
}

func describe(t token) string {
	switch t.kind {
	case tokNumber, tokIdent:
		return t.kind.String() + " " + t.text
	}
	return t.kind.String()
}

// expr parses operators whose binding power exceeds minBP. All binary
// operators are left associative.
func (p *parser) expr(minBP int) (node, error) {
	left, err := p.prefix()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		bp, ok := lbp(op.kind)
		if !ok || bp <= minBP {
			return left, nil
		}
		p.next()
		right, err := p.expr(bp)
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op.kind, l: left, r: right, at: op.pos}
	}
}

func (p *parser) prefix() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return &numberNode{val: t.num, at: t.pos}, nil
	case tokIdent:
		if p.peek().kind == tokLParen {
			p.next()
			args, err := p.args()
			if err != nil {
				return nil, err
			}
			return &callNode{name: t.text, args: args, at: t.pos}, nil
		}
		return &identNode{name: t.text, at: t.pos}, nil
	case tokMinus, tokPlus:
		x, err := p.expr(unaryBP)
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: t.kind, x: x, at: t.pos}, nil
	case tokLParen:
		x, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.need(tokRParen, "expected ')' to close '('"); err != nil {
			return nil, err
		}
		return x, nil
	case tokEOF:
		return nil, p.errorAt(t, "unexpected end of expression")
	}
	return nil, p.errorAt(t, "unexpected %s", describe(t))
}

// args parses a call's argument list after the opening parenthesis.
func (p *parser) args() ([]node, error) {
	if p.peek().kind == tokRParen {
		p.next()
		return nil, nil
	}
	var out []node
	for {
		a, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
		t := p.next()
		switch t.kind {
		case tokComma:
			continue
		case tokRParen:
			return out, nil
		}
		return nil, p.errorAt(t, "expected ',' or ')' in argument list, found %s", describe(t))
	}
}
