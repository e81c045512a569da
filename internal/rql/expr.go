package rql

import (
	"strconv"
	"strings"

	"github.com/SimonWaldherr/flowDB/internal/columnar"
	"github.com/SimonWaldherr/flowDB/internal/engine"
)

// Expression parsing: precedence climbing, lowest binding first.
//
//	or
//	xor
//	and
//	not (prefix)
//	comparison: = != < <= > >= between
//	additive: + -
//	multiplicative: * / %
//	unary minus
//	postfix: call, dot access
//	primary

func (p *parser) parseExpr() (engine.Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (engine.Expr, error) {
	left, err := p.parseXor()
	if err != nil {
		return nil, err
	}
	for p.accept("or") {
		right, err := p.parseXor()
		if err != nil {
			return nil, err
		}
		left = &engine.Infix{Op: engine.OpOr, L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseXor() (engine.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept("xor") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &engine.Infix{Op: engine.OpXor, L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (engine.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.accept("and") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &engine.Infix{Op: engine.OpAnd, L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseNot() (engine.Expr, error) {
	if p.accept("not") {
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &engine.Prefix{Op: engine.PrefixNot, X: inner}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[string]engine.InfixOp{
	"=": engine.OpEq, "!=": engine.OpNe,
	"<": engine.OpLt, "<=": engine.OpLe,
	">": engine.OpGt, ">=": engine.OpGe,
}

func (p *parser) parseComparison() (engine.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if p.accept("between") {
		lo, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect("and"); err != nil {
			return nil, err
		}
		hi, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &engine.Between{X: left, Lo: lo, Hi: hi}, nil
	}
	t := p.peek()
	if t.Kind == TokPunct {
		if op, ok := comparisonOps[t.Text]; ok {
			p.next()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			return &engine.Infix{Op: op, L: left, R: right}, nil
		}
	}
	return left, nil
}

func (p *parser) parseAdditive() (engine.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.Kind != TokPunct || (t.Text != "+" && t.Text != "-") {
			return left, nil
		}
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		op := engine.OpAdd
		if t.Text == "-" {
			op = engine.OpSub
		}
		left = &engine.Infix{Op: op, L: left, R: right}
	}
}

func (p *parser) parseMultiplicative() (engine.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.Kind != TokPunct || (t.Text != "*" && t.Text != "/" && t.Text != "%") {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		var op engine.InfixOp
		switch t.Text {
		case "*":
			op = engine.OpMul
		case "/":
			op = engine.OpDiv
		default:
			op = engine.OpRem
		}
		left = &engine.Infix{Op: op, L: left, R: right}
	}
}

func (p *parser) parseUnary() (engine.Expr, error) {
	if p.accept("-") {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &engine.Prefix{Op: engine.PrefixNeg, X: inner}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (engine.Expr, error) {
	t := p.next()
	switch t.Kind {
	case TokNumber:
		v, err := numberValue(t.Text)
		if err != nil {
			return nil, p.errorf(t, "%v", err)
		}
		return &engine.Constant{Value: v}, nil

	case TokString:
		return &engine.Constant{Value: columnar.NewUtf8(t.Text)}, nil

	case TokParam:
		if n, err := strconv.Atoi(t.Text); err == nil {
			if n < 1 {
				return nil, p.errorf(t, "positional parameters start at $1")
			}
			return &engine.Param{Index: n - 1}, nil
		}
		return &engine.Param{Index: -1, Name: t.Text}, nil

	case TokPunct:
		if t.Text == "(" {
			inner, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(")"); err != nil {
				return nil, err
			}
			return inner, nil
		}
		return nil, p.errorf(t, "unexpected token %q in expression", t.Text)

	case TokIdent:
		switch strings.ToLower(t.Text) {
		case "true":
			return &engine.Constant{Value: columnar.NewBool(true)}, nil
		case "false":
			return &engine.Constant{Value: columnar.NewBool(false)}, nil
		case "undefined":
			return &engine.Constant{Value: columnar.Undefined}, nil
		case "cast":
			return p.parseCast()
		}
		// Call: ident(args...)
		if p.peek().Kind == TokPunct && p.peek().Text == "(" {
			p.next()
			frag := t.Fragment()
			call := &engine.Call{Name: t.Text, Frag: &frag}
			if !p.accept(")") {
				for {
					arg, err := p.parseExpr()
					if err != nil {
						return nil, err
					}
					call.Args = append(call.Args, arg)
					if p.accept(",") {
						continue
					}
					if _, err := p.expect(")"); err != nil {
						return nil, err
					}
					break
				}
			}
			return call, nil
		}
		// Access: ident.ident
		if p.peek().Kind == TokPunct && p.peek().Text == "." {
			p.next()
			col, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			return &engine.Access{Source: t.Text, Column: col.Text}, nil
		}
		return &engine.ColumnRef{Name: t.Text}, nil
	}
	return nil, p.errorf(t, "unexpected %q in expression", t.Text)
}

// parseCast parses cast(expr, type).
func (p *parser) parseCast() (engine.Expr, error) {
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	inner, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(","); err != nil {
		return nil, err
	}
	typeTok, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	to, terr := columnar.ParseType(typeTok.Text)
	if terr != nil {
		return nil, p.errorf(typeTok, "unknown type %q", typeTok.Text)
	}
	return &engine.CastExpr{Inner: inner, To: to}, nil
}
