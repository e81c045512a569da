package rql

import (
	"strconv"
	"strings"

	"github.com/SimonWaldherr/flowDB/internal/columnar"
	"github.com/SimonWaldherr/flowDB/internal/diag"
	"github.com/SimonWaldherr/flowDB/internal/engine"
)

// Statement is one parsed statement.
type Statement interface{ stmt() }

// CreateNamespaceStmt is `create namespace <name>`.
type CreateNamespaceStmt struct {
	Name string
}

// CreateTableStmt is `create table ns.name {col: type, ...}`.
type CreateTableStmt struct {
	Namespace string
	Name      string
	Columns   []TableColumn
}

// TableColumn is one column declaration. Auto marks an int4
// auto-increment column filled from a sequence on insert.
type TableColumn struct {
	Name string
	Type columnar.Type
	Auto bool
}

// CreateViewStmt is `create view ns.name as <pipeline>`. Query holds
// the pipeline text verbatim for storage; the parse validated it.
type CreateViewStmt struct {
	Namespace string
	Name      string
	Query     string
}

// DropStmt is `drop table ns.name` or `drop namespace ns`.
type DropStmt struct {
	Kind      string // "table" or "namespace"
	Namespace string
	Name      string
}

// PipelineStmt is a source stage followed by transforms and an
// optional sink.
type PipelineStmt struct {
	Stages []Stage
}

func (*CreateNamespaceStmt) stmt() {}
func (*CreateTableStmt) stmt()     {}
func (*CreateViewStmt) stmt()      {}
func (*DropStmt) stmt()            {}
func (*PipelineStmt) stmt()        {}

// Stage is one pipeline stage.
type Stage interface{ stage() }

// FromTable reads a stored table (or a system virtual table).
type FromTable struct {
	Namespace string
	Name      string
}

// FromInline reads literal rows.
type FromInline struct {
	Rows []map[string]columnar.Value
}

// FilterStage keeps rows passing every predicate.
type FilterStage struct {
	Predicates []engine.Expr
}

// MapStage projects expressions.
type MapStage struct {
	Exprs []engine.Expr
}

// ExtendStage appends expressions to the input columns.
type ExtendStage struct {
	Exprs []engine.Expr
}

// SortStage orders by keys.
type SortStage struct {
	Keys []engine.SortKey
}

// TakeStage limits the row count.
type TakeStage struct {
	N int
}

// DistinctStage deduplicates by columns.
type DistinctStage struct {
	Columns []string
}

// AggregateStage groups and aggregates.
type AggregateStage struct {
	Aggs []engine.AggSpec
	Keys []engine.Expr
}

// JoinStage joins against a sub-pipeline.
type JoinStage struct {
	Kind       engine.JoinKind
	Sub        *PipelineStmt
	Alias      string
	Predicates []engine.Expr
}

// SinkStage writes to a table: kind is "insert", "update" or "delete".
type SinkStage struct {
	Kind      string
	Namespace string
	Name      string
}

func (*FromTable) stage()      {}
func (*FromInline) stage()     {}
func (*FilterStage) stage()    {}
func (*MapStage) stage()       {}
func (*ExtendStage) stage()    {}
func (*SortStage) stage()      {}
func (*TakeStage) stage()      {}
func (*DistinctStage) stage()  {}
func (*AggregateStage) stage() {}
func (*JoinStage) stage()      {}
func (*SinkStage) stage()      {}

// Parse splits src into `;`-separated statements and parses each.
func Parse(src string) ([]Statement, error) {
	tokens, err := Tokens(src)
	if err != nil {
		return nil, diag.From(err).WithStatement(src)
	}
	p := &parser{tokens: tokens, src: src}
	var out []Statement
	for !p.atEOF() {
		if p.accept(";") {
			continue
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, diag.From(err).WithStatement(src)
		}
		out = append(out, stmt)
		if !p.atEOF() && !p.accept(";") {
			// Statements may also be newline-separated only when the
			// next token opens a new statement keyword.
			if !p.peekKeyword("create") && !p.peekKeyword("drop") && !p.peekKeyword("from") {
				t := p.peek()
				return nil, p.errorf(t, "unexpected token %q", t.Text)
			}
		}
	}
	return out, nil
}

type parser struct {
	tokens []Token
	pos    int
	src    string
}

func (p *parser) peek() Token { return p.tokens[p.pos] }

func (p *parser) atEOF() bool { return p.peek().Kind == TokEOF }

func (p *parser) next() Token {
	t := p.tokens[p.pos]
	if t.Kind != TokEOF {
		p.pos++
	}
	return t
}

// accept consumes the next token when it matches the punct or
// case-insensitive keyword.
func (p *parser) accept(text string) bool {
	t := p.peek()
	if t.Kind == TokEOF {
		return false
	}
	if t.Kind == TokPunct && t.Text == text {
		p.pos++
		return true
	}
	if t.Kind == TokIdent && strings.EqualFold(t.Text, text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) peekKeyword(kw string) bool {
	t := p.peek()
	return t.Kind == TokIdent && strings.EqualFold(t.Text, kw)
}

func (p *parser) expect(text string) (Token, error) {
	t := p.peek()
	if p.accept(text) {
		return t, nil
	}
	return t, p.errorf(t, "expected %q, got %q", text, t.Text)
}

func (p *parser) expectIdent() (Token, error) {
	t := p.peek()
	if t.Kind != TokIdent {
		return t, p.errorf(t, "expected identifier, got %q", t.Text)
	}
	p.pos++
	return t, nil
}

func (p *parser) errorf(t Token, format string, args ...any) error {
	text := t.Text
	if t.Kind == TokEOF {
		text = "end of statement"
	}
	return diag.New(diag.QueryParse, format, args...).
		WithFragment(diag.Fragment{Text: text, Line: t.Line, Column: t.Col}).
		WithLabel("here").
		WithStatement(p.src)
}

func (p *parser) parseStatement() (Statement, error) {
	switch {
	case p.accept("create"):
		if p.accept("namespace") {
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			return &CreateNamespaceStmt{Name: name.Text}, nil
		}
		if p.accept("table") {
			return p.parseCreateTable()
		}
		if p.accept("view") {
			return p.parseCreateView()
		}
		t := p.peek()
		return nil, p.errorf(t, "create expects namespace, table or view, got %q", t.Text)

	case p.accept("drop"):
		kind := "table"
		switch {
		case p.accept("table"):
		case p.accept("namespace"):
			kind = "namespace"
		default:
			t := p.peek()
			return nil, p.errorf(t, "drop expects table or namespace, got %q", t.Text)
		}
		first, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if kind == "namespace" {
			return &DropStmt{Kind: kind, Name: first.Text}, nil
		}
		if _, err := p.expect("."); err != nil {
			return nil, err
		}
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return &DropStmt{Kind: kind, Namespace: first.Text, Name: name.Text}, nil

	case p.peekKeyword("from"):
		return p.parsePipeline()
	}
	t := p.peek()
	return nil, p.errorf(t, "expected a statement, got %q", t.Text)
}

func (p *parser) parseCreateTable() (Statement, error) {
	ns, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect("."); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect("{"); err != nil {
		return nil, err
	}
	stmt := &CreateTableStmt{Namespace: ns.Text, Name: name.Text}
	for {
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(":"); err != nil {
			return nil, err
		}
		typeTok, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		t, terr := columnar.ParseType(typeTok.Text)
		if terr != nil {
			return nil, p.errorf(typeTok, "unknown type %q", typeTok.Text)
		}
		column := TableColumn{Name: col.Text, Type: t}
		if p.peekKeyword("auto") {
			if t != columnar.TypeInt4 {
				return nil, p.errorf(typeTok, "auto requires an int4 column, got %s", typeTok.Text)
			}
			p.next()
			column.Auto = true
		}
		stmt.Columns = append(stmt.Columns, column)
		if p.accept(",") {
			continue
		}
		if _, err := p.expect("}"); err != nil {
			return nil, err
		}
		return stmt, nil
	}
}

func (p *parser) parseCreateView() (Statement, error) {
	ns, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect("."); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect("as"); err != nil {
		return nil, err
	}
	start := p.peek().Off
	if _, err := p.parsePipeline(); err != nil {
		return nil, err
	}
	end := p.peek().Off
	if p.atEOF() {
		end = len(p.src)
	}
	return &CreateViewStmt{
		Namespace: ns.Text,
		Name:      name.Text,
		Query:     strings.TrimSpace(p.src[start:end]),
	}, nil
}

func (p *parser) parsePipeline() (*PipelineStmt, error) {
	if _, err := p.expect("from"); err != nil {
		return nil, err
	}
	source, err := p.parseSource()
	if err != nil {
		return nil, err
	}
	stmt := &PipelineStmt{Stages: []Stage{source}}
	for {
		p.accept("|")
		stage, done, err := p.parseStage()
		if err != nil {
			return nil, err
		}
		if done {
			return stmt, nil
		}
		stmt.Stages = append(stmt.Stages, stage)
	}
}

func (p *parser) parseSource() (Stage, error) {
	t := p.peek()
	if t.Kind == TokPunct && t.Text == "[" {
		return p.parseInlineRows()
	}
	ns, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect("."); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return &FromTable{Namespace: ns.Text, Name: name.Text}, nil
}

func (p *parser) parseInlineRows() (Stage, error) {
	if _, err := p.expect("["); err != nil {
		return nil, err
	}
	out := &FromInline{}
	if p.accept("]") {
		return out, nil
	}
	for {
		if _, err := p.expect("{"); err != nil {
			return nil, err
		}
		row := make(map[string]columnar.Value)
		for {
			key, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(":"); err != nil {
				return nil, err
			}
			v, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			row[key.Text] = v
			if p.accept(",") {
				continue
			}
			break
		}
		if _, err := p.expect("}"); err != nil {
			return nil, err
		}
		out.Rows = append(out.Rows, row)
		if p.accept(",") {
			continue
		}
		if _, err := p.expect("]"); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// parseLiteral parses a constant for inline rows.
func (p *parser) parseLiteral() (columnar.Value, error) {
	neg := false
	if p.accept("-") {
		neg = true
	}
	t := p.next()
	switch t.Kind {
	case TokNumber:
		v, err := numberValue(t.Text)
		if err != nil {
			return columnar.Undefined, p.errorf(t, "%v", err)
		}
		if neg {
			if v.Type.IsFloat() {
				v.Float = -v.Float
			} else {
				v = columnar.NewInt(v.Type, -v.Int)
			}
		}
		return v, nil
	case TokString:
		if neg {
			return columnar.Undefined, p.errorf(t, "cannot negate a string")
		}
		return columnar.NewUtf8(t.Text), nil
	case TokIdent:
		switch strings.ToLower(t.Text) {
		case "true":
			return columnar.NewBool(true), nil
		case "false":
			return columnar.NewBool(false), nil
		case "undefined":
			return columnar.Undefined, nil
		}
	}
	return columnar.Undefined, p.errorf(t, "expected a literal, got %q", t.Text)
}

func numberValue(text string) (columnar.Value, error) {
	if strings.Contains(text, ".") {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return columnar.Undefined, err
		}
		return columnar.NewFloat(columnar.TypeFloat8, f), nil
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return columnar.Undefined, err
	}
	if i >= -(1<<31) && i < 1<<31 {
		return columnar.NewInt(columnar.TypeInt4, i), nil
	}
	return columnar.NewInt(columnar.TypeInt8, i), nil
}

// parseStage parses one stage; done=true at end of pipeline.
func (p *parser) parseStage() (Stage, bool, error) {
	t := p.peek()
	if t.Kind == TokEOF || (t.Kind == TokPunct && t.Text == ";") || (t.Kind == TokPunct && t.Text == ")") {
		return nil, true, nil
	}
	if t.Kind != TokIdent {
		return nil, false, p.errorf(t, "expected a pipeline stage, got %q", t.Text)
	}

	switch strings.ToLower(t.Text) {
	case "filter":
		p.next()
		var preds []engine.Expr
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, false, err
			}
			preds = append(preds, e)
			if !p.accept(",") {
				break
			}
		}
		return &FilterStage{Predicates: preds}, false, nil

	case "map":
		p.next()
		exprs, err := p.parseExprBlock()
		if err != nil {
			return nil, false, err
		}
		return &MapStage{Exprs: exprs}, false, nil

	case "extend":
		p.next()
		exprs, err := p.parseExprBlock()
		if err != nil {
			return nil, false, err
		}
		return &ExtendStage{Exprs: exprs}, false, nil

	case "sort":
		p.next()
		var keys []engine.SortKey
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, false, err
			}
			key := engine.SortKey{Expr: e}
			if p.accept("desc") {
				key.Desc = true
			} else {
				p.accept("asc")
			}
			keys = append(keys, key)
			if !p.accept(",") {
				break
			}
		}
		return &SortStage{Keys: keys}, false, nil

	case "take", "limit":
		p.next()
		num := p.next()
		if num.Kind != TokNumber {
			return nil, false, p.errorf(num, "take expects a row count, got %q", num.Text)
		}
		n, err := strconv.Atoi(num.Text)
		if err != nil || n < 0 {
			return nil, false, p.errorf(num, "invalid row count %q", num.Text)
		}
		return &TakeStage{N: n}, false, nil

	case "distinct":
		p.next()
		var cols []string
		if p.accept("{") {
			for {
				c, err := p.expectIdent()
				if err != nil {
					return nil, false, err
				}
				cols = append(cols, c.Text)
				if p.accept(",") {
					continue
				}
				if _, err := p.expect("}"); err != nil {
					return nil, false, err
				}
				break
			}
		}
		return &DistinctStage{Columns: cols}, false, nil

	case "aggregate":
		p.next()
		return p.parseAggregate()

	case "join", "left", "natural", "inner":
		return p.parseJoin()

	case "insert", "update", "delete":
		kind := strings.ToLower(p.next().Text)
		ns, err := p.expectIdent()
		if err != nil {
			return nil, false, err
		}
		if _, err := p.expect("."); err != nil {
			return nil, false, err
		}
		name, err := p.expectIdent()
		if err != nil {
			return nil, false, err
		}
		return &SinkStage{Kind: kind, Namespace: ns.Text, Name: name.Text}, false, nil
	}
	return nil, false, p.errorf(t, "unknown pipeline stage %q", t.Text)
}

func (p *parser) parseAggregate() (Stage, bool, error) {
	if _, err := p.expect("{"); err != nil {
		return nil, false, err
	}
	stage := &AggregateStage{}
	for {
		spec, err := p.parseAggSpec()
		if err != nil {
			return nil, false, err
		}
		stage.Aggs = append(stage.Aggs, spec)
		if p.accept(",") {
			continue
		}
		if _, err := p.expect("}"); err != nil {
			return nil, false, err
		}
		break
	}
	if p.accept("by") {
		if _, err := p.expect("{"); err != nil {
			return nil, false, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, false, err
			}
			stage.Keys = append(stage.Keys, e)
			if p.accept(",") {
				continue
			}
			if _, err := p.expect("}"); err != nil {
				return nil, false, err
			}
			break
		}
	}
	return stage, false, nil
}

var aggFuncs = map[string]engine.AggFunc{
	"count": engine.AggCount,
	"sum":   engine.AggSum,
	"avg":   engine.AggAvg,
	"min":   engine.AggMin,
	"max":   engine.AggMax,
}

func (p *parser) parseAggSpec() (engine.AggSpec, error) {
	first, err := p.expectIdent()
	if err != nil {
		return engine.AggSpec{}, err
	}
	alias := ""
	fnName := first.Text
	if p.accept(":") {
		alias = first.Text
		fnTok, err := p.expectIdent()
		if err != nil {
			return engine.AggSpec{}, err
		}
		fnName = fnTok.Text
	}
	fn, ok := aggFuncs[strings.ToLower(fnName)]
	if !ok {
		return engine.AggSpec{}, p.errorf(first, "unknown aggregate %q", fnName)
	}
	spec := engine.AggSpec{Func: fn, As: alias}
	if _, err := p.expect("("); err != nil {
		return engine.AggSpec{}, err
	}
	if !p.accept(")") {
		arg, err := p.parseExpr()
		if err != nil {
			return engine.AggSpec{}, err
		}
		spec.Arg = arg
		if _, err := p.expect(")"); err != nil {
			return engine.AggSpec{}, err
		}
	}
	return spec, nil
}

func (p *parser) parseJoin() (Stage, bool, error) {
	stage := &JoinStage{Kind: engine.JoinInner}
	switch {
	case p.accept("left"):
		stage.Kind = engine.JoinLeft
		if _, err := p.expect("join"); err != nil {
			return nil, false, err
		}
	case p.accept("natural"):
		stage.Kind = engine.JoinNatural
		if _, err := p.expect("join"); err != nil {
			return nil, false, err
		}
	case p.accept("inner"):
		if _, err := p.expect("join"); err != nil {
			return nil, false, err
		}
	default:
		if _, err := p.expect("join"); err != nil {
			return nil, false, err
		}
	}
	if _, err := p.expect("("); err != nil {
		return nil, false, err
	}
	sub, err := p.parsePipeline()
	if err != nil {
		return nil, false, err
	}
	stage.Sub = sub
	if _, err := p.expect(")"); err != nil {
		return nil, false, err
	}
	if p.accept("as") {
		alias, err := p.expectIdent()
		if err != nil {
			return nil, false, err
		}
		stage.Alias = alias.Text
	}
	if stage.Kind != engine.JoinNatural {
		if _, err := p.expect("on"); err != nil {
			return nil, false, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, false, err
			}
			stage.Predicates = append(stage.Predicates, e)
			if !p.accept(",") {
				break
			}
		}
	}
	return stage, false, nil
}

// parseExprBlock parses `{ item, name: expr, ... }`.
func (p *parser) parseExprBlock() ([]engine.Expr, error) {
	if _, err := p.expect("{"); err != nil {
		return nil, err
	}
	var out []engine.Expr
	for {
		e, err := p.parseExprItem()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		if p.accept(",") {
			continue
		}
		if _, err := p.expect("}"); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// parseExprItem parses `name: expr` as an alias, or a bare expression.
func (p *parser) parseExprItem() (engine.Expr, error) {
	t := p.peek()
	if t.Kind == TokIdent && p.pos+1 < len(p.tokens) {
		nt := p.tokens[p.pos+1]
		if nt.Kind == TokPunct && nt.Text == ":" {
			p.pos += 2
			inner, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return &engine.Alias{Inner: inner, As: t.Text}, nil
		}
	}
	return p.parseExpr()
}
