package rql

import (
	"testing"

	"github.com/SimonWaldherr/flowDB/internal/columnar"
	"github.com/SimonWaldherr/flowDB/internal/diag"
	"github.com/SimonWaldherr/flowDB/internal/engine"
)

func TestLexerPositions(t *testing.T) {
	tokens, err := Tokens("from c.e\nfilter id = 1")
	if err != nil {
		t.Fatal(err)
	}
	if tokens[0].Text != "from" || tokens[0].Line != 1 || tokens[0].Col != 1 {
		t.Errorf("token 0 = %+v", tokens[0])
	}
	var filterTok *Token
	for i := range tokens {
		if tokens[i].Text == "filter" {
			filterTok = &tokens[i]
		}
	}
	if filterTok == nil || filterTok.Line != 2 || filterTok.Col != 1 {
		t.Errorf("filter token = %+v", filterTok)
	}
}

func TestLexerStringsAndParams(t *testing.T) {
	tokens, err := Tokens(`filter name = "A\"B" and x = $2 and y = $named`)
	if err != nil {
		t.Fatal(err)
	}
	var str, pos, named *Token
	for i := range tokens {
		switch tokens[i].Kind {
		case TokString:
			str = &tokens[i]
		case TokParam:
			if tokens[i].Text == "2" {
				pos = &tokens[i]
			} else {
				named = &tokens[i]
			}
		}
	}
	if str == nil || str.Text != `A"B` {
		t.Errorf("string = %+v", str)
	}
	if pos == nil || named == nil || named.Text != "named" {
		t.Errorf("params = %+v %+v", pos, named)
	}
}

func TestParseCreateStatements(t *testing.T) {
	stmts, err := Parse(`create namespace c; create table c.e {id: int4, name: utf8}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(stmts) != 2 {
		t.Fatalf("statements = %d", len(stmts))
	}
	ns, ok := stmts[0].(*CreateNamespaceStmt)
	if !ok || ns.Name != "c" {
		t.Errorf("stmt 0 = %+v", stmts[0])
	}
	ct, ok := stmts[1].(*CreateTableStmt)
	if !ok || ct.Namespace != "c" || ct.Name != "e" || len(ct.Columns) != 2 {
		t.Fatalf("stmt 1 = %+v", stmts[1])
	}
	if ct.Columns[0].Type != columnar.TypeInt4 || ct.Columns[1].Type != columnar.TypeUtf8 {
		t.Errorf("column types = %+v", ct.Columns)
	}
}

func TestParsePipelineStages(t *testing.T) {
	stmts, err := Parse(`from c.e filter active = true and salary >= 100 map {id, pay: salary * 1.1} sort id desc take 5`)
	if err != nil {
		t.Fatal(err)
	}
	p := stmts[0].(*PipelineStmt)
	if len(p.Stages) != 5 {
		t.Fatalf("stages = %d", len(p.Stages))
	}
	if _, ok := p.Stages[0].(*FromTable); !ok {
		t.Errorf("stage 0 = %T", p.Stages[0])
	}
	if _, ok := p.Stages[1].(*FilterStage); !ok {
		t.Errorf("stage 1 = %T", p.Stages[1])
	}
	m, ok := p.Stages[2].(*MapStage)
	if !ok || len(m.Exprs) != 2 {
		t.Fatalf("stage 2 = %+v", p.Stages[2])
	}
	if alias, ok := m.Exprs[1].(*engine.Alias); !ok || alias.As != "pay" {
		t.Errorf("aliased map item = %+v", m.Exprs[1])
	}
	s := p.Stages[3].(*SortStage)
	if !s.Keys[0].Desc {
		t.Error("sort direction lost")
	}
	if p.Stages[4].(*TakeStage).N != 5 {
		t.Error("take count lost")
	}
}

func TestParseAutoIncrementColumn(t *testing.T) {
	stmts, err := Parse(`create table c.e {id: int4 auto, name: utf8}`)
	if err != nil {
		t.Fatal(err)
	}
	ct := stmts[0].(*CreateTableStmt)
	if !ct.Columns[0].Auto || ct.Columns[1].Auto {
		t.Errorf("auto flags = %+v", ct.Columns)
	}
	if _, err := Parse(`create table c.e {name: utf8 auto}`); err == nil {
		t.Error("auto on a non-int4 column must be rejected")
	}
}

func TestParseInlineRows(t *testing.T) {
	stmts, err := Parse(`from [{id: 1, name: "A"}, {id: -2, ok: false}] insert c.e`)
	if err != nil {
		t.Fatal(err)
	}
	p := stmts[0].(*PipelineStmt)
	inline := p.Stages[0].(*FromInline)
	if len(inline.Rows) != 2 {
		t.Fatalf("rows = %d", len(inline.Rows))
	}
	if inline.Rows[0]["id"].Int != 1 || inline.Rows[0]["name"].Str != "A" {
		t.Errorf("row 0 = %+v", inline.Rows[0])
	}
	if inline.Rows[1]["id"].Int != -2 || inline.Rows[1]["ok"].Bool {
		t.Errorf("row 1 = %+v", inline.Rows[1])
	}
	sink := p.Stages[1].(*SinkStage)
	if sink.Kind != "insert" || sink.Namespace != "c" || sink.Name != "e" {
		t.Errorf("sink = %+v", sink)
	}
}

func TestParseAggregate(t *testing.T) {
	stmts, err := Parse(`from c.e aggregate {n: count(), total: sum(salary)} by {dept}`)
	if err != nil {
		t.Fatal(err)
	}
	p := stmts[0].(*PipelineStmt)
	agg := p.Stages[1].(*AggregateStage)
	if len(agg.Aggs) != 2 || len(agg.Keys) != 1 {
		t.Fatalf("aggregate = %+v", agg)
	}
	if agg.Aggs[0].Func != engine.AggCount || agg.Aggs[0].As != "n" {
		t.Errorf("agg 0 = %+v", agg.Aggs[0])
	}
	if agg.Aggs[1].Func != engine.AggSum || agg.Aggs[1].Arg == nil {
		t.Errorf("agg 1 = %+v", agg.Aggs[1])
	}
}

func TestParseJoins(t *testing.T) {
	stmts, err := Parse(`from c.e left join (from c.items) as it on id = owner`)
	if err != nil {
		t.Fatal(err)
	}
	p := stmts[0].(*PipelineStmt)
	join := p.Stages[1].(*JoinStage)
	if join.Kind != engine.JoinLeft || join.Alias != "it" || len(join.Predicates) != 1 {
		t.Errorf("join = %+v", join)
	}
	sub := join.Sub.Stages[0].(*FromTable)
	if sub.Name != "items" {
		t.Errorf("sub source = %+v", sub)
	}

	stmts, err = Parse(`from c.e natural join (from c.d)`)
	if err != nil {
		t.Fatal(err)
	}
	nat := stmts[0].(*PipelineStmt).Stages[1].(*JoinStage)
	if nat.Kind != engine.JoinNatural || len(nat.Predicates) != 0 {
		t.Errorf("natural join = %+v", nat)
	}
}

func TestParseErrorCarriesFragment(t *testing.T) {
	_, err := Parse("from c.e sortt id")
	if err == nil {
		t.Fatal("expected parse error")
	}
	d := diag.From(err)
	if d.Code != diag.QueryParse {
		t.Errorf("code = %s", d.Code)
	}
	if d.Fragment == nil || d.Fragment.Text != "sortt" || d.Fragment.Line != 1 {
		t.Errorf("fragment = %+v", d.Fragment)
	}
	if d.Fragment.Column != 10 {
		t.Errorf("column = %d", d.Fragment.Column)
	}
}

func TestParseBetweenAndPrecedence(t *testing.T) {
	stmts, err := Parse(`from c.e filter salary between 100 and 200 or active = true and id < 3`)
	if err != nil {
		t.Fatal(err)
	}
	filter := stmts[0].(*PipelineStmt).Stages[1].(*FilterStage)
	or, ok := filter.Predicates[0].(*engine.Infix)
	if !ok || or.Op != engine.OpOr {
		t.Fatalf("top operator = %+v", filter.Predicates[0])
	}
	if _, ok := or.L.(*engine.Between); !ok {
		t.Errorf("left of or = %T", or.L)
	}
	and, ok := or.R.(*engine.Infix)
	if !ok || and.Op != engine.OpAnd {
		t.Errorf("right of or = %+v", or.R)
	}
}

func TestParseCreateView(t *testing.T) {
	stmts, err := Parse(`create view c.live as from c.e filter active = true; create namespace d`)
	if err != nil {
		t.Fatal(err)
	}
	view, ok := stmts[0].(*CreateViewStmt)
	if !ok || view.Namespace != "c" || view.Name != "live" {
		t.Fatalf("stmt 0 = %+v", stmts[0])
	}
	if view.Query != "from c.e filter active = true" {
		t.Errorf("view query = %q", view.Query)
	}
	if len(stmts) != 2 {
		t.Errorf("statements = %d", len(stmts))
	}
}

func TestParseDrop(t *testing.T) {
	stmts, err := Parse(`drop table c.e; drop namespace c`)
	if err != nil {
		t.Fatal(err)
	}
	dt := stmts[0].(*DropStmt)
	if dt.Kind != "table" || dt.Namespace != "c" || dt.Name != "e" {
		t.Errorf("drop table = %+v", dt)
	}
	dn := stmts[1].(*DropStmt)
	if dn.Kind != "namespace" || dn.Name != "c" {
		t.Errorf("drop namespace = %+v", dn)
	}
}
