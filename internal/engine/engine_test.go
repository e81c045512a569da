package engine

import (
	"context"
	"testing"
	"time"

	"github.com/SimonWaldherr/flowDB/internal/catalog"
	"github.com/SimonWaldherr/flowDB/internal/columnar"
	"github.com/SimonWaldherr/flowDB/internal/diag"
	"github.com/SimonWaldherr/flowDB/internal/mvcc"
	"github.com/SimonWaldherr/flowDB/internal/storage"
	"github.com/SimonWaldherr/flowDB/internal/txn"
)

type testEnv struct {
	manager *txn.Manager
	catalog *catalog.Catalog
	store   *mvcc.Store
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	backend, err := storage.Open(storage.Config{Mode: storage.ModeMemory})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { backend.Close() })
	store := mvcc.NewStore(backend)
	manager := txn.NewManager(store, nil)
	t.Cleanup(manager.Close)
	return &testEnv{manager: manager, catalog: catalog.New(manager), store: store}
}

// runtime opens a fresh command transaction runtime.
func (e *testEnv) runtime() (*Runtime, *txn.Command, *catalog.Tx) {
	cmd := e.manager.BeginCommand()
	cat := e.catalog.Begin(cmd)
	rt := &Runtime{
		Ctx:     context.Background(),
		Cmd:     cmd,
		Cat:     cat,
		Catalog: e.catalog,
		Store:   e.store,
		Funcs:   NewRegistry(),
		Virtual: NewVirtualRegistry(),
	}
	return rt, cmd, cat
}

func (e *testEnv) commit(t *testing.T, cmd *txn.Command, cat *catalog.Tx) uint64 {
	t.Helper()
	version, err := cmd.Commit()
	if err != nil {
		t.Fatal(err)
	}
	cat.Commit(version)
	return version
}

// setupTable creates c.e {id:int4, name:utf8, salary:float8, active:bool}
// and inserts the given rows.
func (e *testEnv) setupTable(t *testing.T, rows []map[string]columnar.Value) *catalog.TableDef {
	t.Helper()
	rt, cmd, cat := e.runtime()
	ns, err := cat.CreateNamespace("c")
	if err != nil {
		t.Fatal(err)
	}
	table, err := cat.CreateTable(ns.ID, "e", []catalog.ColumnDef{
		{Name: "id", Type: columnar.TypeInt4},
		{Name: "name", Type: columnar.TypeUtf8},
		{Name: "salary", Type: columnar.TypeFloat8},
		{Name: "active", Type: columnar.TypeBool},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) > 0 {
		sink := &Insert{Input: &InlineData{Rows: rows}, Table: table}
		if _, err := Drive(rt, sink); err != nil {
			t.Fatal(err)
		}
	}
	e.commit(t, cmd, cat)
	return table
}

func row(id int64, name string, salary float64, active bool) map[string]columnar.Value {
	return map[string]columnar.Value{
		"id":     columnar.NewInt(columnar.TypeInt4, id),
		"name":   columnar.NewUtf8(name),
		"salary": columnar.NewFloat(columnar.TypeFloat8, salary),
		"active": columnar.NewBool(active),
	}
}

func TestInsertAndScan(t *testing.T) {
	env := newEnv(t)
	table := env.setupTable(t, []map[string]columnar.Value{
		row(2, "B", 200, true),
		row(1, "A", 100, false),
	})

	rt, cmd, cat := env.runtime()
	defer cmd.Rollback()
	defer cat.Rollback()

	out, err := Drive(rt, &Sort{
		Input: &TableScan{Table: table},
		Keys:  []SortKey{{Expr: &ColumnRef{Name: "id"}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.RowCount() != 2 {
		t.Fatalf("rows = %d", out.RowCount())
	}
	if out.Column("id").Data.Int(0) != 1 || out.Column("name").Data.Str(0) != "A" {
		t.Errorf("row 0 = %v", out.Row(0))
	}
	if out.Column("id").Data.Int(1) != 2 || out.Column("name").Data.Str(1) != "B" {
		t.Errorf("row 1 = %v", out.Row(1))
	}
}

func TestFilterUndefinedExcludesRow(t *testing.T) {
	env := newEnv(t)
	table := env.setupTable(t, []map[string]columnar.Value{
		row(1, "A", 100, true),
		{
			"id":     columnar.NewInt(columnar.TypeInt4, 2),
			"name":   columnar.NewUtf8("B"),
			"salary": columnar.NewFloat(columnar.TypeFloat8, 50),
			// active undefined
		},
		row(3, "C", 10, false),
	})

	rt, cmd, cat := env.runtime()
	defer cmd.Rollback()
	defer cat.Rollback()

	out, err := Drive(rt, &Filter{
		Input:      &TableScan{Table: table},
		Predicates: []Expr{&ColumnRef{Name: "active"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Row 2 (undefined predicate) and row 3 (false) are excluded.
	if out.RowCount() != 1 || out.Column("id").Data.Int(0) != 1 {
		t.Errorf("filter result = %d rows", out.RowCount())
	}
}

func TestMapPreservesRowNumbers(t *testing.T) {
	env := newEnv(t)
	table := env.setupTable(t, []map[string]columnar.Value{
		row(1, "A", 100, true),
		row(2, "B", 200, true),
	})

	rt, cmd, cat := env.runtime()
	defer cmd.Rollback()
	defer cat.Rollback()

	out, err := Drive(rt, &Map{
		Input: &TableScan{Table: table},
		Exprs: []Expr{
			&ColumnRef{Name: "id"},
			&Alias{As: "salary", Inner: &Infix{Op: OpMul, L: &ColumnRef{Name: "salary"}, R: &Constant{Value: columnar.NewFloat(columnar.TypeFloat8, 1.1)}}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.RowNumbers == nil || len(out.RowNumbers) != 2 {
		t.Fatal("map must preserve row numbers")
	}
	got := out.Column("salary").Data.Float(0)
	if got < 109.9 || got > 110.1 {
		t.Errorf("salary = %v", got)
	}
}

func TestUpdatePropagation(t *testing.T) {
	env := newEnv(t)
	table := env.setupTable(t, []map[string]columnar.Value{
		row(1, "E1", 100, true),
	})

	rt, cmd, cat := env.runtime()
	pipeline := &Update{
		Table: table,
		Input: &Map{
			Input: &TableScan{Table: table},
			Exprs: []Expr{
				&ColumnRef{Name: "id"},
				&Alias{As: "salary", Inner: &Infix{Op: OpMul, L: &ColumnRef{Name: "salary"}, R: &Constant{Value: columnar.NewFloat(columnar.TypeFloat8, 1.1)}}},
			},
		},
	}
	out, err := Drive(rt, pipeline)
	if err != nil {
		t.Fatal(err)
	}
	if out.Column("updated").Data.Int(0) != 1 {
		t.Errorf("updated = %v", out.Row(0))
	}
	env.commit(t, cmd, cat)

	rt2, cmd2, cat2 := env.runtime()
	defer cmd2.Rollback()
	defer cat2.Rollback()
	check, err := Drive(rt2, &TableScan{Table: table})
	if err != nil {
		t.Fatal(err)
	}
	got := check.Column("salary").Data.Float(0)
	if got < 109.9 || got > 110.1 {
		t.Errorf("salary after update = %v", got)
	}
	// Untouched columns persist.
	if check.Column("name").Data.Str(0) != "E1" {
		t.Errorf("name lost in update: %v", check.Row(0))
	}
}

func TestDeleteFilter(t *testing.T) {
	env := newEnv(t)
	table := env.setupTable(t, []map[string]columnar.Value{
		row(1, "A", 1, true),
		row(2, "B", 2, false),
		row(3, "C", 3, true),
		row(4, "D", 4, false),
	})

	rt, cmd, cat := env.runtime()
	del := &Delete{
		Table: table,
		Input: &Filter{
			Input:      &TableScan{Table: table},
			Predicates: []Expr{&Infix{Op: OpEq, L: &ColumnRef{Name: "active"}, R: &Constant{Value: columnar.NewBool(false)}}},
		},
	}
	out, err := Drive(rt, del)
	if err != nil {
		t.Fatal(err)
	}
	if out.Column("deleted").Data.Int(0) != 2 {
		t.Errorf("deleted = %v", out.Row(0))
	}
	env.commit(t, cmd, cat)

	rt2, cmd2, cat2 := env.runtime()
	defer cmd2.Rollback()
	defer cat2.Rollback()
	remaining, err := Drive(rt2, &TableScan{Table: table})
	if err != nil {
		t.Fatal(err)
	}
	if remaining.RowCount() != 2 {
		t.Fatalf("remaining = %d", remaining.RowCount())
	}
	for i := 0; i < remaining.RowCount(); i++ {
		if !remaining.Column("active").Data.Bool(i) {
			t.Errorf("inactive row survived delete: %v", remaining.Row(i))
		}
	}
}

func TestTakeStopsUpstream(t *testing.T) {
	env := newEnv(t)
	var rows []map[string]columnar.Value
	for i := 1; i <= 50; i++ {
		rows = append(rows, row(int64(i), "r", 0, true))
	}
	table := env.setupTable(t, rows)

	rt, cmd, cat := env.runtime()
	defer cmd.Rollback()
	defer cat.Rollback()
	rt.BatchRows = 10

	out, err := Drive(rt, &Take{Input: &TableScan{Table: table}, N: 7})
	if err != nil {
		t.Fatal(err)
	}
	if out.RowCount() != 7 {
		t.Errorf("take = %d rows", out.RowCount())
	}
}

func TestSortStability(t *testing.T) {
	env := newEnv(t)
	table := env.setupTable(t, []map[string]columnar.Value{
		row(1, "x", 5, true),
		row(2, "x", 5, true),
		row(3, "x", 5, true),
	})

	rt, cmd, cat := env.runtime()
	defer cmd.Rollback()
	defer cat.Rollback()

	out, err := Drive(rt, &Sort{
		Input: &TableScan{Table: table},
		Keys:  []SortKey{{Expr: &ColumnRef{Name: "salary"}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Ties keep original (insertion) order.
	for i := 0; i < 3; i++ {
		if out.Column("id").Data.Int(i) != int64(i+1) {
			t.Errorf("stability broken at %d: %v", i, out.Row(i))
		}
	}
}

func TestAggregateGroups(t *testing.T) {
	env := newEnv(t)
	table := env.setupTable(t, []map[string]columnar.Value{
		row(1, "eng", 100, true),
		row(2, "eng", 200, true),
		row(3, "ops", 50, true),
		{
			"id":     columnar.NewInt(columnar.TypeInt4, 4),
			"salary": columnar.NewFloat(columnar.TypeFloat8, 70),
			"active": columnar.NewBool(true),
			// name undefined: forms its own group
		},
	})

	rt, cmd, cat := env.runtime()
	defer cmd.Rollback()
	defer cat.Rollback()

	out, err := Drive(rt, &Aggregate{
		Input: &TableScan{Table: table},
		Keys:  []Expr{&ColumnRef{Name: "name"}},
		Aggs: []AggSpec{
			{Func: AggCount, As: "n"},
			{Func: AggSum, Arg: &ColumnRef{Name: "salary"}, As: "total"},
			{Func: AggAvg, Arg: &ColumnRef{Name: "salary"}, As: "mean"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.RowCount() != 3 {
		t.Fatalf("groups = %d", out.RowCount())
	}
	byName := map[string][]columnar.Value{}
	undefinedSeen := false
	for i := 0; i < out.RowCount(); i++ {
		key := out.Column("name").Data.Get(i)
		if !key.Defined() {
			undefinedSeen = true
			if out.Column("n").Data.Int(i) != 1 {
				t.Errorf("undefined group count = %v", out.Row(i))
			}
			continue
		}
		byName[key.Str] = out.Row(i)
	}
	if !undefinedSeen {
		t.Error("undefined keys must form their own group")
	}
	if eng := byName["eng"]; eng == nil || eng[1].Int != 2 || eng[2].Float != 300 || eng[3].Float != 150 {
		t.Errorf("eng group = %v", eng)
	}
}

func TestLeftJoinUnmatchedRows(t *testing.T) {
	env := newEnv(t)
	table := env.setupTable(t, []map[string]columnar.Value{
		row(1, "A", 0, true),
		row(2, "B", 0, true),
	})

	rt, cmd, cat := env.runtime()
	defer cmd.Rollback()
	defer cat.Rollback()

	right := &InlineData{Rows: []map[string]columnar.Value{
		{"owner": columnar.NewInt(columnar.TypeInt4, 1), "item": columnar.NewUtf8("laptop")},
	}}
	join := &Join{
		Kind:  JoinLeft,
		Left:  &TableScan{Table: table},
		Right: right,
		Predicates: []Expr{&Infix{Op: OpEq,
			L: &ColumnRef{Name: "id"},
			R: &ColumnRef{Name: "owner"},
		}},
		LeftAlias:  "e",
		RightAlias: "items",
	}
	out, err := Drive(rt, join)
	if err != nil {
		t.Fatal(err)
	}
	if out.RowCount() != 2 {
		t.Fatalf("left join rows = %d", out.RowCount())
	}
	// Row for id=2 has undefined right columns.
	foundUnmatched := false
	for i := 0; i < out.RowCount(); i++ {
		if out.Column("id").Data.Int(i) == 2 {
			foundUnmatched = true
			if out.Column("item").Data.Get(i).Defined() {
				t.Error("unmatched right columns must be undefined")
			}
		}
	}
	if !foundUnmatched {
		t.Error("left row without match missing from output")
	}
}

func TestNaturalJoinCollapsesColumns(t *testing.T) {
	env := newEnv(t)
	table := env.setupTable(t, []map[string]columnar.Value{
		row(1, "A", 0, true),
		row(2, "B", 0, true),
	})

	rt, cmd, cat := env.runtime()
	defer cmd.Rollback()
	defer cat.Rollback()

	right := &InlineData{Rows: []map[string]columnar.Value{
		{"id": columnar.NewInt(columnar.TypeInt4, 1), "dept": columnar.NewUtf8("eng")},
	}}
	out, err := Drive(rt, &Join{
		Kind:  JoinNatural,
		Left:  &TableScan{Table: table},
		Right: right,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.RowCount() != 1 {
		t.Fatalf("natural join rows = %d", out.RowCount())
	}
	if out.Headers().Index("dept") < 0 {
		t.Error("right-only column missing")
	}
	// The shared id column appears once.
	count := 0
	for _, h := range out.Headers() {
		if h.Name == "id" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("id appears %d times", count)
	}
}

func TestDistinctFirstSeen(t *testing.T) {
	env := newEnv(t)
	table := env.setupTable(t, []map[string]columnar.Value{
		row(1, "A", 0, true),
		row(2, "A", 0, true),
		row(3, "B", 0, true),
	})

	rt, cmd, cat := env.runtime()
	defer cmd.Rollback()
	defer cat.Rollback()

	out, err := Drive(rt, &Distinct{
		Input:   &TableScan{Table: table},
		Columns: []string{"name"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.RowCount() != 2 {
		t.Fatalf("distinct rows = %d", out.RowCount())
	}
	if out.Column("id").Data.Int(0) != 1 || out.Column("id").Data.Int(1) != 3 {
		t.Errorf("first-seen ordering broken: %v %v", out.Row(0), out.Row(1))
	}
}

func TestInsertCoercionPolicyUndefined(t *testing.T) {
	env := newEnv(t)
	rt, cmd, cat := env.runtime()
	ns, _ := cat.CreateNamespace("p")
	table, err := cat.CreateTable(ns.ID, "narrow", []catalog.ColumnDef{
		{Name: "v", Type: columnar.TypeInt1, Policy: catalog.PolicyUndefined},
	})
	if err != nil {
		t.Fatal(err)
	}
	out, err := Drive(rt, &Insert{
		Table: table,
		Input: &InlineData{Rows: []map[string]columnar.Value{
			{"v": columnar.NewInt(columnar.TypeInt4, 5000)}, // out of int1 range
			{"v": columnar.NewInt(columnar.TypeInt4, 7)},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Column("inserted").Data.Int(0) != 2 {
		t.Errorf("inserted = %v", out.Row(0))
	}
	env.commit(t, cmd, cat)

	rt2, cmd2, cat2 := env.runtime()
	defer cmd2.Rollback()
	defer cat2.Rollback()
	got, err := Drive(rt2, &TableScan{Table: table})
	if err != nil {
		t.Fatal(err)
	}
	if got.Column("v").Data.Get(0).Defined() {
		t.Error("out-of-range value must store undefined under PolicyUndefined")
	}
	if got.Column("v").Data.Get(1).Int != 7 {
		t.Errorf("row 1 = %v", got.Row(1))
	}
}

func TestInsertFillsAutoIncrement(t *testing.T) {
	env := newEnv(t)
	rt, cmd, cat := env.runtime()
	ns, _ := cat.CreateNamespace("a")
	table, err := cat.CreateTable(ns.ID, "seq", []catalog.ColumnDef{
		{Name: "id", Type: columnar.TypeInt4, AutoIncr: true},
		{Name: "name", Type: columnar.TypeUtf8},
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = Drive(rt, &Insert{
		Table: table,
		Input: &InlineData{Rows: []map[string]columnar.Value{
			{"name": columnar.NewUtf8("a")},
			{"id": columnar.NewInt(columnar.TypeInt4, 50), "name": columnar.NewUtf8("b")},
			{"name": columnar.NewUtf8("c")},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	env.commit(t, cmd, cat)

	rt2, cmd2, cat2 := env.runtime()
	defer cmd2.Rollback()
	defer cat2.Rollback()
	out, err := Drive(rt2, &TableScan{Table: table})
	if err != nil {
		t.Fatal(err)
	}
	// Undefined ids fill from the sequence; the supplied id passes
	// through without advancing it.
	want := []int64{1, 50, 2}
	for i, w := range want {
		if got := out.Column("id").Data.Int(i); got != w {
			t.Errorf("row %d id = %d, want %d", i, got, w)
		}
	}
}

func TestInsertRejectsUnknownColumn(t *testing.T) {
	env := newEnv(t)
	table := env.setupTable(t, nil)

	rt, cmd, cat := env.runtime()
	defer cmd.Rollback()
	defer cat.Rollback()
	_, err := Drive(rt, &Insert{
		Table: table,
		Input: &InlineData{Rows: []map[string]columnar.Value{
			{"bogus": columnar.NewInt(columnar.TypeInt4, 1)},
		}},
	})
	if diag.CodeOf(err) != diag.QuerySchemaMismatch {
		t.Errorf("unknown column insert = %v", err)
	}
}

func TestSubstringBoundaries(t *testing.T) {
	fn := substringFunc{}
	text := columnar.NewColumnData(columnar.TypeUtf8)
	start := columnar.NewColumnData(columnar.TypeInt4)
	length := columnar.NewColumnData(columnar.TypeInt4)
	add := func(s string, st, ln int64) {
		text.MustAppend(columnar.NewUtf8(s))
		start.MustAppend(columnar.NewInt(columnar.TypeInt4, st))
		length.MustAppend(columnar.NewInt(columnar.TypeInt4, ln))
	}
	add("hello", 1, 3)   // "ell"
	add("hello", 10, 2)  // start beyond length -> ""
	add("hello", -3, 2)  // negative start counts from end -> "ll"
	add("hello", 0, -5)  // negative length -> ""
	add("héllo", 1, 2)   // unicode aware -> "él"

	out, err := fn.Eval([]*columnar.ColumnData{text, start, length}, text.Len())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"ell", "", "ll", "", "él"}
	for i, w := range want {
		if got := out.Str(i); got != w {
			t.Errorf("case %d = %q, want %q", i, got, w)
		}
	}
}

func TestFunctionArityMismatch(t *testing.T) {
	fn := substringFunc{}
	_, err := fn.Eval(nil, 0)
	if diag.CodeOf(err) != diag.FunctionArityMismatch {
		t.Errorf("arity error = %v", err)
	}
}

func TestLogicalShortCircuit(t *testing.T) {
	mkBool := func(vals ...*bool) *columnar.ColumnData {
		c := columnar.NewColumnData(columnar.TypeBool)
		for _, v := range vals {
			if v == nil {
				c.AppendUndefined()
			} else {
				c.MustAppend(columnar.NewBool(*v))
			}
		}
		return c
	}
	tr, fa := true, false

	// false AND undefined = false
	out, err := evalLogical(OpAnd, mkBool(&fa), mkBool(nil))
	if err != nil {
		t.Fatal(err)
	}
	if v := out.Get(0); !v.Defined() || v.Bool {
		t.Errorf("false AND undefined = %v", v)
	}
	// true OR undefined = true
	out, _ = evalLogical(OpOr, mkBool(&tr), mkBool(nil))
	if v := out.Get(0); !v.Defined() || !v.Bool {
		t.Errorf("true OR undefined = %v", v)
	}
	// true AND undefined = undefined
	out, _ = evalLogical(OpAnd, mkBool(&tr), mkBool(nil))
	if v := out.Get(0); v.Defined() {
		t.Errorf("true AND undefined = %v", v)
	}
	// XOR propagates undefined.
	out, _ = evalLogical(OpXor, mkBool(&tr), mkBool(nil))
	if v := out.Get(0); v.Defined() {
		t.Errorf("true XOR undefined = %v", v)
	}
}

func TestNumericPromotion(t *testing.T) {
	cases := []struct {
		a, b, want columnar.Type
	}{
		{columnar.TypeInt1, columnar.TypeInt4, columnar.TypeInt4},
		{columnar.TypeInt4, columnar.TypeInt8, columnar.TypeInt8},
		{columnar.TypeInt4, columnar.TypeFloat4, columnar.TypeFloat8},
		{columnar.TypeFloat4, columnar.TypeFloat8, columnar.TypeFloat8},
		{columnar.TypeUint2, columnar.TypeUint4, columnar.TypeUint4},
		{columnar.TypeInt4, columnar.TypeUint4, columnar.TypeInt8},
		{columnar.TypeInt4, columnar.TypeDecimal, columnar.TypeDecimal},
	}
	for _, c := range cases {
		got, ok := promote(c.a, c.b)
		if !ok || got != c.want {
			t.Errorf("promote(%s, %s) = %s %v, want %s", c.a, c.b, got, ok, c.want)
		}
	}
}

func TestArithmeticOverflowPolicies(t *testing.T) {
	mk := func(v int64) *columnar.ColumnData {
		c := columnar.NewColumnData(columnar.TypeInt1)
		c.MustAppend(columnar.NewInt(columnar.TypeInt1, v))
		return c
	}
	// 100 + 100 overflows int1.
	_, err := evalArithmetic(OpAdd, mk(100), mk(100), PolicyError)
	if diag.CodeOf(err) != diag.CastOutOfRange {
		t.Errorf("error policy = %v", err)
	}
	out, err := evalArithmetic(OpAdd, mk(100), mk(100), PolicySaturate)
	if err != nil || out.Get(0).Int != 127 {
		t.Errorf("saturate = %v %v", out.Get(0), err)
	}
	out, err = evalArithmetic(OpAdd, mk(100), mk(100), PolicyUndefined)
	if err != nil || out.Get(0).Defined() {
		t.Errorf("undefined policy = %v %v", out.Get(0), err)
	}
}

func TestStatementTimeoutAtBatchBoundary(t *testing.T) {
	env := newEnv(t)
	var rows []map[string]columnar.Value
	for i := 0; i < 100; i++ {
		rows = append(rows, row(int64(i), "r", 0, true))
	}
	table := env.setupTable(t, rows)

	rt, cmd, cat := env.runtime()
	defer cmd.Rollback()
	defer cat.Rollback()
	rt.BatchRows = 10

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	rt.Ctx = ctx

	_, err := Drive(rt, &TableScan{Table: table})
	if diag.CodeOf(err) != diag.TxnTimeout {
		t.Errorf("expired context = %v", err)
	}
}

func TestVirtualScanSystemTables(t *testing.T) {
	env := newEnv(t)
	env.setupTable(t, nil)

	rt, cmd, cat := env.runtime()
	defer cmd.Rollback()
	defer cat.Rollback()

	out, err := Drive(rt, &VirtualScan{Name: "tables"})
	if err != nil {
		t.Fatal(err)
	}
	if out.RowCount() != 1 || out.Column("name").Data.Str(0) != "e" {
		t.Errorf("system.tables = %d rows", out.RowCount())
	}
}
