// Package flowdb - fluent pipeline builder.
//
// This file provides a type-safe, fluent interface for constructing
// pipelines programmatically instead of concatenating statement text.

package flowdb

import (
	"context"
	"math/big"
	"time"

	"github.com/SimonWaldherr/flowDB/internal/columnar"
	"github.com/SimonWaldherr/flowDB/internal/engine"
	"github.com/SimonWaldherr/flowDB/internal/rql"
)

// Pipeline builds one pipeline statement stage by stage.
//
// Example:
//
//	res, err := flowdb.From("c", "events").
//	    Filter(flowdb.Col("active").Eq(flowdb.Bool(true))).
//	    Sort("id", false).
//	    Take(10).
//	    Query(ctx, db, identity)
type Pipeline struct {
	stmt rql.PipelineStmt
}

// From starts a pipeline reading a stored table.
func From(namespace, table string) *Pipeline {
	return &Pipeline{stmt: rql.PipelineStmt{
		Stages: []rql.Stage{&rql.FromTable{Namespace: namespace, Name: table}},
	}}
}

// FromRows starts a pipeline over literal rows.
func FromRows(rows ...map[string]Value) *Pipeline {
	return &Pipeline{stmt: rql.PipelineStmt{
		Stages: []rql.Stage{&rql.FromInline{Rows: rows}},
	}}
}

func (p *Pipeline) add(stage rql.Stage) *Pipeline {
	p.stmt.Stages = append(p.stmt.Stages, stage)
	return p
}

// Filter keeps rows where every predicate is true.
func (p *Pipeline) Filter(preds ...ExprBuilder) *Pipeline {
	return p.add(&rql.FilterStage{Predicates: buildAll(preds)})
}

// Map projects the given expressions.
func (p *Pipeline) Map(exprs ...ExprBuilder) *Pipeline {
	return p.add(&rql.MapStage{Exprs: buildAll(exprs)})
}

// Extend appends the given expressions to the input columns.
func (p *Pipeline) Extend(exprs ...ExprBuilder) *Pipeline {
	return p.add(&rql.ExtendStage{Exprs: buildAll(exprs)})
}

// Sort orders by one column; chain for secondary keys.
func (p *Pipeline) Sort(column string, desc bool) *Pipeline {
	key := engine.SortKey{Expr: &engine.ColumnRef{Name: column}, Desc: desc}
	if n := len(p.stmt.Stages); n > 0 {
		if s, ok := p.stmt.Stages[n-1].(*rql.SortStage); ok {
			s.Keys = append(s.Keys, key)
			return p
		}
	}
	return p.add(&rql.SortStage{Keys: []engine.SortKey{key}})
}

// Take limits the result to n rows.
func (p *Pipeline) Take(n int) *Pipeline {
	return p.add(&rql.TakeStage{N: n})
}

// Distinct deduplicates by the given columns (all when empty).
func (p *Pipeline) Distinct(columns ...string) *Pipeline {
	return p.add(&rql.DistinctStage{Columns: columns})
}

// Insert sinks the pipeline into a table.
func (p *Pipeline) Insert(namespace, table string) *Pipeline {
	return p.add(&rql.SinkStage{Kind: "insert", Namespace: namespace, Name: table})
}

// Update sinks the pipeline as row updates.
func (p *Pipeline) Update(namespace, table string) *Pipeline {
	return p.add(&rql.SinkStage{Kind: "update", Namespace: namespace, Name: table})
}

// Delete sinks the pipeline as row deletions.
func (p *Pipeline) Delete(namespace, table string) *Pipeline {
	return p.add(&rql.SinkStage{Kind: "delete", Namespace: namespace, Name: table})
}

// Query runs the pipeline read-only.
func (p *Pipeline) Query(ctx context.Context, db *DB, identity Identity) (Columns, error) {
	return db.runPlanned(ctx, identity, &p.stmt, true)
}

// Command runs the pipeline in a command transaction.
func (p *Pipeline) Command(ctx context.Context, db *DB, identity Identity) (Columns, error) {
	return db.runPlanned(ctx, identity, &p.stmt, false)
}

// runPlanned executes an already-built pipeline statement.
func (db *DB) runPlanned(ctx context.Context, identity Identity, stmt *rql.PipelineStmt, readOnly bool) (Columns, error) {
	if identity.Principal == "" {
		return Columns{}, errMissingIdentity()
	}
	if db.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.timeout)
		defer cancel()
	}
	cmd := db.manager.BeginCommand()
	cat := db.catalog.Begin(cmd)
	rt := &engine.Runtime{
		Ctx:     ctx,
		Cmd:     cmd,
		Cat:     cat,
		Catalog: db.catalog,
		Store:   db.store,
		Funcs:   db.funcs,
		Virtual: db.virtual,
	}
	fail := func(err error) (Columns, error) {
		cmd.Rollback()
		cat.Rollback()
		return Columns{}, err
	}
	op, err := rql.Bind(rt, stmt)
	if err != nil {
		return fail(err)
	}
	if readOnly && isWriteOperator(op) {
		return fail(errReadOnly("write pipeline"))
	}
	out, err := engine.Drive(rt, op)
	if err != nil {
		return fail(err)
	}
	if readOnly {
		cmd.Rollback()
		cat.Rollback()
		return out, nil
	}
	version, err := cmd.Commit()
	if err != nil {
		cat.Rollback()
		return Columns{}, err
	}
	cat.Commit(version)
	return out, nil
}

// ExprBuilder builds one expression node.
type ExprBuilder struct {
	expr engine.Expr
}

// Build returns the underlying expression.
func (b ExprBuilder) Build() engine.Expr { return b.expr }

func buildAll(bs []ExprBuilder) []engine.Expr {
	out := make([]engine.Expr, len(bs))
	for i, b := range bs {
		out[i] = b.expr
	}
	return out
}

// Col references a column.
func Col(name string) ExprBuilder {
	return ExprBuilder{expr: &engine.ColumnRef{Name: name}}
}

// Int wraps an int4 literal.
func Int(v int64) ExprBuilder {
	return ExprBuilder{expr: &engine.Constant{Value: columnar.NewInt(columnar.TypeInt4, v)}}
}

// Float wraps a float8 literal.
func Float(v float64) ExprBuilder {
	return ExprBuilder{expr: &engine.Constant{Value: columnar.NewFloat(columnar.TypeFloat8, v)}}
}

// Str wraps a utf8 literal.
func Str(v string) ExprBuilder {
	return ExprBuilder{expr: &engine.Constant{Value: columnar.NewUtf8(v)}}
}

// Bool wraps a bool literal.
func Bool(v bool) ExprBuilder {
	return ExprBuilder{expr: &engine.Constant{Value: columnar.NewBool(v)}}
}

// Dec wraps a decimal literal.
func Dec(v *big.Rat) ExprBuilder {
	return ExprBuilder{expr: &engine.Constant{Value: columnar.Value{Type: columnar.TypeDecimal, Decimal: v}}}
}

// Dur wraps a duration literal.
func Dur(v time.Duration) ExprBuilder {
	return ExprBuilder{expr: &engine.Constant{Value: columnar.Value{Type: columnar.TypeDuration, Duration: v}}}
}

// As aliases the expression.
func (b ExprBuilder) As(name string) ExprBuilder {
	return ExprBuilder{expr: &engine.Alias{Inner: b.expr, As: name}}
}

func (b ExprBuilder) binary(op engine.InfixOp, rhs ExprBuilder) ExprBuilder {
	return ExprBuilder{expr: &engine.Infix{Op: op, L: b.expr, R: rhs.expr}}
}

// Eq compares for equality.
func (b ExprBuilder) Eq(rhs ExprBuilder) ExprBuilder { return b.binary(engine.OpEq, rhs) }

// Ne compares for inequality.
func (b ExprBuilder) Ne(rhs ExprBuilder) ExprBuilder { return b.binary(engine.OpNe, rhs) }

// Lt compares less-than.
func (b ExprBuilder) Lt(rhs ExprBuilder) ExprBuilder { return b.binary(engine.OpLt, rhs) }

// Le compares less-or-equal.
func (b ExprBuilder) Le(rhs ExprBuilder) ExprBuilder { return b.binary(engine.OpLe, rhs) }

// Gt compares greater-than.
func (b ExprBuilder) Gt(rhs ExprBuilder) ExprBuilder { return b.binary(engine.OpGt, rhs) }

// Ge compares greater-or-equal.
func (b ExprBuilder) Ge(rhs ExprBuilder) ExprBuilder { return b.binary(engine.OpGe, rhs) }

// Add adds.
func (b ExprBuilder) Add(rhs ExprBuilder) ExprBuilder { return b.binary(engine.OpAdd, rhs) }

// Sub subtracts.
func (b ExprBuilder) Sub(rhs ExprBuilder) ExprBuilder { return b.binary(engine.OpSub, rhs) }

// Mul multiplies.
func (b ExprBuilder) Mul(rhs ExprBuilder) ExprBuilder { return b.binary(engine.OpMul, rhs) }

// Div divides.
func (b ExprBuilder) Div(rhs ExprBuilder) ExprBuilder { return b.binary(engine.OpDiv, rhs) }

// And conjoins.
func (b ExprBuilder) And(rhs ExprBuilder) ExprBuilder { return b.binary(engine.OpAnd, rhs) }

// Or disjoins.
func (b ExprBuilder) Or(rhs ExprBuilder) ExprBuilder { return b.binary(engine.OpOr, rhs) }

// Not negates a boolean expression.
func (b ExprBuilder) Not() ExprBuilder {
	return ExprBuilder{expr: &engine.Prefix{Op: engine.PrefixNot, X: b.expr}}
}

// CastTo converts to a target type by canonical name.
func (b ExprBuilder) CastTo(typeName string) (ExprBuilder, error) {
	t, err := columnar.ParseType(typeName)
	if err != nil {
		return ExprBuilder{}, err
	}
	return ExprBuilder{expr: &engine.CastExpr{Inner: b.expr, To: t}}, nil
}

// CallFn invokes a registered scalar function.
func CallFn(name string, args ...ExprBuilder) ExprBuilder {
	return ExprBuilder{expr: &engine.Call{Name: name, Args: buildAll(args)}}
}
