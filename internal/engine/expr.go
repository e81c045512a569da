package engine

import (
	"fmt"
	"strings"

	"github.com/SimonWaldherr/flowDB/internal/columnar"
	"github.com/SimonWaldherr/flowDB/internal/diag"
)

// Expr is a scalar expression evaluated over a batch, producing one
// ColumnData of the batch's row count.
type Expr interface {
	// Eval produces the expression's column for the batch.
	Eval(rt *Runtime, in *columnar.Batch) (*columnar.ColumnData, error)

	// Label is the output column name the expression suggests.
	Label() string
}

// Constant repeats a literal for every row.
type Constant struct {
	Value columnar.Value
}

func (e *Constant) Label() string { return e.Value.String() }

func (e *Constant) Eval(_ *Runtime, in *columnar.Batch) (*columnar.ColumnData, error) {
	out := columnar.NewColumnData(e.Value.Type)
	for i := 0; i < in.RowCount(); i++ {
		out.MustAppend(e.Value)
	}
	return out, nil
}

// ColumnRef reads a named input column.
type ColumnRef struct {
	Name string
}

func (e *ColumnRef) Label() string { return e.Name }

func (e *ColumnRef) Eval(_ *Runtime, in *columnar.Batch) (*columnar.ColumnData, error) {
	if col := in.Column(e.Name); col != nil {
		return col.Data.Clone(), nil
	}
	return nil, diag.New(diag.CatalogUnresolvedName, "unknown column %q", e.Name).
		WithLabel("not in scope").
		WithHelp(fmt.Sprintf("available columns: %s", strings.Join(in.Headers().Names(), ", ")))
}

// Access reads source.column, matching the qualified name emitted by
// joins.
type Access struct {
	Source string
	Column string
}

func (e *Access) Label() string { return e.Column }

func (e *Access) Eval(_ *Runtime, in *columnar.Batch) (*columnar.ColumnData, error) {
	qualified := e.Source + "." + e.Column
	if col := in.Column(qualified); col != nil {
		return col.Data.Clone(), nil
	}
	if col := in.Column(e.Column); col != nil {
		return col.Data.Clone(), nil
	}
	return nil, diag.New(diag.CatalogUnresolvedName, "unknown column %q", qualified)
}

// Param reads a statement parameter: positional (Index >= 0) or named.
type Param struct {
	Index int // -1 for named
	Name  string
}

func (e *Param) Label() string {
	if e.Index >= 0 {
		return fmt.Sprintf("$%d", e.Index+1)
	}
	return "$" + e.Name
}

func (e *Param) Eval(rt *Runtime, in *columnar.Batch) (*columnar.ColumnData, error) {
	var v columnar.Value
	if e.Index >= 0 {
		if e.Index >= len(rt.Params.Positional) {
			return nil, diag.New(diag.FunctionArityMismatch,
				"positional parameter $%d not supplied (%d given)", e.Index+1, len(rt.Params.Positional))
		}
		v = rt.Params.Positional[e.Index]
	} else {
		var ok bool
		v, ok = rt.Params.Named[e.Name]
		if !ok {
			return nil, diag.New(diag.CatalogUnresolvedName, "named parameter $%s not supplied", e.Name)
		}
	}
	return (&Constant{Value: v}).Eval(rt, in)
}

// Alias renames the result of an inner expression.
type Alias struct {
	Inner Expr
	As    string
}

func (e *Alias) Label() string { return e.As }

func (e *Alias) Eval(rt *Runtime, in *columnar.Batch) (*columnar.ColumnData, error) {
	return e.Inner.Eval(rt, in)
}

// Tuple evaluates a fixed list of expressions; it only appears in
// contexts that destructure it (inline rows, BETWEEN bounds).
type Tuple struct {
	Items []Expr
}

func (e *Tuple) Label() string { return "tuple" }

func (e *Tuple) Eval(*Runtime, *columnar.Batch) (*columnar.ColumnData, error) {
	return nil, diag.New(diag.QueryParse, "tuple cannot be evaluated as a scalar")
}

// PrefixOp enumerates unary operators.
type PrefixOp uint8

const (
	PrefixNeg PrefixOp = iota
	PrefixNot
)

// Prefix applies a unary operator.
type Prefix struct {
	Op PrefixOp
	X  Expr
}

func (e *Prefix) Label() string { return e.X.Label() }

func (e *Prefix) Eval(rt *Runtime, in *columnar.Batch) (*columnar.ColumnData, error) {
	x, err := e.X.Eval(rt, in)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case PrefixNot:
		out := columnar.NewColumnData(columnar.TypeBool)
		for i := 0; i < x.Len(); i++ {
			v := x.Get(i)
			if !v.Defined() {
				out.AppendUndefined()
				continue
			}
			if v.Type != columnar.TypeBool {
				return nil, diag.New(diag.CastFailure, "NOT expects bool, got %s", v.Type)
			}
			out.MustAppend(columnar.NewBool(!v.Bool))
		}
		return out, nil
	case PrefixNeg:
		out := columnar.NewColumnData(negResultType(x.Type()))
		for i := 0; i < x.Len(); i++ {
			v := x.Get(i)
			if !v.Defined() {
				out.AppendUndefined()
				continue
			}
			nv, err := negate(v, out.Type())
			if err != nil {
				return nil, err
			}
			out.MustAppend(nv)
		}
		return out, nil
	}
	return nil, diag.New(diag.Internal, "unknown prefix op %d", e.Op)
}

func negResultType(t columnar.Type) columnar.Type {
	switch {
	case t.IsUnsignedInt():
		return columnar.TypeInt8
	case t.IsSignedInt():
		return t
	case t.IsFloat():
		return columnar.TypeFloat8
	case t == columnar.TypeDecimal:
		return columnar.TypeDecimal
	}
	return columnar.TypeFloat8
}

func negate(v columnar.Value, to columnar.Type) (columnar.Value, error) {
	switch {
	case v.Type.IsSignedInt():
		return columnar.NewInt(to, -v.Int), nil
	case v.Type.IsUnsignedInt():
		return columnar.NewInt(to, -int64(v.Uint)), nil
	case v.Type.IsFloat():
		return columnar.NewFloat(to, -v.Float), nil
	case v.Type == columnar.TypeDecimal && v.Decimal != nil:
		return columnar.Value{Type: columnar.TypeDecimal, Decimal: ratNeg(v.Decimal)}, nil
	}
	return columnar.Undefined, diag.New(diag.CastFailure, "cannot negate %s", v.Type)
}

// Call invokes a registered scalar function.
type Call struct {
	Name string
	Args []Expr
	Frag *diag.Fragment
}

func (e *Call) Label() string { return e.Name }

func (e *Call) Eval(rt *Runtime, in *columnar.Batch) (*columnar.ColumnData, error) {
	fn := rt.Funcs.Lookup(e.Name)
	if fn == nil {
		d := diag.New(diag.FunctionUnknown, "unknown function %q", e.Name)
		if e.Frag != nil {
			d = d.WithFragment(*e.Frag)
		}
		return nil, d
	}
	args := make([]*columnar.ColumnData, len(e.Args))
	for i, a := range e.Args {
		col, err := a.Eval(rt, in)
		if err != nil {
			return nil, err
		}
		args[i] = col
	}
	out, err := fn.Eval(args, in.RowCount())
	if err != nil {
		d := diag.From(err)
		if e.Frag != nil && d.Fragment == nil {
			d = d.WithFragment(*e.Frag)
		}
		return nil, d
	}
	return out, nil
}

// CastExpr converts the inner expression to a target type with a
// failure policy.
type CastExpr struct {
	Inner  Expr
	To     columnar.Type
	Policy CastPolicy
}

func (e *CastExpr) Label() string { return e.Inner.Label() }

func (e *CastExpr) Eval(rt *Runtime, in *columnar.Batch) (*columnar.ColumnData, error) {
	col, err := e.Inner.Eval(rt, in)
	if err != nil {
		return nil, err
	}
	return CastColumn(col, e.To, e.Policy)
}
