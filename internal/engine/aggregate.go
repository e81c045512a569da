package engine

import (
	"math/big"

	"github.com/SimonWaldherr/flowDB/internal/columnar"
	"github.com/SimonWaldherr/flowDB/internal/diag"
)

// AggFunc enumerates the aggregate functions.
type AggFunc uint8

const (
	AggCount AggFunc = iota
	AggSum
	AggAvg
	AggMin
	AggMax
)

var aggNames = map[AggFunc]string{
	AggCount: "count", AggSum: "sum", AggAvg: "avg", AggMin: "min", AggMax: "max",
}

// AggSpec is one aggregate column: the function, its argument (nil for
// count(*)), and the output name.
type AggSpec struct {
	Func AggFunc
	Arg  Expr
	As   string
}

// Label returns the output column name.
func (a AggSpec) Label() string {
	if a.As != "" {
		return a.As
	}
	name := aggNames[a.Func]
	if a.Arg != nil {
		name += "_" + a.Arg.Label()
	}
	return name
}

// Aggregate partitions the input by the group keys and computes each
// aggregate per group, emitting one row per group. Rows with undefined
// keys form their own group.
type Aggregate struct {
	Input Operator
	Keys  []Expr
	Aggs  []AggSpec

	headers columnar.Headers
	done    bool
}

func (a *Aggregate) Init(rt *Runtime) error    { return a.Input.Init(rt) }
func (a *Aggregate) Headers() columnar.Headers { return a.headers }

// aggCell is the running state of one aggregate within one group.
type aggCell struct {
	count    int64
	sum      *big.Rat
	sumType  columnar.Type
	min, max columnar.Value
	seen     bool
}

type aggGroup struct {
	keyValues []columnar.Value
	rows      int64
	cells     []aggCell
}

// Next drains the input and emits one batch of groups in first-seen
// order.
func (a *Aggregate) Next(rt *Runtime) (*columnar.Batch, error) {
	if a.done {
		return nil, nil
	}
	a.done = true

	groups := make(map[string]*aggGroup)
	var order []string

	for {
		batch, err := a.Input.Next(rt)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}
		keyCols := make([]*columnar.ColumnData, len(a.Keys))
		for i, k := range a.Keys {
			col, err := k.Eval(rt, batch)
			if err != nil {
				return nil, err
			}
			keyCols[i] = col
		}
		argCols := make([]*columnar.ColumnData, len(a.Aggs))
		for i, spec := range a.Aggs {
			if spec.Arg == nil {
				continue
			}
			col, err := spec.Arg.Eval(rt, batch)
			if err != nil {
				return nil, err
			}
			argCols[i] = col
		}

		for row := 0; row < batch.RowCount(); row++ {
			key := ""
			keyValues := make([]columnar.Value, len(keyCols))
			for i, col := range keyCols {
				v := col.Get(row)
				keyValues[i] = v
				if v.Defined() {
					key += v.Type.String() + ":" + v.String() + "\x00"
				} else {
					key += "\x01"
				}
			}
			g, ok := groups[key]
			if !ok {
				g = &aggGroup{keyValues: keyValues, cells: make([]aggCell, len(a.Aggs))}
				for i := range g.cells {
					g.cells[i].sum = new(big.Rat)
				}
				groups[key] = g
				order = append(order, key)
			}
			g.rows++
			for i, spec := range a.Aggs {
				cell := &g.cells[i]
				if argCols[i] == nil {
					continue
				}
				v := argCols[i].Get(row)
				if !v.Defined() {
					continue
				}
				switch spec.Func {
				case AggCount:
					cell.count++
				case AggSum, AggAvg:
					r := toRat(v)
					if r == nil {
						return nil, diag.New(diag.CastFailure,
							"%s expects a numeric argument, got %s", aggNames[spec.Func], v.Type)
					}
					cell.sum.Add(cell.sum, r)
					cell.sumType = v.Type
					cell.count++
				case AggMin, AggMax:
					if !cell.seen {
						cell.min, cell.max, cell.seen = v, v, true
						continue
					}
					if cmp, ok := Compare(v, cell.min); ok && cmp < 0 {
						cell.min = v
					}
					if cmp, ok := Compare(v, cell.max); ok && cmp > 0 {
						cell.max = v
					}
				}
			}
		}
	}

	if len(order) == 0 {
		return nil, nil
	}

	headers := make(columnar.Headers, 0, len(a.Keys)+len(a.Aggs))
	for i, k := range a.Keys {
		t := columnar.TypeUndefined
		for _, key := range order {
			if v := groups[key].keyValues[i]; v.Defined() {
				t = v.Type
				break
			}
		}
		headers = append(headers, columnar.Header{Name: k.Label(), Type: t})
	}
	for i, spec := range a.Aggs {
		headers = append(headers, columnar.Header{Name: spec.Label(), Type: a.outputType(i, spec, groups, order)})
	}
	out := columnar.NewColumns(headers)

	for _, key := range order {
		g := groups[key]
		row := make([]columnar.Value, 0, len(headers))
		row = append(row, g.keyValues...)
		for i, spec := range a.Aggs {
			row = append(row, aggResult(spec, g, &g.cells[i]))
		}
		if err := out.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	a.headers = headers
	return &out, nil
}

func (a *Aggregate) outputType(i int, spec AggSpec, groups map[string]*aggGroup, order []string) columnar.Type {
	switch spec.Func {
	case AggCount:
		return columnar.TypeInt8
	case AggAvg:
		return columnar.TypeFloat8
	case AggSum:
		for _, key := range order {
			if cell := groups[key].cells[i]; cell.count > 0 {
				if cell.sumType.IsFloat() {
					return columnar.TypeFloat8
				}
				if cell.sumType == columnar.TypeDecimal {
					return columnar.TypeDecimal
				}
				return columnar.TypeInt8
			}
		}
		return columnar.TypeInt8
	default:
		for _, key := range order {
			if cell := groups[key].cells[i]; cell.seen {
				return cell.min.Type
			}
		}
		return columnar.TypeUndefined
	}
}

func aggResult(spec AggSpec, g *aggGroup, cell *aggCell) columnar.Value {
	switch spec.Func {
	case AggCount:
		if spec.Arg == nil {
			return columnar.NewInt(columnar.TypeInt8, g.rows)
		}
		return columnar.NewInt(columnar.TypeInt8, cell.count)
	case AggSum:
		if cell.count == 0 {
			return columnar.Undefined
		}
		switch {
		case cell.sumType.IsFloat():
			f, _ := cell.sum.Float64()
			return columnar.NewFloat(columnar.TypeFloat8, f)
		case cell.sumType == columnar.TypeDecimal:
			return columnar.Value{Type: columnar.TypeDecimal, Decimal: new(big.Rat).Set(cell.sum)}
		default:
			if !cell.sum.IsInt() {
				f, _ := cell.sum.Float64()
				return columnar.NewFloat(columnar.TypeFloat8, f)
			}
			return columnar.NewInt(columnar.TypeInt8, cell.sum.Num().Int64())
		}
	case AggAvg:
		if cell.count == 0 {
			return columnar.Undefined
		}
		avg := new(big.Rat).Quo(cell.sum, new(big.Rat).SetInt64(cell.count))
		f, _ := avg.Float64()
		return columnar.NewFloat(columnar.TypeFloat8, f)
	case AggMin:
		if !cell.seen {
			return columnar.Undefined
		}
		return cell.min
	case AggMax:
		if !cell.seen {
			return columnar.Undefined
		}
		return cell.max
	}
	return columnar.Undefined
}
