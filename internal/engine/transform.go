package engine

import (
	"sort"

	"github.com/SimonWaldherr/flowDB/internal/columnar"
	"github.com/SimonWaldherr/flowDB/internal/diag"
)

// Filter keeps rows for which every predicate evaluates to
// true-defined; an undefined predicate value excludes the row.
type Filter struct {
	Input      Operator
	Predicates []Expr
}

func (f *Filter) Init(rt *Runtime) error    { return f.Input.Init(rt) }
func (f *Filter) Headers() columnar.Headers { return f.Input.Headers() }

// Next filters input batches until one yields surviving rows.
func (f *Filter) Next(rt *Runtime) (*columnar.Batch, error) {
	for {
		batch, err := f.Input.Next(rt)
		if err != nil || batch == nil {
			return nil, err
		}
		keep := make([]int, 0, batch.RowCount())
		mask := make([]bool, batch.RowCount())
		for i := range mask {
			mask[i] = true
		}
		for _, pred := range f.Predicates {
			col, err := pred.Eval(rt, batch)
			if err != nil {
				return nil, err
			}
			if col.Type() != columnar.TypeBool && col.Type() != columnar.TypeUndefined {
				return nil, diag.New(diag.CastFailure,
					"filter predicate must be bool, got %s", col.Type())
			}
			for i := 0; i < batch.RowCount(); i++ {
				v := col.Get(i)
				if !v.Defined() || !v.Bool {
					mask[i] = false
				}
			}
		}
		for i, ok := range mask {
			if ok {
				keep = append(keep, i)
			}
		}
		if len(keep) == 0 {
			continue
		}
		out := batch.Gather(keep)
		return &out, nil
	}
}

// Map produces a batch whose columns are the scalar expression results;
// the row count and row numbers are preserved.
type Map struct {
	Exprs []Expr

	Input   Operator
	headers columnar.Headers
}

func (m *Map) Init(rt *Runtime) error    { return m.Input.Init(rt) }
func (m *Map) Headers() columnar.Headers { return m.headers }

// Next projects one input batch.
func (m *Map) Next(rt *Runtime) (*columnar.Batch, error) {
	batch, err := m.Input.Next(rt)
	if err != nil || batch == nil {
		return nil, err
	}
	out := columnar.Columns{RowNumbers: batch.RowNumbers}
	for _, e := range m.Exprs {
		col, err := e.Eval(rt, batch)
		if err != nil {
			return nil, err
		}
		out.Cols = append(out.Cols, columnar.Column{Name: e.Label(), Data: col})
	}
	m.headers = out.Headers()
	return &out, nil
}

// Extend is Map that retains the input columns and appends the new
// ones.
type Extend struct {
	Exprs []Expr

	Input   Operator
	headers columnar.Headers
}

func (m *Extend) Init(rt *Runtime) error    { return m.Input.Init(rt) }
func (m *Extend) Headers() columnar.Headers { return m.headers }

// Next extends one input batch.
func (m *Extend) Next(rt *Runtime) (*columnar.Batch, error) {
	batch, err := m.Input.Next(rt)
	if err != nil || batch == nil {
		return nil, err
	}
	out := columnar.Columns{RowNumbers: batch.RowNumbers}
	for _, col := range batch.Cols {
		out.Cols = append(out.Cols, columnar.Column{Name: col.Name, Data: col.Data.Clone()})
	}
	for _, e := range m.Exprs {
		col, err := e.Eval(rt, batch)
		if err != nil {
			return nil, err
		}
		out.Cols = append(out.Cols, columnar.Column{Name: e.Label(), Data: col})
	}
	m.headers = out.Headers()
	return &out, nil
}

// Take emits the first N rows across all input batches and stops
// pulling upstream once the limit is reached.
type Take struct {
	Input Operator
	N     int

	taken int
	done  bool
}

func (t *Take) Init(rt *Runtime) error    { return t.Input.Init(rt) }
func (t *Take) Headers() columnar.Headers { return t.Input.Headers() }

// Next passes batches through, truncating the last one.
func (t *Take) Next(rt *Runtime) (*columnar.Batch, error) {
	if t.done || t.taken >= t.N {
		return nil, nil
	}
	batch, err := t.Input.Next(rt)
	if err != nil || batch == nil {
		t.done = true
		return nil, err
	}
	remaining := t.N - t.taken
	if batch.RowCount() <= remaining {
		t.taken += batch.RowCount()
		return batch, nil
	}
	keep := make([]int, remaining)
	for i := range keep {
		keep[i] = i
	}
	out := batch.Gather(keep)
	t.taken = t.N
	t.done = true
	return &out, nil
}

// SortKey is one ordering component.
type SortKey struct {
	Expr Expr
	Desc bool
}

// Sort collects all input, emits one batch sorted by the key list.
// Ties keep the original row order (stable). Undefined orders below every
// defined value: first for ascending keys, last for descending keys.
type Sort struct {
	Input Operator
	Keys  []SortKey

	headers columnar.Headers
	done    bool
}

func (s *Sort) Init(rt *Runtime) error    { return s.Input.Init(rt) }
func (s *Sort) Headers() columnar.Headers { return s.headers }

// Next drains the input, sorts, and emits a single batch.
func (s *Sort) Next(rt *Runtime) (*columnar.Batch, error) {
	if s.done {
		return nil, nil
	}
	s.done = true

	var all columnar.Columns
	started := false
	for {
		batch, err := s.Input.Next(rt)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}
		if !started {
			all = columnar.NewColumns(batch.Headers())
			started = true
		}
		if err := all.AppendBatch(batch); err != nil {
			return nil, err
		}
	}
	if !started || all.RowCount() == 0 {
		return nil, nil
	}

	keyCols := make([]*columnar.ColumnData, len(s.Keys))
	for i, k := range s.Keys {
		col, err := k.Expr.Eval(rt, &all)
		if err != nil {
			return nil, err
		}
		keyCols[i] = col
	}

	indices := make([]int, all.RowCount())
	for i := range indices {
		indices[i] = i
	}
	var sortErr error
	sort.SliceStable(indices, func(a, b int) bool {
		for ki, col := range keyCols {
			av, bv := col.Get(indices[a]), col.Get(indices[b])
			var cmp int
			switch {
			case !av.Defined() && !bv.Defined():
				cmp = 0
			case !av.Defined():
				cmp = -1
			case !bv.Defined():
				cmp = 1
			default:
				var ok bool
				cmp, ok = Compare(av, bv)
				if !ok {
					sortErr = diag.New(diag.CastFailure,
						"cannot order %s against %s", av.Type, bv.Type)
					return false
				}
			}
			if cmp == 0 {
				continue
			}
			if s.Keys[ki].Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	if sortErr != nil {
		return nil, sortErr
	}
	out := all.Gather(indices)
	s.headers = out.Headers()
	return &out, nil
}

// Distinct deduplicates by the named columns (all columns when empty),
// keeping the first-seen row per key.
type Distinct struct {
	Input   Operator
	Columns []string

	seen map[string]bool
}

func (d *Distinct) Init(rt *Runtime) error {
	d.seen = make(map[string]bool)
	return d.Input.Init(rt)
}

func (d *Distinct) Headers() columnar.Headers { return d.Input.Headers() }

// Next deduplicates input batches until one yields fresh rows.
func (d *Distinct) Next(rt *Runtime) (*columnar.Batch, error) {
	for {
		batch, err := d.Input.Next(rt)
		if err != nil || batch == nil {
			return nil, err
		}
		cols := d.Columns
		if len(cols) == 0 {
			cols = batch.Headers().Names()
		}
		var keep []int
		for i := 0; i < batch.RowCount(); i++ {
			key := ""
			for _, name := range cols {
				col := batch.Column(name)
				if col == nil {
					return nil, diag.New(diag.CatalogUnresolvedName, "unknown column %q in distinct", name)
				}
				v := col.Data.Get(i)
				if v.Defined() {
					key += v.Type.String() + ":" + v.String() + "\x00"
				} else {
					key += "\x01"
				}
			}
			if !d.seen[key] {
				d.seen[key] = true
				keep = append(keep, i)
			}
		}
		if len(keep) == 0 {
			continue
		}
		out := batch.Gather(keep)
		return &out, nil
	}
}
