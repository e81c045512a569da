package engine

import (
	"github.com/SimonWaldherr/flowDB/internal/columnar"
	"github.com/SimonWaldherr/flowDB/internal/diag"
)

// JoinKind selects the join semantics.
type JoinKind uint8

const (
	// JoinInner keeps the cross-product rows that pass every
	// predicate.
	JoinInner JoinKind = iota
	// JoinLeft keeps every left row at least once; unmatched right
	// columns are all-undefined.
	JoinLeft
	// JoinNatural equi-joins on every same-named column pair and
	// collapses the duplicates.
	JoinNatural
)

// Join is a block nested-loop join: the right side is materialized
// once, left batches stream through.
type Join struct {
	Kind       JoinKind
	Left       Operator
	Right      Operator
	Predicates []Expr // inner/left only
	LeftAlias  string
	RightAlias string

	right      columnar.Columns
	rightReady bool
	headers    columnar.Headers
	shared     []string // natural join column pairs
	done       bool
}

// Init initializes both inputs.
func (j *Join) Init(rt *Runtime) error {
	if err := j.Left.Init(rt); err != nil {
		return err
	}
	return j.Right.Init(rt)
}

// Headers returns the combined schema, known after the first Next.
func (j *Join) Headers() columnar.Headers { return j.headers }

func (j *Join) materializeRight(rt *Runtime) error {
	if j.rightReady {
		return nil
	}
	var err error
	j.right, err = Drive(rt, passthrough{j.Right})
	if err != nil {
		return err
	}
	j.rightReady = true
	return nil
}

// passthrough adapts an already-initialized operator for Drive.
type passthrough struct{ op Operator }

func (p passthrough) Init(*Runtime) error                       { return nil }
func (p passthrough) Next(rt *Runtime) (*columnar.Batch, error) { return p.op.Next(rt) }
func (p passthrough) Headers() columnar.Headers                 { return p.op.Headers() }

// Next joins one left batch against the materialized right side.
func (j *Join) Next(rt *Runtime) (*columnar.Batch, error) {
	if j.done {
		return nil, nil
	}
	if err := j.materializeRight(rt); err != nil {
		return nil, err
	}
	for {
		if err := rt.checkCancelled(); err != nil {
			return nil, err
		}
		left, err := j.Left.Next(rt)
		if err != nil {
			return nil, err
		}
		if left == nil {
			j.done = true
			return nil, nil
		}
		out, err := j.joinBatch(rt, left)
		if err != nil {
			return nil, err
		}
		if out.RowCount() == 0 {
			continue
		}
		j.headers = out.Headers()
		return &out, nil
	}
}

func (j *Join) aliases() (string, string) {
	l, r := j.LeftAlias, j.RightAlias
	if l == "" {
		l = "left"
	}
	if r == "" {
		r = "right"
	}
	return l, r
}

// combinedHeaders computes output naming: non-colliding columns keep
// their bare names, collisions get alias-qualified names. Natural joins
// collapse the shared columns into the left copy.
func (j *Join) combinedHeaders(left columnar.Headers) (columnar.Headers, []string) {
	lAlias, rAlias := j.aliases()
	rightHeaders := j.right.Headers()

	collide := make(map[string]bool)
	var shared []string
	for _, rh := range rightHeaders {
		if left.Index(rh.Name) >= 0 {
			collide[rh.Name] = true
			shared = append(shared, rh.Name)
		}
	}

	var out columnar.Headers
	for _, lh := range left {
		name := lh.Name
		if collide[name] && j.Kind != JoinNatural {
			name = lAlias + "." + name
		}
		out = append(out, columnar.Header{Name: name, Type: lh.Type})
	}
	for _, rh := range rightHeaders {
		if collide[rh.Name] {
			if j.Kind == JoinNatural {
				continue // collapsed
			}
			out = append(out, columnar.Header{Name: rAlias + "." + rh.Name, Type: rh.Type})
			continue
		}
		out = append(out, columnar.Header{Name: rh.Name, Type: rh.Type})
	}
	return out, shared
}

func (j *Join) joinBatch(rt *Runtime, left *columnar.Batch) (columnar.Columns, error) {
	headers, shared := j.combinedHeaders(left.Headers())
	if j.Kind == JoinNatural && len(shared) == 0 {
		return columnar.Columns{}, diag.New(diag.QuerySchemaMismatch,
			"natural join requires at least one shared column name")
	}
	out := columnar.NewColumns(headers)
	rightRows := j.right.RowCount()

	for li := 0; li < left.RowCount(); li++ {
		leftRow := left.Row(li)
		matched := false

		for ri := 0; ri < rightRows; ri++ {
			rightRow := j.right.Row(ri)

			ok, err := j.pairMatches(rt, left, li, ri, leftRow, rightRow, shared)
			if err != nil {
				return columnar.Columns{}, err
			}
			if !ok {
				continue
			}
			matched = true
			if err := out.AppendRow(j.combineRow(leftRow, rightRow, left.Headers(), shared)...); err != nil {
				return columnar.Columns{}, err
			}
		}

		if !matched && j.Kind == JoinLeft {
			row := j.combineRow(leftRow, j.undefinedRightRow(), left.Headers(), shared)
			if err := out.AppendRow(row...); err != nil {
				return columnar.Columns{}, err
			}
		}
	}
	return out, nil
}

func (j *Join) undefinedRightRow() []columnar.Value {
	row := make([]columnar.Value, len(j.right.Headers()))
	return row
}

// pairMatches evaluates the join condition for one (left, right) pair.
func (j *Join) pairMatches(rt *Runtime, left *columnar.Batch, li, ri int, leftRow, rightRow []columnar.Value, shared []string) (bool, error) {
	if j.Kind == JoinNatural {
		rightHeaders := j.right.Headers()
		leftHeaders := left.Headers()
		for _, name := range shared {
			lv := leftRow[leftHeaders.Index(name)]
			rv := rightRow[rightHeaders.Index(name)]
			if !lv.Defined() || !rv.Defined() {
				return false, nil
			}
			cmp, ok := Compare(lv, rv)
			if !ok || cmp != 0 {
				return false, nil
			}
		}
		return true, nil
	}

	if len(j.Predicates) == 0 {
		return true, nil
	}
	// Build a one-row combined batch and evaluate the predicates.
	pair := j.pairBatch(left, li, ri)
	for _, pred := range j.Predicates {
		col, err := pred.Eval(rt, &pair)
		if err != nil {
			return false, err
		}
		v := col.Get(0)
		if !v.Defined() || v.Type != columnar.TypeBool || !v.Bool {
			return false, nil
		}
	}
	return true, nil
}

// pairBatch exposes one (left, right) pair under bare and qualified
// names so predicates can reference either form.
func (j *Join) pairBatch(left *columnar.Batch, li, ri int) columnar.Columns {
	lAlias, rAlias := j.aliases()
	var out columnar.Columns
	add := func(name string, v columnar.Value, t columnar.Type) {
		data := columnar.NewColumnData(t)
		if v.Defined() {
			data.MustAppend(v)
		} else {
			data.AppendUndefined()
		}
		out.Cols = append(out.Cols, columnar.Column{Name: name, Data: data})
	}
	for ci, h := range left.Headers() {
		v := left.Cols[ci].Data.Get(li)
		add(lAlias+"."+h.Name, v, h.Type)
		if j.right.Headers().Index(h.Name) < 0 {
			add(h.Name, v, h.Type)
		}
	}
	for ci, h := range j.right.Headers() {
		v := j.right.Cols[ci].Data.Get(ri)
		add(rAlias+"."+h.Name, v, h.Type)
		if left.Headers().Index(h.Name) < 0 {
			add(h.Name, v, h.Type)
		}
	}
	return out
}

func (j *Join) combineRow(leftRow, rightRow []columnar.Value, leftHeaders columnar.Headers, shared []string) []columnar.Value {
	out := make([]columnar.Value, 0, len(leftRow)+len(rightRow))
	out = append(out, leftRow...)
	if j.Kind == JoinNatural {
		rightHeaders := j.right.Headers()
		sharedSet := make(map[string]bool, len(shared))
		for _, s := range shared {
			sharedSet[s] = true
		}
		for i, h := range rightHeaders {
			if sharedSet[h.Name] {
				continue
			}
			out = append(out, rightRow[i])
		}
		return out
	}
	out = append(out, rightRow...)
	return out
}
