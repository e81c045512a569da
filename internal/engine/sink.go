package engine

import (
	"sort"

	"github.com/SimonWaldherr/flowDB/internal/catalog"
	"github.com/SimonWaldherr/flowDB/internal/columnar"
	"github.com/SimonWaldherr/flowDB/internal/diag"
	"github.com/SimonWaldherr/flowDB/internal/keycode"
	"github.com/SimonWaldherr/flowDB/internal/schema"
)

func castPolicyOf(p catalog.OverflowPolicy) CastPolicy {
	switch p {
	case catalog.PolicySaturate:
		return PolicySaturate
	case catalog.PolicyUndefined:
		return PolicyUndefined
	default:
		return PolicyError
	}
}

// sinkResult emits the single count row every write sink returns.
type sinkResult struct {
	name  string
	count int64
}

func (r sinkResult) batch() *columnar.Batch {
	out := columnar.NewColumns(columnar.Headers{{Name: r.name, Type: columnar.TypeInt8}})
	out.AppendRow(columnar.NewInt(columnar.TypeInt8, r.count))
	return &out
}

// Insert validates and coerces input rows against the target table's
// columns, assigns row numbers, and issues the writes in row-number
// order.
type Insert struct {
	Input Operator
	Table *catalog.TableDef

	layout  *schema.Layout
	headers columnar.Headers
	count   int64
	done    bool
}

// Init prepares the target layout.
func (s *Insert) Init(rt *Runtime) error {
	if err := s.Input.Init(rt); err != nil {
		return err
	}
	layout, err := s.Table.Layout()
	if err != nil {
		return diag.From(err)
	}
	s.layout = layout
	s.headers = columnar.Headers{{Name: "inserted", Type: columnar.TypeInt8}}
	return nil
}

// Headers returns the count schema.
func (s *Insert) Headers() columnar.Headers { return s.headers }

// Next drains the input, writes every row, and emits the count batch.
func (s *Insert) Next(rt *Runtime) (*columnar.Batch, error) {
	if s.done {
		return nil, nil
	}
	s.done = true

	for {
		if err := rt.checkCancelled(); err != nil {
			return nil, err
		}
		batch, err := s.Input.Next(rt)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}
		rows, err := coerceBatch(batch, s.Table.Columns)
		if err != nil {
			return nil, err
		}
		if err := s.fillAutoIncrement(rt, rows); err != nil {
			return nil, err
		}
		first, err := rt.Catalog.NextRowNumbers(s.Table.ID, uint64(len(rows)))
		if err != nil {
			return nil, err
		}
		for i, row := range rows {
			raw, err := schema.EncodeRow(s.layout, row)
			if err != nil {
				return nil, diag.From(err)
			}
			key := keycode.RowKey{Primitive: s.Table.ID, Row: first + uint64(i)}
			if err := rt.Cmd.Set(key.Encode(), raw); err != nil {
				return nil, err
			}
			s.count++
		}
	}
	return sinkResult{name: "inserted", count: s.count}.batch(), nil
}

// fillAutoIncrement assigns the next sequence value to every undefined
// cell of an auto-increment column, in row order. Supplied values pass
// through untouched and do not advance the counter.
func (s *Insert) fillAutoIncrement(rt *Runtime, rows [][]columnar.Value) error {
	for ci, c := range s.Table.Columns {
		if !c.AutoIncr {
			continue
		}
		for r := range rows {
			if rows[r][ci].Defined() {
				continue
			}
			next, err := rt.Catalog.NextAutoIncrement(s.Table.ID, ci)
			if err != nil {
				return err
			}
			rows[r][ci] = columnar.NewInt(c.Type, int64(next))
		}
	}
	return nil
}

// coerceBatch validates a batch against the target columns and casts
// column-wise, honoring each column's overflow policy. Input columns
// match by name; target columns absent from the input become undefined.
func coerceBatch(batch *columnar.Batch, cols []catalog.ColumnDef) ([][]columnar.Value, error) {
	// Reject input columns that have no target.
	for _, h := range batch.Headers() {
		known := false
		for _, c := range cols {
			if c.Name == h.Name {
				known = true
				break
			}
		}
		if !known {
			return nil, diag.New(diag.QuerySchemaMismatch, "column %q does not exist in target", h.Name).
				WithLabel("unknown column")
		}
	}

	casted := make([]*columnar.ColumnData, len(cols))
	for i, c := range cols {
		col := batch.Column(c.Name)
		if col == nil {
			casted[i] = columnar.NewUndefinedColumn(c.Type, batch.RowCount())
			continue
		}
		out, err := CastColumn(col.Data, c.Type, castPolicyOf(c.Policy))
		if err != nil {
			return nil, err
		}
		casted[i] = out
	}

	rows := make([][]columnar.Value, batch.RowCount())
	for r := range rows {
		row := make([]columnar.Value, len(cols))
		for c := range cols {
			row[c] = casted[c].Get(r)
		}
		rows[r] = row
	}
	return rows, nil
}

// Update overwrites the stored rows named by the input's row numbers.
// Input columns overlay the stored values; untouched columns persist.
type Update struct {
	Input Operator
	Table *catalog.TableDef

	layout  *schema.Layout
	headers columnar.Headers
	count   int64
	done    bool
}

// Init prepares the target layout.
func (s *Update) Init(rt *Runtime) error {
	if err := s.Input.Init(rt); err != nil {
		return err
	}
	layout, err := s.Table.Layout()
	if err != nil {
		return diag.From(err)
	}
	s.layout = layout
	s.headers = columnar.Headers{{Name: "updated", Type: columnar.TypeInt8}}
	return nil
}

// Headers returns the count schema.
func (s *Update) Headers() columnar.Headers { return s.headers }

// Next drains the input and applies updates in row-number order.
func (s *Update) Next(rt *Runtime) (*columnar.Batch, error) {
	if s.done {
		return nil, nil
	}
	s.done = true

	for {
		if err := rt.checkCancelled(); err != nil {
			return nil, err
		}
		batch, err := s.Input.Next(rt)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}
		if batch.RowNumbers == nil {
			return nil, diag.New(diag.QuerySchemaMismatch,
				"update requires rows scanned from the target table").
				WithHelp("pipe the target table through filter/map before update")
		}

		order := sortedByRowNumber(batch)
		for _, i := range order {
			rowNum := batch.RowNumbers[i]
			key := keycode.RowKey{Primitive: s.Table.ID, Row: rowNum}.Encode()

			stored, err := rt.Cmd.Get(key)
			if err != nil {
				return nil, err
			}
			if stored == nil {
				return nil, diag.New(diag.CatalogNotFound,
					"row %d vanished from table %q during update", rowNum, s.Table.Name)
			}
			current, err := decodeWithEvolution(rt, s.layout, stored.Values)
			if err != nil {
				return nil, err
			}

			for ci, c := range s.Table.Columns {
				col := batch.Column(c.Name)
				if col == nil {
					continue // untouched column keeps its stored value
				}
				v, err := CastValue(col.Data.Get(i), c.Type, castPolicyOf(c.Policy))
				if err != nil {
					return nil, err
				}
				current[ci] = v
			}
			raw, err := schema.EncodeRow(s.layout, current)
			if err != nil {
				return nil, diag.From(err)
			}
			if err := rt.Cmd.Set(key, raw); err != nil {
				return nil, err
			}
			s.count++
		}
	}
	return sinkResult{name: "updated", count: s.count}.batch(), nil
}

// Delete tombstones the stored rows named by the input's row numbers,
// in row-number order.
type Delete struct {
	Input Operator
	Table *catalog.TableDef

	headers columnar.Headers
	count   int64
	done    bool
}

// Init initializes the input.
func (s *Delete) Init(rt *Runtime) error {
	if err := s.Input.Init(rt); err != nil {
		return err
	}
	s.headers = columnar.Headers{{Name: "deleted", Type: columnar.TypeInt8}}
	return nil
}

// Headers returns the count schema.
func (s *Delete) Headers() columnar.Headers { return s.headers }

// Next drains the input and removes each named row.
func (s *Delete) Next(rt *Runtime) (*columnar.Batch, error) {
	if s.done {
		return nil, nil
	}
	s.done = true

	for {
		if err := rt.checkCancelled(); err != nil {
			return nil, err
		}
		batch, err := s.Input.Next(rt)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}
		if batch.RowNumbers == nil {
			return nil, diag.New(diag.QuerySchemaMismatch,
				"delete requires rows scanned from the target table")
		}
		for _, i := range sortedByRowNumber(batch) {
			key := keycode.RowKey{Primitive: s.Table.ID, Row: batch.RowNumbers[i]}
			if err := rt.Cmd.Remove(key.Encode()); err != nil {
				return nil, err
			}
			s.count++
		}
	}
	return sinkResult{name: "deleted", count: s.count}.batch(), nil
}

// decodeWithEvolution decodes raw against target, resolving through the
// stored schema when the row was written under an older layout.
func decodeWithEvolution(rt *Runtime, target *schema.Layout, raw []byte) ([]columnar.Value, error) {
	fp, ok := schema.RowFingerprint(raw)
	if !ok {
		return nil, diag.New(diag.QuerySchemaMismatch, "stored row has no schema fingerprint")
	}
	if fp == target.Fingerprint() {
		values, err := schema.DecodeRow(target, raw)
		if err != nil {
			return nil, diag.From(err)
		}
		return values, nil
	}
	source, err := rt.Cat.FindSchemaByFingerprint(fp)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, diag.New(diag.QuerySchemaMismatch, "stored row written under unknown schema %016x", fp)
	}
	resolver, err := schema.NewResolver(source, target)
	if err != nil {
		return nil, diag.New(diag.QuerySchemaMismatch, "cannot resolve stored schema %016x", fp).WithCause(err)
	}
	values, err := resolver.Resolve(raw)
	if err != nil {
		return nil, diag.From(err)
	}
	return values, nil
}

func sortedByRowNumber(batch *columnar.Batch) []int {
	order := make([]int, len(batch.RowNumbers))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return batch.RowNumbers[order[a]] < batch.RowNumbers[order[b]]
	})
	return order
}
