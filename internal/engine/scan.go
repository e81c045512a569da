package engine

import (
	"sort"

	"github.com/SimonWaldherr/flowDB/internal/catalog"
	"github.com/SimonWaldherr/flowDB/internal/columnar"
	"github.com/SimonWaldherr/flowDB/internal/diag"
	"github.com/SimonWaldherr/flowDB/internal/keycode"
	"github.com/SimonWaldherr/flowDB/internal/schema"
	"github.com/SimonWaldherr/flowDB/internal/txn"
)

// TableScan emits the rows of a base table in primary-key (row number)
// order, decoding stored rows into columnar batches. Rows written under
// an older schema resolve through a SchemaResolver.
type TableScan struct {
	Table *catalog.TableDef

	layout    *schema.Layout
	headers   columnar.Headers
	it        *txn.MergedIter
	resolvers map[uint64]*schema.Resolver
	done      bool
}

// Init prepares the iterator and the target layout.
func (s *TableScan) Init(rt *Runtime) error {
	layout, err := s.Table.Layout()
	if err != nil {
		return diag.From(err)
	}
	s.layout = layout
	s.headers = layout.Headers()
	s.resolvers = make(map[uint64]*schema.Resolver)
	start, end := keycode.RowPrefix(s.Table.ID)
	s.it = rt.Cmd.Range(start, end)
	return nil
}

// Headers returns the table's column headers.
func (s *TableScan) Headers() columnar.Headers { return s.headers }

// Next pulls one batch of decoded rows.
func (s *TableScan) Next(rt *Runtime) (*columnar.Batch, error) {
	if s.done {
		return nil, nil
	}
	if err := rt.checkCancelled(); err != nil {
		return nil, err
	}

	out := columnar.NewColumns(s.headers)
	limit := rt.batchRows()
	for out.RowCount() < limit {
		if !s.it.Next() {
			if err := s.it.Err(); err != nil {
				return nil, err
			}
			s.done = true
			break
		}
		entry := s.it.Entry()
		rowKey, ok := keycode.DecodeRowKey(entry.Key)
		if !ok {
			return nil, diag.New(diag.KeyDecodeFailure, "corrupt row key in table %q", s.Table.Name)
		}
		values, err := s.decode(rt, entry.Values)
		if err != nil {
			return nil, err
		}
		if err := out.AppendRow(values...); err != nil {
			return nil, err
		}
		out.RowNumbers = append(out.RowNumbers, rowKey.Row)
	}
	if out.RowCount() == 0 {
		return nil, nil
	}
	return &out, nil
}

func (s *TableScan) decode(rt *Runtime, raw []byte) ([]columnar.Value, error) {
	fp, ok := schema.RowFingerprint(raw)
	if !ok {
		return nil, diag.New(diag.QuerySchemaMismatch, "row in table %q has no schema fingerprint", s.Table.Name)
	}
	if fp == s.layout.Fingerprint() {
		return schema.DecodeRow(s.layout, raw)
	}
	resolver, ok := s.resolvers[fp]
	if !ok {
		source, err := rt.Cat.FindSchemaByFingerprint(fp)
		if err != nil {
			return nil, err
		}
		if source == nil {
			return nil, diag.New(diag.QuerySchemaMismatch,
				"row in table %q written under unknown schema %016x", s.Table.Name, fp)
		}
		resolver, err = schema.NewResolver(source, s.layout)
		if err != nil {
			return nil, diag.New(diag.QuerySchemaMismatch,
				"cannot resolve stored schema %016x for table %q", fp, s.Table.Name).WithCause(err)
		}
		s.resolvers[fp] = resolver
	}
	return resolver.Resolve(raw)
}

// InlineData emits the literal rows supplied in the plan, one batch.
type InlineData struct {
	Rows []map[string]columnar.Value

	headers columnar.Headers
	emitted bool
}

// Init derives headers from the union of row keys, in sorted name order,
// typed by the first defined value per column.
func (s *InlineData) Init(*Runtime) error {
	var names []string
	types := make(map[string]columnar.Type)
	seen := make(map[string]bool)
	for _, row := range s.Rows {
		for name, v := range row {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
			if types[name] == columnar.TypeUndefined && v.Defined() {
				types[name] = v.Type
			}
		}
	}
	// Go map iteration is unordered, so the derived header order is
	// made deterministic by sorting the names.
	sort.Strings(names)
	s.headers = nil
	for _, name := range names {
		s.headers = append(s.headers, columnar.Header{Name: name, Type: types[name]})
	}
	return nil
}

// Headers returns the derived schema.
func (s *InlineData) Headers() columnar.Headers { return s.headers }

// Next emits all rows once.
func (s *InlineData) Next(*Runtime) (*columnar.Batch, error) {
	if s.emitted {
		return nil, nil
	}
	s.emitted = true
	out := columnar.NewColumns(s.headers)
	for _, row := range s.Rows {
		values := make([]columnar.Value, len(s.headers))
		for i, h := range s.headers {
			v, ok := row[h.Name]
			if !ok || !v.Defined() {
				values[i] = columnar.Undefined
				continue
			}
			if h.Type != columnar.TypeUndefined && v.Type != h.Type {
				cast, err := CastValue(v, h.Type, PolicyError)
				if err != nil {
					return nil, err
				}
				v = cast
			}
			values[i] = v
		}
		if err := out.AppendRow(values...); err != nil {
			return nil, err
		}
	}
	return &out, nil
}
