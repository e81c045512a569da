package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	flowdb "github.com/SimonWaldherr/flowDB"
	"github.com/SimonWaldherr/flowDB/internal/columnar"
)

// ImportCSV streams a CSV file into the target table. The schema is
// inferred from a sample when the table is being created.
func ImportCSV(ctx context.Context, db *flowdb.DB, identity flowdb.Identity, r io.Reader, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	reader := csv.NewReader(r)
	reader.Comma = opts.Delimiter
	reader.FieldsPerRecord = -1

	var header []string
	first, err := reader.Read()
	if err == io.EOF {
		return &Result{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	var pending [][]string
	if opts.HasHeader {
		header = first
	} else {
		pending = append(pending, first)
	}

	// Sample for inference.
	for len(pending) < opts.SampleRows {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		pending = append(pending, row)
	}

	numCols := len(header)
	for _, row := range pending {
		if len(row) > numCols {
			numCols = len(row)
		}
	}
	if numCols == 0 {
		return &Result{}, nil
	}

	names := make([]string, numCols)
	for i := range names {
		if i < len(header) {
			names[i] = sanitizeColumnName(header[i], i)
		} else {
			names[i] = fmt.Sprintf("col_%d", i)
		}
	}
	types := inferColumnTypes(pending, numCols, opts)

	imp := &tableWriter{db: db, identity: identity, opts: opts, names: names, types: types}
	if err := imp.prepare(ctx); err != nil {
		return nil, err
	}

	toValues := func(row []string) map[string]columnar.Value {
		out := make(map[string]columnar.Value, numCols)
		for i := 0; i < numCols; i++ {
			val := ""
			if i < len(row) {
				val = row[i]
			}
			out[names[i]] = parseValue(val, types[i], opts)
		}
		return out
	}

	for _, row := range pending {
		if err := imp.add(ctx, toValues(row)); err != nil {
			return nil, err
		}
	}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if err := imp.add(ctx, toValues(row)); err != nil {
			return nil, err
		}
	}
	return imp.finish(ctx)
}

// tableWriter batches rows into insert commands, creating the table
// first when requested.
type tableWriter struct {
	db       *flowdb.DB
	identity flowdb.Identity
	opts     Options
	names    []string
	types    []columnar.Type

	batch   []map[string]columnar.Value
	rows    int64
	created bool
}

func (w *tableWriter) prepare(ctx context.Context) error {
	if !w.opts.CreateTable {
		return nil
	}
	var cols []string
	for i, name := range w.names {
		cols = append(cols, fmt.Sprintf("%s: %s", name, w.types[i]))
	}
	stmt := fmt.Sprintf("create table %s.%s {%s}", w.opts.Namespace, w.opts.Table, strings.Join(cols, ", "))
	if _, err := w.db.CommandAs(ctx, w.identity, stmt, flowdb.Params{}); err != nil {
		return err
	}
	w.created = true
	return nil
}

func (w *tableWriter) add(ctx context.Context, row map[string]columnar.Value) error {
	w.batch = append(w.batch, row)
	if len(w.batch) >= w.opts.BatchRows {
		return w.flush(ctx)
	}
	return nil
}

func (w *tableWriter) flush(ctx context.Context) error {
	if len(w.batch) == 0 {
		return nil
	}
	_, err := flowdb.FromRows(w.batch...).
		Insert(w.opts.Namespace, w.opts.Table).
		Command(ctx, w.db, w.identity)
	if err != nil {
		return err
	}
	w.rows += int64(len(w.batch))
	w.batch = w.batch[:0]
	return nil
}

func (w *tableWriter) finish(ctx context.Context) (*Result, error) {
	if err := w.flush(ctx); err != nil {
		return nil, err
	}
	return &Result{Rows: w.rows, Columns: w.names, Created: w.created}, nil
}
