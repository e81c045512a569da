// Package importer loads external data files (CSV, JSON lines, ESRI
// shapefiles) into tables through the command API: each file becomes a
// create-table (when requested) plus batched inserts inside command
// transactions.
package importer

import (
	"strconv"
	"strings"
	"time"

	"github.com/SimonWaldherr/flowDB/internal/columnar"
)

// Options configures an import run.
type Options struct {
	// Namespace and Table name the target. CreateTable issues create
	// table from the inferred schema; an existing table makes the import
	// fail.
	Namespace   string
	Table       string
	CreateTable bool

	// Delimiter for CSV; default comma.
	Delimiter rune
	// HasHeader marks the first CSV row as column names.
	HasHeader bool
	// NullLiterals are treated as undefined. Default: "", "null", "NULL".
	NullLiterals []string
	// SampleRows bounds type inference; default 256.
	SampleRows int
	// BatchRows bounds rows per insert transaction; default 1024.
	BatchRows int
}

// withDefaults fills unset options.
func (o Options) withDefaults() Options {
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	if len(o.NullLiterals) == 0 {
		o.NullLiterals = []string{"", "null", "NULL"}
	}
	if o.SampleRows <= 0 {
		o.SampleRows = 256
	}
	if o.BatchRows <= 0 {
		o.BatchRows = 1024
	}
	return o
}

func (o Options) isNull(val string) bool {
	for _, lit := range o.NullLiterals {
		if val == lit {
			return true
		}
	}
	return false
}

// Result summarizes an import run.
type Result struct {
	Rows    int64
	Columns []string
	Created bool
}

// inferColumnTypes votes across sample rows: bool, then int4/int8,
// then float8, then datetime, falling back to utf8.
func inferColumnTypes(sample [][]string, numCols int, opts Options) []columnar.Type {
	votes := make([]map[columnar.Type]int, numCols)
	for i := range votes {
		votes[i] = make(map[columnar.Type]int)
	}
	for _, row := range sample {
		for col := 0; col < numCols; col++ {
			var val string
			if col < len(row) {
				val = strings.TrimSpace(row[col])
			}
			if opts.isNull(val) {
				continue
			}
			votes[col][detectType(val)]++
		}
	}
	types := make([]columnar.Type, numCols)
	for col := range types {
		types[col] = electType(votes[col])
	}
	return types
}

func detectType(val string) columnar.Type {
	lower := strings.ToLower(val)
	if lower == "true" || lower == "false" {
		return columnar.TypeBool
	}
	if i, err := strconv.ParseInt(val, 10, 64); err == nil {
		if i >= -(1<<31) && i < 1<<31 {
			return columnar.TypeInt4
		}
		return columnar.TypeInt8
	}
	if _, err := strconv.ParseFloat(val, 64); err == nil {
		return columnar.TypeFloat8
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if _, err := time.Parse(layout, val); err == nil {
			return columnar.TypeDateTime
		}
	}
	return columnar.TypeUtf8
}

// electType picks the most specific type every sampled value fits.
func electType(votes map[columnar.Type]int) columnar.Type {
	if len(votes) == 0 {
		return columnar.TypeUtf8
	}
	if len(votes) == 1 {
		for t := range votes {
			return t
		}
	}
	// Mixed int widths widen; int+float becomes float; anything with
	// text becomes text.
	if votes[columnar.TypeUtf8] > 0 || votes[columnar.TypeBool] > 0 || votes[columnar.TypeDateTime] > 0 {
		return columnar.TypeUtf8
	}
	if votes[columnar.TypeFloat8] > 0 {
		return columnar.TypeFloat8
	}
	if votes[columnar.TypeInt8] > 0 {
		return columnar.TypeInt8
	}
	return columnar.TypeInt4
}

// parseValue converts one raw string into a typed value.
func parseValue(val string, t columnar.Type, opts Options) columnar.Value {
	val = strings.TrimSpace(val)
	if opts.isNull(val) {
		return columnar.Undefined
	}
	switch t {
	case columnar.TypeBool:
		return columnar.NewBool(strings.EqualFold(val, "true"))
	case columnar.TypeInt4, columnar.TypeInt8:
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return columnar.Undefined
		}
		return columnar.NewInt(t, i)
	case columnar.TypeFloat8:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return columnar.Undefined
		}
		return columnar.NewFloat(columnar.TypeFloat8, f)
	case columnar.TypeDateTime:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, val); err == nil {
				return columnar.Value{Type: columnar.TypeDateTime, Time: ts}
			}
		}
		return columnar.Undefined
	default:
		return columnar.NewUtf8(val)
	}
}

// sanitizeColumnName turns arbitrary header text into an identifier.
func sanitizeColumnName(name string, index int) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r == ' ' || r == '-' || r == '.':
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || (out[0] >= '0' && out[0] <= '9') {
		out = "col_" + strconv.Itoa(index)
	}
	return out
}
