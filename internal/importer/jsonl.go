package importer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	flowdb "github.com/SimonWaldherr/flowDB"
	"github.com/SimonWaldherr/flowDB/internal/columnar"
)

// ImportJSONL streams newline-delimited JSON objects into the target
// table. Column types come from the JSON value kinds of the sampled
// objects: bool, number (int8 or float8), everything else utf8.
func ImportJSONL(ctx context.Context, db *flowdb.DB, identity flowdb.Identity, r io.Reader, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<24)

	var sample []map[string]any
	for len(sample) < opts.SampleRows && scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			return nil, fmt.Errorf("parse json line: %w", err)
		}
		sample = append(sample, obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(sample) == 0 {
		return &Result{}, nil
	}

	rawNames, names, types := inferJSONSchema(sample)
	imp := &tableWriter{db: db, identity: identity, opts: opts, names: names, types: types}
	if err := imp.prepare(ctx); err != nil {
		return nil, err
	}

	convert := func(obj map[string]any) map[string]columnar.Value {
		out := make(map[string]columnar.Value, len(names))
		for i, raw := range rawNames {
			out[names[i]] = jsonValue(obj[raw], types[i])
		}
		return out
	}
	for _, obj := range sample {
		if err := imp.add(ctx, convert(obj)); err != nil {
			return nil, err
		}
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			return nil, fmt.Errorf("parse json line: %w", err)
		}
		if err := imp.add(ctx, convert(obj)); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return imp.finish(ctx)
}

func inferJSONSchema(sample []map[string]any) (raw []string, sanitized []string, types []columnar.Type) {
	votes := make(map[string]map[columnar.Type]int)
	var names []string
	for _, obj := range sample {
		for key, val := range obj {
			if votes[key] == nil {
				votes[key] = make(map[columnar.Type]int)
				names = append(names, key)
			}
			if val == nil {
				continue
			}
			switch v := val.(type) {
			case bool:
				votes[key][columnar.TypeBool]++
			case float64:
				if v == math.Trunc(v) {
					votes[key][columnar.TypeInt8]++
				} else {
					votes[key][columnar.TypeFloat8]++
				}
			default:
				votes[key][columnar.TypeUtf8]++
			}
		}
	}
	sort.Strings(names)
	sanitized = make([]string, len(names))
	types = make([]columnar.Type, len(names))
	for i, name := range names {
		sanitized[i] = sanitizeColumnName(name, i)
		types[i] = electType(votes[name])
	}
	return names, sanitized, types
}

func jsonValue(val any, t columnar.Type) columnar.Value {
	if val == nil {
		return columnar.Undefined
	}
	switch t {
	case columnar.TypeBool:
		if b, ok := val.(bool); ok {
			return columnar.NewBool(b)
		}
	case columnar.TypeInt8:
		if f, ok := val.(float64); ok && f == math.Trunc(f) {
			return columnar.NewInt(columnar.TypeInt8, int64(f))
		}
	case columnar.TypeFloat8:
		if f, ok := val.(float64); ok {
			return columnar.NewFloat(columnar.TypeFloat8, f)
		}
	case columnar.TypeUtf8:
		switch v := val.(type) {
		case string:
			return columnar.NewUtf8(v)
		default:
			raw, err := json.Marshal(v)
			if err == nil {
				return columnar.NewUtf8(string(raw))
			}
		}
	}
	return columnar.Undefined
}
