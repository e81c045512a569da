package importer

import (
	"context"
	"encoding/json"
	"fmt"

	shp "github.com/jonas-p/go-shp"

	flowdb "github.com/SimonWaldherr/flowDB"
	"github.com/SimonWaldherr/flowDB/internal/columnar"
)

// ImportShapefile loads a .shp file (with its DBF attributes) into a
// table: one row per feature, attributes as utf8 columns, and the
// geometry serialized as GeoJSON in a `geometry` column.
func ImportShapefile(ctx context.Context, db *flowdb.DB, identity flowdb.Identity, path string, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}
	defer r.Close()

	fields := r.Fields()
	names := make([]string, 0, len(fields)+1)
	types := make([]columnar.Type, 0, len(fields)+1)
	for i, f := range fields {
		names = append(names, sanitizeColumnName(f.String(), i))
		types = append(types, columnar.TypeUtf8)
	}
	names = append(names, "geometry")
	types = append(types, columnar.TypeUtf8)

	imp := &tableWriter{db: db, identity: identity, opts: opts, names: names, types: types}
	if err := imp.prepare(ctx); err != nil {
		return nil, err
	}

	for r.Next() {
		idx, shape := r.Shape()
		row := make(map[string]columnar.Value, len(names))
		for fi := range fields {
			row[names[fi]] = columnar.NewUtf8(r.ReadAttribute(idx, fi))
		}
		geom := geometryJSON(shape)
		if geom == "" {
			row["geometry"] = columnar.Undefined
		} else {
			row["geometry"] = columnar.NewUtf8(geom)
		}
		if err := imp.add(ctx, row); err != nil {
			return nil, err
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read shapefile: %w", err)
	}
	return imp.finish(ctx)
}

// geometryJSON renders a shape as GeoJSON.
func geometryJSON(shape shp.Shape) string {
	var geom any
	switch s := shape.(type) {
	case *shp.Point:
		geom = map[string]any{"type": "Point", "coordinates": []float64{s.X, s.Y}}
	case *shp.PolyLine:
		coords := make([][]float64, len(s.Points))
		for i, p := range s.Points {
			coords[i] = []float64{p.X, p.Y}
		}
		geom = map[string]any{"type": "LineString", "coordinates": coords}
	case *shp.Polygon:
		ring := make([][]float64, len(s.Points))
		for i, p := range s.Points {
			ring[i] = []float64{p.X, p.Y}
		}
		geom = map[string]any{"type": "Polygon", "coordinates": []any{ring}}
	default:
		return ""
	}
	raw, err := json.Marshal(geom)
	if err != nil {
		return ""
	}
	return string(raw)
}
