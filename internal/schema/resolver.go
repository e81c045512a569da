package schema

import (
	"fmt"

	"github.com/SimonWaldherr/flowDB/internal/columnar"
)

// MappingKind describes how one target field resolves against a source
// layout.
type MappingKind uint8

const (
	// MappingDirect reads the source field (widening if needed).
	MappingDirect MappingKind = iota
	// MappingUseDefault fills the target field with undefined: the
	// source layout predates it.
	MappingUseDefault
)

// Mapping resolves one target field.
type Mapping struct {
	Kind   MappingKind
	Source int // source field index for MappingDirect
}

// Resolver maps rows encoded with a source layout into a target layout.
// Source fields absent from the target are dropped (removed fields).
type Resolver struct {
	source  *Layout
	target  *Layout
	mapping []Mapping
}

// NewResolver builds the field mapping. Construction fails when a field
// present in both layouts has a base type mismatch with no defined
// widening.
func NewResolver(source, target *Layout) (*Resolver, error) {
	r := &Resolver{source: source, target: target}
	for _, tf := range target.Fields() {
		si := source.Index(tf.Name)
		if si < 0 {
			r.mapping = append(r.mapping, Mapping{Kind: MappingUseDefault})
			continue
		}
		sf := source.Field(si)
		if sf.Type != tf.Type && !CanWiden(sf.Type, tf.Type) {
			return nil, fmt.Errorf("field %q: cannot resolve %s to %s", tf.Name, sf.Type, tf.Type)
		}
		r.mapping = append(r.mapping, Mapping{Kind: MappingDirect, Source: si})
	}
	return r, nil
}

// CanWiden reports whether a value of from losslessly widens to to.
func CanWiden(from, to columnar.Type) bool {
	if from == to {
		return true
	}
	switch {
	case from.IsSignedInt() && to.IsSignedInt():
		return to > from // widths ascend within the signed block
	case from.IsUnsignedInt() && to.IsUnsignedInt():
		return to > from
	case from.IsUnsignedInt() && to.IsSignedInt():
		// uintN fits intM when M is strictly wider.
		return widthOf(to) > widthOf(from)
	case from.IsInteger() && to == columnar.TypeFloat8:
		return true
	case from == columnar.TypeFloat4 && to == columnar.TypeFloat8:
		return true
	case from == columnar.TypeUuid4 && to == columnar.TypeUuid7,
		from == columnar.TypeUuid7 && to == columnar.TypeUuid4:
		return false
	}
	return false
}

func widthOf(t columnar.Type) int { return t.FixedSize() }

// Resolve decodes a source-encoded row into target-ordered values,
// widening where the mapping calls for it.
func (r *Resolver) Resolve(raw []byte) ([]columnar.Value, error) {
	out := make([]columnar.Value, r.target.NumFields())
	for i, m := range r.mapping {
		if m.Kind == MappingUseDefault {
			out[i] = columnar.Undefined
			continue
		}
		v, err := DecodeField(r.source, raw, m.Source)
		if err != nil {
			return nil, err
		}
		out[i] = Widen(v, r.target.Field(i).Type)
	}
	return out, nil
}

// Widen converts v to the target type along a defined widening path.
// Undefined stays undefined; an identical type passes through.
func Widen(v columnar.Value, to columnar.Type) columnar.Value {
	if !v.Defined() || v.Type == to {
		return v
	}
	out := columnar.Value{Type: to}
	switch {
	case v.Type.IsSignedInt() && to.IsSignedInt():
		out.Int = v.Int
	case v.Type.IsUnsignedInt() && to.IsUnsignedInt():
		out.Uint = v.Uint
	case v.Type.IsUnsignedInt() && to.IsSignedInt():
		out.Int = int64(v.Uint)
	case v.Type.IsSignedInt() && to == columnar.TypeFloat8:
		out.Float = float64(v.Int)
	case v.Type.IsUnsignedInt() && to == columnar.TypeFloat8:
		out.Float = float64(v.Uint)
	case v.Type == columnar.TypeFloat4 && to == columnar.TypeFloat8:
		out.Float = v.Float
	default:
		return columnar.Undefined
	}
	return out
}
