package engine

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SimonWaldherr/flowDB/internal/columnar"
	"github.com/SimonWaldherr/flowDB/internal/diag"
)

// CastPolicy governs what happens when a cast fails or overflows.
type CastPolicy uint8

const (
	// PolicyError aborts the statement.
	PolicyError CastPolicy = iota
	// PolicySaturate clamps numeric overflow to the type bounds.
	PolicySaturate
	// PolicyUndefined stores undefined instead of aborting. The
	// default for materialized view writes.
	PolicyUndefined
)

// CastColumn converts a whole column to the target type.
func CastColumn(col *columnar.ColumnData, to columnar.Type, policy CastPolicy) (*columnar.ColumnData, error) {
	out := columnar.NewColumnData(to)
	for i := 0; i < col.Len(); i++ {
		v, err := CastValue(col.Get(i), to, policy)
		if err != nil {
			return nil, err
		}
		out.MustAppend(v)
	}
	return out, nil
}

// CastValue converts one value to the target type. Undefined stays
// undefined; failures follow the policy.
func CastValue(v columnar.Value, to columnar.Type, policy CastPolicy) (columnar.Value, error) {
	if !v.Defined() || v.Type == to {
		if v.Defined() {
			return v, nil
		}
		return columnar.Undefined, nil
	}

	fail := func(format string, args ...any) (columnar.Value, error) {
		if policy == PolicyUndefined {
			return columnar.Undefined, nil
		}
		return columnar.Undefined, diag.New(diag.CastFailure,
			"cannot cast %s to %s: %s", v.Type, to, fmt.Sprintf(format, args...))
	}

	switch {
	case to == columnar.TypeUtf8:
		return columnar.NewUtf8(v.String()), nil

	case to == columnar.TypeBool:
		switch v.Type {
		case columnar.TypeUtf8:
			switch strings.ToLower(strings.TrimSpace(v.Str)) {
			case "true", "1":
				return columnar.NewBool(true), nil
			case "false", "0":
				return columnar.NewBool(false), nil
			}
			return fail("unparsable bool %q", v.Str)
		}
		if v.Type.IsInteger() {
			return columnar.NewBool(intOf(v) != 0), nil
		}
		return fail("no conversion")

	case to.IsSignedInt() && to != columnar.TypeInt16:
		i, ok, perr := intFromValue(v)
		if perr != "" {
			return fail("%s", perr)
		}
		if !ok {
			return fail("no conversion")
		}
		min, maxU, _ := to.IntBounds()
		max := int64(maxU)
		if to == columnar.TypeInt8 {
			max = math.MaxInt64
		}
		if i < min || i > max {
			if policy == PolicySaturate {
				if i < min {
					return columnar.NewInt(to, min), nil
				}
				return columnar.NewInt(to, max), nil
			}
			if policy == PolicyUndefined {
				return columnar.Undefined, nil
			}
			return columnar.Undefined, diag.New(diag.CastOutOfRange,
				"value %d out of range for %s", i, to)
		}
		return columnar.NewInt(to, i), nil

	case to.IsUnsignedInt() && to != columnar.TypeUint16:
		i, ok, perr := intFromValue(v)
		if perr != "" {
			return fail("%s", perr)
		}
		if !ok {
			return fail("no conversion")
		}
		_, max, _ := to.IntBounds()
		if i < 0 || (to != columnar.TypeUint8 && uint64(i) > max) {
			if policy == PolicySaturate {
				if i < 0 {
					return columnar.NewUint(to, 0), nil
				}
				return columnar.NewUint(to, max), nil
			}
			if policy == PolicyUndefined {
				return columnar.Undefined, nil
			}
			return columnar.Undefined, diag.New(diag.CastOutOfRange,
				"value %d out of range for %s", i, to)
		}
		return columnar.NewUint(to, uint64(i)), nil

	case to == columnar.TypeInt16 || to == columnar.TypeUint16:
		var b *big.Int
		switch {
		case v.Type.IsSignedInt():
			b = big.NewInt(v.Int)
		case v.Type.IsUnsignedInt():
			b = new(big.Int).SetUint64(v.Uint)
		case v.Type == columnar.TypeInt16 || v.Type == columnar.TypeUint16:
			b = v.Big
		case v.Type == columnar.TypeUtf8:
			b = new(big.Int)
			if _, ok := b.SetString(strings.TrimSpace(v.Str), 10); !ok {
				return fail("unparsable integer %q", v.Str)
			}
		default:
			return fail("no conversion")
		}
		if to == columnar.TypeUint16 && b.Sign() < 0 {
			if policy == PolicySaturate {
				return columnar.Value{Type: to, Big: new(big.Int)}, nil
			}
			if policy == PolicyUndefined {
				return columnar.Undefined, nil
			}
			return columnar.Undefined, diag.New(diag.CastOutOfRange, "negative value for %s", to)
		}
		return columnar.Value{Type: to, Big: b}, nil

	case to.IsFloat():
		switch {
		case v.Type.IsSignedInt():
			return columnar.NewFloat(to, float64(v.Int)), nil
		case v.Type.IsUnsignedInt():
			return columnar.NewFloat(to, float64(v.Uint)), nil
		case v.Type.IsFloat():
			return columnar.NewFloat(to, v.Float), nil
		case v.Type == columnar.TypeDecimal && v.Decimal != nil:
			f, _ := v.Decimal.Float64()
			return columnar.NewFloat(to, f), nil
		case v.Type == columnar.TypeUtf8:
			f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
			if err != nil {
				return fail("unparsable float %q", v.Str)
			}
			return columnar.NewFloat(to, f), nil
		}
		return fail("no conversion")

	case to == columnar.TypeDecimal:
		if r := toRat(v); r != nil {
			return columnar.Value{Type: columnar.TypeDecimal, Decimal: r}, nil
		}
		if v.Type == columnar.TypeUtf8 {
			r := new(big.Rat)
			if _, ok := r.SetString(strings.TrimSpace(v.Str)); ok {
				return columnar.Value{Type: columnar.TypeDecimal, Decimal: r}, nil
			}
			return fail("unparsable decimal %q", v.Str)
		}
		return fail("no conversion")

	case to == columnar.TypeDate, to == columnar.TypeDateTime, to == columnar.TypeTime:
		if v.Type == columnar.TypeUtf8 {
			t, err := parseTemporal(to, v.Str)
			if err != nil {
				return fail("%v", err)
			}
			return columnar.Value{Type: to, Time: t}, nil
		}
		if v.Type.IsTemporal() && v.Type != columnar.TypeDuration {
			return columnar.Value{Type: to, Time: v.Time}, nil
		}
		return fail("no conversion")

	case to == columnar.TypeDuration:
		if v.Type == columnar.TypeUtf8 {
			d, err := time.ParseDuration(strings.TrimSpace(v.Str))
			if err != nil {
				return fail("%v", err)
			}
			return columnar.Value{Type: to, Duration: d}, nil
		}
		if v.Type.IsSignedInt() {
			return columnar.Value{Type: to, Duration: time.Duration(v.Int)}, nil
		}
		return fail("no conversion")

	case to == columnar.TypeUuid4 || to == columnar.TypeUuid7:
		if v.Type == columnar.TypeUtf8 {
			u, err := uuid.Parse(strings.TrimSpace(v.Str))
			if err != nil {
				return fail("%v", err)
			}
			return columnar.Value{Type: to, UUID: u}, nil
		}
		if v.Type == columnar.TypeUuid4 || v.Type == columnar.TypeUuid7 {
			return columnar.Value{Type: to, UUID: v.UUID}, nil
		}
		return fail("no conversion")

	case to == columnar.TypeBlob:
		if v.Type == columnar.TypeUtf8 {
			return columnar.NewBlob([]byte(v.Str)), nil
		}
		return fail("no conversion")
	}
	return fail("unsupported target")
}

func intFromValue(v columnar.Value) (i int64, ok bool, parseErr string) {
	switch {
	case v.Type.IsSignedInt():
		return v.Int, true, ""
	case v.Type.IsUnsignedInt():
		if v.Uint > math.MaxInt64 {
			return 0, false, "value exceeds int64"
		}
		return int64(v.Uint), true, ""
	case v.Type.IsFloat():
		if v.Float != math.Trunc(v.Float) || math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
			return 0, false, fmt.Sprintf("float %g has no exact integer form", v.Float)
		}
		return int64(v.Float), true, ""
	case v.Type == columnar.TypeBool:
		if v.Bool {
			return 1, true, ""
		}
		return 0, true, ""
	case v.Type == columnar.TypeUtf8:
		i, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
		if err != nil {
			return 0, false, fmt.Sprintf("unparsable integer %q", v.Str)
		}
		return i, true, ""
	case v.Type == columnar.TypeDecimal && v.Decimal != nil:
		if !v.Decimal.IsInt() {
			return 0, false, "decimal has a fractional part"
		}
		return v.Decimal.Num().Int64(), true, ""
	}
	return 0, false, ""
}

func parseTemporal(to columnar.Type, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch to {
	case columnar.TypeDate:
		return time.Parse("2006-01-02", s)
	case columnar.TypeTime:
		return time.Parse("15:04:05", s)
	default:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparsable datetime %q", s)
	}
}
