// Package columnar holds the typed column containers the execution engine
// carries between operators: ColumnData (one typed value vector plus a
// validity bitvec), Columns (a named, row-aligned set of ColumnData), and
// Batch (the unit of flow through the operator tree).
//
// Storage keeps rows encoded; the engine works columnar. Conversion between
// the two happens only at scan and write boundaries.
package columnar

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type enumerates the base value types of the engine.
type Type uint8

const (
	TypeUndefined Type = iota
	TypeBool
	TypeInt1
	TypeInt2
	TypeInt4
	TypeInt8
	TypeInt16
	TypeUint1
	TypeUint2
	TypeUint4
	TypeUint8
	TypeUint16
	TypeFloat4
	TypeFloat8
	TypeUtf8
	TypeBlob
	TypeDate
	TypeDateTime
	TypeTime
	TypeDuration
	TypeUuid4
	TypeUuid7
	TypeDecimal
)

var typeNames = map[Type]string{
	TypeUndefined: "undefined",
	TypeBool:      "bool",
	TypeInt1:      "int1",
	TypeInt2:      "int2",
	TypeInt4:      "int4",
	TypeInt8:      "int8",
	TypeInt16:     "int16",
	TypeUint1:     "uint1",
	TypeUint2:     "uint2",
	TypeUint4:     "uint4",
	TypeUint8:     "uint8",
	TypeUint16:    "uint16",
	TypeFloat4:    "float4",
	TypeFloat8:    "float8",
	TypeUtf8:      "utf8",
	TypeBlob:      "blob",
	TypeDate:      "date",
	TypeDateTime:  "datetime",
	TypeTime:      "time",
	TypeDuration:  "duration",
	TypeUuid4:     "uuid4",
	TypeUuid7:     "uuid7",
	TypeDecimal:   "decimal",
}

// String returns the canonical lowercase name used on the wire.
func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// ParseType converts a canonical type name back to a Type.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if name == strings.ToLower(s) {
			return t, nil
		}
	}
	return TypeUndefined, fmt.Errorf("unknown type %q", s)
}

// IsSignedInt reports whether t is one of the signed integer widths.
func (t Type) IsSignedInt() bool {
	return t >= TypeInt1 && t <= TypeInt16
}

// IsUnsignedInt reports whether t is one of the unsigned integer widths.
func (t Type) IsUnsignedInt() bool {
	return t >= TypeUint1 && t <= TypeUint16
}

// IsInteger reports whether t is any integer type.
func (t Type) IsInteger() bool { return t.IsSignedInt() || t.IsUnsignedInt() }

// IsFloat reports whether t is float4 or float8.
func (t Type) IsFloat() bool { return t == TypeFloat4 || t == TypeFloat8 }

// IsNumeric reports whether t participates in arithmetic promotion.
func (t Type) IsNumeric() bool { return t.IsInteger() || t.IsFloat() || t == TypeDecimal }

// IsTemporal reports whether t is a date/time kind.
func (t Type) IsTemporal() bool {
	return t == TypeDate || t == TypeDateTime || t == TypeTime || t == TypeDuration
}

// FixedSize returns the storage width in bytes for fixed-width types.
// Variable-width types (utf8, blob, decimal) return 8 (their out-of-line
// reference slot: offset u32 + length u32).
func (t Type) FixedSize() int {
	switch t {
	case TypeBool, TypeInt1, TypeUint1:
		return 1
	case TypeInt2, TypeUint2:
		return 2
	case TypeInt4, TypeUint4, TypeFloat4, TypeDate, TypeTime:
		return 4
	case TypeInt8, TypeUint8, TypeFloat8, TypeDateTime, TypeDuration:
		return 8
	case TypeInt16, TypeUint16, TypeUuid4, TypeUuid7:
		return 16
	default:
		return 8
	}
}

// Align returns the natural alignment of the type in a row layout.
func (t Type) Align() int {
	size := t.FixedSize()
	if size > 8 {
		return 8
	}
	return size
}

// IntBounds returns the inclusive [min,max] of a native-width integer type
// (int1..int8 / uint1..uint8). 128-bit widths are handled separately via
// big.Int and report ok=false.
func (t Type) IntBounds() (min int64, max uint64, ok bool) {
	switch t {
	case TypeInt1:
		return -1 << 7, 1<<7 - 1, true
	case TypeInt2:
		return -1 << 15, 1<<15 - 1, true
	case TypeInt4:
		return -1 << 31, 1<<31 - 1, true
	case TypeInt8:
		return -1 << 63, 1<<63 - 1, true
	case TypeUint1:
		return 0, 1<<8 - 1, true
	case TypeUint2:
		return 0, 1<<16 - 1, true
	case TypeUint4:
		return 0, 1<<32 - 1, true
	case TypeUint8:
		return 0, 1<<64 - 1, true
	}
	return 0, 0, false
}

// Value is a dynamically typed scalar used at the engine's boundaries:
// wire parameters, inline plan data, and single-cell access into columns.
// The zero Value is undefined.
type Value struct {
	Type Type
	// Exactly one of the following carries the payload, matching Type.
	Bool     bool
	Int      int64
	Uint     uint64
	Big      *big.Int // int16 / uint16
	Float    float64
	Str      string
	Bytes    []byte
	Time     time.Time     // date, datetime, time-of-day (anchored)
	Duration time.Duration
	UUID     uuid.UUID
	Decimal  *big.Rat
}

// Defined reports whether the value carries a payload.
func (v Value) Defined() bool { return v.Type != TypeUndefined }

// String renders the canonical string form used on the wire.
func (v Value) String() string {
	switch v.Type {
	case TypeUndefined:
		return "undefined"
	case TypeBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case TypeInt1, TypeInt2, TypeInt4, TypeInt8:
		return fmt.Sprintf("%d", v.Int)
	case TypeUint1, TypeUint2, TypeUint4, TypeUint8:
		return fmt.Sprintf("%d", v.Uint)
	case TypeInt16, TypeUint16:
		if v.Big == nil {
			return "0"
		}
		return v.Big.String()
	case TypeFloat4, TypeFloat8:
		return fmt.Sprintf("%g", v.Float)
	case TypeUtf8:
		return v.Str
	case TypeBlob:
		return fmt.Sprintf("0x%x", v.Bytes)
	case TypeDate:
		return v.Time.Format("2006-01-02")
	case TypeDateTime:
		return v.Time.UTC().Format(time.RFC3339Nano)
	case TypeTime:
		return v.Time.Format("15:04:05.999999999")
	case TypeDuration:
		return v.Duration.String()
	case TypeUuid4, TypeUuid7:
		return v.UUID.String()
	case TypeDecimal:
		if v.Decimal == nil {
			return "0"
		}
		return v.Decimal.RatString()
	}
	return "undefined"
}

// Undefined is the canonical undefined value.
var Undefined = Value{}

// NewBool wraps a bool.
func NewBool(b bool) Value { return Value{Type: TypeBool, Bool: b} }

// NewInt wraps a signed integer with the given width.
func NewInt(t Type, v int64) Value { return Value{Type: t, Int: v} }

// NewUint wraps an unsigned integer with the given width.
func NewUint(t Type, v uint64) Value { return Value{Type: t, Uint: v} }

// NewFloat wraps a float with the given width.
func NewFloat(t Type, v float64) Value { return Value{Type: t, Float: v} }

// NewUtf8 wraps a string.
func NewUtf8(s string) Value { return Value{Type: TypeUtf8, Str: s} }

// NewBlob wraps a byte payload.
func NewBlob(b []byte) Value { return Value{Type: TypeBlob, Bytes: b} }
