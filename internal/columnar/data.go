package columnar

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// ColumnData is a tagged columnar container: one value vector of a single
// base type plus a validity bitvec. Values at undefined rows are zeroed
// and must not be interpreted.
//
// The payload lives in the family slice matching the type: all signed
// integer widths share ints, all unsigned widths share uints, the 128-bit
// widths use bigs, and so on. The declared Type governs bounds checking
// and encoding, not in-memory width.
type ColumnData struct {
	typ      Type
	validity Bitvec

	bools  []bool
	ints   []int64
	uints  []uint64
	bigs   []*big.Int
	floats []float64
	strs   []string
	blobs  [][]byte
	times  []time.Time
	durs   []time.Duration
	uuids  []uuid.UUID
	decs   []*big.Rat
}

// NewColumnData returns an empty container of the given type.
func NewColumnData(t Type) *ColumnData {
	return &ColumnData{typ: t}
}

// NewUndefinedColumn returns a column of n undefined rows.
func NewUndefinedColumn(t Type, n int) *ColumnData {
	c := NewColumnData(t)
	for i := 0; i < n; i++ {
		c.AppendUndefined()
	}
	return c
}

// Type returns the container's base type.
func (c *ColumnData) Type() Type { return c.typ }

// Len returns the row count.
func (c *ColumnData) Len() int { return c.validity.Len() }

// Defined reports whether row i carries a value.
func (c *ColumnData) Defined(i int) bool { return c.validity.Get(i) }

// AppendUndefined grows every family slice in lockstep with a zero value
// and a cleared validity bit.
func (c *ColumnData) AppendUndefined() {
	c.validity.Append(false)
	c.appendZero()
}

func (c *ColumnData) appendZero() {
	switch c.typ {
	case TypeBool:
		c.bools = append(c.bools, false)
	case TypeInt1, TypeInt2, TypeInt4, TypeInt8:
		c.ints = append(c.ints, 0)
	case TypeUint1, TypeUint2, TypeUint4, TypeUint8:
		c.uints = append(c.uints, 0)
	case TypeInt16, TypeUint16:
		c.bigs = append(c.bigs, nil)
	case TypeFloat4, TypeFloat8:
		c.floats = append(c.floats, 0)
	case TypeUtf8:
		c.strs = append(c.strs, "")
	case TypeBlob:
		c.blobs = append(c.blobs, nil)
	case TypeDate, TypeDateTime, TypeTime:
		c.times = append(c.times, time.Time{})
	case TypeDuration:
		c.durs = append(c.durs, 0)
	case TypeUuid4, TypeUuid7:
		c.uuids = append(c.uuids, uuid.UUID{})
	case TypeDecimal:
		c.decs = append(c.decs, nil)
	case TypeUndefined:
		// undefined columns carry no payload slice
	}
}

// Append adds a defined value. The value's type must match the container.
func (c *ColumnData) Append(v Value) error {
	if !v.Defined() {
		c.AppendUndefined()
		return nil
	}
	if v.Type != c.typ {
		return fmt.Errorf("cannot append %s into %s column", v.Type, c.typ)
	}
	c.validity.Append(true)
	switch c.typ {
	case TypeBool:
		c.bools = append(c.bools, v.Bool)
	case TypeInt1, TypeInt2, TypeInt4, TypeInt8:
		c.ints = append(c.ints, v.Int)
	case TypeUint1, TypeUint2, TypeUint4, TypeUint8:
		c.uints = append(c.uints, v.Uint)
	case TypeInt16, TypeUint16:
		c.bigs = append(c.bigs, v.Big)
	case TypeFloat4, TypeFloat8:
		c.floats = append(c.floats, v.Float)
	case TypeUtf8:
		c.strs = append(c.strs, v.Str)
	case TypeBlob:
		c.blobs = append(c.blobs, v.Bytes)
	case TypeDate, TypeDateTime, TypeTime:
		c.times = append(c.times, v.Time)
	case TypeDuration:
		c.durs = append(c.durs, v.Duration)
	case TypeUuid4, TypeUuid7:
		c.uuids = append(c.uuids, v.UUID)
	case TypeDecimal:
		c.decs = append(c.decs, v.Decimal)
	default:
		return fmt.Errorf("cannot append into %s column", c.typ)
	}
	return nil
}

// MustAppend is Append for callers that have already type-checked.
func (c *ColumnData) MustAppend(v Value) {
	if err := c.Append(v); err != nil {
		panic(err)
	}
}

// Get returns the value at row i, Undefined when the validity bit is clear.
func (c *ColumnData) Get(i int) Value {
	if !c.validity.Get(i) {
		return Undefined
	}
	v := Value{Type: c.typ}
	switch c.typ {
	case TypeBool:
		v.Bool = c.bools[i]
	case TypeInt1, TypeInt2, TypeInt4, TypeInt8:
		v.Int = c.ints[i]
	case TypeUint1, TypeUint2, TypeUint4, TypeUint8:
		v.Uint = c.uints[i]
	case TypeInt16, TypeUint16:
		v.Big = c.bigs[i]
	case TypeFloat4, TypeFloat8:
		v.Float = c.floats[i]
	case TypeUtf8:
		v.Str = c.strs[i]
	case TypeBlob:
		v.Bytes = c.blobs[i]
	case TypeDate, TypeDateTime, TypeTime:
		v.Time = c.times[i]
	case TypeDuration:
		v.Duration = c.durs[i]
	case TypeUuid4, TypeUuid7:
		v.UUID = c.uuids[i]
	case TypeDecimal:
		v.Decimal = c.decs[i]
	}
	return v
}

// Bool returns the payload at row i for bool columns; callers check
// Defined first. Convenience accessors exist for the hot evaluation paths.
func (c *ColumnData) Bool(i int) bool { return c.bools[i] }

// Int returns the signed integer payload at row i.
func (c *ColumnData) Int(i int) int64 { return c.ints[i] }

// Uint returns the unsigned integer payload at row i.
func (c *ColumnData) Uint(i int) uint64 { return c.uints[i] }

// Float returns the float payload at row i.
func (c *ColumnData) Float(i int) float64 { return c.floats[i] }

// Str returns the string payload at row i.
func (c *ColumnData) Str(i int) string { return c.strs[i] }

// Gather returns a new column holding the rows named by indices, in order.
func (c *ColumnData) Gather(indices []int) *ColumnData {
	out := NewColumnData(c.typ)
	for _, i := range indices {
		out.MustAppend(c.Get(i))
	}
	return out
}

// Clone returns an independent deep-enough copy (payload slices copied;
// big values shared, which is safe because they are never mutated in
// place).
func (c *ColumnData) Clone() *ColumnData {
	out := NewColumnData(c.typ)
	for i := 0; i < c.Len(); i++ {
		out.MustAppend(c.Get(i))
	}
	return out
}
