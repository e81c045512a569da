package schema

import (
	"math/big"
	"testing"
	"time"

	"github.com/SimonWaldherr/flowDB/internal/columnar"
)

func mustLayout(t *testing.T, fields []Field) *Layout {
	t.Helper()
	l, err := NewLayout(fields)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestLayoutOffsetsAligned(t *testing.T) {
	l := mustLayout(t, []Field{
		{Name: "flag", Type: columnar.TypeBool},  // size 1
		{Name: "id", Type: columnar.TypeInt8},    // align 8 -> offset 8
		{Name: "count", Type: columnar.TypeInt2}, // offset 16
	})
	if l.Field(0).Offset != 0 || l.Field(1).Offset != 8 || l.Field(2).Offset != 16 {
		t.Errorf("offsets = %d %d %d", l.Field(0).Offset, l.Field(1).Offset, l.Field(2).Offset)
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	fields := []Field{
		{Name: "id", Type: columnar.TypeInt4},
		{Name: "name", Type: columnar.TypeUtf8},
	}
	a := mustLayout(t, fields)
	b := mustLayout(t, fields)
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint must be deterministic")
	}

	c := mustLayout(t, []Field{
		{Name: "id", Type: columnar.TypeInt8},
		{Name: "name", Type: columnar.TypeUtf8},
	})
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("different layouts share a fingerprint")
	}
}

func TestFromPartsRoundTrip(t *testing.T) {
	l := mustLayout(t, []Field{{Name: "x", Type: columnar.TypeFloat8}})
	back, err := FromParts(l.Fingerprint(), []Field{{Name: "x", Type: columnar.TypeFloat8}})
	if err != nil {
		t.Fatal(err)
	}
	if back.Fingerprint() != l.Fingerprint() {
		t.Error("fingerprint changed across FromParts")
	}
	if _, err := FromParts(l.Fingerprint()+1, l.Fields()); err == nil {
		t.Error("FromParts must reject a wrong fingerprint")
	}
}

func TestRowRoundTrip(t *testing.T) {
	l := mustLayout(t, []Field{
		{Name: "id", Type: columnar.TypeInt4},
		{Name: "name", Type: columnar.TypeUtf8},
		{Name: "score", Type: columnar.TypeFloat8},
		{Name: "active", Type: columnar.TypeBool},
		{Name: "payload", Type: columnar.TypeBlob},
		{Name: "big", Type: columnar.TypeInt16},
		{Name: "price", Type: columnar.TypeDecimal},
		{Name: "at", Type: columnar.TypeDateTime},
	})
	neg := new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 100))
	when := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	in := []columnar.Value{
		columnar.NewInt(columnar.TypeInt4, -7),
		columnar.NewUtf8("ada"),
		columnar.NewFloat(columnar.TypeFloat8, 2.5),
		columnar.NewBool(true),
		columnar.NewBlob([]byte{0, 1, 2}),
		{Type: columnar.TypeInt16, Big: neg},
		{Type: columnar.TypeDecimal, Decimal: big.NewRat(110, 100)},
		{Type: columnar.TypeDateTime, Time: when},
	}
	raw, err := EncodeRow(l, in)
	if err != nil {
		t.Fatal(err)
	}

	fp, ok := RowFingerprint(raw)
	if !ok || fp != l.Fingerprint() {
		t.Errorf("row fingerprint = %x, want %x", fp, l.Fingerprint())
	}

	out, err := DecodeRow(l, raw)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Int != -7 || out[1].Str != "ada" || out[2].Float != 2.5 || !out[3].Bool {
		t.Errorf("fixed fields = %+v", out[:4])
	}
	if string(out[4].Bytes) != string([]byte{0, 1, 2}) {
		t.Errorf("blob = %v", out[4].Bytes)
	}
	if out[5].Big.Cmp(neg) != 0 {
		t.Errorf("int16 = %v, want %v", out[5].Big, neg)
	}
	if out[6].Decimal.Cmp(big.NewRat(11, 10)) != 0 {
		t.Errorf("decimal = %v", out[6].Decimal)
	}
	if !out[7].Time.Equal(when) {
		t.Errorf("datetime = %v", out[7].Time)
	}
}

func TestRowUndefinedFields(t *testing.T) {
	l := mustLayout(t, []Field{
		{Name: "a", Type: columnar.TypeInt4},
		{Name: "b", Type: columnar.TypeUtf8},
	})
	raw, err := EncodeRow(l, []columnar.Value{columnar.Undefined, columnar.NewUtf8("x")})
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeRow(l, raw)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Defined() {
		t.Error("field a must be undefined")
	}
	if out[1].Str != "x" {
		t.Errorf("field b = %v", out[1])
	}
}

func TestResolverDirectAndDefault(t *testing.T) {
	source := mustLayout(t, []Field{
		{Name: "id", Type: columnar.TypeInt4},
		{Name: "legacy", Type: columnar.TypeUtf8},
	})
	target := mustLayout(t, []Field{
		{Name: "id", Type: columnar.TypeInt8}, // widened
		{Name: "added", Type: columnar.TypeUtf8},
	})
	r, err := NewResolver(source, target)
	if err != nil {
		t.Fatal(err)
	}

	raw, _ := EncodeRow(source, []columnar.Value{
		columnar.NewInt(columnar.TypeInt4, 5),
		columnar.NewUtf8("dropme"),
	})
	out, err := r.Resolve(raw)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Type != columnar.TypeInt8 || out[0].Int != 5 {
		t.Errorf("widened id = %+v", out[0])
	}
	if out[1].Defined() {
		t.Error("added field must default to undefined")
	}
}

func TestResolverRejectsIncompatibleTypes(t *testing.T) {
	source := mustLayout(t, []Field{{Name: "x", Type: columnar.TypeUtf8}})
	target := mustLayout(t, []Field{{Name: "x", Type: columnar.TypeInt4}})
	if _, err := NewResolver(source, target); err == nil {
		t.Error("utf8 -> int4 must fail resolver construction")
	}

	// Narrowing ints is not a widening either.
	source = mustLayout(t, []Field{{Name: "x", Type: columnar.TypeInt8}})
	target = mustLayout(t, []Field{{Name: "x", Type: columnar.TypeInt4}})
	if _, err := NewResolver(source, target); err == nil {
		t.Error("int8 -> int4 must fail resolver construction")
	}
}

func TestCanWiden(t *testing.T) {
	yes := [][2]columnar.Type{
		{columnar.TypeInt1, columnar.TypeInt4},
		{columnar.TypeInt4, columnar.TypeInt8},
		{columnar.TypeUint2, columnar.TypeUint8},
		{columnar.TypeUint4, columnar.TypeInt8},
		{columnar.TypeInt4, columnar.TypeFloat8},
		{columnar.TypeFloat4, columnar.TypeFloat8},
	}
	for _, p := range yes {
		if !CanWiden(p[0], p[1]) {
			t.Errorf("%s -> %s should widen", p[0], p[1])
		}
	}
	no := [][2]columnar.Type{
		{columnar.TypeInt8, columnar.TypeInt4},
		{columnar.TypeFloat8, columnar.TypeFloat4},
		{columnar.TypeInt4, columnar.TypeUint8},
		{columnar.TypeUtf8, columnar.TypeBlob},
	}
	for _, p := range no {
		if CanWiden(p[0], p[1]) {
			t.Errorf("%s -> %s must not widen", p[0], p[1])
		}
	}
}
