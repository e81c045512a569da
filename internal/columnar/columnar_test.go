package columnar

import "testing"

func TestBitvecAppendGet(t *testing.T) {
	var b Bitvec
	for i := 0; i < 200; i++ {
		b.Append(i%3 == 0)
	}
	if b.Len() != 200 {
		t.Fatalf("len = %d", b.Len())
	}
	for i := 0; i < 200; i++ {
		if b.Get(i) != (i%3 == 0) {
			t.Fatalf("bit %d wrong", i)
		}
	}
	if b.Get(-1) || b.Get(200) {
		t.Error("out-of-range reads must be false")
	}
}

func TestColumnDataUndefined(t *testing.T) {
	c := NewColumnData(TypeInt4)
	c.MustAppend(NewInt(TypeInt4, 7))
	c.AppendUndefined()
	c.MustAppend(NewInt(TypeInt4, 9))

	if c.Len() != 3 {
		t.Fatalf("len = %d", c.Len())
	}
	if !c.Defined(0) || c.Defined(1) || !c.Defined(2) {
		t.Error("validity bits wrong")
	}
	if got := c.Get(1); got.Defined() {
		t.Errorf("row 1 should be undefined, got %v", got)
	}
	if got := c.Get(2); got.Int != 9 {
		t.Errorf("row 2 = %v", got)
	}
}

func TestColumnDataTypeMismatch(t *testing.T) {
	c := NewColumnData(TypeInt4)
	if err := c.Append(NewUtf8("nope")); err == nil {
		t.Error("expected type mismatch error")
	}
}

func TestColumnsGather(t *testing.T) {
	cols := NewColumns(Headers{{Name: "id", Type: TypeInt4}, {Name: "name", Type: TypeUtf8}})
	for i, n := range []string{"a", "b", "c"} {
		if err := cols.AppendRow(NewInt(TypeInt4, int64(i+1)), NewUtf8(n)); err != nil {
			t.Fatal(err)
		}
	}
	cols.RowNumbers = []uint64{10, 20, 30}

	out := cols.Gather([]int{2, 0})
	if out.RowCount() != 2 {
		t.Fatalf("rows = %d", out.RowCount())
	}
	if out.Cols[1].Data.Str(0) != "c" || out.Cols[1].Data.Str(1) != "a" {
		t.Error("gather order wrong")
	}
	if out.RowNumbers[0] != 30 || out.RowNumbers[1] != 10 {
		t.Error("row numbers not kept aligned")
	}
}

func TestTypeParseRoundTrip(t *testing.T) {
	for typ, name := range typeNames {
		got, err := ParseType(name)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		if got != typ {
			t.Errorf("parse %s = %v, want %v", name, got, typ)
		}
	}
}

func TestIntBounds(t *testing.T) {
	min, max, ok := TypeInt1.IntBounds()
	if !ok || min != -128 || max != 127 {
		t.Errorf("int1 bounds = %d %d %v", min, max, ok)
	}
	if _, _, ok := TypeInt16.IntBounds(); ok {
		t.Error("int16 must not report native bounds")
	}
}
