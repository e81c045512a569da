package keycode

import (
	"bytes"
	"testing"
)

func TestStringOrdering(t *testing.T) {
	// "a" < "ab" < "b" must hold byte-wise after encoding.
	a := NewWriter(KindTable).U64(1).String("a").Bytes()
	ab := NewWriter(KindTable).U64(1).String("ab").Bytes()
	b := NewWriter(KindTable).U64(1).String("b").Bytes()

	if bytes.Compare(a, ab) >= 0 {
		t.Errorf("encode(a) >= encode(ab)")
	}
	if bytes.Compare(ab, b) >= 0 {
		t.Errorf("encode(ab) >= encode(b)")
	}
}

func TestStringEscaping(t *testing.T) {
	in := []byte{'x', 0x00, 'y', 0x00, 0x00}
	key := NewWriter(KindDictionary).EscapedBytes(in).Bytes()

	r, ok := NewReader(key, KindDictionary)
	if !ok {
		t.Fatal("reader rejected valid key")
	}
	out, ok := r.Escaped()
	if !ok {
		t.Fatal("escaped decode failed")
	}
	if !bytes.Equal(out, in) {
		t.Errorf("roundtrip mismatch: %x != %x", out, in)
	}
	if !r.Done() {
		t.Error("trailing bytes after component")
	}
}

func TestIntegerOrdering(t *testing.T) {
	cases := []struct{ lo, hi uint64 }{
		{0, 1}, {1, 255}, {255, 256}, {1 << 31, 1<<31 + 1}, {1<<63 - 1, 1 << 63},
	}
	for _, c := range cases {
		lo := NewWriter(KindSequence).U64(c.lo).Bytes()
		hi := NewWriter(KindSequence).U64(c.hi).Bytes()
		if bytes.Compare(lo, hi) >= 0 {
			t.Errorf("u64 %d should sort before %d", c.lo, c.hi)
		}
		// Descending: larger values sort first.
		loD := NewWriter(KindSequence).U64Desc(c.lo).Bytes()
		hiD := NewWriter(KindSequence).U64Desc(c.hi).Bytes()
		if bytes.Compare(hiD, loD) >= 0 {
			t.Errorf("desc u64 %d should sort before %d", c.hi, c.lo)
		}
	}
}

func TestSignedOrdering(t *testing.T) {
	values := []int64{-1 << 62, -1000, -1, 0, 1, 1000, 1 << 62}
	var prev []byte
	for _, v := range values {
		cur := NewWriter(KindSequence).I64(v).Bytes()
		if prev != nil && bytes.Compare(prev, cur) >= 0 {
			t.Errorf("i64 ordering broken at %d", v)
		}
		prev = cur
	}
}

func TestDecodeRejectsBadInput(t *testing.T) {
	key := RowKey{Primitive: 3, Row: 9}.Encode()

	// Version mismatch.
	bad := append([]byte{}, key...)
	bad[0] = 0x01
	if _, ok := DecodeRowKey(bad); ok {
		t.Error("accepted wrong version byte")
	}
	// Wrong kind.
	if _, ok := DecodeObjectKey(key, KindTable); ok {
		t.Error("accepted wrong kind")
	}
	// Truncation.
	if _, ok := DecodeRowKey(key[:len(key)-1]); ok {
		t.Error("accepted truncated key")
	}
}

func TestRowKeyRoundTrip(t *testing.T) {
	k := RowKey{Primitive: 42, Row: 7}
	got, ok := DecodeRowKey(k.Encode())
	if !ok || got != k {
		t.Errorf("roundtrip = %+v, %v", got, ok)
	}
}

func TestTypedKeyRoundTrips(t *testing.T) {
	if got, ok := DecodeObjectKey(ObjectKey{Kind: KindTable, ID: 5}.Encode(), KindTable); !ok || got.ID != 5 {
		t.Errorf("object key roundtrip failed: %+v %v", got, ok)
	}
	nk := NameIndexKey{Kind: KindTable, Namespace: 2, Name: "events"}
	if got, ok := DecodeNameIndexKey(nk.Encode()); !ok || got != nk {
		t.Errorf("name index roundtrip failed: %+v %v", got, ok)
	}
	dk := DictionaryEntryKey{Dictionary: 1, Entry: 99}
	if got, ok := DecodeDictionaryEntryKey(dk.Encode()); !ok || got != dk {
		t.Errorf("dictionary entry roundtrip failed: %+v %v", got, ok)
	}
	fk := FlowNodeKey{Flow: 8, Node: 3}
	if got, ok := DecodeFlowNodeKey(fk.Encode()); !ok || got != fk {
		t.Errorf("flow node roundtrip failed: %+v %v", got, ok)
	}
	sk := SequenceKey{ID: 17}
	if got, ok := DecodeSequenceKey(sk.Encode()); !ok || got != sk {
		t.Errorf("sequence roundtrip failed: %+v %v", got, ok)
	}
	ck := ColumnSequenceKey{Primitive: 4, Column: 2}
	if got, ok := DecodeColumnSequenceKey(ck.Encode()); !ok || got != ck {
		t.Errorf("column sequence roundtrip failed: %+v %v", got, ok)
	}
	// The two sequence-family layouts stay disjoint.
	if _, ok := DecodeSequenceKey(ck.Encode()); ok {
		t.Error("column sequence key decoded as plain sequence key")
	}
	if _, ok := DecodeColumnSequenceKey(sk.Encode()); ok {
		t.Error("plain sequence key decoded as column sequence key")
	}
}

func TestPrefixRangeCoversRows(t *testing.T) {
	start, end := RowPrefix(7)
	inside := [][]byte{
		RowKey{Primitive: 7, Row: 0}.Encode(),
		RowKey{Primitive: 7, Row: 1 << 40}.Encode(),
		RowKey{Primitive: 7, Row: ^uint64(0)}.Encode(),
	}
	outside := [][]byte{
		RowKey{Primitive: 6, Row: ^uint64(0)}.Encode(),
		RowKey{Primitive: 8, Row: 0}.Encode(),
	}
	for _, k := range inside {
		if bytes.Compare(k, start) < 0 || bytes.Compare(k, end) >= 0 {
			t.Errorf("key %x not inside [start,end)", k)
		}
	}
	for _, k := range outside {
		if bytes.Compare(k, start) >= 0 && bytes.Compare(k, end) < 0 {
			t.Errorf("key %x should be outside range", k)
		}
	}
}

func TestPrefixEnd(t *testing.T) {
	if got := PrefixEnd([]byte{0x01, 0x02}); !bytes.Equal(got, []byte{0x01, 0x03}) {
		t.Errorf("PrefixEnd = %x", got)
	}
	if got := PrefixEnd([]byte{0x01, 0xFF}); !bytes.Equal(got, []byte{0x02}) {
		t.Errorf("PrefixEnd with trailing 0xFF = %x", got)
	}
	if got := PrefixEnd([]byte{0xFF, 0xFF}); got != nil {
		t.Errorf("all-0xFF prefix must be unbounded, got %x", got)
	}
}

func TestSuccessor(t *testing.T) {
	k := []byte{0x05, 0xFF}
	s := Successor(k)
	if bytes.Compare(k, s) >= 0 {
		t.Error("successor must be strictly greater")
	}
	if !bytes.HasPrefix(s, k) || len(s) != len(k)+1 {
		t.Errorf("successor = %x", s)
	}
}

func TestPeekKind(t *testing.T) {
	key := ObjectKey{Kind: KindView, ID: 1}.Encode()
	kind, ok := PeekKind(key)
	if !ok || kind != KindView {
		t.Errorf("PeekKind = %v %v", kind, ok)
	}
	if _, ok := PeekKind([]byte{0x00, 0x01}); ok {
		t.Error("PeekKind accepted bad version")
	}
}
