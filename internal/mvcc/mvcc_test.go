package mvcc

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/SimonWaldherr/flowDB/internal/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	backend, err := storage.Open(storage.Config{Mode: storage.ModeMemory})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { backend.Close() })
	return NewStore(backend)
}

func TestVersionedKeyRoundTrip(t *testing.T) {
	key := []byte("table/1/row/9")
	vk := EncodeVersioned(key, 42)
	if len(vk) != len(key)+VersionSize {
		t.Fatalf("len = %d", len(vk))
	}
	k, v, ok := DecodeVersioned(vk)
	if !ok || !bytes.Equal(k, key) || v != 42 {
		t.Errorf("decode = %q %d %v", k, v, ok)
	}
}

func TestVersionedKeyOrdering(t *testing.T) {
	key := []byte("k")
	v1 := EncodeVersioned(key, 1)
	v2 := EncodeVersioned(key, 2)
	v10 := EncodeVersioned(key, 10)
	if bytes.Compare(v1, v2) >= 0 || bytes.Compare(v2, v10) >= 0 {
		t.Error("versions of one key must sort ascending")
	}
}

func TestGetAtVersion(t *testing.T) {
	s := newStore(t)
	key := []byte("k")

	if err := s.Commit([]Delta{Set(key, []byte("v1"))}, 1, "t1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit([]Delta{Set(key, []byte("v3"))}, 3, "t2"); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		at      uint64
		want    string
		wantVer uint64
		found   bool
	}{
		{0, "", 0, false},
		{1, "v1", 1, true},
		{2, "v1", 1, true},
		{3, "v3", 3, true},
		{100, "v3", 3, true},
	}
	for _, c := range cases {
		got, err := s.Get(key, c.at)
		if err != nil {
			t.Fatal(err)
		}
		if (got != nil) != c.found {
			t.Fatalf("at %d: found=%v", c.at, got != nil)
		}
		if got != nil && (string(got.Values) != c.want || got.Version != c.wantVer) {
			t.Errorf("at %d: got %q@%d", c.at, got.Values, got.Version)
		}
	}
}

func TestTombstoneHidesKey(t *testing.T) {
	s := newStore(t)
	key := []byte("k")
	s.Commit([]Delta{Set(key, []byte("v"))}, 1, "t1")
	s.Commit([]Delta{Remove(key)}, 2, "t2")

	if got, _ := s.Get(key, 1); got == nil {
		t.Error("key must be visible at version 1")
	}
	if got, _ := s.Get(key, 2); got != nil {
		t.Error("tombstone must hide key at version 2")
	}
	if got, _ := s.Get(key, 5); got != nil {
		t.Error("tombstone must hide key at later versions")
	}
}

func TestScanLatestPerKey(t *testing.T) {
	s := newStore(t)
	s.Commit([]Delta{Set([]byte("a"), []byte("a1")), Set([]byte("b"), []byte("b1")), Set([]byte("c"), []byte("c1"))}, 1, "t1")
	s.Commit([]Delta{Set([]byte("b"), []byte("b2")), Remove([]byte("c"))}, 2, "t2")

	got, err := s.Scan(2).Collect()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("scan@2 = %d entries", len(got))
	}
	if string(got[0].Key) != "a" || string(got[0].Values) != "a1" {
		t.Errorf("entry 0 = %q %q", got[0].Key, got[0].Values)
	}
	if string(got[1].Key) != "b" || string(got[1].Values) != "b2" || got[1].Version != 2 {
		t.Errorf("entry 1 = %q %q @%d", got[1].Key, got[1].Values, got[1].Version)
	}

	// At version 1 all three keys are visible with their v1 values.
	old, err := s.Scan(1).Collect()
	if err != nil {
		t.Fatal(err)
	}
	if len(old) != 3 || string(old[2].Values) != "c1" {
		t.Errorf("scan@1 = %+v", old)
	}
}

func TestScanReverse(t *testing.T) {
	s := newStore(t)
	s.Commit([]Delta{Set([]byte("a"), []byte("1")), Set([]byte("b"), []byte("2")), Set([]byte("c"), []byte("3"))}, 1, "t")
	s.Commit([]Delta{Set([]byte("b"), []byte("2b"))}, 2, "t")

	got, err := s.RangeRev(nil, nil, 2).Collect()
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, v := range got {
		keys = append(keys, string(v.Key))
	}
	if fmt.Sprint(keys) != "[c b a]" {
		t.Errorf("reverse order = %v", keys)
	}
	if string(got[1].Values) != "2b" {
		t.Errorf("reverse must resolve latest version, got %q", got[1].Values)
	}
}

func TestScanPaginatesAcrossBatches(t *testing.T) {
	s := newStore(t)
	s.batchSize = 7 // force many pages
	var deltas []Delta
	for i := 0; i < 100; i++ {
		deltas = append(deltas, Set([]byte(fmt.Sprintf("key%03d", i)), []byte("v")))
	}
	s.Commit(deltas, 1, "t")
	// Overwrite half at version 2.
	deltas = nil
	for i := 0; i < 100; i += 2 {
		deltas = append(deltas, Set([]byte(fmt.Sprintf("key%03d", i)), []byte("w")))
	}
	s.Commit(deltas, 2, "t")

	got, err := s.Scan(2).Collect()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 100 {
		t.Fatalf("scan = %d entries", len(got))
	}
	for i, v := range got {
		want := "v"
		if i%2 == 0 {
			want = "w"
		}
		if string(v.Values) != want {
			t.Fatalf("entry %d = %q, want %q", i, v.Values, want)
		}
	}
}

func TestCdcGenerationRules(t *testing.T) {
	s := newStore(t)
	// Seed: k1 exists, k2 exists.
	s.Commit([]Delta{Set([]byte("k1"), []byte("a")), Set([]byte("k2"), []byte("b"))}, 1, "seed")

	// Version 2: insert k3, update k1, delete k2, remove absent k4,
	// drop k5.
	deltas := []Delta{
		Set([]byte("k3"), []byte("c")),
		Set([]byte("k1"), []byte("a2")),
		Remove([]byte("k2")),
		Remove([]byte("k4")),
		Drop([]byte("k5")),
	}
	if err := s.Commit(deltas, 2, "t2"); err != nil {
		t.Fatal(err)
	}

	rec, ok, err := s.CdcGet(2)
	if err != nil || !ok {
		t.Fatalf("cdc record missing: %v %v", ok, err)
	}
	if rec.TransactionID != "t2" || rec.Version != 2 {
		t.Errorf("record header = %+v", rec)
	}
	if len(rec.Changes) != 3 {
		t.Fatalf("changes = %d, want 3", len(rec.Changes))
	}
	want := []struct {
		op  ChangeOp
		key string
	}{
		{ChangeInsert, "k3"},
		{ChangeUpdate, "k1"},
		{ChangeDelete, "k2"},
	}
	for i, w := range want {
		c := rec.Changes[i]
		if c.Op != w.op || string(c.Key) != w.key {
			t.Errorf("change %d = %v %q", i, c.Op, c.Key)
		}
		if c.Sequence != uint16(i+1) {
			t.Errorf("change %d sequence = %d", i, c.Sequence)
		}
	}
	if rec.Changes[1].PreVersion != 1 || rec.Changes[1].PostVersion != 2 {
		t.Errorf("update versions = %+v", rec.Changes[1])
	}

	if n, _ := s.CdcCount(2); n != 3 {
		t.Errorf("count = %d", n)
	}
}

func TestCdcOrderingDense(t *testing.T) {
	s := newStore(t)
	deltas := []Delta{
		Set([]byte("a"), []byte("1")),
		Set([]byte("b"), []byte("2")),
		Set([]byte("c"), []byte("3")),
	}
	s.Commit(deltas, 1, "t")
	rec, ok, _ := s.CdcGet(1)
	if !ok || len(rec.Changes) != 3 {
		t.Fatalf("record = %+v", rec)
	}
	for i, c := range rec.Changes {
		if c.Sequence != uint16(i+1) {
			t.Errorf("sequence %d = %d", i, c.Sequence)
		}
	}
}

func TestCdcRange(t *testing.T) {
	s := newStore(t)
	for v := uint64(1); v <= 5; v++ {
		s.Commit([]Delta{Set([]byte("k"), []byte{byte(v)})}, v, "t")
	}
	batch, err := s.CdcRange(2, 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Records) != 3 {
		t.Fatalf("records = %d", len(batch.Records))
	}
	for i, r := range batch.Records {
		if r.Version != uint64(i+2) {
			t.Errorf("record %d version = %d", i, r.Version)
		}
	}
}

func TestDropEmitsNoCdc(t *testing.T) {
	s := newStore(t)
	s.Commit([]Delta{Set([]byte("k"), []byte("v"))}, 1, "t")
	if err := s.Commit([]Delta{Drop([]byte("k"))}, 2, "t"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.CdcGet(2); ok {
		t.Error("drop-only commit must not write a CDC record")
	}
	// The drop still tombstones the key.
	if got, _ := s.Get([]byte("k"), 2); got != nil {
		t.Error("dropped key must not resolve")
	}
}
