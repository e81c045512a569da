package catalog

import (
	"testing"

	"github.com/SimonWaldherr/flowDB/internal/columnar"
	"github.com/SimonWaldherr/flowDB/internal/diag"
	"github.com/SimonWaldherr/flowDB/internal/keycode"
	"github.com/SimonWaldherr/flowDB/internal/mvcc"
	"github.com/SimonWaldherr/flowDB/internal/storage"
	"github.com/SimonWaldherr/flowDB/internal/txn"
)

func newCatalog(t *testing.T) (*Catalog, *txn.Manager) {
	t.Helper()
	backend, err := storage.Open(storage.Config{Mode: storage.ModeMemory})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { backend.Close() })
	m := txn.NewManager(mvcc.NewStore(backend), nil)
	t.Cleanup(m.Close)
	return New(m), m
}

func TestVersionChainResolution(t *testing.T) {
	var c VersionChain
	d1 := &NamespaceDef{ID: 1, Name: "a"}
	d2 := &NamespaceDef{ID: 1, Name: "b"}
	c.Insert(2, d1)
	c.Insert(5, d2)
	c.Remove(9)

	if c.Get(1) != nil {
		t.Error("before first version must be nil")
	}
	if got := c.Get(2); got != Def(d1) {
		t.Errorf("at 2 = %v", got)
	}
	if got := c.Get(4); got != Def(d1) {
		t.Errorf("at 4 = %v", got)
	}
	if got := c.Get(5); got != Def(d2) {
		t.Errorf("at 5 = %v", got)
	}
	if c.Get(9) != nil || c.Get(100) != nil {
		t.Error("tombstone must hide the object")
	}
}

func TestCreateAndResolveAcrossCommit(t *testing.T) {
	cat, m := newCatalog(t)

	cmd := m.BeginCommand()
	tx := cat.Begin(cmd)
	ns, err := tx.CreateNamespace("c")
	if err != nil {
		t.Fatal(err)
	}
	table, err := tx.CreateTable(ns.ID, "e", []ColumnDef{
		{Name: "id", Type: columnar.TypeInt4},
		{Name: "name", Type: columnar.TypeUtf8},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Visible inside the transaction through the overlay.
	got, err := tx.ResolveTable(ns.ID, "e")
	if err != nil || got == nil || got.ID != table.ID {
		t.Fatalf("overlay lookup = %v %v", got, err)
	}

	version, err := cmd.Commit()
	if err != nil {
		t.Fatal(err)
	}
	tx.Commit(version)

	// Visible to a later transaction through the materialized index.
	cmd2 := m.BeginCommand()
	defer cmd2.Rollback()
	tx2 := cat.Begin(cmd2)
	got2, err := tx2.ResolveTable(ns.ID, "e")
	if err != nil || got2 == nil {
		t.Fatalf("materialized lookup = %v %v", got2, err)
	}
	if got2.Fingerprint != table.Fingerprint {
		t.Error("fingerprint lost across commit")
	}
}

func TestNameCollisionRejected(t *testing.T) {
	cat, m := newCatalog(t)
	cmd := m.BeginCommand()
	tx := cat.Begin(cmd)
	ns, _ := tx.CreateNamespace("c")
	if _, err := tx.CreateTable(ns.ID, "e", []ColumnDef{{Name: "id", Type: columnar.TypeInt4}}); err != nil {
		t.Fatal(err)
	}
	_, err := tx.CreateTable(ns.ID, "e", []ColumnDef{{Name: "id", Type: columnar.TypeInt4}})
	if diag.CodeOf(err) != diag.CatalogAlreadyExists {
		t.Errorf("duplicate create = %v", err)
	}
	cmd.Rollback()
}

func TestOverlayCoalescing(t *testing.T) {
	c := NewChanges()
	pre := &NamespaceDef{ID: 1, Name: "orig"}
	mid := &NamespaceDef{ID: 1, Name: "mid"}
	post := &NamespaceDef{ID: 1, Name: "final"}

	// Create then Update => single Create with final state.
	if err := c.RecordCreate(pre); err != nil {
		t.Fatal(err)
	}
	if err := c.RecordUpdate(pre, post); err != nil {
		t.Fatal(err)
	}
	ch, _ := c.Lookup(keycode.KindNamespace, 1)
	if ch.Op != OpCreate || ch.Post != Def(post) {
		t.Errorf("create+update = %+v", ch)
	}

	// Create then Delete => removed entirely.
	if err := c.RecordDelete(post); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Lookup(keycode.KindNamespace, 1); ok {
		t.Error("create+delete must vanish")
	}

	// Update then Update => earliest pre, latest post.
	c2 := NewChanges()
	c2.RecordUpdate(pre, mid)
	c2.RecordUpdate(mid, post)
	ch, _ = c2.Lookup(keycode.KindNamespace, 1)
	if ch.Op != OpUpdate || ch.Pre != Def(pre) || ch.Post != Def(post) {
		t.Errorf("update+update = %+v", ch)
	}

	// Update then Delete => Delete with original pre-state.
	c2.RecordDelete(post)
	ch, _ = c2.Lookup(keycode.KindNamespace, 1)
	if ch.Op != OpDelete || ch.Pre != Def(pre) || ch.Post != nil {
		t.Errorf("update+delete = %+v", ch)
	}

	// Anything after Delete => error.
	if err := c2.RecordUpdate(pre, post); diag.CodeOf(err) != diag.CatalogObjectDeleted {
		t.Errorf("update after delete = %v", err)
	}
	if err := c2.RecordDelete(pre); diag.CodeOf(err) != diag.CatalogObjectDeleted {
		t.Errorf("delete after delete = %v", err)
	}
}

func TestOverlayDeleteHidesObject(t *testing.T) {
	cat, m := newCatalog(t)

	cmd := m.BeginCommand()
	tx := cat.Begin(cmd)
	ns, _ := tx.CreateNamespace("c")
	def, _ := tx.CreateTable(ns.ID, "e", []ColumnDef{{Name: "id", Type: columnar.TypeInt4}})
	v, _ := cmd.Commit()
	tx.Commit(v)

	cmd2 := m.BeginCommand()
	tx2 := cat.Begin(cmd2)
	got, _ := tx2.ResolveTable(ns.ID, "e")
	if got == nil {
		t.Fatal("table must resolve before delete")
	}
	if err := tx2.Delete(got); err != nil {
		t.Fatal(err)
	}
	after, err := tx2.ResolveTable(ns.ID, "e")
	if err != nil || after != nil {
		t.Errorf("deleted object re-observed: %v %v", after, err)
	}
	if byID, _ := tx2.FindByID(keycode.KindTable, def.ID); byID != nil {
		t.Error("overlay delete must return nil by id")
	}
	cmd2.Rollback()
	tx2.Rollback()
}

func TestTimeTravelLookup(t *testing.T) {
	cat, m := newCatalog(t)

	cmd := m.BeginCommand()
	tx := cat.Begin(cmd)
	ns, _ := tx.CreateNamespace("c")
	v1, _ := cmd.Commit()
	tx.Commit(v1)

	cmd2 := m.BeginCommand()
	tx2 := cat.Begin(cmd2)
	def, _ := tx2.ResolveNamespace("c")
	if err := tx2.Delete(def); err != nil {
		t.Fatal(err)
	}
	v2, err := cmd2.Commit()
	if err != nil {
		t.Fatal(err)
	}
	tx2.Commit(v2)

	mat := cat.Materialized()
	if mat.FindByIDAt(keycode.KindNamespace, def.ID, v1) == nil {
		t.Error("namespace must be visible at its creation version")
	}
	if mat.FindByIDAt(keycode.KindNamespace, def.ID, v2) != nil {
		t.Error("namespace must be gone at the deletion version")
	}
}

func TestMaterializeFromStorage(t *testing.T) {
	backend, err := storage.Open(storage.Config{Mode: storage.ModeMemory})
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close()
	store := mvcc.NewStore(backend)

	m := txn.NewManager(store, nil)
	cat := New(m)
	cmd := m.BeginCommand()
	tx := cat.Begin(cmd)
	ns, _ := tx.CreateNamespace("c")
	tbl, _ := tx.CreateTable(ns.ID, "e", []ColumnDef{{Name: "id", Type: columnar.TypeInt4}})
	v, _ := cmd.Commit()
	tx.Commit(v)
	m.Close()

	// Fresh manager + catalog over the same storage.
	m2 := txn.NewManager(store, nil)
	defer m2.Close()
	if err := m2.Recover(); err != nil {
		t.Fatal(err)
	}
	cat2 := New(m2)
	if err := cat2.Materialize(); err != nil {
		t.Fatal(err)
	}
	got := cat2.Materialized().FindByNameAt(keycode.KindTable, ns.ID, "e", m2.LastCommitted())
	if got == nil || got.ObjectID() != tbl.ID {
		t.Errorf("materialized lookup after restart = %v", got)
	}
}

func TestSchemaByFingerprint(t *testing.T) {
	cat, m := newCatalog(t)
	cmd := m.BeginCommand()
	tx := cat.Begin(cmd)
	ns, _ := tx.CreateNamespace("c")
	tbl, err := tx.CreateTable(ns.ID, "e", []ColumnDef{{Name: "id", Type: columnar.TypeInt4}})
	if err != nil {
		t.Fatal(err)
	}
	l, err := tx.FindSchemaByFingerprint(tbl.Fingerprint)
	if err != nil || l == nil {
		t.Fatalf("schema lookup = %v %v", l, err)
	}
	if l.Fingerprint() != tbl.Fingerprint {
		t.Error("fingerprint mismatch")
	}
	cmd.Rollback()
}

func TestSequenceGenerators(t *testing.T) {
	_, m := newCatalog(t)
	single := m.Single()
	key := keycode.SequenceKey{ID: 99}.Encode()

	for want := int32(1); want <= 5; want++ {
		got, err := NextInt32(single, key, nil, 1)
		if err != nil || got != want {
			t.Fatalf("next = %d, %v (want %d)", got, err, want)
		}
	}

	// An explicit default is honored on first use, including zero.
	defKey := keycode.SequenceKey{ID: 98}.Encode()
	hundred := int32(100)
	if got, err := NextInt32(single, defKey, &hundred, 1); err != nil || got != 100 {
		t.Fatalf("default = %d, %v", got, err)
	}
	zeroKey := keycode.SequenceKey{ID: 97}.Encode()
	zero := int32(0)
	if got, err := NextInt32(single, zeroKey, &zero, 1); err != nil || got != 0 {
		t.Fatalf("zero default = %d, %v", got, err)
	}
	if got, _ := NextInt32(single, zeroKey, &zero, 1); got != 1 {
		t.Errorf("after zero default = %d", got)
	}

	// Exhaustion at int32 max.
	if err := SetInt32(single, key, 1<<31-1); err != nil {
		t.Fatal(err)
	}
	if _, err := NextInt32(single, key, nil, 1); diag.CodeOf(err) != diag.SequenceExhausted {
		t.Errorf("exhausted sequence = %v", err)
	}

	// Uint64 batched allocation.
	ukey := keycode.SequenceKey{ID: 100}.Encode()
	first, err := NextUint64(single, ukey, 3)
	if err != nil || first != 1 {
		t.Fatalf("first batch = %d, %v", first, err)
	}
	second, _ := NextUint64(single, ukey, 1)
	if second != 4 {
		t.Errorf("second allocation = %d", second)
	}
}

func TestAutoIncrementCounters(t *testing.T) {
	cat, _ := newCatalog(t)
	for want := int32(1); want <= 3; want++ {
		got, err := cat.NextAutoIncrement(5, 0)
		if err != nil || got != want {
			t.Fatalf("next = %d, %v (want %d)", got, err, want)
		}
	}
	// Counters are independent per (primitive, column).
	if got, _ := cat.NextAutoIncrement(5, 1); got != 1 {
		t.Errorf("column 1 counter = %d", got)
	}
	if got, _ := cat.NextAutoIncrement(6, 0); got != 1 {
		t.Errorf("primitive 6 counter = %d", got)
	}
}

func TestRowNumberAllocation(t *testing.T) {
	cat, _ := newCatalog(t)
	first, err := cat.NextRowNumbers(7, 10)
	if err != nil || first != 1 {
		t.Fatalf("first = %d %v", first, err)
	}
	next, _ := cat.NextRowNumbers(7, 1)
	if next != 11 {
		t.Errorf("next = %d", next)
	}
	other, _ := cat.NextRowNumbers(8, 1)
	if other != 1 {
		t.Errorf("per-primitive sequences must be independent, got %d", other)
	}
}
