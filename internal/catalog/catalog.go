package catalog

import (
	"encoding/binary"

	"github.com/SimonWaldherr/flowDB/internal/diag"
	"github.com/SimonWaldherr/flowDB/internal/keycode"
	"github.com/SimonWaldherr/flowDB/internal/schema"
	"github.com/SimonWaldherr/flowDB/internal/txn"
)

// objectIDSequence is the single-version key of the global object id
// counter.
var objectIDSequence = keycode.SequenceKey{ID: 1}.Encode()

// Catalog ties the materialized index to the transaction manager:
// definitions persist through command transactions, materialize on
// open, and replay into the in-memory maps at commit.
type Catalog struct {
	mat     *Materialized
	manager *txn.Manager
}

// New creates a catalog over the manager.
func New(manager *txn.Manager) *Catalog {
	return &Catalog{mat: NewMaterialized(), manager: manager}
}

// Materialized exposes the in-memory index.
func (c *Catalog) Materialized() *Materialized { return c.mat }

// Materialize loads every persisted object into the in-memory index,
// keyed by the commit version each definition was written at.
func (c *Catalog) Materialize() error {
	q := c.manager.BeginQuery()
	defer q.Close()

	for _, kind := range CatalogKinds {
		start, end := keycode.ObjectRange(kind)
		it := q.Range(start, end)
		for it.Next() {
			e := it.Entry()
			def, err := DecodeDef(e.Values)
			if err != nil {
				return diag.New(diag.Internal, "corrupt catalog entry").WithCause(err)
			}
			c.mat.Set(kind, def.ObjectID(), e.Version, def)
		}
		if err := it.Err(); err != nil {
			return err
		}
	}
	return nil
}

// AllocateID returns the next object id.
func (c *Catalog) AllocateID() (uint64, error) {
	return NextUint64(c.manager.Single(), objectIDSequence, 1)
}

// NextRowNumbers allocates count consecutive row numbers for a
// primitive and returns the first.
func (c *Catalog) NextRowNumbers(primitive uint64, count uint64) (uint64, error) {
	key := keycode.RowSequenceKey{Primitive: primitive}.Encode()
	return NextUint64(c.manager.Single(), key, count)
}

// NextAutoIncrement advances the auto-increment counter of one column
// and returns the new value. The counter starts at 1.
func (c *Catalog) NextAutoIncrement(primitive uint64, column int) (int32, error) {
	key := keycode.ColumnSequenceKey{Primitive: primitive, Column: uint64(column)}.Encode()
	return NextInt32(c.manager.Single(), key, nil, 1)
}

// Begin opens the per-transaction catalog view bound to cmd.
func (c *Catalog) Begin(cmd *txn.Command) *Tx {
	return &Tx{cat: c, cmd: cmd, changes: NewChanges()}
}

// Tx is a transaction's view of the catalog: its own uncommitted
// overlay first, the materialized index at the read version second,
// storage third.
type Tx struct {
	cat     *Catalog
	cmd     *txn.Command
	changes *Changes
}

// Changes exposes the overlay (commit replay, tests).
func (t *Tx) Changes() *Changes { return t.changes }

// FindByID resolves (kind, id) through overlay, materialized index and
// storage, in that order. nil when absent or deleted.
func (t *Tx) FindByID(kind keycode.Kind, id uint64) (Def, error) {
	if ch, ok := t.changes.Lookup(kind, id); ok {
		return ch.Post, nil
	}
	if def := t.cat.mat.FindByIDAt(kind, id, t.cmd.ReadVersion()); def != nil {
		return def, nil
	}
	// Storage fallback: the materialized index is rebuilt on open, but
	// a definition written by a concurrent commit can be resolved here.
	v, err := t.cmd.Get(keycode.ObjectKey{Kind: kind, ID: id}.Encode())
	if err != nil || v == nil {
		return nil, err
	}
	return DecodeDef(v.Values)
}

// FindByName resolves (kind, namespace, name) at the read version.
func (t *Tx) FindByName(kind keycode.Kind, ns uint64, name string) (Def, error) {
	if def, ok := t.changes.LookupByName(kind, ns, name); ok {
		return def, nil
	}
	if def := t.cat.mat.FindByNameAt(kind, ns, name, t.cmd.ReadVersion()); def != nil {
		// The overlay may have deleted or renamed it.
		if ch, ok := t.changes.Lookup(kind, def.ObjectID()); ok {
			if ch.Post == nil || ch.Post.ObjectName() != name || ch.Post.Parent() != ns {
				return nil, nil
			}
			return ch.Post, nil
		}
		return def, nil
	}
	// Storage fallback through the name index.
	v, err := t.cmd.Get(keycode.NameIndexKey{Kind: kind, Namespace: ns, Name: name}.Encode())
	if err != nil || v == nil || len(v.Values) != 8 {
		return nil, err
	}
	return t.FindByID(kind, binary.BigEndian.Uint64(v.Values))
}

// Create persists a new definition and tracks it in the overlay. The
// name must be free within its parent.
func (t *Tx) Create(def Def) error {
	kind := def.ObjectKind()
	if existing, err := t.FindByName(kind, def.Parent(), def.ObjectName()); err != nil {
		return err
	} else if existing != nil {
		return diag.New(diag.CatalogAlreadyExists, "%s %q already exists", kind, def.ObjectName()).
			WithLabel("name taken").
			WithHelp("drop the existing object or choose another name")
	}
	if err := t.changes.RecordCreate(def); err != nil {
		return err
	}
	return t.persist(def)
}

// Update persists a changed definition (rename included).
func (t *Tx) Update(pre, post Def) error {
	if pre.ObjectID() != post.ObjectID() || pre.ObjectKind() != post.ObjectKind() {
		return diag.New(diag.Internal, "update must keep object identity")
	}
	if err := t.changes.RecordUpdate(pre, post); err != nil {
		return err
	}
	if pre.ObjectName() != post.ObjectName() || pre.Parent() != post.Parent() {
		old := keycode.NameIndexKey{Kind: pre.ObjectKind(), Namespace: pre.Parent(), Name: pre.ObjectName()}
		if err := t.cmd.Remove(old.Encode()); err != nil {
			return err
		}
	}
	return t.persist(post)
}

// Delete removes a definition: tombstone in storage, delete in overlay.
func (t *Tx) Delete(def Def) error {
	if err := t.changes.RecordDelete(def); err != nil {
		return err
	}
	key := keycode.ObjectKey{Kind: def.ObjectKind(), ID: def.ObjectID()}
	if err := t.cmd.Remove(key.Encode()); err != nil {
		return err
	}
	name := keycode.NameIndexKey{Kind: def.ObjectKind(), Namespace: def.Parent(), Name: def.ObjectName()}
	return t.cmd.Remove(name.Encode())
}

func (t *Tx) persist(def Def) error {
	raw, err := EncodeDef(def)
	if err != nil {
		return err
	}
	key := keycode.ObjectKey{Kind: def.ObjectKind(), ID: def.ObjectID()}
	if err := t.cmd.Set(key.Encode(), raw); err != nil {
		return err
	}
	name := keycode.NameIndexKey{Kind: def.ObjectKind(), Namespace: def.Parent(), Name: def.ObjectName()}
	return t.cmd.Set(name.Encode(), binary.BigEndian.AppendUint64(nil, def.ObjectID()))
}

// Commit replays the overlay into the materialized catalog at the
// commit version. Call after the storage commit succeeded.
func (t *Tx) Commit(version uint64) {
	t.changes.Replay(t.cat.mat, version)
}

// Rollback discards the overlay.
func (t *Tx) Rollback() {
	t.changes = NewChanges()
}

// ---- convenience operations used by the engine ----

// ResolveNamespace finds a namespace by name.
func (t *Tx) ResolveNamespace(name string) (*NamespaceDef, error) {
	def, err := t.FindByName(keycode.KindNamespace, 0, name)
	if err != nil || def == nil {
		return nil, err
	}
	return def.(*NamespaceDef), nil
}

// CreateNamespace allocates an id and creates a namespace.
func (t *Tx) CreateNamespace(name string) (*NamespaceDef, error) {
	id, err := t.cat.AllocateID()
	if err != nil {
		return nil, err
	}
	def := &NamespaceDef{ID: id, Name: name}
	if err := t.Create(def); err != nil {
		return nil, err
	}
	return def, nil
}

// ResolveTable finds a table by namespace and name.
func (t *Tx) ResolveTable(ns uint64, name string) (*TableDef, error) {
	def, err := t.FindByName(keycode.KindTable, ns, name)
	if err != nil || def == nil {
		return nil, err
	}
	return def.(*TableDef), nil
}

// CreateTable allocates an id, computes the layout fingerprint,
// registers the schema for evolution, and creates the table.
func (t *Tx) CreateTable(ns uint64, name string, cols []ColumnDef) (*TableDef, error) {
	layout, err := LayoutFor(cols)
	if err != nil {
		return nil, diag.New(diag.QuerySchemaMismatch, "invalid column list for table %q", name).WithCause(err)
	}
	id, err := t.cat.AllocateID()
	if err != nil {
		return nil, err
	}
	def := &TableDef{ID: id, Namespace: ns, Name: name, Columns: cols, Fingerprint: layout.Fingerprint()}
	if err := t.Create(def); err != nil {
		return nil, err
	}
	if err := t.EnsureSchema(layout); err != nil {
		return nil, err
	}
	return def, nil
}

// EnsureSchema persists the layout under its fingerprint if unseen.
func (t *Tx) EnsureSchema(l *schema.Layout) error {
	existing, err := t.FindByName(keycode.KindSchemaLayout, 0, (&SchemaDef{Fingerprint: l.Fingerprint()}).ObjectName())
	if err != nil || existing != nil {
		return err
	}
	id, err := t.cat.AllocateID()
	if err != nil {
		return err
	}
	return t.Create(&SchemaDef{ID: id, Fingerprint: l.Fingerprint(), Fields: l.Fields()})
}

// FindSchemaByFingerprint resolves a stored layout for schema
// evolution.
func (t *Tx) FindSchemaByFingerprint(fp uint64) (*schema.Layout, error) {
	def, err := t.FindByName(keycode.KindSchemaLayout, 0, (&SchemaDef{Fingerprint: fp}).ObjectName())
	if err != nil || def == nil {
		return nil, err
	}
	sd := def.(*SchemaDef)
	return schema.FromParts(sd.Fingerprint, sd.Fields)
}
