package catalog

import (
	"github.com/SimonWaldherr/flowDB/internal/diag"
	"github.com/SimonWaldherr/flowDB/internal/keycode"
)

// ChangeOp discriminates pending catalog mutations.
type ChangeOp uint8

const (
	OpCreate ChangeOp = iota
	OpUpdate
	OpDelete
)

// Change is one pending catalog mutation of an object within a
// transaction: the state before the first touch and after the last.
type Change struct {
	Pre  Def // nil for creates
	Post Def // nil for deletes
	Op   ChangeOp
}

// Changes is the per-transaction catalog overlay. Lookups consult it
// before the materialized catalog; at commit its entries replay into
// the materialized maps at the commit version, on rollback they are
// discarded.
type Changes struct {
	pending map[keycode.Kind]map[uint64]*Change
}

// NewChanges returns an empty overlay.
func NewChanges() *Changes {
	return &Changes{pending: make(map[keycode.Kind]map[uint64]*Change)}
}

func (c *Changes) kindMap(kind keycode.Kind) map[uint64]*Change {
	m, ok := c.pending[kind]
	if !ok {
		m = make(map[uint64]*Change)
		c.pending[kind] = m
	}
	return m
}

// Lookup returns (change, true) when the transaction has touched
// (kind, id). A recorded delete reports a nil-Post change, so callers
// observe the object as gone.
func (c *Changes) Lookup(kind keycode.Kind, id uint64) (*Change, bool) {
	ch, ok := c.pending[kind][id]
	return ch, ok
}

// LookupByName scans pending changes for a live object with the given
// name.
func (c *Changes) LookupByName(kind keycode.Kind, ns uint64, name string) (Def, bool) {
	for _, ch := range c.pending[kind] {
		if ch.Post != nil && ch.Post.Parent() == ns && ch.Post.ObjectName() == name {
			return ch.Post, true
		}
	}
	return nil, false
}

// RecordCreate tracks a freshly created object.
func (c *Changes) RecordCreate(def Def) error {
	m := c.kindMap(def.ObjectKind())
	if prev, ok := m[def.ObjectID()]; ok {
		if prev.Op == OpDelete {
			return diag.New(diag.CatalogObjectDeleted,
				"cannot recreate %s %q deleted in the same transaction", def.ObjectKind(), def.ObjectName())
		}
		return diag.New(diag.CatalogPendingConflict,
			"%s %q already pending in transaction", def.ObjectKind(), def.ObjectName())
	}
	m[def.ObjectID()] = &Change{Post: def, Op: OpCreate}
	return nil
}

// RecordUpdate tracks an update, coalescing with the pending change:
//
//	Create then Update -> Create with final state
//	Update then Update -> Update with earliest pre, latest post
//	anything after Delete -> error
func (c *Changes) RecordUpdate(pre, post Def) error {
	m := c.kindMap(post.ObjectKind())
	prev, ok := m[post.ObjectID()]
	if !ok {
		m[post.ObjectID()] = &Change{Pre: pre, Post: post, Op: OpUpdate}
		return nil
	}
	switch prev.Op {
	case OpCreate:
		prev.Post = post
	case OpUpdate:
		prev.Post = post // keep earliest Pre
	case OpDelete:
		return diag.New(diag.CatalogObjectDeleted,
			"cannot update %s deleted in the same transaction", post.ObjectKind())
	}
	return nil
}

// RecordDelete tracks a delete, coalescing with the pending change:
//
//	Create then Delete -> removed entirely (nothing emitted at commit)
//	Update then Delete -> Delete with original pre-state
//	Delete then Delete -> error
func (c *Changes) RecordDelete(pre Def) error {
	kind := pre.ObjectKind()
	m := c.kindMap(kind)
	prev, ok := m[pre.ObjectID()]
	if !ok {
		m[pre.ObjectID()] = &Change{Pre: pre, Op: OpDelete}
		return nil
	}
	switch prev.Op {
	case OpCreate:
		delete(m, pre.ObjectID())
	case OpUpdate:
		prev.Post = nil
		prev.Op = OpDelete
	case OpDelete:
		return diag.New(diag.CatalogObjectDeleted,
			"cannot delete %s already deleted in the same transaction", kind)
	}
	return nil
}

// Replay publishes every pending change into the materialized catalog
// at the commit version.
func (c *Changes) Replay(mat *Materialized, version uint64) {
	for kind, m := range c.pending {
		for id, ch := range m {
			mat.Set(kind, id, version, ch.Post)
		}
	}
}

// Empty reports whether no catalog mutations are pending.
func (c *Changes) Empty() bool {
	for _, m := range c.pending {
		if len(m) > 0 {
			return false
		}
	}
	return true
}
