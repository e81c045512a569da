// Package catalog maintains the materialized, versioned index of schema
// objects: namespaces, tables, views, ring buffers, dictionaries,
// series, flows, sum types, security policies, and schema layouts.
//
// Two indexes exist per object kind: id -> version chain of definitions,
// and (parent namespace, name) -> id for resolution. Lookups are by
// commit version; a per-transaction overlay tracks uncommitted catalog
// mutations and replays them into the materialized maps at commit.
package catalog

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/SimonWaldherr/flowDB/internal/columnar"
	"github.com/SimonWaldherr/flowDB/internal/keycode"
	"github.com/SimonWaldherr/flowDB/internal/schema"
)

// Def is a catalog object definition. Identity is the (kind, id) pair;
// names are unique within the parent namespace.
type Def interface {
	ObjectID() uint64
	ObjectKind() keycode.Kind
	Parent() uint64 // parent namespace id; 0 for namespaces themselves
	ObjectName() string
}

// ColumnDef is one column of a relational primitive.
type ColumnDef struct {
	Name     string
	Type     columnar.Type
	Policy   OverflowPolicy
	AutoIncr bool
}

// OverflowPolicy governs numeric overflow and failed coercion per
// column.
type OverflowPolicy uint8

const (
	// PolicyError aborts the statement.
	PolicyError OverflowPolicy = iota
	// PolicySaturate clamps to the type bounds.
	PolicySaturate
	// PolicyUndefined stores undefined instead of aborting.
	PolicyUndefined
)

// NamespaceDef names a namespace.
type NamespaceDef struct {
	ID   uint64
	Name string
}

func (d *NamespaceDef) ObjectID() uint64         { return d.ID }
func (d *NamespaceDef) ObjectKind() keycode.Kind { return keycode.KindNamespace }
func (d *NamespaceDef) Parent() uint64           { return 0 }
func (d *NamespaceDef) ObjectName() string       { return d.Name }

// TableDef describes a base table.
type TableDef struct {
	ID          uint64
	Namespace   uint64
	Name        string
	Columns     []ColumnDef
	Fingerprint uint64
}

func (d *TableDef) ObjectID() uint64         { return d.ID }
func (d *TableDef) ObjectKind() keycode.Kind { return keycode.KindTable }
func (d *TableDef) Parent() uint64           { return d.Namespace }
func (d *TableDef) ObjectName() string       { return d.Name }

// Layout derives the row layout of the table's columns.
func (d *TableDef) Layout() (*schema.Layout, error) {
	return LayoutFor(d.Columns)
}

// LayoutFor builds a row layout from column definitions.
func LayoutFor(cols []ColumnDef) (*schema.Layout, error) {
	fields := make([]schema.Field, len(cols))
	for i, c := range cols {
		fields[i] = schema.Field{Name: c.Name, Type: c.Type}
	}
	return schema.NewLayout(fields)
}

// ViewDef describes a view over a stored pipeline definition.
type ViewDef struct {
	ID        uint64
	Namespace uint64
	Name      string
	Query     string
	Columns   []ColumnDef
}

func (d *ViewDef) ObjectID() uint64         { return d.ID }
func (d *ViewDef) ObjectKind() keycode.Kind { return keycode.KindView }
func (d *ViewDef) Parent() uint64           { return d.Namespace }
func (d *ViewDef) ObjectName() string       { return d.Name }

// RingBufferDef describes a capped table that overwrites oldest rows.
type RingBufferDef struct {
	ID        uint64
	Namespace uint64
	Name      string
	Columns   []ColumnDef
	Capacity  uint64
}

func (d *RingBufferDef) ObjectID() uint64         { return d.ID }
func (d *RingBufferDef) ObjectKind() keycode.Kind { return keycode.KindRingBuffer }
func (d *RingBufferDef) Parent() uint64           { return d.Namespace }
func (d *RingBufferDef) ObjectName() string       { return d.Name }

// DictionaryDef describes an interning dictionary.
type DictionaryDef struct {
	ID        uint64
	Namespace uint64
	Name      string
	ValueType columnar.Type
}

func (d *DictionaryDef) ObjectID() uint64         { return d.ID }
func (d *DictionaryDef) ObjectKind() keycode.Kind { return keycode.KindDictionary }
func (d *DictionaryDef) Parent() uint64           { return d.Namespace }
func (d *DictionaryDef) ObjectName() string       { return d.Name }

// SeriesDef describes a time-ordered append-only series.
type SeriesDef struct {
	ID        uint64
	Namespace uint64
	Name      string
	Columns   []ColumnDef
}

func (d *SeriesDef) ObjectID() uint64         { return d.ID }
func (d *SeriesDef) ObjectKind() keycode.Kind { return keycode.KindSeries }
func (d *SeriesDef) Parent() uint64           { return d.Namespace }
func (d *SeriesDef) ObjectName() string       { return d.Name }

// FlowDef describes a registered dataflow graph.
type FlowDef struct {
	ID        uint64
	Namespace uint64
	Name      string
	Nodes     []uint64
}

func (d *FlowDef) ObjectID() uint64         { return d.ID }
func (d *FlowDef) ObjectKind() keycode.Kind { return keycode.KindFlow }
func (d *FlowDef) Parent() uint64           { return d.Namespace }
func (d *FlowDef) ObjectName() string       { return d.Name }

// SumTypeDef describes a tagged union type.
type SumTypeDef struct {
	ID        uint64
	Namespace uint64
	Name      string
	Variants  []string
}

func (d *SumTypeDef) ObjectID() uint64         { return d.ID }
func (d *SumTypeDef) ObjectKind() keycode.Kind { return keycode.KindSumType }
func (d *SumTypeDef) Parent() uint64           { return d.Namespace }
func (d *SumTypeDef) ObjectName() string       { return d.Name }

// PolicyDef describes a security policy attached to a primitive.
type PolicyDef struct {
	ID        uint64
	Namespace uint64
	Name      string
	Target    uint64 // object id the policy guards
	Rule      string
}

func (d *PolicyDef) ObjectID() uint64         { return d.ID }
func (d *PolicyDef) ObjectKind() keycode.Kind { return keycode.KindPolicy }
func (d *PolicyDef) Parent() uint64           { return d.Namespace }
func (d *PolicyDef) ObjectName() string       { return d.Name }

// SchemaDef persists a row layout keyed by its fingerprint so readers
// can resolve rows written under older table schemas.
type SchemaDef struct {
	ID          uint64
	Fingerprint uint64
	Fields      []schema.Field
}

func (d *SchemaDef) ObjectID() uint64         { return d.ID }
func (d *SchemaDef) ObjectKind() keycode.Kind { return keycode.KindSchemaLayout }
func (d *SchemaDef) Parent() uint64           { return 0 }
func (d *SchemaDef) ObjectName() string       { return fmt.Sprintf("%016x", d.Fingerprint) }

func init() {
	gob.Register(&NamespaceDef{})
	gob.Register(&TableDef{})
	gob.Register(&ViewDef{})
	gob.Register(&RingBufferDef{})
	gob.Register(&DictionaryDef{})
	gob.Register(&SeriesDef{})
	gob.Register(&FlowDef{})
	gob.Register(&SumTypeDef{})
	gob.Register(&PolicyDef{})
	gob.Register(&SchemaDef{})
}

// defEnvelope carries the interface through gob.
type defEnvelope struct {
	Def Def
}

// EncodeDef serializes a definition for storage.
func EncodeDef(d Def) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(defEnvelope{Def: d}); err != nil {
		return nil, fmt.Errorf("encode %s def: %w", d.ObjectKind(), err)
	}
	return buf.Bytes(), nil
}

// DecodeDef deserializes a stored definition.
func DecodeDef(raw []byte) (Def, error) {
	var env defEnvelope
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode def: %w", err)
	}
	return env.Def, nil
}

// CatalogKinds lists every object kind the catalog indexes.
var CatalogKinds = []keycode.Kind{
	keycode.KindNamespace,
	keycode.KindTable,
	keycode.KindView,
	keycode.KindRingBuffer,
	keycode.KindDictionary,
	keycode.KindSeries,
	keycode.KindFlow,
	keycode.KindSumType,
	keycode.KindPolicy,
	keycode.KindSchemaLayout,
}
