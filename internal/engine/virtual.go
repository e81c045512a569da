package engine

import (
	"encoding/binary"
	"sync"

	"github.com/SimonWaldherr/flowDB/internal/catalog"
	"github.com/SimonWaldherr/flowDB/internal/columnar"
	"github.com/SimonWaldherr/flowDB/internal/diag"
	"github.com/SimonWaldherr/flowDB/internal/keycode"
	"github.com/SimonWaldherr/flowDB/internal/storage"
)

// VirtualTable is a registered virtual-table implementation: system
// introspection surfaces that produce rows on demand instead of
// scanning storage.
type VirtualTable interface {
	// Definition returns the stable id, name and output headers.
	Definition() VirtualDef

	// Rows produces the full result for one statement execution.
	// Implementations see the live runtime, so they can inspect the
	// catalog and transaction state.
	Rows(rt *Runtime) (columnar.Columns, error)
}

// VirtualDef names a virtual table. Virtual tables live in the
// reserved "system" namespace.
type VirtualDef struct {
	ID      uint64
	Name    string
	Headers columnar.Headers
}

// VirtualRegistry keys virtual tables by name.
type VirtualRegistry struct {
	mu     sync.RWMutex
	tables map[string]VirtualTable
}

// NewVirtualRegistry returns a registry preloaded with the system
// tables.
func NewVirtualRegistry() *VirtualRegistry {
	r := &VirtualRegistry{tables: make(map[string]VirtualTable)}
	r.Register(systemTables{})
	r.Register(systemNamespaces{})
	r.Register(systemSequences{})
	r.Register(systemCdc{})
	return r
}

// Register adds a virtual table.
func (r *VirtualRegistry) Register(t VirtualTable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[t.Definition().Name] = t
}

// Lookup resolves a virtual table by name.
func (r *VirtualRegistry) Lookup(name string) VirtualTable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tables[name]
}

// VirtualScan emits the rows of a registered virtual table.
type VirtualScan struct {
	Name string

	table   VirtualTable
	headers columnar.Headers
	emitted bool
}

// Init resolves the registration.
func (s *VirtualScan) Init(rt *Runtime) error {
	s.table = rt.Virtual.Lookup(s.Name)
	if s.table == nil {
		return diag.New(diag.CatalogNotFound, "unknown virtual table %q", s.Name).
			WithHelp("virtual tables live in the system namespace")
	}
	s.headers = s.table.Definition().Headers
	return nil
}

// Headers returns the registered schema.
func (s *VirtualScan) Headers() columnar.Headers { return s.headers }

// Next emits the virtual rows once.
func (s *VirtualScan) Next(rt *Runtime) (*columnar.Batch, error) {
	if s.emitted {
		return nil, nil
	}
	s.emitted = true
	rows, err := s.table.Rows(rt)
	if err != nil {
		return nil, err
	}
	if rows.RowCount() == 0 {
		return nil, nil
	}
	return &rows, nil
}

// ---- built-in system tables ----

type systemTables struct{}

func (systemTables) Definition() VirtualDef {
	return VirtualDef{
		ID:   1,
		Name: "tables",
		Headers: columnar.Headers{
			{Name: "id", Type: columnar.TypeUint8},
			{Name: "namespace", Type: columnar.TypeUint8},
			{Name: "name", Type: columnar.TypeUtf8},
			{Name: "columns", Type: columnar.TypeInt8},
		},
	}
}

func (v systemTables) Rows(rt *Runtime) (columnar.Columns, error) {
	out := columnar.NewColumns(v.Definition().Headers)
	var err error
	rt.Catalog.Materialized().Each(keycode.KindTable, func(def catalog.Def) bool {
		t := def.(*catalog.TableDef)
		err = out.AppendRow(
			columnar.NewUint(columnar.TypeUint8, t.ID),
			columnar.NewUint(columnar.TypeUint8, t.Namespace),
			columnar.NewUtf8(t.Name),
			columnar.NewInt(columnar.TypeInt8, int64(len(t.Columns))),
		)
		return err == nil
	})
	return out, err
}

type systemNamespaces struct{}

func (systemNamespaces) Definition() VirtualDef {
	return VirtualDef{
		ID:   2,
		Name: "namespaces",
		Headers: columnar.Headers{
			{Name: "id", Type: columnar.TypeUint8},
			{Name: "name", Type: columnar.TypeUtf8},
		},
	}
}

func (v systemNamespaces) Rows(rt *Runtime) (columnar.Columns, error) {
	out := columnar.NewColumns(v.Definition().Headers)
	var err error
	rt.Catalog.Materialized().Each(keycode.KindNamespace, func(def catalog.Def) bool {
		ns := def.(*catalog.NamespaceDef)
		err = out.AppendRow(
			columnar.NewUint(columnar.TypeUint8, ns.ID),
			columnar.NewUtf8(ns.Name),
		)
		return err == nil
	})
	return out, err
}

// systemSequences surfaces the row-number and id counters from the
// single-version table.
type systemSequences struct{}

func (systemSequences) Definition() VirtualDef {
	return VirtualDef{
		ID:   4,
		Name: "sequences",
		Headers: columnar.Headers{
			{Name: "kind", Type: columnar.TypeUtf8},
			{Name: "owner", Type: columnar.TypeUint8},
			{Name: "value", Type: columnar.TypeUint8},
		},
	}
}

func (v systemSequences) Rows(rt *Runtime) (columnar.Columns, error) {
	out := columnar.NewColumns(v.Definition().Headers)
	backend := rt.Store.Backend()

	emit := func(kind string, owner uint64, raw []byte) error {
		var value uint64
		switch len(raw) {
		case 8:
			value = binary.BigEndian.Uint64(raw)
		case 4:
			value = uint64(binary.BigEndian.Uint32(raw))
		default:
			return nil
		}
		return out.AppendRow(
			columnar.NewUtf8(kind),
			columnar.NewUint(columnar.TypeUint8, owner),
			columnar.NewUint(columnar.TypeUint8, value),
		)
	}

	var start []byte
	for {
		batch, err := backend.Range(storage.TableSingle, start, nil, 0)
		if err != nil {
			return out, err
		}
		for _, e := range batch.Entries {
			if e.Tombstone() {
				continue
			}
			if sk, ok := keycode.DecodeSequenceKey(e.Key); ok {
				if err := emit("sequence", sk.ID, e.Value); err != nil {
					return out, err
				}
				continue
			}
			if ck, ok := keycode.DecodeColumnSequenceKey(e.Key); ok {
				if err := emit("auto_increment", ck.Primitive, e.Value); err != nil {
					return out, err
				}
				continue
			}
			if rk, ok := keycode.DecodeRowSequenceKey(e.Key); ok {
				if err := emit("row_numbers", rk.Primitive, e.Value); err != nil {
					return out, err
				}
			}
		}
		if !batch.HasMore || len(batch.Entries) == 0 {
			break
		}
		start = keycode.Successor(batch.Entries[len(batch.Entries)-1].Key)
	}
	return out, nil
}

// systemCdc surfaces the CDC log: one row per sequenced change, in
// version then sequence order, up to the transaction's read version.
type systemCdc struct{}

func (systemCdc) Definition() VirtualDef {
	return VirtualDef{
		ID:   3,
		Name: "cdc",
		Headers: columnar.Headers{
			{Name: "version", Type: columnar.TypeUint8},
			{Name: "sequence", Type: columnar.TypeUint2},
			{Name: "op", Type: columnar.TypeUtf8},
			{Name: "transaction", Type: columnar.TypeUtf8},
		},
	}
}

func (v systemCdc) Rows(rt *Runtime) (columnar.Columns, error) {
	out := columnar.NewColumns(v.Definition().Headers)
	start := uint64(1)
	for {
		batch, err := rt.Store.CdcRange(start, rt.Cmd.ReadVersion(), 0)
		if err != nil {
			return out, err
		}
		for _, rec := range batch.Records {
			for _, ch := range rec.Changes {
				if err := out.AppendRow(
					columnar.NewUint(columnar.TypeUint8, rec.Version),
					columnar.NewUint(columnar.TypeUint2, uint64(ch.Sequence)),
					columnar.NewUtf8(ch.Op.String()),
					columnar.NewUtf8(rec.TransactionID),
				); err != nil {
					return out, err
				}
			}
			start = rec.Version + 1
		}
		if !batch.HasMore || len(batch.Records) == 0 {
			break
		}
	}
	return out, nil
}
