// Package storage persists an unordered family of logical tables, each a
// sorted map from byte keys to byte values. These tables are storage
// namespaces, not relational tables; the layers above decide what the
// bytes mean.
//
// Three backends behave identically: an in-memory sorted store, a
// SQLite-backed page store, and a bbolt single-file B+tree. Selection is
// a runtime decision via Config.
package storage

// Core storage tables. Names are part of the on-disk layout of the
// persistent backends and must never be renamed.
const (
	// TableMulti holds all version-suffixed MVCC state: user rows,
	// catalog objects, dictionary entries, flow nodes.
	// key: [encoded_key | version_be_u64], value: encoded row or
	// tombstone.
	TableMulti = "multi"

	// TableSingle holds single-version engine metadata with
	// last-write-wins semantics (sequence counters, layout cache).
	TableSingle = "single"

	// TableCdc holds serialized change-data-capture records.
	// key: version_be_u64, value: encoded CDC record.
	TableCdc = "cdc"
)

// CoreTables lists every table a fresh database creates at startup.
var CoreTables = []string{
	TableMulti,
	TableSingle,
	TableCdc,
}
