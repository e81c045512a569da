package storage

import (
	"fmt"
)

// Mode selects the storage strategy.
type Mode int

const (
	// ModeMemory keeps all data in RAM; fastest, no durability.
	ModeMemory Mode = iota

	// ModeSqlite stores tables as rows in a SQLite file via a single
	// writer connection and a pool of readers.
	ModeSqlite

	// ModeBolt stores tables as bbolt buckets in a single file.
	ModeBolt
)

// String returns a human-readable label for the Mode.
func (m Mode) String() string {
	switch m {
	case ModeMemory:
		return "memory"
	case ModeSqlite:
		return "sqlite"
	case ModeBolt:
		return "bolt"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a string representation back to a Mode. It is
// case-sensitive on the canonical names and returns an error for
// unknown values.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "memory", "mem", "":
		return ModeMemory, nil
	case "sqlite", "file":
		return ModeSqlite, nil
	case "bolt":
		return ModeBolt, nil
	default:
		return ModeMemory, fmt.Errorf("unknown storage mode %q (valid: memory, sqlite, bolt)", s)
	}
}

// Config configures a primitive backend.
type Config struct {
	// Mode selects the backend. Defaults to ModeMemory.
	Mode Mode

	// Path is the database file path. Required for ModeBolt; with an
	// empty path ModeSqlite opens an in-memory database.
	Path string

	// BatchSize caps entries returned per range call when the caller
	// passes no explicit limit. Zero means DefaultBatchSize.
	BatchSize int
}

// DefaultBatchSize is the per-call range batch cap.
const DefaultBatchSize = 1024

// Put is one write in an atomic batch. A nil Value stores a tombstone.
type Put struct {
	Key   []byte
	Value []byte
}

// Entry is one stored key/value pair. Value is nil for tombstones.
type Entry struct {
	Key   []byte
	Value []byte
}

// Tombstone reports whether the entry records a deletion marker.
func (e Entry) Tombstone() bool { return e.Value == nil }

// RangeBatch is one page of a range scan. HasMore is false only when the
// scan is known complete; a short batch alone does not imply completion.
type RangeBatch struct {
	Entries []Entry
	HasMore bool
}

// Stats provides observability into backend behaviour.
type Stats struct {
	Mode       Mode
	Tables     int
	Entries    int64
	BatchSize  int
	ApplyCount int64
	ScanCount  int64
}

// Backend abstracts the primitive byte store.
//
// All bounds are half-open: start is inclusive, end exclusive; a nil
// bound is unbounded. Range returns entries in ascending key order,
// RangeRev in descending order over the same bounds. Both return at most
// limit entries per call (limit <= 0 means the configured batch size);
// callers paginate by advancing the bound past the last returned key
// until HasMore is false.
type Backend interface {
	// Get returns the last committed entry for key. ok=false means the
	// key is absent; a present entry with nil Value is a tombstone.
	Get(table string, key []byte) (Entry, bool, error)

	// Contains reports whether any entry (including a tombstone) exists.
	Contains(table string, key []byte) (bool, error)

	// Apply writes all puts atomically across tables.
	Apply(batch map[string][]Put) error

	// Range scans [start, end) ascending.
	Range(table string, start, end []byte, limit int) (RangeBatch, error)

	// RangeRev scans [start, end) descending.
	RangeRev(table string, start, end []byte, limit int) (RangeBatch, error)

	// EnsureTable creates the table if absent. Idempotent.
	EnsureTable(table string) error

	// ClearTable removes every entry of the table.
	ClearTable(table string) error

	// Mode returns the Mode this backend implements.
	Mode() Mode

	// Stats returns operational statistics.
	Stats() Stats

	// Close releases resources; persistent backends flush first.
	Close() error
}

// Open constructs the backend selected by cfg and creates the core
// tables.
func Open(cfg Config) (Backend, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	var (
		b   Backend
		err error
	)
	switch cfg.Mode {
	case ModeMemory:
		b = NewMemoryBackend(cfg)
	case ModeSqlite:
		b, err = NewSqliteBackend(cfg)
	case ModeBolt:
		b, err = NewBoltBackend(cfg)
	default:
		err = fmt.Errorf("unknown storage mode %v", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}
	for _, table := range CoreTables {
		if err := b.EnsureTable(table); err != nil {
			b.Close()
			return nil, fmt.Errorf("ensure table %s: %w", table, err)
		}
	}
	return b, nil
}
