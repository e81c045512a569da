package storage

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"
)

// SqliteBackend persists tables as rows of per-table SQLite relations.
// A single writer connection applies batches inside one transaction; a
// pooled set of reader connections serves gets and range scans.
type SqliteBackend struct {
	writer *sql.DB // MaxOpenConns(1): the single writer
	reader *sql.DB

	mu     sync.RWMutex
	tables map[string]bool

	batchSize  int
	applyCount atomic.Int64
	scanCount  atomic.Int64
}

var tableNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// NewSqliteBackend opens (or creates) the database file at cfg.Path. An
// empty path opens the shared-cache in-memory database "flowdb", which
// every backend opened with an empty path in this process shares.
func NewSqliteBackend(cfg Config) (*SqliteBackend, error) {
	dsn := cfg.Path
	if dsn == "" {
		dsn = "file:flowdb?mode=memory&cache=shared"
	}
	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite writer: %w", err)
	}
	writer.SetMaxOpenConns(1)
	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open sqlite reader: %w", err)
	}

	if _, err := writer.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		writer.Close()
		reader.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}

	b := &SqliteBackend{
		writer:    writer,
		reader:    reader,
		tables:    make(map[string]bool),
		batchSize: cfg.BatchSize,
	}
	if b.batchSize <= 0 {
		b.batchSize = DefaultBatchSize
	}
	if err := b.loadTables(); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *SqliteBackend) loadTables() error {
	rows, err := b.reader.Query(
		`SELECT name FROM sqlite_master WHERE type='table' AND name LIKE 'kv_%'`)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		b.tables[strings.TrimPrefix(name, "kv_")] = true
	}
	return rows.Err()
}

func (b *SqliteBackend) rel(table string) (string, error) {
	if !tableNameRe.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return `"kv_` + table + `"`, nil
}

func (b *SqliteBackend) checkTable(table string) (string, error) {
	rel, err := b.rel(table)
	if err != nil {
		return "", err
	}
	b.mu.RLock()
	ok := b.tables[table]
	b.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown table %q", table)
	}
	return rel, nil
}

// Get returns the entry stored under key.
func (b *SqliteBackend) Get(table string, key []byte) (Entry, bool, error) {
	rel, err := b.checkTable(table)
	if err != nil {
		return Entry{}, false, err
	}
	var (
		value []byte
		del   int
	)
	row := b.reader.QueryRow(`SELECT v, del FROM `+rel+` WHERE k = ?`, key)
	switch err := row.Scan(&value, &del); err {
	case nil:
	case sql.ErrNoRows:
		return Entry{}, false, nil
	default:
		return Entry{}, false, fmt.Errorf("get: %w", err)
	}
	e := Entry{Key: append([]byte(nil), key...)}
	if del == 0 {
		if value == nil {
			value = []byte{}
		}
		e.Value = value
	}
	return e, true, nil
}

// Contains reports whether any entry exists under key.
func (b *SqliteBackend) Contains(table string, key []byte) (bool, error) {
	rel, err := b.checkTable(table)
	if err != nil {
		return false, err
	}
	var one int
	row := b.reader.QueryRow(`SELECT 1 FROM `+rel+` WHERE k = ?`, key)
	switch err := row.Scan(&one); err {
	case nil:
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, fmt.Errorf("contains: %w", err)
	}
}

// Apply writes all puts in one SQLite transaction.
func (b *SqliteBackend) Apply(batch map[string][]Put) error {
	tx, err := b.writer.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for table, puts := range batch {
		rel, err := b.checkTable(table)
		if err != nil {
			return err
		}
		stmt, err := tx.Prepare(
			`INSERT INTO ` + rel + ` (k, v, del) VALUES (?, ?, ?)
			 ON CONFLICT(k) DO UPDATE SET v = excluded.v, del = excluded.del`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		for _, p := range puts {
			del := 0
			value := p.Value
			if value == nil {
				del = 1
				value = []byte{}
			}
			if _, err := stmt.Exec(p.Key, value, del); err != nil {
				stmt.Close()
				return fmt.Errorf("apply put: %w", err)
			}
		}
		stmt.Close()
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	b.applyCount.Add(1)
	return nil
}

// Range scans [start, end) ascending.
func (b *SqliteBackend) Range(table string, start, end []byte, limit int) (RangeBatch, error) {
	return b.scan(table, start, end, limit, false)
}

// RangeRev scans [start, end) descending.
func (b *SqliteBackend) RangeRev(table string, start, end []byte, limit int) (RangeBatch, error) {
	return b.scan(table, start, end, limit, true)
}

func (b *SqliteBackend) scan(table string, start, end []byte, limit int, reverse bool) (RangeBatch, error) {
	rel, err := b.checkTable(table)
	if err != nil {
		return RangeBatch{}, err
	}
	if limit <= 0 {
		limit = b.batchSize
	}
	b.scanCount.Add(1)

	var (
		where []string
		args  []any
	)
	if start != nil {
		where = append(where, "k >= ?")
		args = append(args, start)
	}
	if end != nil {
		where = append(where, "k < ?")
		args = append(args, end)
	}
	q := `SELECT k, v, del FROM ` + rel
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	if reverse {
		q += ` ORDER BY k DESC`
	} else {
		q += ` ORDER BY k ASC`
	}
	// Fetch one extra row to learn whether more remain.
	q += fmt.Sprintf(` LIMIT %d`, limit+1)

	rows, err := b.reader.Query(q, args...)
	if err != nil {
		return RangeBatch{}, fmt.Errorf("range: %w", err)
	}
	defer rows.Close()

	var batch RangeBatch
	for rows.Next() {
		var (
			k, v []byte
			del  int
		)
		if err := rows.Scan(&k, &v, &del); err != nil {
			return RangeBatch{}, err
		}
		if len(batch.Entries) == limit {
			batch.HasMore = true
			break
		}
		e := Entry{Key: k}
		if del == 0 {
			if v == nil {
				v = []byte{}
			}
			e.Value = v
		}
		batch.Entries = append(batch.Entries, e)
	}
	return batch, rows.Err()
}

// EnsureTable creates the backing relation if absent.
func (b *SqliteBackend) EnsureTable(table string) error {
	rel, err := b.rel(table)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tables[table] {
		return nil
	}
	_, err = b.writer.Exec(
		`CREATE TABLE IF NOT EXISTS ` + rel + ` (
			k   BLOB PRIMARY KEY,
			v   BLOB NOT NULL,
			del INTEGER NOT NULL DEFAULT 0
		) WITHOUT ROWID`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	b.tables[table] = true
	return nil
}

// ClearTable removes every entry of the table.
func (b *SqliteBackend) ClearTable(table string) error {
	rel, err := b.checkTable(table)
	if err != nil {
		return err
	}
	if _, err := b.writer.Exec(`DELETE FROM ` + rel); err != nil {
		return fmt.Errorf("clear table: %w", err)
	}
	return nil
}

// Mode returns ModeSqlite.
func (b *SqliteBackend) Mode() Mode { return ModeSqlite }

// Stats returns operational statistics.
func (b *SqliteBackend) Stats() Stats {
	b.mu.RLock()
	tables := len(b.tables)
	b.mu.RUnlock()
	return Stats{
		Mode:       ModeSqlite,
		Tables:     tables,
		BatchSize:  b.batchSize,
		ApplyCount: b.applyCount.Load(),
		ScanCount:  b.scanCount.Load(),
	}
}

// Close closes both connection pools.
func (b *SqliteBackend) Close() error {
	rerr := b.reader.Close()
	werr := b.writer.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
