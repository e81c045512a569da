package txn

import (
	"github.com/SimonWaldherr/flowDB/internal/mvcc"
)

// Query is a read-only snapshot transaction. It never conflicts and
// holds no write set; Close releases its hold on the GC watermark.
type Query struct {
	id          string
	manager     *Manager
	readVersion uint64
	closed      bool
}

// ID returns the transaction id.
func (q *Query) ID() string { return q.id }

// ReadVersion returns the snapshot version.
func (q *Query) ReadVersion() uint64 { return q.readVersion }

// Get resolves key at the snapshot version.
func (q *Query) Get(key []byte) (*mvcc.Versioned, error) {
	return q.manager.store.Get(key, q.readVersion)
}

// Contains reports whether key resolves to a live value.
func (q *Query) Contains(key []byte) (bool, error) {
	return q.manager.store.Contains(key, q.readVersion)
}

// Range scans [start, end) ascending at the snapshot version.
func (q *Query) Range(start, end []byte) *mvcc.Iter {
	return q.manager.store.Range(start, end, q.readVersion)
}

// RangeRev scans [start, end) descending at the snapshot version.
func (q *Query) RangeRev(start, end []byte) *mvcc.Iter {
	return q.manager.store.RangeRev(start, end, q.readVersion)
}

// Scan iterates the whole keyspace at the snapshot version.
func (q *Query) Scan() *mvcc.Iter {
	return q.manager.store.Scan(q.readVersion)
}

// Close deregisters the snapshot.
func (q *Query) Close() {
	if q.closed {
		return
	}
	q.closed = true
	q.manager.finish(q.id, false)
}
