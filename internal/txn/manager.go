// Package txn implements the optimistic transaction manager: read and
// write sets, the conflict oracle, commit sequencing, the post-commit
// event bus, and the single-version metadata path.
//
// Transactions are optimistic with serializable-snapshot validation:
// readers never block writers, writers never block readers, and the
// oracle aborts any commit whose read set intersects the write set of a
// transaction that committed after it began.
package txn

import (
	"sync"

	"github.com/google/uuid"

	"github.com/SimonWaldherr/flowDB/internal/diag"
	"github.com/SimonWaldherr/flowDB/internal/metrics"
	"github.com/SimonWaldherr/flowDB/internal/mvcc"
)

// commitRecord retains the write set of a committed transaction for the
// conflict window.
type commitRecord struct {
	version uint64
	writes  map[string]struct{}
}

// Manager owns the commit mutex, the version counter, the conflict
// oracle metadata, and the event bus.
type Manager struct {
	store *mvcc.Store
	bus   *Bus
	stats *metrics.Set

	mu            sync.Mutex // the commit mutex
	lastCommitted uint64
	recent        []commitRecord    // ascending by version
	active        map[string]uint64 // transaction id -> read version
}

// NewManager wraps the MVCC store. stats may be nil.
func NewManager(store *mvcc.Store, stats *metrics.Set) *Manager {
	m := &Manager{
		store:  store,
		stats:  stats,
		active: make(map[string]uint64),
	}
	m.bus = NewBus(func(string) {
		if stats != nil {
			stats.DroppedSubs.Inc()
		}
	})
	return m
}

// Bus returns the post-commit event bus.
func (m *Manager) Bus() *Bus { return m.bus }

// Store returns the underlying MVCC store.
func (m *Manager) Store() *mvcc.Store { return m.store }

// LastCommitted returns the current last committed version.
func (m *Manager) LastCommitted() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCommitted
}

// Recover initializes the version counter from storage after restart:
// the highest version present in the CDC log.
func (m *Manager) Recover() error {
	var last uint64
	start := uint64(0)
	for {
		batch, err := m.store.CdcRange(start, 0, 1024)
		if err != nil {
			return err
		}
		for _, r := range batch.Records {
			if r.Version > last {
				last = r.Version
			}
		}
		if !batch.HasMore || len(batch.Records) == 0 {
			break
		}
		start = batch.Records[len(batch.Records)-1].Version + 1
	}
	m.mu.Lock()
	if last > m.lastCommitted {
		m.lastCommitted = last
	}
	m.mu.Unlock()
	return nil
}

// BeginQuery opens a read-only snapshot at the last committed version.
func (m *Manager) BeginQuery() *Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := &Query{
		id:          uuid.NewString(),
		manager:     m,
		readVersion: m.lastCommitted,
	}
	m.active[q.id] = q.readVersion
	if m.stats != nil {
		m.stats.ActiveTxns.Inc()
	}
	return q
}

// BeginCommand opens a read-write transaction at the last committed
// version.
func (m *Manager) BeginCommand() *Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	c := &Command{
		id:          id.String(),
		manager:     m,
		readVersion: m.lastCommitted,
		reads:       make(map[string]struct{}),
		writes:      newWriteSet(),
		state:       stateActive,
	}
	m.active[c.id] = c.readVersion
	if m.stats != nil {
		m.stats.ActiveTxns.Inc()
	}
	return c
}

// commit runs the oracle for a command transaction. Called with the
// transaction's deltas already materialized in input order.
func (m *Manager) commit(c *Command) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate against every transaction that committed after this one
	// began: its write set must not intersect our read set.
	for _, rec := range m.recent {
		if rec.version <= c.readVersion {
			continue
		}
		for key := range rec.writes {
			if _, read := c.reads[key]; read {
				if m.stats != nil {
					m.stats.Conflicts.Inc()
				}
				return 0, diag.New(diag.TxnConflict,
					"transaction conflict: key %q written at version %d after read snapshot %d",
					key, rec.version, c.readVersion).
					WithHelp("retry the transaction against the current snapshot")
			}
		}
	}

	version := m.lastCommitted + 1
	deltas := c.writes.deltas()
	if len(deltas) > 0 {
		if err := m.store.Commit(deltas, version, c.id); err != nil {
			return 0, err
		}
		m.lastCommitted = version

		writes := make(map[string]struct{}, len(deltas))
		for _, d := range deltas {
			writes[string(d.Key)] = struct{}{}
		}
		m.recent = append(m.recent, commitRecord{version: version, writes: writes})
	}

	m.finishLocked(c.id)
	m.gcRecentLocked()

	if m.stats != nil {
		m.stats.Commits.Inc()
		m.stats.LastVersion.Set(float64(m.lastCommitted))
		if len(deltas) > 0 {
			m.stats.CdcRecords.Inc()
		}
	}
	if len(deltas) > 0 {
		m.bus.Publish(PostCommit{Version: version, Deltas: deltas})
	}
	return m.lastCommitted, nil
}

// finishLocked deregisters a transaction. Caller holds the commit mutex.
func (m *Manager) finishLocked(id string) {
	if _, ok := m.active[id]; ok {
		delete(m.active, id)
		if m.stats != nil {
			m.stats.ActiveTxns.Dec()
		}
	}
}

// gcRecentLocked prunes commit metadata older than every active
// transaction's read version. Caller holds the commit mutex.
func (m *Manager) gcRecentLocked() {
	floor := m.lastCommitted
	for _, rv := range m.active {
		if rv < floor {
			floor = rv
		}
	}
	cut := 0
	for cut < len(m.recent) && m.recent[cut].version <= floor {
		cut++
	}
	if cut > 0 {
		m.recent = append([]commitRecord(nil), m.recent[cut:]...)
	}
}

// finish deregisters a transaction (rollback, query close).
func (m *Manager) finish(id string, rolledBack bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finishLocked(id)
	m.gcRecentLocked()
	if rolledBack && m.stats != nil {
		m.stats.Rollbacks.Inc()
	}
}

// Close shuts the bus down.
func (m *Manager) Close() {
	m.bus.Close()
}
