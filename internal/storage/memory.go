package storage

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// MemoryBackend keeps every table as a sorted key list plus a value map.
// Writes funnel through a single apply actor so batches hit the store in
// submission order; readers proceed concurrently under an RWMutex.
type MemoryBackend struct {
	mu     sync.RWMutex
	tables map[string]*memTable

	batchSize int

	applyCh chan applyReq
	done    chan struct{}

	applyCount atomic.Int64
	scanCount  atomic.Int64
}

type memTable struct {
	keys   []string          // sorted
	values map[string][]byte // nil value = tombstone
}

type applyReq struct {
	batch map[string][]Put
	reply chan error
}

// NewMemoryBackend creates an empty in-memory backend and starts its
// apply actor.
func NewMemoryBackend(cfg Config) *MemoryBackend {
	m := &MemoryBackend{
		tables:    make(map[string]*memTable),
		batchSize: cfg.BatchSize,
		applyCh:   make(chan applyReq),
		done:      make(chan struct{}),
	}
	if m.batchSize <= 0 {
		m.batchSize = DefaultBatchSize
	}
	go m.applyLoop()
	return m
}

func (m *MemoryBackend) applyLoop() {
	for req := range m.applyCh {
		req.reply <- m.applyLocked(req.batch)
	}
	close(m.done)
}

func (m *MemoryBackend) applyLocked(batch map[string][]Put) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for table := range batch {
		if _, ok := m.tables[table]; !ok {
			return fmt.Errorf("unknown table %q", table)
		}
	}
	for table, puts := range batch {
		t := m.tables[table]
		for _, p := range puts {
			k := string(p.Key)
			if _, exists := t.values[k]; !exists {
				idx := sort.SearchStrings(t.keys, k)
				t.keys = append(t.keys, "")
				copy(t.keys[idx+1:], t.keys[idx:])
				t.keys[idx] = k
			}
			if p.Value == nil {
				t.values[k] = nil
			} else {
				v := make([]byte, len(p.Value))
				copy(v, p.Value)
				t.values[k] = v
			}
		}
	}
	m.applyCount.Add(1)
	return nil
}

// Get returns the entry stored under key.
func (m *MemoryBackend) Get(table string, key []byte) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[table]
	if !ok {
		return Entry{}, false, fmt.Errorf("unknown table %q", table)
	}
	v, ok := t.values[string(key)]
	if !ok {
		return Entry{}, false, nil
	}
	return Entry{Key: append([]byte(nil), key...), Value: cloneBytes(v)}, true, nil
}

// Contains reports whether any entry exists under key.
func (m *MemoryBackend) Contains(table string, key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[table]
	if !ok {
		return false, fmt.Errorf("unknown table %q", table)
	}
	_, ok = t.values[string(key)]
	return ok, nil
}

// Apply submits the batch to the apply actor and waits for it to land.
func (m *MemoryBackend) Apply(batch map[string][]Put) error {
	reply := make(chan error, 1)
	m.applyCh <- applyReq{batch: batch, reply: reply}
	return <-reply
}

// Range scans [start, end) in ascending key order.
func (m *MemoryBackend) Range(table string, start, end []byte, limit int) (RangeBatch, error) {
	return m.scan(table, start, end, limit, false)
}

// RangeRev scans [start, end) in descending key order.
func (m *MemoryBackend) RangeRev(table string, start, end []byte, limit int) (RangeBatch, error) {
	return m.scan(table, start, end, limit, true)
}

func (m *MemoryBackend) scan(table string, start, end []byte, limit int, reverse bool) (RangeBatch, error) {
	if limit <= 0 {
		limit = m.batchSize
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.scanCount.Add(1)

	t, ok := m.tables[table]
	if !ok {
		return RangeBatch{}, fmt.Errorf("unknown table %q", table)
	}

	lo := 0
	if start != nil {
		lo = sort.SearchStrings(t.keys, string(start))
	}
	hi := len(t.keys)
	if end != nil {
		hi = sort.SearchStrings(t.keys, string(end))
	}
	if lo >= hi {
		return RangeBatch{}, nil
	}

	var batch RangeBatch
	if reverse {
		for i := hi - 1; i >= lo; i-- {
			if len(batch.Entries) == limit {
				batch.HasMore = true
				break
			}
			k := t.keys[i]
			batch.Entries = append(batch.Entries, Entry{Key: []byte(k), Value: cloneBytes(t.values[k])})
		}
	} else {
		for i := lo; i < hi; i++ {
			if len(batch.Entries) == limit {
				batch.HasMore = true
				break
			}
			k := t.keys[i]
			batch.Entries = append(batch.Entries, Entry{Key: []byte(k), Value: cloneBytes(t.values[k])})
		}
	}
	return batch, nil
}

// EnsureTable creates the table if absent.
func (m *MemoryBackend) EnsureTable(table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table]; !ok {
		m.tables[table] = &memTable{values: make(map[string][]byte)}
	}
	return nil
}

// ClearTable removes every entry.
func (m *MemoryBackend) ClearTable(table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		return fmt.Errorf("unknown table %q", table)
	}
	t.keys = nil
	t.values = make(map[string][]byte)
	return nil
}

// Mode returns ModeMemory.
func (m *MemoryBackend) Mode() Mode { return ModeMemory }

// Stats returns operational statistics.
func (m *MemoryBackend) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var entries int64
	for _, t := range m.tables {
		entries += int64(len(t.keys))
	}
	return Stats{
		Mode:       ModeMemory,
		Tables:     len(m.tables),
		Entries:    entries,
		BatchSize:  m.batchSize,
		ApplyCount: m.applyCount.Load(),
		ScanCount:  m.scanCount.Load(),
	}
}

// Close stops the apply actor.
func (m *MemoryBackend) Close() error {
	close(m.applyCh)
	<-m.done
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
