package mvcc

import (
	"fmt"
	"time"

	"github.com/SimonWaldherr/flowDB/internal/keycode"
	"github.com/SimonWaldherr/flowDB/internal/storage"
)

// Versioned is one resolved read: the logical key, its values, and the
// commit version the values were written at.
type Versioned struct {
	Key     []byte
	Values  []byte
	Version uint64
}

// Store is the MVCC view over the primitive backend. It owns the CDC
// log; the backend is borrowed.
type Store struct {
	backend   storage.Backend
	batchSize int
}

// NewStore wraps the backend.
func NewStore(backend storage.Backend) *Store {
	return &Store{backend: backend, batchSize: storage.DefaultBatchSize}
}

// Backend exposes the underlying primitive store to sibling layers that
// need the single-version table.
func (s *Store) Backend() storage.Backend { return s.backend }

// Commit atomically applies the delta list at the given version: data
// entries (values and tombstones) plus one CDC record, all in a single
// backend batch. Deltas apply in input order.
func (s *Store) Commit(deltas []Delta, version uint64, txnID string) error {
	if len(deltas) == 0 {
		return nil
	}

	// Pre-versions must be read before the batch lands.
	changes, err := generateChanges(deltas, version, func(key []byte) (uint64, bool, error) {
		v, err := s.latest(key)
		if err != nil {
			return 0, false, err
		}
		if v == nil || v.Values == nil {
			return 0, false, nil
		}
		return v.Version, true, nil
	})
	if err != nil {
		return err
	}

	puts := make([]storage.Put, 0, len(deltas))
	for _, d := range deltas {
		vk := EncodeVersioned(d.Key, version)
		switch d.Op {
		case DeltaSet:
			values := d.Values
			if values == nil {
				values = []byte{}
			}
			puts = append(puts, storage.Put{Key: vk, Value: values})
		case DeltaRemove, DeltaDrop:
			puts = append(puts, storage.Put{Key: vk, Value: nil})
		default:
			return fmt.Errorf("unknown delta op %d", d.Op)
		}
	}

	batch := map[string][]storage.Put{storage.TableMulti: puts}
	if len(changes) > 0 {
		record := &Record{
			Version:       version,
			Timestamp:     time.Now().UnixMilli(),
			TransactionID: txnID,
			Changes:       changes,
		}
		raw, err := encodeRecord(record)
		if err != nil {
			return err
		}
		batch[storage.TableCdc] = []storage.Put{{Key: cdcKey(version), Value: raw}}
	}
	return s.backend.Apply(batch)
}

// Get resolves key at version: the entry with the largest commit
// version <= version. A tombstone resolves to not-found (nil, nil).
func (s *Store) Get(key []byte, version uint64) (*Versioned, error) {
	// Reverse-scan [key|0, key|version] and take the first hit.
	start := EncodeVersioned(key, 0)
	end := keycode.Successor(EncodeVersioned(key, version))
	batch, err := s.backend.RangeRev(storage.TableMulti, start, end, 1)
	if err != nil {
		return nil, err
	}
	if len(batch.Entries) == 0 {
		return nil, nil
	}
	e := batch.Entries[0]
	if !sameKey(e.Key, key) {
		return nil, nil
	}
	if e.Tombstone() {
		return nil, nil
	}
	v, _ := SplitVersion(e.Key)
	return &Versioned{Key: key, Values: e.Value, Version: v}, nil
}

// Contains reports whether key resolves to a live value at version.
func (s *Store) Contains(key []byte, version uint64) (bool, error) {
	v, err := s.Get(key, version)
	return v != nil, err
}

// latest returns the newest entry of key regardless of version, with
// Values nil when it is a tombstone, or nil when no version exists.
func (s *Store) latest(key []byte) (*Versioned, error) {
	start := EncodeVersioned(key, 0)
	end := keycode.Successor(EncodeVersioned(key, ^uint64(0)))
	batch, err := s.backend.RangeRev(storage.TableMulti, start, end, 1)
	if err != nil {
		return nil, err
	}
	if len(batch.Entries) == 0 || !sameKey(batch.Entries[0].Key, key) {
		return nil, nil
	}
	e := batch.Entries[0]
	v, _ := SplitVersion(e.Key)
	return &Versioned{Key: key, Values: e.Value, Version: v}, nil
}

// Range returns a forward iterator over [start, end) at version,
// producing the latest-<=-version entry per distinct logical key and
// suppressing tombstones. Nil bounds are unbounded.
func (s *Store) Range(start, end []byte, version uint64) *Iter {
	return newIter(s, start, end, version, false)
}

// RangeRev is Range in descending key order.
func (s *Store) RangeRev(start, end []byte, version uint64) *Iter {
	return newIter(s, start, end, version, true)
}

// Scan iterates the whole keyspace at version.
func (s *Store) Scan(version uint64) *Iter {
	return s.Range(nil, nil, version)
}
