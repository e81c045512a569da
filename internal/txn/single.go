package txn

import (
	"github.com/SimonWaldherr/flowDB/internal/storage"
)

// Single is the non-MVCC path for engine metadata that is not part of
// user data: writes go directly to a dedicated primitive table with
// last-write-wins semantics, still protected by the commit mutex.
type Single struct {
	manager *Manager
}

// Single returns the single-version accessor.
func (m *Manager) Single() *Single { return &Single{manager: m} }

// Get reads a metadata value. ok=false when absent.
func (s *Single) Get(key []byte) ([]byte, bool, error) {
	e, ok, err := s.manager.store.Backend().Get(storage.TableSingle, key)
	if err != nil || !ok || e.Tombstone() {
		return nil, false, err
	}
	return e.Value, true, nil
}

// Update runs fn under the commit mutex with a read-modify-write view
// of the single-version table. All writes fn stages land in one atomic
// batch when fn returns nil; they are discarded on error.
func (s *Single) Update(fn func(tx *SingleTx) error) error {
	s.manager.mu.Lock()
	defer s.manager.mu.Unlock()

	tx := &SingleTx{backend: s.manager.store.Backend(), staged: make(map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.staged) == 0 {
		return nil
	}
	puts := make([]storage.Put, 0, len(tx.staged))
	for k, v := range tx.staged {
		puts = append(puts, storage.Put{Key: []byte(k), Value: v})
	}
	return tx.backend.Apply(map[string][]storage.Put{storage.TableSingle: puts})
}

// SingleTx is the view passed to Single.Update callbacks.
type SingleTx struct {
	backend storage.Backend
	staged  map[string][]byte
}

// Get reads through staged writes to the table.
func (tx *SingleTx) Get(key []byte) ([]byte, bool, error) {
	if v, ok := tx.staged[string(key)]; ok {
		if v == nil {
			return nil, false, nil
		}
		return v, true, nil
	}
	e, ok, err := tx.backend.Get(storage.TableSingle, key)
	if err != nil || !ok || e.Tombstone() {
		return nil, false, err
	}
	return e.Value, true, nil
}

// Set stages a write.
func (tx *SingleTx) Set(key, value []byte) {
	tx.staged[string(key)] = append([]byte(nil), value...)
}

// Remove stages a tombstone.
func (tx *SingleTx) Remove(key []byte) {
	tx.staged[string(key)] = nil
}
