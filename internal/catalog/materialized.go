package catalog

import (
	"sync"

	"github.com/SimonWaldherr/flowDB/internal/keycode"
)

// nameKey addresses the name index: names are unique per (kind, parent
// namespace).
type nameKey struct {
	kind keycode.Kind
	ns   uint64
	name string
}

// Materialized is the process-wide versioned index of catalog objects.
// Readers proceed in parallel under the read lock; the single writer
// per commit publishes new versions atomically, so a reader observes
// either the prior or the new version, never a torn state.
type Materialized struct {
	mu     sync.RWMutex
	chains map[keycode.Kind]map[uint64]*VersionChain
	names  map[nameKey]uint64 // current value only
}

// NewMaterialized returns an empty catalog index.
func NewMaterialized() *Materialized {
	m := &Materialized{
		chains: make(map[keycode.Kind]map[uint64]*VersionChain),
		names:  make(map[nameKey]uint64),
	}
	for _, kind := range CatalogKinds {
		m.chains[kind] = make(map[uint64]*VersionChain)
	}
	return m
}

// FindByIDAt resolves the definition of (kind, id) visible at version.
func (m *Materialized) FindByIDAt(kind keycode.Kind, id uint64, version uint64) Def {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chain, ok := m.chains[kind][id]
	if !ok {
		return nil
	}
	return chain.Get(version)
}

// FindByNameAt resolves (namespace, name) to an id through the current
// name index, then reads the chain at version.
func (m *Materialized) FindByNameAt(kind keycode.Kind, ns uint64, name string, version uint64) Def {
	m.mu.RLock()
	id, ok := m.names[nameKey{kind: kind, ns: ns, name: name}]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return m.FindByIDAt(kind, id, version)
}

// Set publishes a new version of (kind, id): def == nil appends a
// tombstone. The name index moves to the new name (or drops it on
// delete).
func (m *Materialized) Set(kind keycode.Kind, id uint64, version uint64, def Def) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chain, ok := m.chains[kind][id]
	if !ok {
		chain = &VersionChain{}
		m.chains[kind][id] = chain
	}
	// Unlink the previous name before publishing the new state.
	if prev := chain.Latest(); prev != nil {
		delete(m.names, nameKey{kind: kind, ns: prev.Parent(), name: prev.ObjectName()})
	}
	if def != nil {
		chain.Insert(version, def)
		m.names[nameKey{kind: kind, ns: def.Parent(), name: def.ObjectName()}] = id
	} else {
		chain.Remove(version)
	}
}

// Each visits the latest live definition of every object of one kind.
func (m *Materialized) Each(kind keycode.Kind, fn func(Def) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, chain := range m.chains[kind] {
		if def := chain.Latest(); def != nil {
			if !fn(def) {
				return
			}
		}
	}
}
