package catalog

import "sort"

// chainEntry is one version of an object: def == nil is a tombstone.
type chainEntry struct {
	version uint64
	def     Def
}

// VersionChain is the append-only version history of one object: a
// sorted map from commit version to definition or tombstone. A read at
// version v resolves the entry with the largest version <= v.
type VersionChain struct {
	entries []chainEntry // ascending by version
}

// Get resolves the definition visible at version, nil when tombstoned
// or absent.
func (c *VersionChain) Get(version uint64) Def {
	i := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].version > version
	})
	if i == 0 {
		return nil
	}
	return c.entries[i-1].def
}

// Latest resolves the newest definition, nil when tombstoned or empty.
func (c *VersionChain) Latest() Def {
	if len(c.entries) == 0 {
		return nil
	}
	return c.entries[len(c.entries)-1].def
}

// Insert appends a definition at version. Entries are append-only;
// re-publishing an existing version replaces it in place (commit replay
// is idempotent).
func (c *VersionChain) Insert(version uint64, def Def) {
	c.put(version, def)
}

// Remove appends a tombstone at version.
func (c *VersionChain) Remove(version uint64) {
	c.put(version, nil)
}

func (c *VersionChain) put(version uint64, def Def) {
	i := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].version >= version
	})
	if i < len(c.entries) && c.entries[i].version == version {
		c.entries[i].def = def
		return
	}
	c.entries = append(c.entries, chainEntry{})
	copy(c.entries[i+1:], c.entries[i:])
	c.entries[i] = chainEntry{version: version, def: def}
}

// Len returns the number of versions recorded.
func (c *VersionChain) Len() int { return len(c.entries) }
