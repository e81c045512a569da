package txn

import (
	"github.com/SimonWaldherr/flowDB/internal/diag"
	"github.com/SimonWaldherr/flowDB/internal/mvcc"
)

type txnState uint8

const (
	stateActive txnState = iota
	stateCommitted
	stateRolledBack
)

// Command is a read-write transaction. It sees storage as of its read
// version plus its own pending writes; on commit the oracle validates
// the read set against concurrently committed write sets.
//
// A Command is single-threaded: operations happen in program order and
// the struct is not safe for concurrent use.
type Command struct {
	id          string
	manager     *Manager
	readVersion uint64
	reads       map[string]struct{}
	writes      *writeSet
	state       txnState
}

// ID returns the transaction id.
func (c *Command) ID() string { return c.id }

// ReadVersion returns the snapshot version this transaction reads at.
func (c *Command) ReadVersion() uint64 { return c.readVersion }

// Pending returns the number of pending writes.
func (c *Command) Pending() int { return c.writes.len() }

func (c *Command) ensureActive() error {
	if c.state != stateActive {
		return diag.New(diag.TxnNotActive, "transaction %s is not active", c.id)
	}
	return nil
}

// Get returns the value of key: the pending write when one exists, the
// stored value at the read version otherwise. Reading from storage
// records the key in the read set.
func (c *Command) Get(key []byte) (*mvcc.Versioned, error) {
	if err := c.ensureActive(); err != nil {
		return nil, err
	}
	if d, ok := c.writes.get(key); ok {
		if d.Op != mvcc.DeltaSet {
			return nil, nil
		}
		return &mvcc.Versioned{Key: key, Values: d.Values, Version: c.readVersion}, nil
	}
	c.reads[string(key)] = struct{}{}
	return c.manager.store.Get(key, c.readVersion)
}

// Contains reports whether key resolves to a live value.
func (c *Command) Contains(key []byte) (bool, error) {
	v, err := c.Get(key)
	return v != nil, err
}

// Set upserts a pending write. The read set is untouched.
func (c *Command) Set(key, values []byte) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	c.writes.put(mvcc.Set(append([]byte(nil), key...), append([]byte(nil), values...)))
	return nil
}

// Remove inserts a pending tombstone.
func (c *Command) Remove(key []byte) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	c.writes.put(mvcc.Remove(append([]byte(nil), key...)))
	return nil
}

// Drop inserts an internal cleanup delta; it never emits CDC.
func (c *Command) Drop(key []byte) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	c.writes.put(mvcc.Drop(append([]byte(nil), key...)))
	return nil
}

// Range returns a forward iterator over [start, end) merging pending
// writes with the storage snapshot; pending values shadow storage and
// pending tombstones suppress stored entries. Every storage key the
// scan observes joins the read set.
func (c *Command) Range(start, end []byte) *MergedIter {
	return newMergedIter(c, start, end, false)
}

// RangeRev is Range in descending key order.
func (c *Command) RangeRev(start, end []byte) *MergedIter {
	return newMergedIter(c, start, end, true)
}

// Scan iterates the whole keyspace.
func (c *Command) Scan() *MergedIter { return c.Range(nil, nil) }

// Commit runs the oracle: version allocation, conflict validation,
// atomic apply, CDC, post-commit event. On conflict the transaction is
// rolled back and a TXN_001 diagnostic returned.
func (c *Command) Commit() (uint64, error) {
	if err := c.ensureActive(); err != nil {
		return 0, err
	}
	version, err := c.manager.commit(c)
	if err != nil {
		c.state = stateRolledBack
		c.manager.finish(c.id, true)
		return 0, err
	}
	c.state = stateCommitted
	return version, nil
}

// Rollback discards read and write sets. No storage interaction.
func (c *Command) Rollback() error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	c.state = stateRolledBack
	c.writes = newWriteSet()
	c.reads = make(map[string]struct{})
	c.manager.finish(c.id, true)
	return nil
}
