package storage

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltBackend stores each table as a bbolt bucket. bbolt gives a single
// writer and concurrent readers out of the box, which matches the
// shared-resource policy of the persistent backends.
//
// Values carry a one-byte tag so a tombstone is distinguishable from an
// empty value: 0x00 = tombstone, 0x01 = value bytes follow.
type BoltBackend struct {
	db        *bolt.DB
	batchSize int

	applyCount atomic.Int64
	scanCount  atomic.Int64
}

const (
	boltTagTombstone = 0x00
	boltTagValue     = 0x01
)

// NewBoltBackend opens (or creates) the bbolt file at cfg.Path.
func NewBoltBackend(cfg Config) (*BoltBackend, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("bolt backend requires a path")
	}
	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	b := &BoltBackend{db: db, batchSize: cfg.BatchSize}
	if b.batchSize <= 0 {
		b.batchSize = DefaultBatchSize
	}
	return b, nil
}

func decodeBoltValue(raw []byte) []byte {
	if len(raw) == 0 || raw[0] == boltTagTombstone {
		return nil
	}
	out := make([]byte, len(raw)-1)
	copy(out, raw[1:])
	return out
}

func encodeBoltValue(value []byte) []byte {
	if value == nil {
		return []byte{boltTagTombstone}
	}
	out := make([]byte, 1+len(value))
	out[0] = boltTagValue
	copy(out[1:], value)
	return out
}

// Get returns the entry stored under key.
func (b *BoltBackend) Get(table string, key []byte) (Entry, bool, error) {
	var (
		entry Entry
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(table))
		if bucket == nil {
			return fmt.Errorf("unknown table %q", table)
		}
		raw := bucket.Get(key)
		if raw == nil {
			return nil
		}
		found = true
		entry = Entry{Key: append([]byte(nil), key...), Value: decodeBoltValue(raw)}
		return nil
	})
	return entry, found, err
}

// Contains reports whether any entry exists under key.
func (b *BoltBackend) Contains(table string, key []byte) (bool, error) {
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(table))
		if bucket == nil {
			return fmt.Errorf("unknown table %q", table)
		}
		found = bucket.Get(key) != nil
		return nil
	})
	return found, err
}

// Apply writes all puts in one bbolt transaction.
func (b *BoltBackend) Apply(batch map[string][]Put) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		for table, puts := range batch {
			bucket := tx.Bucket([]byte(table))
			if bucket == nil {
				return fmt.Errorf("unknown table %q", table)
			}
			for _, p := range puts {
				if err := bucket.Put(p.Key, encodeBoltValue(p.Value)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	b.applyCount.Add(1)
	return nil
}

// Range scans [start, end) ascending.
func (b *BoltBackend) Range(table string, start, end []byte, limit int) (RangeBatch, error) {
	return b.scan(table, start, end, limit, false)
}

// RangeRev scans [start, end) descending.
func (b *BoltBackend) RangeRev(table string, start, end []byte, limit int) (RangeBatch, error) {
	return b.scan(table, start, end, limit, true)
}

func (b *BoltBackend) scan(table string, start, end []byte, limit int, reverse bool) (RangeBatch, error) {
	if limit <= 0 {
		limit = b.batchSize
	}
	b.scanCount.Add(1)

	var batch RangeBatch
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(table))
		if bucket == nil {
			return fmt.Errorf("unknown table %q", table)
		}
		c := bucket.Cursor()

		inBounds := func(k []byte) bool {
			if start != nil && bytes.Compare(k, start) < 0 {
				return false
			}
			if end != nil && bytes.Compare(k, end) >= 0 {
				return false
			}
			return true
		}

		appendEntry := func(k, v []byte) bool {
			if len(batch.Entries) == limit {
				batch.HasMore = true
				return false
			}
			batch.Entries = append(batch.Entries, Entry{
				Key:   append([]byte(nil), k...),
				Value: decodeBoltValue(v),
			})
			return true
		}

		if !reverse {
			var k, v []byte
			if start != nil {
				k, v = c.Seek(start)
			} else {
				k, v = c.First()
			}
			for ; k != nil; k, v = c.Next() {
				if end != nil && bytes.Compare(k, end) >= 0 {
					break
				}
				if !appendEntry(k, v) {
					break
				}
			}
			return nil
		}

		// Reverse: position on the last key strictly below end.
		var k, v []byte
		if end != nil {
			k, v = c.Seek(end)
			if k == nil {
				k, v = c.Last()
			} else {
				k, v = c.Prev()
			}
		} else {
			k, v = c.Last()
		}
		for ; k != nil; k, v = c.Prev() {
			if !inBounds(k) {
				break
			}
			if !appendEntry(k, v) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return RangeBatch{}, err
	}
	return batch, nil
}

// EnsureTable creates the bucket if absent.
func (b *BoltBackend) EnsureTable(table string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(table))
		return err
	})
}

// ClearTable removes every entry of the table.
func (b *BoltBackend) ClearTable(table string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(table)) == nil {
			return fmt.Errorf("unknown table %q", table)
		}
		if err := tx.DeleteBucket([]byte(table)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(table))
		return err
	})
}

// Mode returns ModeBolt.
func (b *BoltBackend) Mode() Mode { return ModeBolt }

// Stats returns operational statistics.
func (b *BoltBackend) Stats() Stats {
	var tables int
	var entries int64
	b.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(_ []byte, bucket *bolt.Bucket) error {
			tables++
			entries += int64(bucket.Stats().KeyN)
			return nil
		})
	})
	return Stats{
		Mode:       ModeBolt,
		Tables:     tables,
		Entries:    entries,
		BatchSize:  b.batchSize,
		ApplyCount: b.applyCount.Load(),
		ScanCount:  b.scanCount.Load(),
	}
}

// Close flushes and closes the file.
func (b *BoltBackend) Close() error { return b.db.Close() }
