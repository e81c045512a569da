package mvcc

import (
	"bytes"

	"github.com/SimonWaldherr/flowDB/internal/keycode"
	"github.com/SimonWaldherr/flowDB/internal/storage"
)

// Iter walks distinct logical keys at a snapshot version, resolving the
// latest entry at or below the version per key and suppressing
// tombstones. It paginates the underlying backend on demand, so callers
// pull exactly as much as they consume.
type Iter struct {
	store   *Store
	version uint64
	reverse bool

	start []byte // remaining raw window, advanced per page
	end   []byte
	done  bool

	page    []storage.Entry
	pagePos int

	// forward-scan grouping state
	pendingKey   []byte
	pendingVal   []byte
	pendingVer   uint64
	pendingLive  bool
	pendingValid bool

	// reverse-scan grouping state
	emittedKey []byte

	cur Versioned
	err error
}

func newIter(s *Store, start, end []byte, version uint64, reverse bool) *Iter {
	return &Iter{store: s, version: version, reverse: reverse, start: start, end: end}
}

// Err returns the first error the iterator hit.
func (it *Iter) Err() error { return it.err }

// Entry returns the current element after a true Next.
func (it *Iter) Entry() Versioned { return it.cur }

// Next advances to the next visible logical key. It returns false on
// exhaustion or error (check Err).
func (it *Iter) Next() bool {
	if it.err != nil {
		return false
	}
	for {
		e, ok := it.nextRaw()
		if it.err != nil {
			return false
		}
		if !ok {
			// Forward scans may hold a finalized group.
			if !it.reverse && it.pendingValid {
				it.pendingValid = false
				if it.pendingLive {
					it.cur = Versioned{Key: it.pendingKey, Values: it.pendingVal, Version: it.pendingVer}
					return true
				}
			}
			return false
		}

		key, ver, ok := DecodeVersioned(e.Key)
		if !ok {
			continue
		}
		if ver > it.version {
			continue
		}

		if it.reverse {
			// Descending raw order: the first acceptable entry per
			// logical key carries its highest version <= snapshot.
			if it.emittedKey != nil && bytes.Equal(key, it.emittedKey) {
				continue
			}
			it.emittedKey = append(it.emittedKey[:0], key...)
			if e.Tombstone() {
				continue
			}
			it.cur = Versioned{Key: append([]byte(nil), key...), Values: e.Value, Version: ver}
			return true
		}

		// Ascending raw order: versions of one key arrive low to high;
		// the last acceptable one wins. Emit the previous group when
		// the logical key changes.
		if it.pendingValid && !bytes.Equal(key, it.pendingKey) {
			emit := it.pendingLive
			out := Versioned{Key: it.pendingKey, Values: it.pendingVal, Version: it.pendingVer}
			it.pendingKey = append([]byte(nil), key...)
			it.pendingVal = e.Value
			it.pendingVer = ver
			it.pendingLive = !e.Tombstone()
			if emit {
				it.cur = out
				return true
			}
			continue
		}
		if !it.pendingValid {
			it.pendingValid = true
			it.pendingKey = append([]byte(nil), key...)
		}
		it.pendingVal = e.Value
		it.pendingVer = ver
		it.pendingLive = !e.Tombstone()
	}
}

// nextRaw yields the next raw versioned entry, fetching pages as needed.
func (it *Iter) nextRaw() (storage.Entry, bool) {
	for {
		if it.pagePos < len(it.page) {
			e := it.page[it.pagePos]
			it.pagePos++
			return e, true
		}
		if it.done {
			return storage.Entry{}, false
		}

		var (
			batch storage.RangeBatch
			err   error
		)
		if it.reverse {
			batch, err = it.store.backend.RangeRev(storage.TableMulti, it.start, it.end, it.store.batchSize)
		} else {
			batch, err = it.store.backend.Range(storage.TableMulti, it.start, it.end, it.store.batchSize)
		}
		if err != nil {
			it.err = err
			return storage.Entry{}, false
		}
		it.page = batch.Entries
		it.pagePos = 0
		if len(batch.Entries) == 0 || !batch.HasMore {
			it.done = true
		} else {
			last := batch.Entries[len(batch.Entries)-1].Key
			if it.reverse {
				it.end = append([]byte(nil), last...)
			} else {
				it.start = keycode.Successor(last)
			}
		}
		if len(it.page) == 0 {
			return storage.Entry{}, false
		}
	}
}

// Collect drains the iterator into a slice; test helper semantics.
func (it *Iter) Collect() ([]Versioned, error) {
	var out []Versioned
	for it.Next() {
		out = append(out, it.Entry())
	}
	return out, it.Err()
}
