package txn

import (
	"bytes"

	"github.com/SimonWaldherr/flowDB/internal/mvcc"
)

// MergedIter merges a command transaction's pending writes with the
// storage snapshot. Pending entries shadow stored ones; pending
// tombstones suppress them. Storage keys the merge observes are added
// to the transaction's read set.
type MergedIter struct {
	cmd     *Command
	reverse bool

	pending []mvcc.Delta
	pendIdx int

	stored     *mvcc.Iter
	storedCur  *mvcc.Versioned
	storedDone bool

	cur Versioned
	err error
}

// Versioned is re-exported for callers that only import txn.
type Versioned = mvcc.Versioned

func newMergedIter(c *Command, start, end []byte, reverse bool) *MergedIter {
	pending := c.writes.sortedInRange(start, end)
	if reverse {
		for i, j := 0, len(pending)-1; i < j; i, j = i+1, j-1 {
			pending[i], pending[j] = pending[j], pending[i]
		}
	}
	var stored *mvcc.Iter
	if reverse {
		stored = c.manager.store.RangeRev(start, end, c.readVersion)
	} else {
		stored = c.manager.store.Range(start, end, c.readVersion)
	}
	return &MergedIter{cmd: c, reverse: reverse, pending: pending, stored: stored}
}

// Err returns the first error the iterator hit.
func (it *MergedIter) Err() error { return it.err }

// Entry returns the current element after a true Next.
func (it *MergedIter) Entry() Versioned { return it.cur }

func (it *MergedIter) advanceStored() {
	if it.storedDone {
		it.storedCur = nil
		return
	}
	if it.stored.Next() {
		v := it.stored.Entry()
		it.storedCur = &v
		// Every storage key the scan observes joins the read set.
		it.cmd.reads[string(v.Key)] = struct{}{}
		return
	}
	it.err = it.stored.Err()
	it.storedDone = true
	it.storedCur = nil
}

// before reports whether a sorts before b in scan direction.
func (it *MergedIter) before(a, b []byte) bool {
	if it.reverse {
		return bytes.Compare(a, b) > 0
	}
	return bytes.Compare(a, b) < 0
}

// Next advances to the next visible key. False on exhaustion or error.
func (it *MergedIter) Next() bool {
	if it.err != nil {
		return false
	}
	if it.storedCur == nil && !it.storedDone {
		it.advanceStored()
		if it.err != nil {
			return false
		}
	}
	for {
		pendOK := it.pendIdx < len(it.pending)
		storOK := it.storedCur != nil

		switch {
		case !pendOK && !storOK:
			return false

		case pendOK && (!storOK || it.before(it.pending[it.pendIdx].Key, it.storedCur.Key)):
			d := it.pending[it.pendIdx]
			it.pendIdx++
			if d.Op != mvcc.DeltaSet {
				continue
			}
			it.cur = Versioned{Key: d.Key, Values: d.Values, Version: it.cmd.readVersion}
			return true

		case pendOK && bytes.Equal(it.pending[it.pendIdx].Key, it.storedCur.Key):
			// Pending shadows storage.
			d := it.pending[it.pendIdx]
			it.pendIdx++
			it.advanceStored()
			if it.err != nil {
				return false
			}
			if d.Op != mvcc.DeltaSet {
				continue
			}
			it.cur = Versioned{Key: d.Key, Values: d.Values, Version: it.cmd.readVersion}
			return true

		default:
			v := *it.storedCur
			it.advanceStored()
			if it.err != nil {
				return false
			}
			it.cur = v
			return true
		}
	}
}

// Collect drains the iterator.
func (it *MergedIter) Collect() ([]Versioned, error) {
	var out []Versioned
	for it.Next() {
		out = append(out, it.Entry())
	}
	return out, it.Err()
}
