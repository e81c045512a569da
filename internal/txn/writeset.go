package txn

import (
	"sort"

	"github.com/SimonWaldherr/flowDB/internal/mvcc"
)

// writeSet accumulates the pending deltas of one command transaction in
// first-touch order. A later write to the same key coalesces into the
// original position, so the materialized delta list stays dense and
// ordered.
type writeSet struct {
	entries []mvcc.Delta
	index   map[string]int
}

func newWriteSet() *writeSet {
	return &writeSet{index: make(map[string]int)}
}

func (w *writeSet) put(d mvcc.Delta) {
	k := string(d.Key)
	if i, ok := w.index[k]; ok {
		w.entries[i] = d
		return
	}
	w.index[k] = len(w.entries)
	w.entries = append(w.entries, d)
}

// get returns the pending delta for key, if any.
func (w *writeSet) get(key []byte) (mvcc.Delta, bool) {
	i, ok := w.index[string(key)]
	if !ok {
		return mvcc.Delta{}, false
	}
	return w.entries[i], true
}

// deltas returns the pending list in input order.
func (w *writeSet) deltas() []mvcc.Delta { return w.entries }

func (w *writeSet) len() int { return len(w.entries) }

// sortedInRange returns pending deltas with start <= key < end, sorted
// by key. Nil bounds are unbounded.
func (w *writeSet) sortedInRange(start, end []byte) []mvcc.Delta {
	var out []mvcc.Delta
	for _, d := range w.entries {
		if start != nil && string(d.Key) < string(start) {
			continue
		}
		if end != nil && string(d.Key) >= string(end) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Key) < string(out[j].Key)
	})
	return out
}
