package catalog

import (
	"encoding/binary"
	"math"

	"github.com/SimonWaldherr/flowDB/internal/diag"
	"github.com/SimonWaldherr/flowDB/internal/txn"
)

// Sequence generators allocate monotonically increasing numbers from
// the single-version metadata table, protected by the commit mutex.
// Counters are not part of user data and do not roll back with the
// transaction that consumed them.

// NextUint64 allocates `count` consecutive values from the sequence at
// key and returns the first. The counter starts at 1.
func NextUint64(single *txn.Single, key []byte, count uint64) (uint64, error) {
	if count == 0 {
		count = 1
	}
	var first uint64
	err := single.Update(func(tx *txn.SingleTx) error {
		var current uint64
		if raw, ok, err := tx.Get(key); err != nil {
			return err
		} else if ok && len(raw) == 8 {
			current = binary.BigEndian.Uint64(raw)
		}
		if current > math.MaxUint64-count {
			return diag.New(diag.SequenceExhausted, "uint64 sequence exhausted")
		}
		first = current + 1
		next := current + count
		tx.Set(key, binary.BigEndian.AppendUint64(nil, next))
		return nil
	})
	return first, err
}

// NextInt32 advances the int32 sequence at key by step (>= 1) and
// returns the new value. On first use the counter starts at def, or 1
// when def is nil; an explicit zero default is honored. A saturated
// counter returns SEQ_001.
func NextInt32(single *txn.Single, key []byte, def *int32, step int32) (int32, error) {
	if step < 1 {
		step = 1
	}
	var out int32
	err := single.Update(func(tx *txn.SingleTx) error {
		raw, ok, err := tx.Get(key)
		if err != nil {
			return err
		}
		if !ok {
			out = 1
			if def != nil {
				out = *def
			}
			tx.Set(key, binary.BigEndian.AppendUint32(nil, uint32(out)))
			return nil
		}
		current := int32(binary.BigEndian.Uint32(raw))
		next := current + step
		if next < current { // wrapped
			next = math.MaxInt32
		}
		if next == current {
			return diag.New(diag.SequenceExhausted, "int4 sequence exhausted").
				WithHelp("the sequence reached the maximum of its type")
		}
		out = next
		tx.Set(key, binary.BigEndian.AppendUint32(nil, uint32(next)))
		return nil
	})
	return out, err
}

// SetInt32 forces the int32 sequence at key to value.
func SetInt32(single *txn.Single, key []byte, value int32) error {
	return single.Update(func(tx *txn.SingleTx) error {
		tx.Set(key, binary.BigEndian.AppendUint32(nil, uint32(value)))
		return nil
	})
}
