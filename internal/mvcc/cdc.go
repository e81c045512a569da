package mvcc

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"github.com/SimonWaldherr/flowDB/internal/storage"
)

// ChangeOp discriminates CDC change kinds.
type ChangeOp uint8

const (
	ChangeInsert ChangeOp = iota
	ChangeUpdate
	ChangeDelete
)

// String returns the wire label.
func (op ChangeOp) String() string {
	switch op {
	case ChangeInsert:
		return "insert"
	case ChangeUpdate:
		return "update"
	case ChangeDelete:
		return "delete"
	}
	return fmt.Sprintf("ChangeOp(%d)", uint8(op))
}

// Change is one sequenced change within a CDC record. PreVersion is the
// version the key held before this commit (updates and deletes);
// PostVersion is the commit's own version (inserts and updates).
type Change struct {
	Sequence    uint16
	Op          ChangeOp
	Key         []byte
	PreVersion  uint64
	PostVersion uint64
}

// Record is the change-data-capture entry of one committed version.
// Sequence numbers start at 1 and are dense within the version.
type Record struct {
	Version       uint64
	Timestamp     int64 // unix milliseconds at commit
	TransactionID string
	Changes       []Change
}

// cdcKey is the storage key of a record: just the big-endian version,
// so records range-scan in commit order.
func cdcKey(version uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, version)
}

func encodeRecord(r *Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, fmt.Errorf("encode cdc record: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeRecord(raw []byte) (*Record, error) {
	var r Record
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode cdc record: %w", err)
	}
	return &r, nil
}

// generateChanges derives the sequenced CDC changes for a delta list.
// preVersion looks up the latest stored version of a key before this
// commit. Rules per delta:
//
//	Set, no pre-version     -> Insert
//	Set, pre-version        -> Update
//	Remove, pre-version     -> Delete
//	Remove, no pre-version  -> nothing
//	Drop                    -> nothing (internal housekeeping)
//
// Sequence numbers are 1-based and dense over the emitted changes, so
// suppressed deltas leave no gaps.
func generateChanges(deltas []Delta, version uint64, preVersion func(key []byte) (uint64, bool, error)) ([]Change, error) {
	changes := make([]Change, 0, len(deltas))
	seq := uint16(0)
	for _, d := range deltas {
		if d.Op == DeltaDrop {
			continue
		}
		pre, hasPre, err := preVersion(d.Key)
		if err != nil {
			return nil, err
		}
		var c Change
		switch d.Op {
		case DeltaSet:
			if hasPre {
				c = Change{Op: ChangeUpdate, Key: d.Key, PreVersion: pre, PostVersion: version}
			} else {
				c = Change{Op: ChangeInsert, Key: d.Key, PostVersion: version}
			}
		case DeltaRemove:
			if !hasPre {
				continue
			}
			c = Change{Op: ChangeDelete, Key: d.Key, PreVersion: pre}
		}
		if seq == ^uint16(0) {
			return nil, fmt.Errorf("cdc sequence number exhausted at version %d", version)
		}
		seq++
		c.Sequence = seq
		changes = append(changes, c)
	}
	return changes, nil
}

// CdcBatch is one page of CDC records.
type CdcBatch struct {
	Records []*Record
	HasMore bool
}

// CdcGet returns the record committed at version, or ok=false.
func (s *Store) CdcGet(version uint64) (*Record, bool, error) {
	e, ok, err := s.backend.Get(storage.TableCdc, cdcKey(version))
	if err != nil || !ok || e.Tombstone() {
		return nil, false, err
	}
	r, err := decodeRecord(e.Value)
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

// CdcRange returns records with version in [start, end], ascending, at
// most limit per call (limit <= 0 uses the backend batch size). end = 0
// means unbounded.
func (s *Store) CdcRange(start, end uint64, limit int) (CdcBatch, error) {
	var hi []byte
	if end != 0 {
		if end == ^uint64(0) {
			hi = nil
		} else {
			hi = cdcKey(end + 1)
		}
	}
	batch, err := s.backend.Range(storage.TableCdc, cdcKey(start), hi, limit)
	if err != nil {
		return CdcBatch{}, err
	}
	out := CdcBatch{HasMore: batch.HasMore}
	for _, e := range batch.Entries {
		if e.Tombstone() {
			continue
		}
		r, err := decodeRecord(e.Value)
		if err != nil {
			return CdcBatch{}, err
		}
		out.Records = append(out.Records, r)
	}
	return out, nil
}

// CdcCount returns the number of sequenced changes at version.
func (s *Store) CdcCount(version uint64) (int, error) {
	r, ok, err := s.CdcGet(version)
	if err != nil || !ok {
		return 0, err
	}
	return len(r.Changes), nil
}
