// Package mvcc overlays version semantics on the primitive storage:
// every write lands under a version-suffixed key, reads resolve the
// latest entry at or below a requested version, and each commit appends
// one change-data-capture record in the same atomic batch as its data.
//
// Versioned key layout: [original_key_bytes | version_be_u64]. The
// big-endian suffix keeps all versions of one key adjacent and sorted
// ascending by version. No entry is ever overwritten; all state is
// append-only.
package mvcc

import (
	"bytes"
	"encoding/binary"
)

// VersionSize is the byte width of the version suffix.
const VersionSize = 8

// EncodeVersioned appends the big-endian version suffix to key.
func EncodeVersioned(key []byte, version uint64) []byte {
	out := make([]byte, 0, len(key)+VersionSize)
	out = append(out, key...)
	return binary.BigEndian.AppendUint64(out, version)
}

// DecodeVersioned splits a versioned key into (key, version).
func DecodeVersioned(versioned []byte) ([]byte, uint64, bool) {
	if len(versioned) < VersionSize {
		return nil, 0, false
	}
	split := len(versioned) - VersionSize
	return versioned[:split], binary.BigEndian.Uint64(versioned[split:]), true
}

// SplitKey returns just the logical key of a versioned key.
func SplitKey(versioned []byte) ([]byte, bool) {
	if len(versioned) < VersionSize {
		return nil, false
	}
	return versioned[:len(versioned)-VersionSize], true
}

// SplitVersion returns just the version of a versioned key.
func SplitVersion(versioned []byte) (uint64, bool) {
	if len(versioned) < VersionSize {
		return 0, false
	}
	return binary.BigEndian.Uint64(versioned[len(versioned)-VersionSize:]), true
}

// sameKey reports whether versioned carries exactly the logical key.
func sameKey(versioned, key []byte) bool {
	k, ok := SplitKey(versioned)
	return ok && bytes.Equal(k, key)
}
