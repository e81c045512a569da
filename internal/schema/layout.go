// Package schema defines row layouts and the encoded row format.
//
// A Layout is an ordered field list with computed offsets and a
// deterministic fingerprint; equal fingerprints imply identical layouts.
// Encoded rows open with the fingerprint and a validity bitmap, followed
// by the packed fixed-width section and an out-of-line region for
// variable-length fields. Readers with a different target layout build a
// Resolver that maps fields across schema versions.
package schema

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/SimonWaldherr/flowDB/internal/columnar"
)

// Field is one column of a layout.
type Field struct {
	Name   string
	Type   columnar.Type
	Offset int // into the fixed-width section
	Size   int
	Align  int
}

// Layout is an ordered field list plus its fingerprint.
type Layout struct {
	fields      []Field
	byName      map[string]int
	fingerprint uint64
	fixedSize   int
}

// NewLayout computes offsets and the fingerprint for the given fields.
// Offsets are assigned in declaration order with natural alignment.
func NewLayout(fields []Field) (*Layout, error) {
	l := &Layout{byName: make(map[string]int, len(fields))}
	offset := 0
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field %d has no name", i)
		}
		if _, dup := l.byName[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field %q", f.Name)
		}
		f.Size = f.Type.FixedSize()
		f.Align = f.Type.Align()
		if rem := offset % f.Align; rem != 0 {
			offset += f.Align - rem
		}
		f.Offset = offset
		offset += f.Size
		l.byName[f.Name] = i
		l.fields = append(l.fields, f)
	}
	l.fixedSize = offset
	l.fingerprint = fingerprintOf(l.fields)
	return l, nil
}

// FromParts rebuilds a layout from a stored fingerprint and field list,
// verifying the fingerprint matches.
func FromParts(fingerprint uint64, fields []Field) (*Layout, error) {
	l, err := NewLayout(fields)
	if err != nil {
		return nil, err
	}
	if l.fingerprint != fingerprint {
		return nil, fmt.Errorf("layout fingerprint mismatch: stored %016x, computed %016x",
			fingerprint, l.fingerprint)
	}
	return l, nil
}

func fingerprintOf(fields []Field) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, f := range fields {
		h.Write([]byte(f.Name))
		h.Write([]byte{0x00, byte(f.Type)})
		binary.BigEndian.PutUint64(buf[:], uint64(f.Offset))
		h.Write(buf[:])
	}
	return h.Sum64()
}

// Fingerprint returns the deterministic layout hash.
func (l *Layout) Fingerprint() uint64 { return l.fingerprint }

// Fields returns the ordered field list.
func (l *Layout) Fields() []Field { return l.fields }

// NumFields returns the field count.
func (l *Layout) NumFields() int { return len(l.fields) }

// Field returns field i.
func (l *Layout) Field(i int) Field { return l.fields[i] }

// Index returns the position of the named field, or -1.
func (l *Layout) Index(name string) int {
	if i, ok := l.byName[name]; ok {
		return i
	}
	return -1
}

// Headers derives the columnar headers of this layout.
func (l *Layout) Headers() columnar.Headers {
	h := make(columnar.Headers, len(l.fields))
	for i, f := range l.fields {
		h[i] = columnar.Header{Name: f.Name, Type: f.Type}
	}
	return h
}
