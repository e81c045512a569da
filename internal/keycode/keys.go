package keycode

// Typed keys for the families the core persists. Each type carries its
// components, an Encode method, and a package-level Decode function that
// returns ok=false on version mismatch, wrong kind, or truncation.

// RowKey addresses one stored row of a relational primitive (table, view
// backing store, ring buffer): `[0xFE|0x01|primitive_be_u64|row_be_u64]`.
type RowKey struct {
	Primitive uint64
	Row       uint64
}

// Encode serializes the key.
func (k RowKey) Encode() []byte {
	return NewWriter(KindTableRow).U64(k.Primitive).U64(k.Row).Bytes()
}

// DecodeRowKey decodes a RowKey.
func DecodeRowKey(key []byte) (RowKey, bool) {
	r, ok := NewReader(key, KindTableRow)
	if !ok {
		return RowKey{}, false
	}
	primitive, ok := r.U64()
	if !ok {
		return RowKey{}, false
	}
	row, ok := r.U64()
	if !ok || !r.Done() {
		return RowKey{}, false
	}
	return RowKey{Primitive: primitive, Row: row}, true
}

// RowPrefix returns [start, end) covering every row of one primitive, in
// row-number order.
func RowPrefix(primitive uint64) (start, end []byte) {
	start = NewWriter(KindTableRow).U64(primitive).Bytes()
	return start, PrefixEnd(start)
}

// ObjectKey addresses a persisted catalog object definition by kind and
// stable numeric id.
type ObjectKey struct {
	Kind Kind // one of the catalog kinds (KindNamespace..KindSchemaLayout)
	ID   uint64
}

// Encode serializes the key.
func (k ObjectKey) Encode() []byte {
	return NewWriter(k.Kind).U64(k.ID).Bytes()
}

// DecodeObjectKey decodes an ObjectKey of the given kind.
func DecodeObjectKey(key []byte, kind Kind) (ObjectKey, bool) {
	r, ok := NewReader(key, kind)
	if !ok {
		return ObjectKey{}, false
	}
	id, ok := r.U64()
	if !ok || !r.Done() {
		return ObjectKey{}, false
	}
	return ObjectKey{Kind: kind, ID: id}, true
}

// ObjectRange returns [start, end) covering every object of one kind.
func ObjectRange(kind Kind) (start, end []byte) {
	return KindRange(kind)
}

// NameIndexKey maps (object kind, parent namespace, name) to an object
// id in storage. The name is the final, escaped component so siblings
// scan in name order.
type NameIndexKey struct {
	Kind      Kind
	Namespace uint64
	Name      string
}

// Encode serializes the key.
func (k NameIndexKey) Encode() []byte {
	return NewWriter(KindNameIndex).U8(byte(k.Kind)).U64(k.Namespace).String(k.Name).Bytes()
}

// DecodeNameIndexKey decodes a NameIndexKey.
func DecodeNameIndexKey(key []byte) (NameIndexKey, bool) {
	r, ok := NewReader(key, KindNameIndex)
	if !ok {
		return NameIndexKey{}, false
	}
	kind, ok := r.U8()
	if !ok {
		return NameIndexKey{}, false
	}
	ns, ok := r.U64()
	if !ok {
		return NameIndexKey{}, false
	}
	name, ok := r.String()
	if !ok || !r.Done() {
		return NameIndexKey{}, false
	}
	return NameIndexKey{Kind: Kind(kind), Namespace: ns, Name: name}, true
}

// DictionaryEntryKey addresses one entry of a dictionary primitive.
type DictionaryEntryKey struct {
	Dictionary uint64
	Entry      uint64
}

// Encode serializes the key.
func (k DictionaryEntryKey) Encode() []byte {
	return NewWriter(KindDictionaryEntry).U64(k.Dictionary).U64(k.Entry).Bytes()
}

// DecodeDictionaryEntryKey decodes a DictionaryEntryKey.
func DecodeDictionaryEntryKey(key []byte) (DictionaryEntryKey, bool) {
	r, ok := NewReader(key, KindDictionaryEntry)
	if !ok {
		return DictionaryEntryKey{}, false
	}
	dict, ok := r.U64()
	if !ok {
		return DictionaryEntryKey{}, false
	}
	entry, ok := r.U64()
	if !ok || !r.Done() {
		return DictionaryEntryKey{}, false
	}
	return DictionaryEntryKey{Dictionary: dict, Entry: entry}, true
}

// DictionaryEntryRange returns [start, end) over one dictionary's entries.
func DictionaryEntryRange(dictionary uint64) (start, end []byte) {
	start = NewWriter(KindDictionaryEntry).U64(dictionary).Bytes()
	return start, PrefixEnd(start)
}

// FlowNodeKey addresses one node of a dataflow graph.
type FlowNodeKey struct {
	Flow uint64
	Node uint64
}

// Encode serializes the key.
func (k FlowNodeKey) Encode() []byte {
	return NewWriter(KindFlowNode).U64(k.Flow).U64(k.Node).Bytes()
}

// DecodeFlowNodeKey decodes a FlowNodeKey.
func DecodeFlowNodeKey(key []byte) (FlowNodeKey, bool) {
	r, ok := NewReader(key, KindFlowNode)
	if !ok {
		return FlowNodeKey{}, false
	}
	flow, ok := r.U64()
	if !ok {
		return FlowNodeKey{}, false
	}
	node, ok := r.U64()
	if !ok || !r.Done() {
		return FlowNodeKey{}, false
	}
	return FlowNodeKey{Flow: flow, Node: node}, true
}

// FlowNodeRange returns [start, end) over one flow's nodes.
func FlowNodeRange(flow uint64) (start, end []byte) {
	start = NewWriter(KindFlowNode).U64(flow).Bytes()
	return start, PrefixEnd(start)
}

// SequenceKey addresses a named sequence generator's counter in the
// single-version table.
type SequenceKey struct {
	ID uint64
}

// Encode serializes the key.
func (k SequenceKey) Encode() []byte {
	return NewWriter(KindSequence).U64(k.ID).Bytes()
}

// DecodeSequenceKey decodes a SequenceKey.
func DecodeSequenceKey(key []byte) (SequenceKey, bool) {
	r, ok := NewReader(key, KindSequence)
	if !ok {
		return SequenceKey{}, false
	}
	id, ok := r.U64()
	if !ok || !r.Done() {
		return SequenceKey{}, false
	}
	return SequenceKey{ID: id}, true
}

// ColumnSequenceKey addresses the auto-increment counter of one column
// of a primitive. It shares the sequence family with SequenceKey; the
// longer component list keeps the two disjoint.
type ColumnSequenceKey struct {
	Primitive uint64
	Column    uint64
}

// Encode serializes the key.
func (k ColumnSequenceKey) Encode() []byte {
	return NewWriter(KindSequence).U64(k.Primitive).U64(k.Column).Bytes()
}

// DecodeColumnSequenceKey decodes a ColumnSequenceKey.
func DecodeColumnSequenceKey(key []byte) (ColumnSequenceKey, bool) {
	r, ok := NewReader(key, KindSequence)
	if !ok {
		return ColumnSequenceKey{}, false
	}
	primitive, ok := r.U64()
	if !ok {
		return ColumnSequenceKey{}, false
	}
	column, ok := r.U64()
	if !ok || !r.Done() {
		return ColumnSequenceKey{}, false
	}
	return ColumnSequenceKey{Primitive: primitive, Column: column}, true
}

// RowSequenceKey addresses the row-number counter of one primitive.
type RowSequenceKey struct {
	Primitive uint64
}

// Encode serializes the key.
func (k RowSequenceKey) Encode() []byte {
	return NewWriter(KindRowSequence).U64(k.Primitive).Bytes()
}

// DecodeRowSequenceKey decodes a RowSequenceKey.
func DecodeRowSequenceKey(key []byte) (RowSequenceKey, bool) {
	r, ok := NewReader(key, KindRowSequence)
	if !ok {
		return RowSequenceKey{}, false
	}
	id, ok := r.U64()
	if !ok || !r.Done() {
		return RowSequenceKey{}, false
	}
	return RowSequenceKey{Primitive: id}, true
}
