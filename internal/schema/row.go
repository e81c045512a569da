package schema

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/SimonWaldherr/flowDB/internal/columnar"
)

// Encoded row format:
//
//	[fingerprint u64 be]
//	[validity bitmap, ceil(n/8) bytes, bit i = field i defined]
//	[fixed-width section, offsets per layout]
//	[variable-length region]
//
// Variable-width fields (utf8, blob, decimal) occupy an 8-byte slot in
// the fixed section: offset u32 into the var region plus length u32.
// A row is immutable; mutation re-encodes.

const fingerprintSize = 8

func validitySize(n int) int { return (n + 7) / 8 }

func isVarWidth(t columnar.Type) bool {
	return t == columnar.TypeUtf8 || t == columnar.TypeBlob || t == columnar.TypeDecimal
}

// EncodeRow serializes one row. The value list must match the layout
// field-for-field: same count, each value either undefined or of the
// field's exact type (coercion happens upstream).
func EncodeRow(l *Layout, values []columnar.Value) ([]byte, error) {
	if len(values) != l.NumFields() {
		return nil, fmt.Errorf("row has %d values, layout has %d fields", len(values), l.NumFields())
	}
	headerSize := fingerprintSize + validitySize(l.NumFields())
	buf := make([]byte, headerSize+l.fixedSize)
	binary.BigEndian.PutUint64(buf, l.fingerprint)

	var varRegion []byte
	for i, v := range values {
		f := l.Field(i)
		if !v.Defined() {
			continue
		}
		if v.Type != f.Type {
			return nil, fmt.Errorf("field %q: value type %s, layout type %s", f.Name, v.Type, f.Type)
		}
		buf[fingerprintSize+i/8] |= 1 << (uint(i) % 8)
		slot := buf[headerSize+f.Offset : headerSize+f.Offset+f.Size]

		if isVarWidth(f.Type) {
			var payload []byte
			switch f.Type {
			case columnar.TypeUtf8:
				payload = []byte(v.Str)
			case columnar.TypeBlob:
				payload = v.Bytes
			case columnar.TypeDecimal:
				if v.Decimal != nil {
					payload = []byte(v.Decimal.RatString())
				}
			}
			if len(payload) > math.MaxUint32 || len(varRegion) > math.MaxUint32-len(payload) {
				return nil, fmt.Errorf("field %q: variable payload too large", f.Name)
			}
			binary.BigEndian.PutUint32(slot, uint32(len(varRegion)))
			binary.BigEndian.PutUint32(slot[4:], uint32(len(payload)))
			varRegion = append(varRegion, payload...)
			continue
		}

		switch f.Type {
		case columnar.TypeBool:
			if v.Bool {
				slot[0] = 1
			}
		case columnar.TypeInt1, columnar.TypeInt2, columnar.TypeInt4, columnar.TypeInt8:
			putInt(slot, v.Int)
		case columnar.TypeUint1, columnar.TypeUint2, columnar.TypeUint4, columnar.TypeUint8:
			putUint(slot, v.Uint)
		case columnar.TypeInt16, columnar.TypeUint16:
			putBig(slot, v.Big)
		case columnar.TypeFloat4:
			binary.BigEndian.PutUint32(slot, math.Float32bits(float32(v.Float)))
		case columnar.TypeFloat8:
			binary.BigEndian.PutUint64(slot, math.Float64bits(v.Float))
		case columnar.TypeDate:
			days := v.Time.Unix() / 86400
			binary.BigEndian.PutUint32(slot, uint32(int32(days)))
		case columnar.TypeDateTime:
			binary.BigEndian.PutUint64(slot, uint64(v.Time.UnixMicro()))
		case columnar.TypeTime:
			ms := v.Time.Hour()*3600000 + v.Time.Minute()*60000 + v.Time.Second()*1000 + v.Time.Nanosecond()/1e6
			binary.BigEndian.PutUint32(slot, uint32(ms))
		case columnar.TypeDuration:
			binary.BigEndian.PutUint64(slot, uint64(v.Duration.Nanoseconds()))
		case columnar.TypeUuid4, columnar.TypeUuid7:
			copy(slot, v.UUID[:])
		default:
			return nil, fmt.Errorf("field %q: cannot encode type %s", f.Name, f.Type)
		}
	}
	return append(buf, varRegion...), nil
}

func putInt(slot []byte, v int64) {
	switch len(slot) {
	case 1:
		slot[0] = byte(int8(v))
	case 2:
		binary.BigEndian.PutUint16(slot, uint16(int16(v)))
	case 4:
		binary.BigEndian.PutUint32(slot, uint32(int32(v)))
	case 8:
		binary.BigEndian.PutUint64(slot, uint64(v))
	}
}

func putUint(slot []byte, v uint64) {
	switch len(slot) {
	case 1:
		slot[0] = byte(v)
	case 2:
		binary.BigEndian.PutUint16(slot, uint16(v))
	case 4:
		binary.BigEndian.PutUint32(slot, uint32(v))
	case 8:
		binary.BigEndian.PutUint64(slot, v)
	}
}

// putBig stores a 128-bit integer as two's complement big-endian.
func putBig(slot []byte, v *big.Int) {
	if v == nil {
		return
	}
	b := v.Bytes()
	if v.Sign() >= 0 {
		copy(slot[16-len(b):], b)
		return
	}
	// Two's complement: 2^128 + v.
	mod := new(big.Int).Lsh(big.NewInt(1), 128)
	tc := new(big.Int).Add(mod, v)
	b = tc.Bytes()
	copy(slot[16-len(b):], b)
}

func getBig(slot []byte, signed bool) *big.Int {
	v := new(big.Int).SetBytes(slot)
	if signed && slot[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), 128)
		v.Sub(v, mod)
	}
	return v
}

// RowFingerprint extracts the layout fingerprint of an encoded row.
func RowFingerprint(raw []byte) (uint64, bool) {
	if len(raw) < fingerprintSize {
		return 0, false
	}
	return binary.BigEndian.Uint64(raw), true
}

// DecodeField extracts field i of an encoded row written with l.
func DecodeField(l *Layout, raw []byte, i int) (columnar.Value, error) {
	headerSize := fingerprintSize + validitySize(l.NumFields())
	if len(raw) < headerSize+l.fixedSize {
		return columnar.Undefined, fmt.Errorf("row truncated: %d bytes", len(raw))
	}
	if raw[fingerprintSize+i/8]&(1<<(uint(i)%8)) == 0 {
		return columnar.Undefined, nil
	}
	f := l.Field(i)
	slot := raw[headerSize+f.Offset : headerSize+f.Offset+f.Size]
	v := columnar.Value{Type: f.Type}

	if isVarWidth(f.Type) {
		varRegion := raw[headerSize+l.fixedSize:]
		off := binary.BigEndian.Uint32(slot)
		length := binary.BigEndian.Uint32(slot[4:])
		if uint64(off)+uint64(length) > uint64(len(varRegion)) {
			return columnar.Undefined, fmt.Errorf("field %q: var slot out of bounds", f.Name)
		}
		payload := varRegion[off : off+length]
		switch f.Type {
		case columnar.TypeUtf8:
			v.Str = string(payload)
		case columnar.TypeBlob:
			v.Bytes = append([]byte(nil), payload...)
		case columnar.TypeDecimal:
			r := new(big.Rat)
			if _, ok := r.SetString(string(payload)); !ok {
				return columnar.Undefined, fmt.Errorf("field %q: bad decimal payload", f.Name)
			}
			v.Decimal = r
		}
		return v, nil
	}

	switch f.Type {
	case columnar.TypeBool:
		v.Bool = slot[0] != 0
	case columnar.TypeInt1:
		v.Int = int64(int8(slot[0]))
	case columnar.TypeInt2:
		v.Int = int64(int16(binary.BigEndian.Uint16(slot)))
	case columnar.TypeInt4:
		v.Int = int64(int32(binary.BigEndian.Uint32(slot)))
	case columnar.TypeInt8:
		v.Int = int64(binary.BigEndian.Uint64(slot))
	case columnar.TypeUint1:
		v.Uint = uint64(slot[0])
	case columnar.TypeUint2:
		v.Uint = uint64(binary.BigEndian.Uint16(slot))
	case columnar.TypeUint4:
		v.Uint = uint64(binary.BigEndian.Uint32(slot))
	case columnar.TypeUint8:
		v.Uint = binary.BigEndian.Uint64(slot)
	case columnar.TypeInt16:
		v.Big = getBig(slot, true)
	case columnar.TypeUint16:
		v.Big = getBig(slot, false)
	case columnar.TypeFloat4:
		v.Float = float64(math.Float32frombits(binary.BigEndian.Uint32(slot)))
	case columnar.TypeFloat8:
		v.Float = math.Float64frombits(binary.BigEndian.Uint64(slot))
	case columnar.TypeDate:
		days := int32(binary.BigEndian.Uint32(slot))
		v.Time = time.Unix(int64(days)*86400, 0).UTC()
	case columnar.TypeDateTime:
		v.Time = time.UnixMicro(int64(binary.BigEndian.Uint64(slot))).UTC()
	case columnar.TypeTime:
		ms := int(binary.BigEndian.Uint32(slot))
		v.Time = time.Date(0, 1, 1, ms/3600000, ms/60000%60, ms/1000%60, ms%1000*1e6, time.UTC)
	case columnar.TypeDuration:
		v.Duration = time.Duration(binary.BigEndian.Uint64(slot))
	case columnar.TypeUuid4, columnar.TypeUuid7:
		copy(v.UUID[:], slot)
	default:
		return columnar.Undefined, fmt.Errorf("field %q: cannot decode type %s", f.Name, f.Type)
	}
	return v, nil
}

// DecodeRow extracts every field of an encoded row written with l.
func DecodeRow(l *Layout, raw []byte) ([]columnar.Value, error) {
	out := make([]columnar.Value, l.NumFields())
	for i := range out {
		v, err := DecodeField(l, raw, i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
