package engine

import (
	"bytes"
	"math"
	"math/big"

	"github.com/SimonWaldherr/flowDB/internal/columnar"
	"github.com/SimonWaldherr/flowDB/internal/diag"
)

// InfixOp enumerates binary operators.
type InfixOp uint8

const (
	OpAdd InfixOp = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpLt
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
	OpAnd
	OpOr
	OpXor
)

var infixNames = map[InfixOp]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpRem: "%",
	OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=", OpEq: "=", OpNe: "!=",
	OpAnd: "and", OpOr: "or", OpXor: "xor",
}

// Infix applies a binary operator with numeric promotion. Overflow in
// native-width integer arithmetic follows Policy.
type Infix struct {
	Op     InfixOp
	L, R   Expr
	Policy CastPolicy
}

func (e *Infix) Label() string { return infixNames[e.Op] }

func (e *Infix) Eval(rt *Runtime, in *columnar.Batch) (*columnar.ColumnData, error) {
	l, err := e.L.Eval(rt, in)
	if err != nil {
		return nil, err
	}
	r, err := e.R.Eval(rt, in)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case OpAnd, OpOr, OpXor:
		return evalLogical(e.Op, l, r)
	case OpLt, OpLe, OpGt, OpGe, OpEq, OpNe:
		return evalComparison(e.Op, l, r)
	default:
		return evalArithmetic(e.Op, l, r, e.Policy)
	}
}

// evalLogical implements three-valued logic: false AND undefined =
// false; true OR undefined = true; XOR propagates undefined.
func evalLogical(op InfixOp, l, r *columnar.ColumnData) (*columnar.ColumnData, error) {
	out := columnar.NewColumnData(columnar.TypeBool)
	for i := 0; i < l.Len(); i++ {
		lv, rv := l.Get(i), r.Get(i)
		lOK, rOK := lv.Defined(), rv.Defined()
		if (lOK && lv.Type != columnar.TypeBool) || (rOK && rv.Type != columnar.TypeBool) {
			return nil, diag.New(diag.CastFailure, "logical operator expects bool operands")
		}
		switch op {
		case OpAnd:
			switch {
			case lOK && !lv.Bool, rOK && !rv.Bool:
				out.MustAppend(columnar.NewBool(false))
			case lOK && rOK:
				out.MustAppend(columnar.NewBool(true))
			default:
				out.AppendUndefined()
			}
		case OpOr:
			switch {
			case lOK && lv.Bool, rOK && rv.Bool:
				out.MustAppend(columnar.NewBool(true))
			case lOK && rOK:
				out.MustAppend(columnar.NewBool(false))
			default:
				out.AppendUndefined()
			}
		case OpXor:
			if lOK && rOK {
				out.MustAppend(columnar.NewBool(lv.Bool != rv.Bool))
			} else {
				out.AppendUndefined()
			}
		}
	}
	return out, nil
}

func evalComparison(op InfixOp, l, r *columnar.ColumnData) (*columnar.ColumnData, error) {
	out := columnar.NewColumnData(columnar.TypeBool)
	for i := 0; i < l.Len(); i++ {
		lv, rv := l.Get(i), r.Get(i)
		if !lv.Defined() || !rv.Defined() {
			out.AppendUndefined()
			continue
		}
		cmp, ok := Compare(lv, rv)
		if !ok {
			return nil, diag.New(diag.CastFailure, "cannot compare %s with %s", lv.Type, rv.Type)
		}
		var b bool
		switch op {
		case OpLt:
			b = cmp < 0
		case OpLe:
			b = cmp <= 0
		case OpGt:
			b = cmp > 0
		case OpGe:
			b = cmp >= 0
		case OpEq:
			b = cmp == 0
		case OpNe:
			b = cmp != 0
		}
		out.MustAppend(columnar.NewBool(b))
	}
	return out, nil
}

// Compare orders two defined values. ok=false when the types are not
// comparable.
func Compare(a, b columnar.Value) (int, bool) {
	if a.Type.IsNumeric() && b.Type.IsNumeric() {
		ra, rb := toRat(a), toRat(b)
		if ra == nil || rb == nil {
			return 0, false
		}
		return ra.Cmp(rb), true
	}
	if a.Type != b.Type {
		// uuid4 vs uuid7 and date-kind mixes compare by payload.
		if a.Type.IsTemporal() && b.Type.IsTemporal() &&
			a.Type != columnar.TypeDuration && b.Type != columnar.TypeDuration {
			return compareTime(a, b), true
		}
		if (a.Type == columnar.TypeUuid4 || a.Type == columnar.TypeUuid7) &&
			(b.Type == columnar.TypeUuid4 || b.Type == columnar.TypeUuid7) {
			return bytes.Compare(a.UUID[:], b.UUID[:]), true
		}
		return 0, false
	}
	switch a.Type {
	case columnar.TypeBool:
		switch {
		case a.Bool == b.Bool:
			return 0, true
		case b.Bool:
			return -1, true
		default:
			return 1, true
		}
	case columnar.TypeUtf8:
		switch {
		case a.Str == b.Str:
			return 0, true
		case a.Str < b.Str:
			return -1, true
		default:
			return 1, true
		}
	case columnar.TypeBlob:
		return bytes.Compare(a.Bytes, b.Bytes), true
	case columnar.TypeDate, columnar.TypeDateTime, columnar.TypeTime:
		return compareTime(a, b), true
	case columnar.TypeDuration:
		switch {
		case a.Duration == b.Duration:
			return 0, true
		case a.Duration < b.Duration:
			return -1, true
		default:
			return 1, true
		}
	case columnar.TypeUuid4, columnar.TypeUuid7:
		return bytes.Compare(a.UUID[:], b.UUID[:]), true
	}
	return 0, false
}

func compareTime(a, b columnar.Value) int {
	switch {
	case a.Time.Equal(b.Time):
		return 0
	case a.Time.Before(b.Time):
		return -1
	default:
		return 1
	}
}

// toRat lifts any numeric value into a rational for mixed-type
// comparison and decimal arithmetic.
func toRat(v columnar.Value) *big.Rat {
	switch {
	case v.Type == columnar.TypeInt16 || v.Type == columnar.TypeUint16:
		if v.Big == nil {
			return nil
		}
		return new(big.Rat).SetInt(v.Big)
	case v.Type.IsSignedInt():
		return new(big.Rat).SetInt64(v.Int)
	case v.Type.IsUnsignedInt():
		return new(big.Rat).SetUint64(v.Uint)
	case v.Type.IsFloat():
		r := new(big.Rat)
		if r.SetFloat64(v.Float) == nil {
			return nil
		}
		return r
	case v.Type == columnar.TypeDecimal:
		return v.Decimal
	}
	return nil
}

func ratNeg(r *big.Rat) *big.Rat { return new(big.Rat).Neg(r) }

// promote computes the arithmetic result type of two numeric operands:
// integers widen to the smallest common type, integer-with-float yields
// float8, decimal dominates.
func promote(a, b columnar.Type) (columnar.Type, bool) {
	if !a.IsNumeric() || !b.IsNumeric() {
		return columnar.TypeUndefined, false
	}
	switch {
	case a == columnar.TypeDecimal || b == columnar.TypeDecimal:
		return columnar.TypeDecimal, true
	case a.IsFloat() || b.IsFloat():
		return columnar.TypeFloat8, true
	case a == columnar.TypeInt16 || b == columnar.TypeInt16,
		a == columnar.TypeUint16 || b == columnar.TypeUint16:
		return columnar.TypeInt16, true
	case a.IsSignedInt() && b.IsSignedInt():
		if a > b {
			return a, true
		}
		return b, true
	case a.IsUnsignedInt() && b.IsUnsignedInt():
		if a > b {
			return a, true
		}
		return b, true
	default:
		// Mixed signedness: widen into the signed domain.
		return columnar.TypeInt8, true
	}
}

func evalArithmetic(op InfixOp, l, r *columnar.ColumnData, policy CastPolicy) (*columnar.ColumnData, error) {
	target, ok := promote(l.Type(), r.Type())
	if !ok {
		// String concatenation via +.
		if op == OpAdd && l.Type() == columnar.TypeUtf8 && r.Type() == columnar.TypeUtf8 {
			out := columnar.NewColumnData(columnar.TypeUtf8)
			for i := 0; i < l.Len(); i++ {
				lv, rv := l.Get(i), r.Get(i)
				if !lv.Defined() || !rv.Defined() {
					out.AppendUndefined()
					continue
				}
				out.MustAppend(columnar.NewUtf8(lv.Str + rv.Str))
			}
			return out, nil
		}
		return nil, diag.New(diag.CastFailure, "operator %q expects numeric operands, got %s and %s",
			infixNames[op], l.Type(), r.Type())
	}

	out := columnar.NewColumnData(target)
	for i := 0; i < l.Len(); i++ {
		lv, rv := l.Get(i), r.Get(i)
		if !lv.Defined() || !rv.Defined() {
			out.AppendUndefined()
			continue
		}
		v, err := arith(op, lv, rv, target, policy)
		if err != nil {
			return nil, err
		}
		out.MustAppend(v)
	}
	return out, nil
}

func arith(op InfixOp, a, b columnar.Value, target columnar.Type, policy CastPolicy) (columnar.Value, error) {
	switch target {
	case columnar.TypeFloat8:
		x, y := floatOf(a), floatOf(b)
		var f float64
		switch op {
		case OpAdd:
			f = x + y
		case OpSub:
			f = x - y
		case OpMul:
			f = x * y
		case OpDiv:
			if y == 0 {
				return columnar.Undefined, nil
			}
			f = x / y
		case OpRem:
			if y == 0 {
				return columnar.Undefined, nil
			}
			f = math.Mod(x, y)
		}
		return columnar.NewFloat(columnar.TypeFloat8, f), nil

	case columnar.TypeDecimal, columnar.TypeInt16:
		x, y := toRat(a), toRat(b)
		if x == nil || y == nil {
			return columnar.Undefined, nil
		}
		var r *big.Rat
		switch op {
		case OpAdd:
			r = new(big.Rat).Add(x, y)
		case OpSub:
			r = new(big.Rat).Sub(x, y)
		case OpMul:
			r = new(big.Rat).Mul(x, y)
		case OpDiv:
			if y.Sign() == 0 {
				return columnar.Undefined, nil
			}
			r = new(big.Rat).Quo(x, y)
		case OpRem:
			return columnar.Undefined, diag.New(diag.CastFailure, "%% is not defined for %s", target)
		}
		if target == columnar.TypeDecimal {
			return columnar.Value{Type: columnar.TypeDecimal, Decimal: r}, nil
		}
		if !r.IsInt() {
			return columnar.Undefined, nil
		}
		return columnar.Value{Type: columnar.TypeInt16, Big: new(big.Int).Set(r.Num())}, nil

	default:
		// Native integer widths: compute in int64 / uint64 and apply
		// the overflow policy on wrap or bound excess.
		if target.IsUnsignedInt() {
			x, y := a.Uint, b.Uint
			var v uint64
			overflow := false
			switch op {
			case OpAdd:
				v = x + y
				overflow = v < x
			case OpSub:
				if y > x {
					overflow = true
				} else {
					v = x - y
				}
			case OpMul:
				v = x * y
				overflow = x != 0 && v/x != y
			case OpDiv:
				if y == 0 {
					return columnar.Undefined, nil
				}
				v = x / y
			case OpRem:
				if y == 0 {
					return columnar.Undefined, nil
				}
				v = x % y
			}
			_, max, _ := target.IntBounds()
			if !overflow && v > max {
				overflow = true
			}
			if overflow {
				return overflowResult(target, policy, false)
			}
			return columnar.NewUint(target, v), nil
		}

		x, y := intOf(a), intOf(b)
		// Compute exactly in big.Int; the bounds check decides
		// overflow and, for saturation, its direction.
		bx, by := big.NewInt(x), big.NewInt(y)
		exact := new(big.Int)
		switch op {
		case OpAdd:
			exact.Add(bx, by)
		case OpSub:
			exact.Sub(bx, by)
		case OpMul:
			exact.Mul(bx, by)
		case OpDiv:
			if y == 0 {
				return columnar.Undefined, nil
			}
			exact.Quo(bx, by)
		case OpRem:
			if y == 0 {
				return columnar.Undefined, nil
			}
			exact.Rem(bx, by)
		}
		min, maxU, _ := target.IntBounds()
		max := int64(maxU)
		if target == columnar.TypeInt8 {
			max = math.MaxInt64
		}
		if exact.Cmp(big.NewInt(min)) < 0 || exact.Cmp(big.NewInt(max)) > 0 {
			return overflowResult(target, policy, exact.Sign() < 0)
		}
		return columnar.NewInt(target, exact.Int64()), nil
	}
}

func overflowResult(target columnar.Type, policy CastPolicy, negative bool) (columnar.Value, error) {
	switch policy {
	case PolicySaturate:
		min, max, _ := target.IntBounds()
		if target.IsUnsignedInt() {
			return columnar.NewUint(target, max), nil
		}
		if negative {
			return columnar.NewInt(target, min), nil
		}
		return columnar.NewInt(target, int64(max)), nil
	case PolicyUndefined:
		return columnar.Undefined, nil
	default:
		return columnar.Undefined, diag.New(diag.CastOutOfRange, "arithmetic overflow in %s", target).
			WithHelp("use a wider type or a saturating overflow policy")
	}
}

func floatOf(v columnar.Value) float64 {
	switch {
	case v.Type.IsFloat():
		return v.Float
	case v.Type.IsSignedInt():
		return float64(v.Int)
	case v.Type.IsUnsignedInt():
		return float64(v.Uint)
	}
	return 0
}

func intOf(v columnar.Value) int64 {
	switch {
	case v.Type.IsSignedInt():
		return v.Int
	case v.Type.IsUnsignedInt():
		return int64(v.Uint)
	}
	return 0
}

// Between is x between lo and hi, inclusive on both bounds.
type Between struct {
	X, Lo, Hi Expr
}

func (e *Between) Label() string { return "between" }

func (e *Between) Eval(rt *Runtime, in *columnar.Batch) (*columnar.ColumnData, error) {
	lower := &Infix{Op: OpGe, L: e.X, R: e.Lo}
	upper := &Infix{Op: OpLe, L: e.X, R: e.Hi}
	return (&Infix{Op: OpAnd, L: lower, R: upper}).Eval(rt, in)
}
