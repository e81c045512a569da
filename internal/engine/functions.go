package engine

import (
	"math/big"
	"strings"

	"github.com/SimonWaldherr/flowDB/internal/columnar"
	"github.com/SimonWaldherr/flowDB/internal/diag"
)

// Function is a registered scalar function evaluated column-wise.
type Function interface {
	Name() string
	Eval(args []*columnar.ColumnData, rows int) (*columnar.ColumnData, error)
}

// Registry resolves function names case-insensitively.
type Registry struct {
	funcs map[string]Function
}

// NewRegistry returns a registry preloaded with the built-ins.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Function)}
	for _, f := range []Function{
		substringFunc{}, upperFunc{}, lowerFunc{}, lengthFunc{}, absFunc{},
	} {
		r.Register(f)
	}
	return r
}

// Register adds or replaces a function.
func (r *Registry) Register(f Function) {
	r.funcs[strings.ToLower(f.Name())] = f
}

// Lookup returns the named function, or nil.
func (r *Registry) Lookup(name string) Function {
	return r.funcs[strings.ToLower(name)]
}

func arityError(name string, want, got int) error {
	return diag.New(diag.FunctionArityMismatch,
		"%s expects %d arguments, got %d", name, want, got).
		WithLabel("wrong argument count")
}

// substringFunc is substring(text, start, length): character-based,
// negative start counts from the end, a start beyond the length or a
// negative length yields the empty string.
type substringFunc struct{}

func (substringFunc) Name() string { return "substring" }

func (substringFunc) Eval(args []*columnar.ColumnData, rows int) (*columnar.ColumnData, error) {
	if len(args) != 3 {
		return nil, arityError("substring", 3, len(args))
	}
	out := columnar.NewColumnData(columnar.TypeUtf8)
	for i := 0; i < rows; i++ {
		text, start, length := args[0].Get(i), args[1].Get(i), args[2].Get(i)
		if !text.Defined() || !start.Defined() || !length.Defined() {
			out.AppendUndefined()
			continue
		}
		if text.Type != columnar.TypeUtf8 || !start.Type.IsInteger() || !length.Type.IsInteger() {
			return nil, diag.New(diag.FunctionArgumentType,
				"substring expects (utf8, int, int), got (%s, %s, %s)", text.Type, start.Type, length.Type)
		}
		chars := []rune(text.Str)
		n := len(chars)

		startPos := int(intOf(start))
		if startPos < 0 {
			startPos = n + startPos
			if startPos < 0 {
				startPos = 0
			}
		}
		cut := int(intOf(length))
		if cut < 0 {
			cut = 0
		}
		if startPos >= n || cut == 0 {
			out.MustAppend(columnar.NewUtf8(""))
			continue
		}
		end := startPos + cut
		if end > n {
			end = n
		}
		out.MustAppend(columnar.NewUtf8(string(chars[startPos:end])))
	}
	return out, nil
}

type upperFunc struct{}

func (upperFunc) Name() string { return "upper" }

func (upperFunc) Eval(args []*columnar.ColumnData, rows int) (*columnar.ColumnData, error) {
	if len(args) != 1 {
		return nil, arityError("upper", 1, len(args))
	}
	return mapUtf8("upper", args[0], rows, strings.ToUpper)
}

type lowerFunc struct{}

func (lowerFunc) Name() string { return "lower" }

func (lowerFunc) Eval(args []*columnar.ColumnData, rows int) (*columnar.ColumnData, error) {
	if len(args) != 1 {
		return nil, arityError("lower", 1, len(args))
	}
	return mapUtf8("lower", args[0], rows, strings.ToLower)
}

func mapUtf8(name string, col *columnar.ColumnData, rows int, fn func(string) string) (*columnar.ColumnData, error) {
	out := columnar.NewColumnData(columnar.TypeUtf8)
	for i := 0; i < rows; i++ {
		v := col.Get(i)
		if !v.Defined() {
			out.AppendUndefined()
			continue
		}
		if v.Type != columnar.TypeUtf8 {
			return nil, diag.New(diag.FunctionArgumentType, "%s expects utf8, got %s", name, v.Type)
		}
		out.MustAppend(columnar.NewUtf8(fn(v.Str)))
	}
	return out, nil
}

// lengthFunc returns the character count of a string or the byte count
// of a blob.
type lengthFunc struct{}

func (lengthFunc) Name() string { return "length" }

func (lengthFunc) Eval(args []*columnar.ColumnData, rows int) (*columnar.ColumnData, error) {
	if len(args) != 1 {
		return nil, arityError("length", 1, len(args))
	}
	out := columnar.NewColumnData(columnar.TypeInt8)
	for i := 0; i < rows; i++ {
		v := args[0].Get(i)
		switch {
		case !v.Defined():
			out.AppendUndefined()
		case v.Type == columnar.TypeUtf8:
			out.MustAppend(columnar.NewInt(columnar.TypeInt8, int64(len([]rune(v.Str)))))
		case v.Type == columnar.TypeBlob:
			out.MustAppend(columnar.NewInt(columnar.TypeInt8, int64(len(v.Bytes))))
		default:
			return nil, diag.New(diag.FunctionArgumentType, "length expects utf8 or blob, got %s", v.Type)
		}
	}
	return out, nil
}

type absFunc struct{}

func (absFunc) Name() string { return "abs" }

func (absFunc) Eval(args []*columnar.ColumnData, rows int) (*columnar.ColumnData, error) {
	if len(args) != 1 {
		return nil, arityError("abs", 1, len(args))
	}
	col := args[0]
	t := col.Type()
	if !t.IsNumeric() {
		return nil, diag.New(diag.FunctionArgumentType, "abs expects a numeric argument, got %s", t)
	}
	out := columnar.NewColumnData(t)
	for i := 0; i < rows; i++ {
		v := col.Get(i)
		if !v.Defined() {
			out.AppendUndefined()
			continue
		}
		switch {
		case t.IsSignedInt():
			if v.Int < 0 {
				v.Int = -v.Int
			}
		case t.IsFloat():
			if v.Float < 0 {
				v.Float = -v.Float
			}
		case t == columnar.TypeDecimal && v.Decimal != nil:
			v.Decimal = new(big.Rat).Abs(v.Decimal)
		}
		out.MustAppend(v)
	}
	return out, nil
}
