package validate

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Op is a comparison operator for the numeric and length families.
type Op uint8

const (
	LT Op = iota
	LTE
	GT
	GTE
	EQ
	NE
)

func (op Op) String() string {
	switch op {
	case LT:
		return "<"
	case LTE:
		return "<="
	case GT:
		return ">"
	case GTE:
		return ">="
	case EQ:
		return "=="
	case NE:
		return "!="
	}
	return "?"
}

// apply compares a and b. Any NaN operand makes every operator false.
func (op Op) apply(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	switch op {
	case LT:
		return a < b
	case LTE:
		return a <= b
	case GT:
		return a > b
	case GTE:
		return a >= b
	case EQ:
		return a == b
	case NE:
		return a != b
	}
	return false
}

// Match passes for strings matching re.
func Match(re *regexp.Regexp) Validator {
	return Func(func(v any) bool {
		s, ok := v.(string)
		return ok && re.MatchString(s)
	})
}

// MatchString compiles pattern and returns Match. It panics on a bad pattern,
// like regexp.MustCompile, since definitions are built at startup.
func MatchString(pattern string) Validator {
	return Match(regexp.MustCompile(pattern))
}

// Equal passes when the value strictly equals x.
func Equal(x any) Validator {
	return Func(func(v any) bool {
		return strictEqual(v, x)
	})
}

// EqualRef passes when the value strictly equals the value found at path in
// the tree being validated. A missing path never equals a defined value.
func EqualRef(path string) Validator {
	return func(_ context.Context, value any, tree *Tree) Result {
		ref := tree.Lookup(path)
		if IsUndefined(ref) {
			return Bool(IsUndefined(value))
		}
		return Bool(strictEqual(value, ref))
	}
}

// NumCompare coerces the value to a number and compares it with n.
func NumCompare(op Op, n float64) Validator {
	return Func(func(v any) bool {
		return op.apply(toNumber(v), n)
	})
}

// NumCompareRef compares the coerced value with the coerced value at path.
func NumCompareRef(op Op, path string) Validator {
	return func(_ context.Context, value any, tree *Tree) Result {
		return Bool(op.apply(toNumber(value), toNumber(tree.Lookup(path))))
	}
}

// NumMin passes for values >= min.
func NumMin(min float64) Validator { return NumCompare(GTE, min) }

// NumMax passes for values <= max.
func NumMax(max float64) Validator { return NumCompare(LTE, max) }

// NumRange passes for values within [min, max].
func NumRange(min, max float64) Validator {
	return Func(func(v any) bool {
		n := toNumber(v)
		return GTE.apply(n, min) && LTE.apply(n, max)
	})
}

// LenCompare compares the value's length with n.
func LenCompare(op Op, n float64) Validator {
	return Func(func(v any) bool {
		return op.apply(length(v), n)
	})
}

// LenCompareRef compares the value's length with the length of the value
// at path.
func LenCompareRef(op Op, path string) Validator {
	return func(_ context.Context, value any, tree *Tree) Result {
		return Bool(op.apply(length(value), length(tree.Lookup(path))))
	}
}

// LenMin passes for lengths >= min.
func LenMin(min int) Validator { return LenCompare(GTE, float64(min)) }

// LenMax passes for lengths <= max.
func LenMax(max int) Validator { return LenCompare(LTE, float64(max)) }

// LenRange passes for lengths within [min, max].
func LenRange(min, max int) Validator {
	return Func(func(v any) bool {
		l := length(v)
		return GTE.apply(l, float64(min)) && LTE.apply(l, float64(max))
	})
}

// toNumber coerces a decoded value the way a unary plus would: numeric
// strings parse, blank strings are 0, booleans are 0 or 1, null is 0, and
// missing values and objects are NaN.
func toNumber(v any) float64 {
	if n, ok := asNumber(v); ok {
		return n
	}
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		return stringToNumber(x)
	case []any:
		switch len(x) {
		case 0:
			return 0
		case 1:
			return toNumber(x[0])
		}
	}
	return math.NaN()
}

var decimalLiteral = regexp.MustCompile(`^[+-]?(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][+-]?[0-9]+)?$`)

// stringToNumber accepts decimal literals, unsigned 0x/0o/0b integers and
// [+-]Infinity. Underscores, hex floats and other spellings are NaN.
func stringToNumber(str string) float64 {
	s := strings.TrimSpace(str)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}

	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			return radixToNumber(s[2:], base)
		}
	}

	if !decimalLiteral.MatchString(s) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return math.NaN()
	}
	// ErrRange still yields the rounded value (±Inf or 0).
	return f
}

func radixToNumber(digits string, base int) float64 {
	var n float64
	for _, c := range digits {
		var d int
		switch {
		case c >= '0' && c <= '9':
			d = int(c - '0')
		case c >= 'a' && c <= 'f':
			d = int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = int(c-'A') + 10
		default:
			return math.NaN()
		}
		if d >= base {
			return math.NaN()
		}
		n = n*float64(base) + float64(d)
	}
	return n
}

// length is the rune count of strings and element count of arrays; other
// values have no length.
func length(v any) float64 {
	if s, ok := v.(string); ok {
		return float64(utf8.RuneCountInString(s))
	}
	if items, ok := asSlice(v); ok {
		return float64(len(items))
	}
	return math.NaN()
}
