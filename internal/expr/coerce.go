package expr

import (
	"math"
	"strconv"
	"strings"
)

// toNumber converts v to a number. Null is 0, booleans are 1 and 0, strings
// are parsed after trimming (the empty string is 0, hex uses a 0x prefix).
func toNumber(v Value) (float64, bool) {
	switch v.kind {
	case KindNull:
		return 0, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	case KindNumber:
		return v.n, true
	case KindString:
		return parseNumber(v.s)
	default:
		return 0, false
	}
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := strconv.ParseInt(s[2:], 16, 64)
		if err != nil {
			return math.NaN(), false
		}
		return float64(n), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), false
	}
	return f, true
}

// looksNumeric reports whether a non-empty string parses as a number.
func looksNumeric(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	_, ok := parseNumber(s)
	return ok
}

// toText converts a scalar to its string form. Objects and arrays have no
// string form for comparison purposes.
func toText(v Value) (string, bool) {
	switch v.kind {
	case KindMap, KindSeq:
		return "", false
	default:
		return v.String(), true
	}
}

// Equal implements == : the right operand is converted to the left operand's
// type and compared. If the conversion is impossible the values are unequal;
// equality never fails. Strings compare ignoring case.
func Equal(left, right Value) bool {
	if left.kind == right.kind {
		return sameKindEqual(left, right)
	}
	switch left.kind {
	case KindNull:
		return false
	case KindBool:
		if right.kind == KindMap || right.kind == KindSeq {
			return false
		}
		return left.b == right.Truthy()
	case KindNumber:
		n, ok := toNumber(right)
		return ok && n == left.n
	case KindString:
		s, ok := toText(right)
		return ok && strings.EqualFold(left.s, s)
	default:
		return false
	}
}

func sameKindEqual(left, right Value) bool {
	switch left.kind {
	case KindNull:
		return true
	case KindBool:
		return left.b == right.b
	case KindNumber:
		return left.n == right.n
	case KindString:
		return strings.EqualFold(left.s, right.s)
	case KindMap:
		if len(left.m) != len(right.m) {
			return false
		}
		for k, lv := range left.m {
			rv, ok := right.Field(k)
			if !ok || !Equal(lv, rv) {
				return false
			}
		}
		return true
	case KindSeq:
		if len(left.seq) != len(right.seq) {
			return false
		}
		for i := range left.seq {
			if !Equal(left.seq[i], right.seq[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare orders two values for < <= > >=. It returns -1, 0 or 1.
//
// Two strings compare numerically when both look numeric and ordinally,
// ignoring case, otherwise. Any other scalar pairing is compared numerically
// and fails with TypeMismatch when a string operand is not numeric. Objects
// and arrays cannot be ordered.
func Compare(left, right Value, pos int) (int, error) {
	if left.kind == KindMap || left.kind == KindSeq || right.kind == KindMap || right.kind == KindSeq {
		return 0, evalErrorf(TypeMismatch, pos, "cannot compare %s with %s", left.kind, right.kind)
	}
	if left.kind == KindString && right.kind == KindString {
		if looksNumeric(left.s) && looksNumeric(right.s) {
			l, _ := parseNumber(left.s)
			r, _ := parseNumber(right.s)
			return compareNumbers(l, r), nil
		}
		return strings.Compare(strings.ToLower(left.s), strings.ToLower(right.s)), nil
	}
	l, ok := toNumber(left)
	if !ok {
		return 0, evalErrorf(TypeMismatch, pos, "cannot convert %s %q to a number", left.kind, left.String())
	}
	r, ok := toNumber(right)
	if !ok {
		return 0, evalErrorf(TypeMismatch, pos, "cannot convert %s %q to a number", right.kind, right.String())
	}
	return compareNumbers(l, r), nil
}

func compareNumbers(l, r float64) int {
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	default:
		return 0
	}
}
