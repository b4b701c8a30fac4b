package machine

import (
	"fmt"
	"math"
	"strconv"
)

// NilType is the type of Nil. Its only legal value is Nil, represented as a
// zero-size type rather than struct{} so that a named type can carry the
// Value methods (and so that Nil can be a typed constant).
type NilType struct{}

// Nil is the unique nil value.
var Nil = NilType{}

var _ Value = Nil

func (NilType) String() string { return "nil" }
func (NilType) Kind() Kind     { return KindNil }
func (NilType) Truth() Bool    { return False }

// Bool is the type of a boolean value.
type Bool bool

const (
	False = Bool(false)
	True  = Bool(true)
)

var _ Value = False

func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}
func (b Bool) Kind() Kind  { return KindBool }
func (b Bool) Truth() Bool { return b }

// Number is the type of a number: every number in sarrazin, integer or
// fractional, is an IEEE 754 double. Integers are simply doubles that
// happen to be integral (§3 "integers fit in `number` by being
// representable doubles").
type Number float64

var _ Value = Number(0)

func (n Number) String() string {
	f := float64(n)
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e18 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
func (n Number) Kind() Kind  { return KindNumber }
func (n Number) Truth() Bool { return True } // every number, including 0, is truthy (§3: only nil/false are falsey)

// IsInteger reports whether n is exactly representable as an integer,
// i.e. whether bitwise opcodes (§4.6) may operate on it.
func (n Number) IsInteger() bool {
	f := float64(n)
	return f == math.Trunc(f) && !math.IsInf(f, 0)
}

// Int32 converts n to an int32, per the bitwise opcodes' integer-range
// check (§4.6 "Out-of-integer-range operands panic").
func (n Number) Int32() (int32, error) {
	if !n.IsInteger() {
		return 0, fmt.Errorf("number %s is not an integer", n)
	}
	f := float64(n)
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("number %s is out of int32 range", n)
	}
	return int32(f), nil
}

// Int converts n to a platform int, with the same integrality check as
// Int32 but the wider range of the host's int type (used for indices,
// counts, and capacities, which are bounded separately at INT32_MAX by
// §4.3's growth rule).
func (n Number) Int() (int, error) {
	if !n.IsInteger() {
		return 0, fmt.Errorf("number %s is not an integer", n)
	}
	return int(n), nil
}

// floatCmp performs the three-way, NaN-deterministic comparison required by
// §4.1 ("NaN sorts deterministically"): NaN is considered greater than
// every other number, including +Inf, and equal only to itself.
func floatCmp(x, y float64) int {
	switch {
	case x > y:
		return +1
	case x < y:
		return -1
	case x == y:
		return 0
	}
	// at least one operand is NaN
	switch {
	case x == x:
		return -1 // y is NaN, x is not
	case y == y:
		return +1 // x is NaN, y is not
	default:
		return 0 // both NaN
	}
}
