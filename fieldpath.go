/*
Package fieldpath implements the numeric groundwork for planning and timing
robot motion across a rectangular field: 2D points, epsilon arithmetic, and
degree-based angle helpers with wrap-around semantics.

# BSD License

# Copyright (c) the fieldpath authors

All rights reserved.

Please refer to the license file for more information.
*/
package fieldpath

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/npillmayer/schuko/tracing"
)

// tracer writes to trace with key 'fieldpath'
func tracer() tracing.Trace {
	return tracing.Select("fieldpath")
}

// === Numeric Data Type =====================================================

// Deg2Rad is a constant for converting from DEG to RAD or vice versa
var Deg2Rad float64 = 0.01745329251

// Epsilon : numbers below ε are considered 0
var Epsilon float64 = 0.0000001

// Is0 is a predicate: is n = 0 ?
func Is0(n float64) bool {
	return math.Abs(n) <= Epsilon
}

// Zap makes n = 0 if n "means" to be zero
func Zap(n float64) float64 {
	if Is0(n) {
		n = 0
	}
	return n
}

// === Pair Data Type ========================================================

// Pair is a 2D-point in field-inch coordinates.
type Pair complex128

// Origin represents the frequently used constant (0,0).
var Origin = P(float64(0), float64(0))

// Pretty Stringer for simple pairs.
func (p Pair) String() string {
	return fmt.Sprintf("(%g,%g)", real(p), imag(p))
}

// C returns a Pair as a complex number.
func (p Pair) C() complex128 {
	return complex128(p)
}

// P is a quick notation for contructing a pair from floats.
func P(x, y float64) Pair {
	return Pair(complex(x, y))
}

// F is a quick notation for getting float values from a pair.
func (p Pair) F() (float64, float64) {
	return real(p.C()), imag(p.C())
}

// X is the x-part of a pair.
func (p Pair) X() float64 {
	return real(p.C())
}

// Y is the y-part of a pair.
func (p Pair) Y() float64 {
	return imag(p.C())
}

// Zap rounds x-part and y-part to Epsilon.
func (p Pair) Zap() Pair {
	return P(Zap(p.X()), Zap(p.Y()))
}

// Equal compares two pairs.
func (p Pair) Equal(p2 Pair) bool {
	p2 = p2.Zap()
	return Is0(p.X()-p2.X()) && Is0(p.Y()-p2.Y())
}

// Valid is a predicate: are both coordinates finite?
func (p Pair) Valid() bool {
	return !cmplx.IsNaN(p.C()) && !cmplx.IsInf(p.C())
}

// Scaled returns a new pair scaled by factor a.
func (p Pair) Scaled(a float64) Pair {
	return P(p.X()*a, p.Y()*a).Zap()
}

// Shifted returns a new pair translated by v.
func (p Pair) Shifted(v Pair) Pair {
	return (p + v).Zap()
}

// Dist returns the Euclidean distance between two pairs.
func (p Pair) Dist(p2 Pair) float64 {
	return cmplx.Abs((p2 - p).C())
}

// Heading returns the direction of p as a vector, in degrees within
// (-180,180]. The zero vector has no direction; it maps to 0 and is traced
// as an error because callers are expected to guard against it.
func (p Pair) Heading() float64 {
	if Is0(p.X()) && Is0(p.Y()) {
		tracer().Errorf("heading requested for zero-length vector")
		return 0
	}
	return NormalizeDeg(cmplx.Phase(p.C()) / Deg2Rad)
}

// Lerp interpolates linearly between two pairs, t in [0,1].
func Lerp(p, q Pair, t float64) Pair {
	return p + (q-p).Scaled(t)
}

// === Angles ================================================================

// Angles are degrees throughout; the canonical range is (-180,180].

// NormalizeDeg reduces an angle to the canonical range (-180,180].
func NormalizeDeg(a float64) float64 {
	a = math.Mod(a, 360)
	if a <= -180 {
		a += 360
	} else if a > 180 {
		a -= 360
	}
	return Zap(a)
}

// DegDiff returns the shortest signed sweep from angle a to angle b,
// in (-180,180]. Raw subtraction is wrong near the ±180° seam; always
// use this for angle deltas.
func DegDiff(a, b float64) float64 {
	return NormalizeDeg(b - a)
}

// LerpDeg interpolates from angle a to angle b along the shortest sweep.
func LerpDeg(a, b, t float64) float64 {
	return NormalizeDeg(a + DegDiff(a, b)*t)
}
