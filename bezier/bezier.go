// Package bezier evaluates control-point-defined curves of arbitrary order
// by repeated linear interpolation (the generalized de Casteljau reduction).
// It is degree-agnostic and numerically stable for the orders the path editor
// produces (typically ≤ 6).
package bezier

import (
	"errors"
	"fmt"

	"github.com/npillmayer/schuko/tracing"

	"github.com/mecanumlab/fieldpath"
)

// tracer writes to trace with key 'fieldpath.bezier'
func tracer() tracing.Trace {
	return tracing.Select("fieldpath.bezier")
}

var (
	// ErrTooFewPoints indicates a control polygon with fewer than 2 points.
	ErrTooFewPoints = errors.New("control polygon needs at least 2 points")
	// ErrInvalidPoint indicates a control point containing NaN/Inf.
	ErrInvalidPoint = errors.New("control polygon has invalid point coordinate")
)

// Validate checks a control polygon before evaluation.
func Validate(poly []fieldpath.Pair) error {
	if len(poly) < 2 {
		return fmt.Errorf("%w: got %d", ErrTooFewPoints, len(poly))
	}
	for i, p := range poly {
		if !p.Valid() {
			return fmt.Errorf("%w at index %d", ErrInvalidPoint, i)
		}
	}
	return nil
}

// At evaluates the curve position at parameter t ∈ [0,1].
//
// A 2-point polygon is the exact linear interpolation start + t*(end-start),
// short-cutting the reduction. Higher orders run n-1 rounds of pairwise
// lerps until a single point remains.
//
// Polygons shorter than 2 points have no curve; At traces the misuse and
// returns the sole point (or origin for an empty polygon).
func At(poly []fieldpath.Pair, t float64) fieldpath.Pair {
	switch len(poly) {
	case 0:
		tracer().Errorf("curve evaluation on empty control polygon")
		return fieldpath.Origin
	case 1:
		return poly[0]
	case 2:
		return fieldpath.Lerp(poly[0], poly[1], t)
	}
	scratch := append([]fieldpath.Pair(nil), poly...)
	return reduce(scratch, t, 1)
}

// reduce runs de Casteljau rounds in place until `stop` points remain and
// returns the first of them.
func reduce(pts []fieldpath.Pair, t float64, stop int) fieldpath.Pair {
	for n := len(pts); n > stop; n-- {
		for i := 0; i < n-1; i++ {
			pts[i] = fieldpath.Lerp(pts[i], pts[i+1], t)
		}
	}
	return pts[0]
}

// Tangent returns the curve's tangent direction at t, as an unnormalized
// vector. It stops the reduction one level early and differences the two
// remaining points, which is the analytic derivative direction.
//
// On a degenerate polygon (all points coincident) the difference collapses;
// Tangent then falls back to the chord start→end, which is itself zero only
// for a fully degenerate curve.
func Tangent(poly []fieldpath.Pair, t float64) fieldpath.Pair {
	if len(poly) < 2 {
		tracer().Errorf("tangent requested for %d-point polygon", len(poly))
		return fieldpath.Origin
	}
	scratch := append([]fieldpath.Pair(nil), poly...)
	reduce(scratch, t, 2)
	d := scratch[1] - scratch[0]
	if d.Zap().Equal(fieldpath.Origin) {
		d = poly[len(poly)-1] - poly[0]
	}
	return d
}

// Promote converts a quadratic control polygon [p0, q, p2] to the equivalent
// cubic [p0, c1, c2, p2], so downstream code operates uniformly on
// cubic-or-higher curves. Any other length passes through unchanged.
func Promote(poly []fieldpath.Pair) []fieldpath.Pair {
	if len(poly) != 3 {
		return poly
	}
	p0, q, p2 := poly[0], poly[1], poly[2]
	c1 := p0 + (q - p0).Scaled(2.0/3.0)
	c2 := p2 + (q - p2).Scaled(2.0/3.0)
	return []fieldpath.Pair{p0, c1, c2, p2}
}

// Sample evaluates the curve at n+1 uniform parameter steps, t = 0/n .. n/n.
func Sample(poly []fieldpath.Pair, n int) []fieldpath.Pair {
	if n < 1 {
		n = 1
	}
	out := make([]fieldpath.Pair, n+1)
	for i := 0; i <= n; i++ {
		out[i] = At(poly, float64(i)/float64(n))
	}
	return out
}
