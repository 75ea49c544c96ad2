package plan

import (
	"github.com/mecanumlab/fieldpath"
)

// Heading governs the robot's facing angle along a segment. It is a closed
// sum type: exactly one of Constant, Linear, or Tangent, with no leftover
// fields from other variants. Conversions between variants happen at the
// editor's explicit transition points, never implicitly.
type Heading interface {
	// At resolves the facing angle at curve parameter t, given the local
	// tangent direction from the curve evaluator. Result in (-180,180].
	At(t float64, tangent fieldpath.Pair) float64

	sealed()
}

// Constant keeps a fixed facing angle for the whole segment.
type Constant struct {
	AngleDeg float64
}

// Linear sweeps the facing angle from StartDeg to EndDeg along the shortest
// wrap-around direction. 170° to -170° sweeps 20° through the seam, not 340°.
type Linear struct {
	StartDeg float64
	EndDeg   float64
}

// Tangent follows the curve's tangent direction, flipped 180° when Reverse
// is set (robot drives backwards).
type Tangent struct {
	Reverse bool
}

func (c Constant) At(t float64, tangent fieldpath.Pair) float64 {
	return fieldpath.NormalizeDeg(c.AngleDeg)
}

func (l Linear) At(t float64, tangent fieldpath.Pair) float64 {
	return fieldpath.LerpDeg(l.StartDeg, l.EndDeg, t)
}

func (tg Tangent) At(t float64, tangent fieldpath.Pair) float64 {
	a := tangent.Heading()
	if tg.Reverse {
		a = fieldpath.NormalizeDeg(a + 180)
	}
	return a
}

func (Constant) sealed() {}
func (Linear) sealed()   {}
func (Tangent) sealed()  {}
