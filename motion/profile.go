package motion

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/mecanumlab/fieldpath"
	"github.com/mecanumlab/fieldpath/plan"
)

// SampleCount is the number of uniform parameter steps per travel segment.
// Events carry SampleCount+1 samples (both endpoints included).
const SampleCount = 100

// profile is the time-indexed result for a single travel segment: total
// duration, approximated arc length, and per-sample speeds and time offsets.
type profile struct {
	duration float64
	dist     float64
	speeds   []float64
	times    []float64 // offsets from the event start, one per sample
}

// brakingLimit is the effective deceleration under friction. The exact
// coupling of the friction coefficient is a tunable: this implementation
// applies it as a single multiplier on the deceleration phase,
// maxDeceleration/(1+friction), so friction 0 leaves the pure trapezoid and
// growing friction lengthens the braking ramp (which on short segments also
// lowers the reachable peak speed).
func brakingLimit(lim plan.Limits) float64 {
	return lim.MaxDeceleration / (1 + lim.Friction)
}

// directionalCap returns the speed limit for travelling along unit-ish
// direction d, treating the x/y velocity caps as independent axis limits
// (mecanum drivetrain, caps not coupled through heading).
func directionalCap(d fieldpath.Pair, lim plan.Limits) float64 {
	n := d.Dist(fieldpath.Origin)
	if fieldpath.Is0(n) {
		return lim.MaxVelocity
	}
	ux, uy := math.Abs(d.X())/n, math.Abs(d.Y())/n
	limit := lim.MaxVelocity
	if !fieldpath.Is0(ux) {
		limit = math.Min(limit, lim.MaxVelocityX/ux)
	}
	if !fieldpath.Is0(uy) {
		limit = math.Min(limit, lim.MaxVelocityY/uy)
	}
	return limit
}

// trapezoid is a closed-form accel/cruise/decel profile for one distance.
type trapezoid struct {
	dist  float64
	acc   float64
	dec   float64
	peak  float64 // reached cruise speed, ≤ the cap
	total float64
}

func newTrapezoid(dist, vcap, acc, dec float64) trapezoid {
	tz := trapezoid{dist: dist, acc: acc, dec: dec}
	if dist <= 0 || vcap <= 0 || acc <= 0 || dec <= 0 {
		return tz
	}
	ramp := vcap*vcap/(2*acc) + vcap*vcap/(2*dec)
	if dist >= ramp {
		tz.peak = vcap
		tz.total = vcap/acc + vcap/dec + (dist-ramp)/vcap
		return tz
	}
	// Distance-limited: triangular profile, peak below the cap.
	tz.peak = math.Sqrt(2 * acc * dec * dist / (acc + dec))
	tz.total = tz.peak/acc + tz.peak/dec
	return tz
}

// speedAt returns the profile speed after covering distance s.
func (tz trapezoid) speedAt(s float64) float64 {
	if tz.total == 0 || s <= 0 {
		return 0
	}
	if s >= tz.dist {
		return 0
	}
	up := math.Sqrt(2 * tz.acc * s)
	down := math.Sqrt(2 * tz.dec * (tz.dist - s))
	return math.Min(tz.peak, math.Min(up, down))
}

// timeAt returns the elapsed time when the profile has covered distance s.
func (tz trapezoid) timeAt(s float64) float64 {
	if tz.total == 0 || s <= 0 {
		return 0
	}
	if s >= tz.dist {
		return tz.total
	}
	sAcc := tz.peak * tz.peak / (2 * tz.acc)
	sDec := tz.peak * tz.peak / (2 * tz.dec)
	switch {
	case s <= sAcc:
		return math.Sqrt(2 * s / tz.acc)
	case s <= tz.dist-sDec:
		return tz.peak/tz.acc + (s-sAcc)/tz.peak
	default:
		// Inside the braking ramp: count back from the stop.
		rem := tz.dist - s
		return tz.total - math.Sqrt(2*rem/tz.dec)
	}
}

// angularLimit returns the angular acceleration cap in deg/s². A configured
// zero selects auto-calculate mode: the linear acceleration limit acting over
// the chassis half-diagonal.
func angularLimit(lim plan.Limits) float64 {
	if !fieldpath.Is0(lim.MaxAngularAcceleration) {
		return lim.MaxAngularAcceleration
	}
	r := lim.HalfDiagonal()
	if fieldpath.Is0(r) {
		return lim.MaxAcceleration // point robot, no lever arm
	}
	return lim.MaxAcceleration / r / fieldpath.Deg2Rad
}

// rotationTime is the trapezoidal time cost for a heading change of
// deltaDeg degrees (sign ignored) at the nominal angular rate.
func rotationTime(deltaDeg float64, lim plan.Limits) float64 {
	sweep := math.Abs(deltaDeg)
	if fieldpath.Is0(sweep) {
		return 0
	}
	alpha := angularLimit(lim)
	return newTrapezoid(sweep, lim.AngularRate, alpha, alpha).total
}

// travelProfile times a sampled travel segment under the limits. points are
// the SampleCount+1 curve samples; headingDelta is the shortest signed
// orientation change required across the segment.
//
// Translation and rotation proceed concurrently, so the segment duration is
// the maximum of the two times, never their sum. When rotation dominates,
// the sample timestamps are stretched uniformly so both profiles conclude
// together.
func travelProfile(points []fieldpath.Pair, headingDelta float64, lim plan.Limits) profile {
	n := len(points)
	steps := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		steps[i] = points[i].Dist(points[i+1])
	}
	arc := make([]float64, n) // arc[i] = distance covered up to sample i
	floats.CumSum(arc[1:], steps)
	dist := arc[n-1]

	rotT := rotationTime(headingDelta, lim)

	if fieldpath.Is0(dist) {
		// Degenerate travel: a pure in-place rotation. No arc-length
		// normalization happens, so no division by zero either.
		p := profile{duration: rotT, speeds: make([]float64, n), times: make([]float64, n)}
		for i := range p.times {
			p.times[i] = rotT * float64(i) / float64(n-1)
		}
		return p
	}

	vcap := lim.MaxVelocity
	for i, s := range steps {
		if fieldpath.Is0(s) {
			continue
		}
		vcap = math.Min(vcap, directionalCap(points[i+1]-points[i], lim))
	}

	tz := newTrapezoid(dist, vcap, lim.MaxAcceleration, brakingLimit(lim))
	p := profile{
		duration: math.Max(tz.total, rotT),
		dist:     dist,
		speeds:   make([]float64, n),
		times:    make([]float64, n),
	}
	stretch := 1.0
	if rotT > tz.total && tz.total > 0 {
		stretch = rotT / tz.total
	}
	for i := 0; i < n; i++ {
		p.speeds[i] = tz.speedAt(arc[i])
		p.times[i] = tz.timeAt(arc[i]) * stretch
	}
	return p
}
