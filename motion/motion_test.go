package motion

import (
	"math"
	"testing"

	"github.com/npillmayer/schuko/tracing/gotestingadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mecanumlab/fieldpath"
	"github.com/mecanumlab/fieldpath/plan"
)

func testLimits() plan.Limits {
	lim := plan.DefaultLimits()
	lim.MaxVelocityX = 50
	lim.MaxVelocityY = 50
	lim.MaxVelocity = 50
	lim.MaxAcceleration = 50
	lim.MaxDeceleration = 50
	lim.MaxAngularAcceleration = 180
	lim.AngularRate = 90
	lim.Friction = 0
	return lim
}

func straightSnapshot(lim plan.Limits) (Snapshot, plan.Segment) {
	seg := plan.NewSegment(plan.W(100, 0), plan.Constant{AngleDeg: 0})
	return Snapshot{
		Start:    plan.W(0, 0),
		Segments: []plan.Segment{seg},
		Sequence: []plan.Action{plan.Travel{SegmentID: seg.ID}},
		Limits:   lim,
	}, seg
}

// 100 inches, cap 50, accel 50, decel 50, friction 0: ramps cover 25+25
// inches in 1s each, cruise covers 50 inches in 1s. Total 3s, symmetric.
func TestStraightSegmentClosedForm(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	snap, _ := straightSnapshot(testLimits())
	traj := Simulate(snap)

	require.Len(t, traj.Events, 1)
	ev := traj.Events[0]
	assert.Equal(t, TravelEvent, ev.Kind)
	assert.InDelta(t, 3.0, traj.Total, 1e-9)
	assert.InDelta(t, 100.0, ev.Dist, 1e-9)

	// Symmetric trapezoid: speed at distance s equals speed at dist-s.
	require.Len(t, ev.Speeds, SampleCount+1)
	for i := 0; i <= SampleCount/2; i++ {
		assert.InDelta(t, ev.Speeds[i], ev.Speeds[SampleCount-i], 1e-9,
			"speed asymmetry at sample %d", i)
	}
	// Cruise phase hits the cap.
	assert.InDelta(t, 50.0, ev.Speeds[SampleCount/2], 1e-9)
	// Sample timestamps span the event exactly.
	assert.InDelta(t, ev.Start, ev.Times[0], 1e-9)
	assert.InDelta(t, ev.End, ev.Times[SampleCount], 1e-9)
}

// A straight segment's duration is a function of distance and caps only;
// the sampled arc length of a line is exact at any resolution.
func TestStraightSegmentMatchesDiagonalClosedForm(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	lim := testLimits()
	lim.MaxVelocityY = 25
	seg := plan.NewSegment(plan.W(50, 50), plan.Constant{AngleDeg: 0})
	traj := Simulate(Snapshot{
		Start:    plan.W(0, 0),
		Segments: []plan.Segment{seg},
		Sequence: []plan.Action{plan.Travel{SegmentID: seg.ID}},
		Limits:   lim,
	})

	// Along the diagonal the y-axis cap binds: 25/(1/√2) = 25√2.
	vcap := 25 * math.Sqrt2
	dist := 50 * math.Sqrt2
	ramp := vcap * vcap / 50 // both ramps together, acc = dec = 50
	want := 2*vcap/50 + (dist-ramp)/vcap
	require.Len(t, traj.Events, 1)
	assert.InDelta(t, want, traj.Total, 1e-6)
}

// Friction divides the effective deceleration. At friction 1 the braking
// limit halves to 25, so the 100-inch profile becomes 1s accel (25 in),
// 0.5s cruise (25 in), 2s braking (50 in): 3.5s total against 3s dry.
func TestFrictionLengthensBrakingRamp(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	lim := testLimits()
	lim.Friction = 1
	snap, _ := straightSnapshot(lim)
	traj := Simulate(snap)

	require.Len(t, traj.Events, 1)
	ev := traj.Events[0]
	assert.InDelta(t, 3.5, traj.Total, 1e-9)
	// Cruise still tops out at the velocity cap.
	assert.InDelta(t, 50.0, ev.Speeds[40], 1e-9)
	// 60 inches in, the longer braking ramp has begun: v = sqrt(2*25*40).
	assert.InDelta(t, math.Sqrt(2*25*40), ev.Speeds[60], 1e-9)
	assert.Less(t, ev.Speeds[60], 50.0)
}

// A zero angular acceleration limit derives one from the linear limit acting
// over the chassis half-diagonal, and rotation timing follows it.
func TestAngularAccelerationAutoDerived(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	lim := testLimits()
	lim.MaxAngularAcceleration = 0

	alpha := lim.MaxAcceleration / (math.Hypot(lim.RobotLength, lim.RobotWidth) / 2) / fieldpath.Deg2Rad
	assert.InDelta(t, alpha, angularLimit(lim), 1e-9)

	// 90° sweep at rate 90: both ramps cover rate²/alpha degrees, the rest
	// cruises.
	ramp := lim.AngularRate * lim.AngularRate / alpha
	require.Less(t, ramp, 90.0, "derived alpha must leave a cruise phase")
	want := 2*lim.AngularRate/alpha + (90-ramp)/lim.AngularRate

	traj := Simulate(Snapshot{
		Start:    plan.W(0, 0),
		Sequence: []plan.Action{plan.Rotate{TargetDeg: 90}},
		Limits:   lim,
	})
	require.Len(t, traj.Events, 1)
	assert.InDelta(t, want, traj.Total, 1e-9)
}

func TestWaitAndRotateTiming(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	lim := testLimits()
	traj := Simulate(Snapshot{
		Start: plan.W(0, 0),
		Sequence: []plan.Action{
			plan.Wait{Millis: 500},
			plan.Rotate{TargetDeg: 90},
		},
		Limits: lim,
	})

	require.Len(t, traj.Events, 2)
	assert.InDelta(t, 0.5, traj.Events[0].Duration, 1e-9)

	// 90° at rate 90 deg/s, accel 180 deg/s²: ramps cover 45°, cruise 45°.
	rot := traj.Events[1]
	assert.Equal(t, RotateEvent, rot.Kind)
	assert.InDelta(t, 1.5, rot.Duration, 1e-9)
	assert.InDelta(t, 0.5, rot.Start, 1e-9)
	assert.InDelta(t, 2.0, traj.Total, 1e-9)
	assert.InDelta(t, 90.0, rot.HeadingTo, 1e-9)
}

// Rotating to the current heading costs nothing, and rotate targets resolve
// through the shortest wrap.
func TestRotateShortWay(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	lim := testLimits()
	traj := Simulate(Snapshot{
		Start:           plan.W(0, 0),
		StartHeadingDeg: 170,
		Sequence:        []plan.Action{plan.Rotate{TargetDeg: -170}},
		Limits:          lim,
	})
	require.Len(t, traj.Events, 1)
	// 20° sweep, triangular: 2*sqrt(20/180) ≈ 0.667s, far below the 340°
	// long-way time.
	longWay := Simulate(Snapshot{
		Start:    plan.W(0, 0),
		Sequence: []plan.Action{plan.Rotate{TargetDeg: 170}},
		Limits:   lim,
	})
	assert.Less(t, traj.Total, longWay.Total/2)
}

// Travel start references resolve across intervening waits and rotates.
func TestStartReferenceSkipsNonTravel(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	lim := testLimits()
	seg1 := plan.NewSegment(plan.W(50, 0), plan.Constant{AngleDeg: 0})
	seg2 := plan.NewSegment(plan.W(50, 50), plan.Constant{AngleDeg: 0})
	traj := Simulate(Snapshot{
		Start:    plan.W(0, 0),
		Segments: []plan.Segment{seg1, seg2},
		Sequence: []plan.Action{
			plan.Travel{SegmentID: seg1.ID},
			plan.Wait{Millis: 200},
			plan.Rotate{TargetDeg: 45},
			plan.Travel{SegmentID: seg2.ID},
		},
		Limits: lim,
	})

	require.Len(t, traj.Events, 4)
	second := traj.Events[3]
	assert.True(t, second.From.Equal(fieldpath.P(50, 0)),
		"second travel must start at the first segment's end, got %v", second.From)

	// The clock never runs backwards and events keep action order.
	prevEnd := 0.0
	for i, ev := range traj.Events {
		assert.Equal(t, i, ev.ActionIndex)
		assert.GreaterOrEqual(t, ev.Start, prevEnd-1e-12)
		assert.GreaterOrEqual(t, ev.End, ev.Start)
		prevEnd = ev.End
	}
}

// A travel whose start and end coincide with a pending heading change is a
// pure in-place rotation: valid duration, no NaN anywhere.
func TestZeroLengthTravelIsPureRotation(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	lim := testLimits()
	seg := plan.NewSegment(plan.W(0, 0), plan.Constant{AngleDeg: 90})
	traj := Simulate(Snapshot{
		Start:    plan.W(0, 0),
		Segments: []plan.Segment{seg},
		Sequence: []plan.Action{plan.Travel{SegmentID: seg.ID}},
		Limits:   lim,
	})

	require.Len(t, traj.Events, 1)
	ev := traj.Events[0]
	assert.InDelta(t, 0.0, ev.Dist, 1e-9)
	assert.Greater(t, ev.Duration, 0.0)
	assert.False(t, math.IsNaN(ev.Duration))
	for i, s := range ev.Speeds {
		assert.Equal(t, 0.0, s, "speed sample %d of a zero-length travel", i)
	}
	for _, ts := range ev.Times {
		assert.False(t, math.IsNaN(ts))
	}
	assert.InDelta(t, 90.0, ev.HeadingTo, 1e-9)
}

// When the rotation profile outlasts translation, the event lasts as long as
// the rotation and the sample timestamps stretch to match.
func TestRotationDominatedTravel(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	lim := testLimits()
	lim.AngularRate = 10 // deliberately slow turning
	seg := plan.NewSegment(plan.W(10, 0), plan.Linear{StartDeg: 0, EndDeg: 180})
	traj := Simulate(Snapshot{
		Start:    plan.W(0, 0),
		Segments: []plan.Segment{seg},
		Sequence: []plan.Action{plan.Travel{SegmentID: seg.ID}},
		Limits:   lim,
	})

	require.Len(t, traj.Events, 1)
	ev := traj.Events[0]
	rotOnly := rotationTime(180, lim)
	assert.InDelta(t, rotOnly, ev.Duration, 1e-9)
	assert.InDelta(t, ev.End, ev.Times[len(ev.Times)-1], 1e-9)
}

func TestTangentHeadingWithReverse(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	lim := testLimits()
	seg := plan.NewSegment(plan.W(0, 50), plan.Tangent{Reverse: true})
	traj := Simulate(Snapshot{
		Start:    plan.W(0, 0),
		Segments: []plan.Segment{seg},
		Sequence: []plan.Action{plan.Travel{SegmentID: seg.ID}},
		Limits:   lim,
	})
	require.Len(t, traj.Events, 1)
	// Tangent points at 90°; reversed heading is -90°.
	assert.InDelta(t, -90.0, traj.Events[0].HeadingTo, 1e-9)
}

func TestMarkersResolveToTimestamps(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	lim := testLimits()
	snap, _ := straightSnapshot(lim)
	travel := snap.Sequence[0].(plan.Travel)
	travel.Markers = []plan.Marker{plan.NewMarker("halfway", 0.5)}
	snap.Sequence[0] = travel

	traj := Simulate(snap)
	require.Len(t, traj.Events, 1)
	require.Len(t, traj.Events[0].Markers, 1)
	assert.InDelta(t, 1.5, traj.Events[0].Markers[0].Time, 1e-9)
	assert.Equal(t, "halfway", traj.Events[0].Markers[0].Marker.Name)
}

// Timed markers carry a seconds offset from the action start instead of a
// duration fraction, clamped to the action's span.
func TestTimedMarkersResolveAbsolutely(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	lim := testLimits()
	snap, _ := straightSnapshot(lim)
	travel := snap.Sequence[0].(plan.Travel)
	travel.Markers = []plan.Marker{
		plan.NewTimedMarker("early", 1.2),
		plan.NewTimedMarker("late", 99),
	}
	snap.Sequence[0] = travel

	traj := Simulate(snap)
	require.Len(t, traj.Events, 1)
	markers := traj.Events[0].Markers
	require.Len(t, markers, 2)
	assert.InDelta(t, 1.2, markers[0].Time, 1e-9)
	// Beyond the 3s travel the marker clamps to the event end.
	assert.InDelta(t, traj.Events[0].End, markers[1].Time, 1e-9)
}

// Unknown segment references are traced and skipped, never fatal.
func TestUnknownSegmentIsSkipped(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	traj := Simulate(Snapshot{
		Start:    plan.W(0, 0),
		Sequence: []plan.Action{plan.Travel{SegmentID: "missing"}},
		Limits:   testLimits(),
	})
	assert.Len(t, traj.Events, 0)
	assert.Equal(t, 0.0, traj.Total)
}
