// Package plan holds the editable path model consumed by the simulation and
// optimization packages: waypoints, curved segments with heading behavior,
// the ordered action sequence, obstacle and keep-in zones, and the kinematic
// limit settings. The editing surface owns these values; everything here is
// passed by value into the core, which never retains it between calls.
package plan

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/npillmayer/schuko/tracing"

	"github.com/mecanumlab/fieldpath"
)

// tracer writes to trace with key 'fieldpath.plan'
func tracer() tracing.Trace {
	return tracing.Select("fieldpath.plan")
}

var (
	// ErrNonPositiveLimit indicates a velocity or acceleration cap that is zero or negative.
	ErrNonPositiveLimit = errors.New("kinematic limit must be positive")
	// ErrNegativeLimit indicates a setting that may be zero but not negative.
	ErrNegativeLimit = errors.New("kinematic setting must not be negative")
)

// === Waypoints and Segments ================================================

// Waypoint is a position on the field. Locked waypoints are never moved by
// the optimizer or by programmatic edits.
type Waypoint struct {
	Pos    fieldpath.Pair
	Locked bool
}

// W is a quick notation for an unlocked waypoint.
func W(x, y float64) Waypoint {
	return Waypoint{Pos: fieldpath.P(x, y)}
}

// Segment is one curved path piece. Its start is implicit: the end of the
// previous travel segment, or the global start point for the first one.
// The geometric order is len(Controls)+1; zero control points means a
// straight line.
type Segment struct {
	ID       string
	End      Waypoint
	Heading  Heading
	Controls []Waypoint
	Color    string
	Locked   bool
}

// NewSegment creates a segment with a fresh identity.
func NewSegment(end Waypoint, h Heading) Segment {
	return Segment{ID: uuid.NewString(), End: end, Heading: h}
}

// Order returns the geometric order of the segment's curve.
func (s Segment) Order() int {
	return len(s.Controls) + 1
}

// Polyline assembles the control polygon [start, controls..., end] for the
// curve evaluator.
func (s Segment) Polyline(start fieldpath.Pair) []fieldpath.Pair {
	poly := make([]fieldpath.Pair, 0, len(s.Controls)+2)
	poly = append(poly, start)
	for _, c := range s.Controls {
		poly = append(poly, c.Pos)
	}
	return append(poly, s.End.Pos)
}

// CopySegments deep-copies a segment list. The simulator and the optimizer
// both work on copies, so callers never observe partial mutation.
func CopySegments(segs []Segment) []Segment {
	out := make([]Segment, len(segs))
	for i, s := range segs {
		out[i] = s
		out[i].Controls = append([]Waypoint(nil), s.Controls...)
	}
	return out
}

// === Sequence Actions ======================================================

// Action is one step in the ordered sequence the robot executes.
type Action interface {
	isAction()
}

// Marker annotates a point within an action, for display only. Position is a
// fraction in [0,1] of the action's duration. When Timed is set, Offset pins
// the marker at a seconds offset from the action start instead, clamped to
// the action's duration.
type Marker struct {
	ID       string
	Name     string
	Position float64
	Offset   float64
	Timed    bool
}

// NewMarker creates a fraction-positioned marker with a fresh identity.
func NewMarker(name string, position float64) Marker {
	return Marker{ID: uuid.NewString(), Name: name, Position: position}
}

// NewTimedMarker creates a marker pinned at a seconds offset from the start
// of its action.
func NewTimedMarker(name string, seconds float64) Marker {
	return Marker{ID: uuid.NewString(), Name: name, Offset: seconds, Timed: true}
}

// Travel drives along the segment identified by SegmentID.
type Travel struct {
	SegmentID string
	Locked    bool
	Markers   []Marker
}

// Wait holds position for a fixed duration.
type Wait struct {
	Millis  float64
	Locked  bool
	Markers []Marker
}

// Rotate turns in place to the target heading.
type Rotate struct {
	TargetDeg float64
	Locked    bool
	Markers   []Marker
}

func (Travel) isAction() {}
func (Wait) isAction()   {}
func (Rotate) isAction() {}

// CopyActions deep-copies an action sequence.
func CopyActions(seq []Action) []Action {
	out := make([]Action, len(seq))
	for i, a := range seq {
		switch act := a.(type) {
		case Travel:
			act.Markers = append([]Marker(nil), act.Markers...)
			out[i] = act
		case Wait:
			act.Markers = append([]Marker(nil), act.Markers...)
			out[i] = act
		case Rotate:
			act.Markers = append([]Marker(nil), act.Markers...)
			out[i] = act
		default:
			tracer().Errorf("unknown action type %T", a)
			out[i] = a
		}
	}
	return out
}

// === Zones =================================================================

// ZoneKind distinguishes polygons the robot must avoid from polygons the
// robot must remain inside.
type ZoneKind int

const (
	// Obstacle marks a polygon the robot must stay out of.
	Obstacle ZoneKind = iota
	// KeepIn marks a polygon the robot must stay inside.
	KeepIn
)

// Zone is an obstacle or keep-in polygon. Vertex order defines the winding
// used for containment tests.
type Zone struct {
	Vertices []fieldpath.Pair
	Kind     ZoneKind
	Visible  bool
}

// Valid is a predicate: a zone needs at least 3 vertices for containment
// tests to be meaningful.
func (z Zone) Valid() bool {
	return len(z.Vertices) >= 3
}

// CopyZones deep-copies a zone list.
func CopyZones(zones []Zone) []Zone {
	out := make([]Zone, len(zones))
	for i, z := range zones {
		out[i] = z
		out[i].Vertices = append([]fieldpath.Pair(nil), z.Vertices...)
	}
	return out
}

// === Kinematic Limits ======================================================

// Limits collects the drivetrain and chassis settings consumed by the
// profiler and by field-interior clamping. Velocities are inches/second,
// accelerations inches/second², angles degrees.
type Limits struct {
	MaxVelocityX float64 // per-axis cap, independent (mecanum drivetrain)
	MaxVelocityY float64
	MaxVelocity  float64 // scalar cap, applied after the axis caps

	MaxAcceleration float64
	MaxDeceleration float64

	// MaxAngularAcceleration in deg/s²; 0 selects auto-derivation from the
	// linear acceleration limit over the chassis half-diagonal.
	MaxAngularAcceleration float64
	AngularRate            float64 // nominal cruise rate, deg/s

	// Friction lengthens the deceleration phase; 0 leaves the profile a pure
	// trapezoid. See motion.brakingLimit for the exact coupling.
	Friction float64

	RobotLength  float64 // inches
	RobotWidth   float64 // inches
	SafetyMargin float64 // inches, added to the chassis half-extent

	// ValidateBoundary gates the field-extents constraint check.
	ValidateBoundary bool
	// RestrictToField re-clamps mutated waypoints into the field interior.
	RestrictToField bool
}

// DefaultLimits returns neutral but usable settings. Real defaults are an
// editor concern.
func DefaultLimits() Limits {
	return Limits{
		MaxVelocityX:     50,
		MaxVelocityY:     50,
		MaxVelocity:      50,
		MaxAcceleration:  50,
		MaxDeceleration:  50,
		AngularRate:      180,
		RobotLength:      18,
		RobotWidth:       18,
		SafetyMargin:     0,
		ValidateBoundary: true,
		RestrictToField:  true,
	}
}

// Validate rejects unusable settings before any simulation or optimization
// runs. Zero MaxAngularAcceleration is legal (auto-derive mode).
func (l Limits) Validate() error {
	positives := []struct {
		name string
		v    float64
	}{
		{"MaxVelocityX", l.MaxVelocityX},
		{"MaxVelocityY", l.MaxVelocityY},
		{"MaxVelocity", l.MaxVelocity},
		{"MaxAcceleration", l.MaxAcceleration},
		{"MaxDeceleration", l.MaxDeceleration},
		{"AngularRate", l.AngularRate},
	}
	for _, p := range positives {
		if p.v <= 0 || math.IsNaN(p.v) || math.IsInf(p.v, 0) {
			return fmt.Errorf("%w: %s = %g", ErrNonPositiveLimit, p.name, p.v)
		}
	}
	nonNegatives := []struct {
		name string
		v    float64
	}{
		{"MaxAngularAcceleration", l.MaxAngularAcceleration},
		{"Friction", l.Friction},
		{"RobotLength", l.RobotLength},
		{"RobotWidth", l.RobotWidth},
		{"SafetyMargin", l.SafetyMargin},
	}
	for _, p := range nonNegatives {
		if p.v < 0 || math.IsNaN(p.v) || math.IsInf(p.v, 0) {
			return fmt.Errorf("%w: %s = %g", ErrNegativeLimit, p.name, p.v)
		}
	}
	return nil
}

// HalfDiagonal returns the chassis half-diagonal in inches, the lever arm
// used when deriving angular limits from linear ones.
func (l Limits) HalfDiagonal() float64 {
	return math.Hypot(l.RobotLength, l.RobotWidth) / 2
}

/// Inset returns the clamping inset from the field edge: the larger chassis
// half-extent plus the safety margin.
func (l Limits) Inset() float64 {
	return math.Max(l.RobotLength, l.RobotWidth)/2 + l.SafetyMargin
}

// === Field =================================================================

// Field is the rectangular playing surface, [0,Width]×[0,Height] inches.
type Field struct {
	Width  float64
	Height float64
}

// DefaultField returns the 144×144 inch field.
func DefaultField() Field {
	return Field{Width: 144, Height: 144}
}

// Contains is a predicate: does the field boundary contain p? Points on the
// boundary count as inside.
func (f Field) Contains(p fieldpath.Pair) bool {
	x, y := p.F()
	return x >= 0 && x <= f.Width && y >= 0 && y <= f.Height
}

// ClampInterior clamps p into the field rectangle inset on every side, so a
// robot centered on the result keeps its chassis plus margin on the field.
func (f Field) ClampInterior(p fieldpath.Pair, inset float64) fieldpath.Pair {
	x, y := p.F()
	x = math.Min(math.Max(x, inset), f.Width-inset)
	y = math.Min(math.Max(y, inset), f.Height-inset)
	return fieldpath.P(x, y)
}
