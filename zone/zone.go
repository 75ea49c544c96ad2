// Package zone scans a simulated trajectory against the field boundary and
// the obstacle/keep-in polygons, emitting violation markers. Markers are
// data, never errors: a violating trajectory still simulates and checks to
// completion, and the host decides how to present the result.
//
// The checker reuses the simulator's travel samples (positions and
// timestamps, index-for-index) and never re-samples the curves, so checking
// the same trajectory twice yields identical marker lists.
package zone

import (
	"math"

	polyclip "github.com/akavel/polyclip-go"
	"github.com/npillmayer/schuko/tracing"

	"github.com/mecanumlab/fieldpath"
	"github.com/mecanumlab/fieldpath/motion"
	"github.com/mecanumlab/fieldpath/plan"
)

// tracer writes to trace with key 'fieldpath.zone'
func tracer() tracing.Trace {
	return tracing.Select("fieldpath.zone")
}

// Kind classifies a violation.
type Kind string

const (
	// Boundary marks samples outside the field extents.
	Boundary Kind = "boundary"
	// Obstacle marks samples inside an obstacle polygon.
	Obstacle Kind = "obstacle"
	// KeepIn marks samples outside every keep-in polygon.
	KeepIn Kind = "keep-in"
	// ZeroLength marks a travel whose start and end coincide.
	ZeroLength Kind = "zero-length"
)

// Marker is one violation: a point in time, or a time range when adjacent
// samples of the same kind run together. Time == EndTime for point markers.
type Marker struct {
	Kind        Kind
	Time        float64
	EndTime     float64
	At          fieldpath.Pair
	ActionIndex int
	SegmentID   string
}

// region is a merged set of polygons of one zone kind.
type region struct {
	poly polyclip.Polygon
	box  polyclip.Rectangle
}

func (r region) empty() bool {
	return len(r.poly) == 0
}

// contains is the edge rule shared by obstacle and keep-in checks: the ray
// test of polyclip's Contour.Contains, preceded by a bounding-box reject.
func (r region) contains(p fieldpath.Pair) bool {
	pt := polyclip.Point{X: p.X(), Y: p.Y()}
	if pt.X < r.box.Min.X || pt.X > r.box.Max.X || pt.Y < r.box.Min.Y || pt.Y > r.box.Max.Y {
		return false
	}
	for _, c := range r.poly {
		if c.Contains(pt) {
			return true
		}
	}
	return false
}

// merge unions all valid, visible zones of one kind into a single region,
// so overlapping polygons produce one marker run instead of duplicates.
func merge(zones []plan.Zone, kind plan.ZoneKind) region {
	var acc polyclip.Polygon
	for _, z := range zones {
		if z.Kind != kind || !z.Visible {
			continue
		}
		if !z.Valid() {
			tracer().Errorf("ignoring %d-vertex zone polygon", len(z.Vertices))
			continue
		}
		contour := make(polyclip.Contour, len(z.Vertices))
		for i, v := range z.Vertices {
			contour[i] = polyclip.Point{X: v.X(), Y: v.Y()}
		}
		pg := polyclip.Polygon{contour}
		if acc == nil {
			acc = pg
		} else {
			acc = acc.Construct(polyclip.UNION, pg)
		}
	}
	r := region{poly: acc}
	for i, c := range acc {
		box := c.BoundingBox()
		if i == 0 {
			r.box = box
			continue
		}
		r.box.Min.X = math.Min(r.box.Min.X, box.Min.X)
		r.box.Min.Y = math.Min(r.box.Min.Y, box.Min.Y)
		r.box.Max.X = math.Max(r.box.Max.X, box.Max.X)
		r.box.Max.Y = math.Max(r.box.Max.Y, box.Max.Y)
	}
	return r
}

// Check scans every travel sample of traj. validateBoundary gates the
// field-extents test; obstacle and keep-in tests run whenever matching
// polygons exist. Check is a pure function of its inputs.
func Check(traj motion.Trajectory, field plan.Field, zones []plan.Zone, validateBoundary bool) []Marker {
	obstacles := merge(zones, plan.Obstacle)
	keepIns := merge(zones, plan.KeepIn)

	var markers []Marker
	for _, ev := range traj.Events {
		if ev.Kind != motion.TravelEvent {
			continue
		}
		if fieldpath.Is0(ev.Dist) {
			// Degenerate geometry gets its own marker, but the samples (all
			// coincident) still run through the positional scans below.
			markers = append(markers, Marker{
				Kind:        ZeroLength,
				Time:        ev.Start,
				EndTime:     ev.Start,
				At:          ev.From,
				ActionIndex: ev.ActionIndex,
				SegmentID:   ev.SegmentID,
			})
		}

		markers = append(markers, scanEvent(ev, Boundary, func(p fieldpath.Pair) bool {
			return validateBoundary && !field.Contains(p)
		})...)
		if !obstacles.empty() {
			markers = append(markers, scanEvent(ev, Obstacle, obstacles.contains)...)
		}
		if !keepIns.empty() {
			markers = append(markers, scanEvent(ev, KeepIn, func(p fieldpath.Pair) bool {
				return !keepIns.contains(p)
			})...)
		}
	}
	tracer().Debugf("constraint check: %d markers over %d events", len(markers), len(traj.Events))
	return markers
}

// scanEvent walks one travel event's samples, merging adjacent violating
// samples into a single time-ranged marker per run.
func scanEvent(ev motion.Event, kind Kind, violates func(fieldpath.Pair) bool) []Marker {
	var out []Marker
	runStart := -1
	for i, p := range ev.Points {
		if violates(p) {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if runStart >= 0 {
			out = append(out, rangeMarker(ev, kind, runStart, i-1))
			runStart = -1
		}
	}
	if runStart >= 0 {
		out = append(out, rangeMarker(ev, kind, runStart, len(ev.Points)-1))
	}
	return out
}

func rangeMarker(ev motion.Event, kind Kind, first, last int) Marker {
	return Marker{
		Kind:        kind,
		Time:        ev.Times[first],
		EndTime:     ev.Times[last],
		At:          ev.Points[first],
		ActionIndex: ev.ActionIndex,
		SegmentID:   ev.SegmentID,
	}
}
