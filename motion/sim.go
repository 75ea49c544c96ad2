// Package motion turns a path snapshot into a timed trajectory. It walks the
// ordered action sequence in a single pass, profiles each travel segment
// under the kinematic limits, and concatenates the results into one timeline
// with absolute start/end times.
//
// Simulate is a pure function of its snapshot: it copies its inputs on entry,
// holds no state between calls, and never fails on well-formed geometry.
package motion

import (
	"github.com/npillmayer/schuko/tracing"

	"github.com/mecanumlab/fieldpath"
	"github.com/mecanumlab/fieldpath/bezier"
	"github.com/mecanumlab/fieldpath/plan"
)

// tracer writes to trace with key 'fieldpath.motion'
func tracer() tracing.Trace {
	return tracing.Select("fieldpath.motion")
}

// Snapshot is the complete simulation input, passed by value. The host hands
// one over whenever it decides the edited state changed.
type Snapshot struct {
	Start           plan.Waypoint
	StartHeadingDeg float64
	Segments        []plan.Segment
	Sequence        []plan.Action
	Limits          plan.Limits
}

// EventKind tags a timeline event.
type EventKind int

const (
	TravelEvent EventKind = iota
	WaitEvent
	RotateEvent
)

func (k EventKind) String() string {
	switch k {
	case TravelEvent:
		return "travel"
	case WaitEvent:
		return "wait"
	case RotateEvent:
		return "rotate"
	}
	return "unknown"
}

// MarkerTime is an action's annotation marker resolved to an absolute
// timestamp. Annotation only; markers never influence timing.
type MarkerTime struct {
	Marker plan.Marker
	Time   float64
}

// Event is one simulated action's time-bounded record. Travel events carry
// the curve samples: positions, speeds, and absolute timestamps, aligned
// index-for-index. Consumers (renderer heatmap, constraint checker) reuse
// these samples instead of re-sampling.
type Event struct {
	Kind        EventKind
	Start       float64 // seconds, absolute
	End         float64
	Duration    float64
	ActionIndex int

	// Travel only.
	SegmentID string
	From      fieldpath.Pair
	Dist      float64
	Points    []fieldpath.Pair
	Speeds    []float64
	Times     []float64

	HeadingFrom float64
	HeadingTo   float64

	Markers []MarkerTime
}

// Trajectory is the immutable simulation output: events in action order plus
// the total time. It is owned solely by the Simulate call that produced it.
type Trajectory struct {
	Events []Event
	Total  float64
}

// Simulate walks the action sequence and produces the concatenated timeline.
//
// The start reference of each travel segment is the end waypoint of the
// previous travel segment, or the global start point before any travel has
// happened; intervening waits and rotates do not change position. Total time
// is monotonically non-decreasing across events and event order matches
// action order exactly.
func Simulate(snap Snapshot) Trajectory {
	segments := plan.CopySegments(snap.Segments)
	sequence := plan.CopyActions(snap.Sequence)
	lim := snap.Limits

	byID := make(map[string]plan.Segment, len(segments))
	for _, s := range segments {
		byID[s.ID] = s
	}

	pos := snap.Start.Pos
	heading := fieldpath.NormalizeDeg(snap.StartHeadingDeg)
	clock := 0.0

	traj := Trajectory{Events: make([]Event, 0, len(sequence))}
	for i, action := range sequence {
		var ev Event
		switch act := action.(type) {
		case plan.Travel:
			seg, ok := byID[act.SegmentID]
			if !ok {
				tracer().Errorf("travel action %d references unknown segment %q", i, act.SegmentID)
				continue
			}
			var endHeading float64
			ev, endHeading = simulateTravel(seg, pos, heading, lim)
			ev.ActionIndex = i
			ev.Start = clock
			ev.End = clock + ev.Duration
			for j := range ev.Times {
				ev.Times[j] += clock
			}
			ev.Markers = resolveMarkers(act.Markers, clock, ev.Duration)
			pos = seg.End.Pos
			heading = endHeading

		case plan.Wait:
			d := act.Millis / 1000
			if d < 0 {
				tracer().Errorf("wait action %d has negative duration %gms", i, act.Millis)
				d = 0
			}
			ev = Event{
				Kind:        WaitEvent,
				Start:       clock,
				End:         clock + d,
				Duration:    d,
				ActionIndex: i,
				From:        pos,
				HeadingFrom: heading,
				HeadingTo:   heading,
				Markers:     resolveMarkers(act.Markers, clock, d),
			}

		case plan.Rotate:
			delta := fieldpath.DegDiff(heading, act.TargetDeg)
			d := rotationTime(delta, lim)
			ev = Event{
				Kind:        RotateEvent,
				Start:       clock,
				End:         clock + d,
				Duration:    d,
				ActionIndex: i,
				From:        pos,
				HeadingFrom: heading,
				HeadingTo:   fieldpath.NormalizeDeg(act.TargetDeg),
				Markers:     resolveMarkers(act.Markers, clock, d),
			}
			heading = ev.HeadingTo

		default:
			tracer().Errorf("action %d has unknown type %T", i, action)
			continue
		}
		clock = ev.End
		traj.Events = append(traj.Events, ev)
	}
	traj.Total = clock
	tracer().Debugf("simulated %d events, total %.3fs", len(traj.Events), traj.Total)
	return traj
}

// simulateTravel profiles one travel segment starting at pos with the given
// heading. Returns the event (with event-relative sample times) and the
// robot's heading at the segment end.
func simulateTravel(seg plan.Segment, pos fieldpath.Pair, heading float64, lim plan.Limits) (Event, float64) {
	poly := bezier.Promote(seg.Polyline(pos))
	if err := bezier.Validate(poly); err != nil {
		tracer().Errorf("segment %q: %v", seg.ID, err)
	}
	points := bezier.Sample(poly, SampleCount)

	endHeading := heading
	if seg.Heading != nil {
		tang := bezier.Tangent(poly, 1)
		_, tangentMode := seg.Heading.(plan.Tangent)
		if tangentMode && tang.Zap().Equal(fieldpath.Origin) {
			// Fully degenerate curve: a tangent heading has no direction to
			// follow, so the robot keeps its current orientation.
		} else {
			endHeading = seg.Heading.At(1, tang)
		}
	}

	delta := fieldpath.DegDiff(heading, endHeading)
	prof := travelProfile(points, delta, lim)

	return Event{
		Kind:        TravelEvent,
		Duration:    prof.duration,
		SegmentID:   seg.ID,
		From:        pos,
		Dist:        prof.dist,
		Points:      points,
		Speeds:      prof.speeds,
		Times:       prof.times,
		HeadingFrom: heading,
		HeadingTo:   endHeading,
	}, endHeading
}

func resolveMarkers(markers []plan.Marker, start, duration float64) []MarkerTime {
	if len(markers) == 0 {
		return nil
	}
	out := make([]MarkerTime, len(markers))
	for i, m := range markers {
		var at float64
		if m.Timed {
			at = m.Offset
			if at < 0 {
				at = 0
			} else if at > duration {
				at = duration
			}
		} else {
			frac := m.Position
			if frac < 0 {
				frac = 0
			} else if frac > 1 {
				frac = 1
			}
			at = frac * duration
		}
		out[i] = MarkerTime{Marker: m, Time: start + at}
	}
	return out
}
