package aiv_bot

import (
	"math"

	"github.com/golang/geo/r3"
)

// TargetChoice is the single target engaged during a control cycle.
type TargetChoice struct {
	Channel  Channel
	Heading  float64
	TargetID int
	Distance float64
}

// Offset returns the target position in the robot frame: x forward, y left.
// A back camera sighting lies behind the robot with its left/right mirrored.
// It only feeds the per-cycle diagnostics log; steering uses Heading directly.
func (t TargetChoice) Offset() r3.Vector {
	rad := t.Heading * math.Pi / 180
	v := r3.Vector{X: t.Distance * math.Cos(rad), Y: -t.Distance * math.Sin(rad)}
	if t.Channel == Back {
		v = v.Mul(-1)
	}
	return v
}

// TargetSelector picks at most one target per cycle, preferring the front camera.
type TargetSelector struct {
	// OddIDFilter restricts steering to even target ids: odd ids are still
	// engaged but with their heading zeroed.
	OddIDFilter bool
}

// Select returns the first front detection, else the first back detection.
// The bool is false when neither channel has a candidate.
func (s TargetSelector) Select(d Detections) (TargetChoice, bool) {
	var choice TargetChoice
	switch {
	case len(d.Front) > 0:
		choice = choiceFrom(Front, d.Front[0])
	case len(d.Back) > 0:
		choice = choiceFrom(Back, d.Back[0])
	default:
		return TargetChoice{}, false
	}
	if s.OddIDFilter && choice.TargetID%2 != 0 {
		choice.Heading = 0
	}
	return choice, true
}

func choiceFrom(ch Channel, d Detection) TargetChoice {
	return TargetChoice{
		Channel:  ch,
		Heading:  d.Heading,
		TargetID: d.TargetID,
		Distance: d.Distance,
	}
}
