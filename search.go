package aiv_bot

import (
	"time"

	"github.com/benbjohnson/clock"
)

// SpinSearch alternates between turning and pausing while no target is seen,
// so the cameras sweep the arena. The phase is derived from the clock rather
// than from sleeps inside the loop.
type SpinSearch struct {
	heading float64
	period  time.Duration
	clk     clock.Clock
	start   time.Time
}

// NewSpinSearch creates a search pattern turning at heading for every other period.
func NewSpinSearch(heading float64, period time.Duration, clk clock.Clock) *SpinSearch {
	return &SpinSearch{heading: heading, period: period, clk: clk}
}

// Reset restarts the pattern from its pause phase.
func (s *SpinSearch) Reset() {
	s.start = s.clk.Now()
}

// Heading returns the heading to steer toward for the current phase.
func (s *SpinSearch) Heading() float64 {
	if s.start.IsZero() {
		s.Reset()
	}
	if s.period <= 0 {
		return s.heading
	}
	if (s.clk.Since(s.start)/s.period)%2 == 1 {
		return s.heading
	}
	return 0
}
