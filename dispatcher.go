package aiv_bot

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"
	rdkutils "go.viam.com/rdk/utils"
)

// DecisionReason says why the dispatcher did or did not transmit.
type DecisionReason int

const (
	ReasonSuppressed DecisionReason = iota
	ReasonChange
	ReasonReacquired
	ReasonTargetLost
	ReasonHeartbeat
)

func (r DecisionReason) String() string {
	switch r {
	case ReasonChange:
		return "change"
	case ReasonReacquired:
		return "reacquired"
	case ReasonTargetLost:
		return "target_lost"
	case ReasonHeartbeat:
		return "heartbeat"
	default:
		return "suppressed"
	}
}

// Decision is the outcome of one dispatcher step.
type Decision struct {
	Command  MotorCommand
	Transmit bool
	Reason   DecisionReason
}

// DwellState is the last accepted command and when the next change may happen.
type DwellState struct {
	LastCommand        MotorCommand
	LastHeading        float64
	LastPower          int
	EarliestNextChange time.Time
}

// DispatcherConfig holds the rate limiting parameters.
type DispatcherConfig struct {
	Cap            int
	HeadingEpsilon float64
	PowerEpsilon   int
	MinDwell       time.Duration
	MaxDwell       time.Duration
	HeartbeatSlice time.Duration
	Neutral        MotorCommand
}

// NewDispatcherConfig extracts the dispatcher settings from a validated config.
func NewDispatcherConfig(cfg *Config, neutral MotorCommand) DispatcherConfig {
	return DispatcherConfig{
		Cap:            cfg.PowerCap,
		HeadingEpsilon: cfg.HeadingEpsilon,
		PowerEpsilon:   cfg.PowerEpsilon,
		MinDwell:       cfg.MinDwell,
		MaxDwell:       cfg.MaxDwell,
		HeartbeatSlice: cfg.HeartbeatSlice,
		Neutral:        neutral,
	}
}

// Dispatcher decides when a new drive command is worth sending. It is owned
// by the control loop and is not safe for concurrent use.
type Dispatcher struct {
	cfg   DispatcherConfig
	clk   clock.Clock
	state DwellState

	// slice index of the last transmission, for the heartbeat
	lastSlice int64
	sentAny   bool
}

// NewDispatcher creates a dispatcher starting from the neutral command.
func NewDispatcher(cfg DispatcherConfig, clk clock.Clock) *Dispatcher {
	d := &Dispatcher{cfg: cfg, clk: clk}
	d.resetNeutral()
	return d
}

// State returns a copy of the dwell state.
func (d *Dispatcher) State() DwellState {
	return d.state
}

// Dwell returns the hold time after a change to the given power. Gentle,
// close-in corrections get the shortest dwell.
func (d *Dispatcher) Dwell(power int) time.Duration {
	p := rdkutils.AbsInt(power)
	if d.cfg.Cap <= 0 || p == 0 {
		return d.cfg.MinDwell
	}
	if p > d.cfg.Cap {
		p = d.cfg.Cap
	}
	span := d.cfg.MaxDwell - d.cfg.MinDwell
	return d.cfg.MinDwell + time.Duration(int64(span)*int64(p)/int64(d.cfg.Cap))
}

// Step runs one decision for the candidate computed this cycle.
func (d *Dispatcher) Step(candidate MotorCommand, steering Steering, targetInSight bool) Decision {
	now := d.clk.Now()

	if !targetInSight {
		// a stopped robot with the weapon still engaged also needs the neutral sent
		wasActive := d.state.LastCommand != d.cfg.Neutral
		d.resetNeutral()
		if wasActive {
			return d.transmit(now, ReasonTargetLost)
		}
		return d.heartbeat(now)
	}

	if d.state.LastCommand.IsNeutral() && !candidate.IsNeutral() {
		d.accept(now, candidate, steering)
		return d.transmit(now, ReasonReacquired)
	}

	// A weapon flag flip is a change regardless of the epsilons, but still
	// waits out the dwell like any other change.
	changed := math.Abs(steering.Heading-d.state.LastHeading) > d.cfg.HeadingEpsilon ||
		rdkutils.AbsInt(steering.Power-d.state.LastPower) > d.cfg.PowerEpsilon ||
		candidate.Weapon != d.state.LastCommand.Weapon
	if changed && !now.Before(d.state.EarliestNextChange) {
		d.accept(now, candidate, steering)
		return d.transmit(now, ReasonChange)
	}
	return d.heartbeat(now)
}

// Heartbeat re-sends the last command when a slice boundary has been crossed
// since the previous transmission.
func (d *Dispatcher) Heartbeat() Decision {
	return d.heartbeat(d.clk.Now())
}

func (d *Dispatcher) heartbeat(now time.Time) Decision {
	if !d.sentAny || d.sliceOf(now) > d.lastSlice {
		return d.transmit(now, ReasonHeartbeat)
	}
	return Decision{Command: d.state.LastCommand, Reason: ReasonSuppressed}
}

func (d *Dispatcher) accept(now time.Time, cmd MotorCommand, steering Steering) {
	d.state = DwellState{
		LastCommand:        cmd,
		LastHeading:        steering.Heading,
		LastPower:          steering.Power,
		EarliestNextChange: now.Add(d.Dwell(steering.Power)),
	}
}

func (d *Dispatcher) resetNeutral() {
	d.state = DwellState{LastCommand: d.cfg.Neutral}
}

func (d *Dispatcher) transmit(now time.Time, reason DecisionReason) Decision {
	d.lastSlice = d.sliceOf(now)
	d.sentAny = true
	return Decision{Command: d.state.LastCommand, Transmit: true, Reason: reason}
}

func (d *Dispatcher) sliceOf(t time.Time) int64 {
	if d.cfg.HeartbeatSlice <= 0 {
		return t.UnixNano()
	}
	return t.UnixNano() / int64(d.cfg.HeartbeatSlice)
}
