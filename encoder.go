package aiv_bot

import (
	"math"
	"time"

	rdkutils "go.viam.com/rdk/utils"
)

// distanceToPower is the linear scale from reported distance to base power.
const distanceToPower = 10.0

// ArmRangeCommand is the desired weapon arm pose as fractions of its ranges.
type ArmRangeCommand struct {
	Up        float64 // 1 is fully raised (home), 0 is fully engaged
	Left      float64 // 1 is the left limit, 0 the right limit
	Amplitude float64 // sweep amplitude layered on Left
	Elapsed   time.Duration
}

// Steering is what the dispatcher compares between cycles.
type Steering struct {
	Heading float64
	Power   int
}

// HeadingEncoder turns a target choice into drive and arm commands.
type HeadingEncoder struct {
	Cap            int
	HorizontalFOV  float64
	FrontLeft      float64
	BackLeft       float64
	HomeLeft       float64
	AttackPower    int
	SweepAmplitude float64
	WeaponFlag     bool
}

// NewHeadingEncoder builds an encoder from a validated config.
func NewHeadingEncoder(cfg *Config) HeadingEncoder {
	return HeadingEncoder{
		Cap:            cfg.PowerCap,
		HorizontalFOV:  cfg.HorizontalFOV,
		FrontLeft:      cfg.FrontLeft,
		BackLeft:       cfg.BackLeft,
		HomeLeft:       cfg.HomeLeft,
		AttackPower:    cfg.AttackPower,
		SweepAmplitude: cfg.SweepAmplitude,
		WeaponFlag:     cfg.WeaponFlag,
	}
}

// Neutral returns the stopped command and the arm home pose.
func (e HeadingEncoder) Neutral() (MotorCommand, ArmRangeCommand) {
	return NeutralCommand(e.weapon(false)), ArmRangeCommand{Up: 1, Left: e.HomeLeft}
}

// Encode computes the drive command, arm pose and steering for a cycle.
// ok is false when no target is in sight.
func (e HeadingEncoder) Encode(choice TargetChoice, ok bool) (MotorCommand, ArmRangeCommand, Steering) {
	if !ok {
		cmd, arm := e.Neutral()
		return cmd, arm, Steering{}
	}

	base := BasePower(choice.Distance, e.Cap) * choice.Channel.Sign()
	bias := DegreesToPower(choice.Heading, e.HorizontalFOV, e.Cap)
	// back camera steering is mirrored
	bias *= choice.Channel.Sign()

	engaged := rdkutils.AbsInt(base) < e.AttackPower
	cmd := MotorCommand{
		Left:   clampInt(base-bias, -e.Cap, e.Cap),
		Right:  clampInt(base+bias, -e.Cap, e.Cap),
		Weapon: e.weapon(engaged),
	}

	arm := ArmRangeCommand{
		Up:   float64(rdkutils.AbsInt(base)) / float64(e.Cap),
		Left: e.FrontLeft,
	}
	if choice.Channel == Back {
		arm.Left = e.BackLeft
	}
	if engaged {
		arm.Amplitude = e.SweepAmplitude
	}
	return cmd, arm, Steering{Heading: choice.Heading, Power: base}
}

// Steer encodes a pure rotation at zero base power, used while searching.
func (e HeadingEncoder) Steer(heading float64) (MotorCommand, Steering) {
	bias := DegreesToPower(heading, e.HorizontalFOV, e.Cap)
	return MotorCommand{Left: -bias, Right: bias, Weapon: e.weapon(false)}, Steering{Heading: heading}
}

func (e HeadingEncoder) weapon(engaged bool) WeaponFlag {
	switch {
	case !e.WeaponFlag:
		return WeaponUnset
	case engaged:
		return WeaponOn
	default:
		return WeaponOff
	}
}

// BasePower converts a distance to unsigned drive power, capped at powerCap.
func BasePower(distance float64, powerCap int) int {
	if distance <= 0 || math.IsNaN(distance) {
		return 0
	}
	return int(math.Min(distance*distanceToPower, float64(powerCap)))
}

// DegreesToPower maps a heading to a signed steering bias. The magnitude grows
// with |heading| and saturates at powerCap beyond half the field of view.
func DegreesToPower(heading, fov float64, powerCap int) int {
	if fov <= 0 {
		return 0
	}
	normalized := math.Max(-1, math.Min(1, heading/(fov/2)))
	magnitude := int(math.Floor(math.Abs(normalized) * float64(powerCap)))
	if heading < 0 {
		return -magnitude
	}
	return magnitude
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
