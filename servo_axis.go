package aiv_bot

import (
	"fmt"
	"math"
)

// Raw position limits of the arm servos (12-bit goal position register).
const (
	servoPositionMin = 0
	servoPositionMax = 4095
)

// ServoAxis maps a [0,1] fraction onto a servo's raw position range.
// At fraction 1 the servo sits at Full, at fraction 0 at Zero. Every position
// is clamped to [Min, Max], the mechanically safe range.
type ServoAxis struct {
	ID   int `json:"id"`
	Full int `json:"full"`
	Zero int `json:"zero"`
	Min  int `json:"min,omitempty"`
	Max  int `json:"max,omitempty"`
}

// Validate fills the safe range from the endpoints when absent and checks the limits.
func (a *ServoAxis) Validate(name string) error {
	if a.ID < 0 || a.ID > 253 {
		return fmt.Errorf("%s: invalid servo ID: %d", name, a.ID)
	}
	if a.Min == 0 && a.Max == 0 {
		a.Min = min(a.Full, a.Zero)
		a.Max = max(a.Full, a.Zero)
	}
	if a.Min >= a.Max {
		return fmt.Errorf("%s: invalid range: min (%d) must be less than max (%d)", name, a.Min, a.Max)
	}
	if a.Min < servoPositionMin || a.Max > servoPositionMax {
		return fmt.Errorf("%s: range values must be between %d-%d, got min=%d max=%d",
			name, servoPositionMin, servoPositionMax, a.Min, a.Max)
	}
	return nil
}

// Position interpolates between the endpoints and clamps to the safe range.
func (a ServoAxis) Position(fraction float64) int {
	if math.IsNaN(fraction) {
		fraction = 0
	}
	raw := int(math.Round(float64(a.Full)*fraction + float64(a.Zero)*(1-fraction)))
	return a.Clamp(raw)
}

// Clamp limits a raw position to the safe range.
func (a ServoAxis) Clamp(raw int) int {
	if raw < a.Min {
		return a.Min
	}
	if raw > a.Max {
		return a.Max
	}
	return raw
}
