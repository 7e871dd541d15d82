package aiv_bot

import (
	"fmt"

	"github.com/pkg/errors"
)

// Motor alphabet convention (part of the drivetrain wire protocol):
// uppercase letters encode forward (positive) power, lowercase letters encode
// reverse (negative) power. Magnitude m is the m-th letter after 'A'/'a'.
// Zero is only ever 'A'. The mapping is a bijection, so 'a' is not a letter.
const (
	positiveBase = 'A'
	negativeBase = 'a'

	// MaxPowerCap is the largest cap the 26-letter alphabet can represent.
	MaxPowerCap = 25
)

// WeaponFlag is the optional third character of a drivetrain command.
type WeaponFlag int

const (
	WeaponUnset WeaponFlag = iota
	WeaponOff
	WeaponOn
)

// Byte returns the wire character for the flag; WeaponUnset has none.
func (w WeaponFlag) Byte() (byte, bool) {
	switch w {
	case WeaponOff:
		return '0', true
	case WeaponOn:
		return '1', true
	default:
		return 0, false
	}
}

var (
	errPowerOutOfRange = errors.New("power out of range")
	errBadLetter       = errors.New("not a motor alphabet letter")
)

// MotorCommand is a left/right drive power pair plus an optional weapon flag.
type MotorCommand struct {
	Left   int
	Right  int
	Weapon WeaponFlag
}

// NeutralCommand returns the stopped command carrying the given weapon flag.
func NeutralCommand(weapon WeaponFlag) MotorCommand {
	return MotorCommand{Weapon: weapon}
}

// IsNeutral reports whether both wheels are at zero power.
func (c MotorCommand) IsNeutral() bool {
	return c.Left == 0 && c.Right == 0
}

// Encode renders the command as its 2 or 3 character token.
func (c MotorCommand) Encode(powerCap int) (string, error) {
	left, err := EncodePower(c.Left, powerCap)
	if err != nil {
		return "", errors.Wrap(err, "left wheel")
	}
	right, err := EncodePower(c.Right, powerCap)
	if err != nil {
		return "", errors.Wrap(err, "right wheel")
	}
	token := []byte{left, right}
	if w, ok := c.Weapon.Byte(); ok {
		token = append(token, w)
	}
	return string(token), nil
}

func (c MotorCommand) String() string {
	return fmt.Sprintf("L%+d/R%+d", c.Left, c.Right)
}

// EncodePower maps a signed power in [-cap, cap] to its alphabet letter.
func EncodePower(power, powerCap int) (byte, error) {
	if powerCap <= 0 || powerCap > MaxPowerCap {
		return 0, errors.Errorf("invalid power cap %d", powerCap)
	}
	if power > powerCap || power < -powerCap {
		return 0, errors.Wrapf(errPowerOutOfRange, "%d not in [-%d, %d]", power, powerCap, powerCap)
	}
	if power < 0 {
		return byte(negativeBase - power), nil
	}
	return byte(positiveBase + power), nil
}

// DecodePower maps an alphabet letter back to its signed power.
func DecodePower(letter byte, powerCap int) (int, error) {
	if powerCap <= 0 || powerCap > MaxPowerCap {
		return 0, errors.Errorf("invalid power cap %d", powerCap)
	}
	switch {
	case letter >= positiveBase && int(letter-positiveBase) <= powerCap:
		return int(letter - positiveBase), nil
	case letter > negativeBase && int(letter-negativeBase) <= powerCap:
		return -int(letter - negativeBase), nil
	}
	return 0, errors.Wrapf(errBadLetter, "%q with cap %d", letter, powerCap)
}

// ParseMotorCommand decodes a 2 or 3 character command token.
func ParseMotorCommand(token string, powerCap int) (MotorCommand, error) {
	if len(token) != 2 && len(token) != 3 {
		return MotorCommand{}, errors.Errorf("command %q must be 2 or 3 characters", token)
	}
	left, err := DecodePower(token[0], powerCap)
	if err != nil {
		return MotorCommand{}, err
	}
	right, err := DecodePower(token[1], powerCap)
	if err != nil {
		return MotorCommand{}, err
	}
	cmd := MotorCommand{Left: left, Right: right}
	if len(token) == 3 {
		switch token[2] {
		case '0':
			cmd.Weapon = WeaponOff
		case '1':
			cmd.Weapon = WeaponOn
		default:
			return MotorCommand{}, errors.Errorf("weapon flag %q must be '0' or '1'", token[2])
		}
	}
	return cmd, nil
}

// FrameCommand wraps a token in the drivetrain delimiters.
func FrameCommand(token string, newline bool) []byte {
	frame := make([]byte, 0, len(token)+3)
	frame = append(frame, '<')
	frame = append(frame, token...)
	frame = append(frame, '>')
	if newline {
		frame = append(frame, '\n')
	}
	return frame
}
