package aiv_bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePower(t *testing.T) {
	tests := []struct {
		name   string
		power  int
		cap    int
		letter byte
	}{
		{"zero", 0, 25, 'A'},
		{"forward one", 1, 25, 'B'},
		{"forward full", 25, 25, 'Z'},
		{"reverse one", -1, 25, 'b'},
		{"reverse full", -25, 25, 'z'},
		{"forward full at cap 20", 20, 20, 'U'},
		{"reverse full at cap 20", -20, 20, 'u'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			letter, err := EncodePower(tt.power, tt.cap)
			require.NoError(t, err)
			assert.Equal(t, string(tt.letter), string(letter))
		})
	}

	t.Run("rejects power beyond the cap", func(t *testing.T) {
		_, err := EncodePower(21, 20)
		assert.ErrorIs(t, err, errPowerOutOfRange)
		_, err = EncodePower(-26, 25)
		assert.ErrorIs(t, err, errPowerOutOfRange)
	})

	t.Run("rejects a cap the alphabet cannot hold", func(t *testing.T) {
		_, err := EncodePower(0, 26)
		assert.Error(t, err)
		_, err = EncodePower(0, 0)
		assert.Error(t, err)
	})
}

func TestPowerAlphabetRoundTrip(t *testing.T) {
	for _, powerCap := range []int{20, 25} {
		for p := -powerCap; p <= powerCap; p++ {
			letter, err := EncodePower(p, powerCap)
			require.NoError(t, err)
			decoded, err := DecodePower(letter, powerCap)
			require.NoError(t, err)
			assert.Equal(t, p, decoded, "cap %d letter %q", powerCap, letter)

			again, err := EncodePower(decoded, powerCap)
			require.NoError(t, err)
			assert.Equal(t, letter, again)
		}
	}
}

func TestDecodedLettersReencode(t *testing.T) {
	for _, powerCap := range []int{20, 25} {
		accepted := 0
		for b := 0; b < 256; b++ {
			p, err := DecodePower(byte(b), powerCap)
			if err != nil {
				continue
			}
			accepted++
			letter, err := EncodePower(p, powerCap)
			require.NoError(t, err)
			assert.Equal(t, byte(b), letter, "cap %d letter %q", powerCap, byte(b))
		}
		assert.Equal(t, 2*powerCap+1, accepted, "cap %d", powerCap)
	}
}

func TestDecodePower(t *testing.T) {
	t.Run("lowercase a is not a letter", func(t *testing.T) {
		_, err := DecodePower('a', 25)
		assert.ErrorIs(t, err, errBadLetter)
		_, err = ParseMotorCommand("aA", 25)
		assert.ErrorIs(t, err, errBadLetter)
	})

	t.Run("letters past the cap are rejected", func(t *testing.T) {
		_, err := DecodePower('V', 20)
		assert.ErrorIs(t, err, errBadLetter)
		_, err = DecodePower('v', 20)
		assert.ErrorIs(t, err, errBadLetter)
	})

	t.Run("non letters are rejected", func(t *testing.T) {
		for _, b := range []byte{'0', '<', ' ', '[', '{'} {
			_, err := DecodePower(b, 25)
			assert.Error(t, err, "%q", b)
		}
	})
}

func TestMotorCommandEncode(t *testing.T) {
	t.Run("two characters without a weapon flag", func(t *testing.T) {
		token, err := MotorCommand{Left: 3, Right: -3}.Encode(25)
		require.NoError(t, err)
		assert.Equal(t, "Dd", token)
	})

	t.Run("three characters with a weapon flag", func(t *testing.T) {
		token, err := MotorCommand{Left: 0, Right: 0, Weapon: WeaponOff}.Encode(25)
		require.NoError(t, err)
		assert.Equal(t, "AA0", token)

		token, err = MotorCommand{Left: 5, Right: 5, Weapon: WeaponOn}.Encode(25)
		require.NoError(t, err)
		assert.Equal(t, "FF1", token)
	})

	t.Run("neutral is all zero", func(t *testing.T) {
		cmd := NeutralCommand(WeaponUnset)
		assert.True(t, cmd.IsNeutral())
		token, err := cmd.Encode(20)
		require.NoError(t, err)
		assert.Equal(t, "AA", token)
	})

	t.Run("out of range wheel fails", func(t *testing.T) {
		_, err := MotorCommand{Left: 30}.Encode(25)
		assert.Error(t, err)
	})
}

func TestParseMotorCommand(t *testing.T) {
	cmd, err := ParseMotorCommand("Zz1", 25)
	require.NoError(t, err)
	assert.Equal(t, MotorCommand{Left: 25, Right: -25, Weapon: WeaponOn}, cmd)

	cmd, err = ParseMotorCommand("Ba", 25)
	require.NoError(t, err)
	assert.Equal(t, MotorCommand{Left: 1, Right: 0}, cmd)

	for _, bad := range []string{"", "A", "AAAA", "AA2", "A?"} {
		_, err := ParseMotorCommand(bad, 25)
		assert.Error(t, err, "%q", bad)
	}
}

func TestFrameCommand(t *testing.T) {
	assert.Equal(t, []byte("<Dd>\n"), FrameCommand("Dd", true))
	assert.Equal(t, []byte("<AA0>"), FrameCommand("AA0", false))
}
