package aiv_bot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

func TestFilterCandidatePorts(t *testing.T) {
	tests := []struct {
		name     string
		ports    []string
		expected []string
	}{
		{
			name:     "Linux USB ports",
			ports:    []string{"/dev/ttyUSB0", "/dev/ttyS0", "/dev/ttyACM0", "/dev/null"},
			expected: []string{"/dev/ttyUSB0", "/dev/ttyACM0"},
		},
		{
			name:     "macOS USB ports",
			ports:    []string{"/dev/tty.usbmodem123", "/dev/tty.Bluetooth", "/dev/cu.usbserial-AB"},
			expected: []string{"/dev/tty.usbmodem123", "/dev/cu.usbserial-AB"},
		},
		{
			name:     "Empty list",
			ports:    []string{},
			expected: []string{},
		},
		{
			name:     "No matching ports",
			ports:    []string{"/dev/null", "/dev/zero", "COM3"},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := filterCandidatePorts(tt.ports)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestWaitForDevice(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("returns at once when the device exists", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ttyACM0")
		require.NoError(t, os.WriteFile(path, nil, 0o644))

		start := time.Now()
		require.NoError(t, waitForDevice(context.Background(), path, time.Second, logger))
		assert.Less(t, time.Since(start), devicePollInterval)
	})

	t.Run("gives up after the timeout", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing")
		err := waitForDevice(context.Background(), path, 250*time.Millisecond, logger)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("sees a device that appears while waiting", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "late")
		go func() {
			time.Sleep(150 * time.Millisecond)
			os.WriteFile(path, nil, 0o644)
		}()
		require.NoError(t, waitForDevice(context.Background(), path, 2*time.Second, logger))
	})

	t.Run("stops when cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := waitForDevice(ctx, filepath.Join(t.TempDir(), "missing"), time.Minute, logger)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
