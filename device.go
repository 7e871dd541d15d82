package aiv_bot

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial/enumerator"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"
)

// devicePollInterval is the fixed sleep between checks for a device path.
const devicePollInterval = 100 * time.Millisecond

// deviceExists reports whether the device node is present.
func deviceExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// waitForDevice blocks until path exists, ctx is done or timeout elapses.
func waitForDevice(ctx context.Context, path string, timeout time.Duration, logger logging.Logger) error {
	if deviceExists(path) {
		return nil
	}
	logger.Infof("waiting up to %v for %s; candidate ports: %v", timeout, path, filterCandidatePorts(enumerateSerialPorts()))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		if !utils.SelectContextOrWait(ctx, devicePollInterval) {
			return errors.Wrapf(ctx.Err(), "device %s did not appear", path)
		}
		if deviceExists(path) {
			return nil
		}
	}
}

// filterCandidatePorts filters serial ports by platform-specific naming patterns
func filterCandidatePorts(ports []string) []string {
	candidates := []string{}
	for _, port := range ports {
		if isCandidatePort(port) {
			candidates = append(candidates, port)
		}
	}
	return candidates
}

// isCandidatePort checks if a port looks like a USB serial adapter or a
// USB CDC device, the two kinds the drivetrain and arm controllers show up as.
func isCandidatePort(port string) bool {
	// Linux: /dev/ttyUSB*, /dev/ttyACM*
	if strings.HasPrefix(port, "/dev/ttyUSB") || strings.HasPrefix(port, "/dev/ttyACM") {
		return true
	}
	// macOS: /dev/tty.usbmodem*, /dev/tty.usbserial*, /dev/cu.usbmodem*, /dev/cu.usbserial*
	for _, prefix := range []string{"/dev/tty.usbmodem", "/dev/tty.usbserial", "/dev/cu.usbmodem", "/dev/cu.usbserial"} {
		if strings.HasPrefix(port, prefix) {
			return true
		}
	}
	return false
}

// enumerateSerialPorts returns a list of all serial ports on the system
func enumerateSerialPorts() []string {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return []string{}
	}

	var portPaths []string
	for _, port := range ports {
		portPaths = append(portPaths, port.Name)
	}
	return portPaths
}
