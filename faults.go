package aiv_bot

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/rdk/logging"
)

// faultWarnEvery is how often a persisting fault is re-logged at warn level.
const faultWarnEvery = 100

// DeviceFaults is the diagnostic record for one actuator channel.
type DeviceFaults struct {
	Total       int
	Consecutive int
	LastKind    string
	LastError   error
	LastAt      time.Time
}

// FaultLog accumulates per-device failures without ever stopping the loop.
// Logging is rate limited so a dead device does not flood the log at 30 Hz.
type FaultLog struct {
	clk     clock.Clock
	logger  logging.Logger
	devices map[string]*DeviceFaults
}

// NewFaultLog creates an empty fault record.
func NewFaultLog(clk clock.Clock, logger logging.Logger) *FaultLog {
	return &FaultLog{clk: clk, logger: logger, devices: make(map[string]*DeviceFaults)}
}

// Record notes the outcome of one operation on device. A nil err marks recovery.
func (f *FaultLog) Record(device string, err error) {
	d, ok := f.devices[device]
	if !ok {
		d = &DeviceFaults{}
		f.devices[device] = d
	}

	if err == nil {
		if d.Consecutive > 0 {
			f.logger.Infof("%s recovered after %d failures", device, d.Consecutive)
		}
		d.Consecutive = 0
		return
	}

	d.Total++
	d.Consecutive++
	d.LastKind = ErrorKind(err)
	d.LastError = err
	d.LastAt = f.clk.Now()

	switch {
	case d.Consecutive == 1:
		f.logger.Warnf("%s failure (%s): %v", device, d.LastKind, err)
	case d.Consecutive%faultWarnEvery == 0:
		f.logger.Warnf("%s still failing, %d in a row (%s): %v", device, d.Consecutive, d.LastKind, err)
	default:
		f.logger.Debugf("%s failure (%s): %v", device, d.LastKind, err)
	}
}

// Snapshot returns a copy of the record for device.
func (f *FaultLog) Snapshot(device string) DeviceFaults {
	if d, ok := f.devices[device]; ok {
		return *d
	}
	return DeviceFaults{}
}
