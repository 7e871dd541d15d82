package aiv_bot

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
)

// ConnState is the weapon arm link state.
type ConnState int

const (
	Disconnected ConnState = iota
	Connected
)

func (s ConnState) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// WeaponArmConfig holds the arm geometry and connection pacing.
type WeaponArmConfig struct {
	Port          string
	Vertical      ServoAxis
	Lateral       ServoAxis
	Speed         int
	HomeLeft      float64
	SweepPeriod   time.Duration
	RetryInterval time.Duration
	StartupWait   time.Duration
}

// NewWeaponArmConfig extracts the arm settings from a validated config.
func NewWeaponArmConfig(cfg *Config) WeaponArmConfig {
	return WeaponArmConfig{
		Port:          cfg.ArmPort,
		Vertical:      cfg.Vertical,
		Lateral:       cfg.Lateral,
		Speed:         cfg.ArmSpeed,
		HomeLeft:      cfg.HomeLeft,
		SweepPeriod:   cfg.SweepPeriod,
		RetryInterval: cfg.ArmRetryInterval,
		StartupWait:   cfg.ArmStartupWait,
	}
}

// WeaponArm positions the two-axis weapon arm. The bus is opened lazily and
// dropped on any error; reconnect attempts are spaced by RetryInterval so an
// unplugged arm never stalls the control loop. It belongs to the loop
// goroutine and is not safe for concurrent use.
type WeaponArm struct {
	cfg         WeaponArmConfig
	open        BusOpener
	clk         clock.Clock
	logger      logging.Logger
	bus         ServoBus
	lastAttempt time.Time
	attempted   bool
}

// NewWeaponArm creates a disconnected arm.
func NewWeaponArm(cfg WeaponArmConfig, open BusOpener, clk clock.Clock, logger logging.Logger) *WeaponArm {
	return &WeaponArm{cfg: cfg, open: open, clk: clk, logger: logger}
}

// State reports whether the arm bus is currently open.
func (a *WeaponArm) State() ConnState {
	if a.bus != nil {
		return Connected
	}
	return Disconnected
}

// WaitReady waits a bounded time for the arm device to appear, then connects.
func (a *WeaponArm) WaitReady(ctx context.Context) error {
	if err := waitForDevice(ctx, a.cfg.Port, a.cfg.StartupWait, a.logger); err != nil {
		return errors.Wrap(ErrArmUnavailable, err.Error())
	}
	return a.connect(ctx)
}

// SetRange moves both axes to the pose described by cmd.
func (a *WeaponArm) SetRange(ctx context.Context, cmd ArmRangeCommand) error {
	if err := a.connect(ctx); err != nil {
		return err
	}

	vertical := a.cfg.Vertical.Position(clampFraction(cmd.Up))
	lateral := a.cfg.Lateral.Position(a.lateralFraction(cmd))

	err := multierr.Combine(
		a.bus.Goto(ctx, a.cfg.Vertical.ID, vertical, a.cfg.Speed),
		a.bus.Goto(ctx, a.cfg.Lateral.ID, lateral, a.cfg.Speed),
	)
	if err != nil {
		a.disconnect()
		return errors.Wrap(err, "arm move failed")
	}
	return nil
}

// Home raises the arm and centres it on the home lateral position.
func (a *WeaponArm) Home(ctx context.Context) error {
	return a.SetRange(ctx, ArmRangeCommand{Up: 1, Left: a.cfg.HomeLeft})
}

// Close releases the bus if open.
func (a *WeaponArm) Close() error {
	if a.bus == nil {
		return nil
	}
	err := a.bus.Close()
	a.bus = nil
	return err
}

func (a *WeaponArm) lateralFraction(cmd ArmRangeCommand) float64 {
	f := cmd.Left
	if cmd.Amplitude != 0 && a.cfg.SweepPeriod > 0 {
		phase := 2 * math.Pi * float64(cmd.Elapsed) / float64(a.cfg.SweepPeriod)
		f += cmd.Amplitude * math.Sin(phase)
	}
	return clampFraction(f)
}

func (a *WeaponArm) connect(ctx context.Context) error {
	if a.bus != nil {
		return nil
	}
	now := a.clk.Now()
	if a.attempted && now.Sub(a.lastAttempt) < a.cfg.RetryInterval {
		return ErrArmUnavailable
	}
	a.attempted = true
	a.lastAttempt = now

	bus, err := a.open(ctx)
	if err != nil {
		return errors.Wrapf(ErrArmUnavailable, "%v", err)
	}
	a.bus = bus
	a.logger.Infof("weapon arm connected on %s", a.cfg.Port)

	for _, axis := range []ServoAxis{a.cfg.Vertical, a.cfg.Lateral} {
		if err := bus.Ping(ctx, axis.ID); err != nil {
			a.logger.Warnf("servo %d did not answer ping: %v", axis.ID, err)
		}
	}
	return nil
}

func (a *WeaponArm) disconnect() {
	if a.bus == nil {
		return
	}
	if err := a.bus.Close(); err != nil {
		a.logger.Debugf("closing arm bus: %v", err)
	}
	a.bus = nil
	a.lastAttempt = a.clk.Now()
	a.logger.Warnf("weapon arm disconnected")
}

func clampFraction(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return math.Max(0, math.Min(1, f))
}
