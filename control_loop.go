package aiv_bot

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"
)

// Fault log device names.
const (
	DeviceDrive = "drive"
	DeviceArm   = "arm"
)

// DetectionSource yields the latest detections of both cameras.
type DetectionSource interface {
	Read(ctx context.Context) Detections
}

// ArmActuator is the weapon arm as seen by the control loop.
type ArmActuator interface {
	WaitReady(ctx context.Context) error
	SetRange(ctx context.Context, cmd ArmRangeCommand) error
	Home(ctx context.Context) error
	Close() error
}

// ControlLoop runs the detection to actuation cycle on a single goroutine.
type ControlLoop struct {
	cfg        *Config
	detections DetectionSource
	selector   TargetSelector
	encoder    HeadingEncoder
	search     *SpinSearch
	dispatcher *Dispatcher
	sender     CommandSender
	arm        ArmActuator
	faults     *FaultLog
	clk        clock.Clock
	logger     logging.Logger

	start   time.Time
	inSight bool
}

// NewControlLoop wires the pipeline stages from a validated config.
func NewControlLoop(
	cfg *Config,
	detections DetectionSource,
	sender CommandSender,
	arm ArmActuator,
	clk clock.Clock,
	logger logging.Logger,
) *ControlLoop {
	encoder := NewHeadingEncoder(cfg)
	neutral, _ := encoder.Neutral()
	l := &ControlLoop{
		cfg:        cfg,
		detections: detections,
		selector:   TargetSelector{OddIDFilter: cfg.OddIDFilter},
		encoder:    encoder,
		dispatcher: NewDispatcher(NewDispatcherConfig(cfg, neutral), clk),
		sender:     sender,
		arm:        arm,
		faults:     NewFaultLog(clk, logger.Sublogger("faults")),
		clk:        clk,
		logger:     logger,
	}
	if cfg.SpinSearch {
		l.search = NewSpinSearch(cfg.SpinHeading, cfg.SpinPeriod, clk)
	}
	return l
}

// Faults exposes the per-device failure record.
func (l *ControlLoop) Faults() *FaultLog {
	return l.faults
}

// Run ticks until ctx is cancelled, then sends the neutral command once and
// homes the arm. Actuator failures never end the loop.
func (l *ControlLoop) Run(ctx context.Context) error {
	l.start = l.clk.Now()
	if ctx.Err() == nil {
		l.startArm(ctx)
	}

	nextTick := l.clk.Now()
	for ctx.Err() == nil {
		now := l.clk.Now()
		if !now.Before(nextTick) {
			l.tick(ctx)
			nextTick = nextTick.Add(l.cfg.TickInterval)
			if nextTick.Before(now) {
				// fell behind; do not burst to catch up
				nextTick = now.Add(l.cfg.TickInterval)
			}
		} else if d := l.dispatcher.Heartbeat(); d.Transmit {
			l.logger.Debugf("heartbeat %v", d.Command)
			l.send(ctx, d.Command)
		}
		if !utils.SelectContextOrWait(ctx, l.cfg.HeartbeatPoll) {
			break
		}
	}

	l.shutdown()
	return nil
}

func (l *ControlLoop) startArm(ctx context.Context) {
	if err := l.arm.WaitReady(ctx); err != nil {
		l.logger.Warnf("weapon arm not ready, continuing without it: %v", err)
		return
	}
	if err := l.arm.Home(ctx); err != nil {
		l.logger.Warnf("failed to home weapon arm: %v", err)
	}
}

// tick runs one full decision cycle.
func (l *ControlLoop) tick(ctx context.Context) {
	choice, ok := l.selector.Select(l.detections.Read(ctx))
	wasInSight := l.inSight
	l.inSight = ok
	switch {
	case ok && !wasInSight:
		l.logger.Infof("target acquired on %s camera, id %d", choice.Channel, choice.TargetID)
	case !ok && wasInSight:
		l.logger.Infof("target lost")
	}

	cmd, armCmd, steering := l.encoder.Encode(choice, ok)
	armCmd.Elapsed = l.clk.Since(l.start)

	// The first cycle without a target always forces neutral. Later cycles
	// may substitute the search rotation.
	candidateInSight := ok
	if !ok && !wasInSight && l.search != nil {
		cmd, steering = l.encoder.Steer(l.search.Heading())
		candidateInSight = true
	} else if !ok && l.search != nil {
		l.search.Reset()
	}

	decision := l.dispatcher.Step(cmd, steering, candidateInSight)
	if ok {
		l.logger.Debugf("%s target id %d at %v (heading %.1f), candidate %v, %s transmit=%t",
			choice.Channel, choice.TargetID, choice.Offset(), choice.Heading, cmd, decision.Reason, decision.Transmit)
	} else {
		l.logger.Debugf("no target, candidate %v, %s transmit=%t", cmd, decision.Reason, decision.Transmit)
	}

	if decision.Transmit {
		l.send(ctx, decision.Command)
	}
	l.faults.Record(DeviceArm, l.arm.SetRange(ctx, armCmd))
}

// send encodes, frames and transmits one drive command, recording the outcome.
func (l *ControlLoop) send(ctx context.Context, cmd MotorCommand) error {
	token, err := cmd.Encode(l.cfg.PowerCap)
	if err == nil {
		err = l.sender.Send(ctx, FrameCommand(token, l.cfg.Newline()))
	}
	l.faults.Record(DeviceDrive, err)
	return err
}

// shutdown leaves the robot stopped. It uses its own context because the
// loop context is already cancelled.
func (l *ControlLoop) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.FinalSendTimeout)
	defer cancel()

	neutral, _ := l.encoder.Neutral()
	err := multierr.Combine(
		errors.Wrap(l.send(ctx, neutral), "final neutral send"),
		errors.Wrap(l.arm.Home(ctx), "arm home"),
		errors.Wrap(l.arm.Close(), "arm close"),
	)
	if err != nil {
		l.logger.Warnf("shutdown: %v", err)
	}

	drive := l.faults.Snapshot(DeviceDrive)
	l.logger.Infof("stopped; %d drive failures, %d arm failures", drive.Total, l.faults.Snapshot(DeviceArm).Total)
}
