package aiv_bot

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.viam.com/rdk/logging"
)

// Transport error kinds. Every failure means no command was delivered this cycle.
var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrWriteTimeout   = errors.New("write timed out")
	ErrWriteFailed    = errors.New("write failed")
	ErrShortWrite     = errors.New("short write")
	ErrArmUnavailable = errors.New("arm unavailable")
)

// ErrorKind classifies an error for diagnostics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDeviceNotFound):
		return "device_not_found"
	case errors.Is(err, ErrWriteTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrShortWrite):
		return "short_write"
	case errors.Is(err, ErrWriteFailed):
		return "write_error"
	case errors.Is(err, ErrArmUnavailable):
		return "arm_unavailable"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}

// CommandSender delivers one framed drive command.
type CommandSender interface {
	Send(ctx context.Context, payload []byte) error
}

// TransportConfig holds the drivetrain serial settings.
type TransportConfig struct {
	Port     string
	Baudrate int
	Timeout  time.Duration
}

// SerialTransport opens the drivetrain port for every send and closes it
// afterwards, so a wedged link never holds the loop beyond one timeout.
type SerialTransport struct {
	cfg    TransportConfig
	open   portOpener
	logger logging.Logger
}

// NewSerialTransport creates a transport for the drivetrain device.
func NewSerialTransport(cfg TransportConfig, logger logging.Logger) *SerialTransport {
	return &SerialTransport{cfg: cfg, open: serial.Open, logger: logger}
}

// Send writes payload as a single write bounded by the configured timeout.
func (t *SerialTransport) Send(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	port, err := t.open(t.cfg.Port, &serial.Mode{
		BaudRate: t.cfg.Baudrate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		if os.IsNotExist(err) || !deviceExists(t.cfg.Port) {
			return errors.Wrapf(ErrDeviceNotFound, "%s: %v", t.cfg.Port, err)
		}
		return errors.Wrapf(ErrWriteFailed, "open %s: %v", t.cfg.Port, err)
	}

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := port.Write(payload)
		if err == nil {
			err = port.Drain()
		}
		done <- result{n, err}
	}()

	select {
	case res := <-done:
		closeErr := port.Close()
		switch {
		case res.err != nil:
			return errors.Wrapf(ErrWriteFailed, "%s: %v", t.cfg.Port, res.err)
		case res.n != len(payload):
			return errors.Wrapf(ErrShortWrite, "%s: wrote %d of %d bytes", t.cfg.Port, res.n, len(payload))
		case closeErr != nil:
			t.logger.Debugf("closing %s: %v", t.cfg.Port, closeErr)
		}
		return nil
	case <-ctx.Done():
		// closing the port unblocks the pending write
		if err := port.Close(); err != nil {
			t.logger.Debugf("closing %s after timeout: %v", t.cfg.Port, err)
		}
		return errors.Wrapf(ErrWriteTimeout, "%s: %v", t.cfg.Port, ctx.Err())
	}
}
