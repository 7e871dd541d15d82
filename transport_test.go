package aiv_bot

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.viam.com/rdk/logging"
)

// fakePort records writes and replays queued reads.
type fakePort struct {
	serial.Port

	mu          sync.Mutex
	written     bytes.Buffer
	reads       [][]byte
	writeErr    error
	shortBy     int
	block       chan struct{}
	closed      bool
	readTimeout time.Duration
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.block != nil {
		<-p.block
		return 0, errors.New("port closed")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	n := len(b) - p.shortBy
	p.written.Write(b[:n])
	return n, nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.reads) == 0 {
		return 0, nil
	}
	n := copy(b, p.reads[0])
	if n < len(p.reads[0]) {
		p.reads[0] = p.reads[0][n:]
	} else {
		p.reads = p.reads[1:]
	}
	return n, nil
}

func (p *fakePort) Drain() error { return nil }

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.readTimeout = t
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed && p.block != nil {
		close(p.block)
	}
	p.closed = true
	return nil
}

func (p *fakePort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func testTransport(t *testing.T, port *fakePort, openErr error) (*SerialTransport, *serial.Mode) {
	path := filepath.Join(t.TempDir(), "ttyUSB0")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	tr := NewSerialTransport(TransportConfig{Port: path, Baudrate: 9600, Timeout: 100 * time.Millisecond}, logging.NewTestLogger(t))
	var mode serial.Mode
	tr.open = func(name string, m *serial.Mode) (serial.Port, error) {
		mode = *m
		if openErr != nil {
			return nil, openErr
		}
		return port, nil
	}
	return tr, &mode
}

func TestSerialTransportSend(t *testing.T) {
	t.Run("writes the frame and closes the port", func(t *testing.T) {
		port := &fakePort{}
		tr, mode := testTransport(t, port, nil)

		require.NoError(t, tr.Send(context.Background(), FrameCommand("Dd", true)))
		assert.Equal(t, "<Dd>\n", port.written.String())
		assert.True(t, port.isClosed())
		assert.Equal(t, 9600, mode.BaudRate)
		assert.Equal(t, 8, mode.DataBits)
	})

	t.Run("missing device", func(t *testing.T) {
		tr := NewSerialTransport(TransportConfig{
			Port:     filepath.Join(t.TempDir(), "ttyUSB9"),
			Baudrate: 9600,
			Timeout:  100 * time.Millisecond,
		}, logging.NewTestLogger(t))
		tr.open = func(string, *serial.Mode) (serial.Port, error) {
			return nil, errors.New("no such file or directory")
		}

		err := tr.Send(context.Background(), []byte("<AA>\n"))
		assert.ErrorIs(t, err, ErrDeviceNotFound)
		assert.Equal(t, "device_not_found", ErrorKind(err))
	})

	t.Run("open failure on a present device", func(t *testing.T) {
		tr, _ := testTransport(t, nil, errors.New("permission denied"))
		err := tr.Send(context.Background(), []byte("<AA>\n"))
		assert.ErrorIs(t, err, ErrWriteFailed)
	})

	t.Run("write error", func(t *testing.T) {
		port := &fakePort{writeErr: errors.New("i/o error")}
		tr, _ := testTransport(t, port, nil)
		err := tr.Send(context.Background(), []byte("<AA>\n"))
		assert.ErrorIs(t, err, ErrWriteFailed)
		assert.Equal(t, "write_error", ErrorKind(err))
		assert.True(t, port.isClosed())
	})

	t.Run("short write", func(t *testing.T) {
		port := &fakePort{shortBy: 2}
		tr, _ := testTransport(t, port, nil)
		err := tr.Send(context.Background(), []byte("<AA>\n"))
		assert.ErrorIs(t, err, ErrShortWrite)
		assert.Equal(t, "short_write", ErrorKind(err))
	})

	t.Run("stalled write times out", func(t *testing.T) {
		port := &fakePort{block: make(chan struct{})}
		tr, _ := testTransport(t, port, nil)

		start := time.Now()
		err := tr.Send(context.Background(), []byte("<AA>\n"))
		assert.ErrorIs(t, err, ErrWriteTimeout)
		assert.Equal(t, "timeout", ErrorKind(err))
		assert.Less(t, time.Since(start), time.Second)
		assert.True(t, port.isClosed())
	})
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		kind string
	}{
		{nil, "ok"},
		{ErrDeviceNotFound, "device_not_found"},
		{errors.Wrap(ErrWriteTimeout, "x"), "timeout"},
		{context.DeadlineExceeded, "timeout"},
		{errors.Wrap(ErrShortWrite, "x"), "short_write"},
		{ErrWriteFailed, "write_error"},
		{errors.Wrapf(ErrArmUnavailable, "x"), "arm_unavailable"},
		{context.Canceled, "canceled"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			assert.Equal(t, tt.kind, ErrorKind(tt.err))
		})
	}
}
