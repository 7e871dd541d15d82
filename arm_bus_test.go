package aiv_bot

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func statusPacket(id, errByte byte) []byte {
	packet := []byte{AX12_HEADER, AX12_HEADER, id, 2, errByte}
	return append(packet, ax12Checksum(packet))
}

func testAX12Bus(t *testing.T, port *fakePort) *ax12Bus {
	bus, err := openAX12Bus("/dev/ttyACM0", 1000000, func(name string, mode *serial.Mode) (serial.Port, error) {
		assert.Equal(t, 1000000, mode.BaudRate)
		return port, nil
	})
	require.NoError(t, err)
	assert.Equal(t, PROTOCOL_TIMEOUT, port.readTimeout)
	return bus
}

func TestBuildAX12Packet(t *testing.T) {
	assert.Equal(t,
		[]byte{0xFF, 0xFF, 0x04, 0x02, 0x01, 0xF8},
		buildAX12Packet(4, AX12_INST_PING, nil))

	assert.Equal(t,
		[]byte{0xFF, 0xFF, 0x01, 0x07, 0x03, 0x1E, 0x78, 0x05, 0x40, 0x00, 0x19},
		buildAX12Packet(1, AX12_INST_WRITE, []byte{AX12_ADDR_GOAL_POS, 0x78, 0x05, 0x40, 0x00}))
}

func TestCheckAX12Status(t *testing.T) {
	require.NoError(t, checkAX12Status(1, statusPacket(1, 0)))
	assert.Error(t, checkAX12Status(4, statusPacket(1, 0)), "wrong id")
	assert.Error(t, checkAX12Status(1, statusPacket(1, 0x20)), "overload error bit")

	bad := statusPacket(1, 0)
	bad[5]++
	assert.Error(t, checkAX12Status(1, bad), "checksum")

	bad = statusPacket(1, 0)
	bad[0] = 0
	assert.Error(t, checkAX12Status(1, bad), "header")
}

func TestAX12BusGoto(t *testing.T) {
	port := &fakePort{reads: [][]byte{statusPacket(1, 0)}}
	bus := testAX12Bus(t, port)

	require.NoError(t, bus.Goto(context.Background(), 1, 1400, 64))
	assert.Equal(t,
		[]byte{0xFF, 0xFF, 0x01, 0x07, 0x03, 0x1E, 0x78, 0x05, 0x40, 0x00, 0x19},
		port.written.Bytes())

	require.NoError(t, bus.Close())
	assert.True(t, port.isClosed())
}

func TestAX12BusStatusInPieces(t *testing.T) {
	status := statusPacket(4, 0)
	port := &fakePort{reads: [][]byte{status[:2], status[2:5], status[5:]}}
	bus := testAX12Bus(t, port)
	assert.NoError(t, bus.Ping(context.Background(), 4))
}

func TestAX12BusFailures(t *testing.T) {
	t.Run("no reply", func(t *testing.T) {
		bus := testAX12Bus(t, &fakePort{})
		assert.Error(t, bus.Ping(context.Background(), 1))
	})

	t.Run("servo error", func(t *testing.T) {
		bus := testAX12Bus(t, &fakePort{reads: [][]byte{statusPacket(4, 0x04)}})
		assert.Error(t, bus.Goto(context.Background(), 4, 2000, 64))
	})

	t.Run("cancelled context sends nothing", func(t *testing.T) {
		port := &fakePort{}
		bus := testAX12Bus(t, port)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, bus.Goto(ctx, 1, 1400, 64), context.Canceled)
		assert.Zero(t, port.written.Len())
	})

	t.Run("broadcast does not wait for status", func(t *testing.T) {
		port := &fakePort{}
		bus := testAX12Bus(t, port)
		assert.NoError(t, bus.Goto(context.Background(), AX12_BROADCAST_ID, 2048, 64))
	})
}

func TestNewBusOpener(t *testing.T) {
	cfg := DefaultConfig()
	opener, err := NewBusOpener(cfg)
	require.NoError(t, err)
	assert.NotNil(t, opener)

	cfg.ArmProtocol = ARM_PROTOCOL_FEETECH
	opener, err = NewBusOpener(cfg)
	require.NoError(t, err)
	assert.NotNil(t, opener)

	cfg.ArmProtocol = "can"
	_, err = NewBusOpener(cfg)
	assert.Error(t, err)
}

func TestNewBusOpenerMissingPort(t *testing.T) {
	for _, protocol := range []string{ARM_PROTOCOL_AX12, ARM_PROTOCOL_FEETECH} {
		t.Run(protocol, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ArmProtocol = protocol
			cfg.ArmPort = filepath.Join(t.TempDir(), "ttyACM9")

			opener, err := NewBusOpener(cfg)
			require.NoError(t, err)
			bus, err := opener(context.Background())
			assert.Error(t, err)
			assert.True(t, bus == nil, "no bus on open failure")
		})
	}
}
