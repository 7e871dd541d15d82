package aiv_bot

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo"
	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// AX-12 (Dynamixel protocol 1.0) constants
const (
	AX12_HEADER        = 0xFF
	AX12_BROADCAST_ID  = 0xFE
	AX12_INST_PING     = 0x01
	AX12_INST_WRITE    = 0x03
	AX12_ADDR_GOAL_POS = 0x1E // goal position (2 bytes) followed by moving speed (2 bytes)
	AX12_STATUS_LEN    = 6    // header x2, id, length, error, checksum

	ARM_PROTOCOL_AX12    = "ax12"
	ARM_PROTOCOL_FEETECH = "feetech"

	// PROTOCOL_TIMEOUT bounds the wait for a servo status packet.
	PROTOCOL_TIMEOUT = 100 * time.Millisecond
)

// ServoBus moves addressed servos to absolute positions.
type ServoBus interface {
	Ping(ctx context.Context, id int) error
	Goto(ctx context.Context, id, position, speed int) error
	Close() error
}

// BusOpener opens the arm bus; it is called lazily by the weapon arm.
type BusOpener func(ctx context.Context) (ServoBus, error)

// portOpener matches serial.Open so tests can substitute a fake port.
type portOpener func(name string, mode *serial.Mode) (serial.Port, error)

// NewBusOpener returns the opener for the configured arm protocol.
func NewBusOpener(cfg *Config) (BusOpener, error) {
	switch cfg.ArmProtocol {
	case ARM_PROTOCOL_AX12:
		return func(ctx context.Context) (ServoBus, error) {
			bus, err := openAX12Bus(cfg.ArmPort, cfg.ArmBaudrate, serial.Open)
			if err != nil {
				return nil, err
			}
			return bus, nil
		}, nil
	case ARM_PROTOCOL_FEETECH:
		return func(ctx context.Context) (ServoBus, error) {
			bus, err := openFeetechBus(cfg.ArmPort, cfg.ArmBaudrate)
			if err != nil {
				return nil, err
			}
			return bus, nil
		}, nil
	default:
		return nil, errors.Errorf("unknown arm_protocol %q", cfg.ArmProtocol)
	}
}

// ax12Bus speaks Dynamixel 1.0 framing over a persistent serial port.
type ax12Bus struct {
	port serial.Port
	mu   sync.Mutex
}

func openAX12Bus(portName string, baudrate int, open portOpener) (*ax12Bus, error) {
	mode := &serial.Mode{
		BaudRate: baudrate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	port, err := open(portName, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %s", portName)
	}
	if err := port.SetReadTimeout(PROTOCOL_TIMEOUT); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "failed to set read timeout")
	}
	return &ax12Bus{port: port}, nil
}

// ax12Checksum is the inverted low byte of the sum of everything after the headers.
func ax12Checksum(packet []byte) byte {
	sum := 0
	for _, b := range packet[2:] {
		sum += int(b)
	}
	return byte(^sum)
}

// buildAX12Packet frames an instruction: [0xFF, 0xFF, ID, LENGTH, INSTRUCTION, ...PARAMS, CHECKSUM]
func buildAX12Packet(id byte, instruction byte, params []byte) []byte {
	length := byte(len(params) + 2) // instruction + checksum
	packet := make([]byte, 0, 6+len(params))
	packet = append(packet, AX12_HEADER, AX12_HEADER, id, length, instruction)
	packet = append(packet, params...)
	return append(packet, ax12Checksum(packet))
}

func (b *ax12Bus) sendPacket(id byte, instruction byte, params []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	packet := buildAX12Packet(id, instruction, params)
	if _, err := b.port.Write(packet); err != nil {
		return errors.Wrap(err, "failed to write packet")
	}
	if id == AX12_BROADCAST_ID {
		return nil
	}
	return b.readStatus(id)
}

func (b *ax12Bus) readStatus(id byte) error {
	status := make([]byte, 0, AX12_STATUS_LEN)
	buf := make([]byte, AX12_STATUS_LEN)
	for len(status) < AX12_STATUS_LEN {
		n, err := b.port.Read(buf[:AX12_STATUS_LEN-len(status)])
		if err != nil {
			return errors.Wrap(err, "failed to read status")
		}
		if n == 0 {
			return errors.Errorf("no status from servo %d within %v", id, PROTOCOL_TIMEOUT)
		}
		status = append(status, buf[:n]...)
	}
	return checkAX12Status(id, status)
}

func checkAX12Status(id byte, status []byte) error {
	if status[0] != AX12_HEADER || status[1] != AX12_HEADER {
		return fmt.Errorf("bad status header % x", status[:2])
	}
	if status[2] != id {
		return fmt.Errorf("status from servo %d, expected %d", status[2], id)
	}
	if ax12Checksum(status[:len(status)-1]) != status[len(status)-1] {
		return fmt.Errorf("bad status checksum from servo %d", id)
	}
	if status[4] != 0 {
		return fmt.Errorf("servo %d reported error 0x%02x", id, status[4])
	}
	return nil
}

// Ping checks that a servo answers.
func (b *ax12Bus) Ping(ctx context.Context, id int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.sendPacket(byte(id), AX12_INST_PING, nil)
}

// Goto writes goal position and moving speed in one instruction.
func (b *ax12Bus) Goto(ctx context.Context, id, position, speed int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := make([]byte, 5)
	params[0] = AX12_ADDR_GOAL_POS
	binary.LittleEndian.PutUint16(params[1:3], uint16(position))
	binary.LittleEndian.PutUint16(params[3:5], uint16(speed))
	if err := b.sendPacket(byte(id), AX12_INST_WRITE, params); err != nil {
		return errors.Wrapf(err, "failed to move servo %d", id)
	}
	return nil
}

func (b *ax12Bus) Close() error {
	if b.port != nil {
		return b.port.Close()
	}
	return nil
}

// feetechBus drives Feetech STS servos through the feetech-servo library.
type feetechBus struct {
	bus    *feetech.Bus
	servos map[int]*feetech.Servo
}

func openFeetechBus(portName string, baudrate int) (*feetechBus, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     portName,
		Baudrate: baudrate,
		Protocol: feetech.ProtocolV0,
		Timeout:  PROTOCOL_TIMEOUT,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create feetech servo bus: %w", err)
	}
	return &feetechBus{bus: bus, servos: make(map[int]*feetech.Servo)}, nil
}

func (b *feetechBus) servo(id int) *feetech.Servo {
	servo, ok := b.servos[id]
	if !ok {
		servo = b.bus.Servo(id)
		b.servos[id] = servo
	}
	return servo
}

func (b *feetechBus) Ping(ctx context.Context, id int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.servo(id).Ping()
	return err
}

// Goto sets the goal velocity, then the raw goal position.
func (b *feetechBus) Goto(ctx context.Context, id, position, speed int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	servo := b.servo(id)
	if err := servo.WriteVelocity(float64(speed), false); err != nil {
		return fmt.Errorf("failed to set speed of servo %d: %w", id, err)
	}
	if err := servo.WritePosition(float64(position), false); err != nil {
		return fmt.Errorf("failed to move servo %d: %w", id, err)
	}
	return nil
}

func (b *feetechBus) Close() error {
	return b.bus.Close()
}
