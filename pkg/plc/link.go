// Package plc speaks the gantry PLC's modbus register protocol: 32-bit
// floats carried across paired holding registers and single-bit coils
// pulsed for one-shot actions.
package plc

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/cropeye/rig/internal/log"
)

// DefaultPulseWidth is how long a pulsed coil is held high.
const DefaultPulseWidth = 150 * time.Millisecond

// ErrUnknownCoil is returned for coil actions not present in CoilAddr.
var ErrUnknownCoil = errors.New("plc: unknown coil action")

// Transport is the subset of the modbus client used by Link. The modbus
// link carries one request/response exchange at a time.
type Transport interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
	ReadCoils(address, quantity uint16) ([]byte, error)
	WriteSingleCoil(address, value uint16) ([]byte, error)
}

// Link serializes all register and coil transactions to one PLC endpoint.
// Every transaction takes the lock once; multi-register operations are
// independent reads that may observe different PLC scan cycles.
type Link struct {
	mu         sync.Mutex
	client     Transport
	closer     io.Closer
	pulseWidth time.Duration
}

// NewLink wraps an existing transport. Used directly by tests; production
// code goes through Dial.
func NewLink(t Transport) *Link {
	return &Link{client: t, pulseWidth: DefaultPulseWidth}
}

// Dial connects to the PLC over modbus TCP. A connection failure here is
// fatal to the caller; there is no silent retry at construction.
func Dial(addr string, slaveID byte, timeout time.Duration) (*Link, error) {
	handler := modbus.NewTCPClientHandler(addr)
	handler.Timeout = timeout
	handler.SlaveId = slaveID
	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("plc connect %s: %w", addr, err)
	}
	l := NewLink(modbus.NewClient(handler))
	l.closer = handler
	return l, nil
}

// Close releases the underlying connection.
func (l *Link) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// SetPulseWidth overrides the coil pulse width.
func (l *Link) SetPulseWidth(d time.Duration) {
	l.pulseWidth = d
}

// ReadFloat reads one 32-bit float from a register pair.
func (l *Link) ReadFloat(addr uint16) (float32, error) {
	l.mu.Lock()
	data, err := l.client.ReadHoldingRegisters(addr, 2)
	l.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("read holding 0x%04X: %w", addr, err)
	}
	words, err := bytesToWords(data)
	if err != nil {
		return 0, err
	}
	return DecodeFloat(words)
}

// WriteFloat writes one 32-bit float to a register pair. Write failures
// propagate: a dropped command must not be silently ignored.
func (l *Link) WriteFloat(addr uint16, v float32) error {
	words := EncodeFloat(v)
	payload := wordsToBytes(words[:])
	l.mu.Lock()
	_, err := l.client.WriteMultipleRegisters(addr, 2, payload)
	l.mu.Unlock()
	if err != nil {
		return fmt.Errorf("write holding 0x%04X: %w", addr, err)
	}
	return nil
}

// ReadCoil reads one coil level.
func (l *Link) ReadCoil(addr uint16) (bool, error) {
	l.mu.Lock()
	data, err := l.client.ReadCoils(addr, 1)
	l.mu.Unlock()
	if err != nil {
		return false, fmt.Errorf("read coil 0x%04X: %w", addr, err)
	}
	if len(data) == 0 {
		return false, fmt.Errorf("read coil 0x%04X: empty response", addr)
	}
	return data[0]&0x01 != 0, nil
}

// WriteCoil writes one coil level.
func (l *Link) WriteCoil(addr uint16, on bool) error {
	var value uint16
	if on {
		value = 0xFF00
	}
	l.mu.Lock()
	_, err := l.client.WriteSingleCoil(addr, value)
	l.mu.Unlock()
	if err != nil {
		return fmt.Errorf("write coil 0x%04X: %w", addr, err)
	}
	return nil
}

// PulseCoil raises a coil, holds it for the pulse width, then drops it.
// This is the canonical edge trigger for one-shot PLC actions. The hold
// happens outside the transaction lock.
func (l *Link) PulseCoil(addr uint16) error {
	if err := l.WriteCoil(addr, true); err != nil {
		return err
	}
	time.Sleep(l.pulseWidth)
	return l.WriteCoil(addr, false)
}

// Pulse pulses a coil by name.
func (l *Link) Pulse(name string) error {
	addr, ok := CoilAddr[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCoil, name)
	}
	return l.PulseCoil(addr)
}

// HandleCoil triggers a named coil action. Pulse for one-shot triggers;
// otherwise a level write, for which value is required.
func (l *Link) HandleCoil(name string, pulse bool, value *bool) error {
	addr, ok := CoilAddr[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCoil, name)
	}
	if pulse {
		return l.PulseCoil(addr)
	}
	if value == nil {
		return errors.New("plc: value required when pulse is false")
	}
	return l.WriteCoil(addr, *value)
}

// safeReadFloat reads a telemetry register, logging and reporting nil on
// failure. Telemetry polling tolerates missing values; commanded writes
// do not go through here.
func (l *Link) safeReadFloat(label string) *float64 {
	addr := RegisterAddr[label]
	v, err := l.ReadFloat(addr)
	if err != nil {
		log.Warn("plc float read failed", "register", label, "addr", fmt.Sprintf("0x%04X", addr), "err", err)
		return nil
	}
	f := float64(v)
	return &f
}

func (l *Link) safeReadCoil(label string) *bool {
	addr := CoilAddr[label]
	v, err := l.ReadCoil(addr)
	if err != nil {
		log.Warn("plc coil read failed", "coil", label, "addr", fmt.Sprintf("0x%04X", addr), "err", err)
		return nil
	}
	return &v
}

// writeOptional writes any provided axis values to the given set registers.
// Reports whether at least one axis was written.
func (l *Link) writeOptional(x, y, z *float64, xReg, yReg, zReg string) (bool, error) {
	wrote := false
	for _, a := range []struct {
		v   *float64
		reg string
	}{{x, xReg}, {y, yReg}, {z, zReg}} {
		if a.v == nil {
			continue
		}
		if err := l.WriteFloat(RegisterAddr[a.reg], float32(*a.v)); err != nil {
			return wrote, err
		}
		wrote = true
	}
	return wrote, nil
}

// WriteSpeeds sets the target speed for any provided axes.
func (l *Link) WriteSpeeds(x, y, z *float64) (bool, error) {
	return l.writeOptional(x, y, z, "x_speed_set", "y_speed_set", "z_speed_set")
}

// WriteCoords sets the target coordinate for any provided axes.
func (l *Link) WriteCoords(x, y, z *float64) (bool, error) {
	return l.writeOptional(x, y, z, "x_coord_set", "y_coord_set", "z_coord_set")
}
