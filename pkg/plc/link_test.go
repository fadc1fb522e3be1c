package plc

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records transactions and can be failed per operation.
type fakeTransport struct {
	mu        sync.Mutex
	registers map[uint16][]byte
	coils     map[uint16]bool

	coilWrites []coilWrite

	readErr  error
	writeErr error
}

type coilWrite struct {
	addr uint16
	on   bool
	at   time.Time
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		registers: make(map[uint16][]byte),
		coils:     make(map[uint16]bool),
	}
}

func (f *fakeTransport) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	data, ok := f.registers[address]
	if !ok {
		return make([]byte, quantity*2), nil
	}
	return data, nil
}

func (f *fakeTransport) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.registers[address] = append([]byte(nil), value...)
	return nil, nil
}

func (f *fakeTransport) ReadCoils(address, quantity uint16) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	var b byte
	if f.coils[address] {
		b = 1
	}
	return []byte{b}, nil
}

func (f *fakeTransport) WriteSingleCoil(address, value uint16) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	on := value == 0xFF00
	f.coils[address] = on
	f.coilWrites = append(f.coilWrites, coilWrite{addr: address, on: on, at: time.Now()})
	return nil, nil
}

func (f *fakeTransport) writesTo(addr uint16) []coilWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []coilWrite
	for _, w := range f.coilWrites {
		if w.addr == addr {
			out = append(out, w)
		}
	}
	return out
}

func TestLink_WriteReadFloat(t *testing.T) {
	ft := newFakeTransport()
	link := NewLink(ft)

	require.NoError(t, link.WriteFloat(0x0058, 123.5))
	got, err := link.ReadFloat(0x0058)
	require.NoError(t, err)
	assert.Equal(t, float32(123.5), got)
}

func TestLink_ReadFloat_Error(t *testing.T) {
	ft := newFakeTransport()
	ft.readErr = errors.New("timeout")
	link := NewLink(ft)

	_, err := link.ReadFloat(0x0042)
	require.Error(t, err)
}

func TestLink_WriteFloat_ErrorPropagates(t *testing.T) {
	ft := newFakeTransport()
	ft.writeErr = errors.New("connection reset")
	link := NewLink(ft)

	require.Error(t, link.WriteFloat(0x0058, 1.0))

	_, err := link.WriteSpeeds(f64(10), nil, nil)
	require.Error(t, err, "a dropped command write must surface")
}

func TestLink_PulseCoil_Ordering(t *testing.T) {
	ft := newFakeTransport()
	link := NewLink(ft)
	link.SetPulseWidth(30 * time.Millisecond)

	addr := CoilAddr["xy_go_target"]
	require.NoError(t, link.PulseCoil(addr))

	writes := ft.writesTo(addr)
	require.Len(t, writes, 2)
	assert.True(t, writes[0].on, "first write must raise the coil")
	assert.False(t, writes[1].on, "second write must drop the coil")
	assert.GreaterOrEqual(t, writes[1].at.Sub(writes[0].at), 30*time.Millisecond)
}

func TestLink_HandleCoil(t *testing.T) {
	ft := newFakeTransport()
	link := NewLink(ft)
	link.SetPulseWidth(time.Millisecond)

	err := link.HandleCoil("no_such_coil", true, nil)
	assert.ErrorIs(t, err, ErrUnknownCoil)

	require.NoError(t, link.HandleCoil("xy_home", true, nil))
	assert.Len(t, ft.writesTo(CoilAddr["xy_home"]), 2)

	// Level write requires a value.
	require.Error(t, link.HandleCoil("cmd_pause", false, nil))
	on := true
	require.NoError(t, link.HandleCoil("cmd_pause", false, &on))
	v, err := link.ReadCoil(CoilAddr["cmd_pause"])
	require.NoError(t, err)
	assert.True(t, v)
}

func TestLink_WriteSpeeds_Partial(t *testing.T) {
	ft := newFakeTransport()
	link := NewLink(ft)

	wrote, err := link.WriteSpeeds(nil, nil, nil)
	require.NoError(t, err)
	assert.False(t, wrote, "nothing to write")

	wrote, err = link.WriteSpeeds(f64(5), nil, f64(2.5))
	require.NoError(t, err)
	assert.True(t, wrote)

	x, err := link.ReadFloat(RegisterAddr["x_speed_set"])
	require.NoError(t, err)
	assert.Equal(t, float32(5), x)
	z, err := link.ReadFloat(RegisterAddr["z_speed_set"])
	require.NoError(t, err)
	assert.Equal(t, float32(2.5), z)
}

func TestLink_State_ToleratesFailedReads(t *testing.T) {
	ft := newFakeTransport()
	ft.readErr = errors.New("timeout")
	link := NewLink(ft)

	state := link.State()
	assert.Nil(t, state.Current.Position.X)
	assert.Nil(t, state.Coils["machine_on"])
	assert.Len(t, state.Coils, len(CoilAddr))
}

func TestLink_State_Values(t *testing.T) {
	ft := newFakeTransport()
	link := NewLink(ft)
	require.NoError(t, link.WriteFloat(RegisterAddr["x_pos_cur"], 42.25))
	require.NoError(t, link.WriteCoil(CoilAddr["light_on"], true))

	state := link.State()
	require.NotNil(t, state.Current.Position.X)
	assert.Equal(t, 42.25, *state.Current.Position.X)
	require.NotNil(t, state.Coils["light_on"])
	assert.True(t, *state.Coils["light_on"])
	require.NotNil(t, state.Current.Position.Y)
	assert.Equal(t, 0.0, *state.Current.Position.Y)
}

func f64(v float64) *float64 { return &v }
