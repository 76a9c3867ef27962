package actor

import (
	"math"
	"testing"

	"fieldsim/internal/core/domain"
	"fieldsim/internal/core/sim"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHandler(t *testing.T) (*PointsHandler, *sim.Registry) {
	t.Helper()
	registry := sim.NewRegistry(zap.NewNop())
	_, err := registry.Create(domain.DeviceVAV, 101, "VAV-1", "")
	require.NoError(t, err)
	_, err = registry.Create(domain.DeviceAHU, 201, "AHU-1", "")
	require.NoError(t, err)
	return NewPointsHandler(registry, zap.NewNop()), registry
}

func registersToFloat(regs []uint16) float32 {
	return math.Float32frombits(uint32(regs[0])<<16 | uint32(regs[1]))
}

func floatToRegisters(v float32) []uint16 {
	bits := math.Float32bits(v)
	return []uint16{uint16(bits >> 16), uint16(bits)}
}

func TestReadInputRegisters(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	h, _ := newTestHandler(t)

	// unit 1 = VAV-1, ai1 at register 0
	regs, err := h.HandleInputRegisters(&modbus.InputRegistersRequest{
		UnitId: 1, Addr: 0, Quantity: 2,
	})
	require.NoError(err)
	assert.Equal(float32(73.0), registersToFloat(regs))

	// unit 2 = AHU-1, ai2 at registers 2..3
	regs, err = h.HandleInputRegisters(&modbus.InputRegistersRequest{
		UnitId: 2, Addr: 2, Quantity: 2,
	})
	require.NoError(err)
	assert.Equal(float32(72.0), registersToFloat(regs))
}

func TestReadInputRegistersSpansPoints(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	h, _ := newTestHandler(t)

	// AHU-1 ai1 and ai2 in a single read
	regs, err := h.HandleInputRegisters(&modbus.InputRegistersRequest{
		UnitId: 2, Addr: 0, Quantity: 4,
	})
	require.NoError(err)
	assert.Equal(float32(55.0), registersToFloat(regs[0:2]))
	assert.Equal(float32(72.0), registersToFloat(regs[2:4]))
}

func TestReadHoldingRegisters(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	h, _ := newTestHandler(t)

	// ao1 at register 0
	regs, err := h.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{
		UnitId: 1, Addr: 0, Quantity: 2,
	})
	require.NoError(err)
	assert.Equal(float32(45.0), registersToFloat(regs))

	// av1 at register 100
	regs, err = h.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{
		UnitId: 1, Addr: 100, Quantity: 2,
	})
	require.NoError(err)
	assert.Equal(float32(72.0), registersToFloat(regs))
}

func TestWriteHoldingRegisters(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	h, registry := newTestHandler(t)

	// write VAV-1 setpoint (av1)
	_, err := h.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{
		UnitId: 1, Addr: 100, Quantity: 2, IsWrite: true,
		Args: floatToRegisters(68.5),
	})
	require.NoError(err)

	snap, err := registry.Value(101, domain.ObjectID{Kind: domain.AnalogValue, Index: 1})
	require.NoError(err)
	assert.Equal(68.5, snap.Analog)

	// write AHU-1 fan speed (ao1), clamped to its bounds
	_, err = h.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{
		UnitId: 2, Addr: 0, Quantity: 2, IsWrite: true,
		Args: floatToRegisters(150),
	})
	require.NoError(err)

	snap, err = registry.Value(201, domain.ObjectID{Kind: domain.AnalogOutput, Index: 1})
	require.NoError(err)
	assert.Equal(100.0, snap.Analog)
}

func TestWriteHoldingRegistersRejectsPartialPairs(t *testing.T) {

	assert := assert.New(t)

	h, _ := newTestHandler(t)

	_, err := h.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{
		UnitId: 1, Addr: 100, Quantity: 1, IsWrite: true,
		Args: []uint16{0},
	})
	assert.ErrorIs(err, modbus.ErrIllegalDataAddress)

	_, err = h.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{
		UnitId: 1, Addr: 101, Quantity: 2, IsWrite: true,
		Args: floatToRegisters(68.5),
	})
	assert.ErrorIs(err, modbus.ErrIllegalDataAddress)
}

func TestDiscreteInputs(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	h, _ := newTestHandler(t)

	// VAV-1 occupancy: odd instance starts active
	res, err := h.HandleDiscreteInputs(&modbus.DiscreteInputsRequest{
		UnitId: 1, Addr: 0, Quantity: 1,
	})
	require.NoError(err)
	assert.Equal([]bool{true}, res)

	// AHU has no discrete inputs
	_, err = h.HandleDiscreteInputs(&modbus.DiscreteInputsRequest{
		UnitId: 2, Addr: 0, Quantity: 1,
	})
	assert.ErrorIs(err, modbus.ErrIllegalDataAddress)
}

func TestCoils(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	h, registry := newTestHandler(t)

	// AHU-1 fan status starts active
	res, err := h.HandleCoils(&modbus.CoilsRequest{
		UnitId: 2, Addr: 0, Quantity: 1,
	})
	require.NoError(err)
	assert.Equal([]bool{true}, res)

	// write it off
	_, err = h.HandleCoils(&modbus.CoilsRequest{
		UnitId: 2, Addr: 0, Quantity: 1, IsWrite: true,
		Args: []bool{false},
	})
	require.NoError(err)

	snap, err := registry.Value(201, domain.ObjectID{Kind: domain.BinaryValue, Index: 1})
	require.NoError(err)
	assert.Equal(domain.Inactive, snap.Binary)

	// VAV has no coils
	_, err = h.HandleCoils(&modbus.CoilsRequest{
		UnitId: 1, Addr: 0, Quantity: 1,
	})
	assert.ErrorIs(err, modbus.ErrIllegalDataAddress)
}

func TestUnknownUnitAndAddress(t *testing.T) {

	assert := assert.New(t)

	h, _ := newTestHandler(t)

	_, err := h.HandleInputRegisters(&modbus.InputRegistersRequest{
		UnitId: 9, Addr: 0, Quantity: 2,
	})
	assert.ErrorIs(err, modbus.ErrIllegalFunction)

	_, err = h.HandleInputRegisters(&modbus.InputRegistersRequest{
		UnitId: 1, Addr: 40, Quantity: 2,
	})
	assert.ErrorIs(err, modbus.ErrIllegalDataAddress)
}
