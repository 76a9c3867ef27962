package actor

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"fieldsim/internal/config"
	"fieldsim/internal/core/domain"
	"fieldsim/internal/core/sim"
	"fieldsim/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// Modbus register map, per unit:
//
//	input registers   AI  (index-1)*2        float32, big-endian pair
//	holding registers AO  (index-1)*2        float32, big-endian pair
//	holding registers AV  100+(index-1)*2    float32, big-endian pair
//	discrete inputs   BI  index-1
//	coils             BV  index-1
//
// Unit ids follow device creation order, starting at 1.
const analogValueRegisterBase = 100

// ModbusServerActor exposes the device fleet as a Modbus TCP server. The
// handler reads and writes the registry directly; point access is already
// serialized against tick commits by the device locks.
type ModbusServerActor struct {
	config   config.ModbusServerConfig
	registry *sim.Registry
	server   *modbus.ModbusServer
	logger   *zap.Logger
}

type modbusServerStarted struct {
	Server *modbus.ModbusServer
	Error  error
}

func NewModbusServerActor(config config.ModbusServerConfig, registry *sim.Registry, logger *zap.Logger) *ModbusServerActor {
	return &ModbusServerActor{
		config:   config,
		registry: registry,
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MODBUS, logger),
	}
}

func (state *ModbusServerActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		cfg := state.config
		handler := NewPointsHandler(state.registry, state.logger)
		actorutil.NewBackgroundTask(ctx, func() (*modbusServerStarted, error) {
			server, err := modbus.NewServer(&modbus.ServerConfiguration{
				URL:        cfg.ListenURL,
				Timeout:    30 * time.Second,
				MaxClients: 5,
			}, handler)
			if err != nil {
				return nil, err
			}
			if err := server.Start(); err != nil {
				return nil, err
			}
			return &modbusServerStarted{Server: server}, nil
		}).Recover(func(err error) modbusServerStarted {
			return modbusServerStarted{Error: err}
		}).PipeTo(ctx.Self())
	case modbusServerStarted:
		if msg.Error != nil {
			state.logger.Error("modbus: could not start server", zap.Error(msg.Error))
			panic(msg.Error)
		}
		state.server = msg.Server
		state.logger.Info("modbus server listening", zap.String("url", state.config.ListenURL))
	case *actor.Restarting, *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MODBUS,
			Healthy: state.server != nil,
			State:   "idle",
		})
	}
}

func (state *ModbusServerActor) stop() {
	if state.server != nil {
		if err := state.server.Stop(); err != nil {
			state.logger.Warn("modbus: error stopping server", zap.Error(err))
		}
		state.server = nil
	}
}

// PointsHandler implements the Modbus request callbacks over the registry.
type PointsHandler struct {
	registry *sim.Registry
	logger   *zap.Logger
}

func NewPointsHandler(registry *sim.Registry, logger *zap.Logger) *PointsHandler {
	return &PointsHandler{registry: registry, logger: logger}
}

func (h *PointsHandler) deviceForUnit(unitId uint8) (*domain.Device, error) {
	devices := h.registry.List()
	idx := int(unitId) - 1
	if unitId == 0 || idx >= len(devices) {
		return nil, modbus.ErrIllegalFunction
	}
	return devices[idx], nil
}

// HandleInputRegisters serves AI points as read-only float32 pairs.
func (h *PointsHandler) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	dev, err := h.deviceForUnit(req.UnitId)
	if err != nil {
		return nil, err
	}
	res := make([]uint16, 0, req.Quantity)
	for i := uint16(0); i < req.Quantity; i++ {
		reg, err := h.analogRegister(dev, domain.AnalogInput, 0, req.Addr+i)
		if err != nil {
			return nil, err
		}
		res = append(res, reg)
	}
	return res, nil
}

// HandleHoldingRegisters serves AO and AV points. Writes must cover whole
// float32 pairs: even start address relative to the block, even quantity.
func (h *PointsHandler) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	dev, err := h.deviceForUnit(req.UnitId)
	if err != nil {
		return nil, err
	}

	if req.IsWrite {
		if req.Addr%2 != 0 || req.Quantity%2 != 0 {
			return nil, modbus.ErrIllegalDataAddress
		}
		for i := uint16(0); i < req.Quantity; i += 2 {
			addr := req.Addr + i
			kind, base := holdingBlock(addr)
			id := domain.ObjectID{Kind: kind, Index: uint32((addr-base)/2) + 1}
			bits := uint32(req.Args[i])<<16 | uint32(req.Args[i+1])
			value := float64(math.Float32frombits(bits))
			if _, err := h.registry.SetValue(dev.Instance, id, value); err != nil {
				return nil, mapWriteError(err)
			}
			h.logger.Debug("modbus write",
				zap.Uint32("instance", dev.Instance),
				zap.String("object", id.String()),
				zap.Float64("value", value))
		}
		return nil, nil
	}

	res := make([]uint16, 0, req.Quantity)
	for i := uint16(0); i < req.Quantity; i++ {
		addr := req.Addr + i
		kind, base := holdingBlock(addr)
		reg, err := h.analogRegister(dev, kind, base, addr)
		if err != nil {
			return nil, err
		}
		res = append(res, reg)
	}
	return res, nil
}

// HandleDiscreteInputs serves BI points, one bit per address.
func (h *PointsHandler) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	dev, err := h.deviceForUnit(req.UnitId)
	if err != nil {
		return nil, err
	}
	res := make([]bool, 0, req.Quantity)
	for i := uint16(0); i < req.Quantity; i++ {
		id := domain.ObjectID{Kind: domain.BinaryInput, Index: uint32(req.Addr+i) + 1}
		snap, err := dev.Point(id)
		if err != nil {
			return nil, modbus.ErrIllegalDataAddress
		}
		res = append(res, bool(snap.Binary))
	}
	return res, nil
}

// HandleCoils serves BV points, readable and writable.
func (h *PointsHandler) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	dev, err := h.deviceForUnit(req.UnitId)
	if err != nil {
		return nil, err
	}

	if req.IsWrite {
		for i := uint16(0); i < req.Quantity; i++ {
			id := domain.ObjectID{Kind: domain.BinaryValue, Index: uint32(req.Addr+i) + 1}
			if _, err := h.registry.SetValue(dev.Instance, id, req.Args[i]); err != nil {
				return nil, mapWriteError(err)
			}
		}
		return nil, nil
	}

	res := make([]bool, 0, req.Quantity)
	for i := uint16(0); i < req.Quantity; i++ {
		id := domain.ObjectID{Kind: domain.BinaryValue, Index: uint32(req.Addr+i) + 1}
		snap, err := dev.Point(id)
		if err != nil {
			return nil, modbus.ErrIllegalDataAddress
		}
		res = append(res, bool(snap.Binary))
	}
	return res, nil
}

// analogRegister resolves one register address within a float32 pair block
// to the high or low half of the point's current value.
func (h *PointsHandler) analogRegister(dev *domain.Device, kind domain.PointKind, base, addr uint16) (uint16, error) {
	rel := addr - base
	id := domain.ObjectID{Kind: kind, Index: uint32(rel/2) + 1}
	snap, err := dev.Point(id)
	if err != nil {
		return 0, modbus.ErrIllegalDataAddress
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], math.Float32bits(float32(snap.Analog)))
	if rel%2 == 0 {
		return binary.BigEndian.Uint16(buf[0:2]), nil
	}
	return binary.BigEndian.Uint16(buf[2:4]), nil
}

// holdingBlock maps a holding register address to its point kind and the
// block's base address.
func holdingBlock(addr uint16) (domain.PointKind, uint16) {
	if addr >= analogValueRegisterBase {
		return domain.AnalogValue, analogValueRegisterBase
	}
	return domain.AnalogOutput, 0
}

func mapWriteError(err error) error {
	switch {
	case errors.Is(err, domain.ErrUnknownPoint), errors.Is(err, domain.ErrUnknownDevice),
		errors.Is(err, domain.ErrInvalidWrite):
		return modbus.ErrIllegalDataAddress
	case errors.Is(err, domain.ErrValueOutOfRange):
		return modbus.ErrIllegalDataValue
	default:
		return modbus.ErrServerDeviceFailure
	}
}
