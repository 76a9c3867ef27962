package actor

import (
	"context"
	"fmt"

	"fieldsim/internal/core/domain"
	"fieldsim/internal/core/sim"
	"fieldsim/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// SimulatorActor owns the device registry and the tick engine and serves
// the read/write surface every protocol adapter goes through. Write events
// are published on the same stream as tick updates so adapters cannot tell
// the two apart.
type SimulatorActor struct {
	registry *sim.Registry
	engine   *sim.Engine
	events   *eventstream.EventStream
	logger   *zap.Logger
}

func NewSimulatorActor(registry *sim.Registry, engine *sim.Engine, events *eventstream.EventStream, logger *zap.Logger) *SimulatorActor {
	return &SimulatorActor{
		registry: registry,
		engine:   engine,
		events:   events,
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_SIMULATOR, logger),
	}
}

func (state *SimulatorActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("simulator started")
		if err := state.engine.Start(context.Background()); err != nil {
			state.logger.Error("simulator: could not start engine", zap.Error(err))
			panic(err)
		}
	case *actor.Restarting:
		state.engine.Stop()
	case *actor.Stopping:
		state.engine.Stop()
	case domain.ListDevicesRequest:
		state.handleListDevices(ctx, msg)
	case domain.ListPointsRequest:
		state.handleListPoints(ctx, msg)
	case domain.GetPointRequest:
		state.handleGetPoint(ctx, msg)
	case domain.SetPointRequest:
		state.handleSetPoint(ctx, msg)
	case domain.ActorHealthRequest:
		engState := state.engine.State()
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SIMULATOR,
			Healthy: engState == sim.StateRunning,
			State:   engState.String(),
		})
	default:
		state.logger.Debug("simulator: unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *SimulatorActor) handleListDevices(ctx actor.Context, msg domain.ListDevicesRequest) {
	devices := state.registry.List()
	infos := make([]domain.DeviceInfo, 0, len(devices))
	for _, dev := range devices {
		infos = append(infos, deviceInfo(dev))
	}
	actorutil.ForRequest(msg).Respond(ctx, domain.ListDevicesResponse{
		Devices: infos,
	})
}

func (state *SimulatorActor) handleListPoints(ctx actor.Context, msg domain.ListPointsRequest) {
	dev, err := state.registry.Device(msg.Instance)
	if err != nil {
		actorutil.ForRequest(msg).Respond(ctx, domain.ListPointsResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		})
		return
	}
	actorutil.ForRequest(msg).Respond(ctx, domain.ListPointsResponse{
		Device: deviceInfo(dev),
		Points: dev.Snapshot(),
	})
}

func (state *SimulatorActor) handleGetPoint(ctx actor.Context, msg domain.GetPointRequest) {
	dev, err := state.registry.Device(msg.Instance)
	if err != nil {
		actorutil.ForRequest(msg).Respond(ctx, domain.GetPointResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		})
		return
	}
	snap, err := dev.Point(msg.ID)
	if err != nil {
		actorutil.ForRequest(msg).Respond(ctx, domain.GetPointResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		})
		return
	}
	actorutil.ForRequest(msg).Respond(ctx, domain.GetPointResponse{
		Device: deviceInfo(dev),
		Point:  snap,
	})
}

func (state *SimulatorActor) handleSetPoint(ctx actor.Context, msg domain.SetPointRequest) {
	dev, err := state.resolveDevice(msg)
	if err != nil {
		actorutil.ForRequest(msg).Respond(ctx, domain.SetPointResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		})
		return
	}

	snap, err := state.registry.SetValue(dev.Instance, msg.ID, msg.Value)
	if err != nil {
		actorutil.ForRequest(msg).Respond(ctx, domain.SetPointResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		})
		return
	}

	state.events.Publish(domain.PointUpdateEvent{
		DeviceInstance: dev.Instance,
		DeviceName:     dev.Name,
		DeviceType:     dev.Type,
		Point:          snap,
	})

	actorutil.ForRequest(msg).Respond(ctx, domain.SetPointResponse{
		Device: deviceInfo(dev),
		Point:  snap,
	})
}

// resolveDevice addresses a write target by instance, or by name when the
// instance is zero (MQTT topics carry device names).
func (state *SimulatorActor) resolveDevice(msg domain.SetPointRequest) (*domain.Device, error) {
	if msg.Instance != 0 {
		return state.registry.Device(msg.Instance)
	}
	return state.registry.DeviceByName(msg.DeviceName)
}

func deviceInfo(dev *domain.Device) domain.DeviceInfo {
	return domain.DeviceInfo{
		Instance: dev.Instance,
		Name:     dev.Name,
		Type:     dev.Type,
		Address:  dev.Address,
	}
}
