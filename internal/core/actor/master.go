package actor

import (
	"errors"
	"fmt"
	"log"
	"time"

	adactor "fieldsim/internal/adapter/actor"
	"fieldsim/internal/config"
	"fieldsim/internal/core/domain"
	. "fieldsim/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type SimulatorActorProvider func(*eventstream.EventStream) *SimulatorActor

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type ModbusActorProvider func() *adactor.ModbusServerActor

// MasterOfPuppetsActor supervises the simulator and the protocol adapters.
// Adapter requests and MQTT commands are routed through here so adapters
// never hold a direct reference to the simulator.
type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	simulatorActor     *actor.PID
	mqttActor          *actor.PID
	modbusActor        *actor.PID

	simulatorActorProvider SimulatorActorProvider
	mqttActorProvider      MQTTActorProvider
	modbusActorProvider    ModbusActorProvider
	logger                 *zap.Logger
}

type healthCheckResult struct {
	simulatorActorHealthy bool
	mqttActorHealthy      bool
	modbusActorHealthy    bool
	mqttExpected          bool
	modbusExpected        bool
	checksExpected        int
	checksReceived        int
	respondTo             *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, simulatorActorProvider SimulatorActorProvider,
	mqttActorProvider MQTTActorProvider, modbusActorProvider ModbusActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:                 config,
		behavior:               actor.NewBehavior(),
		stash:                  &Stash{},
		logger:                 ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:            &eventstream.EventStream{},
		simulatorActorProvider: simulatorActorProvider,
		mqttActorProvider:      mqttActorProvider,
		modbusActorProvider:    modbusActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		// start simulator child
		simulatorActorPID, err := state.startSimulatorActor(ctx)
		if err != nil {
			panic(err)
		}
		state.simulatorActor = simulatorActorPID

		// start MQTT child
		if state.config.MQTT.Enable {
			mqttActorPID, err := state.startMQTTActor(ctx)
			if err != nil {
				panic(err)
			}
			state.mqttActor = mqttActorPID
		}

		// start Modbus child
		if state.config.Modbus.Enable {
			modbusActorPID, err := state.startModbusActor(ctx)
			if err != nil {
				panic(err)
			}
			state.modbusActor = modbusActorPID
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		state.currentHealthCheck.mqttExpected = state.mqttActor != nil
		state.currentHealthCheck.modbusExpected = state.modbusActor != nil
		state.currentHealthCheck.checksExpected = state.childCount()
		// Simulator Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.simulatorActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_SIMULATOR,
				Healthy: false,
			}
		})
		// MQTT Actor Request
		if state.mqttActor != nil {
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      domain.ACTOR_ID_MQTT,
					Healthy: false,
				}
			})
		}
		// Modbus Actor Request
		if state.modbusActor != nil {
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      domain.ACTOR_ID_MODBUS,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.ListDevicesRequest:
		ctx.Forward(state.simulatorActor)
	case domain.ListPointsRequest:
		ctx.Forward(state.simulatorActor)
	case domain.GetPointRequest:
		ctx.Forward(state.simulatorActor)
	case domain.SetPointRequest:
		ctx.Forward(state.simulatorActor)
	case adactor.ParsedCommand:
		// redirect MQTT set command to the simulator as a write request
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			req, err := ParsedPointCommandToRequest(*msg.Command)
			if err != nil {
				state.logger.Warn("master@default invalid point command",
					zap.Any("command", msg.Command), zap.Error(err))
			} else {
				ctx.Send(state.simulatorActor, req)
			}
		}
	case *actor.Terminated:
		// if some actor fails on boot, terminate
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_SIMULATOR) {
			state.logger.Error("master@default simulator error")
			panic(errors.New("simulator terminated"))
		}
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_MODBUS) {
			state.logger.Error("master@default modbus error")
			panic(errors.New("modbus terminated"))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_SIMULATOR:
				state.currentHealthCheck.simulatorActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.currentHealthCheck.mqttActorHealthy = true
			case domain.ACTOR_ID_MODBUS:
				state.currentHealthCheck.modbusActorHealthy = true
			}
		}
		if state.currentHealthCheck.allReceived() {

			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) childCount() int {
	count := 1
	if state.mqttActor != nil {
		count++
	}
	if state.modbusActor != nil {
		count++
	}
	return count
}

func (state *MasterOfPuppetsActor) startSimulatorActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	simulatorProps := actor.PropsFromProducer(func() actor.Actor {
		return state.simulatorActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	simulatorActorPID, err := ctx.SpawnNamed(simulatorProps, domain.ACTOR_ID_SIMULATOR)
	if err != nil {
		return nil, err
	}

	return simulatorActorPID, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *MasterOfPuppetsActor) startModbusActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	modbusProps := actor.PropsFromProducer(func() actor.Actor {
		return state.modbusActorProvider()
	}, actor.WithSupervisor(supervisor))
	modbusActorPID, err := ctx.SpawnNamed(modbusProps, domain.ACTOR_ID_MODBUS)
	if err != nil {
		return nil, err
	}

	return modbusActorPID, nil
}

func (state *healthCheckResult) reset() {
	state.simulatorActorHealthy = false
	state.mqttActorHealthy = false
	state.modbusActorHealthy = false
	state.mqttExpected = false
	state.modbusExpected = false
	state.checksExpected = 0
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= state.checksExpected
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	healthy := state.simulatorActorHealthy &&
		(!state.mqttExpected || state.mqttActorHealthy) &&
		(!state.modbusExpected || state.modbusActorHealthy)
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: healthy,
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
