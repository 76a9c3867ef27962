package actor

import (
	"fmt"
	"time"

	"fieldsim/internal/config"
	"fieldsim/internal/core/domain"
	"fieldsim/internal/mqtt"
	"fieldsim/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const availabilityHeartbeat = 60 * time.Second

// MQTTActor bridges committed point updates to an MQTT broker and turns
// set-topic messages into simulator write requests.
type MQTTActor struct {
	config   *config.Config
	behavior actor.Behavior
	stash    *actorutil.Stash
	client   *mqtt.MQTTClient
	events   *eventstream.EventStream
	sub      *eventstream.Subscription

	scheduler       *scheduler.TimerScheduler
	cancelHeartbeat scheduler.CancelFunc
	bridgeOnline    bool

	logger *zap.Logger
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	Error error
}

// ParsedCommand is routed to the parent, which forwards it as a write
// request to the simulator.
type ParsedCommand struct {
	Command *mqtt.ParsedPointCommand
}

type heartbeatTick struct {
}

type refreshFailed struct {
	Error error
}

func NewMQTTActor(config *config.Config, events *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:   config,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		events:   events,
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
		})

		state.client.Connect(func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")

		state.bridgeOnline = true
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		state.client.SubscribeToCommandTopic(func(c pahomqtt.Client, m pahomqtt.Message) {
			cmd, err := state.client.ParseMQTTCommand(m)
			if err == nil && cmd != nil {
				ctx.Send(ctx.Self(), ParsedCommand{Command: cmd})
			}
		}, func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTSubscribed{})
			}
		}, 1*time.Second)
	case MQTTSubscribed:
		state.logger.Debug("mqtt@starting subscribed")

		// point updates arrive on the engine's tick goroutines, so they
		// are rerouted through the mailbox via the root context.
		system := ctx.ActorSystem()
		self := ctx.Self()
		state.sub = state.events.Subscribe(func(evt any) {
			switch evt.(type) {
			case domain.PointUpdateEvent, domain.EngineStateEvent:
				system.Root.Send(self, evt)
			}
		})

		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.cancelHeartbeat = state.scheduler.RequestRepeatedly(availabilityHeartbeat, availabilityHeartbeat, ctx.Self(), heartbeatTick{})

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case ParsedCommand:
		state.logger.Debug("mqtt@default parsedCommand", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case domain.PointUpdateEvent:
		state.publishPointUpdate(ctx, msg)
	case domain.EngineStateEvent:
		state.bridgeOnline = msg.Running
		state.publishBridgeState(ctx, msg.Running)
	case heartbeatTick:
		// refresh availability and every retained state topic, so a broker
		// that lost its retained messages recovers without waiting a tick
		state.publishBridgeState(ctx, state.bridgeOnline)
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(ctx.Parent(), domain.ListDevicesRequest{}, 2*time.Second), func(err error) any {
			return refreshFailed{Error: err}
		})
	case domain.ListDevicesResponse:
		for _, dev := range msg.Devices {
			actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(ctx.Parent(), domain.ListPointsRequest{Instance: dev.Instance}, 2*time.Second), func(err error) any {
				return refreshFailed{Error: err}
			})
		}
	case domain.ListPointsResponse:
		if !msg.HasResponseError() {
			state.publishPointList(msg.Device.Name, msg.Points)
		}
	case refreshFailed:
		state.logger.Warn("mqtt@default state refresh failed", zap.Error(msg.Error))
	case MQTTConnectionLost:
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// publishPointUpdate publishes one committed snapshot. Values are retained
// so late subscribers see the current device state.
func (state *MQTTActor) publishPointUpdate(ctx actor.Context, evt domain.PointUpdateEvent) {
	topic := state.client.PointStateTopic(evt.DeviceName, evt.Point.ID.String())
	payload := evt.Point.ValueString()
	state.logger.Sugar().Debugf("mqtt@publish: point %s => %s", topic, payload)
	state.client.Publish(topic, payload, 1, true, func(err error) {
		ctx.Send(ctx.Self(), publishResult{Error: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.PublishResultReceive)
}

// publishPointList republishes a device's retained state topics in one
// sweep. Publish results are only logged; refresh traffic never blocks the
// mailbox behind per-message acks.
func (state *MQTTActor) publishPointList(deviceName string, points []domain.PointSnapshot) {
	for _, snap := range points {
		topic := state.client.PointStateTopic(deviceName, snap.ID.String())
		state.client.Publish(topic, snap.ValueString(), 1, true, func(err error) {
			if err != nil {
				state.logger.Warn("mqtt: could not refresh state topic",
					zap.String("topic", topic), zap.Error(err))
			}
		}, 5*time.Second)
	}
}

func (state *MQTTActor) publishBridgeState(ctx actor.Context, online bool) {
	payload := mqtt.MQTT_PAYLOAD_OFFLINE
	if online {
		payload = mqtt.MQTT_PAYLOAD_ONLINE
	}
	state.client.Publish(state.client.BridgeStateTopic(), payload, 0, true, func(err error) {
		ctx.Send(ctx.Self(), publishResult{Error: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.PublishResultReceive)
}

func (state *MQTTActor) PublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.cancelHeartbeat != nil {
		state.cancelHeartbeat()
		state.cancelHeartbeat = nil
	}
	if state.sub != nil {
		state.events.Unsubscribe(state.sub)
		state.sub = nil
	}
	if state.client != nil {
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
	}
}

// NewTestMQTTActor acknowledges everything without a broker.
func NewTestMQTTActor(config *config.Config, events *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:   config,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		events:   events,
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch ctx.Message().(type) {
	case *actor.Started:
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	}
}
