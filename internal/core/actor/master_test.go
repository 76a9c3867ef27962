package actor

import (
	"fmt"
	"testing"
	"time"

	adactor "fieldsim/internal/adapter/actor"
	"fieldsim/internal/core/domain"
	"fieldsim/internal/core/sim"
	"fieldsim/internal/mqtt"
	"fieldsim/internal/util"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spawnTestMaster(t *testing.T) (*actor.ActorSystem, *actor.RootContext, *actor.PID) {
	t.Helper()

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	cfg.MQTT.Enable = true
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	registry := sim.NewRegistry(logger)
	for _, d := range cfg.Devices {
		devType, err := domain.ParseDeviceType(d.Type)
		require.NoError(t, err)
		_, err = registry.Create(devType, d.Instance, d.Name, d.Address)
		require.NoError(t, err)
	}
	policy := sim.TickPolicy{Interval: time.Duration(cfg.Sim.TickIntervalMillis) * time.Millisecond}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, func(events *eventstream.EventStream) *SimulatorActor {
			engine := sim.NewEngine(registry, policy, cfg.Sim.Seed, events, logger)
			return NewSimulatorActor(registry, engine, events, logger)
		}, func(events *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, events, logger)
		}, nil, logger)
	})
	pid, err := context.SpawnNamed(props, "master")
	require.NoError(t, err)

	return as, context, pid
}

func TestMasterActorHealth(t *testing.T) {

	as, context, pid := spawnTestMaster(t)
	defer as.Shutdown()

	time.Sleep(1 * time.Second)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
	}
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	fmt.Printf("Health response: %+v\n", healthResp)
	assert.NotNil(t, healthResp)

	assert.True(t, healthResp.Healthy, "healthy is true")

	context.Stop(pid)
}

func TestMasterActorDeviceRequests(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	as, context, pid := spawnTestMaster(t)
	defer as.Shutdown()

	time.Sleep(500 * time.Millisecond)

	// list devices
	res, err := context.RequestFuture(pid, domain.ListDevicesRequest{}, 10*time.Second).Result()
	require.NoError(err)
	listResp, ok := res.(domain.ListDevicesResponse)
	require.True(ok)
	require.Len(listResp.Devices, 7)
	assert.Equal("VAV-1", listResp.Devices[0].Name)
	assert.Equal(uint32(101), listResp.Devices[0].Instance)

	// list points of one device
	res, err = context.RequestFuture(pid, domain.ListPointsRequest{Instance: 101}, 10*time.Second).Result()
	require.NoError(err)
	pointsResp, ok := res.(domain.ListPointsResponse)
	require.True(ok)
	require.False(pointsResp.HasResponseError())
	assert.Len(pointsResp.Points, 4)

	// read one point
	res, err = context.RequestFuture(pid, domain.GetPointRequest{
		Instance: 101,
		ID:       domain.ObjectID{Kind: domain.AnalogInput, Index: 1},
	}, 10*time.Second).Result()
	require.NoError(err)
	getResp, ok := res.(domain.GetPointResponse)
	require.True(ok)
	require.False(getResp.HasResponseError())
	assert.Equal(73.0, getResp.Point.Analog)

	// write a point
	res, err = context.RequestFuture(pid, domain.SetPointRequest{
		Instance: 101,
		ID:       domain.ObjectID{Kind: domain.AnalogValue, Index: 1},
		Value:    68.5,
	}, 10*time.Second).Result()
	require.NoError(err)
	setResp, ok := res.(domain.SetPointResponse)
	require.True(ok)
	require.False(setResp.HasResponseError())
	assert.Equal(68.5, setResp.Point.Analog)

	// unknown device propagates the error
	res, err = context.RequestFuture(pid, domain.GetPointRequest{
		Instance: 999,
		ID:       domain.ObjectID{Kind: domain.AnalogInput, Index: 1},
	}, 10*time.Second).Result()
	require.NoError(err)
	getResp, ok = res.(domain.GetPointResponse)
	require.True(ok)
	assert.ErrorIs(getResp.GetResponseError(), domain.ErrUnknownDevice)

	context.Stop(pid)
}

func TestMasterActorRoutesParsedCommands(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	as, context, pid := spawnTestMaster(t)
	defer as.Shutdown()

	time.Sleep(500 * time.Millisecond)

	// an MQTT set command is routed to the simulator as a write
	context.Send(pid, adactor.ParsedCommand{
		Command: &mqtt.ParsedPointCommand{
			DeviceName: "VAV-2",
			ObjectID:   "av1",
			Payload:    "69.5",
		},
	})

	time.Sleep(500 * time.Millisecond)

	res, err := context.RequestFuture(pid, domain.GetPointRequest{
		Instance: 102,
		ID:       domain.ObjectID{Kind: domain.AnalogValue, Index: 1},
	}, 10*time.Second).Result()
	require.NoError(err)
	getResp, ok := res.(domain.GetPointResponse)
	require.True(ok)
	assert.Equal(69.5, getResp.Point.Analog)

	context.Stop(pid)
}
