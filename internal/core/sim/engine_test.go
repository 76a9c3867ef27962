package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"fieldsim/internal/core/domain"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T, r *Registry, policy TickPolicy, seed uint64) (*Engine, *eventstream.EventStream) {
	t.Helper()
	events := &eventstream.EventStream{}
	return NewEngine(r, policy, seed, events, zap.NewNop()), events
}

func TestTickReplaysModelDraws(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	const seed = uint64(1)

	r := newTestRegistry(t)
	dev, err := r.Create(domain.DeviceVAV, 101, "VAV-1", "")
	require.NoError(err)

	e, _ := newTestEngine(t, r, TickPolicy{Interval: time.Second}, seed)
	e.tickDevice(context.Background(), dev, DeviceSource(seed, 101))

	// replay the same stream by hand: temp draw, damper draw, occupancy draw
	rng := DeviceSource(seed, 101)
	wantTemp := BoundedRandomWalk(rng, 73.0, vavTempStep, 65, 80)
	wantDamper := BoundedRandomWalk(rng, 45.0, vavDamperStep, 0, 100)
	wantOcc := ProbabilisticToggle(rng, domain.Active, vavOccupancyP)

	byRole := dev.SnapshotByRole()
	assert.Equal(wantTemp, byRole[domain.RoleTemp].Analog)
	assert.Equal(wantDamper, byRole[domain.RoleDamper].Analog)
	assert.Equal(wantOcc, byRole[domain.RoleOccupancy].Binary)
	// setpoint is never simulated
	assert.Equal(72.0, byRole[domain.RoleSetpoint].Analog)
}

func TestTickCouplesFanSpeedToStagedReturnTemp(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	const seed = uint64(7)

	r := newTestRegistry(t)
	dev, err := r.Create(domain.DeviceAHU, 201, "AHU-1", "")
	require.NoError(err)

	e, _ := newTestEngine(t, r, TickPolicy{Interval: time.Second}, seed)
	e.tickDevice(context.Background(), dev, DeviceSource(seed, 201))

	rng := DeviceSource(seed, 201)
	wantSupply := BoundedRandomWalk(rng, 55.0, ahuSupplyStep, 50, 60)
	wantReturn := BoundedRandomWalk(rng, 72.0, ahuReturnStep, 68, 76)
	// fan speed must track the return temp staged in the same tick
	wantSpeed := ProportionalTracking(75.0, wantReturn,
		fanSpeedReference, fanSpeedGain, fanSpeedBase, fanSpeedSmoothing, fanSpeedMin, fanSpeedMax)
	wantStatus := DerivedBinaryState(wantSpeed, fanStatusThreshold)

	byRole := dev.SnapshotByRole()
	assert.Equal(wantSupply, byRole[domain.RoleSupplyTemp].Analog)
	assert.Equal(wantReturn, byRole[domain.RoleReturnTemp].Analog)
	assert.Equal(wantSpeed, byRole[domain.RoleFanSpeed].Analog)
	assert.Equal(wantStatus, byRole[domain.RoleFanStatus].Binary)
}

func TestTickPublishesUpdateEvents(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	r := newTestRegistry(t)
	dev, err := r.Create(domain.DeviceVAV, 101, "VAV-1", "")
	require.NoError(err)

	e, events := newTestEngine(t, r, TickPolicy{Interval: time.Second}, 1)

	var mu sync.Mutex
	var updates []domain.PointUpdateEvent
	sub := events.Subscribe(func(evt any) {
		if up, ok := evt.(domain.PointUpdateEvent); ok {
			mu.Lock()
			updates = append(updates, up)
			mu.Unlock()
		}
	})
	defer events.Unsubscribe(sub)

	e.tickDevice(context.Background(), dev, DeviceSource(1, 101))

	mu.Lock()
	defer mu.Unlock()
	// temp, damper, occupancy change each tick; setpoint does not
	require.Len(updates, 3)
	for _, up := range updates {
		assert.Equal(uint32(101), up.DeviceInstance)
		assert.Equal("VAV-1", up.DeviceName)
		assert.NotEqual(domain.RoleSetpoint, up.Point.Role)
	}
}

func TestTickAbandonedOnCancel(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	r := newTestRegistry(t)
	dev, err := r.Create(domain.DeviceVAV, 102, "VAV-2", "")
	require.NoError(err)

	before := dev.SnapshotByRole()

	e, _ := newTestEngine(t, r, TickPolicy{Interval: time.Second}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.tickDevice(ctx, dev, DeviceSource(1, 102))

	after := dev.SnapshotByRole()
	assert.Equal(before[domain.RoleTemp].Analog, after[domain.RoleTemp].Analog)
	assert.Equal(before[domain.RoleDamper].Analog, after[domain.RoleDamper].Analog)
}

func TestEngineLifecycle(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	r := newTestRegistry(t)
	_, err := r.Create(domain.DeviceVAV, 101, "VAV-1", "")
	require.NoError(err)
	_, err = r.Create(domain.DeviceAHU, 201, "AHU-1", "")
	require.NoError(err)

	e, events := newTestEngine(t, r, TickPolicy{Interval: 100 * time.Millisecond}, 1)

	var mu sync.Mutex
	updateCount := 0
	var stateEvents []domain.EngineStateEvent
	sub := events.Subscribe(func(evt any) {
		mu.Lock()
		defer mu.Unlock()
		switch ev := evt.(type) {
		case domain.PointUpdateEvent:
			updateCount++
		case domain.EngineStateEvent:
			stateEvents = append(stateEvents, ev)
		}
	})
	defer events.Unsubscribe(sub)

	assert.Equal(StateIdle, e.State())
	require.NoError(e.Start(context.Background()))
	assert.Equal(StateRunning, e.State())

	// starting twice fails
	assert.ErrorIs(e.Start(context.Background()), ErrEngineNotIdle)

	time.Sleep(350 * time.Millisecond)

	e.Stop()
	assert.Equal(StateStopped, e.State())
	// stopping again is a no-op
	e.Stop()
	assert.Equal(StateStopped, e.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(updateCount, 0, "ticks must publish point updates")
	require.Len(stateEvents, 2)
	assert.True(stateEvents[0].Running)
	assert.False(stateEvents[1].Running)

	// committed values stayed in bounds while ticking
	for _, dev := range r.List() {
		for _, snap := range dev.Snapshot() {
			if snap.Bounds != nil {
				assert.GreaterOrEqual(snap.Analog, snap.Bounds.Min)
				assert.LessOrEqual(snap.Analog, snap.Bounds.Max)
			}
		}
	}
}

func TestJitterTriggerWithinPolicyWindow(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	tr := &jitterTrigger{
		min: 5 * time.Second,
		max: 10 * time.Second,
		rng: jitterSource(1, 101),
	}

	prev := time.Now().UnixNano()
	for i := 0; i < 100; i++ {
		next, err := tr.NextFireTime(prev)
		require.NoError(err)
		d := time.Duration(next - prev)
		assert.GreaterOrEqual(d, 5*time.Second)
		assert.Less(d, 10*time.Second)
		prev = next
	}
}

func TestJitterStreamDoesNotShiftValueDraws(t *testing.T) {

	assert := assert.New(t)

	// the value stream must be identical whether or not the jitter stream
	// is consumed
	a := DeviceSource(3, 101)
	jit := jitterSource(3, 101)
	b := DeviceSource(3, 101)

	for i := 0; i < 100; i++ {
		jit.Uniform(0, 1)
		assert.Equal(a.Uniform(0, 1), b.Uniform(0, 1))
	}
}
