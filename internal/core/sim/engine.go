package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fieldsim/internal/core/domain"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

// EngineState is the scheduler lifecycle: Idle -> Running -> Stopping ->
// Stopped.
type EngineState int

const (
	StateIdle EngineState = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

var ErrEngineNotIdle = errors.New("engine already started")

// TickPolicy is the deployment-wide tick cadence. Either a fixed interval
// or a per-tick uniform draw from [MinInterval, MaxInterval].
type TickPolicy struct {
	Jitter      bool
	Interval    time.Duration
	MinInterval time.Duration
	MaxInterval time.Duration
}

// Engine drives one quartz job per device. Each tick stages the device's
// next values outside the device lock, then commits the whole batch at once
// and publishes one update event per committed point.
type Engine struct {
	registry *Registry
	policy   TickPolicy
	seed     uint64
	events   *eventstream.EventStream
	logger   *zap.Logger

	mu     sync.Mutex
	state  EngineState
	sched  quartz.Scheduler
	cancel context.CancelFunc
}

func NewEngine(registry *Registry, policy TickPolicy, seed uint64, events *eventstream.EventStream, logger *zap.Logger) *Engine {
	return &Engine{
		registry: registry,
		policy:   policy,
		seed:     seed,
		events:   events,
		logger:   logger.With(zap.String("component", "engine")),
	}
}

func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start transitions Idle -> Running and schedules every registered device.
// Devices are never added after startup, so the job set is fixed for the
// engine's lifetime.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return fmt.Errorf("%w: state %s", ErrEngineNotIdle, e.state)
	}

	runCtx, cancel := context.WithCancel(ctx)
	sched := quartz.NewStdScheduler()

	for _, dev := range e.registry.List() {
		job := &tickJob{
			engine: e,
			dev:    dev,
			rng:    DeviceSource(e.seed, dev.Instance),
		}
		detail := quartz.NewJobDetail(job, quartz.NewJobKey(dev.Name))
		if err := sched.ScheduleJob(detail, e.trigger(dev.Instance)); err != nil {
			cancel()
			return fmt.Errorf("schedule device %d: %w", dev.Instance, err)
		}
	}

	sched.Start(runCtx)
	e.sched = sched
	e.cancel = cancel
	e.state = StateRunning
	e.logger.Info("engine started",
		zap.Int("devices", len(e.registry.List())),
		zap.Bool("jitter", e.policy.Jitter))
	e.events.Publish(domain.EngineStateEvent{Running: true})
	return nil
}

// Stop transitions Running -> Stopping -> Stopped, waiting for in-flight
// ticks to settle. Idempotent: stopping an engine that is not running is a
// no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return
	}
	e.state = StateStopping
	sched := e.sched
	cancel := e.cancel
	e.mu.Unlock()

	sched.Stop()
	sched.Wait(context.Background())
	cancel()

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()
	e.logger.Info("engine stopped")
	e.events.Publish(domain.EngineStateEvent{Running: false})
}

func (e *Engine) trigger(instance uint32) quartz.Trigger {
	if e.policy.Jitter {
		return &jitterTrigger{
			min: e.policy.MinInterval,
			max: e.policy.MaxInterval,
			rng: jitterSource(e.seed, instance),
		}
	}
	return quartz.NewSimpleTrigger(e.policy.Interval)
}

// tickDevice runs one simulation tick. A failing model skips its role and
// keeps the previous committed value; it never stops other devices or the
// process. Cancellation between staging and commit abandons the batch.
func (e *Engine) tickDevice(ctx context.Context, dev *domain.Device, rng Source) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tick panic",
				zap.String("device", dev.Name),
				zap.Any("reason", r))
		}
	}()

	batch, skipped := stage(dev.Type, rng, dev.SnapshotByRole())
	for _, role := range skipped {
		e.logger.Warn("model produced a non-finite value, keeping previous",
			zap.String("device", dev.Name),
			zap.String("role", string(role)))
	}
	if ctx.Err() != nil {
		return
	}

	committed := dev.Commit(batch)
	for _, snap := range committed {
		e.events.Publish(domain.PointUpdateEvent{
			DeviceInstance: dev.Instance,
			DeviceName:     dev.Name,
			DeviceType:     dev.Type,
			Point:          snap,
		})
	}
}

type tickJob struct {
	engine *Engine
	dev    *domain.Device
	rng    Source
}

func (j *tickJob) Execute(ctx context.Context) error {
	j.engine.tickDevice(ctx, j.dev, j.rng)
	return nil
}

func (j *tickJob) Description() string {
	return fmt.Sprintf("tick %s", j.dev.Name)
}

// jitterTrigger draws every interval uniformly from [min, max], matching
// field devices that report on a loose cadence.
type jitterTrigger struct {
	min time.Duration
	max time.Duration
	rng Source
}

func (t *jitterTrigger) NextFireTime(prev int64) (int64, error) {
	d := t.rng.Uniform(float64(t.min), float64(t.max))
	return prev + int64(d), nil
}

func (t *jitterTrigger) Description() string {
	return fmt.Sprintf("JitterTrigger[%s-%s]", t.min, t.max)
}
