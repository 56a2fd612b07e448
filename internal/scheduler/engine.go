package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"collections-engine/internal/accounts"
	"collections-engine/internal/cadence"
	"collections-engine/internal/calls"
	"collections-engine/internal/dispatcher"
	"collections-engine/internal/observer"
	"collections-engine/internal/policy"
	"collections-engine/internal/rotation"
	"collections-engine/internal/settings"
	"collections-engine/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrPrecondition means the engine cannot run with the current settings.
	ErrPrecondition = errors.New("scheduler: precondition failed")

	// ErrTickInProgress is returned by Tick when another tick holds the engine.
	ErrTickInProgress = errors.New("scheduler: tick already in progress")

	// ErrStopped is returned by Tick while the engine is not running.
	ErrStopped = errors.New("scheduler: engine is stopped")
)

// AccountSource lists accounts whose status is in statuses, phones included.
type AccountSource interface {
	ListWorkableAccounts(ctx context.Context, statuses []accounts.Status) ([]accounts.Account, error)
}

// PolicySource hands out the campaign policy snapshot for one tick.
type PolicySource interface {
	Current() *policy.Snapshot
}

// SettingsSource returns usable provider settings or an error wrapping
// settings.ErrNotConfigured / settings.ErrInvalid.
type SettingsSource interface {
	Require(ctx context.Context) (settings.Settings, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatcher.Request) (calls.CallLog, error)
}

type Config struct {
	Period         time.Duration
	Budget         time.Duration
	MaxConcurrency int

	// WindowStart/WindowEnd are offsets from local midnight.
	WindowStart time.Duration
	WindowEnd   time.Duration

	// Jitter is the upper bound of a random pause before each dispatch.
	Jitter time.Duration
}

func (c Config) withDefaults() Config {
	if c.Period <= 0 {
		c.Period = time.Minute
	}
	if c.Budget <= 0 || c.Budget > c.Period {
		c.Budget = c.Period * 9 / 10
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 5
	}
	if c.WindowStart == 0 && c.WindowEnd == 0 {
		c.WindowStart, c.WindowEnd = 8*time.Hour, 21*time.Hour
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	return c
}

// Deps are the engine's collaborators. Lease and Bus are optional.
type Deps struct {
	Accounts   AccountSource
	Policy     PolicySource
	Settings   SettingsSource
	Cadence    *cadence.Tracker
	Rotation   *rotation.Policy
	Dispatcher Dispatcher
	Bus        *observer.Bus
	Lease      TickLease
	Log        *slog.Logger

	Clock func() time.Time
	Rand  *rand.Rand
}

// Engine runs the periodic scheduling loop. Create one per process with New.
type Engine struct {
	cfg Config
	d   Deps

	log    *slog.Logger
	tracer trace.Tracer
	clock  func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	runCtx  context.Context
	cancel  context.CancelFunc

	// tickMu serializes ticks; manual and cron ticks both take it with TryLock.
	// A tick holds it until its dispatches return.
	tickMu sync.Mutex

	planMu sync.RWMutex
	plan   Schedule
}

func New(cfg Config, d Deps) (*Engine, error) {
	if d.Accounts == nil || d.Policy == nil || d.Settings == nil || d.Dispatcher == nil {
		return nil, errors.New("scheduler: accounts, policy, settings and dispatcher are required")
	}
	if d.Cadence == nil {
		d.Cadence = cadence.NewTracker(0)
	}
	if d.Rotation == nil {
		d.Rotation = rotation.NewPolicy(nil, nil, d.Log)
	}
	if d.Bus == nil {
		d.Bus = observer.New(d.Log)
	}
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}
	rng := d.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{
		cfg:    cfg.withDefaults(),
		d:      d,
		log:    logger.Component(d.Log, "scheduler"),
		tracer: otel.Tracer("collections-engine/scheduler"),
		clock:  clock,
		rng:    rng,
	}, nil
}

func (e *Engine) Config() Config { return e.cfg }

// Start validates settings, runs one tick right away and then one per period.
// Calling Start on a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}
	if _, err := e.d.Settings.Require(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPrecondition, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := cron.New(
		cron.WithLogger(logger.CronLogger(e.log)),
		cron.WithChain(
			cron.Recover(logger.CronLogger(e.log)),
			cron.SkipIfStillRunning(logger.CronLogger(e.log)),
		),
	)
	c.Schedule(cron.Every(e.cfg.Period), cron.FuncJob(func() { e.scheduledTick(runCtx) }))

	e.cron = c
	e.runCtx = runCtx
	e.cancel = cancel
	e.running = true
	c.Start()

	e.log.Info("engine started", "period", e.cfg.Period, "max_concurrency", e.cfg.MaxConcurrency)
	e.d.Bus.Publish(observer.Event{Type: observer.TypeEngineStarted, Time: e.clock().UTC()})

	go e.scheduledTick(runCtx)
	return nil
}

// Stop cancels the trigger and any launches not yet made. Calls already
// handed to the provider finish; use Wait to block on them.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	c := e.cron
	cancel := e.cancel
	e.cron = nil
	e.cancel = nil
	e.running = false
	e.mu.Unlock()

	cancel()
	c.Stop()

	e.log.Info("engine stopped")
	e.d.Bus.Publish(observer.Event{Type: observer.TypeEngineStopped, Time: e.clock().UTC()})
}

func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Wait blocks until the running tick and its dispatches finish or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.tickMu.Lock()
		e.tickMu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedule returns a copy of today's projection.
func (e *Engine) Schedule() Schedule {
	e.planMu.RLock()
	defer e.planMu.RUnlock()
	return e.plan.clone()
}

// Subscribe forwards to the observer bus.
func (e *Engine) Subscribe(buffer int) (<-chan observer.Event, func()) {
	return e.d.Bus.Subscribe(buffer)
}

func (e *Engine) scheduledTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := e.Tick(ctx)
	switch {
	case err == nil,
		errors.Is(err, ErrTickInProgress),
		errors.Is(err, ErrLeaseHeld),
		errors.Is(err, ErrStopped),
		errors.Is(err, context.Canceled):
	default:
		e.log.Warn("tick failed", "err", err)
	}
}

// runContext returns the context Start created, or false when stopped.
func (e *Engine) runContext() (context.Context, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runCtx, e.running
}

// mergePlan folds a tick's plan into the projection for its local day.
// Entries from earlier ticks of the same day are kept unless the new tick
// planned the same (account, phone) again; a new day starts empty.
func (e *Engine) mergePlan(next Schedule) {
	e.planMu.Lock()
	defer e.planMu.Unlock()
	if e.plan.Day == next.Day {
		planned := make(map[string]bool, len(next.Calls))
		for _, c := range next.Calls {
			planned[c.key()] = true
		}
		for _, c := range e.plan.Calls {
			if planned[c.key()] {
				continue
			}
			if c.Status == PlanPending {
				c.Status = PlanSkipped
				c.Error = "not launched before the tick budget ran out"
			}
			next.Calls = append(next.Calls, c)
		}
		sortPlan(next.Calls)
	}
	e.plan = next
}

func (e *Engine) randDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return time.Duration(e.rng.Int63n(int64(max)))
}
