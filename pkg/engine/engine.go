package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/corral/pkg/actions"
	"github.com/cuemby/corral/pkg/dispatcher"
	"github.com/cuemby/corral/pkg/events"
	"github.com/cuemby/corral/pkg/lock"
	"github.com/cuemby/corral/pkg/log"
	"github.com/cuemby/corral/pkg/metrics"
	"github.com/cuemby/corral/pkg/policy"
	"github.com/cuemby/corral/pkg/profile"
	"github.com/cuemby/corral/pkg/scheduler"
	"github.com/cuemby/corral/pkg/storage"
	"github.com/cuemby/corral/pkg/types"
)

// Revision identifies the verb surface version reported by GetRevision
const Revision = "1.0"

// Options tune the engine at construction time
type Options struct {
	// Workers bounds the action worker pool
	Workers int

	// PollInterval is the delay between dependent polls
	PollInterval time.Duration

	// DefaultActionTimeout applies to actions submitted without a timeout
	DefaultActionTimeout time.Duration

	// DriverLatency is how long simulated stack operations take
	DriverLatency time.Duration

	// Clock substitutes the time source, used by tests
	Clock scheduler.Clock

	// DisableSleep makes waits return immediately, used by tests
	DisableSleep bool
}

// Engine is the orchestrator facade: it owns the full component graph and
// exposes the verb surface. Mutating verbs persist a USER action, hand it to
// the dispatcher and return immediately; callers poll the action to observe
// completion.
type Engine struct {
	store          storage.Store
	rt             *actions.Runtime
	disp           *dispatcher.Dispatcher
	broker         *events.Broker
	profiles       *profile.Registry
	policies       *policy.Registry
	backend        *profile.StackBackend
	defaultTimeout time.Duration
}

// New wires the engine together: scheduler, lock manager with the deletion
// eviction hook, plugin registries seeded with the built-in types, policy
// checker, executors and dispatcher.
func New(store storage.Store, opts Options) (*Engine, error) {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.DriverLatency <= 0 {
		opts.DriverLatency = 50 * time.Millisecond
	}

	// The scheduler and the driver backend share one time source so fake
	// clocks advance both together.
	clock := opts.Clock
	if clock == nil {
		clock = scheduler.RealClock()
	}
	schedOpts := []scheduler.Option{
		scheduler.WithPollInterval(opts.PollInterval),
		scheduler.WithClock(clock),
	}
	if opts.DisableSleep {
		schedOpts = append(schedOpts, scheduler.WithoutSleep())
	}
	sched := scheduler.New(schedOpts...)

	locks := lock.NewManager(func(evictedActionID string) {
		metrics.LockEvictions.Inc()
		if err := store.CancelAction(evictedActionID, "preempted by deletion"); err != nil {
			logger := log.WithActionID(evictedActionID)
			logger.Error().Err(err).Msg("evicted action cancel failed")
		}
	})

	backend := profile.NewStackBackend(clock, opts.DriverLatency)
	profiles := profile.NewRegistry()
	if err := profiles.Register(profile.StackTypeName, profile.NewStackConstructor(backend), profile.StackSchema); err != nil {
		return nil, err
	}

	policies := policy.NewRegistry()
	if err := policies.Register(policy.DeletionTypeName, policy.NewDeletionConstructor(store), policy.DeletionSchema); err != nil {
		return nil, err
	}

	rt := &actions.Runtime{
		Store:     store,
		Locks:     locks,
		Sched:     sched,
		Checker:   policy.NewChecker(store, policies),
		PolicyReg: policies,
		Profiles:  profiles,
	}
	disp := dispatcher.New(rt, opts.Workers)
	rt.Notify = disp.Notify

	broker := events.NewBroker()
	store.SetEventNotifier(broker.Publish)

	e := &Engine{
		store:          store,
		rt:             rt,
		disp:           disp,
		broker:         broker,
		profiles:       profiles,
		policies:       policies,
		backend:        backend,
		defaultTimeout: opts.DefaultActionTimeout,
	}
	return e, nil
}

// Start begins background work: the streaming broker
func (e *Engine) Start() {
	e.broker.Start()
	logger := log.WithComponent("engine")
	logger.Info().Msg("engine started")
}

// Stop drains in-flight actions and stops the broker. The store is closed
// by the caller that opened it.
func (e *Engine) Stop() {
	e.disp.Stop()
	e.broker.Stop()
	logger := log.WithComponent("engine")
	logger.Info().Msg("engine stopped")
}

// Store exposes the underlying store for read-side consumers
func (e *Engine) Store() storage.Store { return e.store }

// StackBackend exposes the simulated provisioning backend, used by tests to
// inject latency and failures.
func (e *Engine) StackBackend() *profile.StackBackend { return e.backend }

// Subscribe attaches a streaming event subscriber
func (e *Engine) Subscribe() events.Subscriber { return e.broker.Subscribe() }

// Unsubscribe detaches a streaming event subscriber
func (e *Engine) Unsubscribe(sub events.Subscriber) { e.broker.Unsubscribe(sub) }

// submitAction persists a USER action, marks it READY and notifies the
// dispatcher. Returns the action id for the caller to poll.
func (e *Engine) submitAction(verb types.ActionName, target, name string, inputs map[string]interface{}, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	action := &types.Action{
		ID:      uuid.NewString(),
		Name:    name,
		Target:  target,
		Action:  verb,
		Cause:   types.CauseUser,
		Inputs:  inputs,
		Status:  types.ActionStatusInit,
		Timeout: timeout,
	}
	if err := e.store.CreateAction(action); err != nil {
		return "", err
	}
	if err := e.store.SetActionStatus(action.ID, types.ActionStatusReady, ""); err != nil {
		return "", err
	}
	e.rt.Notify(action.ID)
	return action.ID, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
