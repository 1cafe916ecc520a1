package dispatcher

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/cuemby/corral/pkg/actions"
	"github.com/cuemby/corral/pkg/log"
	"github.com/cuemby/corral/pkg/metrics"
	"github.com/cuemby/corral/pkg/types"
)

// Dispatcher routes READY actions to the worker pool. The pool is a
// semaphore over goroutines: every dispatched action runs in its own
// goroutine but at most workers of them hold a slot at once. A waiting
// parent releases its slot through the scheduler's yield hook so its
// children can run on the same pool without deadlock.
type Dispatcher struct {
	rt      *actions.Runtime
	slots   *semaphore.Weighted
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// New creates a dispatcher with the given worker count and installs the
// cooperative yield hook into the runtime's scheduler.
func New(rt *actions.Runtime, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	d := &Dispatcher{
		rt:    rt,
		slots: semaphore.NewWeighted(int64(workers)),
	}
	rt.Sched.SetYield(func(delay time.Duration) {
		d.slots.Release(1)
		rt.Sched.Sleep(delay)
		_ = d.slots.Acquire(context.Background(), 1)
	})
	return d
}

// Notify tells the dispatcher about a READY action. Ownership of the
// action's lifecycle passes to a worker goroutine until it reaches a
// terminal status. Notifications after Stop are dropped.
func (d *Dispatcher) Notify(actionID string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()

		if err := d.slots.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer d.slots.Release(1)

		status, err := d.rt.Store.GetActionStatus(actionID)
		if err != nil {
			logger := log.WithActionID(actionID)
			logger.Error().Err(err).Msg("dispatch failed")
			return
		}
		if status != types.ActionStatusReady {
			return
		}

		d.execute(actionID)
	}()
}

func (d *Dispatcher) execute(actionID string) {
	action, err := d.rt.Store.GetAction(actionID)
	if err != nil {
		return
	}
	verb := string(action.Action)

	metrics.ActionsInFlight.Inc()
	timer := metrics.NewTimer()
	actions.Execute(d.rt, actionID)
	timer.ObserveDurationVec(metrics.ActionDuration, verb)
	metrics.ActionsInFlight.Dec()

	if status, err := d.rt.Store.GetActionStatus(actionID); err == nil {
		metrics.ActionsTotal.WithLabelValues(verb, string(status)).Inc()
	}
}

// Stop drains the dispatcher: no new notifications are accepted and the
// call blocks until in-flight actions finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.wg.Wait()
}
