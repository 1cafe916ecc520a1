package scheduler

import (
	"sync"
	"time"
)

// Clock abstracts wallclock time so tests can substitute a fake
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock returns a Clock backed by the system clock
func RealClock() Clock { return realClock{} }

// Scheduler provides the wait primitives used by long-running parent
// actions: cooperative yield (Reschedule), plain sleep for driver polling
// loops, and a substitutable wallclock.
type Scheduler struct {
	clock        Clock
	pollInterval time.Duration
	disableSleep bool
	yield        func(delay time.Duration)
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock substitutes the time source
func WithClock(clock Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithPollInterval sets the delay between dependent polls
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.pollInterval = d }
}

// WithoutSleep disables real sleeping so unit tests complete fast
func WithoutSleep() Option {
	return func(s *Scheduler) { s.disableSleep = true }
}

// New creates a scheduler with a real clock and a one second poll interval
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:        realClock{},
		pollInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetYield installs the cooperative yield hook. The dispatcher points this
// at its worker-slot release so a waiting parent does not hold a slot
// hostage while its children run on the same pool.
func (s *Scheduler) SetYield(fn func(delay time.Duration)) {
	s.yield = fn
}

// Wallclock returns the current time from the configured clock
func (s *Scheduler) Wallclock() time.Time {
	return s.clock.Now()
}

// PollInterval returns the delay a waiting parent uses between polls
func (s *Scheduler) PollInterval() time.Duration {
	return s.pollInterval
}

// Sleep waits uncoordinated, used inside provisioning polling loops
func (s *Scheduler) Sleep(d time.Duration) {
	if s.disableSleep {
		return
	}
	s.clock.Sleep(d)
}

// Reschedule suspends the caller for at least delay while its worker slot
// remains available to service other actions. Without a yield hook this
// degrades to a plain sleep.
func (s *Scheduler) Reschedule(delay time.Duration) {
	if delay <= 0 {
		delay = s.pollInterval
	}
	if s.yield != nil {
		s.yield(delay)
		return
	}
	s.Sleep(delay)
}

// FakeClock is a manually driven Clock for tests. Sleep advances the fake
// time instead of blocking, so polling loops converge immediately.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a fake clock starting at the given time
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(d time.Duration) {
	c.Advance(d)
}

// Advance moves the fake time forward
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
