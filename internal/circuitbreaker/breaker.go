// Package circuitbreaker gates outbound exchange requests when the API is
// persistently failing, so a degraded exchange is not hammered with retries
// that cannot succeed.
package circuitbreaker

import (
	"sync"
	"time"
)

// State is the breaker's position in its closed/open/half-open cycle.
type State int32

const (
	// StateClosed passes all requests through.
	StateClosed State = iota
	// StateOpen rejects requests until the cooldown elapses.
	StateOpen
	// StateHalfOpen lets probe requests through to test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config tunes the breaker. FailThreshold consecutive transport failures
// open it; after Cooldown a probe is admitted, and SuccessThreshold
// consecutive probe successes close it again.
type Config struct {
	FailThreshold    int
	SuccessThreshold int
	Cooldown         time.Duration
}

// Breaker is a consecutive-failure circuit breaker. Business rejections do
// not count as failures; callers decide what they record.
type Breaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time

	cfg Config
	now func() time.Time

	stats Snapshot
}

// Snapshot is a point-in-time view of the breaker's counters.
type Snapshot struct {
	State    string
	Allowed  int64
	Rejected int64
	Failures int64
	Trips    int64
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	if cfg.FailThreshold <= 0 {
		cfg.FailThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Allow reports whether a request may proceed right now. An open breaker
// whose cooldown has elapsed moves to half-open and admits the caller as a
// probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			b.stats.Rejected++
			return false
		}
		b.state = StateHalfOpen
		b.successes = 0
	}
	b.stats.Allowed++
	return true
}

// Record feeds the outcome of an admitted request back into the breaker.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !success {
		b.stats.Failures++
		b.failures++
		b.successes = 0
		if b.state == StateHalfOpen || b.failures >= b.cfg.FailThreshold {
			b.trip()
		}
		return
	}

	b.failures = 0
	if b.state == StateHalfOpen {
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.successes = 0
		}
	}
}

// trip opens the breaker; callers hold the mutex.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
	b.stats.Trips++
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}

// Metrics returns the breaker's counters.
func (b *Breaker) Metrics() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.State = b.state.String()
	return s
}
