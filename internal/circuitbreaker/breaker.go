package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the breaker state.
type State int32

// Breaker states.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config holds breaker thresholds.
type Config struct {
	// FailThreshold is the number of consecutive failures that opens the breaker.
	FailThreshold int `json:"fail_threshold"`
	// SuccessThreshold is the number of half-open successes that closes it again.
	SuccessThreshold int `json:"success_threshold"`
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration `json:"timeout"`
}

// Breaker is a consecutive-failure circuit breaker shared by one adapter's
// REST path. It keeps a venue that is hard-down from being hammered while
// its rate-limit window refills.
type Breaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	successes int
	lastFail  time.Time
	config    Config
}

// New creates a breaker in the closed state.
func New(config Config) *Breaker {
	return &Breaker{config: config}
}

// Allow reports whether a request may proceed. An open breaker transitions
// to half-open after the configured timeout and admits a single probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(b.lastFail) >= b.config.Timeout {
			b.state = StateHalfOpen
			b.successes = 0
			return true
		}
		return false
	}
	return false
}

// Record feeds the outcome of a request back into the breaker.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.config.FailThreshold {
			b.state = StateOpen
			b.lastFail = time.Now()
		}
	case StateHalfOpen:
		if success {
			b.successes++
			if b.successes >= b.config.SuccessThreshold {
				b.state = StateClosed
				b.failures = 0
				b.successes = 0
			}
			return
		}
		b.state = StateOpen
		b.lastFail = time.Now()
		b.successes = 0
	case StateOpen:
		if !success {
			b.lastFail = time.Now()
		}
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to the closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}
