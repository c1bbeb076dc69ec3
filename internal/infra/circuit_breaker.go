package infra

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Breaker guards calls to an external dependency (object storage).
// After FailureThreshold consecutive failures it opens and rejects calls
// until Cooldown has passed; the next call is then let through as a probe.
// SuccessThreshold successful probes close it again.

// BreakerState is the observable state of a Breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrBreakerOpen is returned without calling the dependency while the breaker is open.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerConfig holds the tunables; zero values fall back to the defaults.
type BreakerConfig struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration
}

type Breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	state    BreakerState
	failures int
	probes   int
	openedAt time.Time
	now      func() time.Time
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// State returns the current state, promoting open to half-open once the cooldown elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	return b.state
}

// Do runs fn unless the breaker is open and records its outcome.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	b.refresh()
	if b.state == BreakerOpen {
		b.mu.Unlock()
		return ErrBreakerOpen
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failed()
	} else {
		b.succeeded()
	}
	return err
}

// refresh must be called with mu held.
func (b *Breaker) refresh() {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.transition(BreakerHalfOpen)
		b.probes = 0
	}
}

func (b *Breaker) failed() {
	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.openedAt = b.now()
		b.failures = 0
		b.transition(BreakerOpen)
	}
}

func (b *Breaker) succeeded() {
	b.failures = 0
	if b.state != BreakerHalfOpen {
		return
	}
	b.probes++
	if b.probes >= b.cfg.SuccessThreshold {
		b.transition(BreakerClosed)
	}
}

func (b *Breaker) transition(to BreakerState) {
	if b.state == to {
		return
	}
	log.Warn().
		Str("breaker", b.cfg.Name).
		Str("from", b.state.String()).
		Str("to", to.String()).
		Msg("circuit breaker state change")
	b.state = to
}
