package circuit

import (
	"context"
	"sync"
	"time"

	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/errors"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/logger"
)

// State of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned without calling the protected function while the breaker is open
var ErrOpen = errors.Unavailable("circuit breaker is open")

// Config controls when a breaker trips and how it recovers
type Config struct {
	MaxFailures   int                               // consecutive failures before opening
	OpenTimeout   time.Duration                     // time spent open before a probe is allowed
	MaxProbes     int                               // concurrent calls allowed while half-open
	OnStateChange func(name string, from, to State) // optional
}

// DefaultConfig returns the breaker settings used for downstream publishers
func DefaultConfig() Config {
	return Config{
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
		MaxProbes:   1,
	}
}

// Stats is a point-in-time view of a breaker
type Stats struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
	Rejected uint64 `json:"rejected"`
}

// Breaker stops calling a failing dependency until it has had time to recover
type Breaker struct {
	name     string
	config   Config
	state    State
	failures int
	probes   int
	openedAt time.Time
	rejected uint64
	now      func() time.Time
	mu       sync.Mutex
	log      *logger.Logger
}

// New creates a breaker in the closed state
func New(name string, config Config) *Breaker {
	defaults := DefaultConfig()
	if config.MaxFailures <= 0 {
		config.MaxFailures = defaults.MaxFailures
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = defaults.OpenTimeout
	}
	if config.MaxProbes <= 0 {
		config.MaxProbes = defaults.MaxProbes
	}

	return &Breaker{
		name:   name,
		config: config,
		now:    time.Now,
		log:    logger.GetLogger("circuit." + name),
	}
}

// Do runs fn unless the breaker is open. Context cancellation by the caller
// is not counted as a downstream failure.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.acquire(); err != nil {
		return err
	}

	err := fn(ctx)
	b.release(err == nil || ctx.Err() != nil)
	return err
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.config.OpenTimeout {
		b.transition(StateHalfOpen)
	}

	switch b.state {
	case StateOpen:
		b.rejected++
		return ErrOpen
	case StateHalfOpen:
		if b.probes >= b.config.MaxProbes {
			b.rejected++
			return ErrOpen
		}
		b.probes++
	}
	return nil
}

func (b *Breaker) release(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.probes--
		if success {
			b.transition(StateClosed)
		} else {
			b.transition(StateOpen)
		}
		return
	}

	if success {
		b.failures = 0
		return
	}
	b.failures++
	if b.state == StateClosed && b.failures >= b.config.MaxFailures {
		b.transition(StateOpen)
	}
}

// transition must be called with mu held
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	switch to {
	case StateOpen:
		b.openedAt = b.now()
		b.log.Warnf("Circuit breaker %s opened after %d failures", b.name, b.failures)
	case StateClosed:
		b.failures = 0
		b.log.Infof("Circuit breaker %s closed", b.name)
	case StateHalfOpen:
		b.probes = 0
	}
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.name, from, to)
	}
}

// State returns the current state without triggering a transition
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns the breaker counters
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Name: b.name, State: b.state.String(), Failures: b.failures, Rejected: b.rejected}
}

// Reset forces the breaker closed
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
	b.failures = 0
}
