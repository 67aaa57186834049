package transport

import (
	"math/rand"
	"sync"
	"time"
)

// Poll cadence constants. The receive task polls at MinPollInterval
// while the gateway is chatty and backs off geometrically to
// MaxPollInterval while idle, bounding both idle CPU use and latency.
const (
	// MinPollInterval is the poll delay while traffic is flowing.
	MinPollInterval = 100 * time.Millisecond

	// MaxPollInterval is the poll delay cap while idle.
	MaxPollInterval = 2 * time.Second

	// PollMultiplier is the factor by which the idle poll delay grows.
	PollMultiplier = 2.0
)

// Reconnect pacing constants.
const (
	// InitialReconnectDelay is the delay before the first retry.
	InitialReconnectDelay = 1 * time.Second

	// MaxReconnectDelay is the retry delay cap.
	MaxReconnectDelay = 60 * time.Second

	// ReconnectJitter is the maximum jitter as a fraction of base delay.
	ReconnectJitter = 0.25
)

// Backoff calculates geometric delays with optional jitter. It paces
// both the idle receive poll and reconnect attempts.
type Backoff struct {
	mu sync.Mutex

	// Current delay (before jitter)
	current time.Duration

	// Configuration
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64

	// Attempt counter
	attempts int

	// Random source for jitter
	rng *rand.Rand
}

// BackoffConfig customizes backoff parameters.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// NewPollBackoff creates the receive-poll pacer: MinPollInterval growing
// to MaxPollInterval, no jitter.
func NewPollBackoff() *Backoff {
	return NewBackoff(BackoffConfig{
		Initial:    MinPollInterval,
		Max:        MaxPollInterval,
		Multiplier: PollMultiplier,
	})
}

// NewReconnectBackoff creates the reconnect pacer: 1s growing to 60s
// with jitter so a fleet of clients does not thunder in step.
func NewReconnectBackoff() *Backoff {
	return NewBackoff(BackoffConfig{
		Initial:    InitialReconnectDelay,
		Max:        MaxReconnectDelay,
		Multiplier: PollMultiplier,
		Jitter:     ReconnectJitter,
	})
}

// NewBackoff creates a backoff calculator with custom settings.
func NewBackoff(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialReconnectDelay
	}
	if cfg.Max <= 0 {
		cfg.Max = MaxReconnectDelay
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = PollMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}

	return &Backoff{
		current:    cfg.Initial,
		initial:    cfg.Initial,
		max:        cfg.Max,
		multiplier: cfg.Multiplier,
		jitter:     cfg.Jitter,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next delay (with jitter) and advances the backoff.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.addJitter(b.current)

	b.attempts++
	next := time.Duration(float64(b.current) * b.multiplier)
	if next > b.max {
		next = b.max
	}
	b.current = next

	return delay
}

// Peek returns the current delay without advancing.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addJitter(b.current)
}

// Reset resets the backoff to its initial delay. The receive task calls
// this whenever bytes arrive; the reconnect path calls it on a
// successful connect.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
	b.attempts = 0
}

// Attempts returns the number of advances since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the current base delay (without jitter).
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// addJitter adds random jitter to a delay.
func (b *Backoff) addJitter(d time.Duration) time.Duration {
	if b.jitter <= 0 {
		return d
	}
	jitterAmount := time.Duration(float64(d) * b.jitter * b.rng.Float64())
	return d + jitterAmount
}
