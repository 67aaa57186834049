package transport

import (
	"testing"
	"time"
)

func TestPollBackoffGrowthAndReset(t *testing.T) {
	b := NewPollBackoff()

	if got := b.Next(); got != MinPollInterval {
		t.Errorf("first delay = %v, want %v", got, MinPollInterval)
	}

	// Geometric growth to the cap
	var last time.Duration
	for i := 0; i < 10; i++ {
		last = b.Next()
	}
	if last != MaxPollInterval {
		t.Errorf("capped delay = %v, want %v", last, MaxPollInterval)
	}

	b.Reset()
	if got := b.Peek(); got != MinPollInterval {
		t.Errorf("delay after reset = %v, want %v", got, MinPollInterval)
	}
	if b.Attempts() != 0 {
		t.Errorf("attempts after reset = %d, want 0", b.Attempts())
	}
}

func TestReconnectBackoffJitterBounds(t *testing.T) {
	b := NewReconnectBackoff()

	for i := 0; i < 20; i++ {
		base := b.Current()
		delay := b.Next()
		maxWithJitter := base + time.Duration(float64(base)*ReconnectJitter)
		if delay < base || delay > maxWithJitter {
			t.Errorf("delay %v outside [%v, %v]", delay, base, maxWithJitter)
		}
	}
}

func TestPeekDoesNotAdvance(t *testing.T) {
	b := NewPollBackoff()
	b.Peek()
	b.Peek()
	if b.Attempts() != 0 {
		t.Errorf("Peek advanced the backoff: attempts = %d", b.Attempts())
	}
}

func TestBackoffConfigDefaults(t *testing.T) {
	b := NewBackoff(BackoffConfig{})
	if b.Current() != InitialReconnectDelay {
		t.Errorf("default initial = %v, want %v", b.Current(), InitialReconnectDelay)
	}

	// Invalid multiplier falls back rather than stalling
	b = NewBackoff(BackoffConfig{Initial: time.Second, Max: time.Minute, Multiplier: 0.5})
	b.Next()
	if b.Current() <= time.Second {
		t.Error("backoff not advancing with corrected multiplier")
	}
}
