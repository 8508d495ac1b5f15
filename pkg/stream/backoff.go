package stream

import (
	"math/rand"
	"sync"
	"time"
)

// DefaultJitter is the maximum fraction added on top of each delay.
const DefaultJitter = 0.2

// Backoff computes exponential reconnect delays with a ceiling and
// multiplicative jitter.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64

	mu   sync.Mutex
	rand func() float64
}

// NewBackoff returns a Backoff using a time-seeded random source.
func NewBackoff(base, max time.Duration) *Backoff {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Backoff{Base: base, Max: max, Jitter: DefaultJitter, rand: r.Float64}
}

// NewBackoffWithRand returns a Backoff drawing jitter from f, which must
// return values in [0, 1).
func NewBackoffWithRand(base, max time.Duration, f func() float64) *Backoff {
	return &Backoff{Base: base, Max: max, Jitter: DefaultJitter, rand: f}
}

// Raw returns the un-jittered delay for the n-th consecutive retry:
// base * 2^(n-1), capped at Max. n below 1 is treated as 1.
func (b *Backoff) Raw(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	delay := b.Base
	for i := 1; i < n; i++ {
		if delay >= b.Max || delay > b.Max/2 {
			delay = b.Max
			break
		}
		delay *= 2
	}
	if delay > b.Max {
		delay = b.Max
	}
	return delay
}

// Delay returns Raw(n) scaled by a random factor in [1, 1+Jitter).
func (b *Backoff) Delay(n int) time.Duration {
	raw := b.Raw(n)
	if b.Jitter <= 0 || b.rand == nil {
		return raw
	}
	b.mu.Lock()
	j := b.rand()
	b.mu.Unlock()
	return raw + time.Duration(float64(raw)*b.Jitter*j)
}

// Ceiling is the largest value Delay can return.
func (b *Backoff) Ceiling() time.Duration {
	return b.Max + time.Duration(float64(b.Max)*b.Jitter)
}
