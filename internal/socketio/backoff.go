package socketio

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff yields exponentially growing, jittered delays capped at Max
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64

	attempts int
	rand     func() float64
}

// NewBackoff returns a Backoff doubling from min up to max
func NewBackoff(min, max time.Duration, jitter float64) *Backoff {
	return &Backoff{
		Min:    min,
		Max:    max,
		Factor: 2,
		Jitter: jitter,
		rand:   rand.Float64,
	}
}

// Duration returns the next delay and advances the attempt counter
func (b *Backoff) Duration() time.Duration {
	ms := float64(b.Min.Milliseconds()) * math.Pow(b.Factor, float64(b.attempts))
	b.attempts++

	if b.Jitter > 0 {
		r := b.rand()
		deviation := math.Floor(r * b.Jitter * ms)
		if int(math.Floor(r*10))&1 == 0 {
			ms -= deviation
		} else {
			ms += deviation
		}
	}

	d := time.Duration(ms) * time.Millisecond
	if d > b.Max || d <= 0 {
		return b.Max
	}
	return d
}

// Attempts returns how many delays have been handed out since the last Reset
func (b *Backoff) Attempts() int {
	return b.attempts
}

func (b *Backoff) Reset() {
	b.attempts = 0
}
