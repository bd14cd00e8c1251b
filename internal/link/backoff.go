package link

import "time"

const (
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 8 * time.Second

	backoffGrowth = 1.5
)

// NextBackoff grows current by half, truncated to whole milliseconds and
// capped at max.
func NextBackoff(current, limit time.Duration) time.Duration {
	next := time.Duration(float64(current.Milliseconds())*backoffGrowth) * time.Millisecond
	if next > limit {
		return limit
	}
	return next
}
