package decode

import (
	"time"

	"golang.org/x/time/rate"
)

// Clock releases at most one frame per frame interval. A release is due
// once a full interval has elapsed since the previous release; missed
// intervals do not accumulate, so slow decoding slows playback instead of
// skipping frames.
type Clock struct {
	fps     float64
	limiter *rate.Limiter
}

// NewClock returns a clock for the given frame rate. The first check
// releases immediately.
func NewClock(fps float64) *Clock {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Clock{fps: fps, limiter: rate.NewLimiter(rate.Limit(fps), 1)}
}

// ShouldRelease reports whether a frame is due at now and, if so, starts
// the next interval at now.
func (c *Clock) ShouldRelease(now time.Time) bool {
	return c.limiter.AllowN(now, 1)
}

// Reset makes the next check release immediately.
func (c *Clock) Reset() {
	c.limiter = rate.NewLimiter(rate.Limit(c.fps), 1)
}

// Interval returns the frame duration.
func (c *Clock) Interval() time.Duration {
	return time.Duration(float64(time.Second) / c.fps)
}
