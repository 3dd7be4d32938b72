package logging

import (
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter throttles a high-rate diagnostic (frame errors, sync loss) and
// remembers how many messages it swallowed.
type Limiter struct {
	limiter    *rate.Limiter
	suppressed atomic.Uint64
	total      atomic.Uint64
}

// NewLimiter allows perSecond messages on average with bursts of burst.
// A non-positive perSecond disables throttling.
func NewLimiter(perSecond float64, burst int) *Limiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(limit, burst)}
}

// Allow reports whether a message may be emitted now. When it may, it also
// returns the number of messages suppressed since the previous allowed one.
func (l *Limiter) Allow() (bool, uint64) {
	if l.limiter.Allow() {
		return true, l.suppressed.Swap(0)
	}
	l.suppressed.Add(1)
	l.total.Add(1)
	return false, 0
}

// Suppressed returns the total number of messages dropped so far.
func (l *Limiter) Suppressed() uint64 {
	return l.total.Load()
}

// Warn logs msg at warn level if the limiter allows it, adding a
// "suppressed" field when earlier messages were dropped.
func (l *Limiter) Warn(msg string, fields ...zap.Field) {
	ok, n := l.Allow()
	if !ok {
		return
	}
	if n > 0 {
		fields = append(fields, zap.Uint64("suppressed", n))
	}
	GetLogger().Warn(msg, fields...)
}
