package pairing

import (
	"sync"

	"golang.org/x/time/rate"
)

// SenderRateLimiter enforces a per-sender messages-per-minute cap using
// golang.org/x/time/rate's token bucket, keyed by "{channel}:{sender_id}".
// Shared by the file- and Postgres-backed pairing stores so both enforce
// the cap the same way.
type SenderRateLimiter struct {
	mu                   sync.Mutex
	limiters             map[string]*rate.Limiter
	maxMessagesPerMinute int
}

// NewSenderRateLimiter creates a limiter allowing up to
// maxMessagesPerMinute messages per sender per rolling minute, refilling
// continuously at that rate.
func NewSenderRateLimiter(maxMessagesPerMinute int) *SenderRateLimiter {
	if maxMessagesPerMinute <= 0 {
		maxMessagesPerMinute = 60
	}
	return &SenderRateLimiter{
		limiters:             make(map[string]*rate.Limiter),
		maxMessagesPerMinute: maxMessagesPerMinute,
	}
}

// Allow reports whether key may send one more message right now,
// consuming a token from its bucket if so. The bucket for a new key
// starts full, so the first maxMessagesPerMinute calls always succeed.
func (r *SenderRateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(r.maxMessagesPerMinute)/60), r.maxMessagesPerMinute)
		r.limiters[key] = lim
	}
	return lim.Allow()
}
