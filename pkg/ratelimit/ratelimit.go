// Package ratelimit provides per-destination token buckets gating outbound
// publish calls. One bucket per account label, shared by all workers.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type PerLabel struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewPerLabel builds a registry of token buckets refilling at perMinute
// tokens per minute with burst 1, so calls to one destination are spread
// evenly over the minute.
func NewPerLabel(perMinute int) *PerLabel {
	if perMinute < 1 {
		perMinute = 1
	}
	return &PerLabel{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    1,
	}
}

func (p *PerLabel) limiter(label string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[label]
	if !ok {
		l = rate.NewLimiter(p.limit, p.burst)
		p.limiters[label] = l
	}
	return l
}

// Reserve takes a token for label and returns how long the caller must wait
// before using it, plus a cancel func that returns the token if the caller
// decides to requeue instead of waiting.
func (p *PerLabel) Reserve(label string) (time.Duration, func()) {
	r := p.limiter(label).Reserve()
	return r.Delay(), r.Cancel
}
