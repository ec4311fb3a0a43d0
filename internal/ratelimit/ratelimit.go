// Package ratelimit counts requests per key in fixed windows.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/ownerportal/internal/apperr"
)

// Counter increments the hit count for key in the window that starts with the
// first hit, returning the count after the increment.
type Counter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter applies Rules on top of a Counter.
type Limiter struct {
	counter Counter
	rules   Rules
}

// NewLimiter creates a limiter. Rules are normalized with ApplyDefaults.
func NewLimiter(counter Counter, rules Rules) *Limiter {
	rules.ApplyDefaults()
	return &Limiter{counter: counter, rules: rules}
}

// Allow records one hit for subject on the named endpoint. It returns an error
// matching apperr.ErrRateLimited once the rule's limit is passed. Counter
// failures deny the request.
func (l *Limiter) Allow(ctx context.Context, endpoint, subject string) error {
	rule := l.rules.For(endpoint)
	if rule.Disabled() {
		return nil
	}

	key := Key(endpoint, subject)
	count, err := l.counter.Increment(ctx, key, rule.Window)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("key", key).Msg("Rate limit counter failed, denying request")
		return fmt.Errorf("rate limit counter: %w", apperr.ErrRateLimited)
	}

	if count > rule.Limit {
		return apperr.New(apperr.ErrRateLimited, "too many requests")
	}
	return nil
}

// Key builds the counter key for an endpoint and subject.
func Key(endpoint, subject string) string {
	return "ratelimit:" + endpoint + ":" + subject
}
