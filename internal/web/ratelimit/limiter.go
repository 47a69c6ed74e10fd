// Package ratelimit throttles the expensive admin actions (rebuild, cache
// clear) per caller, in process or across instances through redis.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether one more request for key is allowed
type Limiter interface {
	Allow(ctx context.Context, key string) (*Decision, error)
}

// Decision is the limiter state after one request
type Decision struct {
	// Limit is the number of requests allowed per window
	Limit int
	// Remaining is the number of requests left in the current window
	Remaining int
	// ResetAt is when the window frees up again
	ResetAt time.Time
	Allowed bool
}
