// Package ratelimit defines the sliding-window limiter contract shared by the
// in-memory and Redis implementations.
package ratelimit

import (
	"context"
	"time"
)

const DefaultBucket = "default"

// Limit is the maximum number of events allowed per Window.
type Limit struct {
	Limit  int
	Window time.Duration
}

// Limiter reports whether one more event for key in bucket fits the bucket's window.
type Limiter interface {
	AllowNamed(ctx context.Context, bucket, key string) (bool, error)
}

// Resolve picks the bucket limit, then the "default" bucket, then 100/min.
func Resolve(limits map[string]Limit, bucket string) Limit {
	if v, ok := limits[bucket]; ok {
		return v
	}
	if v, ok := limits[DefaultBucket]; ok {
		return v
	}
	return Limit{Limit: 100, Window: time.Minute}
}
