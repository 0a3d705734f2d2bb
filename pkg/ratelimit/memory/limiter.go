package memorylimiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Skotchmaster/retro_games/pkg/ratelimit"
)

type bucketState struct {
	// timestamps holds event times in Unix ms, oldest first.
	timestamps []int64
}

// Limiter is a single-node sliding-window limiter used when Redis is not configured.
type Limiter struct {
	mu      sync.Mutex
	limits  map[string]ratelimit.Limit
	buckets map[string]*bucketState
	now     func() time.Time
}

func New(limits map[string]ratelimit.Limit) *Limiter {
	if limits == nil {
		limits = map[string]ratelimit.Limit{}
	}
	return &Limiter{
		limits:  limits,
		buckets: make(map[string]*bucketState),
		now:     time.Now,
	}
}

func (l *Limiter) AllowNamed(_ context.Context, bucket, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, fmt.Errorf("bucket and key required")
	}

	lim := ratelimit.Resolve(l.limits, bucket)
	nowMs := l.now().UnixMilli()
	windowStart := nowMs - lim.Window.Milliseconds()
	limitKey := key + ":" + bucket

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[limitKey]
	if !ok {
		b = &bucketState{}
		l.buckets[limitKey] = b
	}

	ts := b.timestamps
	i := 0
	for i < len(ts) && ts[i] <= windowStart {
		i++
	}
	ts = ts[i:]

	if len(ts) >= lim.Limit {
		b.timestamps = ts
		return false, nil
	}

	b.timestamps = append(ts, nowMs)
	return true, nil
}

// Sweep drops buckets with no events inside their window.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	nowMs := l.now().UnixMilli()
	for k, b := range l.buckets {
		if len(b.timestamps) == 0 {
			delete(l.buckets, k)
			continue
		}
		if last := b.timestamps[len(b.timestamps)-1]; nowMs-last > l.maxWindow().Milliseconds() {
			delete(l.buckets, k)
		}
	}
}

func (l *Limiter) maxWindow() time.Duration {
	longest := time.Minute
	for _, v := range l.limits {
		if v.Window > longest {
			longest = v.Window
		}
	}
	return longest
}
