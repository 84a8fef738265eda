package handlers

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// NewIPExtractor decides which address the submission limit is keyed on.
// X-Forwarded-For is only honoured when the server sits behind a trusted proxy,
// otherwise a client could pick a fresh key per request.
func NewIPExtractor(trustProxy bool) echo.IPExtractor {
	if trustProxy {
		return echo.ExtractIPFromXFFHeader()
	}
	return echo.ExtractIPDirect()
}

// retryAfterSeconds renders a Retry-After value, rounded up to whole seconds
func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// SubmissionLimiter caps submissions per client. Counters live in Redis when
// it is configured so every instance shares them, otherwise in process.
type SubmissionLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration

	mu        sync.Mutex
	states    map[string]*localRateState
	lastSweep time.Time
}

type localRateState struct {
	count   int
	resetAt time.Time
}

// NewSubmissionLimiter returns a limiter allowing limit submissions per window.
// A limit of 0 disables limiting.
func NewSubmissionLimiter(rdb *redis.Client, limit int, window time.Duration) *SubmissionLimiter {
	return &SubmissionLimiter{
		redis:  rdb,
		limit:  limit,
		window: window,
		states: make(map[string]*localRateState),
	}
}

// Allow records one attempt for key and reports whether it is within the limit,
// with the time to wait when it is not.
func (l *SubmissionLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if l == nil || l.limit <= 0 {
		return true, 0
	}

	if l.redis != nil {
		allowed, retryAfter, err := l.allowRedis(ctx, key)
		if err == nil {
			return allowed, retryAfter
		}
		// Redis hiccups fall through to the local counter rather than blocking submissions
	}

	return l.allowLocal(key)
}

func (l *SubmissionLimiter) allowRedis(ctx context.Context, key string) (bool, time.Duration, error) {
	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}

	if incr.Val() <= int64(l.limit) {
		return true, 0, nil
	}

	ttl, err := l.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}
	return false, ttl, nil
}

func (l *SubmissionLimiter) allowLocal(key string) (bool, time.Duration) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	state, ok := l.states[key]
	if !ok || now.After(state.resetAt) {
		state = &localRateState{count: 0, resetAt: now.Add(l.window)}
		l.states[key] = state
	}

	if state.count >= l.limit {
		retryAfter := time.Until(state.resetAt)
		if retryAfter < 0 {
			retryAfter = l.window
		}
		return false, retryAfter
	}

	state.count++
	return true, 0
}

// sweep drops expired counters, at most once per window. Callers hold l.mu.
func (l *SubmissionLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	for key, state := range l.states {
		if now.After(state.resetAt) {
			delete(l.states, key)
		}
	}
	l.lastSweep = now
}
