// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements a lightweight, in-memory, fixed-window rate limiter
// keyed by client address, with a background sweeper that evicts expired
// windows. It is process-local and intended for a single-node deployment.
//
// Features:
//   - Atomic check-and-increment per key (Allow) under one mutex
//   - Pluggable identity function (defaults to forwarded client address)
//   - Periodic cleanup goroutine, stopped with Stop
//   - Seamless bypass for idempotent replays (when paired with IdempotencyValidator)
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimitMessage is the text shown to a client that was refused.
const RateLimitMessage = "Too many requests. Please try again later."

// keyFunc selects the identity used to key a rate-limit window.
type keyFunc func(*gin.Context) string

// KeyByForwardedFor keys requests by the first X-Forwarded-For entry, then
// X-Real-IP, then the literal "unknown".
func KeyByForwardedFor() keyFunc {
	return func(c *gin.Context) string {
		if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
		if ip := strings.TrimSpace(c.GetHeader("X-Real-IP")); ip != "" {
			return ip
		}
		return "unknown"
	}
}

// window is one key's counter and the instant it resets.
type window struct {
	count   int
	resetAt time.Time
}

// RateLimiter implements a per-key fixed-window limiter.
//
// This type is safe for concurrent use.
type RateLimiter struct {
	max    int
	period time.Duration
	keyFn  keyFunc
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewRateLimiter constructs a limiter allowing max requests per period and
// starts a sweeper that runs every sweep (period when sweep <= 0). Call Stop
// to end the sweeper.
func NewRateLimiter(max int, period, sweep time.Duration, keyFn keyFunc) *RateLimiter {
	if max < 1 {
		max = 1
	}
	if period <= 0 {
		period = time.Minute
	}
	if sweep <= 0 {
		sweep = period
	}
	if keyFn == nil {
		keyFn = KeyByForwardedFor()
	}
	rl := &RateLimiter{
		max:     max,
		period:  period,
		keyFn:   keyFn,
		now:     time.Now,
		windows: make(map[string]*window),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go rl.sweepLoop(sweep)
	return rl
}

// Allow counts one request for key. It returns false with the time left in the
// current window once the key has used max requests.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok || now.After(w.resetAt) {
		rl.windows[key] = &window{count: 1, resetAt: now.Add(rl.period)}
		return true, 0
	}
	if w.count >= rl.max {
		return false, w.resetAt.Sub(now)
	}
	w.count++
	return true, 0
}

// Key returns the identity the limiter counts c under.
func (rl *RateLimiter) Key(c *gin.Context) string { return rl.keyFn(c) }

// Take is Allow for callers outside the HTTP chain, such as socket frames. A
// refusal is counted in the rate-limited metric.
func (rl *RateLimiter) Take(key string) (bool, time.Duration) {
	ok, wait := rl.Allow(key)
	if !ok {
		rateLimited.Inc()
	}
	return ok, wait
}

// Sweep drops every expired window and returns how many were removed.
func (rl *RateLimiter) Sweep() int {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for k, w := range rl.windows {
		if now.After(w.resetAt) {
			delete(rl.windows, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// Stop ends the sweeper goroutine and waits for it. It is safe to call more
// than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
	<-rl.done
}

func (rl *RateLimiter) sweepLoop(every time.Duration) {
	defer close(rl.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			rl.Sweep()
		case <-rl.stop:
			return
		}
	}
}

// IsRateBypass reports whether IdempotencyValidator marked this request for
// rate-limit bypass (i.e., it is a replay of a previously completed request).
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass) // set by IdempotencyValidator
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler returns a Gin middleware that enforces the limit. Blocked requests
// never reach later handlers:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: <seconds left in window>
//	{"error": "Too many requests. Please try again later."}
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		ok, wait := rl.Take(rl.keyFn(c))
		if ok {
			c.Next()
			return
		}

		secs := int(math.Ceil(wait.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": RateLimitMessage,
		})
	}
}
