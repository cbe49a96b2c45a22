package middleware

import (
	"container/list"
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"site-builder/internal/errors"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyLimiter tracks a token bucket per caller and its position in the LRU list
type keyLimiter struct {
	key      string
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per authenticated user (client IP for
// anonymous callers). At most maxKeys buckets are kept, least recently used
// first out.
type RateLimiter struct {
	rps     rate.Limit
	burst   int
	maxKeys int

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // front = most recent
}

func NewRateLimiter(rps float64, burst int, maxKeys int) *RateLimiter {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		maxKeys: maxKeys,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Allow consumes one token for key
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	elem, exists := rl.items[key]
	if exists {
		rl.order.MoveToFront(elem)
		elem.Value.(*keyLimiter).lastSeen = time.Now()
	} else {
		if rl.order.Len() >= rl.maxKeys {
			if back := rl.order.Back(); back != nil {
				rl.order.Remove(back)
				delete(rl.items, back.Value.(*keyLimiter).key)
			}
		}
		elem = rl.order.PushFront(&keyLimiter{
			key:      key,
			limiter:  rate.NewLimiter(rl.rps, rl.burst),
			lastSeen: time.Now(),
		})
		rl.items[key] = elem
	}

	return elem.Value.(*keyLimiter).limiter.Allow()
}

// Cleanup drops buckets idle for longer than maxIdle until ctx is cancelled
func (rl *RateLimiter) Cleanup(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for e := rl.order.Back(); e != nil; {
				prev := e.Prev()
				lim := e.Value.(*keyLimiter)
				if now.Sub(lim.lastSeen) > maxIdle {
					rl.order.Remove(e)
					delete(rl.items, lim.key)
				}
				e = prev
			}
			rl.mu.Unlock()
		}
	}
}

// retryAfter is the whole number of seconds until an empty bucket refills one token
func (rl *RateLimiter) retryAfter() string {
	if rl.rps <= 0 {
		return "60"
	}
	secs := int(math.Ceil(1 / float64(rl.rps)))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// Middleware must run after the auth middleware so user_id is on the context
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if userID, ok := c.Get("user_id"); ok {
			key = "user:" + strconv.FormatUint(userID.(uint64), 10)
		}

		if !rl.Allow(key) {
			c.Header("Retry-After", rl.retryAfter())
			c.Error(errors.TooManyRequests("Too many generation requests, slow down", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
