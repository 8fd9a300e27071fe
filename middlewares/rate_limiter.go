package middlewares

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter -> token bucket per IP
type RateLimiter struct {
	rps   rate.Limit
	burst int
	ttl   time.Duration

	mu  sync.Mutex
	ips map[string]*client
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:   rate.Limit(rps),
		burst: burst,
		ttl:   10 * time.Minute,
		ips:   make(map[string]*client),
	}
}

func (rl *RateLimiter) limiter(ip string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// buang IP yang sudah lama tidak terlihat
	for key, v := range rl.ips {
		if now.Sub(v.lastSeen) > rl.ttl {
			delete(rl.ips, key)
		}
	}

	v, ok := rl.ips[ip]
	if !ok {
		v = &client{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.ips[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter(c.ClientIP(), time.Now()).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"status":  false,
				"message": "Terlalu banyak request, silakan tunggu beberapa saat",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
