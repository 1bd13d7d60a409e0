package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// SubmissionLimiter is an in-memory per-IP token bucket for the
// registration endpoint. A zero rate disables it.
type SubmissionLimiter struct {
	capacity float64
	perSec   float64
	rejected prometheus.Counter
	now      func() time.Time

	mu    sync.Mutex
	state map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewSubmissionLimiter allows perMinute submissions per client IP with a
// burst of the same size. rejected may be nil.
func NewSubmissionLimiter(perMinute int, rejected prometheus.Counter) *SubmissionLimiter {
	if perMinute < 0 {
		perMinute = 0
	}
	return &SubmissionLimiter{
		capacity: float64(perMinute),
		perSec:   float64(perMinute) / 60,
		rejected: rejected,
		now:      time.Now,
		state:    make(map[string]*bucket),
	}
}

// Enabled reports whether the limiter rejects anything.
func (l *SubmissionLimiter) Enabled() bool { return l.capacity > 0 }

// Handler returns gin handler enforcing per-IP limits.
func (l *SubmissionLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Enabled() {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(ip) {
			if l.rejected != nil {
				l.rejected.Inc()
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many submissions, try again later"})
			return
		}
		c.Next()
	}
}

func (l *SubmissionLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.state[key]
	if !ok {
		l.state[key] = &bucket{tokens: l.capacity - 1, last: now}
		return true
	}
	b.tokens += now.Sub(b.last).Seconds() * l.perSec
	if b.tokens > l.capacity {
		b.tokens = l.capacity
	}
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
