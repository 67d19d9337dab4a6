package server

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const maxTrackedClients = 4096

// clientLimiter keeps one token bucket per client IP. The least recently
// seen clients are evicted first.
type clientLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *lru.Cache[string, *rate.Limiter]
}

// newClientLimiter returns nil when rps <= 0.
func newClientLimiter(rps float64, burst int) (*clientLimiter, error) {
	if rps <= 0 {
		return nil, nil
	}
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(rps)))
	}
	buckets, err := lru.New[string, *rate.Limiter](maxTrackedClients)
	if err != nil {
		return nil, fmt.Errorf("rate limiter cache: %w", err)
	}
	return &clientLimiter{limit: rate.Limit(rps), burst: burst, buckets: buckets}, nil
}

func (l *clientLimiter) get(key string) *rate.Limiter {
	if lim, ok := l.buckets.Get(key); ok {
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	// A concurrent request may have added one first; keep whichever won.
	if prev, ok, _ := l.buckets.PeekOrAdd(key, lim); ok {
		return prev
	}
	return lim
}

func (l *clientLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		res := l.get(c.ClientIP()).Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			secs := int(math.Ceil(delay.Seconds()))
			c.Header("Retry-After", strconv.Itoa(secs))
			abortWithError(c, http.StatusTooManyRequests, engine.MsgRateLimited)
			return
		}
		c.Next()
	}
}
