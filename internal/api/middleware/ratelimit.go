package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/edvin/certgen/internal/api/response"
)

const maxTrackedClients = 10000

// RateLimiter allows each client IP `requests` requests per `period`, with
// bursts up to `requests`. Idle clients are forgotten after one period.
type RateLimiter struct {
	limiters *expirable.LRU[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
	period   time.Duration
}

func NewRateLimiter(requests int, period time.Duration) *RateLimiter {
	if requests < 1 {
		requests = 1
	}
	if period <= 0 {
		period = time.Minute
	}
	return &RateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, period),
		limit:    rate.Limit(float64(requests) / period.Seconds()),
		burst:    requests,
		period:   period,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if l, ok := rl.limiters.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters.Add(key, l)
	return l
}

// Handler rejects requests over the limit with 429. It keys on RemoteAddr,
// which chi's RealIP middleware has already resolved.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if host, _, err := net.SplitHostPort(key); err == nil {
			key = host
		}

		if !rl.limiter(key).Allow() {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.period.Seconds())))
			response.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
