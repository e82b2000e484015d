package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// IdleClientTTL is how long an unused per-client limiter is kept.
	IdleClientTTL = 10 * time.Minute
	// MaxTrackedClients bounds the limiter table; the least recently seen
	// client is evicted first.
	MaxTrackedClients = 10000
)

var RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "cadence",
	Subsystem: "http",
	Name:      "rate_limited_total",
	Help:      "Requests rejected by the per-client rate limiter.",
})

// RateLimiter keeps one token bucket per client address.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	clients *ttlcache.Cache[string, *rate.Limiter]
	logger  *logrus.Logger
}

func NewRateLimiter(rps float64, burst int, logger *logrus.Logger) *RateLimiter {
	return &RateLimiter{
		limit: rate.Limit(rps),
		burst: burst,
		clients: ttlcache.New[string, *rate.Limiter](
			ttlcache.WithTTL[string, *rate.Limiter](IdleClientTTL),
			ttlcache.WithCapacity[string, *rate.Limiter](MaxTrackedClients),
		),
		logger: logger,
	}
}

// Allow takes one token from the client's bucket.
func (rl *RateLimiter) Allow(client string) bool {
	if item := rl.clients.Get(client); item != nil {
		return item.Value().Allow()
	}
	limiter, _ := rl.clients.GetOrSet(client, rate.NewLimiter(rl.limit, rl.burst))
	return limiter.Value().Allow()
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	return rl.clients.Len()
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientAddr(r.RemoteAddr)
		if !rl.Allow(client) {
			RateLimitedTotal.Inc()
			rl.logger.WithFields(logrus.Fields{
				"endpoint": SanitizeForLogging(r.URL.Path),
				"remote":   SanitizeForLogging(client),
			}).Warn("Rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddr(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
