package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dd0wney/cluso-waternet/pkg/logging"
)

// RateLimitConfig configures rate limiting
type RateLimitConfig struct {
	RequestsPerSecond float64       // Rate of token replenishment
	BurstSize         int           // Maximum burst size (bucket capacity)
	CleanupInterval   time.Duration // How often to clean up idle buckets
	ClientExpiration  time.Duration // How long to keep inactive client buckets
	MaxClients        int           // Maximum number of tracked clients
}

// DefaultRateLimitConfig returns sensible defaults for rate limiting
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
		CleanupInterval:   5 * time.Minute,
		ClientExpiration:  10 * time.Minute,
		MaxClients:        100000,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client
type RateLimiter struct {
	config  *RateLimitConfig
	logger  logging.Logger
	clients map[string]*clientLimiter
	mu      sync.Mutex
	now     func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop.
// Callers must Stop it.
func NewRateLimiter(config *RateLimitConfig, logger logging.Logger) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	rl := &RateLimiter{
		config:   config,
		logger:   logger.With(logging.Component("ratelimit")),
		clients:  make(map[string]*clientLimiter),
		now:      time.Now,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether a request from clientID may proceed. New clients
// are refused once MaxClients buckets are tracked.
func (rl *RateLimiter) Allow(clientID string) bool {
	now := rl.now()

	rl.mu.Lock()
	c, ok := rl.clients[clientID]
	if !ok {
		if rl.config.MaxClients > 0 && len(rl.clients) >= rl.config.MaxClients {
			rl.mu.Unlock()
			rl.logger.Warn("rate limiter client table full",
				logging.Int("max_clients", rl.config.MaxClients),
				logging.String("client", clientID))
			return false
		}
		c = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize),
		}
		rl.clients[clientID] = c
	}
	c.lastSeen = now
	rl.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) cleanupLoop() {
	defer close(rl.done)
	interval := rl.config.CleanupInterval
	if interval <= 0 {
		interval = DefaultRateLimitConfig().CleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopChan:
			return
		}
	}
}

// cleanup drops buckets idle for longer than ClientExpiration
func (rl *RateLimiter) cleanup() int {
	cutoff := rl.now().Add(-rl.config.ClientExpiration)

	rl.mu.Lock()
	removed := 0
	for id, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, id)
			removed++
		}
	}
	rl.mu.Unlock()

	if removed > 0 {
		rl.logger.Debug("rate limiter cleanup", logging.Count(removed))
	}
	return removed
}

// Stop stops the cleanup goroutine and waits for it to exit
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
	<-rl.done
}

// GetStats returns current rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]any {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return map[string]any{
		"active_clients":      len(rl.clients),
		"requests_per_second": rl.config.RequestsPerSecond,
		"burst_size":          rl.config.BurstSize,
	}
}

// GetConfig returns the rate limiter configuration
func (rl *RateLimiter) GetConfig() *RateLimitConfig {
	return rl.config
}

// ClientIDFunc is a function that extracts a client identifier from a request
type ClientIDFunc func(*http.Request) string

// RateLimit creates middleware that applies rate limiting per client.
// onLimited is called before the 429 is written (optional).
func RateLimit(limiter *RateLimiter, getClientID ClientIDFunc, onLimited func(r *http.Request, clientID string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := getClientID(r)
			if limiter.Allow(clientID) {
				next.ServeHTTP(w, r)
				return
			}

			limiter.logger.Debug("rate limit exceeded",
				logging.String("client", clientID),
				logging.Path(r.URL.Path))
			if onLimited != nil {
				onLimited(r, clientID)
			}
			w.Header().Set("Retry-After", "1")
			w.Header().Set("X-RateLimit-Limit", strconv.FormatFloat(limiter.config.RequestsPerSecond, 'f', -1, 64))
			http.Error(w, "Rate limit exceeded. Please retry after 1 second.", http.StatusTooManyRequests)
		})
	}
}
