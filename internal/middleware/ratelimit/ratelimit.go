// Package ratelimit applies a per-client token bucket to the public API.
package ratelimit

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	sweepEvery  = 5 * time.Minute
	idleHorizon = 10 * time.Minute
)

// client holds the bucket state for one remote address.
type client struct {
	mu       sync.Mutex
	tokens   int
	refilled time.Time
}

type Config struct {
	MaxRequestsPerMinute int
	WindowDuration       time.Duration
	Logger               *zap.Logger
}

// Limiter is a token bucket keyed by client IP. Tokens refill continuously
// at capacity per window; buckets idle past the horizon are dropped by a
// background sweep.
type Limiter struct {
	mu       sync.Mutex
	clients  map[string]*client
	capacity int
	interval time.Duration
	log      *zap.Logger
	done     chan struct{}
}

func New(cfg Config) *Limiter {
	if cfg.MaxRequestsPerMinute <= 0 {
		cfg.MaxRequestsPerMinute = 60
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	l := &Limiter{
		clients:  make(map[string]*client),
		capacity: cfg.MaxRequestsPerMinute,
		interval: cfg.WindowDuration / time.Duration(cfg.MaxRequestsPerMinute),
		log:      cfg.Logger,
		done:     make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Middleware rejects requests over the per-IP budget with 429 and a
// Retry-After hint.
func (l *Limiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := c.IP()
		if l.allow(ip) {
			return c.Next()
		}

		l.log.Warn("Request rate limited",
			zap.String("ip", ip),
			zap.String("path", c.Path()),
		)
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(l.interval/time.Second)+1))
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "Too many requests. Please slow down.",
		})
	}
}

func (l *Limiter) allow(ip string) bool {
	now := time.Now()

	l.mu.Lock()
	cl, ok := l.clients[ip]
	if !ok {
		cl = &client{tokens: l.capacity, refilled: now}
		l.clients[ip] = cl
	}
	l.mu.Unlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if credit := int(now.Sub(cl.refilled) / l.interval); credit > 0 {
		cl.tokens = min(l.capacity, cl.tokens+credit)
		cl.refilled = now
	}
	if cl.tokens == 0 {
		return false
	}
	cl.tokens--
	return true
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for ip, cl := range l.clients {
				cl.mu.Lock()
				idle := now.Sub(cl.refilled) > idleHorizon
				cl.mu.Unlock()
				if idle {
					delete(l.clients, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Stop terminates the sweep goroutine.
func (l *Limiter) Stop() {
	close(l.done)
}
