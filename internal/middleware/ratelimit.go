package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/juju/clock"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/quickshare/service/internal/response"
	"github.com/quickshare/service/internal/settings"
)

const rateLimitClients = 10000

// LimitFunc returns how many requests one client may make per window.
// It is called on every request so settings changes apply immediately.
type LimitFunc func(ctx context.Context) (int, error)

// SettingsSource returns the current settings. *settings.Manager implements it.
type SettingsSource interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// UploadLimit reads the per-client upload limit from settings.
func UploadLimit(src SettingsSource) LimitFunc {
	return func(ctx context.Context) (int, error) {
		s, err := src.Get(ctx)
		if err != nil {
			return 0, err
		}
		return s.UploadRateLimit, nil
	}
}

// DownloadLimit reads the per-client download limit from settings.
func DownloadLimit(src SettingsSource) LimitFunc {
	return func(ctx context.Context) (int, error) {
		s, err := src.Get(ctx)
		if err != nil {
			return 0, err
		}
		return s.DownloadRateLimit, nil
	}
}

type bucket struct {
	limiter *rate.Limiter
	n       int
}

// RateLimiter is a per-client token bucket: n requests per window, refilled
// continuously. Idle clients are evicted after one window.
type RateLimiter struct {
	name    string
	window  time.Duration
	limit   LimitFunc
	clock   clock.Clock
	mu      sync.Mutex
	buckets *expirable.LRU[string, *bucket]
}

// NewRateLimiter creates a RateLimiter. name labels log lines.
func NewRateLimiter(name string, window time.Duration, limit LimitFunc, clk clock.Clock) *RateLimiter {
	return &RateLimiter{
		name:    name,
		window:  window,
		limit:   limit,
		clock:   clk,
		buckets: expirable.NewLRU[string, *bucket](rateLimitClients, nil, window),
	}
}

// Allow reports whether client may proceed. A limit that cannot be read lets
// the request through.
func (l *RateLimiter) Allow(ctx context.Context, client string) bool {
	n, err := l.limit(ctx)
	if err != nil {
		log.Warn().Err(err).Str("limiter", l.name).Msg("rate limit unavailable, allowing request")
		return true
	}
	if n <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	b, ok := l.buckets.Get(client)
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(l.window/time.Duration(n)), n), n: n}
		l.buckets.Add(client, b)
	} else if b.n != n {
		b.limiter.SetLimitAt(now, rate.Every(l.window/time.Duration(n)))
		b.limiter.SetBurstAt(now, n)
		b.n = n
	}
	return b.limiter.AllowN(now, 1)
}

// Handler rejects requests over the limit with 429.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		if !l.Allow(r.Context(), client) {
			log.Warn().Str("limiter", l.name).Str("client", client).Msg("rate limit exceeded")
			w.Header().Set("Retry-After", retryAfter(l.window))
			response.TooManyRequests(w, "too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the host part of RemoteAddr, which chi's RealIP has
// already replaced with the forwarded address when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfter(window time.Duration) string {
	secs := int(window / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
