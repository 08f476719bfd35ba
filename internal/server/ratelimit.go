package server

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// idleBucketTTL is how long a client's bucket survives without requests.
const idleBucketTTL = 10 * time.Minute

// tokenBucket implements a token bucket for one client.
type tokenBucket struct {
	tokens     float64
	lastUpdate time.Time
}

// rateLimiter keeps one token bucket per client address.
type rateLimiter struct {
	rate      float64 // tokens per second
	burst     int     // max tokens
	buckets   map[string]*tokenBucket
	lastPrune time.Time
	now       func() time.Time
	mu        sync.Mutex
}

func newRateLimiter(rate float64, burst int) *rateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		rate:      rate,
		burst:     burst,
		buckets:   make(map[string]*tokenBucket),
		lastPrune: time.Now(),
		now:       time.Now,
	}
}

// allow checks if a request from client is allowed under the rate limit.
func (l *rateLimiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	b, ok := l.buckets[client]
	if !ok {
		b = &tokenBucket{tokens: float64(l.burst), lastUpdate: now}
		l.buckets[client] = b
	}

	// Add tokens based on elapsed time
	b.tokens += now.Sub(b.lastUpdate).Seconds() * l.rate
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.lastUpdate = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// prune drops buckets idle for longer than idleBucketTTL. Caller holds mu.
func (l *rateLimiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < idleBucketTTL {
		return
	}
	for client, b := range l.buckets {
		if now.Sub(b.lastUpdate) > idleBucketTTL {
			delete(l.buckets, client)
		}
	}
	l.lastPrune = now
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientKey(r)) {
			retryAfter := 1
			if l.rate > 0 && l.rate < 1 {
				retryAfter = int(1/l.rate) + 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
