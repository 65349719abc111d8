package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hession/calcmate/internal/dispatch"
	"github.com/hession/calcmate/internal/logger"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 128

type ctxKey int

const requestIDKey ctxKey = iota

// RequestIDFromContext returns the request ID set by the server middleware
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// withRequestID reuses a caller-supplied request ID or generates one
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// statusRecorder remembers the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(p)
	s.bytes += n
	return n, err
}

// withAccessLog logs one line per request
func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		logger.Info("%s %s %d %dB %v request_id=%s client=%s",
			r.Method, r.URL.Path, rec.status, rec.bytes, time.Since(start),
			RequestIDFromContext(r.Context()), s.clientIP(r))
	})
}

// withRecover turns a handler panic into an InternalError response
func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("Panic serving %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
				writeResult(w, dispatch.Failure(dispatch.InternalError, "internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// clientLimiter keeps one token bucket per client IP, at most maxClients of them
type clientLimiter struct {
	mu         sync.Mutex
	limit      rate.Limit
	burst      int
	maxClients int
	idleTTL    time.Duration
	lastSweep  time.Time
	clients    map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(rps float64, burst, maxClients int) *clientLimiter {
	if maxClients <= 0 {
		maxClients = defaultMaxRateLimitClients
	}
	return &clientLimiter{
		limit:      rate.Limit(rps),
		burst:      burst,
		maxClients: maxClients,
		idleTTL:    10 * time.Minute,
		lastSweep:  time.Now(),
		clients:    make(map[string]*limiterEntry),
	}
}

func (l *clientLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.idleTTL {
		l.sweep(now)
	}

	entry, ok := l.clients[key]
	if !ok {
		if len(l.clients) >= l.maxClients {
			l.sweep(now)
		}
		if len(l.clients) >= l.maxClients {
			l.evictOldest()
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *clientLimiter) sweep(now time.Time) {
	for k, e := range l.clients {
		if now.Sub(e.lastSeen) > l.idleTTL {
			delete(l.clients, k)
		}
	}
	l.lastSweep = now
}

// evictOldest drops the least recently seen client; callers hold l.mu
func (l *clientLimiter) evictOldest() {
	var (
		oldestKey  string
		oldestSeen time.Time
		found      bool
	)
	for k, e := range l.clients {
		if !found || e.lastSeen.Before(oldestSeen) {
			oldestKey, oldestSeen, found = k, e.lastSeen, true
		}
	}
	if found {
		delete(l.clients, oldestKey)
	}
}

// withRateLimit rejects requests over the per-client budget; health checks are exempt
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" || r.URL.Path == "/health" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		ip := s.clientIP(r)
		if !s.limiter.allow(ip, time.Now()) {
			logger.Warn("Rate limit exceeded for %s on %s", ip, r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeResult(w, dispatch.Failure(dispatch.RateLimited, "rate limit exceeded, retry later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// trustedProxies are peers whose X-Forwarded-For and X-Real-IP headers are believed
type trustedProxies []netip.Prefix

// parseTrustedProxies accepts single addresses ("10.0.0.1") and CIDR ranges ("10.0.0.0/8")
func parseTrustedProxies(entries []string) (trustedProxies, error) {
	proxies := make(trustedProxies, 0, len(entries))
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
			}
			proxies = append(proxies, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		proxies = append(proxies, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return proxies, nil
}

func (p trustedProxies) trusts(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range p {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP returns the peer address. When the peer is a trusted proxy the
// nearest untrusted X-Forwarded-For hop wins, then X-Real-IP.
func (s *Server) clientIP(r *http.Request) string {
	peer := remoteHost(r)
	if !s.proxies.trusts(peer) {
		return peer
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		hops := strings.Split(fwd, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop != "" && !s.proxies.trusts(hop) {
				return hop
			}
		}
		if first := strings.TrimSpace(hops[0]); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return peer
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
