package domainwatch

import (
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/domainwatch/domainwatch/core"
	"github.com/domainwatch/domainwatch/domain"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Limit classes, check endpoints run network probes and get the stricter limit.
const (
	limitDefault = "default"
	limitCheck   = "check"
)

const visitorIdleTimeout = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client IP and limit class.
type rateLimiter struct {
	mu        sync.Mutex
	limits    map[string]int // requests per minute, 0 disables the class
	visitors  map[string]*visitor
	lastSweep time.Time
	now       func() time.Time
}

func newRateLimiter(cfg RateLimitConfig, now func() time.Time) *rateLimiter {
	return &rateLimiter{
		limits:    map[string]int{limitDefault: cfg.Default, limitCheck: cfg.Check},
		visitors:  make(map[string]*visitor),
		lastSweep: now(),
		now:       now,
	}
}

// Allow reports whether the client may issue one more request of the class.
func (l *rateLimiter) Allow(class, ip string) bool {
	perMinute := l.limits[class]
	if perMinute <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > time.Minute {
		for key, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorIdleTimeout {
				delete(l.visitors, key)
			}
		}
		l.lastSweep = now
	}

	key := class + "|" + ip
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func clientIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// withRequestID stamps every request with a UUIDv7, echoed in the X-Request-ID header.
func (server *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id, err := uuid.NewV7()
		if err != nil {
			id = uuid.New()
		}
		w.Header().Set("X-Request-ID", id.String())
		req = ContextWithRequestID(req, id)
		req = ContextWithRequestTime(req, server.now())
		next.ServeHTTP(w, req)
	})
}

// withAccessLog logs one line per request once the handler returns.
func (server *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, req)

		start, ok := RequestTimeFromContext(req.Context())
		if !ok {
			start = server.now()
		}

		id, _ := RequestIDFromContext(req.Context())
		server.Logger.Info("request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", recorder.status,
			"bytes", recorder.bytes,
			"duration", server.now().Sub(start),
			"remote", clientIP(req),
			"request_id", id.String(),
		)
	})
}

// withRecover turns a handler panic into a 500 and an ERROR log entry.
func (server *Server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if r := recover(); r != nil {
				id, _ := RequestIDFromContext(req.Context())
				server.WriteLog(LevelError, fmt.Sprintf("panic serving %s : %v", req.URL.Path, r),
					core.LogWithContext(map[string]any{"request_id": id.String()}))
				writeError(w, &domain.OpError{Op: "serve", Kind: domain.KindInternal, Err: fmt.Errorf("%v", r)})
			}
		}()
		next.ServeHTTP(w, req)
	})
}

// withCORS answers preflight requests and sets the CORS headers for allowed origins.
func (server *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		origin := req.Header.Get("Origin")
		allowed := server.allowOrigin(origin)
		if allowed != "" {
			header := w.Header()
			header.Set("Access-Control-Allow-Origin", allowed)
			if allowed != "*" {
				header.Add("Vary", "Origin")
			}
			header.Set("Access-Control-Expose-Headers", "ETag, X-Request-ID, X-Cache")
		}

		if req.Method == http.MethodOptions && req.Header.Get("Access-Control-Request-Method") != "" {
			if allowed != "" {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, If-None-Match")
				w.Header().Set("Access-Control-Max-Age", "600")
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, empty when not allowed.
func (server *Server) allowOrigin(origin string) string {
	origins := server.Config.CORSOrigins
	if slices.Contains(origins, "*") {
		return "*"
	}
	if origin == "" {
		return ""
	}
	for _, o := range origins {
		if strings.EqualFold(strings.TrimSuffix(o, "/"), origin) {
			return origin
		}
	}
	return ""
}

// withRateLimit applies the limit class of the matched route per client IP.
func (server *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		class := limitDefault
		if match, ok := RouteMatchFromContext(req.Context()); ok && isCheckRoute(match.Route.Name) {
			class = limitCheck
		}

		if !server.limiter.Allow(class, clientIP(req)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, &domain.OpError{
				Op:   "rate limit",
				Kind: domain.KindRateLimited,
				Err:  fmt.Errorf("%s : %w", clientIP(req), domain.ErrRateLimited),
			})
			return
		}
		next.ServeHTTP(w, req)
	})
}
