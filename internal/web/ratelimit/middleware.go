package ratelimit

import (
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/conduit-lang/hierroutes/internal/web/auth"
	"github.com/conduit-lang/hierroutes/internal/web/response"
)

// Rate limit response headers
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// KeyFunc picks the bucket a request counts against
type KeyFunc func(r *http.Request) string

// SubjectKey keys authenticated requests by token subject and the rest by
// client IP
func SubjectKey(r *http.Request) string {
	if c := auth.ClaimsFrom(r.Context()); c != nil && c.Subject != "" {
		return "sub:" + c.Subject
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// Middleware rejects requests over the limit with 429. A failing limiter
// is logged and the request goes through.
func Middleware(limiter Limiter, key KeyFunc, logger *zap.Logger) func(http.Handler) http.Handler {
	if key == nil {
		key = SubjectKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("ratelimit")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			d, err := limiter.Allow(r.Context(), k)
			if err != nil {
				logger.Warn("rate limiter unavailable", zap.String("key", k), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set(HeaderLimit, strconv.Itoa(d.Limit))
			h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
			h.Set(HeaderReset, strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				logger.Info("rate limited", zap.String("key", k), zap.String("path", r.URL.Path))
				response.ErrorWithDetails(w, r, http.StatusTooManyRequests, response.CodeTooManyRequests,
					"Too many requests", map[string]any{"reset_at": d.ResetAt.Unix()})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
