package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nirmal141/nvidiaxdell-hack/api/responses"
	pkgerrors "github.com/nirmal141/nvidiaxdell-hack/pkg/errors"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/logger"
)

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// QueryRateLimitPolicy throttles the model-backed query surface per client IP.
type QueryRateLimitPolicy struct {
	name   string
	window time.Duration
	limit  int
}

func NewQueryRateLimitPolicy(name string, window time.Duration, limit int) QueryRateLimitPolicy {
	return QueryRateLimitPolicy{
		name:   strings.ToLower(strings.TrimSpace(name)),
		window: window,
		limit:  limit,
	}
}

func (p QueryRateLimitPolicy) enabled() bool {
	return p.window > 0 && p.limit > 0
}

func (p QueryRateLimitPolicy) scope(ip string) string {
	name := p.name
	if name == "" {
		name = "query"
	}
	return fmt.Sprintf("%s:%s", name, ip)
}

// QueryRateLimit enforces a fixed-window counter per IP on the wrapped
// routes. Redis failures let the request through rather than failing closed.
func QueryRateLimit(policy QueryRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := clientIP(r)

			allowed, count, err := store.FixedWindowAllow(ctx, policy.scope(ip), int64(policy.limit), policy.window)
			if err != nil {
				if logg != nil {
					logg.Warn(ctx, fmt.Sprintf("rate limiter unavailable, allowing request: %v", err))
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{
						"policy":         policy.name,
						"ip":             ip,
						"attempts":       count,
						"limit":          policy.limit,
						"window_seconds": int(policy.window.Seconds()),
					})
					logg.Warn(logCtx, "query.rate_limit.blocked")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
