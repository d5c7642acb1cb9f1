package security

import (
	"crypto/subtle"
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"zerozero/pkg/logger"
)

// GatewayConfig configures the HTTP guard in front of the local API.
type GatewayConfig struct {
	// APIKey is required on every request when set. Empty disables auth
	// (loopback-only deployments).
	APIKey         string
	AllowedOrigins []string
	RPS            float64
	Burst          int
}

type limiterPool struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

func (p *limiterPool) get(caller string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[caller]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.limiters[caller] = l
	return l
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func keyFrom(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	const bearer = "Bearer "
	if auth := r.Header.Get("Authorization"); len(auth) > len(bearer) && auth[:len(bearer)] == bearer {
		return auth[len(bearer):]
	}
	// websocket upgrades from browsers cannot set headers
	return r.URL.Query().Get("key")
}

// Guard wraps next with CORS, rate limiting and API-key auth. GET
// /healthz always passes so probes need no credentials.
func Guard(cfg GatewayConfig) func(http.Handler) http.Handler {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 50
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 100
	}
	pool := &limiterPool{limiters: map[string]*rate.Limiter{}, rps: rps, burst: burst}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			if r.URL.Path == "/healthz" && r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			caller := keyFrom(r)
			limitBy := caller
			if limitBy == "" {
				limitBy = clientIP(r)
			}
			if !pool.get(limitBy).Allow() {
				logger.Warn("request_rate_limited", "path", r.URL.Path)
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			if cfg.APIKey != "" {
				if subtle.ConstantTimeCompare([]byte(caller), []byte(cfg.APIKey)) != 1 {
					logger.Warn("request_unauthorized", "path", r.URL.Path, "ip", clientIP(r))
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
