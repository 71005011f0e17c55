package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"relquery/internal/config"
)

// CORSConfig configures Cross-Origin Resource Sharing (CORS) policies.
type CORSConfig struct {
	Enabled          bool
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int
}

// CORSConfigFrom maps the server CORS settings.
func CORSConfigFrom(s config.ServerConfig) CORSConfig {
	return CORSConfig{
		Enabled:          s.CORSEnabled,
		AllowedOrigins:   s.CORSAllowedOrigins,
		AllowedMethods:   s.CORSAllowedMethods,
		AllowedHeaders:   s.CORSAllowedHeaders,
		ExposeHeaders:    s.CORSExposeHeaders,
		AllowCredentials: s.CORSAllowCredentials,
		MaxAge:           s.CORSMaxAge,
	}
}

// corsPolicy holds the precomputed response headers.
type corsPolicy struct {
	anyOrigin   bool
	origins     map[string]struct{}
	credentials bool
	methods     string
	headers     string
	expose      string
	maxAge      string
}

func newCORSPolicy(cfg CORSConfig) corsPolicy {
	p := corsPolicy{
		origins: make(map[string]struct{}, len(cfg.AllowedOrigins)),
		methods: strings.Join(cfg.AllowedMethods, ", "),
		headers: strings.Join(cfg.AllowedHeaders, ", "),
		expose:  strings.Join(cfg.ExposeHeaders, ", "),
	}
	for _, origin := range cfg.AllowedOrigins {
		switch origin = strings.TrimSpace(origin); origin {
		case "":
		case "*":
			p.anyOrigin = true
		default:
			p.origins[origin] = struct{}{}
		}
	}
	// Credentials are never advertised to a wildcard origin.
	p.credentials = cfg.AllowCredentials && !p.anyOrigin
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	}
	return p
}

// allow writes the simple response headers and reports whether origin matched.
func (p corsPolicy) allow(h http.Header, origin string) bool {
	if p.anyOrigin {
		h.Set("Access-Control-Allow-Origin", "*")
	} else if _, ok := p.origins[origin]; ok {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
		if p.credentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
	} else {
		return false
	}
	if p.expose != "" {
		h.Set("Access-Control-Expose-Headers", p.expose)
	}
	return true
}

func (p corsPolicy) preflight(h http.Header) {
	for name, value := range map[string]string{
		"Access-Control-Allow-Methods": p.methods,
		"Access-Control-Allow-Headers": p.headers,
		"Access-Control-Max-Age":       p.maxAge,
	} {
		if value != "" {
			h.Set(name, value)
		}
	}
}

// CORSMiddleware adds CORS headers and answers preflight requests.
func CORSMiddleware(cfg CORSConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	policy := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			allowed := policy.allow(w.Header(), origin)
			if r.Method == http.MethodOptions {
				if allowed {
					policy.preflight(w.Header())
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
