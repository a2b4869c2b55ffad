package httpmiddleware

import (
	"net/http"
	"strings"
)

// CORSConfig configures cross-origin access for the API.
type CORSConfig struct {
	// AllowOrigins lists permitted origins. Empty or containing "*" allows
	// every origin.
	AllowOrigins []string

	// AllowCredentials controls the Access-Control-Allow-Credentials header.
	// When set, the wildcard origin is never sent; the matching origin is
	// echoed instead.
	AllowCredentials bool
}

const corsAllowMethods = "GET, POST, PATCH, DELETE, OPTIONS"

// CORS returns a middleware implementing Cross-Origin Resource Sharing for
// the API. Preflight OPTIONS requests are answered with 204; actual requests
// get the allow headers attached and pass through.
func CORS(cfg CORSConfig) Middleware {
	allowAll := len(cfg.AllowOrigins) == 0
	allowed := make(map[string]string, len(cfg.AllowOrigins))
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.ToLower(o)] = o
	}
	if cfg.AllowCredentials {
		// The wildcard is not valid together with credentials.
		allowAll = false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Origin")

			allowOrigin := ""
			switch {
			case allowAll:
				allowOrigin = "*"
			case allowed[strings.ToLower(origin)] != "":
				allowOrigin = allowed[strings.ToLower(origin)]
			case cfg.AllowCredentials && len(cfg.AllowOrigins) == 0:
				allowOrigin = origin
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Add("Vary", "Access-Control-Request-Method")
				w.Header().Add("Vary", "Access-Control-Request-Headers")

				if allowOrigin != "" {
					w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
					w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
					if rh := r.Header.Get("Access-Control-Request-Headers"); rh != "" {
						w.Header().Set("Access-Control-Allow-Headers", rh)
					}
					if cfg.AllowCredentials {
						w.Header().Set("Access-Control-Allow-Credentials", "true")
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allowOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
				if cfg.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
