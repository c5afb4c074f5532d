package middleware

import (
	"net/http"
	"strings"
)

// Methods and headers the risk API accepts from browsers.
const (
	corsMethods       = "GET, POST, DELETE, OPTIONS"
	corsHeaders       = "Content-Type, Authorization, X-API-Key"
	corsExposeHeaders = "Retry-After"
	corsMaxAge        = "600"
)

// OriginPolicy decides which browser origins may call the API and open the
// event stream. An empty list or "*" admits every origin.
type OriginPolicy struct {
	any     bool
	origins map[string]bool
}

// NewOriginPolicy builds a policy from configured origins such as
// "https://desk.example". Matching ignores case and a trailing slash.
func NewOriginPolicy(origins []string) OriginPolicy {
	p := OriginPolicy{any: len(origins) == 0, origins: make(map[string]bool, len(origins))}
	for _, o := range origins {
		o = normalizeOrigin(o)
		if o == "*" {
			p.any = true
		}
		if o != "" {
			p.origins[o] = true
		}
	}
	return p
}

func normalizeOrigin(o string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(o)), "/")
}

// Allows reports whether origin may make cross-origin requests.
func (p OriginPolicy) Allows(origin string) bool {
	return p.any || p.origins[normalizeOrigin(origin)]
}

// CheckOrigin is the WebSocket upgrade check. Requests without an Origin
// header come from non-browser clients and are accepted.
func (p OriginPolicy) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || p.Allows(origin)
}

// CORS answers preflight requests and tags responses for admitted origins.
// A preflight from an origin outside the policy is refused with 403.
func CORS(policy OriginPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := origin != "" && policy.Allows(origin)
			if origin != "" {
				w.Header().Add("Vary", "Origin")
			}
			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if !allowed {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				h := w.Header()
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				h.Set("Access-Control-Max-Age", corsMaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
