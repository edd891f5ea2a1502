package backend

import (
	"net/http"
	"slices"
)

// cors allows browser calls from origins, "*" meaning any
func cors(origins []string, next http.Handler) http.Handler {
	allowAll := slices.Contains(origins, "*")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		h := w.Header()

		if origin != "" {
			switch {
			case allowAll:
				h.Set("Access-Control-Allow-Origin", "*")
			case slices.Contains(origins, origin):
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Expose-Headers", "X-Cache, X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, Retry-After")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
