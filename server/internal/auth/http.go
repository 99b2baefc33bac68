package auth

import "net/http"

// APIKeyMiddleware enforces API key authentication on HTTP requests.
//
// It follows the same rules as APIKeyInterceptor. Requests whose path is
// listed in public are always allowed. A missing or incorrect key is
// answered with 401 and a JSON error body.
func APIKeyMiddleware(mode, header, key string, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}
	return func(next http.Handler) http.Handler {
		if mode != "apikey" || key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			if !keyMatches(r.Header.Get(header), key) {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`)) //nolint:errcheck
}
