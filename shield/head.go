package shield

import (
	"net/http"
	"slices"
	"strings"
)

// Methods answers any method outside allowed with a JSON 405 listing them.
// HEAD is served by the GET routes when GET is allowed; net/http drops the
// body.
func Methods(allowed ...string) func(http.Handler) http.Handler {
	allow := strings.Join(allowed, ", ")
	get := slices.Contains(allowed, http.MethodGet)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead && get {
				r.Method = http.MethodGet
			}
			if !slices.Contains(allowed, r.Method) {
				w.Header().Set("Allow", allow)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusMethodNotAllowed)
				w.Write([]byte(`{"error":"method not allowed"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
