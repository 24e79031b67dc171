package shield

import "net/http"

// HeaderConfig lists the headers set on every response. Empty values are
// skipped.
type HeaderConfig struct {
	XContentTypeOptions string
	XFrameOptions       string
	CacheControl        string
	ReferrerPolicy      string
}

// DefaultHeaders suits a JSON-only API: nothing is framed, sniffed or cached.
func DefaultHeaders() HeaderConfig {
	return HeaderConfig{
		XContentTypeOptions: "nosniff",
		XFrameOptions:       "DENY",
		CacheControl:        "no-store",
		ReferrerPolicy:      "no-referrer",
	}
}

// SecurityHeaders sets cfg on every response.
func SecurityHeaders(cfg HeaderConfig) func(http.Handler) http.Handler {
	set := [][2]string{
		{"X-Content-Type-Options", cfg.XContentTypeOptions},
		{"X-Frame-Options", cfg.XFrameOptions},
		{"Cache-Control", cfg.CacheControl},
		{"Referrer-Policy", cfg.ReferrerPolicy},
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, h := range set {
				if h[1] != "" {
					w.Header().Set(h[0], h[1])
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
