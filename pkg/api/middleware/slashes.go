package middleware

import (
	"net/http"
	"strings"
)

// StripDoubleSlash removes one leading slash from paths starting with "//",
// as produced by the Home Assistant ingress proxy. It must wrap the engine:
// gin matches routes before its own middleware runs.
func StripDoubleSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "//") {
			r.URL.Path = r.URL.Path[1:]
			if r.URL.RawPath != "" {
				r.URL.RawPath = strings.TrimPrefix(r.URL.RawPath, "/")
			}
		}
		next.ServeHTTP(w, r)
	})
}
