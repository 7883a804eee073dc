package middleware

import (
	"crypto/subtle"
	"net/http"
)

// adminKeyHeader carries the operator key on admin requests.
const adminKeyHeader = "X-Admin-Key"

// AdminKey returns middleware that rejects requests whose X-Admin-Key header
// does not match key. Comparison is constant-time. An empty configured key
// disables the guarded routes entirely.
func AdminKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				writeForbidden(w, "admin endpoints are disabled")
				return
			}
			got := r.Header.Get(adminKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeForbidden(w, "invalid admin key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeForbidden(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
