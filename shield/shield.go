// Package shield provides the HTTP security middleware for sentrygate:
// security headers, body limits, client IP extraction, the ban-list firewall,
// scanner user-agent blocking, a per-IP throttle, and the dashboard IP
// allow-list.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
//	r.Use(shield.MaxBody(64 * 1024))
//	r.Use(shield.NewThrottle(5, 10).Middleware)
//	r.Use(shield.Firewall(store))
package shield

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr.
// The first XFF hop is used; the service is expected to sit behind a single
// trusted proxy in production.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
