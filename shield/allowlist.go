package shield

import (
	"log/slog"
	"net/http"
)

// AllowList returns middleware restricting a route to the listed client
// addresses. With an empty list the route is closed entirely: an operator who
// never configured the allow-list should not have the dashboard exposed.
func AllowList(ips []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(ips))
	for _, ip := range ips {
		allowed[ip] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ExtractIP(r)
			if !allowed[ip] {
				slog.Warn("allowlist: request rejected", "ip", ip, "path", r.URL.Path)
				writeJSONError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
