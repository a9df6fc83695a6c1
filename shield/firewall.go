package shield

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// BanChecker answers whether an address is on the ban list. Satisfied by
// *store.Store.
type BanChecker interface {
	IsBanned(ctx context.Context, ip string) (bool, error)
}

// scannerTokens are user-agent substrings of common probing tools. Requests
// carrying one are rejected before any handler or database write runs.
var scannerTokens = []string{
	"curl", "wget", "python-requests", "sqlmap", "nikto", "nmap", "masscan",
	"gobuster", "dirbuster", "zgrab",
}

// ScannerUA reports whether ua matches a known probing tool.
func ScannerUA(ua string) bool {
	ua = strings.ToLower(ua)
	for _, tok := range scannerTokens {
		if strings.Contains(ua, tok) {
			return true
		}
	}
	return false
}

// Firewall returns middleware that rejects banned addresses and scanner
// user-agents with a 403 JSON body. A ban-check query failure fails open:
// blocking all traffic on a store hiccup would take the whole site down.
func Firewall(bans BanChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ScannerUA(r.UserAgent()) {
				slog.Warn("firewall: scanner ua blocked", "ip", ExtractIP(r), "ua", r.UserAgent())
				writeJSONError(w, http.StatusForbidden, "FIREWALL: request blocked")
				return
			}

			ip := ExtractIP(r)
			banned, err := bans.IsBanned(r.Context(), ip)
			if err != nil {
				slog.Error("firewall: ban check failed", "ip", ip, "error", err)
			} else if banned {
				slog.Warn("firewall: banned ip blocked", "ip", ip)
				writeJSONError(w, http.StatusForbidden, "FIREWALL: request blocked")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
