package shield

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

type fakeBans struct {
	banned map[string]bool
	err    error
}

func (f *fakeBans) IsBanned(_ context.Context, ip string) (bool, error) {
	return f.banned[ip], f.err
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"remote addr", "10.1.2.3:4567", "", "10.1.2.3"},
		{"xff single", "10.1.2.3:4567", "203.0.113.7", "203.0.113.7"},
		{"xff chain uses first hop", "10.1.2.3:4567", "203.0.113.7, 70.41.3.18", "203.0.113.7"},
		{"no port", "10.1.2.3", "", "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := ExtractIP(r); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(DefaultHeaders())(okHandler())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options: %q", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options: %q", got)
	}
}

func TestFirewall_ScannerUA(t *testing.T) {
	h := Firewall(&fakeBans{})(okHandler())

	for _, ua := range []string{"curl/8.5.0", "sqlmap/1.7", "Mozilla nikto probe"} {
		r := httptest.NewRequest("POST", "/api/telemetry", nil)
		r.Header.Set("User-Agent", ua)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusForbidden {
			t.Errorf("ua %q: expected 403, got %d", ua, w.Code)
		}
	}

	// A browser UA passes.
	r := httptest.NewRequest("POST", "/api/telemetry", nil)
	r.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("browser ua: expected 200, got %d", w.Code)
	}
}

func TestFirewall_BannedIP(t *testing.T) {
	bans := &fakeBans{banned: map[string]bool{"6.6.6.6": true}}
	h := Firewall(bans)(okHandler())

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "6.6.6.6")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Errorf("banned ip: expected 403, got %d", w.Code)
	}

	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "7.7.7.7")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("clean ip: expected 200, got %d", w.Code)
	}
}

func TestFirewall_CheckErrorFailsOpen(t *testing.T) {
	bans := &fakeBans{err: context.DeadlineExceeded}
	h := Firewall(bans)(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("store error should fail open, got %d", w.Code)
	}
}

func TestThrottle(t *testing.T) {
	// 1 rps, burst 2: third immediate request must be rejected.
	th := NewThrottle(1, 2)
	h := th.Middleware(okHandler())

	codes := make([]int, 3)
	for i := range codes {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "9.9.9.9:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		codes[i] = w.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("burst requests should pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected 429 after burst, got %d", codes[2])
	}

	// Separate address has its own bucket.
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "8.8.8.8:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("other ip should pass, got %d", w.Code)
	}
}

func TestAllowList(t *testing.T) {
	h := AllowList([]string{"10.0.0.1"})(okHandler())

	r := httptest.NewRequest("GET", "/api/dashboard", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("allowed ip: expected 200, got %d", w.Code)
	}

	r = httptest.NewRequest("GET", "/api/dashboard", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.2")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Errorf("other ip: expected 403, got %d", w.Code)
	}
}

func TestAllowList_EmptyClosesRoute(t *testing.T) {
	h := AllowList(nil)(okHandler())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/dashboard", nil))
	if w.Code != http.StatusForbidden {
		t.Errorf("unconfigured allow-list should close the route, got %d", w.Code)
	}
}
