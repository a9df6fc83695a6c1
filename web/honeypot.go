package web

import (
	"net/http"
	"time"

	"sentrygate/store"
)

// handleTrapLogin is a fake internal login endpoint. Nothing legitimate ever
// posts here, so any hit is treated as hostile: the caller is banned on the
// spot and the response looks like an ordinary failed login.
func (s *Server) handleTrapLogin(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	s.audit(r, store.ActorAttacker, "honeypot_login", "POST "+r.URL.Path)
	if err := s.store.BanIP(r.Context(), ip, "honeypot: "+r.URL.Path); err == nil {
		s.alerts.Notify("HONEYPOT TRIGGERED: " + ip + " banned after hitting " + r.URL.Path)
	} else {
		s.alerts.Notify("HONEYPOT TRIGGERED: " + ip + " hit " + r.URL.Path + " (ban failed)")
	}
	time.Sleep(s.cfg.FailDelay)
	writeError(w, http.StatusUnauthorized, "invalid credentials")
}

// handleTrapPath covers the usual scanner bait paths. Hits are logged and
// reported but not auto-banned; plenty of curious humans poke at /.env.
func (s *Server) handleTrapPath(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	s.audit(r, store.ActorAttacker, "honeypot_path", "GET "+r.URL.Path)
	s.alerts.Notify("HONEYPOT HIT: " + ip + " requested " + r.URL.Path)
	writeError(w, http.StatusNotFound, "not found")
}
