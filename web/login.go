package web

import (
	"net/http"
	"time"

	"sentrygate/shield"
	"sentrygate/store"
	"sentrygate/totp"
)

type loginRequest struct {
	Password string `json:"password"`
	Token    string `json:"token"`
	Captcha  string `json:"captcha"`
}

// handleLogin is the admin authentication flow. Check order is fixed:
// captcha, dead man's switch, password, one-time code. Every branch fires a
// best-effort alert; failed password and code checks share the same fixed
// artificial delay so timing reveals nothing beyond the error class.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ip := shield.ExtractIP(r)

	// 1. Bot challenge, before the password is even looked at.
	if s.verifier != nil {
		if req.Captcha == "" {
			writeError(w, http.StatusBadRequest, "CAPTCHA verification required")
			return
		}
		ok, err := s.verifier.Verify(r.Context(), req.Captcha, ip)
		if err != nil || !ok {
			s.audit(r, store.ActorSuspicious, "login_captcha_failed", "")
			s.alerts.Notify("LOGIN BLOCKED: captcha failed from " + ip)
			writeError(w, http.StatusForbidden, "CAPTCHA verification failed")
			return
		}
	}

	// 2. Dead man's switch: a correct password is irrelevant while the admin
	// heartbeat is offline or stale.
	if s.cfg.DeadManSwitch {
		st, err := s.store.AdminStatus(r.Context(), s.cfg.HeartbeatFreshFor)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "status check failed")
			return
		}
		if st == nil || !st.Online || !st.Fresh {
			reason := "heartbeat stale"
			if st == nil || !st.Online {
				reason = "admin offline"
			}
			s.audit(r, store.ActorSuspicious, "login_lockout", reason)
			s.alerts.Notify("LOGIN BLOCKED: dead man's switch engaged (" + reason + "), attempt from " + ip)
			writeError(w, http.StatusForbidden, "SECURITY LOCKOUT: administrator unavailable")
			return
		}
	}

	// 3. Password.
	if !s.checkSecret(req.Password) {
		s.audit(r, store.ActorImpostor, "login_bad_password", "")
		s.alerts.Notify("LOGIN FAILED: wrong password from " + ip)
		time.Sleep(s.cfg.FailDelay)
		writeError(w, http.StatusUnauthorized, "ACCESS DENIED: incorrect password")
		return
	}

	// 4. One-time code, when a seed is configured.
	if s.cfg.TOTPSeed != "" {
		if !totp.Validate(req.Token, s.cfg.TOTPSeed, time.Now()) {
			s.audit(r, store.ActorImpostor, "login_bad_code", "")
			s.alerts.Notify("LOGIN FAILED: wrong one-time code from " + ip)
			time.Sleep(s.cfg.FailDelay)
			writeError(w, http.StatusUnauthorized, "ACCESS DENIED: incorrect code")
			return
		}
	}

	s.audit(r, store.ActorAdmin, "login_success", "")
	s.alerts.Notify("LOGIN SUCCESS: admin authenticated from " + ip)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
