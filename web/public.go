package web

import (
	"net/http"
	"strings"
	"time"

	"sentrygate/store"
)

// handleStatus feeds the public HUD indicators: admin presence, lockdown
// flag, broadcast message, pending client command. A stale heartbeat renders
// as offline regardless of the stored flag.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"online":       false,
		"current_task": "",
		"lockdown":     false,
		"broadcast":    "",
		"command":      "",
	}

	st, err := s.store.AdminStatus(r.Context(), s.cfg.HeartbeatFreshFor)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status read failed")
		return
	}
	if st != nil && st.Online && st.Fresh {
		out["online"] = true
		out["current_task"] = st.CurrentTask
	}

	if v, ok, _ := s.store.GetConfig(r.Context(), keyLockdown); ok && v == "1" {
		out["lockdown"] = true
	}
	if v, ok, _ := s.store.GetConfig(r.Context(), keyBroadcast); ok {
		out["broadcast"] = v
	}
	if v, ok, _ := s.store.GetConfig(r.Context(), keyCommand); ok {
		out["command"] = v
	}

	writeJSON(w, http.StatusOK, out)
}

// handleVisit bumps the daily counter. The store's unique day key decides
// the winner when two first visits race.
func (s *Server) handleVisit(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC().Format("2006-01-02")
	first, count, err := s.store.RecordVisit(r.Context(), day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "visit count failed")
		return
	}
	if first {
		s.alerts.Notify("FIRST VISITOR of " + day + ": " + clientIP(r))
	}
	writeJSON(w, http.StatusOK, map[string]any{"first": first, "count": count})
}

// handleTelemetry records a frontend-reported event. Scanner user-agents
// never reach this point (firewall middleware). A per-IP ceiling guards
// against log flooding.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorType string `json:"actor_type"`
		Action    string `json:"action"`
		Details   string `json:"details"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !store.ValidActor(req.ActorType) {
		writeError(w, http.StatusBadRequest, "unknown actor_type")
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}

	ip := clientIP(r)
	n, err := s.store.CountRecentByAction(r.Context(), ip, actionTelemetry, lookupWindow)
	if err == nil && n >= telemetryCeiling {
		writeError(w, http.StatusTooManyRequests, "attack pattern detected")
		return
	}

	// Two rows: the window counter for this endpoint and the reported event
	// itself. Write failures are swallowed; telemetry is best-effort.
	s.audit(r, store.ActorVisitor, actionTelemetry, "")
	s.audit(r, req.ActorType, req.Action, req.Details)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleFlagSubmit checks a candidate challenge flag. Unknown flags get a
// uniform rejection that reveals nothing about the known set; duplicate
// solves are idempotent.
func (s *Server) handleFlagSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Flag     string `json:"flag"`
		Username string `json:"username"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if len(req.Username) < 2 || len(req.Username) > 32 {
		writeError(w, http.StatusBadRequest, "username must be 2-32 characters")
		return
	}
	if req.Flag == "" {
		writeError(w, http.StatusBadRequest, "flag is required")
		return
	}

	level, ok := s.flags.Level(req.Flag)
	if !ok {
		s.audit(r, store.ActorSuspicious, "flag_rejected", "user "+req.Username)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "ACCESS DENIED: invalid flag",
		})
		return
	}

	already, err := s.store.RecordSolve(r.Context(), req.Username, level)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "solve record failed")
		return
	}
	if already {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "already solved",
			"level":   level,
		})
		return
	}

	s.audit(r, store.ActorVisitor, "flag_solved", req.Username+" cleared "+level)
	s.alerts.Notify("FLAG SOLVED: " + req.Username + " cleared " + level)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "flag accepted",
		"level":   level,
	})
}

func (s *Server) handleGuestbookList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListGuestbook(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "guestbook read failed")
		return
	}
	if entries == nil {
		entries = []store.GuestbookEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGuestbookSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(s.sanitize.Sanitize(req.Name))
	message := strings.TrimSpace(s.sanitize.Sanitize(req.Message))
	if name == "" || len(name) > 40 {
		writeError(w, http.StatusBadRequest, "name must be 1-40 characters")
		return
	}
	if message == "" || len(message) > 500 {
		writeError(w, http.StatusBadRequest, "message must be 1-500 characters")
		return
	}

	id, err := s.store.AddGuestbookEntry(r.Context(), name, message)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "guestbook write failed")
		return
	}
	s.audit(r, store.ActorVisitor, "guestbook_post", id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "entry_id": id})
}
