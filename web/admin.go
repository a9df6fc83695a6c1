package web

import (
	"net/http"

	"sentrygate/shield"
	"sentrygate/store"
)

// Config flag keys written by the admin handlers and read by /api/status.
const (
	keyLockdown  = "lockdown"
	keyBroadcast = "broadcast"
	keyCommand   = "client_command"
)

// clientCommands is the fixed set of actions the frontend may be told to
// run. The server stores the action name, never a free-form string, so the
// broadcast channel can't be abused for script injection.
var clientCommands = map[string]bool{
	"matrix_rain": true,
	"glitch":      true,
	"redalert":    true,
	"clear":       true,
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
		Status   bool   `json:"status"`
		Task     string `json:"task"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !s.requireSecret(w, r, req.Password) {
		return
	}
	if err := s.store.SetAdminStatus(r.Context(), req.Status, req.Task); err != nil {
		writeError(w, http.StatusInternalServerError, "status update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleBan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
		IP       string `json:"ip"`
		Reason   string `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !s.requireSecret(w, r, req.Password) {
		return
	}
	if req.IP == "" {
		writeError(w, http.StatusBadRequest, "ip is required")
		return
	}
	if req.Reason == "" {
		req.Reason = "manual ban"
	}
	if err := s.store.BanIP(r.Context(), req.IP, req.Reason); err != nil {
		writeError(w, http.StatusInternalServerError, "ban failed")
		return
	}
	s.audit(r, store.ActorAdmin, "ban", req.IP+" ("+req.Reason+")")
	s.alerts.Notify("BAN: " + req.IP + " (" + req.Reason + ")")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleUnban(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
		IP       string `json:"ip"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !s.requireSecret(w, r, req.Password) {
		return
	}
	if req.IP == "" {
		writeError(w, http.StatusBadRequest, "ip is required")
		return
	}
	existed, err := s.store.UnbanIP(r.Context(), req.IP)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "unban failed")
		return
	}
	if existed {
		s.audit(r, store.ActorAdmin, "unban", req.IP)
		s.alerts.Notify("UNBAN: " + req.IP)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "existed": existed})
}

func (s *Server) handleLockdown(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
		Active   bool   `json:"active"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !s.requireSecret(w, r, req.Password) {
		return
	}
	val := "0"
	if req.Active {
		val = "1"
	}
	if err := s.store.SetConfig(r.Context(), keyLockdown, val); err != nil {
		writeError(w, http.StatusInternalServerError, "lockdown update failed")
		return
	}
	s.audit(r, store.ActorAdmin, "lockdown", val)
	if req.Active {
		s.alerts.Notify("LOCKDOWN ENGAGED")
	} else {
		s.alerts.Notify("LOCKDOWN LIFTED")
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
		Message  string `json:"message"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !s.requireSecret(w, r, req.Password) {
		return
	}
	if req.Message == "" {
		if err := s.store.DeleteConfig(r.Context(), keyBroadcast); err != nil {
			writeError(w, http.StatusInternalServerError, "broadcast update failed")
			return
		}
	} else if err := s.store.SetConfig(r.Context(), keyBroadcast, req.Message); err != nil {
		writeError(w, http.StatusInternalServerError, "broadcast update failed")
		return
	}
	s.audit(r, store.ActorAdmin, "broadcast", req.Message)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
		Action   string `json:"action"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !s.requireSecret(w, r, req.Password) {
		return
	}
	if !clientCommands[req.Action] {
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}
	if err := s.store.SetConfig(r.Context(), keyCommand, req.Action); err != nil {
		writeError(w, http.StatusInternalServerError, "command update failed")
		return
	}
	s.audit(r, store.ActorAdmin, "client_command", req.Action)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleGuestbookDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
		EntryID  string `json:"entry_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !s.requireSecret(w, r, req.Password) {
		return
	}
	if req.EntryID == "" {
		writeError(w, http.StatusBadRequest, "entry_id is required")
		return
	}
	existed, err := s.store.DeleteGuestbookEntry(r.Context(), req.EntryID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "existed": existed})
}

func (s *Server) handleAuditPurge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !s.requireSecret(w, r, req.Password) {
		return
	}
	n, err := s.store.PurgeAudit(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "purge failed")
		return
	}
	s.alerts.Notify("AUDIT PURGED by admin")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "purged": n})
}

// handleDashboard serves the restricted operator view. The route is already
// gated by the IP allow-list middleware.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.RecentAudit(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audit read failed")
		return
	}
	bans, err := s.store.ListBans(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ban list read failed")
		return
	}
	solves, err := s.store.ListSolves(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "solve list read failed")
		return
	}
	if entries == nil {
		entries = []store.AuditEntry{}
	}
	if bans == nil {
		bans = []store.BannedIP{}
	}
	if solves == nil {
		solves = []store.FlagSolve{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"audit":  entries,
		"bans":   bans,
		"solves": solves,
	})
}

// clientIP is a convenience for handlers that key on the caller's address.
func clientIP(r *http.Request) string {
	return shield.ExtractIP(r)
}
