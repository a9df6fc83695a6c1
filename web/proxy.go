package web

import (
	"errors"
	"net/http"
	"strings"

	"sentrygate/intel"
	"sentrygate/store"
)

// overLimit reports whether ip has already exhausted its window for action.
// The counting row for the current attempt is appended separately, before
// the upstream call, so failed upstream calls still burn window budget.
func (s *Server) overLimit(r *http.Request, action string, ceiling int) (bool, error) {
	n, err := s.store.CountRecentByAction(r.Context(), clientIP(r), action, lookupWindow)
	if err != nil {
		return false, err
	}
	return n >= ceiling, nil
}

func intelStatus(err error) (int, string) {
	switch {
	case errors.Is(err, intel.ErrNotFound):
		return http.StatusNotFound, "no data for target"
	case errors.Is(err, intel.ErrQuota):
		return http.StatusInternalServerError, "upstream quota exhausted"
	case errors.Is(err, intel.ErrInvalidKey):
		return http.StatusInternalServerError, "upstream rejected credentials"
	case errors.Is(err, intel.ErrUnconfigured):
		return http.StatusInternalServerError, "service not configured"
	default:
		return http.StatusInternalServerError, "upstream lookup failed"
	}
}

func (s *Server) handleThreatLookup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Target = strings.TrimSpace(req.Target)
	if req.Target == "" {
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}

	over, err := s.overLimit(r, actionIntelLookup, lookupCeiling)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "rate check failed")
		return
	}
	if over {
		writeError(w, http.StatusTooManyRequests, "lookup limit reached, try again in a minute")
		return
	}
	s.audit(r, store.ActorVisitor, actionIntelLookup, req.Target)

	stats, err := s.threat.Lookup(r.Context(), req.Target)
	if err != nil {
		code, msg := intelStatus(err)
		writeError(w, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCodeAudit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if len(req.Code) > 8*1024 {
		writeError(w, http.StatusBadRequest, "snippet too large")
		return
	}

	over, err := s.overLimit(r, actionCodeAudit, auditCeiling)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "rate check failed")
		return
	}
	if over {
		writeError(w, http.StatusTooManyRequests, "audit limit reached, try again in a minute")
		return
	}
	s.audit(r, store.ActorVisitor, actionCodeAudit, "")

	review, err := s.reviewer.Review(r.Context(), req.Code)
	if err != nil {
		code, msg := intelStatus(err)
		writeError(w, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"review": review})
}
