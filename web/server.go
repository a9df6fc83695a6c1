// Package web hosts the sentrygate request handlers behind a chi router.
// Each handler covers exactly one concern and keeps no state between
// requests; counters and flags live in the store so concurrent instances
// stay consistent.
package web

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/crypto/bcrypt"

	"sentrygate/alert"
	"sentrygate/captcha"
	"sentrygate/catalog"
	"sentrygate/config"
	"sentrygate/intel"
	"sentrygate/shield"
	"sentrygate/store"
)

// Per-endpoint ceilings for the sliding-window limits (requests per trailing
// minute, counted from durable audit rows).
const (
	lookupWindow     = time.Minute
	lookupCeiling    = 10
	auditCeiling     = 3
	telemetryCeiling = 30
)

// Audit action labels. The rate-limited proxies count their own label rows,
// so an attempt recorded here counts toward future windows.
const (
	actionIntelLookup = "intel_lookup"
	actionCodeAudit   = "code_audit"
	actionTelemetry   = "telemetry"
)

// Server wires the handlers to their collaborators.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	alerts   alert.Sink
	verifier captcha.Verifier // nil when no captcha secret is configured
	threat   intel.ThreatLookup
	reviewer intel.CodeReviewer
	flags    *catalog.Catalog
	sanitize *bluemonday.Policy
}

// New creates a Server. verifier may be nil to disable the captcha step.
func New(cfg *config.Config, st *store.Store, sink alert.Sink,
	verifier captcha.Verifier, threat intel.ThreatLookup,
	reviewer intel.CodeReviewer, flags *catalog.Catalog) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		alerts:   sink,
		verifier: verifier,
		threat:   threat,
		reviewer: reviewer,
		flags:    flags,
		sanitize: bluemonday.StrictPolicy(),
	}
}

// Routes builds the full router, middleware included.
func (s *Server) Routes(throttle *shield.Throttle) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
	r.Use(shield.MaxBody(64 * 1024))
	if throttle != nil {
		r.Use(throttle.Middleware)
	}
	r.Use(shield.Firewall(s.store))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Public surface.
	r.Get("/api/status", s.handleStatus)
	r.Post("/api/visit", s.handleVisit)
	r.Post("/api/telemetry", s.handleTelemetry)
	r.Post("/api/flag", s.handleFlagSubmit)
	r.Get("/api/guestbook", s.handleGuestbookList)
	r.Post("/api/guestbook", s.handleGuestbookSubmit)

	// Rate-limited third-party proxies.
	r.Post("/api/intel/lookup", s.handleThreatLookup)
	r.Post("/api/intel/codeaudit", s.handleCodeAudit)

	// Admin surface, gated on the shared secret inside each handler.
	r.Post("/api/admin/login", s.handleLogin)
	r.Post("/api/admin/heartbeat", s.handleHeartbeat)
	r.Post("/api/admin/ban", s.handleBan)
	r.Post("/api/admin/unban", s.handleUnban)
	r.Post("/api/admin/lockdown", s.handleLockdown)
	r.Post("/api/admin/broadcast", s.handleBroadcast)
	r.Post("/api/admin/command", s.handleCommand)
	r.Post("/api/admin/guestbook/delete", s.handleGuestbookDelete)
	r.Post("/api/admin/audit/purge", s.handleAuditPurge)

	// Restricted dashboard.
	r.Group(func(r chi.Router) {
		r.Use(shield.AllowList(s.cfg.DashboardAllowList))
		r.Get("/api/dashboard", s.handleDashboard)
	})

	// Honeypots.
	r.Post("/api/internal/login", s.handleTrapLogin)
	for _, path := range []string{"/.env", "/backup.zip", "/admin.php", "/wp-login.php"} {
		r.Get(path, s.handleTrapPath)
	}

	return r
}

// checkSecret compares the supplied password against the configured admin
// secret. A bcrypt-prefixed secret is treated as a hash; otherwise the
// comparison is constant-time against the trimmed configured value.
func (s *Server) checkSecret(password string) bool {
	secret := s.cfg.AdminSecret
	if strings.HasPrefix(secret, "$2a$") || strings.HasPrefix(secret, "$2b$") || strings.HasPrefix(secret, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(secret), []byte(password)) == nil
	}
	trimmed := strings.TrimSpace(secret)
	return subtle.ConstantTimeCompare([]byte(trimmed), []byte(password)) == 1
}

// requireSecret enforces the shared secret on privileged handlers. Rejects
// uniformly with 401 and the fixed anti-brute-force delay; records the
// attempt as an impostor in the audit trail.
func (s *Server) requireSecret(w http.ResponseWriter, r *http.Request, password string) bool {
	if s.checkSecret(password) {
		return true
	}
	ip := shield.ExtractIP(r)
	s.audit(r, store.ActorImpostor, "admin_secret_rejected", "endpoint "+r.URL.Path)
	s.alerts.Notify("IMPOSTOR: bad admin secret on " + r.URL.Path + " from " + ip)
	time.Sleep(s.cfg.FailDelay)
	writeError(w, http.StatusUnauthorized, "unauthorized")
	return false
}

// audit records an entry, swallowing store failures: losing a log row must
// never fail the request that triggered it.
func (s *Server) audit(r *http.Request, actor, action, details string) {
	e := &store.AuditEntry{
		ActorType: actor,
		IP:        shield.ExtractIP(r),
		Action:    action,
		Details:   details,
	}
	if err := s.store.AppendAudit(r.Context(), e); err != nil {
		slog.Error("audit write failed", "action", action, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
