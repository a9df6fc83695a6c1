package web

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp"
	ptotp "github.com/pquerna/otp/totp"
	_ "modernc.org/sqlite"

	"sentrygate/alert"
	"sentrygate/catalog"
	"sentrygate/config"
	"sentrygate/dbopen"
	"sentrygate/intel"
	"sentrygate/store"
)

const testSeed = "JBSWY3DPEHPK3PXP"

type recordSink struct {
	mu   sync.Mutex
	msgs []string
}

func (s *recordSink) Notify(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *recordSink) contains(sub string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

type fakeVerifier struct {
	ok  bool
	err error
}

func (f fakeVerifier) Verify(context.Context, string, string) (bool, error) {
	return f.ok, f.err
}

type fakeThreat struct {
	stats *intel.ThreatStats
	err   error
}

func (f fakeThreat) Lookup(context.Context, string) (*intel.ThreatStats, error) {
	return f.stats, f.err
}

type fakeReviewer struct {
	text string
	err  error
}

func (f fakeReviewer) Review(context.Context, string) (string, error) {
	return f.text, f.err
}

type testEnv struct {
	srv   *Server
	store *store.Store
	db    *sql.DB
	sink  *recordSink
	cfg   *config.Config
}

func newTestEnv(t *testing.T, mod func(*config.Config)) *testEnv {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := store.Init(db); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	st := store.New(db)

	cfg := &config.Config{
		AdminSecret:       "hunter2",
		HeartbeatFreshFor: 10 * time.Minute,
		FailDelay:         0,
	}
	if mod != nil {
		mod(cfg)
	}

	sink := &recordSink{}
	srv := New(cfg, st, sink,
		nil,
		fakeThreat{stats: &intel.ThreatStats{Target: "1.2.3.4", ConfidenceScore: 80}},
		fakeReviewer{text: "looks safe"},
		catalog.Default())
	return &testEnv{srv: srv, store: st, db: db, sink: sink, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.srv.Routes(nil).ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

// --- Login flow ---

func TestLogin_Success(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodPost, "/api/admin/login", map[string]string{"password": "hunter2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !e.sink.contains("LOGIN SUCCESS") {
		t.Error("expected login success alert")
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodPost, "/api/admin/login", map[string]string{"password": "nope"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "ACCESS DENIED: incorrect password" {
		t.Errorf("error = %v", got)
	}
	entries, err := e.store.RecentAudit(context.Background(), 10)
	if err != nil || len(entries) == 0 {
		t.Fatalf("expected audit entry, err %v", err)
	}
	if entries[0].ActorType != store.ActorImpostor {
		t.Errorf("actor = %s", entries[0].ActorType)
	}
}

func TestLogin_TOTP(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.TOTPSeed = testSeed })

	rec := e.do(t, http.MethodPost, "/api/admin/login",
		map[string]string{"password": "hunter2", "token": "123456"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad code: status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "ACCESS DENIED: incorrect code" {
		t.Errorf("error = %v", got)
	}

	code, err := ptotp.GenerateCodeCustom(testSeed, time.Now(), ptotp.ValidateOpts{
		Period: 30, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	rec = e.do(t, http.MethodPost, "/api/admin/login",
		map[string]string{"password": "hunter2", "token": code})
	if rec.Code != http.StatusOK {
		t.Fatalf("good code: status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestLogin_DeadManSwitch(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.DeadManSwitch = true })
	ctx := context.Background()

	// No heartbeat at all: locked out even with the right password.
	rec := e.do(t, http.MethodPost, "/api/admin/login", map[string]string{"password": "hunter2"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("no heartbeat: status = %d", rec.Code)
	}

	// Fresh online heartbeat unlocks login.
	if err := e.store.SetAdminStatus(ctx, true, "on duty"); err != nil {
		t.Fatal(err)
	}
	rec = e.do(t, http.MethodPost, "/api/admin/login", map[string]string{"password": "hunter2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("fresh heartbeat: status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Stale heartbeat locks out again.
	old := time.Now().Add(-time.Hour).Unix()
	if _, err := e.db.Exec(`UPDATE admin_status SET updated_at = ? WHERE id = 1`, old); err != nil {
		t.Fatal(err)
	}
	rec = e.do(t, http.MethodPost, "/api/admin/login", map[string]string{"password": "hunter2"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stale heartbeat: status = %d", rec.Code)
	}
	if !e.sink.contains("dead man's switch") {
		t.Error("expected lockout alert")
	}
}

func TestLogin_Captcha(t *testing.T) {
	e := newTestEnv(t, nil)
	e.srv.verifier = fakeVerifier{ok: false}

	rec := e.do(t, http.MethodPost, "/api/admin/login", map[string]string{"password": "hunter2"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing captcha: status = %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/api/admin/login",
		map[string]string{"password": "hunter2", "captcha": "tok"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("failed captcha: status = %d", rec.Code)
	}

	e.srv.verifier = fakeVerifier{ok: true}
	rec = e.do(t, http.MethodPost, "/api/admin/login",
		map[string]string{"password": "hunter2", "captcha": "tok"})
	if rec.Code != http.StatusOK {
		t.Fatalf("passed captcha: status = %d, body %s", rec.Code, rec.Body.String())
	}
}

// --- Admin handlers ---

func TestRequireSecret_Uniform401(t *testing.T) {
	e := newTestEnv(t, nil)
	for _, path := range []string{
		"/api/admin/heartbeat", "/api/admin/ban", "/api/admin/lockdown",
		"/api/admin/broadcast", "/api/admin/command", "/api/admin/audit/purge",
	} {
		rec := e.do(t, http.MethodPost, path, map[string]string{"password": "wrong"})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
		if got := decodeBody(t, rec)["error"]; got != "unauthorized" {
			t.Errorf("%s: error = %v", path, got)
		}
	}
}

func TestBanUnban(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	rec := e.do(t, http.MethodPost, "/api/admin/ban",
		map[string]string{"password": "hunter2", "ip": "10.0.0.9", "reason": "noise"})
	if rec.Code != http.StatusOK {
		t.Fatalf("ban: status = %d", rec.Code)
	}
	banned, err := e.store.IsBanned(ctx, "10.0.0.9")
	if err != nil || !banned {
		t.Fatalf("banned = %v, err %v", banned, err)
	}

	rec = e.do(t, http.MethodPost, "/api/admin/unban",
		map[string]string{"password": "hunter2", "ip": "10.0.0.9"})
	if rec.Code != http.StatusOK {
		t.Fatalf("unban: status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["existed"]; got != true {
		t.Errorf("existed = %v", got)
	}
}

func TestStatusReflectsAdminState(t *testing.T) {
	e := newTestEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/api/admin/heartbeat",
		map[string]any{"password": "hunter2", "status": true, "task": "patching"})
	if rec.Code != http.StatusOK {
		t.Fatalf("heartbeat: status = %d", rec.Code)
	}
	rec = e.do(t, http.MethodPost, "/api/admin/lockdown",
		map[string]any{"password": "hunter2", "active": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("lockdown: status = %d", rec.Code)
	}
	rec = e.do(t, http.MethodPost, "/api/admin/broadcast",
		map[string]string{"password": "hunter2", "message": "maintenance at noon"})
	if rec.Code != http.StatusOK {
		t.Fatalf("broadcast: status = %d", rec.Code)
	}
	rec = e.do(t, http.MethodPost, "/api/admin/command",
		map[string]string{"password": "hunter2", "action": "matrix_rain"})
	if rec.Code != http.StatusOK {
		t.Fatalf("command: status = %d", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: status = %d", rec.Code)
	}
	out := decodeBody(t, rec)
	if out["online"] != true || out["current_task"] != "patching" {
		t.Errorf("presence = %v / %v", out["online"], out["current_task"])
	}
	if out["lockdown"] != true {
		t.Errorf("lockdown = %v", out["lockdown"])
	}
	if out["broadcast"] != "maintenance at noon" {
		t.Errorf("broadcast = %v", out["broadcast"])
	}
	if out["command"] != "matrix_rain" {
		t.Errorf("command = %v", out["command"])
	}
}

func TestCommand_UnknownAction(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodPost, "/api/admin/command",
		map[string]string{"password": "hunter2", "action": "rm_rf"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAuditPurge(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		e.store.AppendAudit(ctx, &store.AuditEntry{ActorType: store.ActorVisitor, IP: "1.1.1.1", Action: "x"})
	}
	rec := e.do(t, http.MethodPost, "/api/admin/audit/purge", map[string]string{"password": "hunter2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["purged"]; got != float64(3) {
		t.Errorf("purged = %v", got)
	}
	if !e.sink.contains("AUDIT PURGED") {
		t.Error("expected purge alert")
	}
}

// --- Public handlers ---

func TestVisit(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodPost, "/api/visit", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	out := decodeBody(t, rec)
	if out["first"] != true || out["count"] != float64(1) {
		t.Errorf("first visit = %v", out)
	}
	out = decodeBody(t, e.do(t, http.MethodPost, "/api/visit", nil))
	if out["first"] != false || out["count"] != float64(2) {
		t.Errorf("second visit = %v", out)
	}
}

func TestTelemetry(t *testing.T) {
	e := newTestEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/api/telemetry",
		map[string]string{"actor_type": "alien", "action": "probe"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad actor: status = %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/api/telemetry",
		map[string]string{"actor_type": "visitor", "action": "page_view", "details": "/home"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestTelemetry_Ceiling(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	// httptest requests always arrive from 192.0.2.1.
	for i := 0; i < telemetryCeiling; i++ {
		e.store.AppendAudit(ctx, &store.AuditEntry{
			ActorType: store.ActorVisitor, IP: "192.0.2.1", Action: actionTelemetry,
		})
	}
	rec := e.do(t, http.MethodPost, "/api/telemetry",
		map[string]string{"actor_type": "visitor", "action": "page_view"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestFlagSubmit(t *testing.T) {
	e := newTestEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/api/flag",
		map[string]string{"username": "x", "flag": "FLAG{w3lc0me_t0_th3_gr1d}"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short username: status = %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/api/flag",
		map[string]string{"username": "neo", "flag": "FLAG{totally_wrong}"})
	out := decodeBody(t, rec)
	if rec.Code != http.StatusOK || out["success"] != false {
		t.Fatalf("wrong flag: status = %d, out %v", rec.Code, out)
	}

	rec = e.do(t, http.MethodPost, "/api/flag",
		map[string]string{"username": "neo", "flag": "FLAG{w3lc0me_t0_th3_gr1d}"})
	out = decodeBody(t, rec)
	if out["success"] != true || out["message"] != "flag accepted" {
		t.Fatalf("first solve: %v", out)
	}
	if !e.sink.contains("FLAG SOLVED") {
		t.Error("expected solve alert")
	}

	rec = e.do(t, http.MethodPost, "/api/flag",
		map[string]string{"username": "neo", "flag": "FLAG{w3lc0me_t0_th3_gr1d}"})
	out = decodeBody(t, rec)
	if out["success"] != true || out["message"] != "already solved" {
		t.Fatalf("duplicate solve: %v", out)
	}
}

func TestGuestbook(t *testing.T) {
	e := newTestEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/api/guestbook",
		map[string]string{"name": "trin<script>alert(1)</script>ity", "message": "hello <b>world</b>"})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodGet, "/api/guestbook", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var entries []store.GuestbookEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	if strings.Contains(entries[0].Name, "<script>") || strings.Contains(entries[0].Message, "<b>") {
		t.Errorf("markup survived sanitisation: %q / %q", entries[0].Name, entries[0].Message)
	}

	rec = e.do(t, http.MethodPost, "/api/guestbook",
		map[string]string{"name": "morpheus", "message": strings.Repeat("a", 501)})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("oversized message: status = %d", rec.Code)
	}
}

// --- Honeypots ---

func TestHoneypotLogin_BansCaller(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodPost, "/api/internal/login",
		map[string]string{"username": "admin", "password": "admin"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	banned, err := e.store.IsBanned(context.Background(), "192.0.2.1")
	if err != nil || !banned {
		t.Fatalf("banned = %v, err %v", banned, err)
	}
	if !e.sink.contains("HONEYPOT TRIGGERED") {
		t.Error("expected honeypot alert")
	}
}

func TestHoneypotPaths(t *testing.T) {
	e := newTestEnv(t, nil)
	for _, path := range []string{"/.env", "/backup.zip", "/admin.php", "/wp-login.php"} {
		rec := e.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
	}
	// Path probes are logged but never auto-ban.
	banned, _ := e.store.IsBanned(context.Background(), "192.0.2.1")
	if banned {
		t.Error("path probe should not ban")
	}
	entries, _ := e.store.RecentAudit(context.Background(), 10)
	if len(entries) != 4 {
		t.Errorf("audit entries = %d", len(entries))
	}
}

// --- Rate-limited proxies ---

func TestThreatLookup(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodPost, "/api/intel/lookup", map[string]string{"target": "1.2.3.4"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	out := decodeBody(t, rec)
	if out["confidence_score"] != float64(80) {
		t.Errorf("score = %v", out["confidence_score"])
	}
}

func TestThreatLookup_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{intel.ErrNotFound, http.StatusNotFound},
		{intel.ErrQuota, http.StatusInternalServerError},
		{intel.ErrInvalidKey, http.StatusInternalServerError},
		{intel.ErrUnconfigured, http.StatusInternalServerError},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		e := newTestEnv(t, nil)
		e.srv.threat = fakeThreat{err: tc.err}
		rec := e.do(t, http.MethodPost, "/api/intel/lookup", map[string]string{"target": "1.2.3.4"})
		if rec.Code != tc.code {
			t.Errorf("%v: status = %d, want %d", tc.err, rec.Code, tc.code)
		}
	}
}

func TestThreatLookup_Ceiling(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	for i := 0; i < lookupCeiling; i++ {
		e.store.AppendAudit(ctx, &store.AuditEntry{
			ActorType: store.ActorVisitor, IP: "192.0.2.1", Action: actionIntelLookup,
		})
	}
	rec := e.do(t, http.MethodPost, "/api/intel/lookup", map[string]string{"target": "1.2.3.4"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCodeAudit(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodPost, "/api/intel/codeaudit", map[string]string{"code": "eval(input())"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["review"]; got != "looks safe" {
		t.Errorf("review = %v", got)
	}
}

func TestCodeAudit_Ceiling(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	for i := 0; i < auditCeiling; i++ {
		e.store.AppendAudit(ctx, &store.AuditEntry{
			ActorType: store.ActorVisitor, IP: "192.0.2.1", Action: actionCodeAudit,
		})
	}
	rec := e.do(t, http.MethodPost, "/api/intel/codeaudit", map[string]string{"code": "x"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rec.Code)
	}
}

// --- Dashboard and middleware ---

func TestDashboard_AllowList(t *testing.T) {
	// Empty allow-list closes the route entirely.
	e := newTestEnv(t, nil)
	rec := e.do(t, http.MethodGet, "/api/dashboard", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("empty allow-list: status = %d", rec.Code)
	}

	e = newTestEnv(t, func(c *config.Config) {
		c.DashboardAllowList = []string{"192.0.2.1"}
	})
	rec = e.do(t, http.MethodGet, "/api/dashboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("allowed: status = %d, body %s", rec.Code, rec.Body.String())
	}
	out := decodeBody(t, rec)
	for _, key := range []string{"audit", "bans", "solves"} {
		if _, ok := out[key]; !ok {
			t.Errorf("missing %s", key)
		}
	}
}

func TestFirewall_ScannerBlocked(t *testing.T) {
	e := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("User-Agent", "curl/8.0.1")
	rec := httptest.NewRecorder()
	e.srv.Routes(nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestFirewall_BannedIP(t *testing.T) {
	e := newTestEnv(t, nil)
	if err := e.store.BanIP(context.Background(), "192.0.2.1", "test"); err != nil {
		t.Fatal(err)
	}
	rec := e.do(t, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestNopSinkSafe(t *testing.T) {
	var s alert.Sink = alert.Nop{}
	s.Notify("dropped")
}

func TestInvalidJSONBody(t *testing.T) {
	e := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/flag", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	e.srv.Routes(nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}
