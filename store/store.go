// Package store wraps the relational tables behind typed accessors. Handlers
// hold no state of their own; every counter and flag lives here so concurrent
// handler instances stay correct through the database's constraints.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Actor classifications recorded in the audit trail.
const (
	ActorVisitor    = "visitor"
	ActorAdmin      = "admin"
	ActorAttacker   = "attacker"
	ActorImpostor   = "impostor"
	ActorSuspicious = "suspicious"
)

// ValidActor reports whether s is a known actor classification.
func ValidActor(s string) bool {
	switch s {
	case ActorVisitor, ActorAdmin, ActorAttacker, ActorImpostor, ActorSuspicious:
		return true
	}
	return false
}

// AuditEntry is one immutable row in the audit trail.
type AuditEntry struct {
	EntryID   string    `json:"entry_id"`
	ActorType string    `json:"actor_type"`
	IP        string    `json:"ip"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// BannedIP is one row of the ban list.
type BannedIP struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// AdminStatus is the heartbeat singleton, enriched with the freshness check
// so callers don't recompute staleness.
type AdminStatus struct {
	Online      bool      `json:"online"`
	CurrentTask string    `json:"current_task"`
	UpdatedAt   time.Time `json:"updated_at"`
	Fresh       bool      `json:"fresh"`
}

// GuestbookEntry is one public guestbook message.
type GuestbookEntry struct {
	EntryID   string    `json:"entry_id"`
	Name      string    `json:"name"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// FlagSolve records that a username solved a challenge level.
type FlagSolve struct {
	Username  string    `json:"username"`
	Level     string    `json:"level"`
	CreatedAt time.Time `json:"created_at"`
}

// Store provides access to all sentrygate tables.
type Store struct {
	db *sql.DB
}

// New wraps db. Call Init (or open with dbopen.WithSchema(Schema)) before use.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init applies the schema.
func (s *Store) Init() error {
	return Init(s.db)
}

// --- Audit trail ---

// AppendAudit inserts one audit row. The entry ID and timestamp are assigned
// here when unset.
func (s *Store) AppendAudit(ctx context.Context, e *AuditEntry) error {
	if e.EntryID == "" {
		e.EntryID = "aud_" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (entry_id, actor_type, ip, action, details, created_at)
		VALUES (?,?,?,?,?,?)`,
		e.EntryID, e.ActorType, e.IP, e.Action, e.Details, e.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// CountRecentByAction counts audit rows for (ip, action) within the trailing
// window. This is the sliding-window rate limit counter: durable rows make it
// correct across concurrent stateless handler instances.
func (s *Store) CountRecentByAction(ctx context.Context, ip, action string, window time.Duration) (int, error) {
	cutoff := time.Now().Add(-window).Unix()
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audit_log
		WHERE ip = ? AND action = ? AND created_at >= ?`,
		ip, action, cutoff).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recent audit: %w", err)
	}
	return n, nil
}

// RecentAudit returns the newest entries, most recent first.
func (s *Store) RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, actor_type, ip, action, details, created_at
		FROM audit_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent audit: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var ts int64
		if err := rows.Scan(&e.EntryID, &e.ActorType, &e.IP, &e.Action, &e.Details, &ts); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.CreatedAt = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PurgeAudit deletes the whole audit trail (privileged action).
func (s *Store) PurgeAudit(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_log`)
	if err != nil {
		return 0, fmt.Errorf("purge audit: %w", err)
	}
	return res.RowsAffected()
}

// CleanupAudit deletes audit rows older than retentionDays.
func (s *Store) CleanupAudit(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup audit: %w", err)
	}
	return res.RowsAffected()
}

// --- Ban list ---

// BanIP upserts a ban row. Banning an already-banned address refreshes the
// reason and timestamp.
func (s *Store) BanIP(ctx context.Context, ip, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO banned_ips (ip, reason, created_at) VALUES (?,?,?)
		ON CONFLICT(ip) DO UPDATE SET reason = excluded.reason, created_at = excluded.created_at`,
		ip, reason, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("ban ip: %w", err)
	}
	return nil
}

// UnbanIP deletes the ban row, reporting whether one existed.
func (s *Store) UnbanIP(ctx context.Context, ip string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM banned_ips WHERE ip = ?`, ip)
	if err != nil {
		return false, fmt.Errorf("unban ip: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// IsBanned reports whether a ban row exists for ip.
func (s *Store) IsBanned(ctx context.Context, ip string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM banned_ips WHERE ip = ?`, ip).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is banned: %w", err)
	}
	return true, nil
}

// ListBans returns all ban rows, newest first.
func (s *Store) ListBans(ctx context.Context) ([]BannedIP, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ip, reason, created_at FROM banned_ips ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list bans: %w", err)
	}
	defer rows.Close()

	var bans []BannedIP
	for rows.Next() {
		var b BannedIP
		var ts int64
		if err := rows.Scan(&b.IP, &b.Reason, &ts); err != nil {
			return nil, fmt.Errorf("scan ban: %w", err)
		}
		b.CreatedAt = time.Unix(ts, 0)
		bans = append(bans, b)
	}
	return bans, rows.Err()
}

// --- Config flags ---

// SetConfig upserts a key/value flag.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO site_config (key, value) VALUES (?,?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}

// GetConfig returns the value for key and whether it was set.
func (s *Store) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM site_config WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get config %s: %w", key, err)
	}
	return v, true, nil
}

// DeleteConfig removes a flag.
func (s *Store) DeleteConfig(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM site_config WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete config %s: %w", key, err)
	}
	return nil
}

// --- Admin heartbeat singleton ---

// SetAdminStatus upserts the singleton row with the current timestamp.
func (s *Store) SetAdminStatus(ctx context.Context, online bool, task string) error {
	o := 0
	if online {
		o = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_status (id, online, current_task, updated_at) VALUES (1,?,?,?)
		ON CONFLICT(id) DO UPDATE SET online = excluded.online,
			current_task = excluded.current_task, updated_at = excluded.updated_at`,
		o, task, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("set admin status: %w", err)
	}
	return nil
}

// AdminStatus returns the heartbeat singleton with Fresh computed against
// freshFor. Returns nil, nil when no heartbeat was ever recorded.
func (s *Store) AdminStatus(ctx context.Context, freshFor time.Duration) (*AdminStatus, error) {
	var st AdminStatus
	var online int
	var ts int64
	err := s.db.QueryRowContext(ctx, `
		SELECT online, current_task, updated_at FROM admin_status WHERE id = 1`).
		Scan(&online, &st.CurrentTask, &ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("admin status: %w", err)
	}
	st.Online = online == 1
	st.UpdatedAt = time.Unix(ts, 0)
	st.Fresh = time.Since(st.UpdatedAt) <= freshFor
	return &st, nil
}

// --- Daily visit counter ---

// RecordVisit atomically increments the counter for day (YYYY-MM-DD) and
// reports whether this caller was first. The UNIQUE day key is the
// tie-breaker for simultaneous first visits; exactly one caller sees count 1.
func (s *Store) RecordVisit(ctx context.Context, day string) (first bool, count int, err error) {
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO daily_visits (day, count) VALUES (?,1)
		ON CONFLICT(day) DO UPDATE SET count = count + 1
		RETURNING count`, day).Scan(&count)
	if err != nil {
		return false, 0, fmt.Errorf("record visit: %w", err)
	}
	return count == 1, count, nil
}

// --- Challenge solves ---

// RecordSolve inserts a (username, level) solve. Duplicate submissions are
// detected via the UNIQUE constraint and reported as alreadySolved without a
// new row.
func (s *Store) RecordSolve(ctx context.Context, username, level string) (alreadySolved bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO flag_solves (username, level, created_at) VALUES (?,?,?)
		ON CONFLICT(username, level) DO NOTHING`,
		username, level, time.Now().Unix())
	if err != nil {
		return false, fmt.Errorf("record solve: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 0, nil
}

// ListSolves returns all solves, newest first.
func (s *Store) ListSolves(ctx context.Context) ([]FlagSolve, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, level, created_at FROM flag_solves ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list solves: %w", err)
	}
	defer rows.Close()

	var solves []FlagSolve
	for rows.Next() {
		var f FlagSolve
		var ts int64
		if err := rows.Scan(&f.Username, &f.Level, &ts); err != nil {
			return nil, fmt.Errorf("scan solve: %w", err)
		}
		f.CreatedAt = time.Unix(ts, 0)
		solves = append(solves, f)
	}
	return solves, rows.Err()
}

// --- Guestbook ---

// AddGuestbookEntry inserts a message and returns its ID.
func (s *Store) AddGuestbookEntry(ctx context.Context, name, message string) (string, error) {
	id := "gb_" + uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guestbook (entry_id, name, message, created_at) VALUES (?,?,?,?)`,
		id, name, message, time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("add guestbook entry: %w", err)
	}
	return id, nil
}

// ListGuestbook returns entries, newest first.
func (s *Store) ListGuestbook(ctx context.Context, limit int) ([]GuestbookEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, name, message, created_at
		FROM guestbook ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list guestbook: %w", err)
	}
	defer rows.Close()

	var entries []GuestbookEntry
	for rows.Next() {
		var e GuestbookEntry
		var ts int64
		if err := rows.Scan(&e.EntryID, &e.Name, &e.Message, &ts); err != nil {
			return nil, fmt.Errorf("scan guestbook entry: %w", err)
		}
		e.CreatedAt = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteGuestbookEntry removes one entry, reporting whether it existed.
func (s *Store) DeleteGuestbookEntry(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM guestbook WHERE entry_id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete guestbook entry: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
