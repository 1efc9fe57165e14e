// Package store is the SQLite-backed control plane: loop records, the
// durable mirror of extension lifecycle events, persisted sandbox grants and
// the sandbox audit log.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/loopdeck/loopdeck/internal/sandbox"
)

// Store wraps the SQLite database used by the daemon.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open opens (creating if needed) the control-plane database at dbPath and
// runs migrations.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS loops (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'idle',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS extension_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		plugin_id TEXT NOT NULL,
		action TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		detail TEXT
	);

	CREATE TABLE IF NOT EXISTS sandbox_grants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		extension_id TEXT NOT NULL,
		capability TEXT NOT NULL,
		scope TEXT NOT NULL,
		granted_by TEXT,
		reason TEXT,
		expires_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS sandbox_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		extension_id TEXT NOT NULL,
		intent TEXT NOT NULL,
		allowed BOOLEAN NOT NULL,
		reason TEXT NOT NULL,
		capability TEXT,
		grant_scope TEXT,
		recorded_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_extension_events_plugin ON extension_events(plugin_id);
	CREATE INDEX IF NOT EXISTS idx_sandbox_audit_extension ON sandbox_audit(extension_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// LoopRecord is one persisted agent loop.
type LoopRecord struct {
	ID        string
	Name      string
	State     string
	CreatedAt int64
	UpdatedAt int64
}

// SaveLoop inserts or replaces a loop record.
func (s *Store) SaveLoop(loop LoopRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO loops (id, name, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name,
			state = excluded.state, updated_at = excluded.updated_at`,
		loop.ID, loop.Name, loop.State, loop.CreatedAt, loop.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save loop %s: %w", loop.ID, err)
	}
	return nil
}

// DeleteLoop removes a loop record. Returns false when it did not exist.
func (s *Store) DeleteLoop(id string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM loops WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete loop %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListLoops returns all loops ordered by creation time.
func (s *Store) ListLoops() ([]LoopRecord, error) {
	rows, err := s.db.Query(
		"SELECT id, name, state, created_at, updated_at FROM loops ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to list loops: %w", err)
	}
	defer rows.Close()

	var loops []LoopRecord
	for rows.Next() {
		var loop LoopRecord
		if err := rows.Scan(&loop.ID, &loop.Name, &loop.State, &loop.CreatedAt, &loop.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan loop row: %w", err)
		}
		loops = append(loops, loop)
	}
	return loops, rows.Err()
}

// GetLoop fetches one loop record.
func (s *Store) GetLoop(id string) (*LoopRecord, error) {
	var loop LoopRecord
	err := s.db.QueryRow(
		"SELECT id, name, state, created_at, updated_at FROM loops WHERE id = ?", id).
		Scan(&loop.ID, &loop.Name, &loop.State, &loop.CreatedAt, &loop.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get loop %s: %w", id, err)
	}
	return &loop, nil
}

// AppendExtensionEvent mirrors one lifecycle event into the durable log.
func (s *Store) AppendExtensionEvent(pluginID, action string, timestamp int64, detail string) error {
	_, err := s.db.Exec(
		"INSERT INTO extension_events (plugin_id, action, timestamp, detail) VALUES (?, ?, ?, ?)",
		pluginID, action, timestamp, detail)
	if err != nil {
		return fmt.Errorf("failed to append extension event: %w", err)
	}
	return nil
}

// ExtensionEvent is one persisted lifecycle event row.
type ExtensionEvent struct {
	PluginID  string
	Action    string
	Timestamp int64
	Detail    string
}

// ListExtensionEvents returns events for one plugin in insertion order, or
// for all plugins when pluginID is empty.
func (s *Store) ListExtensionEvents(pluginID string) ([]ExtensionEvent, error) {
	query := "SELECT plugin_id, action, timestamp, detail FROM extension_events"
	args := []any{}
	if pluginID != "" {
		query += " WHERE plugin_id = ?"
		args = append(args, pluginID)
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list extension events: %w", err)
	}
	defer rows.Close()

	var events []ExtensionEvent
	for rows.Next() {
		var ev ExtensionEvent
		var detail sql.NullString
		if err := rows.Scan(&ev.PluginID, &ev.Action, &ev.Timestamp, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		ev.Detail = detail.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SaveGrant persists a sandbox grant.
func (s *Store) SaveGrant(g sandbox.Grant) error {
	var expires sql.NullInt64
	if g.ExpiresAtEpochS != nil {
		expires = sql.NullInt64{Int64: *g.ExpiresAtEpochS, Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO sandbox_grants (extension_id, capability, scope, granted_by, reason, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		g.ExtensionID, g.Capability.String(), g.Scope, g.GrantedBy, g.Reason, expires)
	if err != nil {
		return fmt.Errorf("failed to save grant: %w", err)
	}
	return nil
}

// DeleteGrants removes persisted grants matching the revocation key.
func (s *Store) DeleteGrants(extensionID string, capability sandbox.Capability, scope string) error {
	_, err := s.db.Exec(
		"DELETE FROM sandbox_grants WHERE extension_id = ? AND capability = ? AND scope = ?",
		extensionID, capability.String(), scope)
	if err != nil {
		return fmt.Errorf("failed to delete grants: %w", err)
	}
	return nil
}

// LoadGrants rebuilds the in-memory grant registry from persisted rows.
// Rows with an unknown capability label are skipped.
func (s *Store) LoadGrants() (*sandbox.GrantRegistry, error) {
	rows, err := s.db.Query(
		"SELECT extension_id, capability, scope, granted_by, reason, expires_at FROM sandbox_grants ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to load grants: %w", err)
	}
	defer rows.Close()

	registry := sandbox.NewGrantRegistry()
	for rows.Next() {
		var (
			g         sandbox.Grant
			capLabel  string
			grantedBy sql.NullString
			reason    sql.NullString
			expires   sql.NullInt64
		)
		if err := rows.Scan(&g.ExtensionID, &capLabel, &g.Scope, &grantedBy, &reason, &expires); err != nil {
			return nil, fmt.Errorf("failed to scan grant row: %w", err)
		}
		capability, err := sandbox.ParseCapability(capLabel)
		if err != nil {
			continue
		}
		g.Capability = capability
		g.GrantedBy = grantedBy.String
		g.Reason = reason.String
		if expires.Valid {
			v := expires.Int64
			g.ExpiresAtEpochS = &v
		}
		registry.Grant(g)
	}
	return registry, rows.Err()
}

// AppendAudit persists one sandbox audit record.
func (s *Store) AppendAudit(record sandbox.AuditRecord, recordedAt int64) error {
	_, err := s.db.Exec(`
		INSERT INTO sandbox_audit (extension_id, intent, allowed, reason, capability, grant_scope, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ExtensionID, record.Intent, record.Allowed, record.Reason,
		record.Capability, record.GrantScope, recordedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// RecentAudit returns the most recent audit rows, newest first.
func (s *Store) RecentAudit(limit int) ([]sandbox.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT extension_id, intent, allowed, reason, capability, grant_scope
		FROM sandbox_audit ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var records []sandbox.AuditRecord
	for rows.Next() {
		var (
			rec        sandbox.AuditRecord
			capability sql.NullString
			scope      sql.NullString
		)
		if err := rows.Scan(&rec.ExtensionID, &rec.Intent, &rec.Allowed, &rec.Reason, &capability, &scope); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		rec.Capability = capability.String
		rec.GrantScope = scope.String
		records = append(records, rec)
	}
	return records, rows.Err()
}
