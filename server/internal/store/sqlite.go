package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/senseease/senseease/pkg/types"
	"github.com/senseease/senseease/server/internal/cart"
	"github.com/senseease/senseease/server/internal/prefs"
)

// SQLite persists carts, interaction events and accessibility preferences
// to a SQLite database. It implements Persister, prefs.Loader and
// prefs.Saver.
type SQLite struct {
	db  *sql.DB
	mu  sync.Mutex // serialises writes
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path in WAL mode.
// Call Migrate before first use.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set busy timeout: %w", err)
	}
	slog.Info("store: sqlite opened", "path", path)
	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// Migrate creates the tables and indexes if they do not exist.
func (s *SQLite) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS carts (
			id         TEXT PRIMARY KEY,
			doc        TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_carts_updated ON carts(updated_at)`,

		`CREATE TABLE IF NOT EXISTS interaction_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			type       TEXT NOT NULL,
			severity   TEXT NOT NULL,
			ts         INTEGER NOT NULL,
			metadata   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON interaction_events(session_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON interaction_events(ts)`,

		`CREATE TABLE IF NOT EXISTS preferences (
			user_id    TEXT PRIMARY KEY,
			doc        TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// --- carts ---

// SaveCart upserts the cart document.
func (s *SQLite) SaveCart(ctx context.Context, doc cart.Document) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: encode cart %q: %w", doc.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `INSERT INTO carts (id, doc, updated_at) VALUES (?,?,?)
		ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		doc.ID, string(b), s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("store: save cart %q: %w", doc.ID, err)
	}
	return nil
}

// LoadCarts returns every cart updated after since.
func (s *SQLite) LoadCarts(ctx context.Context, since time.Time) ([]cart.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM carts WHERE updated_at > ? ORDER BY id`, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("store: load carts: %w", err)
	}
	defer rows.Close()

	var out []cart.Document
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scan cart: %w", err)
		}
		var doc cart.Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("store: decode cart: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// --- events ---

// AppendEvents inserts events for a session in one transaction.
func (s *SQLite) AppendEvents(ctx context.Context, sessionID string, events []types.InteractionEvent) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO interaction_events
		(session_id, type, severity, ts, metadata) VALUES (?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		var meta any
		if len(ev.Metadata) > 0 {
			b, err := json.Marshal(ev.Metadata)
			if err != nil {
				return fmt.Errorf("store: encode metadata: %w", err)
			}
			meta = string(b)
		}
		if _, err := stmt.ExecContext(ctx, sessionID, string(ev.Type), string(ev.Severity),
			ev.Timestamp.UnixNano(), meta); err != nil {
			return fmt.Errorf("store: insert event: %w", err)
		}
	}
	return tx.Commit()
}

// LoadEvents returns the most recent limit events of a session, oldest first.
func (s *SQLite) LoadEvents(ctx context.Context, sessionID string, limit int) ([]types.InteractionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, severity, ts, metadata FROM (
			SELECT id, type, severity, ts, metadata FROM interaction_events
			WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: load events: %w", err)
	}
	defer rows.Close()

	var out []types.InteractionEvent
	for rows.Next() {
		var (
			typ, sev string
			ts       int64
			meta     sql.NullString
		)
		if err := rows.Scan(&typ, &sev, &ts, &meta); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		ev := types.InteractionEvent{
			Type:      types.EventType(typ),
			Severity:  types.Severity(sev),
			Timestamp: time.Unix(0, ts),
		}
		if meta.Valid {
			if err := json.Unmarshal([]byte(meta.String), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("store: decode metadata: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ResetEvents deletes every event of a session.
func (s *SQLite) ResetEvents(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM interaction_events WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("store: reset events %q: %w", sessionID, err)
	}
	return nil
}

// PruneEvents deletes events stamped before the cutoff and returns how many
// rows were removed.
func (s *SQLite) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM interaction_events WHERE ts < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("store: prune events: %w", err)
	}
	return res.RowsAffected()
}

// --- preferences ---

// LoadPreferences implements prefs.Loader.
func (s *SQLite) LoadPreferences(ctx context.Context, userID string) (prefs.Preferences, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM preferences WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return prefs.Preferences{}, prefs.ErrNotFound
	}
	if err != nil {
		return prefs.Preferences{}, fmt.Errorf("store: load preferences: %w", err)
	}
	var p prefs.Preferences
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return prefs.Preferences{}, fmt.Errorf("store: decode preferences: %w", err)
	}
	return p, nil
}

// SavePreferences implements prefs.Saver.
func (s *SQLite) SavePreferences(ctx context.Context, userID string, p prefs.Preferences) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: encode preferences: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `INSERT INTO preferences (user_id, doc, updated_at) VALUES (?,?,?)
		ON CONFLICT(user_id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		userID, string(b), s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("store: save preferences %q: %w", userID, err)
	}
	return nil
}
