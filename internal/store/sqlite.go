package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/haasonsaas/concierge/internal/audit"
	"github.com/haasonsaas/concierge/pkg/models"
)

// SQLiteStore is a Store backed by a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema. An empty path uses an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS inbound_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider TEXT NOT NULL,
			external_id TEXT,
			from_id TEXT,
			to_id TEXT,
			text TEXT,
			session_id TEXT,
			payload BLOB,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tool_audits (
			id TEXT PRIMARY KEY,
			tool_name TEXT NOT NULL,
			input BLOB,
			output TEXT,
			error TEXT,
			duration_ms INTEGER NOT NULL,
			session_id TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS agent_states (
			session_id TEXT PRIMARY KEY,
			state BLOB NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range tables {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_inbound_provider ON inbound_messages(provider)",
		"CREATE INDEX IF NOT EXISTS idx_inbound_session ON inbound_messages(session_id)",
		"CREATE INDEX IF NOT EXISTS idx_tool_audits_session ON tool_audits(session_id)",
		"CREATE INDEX IF NOT EXISTS idx_tool_audits_created ON tool_audits(created_at)",
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) InsertInbound(ctx context.Context, msg *models.InboundMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inbound_messages (provider, external_id, from_id, to_id, text, session_id, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(msg.Provider), msg.ExternalID, msg.From, msg.To, msg.Text, msg.SessionID, []byte(msg.Raw))
	if err != nil {
		return fmt.Errorf("failed to insert inbound message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListInbound(ctx context.Context, provider models.Provider, limit int) ([]*models.InboundMessage, error) {
	query := `SELECT provider, external_id, from_id, to_id, text, session_id, payload
		FROM inbound_messages`
	args := []any{}
	if provider != "" {
		query += " WHERE provider = ?"
		args = append(args, string(provider))
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list inbound messages: %w", err)
	}
	defer rows.Close()

	var out []*models.InboundMessage
	for rows.Next() {
		var msg models.InboundMessage
		var prov string
		var payload []byte
		if err := rows.Scan(&prov, &msg.ExternalID, &msg.From, &msg.To, &msg.Text, &msg.SessionID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan inbound message: %w", err)
		}
		msg.Provider = models.Provider(prov)
		msg.Raw = payload
		out = append(out, &msg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertToolRecord(ctx context.Context, rec *audit.ToolRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_audits (id, tool_name, input, output, error, duration_ms, session_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.ToolName, []byte(rec.Input), rec.Output, rec.Error, rec.DurationMs, rec.SessionID, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert tool record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListToolRecords(ctx context.Context, sessionID string, limit int) ([]*audit.ToolRecord, error) {
	query := `SELECT id, tool_name, input, output, error, duration_ms, session_id, created_at
		FROM tool_audits`
	args := []any{}
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY created_at ASC, id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool records: %w", err)
	}
	defer rows.Close()

	var out []*audit.ToolRecord
	for rows.Next() {
		var rec audit.ToolRecord
		var input []byte
		if err := rows.Scan(&rec.ID, &rec.ToolName, &input, &rec.Output, &rec.Error, &rec.DurationMs, &rec.SessionID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tool record: %w", err)
		}
		rec.Input = input
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveState(ctx context.Context, sessionID string, state []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_states (session_id, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at
	`, sessionID, state, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadState(ctx context.Context, sessionID string) ([]byte, error) {
	var state []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM agent_states WHERE session_id = ?", sessionID,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return state, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
