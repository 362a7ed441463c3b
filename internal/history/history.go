// Package history persists chat turns per session so handlers can rebuild
// a conversation before asking for the next completion.
package history

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/arogyasahayak/sahayak/internal/providers"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) (*Store, error) {
	if err := initSchema(db); err != nil {
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS chat_turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_chat_turns_session ON chat_turns(session_id, id);
	`)
	return err
}

// Append records one turn at the end of a session.
func (s *Store) Append(ctx context.Context, sessionID, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chat_turns (session_id, role, content) VALUES (?, ?, ?)",
		sessionID, role, content,
	)
	return err
}

// Recent returns up to limit of the newest turns for a session, oldest
// first, ready to hand to a provider.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]providers.Message, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content FROM (
			SELECT id, role, content FROM chat_turns
			WHERE session_id = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []providers.Message
	for rows.Next() {
		var m providers.Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Clear deletes every turn of a session.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM chat_turns WHERE session_id = ?", sessionID)
	return err
}
