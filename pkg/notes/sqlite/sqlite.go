// Package sqlite implements notes.Store on top of a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mariozechner/agentcore/pkg/notes"
)

// Store implements notes.Store using SQLite.
type Store struct {
	db *sql.DB
}

var _ notes.Store = (*Store)(nil)

// New opens (or creates) a SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_notes_session ON notes(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) CreateNote(ctx context.Context, note *notes.Note) error {
	now := time.Now().UTC()
	note.CreatedAt = now
	note.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (id, session_id, title, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		note.ID, note.SessionID, note.Title, note.Content, note.CreatedAt, note.UpdatedAt,
	)
	return err
}

func (s *Store) GetNote(ctx context.Context, id string) (*notes.Note, error) {
	n := &notes.Note{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, title, content, created_at, updated_at FROM notes WHERE id=?`, id,
	).Scan(&n.ID, &n.SessionID, &n.Title, &n.Content, &n.CreatedAt, &n.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("note not found: %s", id)
	}
	return n, err
}

func (s *Store) DeleteNote(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("note not found: %s", id)
	}
	return nil
}

func (s *Store) KeywordSearch(ctx context.Context, sessionID, query string) ([]notes.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, title, content, created_at, updated_at FROM notes
		 WHERE session_id=? AND (title LIKE '%' || ? || '%' OR content LIKE '%' || ? || '%')
		 ORDER BY created_at DESC`,
		sessionID, query, query,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notes.Note
	for rows.Next() {
		var n notes.Note
		if err := rows.Scan(&n.ID, &n.SessionID, &n.Title, &n.Content, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
