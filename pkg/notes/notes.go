// Package notes defines the note-taking collaborator: a small per-session
// scratchpad the agent can write to and search, backed by pkg/notes/sqlite.
package notes

import (
	"context"
	"time"
)

// Note is one stored note, scoped to the session that created it.
type Note struct {
	ID        string
	SessionID string
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Ref is the lightweight handle returned by search, omitting Content.
type Ref struct {
	ID    string
	Title string
}

// Store persists and searches notes for one or more sessions.
type Store interface {
	CreateNote(ctx context.Context, note *Note) error
	GetNote(ctx context.Context, id string) (*Note, error)
	DeleteNote(ctx context.Context, id string) error
	KeywordSearch(ctx context.Context, sessionID, query string) ([]Note, error)
	Close() error
}
