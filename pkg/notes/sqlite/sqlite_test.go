package sqlite

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/mariozechner/agentcore/pkg/notes"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tmpFile := t.TempDir() + "/test.db"
	s, err := New(tmpFile)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		os.Remove(tmpFile)
	})
	return s
}

func TestNoteCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n := &notes.Note{ID: uuid.New().String(), SessionID: "sess1", Title: "todo", Content: "buy milk"}
	if err := s.CreateNote(ctx, n); err != nil {
		t.Fatalf("CreateNote: %v", err)
	}

	got, err := s.GetNote(ctx, n.ID)
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got.Title != "todo" || got.Content != "buy milk" {
		t.Errorf("got %+v, want title=todo content='buy milk'", got)
	}

	if err := s.DeleteNote(ctx, n.ID); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if _, err := s.GetNote(ctx, n.ID); err == nil {
		t.Error("expected GetNote to fail after deletion")
	}
}

func TestKeywordSearchScopesToSessionAndMatchesTitleOrContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateNote(ctx, &notes.Note{ID: uuid.New().String(), SessionID: "sess1", Title: "shopping list", Content: "milk, eggs"})
	s.CreateNote(ctx, &notes.Note{ID: uuid.New().String(), SessionID: "sess1", Title: "meeting notes", Content: "discussed milk prices"})
	s.CreateNote(ctx, &notes.Note{ID: uuid.New().String(), SessionID: "sess2", Title: "shopping list", Content: "milk"})

	found, err := s.KeywordSearch(ctx, "sess1", "milk")
	if err != nil {
		t.Fatalf("KeywordSearch: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("got %d notes, want 2 (only sess1's matches)", len(found))
	}
}

func TestGetNoteReturnsErrorForUnknownID(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetNote(context.Background(), "nonexistent"); err == nil {
		t.Error("expected an error for an unknown note ID")
	}
}
