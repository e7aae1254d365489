package notes

import (
	"context"
	"strings"
	"testing"
)

type fakeStore struct {
	created []Note
	found   []Note
	getErr  error
	get     *Note
	delErr  error
}

func (s *fakeStore) CreateNote(ctx context.Context, n *Note) error {
	n.ID = "fixed-id"
	s.created = append(s.created, *n)
	return nil
}
func (s *fakeStore) GetNote(ctx context.Context, id string) (*Note, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.get, nil
}
func (s *fakeStore) DeleteNote(ctx context.Context, id string) error { return s.delErr }
func (s *fakeStore) KeywordSearch(ctx context.Context, sessionID, query string) ([]Note, error) {
	return s.found, nil
}
func (s *fakeStore) Close() error { return nil }

func TestStoreNoteTool_CreatesNoteScopedToSession(t *testing.T) {
	store := &fakeStore{}
	tool := &StoreNoteTool{Store: store, SessionID: "sess1"}

	res, err := tool.Execute(context.Background(), "c1", map[string]any{"title": "t", "content": "body"}, nil)
	if err != nil || res.IsError {
		t.Fatalf("Execute failed: err=%v res=%+v", err, res)
	}
	if len(store.created) != 1 || store.created[0].SessionID != "sess1" {
		t.Fatalf("expected note scoped to sess1, got %+v", store.created)
	}
}

func TestKeywordSearchNotesTool_ReturnsRefsOnly(t *testing.T) {
	store := &fakeStore{found: []Note{{ID: "n1", Title: "hello", Content: "secret body"}}}
	tool := &KeywordSearchNotesTool{Store: store, SessionID: "sess1"}

	res, err := tool.Execute(context.Background(), "c1", map[string]any{"query": "hello"}, nil)
	if err != nil || res.IsError {
		t.Fatalf("Execute failed: err=%v res=%+v", err, res)
	}
	text := res.Content[0].Text.Text
	if !strings.Contains(text, "n1") || !strings.Contains(text, "hello") {
		t.Fatalf("expected search result to reference id/title, got %q", text)
	}
	if strings.Contains(text, "secret body") {
		t.Fatalf("search results should not leak full note content: %q", text)
	}
}

func TestDeleteNoteTool_ReportsStoreError(t *testing.T) {
	store := &fakeStore{delErr: errNotFound{}}
	tool := &DeleteNoteTool{Store: store}

	res, err := tool.Execute(context.Background(), "c1", map[string]any{"id": "missing"}, nil)
	if err != nil {
		t.Fatalf("Execute should not return a Go error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected an error result when deletion fails")
	}
}

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }
