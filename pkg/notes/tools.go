package notes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mariozechner/agentcore/pkg/tools"
)

// StoreNoteTool persists a note scoped to one session.
type StoreNoteTool struct {
	Store     Store
	SessionID string
}

var _ tools.Tool = (*StoreNoteTool)(nil)

func (t *StoreNoteTool) Name() string        { return "store_note" }
func (t *StoreNoteTool) Description() string { return "Store a note for later retrieval or search." }

func (t *StoreNoteTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":   map[string]any{"type": "string", "description": "A short title for the note."},
			"content": map[string]any{"type": "string", "description": "The note's content."},
		},
		"required": []string{"title", "content"},
	}
}

func (t *StoreNoteTool) Execute(ctx context.Context, toolCallID string, args map[string]any, onPartial tools.PartialFunc) (tools.Result, error) {
	title, _ := args["title"].(string)
	content, _ := args["content"].(string)

	note := &Note{ID: uuid.New().String(), SessionID: t.SessionID, Title: title, Content: content}
	if err := t.Store.CreateNote(ctx, note); err != nil {
		return tools.TextResult(fmt.Sprintf("failed to store note: %v", err), true), nil
	}
	return tools.TextResult(fmt.Sprintf("Note stored with ID: %s", note.ID), false), nil
}

// KeywordSearchNotesTool searches a session's notes by keyword.
type KeywordSearchNotesTool struct {
	Store     Store
	SessionID string
}

var _ tools.Tool = (*KeywordSearchNotesTool)(nil)

func (t *KeywordSearchNotesTool) Name() string { return "keyword_search_notes" }
func (t *KeywordSearchNotesTool) Description() string {
	return "Search this session's notes by keyword, matching against title and content."
}

func (t *KeywordSearchNotesTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "The keyword to search for."},
		},
		"required": []string{"query"},
	}
}

func (t *KeywordSearchNotesTool) Execute(ctx context.Context, toolCallID string, args map[string]any, onPartial tools.PartialFunc) (tools.Result, error) {
	query, _ := args["query"].(string)

	found, err := t.Store.KeywordSearch(ctx, t.SessionID, query)
	if err != nil {
		return tools.TextResult(fmt.Sprintf("search failed: %v", err), true), nil
	}

	refs := make([]Ref, len(found))
	for i, n := range found {
		refs[i] = Ref{ID: n.ID, Title: n.Title}
	}
	b, _ := json.Marshal(refs)
	return tools.TextResult(string(b), false), nil
}

// GetNoteTool retrieves one note's full content by ID.
type GetNoteTool struct {
	Store Store
}

var _ tools.Tool = (*GetNoteTool)(nil)

func (t *GetNoteTool) Name() string        { return "get_note" }
func (t *GetNoteTool) Description() string { return "Retrieve a note's full content by ID." }

func (t *GetNoteTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"id": map[string]any{"type": "string", "description": "The note's ID."}},
		"required":   []string{"id"},
	}
}

func (t *GetNoteTool) Execute(ctx context.Context, toolCallID string, args map[string]any, onPartial tools.PartialFunc) (tools.Result, error) {
	id, _ := args["id"].(string)

	note, err := t.Store.GetNote(ctx, id)
	if err != nil {
		return tools.TextResult(fmt.Sprintf("getting note: %v", err), true), nil
	}
	b, _ := json.Marshal(note)
	return tools.TextResult(string(b), false), nil
}

// DeleteNoteTool removes a note by ID.
type DeleteNoteTool struct {
	Store Store
}

var _ tools.Tool = (*DeleteNoteTool)(nil)

func (t *DeleteNoteTool) Name() string        { return "delete_note" }
func (t *DeleteNoteTool) Description() string { return "Delete a note by ID." }

func (t *DeleteNoteTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"id": map[string]any{"type": "string", "description": "The note's ID."}},
		"required":   []string{"id"},
	}
}

func (t *DeleteNoteTool) Execute(ctx context.Context, toolCallID string, args map[string]any, onPartial tools.PartialFunc) (tools.Result, error) {
	id, _ := args["id"].(string)
	if err := t.Store.DeleteNote(ctx, id); err != nil {
		return tools.TextResult(fmt.Sprintf("deleting note: %v", err), true), nil
	}
	return tools.TextResult("Note deleted.", false), nil
}
