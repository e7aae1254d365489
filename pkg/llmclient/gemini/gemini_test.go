package gemini

import (
	"testing"

	"github.com/mariozechner/agentcore/pkg/llmclient"
	"github.com/mariozechner/agentcore/pkg/message"
	"google.golang.org/genai"
)

func TestToContentsRendersCoreRoles(t *testing.T) {
	messages := []message.Message{
		{Role: message.RoleUser, User: &message.UserMessage{Content: message.TextBlocks("hi")}},
		{Role: message.RoleAssistant, Assistant: &message.AssistantMessage{
			Content: []message.Block{{
				Type:     message.BlockToolCall,
				ToolCall: &message.ToolCallBlock{ID: "c1", Name: "echo", Input: map[string]any{"text": "x"}},
			}},
			StopReason: message.StopToolUse,
		}},
		{Role: message.RoleTool, ToolResult: &message.ToolResultMessage{
			ToolCallID: "c1", ToolName: "echo", Content: message.TextBlocks("echo: x"),
		}},
	}

	contents := toContents(messages)
	if len(contents) != 3 {
		t.Fatalf("got %d contents, want 3", len(contents))
	}
	if contents[0].Role != "user" {
		t.Errorf("contents[0].Role = %s, want user", contents[0].Role)
	}
	if contents[1].Role != "model" {
		t.Errorf("contents[1].Role = %s, want model", contents[1].Role)
	}
	if contents[1].Parts[0].FunctionCall == nil || contents[1].Parts[0].FunctionCall.Name != "echo" {
		t.Fatalf("expected a FunctionCall part for the assistant tool call, got %+v", contents[1].Parts[0])
	}
	if contents[2].Parts[0].FunctionResponse == nil || contents[2].Parts[0].FunctionResponse.Name != "echo" {
		t.Fatalf("expected a FunctionResponse part carrying the tool name, got %+v", contents[2].Parts[0])
	}
}

func TestToContentsRendersAuxiliaryRolesAsText(t *testing.T) {
	messages := []message.Message{
		{Role: message.RoleCompactionSummary, CompactionSummary: &message.CompactionSummary{Summary: "earlier work summarized"}},
		{Role: message.RoleBashExecution, BashExecution: &message.BashExecution{Command: "ls", Output: "a.go"}},
	}
	contents := toContents(messages)
	if len(contents) != 2 {
		t.Fatalf("got %d contents, want 2", len(contents))
	}
	if contents[0].Role != "model" || contents[0].Parts[0].Text != "earlier work summarized" {
		t.Fatalf("compaction summary not rendered as model text: %+v", contents[0])
	}
}

func TestToGenaiSchemaConvertsNestedObject(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string"},
			"tags": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"path"},
	}
	out := toGenaiSchema(schema)
	if out.Type != genai.TypeObject {
		t.Fatalf("Type = %v, want object", out.Type)
	}
	if out.Properties["path"].Type != genai.TypeString {
		t.Errorf("path.Type = %v, want string", out.Properties["path"].Type)
	}
	if out.Properties["tags"].Type != genai.TypeArray || out.Properties["tags"].Items.Type != genai.TypeString {
		t.Errorf("tags schema not converted correctly: %+v", out.Properties["tags"])
	}
	if len(out.Required) != 1 || out.Required[0] != "path" {
		t.Errorf("Required = %v, want [path]", out.Required)
	}
}

func TestToGenaiToolsBuildsFunctionDeclarations(t *testing.T) {
	tools := []llmclient.Tool{
		{Name: "read_file", Description: "reads a file", Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []string{"path"},
		}},
		{Name: "list_dir", Description: "lists a directory", Parameters: map[string]any{"type": "object"}},
	}

	genaiTools := toGenaiTools(tools)
	if len(genaiTools) != 1 {
		t.Fatalf("got %d genai.Tool entries, want 1 (all declarations grouped together)", len(genaiTools))
	}
	decls := genaiTools[0].FunctionDeclarations
	if len(decls) != 2 {
		t.Fatalf("got %d function declarations, want 2", len(decls))
	}
	if decls[0].Name != "read_file" || decls[0].Parameters.Properties["path"].Type != genai.TypeString {
		t.Fatalf("read_file declaration not converted correctly: %+v", decls[0])
	}

	if toGenaiTools(nil) != nil {
		t.Error("toGenaiTools(nil) should return nil, not an empty tool list")
	}
}
