// Package gemini implements llmclient.Client against the Google Gen AI
// SDK, converting its streamed response chunks into the tagged delta
// events the agent loop consumes.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mariozechner/agentcore/pkg/eventstream"
	"github.com/mariozechner/agentcore/pkg/llmclient"
	"github.com/mariozechner/agentcore/pkg/message"
	"google.golang.org/genai"
)

// Client implements llmclient.Client against the Gemini API.
type Client struct {
	client *genai.Client
}

var _ llmclient.Client = (*Client)(nil)

// New creates a Gemini client authenticated with apiKey.
func New(ctx context.Context, apiKey string) (*Client, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{client: c}, nil
}

func (c *Client) Name() string { return "gemini" }

// List returns every model that supports generateContent, excluding the
// Gemma family (chat-incapable in this SDK's action list).
func (c *Client) List(ctx context.Context) ([]llmclient.ModelInfo, error) {
	var models []llmclient.ModelInfo
	for m, err := range c.client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("gemini: list models: %w", err)
		}

		supportsGenerate := false
		if !strings.Contains(strings.ToLower(m.Name), "gemma") {
			for _, action := range m.SupportedActions {
				if action == "generateContent" {
					supportsGenerate = true
					break
				}
			}
		}
		if !supportsGenerate {
			continue
		}

		maxTokens := 0
		if m.InputTokenLimit > 0 {
			maxTokens = int(m.InputTokenLimit)
		}
		models = append(models, llmclient.ModelInfo{ID: m.Name, Provider: "gemini", MaxTokens: maxTokens})
	}
	return models, nil
}

// Stream begins a model call and returns a stream of tagged delta events.
func (c *Client) Stream(ctx context.Context, modelID string, req llmclient.Request) (*eventstream.Stream[llmclient.Event, message.AssistantMessage], error) {
	contents := toContents(req.Messages)

	var systemInstruction *genai.Content
	if req.SystemPrompt != "" {
		systemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}

	config := &genai.GenerateContentConfig{
		Tools:             toGenaiTools(req.Tools),
		SystemInstruction: systemInstruction,
	}

	streamCtx, cancel := context.WithCancel(ctx)
	iter := c.client.Models.GenerateContentStream(streamCtx, modelID, contents, config)

	out := eventstream.New[llmclient.Event, message.AssistantMessage]()
	go pump(streamCtx, cancel, modelID, iter, out)
	return out, nil
}

// pump drains iter, accumulating text and tool calls, and forwards each
// chunk as a text_delta or toolcall_end event carrying the cumulative
// partial assistant message, ending in a done/error terminal event.
func pump(ctx context.Context, cancel context.CancelFunc, modelID string, iter func(yield func(*genai.GenerateContentResponse, error) bool), out *eventstream.Stream[llmclient.Event, message.AssistantMessage]) {
	defer cancel()
	out.Push(llmclient.Event{Type: llmclient.EventStart})

	var text strings.Builder
	var toolCalls []message.Block
	var usage message.Usage

	partial := func() message.AssistantMessage {
		var content []message.Block
		if text.Len() > 0 {
			content = message.TextBlocks(text.String())
		}
		content = append(content, toolCalls...)
		return message.AssistantMessage{Content: content, Model: modelID, Provider: "gemini", Usage: usage, StopReason: message.StopToolUse}
	}

	for resp, err := range iter {
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			asst := message.AssistantMessage{Model: modelID, Provider: "gemini", StopReason: message.StopError, ErrorMessage: err.Error()}
			out.PushTerminal(llmclient.Event{Type: llmclient.EventError, Err: err, Partial: asst}, asst, err)
			return
		}
		if resp == nil {
			continue
		}
		if resp.UsageMetadata != nil {
			usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
			usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}

		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					text.WriteString(part.Text)
					out.Push(llmclient.Event{Type: llmclient.EventTextDelta, TextDelta: part.Text, Partial: partial()})
				}
				if part.FunctionCall != nil {
					fc := part.FunctionCall
					id := fc.ID
					if id == "" {
						id = "call-" + uuid.New().String()
					}
					toolCalls = append(toolCalls, message.Block{
						Type:     message.BlockToolCall,
						ToolCall: &message.ToolCallBlock{ID: id, Name: fc.Name, Input: fc.Args},
					})
					out.Push(llmclient.Event{
						Type: llmclient.EventToolCallEnd, ToolCallID: id, ToolCallName: fc.Name,
						ArgsPartial: fc.Args, Partial: partial(),
					})
				}
			}
		}
	}

	var content []message.Block
	if text.Len() > 0 {
		content = message.TextBlocks(text.String())
	}
	content = append(content, toolCalls...)

	stopReason := message.StopEnd
	if len(toolCalls) > 0 {
		stopReason = message.StopToolUse
	}
	final := message.AssistantMessage{Content: content, Model: modelID, Provider: "gemini", Usage: usage, StopReason: stopReason}
	out.PushTerminal(llmclient.Event{Type: llmclient.EventDone, Partial: final}, final, nil)
}

// toContents converts the project's message history into genai.Content,
// folding every non-core role into a plain text turn, since Gemini has no
// native concept of those roles: bash/python execution and compaction and
// branch summaries become "model" turns, file mentions and custom messages
// become "user" turns (see auxText).
func toContents(messages []message.Message) []*genai.Content {
	var contents []*genai.Content
	toolNames := make(map[string]string)

	for _, m := range messages {
		switch m.Role {
		case message.RoleUser:
			if parts := blocksToParts(m.User.Content, toolNames); len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: "user", Parts: parts})
			}
		case message.RoleAssistant:
			for _, b := range m.Assistant.Content {
				if b.Type == message.BlockToolCall && b.ToolCall != nil {
					toolNames[b.ToolCall.ID] = b.ToolCall.Name
				}
			}
			if parts := blocksToParts(m.Assistant.Content, toolNames); len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: "model", Parts: parts})
			}
		case message.RoleTool:
			tr := m.ToolResult
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{
				FunctionResponse: &genai.FunctionResponse{
					Name: tr.ToolName,
					ID:   tr.ToolCallID,
					Response: map[string]any{
						"result":  blocksText(tr.Content),
						"isError": tr.IsError,
					},
				},
			}}})
		default:
			if role, text := auxText(m); text != "" {
				contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: text}}})
			}
		}
	}
	return contents
}

func blocksToParts(blocks []message.Block, toolNames map[string]string) []*genai.Part {
	var parts []*genai.Part
	for _, b := range blocks {
		switch b.Type {
		case message.BlockText:
			if b.Text != nil {
				parts = append(parts, &genai.Part{Text: b.Text.Text})
			}
		case message.BlockThinking:
			if b.Thinking != nil {
				parts = append(parts, &genai.Part{Text: b.Thinking.Text, ThoughtSignature: []byte(b.Thinking.Signature)})
			}
		case message.BlockToolCall:
			if b.ToolCall != nil {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					Name: b.ToolCall.Name, Args: b.ToolCall.Input, ID: b.ToolCall.ID,
				}})
			}
		case message.BlockImage:
			if b.Image != nil {
				parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: b.Image.MediaType, Data: []byte(b.Image.Data)}})
			}
		}
	}
	return parts
}

func blocksText(blocks []message.Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == message.BlockText && b.Text != nil {
			sb.WriteString(b.Text.Text)
		}
	}
	return sb.String()
}

// auxText renders the project's extension message roles as a single text
// turn, since Gemini's content model has no native equivalent.
func auxText(m message.Message) (role, text string) {
	switch m.Role {
	case message.RoleBashExecution:
		return "model", fmt.Sprintf("[ran bash] %s\n%s", m.BashExecution.Command, m.BashExecution.Output)
	case message.RolePythonExecution:
		return "model", fmt.Sprintf("[ran python] %s\n%s", m.PythonExecution.Code, m.PythonExecution.Output)
	case message.RoleCompactionSummary:
		return "model", m.CompactionSummary.Summary
	case message.RoleBranchSummary:
		return "model", m.BranchSummary.Summary
	case message.RoleFileMention:
		var sb strings.Builder
		for _, f := range m.FileMention.Files {
			sb.WriteString(fmt.Sprintf("--- %s ---\n%s\n", f.Path, f.Content))
		}
		return "user", sb.String()
	case message.RoleCustom:
		return "user", blocksText(m.Custom.Content)
	default:
		return "", ""
	}
}

func toGenaiTools(tools []llmclient.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	var decls []*genai.FunctionDeclaration
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGenaiSchema(t.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// toGenaiSchema converts a JSON-schema-shaped map (the same shape
// pkg/tools.Tool.ParametersSchema returns) into genai's typed Schema,
// recursing into object/array properties.
func toGenaiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	out := &genai.Schema{Type: toGenaiType(schema["type"])}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if propSchema, ok := raw.(map[string]any); ok {
				out.Properties[name] = toGenaiSchema(propSchema)
			}
		}
	}
	if required, ok := schema["required"].([]string); ok {
		out.Required = required
	}
	if items, ok := schema["items"].(map[string]any); ok {
		out.Items = toGenaiSchema(items)
	}
	return out
}

func toGenaiType(t any) genai.Type {
	s, _ := t.(string)
	switch s {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeObject
	}
}
