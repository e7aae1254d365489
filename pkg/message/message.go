// Package message defines the typed sum of every message variant the agent
// handles, plus the content blocks that make up Assistant/User messages.
package message

import "time"

// Role identifies the sender of a Message.
type Role string

const (
	RoleUser              Role = "user"
	RoleAssistant         Role = "assistant"
	RoleTool              Role = "tool"
	RoleBashExecution     Role = "bashExecution"
	RolePythonExecution   Role = "pythonExecution"
	RoleFileMention       Role = "fileMention"
	RoleCompactionSummary Role = "compactionSummary"
	RoleBranchSummary     Role = "branchSummary"
	RoleCustom            Role = "custom"
)

// StopReason is why an Assistant message's turn stopped producing content.
type StopReason string

const (
	StopEnd      StopReason = "end"
	StopToolUse  StopReason = "toolUse"
	StopMaxToken StopReason = "maxTokens"
	StopError    StopReason = "error"
	StopAborted  StopReason = "aborted"
)

// BlockType identifies the kind of a content Block.
type BlockType string

const (
	BlockText     BlockType = "text"
	BlockImage    BlockType = "image"
	BlockThinking BlockType = "thinking"
	BlockToolCall BlockType = "tool_call"
)

// Block is one component of a User/Assistant message's content.
// Exactly one of the typed fields is populated, selected by Type.
type Block struct {
	Type BlockType `json:"type"`

	Text     *TextBlock     `json:"text,omitempty"`
	Image    *ImageBlock    `json:"image,omitempty"`
	Thinking *ThinkingBlock `json:"thinking,omitempty"`
	ToolCall *ToolCallBlock `json:"toolCall,omitempty"`
}

// TextBlock is literal text content.
type TextBlock struct {
	Text string `json:"text"`
}

// ImageBlock is inline image content.
type ImageBlock struct {
	MediaType string `json:"mediaType"`
	Data      string `json:"data"` // base64
}

// ThinkingBlock is the model's internal reasoning trace, when provided.
type ThinkingBlock struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

// ToolCallBlock is a single tool invocation requested by the model.
// ID is unique within the owning Assistant message.
type ToolCallBlock struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

func TextBlocks(s string) []Block {
	return []Block{{Type: BlockText, Text: &TextBlock{Text: s}}}
}

// Usage tallies token accounting for a single Assistant message.
type Usage struct {
	InputTokens      int     `json:"inputTokens"`
	OutputTokens     int     `json:"outputTokens"`
	CacheReadTokens  int     `json:"cacheReadTokens,omitempty"`
	CacheWriteTokens int     `json:"cacheWriteTokens,omitempty"`
	CostUSD          float64 `json:"costUsd,omitempty"`
}

// FileRef is a single file captured by a FileMention message.
type FileRef struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Message is the tagged union of every conversation entity the agent loop
// and journal understand. Exactly one of the typed payload fields is
// non-nil, selected by Role.
type Message struct {
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	User              *UserMessage       `json:"user,omitempty"`
	Assistant         *AssistantMessage  `json:"assistant,omitempty"`
	ToolResult        *ToolResultMessage `json:"toolResult,omitempty"`
	BashExecution     *BashExecution     `json:"bashExecution,omitempty"`
	PythonExecution   *PythonExecution   `json:"pythonExecution,omitempty"`
	FileMention       *FileMention       `json:"fileMention,omitempty"`
	CompactionSummary *CompactionSummary `json:"compactionSummary,omitempty"`
	BranchSummary     *BranchSummary     `json:"branchSummary,omitempty"`
	Custom            *CustomMessage     `json:"custom,omitempty"`
}

// UserMessage is text/image content typed or pasted by the human.
type UserMessage struct {
	Content   []Block `json:"content"`
	Synthetic bool    `json:"synthetic,omitempty"`
}

// AssistantMessage is one LLM turn's output.
type AssistantMessage struct {
	Content      []Block    `json:"content"`
	Model        string     `json:"model"`
	Provider     string     `json:"provider"`
	Usage        Usage      `json:"usage"`
	StopReason   StopReason `json:"stopReason"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

// ToolCalls returns the subset of Content that are tool invocations, in
// textual (document) order.
func (a *AssistantMessage) ToolCalls() []ToolCallBlock {
	var calls []ToolCallBlock
	for _, b := range a.Content {
		if b.Type == BlockToolCall && b.ToolCall != nil {
			calls = append(calls, *b.ToolCall)
		}
	}
	return calls
}

// Text concatenates all TextBlock content, in order.
func (a *AssistantMessage) Text() string {
	var out string
	for _, b := range a.Content {
		if b.Type == BlockText && b.Text != nil {
			out += b.Text.Text
		}
	}
	return out
}

// ToolResultMessage is the synthesized reply to a single tool-call.
type ToolResultMessage struct {
	ToolCallID string         `json:"toolCallId"`
	ToolName   string         `json:"toolName"`
	Content    []Block        `json:"content"`
	IsError    bool           `json:"isError"`
	Details    map[string]any `json:"details,omitempty"`
}

// BashExecution records one shell command run by the bash tool collaborator.
type BashExecution struct {
	Command             string `json:"command"`
	Output              string `json:"output"`
	ExitCode            int    `json:"exitCode"`
	Cancelled           bool   `json:"cancelled,omitempty"`
	Truncated           bool   `json:"truncated,omitempty"`
	ExcludeFromContext  bool   `json:"excludeFromContext,omitempty"`
}

// PythonExecution records one IPython-style cell run by the python tool collaborator.
type PythonExecution struct {
	Code               string `json:"code"`
	Output             string `json:"output"`
	ExitCode           int    `json:"exitCode"`
	Cancelled          bool   `json:"cancelled,omitempty"`
	Truncated          bool   `json:"truncated,omitempty"`
	ExcludeFromContext bool   `json:"excludeFromContext,omitempty"`
}

// FileMention attaches file contents referenced by the user (e.g. @path).
type FileMention struct {
	Files []FileRef `json:"files"`
}

// CompactionSummary replaces a summarized branch prefix.
type CompactionSummary struct {
	Summary          string `json:"summary"`
	ShortSummary     string `json:"shortSummary,omitempty"`
	TokensBefore     int    `json:"tokensBefore"`
	FirstKeptEntryID string `json:"firstKeptEntryId"`
}

// BranchSummary checkpoints an abandoned branch at the point it was left.
type BranchSummary struct {
	Summary string `json:"summary"`
	FromID  string `json:"fromId"`
}

// CustomMessage carries extension-defined data the core never introspects.
type CustomMessage struct {
	CustomType string         `json:"customType"`
	Content    []Block        `json:"content,omitempty"`
	Display    bool           `json:"display"`
	Details    map[string]any `json:"details,omitempty"`
}
