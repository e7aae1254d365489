// Package journal implements the append-only, per-session JSONL event log:
// an in-memory parent-linked forest of Entry records backed by a file on
// disk, with branch navigation, compaction splicing, and a small directory
// of sessions (index.json) managed by Manager.
package journal

import (
	"time"

	"github.com/mariozechner/agentcore/pkg/message"
)

// EntryType discriminates the kind of payload an Entry carries. Only a few
// kinds are journal-native; ordinary conversation turns (including
// compaction and branch summaries, which the agent sees as synthesized
// messages) are carried as EntryMessage wrapping a message.Message, whose
// own Role field distinguishes them further.
type EntryType string

const (
	EntryMessage             EntryType = "message"
	EntryModelChange         EntryType = "model_change"
	EntryThinkingLevelChange EntryType = "thinking_level_change"
	EntryModeChange          EntryType = "mode_change"
	EntryLabel               EntryType = "label"
	EntrySessionInfo         EntryType = "session_info"
)

// Header is the first line of a session file.
type Header struct {
	Type          string    `json:"type"` // always "session"
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Cwd           string    `json:"cwd"`
	SystemPrompt  string    `json:"systemPrompt,omitempty"`
	ModelID       string    `json:"modelId"`
	Provider      string    `json:"provider"`
	ParentSession string    `json:"parentSession,omitempty"`
}

// Entry is a tagged union representing any non-header record in the
// session log. Exactly one of the payload pointer fields is non-nil,
// selected by Type.
type Entry struct {
	Type      EntryType `json:"type"`
	ID        string    `json:"id"`
	ParentID  *string   `json:"parentId"`
	Timestamp time.Time `json:"timestamp"`

	Message             *message.Message          `json:"message,omitempty"`
	ModelChange         *ModelChangeEntry         `json:"modelChange,omitempty"`
	ThinkingLevelChange *ThinkingLevelChangeEntry `json:"thinkingLevelChange,omitempty"`
	ModeChange          *ModeChangeEntry          `json:"modeChange,omitempty"`
	Label               *LabelEntry               `json:"label,omitempty"`
	SessionInfo         *SessionInfoEntry         `json:"sessionInfo,omitempty"`
}

// ModelChangeEntry records a shift in the underlying LLM.
type ModelChangeEntry struct {
	Provider string `json:"provider"`
	ModelID  string `json:"modelId"`
}

// ThinkingLevelChangeEntry records a change in agent thinking depth.
type ThinkingLevelChangeEntry struct {
	ThinkingLevel string `json:"thinkingLevel"`
}

// ModeChangeEntry records a change in agent operating mode (e.g. planning
// vs. editing), same shape as ModelChangeEntry/ThinkingLevelChangeEntry.
type ModeChangeEntry struct {
	Mode string `json:"mode"`
}

// LabelEntry associates a bookmark with an entry, or clears one when Label
// is empty.
type LabelEntry struct {
	TargetID string `json:"targetId"`
	Label    string `json:"label,omitempty"`
}

// SessionInfoEntry updates session metadata, e.g. a user-assigned title.
type SessionInfoEntry struct {
	Name string `json:"name"`
}
