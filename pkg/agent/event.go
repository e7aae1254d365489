// Package agent implements the streaming turn state machine: request the
// model, dispatch tool calls, honor steer/follow-up queues, and hand
// transient failures to pkg/retry and context growth to pkg/compaction.
package agent

import (
	"github.com/mariozechner/agentcore/pkg/message"
	"github.com/mariozechner/agentcore/pkg/retry"
	"github.com/mariozechner/agentcore/pkg/tools"
)

// EventType discriminates one increment of a Run's event stream.
type EventType string

const (
	EventAgentStart         EventType = "agent_start"
	EventAgentEnd           EventType = "agent_end"
	EventTurnStart          EventType = "turn_start"
	EventTurnEnd            EventType = "turn_end"
	EventMessageStart       EventType = "message_start"
	EventMessageUpdate      EventType = "message_update"
	EventMessageEnd         EventType = "message_end"
	EventToolExecutionStart EventType = "tool_execution_start"
	EventToolExecutionUpdate EventType = "tool_execution_update"
	EventToolExecutionEnd   EventType = "tool_execution_end"
	EventAutoRetryStart     EventType = "auto_retry_start"
	EventAutoRetryEnd       EventType = "auto_retry_end"
)

// Event is one item of a Run's event stream. Exactly the fields relevant
// to Type are populated.
type Event struct {
	Type EventType

	// Message carries the finalized message for MessageStart/MessageEnd;
	// it is nil on the MessageStart that opens an assistant stream.
	Message *message.Message

	// Assistant carries the cumulative, partially-assembled assistant
	// message for MessageUpdate events during streaming.
	Assistant *message.AssistantMessage

	// ToolCallID/ToolName identify the tool call a
	// ToolExecution{Start,Update,End} event concerns.
	ToolCallID string
	ToolName   string

	// Text carries partial output text on ToolExecutionUpdate.
	Text string

	// Result carries the tool's outcome on ToolExecutionEnd.
	Result *tools.Result

	RetryStart *retry.AutoRetryStart
	RetryEnd   *retry.AutoRetryEnd

	Err error
}

// RunResult is the terminal value of a Run's event stream: every message
// newly appended to the journal during the run, in order, and the stop
// reason of the final assistant message.
type RunResult struct {
	Messages   []message.Message
	StopReason message.StopReason
}
