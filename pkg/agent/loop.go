package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/mariozechner/agentcore/pkg/eventstream"
	"github.com/mariozechner/agentcore/pkg/journal"
	"github.com/mariozechner/agentcore/pkg/llmclient"
	"github.com/mariozechner/agentcore/pkg/message"
	"github.com/mariozechner/agentcore/pkg/patch"
	"github.com/mariozechner/agentcore/pkg/retry"
	"github.com/mariozechner/agentcore/pkg/tools"
)

// editToolName is the one tool name the loop treats specially while
// streaming: its partial arguments are checked against the patch engine
// so an edit that can never apply aborts before the model finishes
// generating it.
const editToolName = "edit"

// Config configures one Loop. Client, ModelID, and Tools are required;
// the rest have usable zero values.
type Config struct {
	Client       llmclient.Client
	ModelID      string
	SystemPrompt string
	Tools        *tools.Registry

	EditRoot  string
	EditFuzzy patch.FuzzyConfig
	EditCache *patch.Cache

	RetryConfig retry.Config
	Switcher    retry.CredentialSwitcher

	GetQueued GetQueuedMessages
	// QueueMode used at TurnStart; between-tool-call checks always use
	// QueueModeOne, skipping the remaining tool calls as soon as one
	// queued steer message arrives.
	QueueMode QueueMode
	// HasPendingFollowUp reports whether a follow-up is queued. Consulted
	// whenever a turn ends without a tool call, so a follow-up queued
	// during that turn still forces one more turn instead of being
	// silently dropped at AgentEnd.
	HasPendingFollowUp func() bool
}

// Loop drives one session's turn state machine: TurnStart, Streaming,
// ToolDispatch, TurnEnd, repeating while the assistant keeps calling
// tools, ending in AgentEnd.
type Loop struct {
	cfg Config
}

// New returns a Loop bound to cfg.
func New(cfg Config) *Loop {
	if cfg.QueueMode == "" {
		cfg.QueueMode = QueueModeAll
	}
	if cfg.EditCache == nil {
		cfg.EditCache = patch.NewCache()
	}
	return &Loop{cfg: cfg}
}

// Run starts one agent run against sess and returns immediately with a
// stream of Events ending in a RunResult. The caller is expected to have
// already appended any initiating user prompt to sess; Run only injects
// messages sourced from the queued-messages callback.
func (l *Loop) Run(ctx context.Context, sess *journal.Session) *eventstream.Stream[Event, RunResult] {
	stream := eventstream.New[Event, RunResult]()
	go l.run(ctx, sess, stream)
	return stream
}

func (l *Loop) run(ctx context.Context, sess *journal.Session, stream *eventstream.Stream[Event, RunResult]) {
	stream.Push(Event{Type: EventAgentStart})

	var newMessages []message.Message
	var finalStop message.StopReason = message.StopEnd
	retrier := retry.New(l.cfg.RetryConfig, l.cfg.Switcher)

	// pendingPrelude carries messages that were drained from the queue
	// mid-dispatch (because they arrived while tool calls were still
	// running) forward to the next TurnStart, without re-draining the
	// queue for them — they are already gone from it.
	var pendingPrelude []message.Message

	for {
		stream.Push(Event{Type: EventTurnStart})

		if ctx.Err() != nil {
			finalStop = message.StopAborted
			break
		}

		prelude := append(pendingPrelude, l.drainQueued(l.cfg.QueueMode)...)
		pendingPrelude = nil
		for _, m := range prelude {
			if _, err := sess.AppendMessage(m); err != nil {
				stream.PushTerminal(Event{Type: EventAgentEnd, Err: err}, RunResult{Messages: newMessages, StopReason: message.StopError}, err)
				return
			}
			stream.Push(Event{Type: EventMessageStart, Message: &m})
			stream.Push(Event{Type: EventMessageEnd, Message: &m})
			newMessages = append(newMessages, m)
		}

		entries, err := sess.GetContext()
		if err != nil {
			stream.PushTerminal(Event{Type: EventAgentEnd, Err: err}, RunResult{Messages: newMessages, StopReason: message.StopError}, err)
			return
		}
		req := llmclient.Request{
			SystemPrompt: l.cfg.SystemPrompt,
			Messages:     toMessages(entries),
			Tools:        l.declareTools(),
		}

		asst, streamErr, aborted := l.streamTurn(ctx, stream, req, retrier)
		if aborted {
			finalStop = message.StopAborted
			asst.StopReason = message.StopAborted
			am := message.Message{Role: message.RoleAssistant, Timestamp: time.Now(), Assistant: &asst}
			sess.AppendMessage(am)
			stream.Push(Event{Type: EventMessageEnd, Message: &am})
			newMessages = append(newMessages, am)
			break
		}
		if streamErr != nil {
			finalStop = message.StopError
			stream.PushTerminal(Event{Type: EventAgentEnd, Err: streamErr}, RunResult{Messages: newMessages, StopReason: finalStop}, streamErr)
			return
		}

		am := message.Message{Role: message.RoleAssistant, Timestamp: time.Now(), Assistant: &asst}
		if _, err := sess.AppendMessage(am); err != nil {
			stream.PushTerminal(Event{Type: EventAgentEnd, Err: err}, RunResult{Messages: newMessages, StopReason: message.StopError}, err)
			return
		}
		stream.Push(Event{Type: EventMessageEnd, Message: &am})
		newMessages = append(newMessages, am)

		if asst.StopReason != message.StopToolUse {
			if l.cfg.HasPendingFollowUp != nil && l.cfg.HasPendingFollowUp() {
				stream.Push(Event{Type: EventTurnEnd})
				continue
			}
			finalStop = asst.StopReason
			stream.Push(Event{Type: EventTurnEnd})
			break
		}

		results, skipped := l.dispatchTools(ctx, sess, stream, &asst)
		newMessages = append(newMessages, results...)
		pendingPrelude = skipped
		stream.Push(Event{Type: EventTurnEnd})

		if ctx.Err() != nil {
			finalStop = message.StopAborted
			break
		}
	}

	stream.PushTerminal(Event{Type: EventAgentEnd}, RunResult{Messages: newMessages, StopReason: finalStop}, nil)
}

// streamTurn requests one model response, forwarding deltas as
// MessageUpdate events and applying the retry protocol to transient
// failures. aborted is true when the edit-preview guard or context
// cancellation cut the stream short; in that case asst is the
// best-effort partial message assembled so far.
func (l *Loop) streamTurn(ctx context.Context, stream *eventstream.Stream[Event, RunResult], req llmclient.Request, retrier *retry.Retrier) (asst message.AssistantMessage, err error, aborted bool) {
	for {
		streamCtx, cancel := context.WithCancel(ctx)
		guard := newEditGuard(l.cfg.EditRoot, l.cfg.EditCache)

		modelStream, startErr := l.cfg.Client.Stream(streamCtx, l.cfg.ModelID, req)
		if startErr != nil {
			cancel()
			if shouldRetry, start, end := retrier.HandleError(startErr.Error()); shouldRetry {
				stream.Push(Event{Type: EventAutoRetryStart, RetryStart: &start})
				if sleepErr := retrySleep(ctx, time.Duration(start.DelayMs)*time.Millisecond); sleepErr != nil {
					return asst, sleepErr, false
				}
				continue
			} else if end != nil {
				stream.Push(Event{Type: EventAutoRetryEnd, RetryEnd: end})
				return asst, startErr, false
			}
			return asst, startErr, false
		}

		sub, unsub := modelStream.Subscribe()
		stream.Push(Event{Type: EventMessageStart})
	drain:
		for ev := range sub {
			partial := ev.Partial
			asst = partial
			stream.Push(Event{Type: EventMessageUpdate, Assistant: &partial})

			if ev.Type == llmclient.EventToolCallStart || ev.Type == llmclient.EventToolCallDelta || ev.Type == llmclient.EventToolCallEnd {
				if ev.ToolCallName == editToolName && !guard.check(ev) {
					cancel()
					break drain
				}
			}
		}
		unsub()
		cancel()

		finalAsst, resultErr := modelStream.Result()
		if ctx.Err() != nil {
			return finalAsst, nil, true
		}
		if guard.aborted {
			return finalAsst, nil, true
		}

		errText := errorText(finalAsst, resultErr)
		if errText == "" {
			if end := retrier.Succeeded(); end != nil {
				stream.Push(Event{Type: EventAutoRetryEnd, RetryEnd: end})
			}
			return finalAsst, nil, false
		}

		if retryNow, start, end := retrier.HandleError(errText); retryNow {
			stream.Push(Event{Type: EventAutoRetryStart, RetryStart: &start})
			if sleepErr := retrySleep(ctx, time.Duration(start.DelayMs)*time.Millisecond); sleepErr != nil {
				return finalAsst, sleepErr, false
			}
			continue
		} else if end != nil {
			stream.Push(Event{Type: EventAutoRetryEnd, RetryEnd: end})
			return finalAsst, resultErr, false
		}
		return finalAsst, resultErr, false
	}
}

func errorText(asst message.AssistantMessage, resultErr error) string {
	if resultErr != nil {
		return resultErr.Error()
	}
	if asst.StopReason == message.StopError {
		return asst.ErrorMessage
	}
	return ""
}

var retrySleep = retry.Sleep

// dispatchTools runs every tool call in asst, in textual order, appending
// a ToolResult message to the journal for each. It stops early, skipping
// the remaining calls with a synthesized error result, as soon as a
// queued user message arrives.
func (l *Loop) dispatchTools(ctx context.Context, sess *journal.Session, stream *eventstream.Stream[Event, RunResult], asst *message.AssistantMessage) (results []message.Message, queuedPending []message.Message) {
	calls := asst.ToolCalls()
	skipRest := false

	for i, call := range calls {
		if skipRest {
			results = append(results, l.appendToolResult(sess, stream, call.ID, call.Name, tools.TextResult("Skipped due to queued user message.", true)))
			continue
		}

		if ctx.Err() != nil {
			results = append(results, l.appendToolResult(sess, stream, call.ID, call.Name, tools.TextResult("Cancelled.", true)))
			continue
		}

		stream.Push(Event{Type: EventToolExecutionStart, ToolCallID: call.ID, ToolName: call.Name})

		res := l.execute(ctx, call, stream)

		stream.Push(Event{Type: EventToolExecutionEnd, ToolCallID: call.ID, ToolName: call.Name, Result: &res})
		results = append(results, l.appendToolResult(sess, stream, call.ID, call.Name, res))

		if i < len(calls)-1 {
			if queued := l.drainQueued(QueueModeOne); len(queued) > 0 {
				queuedPending = queued
				skipRest = true
			}
		}
	}
	return results, queuedPending
}

func (l *Loop) execute(ctx context.Context, call message.ToolCallBlock, stream *eventstream.Stream[Event, RunResult]) tools.Result {
	tool, ok := l.cfg.Tools.Get(call.Name)
	if !ok {
		return tools.TextResult(fmt.Sprintf("unknown tool %q", call.Name), true)
	}
	if err := tools.ValidateArguments(tool, call.Input); err != nil {
		return tools.TextResult(err.Error(), true)
	}

	onPartial := func(text string) {
		stream.Push(Event{Type: EventToolExecutionUpdate, ToolCallID: call.ID, ToolName: call.Name, Text: text})
	}
	res, err := tool.Execute(ctx, call.ID, call.Input, onPartial)
	if err != nil {
		return tools.TextResult(err.Error(), true)
	}
	return res
}

func (l *Loop) appendToolResult(sess *journal.Session, stream *eventstream.Stream[Event, RunResult], toolCallID, toolName string, res tools.Result) message.Message {
	m := message.Message{
		Role:      message.RoleTool,
		Timestamp: time.Now(),
		ToolResult: &message.ToolResultMessage{
			ToolCallID: toolCallID,
			ToolName:   toolName,
			Content:    res.Content,
			IsError:    res.IsError,
			Details:    res.Details,
		},
	}
	sess.AppendMessage(m)
	stream.Push(Event{Type: EventMessageStart, Message: &m})
	stream.Push(Event{Type: EventMessageEnd, Message: &m})
	return m
}

func (l *Loop) drainQueued(mode QueueMode) []message.Message {
	if l.cfg.GetQueued == nil {
		return nil
	}
	return l.cfg.GetQueued(mode)
}

func (l *Loop) declareTools() []llmclient.Tool {
	if l.cfg.Tools == nil {
		return nil
	}
	var decls []llmclient.Tool
	for _, t := range l.cfg.Tools.List() {
		decls = append(decls, llmclient.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.ParametersSchema(),
		})
	}
	return decls
}

// toMessages projects journal entries onto the plain message list a
// Request carries, dropping journal-native entries (model/mode changes,
// labels, session info) that have no message representation.
func toMessages(entries []journal.Entry) []message.Message {
	var out []message.Message
	for _, e := range entries {
		if e.Type == journal.EntryMessage && e.Message != nil {
			out = append(out, *e.Message)
		}
	}
	return out
}
