// Package session exposes the public, idempotent operation surface above
// one journal session and its agent loop: prompt, steer, followUp, abort,
// switchSession, fork, branch, navigateTree, compact, and handoff. All
// operations are async with respect to an in-flight turn; Facade itself
// serializes access to its session and run state.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mariozechner/agentcore/pkg/agent"
	"github.com/mariozechner/agentcore/pkg/compaction"
	"github.com/mariozechner/agentcore/pkg/eventstream"
	"github.com/mariozechner/agentcore/pkg/journal"
	"github.com/mariozechner/agentcore/pkg/message"
)

// StreamingBehavior selects what Prompt does when a turn is already
// streaming: queue the new message as a steer (observed mid-turn, between
// tool calls, skipping the rest of that turn's remaining calls) or as a
// follow-up (observed only once the turn completes, forcing one more
// turn at the next TurnStart even if the current one would otherwise
// end the run). Both land on the same underlying queue, tagged with the
// behavior that gives them their distinct timing.
type StreamingBehavior string

const (
	BehaviorSteer    StreamingBehavior = "steer"
	BehaviorFollowUp StreamingBehavior = "followUp"
)

// PromptOptions configures one Prompt call.
type PromptOptions struct {
	Images            []message.Block
	Synthetic         bool
	StreamingBehavior StreamingBehavior
}

// Facade owns one active session, its message queue, and the agent.Config
// used to drive runs against it.
type Facade struct {
	mgr        *journal.Manager
	agentCfg   agent.Config
	compactCfg compaction.Config
	queue      *agent.MessageQueue

	mu      sync.Mutex
	sess    *journal.Session
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New wires agentCfg's queue callback to a fresh MessageQueue and returns
// a Facade over sess.
func New(mgr *journal.Manager, sess *journal.Session, agentCfg agent.Config, compactCfg compaction.Config) *Facade {
	queue := agent.NewMessageQueue()
	agentCfg.GetQueued = queue.Drain
	agentCfg.HasPendingFollowUp = queue.HasPendingFollowUp
	if agentCfg.QueueMode == "" {
		agentCfg.QueueMode = agent.QueueModeAll
	}
	return &Facade{mgr: mgr, sess: sess, agentCfg: agentCfg, compactCfg: compactCfg, queue: queue}
}

// Session returns the currently active session.
func (f *Facade) Session() *journal.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess
}

// IsRunning reports whether a turn is currently streaming.
func (f *Facade) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Prompt appends a user message and runs the loop. If a turn is already
// streaming, Prompt queues the message per opts.StreamingBehavior instead
// of starting a second concurrent run and returns a nil stream; passing
// no StreamingBehavior while a turn is in flight is rejected.
func (f *Facade) Prompt(ctx context.Context, text string, opts PromptOptions) (*eventstream.Stream[agent.Event, agent.RunResult], error) {
	f.mu.Lock()
	if f.running {
		behavior := opts.StreamingBehavior
		f.mu.Unlock()
		switch behavior {
		case BehaviorSteer:
			return nil, f.Steer(text)
		case BehaviorFollowUp:
			return nil, f.FollowUp(text)
		default:
			return nil, fmt.Errorf("session: a turn is already streaming; pass a StreamingBehavior to queue this message")
		}
	}

	content := append(message.TextBlocks(text), opts.Images...)
	m := message.Message{Role: message.RoleUser, User: &message.UserMessage{Content: content, Synthetic: opts.Synthetic}}
	sess := f.sess
	if _, err := sess.AppendMessage(m); err != nil {
		f.mu.Unlock()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.running = true
	f.done = make(chan struct{})
	f.mu.Unlock()

	stream := agent.New(f.agentCfg).Run(runCtx, sess)
	go f.watch(stream)
	return stream, nil
}

// watch waits for a run to finish, clears the running state, and checks
// whether the finished turn should trigger auto-compaction.
func (f *Facade) watch(stream *eventstream.Stream[agent.Event, agent.RunResult]) {
	result, resultErr := stream.Result()

	f.mu.Lock()
	f.running = false
	f.cancel = nil
	done := f.done
	f.done = nil
	f.mu.Unlock()
	if done != nil {
		close(done)
	}

	if resultErr != nil {
		return
	}
	f.maybeAutoCompact(context.Background(), result)
}

// Abort cancels the in-flight run, if any, and blocks until the loop
// reaches its next idle point.
func (f *Facade) Abort() {
	f.mu.Lock()
	cancel := f.cancel
	done := f.done
	f.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

// Steer queues text onto the loop's message queue as a steer. Pushed
// while a turn is streaming, it is drained one-at-a-time between tool
// calls, cutting the remainder of that turn's tool dispatch short.
func (f *Facade) Steer(text string) error {
	f.queue.Push(message.Message{Role: message.RoleUser, User: &message.UserMessage{Content: message.TextBlocks(text)}}, agent.BehaviorSteer)
	return nil
}

// FollowUp queues text onto the same queue as Steer, tagged so it is
// left untouched while the current turn's tool calls dispatch and is
// drained in full at the next TurnStart. If the current turn ends
// without a tool call — which would otherwise end the run — a pending
// follow-up forces one more turn instead of being dropped.
func (f *Facade) FollowUp(text string) error {
	f.queue.Push(message.Message{Role: message.RoleUser, User: &message.UserMessage{Content: message.TextBlocks(text)}}, agent.BehaviorFollowUp)
	return nil
}

// SwitchSession closes the active session and loads a different one by
// ID, replacing the facade's in-memory session. The loop must be idle.
func (f *Facade) SwitchSession(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return fmt.Errorf("session: cannot switch sessions while a turn is streaming")
	}
	next, err := f.mgr.LoadSession(id)
	if err != nil {
		return err
	}
	f.sess.Close()
	f.sess = next
	return nil
}

// Fork copies the active session's entries into a brand-new session file
// and returns its ID, without changing the facade's active session.
func (f *Facade) Fork() (string, error) {
	f.mu.Lock()
	id := f.sess.ID()
	f.mu.Unlock()

	forked, err := f.mgr.ForkFrom(id)
	if err != nil {
		return "", err
	}
	defer forked.Close()
	return forked.ID(), nil
}

// Branch moves the active session's leaf to entryID without recording a
// summary of the path being left.
func (f *Facade) Branch(entryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess.Branch(entryID)
}

// NavigateTree moves the active session's leaf to targetID. When
// summarize is true, summaryText is recorded as a branch-summary entry
// covering the entries now off-path.
func (f *Facade) NavigateTree(targetID string, summarize bool, summaryText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if summarize {
		_, err := f.sess.BranchWithSummary(targetID, summaryText)
		return err
	}
	return f.sess.Branch(targetID)
}

// Tree returns the active session's full entry forest.
func (f *Facade) Tree() ([]journal.TreeNode, error) {
	f.mu.Lock()
	sess := f.sess
	f.mu.Unlock()
	return sess.GetTree()
}

// Compact manually triggers compaction against the active session. It
// returns false, nil when the branch did not warrant compaction.
func (f *Facade) Compact(ctx context.Context, instructions string) (bool, error) {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return false, fmt.Errorf("session: cannot compact while a turn is streaming")
	}
	sess := f.sess
	f.mu.Unlock()
	return compaction.Run(ctx, f.compactCfg, sess, instructions, "")
}

const handoffPromptTemplate = "Produce a self-contained continuation document for a fresh agent picking up this work: " +
	"summarize what has been done, the current state of any in-progress tasks, key decisions made, and anything the " +
	"next agent needs to know to continue. Respond with the document only, nothing else. %s"

// Handoff prompts the agent to produce a self-contained continuation
// document, then opens a new session whose first message is that
// document, returning the new session's ID.
func (f *Facade) Handoff(ctx context.Context, instructions string) (string, error) {
	prompt := fmt.Sprintf(handoffPromptTemplate, instructions)
	stream, err := f.Prompt(ctx, prompt, PromptOptions{Synthetic: true})
	if err != nil {
		return "", err
	}
	result, err := stream.Result()
	if err != nil {
		return "", err
	}

	var doc string
	for i := len(result.Messages) - 1; i >= 0; i-- {
		if result.Messages[i].Role == message.RoleAssistant && result.Messages[i].Assistant != nil {
			doc = result.Messages[i].Assistant.Text()
			break
		}
	}
	if doc == "" {
		return "", fmt.Errorf("session: handoff produced no continuation document")
	}

	f.mu.Lock()
	header := f.sess.Header()
	parentID := f.sess.ID()
	f.mu.Unlock()

	next, err := f.mgr.NewSession(header.Cwd, header.SystemPrompt, header.ModelID, header.Provider, parentID)
	if err != nil {
		return "", err
	}
	defer next.Close()
	if _, err := next.AppendMessage(message.Message{
		Role: message.RoleUser,
		User: &message.UserMessage{Content: message.TextBlocks(doc), Synthetic: true},
	}); err != nil {
		return "", err
	}
	return next.ID(), nil
}

// maybeAutoCompact inspects a finished turn and runs the threshold or
// overflow compaction trigger if warranted.
func (f *Facade) maybeAutoCompact(ctx context.Context, result agent.RunResult) {
	var lastAsst *message.Message
	for i := len(result.Messages) - 1; i >= 0; i-- {
		if result.Messages[i].Role == message.RoleAssistant && result.Messages[i].Assistant != nil {
			lastAsst = &result.Messages[i]
			break
		}
	}
	if lastAsst == nil {
		return
	}

	if result.StopReason == message.StopError && compaction.IsOverflowError(lastAsst.Assistant.ErrorMessage) {
		if f.shouldTriggerOverflow(*lastAsst) {
			f.runCompactionBestEffort(ctx)
		}
		return
	}

	if result.StopReason != message.StopEnd && result.StopReason != message.StopToolUse {
		return
	}
	if f.checkThresholdTrigger(ctx, *lastAsst) {
		f.runCompactionBestEffort(ctx)
	}
}

// shouldTriggerOverflow applies the two skip rules: suppress the overflow
// trigger when the failing message came from a different model than the
// one currently configured (the user switched since), or when the
// failing message predates the branch's most recent compaction entry
// (it was already handled).
func (f *Facade) shouldTriggerOverflow(lastAsst message.Message) bool {
	if lastAsst.Assistant.Model != "" && lastAsst.Assistant.Model != f.agentCfg.ModelID {
		return false
	}

	f.mu.Lock()
	sess := f.sess
	f.mu.Unlock()

	resolved, err := sess.GetContext()
	if err != nil || len(resolved) == 0 {
		return true
	}
	first := resolved[0]
	if first.Type == journal.EntryMessage && first.Message != nil && first.Message.Role == message.RoleCompactionSummary {
		if lastAsst.Timestamp.Before(first.Message.Timestamp) {
			return false
		}
	}
	return true
}

func (f *Facade) checkThresholdTrigger(ctx context.Context, lastAsst message.Message) bool {
	asst := lastAsst.Assistant
	models, err := f.agentCfg.Client.List(ctx)
	if err != nil {
		return false
	}
	contextWindow := 0
	for _, m := range models {
		if m.ID == asst.Model {
			contextWindow = m.MaxTokens
			break
		}
	}
	if contextWindow == 0 {
		return false
	}
	usage := asst.Usage.InputTokens + asst.Usage.OutputTokens
	return compaction.ShouldCompact(f.compactCfg, usage, contextWindow)
}

func (f *Facade) runCompactionBestEffort(ctx context.Context) {
	f.mu.Lock()
	sess := f.sess
	f.mu.Unlock()

	if _, err := compaction.Run(ctx, f.compactCfg, sess, "", ""); err != nil {
		slog.Error("session: auto-compaction failed", "error", err)
	}
}
