package session

import (
	"context"
	"testing"

	"github.com/mariozechner/agentcore/pkg/agent"
	"github.com/mariozechner/agentcore/pkg/compaction"
	"github.com/mariozechner/agentcore/pkg/eventstream"
	"github.com/mariozechner/agentcore/pkg/journal"
	"github.com/mariozechner/agentcore/pkg/llmclient"
	"github.com/mariozechner/agentcore/pkg/message"
	"github.com/mariozechner/agentcore/pkg/retry"
	"github.com/mariozechner/agentcore/pkg/tools"
)

type scriptedClient struct {
	models    []llmclient.ModelInfo
	responses []message.AssistantMessage
	calls     int
}

func (c *scriptedClient) Name() string { return "fake" }
func (c *scriptedClient) List(ctx context.Context) ([]llmclient.ModelInfo, error) {
	return c.models, nil
}
func (c *scriptedClient) Stream(ctx context.Context, modelID string, req llmclient.Request) (*eventstream.Stream[llmclient.Event, message.AssistantMessage], error) {
	idx := c.calls
	c.calls++
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	asst := c.responses[idx]
	s := eventstream.New[llmclient.Event, message.AssistantMessage]()
	go s.PushTerminal(llmclient.Event{Type: llmclient.EventDone, Partial: asst}, asst, nil)
	return s, nil
}

func textAsst(text string) message.AssistantMessage {
	return message.AssistantMessage{Content: message.TextBlocks(text), StopReason: message.StopEnd, Model: "fake-model"}
}

func newTestFacade(t *testing.T, client *scriptedClient) *Facade {
	t.Helper()
	dir := t.TempDir()
	mgr := journal.NewManager(dir, nil)
	sess, err := mgr.NewSession(dir, "sys", "fake-model", "fake", "")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	agentCfg := agent.Config{Client: client, ModelID: "fake-model", Tools: tools.NewRegistry(), RetryConfig: retry.DefaultConfig}
	compactCfg := compaction.Config{Client: client, DefaultModelID: "fake-model", RetryConfig: retry.DefaultConfig}
	return New(mgr, sess, agentCfg, compactCfg)
}

func TestFacade_PromptRunsLoopAndAppendsMessages(t *testing.T) {
	client := &scriptedClient{
		models:    []llmclient.ModelInfo{{ID: "fake-model", MaxTokens: 100000}},
		responses: []message.AssistantMessage{textAsst("hello there")},
	}
	f := newTestFacade(t, client)

	stream, err := f.Prompt(context.Background(), "hi", PromptOptions{})
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	result, err := stream.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if result.StopReason != message.StopEnd {
		t.Errorf("StopReason = %s, want end", result.StopReason)
	}

	ctx, err := f.Session().GetContext()
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if len(ctx) != 2 {
		t.Fatalf("journal has %d entries, want 2 (user, asst)", len(ctx))
	}
}

func TestFacade_PromptWhileRunningRequiresStreamingBehavior(t *testing.T) {
	f := newTestFacade(t, &scriptedClient{
		models:    []llmclient.ModelInfo{{ID: "fake-model", MaxTokens: 100000}},
		responses: []message.AssistantMessage{textAsst("ok")},
	})

	f.mu.Lock()
	f.running = true
	f.mu.Unlock()

	if _, err := f.Prompt(context.Background(), "another", PromptOptions{}); err == nil {
		t.Fatal("expected Prompt to reject a concurrent prompt without a StreamingBehavior")
	}
	if _, err := f.Prompt(context.Background(), "another", PromptOptions{StreamingBehavior: BehaviorSteer}); err != nil {
		t.Fatalf("expected Prompt to queue as a steer, got error: %v", err)
	}
	if f.queue.Len() != 1 {
		t.Fatalf("queue length = %d, want 1", f.queue.Len())
	}
}

func TestFacade_ForkCopiesEntries(t *testing.T) {
	client := &scriptedClient{
		models:    []llmclient.ModelInfo{{ID: "fake-model", MaxTokens: 100000}},
		responses: []message.AssistantMessage{textAsst("hello")},
	}
	f := newTestFacade(t, client)
	stream, err := f.Prompt(context.Background(), "hi", PromptOptions{})
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	if _, err := stream.Result(); err != nil {
		t.Fatalf("Result: %v", err)
	}

	forkedID, err := f.Fork()
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if forkedID == f.Session().ID() {
		t.Fatal("expected Fork to return a new session ID")
	}
}

func TestFacade_BranchMovesLeaf(t *testing.T) {
	f := newTestFacade(t, &scriptedClient{models: []llmclient.ModelInfo{{ID: "fake-model"}}})
	sess := f.Session()
	id1, _ := sess.AppendMessage(message.Message{Role: message.RoleUser, User: &message.UserMessage{Content: message.TextBlocks("one")}})
	sess.AppendMessage(message.Message{Role: message.RoleUser, User: &message.UserMessage{Content: message.TextBlocks("two")}})

	if err := f.Branch(id1); err != nil {
		t.Fatalf("Branch: %v", err)
	}
	ctx, err := sess.GetContext()
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if len(ctx) != 1 || ctx[0].ID != id1 {
		t.Fatalf("expected leaf to move to id1, got %+v", ctx)
	}
}

func TestFacade_CompactSkippedOnShortBranch(t *testing.T) {
	client := &scriptedClient{models: []llmclient.ModelInfo{{ID: "fake-model", MaxTokens: 100000}}}
	f := newTestFacade(t, client)
	f.Session().AppendMessage(message.Message{Role: message.RoleUser, User: &message.UserMessage{Content: message.TextBlocks("hi")}})

	ran, err := f.Compact(context.Background(), "")
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if ran {
		t.Fatal("expected Compact to skip on a short branch")
	}
}

func TestFacade_HandoffSeedsNewSessionWithDocument(t *testing.T) {
	client := &scriptedClient{
		models:    []llmclient.ModelInfo{{ID: "fake-model", MaxTokens: 100000}},
		responses: []message.AssistantMessage{textAsst("continuation document body")},
	}
	f := newTestFacade(t, client)

	newID, err := f.Handoff(context.Background(), "")
	if err != nil {
		t.Fatalf("Handoff: %v", err)
	}
	if newID == f.Session().ID() {
		t.Fatal("expected Handoff to open a distinct new session")
	}

	next, err := f.mgr.LoadSession(newID)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	defer next.Close()
	ctx, err := next.GetContext()
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if len(ctx) != 1 || ctx[0].Message.User.Content[0].Text.Text != "continuation document body" {
		t.Fatalf("expected the new session to be seeded with the continuation document, got %+v", ctx)
	}
}
