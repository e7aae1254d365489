// Package compaction summarizes an old prefix of a session's branch when
// context grows past a threshold or a model reports a context-overflow
// error, splicing the summary into the journal so the in-memory message
// list shrinks without losing the session's history on disk.
package compaction

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mariozechner/agentcore/pkg/journal"
	"github.com/mariozechner/agentcore/pkg/llmclient"
	"github.com/mariozechner/agentcore/pkg/message"
	"github.com/mariozechner/agentcore/pkg/retry"
)

// Config tunes one compactor.
type Config struct {
	Client            llmclient.Client
	DefaultModelID    string
	CompactionModelID string // role-specific override; empty uses DefaultModelID

	ThresholdRatio       float64 // auto-compact once usage/contextWindow reaches this
	MinTokensToSummarize int     // below this, compaction is skipped as not worthwhile
	OversizeBytes        int     // a ToolResult text body at or above this is prunable
	RetentionWindow      int     // the most recent N entries are never pruned

	RetryConfig retry.Config
	Switcher    retry.CredentialSwitcher
}

// DefaultConfig: compact at 60% of the context window, skip
// prefixes estimated under 500 tokens, and never prune a tool output
// from the most recent 6 entries.
var DefaultConfig = Config{
	ThresholdRatio:       0.6,
	MinTokensToSummarize: 500,
	OversizeBytes:        4000,
	RetentionWindow:      6,
	RetryConfig:          retry.DefaultConfig,
}

// ShouldCompact reports whether usageTokens against contextWindow crosses
// cfg's threshold ratio.
func ShouldCompact(cfg Config, usageTokens, contextWindow int) bool {
	if contextWindow <= 0 {
		return false
	}
	ratio := cfg.ThresholdRatio
	if ratio <= 0 {
		ratio = DefaultConfig.ThresholdRatio
	}
	return float64(usageTokens)/float64(contextWindow) >= ratio
}

var overflowPattern = regexp.MustCompile(`(?i)context_length_exceeded|maximum context length|context window|context overflow|too many tokens|prompt is too long`)

// IsOverflowError reports whether errMsg matches the host LLM's
// context-overflow signal.
func IsOverflowError(errMsg string) bool {
	return overflowPattern.MatchString(errMsg)
}

// EstimateTokens applies a char/4 heuristic, summed over every message
// entry's text content.
func EstimateTokens(entries []journal.Entry) int {
	chars := 0
	for _, e := range entries {
		if e.Type != journal.EntryMessage || e.Message == nil {
			continue
		}
		chars += messageChars(*e.Message)
	}
	return chars / 4
}

func messageChars(m message.Message) int {
	switch m.Role {
	case message.RoleUser:
		return blocksChars(m.User.Content)
	case message.RoleAssistant:
		return blocksChars(m.Assistant.Content)
	case message.RoleTool:
		return blocksChars(m.ToolResult.Content)
	case message.RoleBashExecution:
		return len(m.BashExecution.Command) + len(m.BashExecution.Output)
	case message.RolePythonExecution:
		return len(m.PythonExecution.Code) + len(m.PythonExecution.Output)
	case message.RoleCompactionSummary:
		return len(m.CompactionSummary.Summary)
	case message.RoleBranchSummary:
		return len(m.BranchSummary.Summary)
	default:
		return 0
	}
}

func blocksChars(blocks []message.Block) int {
	n := 0
	for _, b := range blocks {
		switch b.Type {
		case message.BlockText:
			if b.Text != nil {
				n += len(b.Text.Text)
			}
		case message.BlockThinking:
			if b.Thinking != nil {
				n += len(b.Thinking.Text)
			}
		case message.BlockToolCall:
			if b.ToolCall != nil {
				n += len(b.ToolCall.Name) + len(fmt.Sprint(b.ToolCall.Input))
			}
		}
	}
	return n
}

// Preparation is the result of partitioning a branch for compaction.
type Preparation struct {
	ToSummarize      []journal.Entry
	FirstKeptEntryID string
	TokensBefore     int
}

// Prepare partitions branch into a prefix to summarize and a kept
// trailing window, choosing the split point so no Assistant tool-call
// message is ever separated from its ToolResult. It reports ok=false
// when the branch is too short, or the candidate prefix is too small to
// be worth summarizing, in which case compaction should be skipped.
func Prepare(cfg Config, branch []journal.Entry) (Preparation, bool) {
	if len(branch) < 10 {
		return Preparation{}, false
	}

	idx := safeSplit(branch, len(branch)/2)
	if idx <= 1 || idx >= len(branch) {
		return Preparation{}, false
	}

	toSummarize := branch[:idx]
	minTokens := cfg.MinTokensToSummarize
	if minTokens <= 0 {
		minTokens = DefaultConfig.MinTokensToSummarize
	}
	tokens := EstimateTokens(toSummarize)
	if tokens < minTokens {
		return Preparation{}, false
	}

	return Preparation{
		ToSummarize:      toSummarize,
		FirstKeptEntryID: branch[idx].ID,
		TokensBefore:     tokens,
	}, true
}

// safeSplit walks idx backward until it no longer separates an Assistant
// message with outstanding tool calls from its ToolResult.
func safeSplit(branch []journal.Entry, idx int) int {
	for idx > 0 && idx < len(branch) {
		cur := branch[idx]
		if isToolResult(cur) {
			idx--
			continue
		}
		if idx > 0 && isPendingToolCall(branch[idx-1]) {
			idx--
			continue
		}
		break
	}
	return idx
}

func isToolResult(e journal.Entry) bool {
	return e.Type == journal.EntryMessage && e.Message != nil && e.Message.Role == message.RoleTool
}

func isPendingToolCall(e journal.Entry) bool {
	return e.Type == journal.EntryMessage && e.Message != nil && e.Message.Role == message.RoleAssistant &&
		e.Message.Assistant != nil && e.Message.Assistant.StopReason == message.StopToolUse
}

// PruneOversized returns a copy of entries with ToolResult content bodies
// at or above cfg.OversizeBytes replaced by a short marker, skipping the
// most recent cfg.RetentionWindow entries, along with the number of
// entries actually rewritten. This lets a large prefix drop below
// MinTokensToSummarize without ever calling the model.
func PruneOversized(cfg Config, entries []journal.Entry) ([]journal.Entry, int) {
	oversize := cfg.OversizeBytes
	if oversize <= 0 {
		oversize = DefaultConfig.OversizeBytes
	}
	retain := cfg.RetentionWindow
	if retain <= 0 {
		retain = DefaultConfig.RetentionWindow
	}
	cutoff := len(entries) - retain

	out := make([]journal.Entry, len(entries))
	copy(out, entries)
	prunedCount := 0
	for i := range out {
		if i >= cutoff {
			continue
		}
		e := out[i]
		if e.Type != journal.EntryMessage || e.Message == nil || e.Message.Role != message.RoleTool {
			continue
		}
		if blocksChars(e.Message.ToolResult.Content) < oversize {
			continue
		}
		pruned := *e.Message
		result := *pruned.ToolResult
		result.Content = message.TextBlocks("[pruned: oversized tool output omitted from compaction]")
		pruned.ToolResult = &result
		e.Message = &pruned
		out[i] = e
		prunedCount++
	}
	return out, prunedCount
}

// SelectModel implements the compaction model fallback chain: the
// role-specific compaction model if present in available, else the
// default role model if present, else whichever available model has the
// largest context window.
func SelectModel(cfg Config, available []llmclient.ModelInfo) string {
	if cfg.CompactionModelID != "" && containsModel(available, cfg.CompactionModelID) {
		return cfg.CompactionModelID
	}
	if cfg.DefaultModelID != "" && containsModel(available, cfg.DefaultModelID) {
		return cfg.DefaultModelID
	}
	if len(available) == 0 {
		return cfg.DefaultModelID
	}
	best := available[0]
	for _, m := range available[1:] {
		if m.MaxTokens > best.MaxTokens {
			best = m
		}
	}
	return best.ID
}

func containsModel(available []llmclient.ModelInfo, id string) bool {
	for _, m := range available {
		if m.ID == id {
			return true
		}
	}
	return false
}

const summarizationSystemPrompt = "You are a conversation summarizer for a coding agent's session history."

// BuildPrompt renders toSummarize into the summarization request text,
// optionally folding in custom instructions and extension-provided extra
// context.
func BuildPrompt(toSummarize []journal.Entry, customInstructions, extraContext string) string {
	var b strings.Builder
	b.WriteString("Summarize the following conversation history for context compaction. ")
	b.WriteString("Preserve key decisions and outcomes, files created or modified, the current state of any ongoing tasks, ")
	b.WriteString("and any instructions or preferences the user expressed. Be thorough but dense.\n\n")
	b.WriteString("Respond with a single short line first (the short summary), then a blank line, ")
	b.WriteString("then the full detailed summary.\n\n")
	if customInstructions != "" {
		b.WriteString("Additional instructions: " + customInstructions + "\n\n")
	}
	if extraContext != "" {
		b.WriteString("Additional context: " + extraContext + "\n\n")
	}
	b.WriteString("CONVERSATION:\n")
	for _, e := range toSummarize {
		if e.Type != journal.EntryMessage || e.Message == nil {
			continue
		}
		b.WriteString(renderEntryLine(*e.Message))
	}
	return b.String()
}

func renderEntryLine(m message.Message) string {
	switch m.Role {
	case message.RoleUser:
		return fmt.Sprintf("[user] %s\n", blocksText(m.User.Content))
	case message.RoleAssistant:
		text := blocksText(m.Assistant.Content)
		for _, c := range m.Assistant.ToolCalls() {
			text += fmt.Sprintf(" [calls %s(%v)]", c.Name, c.Input)
		}
		return fmt.Sprintf("[assistant] %s\n", text)
	case message.RoleTool:
		return fmt.Sprintf("[tool:%s] %s\n", m.ToolResult.ToolName, blocksText(m.ToolResult.Content))
	case message.RoleBashExecution:
		return fmt.Sprintf("[bash] %s -> %s\n", m.BashExecution.Command, m.BashExecution.Output)
	case message.RolePythonExecution:
		return fmt.Sprintf("[python] %s -> %s\n", m.PythonExecution.Code, m.PythonExecution.Output)
	default:
		return ""
	}
}

func blocksText(blocks []message.Block) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == message.BlockText && b.Text != nil {
			parts = append(parts, b.Text.Text)
		}
	}
	return strings.Join(parts, " ")
}

// Result is the outcome of a Summarize call.
type Result struct {
	Summary      string
	ShortSummary string
}

// Summarize invokes the model chosen by SelectModel with BuildPrompt's
// rendering of toSummarize, retrying transient failures per cfg.RetryConfig.
func Summarize(ctx context.Context, cfg Config, toSummarize []journal.Entry, customInstructions, extraContext string) (Result, error) {
	available, err := cfg.Client.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("compaction: listing models: %w", err)
	}
	modelID := SelectModel(cfg, available)

	prompt := BuildPrompt(toSummarize, customInstructions, extraContext)
	req := llmclient.Request{
		SystemPrompt: summarizationSystemPrompt,
		Messages: []message.Message{{
			Role: message.RoleUser,
			User: &message.UserMessage{Content: message.TextBlocks(prompt), Synthetic: true},
		}},
	}

	retrier := retry.New(cfg.RetryConfig, cfg.Switcher)
	for {
		stream, startErr := cfg.Client.Stream(ctx, modelID, req)
		if startErr != nil {
			if !retryOrSwitch(ctx, retrier, &modelID, available, startErr.Error()) {
				return Result{}, startErr
			}
			continue
		}
		asst, resultErr := stream.Result()
		errText := ""
		if resultErr != nil {
			errText = resultErr.Error()
		} else if asst.StopReason == message.StopError {
			errText = asst.ErrorMessage
		}
		if errText == "" {
			return parseSummary(asst.Text()), nil
		}
		if !retryOrSwitch(ctx, retrier, &modelID, available, errText) {
			if resultErr != nil {
				return Result{}, resultErr
			}
			return Result{}, fmt.Errorf("compaction: %s", errText)
		}
	}
}

// retryOrSwitch applies the retry protocol to one failed attempt. It
// returns false when the caller should give up (non-retryable error, or
// retries exhausted). When the computed delay exceeds 30s and another
// candidate model is available, it switches modelID instead of waiting.
func retryOrSwitch(ctx context.Context, retrier *retry.Retrier, modelID *string, available []llmclient.ModelInfo, errMsg string) bool {
	shouldRetry, start, _ := retrier.HandleError(errMsg)
	if !shouldRetry {
		return false
	}
	delay := time.Duration(start.DelayMs) * time.Millisecond
	if delay > 30*time.Second {
		if alt := otherModel(available, *modelID); alt != "" {
			*modelID = alt
			return true
		}
	}
	return retry.Sleep(ctx, delay) == nil
}

func otherModel(available []llmclient.ModelInfo, current string) string {
	sorted := append([]llmclient.ModelInfo(nil), available...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MaxTokens > sorted[j].MaxTokens })
	for _, m := range sorted {
		if m.ID != current {
			return m.ID
		}
	}
	return ""
}

func parseSummary(text string) Result {
	parts := strings.SplitN(strings.TrimSpace(text), "\n\n", 2)
	if len(parts) == 2 {
		return Result{ShortSummary: strings.TrimSpace(parts[0]), Summary: strings.TrimSpace(parts[1])}
	}
	return Result{Summary: strings.TrimSpace(text)}
}

// Splice appends the compaction entry to sess, the step that actually
// shrinks GetContext's projection going forward.
func Splice(sess *journal.Session, prep Preparation, res Result) (string, error) {
	return sess.AppendCompaction(res.Summary, res.ShortSummary, prep.FirstKeptEntryID, prep.TokensBefore)
}

// Run performs one full compaction cycle: prepare, optionally prune first
// to see if pruning alone drops the prefix below the summarization
// threshold, summarize if still needed, and splice. It returns false
// (with no error) when compaction was skipped because the branch did not
// warrant it.
func Run(ctx context.Context, cfg Config, sess *journal.Session, customInstructions, extraContext string) (bool, error) {
	branch, err := sess.GetContext()
	if err != nil {
		return false, err
	}
	prep, ok := Prepare(cfg, branch)
	if !ok {
		return false, nil
	}

	pruned, prunedCount := PruneOversized(cfg, prep.ToSummarize)
	prunedTokens := EstimateTokens(pruned)
	minTokens := cfg.MinTokensToSummarize
	if minTokens <= 0 {
		minTokens = DefaultConfig.MinTokensToSummarize
	}
	if prunedTokens < minTokens {
		res := Result{Summary: fmt.Sprintf("Pruned %d oversized tool outputs; remaining history was too small to warrant a model summary.", prunedCount)}
		if _, err := Splice(sess, prep, res); err != nil {
			return false, err
		}
		return true, nil
	}

	res, err := Summarize(ctx, cfg, pruned, customInstructions, extraContext)
	if err != nil {
		return false, err
	}
	if _, err := Splice(sess, prep, res); err != nil {
		return false, err
	}
	return true, nil
}
