package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/mariozechner/agentcore/pkg/message"
	"github.com/mariozechner/agentcore/pkg/tools"
)

// Recorder appends m to the owning session's journal, returning its entry
// ID. Bash/PythonTool use it to record the raw execution as a
// BashExecution/PythonExecution entry, distinct from the ToolResult
// message the agent loop always appends for the tool call itself.
type Recorder func(m message.Message) (string, error)

// BashTool runs a shell command in a session's sandbox.
type BashTool struct {
	Mgr       Manager
	SessionID string
	Record    Recorder
}

var _ tools.Tool = (*BashTool)(nil)

func (t *BashTool) Name() string { return "bash" }

func (t *BashTool) Description() string {
	return "Run a shell command in a persistent sandbox and return its output."
}

func (t *BashTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string", "description": "The shell command to run."},
		},
		"required": []string{"command"},
	}
}

func (t *BashTool) Execute(ctx context.Context, toolCallID string, args map[string]any, onPartial tools.PartialFunc) (tools.Result, error) {
	command, _ := args["command"].(string)

	res, err := t.Mgr.Run(ctx, t.SessionID, LanguageBash, command)
	if err != nil {
		return tools.TextResult(fmt.Sprintf("sandbox error: %v", err), true), nil
	}

	output := combineOutput(res)
	if t.Record != nil {
		t.Record(message.Message{
			Role:      message.RoleBashExecution,
			Timestamp: time.Now(),
			BashExecution: &message.BashExecution{
				Command:  command,
				Output:   output,
				ExitCode: res.ExitCode,
			},
		})
	}
	return tools.TextResult(output, res.ExitCode != 0), nil
}

// PythonTool runs a Python cell in a session's sandbox, preserving kernel
// state (variables, imports) across calls within the same session.
type PythonTool struct {
	Mgr       Manager
	SessionID string
	Record    Recorder
}

var _ tools.Tool = (*PythonTool)(nil)

func (t *PythonTool) Name() string { return "python" }

func (t *PythonTool) Description() string {
	return "Run a cell of code in a persistent IPython kernel. Variables and imports persist across calls."
}

func (t *PythonTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{"type": "string", "description": "The code to run."},
		},
		"required": []string{"code"},
	}
}

func (t *PythonTool) Execute(ctx context.Context, toolCallID string, args map[string]any, onPartial tools.PartialFunc) (tools.Result, error) {
	code, _ := args["code"].(string)

	res, err := t.Mgr.Run(ctx, t.SessionID, LanguagePython, code)
	if err != nil {
		return tools.TextResult(fmt.Sprintf("sandbox error: %v", err), true), nil
	}

	output := combineOutput(res)
	if t.Record != nil {
		t.Record(message.Message{
			Role:      message.RolePythonExecution,
			Timestamp: time.Now(),
			PythonExecution: &message.PythonExecution{
				Code:     code,
				Output:   output,
				ExitCode: res.ExitCode,
			},
		})
	}
	return tools.TextResult(output, res.ExitCode != 0), nil
}

func combineOutput(res *Result) string {
	if res.Stderr == "" {
		return res.Stdout
	}
	if res.Stdout == "" {
		return res.Stderr
	}
	return res.Stdout + "\n" + res.Stderr
}
