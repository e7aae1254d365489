package sandbox

import (
	"context"
	"testing"

	"github.com/mariozechner/agentcore/pkg/message"
)

type fakeManager struct {
	lastLang Language
	lastCode string
	result   *Result
	err      error
}

func (m *fakeManager) Run(ctx context.Context, sessionID string, lang Language, code string) (*Result, error) {
	m.lastLang = lang
	m.lastCode = code
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}
func (m *fakeManager) Stop(ctx context.Context, sessionID string) error { return nil }
func (m *fakeManager) Close() error                                    { return nil }

func TestBashTool_RecordsExecutionAndReturnsToolResult(t *testing.T) {
	mgr := &fakeManager{result: &Result{Stdout: "hi\n", ExitCode: 0}}
	var recorded []message.Message
	tool := &BashTool{Mgr: mgr, SessionID: "s1", Record: func(m message.Message) (string, error) {
		recorded = append(recorded, m)
		return "id1", nil
	}}

	res, err := tool.Execute(context.Background(), "call1", map[string]any{"command": "echo hi"}, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("expected success, got error result: %+v", res)
	}
	if mgr.lastLang != LanguageBash || mgr.lastCode != "echo hi" {
		t.Fatalf("manager invoked with lang=%v code=%q", mgr.lastLang, mgr.lastCode)
	}
	if len(recorded) != 1 || recorded[0].Role != message.RoleBashExecution {
		t.Fatalf("expected one BashExecution entry to be recorded, got %+v", recorded)
	}
	if recorded[0].BashExecution.Command != "echo hi" || recorded[0].BashExecution.Output != "hi\n" {
		t.Fatalf("recorded execution mismatch: %+v", recorded[0].BashExecution)
	}
}

func TestBashTool_NonZeroExitIsAnErrorResult(t *testing.T) {
	mgr := &fakeManager{result: &Result{Stderr: "boom", ExitCode: 1}}
	tool := &BashTool{Mgr: mgr, SessionID: "s1"}

	res, err := tool.Execute(context.Background(), "call1", map[string]any{"command": "false"}, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected a non-zero exit code to produce an error result")
	}
}

func TestPythonTool_RecordsExecution(t *testing.T) {
	mgr := &fakeManager{result: &Result{Stdout: "4\n", ExitCode: 0}}
	var recorded []message.Message
	tool := &PythonTool{Mgr: mgr, SessionID: "s1", Record: func(m message.Message) (string, error) {
		recorded = append(recorded, m)
		return "id1", nil
	}}

	_, err := tool.Execute(context.Background(), "call1", map[string]any{"code": "2 + 2"}, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if mgr.lastLang != LanguagePython || mgr.lastCode != "2 + 2" {
		t.Fatalf("manager invoked with lang=%v code=%q", mgr.lastLang, mgr.lastCode)
	}
	if len(recorded) != 1 || recorded[0].Role != message.RolePythonExecution {
		t.Fatalf("expected one PythonExecution entry to be recorded, got %+v", recorded)
	}
}

func TestSandboxTool_ManagerErrorProducesErrorResultNotGoError(t *testing.T) {
	mgr := &fakeManager{err: context.DeadlineExceeded}
	tool := &BashTool{Mgr: mgr, SessionID: "s1"}

	res, err := tool.Execute(context.Background(), "call1", map[string]any{"command": "echo hi"}, nil)
	if err != nil {
		t.Fatalf("Execute should surface sandbox errors as a Result, not a Go error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected an error result when the sandbox manager fails")
	}
}
