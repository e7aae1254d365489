package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileTool_CreatesDirsAndWrites(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "out.txt")

	tool := &WriteFileTool{}
	res, err := tool.Execute(context.Background(), "call1", map[string]any{
		"path":    target,
		"content": "hello world",
	}, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %+v", res)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("file content = %q", data)
	}
}

func TestReadFileTool_ReadsBack(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "in.txt")
	if err := os.WriteFile(target, []byte("contents"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tool := &ReadFileTool{}
	res, err := tool.Execute(context.Background(), "call1", map[string]any{"path": target}, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError || res.Content[0].Text.Text != "contents" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestReadFileTool_MissingFileReturnsErrorResult(t *testing.T) {
	tool := &ReadFileTool{}
	res, err := tool.Execute(context.Background(), "call1", map[string]any{"path": "/nope/missing.txt"}, nil)
	if err != nil {
		t.Fatalf("Execute returned a Go error instead of an error Result: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected IsError true for a missing file")
	}
}

func TestListFilesTool_ListsEntries(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	tool := &ListFilesTool{}
	res, err := tool.Execute(context.Background(), "call1", map[string]any{"path": dir}, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	listed := res.Content[0].Text.Text
	if !strings.Contains(listed, "a.txt") || !strings.Contains(listed, "sub/") {
		t.Errorf("listing = %q, missing expected entries", listed)
	}
}
