package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// --- List Files Tool ---

type ListFilesTool struct{}

func (t *ListFilesTool) Name() string { return "ls" }

func (t *ListFilesTool) Description() string {
	return "List files in a directory. Arguments: path (string)."
}

func (t *ListFilesTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "The directory path to list."},
		},
		"required": []string{"path"},
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, toolCallID string, args map[string]any, onPartial PartialFunc) (Result, error) {
	path, _ := args["path"].(string)

	slog.Info("listing files", "path", path)
	entries, err := os.ReadDir(path)
	if err != nil {
		return TextResult(fmt.Sprintf("failed to list directory: %v", err), true), nil
	}

	var names []string
	for _, e := range entries {
		suffix := ""
		if e.IsDir() {
			suffix = "/"
		}
		names = append(names, e.Name()+suffix)
	}
	return TextResult(strings.Join(names, "\n"), false), nil
}

// --- Read File Tool ---

type ReadFileTool struct{}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file. Arguments: path (string)."
}

func (t *ReadFileTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "The file path to read."},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, toolCallID string, args map[string]any, onPartial PartialFunc) (Result, error) {
	path, _ := args["path"].(string)

	slog.Info("reading file", "path", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return TextResult(fmt.Sprintf("failed to read file: %v", err), true), nil
	}
	return TextResult(string(data), false), nil
}

// --- Write File Tool ---

type WriteFileTool struct{}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file, creating parent directories as needed. Arguments: path (string), content (string)."
}

func (t *WriteFileTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "The file path to write to."},
			"content": map[string]any{"type": "string", "description": "The content to write."},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, toolCallID string, args map[string]any, onPartial PartialFunc) (Result, error) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)

	slog.Info("writing file", "path", path, "size", len(content))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return TextResult(fmt.Sprintf("failed to create directories: %v", err), true), nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return TextResult(fmt.Sprintf("failed to write file: %v", err), true), nil
	}
	return TextResult(fmt.Sprintf("wrote %d bytes to %s", len(content), path), false), nil
}
