package tools

import (
	"context"
	"fmt"

	"github.com/mariozechner/agentcore/pkg/patch"
)

// EditTool applies a line-hash-addressed diff to a file under root,
// supporting create/update/delete/rename. Streaming partial-argument
// checks (CheckPartial) and per-path content caching (Cache) happen
// one layer up, in the agent loop, against the same root/path pair
// this tool ultimately commits with Apply.
type EditTool struct {
	Root  string
	Fuzzy patch.FuzzyConfig
	Cache *patch.Cache
}

func NewEditTool(root string, fuzzy patch.FuzzyConfig, cache *patch.Cache) *EditTool {
	return &EditTool{Root: root, Fuzzy: fuzzy, Cache: cache}
}

func (t *EditTool) Name() string { return "edit" }

func (t *EditTool) Description() string {
	return "Edit a file using a line-hash-addressed diff. Arguments: path (string), " +
		"op (one of update, create, delete, rename), diff (string), rename_to (string, required for op=rename)."
}

func (t *EditTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":      map[string]any{"type": "string", "description": "File path relative to the working root."},
			"op":        map[string]any{"type": "string", "description": "update, create, delete, or rename."},
			"diff":      map[string]any{"type": "string", "description": "Line-hash-addressed diff body."},
			"rename_to": map[string]any{"type": "string", "description": "Destination path, required when op is rename."},
		},
		"required": []string{"path", "op", "diff"},
	}
}

func (t *EditTool) Execute(ctx context.Context, toolCallID string, args map[string]any, onPartial PartialFunc) (Result, error) {
	path, _ := args["path"].(string)
	opStr, _ := args["op"].(string)
	diffText, _ := args["diff"].(string)
	renameTo, _ := args["rename_to"].(string)

	op := patch.OpKind(opStr)
	switch op {
	case patch.OpUpdate, patch.OpCreate, patch.OpDelete, patch.OpRename:
	default:
		return TextResult(fmt.Sprintf("unknown op %q", opStr), true), nil
	}

	// A delete has no diff body to apply, just a target to remove; don't
	// make an empty diff (the common choice for this op) a parse error.
	var diff *patch.Diff
	if op != patch.OpDelete {
		var err error
		diff, err = patch.Parse(diffText)
		if err != nil {
			return TextResult(fmt.Sprintf("failed to parse diff: %v", err), true), nil
		}
	}

	res, err := patch.Apply(t.Root, path, op, diff, t.Fuzzy, renameTo)
	if err != nil {
		if patch.IsNoChange(err) {
			return TextResult("no change: the diff already matches the file's content", true), nil
		}
		return TextResult(err.Error(), true), nil
	}

	if t.Cache != nil {
		t.Cache.Invalidate(path)
		if op == patch.OpRename {
			t.Cache.Invalidate(renameTo)
		}
	}

	summary := fmt.Sprintf("applied %s to %s", op, path)
	if op == patch.OpRename {
		summary = fmt.Sprintf("renamed %s to %s", path, renameTo)
	}
	result := TextResult(summary, false)
	result.Details = map[string]any{
		"diffBlock": res.DiffBlock,
		"subtypes":  res.Subtypes,
	}
	return result, nil
}
