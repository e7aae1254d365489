package agent

import (
	"github.com/mariozechner/agentcore/pkg/llmclient"
	"github.com/mariozechner/agentcore/pkg/patch"
)

// editGuard watches a streaming edit tool-call's partial arguments and
// flags the stream for early abort once a removal line in the
// partially-assembled diff can be proven to not exist in the target
// file's cached content — catching an edit that can never apply before
// the model finishes generating the rest of it.
type editGuard struct {
	root  string
	cache *patch.Cache

	cachedPath    string
	cachedContent string
	aborted       bool
}

func newEditGuard(root string, cache *patch.Cache) *editGuard {
	return &editGuard{root: root, cache: cache}
}

// check inspects one toolcall_start/delta/end event's cumulative partial
// arguments and returns false once it has proven the in-flight edit
// cannot apply. It returns true whenever there isn't yet enough
// information to decide (no path, no diff, or the diff still matches).
func (g *editGuard) check(ev llmclient.Event) bool {
	if g.aborted {
		return false
	}
	path, _ := ev.ArgsPartial["path"].(string)
	if path == "" {
		return true
	}
	if g.cachedPath != path {
		content, err := g.cache.Get(g.root, path)
		if err != nil {
			content = ""
		}
		g.cachedPath = path
		g.cachedContent = content
	}

	diffText, _ := ev.ArgsPartial["diff"].(string)
	if diffText == "" {
		return true
	}
	if !patch.CheckPartial(g.cachedContent, diffText) {
		g.aborted = true
		return false
	}
	return true
}
