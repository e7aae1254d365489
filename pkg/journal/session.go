package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mariozechner/agentcore/pkg/message"
)

// Session is one append-only JSONL session file: an in-memory map of every
// entry it has ever held, a leaf pointer marking the tip of the currently
// active branch, and an open file handle held for the session's lifetime.
type Session struct {
	mu         sync.RWMutex
	id         string
	filePath   string
	entries    map[string]Entry
	leafID     string
	fileHandle *os.File
	labels     map[string]string
	header     Header
	notify     func(sessionID string)
	onError    func(err error)
}

func (s *Session) ID() string     { return s.id }
func (s *Session) Path() string   { return s.filePath }
func (s *Session) LeafID() string { return s.leafID }
func (s *Session) Header() Header {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.header
}

// Append persists a generic entry under the current leaf and advances the
// leaf pointer. Callers normally use one of the Append* convenience
// methods instead. IO failures are reported via onError but never take
// down the process; the write itself still fails, so the caller's own
// error path also observes it.
func (s *Session) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(e)
}

func (s *Session) appendLocked(e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.ParentID == nil && s.leafID != "" {
		pid := s.leafID
		e.ParentID = &pid
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	if err := s.writeLine(e); err != nil {
		if s.onError != nil {
			s.onError(fmt.Errorf("journal: write entry %s: %w", e.ID, err))
		}
		return err
	}

	s.entries[e.ID] = e
	s.leafID = e.ID

	if e.Type == EntryLabel && e.Label != nil {
		s.labels[e.Label.TargetID] = e.Label.Label
	}

	if s.notify != nil {
		s.notify(s.id)
	}
	return nil
}

// AppendMessage appends a conversation turn.
func (s *Session) AppendMessage(m message.Message) (string, error) {
	id := uuid.New().String()
	e := Entry{Type: EntryMessage, ID: id, Message: &m}
	if err := s.Append(e); err != nil {
		return "", err
	}
	return id, nil
}

// AppendModelChange records a switch of the active LLM.
func (s *Session) AppendModelChange(provider, modelID string) (string, error) {
	id := uuid.New().String()
	e := Entry{Type: EntryModelChange, ID: id, ModelChange: &ModelChangeEntry{Provider: provider, ModelID: modelID}}
	if err := s.Append(e); err != nil {
		return "", err
	}
	return id, nil
}

// AppendThinkingLevelChange records a change in reasoning depth.
func (s *Session) AppendThinkingLevelChange(level string) (string, error) {
	id := uuid.New().String()
	e := Entry{Type: EntryThinkingLevelChange, ID: id, ThinkingLevelChange: &ThinkingLevelChangeEntry{ThinkingLevel: level}}
	if err := s.Append(e); err != nil {
		return "", err
	}
	return id, nil
}

// AppendModeChange records a change in agent operating mode.
func (s *Session) AppendModeChange(mode string) (string, error) {
	id := uuid.New().String()
	e := Entry{Type: EntryModeChange, ID: id, ModeChange: &ModeChangeEntry{Mode: mode}}
	if err := s.Append(e); err != nil {
		return "", err
	}
	return id, nil
}

// AppendSessionInfo updates session metadata such as a user-assigned title.
func (s *Session) AppendSessionInfo(name string) (string, error) {
	id := uuid.New().String()
	e := Entry{Type: EntrySessionInfo, ID: id, SessionInfo: &SessionInfoEntry{Name: name}}
	if err := s.Append(e); err != nil {
		return "", err
	}
	return id, nil
}

// AppendCompaction appends a synthesized compaction-summary message. Its
// FirstKeptEntryID must name an entry already present in the current
// branch; GetContext uses it to splice the summary in place of everything
// before it.
func (s *Session) AppendCompaction(summary, shortSummary, firstKeptEntryID string, tokensBefore int) (string, error) {
	m := message.Message{
		Role:      message.RoleCompactionSummary,
		Timestamp: time.Now(),
		CompactionSummary: &message.CompactionSummary{
			Summary:          summary,
			ShortSummary:     shortSummary,
			TokensBefore:     tokensBefore,
			FirstKeptEntryID: firstKeptEntryID,
		},
	}
	return s.AppendMessage(m)
}

// SetLabel bookmarks targetID with label, or clears the bookmark when label
// is empty.
func (s *Session) SetLabel(targetID, label string) (string, error) {
	id := uuid.New().String()
	e := Entry{Type: EntryLabel, ID: id, Label: &LabelEntry{TargetID: targetID, Label: label}}
	if err := s.Append(e); err != nil {
		return "", err
	}
	return id, nil
}

// Branch moves the leaf pointer to entryID without creating a new entry.
// An empty entryID resets to an empty branch (no leaf).
func (s *Session) Branch(entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID != "" {
		if _, ok := s.entries[entryID]; !ok {
			return fmt.Errorf("journal: entry not found: %s", entryID)
		}
	}
	s.leafID = entryID
	return nil
}

// BranchWithSummary moves the leaf to branchFromID (or clears it, if
// empty) and appends a branch_summary message checkpointing the
// abandoned path before doing so.
func (s *Session) BranchWithSummary(branchFromID, summary string) (string, error) {
	s.mu.Lock()
	fromID := s.leafID
	s.mu.Unlock()

	if err := s.Branch(branchFromID); err != nil {
		return "", err
	}

	m := message.Message{
		Role:          message.RoleBranchSummary,
		Timestamp:     time.Now(),
		BranchSummary: &message.BranchSummary{Summary: summary, FromID: fromID},
	}
	return s.AppendMessage(m)
}

// CreateBranchedSession opens a brand new session file under the same
// manager-owned directory, replaying every entry on the path from root to
// leafID into it, then returns the new session's ID. The new session is
// closed before returning; open it again with mgr.LoadSession to use it.
func (s *Session) CreateBranchedSession(mgr *Manager, leafID string) (string, error) {
	s.mu.RLock()
	var path []Entry
	currID := leafID
	for currID != "" {
		e, ok := s.entries[currID]
		if !ok {
			s.mu.RUnlock()
			return "", fmt.Errorf("journal: broken path at %s", currID)
		}
		path = append([]Entry{e}, path...)
		if e.ParentID == nil {
			break
		}
		currID = *e.ParentID
	}
	header := s.header
	s.mu.RUnlock()

	newS, err := mgr.NewSession(header.Cwd, header.SystemPrompt, header.ModelID, header.Provider, s.id)
	if err != nil {
		return "", err
	}
	defer newS.Close()

	for _, e := range path {
		if err := newS.Append(e); err != nil {
			return "", err
		}
	}
	return newS.ID(), nil
}

// GetContext walks parent links from the leaf back to the root, reverses
// them into document order, and applies compaction splicing: if the branch
// contains a compaction-summary message whose FirstKeptEntryID names an
// entry K also on the branch, every entry before K is dropped from the
// result, replaced by the compaction message itself.
func (s *Session) GetContext() ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branch, err := s.branchLocked()
	if err != nil {
		return nil, err
	}

	compactionIdx := -1
	var firstKeptID string
	for i := len(branch) - 1; i >= 0; i-- {
		e := branch[i]
		if e.Type == EntryMessage && e.Message != nil && e.Message.Role == message.RoleCompactionSummary {
			compactionIdx = i
			firstKeptID = e.Message.CompactionSummary.FirstKeptEntryID
			break
		}
	}

	if compactionIdx == -1 {
		return branch, nil
	}

	resolved := []Entry{branch[compactionIdx]}
	include := false
	for _, e := range branch {
		if e.ID == firstKeptID {
			include = true
		}
		isCompaction := e.Type == EntryMessage && e.Message != nil && e.Message.Role == message.RoleCompactionSummary
		if include && !isCompaction {
			resolved = append(resolved, e)
		}
	}
	return resolved, nil
}

// branchLocked walks parent links from leafID back to the root and
// reverses them into document order. Caller must hold s.mu (read or write).
func (s *Session) branchLocked() ([]Entry, error) {
	var branch []Entry
	currID := s.leafID
	for currID != "" {
		e, ok := s.entries[currID]
		if !ok {
			return nil, fmt.Errorf("journal: broken parent link: %s", currID)
		}
		branch = append([]Entry{e}, branch...)
		if e.ParentID == nil {
			break
		}
		currID = *e.ParentID
	}
	return branch, nil
}

// TreeNode is one node of the hierarchical view GetTree returns: every
// entry ever appended to the session, including abandoned branches.
type TreeNode struct {
	Entry    Entry
	Children []TreeNode
	Label    string
}

// GetTree builds the full entry forest, sorted at every level by
// timestamp, labeling each node with any bookmark set via SetLabel.
func (s *Session) GetTree() ([]TreeNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byParent := make(map[string][]Entry)
	var roots []Entry
	for _, e := range s.entries {
		if e.ParentID == nil {
			roots = append(roots, e)
			continue
		}
		if _, ok := s.entries[*e.ParentID]; !ok {
			roots = append(roots, e)
			continue
		}
		byParent[*e.ParentID] = append(byParent[*e.ParentID], e)
	}

	var build func(Entry) TreeNode
	build = func(e Entry) TreeNode {
		node := TreeNode{Entry: e, Label: s.labels[e.ID]}
		children := byParent[e.ID]
		sort.Slice(children, func(i, j int) bool { return children[i].Timestamp.Before(children[j].Timestamp) })
		for _, c := range children {
			node.Children = append(node.Children, build(c))
		}
		return node
	}

	sort.Slice(roots, func(i, j int) bool { return roots[i].Timestamp.Before(roots[j].Timestamp) })
	var tree []TreeNode
	for _, r := range roots {
		tree = append(tree, build(r))
	}
	return tree, nil
}

// rewriteEntries serializes every live entry in topological (parent-before-
// child, timestamp-ordered) order to a new temp file and atomically renames
// it over the session file. Nothing else in the module calls it: compaction
// pruning works on a copy and leaves the file as it is. Rename failures
// leave the original file intact.
func (s *Session) rewriteEntries() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rewriteEntriesLocked()
}

func (s *Session) rewriteEntriesLocked() error {
	ordered := s.topologicalOrderLocked()

	tmp := s.filePath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if data, err := json.Marshal(s.header); err == nil {
		w.Write(data)
		w.WriteByte('\n')
	} else {
		f.Close()
		os.Remove(tmp)
		return err
	}
	for _, e := range ordered {
		data, err := json.Marshal(e)
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if s.fileHandle != nil {
		s.fileHandle.Close()
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return err
	}
	if dir, derr := os.Open(filepath.Dir(s.filePath)); derr == nil {
		dir.Sync()
		dir.Close()
	}

	newHandle, err := os.OpenFile(s.filePath, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	s.fileHandle = newHandle
	return nil
}

// topologicalOrderLocked returns every live entry in parent-before-child,
// timestamp-ordered order. An entry whose ParentID no longer exists in
// s.entries (e.g. pruned by compaction) is treated as a root rather than
// dropped, so rewriteEntries never silently loses orphaned descendants.
func (s *Session) topologicalOrderLocked() []Entry {
	byParent := make(map[string][]Entry)
	var roots []Entry
	for _, e := range s.entries {
		if e.ParentID == nil {
			roots = append(roots, e)
			continue
		}
		if _, ok := s.entries[*e.ParentID]; !ok {
			roots = append(roots, e)
			continue
		}
		byParent[*e.ParentID] = append(byParent[*e.ParentID], e)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].Timestamp.Before(roots[j].Timestamp) })

	var out []Entry
	var visit func(Entry)
	visit = func(e Entry) {
		out = append(out, e)
		children := byParent[e.ID]
		sort.Slice(children, func(i, j int) bool { return children[i].Timestamp.Before(children[j].Timestamp) })
		for _, c := range children {
			visit(c)
		}
	}
	for _, r := range roots {
		visit(r)
	}
	return out
}

// Close releases the session's file handle.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fileHandle != nil {
		return s.fileHandle.Close()
	}
	return nil
}

func (s *Session) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := s.fileHandle.Write(append(data, '\n')); err != nil {
		return err
	}
	return s.fileHandle.Sync()
}

// Refresh re-scans the file from disk, picking up entries appended by
// another process (e.g. a fork made by a concurrently running viewer).
func (s *Session) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.fileHandle.Seek(0, io.SeekStart); err != nil {
		return err
	}
	scanner := bufio.NewScanner(s.fileHandle)
	scanner.Scan() // header, already held in s.header

	var lastID string
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			slog.Warn("journal: skipping malformed entry on refresh", "error", err)
			continue
		}
		s.entries[e.ID] = e
		lastID = e.ID
		if e.Type == EntryLabel && e.Label != nil {
			s.labels[e.Label.TargetID] = e.Label.Label
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if lastID != "" {
		s.leafID = lastID
	}
	return nil
}
