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
)

// Manager owns the sessions directory: session file creation/loading, the
// index.json listing, and a simple non-blocking fan-out of "session N
// changed" notifications to any number of subscribers (e.g. a realtime
// viewer).
type Manager struct {
	rootDir   string
	sessDir   string
	eventChan chan string
	onError   func(err error)

	mu   sync.RWMutex
	subs []chan string
}

// Index is the on-disk structure of sessions/index.json.
type Index struct {
	Sessions []SessionMeta `json:"sessions"`
}

// SessionMeta is one row of the session index.
type SessionMeta struct {
	ID       string    `json:"id"`
	Path     string    `json:"path"`
	Cwd      string    `json:"cwd"`
	ModelID  string    `json:"modelId"`
	Provider string    `json:"provider"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// NewManager creates (if needed) the sessions directory under rootDir and
// starts the notification fan-out loop. onError, if non-nil, is called for
// any session write failure (see spec's JournalWriteError).
func NewManager(rootDir string, onError func(error)) *Manager {
	m := &Manager{
		rootDir:   rootDir,
		sessDir:   filepath.Join(rootDir, "sessions"),
		eventChan: make(chan string, 100),
		onError:   onError,
	}
	if err := os.MkdirAll(m.sessDir, 0o755); err != nil {
		slog.Error("journal: failed to create sessions directory", "error", err)
	}
	go m.broadcastLoop()
	return m
}

func (m *Manager) broadcastLoop() {
	for id := range m.eventChan {
		m.mu.RLock()
		for _, sub := range m.subs {
			select {
			case sub <- id:
			default:
			}
		}
		m.mu.RUnlock()
	}
}

// Subscribe returns a channel of session IDs that changed. The channel is
// buffered and drained by the caller; slow consumers miss notifications
// rather than blocking the publisher.
func (m *Manager) Subscribe() <-chan string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan string, 10)
	m.subs = append(m.subs, ch)
	return ch
}

func (m *Manager) publish(id string) {
	select {
	case m.eventChan <- id:
	default:
	}
}

// notifyAppend is the notify hook wired into every Session: it fans the
// change out to subscribers and bumps the session's Modified timestamp in
// the index, so ListSessions/ContinueRecent reflect append activity, not
// just creation order.
func (m *Manager) notifyAppend(id string) {
	m.publish(id)
	m.touchModified(id)
}

func (m *Manager) touchModified(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metas, err := m.readIndexLocked()
	if err != nil {
		return
	}
	for i, meta := range metas {
		if meta.ID != id {
			continue
		}
		metas[i].Modified = time.Now()
		data, err := json.MarshalIndent(Index{Sessions: metas}, "", "  ")
		if err != nil {
			return
		}
		tmp := m.indexPath() + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return
		}
		os.Rename(tmp, m.indexPath())
		return
	}
}

// NewSession creates a fresh session file, writes its header, and adds it
// to the index.
func (m *Manager) NewSession(cwd, systemPrompt, modelID, provider, parentSessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.sessDir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create sessions directory: %w", err)
	}

	id := uuid.New().String()
	path := filepath.Join(m.sessDir, id+".jsonl")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: create session file: %w", err)
	}

	now := time.Now()
	header := Header{
		Type:          "session",
		ID:            id,
		Timestamp:     now,
		Cwd:           cwd,
		SystemPrompt:  systemPrompt,
		ModelID:       modelID,
		Provider:      provider,
		ParentSession: parentSessionID,
	}

	s := &Session{
		id:         id,
		filePath:   path,
		entries:    make(map[string]Entry),
		fileHandle: f,
		labels:     make(map[string]string),
		header:     header,
		notify:     m.notifyAppend,
		onError:    m.onError,
	}

	if err := s.writeLine(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("journal: write session header: %w", err)
	}

	meta := SessionMeta{ID: id, Path: path, Cwd: cwd, ModelID: modelID, Provider: provider, Created: now, Modified: now}
	if err := m.updateIndexLocked(meta); err != nil {
		slog.Error("journal: failed to update session index", "error", err)
	}

	return s, nil
}

// LoadSession opens an existing session file and replays its entries.
func (m *Manager) LoadSession(id string) (*Session, error) {
	path := filepath.Join(m.sessDir, id+".jsonl")
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open session file: %w", err)
	}

	s := &Session{
		filePath:   path,
		entries:    make(map[string]Entry),
		fileHandle: f,
		labels:     make(map[string]string),
		notify:     m.notifyAppend,
		onError:    m.onError,
	}

	if err := m.loadEntries(s); err != nil {
		f.Close()
		return nil, fmt.Errorf("journal: load entries: %w", err)
	}
	return s, nil
}

// ContinueRecent loads the most recently modified session.
func (m *Manager) ContinueRecent() (*Session, error) {
	infos, err := m.ListSessions()
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("journal: no sessions found in %s", m.sessDir)
	}
	return m.LoadSession(infos[0].ID)
}

// ForkFrom copies an existing session's entries, verbatim and in order,
// into a brand-new session file and returns it.
func (m *Manager) ForkFrom(id string) (*Session, error) {
	source, err := m.LoadSession(id)
	if err != nil {
		return nil, err
	}
	defer source.Close()

	header := source.Header()
	dest, err := m.NewSession(header.Cwd, header.SystemPrompt, header.ModelID, header.Provider, source.ID())
	if err != nil {
		return nil, err
	}

	if _, err := source.fileHandle.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(source.fileHandle)
	scanner.Scan() // skip header

	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if err := dest.Append(e); err != nil {
			dest.Close()
			return nil, err
		}
	}
	return dest, nil
}

// ListSessions returns session metadata sorted by most-recently-modified
// first.
func (m *Manager) ListSessions() ([]SessionMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metas, err := m.readIndexLocked()
	if err != nil {
		return nil, err
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Modified.After(metas[j].Modified) })
	return metas, nil
}

func (m *Manager) indexPath() string { return filepath.Join(m.sessDir, "index.json") }

func (m *Manager) readIndexLocked() ([]SessionMeta, error) {
	data, err := os.ReadFile(m.indexPath())
	if os.IsNotExist(err) {
		return []SessionMeta{}, nil
	}
	if err != nil {
		return nil, err
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, err
	}
	return idx.Sessions, nil
}

// updateIndexLocked rewrites index.json atomically (temp file + rename),
// the same pattern rewriteEntries uses for session files.
func (m *Manager) updateIndexLocked(meta SessionMeta) error {
	existing, err := m.readIndexLocked()
	if err != nil {
		existing = nil
	}

	found := false
	for i, s := range existing {
		if s.ID == meta.ID {
			existing[i] = meta
			found = true
			break
		}
	}
	if !found {
		existing = append(existing, meta)
	}

	data, err := json.MarshalIndent(Index{Sessions: existing}, "", "  ")
	if err != nil {
		return err
	}

	tmp := m.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.indexPath())
}

// loadEntries parses the session file forgivingly: malformed lines (e.g. a
// truncated last line from a crash mid-write) are skipped and logged, not
// treated as a fatal error.
func (m *Manager) loadEntries(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.fileHandle.Seek(0, io.SeekStart); err != nil {
		return err
	}

	scanner := bufio.NewScanner(s.fileHandle)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var lastID string
	if scanner.Scan() {
		var h Header
		if err := json.Unmarshal(scanner.Bytes(), &h); err != nil {
			return fmt.Errorf("journal: unmarshal header: %w", err)
		}
		s.id = h.ID
		s.header = h
	}

	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			slog.Warn("journal: skipping malformed entry", "session", s.id, "error", err)
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

	s.leafID = lastID
	return nil
}
