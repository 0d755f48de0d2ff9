package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"stockdash/internal/catalog"
	"stockdash/internal/panel"
)

// Manager creates and tracks sessions. Each session runs on its own
// goroutine until it is removed or the manager's context ends.
type Manager struct {
	ctx  context.Context
	cat  *catalog.Catalog
	eval panel.EvalFunc
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	s      *Session
	cancel context.CancelFunc
}

// NewManager returns a manager whose sessions live at most as long as ctx.
func NewManager(ctx context.Context, cat *catalog.Catalog, eval panel.EvalFunc, opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		ctx:      ctx,
		cat:      cat,
		eval:     eval,
		opts:     opts,
		log:      log,
		sessions: make(map[string]*entry),
	}
}

// Create starts a new session with a fresh id.
func (m *Manager) Create() (*Session, error) {
	id := uuid.NewString()
	s, err := New(id, m.cat, m.eval, m.opts)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(m.ctx)

	m.mu.Lock()
	m.sessions[id] = &entry{s: s, cancel: cancel}
	n := len(m.sessions)
	m.mu.Unlock()

	go func() {
		s.Run(ctx)
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
	}()
	m.log.Info("session started", "session", id, "active", n)
	return s, nil
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return e.s, true
}

// Remove stops a session. It is a no-op for unknown ids.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	e.cancel()
	<-e.s.Done()
	m.log.Info("session ended", "session", id)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops every session and waits for them to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.Unlock()
	for _, e := range entries {
		e.cancel()
		<-e.s.Done()
	}
}
