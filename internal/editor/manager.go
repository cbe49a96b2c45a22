package editor

import (
	"context"
	defError "errors"
	"sync"
	"time"

	"site-builder/internal/errors"
	"site-builder/internal/project"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

// ProjectStore is the persistence side of a session; project.Service satisfies it
type ProjectStore interface {
	GetProject(ctx context.Context, id string, userID uint64) (*project.Project, error)
	UpdateProject(ctx context.Context, id string, userID uint64, content string) (*project.Project, error)
}

// Editor produces AI edits; generation.Generator satisfies it
type Editor interface {
	Edit(ctx context.Context, instruction, current string) (string, error)
}

type Config struct {
	SaveDebounce time.Duration
	IdleTimeout  time.Duration
	AITimeout    time.Duration
	// AfterFunc overrides the debounce timer source
	AfterFunc AfterFunc
}

// Manager keeps the mounted editor sessions
type Manager struct {
	store    ProjectStore
	editor   Editor
	dispatch Dispatcher
	cfg      Config
	log      *zap.Logger
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(store ProjectStore, editor Editor, dispatch Dispatcher, cfg Config, log *zap.Logger) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	return &Manager{
		store:    store,
		editor:   editor,
		dispatch: dispatch,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Open mounts an editor on the user's project and loads its stored document
func (m *Manager) Open(ctx context.Context, projectID string, userID uint64) (*Session, error) {
	p, err := m.store.GetProject(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}

	s := m.newSession(projectID, userID)
	if err := s.bootstrap(Document(p.Content)); err != nil {
		return nil, errors.Internal(err)
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	total := len(m.sessions)
	m.mu.Unlock()

	m.log.Info("editor session opened",
		zap.String("session_id", s.ID),
		zap.String("project_id", projectID),
		zap.Uint64("user_id", userID),
		zap.Int("sessions", total),
	)
	return s, nil
}

func (m *Manager) newSession(projectID string, userID uint64) *Session {
	now := m.now()
	hub := NewHub()
	s := &Session{
		ID:        ksuid.New().String(),
		ProjectID: projectID,
		UserID:    userID,
		CreatedAt: now,
		canvas:    &Canvas{},
		events:    hub,
	}
	s.touch(now)

	log := m.log.With(zap.String("session_id", s.ID), zap.String("project_id", projectID))

	persist := func(ctx context.Context, doc Document) error {
		_, err := m.store.UpdateProject(ctx, projectID, userID, string(doc))
		return err
	}
	opts := []SaveOption{WithStatusListener(func(status SaveStatus) {
		hub.Publish(Event{Type: EventStatus, Status: &status})
	})}
	if m.cfg.AfterFunc != nil {
		opts = append(opts, WithAfterFunc(m.cfg.AfterFunc))
	}
	s.save = NewSaveCoordinator(persist, m.cfg.SaveDebounce, log, opts...)

	edit := func(ctx context.Context, instruction string, current Document) (Document, error) {
		out, err := m.editor.Edit(ctx, instruction, string(current))
		return Document(out), err
	}
	s.ai = NewAIEditCoordinator(edit, m.dispatch, m.cfg.AITimeout, log, func(snap AISnapshot) {
		hub.Publish(Event{Type: EventAI, AI: &snap})
	})

	return s
}

// Get returns the session if userID owns it
func (m *Manager) Get(id string, userID uint64) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, errors.NotFound("Session not found", nil)
	}
	if s.UserID != userID {
		return nil, errors.Forbidden("You don't have access to this session", nil)
	}
	s.touch(m.now())
	return s, nil
}

// Close unmounts the session, writing any pending change first
func (m *Manager) Close(ctx context.Context, id string, userID uint64) error {
	s, err := m.Get(id, userID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	if err := s.close(ctx); err != nil {
		m.log.Warn("final save failed", zap.String("session_id", id), zap.Error(err))
		return errors.BadGateway("Saving the project failed", err)
	}
	m.log.Info("editor session closed", zap.String("session_id", id))
	return nil
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ReapIdle closes sessions untouched for longer than the idle timeout
func (m *Manager) ReapIdle(ctx context.Context) int {
	cutoff := m.now().Add(-m.cfg.IdleTimeout)

	var idle []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		if err := s.close(ctx); err != nil {
			m.log.Warn("final save of idle session failed", zap.String("session_id", s.ID), zap.Error(err))
		}
	}
	if len(idle) > 0 {
		m.log.Info("reaped idle editor sessions", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// StartReaper runs ReapIdle every interval until ctx is cancelled
func (m *Manager) StartReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.ReapIdle(context.Background())
			}
		}
	}()
}

// Shutdown closes every session, flushing pending saves
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range all {
		if err := s.close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return defError.Join(errs...)
}
