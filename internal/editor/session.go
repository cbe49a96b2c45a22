package editor

import (
	"bytes"
	"context"
	defError "errors"
	"sync"
	"sync/atomic"
	"time"

	"site-builder/internal/errors"
)

// Session owns the authoritative document of one mounted editor and wires
// the canvas to the save and AI edit coordinators.
type Session struct {
	ID        string
	ProjectID string
	UserID    uint64
	CreatedAt time.Time

	mu     sync.Mutex
	canvas *Canvas
	doc    Document
	// canvas state captured when an AI edit was submitted, restored on reject
	restorePoint State
	closed       bool

	save   *SaveCoordinator
	ai     *AIEditCoordinator
	events *Hub

	lastActive atomic.Int64
}

type SessionSnapshot struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Status    SaveStatus `json:"status"`
	AI        AISnapshot `json:"ai"`
	HTML      string     `json:"html"`
	State     State      `json:"state"`
}

func (s *Session) touch(now time.Time) {
	s.lastActive.Store(now.UnixNano())
}

func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// bootstrap loads the initial document onto the canvas, once
func (s *Session) bootstrap(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canvas.Loaded() {
		return nil
	}
	if err := s.canvas.Load(doc); err != nil {
		return err
	}
	s.doc = doc
	return nil
}

func (s *Session) Document() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	doc := s.doc
	state := s.canvas.State()
	s.mu.Unlock()

	return SessionSnapshot{
		ID:        s.ID,
		ProjectID: s.ProjectID,
		Status:    s.save.Status(),
		AI:        s.ai.Snapshot(),
		HTML:      string(doc),
		State:     state,
	}
}

// Edit applies a change reported by the browser editor. Edits are refused
// while an AI edit is outstanding so the candidate's base stays current.
func (s *Session) Edit(state State) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", errors.NotFound("Session is closed", nil)
	}
	if s.ai.Phase() != PhaseIdle {
		return "", errors.Conflict("Editing is locked while an AI edit is pending", nil)
	}

	s.canvas.Apply(state)
	doc := Serialize(s.canvas.State())
	s.doc = doc
	s.save.NotifyChange(doc)
	return doc, nil
}

// Save serialises the canvas and writes it right away
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.NotFound("Session is closed", nil)
	}
	doc := Serialize(s.canvas.State())
	s.doc = doc
	commit := s.save.PrepareSave(doc)
	s.mu.Unlock()

	return saveNow(ctx, commit)
}

// saveNow runs a write prepared under s.mu
func saveNow(ctx context.Context, commit func(context.Context) error) error {
	if err := commit(ctx); err != nil {
		var apiErr *errors.APIError
		if defError.As(err, &apiErr) {
			return err
		}
		return errors.BadGateway("Saving the project failed", err)
	}
	return nil
}

func (s *Session) SubmitAIEdit(instruction string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.NotFound("Session is closed", nil)
	}
	restore := s.canvas.State()
	if err := s.ai.Submit(instruction, s.doc); err != nil {
		return err
	}
	s.restorePoint = restore
	return nil
}

// Preview returns the candidate without touching the canvas or the document
func (s *Session) Preview() (Document, error) {
	edit, ok := s.ai.Pending()
	if !ok {
		return "", errors.NotFound("No AI edit is awaiting a decision", nil)
	}
	return edit.Candidate, nil
}

// AcceptAIEdit makes the candidate the authoritative document and saves it.
// A failed save leaves the edit applied with status unsaved.
func (s *Session) AcceptAIEdit(ctx context.Context) (Document, error) {
	var accepted Document
	var commit func(context.Context) error
	err := s.ai.Accept(func(edit PendingEdit) error {
		state, err := Parse(edit.Candidate)
		if err != nil {
			return errors.BadGateway("The AI returned a page that could not be loaded", err)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return errors.NotFound("Session is closed", nil)
		}
		s.canvas.Apply(state)
		s.doc = edit.Candidate
		accepted = edit.Candidate
		commit = s.save.PrepareSave(accepted)
		return nil
	})
	if err != nil {
		return "", err
	}

	return accepted, saveNow(ctx, commit)
}

// RejectAIEdit discards the candidate and puts back the document from before the request
func (s *Session) RejectAIEdit() (Document, error) {
	var restored Document
	err := s.ai.Reject(func(edit PendingEdit) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return errors.NotFound("Session is closed", nil)
		}
		s.canvas.Apply(s.restorePoint)
		s.doc = edit.Base
		restored = edit.Base
		return nil
	})
	return restored, err
}

// Export zips the authoritative document
func (s *Session) Export() (*bytes.Buffer, error) {
	return BuildArchive(s.Document())
}

// close flushes a pending save and ends event subscriptions
func (s *Session) close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.ai.Cancel()
	err := s.save.Flush(ctx)
	s.save.Stop()
	s.events.Close()
	return err
}

func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.events.Subscribe()
}
