package editor

import (
	"context"
	"sync"
	"time"

	"site-builder/internal/errors"
	"site-builder/internal/project"
	"site-builder/internal/worker"
)

// fakeClock hands out timers that only fire when the test says so
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      sync.Mutex
	f       func()
	delay   time.Duration
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{f: f, delay: d}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// FireAll runs every armed timer, returning how many fired
func (c *fakeClock) FireAll() int {
	c.mu.Lock()
	timers := append([]*fakeTimer(nil), c.timers...)
	c.mu.Unlock()

	n := 0
	for _, t := range timers {
		t.mu.Lock()
		armed := !t.stopped && !t.fired
		t.fired = t.fired || armed
		t.mu.Unlock()
		if armed {
			t.f()
			n++
		}
	}
	return n
}

func (c *fakeClock) Armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		t.mu.Lock()
		if !t.stopped && !t.fired {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

func (c *fakeClock) Timer(i int) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[i]
}

// recorder is a PersistFunc that remembers every write
type recorder struct {
	mu     sync.Mutex
	docs   []Document
	err    error
	during func()
}

func (r *recorder) persist(ctx context.Context, doc Document) error {
	r.mu.Lock()
	during := r.during
	r.during = nil
	r.mu.Unlock()
	if during != nil {
		during()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.docs = append(r.docs, doc)
	return nil
}

func (r *recorder) Docs() []Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Document(nil), r.docs...)
}

// manualDispatcher queues tasks until the test runs them
type manualDispatcher struct {
	mu    sync.Mutex
	tasks []worker.Task
	err   error
}

func (d *manualDispatcher) Submit(t worker.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.tasks = append(d.tasks, t)
	return nil
}

func (d *manualDispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

func (d *manualDispatcher) RunAll() {
	d.mu.Lock()
	tasks := d.tasks
	d.tasks = nil
	d.mu.Unlock()
	for _, t := range tasks {
		_ = t(context.Background())
	}
}

// inlineDispatcher runs tasks before Submit returns
type inlineDispatcher struct{}

func (inlineDispatcher) Submit(t worker.Task) error {
	_ = t(context.Background())
	return nil
}

// fakeEditor returns a fixed candidate for every edit
type fakeEditor struct {
	mu        sync.Mutex
	candidate string
	err       error
	calls     []string
}

func (e *fakeEditor) Edit(ctx context.Context, instruction, current string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, current)
	return e.candidate, e.err
}

func (e *fakeEditor) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

type fakeStore struct {
	mu       sync.Mutex
	projects map[string]*project.Project
	updates  []string
	err      error
	// during runs once inside the next update, before it is stored
	during func()
}

func newFakeStore(projects ...*project.Project) *fakeStore {
	s := &fakeStore{projects: map[string]*project.Project{}}
	for _, p := range projects {
		s.projects[p.ID] = p
	}
	return s
}

func (s *fakeStore) GetProject(ctx context.Context, id string, userID uint64) (*project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, errors.NotFound("Project not found", nil)
	}
	if p.UserID != userID {
		return nil, errors.Forbidden("You don't have access to this project", nil)
	}
	copied := *p
	return &copied, nil
}

func (s *fakeStore) UpdateProject(ctx context.Context, id string, userID uint64, content string) (*project.Project, error) {
	if _, err := s.GetProject(ctx, id, userID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	during := s.during
	s.during = nil
	s.mu.Unlock()
	if during != nil {
		during()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.updates = append(s.updates, content)
	s.projects[id].Content = content
	return s.projects[id], nil
}

func (s *fakeStore) Updates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.updates...)
}
