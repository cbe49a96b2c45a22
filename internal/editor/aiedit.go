package editor

import (
	"context"
	defError "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"site-builder/internal/errors"
	"site-builder/internal/worker"

	"go.uber.org/zap"
)

// PendingEdit is a candidate held back until the user decides on it
type PendingEdit struct {
	Instruction string
	Candidate   Document
	Base        Document
}

// aiState is one of Idle, Requesting or AwaitingDecision
type aiState interface {
	phase() AIPhase
}

type Idle struct{}

type Requesting struct {
	Instruction string
	Base        Document
	id          uint64
}

type AwaitingDecision struct {
	Edit PendingEdit
}

func (Idle) phase() AIPhase             { return PhaseIdle }
func (Requesting) phase() AIPhase       { return PhaseRequesting }
func (AwaitingDecision) phase() AIPhase { return PhaseAwaitingDecision }

type AIPhase string

const (
	PhaseIdle             AIPhase = "idle"
	PhaseRequesting       AIPhase = "requesting"
	PhaseAwaitingDecision AIPhase = "awaiting_decision"
)

type AISnapshot struct {
	Phase       AIPhase `json:"phase"`
	Instruction string  `json:"instruction,omitempty"`
	LastError   string  `json:"last_error,omitempty"`
}

// EditFunc asks the generation service to apply instruction to current
type EditFunc func(ctx context.Context, instruction string, current Document) (Document, error)

// Dispatcher runs generation jobs off the request path; *worker.WorkerPool satisfies it
type Dispatcher interface {
	Submit(t worker.Task) error
}

// AIEditCoordinator runs the propose, preview, accept-or-reject workflow.
// At most one edit is outstanding at a time.
type AIEditCoordinator struct {
	edit     EditFunc
	dispatch Dispatcher
	timeout  time.Duration
	onChange func(AISnapshot)
	log      *zap.Logger

	// decideMu serialises Accept, Reject and Cancel so a decision callback
	// runs without mu held
	decideMu sync.Mutex

	mu        sync.Mutex
	state     aiState
	lastError string
	nextID    uint64
}

func NewAIEditCoordinator(edit EditFunc, dispatch Dispatcher, timeout time.Duration, log *zap.Logger, onChange func(AISnapshot)) *AIEditCoordinator {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &AIEditCoordinator{
		edit:     edit,
		dispatch: dispatch,
		timeout:  timeout,
		onChange: onChange,
		log:      log,
		state:    Idle{},
	}
}

func (c *AIEditCoordinator) snapshotLocked() AISnapshot {
	snap := AISnapshot{Phase: c.state.phase(), LastError: c.lastError}
	switch s := c.state.(type) {
	case Requesting:
		snap.Instruction = s.Instruction
	case AwaitingDecision:
		snap.Instruction = s.Edit.Instruction
	}
	return snap
}

func (c *AIEditCoordinator) transitionLocked(next aiState) {
	c.state = next
	if c.onChange != nil {
		c.onChange(c.snapshotLocked())
	}
}

func (c *AIEditCoordinator) Snapshot() AISnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *AIEditCoordinator) Phase() AIPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.phase()
}

// Pending returns the candidate awaiting a decision
func (c *AIEditCoordinator) Pending() (PendingEdit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	aw, ok := c.state.(AwaitingDecision)
	return aw.Edit, ok
}

// Submit sends current and instruction to the generator in the background.
// It is refused unless the coordinator is idle.
func (c *AIEditCoordinator) Submit(instruction string, current Document) error {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return errors.BadRequest("Instruction cannot be empty", nil)
	}

	c.mu.Lock()
	if _, idle := c.state.(Idle); !idle {
		c.mu.Unlock()
		return errors.Conflict("An AI edit is already in progress", nil)
	}
	c.nextID++
	req := Requesting{Instruction: instruction, Base: current, id: c.nextID}
	c.lastError = ""
	c.transitionLocked(req)
	c.mu.Unlock()

	err := c.dispatch.Submit(func(ctx context.Context) (err error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		// the request must always leave Requesting, even if the edit panics
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("ai edit panicked: %v", r)
				c.complete(req.id, "", err)
			}
		}()

		candidate, err := c.edit(ctx, req.Instruction, req.Base)
		c.complete(req.id, candidate, err)
		return err
	})
	if err != nil {
		c.mu.Lock()
		if r, ok := c.state.(Requesting); ok && r.id == req.id {
			c.lastError = "The AI editor is busy, please try again"
			c.transitionLocked(Idle{})
		}
		c.mu.Unlock()
		return errors.TooManyRequests("The AI editor is busy, please try again", err)
	}
	return nil
}

func (c *AIEditCoordinator) complete(id uint64, candidate Document, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok := c.state.(Requesting)
	if !ok || req.id != id {
		// cancelled while the request was running
		return
	}

	if err == nil && strings.TrimSpace(string(candidate)) == "" {
		err = errors.BadGateway("The AI returned an empty page", nil)
	}
	if err != nil {
		c.log.Warn("ai edit failed", zap.String("instruction", req.Instruction), zap.Error(err))
		c.lastError = failureMessage(err)
		c.transitionLocked(Idle{})
		return
	}

	c.transitionLocked(AwaitingDecision{Edit: PendingEdit{
		Instruction: req.Instruction,
		Candidate:   candidate,
		Base:        req.Base,
	}})
}

func failureMessage(err error) string {
	var apiErr *errors.APIError
	if defError.As(err, &apiErr) && apiErr.Status != 500 {
		return apiErr.Message
	}
	if defError.Is(err, context.DeadlineExceeded) {
		return "The AI edit timed out, please try again"
	}
	return "The AI edit failed, please try again"
}

// Accept applies the pending candidate through apply. The coordinator only
// returns to Idle when apply succeeds.
func (c *AIEditCoordinator) Accept(apply func(PendingEdit) error) error {
	return c.decide(apply)
}

// Reject restores the base document through restore, same contract as Accept
func (c *AIEditCoordinator) Reject(restore func(PendingEdit) error) error {
	return c.decide(restore)
}

func (c *AIEditCoordinator) decide(fn func(PendingEdit) error) error {
	c.decideMu.Lock()
	defer c.decideMu.Unlock()

	edit, ok := c.Pending()
	if !ok {
		return errors.Conflict("No AI edit is awaiting a decision", nil)
	}

	if err := fn(edit); err != nil {
		return err
	}

	c.mu.Lock()
	c.transitionLocked(Idle{})
	c.mu.Unlock()
	return nil
}

// Cancel drops whatever is outstanding; a running request's result is ignored
func (c *AIEditCoordinator) Cancel() {
	c.decideMu.Lock()
	defer c.decideMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, idle := c.state.(Idle); !idle {
		c.transitionLocked(Idle{})
	}
}
