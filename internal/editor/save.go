package editor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"site-builder/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type SaveStatus int

const (
	StatusSaved SaveStatus = iota
	StatusSaving
	StatusUnsaved
)

func (s SaveStatus) String() string {
	switch s {
	case StatusSaved:
		return "saved"
	case StatusSaving:
		return "saving"
	default:
		return "unsaved"
	}
}

func (s SaveStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SaveStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "saved":
		*s = StatusSaved
	case "saving":
		*s = StatusSaving
	case "unsaved":
		*s = StatusUnsaved
	default:
		return fmt.Errorf("unknown save status %q", b)
	}
	return nil
}

// Timer is the part of *time.Timer the coordinator needs
type Timer interface {
	Stop() bool
}

// AfterFunc arms f to run once after d
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// PersistFunc durably stores doc for the coordinator's project
type PersistFunc func(ctx context.Context, doc Document) error

// SaveCoordinator collapses bursts of changes into one delayed write and
// keeps the save status. Writes are numbered in issue order; at most one is
// in flight and a write older than the newest landed one is dropped.
type SaveCoordinator struct {
	persist      PersistFunc
	delay        time.Duration
	writeTimeout time.Duration
	afterFunc    AfterFunc
	onStatus     func(SaveStatus)
	log          *zap.Logger

	mu         sync.Mutex
	status     SaveStatus
	timer      Timer
	pendingSeq uint64
	pendingDoc Document
	issued     uint64
	landed     uint64

	// held for the duration of one persistence call
	writeMu sync.Mutex
}

// defaultWriteTimeout bounds a debounced write, which has no caller context
const defaultWriteTimeout = 30 * time.Second

type SaveOption func(*SaveCoordinator)

func WithWriteTimeout(d time.Duration) SaveOption {
	return func(c *SaveCoordinator) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithAfterFunc swaps the timer source, tests use it to drive time by hand
func WithAfterFunc(f AfterFunc) SaveOption {
	return func(c *SaveCoordinator) { c.afterFunc = f }
}

// WithStatusListener is called under the coordinator lock on every status
// change; it must not block or call back into the coordinator.
func WithStatusListener(f func(SaveStatus)) SaveOption {
	return func(c *SaveCoordinator) { c.onStatus = f }
}

func NewSaveCoordinator(persist PersistFunc, delay time.Duration, log *zap.Logger, opts ...SaveOption) *SaveCoordinator {
	if delay <= 0 {
		delay = time.Second
	}
	c := &SaveCoordinator{
		persist:      persist,
		delay:        delay,
		writeTimeout: defaultWriteTimeout,
		afterFunc:    realAfterFunc,
		log:          log,
		status:       StatusSaved,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SaveCoordinator) Status() SaveStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Pending reports whether a debounced write is armed
func (c *SaveCoordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

func (c *SaveCoordinator) setStatus(s SaveStatus) {
	if c.status == s {
		return
	}
	c.status = s
	if c.onStatus != nil {
		c.onStatus(s)
	}
}

// NotifyChange marks the document unsaved and re-arms the debounce timer.
// Only the last change inside one delay window is written.
func (c *SaveCoordinator) NotifyChange(doc Document) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.issued++
	seq := c.issued
	c.setStatus(StatusUnsaved)

	if c.timer != nil {
		c.timer.Stop()
	}
	c.pendingSeq = seq
	c.pendingDoc = doc
	c.timer = c.afterFunc(c.delay, func() { c.fire(seq) })
}

// ForceSave cancels any pending debounce and writes doc now
func (c *SaveCoordinator) ForceSave(ctx context.Context, doc Document) error {
	return c.PrepareSave(doc)(ctx)
}

// PrepareSave takes doc's place in the write order and cancels the pending
// debounce; the returned function performs the write. Callers that pick doc
// under their own lock call PrepareSave before releasing it, so a change
// notified after that lock is released always orders after doc.
func (c *SaveCoordinator) PrepareSave(doc Document) func(ctx context.Context) error {
	c.mu.Lock()
	c.issued++
	seq := c.issued
	c.cancelPendingLocked()
	c.mu.Unlock()

	return func(ctx context.Context) error {
		return c.write(ctx, seq, doc)
	}
}

// Flush writes the pending debounced document, if any, without waiting for the timer
func (c *SaveCoordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.timer == nil {
		c.mu.Unlock()
		return nil
	}
	seq, doc := c.pendingSeq, c.pendingDoc
	c.cancelPendingLocked()
	c.mu.Unlock()

	return c.write(ctx, seq, doc)
}

// Stop cancels a pending write without running it
func (c *SaveCoordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelPendingLocked()
}

func (c *SaveCoordinator) cancelPendingLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pendingSeq = 0
	c.pendingDoc = ""
}

func (c *SaveCoordinator) fire(seq uint64) {
	c.mu.Lock()
	// superseded or cancelled after the timer already fired
	if c.timer == nil || c.pendingSeq != seq {
		c.mu.Unlock()
		return
	}
	doc := c.pendingDoc
	c.timer = nil
	c.pendingSeq = 0
	c.pendingDoc = ""
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	if err := c.write(ctx, seq, doc); err != nil {
		c.log.Warn("debounced save failed", zap.Uint64("seq", seq), zap.Error(err))
	}
}

func (c *SaveCoordinator) write(ctx context.Context, seq uint64, doc Document) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	if seq <= c.landed {
		c.mu.Unlock()
		c.log.Debug("dropping stale save", zap.Uint64("seq", seq))
		return nil
	}
	c.setStatus(StatusSaving)
	c.mu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "editor.save",
		attribute.Int64("save.seq", int64(seq)),
		attribute.Int("save.length", len(doc)),
	)
	err := c.persist(ctx, doc)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	span.End()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.setStatus(StatusUnsaved)
		return err
	}
	c.landed = seq
	if seq == c.issued {
		c.setStatus(StatusSaved)
	} else {
		// a newer change arrived while this one was being written
		c.setStatus(StatusUnsaved)
	}
	return nil
}
