package editor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSaver(rec *recorder, opts ...SaveOption) (*SaveCoordinator, *fakeClock) {
	clock := &fakeClock{}
	opts = append([]SaveOption{WithAfterFunc(clock.AfterFunc)}, opts...)
	return NewSaveCoordinator(rec.persist, time.Second, zap.NewNop(), opts...), clock
}

func TestSave_BurstPersistsOnlyLastEdit(t *testing.T) {
	rec := &recorder{}
	saver, clock := newTestSaver(rec)

	for i := range 5 {
		saver.NotifyChange(Document(fmt.Sprintf("doc-%d", i)))
		assert.Equal(t, StatusUnsaved, saver.Status())
	}
	assert.Equal(t, 1, clock.Armed())
	assert.Empty(t, rec.Docs())

	assert.Equal(t, 1, clock.FireAll())

	assert.Equal(t, []Document{"doc-4"}, rec.Docs())
	assert.Equal(t, StatusSaved, saver.Status())
	assert.False(t, saver.Pending())
}

func TestSave_SupersededTimerDoesNothing(t *testing.T) {
	rec := &recorder{}
	saver, clock := newTestSaver(rec)

	saver.NotifyChange("first")
	stale := clock.Timer(0)
	saver.NotifyChange("second")

	// the first timer's callback runs anyway, as if it fired just before Stop
	stale.f()
	assert.Empty(t, rec.Docs())
	assert.Equal(t, StatusUnsaved, saver.Status())

	clock.FireAll()
	assert.Equal(t, []Document{"second"}, rec.Docs())
}

func TestSave_ForceSaveCancelsDebounce(t *testing.T) {
	rec := &recorder{}
	saver, clock := newTestSaver(rec)

	saver.NotifyChange("typed")
	require.NoError(t, saver.ForceSave(context.Background(), "forced"))

	assert.Equal(t, 0, clock.Armed())
	assert.Equal(t, 0, clock.FireAll())
	assert.Equal(t, []Document{"forced"}, rec.Docs())
	assert.Equal(t, StatusSaved, saver.Status())
}

func TestSave_FailureLeavesUnsavedWithoutRetry(t *testing.T) {
	rec := &recorder{err: fmt.Errorf("db down")}
	saver, clock := newTestSaver(rec)

	saver.NotifyChange("doc")
	clock.FireAll()
	assert.Equal(t, StatusUnsaved, saver.Status())
	assert.Equal(t, 0, clock.Armed())

	err := saver.ForceSave(context.Background(), "doc")
	assert.Error(t, err)
	assert.Equal(t, StatusUnsaved, saver.Status())
}

func TestSave_EditDuringSaveStaysUnsaved(t *testing.T) {
	rec := &recorder{}
	saver, clock := newTestSaver(rec)
	rec.during = func() { saver.NotifyChange("newer") }

	require.NoError(t, saver.ForceSave(context.Background(), "older"))

	assert.Equal(t, StatusUnsaved, saver.Status())
	assert.True(t, saver.Pending())

	clock.FireAll()
	assert.Equal(t, []Document{"older", "newer"}, rec.Docs())
	assert.Equal(t, StatusSaved, saver.Status())
}

func TestSave_ChangeAfterPrepareIsNotLost(t *testing.T) {
	rec := &recorder{}
	saver, clock := newTestSaver(rec)

	commit := saver.PrepareSave("older")
	// a change notified between picking the document and writing it
	saver.NotifyChange("newer")
	require.NoError(t, commit(context.Background()))

	assert.Equal(t, []Document{"older"}, rec.Docs())
	assert.Equal(t, StatusUnsaved, saver.Status())
	require.True(t, saver.Pending())

	clock.FireAll()
	assert.Equal(t, []Document{"older", "newer"}, rec.Docs())
	assert.Equal(t, StatusSaved, saver.Status())
}

func TestSave_DebouncedWriteHasDeadline(t *testing.T) {
	var (
		hasDeadline bool
		remaining   time.Duration
	)
	persist := func(ctx context.Context, doc Document) error {
		var deadline time.Time
		deadline, hasDeadline = ctx.Deadline()
		remaining = time.Until(deadline)
		return nil
	}
	clock := &fakeClock{}
	saver := NewSaveCoordinator(persist, time.Second, zap.NewNop(),
		WithAfterFunc(clock.AfterFunc), WithWriteTimeout(5*time.Second))

	saver.NotifyChange("doc")
	clock.FireAll()

	assert.True(t, hasDeadline)
	assert.LessOrEqual(t, remaining, 5*time.Second)
	assert.Greater(t, remaining, time.Duration(0))
}

func TestSave_HungDebouncedWriteTimesOut(t *testing.T) {
	persist := func(ctx context.Context, doc Document) error {
		<-ctx.Done()
		return ctx.Err()
	}
	clock := &fakeClock{}
	saver := NewSaveCoordinator(persist, time.Second, zap.NewNop(),
		WithAfterFunc(clock.AfterFunc), WithWriteTimeout(20*time.Millisecond))

	saver.NotifyChange("doc")
	done := make(chan struct{})
	go func() {
		clock.FireAll()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced write never gave up")
	}
	assert.Equal(t, StatusUnsaved, saver.Status())
}

func TestSave_StaleWriteIsDropped(t *testing.T) {
	rec := &recorder{}
	saver, _ := newTestSaver(rec)

	require.NoError(t, saver.ForceSave(context.Background(), "one"))
	require.NoError(t, saver.ForceSave(context.Background(), "two"))

	// a write issued before "two" that only now gets its turn
	require.NoError(t, saver.write(context.Background(), 1, "late"))

	assert.Equal(t, []Document{"one", "two"}, rec.Docs())
	assert.Equal(t, StatusSaved, saver.Status())
}

func TestSave_OneWriteInFlight(t *testing.T) {
	release := make(chan struct{})
	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
	)
	persist := func(ctx context.Context, doc Document) error {
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		mu.Unlock()
		<-release
		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	}
	saver := NewSaveCoordinator(persist, time.Second, zap.NewNop(), WithAfterFunc((&fakeClock{}).AfterFunc))

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = saver.ForceSave(context.Background(), Document(fmt.Sprint(i)))
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestSave_FlushWritesPending(t *testing.T) {
	rec := &recorder{}
	saver, clock := newTestSaver(rec)

	require.NoError(t, saver.Flush(context.Background()))
	assert.Empty(t, rec.Docs())

	saver.NotifyChange("pending")
	require.NoError(t, saver.Flush(context.Background()))

	assert.Equal(t, []Document{"pending"}, rec.Docs())
	assert.Equal(t, 0, clock.FireAll())
}

func TestSave_StatusListener(t *testing.T) {
	rec := &recorder{}
	var seen []SaveStatus
	saver, clock := newTestSaver(rec, WithStatusListener(func(s SaveStatus) { seen = append(seen, s) }))

	saver.NotifyChange("a")
	saver.NotifyChange("b")
	clock.FireAll()

	assert.Equal(t, []SaveStatus{StatusUnsaved, StatusSaving, StatusSaved}, seen)
}

func TestSaveStatus_Text(t *testing.T) {
	b, err := StatusUnsaved.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "unsaved", string(b))
	assert.Equal(t, "saving", StatusSaving.String())
	assert.Equal(t, "saved", StatusSaved.String())
}
