package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/model"
)

type fakeQueue struct {
	ch chan []byte

	mu        sync.Mutex
	popped    int
	requeued  []model.AttemptEvent
	broadcast []model.AttemptEvent
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{ch: make(chan []byte, 16)}
}

func (q *fakeQueue) push(t *testing.T, evt any) {
	t.Helper()
	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatal(err)
	}
	q.ch <- data
}

func (q *fakeQueue) Pop(ctx context.Context, _ time.Duration) ([]byte, error) {
	select {
	case data := <-q.ch:
		q.mu.Lock()
		q.popped++
		q.mu.Unlock()
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil, ErrQueueEmpty
	}
}

func (q *fakeQueue) Requeue(_ context.Context, events []model.AttemptEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requeued = append(q.requeued, events...)
	return nil
}

func (q *fakeQueue) Broadcast(_ context.Context, evt model.AttemptEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.broadcast = append(q.broadcast, evt)
	return nil
}

func (q *fakeQueue) counts() (popped, requeued, broadcast int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popped, len(q.requeued), len(q.broadcast)
}

type fakeSink struct {
	mu        sync.Mutex
	copyErr   error
	badIDs    map[uuid.UUID]bool
	persisted []model.AttemptEvent
}

func (s *fakeSink) CopyEvents(_ context.Context, events []model.AttemptEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.copyErr != nil {
		return 0, s.copyErr
	}
	s.persisted = append(s.persisted, events...)
	return int64(len(events)), nil
}

func (s *fakeSink) InsertEvent(_ context.Context, evt model.AttemptEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.badIDs[evt.ID] {
		return errors.New("connection reset")
	}
	s.persisted = append(s.persisted, evt)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.persisted)
}

func newEvent(typ model.AttemptEventType) model.AttemptEvent {
	return model.AttemptEvent{
		ID:         uuid.New(),
		Type:       typ,
		AttemptID:  uuid.New(),
		ExamID:     uuid.New(),
		UserID:     42,
		OccurredAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func run(w *EventWorker) (context.CancelFunc, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	return cancel, done
}

func TestEventWorker_FlushesFullBatch(t *testing.T) {
	q, sink := newFakeQueue(), &fakeSink{}
	w := NewEventWorker(q, sink, 2, time.Hour, zerolog.Nop())
	cancel, done := run(w)
	defer func() { cancel(); <-done }()

	q.push(t, newEvent(model.EventAttemptStarted))
	q.push(t, newEvent(model.EventAttemptSubmitted))

	waitFor(t, func() bool { return sink.count() == 2 })
	waitFor(t, func() bool { _, _, b := q.counts(); return b == 2 })
}

func TestEventWorker_FlushesOnShutdown(t *testing.T) {
	q, sink := newFakeQueue(), &fakeSink{}
	w := NewEventWorker(q, sink, 100, time.Hour, zerolog.Nop())
	cancel, done := run(w)

	q.push(t, newEvent(model.EventAttemptGraded))
	waitFor(t, func() bool { p, _, _ := q.counts(); return p == 1 })

	cancel()
	<-done

	if sink.count() != 1 {
		t.Fatalf("Expected buffered event to be flushed on shutdown, got %d", sink.count())
	}
}

func TestEventWorker_DiscardsMalformed(t *testing.T) {
	q, sink := newFakeQueue(), &fakeSink{}
	w := NewEventWorker(q, sink, 1, time.Hour, zerolog.Nop())
	cancel, done := run(w)
	defer func() { cancel(); <-done }()

	q.ch <- []byte("{not json")
	q.push(t, newEvent(model.EventAttemptExpired))

	waitFor(t, func() bool { return sink.count() == 1 })
}

func TestEventWorker_FallbackRequeuesFailedRows(t *testing.T) {
	good, bad := newEvent(model.EventAttemptSubmitted), newEvent(model.EventAttemptAbandoned)
	q := newFakeQueue()
	sink := &fakeSink{
		copyErr: errors.New("duplicate key value violates unique constraint"),
		badIDs:  map[uuid.UUID]bool{bad.ID: true},
	}
	w := NewEventWorker(q, sink, 10, time.Hour, zerolog.Nop())
	w.backoff = 0

	w.flushSafe(context.Background(), []model.AttemptEvent{good, bad})

	if sink.count() != 1 || sink.persisted[0].ID != good.ID {
		t.Fatalf("Expected only the good event persisted, got %+v", sink.persisted)
	}
	if len(q.requeued) != 1 || q.requeued[0].ID != bad.ID {
		t.Errorf("Expected the failed event requeued, got %+v", q.requeued)
	}
	if len(q.broadcast) != 1 || q.broadcast[0].ID != good.ID {
		t.Errorf("Expected only persisted events broadcast, got %+v", q.broadcast)
	}
}

func TestNewEventWorker_Defaults(t *testing.T) {
	w := NewEventWorker(newFakeQueue(), &fakeSink{}, 0, 0, zerolog.Nop())
	if w.batchSize != DefaultBatchSize || w.batchTimeout != DefaultBatchTimeout {
		t.Errorf("unexpected defaults %d %v", w.batchSize, w.batchTimeout)
	}
}
