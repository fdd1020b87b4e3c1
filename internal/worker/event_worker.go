package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/config"
	"github.com/stemsi/exstem-attempts/internal/model"
)

const (
	DefaultBatchSize    = 50
	DefaultBatchTimeout = 2 * time.Second
	PollTimeout         = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ErrQueueEmpty is returned by EventQueue.Pop when nothing arrived within the
// poll timeout.
var ErrQueueEmpty = errors.New("event queue empty")

// EventQueue is the broker side of the worker.
type EventQueue interface {
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
	Requeue(ctx context.Context, events []model.AttemptEvent) error
	Broadcast(ctx context.Context, evt model.AttemptEvent) error
}

// EventSink is the durable side of the worker.
type EventSink interface {
	CopyEvents(ctx context.Context, events []model.AttemptEvent) (int64, error)
	InsertEvent(ctx context.Context, evt model.AttemptEvent) error
}

// EventWorker drains the domain event queue into the attempt_events table
// in batches and fans each persisted event out to the exam monitor channel.
type EventWorker struct {
	queue        EventQueue
	sink         EventSink
	batchSize    int
	batchTimeout time.Duration
	backoff      time.Duration
	log          zerolog.Logger
}

// NewEventWorker creates a new EventWorker. Non-positive batch settings fall
// back to the defaults.
func NewEventWorker(queue EventQueue, sink EventSink, batchSize int, batchTimeout time.Duration, log zerolog.Logger) *EventWorker {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchTimeout <= 0 {
		batchTimeout = DefaultBatchTimeout
	}
	return &EventWorker{
		queue:        queue,
		sink:         sink,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		backoff:      2 * time.Second,
		log:          log.With().Str("component", "event_worker").Logger(),
	}
}

// Start runs until ctx is cancelled, then flushes whatever is buffered.
func (w *EventWorker) Start(ctx context.Context) {
	w.log.Info().Int("batch_size", w.batchSize).Msg("EventWorker started")

	buffer := make([]model.AttemptEvent, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		// 1. Flush on size or age.
		if len(buffer) > 0 && (len(buffer) >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		// 2. Graceful shutdown.
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch.
		data, err := w.queue.Pop(ctx, PollTimeout)
		if err != nil {
			if errors.Is(err, ErrQueueEmpty) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Queue read failed, backing off")
			w.sleep(ctx, w.backoff)
			continue
		}

		// 4. Decode. Malformed payloads cannot be retried.
		var evt model.AttemptEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			w.log.Error().Err(err).Str("data", string(data)).Msg("Discarding malformed event")
			continue
		}
		buffer = append(buffer, evt)
	}
}

// flushSafe attempts a bulk copy, then row-by-row inserts, then requeues
// whatever still failed.
func (w *EventWorker) flushSafe(ctx context.Context, batch []model.AttemptEvent) {
	persisted := batch
	if _, err := w.sink.CopyEvents(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		persisted = w.fallbackInsert(ctx, batch)
	}

	for _, evt := range persisted {
		if err := w.queue.Broadcast(ctx, evt); err != nil {
			w.log.Warn().Err(err).Str("exam_id", evt.ExamID.String()).Msg("Monitor broadcast failed")
		}
	}
}

// fallbackInsert returns the events that made it into the sink.
func (w *EventWorker) fallbackInsert(ctx context.Context, batch []model.AttemptEvent) []model.AttemptEvent {
	persisted := make([]model.AttemptEvent, 0, len(batch))
	var failed []model.AttemptEvent

	for _, evt := range batch {
		if err := w.sink.InsertEvent(ctx, evt); err != nil {
			w.log.Error().Err(err).
				Str("event_id", evt.ID.String()).
				Str("type", string(evt.Type)).
				Msg("Insert failed, requeueing")
			failed = append(failed, evt)
			continue
		}
		persisted = append(persisted, evt)
	}

	if len(failed) > 0 {
		w.requeue(ctx, failed)
	}
	return persisted
}

func (w *EventWorker) requeue(ctx context.Context, events []model.AttemptEvent) {
	if err := w.queue.Requeue(ctx, events); err != nil {
		w.log.Error().Err(err).Int("count", len(events)).Msg("CRITICAL: Failed to requeue events. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(events)).Msg("Requeued failed events")
	// Avoid thrashing while the database is down.
	w.sleep(ctx, w.backoff)
}

func (w *EventWorker) shutdown(buffer []model.AttemptEvent) {
	w.log.Info().Int("pending", len(buffer)).Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}

func (w *EventWorker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ─── Redis queue ──────────────────────────────────────────────────────

// RedisEventQueue reads the list filled by service.RedisEventPublisher.
type RedisEventQueue struct {
	rdb *redis.Client
}

// NewRedisEventQueue creates a new RedisEventQueue.
func NewRedisEventQueue(rdb *redis.Client) *RedisEventQueue {
	return &RedisEventQueue{rdb: rdb}
}

// Pop blocks for up to timeout waiting for the next event.
func (q *RedisEventQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	result, err := q.rdb.BLPop(ctx, timeout, config.WorkerKey.AttemptEventsQueue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, err
	}
	if len(result) < 2 {
		return nil, ErrQueueEmpty
	}
	return []byte(result[1]), nil
}

// Requeue pushes events back onto the tail of the queue in one pipeline.
func (q *RedisEventQueue) Requeue(ctx context.Context, events []model.AttemptEvent) error {
	pipe := q.rdb.Pipeline()
	for _, evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			return err
		}
		pipe.RPush(ctx, config.WorkerKey.AttemptEventsQueue, data)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Broadcast publishes evt on the exam's monitor channel.
func (q *RedisEventQueue) Broadcast(ctx context.Context, evt model.AttemptEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return q.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(evt.ExamID.String()), data).Err()
}

// Depth reports how many events are waiting.
func (q *RedisEventQueue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, config.WorkerKey.AttemptEventsQueue).Result()
}
