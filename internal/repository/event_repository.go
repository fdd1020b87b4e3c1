package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempts/internal/model"
)

// EventRepository writes domain events into the attempt_events audit table.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func eventPayload(e model.AttemptEvent) (any, error) {
	if len(e.Payload) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// CopyEvents bulk-inserts a batch. Any failure, including a duplicate id,
// fails the whole batch.
func (r *EventRepository) CopyEvents(ctx context.Context, events []model.AttemptEvent) (int64, error) {
	return r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"attempt_events"},
		[]string{"id", "type", "attempt_id", "exam_id", "user_id", "occurred_at", "payload"},
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			e := events[i]
			payload, err := eventPayload(e)
			if err != nil {
				return nil, err
			}
			return []any{e.ID, string(e.Type), e.AttemptID, e.ExamID, e.UserID, e.OccurredAt, payload}, nil
		}),
	)
}

// InsertEvent writes one event, ignoring an id that is already stored.
func (r *EventRepository) InsertEvent(ctx context.Context, e model.AttemptEvent) error {
	payload, err := eventPayload(e)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO attempt_events (id, type, attempt_id, exam_id, user_id, occurred_at, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, string(e.Type), e.AttemptID, e.ExamID, e.UserID, e.OccurredAt, payload,
	)
	return err
}
