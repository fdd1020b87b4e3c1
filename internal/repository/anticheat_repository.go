package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempts/internal/model"
)

// AntiCheatRepository persists the append-only anti-cheat ledger.
type AntiCheatRepository struct {
	pool *pgxpool.Pool
}

// NewAntiCheatRepository creates a new AntiCheatRepository.
func NewAntiCheatRepository(pool *pgxpool.Pool) *AntiCheatRepository {
	return &AntiCheatRepository{pool: pool}
}

// Record appends e under a row lock on its attempt. Nothing is written
// unless the attempt is STARTED. Redelivery of an (attempt, event id) pair
// already in the ledger leaves Recorded false. When abandon reports true for
// the resulting ledger the attempt is moved to ABANDONED before commit.
func (r *AntiCheatRepository) Record(ctx context.Context, e *model.AntiCheatEvent, abandon func(model.AntiCheatLedger) bool) (*model.LedgerWrite, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin record: %w", err)
	}
	defer tx.Rollback(ctx)

	w := &model.LedgerWrite{}
	err = tx.QueryRow(ctx,
		`SELECT status, version FROM attempt_sessions WHERE id = $1 FOR UPDATE`, e.AttemptID,
	).Scan(&w.Status, &w.Version)
	if err != nil {
		return nil, translate(err)
	}
	if w.Status != model.AttemptStatusStarted {
		return w, nil
	}

	var metadata any
	if len(e.Metadata) > 0 {
		metadata = string(e.Metadata)
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO anti_cheat_events (attempt_id, event_id, type, metadata, occurred_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5)
		 ON CONFLICT (attempt_id, event_id) DO NOTHING
		 RETURNING id, received_at`,
		e.AttemptID, e.EventID, e.Type, metadata, e.OccurredAt,
	).Scan(&e.ID, &e.ReceivedAt)
	switch {
	case err == nil:
		w.Recorded = true
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("insert event: %w", err)
	}

	if w.Ledger, err = listLedger(ctx, tx, e.AttemptID); err != nil {
		return nil, err
	}

	if abandon != nil && abandon(w.Ledger) {
		err = tx.QueryRow(ctx,
			`UPDATE attempt_sessions
			 SET status = $1, version = version + 1, updated_at = NOW()
			 WHERE id = $2
			 RETURNING version`,
			model.AttemptStatusAbandoned, e.AttemptID,
		).Scan(&w.Version)
		if err != nil {
			return nil, fmt.Errorf("abandon attempt: %w", err)
		}
		w.Status = model.AttemptStatusAbandoned
		w.Abandoned = true
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// ListByAttempt returns the ledger in occurrence order.
func (r *AntiCheatRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) (model.AntiCheatLedger, error) {
	return listLedger(ctx, r.pool, attemptID)
}

func listLedger(ctx context.Context, q querier, attemptID uuid.UUID) (model.AntiCheatLedger, error) {
	rows, err := q.Query(ctx,
		`SELECT id, attempt_id, event_id, type, metadata, occurred_at, received_at
		 FROM anti_cheat_events
		 WHERE attempt_id = $1
		 ORDER BY occurred_at, id`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ledger model.AntiCheatLedger
	for rows.Next() {
		var e model.AntiCheatEvent
		if err := rows.Scan(&e.ID, &e.AttemptID, &e.EventID, &e.Type, &e.Metadata, &e.OccurredAt, &e.ReceivedAt); err != nil {
			return nil, err
		}
		ledger = append(ledger, e)
	}
	return ledger, rows.Err()
}
