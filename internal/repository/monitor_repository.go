package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempts/internal/model"
)

// MonitorRepository provides read models for the live exam monitor.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// ListProgress returns every attempt of an exam with its anti-cheat counts.
// AnsweredCount covers final responses only; drafts of STARTED attempts
// live in Redis.
func (r *MonitorRepository) ListProgress(ctx context.Context, examID uuid.UUID) ([]model.AttemptProgress, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.user_id, s.status, s.started_at, s.expires_at, s.score,
		        (SELECT COUNT(*) FROM attempt_responses ar WHERE ar.attempt_id = s.id AND ar.answer <> ''),
		        COUNT(e.id),
		        COUNT(e.id) FILTER (WHERE e.type = 'TAB_SWITCH')
		 FROM attempt_sessions s
		 LEFT JOIN anti_cheat_events e ON e.attempt_id = s.id
		 WHERE s.exam_id = $1
		 GROUP BY s.id
		 ORDER BY s.started_at`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var progress []model.AttemptProgress
	for rows.Next() {
		var p model.AttemptProgress
		if err := rows.Scan(&p.AttemptID, &p.UserID, &p.Status, &p.StartedAt, &p.ExpiresAt, &p.Score,
			&p.AnsweredCount, &p.AntiCheatEvents, &p.TabSwitches); err != nil {
			return nil, err
		}
		progress = append(progress, p)
	}
	return progress, rows.Err()
}
