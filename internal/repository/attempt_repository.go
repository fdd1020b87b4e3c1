package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempts/internal/model"
)

// AttemptRepository handles attempt session and response data access.
// Every state change is an optimistic update guarded by the row version.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, exam_id, user_id, status, resume_token_hash, late_access_code_id,
	started_at, expires_at, submitted_at, score, max_score, percentage, passed,
	time_spent_seconds, evaluation, version, created_at, updated_at`

func scanAttempt(row rowScanner, a *model.AttemptSession) error {
	return row.Scan(&a.ID, &a.ExamID, &a.UserID, &a.Status, &a.ResumeTokenHash, &a.LateAccessCodeID,
		&a.StartedAt, &a.ExpiresAt, &a.SubmittedAt, &a.Score, &a.MaxScore, &a.Percentage, &a.Passed,
		&a.TimeSpentSeconds, &a.Evaluation, &a.Version, &a.CreatedAt, &a.UpdatedAt)
}

// Create inserts a new STARTED session.
func (r *AttemptRepository) Create(ctx context.Context, a *model.AttemptSession) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO attempt_sessions (exam_id, user_id, status, resume_token_hash, late_access_code_id, started_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, version, created_at, updated_at`,
		a.ExamID, a.UserID, a.Status, a.ResumeTokenHash, a.LateAccessCodeID, a.StartedAt, a.ExpiresAt,
	).Scan(&a.ID, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	return translate(err)
}

// GetByID retrieves a session by id.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.AttemptSession, error) {
	a := &model.AttemptSession{}
	row := r.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM attempt_sessions WHERE id = $1`, id)
	if err := scanAttempt(row, a); err != nil {
		return nil, translate(err)
	}
	return a, nil
}

// ListByExamAndUser returns a student's sessions for one exam, newest first.
func (r *AttemptRepository) ListByExamAndUser(ctx context.Context, examID uuid.UUID, userID int) ([]model.AttemptSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempt_sessions
		 WHERE exam_id = $1 AND user_id = $2
		 ORDER BY started_at DESC`, examID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.AttemptSession
	for rows.Next() {
		var a model.AttemptSession
		if err := scanAttempt(rows, &a); err != nil {
			return nil, err
		}
		sessions = append(sessions, a)
	}
	return sessions, rows.Err()
}

// UpdateStatus moves a session to status if it is still at expectedVersion.
// On success a.Version and a.UpdatedAt reflect the new row.
func (r *AttemptRepository) UpdateStatus(ctx context.Context, a *model.AttemptSession, status model.AttemptStatus) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE attempt_sessions
		 SET status = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2 AND version = $3
		 RETURNING version, updated_at`,
		status, a.ID, a.Version,
	).Scan(&a.Version, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionConflict
		}
		return err
	}
	a.Status = status
	return nil
}

// Complete writes the result fields, stamps the COMPLETED transition and
// inserts the final responses in one transaction. A stale version aborts
// the whole unit with ErrVersionConflict; an existing response for the same
// question aborts it with ErrDuplicate.
func (r *AttemptRepository) Complete(ctx context.Context, a *model.AttemptSession, responses []model.AttemptResponse) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin complete: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`UPDATE attempt_sessions
		 SET status = $1, submitted_at = $2, score = $3, max_score = $4, percentage = $5,
		     passed = $6, time_spent_seconds = $7, evaluation = $8,
		     version = version + 1, updated_at = NOW()
		 WHERE id = $9 AND version = $10 AND status = $11
		 RETURNING version, updated_at`,
		model.AttemptStatusCompleted, a.SubmittedAt, a.Score, a.MaxScore, a.Percentage,
		a.Passed, a.TimeSpentSeconds, a.Evaluation,
		a.ID, a.Version, model.AttemptStatusStarted,
	).Scan(&a.Version, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionConflict
		}
		return fmt.Errorf("update attempt: %w", err)
	}

	now := time.Now()
	for i := range responses {
		if responses[i].ID == uuid.Nil {
			responses[i].ID = uuid.New()
		}
		responses[i].AttemptID = a.ID
		responses[i].CreatedAt = now
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"attempt_responses"},
		[]string{"id", "attempt_id", "question_id", "answer", "is_correct", "earned_points", "grading_details", "time_spent", "created_at"},
		pgx.CopyFromSlice(len(responses), func(i int) ([]any, error) {
			resp := responses[i]
			var details any
			if len(resp.GradingDetails) > 0 {
				details = string(resp.GradingDetails)
			}
			return []any{resp.ID, resp.AttemptID, resp.QuestionID, resp.Answer, resp.IsCorrect,
				resp.EarnedPoints, details, resp.TimeSpent, resp.CreatedAt}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("insert responses: %w", translate(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit complete: %w", err)
	}
	a.Status = model.AttemptStatusCompleted
	return nil
}

// ListResponses returns the final responses of an attempt.
func (r *AttemptRepository) ListResponses(ctx context.Context, attemptID uuid.UUID) ([]model.AttemptResponse, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ar.id, ar.attempt_id, ar.question_id, ar.answer, ar.is_correct, ar.earned_points,
		        ar.grading_details, ar.time_spent, ar.created_at
		 FROM attempt_responses ar
		 JOIN questions q ON q.id = ar.question_id
		 WHERE ar.attempt_id = $1
		 ORDER BY q.order_num`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []model.AttemptResponse
	for rows.Next() {
		var resp model.AttemptResponse
		if err := rows.Scan(&resp.ID, &resp.AttemptID, &resp.QuestionID, &resp.Answer, &resp.IsCorrect,
			&resp.EarnedPoints, &resp.GradingDetails, &resp.TimeSpent, &resp.CreatedAt); err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}
