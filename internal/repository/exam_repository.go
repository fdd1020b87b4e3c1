package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempts/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, title, author_id, status, start_time, end_time, duration_minutes,
	passing_score, max_attempts, time_between_attempts, evaluation_type,
	anti_cheat, decorators, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExam(row rowScanner, e *model.Exam) error {
	return row.Scan(&e.ID, &e.Title, &e.AuthorID, &e.Status, &e.StartTime, &e.EndTime, &e.DurationMinutes,
		&e.PassingScore, &e.MaxAttempts, &e.TimeBetweenAttempts, &e.EvaluationType,
		&e.AntiCheat, &e.Decorators, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	row := r.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id)
	if err := scanExam(row, e); err != nil {
		return nil, translate(err)
	}
	return e, nil
}

// ListPublished returns all exams with PUBLISHED status.
// Used for cache prewarming on application startup.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams WHERE status = $1 ORDER BY created_at`,
		model.ExamStatusPublished,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := scanExam(rows, &e); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	if e.Decorators == nil {
		e.Decorators = []string{}
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, author_id, status, start_time, end_time, duration_minutes,
		                    passing_score, max_attempts, time_between_attempts, evaluation_type,
		                    anti_cheat, decorators)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.AuthorID, e.Status, e.StartTime, e.EndTime, e.DurationMinutes,
		e.PassingScore, e.MaxAttempts, e.TimeBetweenAttempts, e.EvaluationType,
		e.AntiCheat, e.Decorators,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	return translate(err)
}
