package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempts/internal/model"
)

// LateCodeRepository handles late-access codes and their usage history.
type LateCodeRepository struct {
	pool *pgxpool.Pool
}

// NewLateCodeRepository creates a new LateCodeRepository.
func NewLateCodeRepository(pool *pgxpool.Pool) *LateCodeRepository {
	return &LateCodeRepository{pool: pool}
}

const lateCodeColumns = `id, code, exam_id, generated_by, assigned_user_id, max_usages, status, expires_at, created_at`

func scanLateCode(row rowScanner, c *model.LateAccessCode) error {
	return row.Scan(&c.ID, &c.Code, &c.ExamID, &c.GeneratedBy, &c.AssignedUserID, &c.MaxUsages, &c.Status, &c.ExpiresAt, &c.CreatedAt)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadUsages(ctx context.Context, q querier, c *model.LateAccessCode) error {
	rows, err := q.Query(ctx,
		`SELECT user_id, used_at FROM late_code_usages WHERE code_id = $1 ORDER BY used_at, id`, c.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	c.UsageHistory = c.UsageHistory[:0]
	for rows.Next() {
		var u model.LateCodeUsage
		if err := rows.Scan(&u.UserID, &u.UsedAt); err != nil {
			return err
		}
		c.UsageHistory = append(c.UsageHistory, u)
	}
	return rows.Err()
}

// Create inserts a new code. A code string collision returns ErrDuplicate.
func (r *LateCodeRepository) Create(ctx context.Context, c *model.LateAccessCode) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO late_access_codes (code, exam_id, generated_by, assigned_user_id, max_usages, status, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		c.Code, c.ExamID, c.GeneratedBy, c.AssignedUserID, c.MaxUsages, c.Status, c.ExpiresAt,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return translate(err)
	}
	c.UsageHistory = []model.LateCodeUsage{}
	return nil
}

func (r *LateCodeRepository) getOne(ctx context.Context, q querier, where string, arg any) (*model.LateAccessCode, error) {
	c := &model.LateAccessCode{}
	if err := scanLateCode(q.QueryRow(ctx, `SELECT `+lateCodeColumns+` FROM late_access_codes WHERE `+where, arg), c); err != nil {
		return nil, translate(err)
	}
	if err := loadUsages(ctx, q, c); err != nil {
		return nil, fmt.Errorf("load usages: %w", err)
	}
	return c, nil
}

// GetByID retrieves a code with its usage history.
func (r *LateCodeRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.LateAccessCode, error) {
	return r.getOne(ctx, r.pool, `id = $1`, id)
}

// FindByCode retrieves a code by its human-typeable value.
func (r *LateCodeRepository) FindByCode(ctx context.Context, code string) (*model.LateAccessCode, error) {
	return r.getOne(ctx, r.pool, `code = $1`, code)
}

// ListByExam returns every code issued for an exam, newest first.
func (r *LateCodeRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.LateAccessCode, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+lateCodeColumns+` FROM late_access_codes WHERE exam_id = $1 ORDER BY created_at DESC`, examID)
	if err != nil {
		return nil, err
	}
	var codes []model.LateAccessCode
	for rows.Next() {
		var c model.LateAccessCode
		if err := scanLateCode(rows, &c); err != nil {
			rows.Close()
			return nil, err
		}
		codes = append(codes, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range codes {
		if err := loadUsages(ctx, r.pool, &codes[i]); err != nil {
			return nil, fmt.Errorf("load usages: %w", err)
		}
	}
	return codes, nil
}

// WithLockedCode loads the code row FOR UPDATE, hands it to fn, and persists
// any usages fn appended along with the resulting status. If fn returns an
// error nothing is written.
func (r *LateCodeRepository) WithLockedCode(ctx context.Context, code string, fn func(c *model.LateAccessCode) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin consume: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := r.getOne(ctx, tx, `code = $1 FOR UPDATE`, code)
	if err != nil {
		return err
	}
	before := len(c.UsageHistory)

	if err := fn(c); err != nil {
		return err
	}

	for _, u := range c.UsageHistory[before:] {
		if _, err := tx.Exec(ctx,
			`INSERT INTO late_code_usages (code_id, user_id, used_at) VALUES ($1, $2, $3)`,
			c.ID, u.UserID, u.UsedAt,
		); err != nil {
			return fmt.Errorf("insert usage: %w", translate(err))
		}
	}
	if _, err := tx.Exec(ctx,
		`UPDATE late_access_codes SET status = $1 WHERE id = $2`, c.Status, c.ID,
	); err != nil {
		return fmt.Errorf("update code status: %w", err)
	}

	return tx.Commit(ctx)
}

// UpdateStatus sets a code's stored status.
func (r *LateCodeRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.LateCodeStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE late_access_codes SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
